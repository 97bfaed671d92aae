// Package markup extracts schedule metadata from event descriptions.
//
// A description line starting with one of the marker symbols carries a
// structured value instead of prose:
//
//	📍 Room name       (room, last one wins)
//	🏢 Group name      (group, all collected in order)
//	🙂 Person name     (person, all collected in order)
//	🖥 Subtitle text   (subtitle, last one wins)
//
// Every other line belongs to the description body.
package markup

import (
	"strings"
)

// Marker symbols.
const (
	MarkerRoom     = "\U0001F4CD"
	MarkerGroup    = "\U0001F3E2"
	MarkerPerson   = "\U0001F642"
	MarkerSubtitle = "\U0001F5A5"

	variationSelector = "\uFE0F"
)

// Warning is a non-fatal finding about a description.
type Warning string

const (
	WarnDescriptionEmpty Warning = "Description empty"
	WarnSubtitleMissing  Warning = "Subtitle override missing"
	WarnPeopleMissing    Warning = "People missing"
)

// Metadata is the structured view of one description.
type Metadata struct {
	Room        string
	Subtitle    string
	Groups      []string
	People      []string
	Description string
	Warnings    []Warning
}

type lineKind int

const (
	kindBody lineKind = iota
	kindRoom
	kindGroup
	kindPerson
	kindSubtitle
)

var markers = []struct {
	symbol string
	kind   lineKind
}{
	{MarkerRoom, kindRoom},
	{MarkerGroup, kindGroup},
	{MarkerPerson, kindPerson},
	{MarkerSubtitle, kindSubtitle},
}

// classify returns the marker kind of line and its trimmed payload.
func classify(line string) (lineKind, string) {
	for _, m := range markers {
		if rest, ok := strings.CutPrefix(line, m.symbol); ok {
			rest = strings.TrimPrefix(rest, variationSelector)
			return m.kind, strings.TrimSpace(rest)
		}
	}
	return kindBody, line
}

// Parse sanitises description to plain text and classifies it line by line.
// defaultRoom is used when no room marker is present. Without a subtitle
// marker the subtitle is the remaining description body.
func Parse(description, defaultRoom string) Metadata {
	md := Metadata{Room: defaultRoom}

	text := strings.TrimSpace(PlainText(description))

	var body []string
	subtitle, haveSubtitle := "", false
	for _, line := range strings.Split(text, "\n") {
		kind, value := classify(strings.TrimLeft(line, " \t"))
		if kind != kindBody && value == "" {
			// A bare marker carries nothing; drop the line.
			continue
		}
		switch kind {
		case kindRoom:
			md.Room = value
		case kindGroup:
			md.Groups = append(md.Groups, value)
		case kindPerson:
			md.People = append(md.People, value)
		case kindSubtitle:
			subtitle, haveSubtitle = value, true
		default:
			body = append(body, line)
		}
	}

	md.Description = strings.TrimSpace(strings.Join(body, "\n"))
	md.Subtitle = md.Description
	if haveSubtitle {
		md.Subtitle = subtitle
	}

	switch {
	case md.Description == "":
		md.Warnings = append(md.Warnings, WarnDescriptionEmpty)
	case md.Description == md.Subtitle:
		md.Warnings = append(md.Warnings, WarnSubtitleMissing)
	}
	if len(md.Groups) == 0 && len(md.People) == 0 {
		md.Warnings = append(md.Warnings, WarnPeopleMissing)
	}

	return md
}

// Persons lists groups followed by people, the order used in the schedule.
func (m Metadata) Persons() []string {
	out := make([]string, 0, len(m.Groups)+len(m.People))
	out = append(out, m.Groups...)
	return append(out, m.People...)
}
