package schedule

import (
	"encoding/xml"
	"fmt"
	"time"

	appLog "frabcal/internal/log"
	"frabcal/internal/markup"
	"frabcal/internal/model"
)

const timeslotDuration = "00:15"

// Document is the frab schedule tree.
type Document struct {
	XMLName    xml.Name   `xml:"schedule"`
	Version    int        `xml:"version"`
	Conference Conference `xml:"conference"`
	Days       []Day      `xml:"day"`
}

type Conference struct {
	Acronym          string `xml:"acronym"`
	Title            string `xml:"title"`
	Start            string `xml:"start"`
	End              string `xml:"end"`
	Days             int    `xml:"days"`
	TimeslotDuration string `xml:"timeslot_duration"`
}

type Day struct {
	Index string `xml:"index,attr"`
	Date  string `xml:"date,attr"`
	Start string `xml:"start,attr"`
	End   string `xml:"end,attr"`
	Rooms []Room `xml:"room"`
}

type Room struct {
	Name   string  `xml:"name,attr"`
	Events []Event `xml:"event"`
}

type Event struct {
	ID       string  `xml:"id,attr"`
	Date     string  `xml:"date"`
	Start    string  `xml:"start"`
	Duration string  `xml:"duration"`
	Room     string  `xml:"room"`
	Title    string  `xml:"title"`
	Subtitle string  `xml:"subtitle"`
	Persons  Persons `xml:"persons"`
}

type Persons struct {
	Person []string `xml:"person"`
}

// BuildOptions carries the presentation settings of a schedule.
type BuildOptions struct {
	Acronym     string
	Title       string
	Venue       string
	DefaultRoom string

	// HiddenSummary marks placeholder occurrences; they are never emitted and
	// a day holding nothing else is dropped.
	HiddenSummary string

	// MinDate, if non-zero, drops every day before it.
	MinDate model.Date

	// DayStartHour on the day itself and DayEndHour on the following day
	// bound the nominal day window.
	DayStartHour int
	DayEndHour   int
}

// BuildStats summarises what Build emitted.
type BuildStats struct {
	Days     int
	Events   int
	Hidden   int
	Warnings map[markup.Warning]int
}

// Build walks idx in date order and produces the schedule document. Metadata
// warnings are logged per occurrence and counted in the returned stats.
func Build(idx *Index, opts BuildOptions) (*Document, BuildStats) {
	r := idx.Range()
	loc := r.Loc
	stats := BuildStats{Warnings: make(map[markup.Warning]int)}

	doc := &Document{
		Version: 1,
		Conference: Conference{
			Acronym:          opts.Acronym,
			Title:            opts.Title,
			Start:            r.Start.String(),
			End:              r.End.String(),
			Days:             r.Days(),
			TimeslotDuration: timeslotDuration,
		},
	}

	for _, d := range idx.Dates() {
		if !opts.MinDate.IsZero() && d.Before(opts.MinDate) {
			continue
		}
		occs := idx.OccurrencesOn(d)
		if allHidden(occs, opts.HiddenSummary) {
			appLog.Debug("schedule: skipping hidden day", "date", d.String())
			continue
		}

		dayStart := atHour(d, opts.DayStartHour, loc)
		dayEnd := atHour(d.AddDays(1), opts.DayEndHour, loc)
		room := Room{Name: opts.Venue}

		seq := 1
		for _, occ := range occs {
			if isHidden(occ, opts.HiddenSummary) {
				stats.Hidden++
				continue
			}

			md := markup.Parse(occ.Source.Description, opts.DefaultRoom)
			for _, w := range md.Warnings {
				stats.Warnings[w]++
				appLog.Warn(string(w), "date", occ.Start.Format(time.RFC3339), "summary", occ.Source.Summary)
			}

			room.Events = append(room.Events, Event{
				ID:       fmt.Sprintf("%02d%02d%02d", int(d.Month), d.Day, seq),
				Date:     occ.Start.Format(time.RFC3339),
				Start:    occ.Start.Format("15:04"),
				Duration: FormatDuration(occ.Source.Duration()),
				Room:     md.Room,
				Title:    occ.Source.Summary,
				Subtitle: md.Subtitle,
				Persons:  Persons{Person: md.Persons()},
			})
			seq++
		}

		doc.Days = append(doc.Days, Day{
			Index: "1",
			Date:  d.String(),
			Start: dayStart.Format(time.RFC3339),
			End:   dayEnd.Format(time.RFC3339),
			Rooms: []Room{room},
		})
		stats.Days++
		stats.Events += len(room.Events)
	}

	return doc, stats
}

func atHour(d model.Date, hour int, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, hour, 0, 0, 0, loc)
}

// allHidden reports whether every occurrence carries the hidden summary.
func allHidden(occs []model.Occurrence, hidden string) bool {
	for _, occ := range occs {
		if !isHidden(occ, hidden) {
			return false
		}
	}
	return true
}

// isHidden reports whether occ is a placeholder. An empty marker hides
// nothing.
func isHidden(occ model.Occurrence, hidden string) bool {
	return hidden != "" && occ.Source.Summary == hidden
}

// FormatDuration renders d as HH:MM; hours are not wrapped at 24.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Minute)
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}
