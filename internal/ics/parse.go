package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	apperrors "frabcal/internal/errors"
	appLog "frabcal/internal/log"
	"frabcal/internal/model"
)

const (
	propRecurrenceID ical.ComponentProperty = "RECURRENCE-ID"
	propRDate        ical.ComponentProperty = "RDATE"
	propDuration     ical.ComponentProperty = "DURATION"
)

// ParseICS parses a single feed payload into event records.
//
//   - TZID parameters are resolved with time.LoadLocation; floating times and
//     all-day dates are interpreted in loc. Unknown TZIDs fall back to loc.
//   - RRULE/RDATE/EXDATE/RECURRENCE-ID are recorded but not expanded;
//     expansion is done in internal/ics/expand.go.
//
// An empty or unparseable payload, or a VEVENT without a usable DTSTART,
// fails the whole feed with *errors.FeedParseError.
func ParseICS(feed Feed, loc *time.Location) ([]*model.EventRecord, error) {
	if loc == nil {
		loc = time.Local
	}
	src := feed.Source
	if IsRemote(src) {
		src = redactURL(src)
	}
	if len(bytes.TrimSpace(feed.Body)) == 0 {
		return nil, &apperrors.FeedParseError{Source: src, Err: apperrors.ErrEmptyFeed}
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(feed.Body))
	if err != nil {
		return nil, &apperrors.FeedParseError{Source: src, Err: err}
	}

	events := make([]*model.EventRecord, 0, len(cal.Events()))
	for i, comp := range cal.Events() {
		rec, perr := parseVEvent(comp, loc)
		if perr != nil {
			return nil, &apperrors.FeedParseError{
				Source: src,
				Err:    fmt.Errorf("vevent #%d (uid=%q): %w", i+1, rec.UID, perr),
			}
		}
		events = append(events, rec)
	}

	appLog.Info("feed parse completed", "source", src, "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (*model.EventRecord, error) {
	out := &model.EventRecord{}

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = unescapeText(p.Value)
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	start, allDay, err := parsePropTime(dtStart.Value, dtStart.ICalParameters, loc)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.Start = start
	out.AllDay = allDay

	// End: DTEND, else DURATION, else a zero-length (or one-day) event.
	switch {
	case ve.GetProperty(ical.ComponentPropertyDtEnd) != nil:
		p := ve.GetProperty(ical.ComponentPropertyDtEnd)
		end, _, err := parsePropTime(p.Value, p.ICalParameters, loc)
		if err != nil {
			return out, fmt.Errorf("DTEND: %w", err)
		}
		out.End = end
	case ve.GetProperty(propDuration) != nil:
		d, err := parseDuration(ve.GetProperty(propDuration).Value)
		if err != nil {
			return out, fmt.Errorf("DURATION: %w", err)
		}
		out.End = start.Add(d)
	case allDay:
		out.End = start.AddDate(0, 0, 1)
	default:
		out.End = start
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = strings.TrimSpace(p.Value)
	}

	if out.RDates, err = parseTimeList(ve.GetProperties(propRDate), loc); err != nil {
		return out, fmt.Errorf("RDATE: %w", err)
	}
	if out.ExDates, err = parseTimeList(ve.GetProperties(ical.ComponentPropertyExdate), loc); err != nil {
		return out, fmt.Errorf("EXDATE: %w", err)
	}

	if p := ve.GetProperty(propRecurrenceID); p != nil {
		rid, _, err := parsePropTime(p.Value, p.ICalParameters, loc)
		if err != nil {
			return out, fmt.Errorf("RECURRENCE-ID: %w", err)
		}
		out.RecurrenceID = &rid
	}

	return out, nil
}

// parseTimeList parses multi-valued date properties (EXDATE, RDATE), which
// may appear several times and carry comma-separated values.
func parseTimeList(props []*ical.IANAProperty, loc *time.Location) ([]time.Time, error) {
	var out []time.Time
	for _, p := range props {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, _, err := parsePropTime(part, p.ICalParameters, loc)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
	}
	return out, nil
}

// parsePropTime parses an ICS DATE or DATE-TIME value honouring its VALUE and
// TZID parameters. allDay is true for DATE values.
func parsePropTime(v string, params map[string][]string, loc *time.Location) (t time.Time, allDay bool, err error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false, errors.New("empty time value")
	}

	valueDate := false
	if vs := params[string(ical.ParameterValue)]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		valueDate = true
	}

	propLoc := loc
	if tzs := params[string(ical.ParameterTzid)]; len(tzs) > 0 && tzs[0] != "" {
		tzid := strings.Trim(tzs[0], `"`)
		if l, lerr := time.LoadLocation(tzid); lerr == nil {
			propLoc = l
		} else {
			appLog.Debug("unknown TZID; using display timezone", "tzid", tzid, "timezone", loc.String())
		}
	}

	switch {
	case valueDate || !strings.Contains(v, "T"):
		// Date-only (all-day), e.g., 20250101
		t, err = time.ParseInLocation("20060102", v, loc)
		return t, true, err
	case strings.HasSuffix(v, "Z"):
		// UTC form, e.g., 20250101T090000Z
		t, err = time.Parse("20060102T150405Z", v)
		return t, false, err
	default:
		// Local or TZID date-time, e.g., 20250101T090000
		t, err = time.ParseInLocation("20060102T150405", v, propLoc)
		return t, false, err
	}
}

// parseDuration parses the subset of RFC 5545 durations used by calendar
// servers: [+-]P[nW][nD][T[nH][nM][nS]].
func parseDuration(v string) (time.Duration, error) {
	s := strings.TrimSpace(strings.ToUpper(v))
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") || len(s) < 3 {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	s = s[1:]

	var d time.Duration
	inTime := false
	num := 0
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num = num*10 + int(r-'0')
			digits++
			continue
		case r == 'T':
			if inTime || digits > 0 {
				return 0, fmt.Errorf("invalid duration %q", v)
			}
			inTime = true
			continue
		}
		if digits == 0 {
			return 0, fmt.Errorf("invalid duration %q", v)
		}
		n := time.Duration(num)
		switch {
		case r == 'W' && !inTime:
			d += n * 7 * 24 * time.Hour
		case r == 'D' && !inTime:
			d += n * 24 * time.Hour
		case r == 'H' && inTime:
			d += n * time.Hour
		case r == 'M' && inTime:
			d += n * time.Minute
		case r == 'S' && inTime:
			d += n * time.Second
		default:
			return 0, fmt.Errorf("invalid duration %q", v)
		}
		num, digits = 0, 0
	}
	if digits > 0 {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	if neg {
		d = -d
	}
	return d, nil
}

// unescapeText reverses RFC 5545 TEXT escaping.
func unescapeText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n', 'N':
			b.WriteByte('\n')
		case ',', ';', '\\', ':':
			b.WriteByte(s[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
