package model

import (
	"cmp"
	"fmt"
	"time"
)

// EventRecord is a single VEVENT as loaded from the feed. Records are created
// once by the loader and never mutated afterwards; occurrences reference them.
type EventRecord struct {
	UID string

	Summary     string
	Description string

	AllDay bool

	// Start / End are in the configured display timezone.
	Start time.Time
	End   time.Time

	// RRule is the raw RRULE value; empty for non-recurring records.
	RRule   string
	RDates  []time.Time
	ExDates []time.Time

	// RecurrenceID is the original start of the recurring instance this
	// record overrides (RECURRENCE-ID). Nil unless the record is an exception.
	RecurrenceID *time.Time
}

// IsRecurring reports whether the record carries a recurrence rule.
func (e *EventRecord) IsRecurring() bool {
	return e.RRule != ""
}

// IsRecurrenceException reports whether the record overrides one instance of
// a recurring series.
func (e *EventRecord) IsRecurrenceException() bool {
	return e.RecurrenceID != nil
}

// Duration is the record's own End - Start. Records without an end have a
// zero duration.
func (e *EventRecord) Duration() time.Duration {
	if e.End.IsZero() || e.End.Before(e.Start) {
		return 0
	}
	return e.End.Sub(e.Start)
}

// Occurrence represents a single concrete appearance of an event
// (after recurrence expansion and timezone normalization).
type Occurrence struct {
	// Start is the instant this appearance begins, in the display timezone.
	Start time.Time

	Source *EventRecord
}

// Date is a civil calendar day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	y, m, d := t.In(loc).Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses an ISO date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t, time.UTC), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays returns d shifted by n calendar days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.In(time.UTC).AddDate(0, 0, n), time.UTC)
}

func (d Date) Before(o Date) bool {
	return d.Compare(o) < 0
}

func (d Date) After(o Date) bool {
	return d.Compare(o) > 0
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or
// after o.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmp.Compare(d.Year, o.Year)
	case d.Month != o.Month:
		return cmp.Compare(int(d.Month), int(o.Month))
	default:
		return cmp.Compare(d.Day, o.Day)
	}
}

func (d Date) IsZero() bool {
	return d == Date{}
}
