package schedule

import (
	"fmt"
	"time"

	"frabcal/internal/config"
	apperrors "frabcal/internal/errors"
	"frabcal/internal/model"
)

// Range is the inclusive span of calendar days a schedule covers, observed in
// a fixed timezone.
type Range struct {
	Start model.Date
	End   model.Date
	Loc   *time.Location
}

// RangeOptions selects how the end of the range is derived.
type RangeOptions struct {
	// EndPolicy is config.EndOfYear or config.LastDate.
	EndPolicy string
	// Until, if non-zero, replaces the computed end date.
	Until model.Date
}

// ComputeRange derives the usable range from the feed: it starts at the
// earliest record start date (the first instance of a recurring record
// counts) and ends at the latest one, rounded per opts.EndPolicy.
func ComputeRange(records []*model.EventRecord, loc *time.Location, opts RangeOptions) (Range, error) {
	if len(records) == 0 {
		return Range{}, apperrors.ErrNoEvents
	}

	var first, last model.Date
	for i, rec := range records {
		d := model.DateOf(rec.Start, loc)
		if i == 0 || d.Before(first) {
			first = d
		}
		if i == 0 || d.After(last) {
			last = d
		}
	}

	if opts.EndPolicy != config.LastDate {
		last = model.Date{Year: last.Year, Month: time.December, Day: 31}
	}
	if !opts.Until.IsZero() {
		last = opts.Until
	}
	if last.Before(first) {
		return Range{}, fmt.Errorf("range end %s is before first event on %s", last, first)
	}

	return Range{Start: first, End: last, Loc: loc}, nil
}

// StartInstant is midnight of the first day.
func (r Range) StartInstant() time.Time {
	return r.Start.In(r.Loc)
}

// EndInstant is the last nanosecond of the last day; occurrences starting at
// or before it are in range.
func (r Range) EndInstant() time.Time {
	return r.End.AddDays(1).In(r.Loc).Add(-time.Nanosecond)
}

// Contains reports whether t falls within [StartInstant, EndInstant].
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.StartInstant()) && !t.After(r.EndInstant())
}

// Days is ceil(EndInstant - StartInstant) in days, i.e. the number of
// calendar days in the range. Counting calendar days keeps DST transitions
// from adding or dropping a day.
func (r Range) Days() int {
	span := r.End.In(time.UTC).Sub(r.Start.In(time.UTC))
	return int(span/(24*time.Hour)) + 1
}
