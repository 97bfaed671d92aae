package schedule

import (
	"slices"
	"time"

	"frabcal/internal/ics"
	appLog "frabcal/internal/log"
	"frabcal/internal/model"
)

// Index holds the occurrences of a feed keyed by calendar day.
type Index struct {
	rng  Range
	days map[model.Date][]model.Occurrence

	// moved holds exceptions by series UID and original instant so that an
	// override moved to another day still suppresses its original slot.
	moved map[overrideKey]bool

	suppressed int
}

type overrideKey struct {
	uid string
	rid int64
}

// BuildIndex reconciles records into an Index bounded by r.
//
// Non-recurring records (including recurrence exceptions) are seeded first.
// Recurring records are then expanded up to r.EndInstant(); a generated
// instant is dropped when an exception of the same series already covers it
// (see coveredByException). Within a day occurrences are ordered by start,
// ties keeping feed order.
func BuildIndex(records []*model.EventRecord, r Range) (*Index, error) {
	idx := &Index{
		rng:   r,
		days:  make(map[model.Date][]model.Occurrence),
		moved: make(map[overrideKey]bool),
	}

	for _, rec := range records {
		if rec.IsRecurring() {
			continue
		}
		// An override still replaces its original slot when it was moved
		// out of the range.
		if rec.IsRecurrenceException() && rec.UID != "" {
			idx.moved[overrideKey{rec.UID, rec.RecurrenceID.Unix()}] = true
		}
		if !r.Contains(rec.Start) {
			appLog.Debug("index: record outside range", "summary", rec.Summary, "start", rec.Start.Format(time.RFC3339))
			continue
		}
		idx.insert(rec.Start, rec)
	}

	rangeEnd := r.EndInstant()
	for _, rec := range records {
		if !rec.IsRecurring() {
			continue
		}
		x, err := ics.NewExpander(rec)
		if err != nil {
			return nil, err
		}
		next := x.Iterate(rangeEnd)
		for t, ok := next(); ok; t, ok = next() {
			if !r.Contains(t) {
				continue
			}
			if idx.coveredByException(rec, t) {
				idx.suppressed++
				appLog.Debug("index: occurrence replaced by exception", "summary", rec.Summary, "start", t.Format(time.RFC3339))
				continue
			}
			idx.insert(t, rec)
		}
	}

	for d, occs := range idx.days {
		slices.SortStableFunc(occs, func(a, b model.Occurrence) int {
			return a.Start.Compare(b.Start)
		})
		idx.days[d] = occs
	}

	return idx, nil
}

func (idx *Index) insert(start time.Time, rec *model.EventRecord) {
	start = start.In(idx.rng.Loc)
	d := model.DateOf(start, idx.rng.Loc)
	idx.days[d] = append(idx.days[d], model.Occurrence{Start: start, Source: rec})
}

// coveredByException reports whether candidate, generated by series, is
// already represented by an exception record. The candidate's own day is
// searched for an exception whose RECURRENCE-ID or start is exactly the
// candidate instant; exceptions moved to a different day are found by
// series UID and RECURRENCE-ID. Comparisons are instant equality, never
// date-only.
func (idx *Index) coveredByException(series *model.EventRecord, candidate time.Time) bool {
	d := model.DateOf(candidate, idx.rng.Loc)
	for _, occ := range idx.days[d] {
		src := occ.Source
		if !src.IsRecurrenceException() {
			continue
		}
		if src.UID != "" && series.UID != "" && src.UID != series.UID {
			continue
		}
		if src.RecurrenceID.Equal(candidate) || occ.Start.Equal(candidate) {
			return true
		}
	}
	if series.UID != "" && idx.moved[overrideKey{series.UID, candidate.Unix()}] {
		return true
	}
	return false
}

// OccurrencesOn returns the occurrences on d ordered by start.
func (idx *Index) OccurrencesOn(d model.Date) []model.Occurrence {
	return slices.Clone(idx.days[d])
}

// Dates returns every day holding at least one occurrence, ascending.
func (idx *Index) Dates() []model.Date {
	out := make([]model.Date, 0, len(idx.days))
	for d := range idx.days {
		out = append(out, d)
	}
	slices.SortFunc(out, model.Date.Compare)
	return out
}

// DateRange returns the first and last day holding occurrences. ok is false
// for an empty index.
func (idx *Index) DateRange() (first, last model.Date, ok bool) {
	dates := idx.Dates()
	if len(dates) == 0 {
		return model.Date{}, model.Date{}, false
	}
	return dates[0], dates[len(dates)-1], true
}

// Len is the total number of occurrences.
func (idx *Index) Len() int {
	n := 0
	for _, occs := range idx.days {
		n += len(occs)
	}
	return n
}

// Suppressed is the number of generated instants dropped in favour of an
// exception record.
func (idx *Index) Suppressed() int {
	return idx.suppressed
}

// Range returns the range the index was built for.
func (idx *Index) Range() Range {
	return idx.rng
}
