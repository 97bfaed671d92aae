package ics

import (
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	apperrors "frabcal/internal/errors"
	"frabcal/internal/model"
)

// Expander produces the concrete start instants of one recurring record.
//
// The recurrence set is built once from the record's RRULE (anchored at its
// DTSTART), RDATEs and EXDATEs; every call to Iterate starts a fresh walk
// from the rule's first instance.
type Expander struct {
	rec *model.EventRecord
	set *rrule.Set
}

// NewExpander prepares expansion of rec. It fails with
// *errors.MalformedRecurrenceError when rec is not recurring or its rule
// cannot be parsed.
func NewExpander(rec *model.EventRecord) (*Expander, error) {
	if rec == nil || !rec.IsRecurring() {
		e := &apperrors.MalformedRecurrenceError{Err: apperrors.ErrNotRecurring}
		if rec != nil {
			e.UID, e.Summary = rec.UID, rec.Summary
		}
		return nil, e
	}

	opt, err := rrule.StrToROption(strings.TrimPrefix(rec.RRule, "RRULE:"))
	if err != nil {
		return nil, malformed(rec, err)
	}
	// The rule's own DTSTART anchors the series; its location drives
	// wall-clock arithmetic across DST changes.
	opt.Dtstart = rec.Start

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, malformed(rec, err)
	}

	set := &rrule.Set{}
	set.RRule(r)
	for _, rd := range rec.RDates {
		set.RDate(rd.In(rec.Start.Location()))
	}
	for _, ex := range rec.ExDates {
		set.ExDate(ex.In(rec.Start.Location()))
	}

	return &Expander{rec: rec, set: set}, nil
}

// Record returns the record being expanded.
func (x *Expander) Record() *model.EventRecord {
	return x.rec
}

// Iterate returns a lazy iterator over the record's occurrence instants in
// ascending order. The iterator reports false once the next instant would
// be after rangeEnd, or when the rule is exhausted; it never yields the same
// instant twice.
func (x *Expander) Iterate(rangeEnd time.Time) func() (time.Time, bool) {
	next := x.set.Iterator()
	done := false
	var last time.Time

	return func() (time.Time, bool) {
		for !done {
			t, ok := next()
			if !ok || t.After(rangeEnd) {
				done = true
				break
			}
			if !last.IsZero() && !t.After(last) {
				continue
			}
			last = t
			return t, true
		}
		return time.Time{}, false
	}
}

// Expand collects every instant of rec up to and including rangeEnd.
func Expand(rec *model.EventRecord, rangeEnd time.Time) ([]time.Time, error) {
	x, err := NewExpander(rec)
	if err != nil {
		return nil, err
	}

	var out []time.Time
	next := x.Iterate(rangeEnd)
	for t, ok := next(); ok; t, ok = next() {
		out = append(out, t)
	}
	return out, nil
}

func malformed(rec *model.EventRecord, err error) error {
	return &apperrors.MalformedRecurrenceError{
		UID:     rec.UID,
		Summary: rec.Summary,
		Rule:    rec.RRule,
		Err:     err,
	}
}
