package schedule

import (
	"errors"
	"reflect"
	"testing"
	"time"

	apperrors "frabcal/internal/errors"
	"frabcal/internal/model"
)

func at(loc *time.Location, month time.Month, d, hour, minute int) time.Time {
	return time.Date(2024, month, d, hour, minute, 0, 0, loc)
}

func single(uid, summary string, start time.Time, d time.Duration) *model.EventRecord {
	return &model.EventRecord{UID: uid, Summary: summary, Start: start, End: start.Add(d)}
}

func weeklyWorkshop(loc *time.Location) *model.EventRecord {
	rec := single("workshop@example.org", "Workshop", at(loc, time.January, 1, 18, 0), 2*time.Hour)
	rec.RRule = "FREQ=WEEKLY;BYDAY=MO"
	return rec
}

func exception(uid string, rid, start time.Time, d time.Duration) *model.EventRecord {
	rec := single(uid, "Workshop", start, d)
	rec.RecurrenceID = &rid
	return rec
}

func januaryRange(loc *time.Location) Range {
	return Range{
		Start: model.Date{Year: 2024, Month: time.January, Day: 1},
		End:   model.Date{Year: 2024, Month: time.January, Day: 31},
		Loc:   loc,
	}
}

func mustIndex(t *testing.T, records []*model.EventRecord, r Range) *Index {
	t.Helper()
	idx, err := BuildIndex(records, r)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	return idx
}

func day(d int) model.Date {
	return model.Date{Year: 2024, Month: time.January, Day: d}
}

func TestBuildIndexBoundsAndOrder(t *testing.T) {
	loc := time.UTC
	records := []*model.EventRecord{
		weeklyWorkshop(loc),
		single("late", "Late talk", at(loc, time.January, 8, 20, 0), time.Hour),
		single("early", "Early talk", at(loc, time.January, 8, 9, 0), time.Hour),
		single("out", "Next month", at(loc, time.February, 2, 9, 0), time.Hour),
	}
	r := januaryRange(loc)
	idx := mustIndex(t, records, r)

	for _, d := range idx.Dates() {
		occs := idx.OccurrencesOn(d)
		for i, occ := range occs {
			if !r.Contains(occ.Start) {
				t.Errorf("occurrence %s outside range", occ.Start)
			}
			if model.DateOf(occ.Start, loc) != d {
				t.Errorf("occurrence %s filed under %s", occ.Start, d)
			}
			if i > 0 && occ.Start.Before(occs[i-1].Start) {
				t.Errorf("day %s not sorted", d)
			}
		}
	}

	got := idx.OccurrencesOn(day(8))
	want := []string{"Early talk", "Workshop", "Late talk"}
	if len(got) != len(want) {
		t.Fatalf("2024-01-08 holds %d occurrences, want %d", len(got), len(want))
	}
	for i, occ := range got {
		if occ.Source.Summary != want[i] {
			t.Errorf("occurrence %d = %q, want %q", i, occ.Source.Summary, want[i])
		}
	}

	if idx.Len() != 7 {
		t.Errorf("Len = %d, want 7 (5 workshops + 2 talks)", idx.Len())
	}
	first, last, ok := idx.DateRange()
	if !ok || first != day(1) || last != day(29) {
		t.Errorf("DateRange = %s..%s (%v)", first, last, ok)
	}
}

func TestBuildIndexIsIdempotent(t *testing.T) {
	loc := time.UTC
	records := []*model.EventRecord{
		weeklyWorkshop(loc),
		exception("workshop@example.org", at(loc, time.January, 15, 18, 0), at(loc, time.January, 15, 19, 0), 2*time.Hour),
		single("standup", "Standup", at(loc, time.January, 15, 19, 0), time.Hour),
	}
	r := januaryRange(loc)

	a := mustIndex(t, records, r)
	b := mustIndex(t, records, r)

	if !reflect.DeepEqual(a.Dates(), b.Dates()) {
		t.Fatalf("dates differ: %v vs %v", a.Dates(), b.Dates())
	}
	for _, d := range a.Dates() {
		if !reflect.DeepEqual(a.OccurrencesOn(d), b.OccurrencesOn(d)) {
			t.Errorf("occurrences on %s differ between builds", d)
		}
	}
}

func TestExceptionSuppressesMatchingInstant(t *testing.T) {
	loc := time.UTC
	series := weeklyWorkshop(loc)
	generated := at(loc, time.January, 15, 18, 0)
	ex := exception(series.UID, generated, generated, 2*time.Hour)
	ex.Description = "Changed agenda"

	idx := mustIndex(t, []*model.EventRecord{series, ex}, januaryRange(loc))

	occs := idx.OccurrencesOn(day(15))
	if len(occs) != 1 {
		t.Fatalf("2024-01-15 holds %d occurrences, want 1", len(occs))
	}
	if occs[0].Source != ex {
		t.Error("surviving occurrence should reference the exception record")
	}
	if idx.Suppressed() != 1 {
		t.Errorf("Suppressed = %d, want 1", idx.Suppressed())
	}
}

func TestExceptionWithOwnStartEqualToInstant(t *testing.T) {
	loc := time.UTC
	series := weeklyWorkshop(loc)
	series.UID = ""
	generated := at(loc, time.January, 22, 18, 0)
	// No series linkage by UID; the exception's own start is the instant.
	ex := exception("", generated.Add(-time.Hour), generated, time.Hour)

	idx := mustIndex(t, []*model.EventRecord{series, ex}, januaryRange(loc))

	occs := idx.OccurrencesOn(day(22))
	if len(occs) != 1 || occs[0].Source != ex {
		t.Fatalf("expected only the exception on 2024-01-22, got %d occurrences", len(occs))
	}
}

func TestNonMatchingExceptionDoesNotSuppress(t *testing.T) {
	loc := time.UTC
	series := weeklyWorkshop(loc)
	// Overrides an instant the rule never generates.
	other := at(loc, time.January, 15, 20, 0)
	ex := exception(series.UID, other, other, time.Hour)

	idx := mustIndex(t, []*model.EventRecord{series, ex}, januaryRange(loc))

	occs := idx.OccurrencesOn(day(15))
	if len(occs) != 2 {
		t.Fatalf("2024-01-15 holds %d occurrences, want 2", len(occs))
	}
	if occs[0].Source != series || occs[1].Source != ex {
		t.Errorf("expected recurring 18:00 then exception 20:00, got %s / %s", occs[0].Start, occs[1].Start)
	}
	if idx.Suppressed() != 0 {
		t.Errorf("Suppressed = %d, want 0", idx.Suppressed())
	}
}

func TestExceptionOfOtherSeriesDoesNotSuppress(t *testing.T) {
	loc := time.UTC
	series := weeklyWorkshop(loc)
	generated := at(loc, time.January, 8, 18, 0)
	ex := exception("other-series@example.org", generated, generated, time.Hour)

	idx := mustIndex(t, []*model.EventRecord{series, ex}, januaryRange(loc))

	if n := len(idx.OccurrencesOn(day(8))); n != 2 {
		t.Fatalf("2024-01-08 holds %d occurrences, want 2", n)
	}
}

func TestMovedExceptionReplacesOriginalTime(t *testing.T) {
	loc := time.UTC
	series := weeklyWorkshop(loc)
	ex := exception(series.UID, at(loc, time.January, 15, 18, 0), at(loc, time.January, 15, 19, 0), 2*time.Hour)

	idx := mustIndex(t, []*model.EventRecord{series, ex}, januaryRange(loc))

	for _, d := range []int{1, 8, 15, 22, 29} {
		occs := idx.OccurrencesOn(day(d))
		if len(occs) != 1 {
			t.Fatalf("2024-01-%02d holds %d occurrences, want 1", d, len(occs))
		}
		wantHour := 18
		if d == 15 {
			wantHour = 19
		}
		if occs[0].Start.Hour() != wantHour {
			t.Errorf("2024-01-%02d starts at %s", d, occs[0].Start.Format("15:04"))
		}
	}
}

func TestExceptionMovedToAnotherDay(t *testing.T) {
	loc := time.UTC
	series := weeklyWorkshop(loc)
	ex := exception(series.UID, at(loc, time.January, 15, 18, 0), at(loc, time.January, 16, 18, 0), 2*time.Hour)

	idx := mustIndex(t, []*model.EventRecord{series, ex}, januaryRange(loc))

	if n := len(idx.OccurrencesOn(day(15))); n != 0 {
		t.Errorf("original slot should be empty, holds %d", n)
	}
	if occs := idx.OccurrencesOn(day(16)); len(occs) != 1 || occs[0].Source != ex {
		t.Errorf("moved exception missing on 2024-01-16")
	}
}

func TestBuildIndexMalformedRule(t *testing.T) {
	loc := time.UTC
	series := weeklyWorkshop(loc)
	series.RRule = "FREQ=FORTNIGHTLY"

	_, err := BuildIndex([]*model.EventRecord{series}, januaryRange(loc))
	var mre *apperrors.MalformedRecurrenceError
	if !errors.As(err, &mre) {
		t.Fatalf("expected MalformedRecurrenceError, got %v", err)
	}
}

func TestBuildIndexUsesDisplayZoneForDates(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 23:30 UTC on 9 January is 00:30 on 10 January in Berlin.
	rec := single("late", "Late", time.Date(2024, 1, 9, 23, 30, 0, 0, time.UTC), time.Hour)

	idx := mustIndex(t, []*model.EventRecord{rec}, januaryRange(berlin))

	occs := idx.OccurrencesOn(day(10))
	if len(occs) != 1 {
		t.Fatalf("expected occurrence on 2024-01-10, dates = %v", idx.Dates())
	}
	if occs[0].Start.Location() != berlin {
		t.Errorf("occurrence start should be in display zone, got %s", occs[0].Start.Location())
	}
}
