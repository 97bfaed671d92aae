package schedule

import (
	"testing"
	"time"

	"frabcal/internal/markup"
	"frabcal/internal/model"
)

func defaultOptions() BuildOptions {
	return BuildOptions{
		Acronym:       "VSH",
		Title:         "Verschwörhaus",
		Venue:         "Verschwörhaus",
		DefaultRoom:   "Salon",
		HiddenSummary: "Busy",
		DayStartHour:  7,
		DayEndHour:    3,
	}
}

func TestBuildStandup(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	rec := single("standup@example.org", "Standup", time.Date(2024, 3, 5, 10, 0, 0, 0, berlin), time.Hour)
	rec.Description = "Daily check-in"

	r, err := ComputeRange([]*model.EventRecord{rec}, berlin, RangeOptions{})
	if err != nil {
		t.Fatalf("ComputeRange: %v", err)
	}
	doc, stats := Build(mustIndex(t, []*model.EventRecord{rec}, r), defaultOptions())

	if len(doc.Days) != 1 {
		t.Fatalf("got %d days, want 1", len(doc.Days))
	}
	d := doc.Days[0]
	if d.Date != "2024-03-05" {
		t.Errorf("day date = %q", d.Date)
	}
	if d.Start != "2024-03-05T07:00:00+01:00" || d.End != "2024-03-06T03:00:00+01:00" {
		t.Errorf("day window = %s .. %s", d.Start, d.End)
	}
	if len(d.Rooms) != 1 || len(d.Rooms[0].Events) != 1 {
		t.Fatalf("expected one room with one event, got %+v", d.Rooms)
	}
	if d.Rooms[0].Name != "Verschwörhaus" {
		t.Errorf("room name = %q", d.Rooms[0].Name)
	}

	ev := d.Rooms[0].Events[0]
	want := Event{
		ID:       "030501",
		Date:     "2024-03-05T10:00:00+01:00",
		Start:    "10:00",
		Duration: "01:00",
		Room:     "Salon",
		Title:    "Standup",
		Subtitle: "Daily check-in",
	}
	if ev.ID != want.ID || ev.Date != want.Date || ev.Start != want.Start || ev.Duration != want.Duration ||
		ev.Room != want.Room || ev.Title != want.Title || ev.Subtitle != want.Subtitle {
		t.Errorf("event = %+v, want %+v", ev, want)
	}
	if len(ev.Persons.Person) != 0 {
		t.Errorf("persons = %v, want none", ev.Persons.Person)
	}

	if doc.Conference.Start != "2024-03-05" || doc.Conference.End != "2024-12-31" {
		t.Errorf("conference span = %s..%s", doc.Conference.Start, doc.Conference.End)
	}
	if stats.Days != 1 || stats.Events != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Warnings[markup.WarnSubtitleMissing] != 1 || stats.Warnings[markup.WarnPeopleMissing] != 1 {
		t.Errorf("warnings = %v", stats.Warnings)
	}
}

func TestBuildWorkshopWithMovedException(t *testing.T) {
	loc := time.UTC
	series := weeklyWorkshop(loc)
	ex := exception(series.UID, at(loc, time.January, 15, 18, 0), at(loc, time.January, 15, 19, 0), 2*time.Hour)

	r, err := ComputeRange([]*model.EventRecord{series, ex}, loc, RangeOptions{Until: day(31)})
	if err != nil {
		t.Fatalf("ComputeRange: %v", err)
	}
	doc, stats := Build(mustIndex(t, []*model.EventRecord{series, ex}, r), defaultOptions())

	wantDates := []string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-22", "2024-01-29"}
	if len(doc.Days) != len(wantDates) {
		t.Fatalf("got %d days, want %d", len(doc.Days), len(wantDates))
	}
	for i, d := range doc.Days {
		if d.Date != wantDates[i] {
			t.Errorf("day %d = %s, want %s", i, d.Date, wantDates[i])
		}
		events := d.Rooms[0].Events
		if len(events) != 1 {
			t.Fatalf("%s holds %d events, want 1", d.Date, len(events))
		}
		wantStart := "18:00"
		if d.Date == "2024-01-15" {
			wantStart = "19:00"
		}
		if events[0].Start != wantStart || events[0].Duration != "02:00" {
			t.Errorf("%s: start %s duration %s", d.Date, events[0].Start, events[0].Duration)
		}
		if events[0].ID[4:] != "01" {
			t.Errorf("%s: id %s should carry sequence 01", d.Date, events[0].ID)
		}
	}
	if doc.Conference.Days != 31 {
		t.Errorf("conference days = %d, want 31", doc.Conference.Days)
	}
	if stats.Events != 5 {
		t.Errorf("events = %d, want 5", stats.Events)
	}
}

func TestBuildHiddenOccurrences(t *testing.T) {
	loc := time.UTC
	records := []*model.EventRecord{
		single("a", "Busy", at(loc, time.January, 3, 9, 0), time.Hour),
		single("b", "Talk", at(loc, time.January, 3, 10, 0), time.Hour),
		single("c", "Busy", at(loc, time.January, 3, 11, 0), time.Hour),
		single("d", "Panel", at(loc, time.January, 3, 12, 0), time.Hour),
		single("e", "Busy", at(loc, time.January, 4, 9, 0), time.Hour),
	}
	doc, stats := Build(mustIndex(t, records, januaryRange(loc)), defaultOptions())

	if len(doc.Days) != 1 || doc.Days[0].Date != "2024-01-03" {
		t.Fatalf("expected only 2024-01-03 to be emitted, got %+v", doc.Days)
	}
	events := doc.Days[0].Rooms[0].Events
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].ID != "010301" || events[0].Title != "Talk" {
		t.Errorf("first event = %s %s", events[0].ID, events[0].Title)
	}
	if events[1].ID != "010302" || events[1].Title != "Panel" {
		t.Errorf("second event = %s %s", events[1].ID, events[1].Title)
	}
	if stats.Hidden != 2 {
		t.Errorf("hidden = %d, want 2 (all-hidden days are skipped whole)", stats.Hidden)
	}
}

func TestBuildEmptyHiddenMarkerHidesNothing(t *testing.T) {
	loc := time.UTC
	records := []*model.EventRecord{single("a", "", at(loc, time.January, 3, 9, 0), time.Hour)}
	opts := defaultOptions()
	opts.HiddenSummary = ""

	doc, _ := Build(mustIndex(t, records, januaryRange(loc)), opts)
	if len(doc.Days) != 1 {
		t.Fatalf("got %d days, want 1", len(doc.Days))
	}
}

func TestBuildMinDate(t *testing.T) {
	loc := time.UTC
	records := []*model.EventRecord{weeklyWorkshop(loc)}
	opts := defaultOptions()
	opts.MinDate = day(10)

	doc, _ := Build(mustIndex(t, records, januaryRange(loc)), opts)

	if len(doc.Days) != 3 {
		t.Fatalf("got %d days, want 3", len(doc.Days))
	}
	if doc.Days[0].Date != "2024-01-15" {
		t.Errorf("first day = %s, want 2024-01-15", doc.Days[0].Date)
	}
	// The conference span still reflects the whole range.
	if doc.Conference.Start != "2024-01-01" {
		t.Errorf("conference start = %s", doc.Conference.Start)
	}
}

func TestBuildMetadata(t *testing.T) {
	loc := time.UTC
	rec := single("m", "Meetup", at(loc, time.January, 5, 19, 30), 90*time.Minute)
	rec.Description = "Monthly meetup<br>" +
		markup.MarkerRoom + " Werkstatt<br>" +
		markup.MarkerGroup + " OK Lab<br>" +
		markup.MarkerPerson + " Alex<br>" +
		markup.MarkerSubtitle + " Open data evening"

	doc, stats := Build(mustIndex(t, []*model.EventRecord{rec}, januaryRange(loc)), defaultOptions())

	ev := doc.Days[0].Rooms[0].Events[0]
	if ev.Room != "Werkstatt" || ev.Subtitle != "Open data evening" || ev.Duration != "01:30" {
		t.Errorf("event = %+v", ev)
	}
	if len(ev.Persons.Person) != 2 || ev.Persons.Person[0] != "OK Lab" || ev.Persons.Person[1] != "Alex" {
		t.Errorf("persons = %v", ev.Persons.Person)
	}
	if len(stats.Warnings) != 0 {
		t.Errorf("unexpected warnings %v", stats.Warnings)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00"},
		{45 * time.Minute, "00:45"},
		{time.Hour, "01:00"},
		{2*time.Hour + 30*time.Minute, "02:30"},
		{26 * time.Hour, "26:00"},
		{-time.Hour, "00:00"},
		{59*time.Minute + 40*time.Second, "01:00"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
