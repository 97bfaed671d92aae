package errors

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrEmptyFeed", ErrEmptyFeed},
		{"ErrNoEvents", ErrNoEvents},
		{"ErrNotRecurring", ErrNotRecurring},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Fatalf("%s should not be nil", tt.name)
			}
			if tt.err.Error() == "" {
				t.Errorf("%s should have an error message", tt.name)
			}
		})
	}
}

func TestFeedParseError(t *testing.T) {
	base := errors.New("unexpected END")
	err := &FeedParseError{Source: "basic.ics", Err: base}

	if !strings.Contains(err.Error(), "basic.ics") {
		t.Errorf("error should name the source, got %q", err.Error())
	}
	if !errors.Is(err, base) {
		t.Error("FeedParseError should wrap base error")
	}
}

func TestMalformedRecurrenceError(t *testing.T) {
	base := errors.New("invalid FREQ")
	err := &MalformedRecurrenceError{UID: "abc@example", Summary: "Workshop", Rule: "FREQ=SOMETIMES", Err: base}

	msg := err.Error()
	for _, want := range []string{"abc@example", "Workshop", "FREQ=SOMETIMES"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q should contain %q", msg, want)
		}
	}
	if !errors.Is(err, base) {
		t.Error("MalformedRecurrenceError should wrap base error")
	}

	var target *MalformedRecurrenceError
	if !errors.As(error(err), &target) {
		t.Error("errors.As should match MalformedRecurrenceError")
	}
}

func TestIOError(t *testing.T) {
	err := &IOError{Op: "write", Path: "/tmp/schedule.xml", Err: fs.ErrPermission}

	if !errors.Is(err, fs.ErrPermission) {
		t.Error("IOError should wrap fs.ErrPermission")
	}
	if !strings.Contains(err.Error(), "op=write") {
		t.Errorf("unexpected message %q", err.Error())
	}
}
