// Package errors defines the error taxonomy shared by the frabcal pipeline.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	ErrEmptyFeed    = errors.New("feed is empty")
	ErrNoEvents     = errors.New("feed contains no events")
	ErrNotRecurring = errors.New("event has no recurrence rule")
)

// FeedParseError reports an unreadable or malformed calendar feed.
type FeedParseError struct {
	Source string
	Err    error
}

func (e *FeedParseError) Error() string {
	return fmt.Sprintf("feed parse error: source=%s: %v", e.Source, e.Err)
}

func (e *FeedParseError) Unwrap() error {
	return e.Err
}

// MalformedRecurrenceError reports a recurrence rule that cannot be expanded.
type MalformedRecurrenceError struct {
	UID     string
	Summary string
	Rule    string
	Err     error
}

func (e *MalformedRecurrenceError) Error() string {
	return fmt.Sprintf("malformed recurrence: uid=%s summary=%q rule=%q: %v",
		e.UID, e.Summary, e.Rule, e.Err)
}

func (e *MalformedRecurrenceError) Unwrap() error {
	return e.Err
}

// IOError represents a read or write failure on a file path.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io error: op=%s path=%s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
