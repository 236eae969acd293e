/*
events.go - Domain events emitted by state changes

PURPOSE:
  Resets and notifications emit events for audit. Events flow through an
  explicit caller-owned sink rather than a hidden pub/sub, so the audit
  trail is testable and invocations stay reentrant.
*/
package recompletion

import (
	"context"

	"github.com/google/uuid"
)

// EventType identifies what happened.
type EventType string

const (
	EventCompletionReset EventType = "completion_reset"
	EventReminderSent    EventType = "reminder_sent"
	EventCompletionSet   EventType = "completion_set" // equivalent auto-complete
)

// Event records one audit-relevant state change.
type Event struct {
	ID       string
	Type     EventType
	UserID   int64
	CourseID int64
	Time     int64
	Detail   string
}

// NewEvent builds an event with a fresh id.
func NewEvent(t EventType, userID, courseID, at int64) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     t,
		UserID:   userID,
		CourseID: courseID,
		Time:     at,
	}
}

// EventSink receives emitted events.
type EventSink interface {
	Record(ctx context.Context, e Event) error
}

// EventLog is a slice-backed EventSink for callers that collect events
// in memory (tests, single-pass audits).
type EventLog struct {
	Events []Event
}

func (l *EventLog) Record(_ context.Context, e Event) error {
	l.Events = append(l.Events, e)
	return nil
}

// DiscardEvents drops everything. Useful when a caller has no audit
// requirement for a pass.
type DiscardEvents struct{}

func (DiscardEvents) Record(context.Context, Event) error { return nil }
