package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the progression engine. Delivery (email, push..)
// is an external concern; the engine only emits.
const (
	EventModuleCompleted   = "module.completed"
	EventModuleFailed      = "module.failed"
	EventStudentSuspended  = "student.suspended"
	EventAppealResolved    = "appeal.resolved"
	EventFullCreditGranted = "module.full_credit"
)

type Event struct {
	ID         string
	Type       string
	OccurredAt time.Time // UTC
	StudentID  int
	CourseID   int
	ModuleID   int
	Data       map[string]interface{}
}

func NewEvent(typ string, studentID int) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		StudentID:  studentID,
		Data:       make(map[string]interface{}),
	}
}

// EventSink is any service that can consume engine events.
type EventSink interface {
	Emit(events ...Event)
}

// NopSink drops all events.
type NopSink struct{}

var _ EventSink = (*NopSink)(nil)

func (NopSink) Emit(...Event) {}

// RecordingSink collects emitted events; for tests.
type RecordingSink struct {
	mu     sync.Mutex
	events []Event
}

var _ EventSink = (*RecordingSink)(nil)

func (s *RecordingSink) Emit(events ...Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

func (s *RecordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
