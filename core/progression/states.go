package progression

import (
	"time"

	"github.com/pkg/errors"
)

// Status is the per-student module progression state.
type Status string

const (
	StatusLocked     Status = "locked"
	StatusUnlocked   Status = "unlocked"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Event drives a progression transition.
type Event string

const (
	EventRelease  Event = "release"  // both gates open
	EventActivity Event = "activity" // first student activity in the module
	EventPass     Event = "pass"
	EventFail     Event = "fail"
	EventRetake   Event = "retake"
	// EventForceComplete is the instructor-authoritative re-entry used by
	// the full-credit override; the only event accepted from completed.
	EventForceComplete Event = "force_complete"
)

var ErrInvalidTransition = errors.New("invalid progression transition")

// transitions is the full table; anything not listed is rejected.
var transitions = map[Status]map[Event]Status{
	StatusLocked: {
		EventRelease:       StatusUnlocked,
		EventForceComplete: StatusCompleted,
	},
	StatusUnlocked: {
		EventActivity:      StatusInProgress,
		EventForceComplete: StatusCompleted,
	},
	StatusInProgress: {
		EventPass:          StatusCompleted,
		EventFail:          StatusFailed,
		EventForceComplete: StatusCompleted,
	},
	StatusFailed: {
		EventRetake:        StatusInProgress,
		EventForceComplete: StatusCompleted,
	},
	StatusCompleted: {
		EventForceComplete: StatusCompleted, // idempotent
	},
}

// Transition computes the next status for ev, or ErrInvalidTransition.
func Transition(s Status, ev Event) (Status, error) {
	if next, ok := transitions[s][ev]; ok {
		return next, nil
	}
	return s, errors.Wrapf(ErrInvalidTransition, "%s on %s", ev, s)
}

// apply moves mp through the table and maintains the completion timestamp.
func (mp *ModuleProgress) apply(ev Event, now time.Time) error {
	next, err := Transition(mp.Status, ev)
	if err != nil {
		return err
	}
	mp.Status = next
	if next == StatusCompleted {
		if mp.CompletedAt == nil {
			t := now
			mp.CompletedAt = &t
		}
	} else {
		mp.CompletedAt = nil
	}
	return nil
}

// ForceComplete applies the privileged override re-entry; valid from any
// state, including failed and mid-suspension.
func ForceComplete(mp *ModuleProgress, now time.Time) error {
	return mp.apply(EventForceComplete, now)
}
