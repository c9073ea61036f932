package suspension

import (
	"time"

	"github.com/darasa/backend/core"
)

// SuspendedBySystem marks suspensions created by the failure watcher, as
// opposed to an instructor id.
const SuspendedBySystem = "system"

type AppealStatus string

const (
	AppealNone     AppealStatus = "none"
	AppealPending  AppealStatus = "pending"
	AppealApproved AppealStatus = "approved"
	AppealDenied   AppealStatus = "denied"
)

// Suspension is a course-level block on a student. Created when the failure
// threshold is crossed; resolved, never deleted.
type Suspension struct {
	ID           int          `json:"id"`
	StudentID    int          `json:"student_id"`
	CourseID     int          `json:"course_id"`
	EnrollmentID int          `json:"enrollment_id"`
	Reason       string       `json:"reason"`
	SuspendedBy  string       `json:"suspended_by"` // "system" or instructor id
	SuspendedAt  time.Time    `json:"suspended_at"` // UTC
	AppealText   string       `json:"appeal_text,omitempty"`
	AppealStatus AppealStatus `json:"appeal_status"`
	ResolvedBy   int          `json:"resolved_by,omitempty"`
	ResolvedAt   *time.Time   `json:"resolved_at,omitempty"` // UTC
	Active       bool         `json:"active"`
	CreatedAt    time.Time    `json:"created_at"` // UTC
	UpdatedAt    time.Time    `json:"updated_at"` // UTC
}

// CanSubmitAppeal: one appeal per suspension, only while it still blocks.
func (s *Suspension) CanSubmitAppeal() bool {
	return s.Active && s.AppealStatus == AppealNone
}

// View adds the derived appeal flag for callers.
type View struct {
	Suspension
	CanSubmitAppeal bool `json:"can_submit_appeal"`
}

func (s Suspension) View() View {
	return View{Suspension: s, CanSubmitAppeal: s.CanSubmitAppeal()}
}

// NewAppeal is a student's appeal submission.
type NewAppeal struct {
	Text string `json:"text" validate:"required"`
}

func (in *NewAppeal) Validate() error {
	in.Text = core.CleanString(in.Text)
	return core.Validate.Struct(in)
}

// ResolveAppeal is an instructor's decision on a pending appeal.
type ResolveAppeal struct {
	Approved   bool `json:"approved"`
	ResolverID int  `json:"resolver_id" validate:"required"`
}

func (in *ResolveAppeal) Validate() error { return core.Validate.Struct(in) }
