package progression

import (
	"context"
	"time"

	"github.com/darasa/backend/core"
	"github.com/darasa/backend/core/score"
)

// Assessment types
const (
	AssessmentQuiz       = "quiz"
	AssessmentAssignment = "assignment"
	AssessmentFinal      = "final"
)

// LessonCompletion tracks one student's activity on one lesson. Created on
// first lesson view, mutated on every progress ping, never deleted.
type LessonCompletion struct {
	ID              int       `json:"id"`
	StudentID       int       `json:"student_id"`
	LessonID        int       `json:"lesson_id"`
	ModuleID        int       `json:"module_id"`
	ReadingProgress float64   `json:"reading_progress"` // 0-100
	EngagementScore float64   `json:"engagement_score"` // 0-100
	QuizScore       float64   `json:"quiz_score"`
	AssignmentScore float64   `json:"assignment_score"`
	Completed       bool      `json:"completed"` // implies ReadingProgress == 100
	LastAccessed    time.Time `json:"last_accessed"` // UTC
	CreatedAt       time.Time `json:"created_at"`    // UTC
	UpdatedAt       time.Time `json:"updated_at"`    // UTC
}

func (lc *LessonCompletion) Components() score.LessonComponents {
	return score.LessonComponents{
		ReadingProgress: lc.ReadingProgress,
		EngagementScore: lc.EngagementScore,
		QuizScore:       lc.QuizScore,
		AssignmentScore: lc.AssignmentScore,
	}
}

func (lc *LessonCompletion) Score() float64 {
	return score.Lesson(lc.Components())
}

// AssessmentAttempt is one graded (or pending) submission against an
// assessment. Rows are history: retakes bump RetakeRound, never delete.
type AssessmentAttempt struct {
	ID            int        `json:"id"`
	StudentID     int        `json:"student_id"`
	AssessmentID  int        `json:"assessment_id"`
	ModuleID      int        `json:"module_id"`
	Type          string     `json:"assessment_type"` // quiz | assignment | final
	Score         float64    `json:"score"`           // 0-100
	AttemptNumber int        `json:"attempt_number"`  // 1-based per (student, assessment, retake round)
	RetakeRound   int        `json:"retake_round"`    // 0-based
	SubmittedAt   time.Time  `json:"submitted_at"`         // UTC
	GradedAt      *time.Time `json:"graded_at,omitempty"`  // nil while pending manual grading
}

func (a *AssessmentAttempt) Graded() bool { return a.GradedAt != nil }

// ModuleProgress is the per-student, per-module progress record, owned by
// the enrollment. Created lazily when the module becomes reachable; never
// deleted, only transitioned. Cached aggregate scores are recomputed from
// raw completion/attempt rows on every transition.
type ModuleProgress struct {
	ID           int    `json:"id"`
	EnrollmentID int    `json:"enrollment_id"`
	StudentID    int    `json:"student_id"`
	CourseID     int    `json:"course_id"`
	ModuleID     int    `json:"module_id"`
	Status       Status `json:"status"`

	LessonScore     float64 `json:"lesson_score"` // lesson-only mean; display/analytics
	QuizScore       float64 `json:"quiz_score"`
	AssignmentScore float64 `json:"assignment_score"`
	FinalScore      float64 `json:"final_assessment_score"`
	WeightedScore   float64 `json:"cumulative_score"` // the passing score

	RetakeRound int  `json:"retake_round"`
	RetakesUsed int  `json:"retakes_used"`
	IsReleased  bool `json:"is_released"`

	CompletedAt *time.Time `json:"completed_at,omitempty"` // UTC
	Version     int        `json:"-"`
	CreatedAt   time.Time  `json:"created_at"` // UTC
	UpdatedAt   time.Time  `json:"updated_at"` // UTC
}

func (mp *ModuleProgress) Started() bool {
	switch mp.Status {
	case StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Enrollment links a student to a course; read from the enrollment
// collaborator, never mutated here.
type Enrollment struct {
	ID        int  `json:"id"`
	StudentID int  `json:"student_id"`
	CourseID  int  `json:"course_id"`
	Active    bool `json:"active"`
}

// Read-only metadata from the content-authoring collaborator.
type (
	Course struct {
		ID                  int       `json:"id"`
		Title               string    `json:"title"`
		StartDate           time.Time `json:"start_date"` // UTC
		ReleaseIntervalDays int       `json:"release_interval_days"` // 0: no interval policy
		RetakeLimit         int       `json:"retake_limit"`          // 0: engine default
		SuspensionThreshold int       `json:"suspension_threshold"`  // 0: engine default
	}

	Module struct {
		ID          int        `json:"id"`
		CourseID    int        `json:"course_id"`
		Title       string     `json:"title"`
		Ordinal     int        `json:"ordinal"` // 1-based position in the course
		ReleaseAt   *time.Time `json:"release_at,omitempty"` // explicit override of the interval policy
		LessonIDs   []int      `json:"lesson_ids"`
		Assessments []Assessment `json:"assessments"`
	}

	Assessment struct {
		ID          int    `json:"id"`
		ModuleID    int    `json:"module_id"`
		Type        string `json:"type"` // quiz | assignment | final
		Required    bool   `json:"required"`
		MaxAttempts int    `json:"max_attempts"` // 0: engine default
	}
)

func (m *Module) Assessment(id int) (Assessment, bool) {
	for _, a := range m.Assessments {
		if a.ID == id {
			return a, true
		}
	}
	return Assessment{}, false
}

// Collaborator seams. The engine consumes these, it never owns them.
type (
	// ContentDirectory serves course/module/assessment metadata from the
	// content-authoring subsystem.
	ContentDirectory interface {
		Course(ctx context.Context, id int) (Course, error)
		CourseModules(ctx context.Context, courseID int) ([]Module, error) // ordered by ordinal
		Module(ctx context.Context, id int) (Module, error)
		Assessment(ctx context.Context, id int) (Assessment, error)
		LessonModule(ctx context.Context, lessonID int) (Module, error)
	}

	// EnrollmentDirectory serves enrollment records from the enrollment
	// subsystem.
	EnrollmentDirectory interface {
		Enrollment(ctx context.Context, studentID, courseID int) (Enrollment, error)
		ActiveEnrollments(ctx context.Context) ([]Enrollment, error)
	}

	// SuspensionChecker short-circuits mutating engine calls for suspended
	// enrollments.
	SuspensionChecker interface {
		IsSuspended(ctx context.Context, studentID, courseID int) (bool, error)
	}

	// FailureObserver is notified after a module transitions to failed with
	// no retakes remaining.
	FailureObserver interface {
		ModuleFailed(ctx context.Context, studentID, courseID int) error
	}
)

// Inputs

// NewLessonProgress is a lesson progress ping. The optional quiz and
// assignment components cover lessons with embedded mini-assessments.
type NewLessonProgress struct {
	ReadingProgress float64  `json:"reading_progress" validate:"score"`
	EngagementScore float64  `json:"engagement_score" validate:"score"`
	QuizScore       *float64 `json:"quiz_score" validate:"omitempty,score"`
	AssignmentScore *float64 `json:"assignment_score" validate:"omitempty,score"`
}

func (in *NewLessonProgress) Validate() error { return core.Validate.Struct(in) }

// NewAttempt is an assessment submission. A nil Score means the submission
// awaits manual grading.
type NewAttempt struct {
	Score *float64 `json:"score" validate:"omitempty,score"`
}

func (in *NewAttempt) Validate() error { return core.Validate.Struct(in) }

// AttemptGrade is an instructor grading a pending attempt.
type AttemptGrade struct {
	Score    float64 `json:"score" validate:"score"`
	GraderID int     `json:"grader_id" validate:"required"`
}

func (in *AttemptGrade) Validate() error { return core.Validate.Struct(in) }

// Views

// LessonScoreView is returned on every progress ping.
type LessonScoreView struct {
	LessonID     int     `json:"lesson_id"`
	ModuleID     int     `json:"module_id"`
	LessonScore  float64 `json:"lesson_score"`
	Completed    bool    `json:"completed"`
	ModuleStatus Status  `json:"module_status"`
}

// AttemptResult is returned on every recorded attempt.
type AttemptResult struct {
	AttemptID         int     `json:"attempt_id"`
	AttemptNumber     int     `json:"attempt_number"`
	AttemptsRemaining int     `json:"attempts_remaining"`
	ModuleStatus      Status  `json:"module_status"`
	WeightedScore     float64 `json:"cumulative_score"`
}

// ModuleProgressView is the presentation view of a progress record; all
// scores rounded to two decimals here and only here.
type ModuleProgressView struct {
	ModuleID          int        `json:"module_id"`
	CourseID          int        `json:"course_id"`
	Status            Status     `json:"status"`
	LessonScore       float64    `json:"lesson_score"`
	QuizScore         float64    `json:"quiz_score"`
	AssignmentScore   float64    `json:"assignment_score"`
	FinalScore        float64    `json:"final_assessment_score"`
	WeightedScore     float64    `json:"cumulative_score"`
	RetakesUsed       int        `json:"retakes_used"`
	RetakesRemaining  int        `json:"retakes_remaining"`
	IsReleased        bool       `json:"is_released"`
	ReleaseAt         *time.Time `json:"release_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// CourseProgressView aggregates a student's standing across a course.
type CourseProgressView struct {
	CourseID    int                  `json:"course_id"`
	StudentID   int                  `json:"student_id"`
	CourseScore float64              `json:"course_score"`
	Modules     []ModuleProgressView `json:"modules"`
}
