package suspension

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/darasa/backend/core"
	"github.com/darasa/backend/core/progression"
)

// nowFunc is mockable for tests.
var nowFunc = time.Now

var (
	// errors
	ErrNotFound             = errors.New("suspension not found")
	ErrNoActiveSuspension   = errors.New("no active suspension")
	ErrAppealAlreadyPending = errors.New("an appeal is already pending")
)

type (
	Repository interface {
		GetByID(ctx context.Context, id int) (Suspension, error)
		GetActive(ctx context.Context, studentID, courseID int) (Suspension, error)
		Create(ctx context.Context, s Suspension) (Suspension, error)
		Update(ctx context.Context, s Suspension) (Suspension, error)
	}

	Service struct {
		repo    Repository
		prog    *progression.Service
		content progression.ContentDirectory
		enrolls progression.EnrollmentDirectory
		sink    core.EventSink
		conf    *core.Config
		log     core.Logger
	}
)

// The service plugs into the progression engine's suspension seams.
var (
	_ progression.SuspensionChecker = (*Service)(nil)
	_ progression.FailureObserver   = (*Service)(nil)
)

func NewService(repo Repository, prog *progression.Service, content progression.ContentDirectory, enrolls progression.EnrollmentDirectory, sink core.EventSink, conf *core.Config, logger core.Logger) *Service {
	if sink == nil {
		sink = core.NopSink{}
	}
	return &Service{
		repo:    repo,
		prog:    prog,
		content: content,
		enrolls: enrolls,
		sink:    sink,
		conf:    conf,
		log:     logger,
	}
}

// IsSuspended implements progression.SuspensionChecker.
func (svc *Service) IsSuspended(ctx context.Context, studentID, courseID int) (bool, error) {
	_, err := svc.repo.GetActive(ctx, studentID, courseID)
	switch errors.Cause(err) {
	case nil:
		return true, nil
	case ErrNotFound:
		return false, nil
	default:
		return false, err
	}
}

// ModuleFailed implements progression.FailureObserver.
func (svc *Service) ModuleFailed(ctx context.Context, studentID, courseID int) error {
	return svc.Evaluate(ctx, studentID, courseID)
}

// Evaluate counts the course's failed modules with zero retakes remaining
// and suspends the enrollment once the threshold is reached. Idempotent
// while a suspension is active.
func (svc *Service) Evaluate(ctx context.Context, studentID, courseID int) error {
	_, err := svc.repo.GetActive(ctx, studentID, courseID)
	switch errors.Cause(err) {
	case nil:
		return nil // already suspended
	case ErrNotFound:
	default:
		return err
	}

	course, err := svc.content.Course(ctx, courseID)
	if err != nil {
		return err
	}
	rows, err := svc.prog.Repo().StudentCourseProgress(ctx, studentID, courseID)
	if err != nil {
		return err
	}
	limit := course.RetakeLimit
	if limit <= 0 {
		limit = svc.conf.Engine.RetakeLimit
	}
	var count int
	for _, mp := range rows {
		if mp.Status == progression.StatusFailed && mp.RetakesUsed >= limit {
			count++
		}
	}
	threshold := course.SuspensionThreshold
	if threshold <= 0 {
		threshold = svc.conf.Engine.SuspensionThreshold
	}
	if count < threshold {
		return nil
	}

	enr, err := svc.enrolls.Enrollment(ctx, studentID, courseID)
	if err != nil {
		return err
	}
	now := nowFunc().UTC()
	s := Suspension{
		StudentID:    studentID,
		CourseID:     courseID,
		EnrollmentID: enr.ID,
		Reason:       fmt.Sprintf("%d failed modules with no retakes remaining", count),
		SuspendedBy:  SuspendedBySystem,
		SuspendedAt:  now,
		AppealStatus: AppealNone,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if s, err = svc.repo.Create(ctx, s); err != nil {
		return err
	}

	ev := core.NewEvent(core.EventStudentSuspended, studentID)
	ev.CourseID = courseID
	ev.Data["reason"] = s.Reason
	svc.sink.Emit(ev)
	return nil
}

// Get returns the student's active suspension for the course.
func (svc *Service) Get(ctx context.Context, studentID, courseID int) (View, error) {
	s, err := svc.repo.GetActive(ctx, studentID, courseID)
	if err != nil {
		return View{}, err
	}
	return s.View(), nil
}

// SubmitAppeal files the one allowed appeal against an active suspension.
func (svc *Service) SubmitAppeal(ctx context.Context, studentID, courseID int, in NewAppeal) (View, error) {
	if err := in.Validate(); err != nil {
		return View{}, err
	}
	s, err := svc.repo.GetActive(ctx, studentID, courseID)
	switch errors.Cause(err) {
	case nil:
	case ErrNotFound:
		return View{}, ErrNoActiveSuspension
	default:
		return View{}, err
	}
	if s.AppealStatus == AppealPending {
		return View{}, ErrAppealAlreadyPending
	}
	if !s.CanSubmitAppeal() {
		return View{}, core.NewValidationError(errors.New("appeal already resolved"))
	}

	s.AppealText = in.Text
	s.AppealStatus = AppealPending
	s.UpdatedAt = nowFunc().UTC()
	if s, err = svc.repo.Update(ctx, s); err != nil {
		return View{}, err
	}
	return s.View(), nil
}

// ResolveAppeal decides a pending appeal. Approval lifts the block and
// resets the course's failed modules to unlocked with a fresh retake
// budget; denial keeps the suspension blocking.
func (svc *Service) ResolveAppeal(ctx context.Context, suspensionID int, in ResolveAppeal) (View, error) {
	if err := in.Validate(); err != nil {
		return View{}, err
	}
	s, err := svc.repo.GetByID(ctx, suspensionID)
	if err != nil {
		return View{}, err
	}
	if s.AppealStatus != AppealPending {
		return View{}, core.NewValidationError(errors.New("no pending appeal on this suspension"))
	}

	now := nowFunc().UTC()
	s.ResolvedBy = in.ResolverID
	s.ResolvedAt = &now
	s.UpdatedAt = now
	if in.Approved {
		s.AppealStatus = AppealApproved
		s.Active = false
	} else {
		s.AppealStatus = AppealDenied
	}
	if s, err = svc.repo.Update(ctx, s); err != nil {
		return View{}, err
	}

	if in.Approved {
		if err = svc.prog.ReinstateFailedModules(ctx, s.StudentID, s.CourseID); err != nil {
			return View{}, err
		}
	}

	ev := core.NewEvent(core.EventAppealResolved, s.StudentID)
	ev.CourseID = s.CourseID
	ev.Data["approved"] = in.Approved
	svc.sink.Emit(ev)
	return s.View(), nil
}

// Reinstate lifts a suspension on direct instructor authority, without an
// appeal. Failed modules get the same fresh retake budget as an approved
// appeal.
func (svc *Service) Reinstate(ctx context.Context, suspensionID, instructorID int) (View, error) {
	s, err := svc.repo.GetByID(ctx, suspensionID)
	if err != nil {
		return View{}, err
	}
	if !s.Active {
		return View{}, core.NewValidationError(errors.New("suspension is not active"))
	}

	now := nowFunc().UTC()
	s.Active = false
	s.ResolvedBy = instructorID
	s.ResolvedAt = &now
	s.UpdatedAt = now
	if s, err = svc.repo.Update(ctx, s); err != nil {
		return View{}, err
	}
	if err = svc.prog.ReinstateFailedModules(ctx, s.StudentID, s.CourseID); err != nil {
		return View{}, err
	}

	ev := core.NewEvent(core.EventAppealResolved, s.StudentID)
	ev.CourseID = s.CourseID
	ev.Data["approved"] = true
	ev.Data["reinstated_by"] = instructorID
	svc.sink.Emit(ev)
	return s.View(), nil
}
