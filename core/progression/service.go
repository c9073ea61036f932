package progression

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/darasa/backend/core"
	"github.com/darasa/backend/core/score"
)

var (
	// errors
	ErrNotFound             = errors.New("progress record not found")
	ErrModuleNotUnlocked    = errors.New("module is not unlocked")
	ErrAttemptLimitExceeded = errors.New("attempt limit exceeded")
	ErrRetakeLimitExceeded  = errors.New("retake limit exceeded")
	ErrEnrollmentSuspended  = errors.New("enrollment is suspended")
)

type (
	// Repository is the engine's store contract. Atomic runs fn against a
	// transaction-bound Repository; everything inside commits or rolls back
	// as a whole, and writes inside read their own writes.
	// GetModuleProgress must serialize concurrent callers for the same
	// (student, module) pair within an Atomic block, and
	// UpdateModuleProgress must fail with core.ErrConflict when the record
	// version moved underneath the caller.
	Repository interface {
		Atomic(ctx context.Context, fn func(Repository) error) error

		GetLessonCompletion(ctx context.Context, studentID, lessonID int) (LessonCompletion, error)
		ModuleLessonCompletions(ctx context.Context, studentID, moduleID int) ([]LessonCompletion, error)
		// SaveLessonCompletion upserts by (student, lesson).
		SaveLessonCompletion(ctx context.Context, lc LessonCompletion) (LessonCompletion, error)

		GetAttempt(ctx context.Context, id int) (AssessmentAttempt, error)
		ModuleAttempts(ctx context.Context, studentID, moduleID, retakeRound int) ([]AssessmentAttempt, error)
		// AllModuleAttempts returns attempts across every retake round.
		AllModuleAttempts(ctx context.Context, studentID, moduleID int) ([]AssessmentAttempt, error)
		CountAttempts(ctx context.Context, studentID, assessmentID, retakeRound int) (int, error)
		CreateAttempt(ctx context.Context, att AssessmentAttempt) (AssessmentAttempt, error)
		UpdateAttempt(ctx context.Context, att AssessmentAttempt) (AssessmentAttempt, error)

		GetModuleProgress(ctx context.Context, studentID, moduleID int) (ModuleProgress, error)
		StudentCourseProgress(ctx context.Context, studentID, courseID int) ([]ModuleProgress, error)
		CreateModuleProgress(ctx context.Context, mp ModuleProgress) (ModuleProgress, error)
		UpdateModuleProgress(ctx context.Context, mp ModuleProgress) (ModuleProgress, error)
	}

	Service struct {
		repo      Repository
		content   ContentDirectory
		enrolls   EnrollmentDirectory
		sink      core.EventSink
		conf      *core.Config
		log       core.Logger
		suspended SuspensionChecker
		failures  FailureObserver
	}
)

func NewService(repo Repository, content ContentDirectory, enrolls EnrollmentDirectory, sink core.EventSink, conf *core.Config, logger core.Logger) *Service {
	if sink == nil {
		sink = core.NopSink{}
	}
	return &Service{
		repo:    repo,
		content: content,
		enrolls: enrolls,
		sink:    sink,
		conf:    conf,
		log:     logger,
	}
}

// SetSuspensionChecker wires the suspension seam; nil means never suspended.
func (svc *Service) SetSuspensionChecker(c SuspensionChecker) { svc.suspended = c }

// SetFailureObserver wires the failure seam; nil means failures go unwatched.
func (svc *Service) SetFailureObserver(o FailureObserver) { svc.failures = o }

// Repo exposes the store contract to sibling engine services (override,
// suspension) so their batches share the same transactional boundaries.
func (svc *Service) Repo() Repository { return svc.repo }

func (svc *Service) Config() *core.Config { return svc.conf }

// GetModuleProgress returns the student's progress view for a module,
// lazily creating the progress record once both gates are open. The cached
// is_released flag only ever flips false -> true.
func (svc *Service) GetModuleProgress(ctx context.Context, studentID, moduleID int) (ModuleProgressView, error) {
	module, course, err := svc.moduleMeta(ctx, moduleID)
	if err != nil {
		return ModuleProgressView{}, err
	}

	var view ModuleProgressView
	err = core.RetryConflict(svc.conf.Engine.ConflictRetries, func() error {
		return svc.repo.Atomic(ctx, func(repo Repository) error {
			mp, err := svc.ensureProgress(ctx, repo, studentID, module, course)
			if errors.Cause(err) == ErrModuleNotUnlocked {
				view = svc.lockedView(course, module)
				return nil
			}
			if err != nil {
				return err
			}
			view = svc.progressView(course, module, mp)
			return nil
		})
	})
	return view, err
}

// RecordLessonProgress applies a lesson progress ping and re-evaluates the
// owning module. Reading progress never moves backwards; the completed
// flag is set exactly when reading progress reaches 100.
func (svc *Service) RecordLessonProgress(ctx context.Context, studentID, lessonID int, in NewLessonProgress) (LessonScoreView, error) {
	if err := in.Validate(); err != nil {
		return LessonScoreView{}, err
	}
	module, err := svc.content.LessonModule(ctx, lessonID)
	if err != nil {
		return LessonScoreView{}, err
	}
	course, err := svc.content.Course(ctx, module.CourseID)
	if err != nil {
		return LessonScoreView{}, err
	}
	if err = svc.guardSuspended(ctx, studentID, course.ID); err != nil {
		return LessonScoreView{}, err
	}

	var view LessonScoreView
	var events []core.Event
	err = core.RetryConflict(svc.conf.Engine.ConflictRetries, func() error {
		events = nil
		return svc.repo.Atomic(ctx, func(repo Repository) error {
			mp, err := svc.ensureProgress(ctx, repo, studentID, module, course)
			if err != nil {
				return err
			}
			now := nowFunc().UTC()
			if mp.Status == StatusUnlocked {
				if err = mp.apply(EventActivity, now); err != nil {
					return err
				}
			}

			lc, err := repo.GetLessonCompletion(ctx, studentID, lessonID)
			switch errors.Cause(err) {
			case nil:
			case ErrNotFound:
				lc = LessonCompletion{
					StudentID: studentID,
					LessonID:  lessonID,
					ModuleID:  module.ID,
					CreatedAt: now,
				}
			default:
				return err
			}
			if in.ReadingProgress > lc.ReadingProgress {
				lc.ReadingProgress = in.ReadingProgress
			}
			if in.EngagementScore > lc.EngagementScore {
				lc.EngagementScore = in.EngagementScore
			}
			if in.QuizScore != nil && *in.QuizScore > lc.QuizScore {
				lc.QuizScore = *in.QuizScore
			}
			if in.AssignmentScore != nil && *in.AssignmentScore > lc.AssignmentScore {
				lc.AssignmentScore = *in.AssignmentScore
			}
			lc.Completed = lc.ReadingProgress >= 100
			lc.LastAccessed = now
			lc.UpdatedAt = now
			if lc, err = repo.SaveLessonCompletion(ctx, lc); err != nil {
				return err
			}

			if events, err = svc.reevaluate(ctx, repo, &mp, module); err != nil {
				return err
			}
			view = LessonScoreView{
				LessonID:     lessonID,
				ModuleID:     module.ID,
				LessonScore:  score.Round2(lc.Score()),
				Completed:    lc.Completed,
				ModuleStatus: mp.Status,
			}
			return nil
		})
	})
	if err != nil {
		return LessonScoreView{}, err
	}
	svc.sink.Emit(events...)
	return view, nil
}

// SubmitAttempt records an assessment attempt and re-evaluates the owning
// module in the same transaction. Attempt numbers are serialized per
// (student, assessment, retake round): no gaps, no duplicates.
func (svc *Service) SubmitAttempt(ctx context.Context, studentID, assessmentID int, in NewAttempt) (AttemptResult, error) {
	if err := in.Validate(); err != nil {
		return AttemptResult{}, err
	}
	assess, err := svc.content.Assessment(ctx, assessmentID)
	if err != nil {
		return AttemptResult{}, err
	}
	module, course, err := svc.moduleMeta(ctx, assess.ModuleID)
	if err != nil {
		return AttemptResult{}, err
	}
	if err = svc.guardSuspended(ctx, studentID, course.ID); err != nil {
		return AttemptResult{}, err
	}

	var res AttemptResult
	var events []core.Event
	var failed bool
	err = core.RetryConflict(svc.conf.Engine.ConflictRetries, func() error {
		events, failed = nil, false
		return svc.repo.Atomic(ctx, func(repo Repository) error {
			mp, err := svc.ensureProgress(ctx, repo, studentID, module, course)
			if err != nil {
				return err
			}
			now := nowFunc().UTC()
			switch mp.Status {
			case StatusUnlocked:
				if err = mp.apply(EventActivity, now); err != nil {
					return err
				}
			case StatusInProgress:
			case StatusFailed:
				// a failed module has no attempts left; retake first
				return ErrAttemptLimitExceeded
			case StatusCompleted:
				return core.NewValidationError(errors.New("module already completed"))
			default:
				return ErrModuleNotUnlocked
			}

			n, err := repo.CountAttempts(ctx, studentID, assessmentID, mp.RetakeRound)
			if err != nil {
				return err
			}
			max := svc.maxAttempts(assess)
			if n >= max {
				return ErrAttemptLimitExceeded
			}

			att := AssessmentAttempt{
				StudentID:     studentID,
				AssessmentID:  assessmentID,
				ModuleID:      module.ID,
				Type:          assess.Type,
				AttemptNumber: n + 1,
				RetakeRound:   mp.RetakeRound,
				SubmittedAt:   now,
			}
			if in.Score != nil {
				att.Score = *in.Score
				att.GradedAt = &now
			}
			if att, err = repo.CreateAttempt(ctx, att); err != nil {
				return err
			}

			if events, err = svc.reevaluate(ctx, repo, &mp, module); err != nil {
				return err
			}
			failed = mp.Status == StatusFailed

			remaining := max - att.AttemptNumber
			if remaining < 0 {
				remaining = 0
			}
			res = AttemptResult{
				AttemptID:         att.ID,
				AttemptNumber:     att.AttemptNumber,
				AttemptsRemaining: remaining,
				ModuleStatus:      mp.Status,
				WeightedScore:     score.Round2(mp.WeightedScore),
			}
			return nil
		})
	})
	if err != nil {
		return AttemptResult{}, err
	}
	svc.sink.Emit(events...)
	svc.notifyFailure(ctx, failed, studentID, course.ID)
	return res, nil
}

// GradeAttempt resolves a pending manual grade and re-evaluates the module.
func (svc *Service) GradeAttempt(ctx context.Context, attemptID int, in AttemptGrade) (AttemptResult, error) {
	if err := in.Validate(); err != nil {
		return AttemptResult{}, err
	}

	var res AttemptResult
	var events []core.Event
	var failed bool
	var courseID, studentID int
	err := core.RetryConflict(svc.conf.Engine.ConflictRetries, func() error {
		events, failed = nil, false
		return svc.repo.Atomic(ctx, func(repo Repository) error {
			att, err := repo.GetAttempt(ctx, attemptID)
			if err != nil {
				return err
			}
			module, course, err := svc.moduleMeta(ctx, att.ModuleID)
			if err != nil {
				return err
			}
			courseID, studentID = course.ID, att.StudentID

			mp, err := repo.GetModuleProgress(ctx, att.StudentID, att.ModuleID)
			if err != nil {
				return err
			}
			now := nowFunc().UTC()
			att.Score = in.Score
			att.GradedAt = &now
			if att, err = repo.UpdateAttempt(ctx, att); err != nil {
				return err
			}

			if events, err = svc.reevaluate(ctx, repo, &mp, module); err != nil {
				return err
			}
			failed = mp.Status == StatusFailed

			assess, err := svc.content.Assessment(ctx, att.AssessmentID)
			if err != nil {
				return err
			}
			n, err := repo.CountAttempts(ctx, att.StudentID, att.AssessmentID, att.RetakeRound)
			if err != nil {
				return err
			}
			remaining := svc.maxAttempts(assess) - n
			if remaining < 0 {
				remaining = 0
			}
			res = AttemptResult{
				AttemptID:         att.ID,
				AttemptNumber:     att.AttemptNumber,
				AttemptsRemaining: remaining,
				ModuleStatus:      mp.Status,
				WeightedScore:     score.Round2(mp.WeightedScore),
			}
			return nil
		})
	})
	if err != nil {
		return AttemptResult{}, err
	}
	svc.sink.Emit(events...)
	svc.notifyFailure(ctx, failed, studentID, courseID)
	return res, nil
}

// AttemptsRemaining answers "is another attempt allowed?" for the current
// retake round.
func (svc *Service) AttemptsRemaining(ctx context.Context, studentID, assessmentID int) (int, error) {
	assess, err := svc.content.Assessment(ctx, assessmentID)
	if err != nil {
		return 0, err
	}
	round := 0
	mp, err := svc.repo.GetModuleProgress(ctx, studentID, assess.ModuleID)
	switch errors.Cause(err) {
	case nil:
		round = mp.RetakeRound
	case ErrNotFound:
	default:
		return 0, err
	}
	n, err := svc.repo.CountAttempts(ctx, studentID, assessmentID, round)
	if err != nil {
		return 0, err
	}
	remaining := svc.maxAttempts(assess) - n
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// RequestRetake resets the attempt counters of a failed module by opening a
// fresh retake round; historical attempt rows are retained.
func (svc *Service) RequestRetake(ctx context.Context, studentID, moduleID int) (ModuleProgressView, error) {
	module, course, err := svc.moduleMeta(ctx, moduleID)
	if err != nil {
		return ModuleProgressView{}, err
	}
	if err = svc.guardSuspended(ctx, studentID, course.ID); err != nil {
		return ModuleProgressView{}, err
	}

	var view ModuleProgressView
	err = core.RetryConflict(svc.conf.Engine.ConflictRetries, func() error {
		return svc.repo.Atomic(ctx, func(repo Repository) error {
			mp, err := repo.GetModuleProgress(ctx, studentID, moduleID)
			if err != nil {
				return err
			}
			if mp.RetakesUsed >= svc.retakeLimit(course) {
				return ErrRetakeLimitExceeded
			}
			now := nowFunc().UTC()
			if err = mp.apply(EventRetake, now); err != nil {
				return core.NewValidationError(errors.New("only failed modules can be retaken"))
			}
			mp.RetakesUsed++
			mp.RetakeRound++
			if _, err = svc.reevaluate(ctx, repo, &mp, module); err != nil {
				return err
			}
			view = svc.progressView(course, module, mp)
			return nil
		})
	})
	return view, err
}

// CourseScore is the mean weighted score across the student's started
// modules; modules never started are excluded, not scored as 0.
func (svc *Service) CourseScore(ctx context.Context, studentID, courseID int) (float64, error) {
	rows, err := svc.repo.StudentCourseProgress(ctx, studentID, courseID)
	if err != nil {
		return 0, err
	}
	var weighted []float64
	for _, mp := range rows {
		if mp.Started() {
			weighted = append(weighted, mp.WeightedScore)
		}
	}
	return score.Round2(score.Course(weighted)), nil
}

// CourseProgress returns the full per-module standing plus the course score.
func (svc *Service) CourseProgress(ctx context.Context, studentID, courseID int) (CourseProgressView, error) {
	course, err := svc.content.Course(ctx, courseID)
	if err != nil {
		return CourseProgressView{}, err
	}
	modules, err := svc.content.CourseModules(ctx, courseID)
	if err != nil {
		return CourseProgressView{}, err
	}
	rows, err := svc.repo.StudentCourseProgress(ctx, studentID, courseID)
	if err != nil {
		return CourseProgressView{}, err
	}
	byModule := make(map[int]ModuleProgress, len(rows))
	var weighted []float64
	for _, mp := range rows {
		byModule[mp.ModuleID] = mp
		if mp.Started() {
			weighted = append(weighted, mp.WeightedScore)
		}
	}

	view := CourseProgressView{
		CourseID:    courseID,
		StudentID:   studentID,
		CourseScore: score.Round2(score.Course(weighted)),
		Modules:     make([]ModuleProgressView, 0, len(modules)),
	}
	for _, module := range modules {
		if mp, ok := byModule[module.ID]; ok {
			view.Modules = append(view.Modules, svc.progressView(course, module, mp))
		} else {
			view.Modules = append(view.Modules, svc.lockedView(course, module))
		}
	}
	return view, nil
}

// AttemptHistory lists every attempt the student made in the module across
// all retake rounds, oldest first.
func (svc *Service) AttemptHistory(ctx context.Context, studentID, moduleID int) ([]AssessmentAttempt, error) {
	return svc.repo.AllModuleAttempts(ctx, studentID, moduleID)
}

// ReinstateFailedModules resets every failed module of the course back to
// unlocked with a fresh retake budget. Administrative path, used when a
// suspension appeal is approved.
func (svc *Service) ReinstateFailedModules(ctx context.Context, studentID, courseID int) error {
	return core.RetryConflict(svc.conf.Engine.ConflictRetries, func() error {
		return svc.repo.Atomic(ctx, func(repo Repository) error {
			rows, err := repo.StudentCourseProgress(ctx, studentID, courseID)
			if err != nil {
				return err
			}
			now := nowFunc().UTC()
			for _, mp := range rows {
				if mp.Status != StatusFailed {
					continue
				}
				// administrative re-entry, not a table transition
				mp.Status = StatusUnlocked
				mp.RetakesUsed = 0
				mp.RetakeRound++
				mp.CompletedAt = nil
				mp.UpdatedAt = now
				if _, err = repo.UpdateModuleProgress(ctx, mp); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// SweepReleases opens time gates for every active enrollment; run from the
// cron job. Errors are logged per enrollment, the sweep keeps going.
func (svc *Service) SweepReleases(ctx context.Context) error {
	enrollments, err := svc.enrolls.ActiveEnrollments(ctx)
	if err != nil {
		return err
	}
	for _, enr := range enrollments {
		course, err := svc.content.Course(ctx, enr.CourseID)
		if err != nil {
			svc.log.Error(fmt.Sprintf("release sweep: course %d: %v", enr.CourseID, err), err)
			continue
		}
		modules, err := svc.content.CourseModules(ctx, enr.CourseID)
		if err != nil {
			svc.log.Error(fmt.Sprintf("release sweep: course %d modules: %v", enr.CourseID, err), err)
			continue
		}
		for _, module := range modules {
			module := module
			err = core.RetryConflict(svc.conf.Engine.ConflictRetries, func() error {
				return svc.repo.Atomic(ctx, func(repo Repository) error {
					_, err := svc.ensureProgress(ctx, repo, enr.StudentID, module, course)
					if errors.Cause(err) == ErrModuleNotUnlocked {
						return nil // still gated
					}
					return err
				})
			})
			if err != nil {
				svc.log.Error(fmt.Sprintf("release sweep: student %d module %d: %v", enr.StudentID, module.ID, err), err)
			}
		}
	}
	return nil
}

// internals

func (svc *Service) moduleMeta(ctx context.Context, moduleID int) (Module, Course, error) {
	module, err := svc.content.Module(ctx, moduleID)
	if err != nil {
		return Module{}, Course{}, err
	}
	course, err := svc.content.Course(ctx, module.CourseID)
	if err != nil {
		return Module{}, Course{}, err
	}
	return module, course, nil
}

func (svc *Service) guardSuspended(ctx context.Context, studentID, courseID int) error {
	if svc.suspended == nil {
		return nil
	}
	suspended, err := svc.suspended.IsSuspended(ctx, studentID, courseID)
	if err != nil {
		return err
	}
	if suspended {
		return ErrEnrollmentSuspended
	}
	return nil
}

func (svc *Service) notifyFailure(ctx context.Context, failed bool, studentID, courseID int) {
	if !failed || svc.failures == nil {
		return
	}
	if err := svc.failures.ModuleFailed(ctx, studentID, courseID); err != nil {
		svc.log.Error(fmt.Sprintf("failure observer: %v", err), err)
	}
}

func (svc *Service) maxAttempts(assess Assessment) int {
	if assess.MaxAttempts > 0 {
		return assess.MaxAttempts
	}
	return svc.conf.Engine.DefaultMaxAttempts
}

func (svc *Service) retakeLimit(course Course) int {
	if course.RetakeLimit > 0 {
		return course.RetakeLimit
	}
	return svc.conf.Engine.RetakeLimit
}

// ensureProgress loads the progress record, flipping the release cache and
// the locked -> unlocked gate as needed, and lazily creates the record the
// first time both gates are open. Returns ErrModuleNotUnlocked while the
// module is out of reach.
func (svc *Service) ensureProgress(ctx context.Context, repo Repository, studentID int, module Module, course Course) (ModuleProgress, error) {
	now := nowFunc().UTC()
	mp, err := repo.GetModuleProgress(ctx, studentID, module.ID)
	switch errors.Cause(err) {
	case nil:
		var changed bool
		if !mp.IsReleased && released(course, module, now) {
			mp.IsReleased = true // never flips back
			changed = true
		}
		if mp.Status == StatusLocked && mp.IsReleased {
			open, err := svc.sequenceGateOpen(ctx, repo, studentID, course, module)
			if err != nil {
				return ModuleProgress{}, err
			}
			if open {
				if err = mp.apply(EventRelease, now); err != nil {
					return ModuleProgress{}, err
				}
				changed = true
			}
		}
		if changed {
			mp.UpdatedAt = now
			if mp, err = repo.UpdateModuleProgress(ctx, mp); err != nil {
				return ModuleProgress{}, err
			}
		}
		if mp.Status == StatusLocked {
			return mp, ErrModuleNotUnlocked
		}
		return mp, nil

	case ErrNotFound:
		if !released(course, module, now) {
			return ModuleProgress{}, ErrModuleNotUnlocked
		}
		open, err := svc.sequenceGateOpen(ctx, repo, studentID, course, module)
		if err != nil {
			return ModuleProgress{}, err
		}
		if !open {
			return ModuleProgress{}, ErrModuleNotUnlocked
		}
		enr, err := svc.enrolls.Enrollment(ctx, studentID, course.ID)
		if err != nil {
			return ModuleProgress{}, err
		}
		mp = ModuleProgress{
			EnrollmentID: enr.ID,
			StudentID:    studentID,
			CourseID:     course.ID,
			ModuleID:     module.ID,
			Status:       StatusUnlocked,
			IsReleased:   true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return repo.CreateModuleProgress(ctx, mp)

	default:
		return ModuleProgress{}, err
	}
}

// sequenceGateOpen: the first module only needs the time gate; later
// modules also need the previous module completed.
func (svc *Service) sequenceGateOpen(ctx context.Context, repo Repository, studentID int, course Course, module Module) (bool, error) {
	if module.Ordinal <= 1 {
		return true, nil
	}
	modules, err := svc.content.CourseModules(ctx, course.ID)
	if err != nil {
		return false, err
	}
	var prev *Module
	for i := range modules {
		if modules[i].Ordinal == module.Ordinal-1 {
			prev = &modules[i]
			break
		}
	}
	if prev == nil {
		return true, nil // no predecessor authored; only the time gate applies
	}
	prevMP, err := repo.GetModuleProgress(ctx, studentID, prev.ID)
	switch errors.Cause(err) {
	case nil:
		return prevMP.Status == StatusCompleted, nil
	case ErrNotFound:
		return false, nil
	default:
		return false, err
	}
}

// reevaluate recomputes all cached scores from the raw completion/attempt
// rows and applies any pass/fail outcome, persisting the record. It never
// trusts stale cached values across a transition boundary.
func (svc *Service) reevaluate(ctx context.Context, repo Repository, mp *ModuleProgress, module Module) ([]core.Event, error) {
	completions, err := repo.ModuleLessonCompletions(ctx, mp.StudentID, mp.ModuleID)
	if err != nil {
		return nil, err
	}
	attempts, err := repo.ModuleAttempts(ctx, mp.StudentID, mp.ModuleID, mp.RetakeRound)
	if err != nil {
		return nil, err
	}
	Recompute(mp, module, completions, attempts)

	var events []core.Event
	if mp.Status == StatusInProgress {
		now := nowFunc().UTC()
		switch Outcome(mp, module, attempts, svc.conf.Engine.PassingScore, svc.conf.Engine.DefaultMaxAttempts) {
		case EventPass:
			if err = mp.apply(EventPass, now); err != nil {
				return nil, err
			}
			events = append(events, svc.moduleEvent(core.EventModuleCompleted, mp))
		case EventFail:
			if err = mp.apply(EventFail, now); err != nil {
				return nil, err
			}
			events = append(events, svc.moduleEvent(core.EventModuleFailed, mp))
		}
	}

	mp.UpdatedAt = nowFunc().UTC()
	updated, err := repo.UpdateModuleProgress(ctx, *mp)
	if err != nil {
		return nil, err
	}
	*mp = updated
	return events, nil
}

func (svc *Service) moduleEvent(typ string, mp *ModuleProgress) core.Event {
	ev := core.NewEvent(typ, mp.StudentID)
	ev.CourseID = mp.CourseID
	ev.ModuleID = mp.ModuleID
	ev.Data["cumulative_score"] = score.Round2(mp.WeightedScore)
	ev.Data["retakes_used"] = mp.RetakesUsed
	return ev
}

func (svc *Service) progressView(course Course, module Module, mp ModuleProgress) ModuleProgressView {
	var releaseAt *time.Time
	if date, gated := ReleaseDate(course, module); gated {
		releaseAt = &date
	}
	limit := svc.retakeLimit(course)
	remaining := limit - mp.RetakesUsed
	if remaining < 0 {
		remaining = 0
	}
	return ModuleProgressView{
		ModuleID:         module.ID,
		CourseID:         course.ID,
		Status:           mp.Status,
		LessonScore:      score.Round2(mp.LessonScore),
		QuizScore:        score.Round2(mp.QuizScore),
		AssignmentScore:  score.Round2(mp.AssignmentScore),
		FinalScore:       score.Round2(mp.FinalScore),
		WeightedScore:    score.Round2(mp.WeightedScore),
		RetakesUsed:      mp.RetakesUsed,
		RetakesRemaining: remaining,
		IsReleased:       mp.IsReleased,
		ReleaseAt:        releaseAt,
		CompletedAt:      mp.CompletedAt,
	}
}

func (svc *Service) lockedView(course Course, module Module) ModuleProgressView {
	view := svc.progressView(course, module, ModuleProgress{Status: StatusLocked})
	view.RetakesUsed = 0
	view.IsReleased = released(course, module, nowFunc().UTC())
	return view
}

// Recompute rebuilds every cached aggregate on mp from raw rows: the
// lesson-only mean counts every authored lesson (no activity scores 0),
// assessment components take the best graded score per assessment in the
// current retake round, and the weighted blend follows 10/30/40/20.
func Recompute(mp *ModuleProgress, module Module, completions []LessonCompletion, attempts []AssessmentAttempt) {
	byLesson := make(map[int]float64, len(completions))
	for i := range completions {
		byLesson[completions[i].LessonID] = completions[i].Score()
	}
	lessonScores := make([]float64, 0, len(module.LessonIDs))
	for _, id := range module.LessonIDs {
		lessonScores = append(lessonScores, byLesson[id])
	}
	mp.LessonScore = score.Module(lessonScores)

	best := make(map[int]float64, len(attempts))
	for i := range attempts {
		att := &attempts[i]
		if !att.Graded() || att.RetakeRound != mp.RetakeRound {
			continue
		}
		if s, ok := best[att.AssessmentID]; !ok || att.Score > s {
			best[att.AssessmentID] = att.Score
		}
	}
	var quizzes, assignments, finals []float64
	for _, a := range module.Assessments {
		v := best[a.ID]
		switch a.Type {
		case AssessmentQuiz:
			quizzes = append(quizzes, v)
		case AssessmentAssignment:
			assignments = append(assignments, v)
		case AssessmentFinal:
			finals = append(finals, v)
		}
	}
	mp.QuizScore = mean(quizzes)
	mp.AssignmentScore = mean(assignments)
	mp.FinalScore = mean(finals)
	mp.WeightedScore = score.ModuleWeighted(mp.LessonScore, mp.QuizScore, mp.AssignmentScore, mp.FinalScore)
}

// Outcome decides whether the recomputed record passes or fails:
// pass needs the weighted score at or above the passing mark AND a graded
// attempt on every required assessment; fail needs the weighted score below
// the mark with no attempts remaining on any required assessment.
func Outcome(mp *ModuleProgress, module Module, attempts []AssessmentAttempt, passingScore float64, defaultMaxAttempts int) Event {
	graded := make(map[int]bool)
	counts := make(map[int]int)
	pending := false
	for i := range attempts {
		att := &attempts[i]
		if att.RetakeRound != mp.RetakeRound {
			continue
		}
		counts[att.AssessmentID]++
		if att.Graded() {
			graded[att.AssessmentID] = true
		} else {
			pending = true
		}
	}

	var required int
	allRequiredGraded := true
	allRequiredExhausted := true
	for _, a := range module.Assessments {
		if !a.Required {
			continue
		}
		required++
		if !graded[a.ID] {
			allRequiredGraded = false
		}
		max := a.MaxAttempts
		if max <= 0 {
			max = defaultMaxAttempts
		}
		if counts[a.ID] < max {
			allRequiredExhausted = false
		}
	}

	if mp.WeightedScore >= passingScore && allRequiredGraded {
		return EventPass
	}
	// never fail while a manual grade is pending; the grade decides
	if mp.WeightedScore < passingScore && required > 0 && allRequiredExhausted && !pending {
		return EventFail
	}
	return ""
}

func mean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}
