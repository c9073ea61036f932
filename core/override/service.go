// Package override implements the instructor-authoritative "full credit"
// path. It is deliberately not a progression state-machine event: it runs
// its own atomic batch against the raw records, then calls the transition
// function directly with the force-complete re-entry.
package override

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/darasa/backend/core"
	"github.com/darasa/backend/core/progression"
	"github.com/darasa/backend/core/score"
)

var nowFunc = time.Now

// GrantFullCredit is the instructor's override request.
type GrantFullCredit struct {
	StudentID    int    `json:"student_id" validate:"required"`
	ModuleID     int    `json:"module_id" validate:"required"`
	InstructorID int    `json:"instructor_id" validate:"required"`
	EnrollmentID int    `json:"enrollment_id" validate:"required"`
	Reason       string `json:"reason"`
}

func (in *GrantFullCredit) Validate() error {
	in.Reason = core.CleanString(in.Reason)
	return core.Validate.Struct(in)
}

// FullCreditResult reports what the batch touched, for UI confirmation and
// the audit event.
type FullCreditResult struct {
	ModuleID           int                `json:"module_id"`
	Status             progression.Status `json:"status"`
	WeightedScore      float64            `json:"cumulative_score"`
	LessonsUpdated     int                `json:"lessons_updated"`
	QuizzesUpdated     int                `json:"quizzes_updated"`
	AssignmentsUpdated int                `json:"assignments_updated"`
	FinalsUpdated      int                `json:"finals_updated"`
}

type Service struct {
	repo    progression.Repository
	content progression.ContentDirectory
	sink    core.EventSink
	conf    *core.Config
	log     core.Logger
}

func NewService(repo progression.Repository, content progression.ContentDirectory, sink core.EventSink, conf *core.Config, logger core.Logger) *Service {
	if sink == nil {
		sink = core.NopSink{}
	}
	return &Service{repo: repo, content: content, sink: sink, conf: conf, log: logger}
}

// GrantFullCredit writes maximal values into every lesson completion and a
// passing attempt for every assessment the scoring reads, then forces the
// module to completed. All-or-nothing: a failure anywhere rolls the whole
// batch back. This is the one path allowed to bypass suspension blocking.
func (svc *Service) GrantFullCredit(ctx context.Context, in GrantFullCredit) (FullCreditResult, error) {
	if err := in.Validate(); err != nil {
		return FullCreditResult{}, err
	}
	module, err := svc.content.Module(ctx, in.ModuleID)
	if err != nil {
		return FullCreditResult{}, err
	}

	var res FullCreditResult
	err = core.RetryConflict(svc.conf.Engine.ConflictRetries, func() error {
		res = FullCreditResult{ModuleID: in.ModuleID}
		return svc.repo.Atomic(ctx, func(repo progression.Repository) error {
			now := nowFunc().UTC()

			mp, err := repo.GetModuleProgress(ctx, in.StudentID, in.ModuleID)
			switch errors.Cause(err) {
			case nil:
			case progression.ErrNotFound:
				// privileged path: materialize the record, gates or not
				mp = progression.ModuleProgress{
					EnrollmentID: in.EnrollmentID,
					StudentID:    in.StudentID,
					CourseID:     module.CourseID,
					ModuleID:     in.ModuleID,
					Status:       progression.StatusLocked,
					IsReleased:   true,
					CreatedAt:    now,
					UpdatedAt:    now,
				}
				if mp, err = repo.CreateModuleProgress(ctx, mp); err != nil {
					return errors.Wrap(err, "full credit: creating progress")
				}
			default:
				return errors.Wrap(err, "full credit: loading progress")
			}

			// max out every lesson completion, creating the missing ones
			for _, lessonID := range module.LessonIDs {
				lc, err := repo.GetLessonCompletion(ctx, in.StudentID, lessonID)
				switch errors.Cause(err) {
				case nil:
				case progression.ErrNotFound:
					lc = progression.LessonCompletion{
						StudentID: in.StudentID,
						LessonID:  lessonID,
						ModuleID:  in.ModuleID,
						CreatedAt: now,
					}
				default:
					return errors.Wrapf(err, "full credit: lesson %d", lessonID)
				}
				lc.ReadingProgress = 100
				lc.EngagementScore = 100
				lc.QuizScore = 100
				lc.AssignmentScore = 100
				lc.Completed = true
				lc.LastAccessed = now
				lc.UpdatedAt = now
				if _, err = repo.SaveLessonCompletion(ctx, lc); err != nil {
					return errors.Wrapf(err, "full credit: lesson %d", lessonID)
				}
				res.LessonsUpdated++
			}

			// a maximal graded attempt for every assessment lacking one
			attempts, err := repo.ModuleAttempts(ctx, in.StudentID, in.ModuleID, mp.RetakeRound)
			if err != nil {
				return errors.Wrap(err, "full credit: loading attempts")
			}
			best := make(map[int]float64, len(attempts))
			for i := range attempts {
				att := &attempts[i]
				if att.Graded() {
					if s, ok := best[att.AssessmentID]; !ok || att.Score > s {
						best[att.AssessmentID] = att.Score
					}
				}
			}
			for _, assess := range module.Assessments {
				if s, ok := best[assess.ID]; ok && s >= 100 {
					continue
				}
				n, err := repo.CountAttempts(ctx, in.StudentID, assess.ID, mp.RetakeRound)
				if err != nil {
					return errors.Wrapf(err, "full credit: assessment %d", assess.ID)
				}
				gradedAt := now
				att := progression.AssessmentAttempt{
					StudentID:     in.StudentID,
					AssessmentID:  assess.ID,
					ModuleID:      in.ModuleID,
					Type:          assess.Type,
					Score:         100,
					AttemptNumber: n + 1, // ceiling does not apply here
					RetakeRound:   mp.RetakeRound,
					SubmittedAt:   now,
					GradedAt:      &gradedAt,
				}
				if _, err = repo.CreateAttempt(ctx, att); err != nil {
					return errors.Wrapf(err, "full credit: assessment %d", assess.ID)
				}
				switch assess.Type {
				case progression.AssessmentQuiz:
					res.QuizzesUpdated++
				case progression.AssessmentAssignment:
					res.AssignmentsUpdated++
				case progression.AssessmentFinal:
					res.FinalsUpdated++
				}
			}

			// recompute from what we just wrote, then force-complete
			completions, err := repo.ModuleLessonCompletions(ctx, in.StudentID, in.ModuleID)
			if err != nil {
				return errors.Wrap(err, "full credit: reloading completions")
			}
			if attempts, err = repo.ModuleAttempts(ctx, in.StudentID, in.ModuleID, mp.RetakeRound); err != nil {
				return errors.Wrap(err, "full credit: reloading attempts")
			}
			progression.Recompute(&mp, module, completions, attempts)
			if err = progression.ForceComplete(&mp, now); err != nil {
				return errors.Wrap(err, "full credit: force complete")
			}
			mp.UpdatedAt = now
			if mp, err = repo.UpdateModuleProgress(ctx, mp); err != nil {
				return errors.Wrap(err, "full credit: saving progress")
			}
			res.Status = mp.Status
			res.WeightedScore = score.Round2(mp.WeightedScore)
			return nil
		})
	})
	if err != nil {
		return FullCreditResult{}, err
	}

	ev := core.NewEvent(core.EventFullCreditGranted, in.StudentID)
	ev.CourseID = module.CourseID
	ev.ModuleID = in.ModuleID
	ev.Data["instructor_id"] = in.InstructorID
	ev.Data["reason"] = in.Reason
	ev.Data["lessons_updated"] = res.LessonsUpdated
	ev.Data["quizzes_updated"] = res.QuizzesUpdated
	ev.Data["assignments_updated"] = res.AssignmentsUpdated
	svc.sink.Emit(ev)
	return res, nil
}
