package inmemdb

import (
	"context"
	"sort"

	"github.com/darasa/backend/core"
	"github.com/darasa/backend/core/progression"
)

type progressionRepository struct {
	db   *DB
	inTx bool
}

func NewProgressionRepository(db *DB) progression.Repository {
	return &progressionRepository{db: db}
}

func (repo *progressionRepository) lock() func() {
	if repo.inTx {
		return func() {}
	}
	repo.db.mu.Lock()
	return repo.db.mu.Unlock
}

// Atomic serializes the whole block; on error the DB is rolled back to the
// snapshot taken at entry.
func (repo *progressionRepository) Atomic(ctx context.Context, fn func(progression.Repository) error) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	snap := repo.db.snapshot()
	if err := fn(&progressionRepository{db: repo.db, inTx: true}); err != nil {
		repo.db.restore(snap)
		return err
	}
	return nil
}

func (repo *progressionRepository) GetLessonCompletion(ctx context.Context, studentID, lessonID int) (progression.LessonCompletion, error) {
	defer repo.lock()()
	for _, lc := range repo.db.completions {
		if lc.StudentID == studentID && lc.LessonID == lessonID {
			return lc, nil
		}
	}
	return progression.LessonCompletion{}, progression.ErrNotFound
}

func (repo *progressionRepository) ModuleLessonCompletions(ctx context.Context, studentID, moduleID int) ([]progression.LessonCompletion, error) {
	defer repo.lock()()
	out := make([]progression.LessonCompletion, 0)
	for _, lc := range repo.db.completions {
		if lc.StudentID == studentID && lc.ModuleID == moduleID {
			out = append(out, lc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (repo *progressionRepository) SaveLessonCompletion(ctx context.Context, lc progression.LessonCompletion) (progression.LessonCompletion, error) {
	defer repo.lock()()
	if lc.ID == 0 {
		for _, existing := range repo.db.completions {
			if existing.StudentID == lc.StudentID && existing.LessonID == lc.LessonID {
				lc.ID = existing.ID
				break
			}
		}
	}
	if lc.ID == 0 {
		lc.ID = repo.db.nextPK()
	}
	repo.db.completions[lc.ID] = lc
	return lc, nil
}

func (repo *progressionRepository) GetAttempt(ctx context.Context, id int) (progression.AssessmentAttempt, error) {
	defer repo.lock()()
	if att, ok := repo.db.attempts[id]; ok {
		return att, nil
	}
	return progression.AssessmentAttempt{}, progression.ErrNotFound
}

func (repo *progressionRepository) ModuleAttempts(ctx context.Context, studentID, moduleID, retakeRound int) ([]progression.AssessmentAttempt, error) {
	defer repo.lock()()
	out := make([]progression.AssessmentAttempt, 0)
	for _, att := range repo.db.attempts {
		if att.StudentID == studentID && att.ModuleID == moduleID && att.RetakeRound == retakeRound {
			out = append(out, att)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (repo *progressionRepository) AllModuleAttempts(ctx context.Context, studentID, moduleID int) ([]progression.AssessmentAttempt, error) {
	defer repo.lock()()
	out := make([]progression.AssessmentAttempt, 0)
	for _, att := range repo.db.attempts {
		if att.StudentID == studentID && att.ModuleID == moduleID {
			out = append(out, att)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (repo *progressionRepository) CountAttempts(ctx context.Context, studentID, assessmentID, retakeRound int) (int, error) {
	defer repo.lock()()
	var n int
	for _, att := range repo.db.attempts {
		if att.StudentID == studentID && att.AssessmentID == assessmentID && att.RetakeRound == retakeRound {
			n++
		}
	}
	return n, nil
}

func (repo *progressionRepository) CreateAttempt(ctx context.Context, att progression.AssessmentAttempt) (progression.AssessmentAttempt, error) {
	defer repo.lock()()
	att.ID = repo.db.nextPK()
	repo.db.attempts[att.ID] = att
	return att, nil
}

func (repo *progressionRepository) UpdateAttempt(ctx context.Context, att progression.AssessmentAttempt) (progression.AssessmentAttempt, error) {
	defer repo.lock()()
	if _, ok := repo.db.attempts[att.ID]; !ok {
		return progression.AssessmentAttempt{}, progression.ErrNotFound
	}
	repo.db.attempts[att.ID] = att
	return att, nil
}

func (repo *progressionRepository) GetModuleProgress(ctx context.Context, studentID, moduleID int) (progression.ModuleProgress, error) {
	defer repo.lock()()
	for _, mp := range repo.db.progress {
		if mp.StudentID == studentID && mp.ModuleID == moduleID {
			return mp, nil
		}
	}
	return progression.ModuleProgress{}, progression.ErrNotFound
}

func (repo *progressionRepository) StudentCourseProgress(ctx context.Context, studentID, courseID int) ([]progression.ModuleProgress, error) {
	defer repo.lock()()
	out := make([]progression.ModuleProgress, 0)
	for _, mp := range repo.db.progress {
		if mp.StudentID == studentID && mp.CourseID == courseID {
			out = append(out, mp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (repo *progressionRepository) CreateModuleProgress(ctx context.Context, mp progression.ModuleProgress) (progression.ModuleProgress, error) {
	defer repo.lock()()
	mp.ID = repo.db.nextPK()
	mp.Version = 1
	repo.db.progress[mp.ID] = mp
	return mp, nil
}

func (repo *progressionRepository) UpdateModuleProgress(ctx context.Context, mp progression.ModuleProgress) (progression.ModuleProgress, error) {
	defer repo.lock()()
	stored, ok := repo.db.progress[mp.ID]
	if !ok {
		return progression.ModuleProgress{}, progression.ErrNotFound
	}
	if stored.Version != mp.Version {
		return progression.ModuleProgress{}, core.ErrConflict
	}
	mp.Version++
	repo.db.progress[mp.ID] = mp
	return mp, nil
}
