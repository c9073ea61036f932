package postgresdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/darasa/backend/core"
	"github.com/darasa/backend/core/progression"
)

const pqUniqueViolation = "23505"

// isUniqueViolation: concurrent inserts racing on a unique index surface as
// core.ErrConflict so callers can retry from a fresh read.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}

type progressionRepository struct {
	db   *sqlx.DB
	ext  sqlx.ExtContext // db, or the tx inside an Atomic block
	inTx bool
}

var _ progression.Repository = (*progressionRepository)(nil)

func NewProgressionRepository(db *sqlx.DB) *progressionRepository {
	return &progressionRepository{db: db, ext: db}
}

// Atomic runs fn inside a single transaction. Progress rows fetched within
// the block are locked FOR UPDATE so attempt numbering stays gapless under
// concurrent submissions. Nested calls join the ongoing transaction.
func (repo *progressionRepository) Atomic(ctx context.Context, fn func(progression.Repository) error) error {
	if repo.inTx {
		return fn(repo)
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	txRepo := &progressionRepository{db: repo.db, ext: tx, inTx: true}
	if err = fn(txRepo); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// lesson completions

type lessonCompletionRow struct {
	ID              int       `db:"id"`
	StudentID       int       `db:"student_id"`
	LessonID        int       `db:"lesson_id"`
	ModuleID        int       `db:"module_id"`
	ReadingProgress float64   `db:"reading_progress"`
	EngagementScore float64   `db:"engagement_score"`
	QuizScore       float64   `db:"quiz_score"`
	AssignmentScore float64   `db:"assignment_score"`
	Completed       bool      `db:"completed"`
	LastAccessed    time.Time `db:"last_accessed"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (row lessonCompletionRow) completion() progression.LessonCompletion {
	return progression.LessonCompletion{
		ID:              row.ID,
		StudentID:       row.StudentID,
		LessonID:        row.LessonID,
		ModuleID:        row.ModuleID,
		ReadingProgress: row.ReadingProgress,
		EngagementScore: row.EngagementScore,
		QuizScore:       row.QuizScore,
		AssignmentScore: row.AssignmentScore,
		Completed:       row.Completed,
		LastAccessed:    row.LastAccessed.UTC(),
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
}

const lessonCompletionCols = `id, student_id, lesson_id, module_id, reading_progress,
	engagement_score, quiz_score, assignment_score, completed, last_accessed, created_at, updated_at`

func (repo *progressionRepository) GetLessonCompletion(ctx context.Context, studentID, lessonID int) (progression.LessonCompletion, error) {
	q := `SELECT ` + lessonCompletionCols + ` FROM lesson_completions WHERE student_id = $1 AND lesson_id = $2`
	var row lessonCompletionRow
	if err := sqlx.GetContext(ctx, repo.ext, &row, q, studentID, lessonID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progression.LessonCompletion{}, progression.ErrNotFound
		}
		return progression.LessonCompletion{}, errors.Wrap(err, "getting lesson completion")
	}
	return row.completion(), nil
}

func (repo *progressionRepository) ModuleLessonCompletions(ctx context.Context, studentID, moduleID int) ([]progression.LessonCompletion, error) {
	q := `SELECT ` + lessonCompletionCols + ` FROM lesson_completions
		WHERE student_id = $1 AND module_id = $2 ORDER BY id`
	var rows []lessonCompletionRow
	if err := sqlx.SelectContext(ctx, repo.ext, &rows, q, studentID, moduleID); err != nil {
		return nil, errors.Wrap(err, "querying lesson completions")
	}
	lcs := make([]progression.LessonCompletion, len(rows))
	for i, row := range rows {
		lcs[i] = row.completion()
	}
	return lcs, nil
}

func (repo *progressionRepository) SaveLessonCompletion(ctx context.Context, lc progression.LessonCompletion) (progression.LessonCompletion, error) {
	q := `INSERT INTO lesson_completions (student_id, lesson_id, module_id, reading_progress,
			engagement_score, quiz_score, assignment_score, completed, last_accessed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (student_id, lesson_id) DO UPDATE SET
			reading_progress = EXCLUDED.reading_progress,
			engagement_score = EXCLUDED.engagement_score,
			quiz_score       = EXCLUDED.quiz_score,
			assignment_score = EXCLUDED.assignment_score,
			completed        = EXCLUDED.completed,
			last_accessed    = EXCLUDED.last_accessed,
			updated_at       = EXCLUDED.updated_at
		RETURNING ` + lessonCompletionCols
	var row lessonCompletionRow
	err := sqlx.GetContext(ctx, repo.ext, &row, q,
		lc.StudentID, lc.LessonID, lc.ModuleID, lc.ReadingProgress, lc.EngagementScore,
		lc.QuizScore, lc.AssignmentScore, lc.Completed, lc.LastAccessed, time.Now().UTC(),
	)
	if err != nil {
		return progression.LessonCompletion{}, errors.Wrap(err, "saving lesson completion")
	}
	return row.completion(), nil
}

// attempts

type attemptRow struct {
	ID            int          `db:"id"`
	StudentID     int          `db:"student_id"`
	AssessmentID  int          `db:"assessment_id"`
	ModuleID      int          `db:"module_id"`
	Type          string       `db:"type"`
	Score         float64      `db:"score"`
	AttemptNumber int          `db:"attempt_number"`
	RetakeRound   int          `db:"retake_round"`
	SubmittedAt   time.Time    `db:"submitted_at"`
	GradedAt      sql.NullTime `db:"graded_at"`
}

func (row attemptRow) attempt() progression.AssessmentAttempt {
	att := progression.AssessmentAttempt{
		ID:            row.ID,
		StudentID:     row.StudentID,
		AssessmentID:  row.AssessmentID,
		ModuleID:      row.ModuleID,
		Type:          row.Type,
		Score:         row.Score,
		AttemptNumber: row.AttemptNumber,
		RetakeRound:   row.RetakeRound,
		SubmittedAt:   row.SubmittedAt.UTC(),
	}
	if row.GradedAt.Valid {
		t := row.GradedAt.Time.UTC()
		att.GradedAt = &t
	}
	return att
}

const attemptCols = `id, student_id, assessment_id, module_id, type, score,
	attempt_number, retake_round, submitted_at, graded_at`

func (repo *progressionRepository) GetAttempt(ctx context.Context, id int) (progression.AssessmentAttempt, error) {
	q := `SELECT ` + attemptCols + ` FROM assessment_attempts WHERE id = $1`
	var row attemptRow
	if err := sqlx.GetContext(ctx, repo.ext, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progression.AssessmentAttempt{}, progression.ErrNotFound
		}
		return progression.AssessmentAttempt{}, errors.Wrap(err, "getting attempt")
	}
	return row.attempt(), nil
}

func (repo *progressionRepository) ModuleAttempts(ctx context.Context, studentID, moduleID, retakeRound int) ([]progression.AssessmentAttempt, error) {
	q := `SELECT ` + attemptCols + ` FROM assessment_attempts
		WHERE student_id = $1 AND module_id = $2 AND retake_round = $3 ORDER BY id`
	return repo.selectAttempts(ctx, q, studentID, moduleID, retakeRound)
}

func (repo *progressionRepository) AllModuleAttempts(ctx context.Context, studentID, moduleID int) ([]progression.AssessmentAttempt, error) {
	q := `SELECT ` + attemptCols + ` FROM assessment_attempts
		WHERE student_id = $1 AND module_id = $2 ORDER BY retake_round, id`
	return repo.selectAttempts(ctx, q, studentID, moduleID)
}

func (repo *progressionRepository) selectAttempts(ctx context.Context, q string, args ...interface{}) ([]progression.AssessmentAttempt, error) {
	var rows []attemptRow
	if err := sqlx.SelectContext(ctx, repo.ext, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying attempts")
	}
	atts := make([]progression.AssessmentAttempt, len(rows))
	for i, row := range rows {
		atts[i] = row.attempt()
	}
	return atts, nil
}

func (repo *progressionRepository) CountAttempts(ctx context.Context, studentID, assessmentID, retakeRound int) (int, error) {
	q := `SELECT COUNT(*) FROM assessment_attempts
		WHERE student_id = $1 AND assessment_id = $2 AND retake_round = $3`
	var n int
	if err := sqlx.GetContext(ctx, repo.ext, &n, q, studentID, assessmentID, retakeRound); err != nil {
		return 0, errors.Wrap(err, "counting attempts")
	}
	return n, nil
}

func (repo *progressionRepository) CreateAttempt(ctx context.Context, att progression.AssessmentAttempt) (progression.AssessmentAttempt, error) {
	q := `INSERT INTO assessment_attempts (student_id, assessment_id, module_id, type, score,
			attempt_number, retake_round, submitted_at, graded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + attemptCols
	var row attemptRow
	err := sqlx.GetContext(ctx, repo.ext, &row, q,
		att.StudentID, att.AssessmentID, att.ModuleID, att.Type, att.Score,
		att.AttemptNumber, att.RetakeRound, att.SubmittedAt, att.GradedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return progression.AssessmentAttempt{}, core.ErrConflict
		}
		return progression.AssessmentAttempt{}, errors.Wrap(err, "creating attempt")
	}
	return row.attempt(), nil
}

func (repo *progressionRepository) UpdateAttempt(ctx context.Context, att progression.AssessmentAttempt) (progression.AssessmentAttempt, error) {
	q := `UPDATE assessment_attempts SET score = $2, graded_at = $3 WHERE id = $1
		RETURNING ` + attemptCols
	var row attemptRow
	if err := sqlx.GetContext(ctx, repo.ext, &row, q, att.ID, att.Score, att.GradedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progression.AssessmentAttempt{}, progression.ErrNotFound
		}
		return progression.AssessmentAttempt{}, errors.Wrap(err, "updating attempt")
	}
	return row.attempt(), nil
}

// module progress

type moduleProgressRow struct {
	ID              int          `db:"id"`
	EnrollmentID    int          `db:"enrollment_id"`
	StudentID       int          `db:"student_id"`
	CourseID        int          `db:"course_id"`
	ModuleID        int          `db:"module_id"`
	Status          string       `db:"status"`
	LessonScore     float64      `db:"lesson_score"`
	QuizScore       float64      `db:"quiz_score"`
	AssignmentScore float64      `db:"assignment_score"`
	FinalScore      float64      `db:"final_score"`
	WeightedScore   float64      `db:"weighted_score"`
	RetakeRound     int          `db:"retake_round"`
	RetakesUsed     int          `db:"retakes_used"`
	IsReleased      bool         `db:"is_released"`
	CompletedAt     sql.NullTime `db:"completed_at"`
	Version         int          `db:"version"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

func (row moduleProgressRow) progress() progression.ModuleProgress {
	mp := progression.ModuleProgress{
		ID:              row.ID,
		EnrollmentID:    row.EnrollmentID,
		StudentID:       row.StudentID,
		CourseID:        row.CourseID,
		ModuleID:        row.ModuleID,
		Status:          progression.Status(row.Status),
		LessonScore:     row.LessonScore,
		QuizScore:       row.QuizScore,
		AssignmentScore: row.AssignmentScore,
		FinalScore:      row.FinalScore,
		WeightedScore:   row.WeightedScore,
		RetakeRound:     row.RetakeRound,
		RetakesUsed:     row.RetakesUsed,
		IsReleased:      row.IsReleased,
		Version:         row.Version,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time.UTC()
		mp.CompletedAt = &t
	}
	return mp
}

const moduleProgressCols = `id, enrollment_id, student_id, course_id, module_id, status,
	lesson_score, quiz_score, assignment_score, final_score, weighted_score,
	retake_round, retakes_used, is_released, completed_at, version, created_at, updated_at`

func (repo *progressionRepository) GetModuleProgress(ctx context.Context, studentID, moduleID int) (progression.ModuleProgress, error) {
	q := `SELECT ` + moduleProgressCols + ` FROM module_progress WHERE student_id = $1 AND module_id = $2`
	if repo.inTx {
		q += ` FOR UPDATE`
	}
	var row moduleProgressRow
	if err := sqlx.GetContext(ctx, repo.ext, &row, q, studentID, moduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progression.ModuleProgress{}, progression.ErrNotFound
		}
		return progression.ModuleProgress{}, errors.Wrap(err, "getting module progress")
	}
	return row.progress(), nil
}

func (repo *progressionRepository) StudentCourseProgress(ctx context.Context, studentID, courseID int) ([]progression.ModuleProgress, error) {
	q := `SELECT ` + moduleProgressCols + ` FROM module_progress
		WHERE student_id = $1 AND course_id = $2 ORDER BY id`
	var rows []moduleProgressRow
	if err := sqlx.SelectContext(ctx, repo.ext, &rows, q, studentID, courseID); err != nil {
		return nil, errors.Wrap(err, "querying module progress")
	}
	mps := make([]progression.ModuleProgress, len(rows))
	for i, row := range rows {
		mps[i] = row.progress()
	}
	return mps, nil
}

func (repo *progressionRepository) CreateModuleProgress(ctx context.Context, mp progression.ModuleProgress) (progression.ModuleProgress, error) {
	q := `INSERT INTO module_progress (enrollment_id, student_id, course_id, module_id, status,
			lesson_score, quiz_score, assignment_score, final_score, weighted_score,
			retake_round, retakes_used, is_released, completed_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1, $15, $15)
		RETURNING ` + moduleProgressCols
	var row moduleProgressRow
	err := sqlx.GetContext(ctx, repo.ext, &row, q,
		mp.EnrollmentID, mp.StudentID, mp.CourseID, mp.ModuleID, string(mp.Status),
		mp.LessonScore, mp.QuizScore, mp.AssignmentScore, mp.FinalScore, mp.WeightedScore,
		mp.RetakeRound, mp.RetakesUsed, mp.IsReleased, mp.CompletedAt, time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return progression.ModuleProgress{}, core.ErrConflict
		}
		return progression.ModuleProgress{}, errors.Wrap(err, "creating module progress")
	}
	return row.progress(), nil
}

// UpdateModuleProgress compares-and-swaps on version; a stale caller gets
// core.ErrConflict and must retry from a fresh read.
func (repo *progressionRepository) UpdateModuleProgress(ctx context.Context, mp progression.ModuleProgress) (progression.ModuleProgress, error) {
	q := `UPDATE module_progress SET
			status = $3, lesson_score = $4, quiz_score = $5, assignment_score = $6,
			final_score = $7, weighted_score = $8, retake_round = $9, retakes_used = $10,
			is_released = $11, completed_at = $12, version = version + 1, updated_at = $13
		WHERE id = $1 AND version = $2
		RETURNING ` + moduleProgressCols
	var row moduleProgressRow
	err := sqlx.GetContext(ctx, repo.ext, &row, q,
		mp.ID, mp.Version, string(mp.Status), mp.LessonScore, mp.QuizScore, mp.AssignmentScore,
		mp.FinalScore, mp.WeightedScore, mp.RetakeRound, mp.RetakesUsed,
		mp.IsReleased, mp.CompletedAt, time.Now().UTC(),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progression.ModuleProgress{}, core.ErrConflict
		}
		return progression.ModuleProgress{}, errors.Wrap(err, "updating module progress")
	}
	return row.progress(), nil
}
