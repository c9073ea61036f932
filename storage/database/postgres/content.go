package postgresdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/darasa/backend/core/progression"
)

// Directory serves content and enrollment metadata from the mirrored
// collaborator tables.
type Directory struct {
	db *sqlx.DB
}

var (
	_ progression.ContentDirectory    = (*Directory)(nil)
	_ progression.EnrollmentDirectory = (*Directory)(nil)
)

func NewDirectory(db *sqlx.DB) *Directory {
	return &Directory{db: db}
}

type courseRow struct {
	ID                  int       `db:"id"`
	Title               string    `db:"title"`
	StartDate           time.Time `db:"start_date"`
	ReleaseIntervalDays int       `db:"release_interval_days"`
	RetakeLimit         int       `db:"retake_limit"`
	SuspensionThreshold int       `db:"suspension_threshold"`
}

type moduleRow struct {
	ID        int          `db:"id"`
	CourseID  int          `db:"course_id"`
	Title     string       `db:"title"`
	Ordinal   int          `db:"ordinal"`
	ReleaseAt sql.NullTime `db:"release_at"`
}

type assessmentRow struct {
	ID          int    `db:"id"`
	ModuleID    int    `db:"module_id"`
	Type        string `db:"type"`
	Required    bool   `db:"required"`
	MaxAttempts int    `db:"max_attempts"`
}

func (dir *Directory) Course(ctx context.Context, id int) (progression.Course, error) {
	q := `SELECT id, title, start_date, release_interval_days, retake_limit, suspension_threshold
		FROM courses WHERE id = $1`
	var row courseRow
	if err := dir.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progression.Course{}, errors.Errorf("course %d not found", id)
		}
		return progression.Course{}, errors.Wrap(err, "getting course")
	}
	return progression.Course{
		ID:                  row.ID,
		Title:               row.Title,
		StartDate:           row.StartDate.UTC(),
		ReleaseIntervalDays: row.ReleaseIntervalDays,
		RetakeLimit:         row.RetakeLimit,
		SuspensionThreshold: row.SuspensionThreshold,
	}, nil
}

func (dir *Directory) CourseModules(ctx context.Context, courseID int) ([]progression.Module, error) {
	q := `SELECT id, course_id, title, ordinal, release_at FROM modules
		WHERE course_id = $1 ORDER BY ordinal`
	var rows []moduleRow
	if err := dir.db.SelectContext(ctx, &rows, q, courseID); err != nil {
		return nil, errors.Wrap(err, "querying modules")
	}
	mods := make([]progression.Module, len(rows))
	for i, row := range rows {
		mod, err := dir.assemble(ctx, row)
		if err != nil {
			return nil, err
		}
		mods[i] = mod
	}
	return mods, nil
}

func (dir *Directory) Module(ctx context.Context, id int) (progression.Module, error) {
	q := `SELECT id, course_id, title, ordinal, release_at FROM modules WHERE id = $1`
	var row moduleRow
	if err := dir.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progression.Module{}, errors.Errorf("module %d not found", id)
		}
		return progression.Module{}, errors.Wrap(err, "getting module")
	}
	return dir.assemble(ctx, row)
}

func (dir *Directory) Assessment(ctx context.Context, id int) (progression.Assessment, error) {
	q := `SELECT id, module_id, type, required, max_attempts FROM assessments WHERE id = $1`
	var row assessmentRow
	if err := dir.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progression.Assessment{}, errors.Errorf("assessment %d not found", id)
		}
		return progression.Assessment{}, errors.Wrap(err, "getting assessment")
	}
	return progression.Assessment{
		ID:          row.ID,
		ModuleID:    row.ModuleID,
		Type:        row.Type,
		Required:    row.Required,
		MaxAttempts: row.MaxAttempts,
	}, nil
}

func (dir *Directory) LessonModule(ctx context.Context, lessonID int) (progression.Module, error) {
	q := `SELECT m.id, m.course_id, m.title, m.ordinal, m.release_at
		FROM modules m JOIN lessons l ON l.module_id = m.id WHERE l.id = $1`
	var row moduleRow
	if err := dir.db.GetContext(ctx, &row, q, lessonID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progression.Module{}, errors.Errorf("lesson %d not found", lessonID)
		}
		return progression.Module{}, errors.Wrap(err, "getting lesson module")
	}
	return dir.assemble(ctx, row)
}

func (dir *Directory) assemble(ctx context.Context, row moduleRow) (progression.Module, error) {
	mod := progression.Module{
		ID:       row.ID,
		CourseID: row.CourseID,
		Title:    row.Title,
		Ordinal:  row.Ordinal,
	}
	if row.ReleaseAt.Valid {
		t := row.ReleaseAt.Time.UTC()
		mod.ReleaseAt = &t
	}

	if err := dir.db.SelectContext(ctx, &mod.LessonIDs,
		`SELECT id FROM lessons WHERE module_id = $1 ORDER BY id`, row.ID); err != nil {
		return progression.Module{}, errors.Wrap(err, "querying lessons")
	}

	var assRows []assessmentRow
	if err := dir.db.SelectContext(ctx, &assRows,
		`SELECT id, module_id, type, required, max_attempts FROM assessments WHERE module_id = $1 ORDER BY id`, row.ID); err != nil {
		return progression.Module{}, errors.Wrap(err, "querying assessments")
	}
	mod.Assessments = make([]progression.Assessment, len(assRows))
	for i, ar := range assRows {
		mod.Assessments[i] = progression.Assessment{
			ID:          ar.ID,
			ModuleID:    ar.ModuleID,
			Type:        ar.Type,
			Required:    ar.Required,
			MaxAttempts: ar.MaxAttempts,
		}
	}
	return mod, nil
}

type enrollmentRow struct {
	ID        int  `db:"id"`
	StudentID int  `db:"student_id"`
	CourseID  int  `db:"course_id"`
	Active    bool `db:"active"`
}

func (row enrollmentRow) enrollment() progression.Enrollment {
	return progression.Enrollment{ID: row.ID, StudentID: row.StudentID, CourseID: row.CourseID, Active: row.Active}
}

func (dir *Directory) Enrollment(ctx context.Context, studentID, courseID int) (progression.Enrollment, error) {
	q := `SELECT id, student_id, course_id, active FROM enrollments
		WHERE student_id = $1 AND course_id = $2`
	var row enrollmentRow
	if err := dir.db.GetContext(ctx, &row, q, studentID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progression.Enrollment{}, errors.Errorf("enrollment (student %d, course %d) not found", studentID, courseID)
		}
		return progression.Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	return row.enrollment(), nil
}

func (dir *Directory) ActiveEnrollments(ctx context.Context) ([]progression.Enrollment, error) {
	q := `SELECT id, student_id, course_id, active FROM enrollments WHERE active ORDER BY id`
	var rows []enrollmentRow
	if err := dir.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	enrs := make([]progression.Enrollment, len(rows))
	for i, row := range rows {
		enrs[i] = row.enrollment()
	}
	return enrs, nil
}
