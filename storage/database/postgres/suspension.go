package postgresdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/darasa/backend/core/suspension"
)

type suspensionRepository struct {
	db *sqlx.DB
}

var _ suspension.Repository = (*suspensionRepository)(nil)

func NewSuspensionRepository(db *sqlx.DB) *suspensionRepository {
	return &suspensionRepository{db: db}
}

type suspensionRow struct {
	ID           int          `db:"id"`
	StudentID    int          `db:"student_id"`
	CourseID     int          `db:"course_id"`
	EnrollmentID int          `db:"enrollment_id"`
	Reason       string       `db:"reason"`
	SuspendedBy  string       `db:"suspended_by"`
	SuspendedAt  time.Time    `db:"suspended_at"`
	AppealText   string       `db:"appeal_text"`
	AppealStatus string       `db:"appeal_status"`
	ResolvedBy   int          `db:"resolved_by"`
	ResolvedAt   sql.NullTime `db:"resolved_at"`
	Active       bool         `db:"active"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

func (row suspensionRow) suspension() suspension.Suspension {
	s := suspension.Suspension{
		ID:           row.ID,
		StudentID:    row.StudentID,
		CourseID:     row.CourseID,
		EnrollmentID: row.EnrollmentID,
		Reason:       row.Reason,
		SuspendedBy:  row.SuspendedBy,
		SuspendedAt:  row.SuspendedAt.UTC(),
		AppealText:   row.AppealText,
		AppealStatus: suspension.AppealStatus(row.AppealStatus),
		ResolvedBy:   row.ResolvedBy,
		Active:       row.Active,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.ResolvedAt.Valid {
		t := row.ResolvedAt.Time.UTC()
		s.ResolvedAt = &t
	}
	return s
}

const suspensionCols = `id, student_id, course_id, enrollment_id, reason, suspended_by,
	suspended_at, appeal_text, appeal_status, resolved_by, resolved_at, active, created_at, updated_at`

func (repo *suspensionRepository) GetByID(ctx context.Context, id int) (suspension.Suspension, error) {
	q := `SELECT ` + suspensionCols + ` FROM suspensions WHERE id = $1`
	var row suspensionRow
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return suspension.Suspension{}, suspension.ErrNotFound
		}
		return suspension.Suspension{}, errors.Wrap(err, "getting suspension")
	}
	return row.suspension(), nil
}

func (repo *suspensionRepository) GetActive(ctx context.Context, studentID, courseID int) (suspension.Suspension, error) {
	q := `SELECT ` + suspensionCols + ` FROM suspensions
		WHERE student_id = $1 AND course_id = $2 AND active`
	var row suspensionRow
	if err := repo.db.GetContext(ctx, &row, q, studentID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return suspension.Suspension{}, suspension.ErrNotFound
		}
		return suspension.Suspension{}, errors.Wrap(err, "getting active suspension")
	}
	return row.suspension(), nil
}

func (repo *suspensionRepository) Create(ctx context.Context, s suspension.Suspension) (suspension.Suspension, error) {
	q := `INSERT INTO suspensions (student_id, course_id, enrollment_id, reason, suspended_by,
			suspended_at, appeal_text, appeal_status, resolved_by, resolved_at, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING ` + suspensionCols
	var row suspensionRow
	err := repo.db.GetContext(ctx, &row, q,
		s.StudentID, s.CourseID, s.EnrollmentID, s.Reason, s.SuspendedBy,
		s.SuspendedAt, s.AppealText, string(s.AppealStatus), s.ResolvedBy, s.ResolvedAt,
		s.Active, time.Now().UTC(),
	)
	if err != nil {
		return suspension.Suspension{}, errors.Wrap(err, "creating suspension")
	}
	return row.suspension(), nil
}

func (repo *suspensionRepository) Update(ctx context.Context, s suspension.Suspension) (suspension.Suspension, error) {
	q := `UPDATE suspensions SET
			appeal_text = $2, appeal_status = $3, resolved_by = $4, resolved_at = $5,
			active = $6, updated_at = $7
		WHERE id = $1
		RETURNING ` + suspensionCols
	var row suspensionRow
	err := repo.db.GetContext(ctx, &row, q,
		s.ID, s.AppealText, string(s.AppealStatus), s.ResolvedBy, s.ResolvedAt,
		s.Active, time.Now().UTC(),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return suspension.Suspension{}, suspension.ErrNotFound
		}
		return suspension.Suspension{}, errors.Wrap(err, "updating suspension")
	}
	return row.suspension(), nil
}
