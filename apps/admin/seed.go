package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/darasa/backend/core/progression"
)

// seed loads a small demo course so the API can be exercised locally:
// a 3-module course (weekly releases), lessons and a quiz/assignment/final
// per module, and one enrolled student.
func (cli *commandLine) seed(ctx context.Context) error {
	tx, err := cli.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "seed: beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	start := time.Now().UTC().Truncate(24 * time.Hour)

	var courseID int
	err = tx.GetContext(ctx, &courseID,
		`INSERT INTO courses (title, start_date, release_interval_days) VALUES ($1, $2, 7) RETURNING id`,
		"Introduction to Marine Biology", start)
	if err != nil {
		return errors.Wrap(err, "seed: creating course")
	}

	for ord := 1; ord <= 3; ord++ {
		var moduleID int
		err = tx.GetContext(ctx, &moduleID,
			`INSERT INTO modules (course_id, title, ordinal) VALUES ($1, $2, $3) RETURNING id`,
			courseID, fmt.Sprintf("Module %d", ord), ord)
		if err != nil {
			return errors.Wrap(err, "seed: creating module")
		}

		for i := 0; i < 4; i++ {
			if _, err = tx.ExecContext(ctx, `INSERT INTO lessons (module_id) VALUES ($1)`, moduleID); err != nil {
				return errors.Wrap(err, "seed: creating lesson")
			}
		}
		for _, typ := range []string{progression.AssessmentQuiz, progression.AssessmentAssignment, progression.AssessmentFinal} {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO assessments (module_id, type, required) VALUES ($1, $2, TRUE)`, moduleID, typ); err != nil {
				return errors.Wrap(err, "seed: creating assessment")
			}
		}
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO enrollments (student_id, course_id) VALUES (1, $1)`, courseID); err != nil {
		return errors.Wrap(err, "seed: creating enrollment")
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "seed: committing")
	}
	fmt.Printf("seeded course %d with 3 modules and student 1 enrolled\n", courseID)
	return nil
}
