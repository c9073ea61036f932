package inmemdb

import (
	"context"
	"sort"

	"github.com/darasa/backend/core/suspension"
)

type suspensionRepository struct {
	db *DB
}

func NewSuspensionRepository(db *DB) suspension.Repository {
	return &suspensionRepository{db: db}
}

func (repo *suspensionRepository) GetByID(ctx context.Context, id int) (suspension.Suspension, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if s, ok := repo.db.suspensions[id]; ok {
		return s, nil
	}
	return suspension.Suspension{}, suspension.ErrNotFound
}

func (repo *suspensionRepository) GetActive(ctx context.Context, studentID, courseID int) (suspension.Suspension, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	ids := make([]int, 0, len(repo.db.suspensions))
	for id := range repo.db.suspensions {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		s := repo.db.suspensions[id]
		if s.StudentID == studentID && s.CourseID == courseID && s.Active {
			return s, nil
		}
	}
	return suspension.Suspension{}, suspension.ErrNotFound
}

func (repo *suspensionRepository) Create(ctx context.Context, s suspension.Suspension) (suspension.Suspension, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	s.ID = repo.db.nextPK()
	repo.db.suspensions[s.ID] = s
	return s, nil
}

func (repo *suspensionRepository) Update(ctx context.Context, s suspension.Suspension) (suspension.Suspension, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if _, ok := repo.db.suspensions[s.ID]; !ok {
		return suspension.Suspension{}, suspension.ErrNotFound
	}
	repo.db.suspensions[s.ID] = s
	return s, nil
}
