// Package inmemdb provides in-memory implementations of the engine's store
// contracts; used by tests and local development.
package inmemdb

import (
	"sync"

	"github.com/darasa/backend/core/progression"
	"github.com/darasa/backend/core/suspension"
)

type DB struct {
	mu sync.Mutex // serializes Atomic blocks and individual ops

	completions map[int]progression.LessonCompletion
	attempts    map[int]progression.AssessmentAttempt
	progress    map[int]progression.ModuleProgress
	suspensions map[int]suspension.Suspension

	lastPK int
}

func Open() (*DB, error) {
	return &DB{
		completions: make(map[int]progression.LessonCompletion),
		attempts:    make(map[int]progression.AssessmentAttempt),
		progress:    make(map[int]progression.ModuleProgress),
		suspensions: make(map[int]suspension.Suspension),
	}, nil
}

func (db *DB) nextPK() int {
	db.lastPK++
	return db.lastPK
}

type snapshot struct {
	completions map[int]progression.LessonCompletion
	attempts    map[int]progression.AssessmentAttempt
	progress    map[int]progression.ModuleProgress
	suspensions map[int]suspension.Suspension
	lastPK      int
}

func (db *DB) snapshot() snapshot {
	snap := snapshot{
		completions: make(map[int]progression.LessonCompletion, len(db.completions)),
		attempts:    make(map[int]progression.AssessmentAttempt, len(db.attempts)),
		progress:    make(map[int]progression.ModuleProgress, len(db.progress)),
		suspensions: make(map[int]suspension.Suspension, len(db.suspensions)),
		lastPK:      db.lastPK,
	}
	for k, v := range db.completions {
		snap.completions[k] = v
	}
	for k, v := range db.attempts {
		snap.attempts[k] = v
	}
	for k, v := range db.progress {
		snap.progress[k] = v
	}
	for k, v := range db.suspensions {
		snap.suspensions[k] = v
	}
	return snap
}

func (db *DB) restore(snap snapshot) {
	db.completions = snap.completions
	db.attempts = snap.attempts
	db.progress = snap.progress
	db.suspensions = snap.suspensions
	db.lastPK = snap.lastPK
}
