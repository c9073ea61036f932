package inmemdb

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/darasa/backend/core/progression"
)

// Directory is a static content/enrollment catalog; the real ones live in
// the authoring and enrollment subsystems. Tests and the demo seed fill it
// by hand.
type Directory struct {
	mu          sync.RWMutex
	courses     map[int]progression.Course
	modules     map[int]progression.Module
	enrollments []progression.Enrollment
}

var (
	_ progression.ContentDirectory    = (*Directory)(nil)
	_ progression.EnrollmentDirectory = (*Directory)(nil)
)

func NewDirectory() *Directory {
	return &Directory{
		courses: make(map[int]progression.Course),
		modules: make(map[int]progression.Module),
	}
}

func (d *Directory) AddCourse(c progression.Course) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.courses[c.ID] = c
}

func (d *Directory) AddModule(m progression.Module) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modules[m.ID] = m
}

func (d *Directory) AddEnrollment(e progression.Enrollment) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enrollments = append(d.enrollments, e)
}

func (d *Directory) Course(ctx context.Context, id int) (progression.Course, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if c, ok := d.courses[id]; ok {
		return c, nil
	}
	return progression.Course{}, errors.Errorf("course %d not found", id)
}

func (d *Directory) CourseModules(ctx context.Context, courseID int) ([]progression.Module, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]progression.Module, 0)
	for _, m := range d.modules {
		if m.CourseID == courseID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func (d *Directory) Module(ctx context.Context, id int) (progression.Module, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if m, ok := d.modules[id]; ok {
		return m, nil
	}
	return progression.Module{}, errors.Errorf("module %d not found", id)
}

func (d *Directory) Assessment(ctx context.Context, id int) (progression.Assessment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, m := range d.modules {
		if a, ok := m.Assessment(id); ok {
			return a, nil
		}
	}
	return progression.Assessment{}, errors.Errorf("assessment %d not found", id)
}

func (d *Directory) LessonModule(ctx context.Context, lessonID int) (progression.Module, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, m := range d.modules {
		for _, id := range m.LessonIDs {
			if id == lessonID {
				return m, nil
			}
		}
	}
	return progression.Module{}, errors.Errorf("lesson %d not found", lessonID)
}

func (d *Directory) Enrollment(ctx context.Context, studentID, courseID int) (progression.Enrollment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, e := range d.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID {
			return e, nil
		}
	}
	return progression.Enrollment{}, errors.Errorf("enrollment (%d, %d) not found", studentID, courseID)
}

func (d *Directory) ActiveEnrollments(ctx context.Context) ([]progression.Enrollment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]progression.Enrollment, 0, len(d.enrollments))
	for _, e := range d.enrollments {
		if e.Active {
			out = append(out, e)
		}
	}
	return out, nil
}
