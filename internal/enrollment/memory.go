package enrollment

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/3boudi/student-attandence/internal/apperr"
)

// MemoryRepository is a mutex-guarded in-memory store used by tests and the
// memory store backend. It enforces the same uniqueness rule as the Postgres
// schema.
type MemoryRepository struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]Enrollment
}

// NewMemoryRepository creates an empty repo.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1, byID: make(map[int64]Enrollment)}
}

// Create inserts an enrollment, rejecting duplicate (student, module) pairs.
func (r *MemoryRepository) Create(_ context.Context, e Enrollment) (Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.StudentID == e.StudentID && existing.ModuleID == e.ModuleID {
			return Enrollment{}, fmt.Errorf("enrollment exists: %w", apperr.ErrConflict)
		}
	}
	e.ID = r.nextID
	r.nextID++
	r.byID[e.ID] = e
	return e, nil
}

// Get returns an enrollment by id.
func (r *MemoryRepository) Get(_ context.Context, id int64) (Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return Enrollment{}, fmt.Errorf("enrollment %d: %w", id, apperr.ErrNotFound)
	}
	return e, nil
}

// Find returns the enrollment for a (student, module) pair.
func (r *MemoryRepository) Find(_ context.Context, studentID, moduleID int64) (Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.byID {
		if e.StudentID == studentID && e.ModuleID == moduleID {
			return e, nil
		}
	}
	return Enrollment{}, fmt.Errorf("enrollment for student %d in module %d: %w", studentID, moduleID, apperr.ErrNotFound)
}

// ListByModule lists a module's enrollments.
func (r *MemoryRepository) ListByModule(_ context.Context, moduleID int64, includeExcluded bool) ([]Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Enrollment
	for _, e := range r.byID {
		if e.ModuleID != moduleID {
			continue
		}
		if e.IsExcluded && !includeExcluded {
			continue
		}
		out = append(out, e)
	}
	sortByID(out)
	return out, nil
}

// ListByStudent lists a student's enrollments.
func (r *MemoryRepository) ListByStudent(_ context.Context, studentID int64) ([]Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Enrollment
	for _, e := range r.byID {
		if e.StudentID == studentID {
			out = append(out, e)
		}
	}
	sortByID(out)
	return out, nil
}

// SetExcluded flips the exclusion flag.
func (r *MemoryRepository) SetExcluded(_ context.Context, id int64, excluded bool) error {
	return r.update(id, func(e *Enrollment) { e.IsExcluded = excluded })
}

// AddAbsences bumps the unjustified absence counter.
func (r *MemoryRepository) AddAbsences(_ context.Context, id int64, delta int) error {
	return r.update(id, func(e *Enrollment) { e.Absences += delta })
}

// AddJustifiedAbsences bumps the justified absence counter.
func (r *MemoryRepository) AddJustifiedAbsences(_ context.Context, id int64, delta int) error {
	return r.update(id, func(e *Enrollment) { e.JustifiedAbsences += delta })
}

func (r *MemoryRepository) update(id int64, fn func(*Enrollment)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("enrollment %d: %w", id, apperr.ErrNotFound)
	}
	fn(&e)
	r.byID[id] = e
	return nil
}

func sortByID(list []Enrollment) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}
