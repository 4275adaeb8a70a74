package roster

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/3boudi/student-attandence/internal/apperr"
)

// MemoryRepository is the in-memory roster used by tests and the memory
// store backend.
type MemoryRepository struct {
	mu sync.Mutex

	nextID         int64
	specialties    map[int64]Specialty
	students       map[int64]Student
	teachers       map[int64]Teacher
	modules        map[int64]Module
	teacherModules map[int64]TeacherModule
}

// NewMemoryRepository creates an empty roster.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nextID:         1,
		specialties:    make(map[int64]Specialty),
		students:       make(map[int64]Student),
		teachers:       make(map[int64]Teacher),
		modules:        make(map[int64]Module),
		teacherModules: make(map[int64]TeacherModule),
	}
}

func (r *MemoryRepository) id() int64 {
	id := r.nextID
	r.nextID++
	return id
}

// CreateSpecialty inserts a specialty.
func (r *MemoryRepository) CreateSpecialty(_ context.Context, s Specialty) (Specialty, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = r.id()
	r.specialties[s.ID] = s
	return s, nil
}

// GetSpecialty returns a specialty by id.
func (r *MemoryRepository) GetSpecialty(_ context.Context, id int64) (Specialty, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.specialties[id]
	if !ok {
		return Specialty{}, fmt.Errorf("specialty %d: %w", id, apperr.ErrNotFound)
	}
	return s, nil
}

// CreateStudent inserts a student.
func (r *MemoryRepository) CreateStudent(_ context.Context, s Student) (Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = r.id()
	r.students[s.ID] = s
	return s, nil
}

// GetStudent returns a student by id.
func (r *MemoryRepository) GetStudent(_ context.Context, id int64) (Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.students[id]
	if !ok {
		return Student{}, fmt.Errorf("student %d: %w", id, apperr.ErrNotFound)
	}
	return s, nil
}

// ListStudentsBySpecialty lists students under a specialty.
func (r *MemoryRepository) ListStudentsBySpecialty(_ context.Context, specialtyID int64) ([]Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Student
	for _, s := range r.students {
		if s.SpecialtyID == specialtyID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateTeacher inserts a teacher.
func (r *MemoryRepository) CreateTeacher(_ context.Context, t Teacher) (Teacher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = r.id()
	r.teachers[t.ID] = t
	return t, nil
}

// GetTeacher returns a teacher by id.
func (r *MemoryRepository) GetTeacher(_ context.Context, id int64) (Teacher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.teachers[id]
	if !ok {
		return Teacher{}, fmt.Errorf("teacher %d: %w", id, apperr.ErrNotFound)
	}
	return t, nil
}

// CreateModule inserts a module.
func (r *MemoryRepository) CreateModule(_ context.Context, m Module) (Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = r.id()
	r.modules[m.ID] = m
	return m, nil
}

// GetModule returns a module by id.
func (r *MemoryRepository) GetModule(_ context.Context, id int64) (Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.modules[id]
	if !ok {
		return Module{}, fmt.Errorf("module %d: %w", id, apperr.ErrNotFound)
	}
	return m, nil
}

// ListModulesBySpecialty lists a specialty's modules.
func (r *MemoryRepository) ListModulesBySpecialty(_ context.Context, specialtyID int64) ([]Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Module
	for _, m := range r.modules {
		if m.SpecialtyID == specialtyID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AssignTeacher inserts an assignment, rejecting duplicate pairs.
func (r *MemoryRepository) AssignTeacher(_ context.Context, tm TeacherModule) (TeacherModule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.teacherModules {
		if existing.TeacherID == tm.TeacherID && existing.ModuleID == tm.ModuleID {
			return TeacherModule{}, fmt.Errorf("assignment exists: %w", apperr.ErrConflict)
		}
	}
	tm.ID = r.id()
	r.teacherModules[tm.ID] = tm
	return tm, nil
}

// GetTeacherModule returns an assignment by id.
func (r *MemoryRepository) GetTeacherModule(_ context.Context, id int64) (TeacherModule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tm, ok := r.teacherModules[id]
	if !ok {
		return TeacherModule{}, fmt.Errorf("teacher-module %d: %w", id, apperr.ErrNotFound)
	}
	return tm, nil
}

// FindTeacherModule returns the assignment for a (teacher, module) pair.
func (r *MemoryRepository) FindTeacherModule(_ context.Context, teacherID, moduleID int64) (TeacherModule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tm := range r.teacherModules {
		if tm.TeacherID == teacherID && tm.ModuleID == moduleID {
			return tm, nil
		}
	}
	return TeacherModule{}, fmt.Errorf("teacher %d is not assigned to module %d: %w", teacherID, moduleID, apperr.ErrNotFound)
}

// ListTeacherModules lists a teacher's assignments.
func (r *MemoryRepository) ListTeacherModules(_ context.Context, teacherID int64) ([]TeacherModule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []TeacherModule
	for _, tm := range r.teacherModules {
		if tm.TeacherID == teacherID {
			out = append(out, tm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
