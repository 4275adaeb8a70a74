// Package roster holds the people and course structure the attendance
// lifecycle hangs off: students, teachers, modules, specialties, and
// teacher-module assignments.
package roster

import (
	"context"
	"fmt"

	"github.com/3boudi/student-attandence/internal/apperr"
	"github.com/3boudi/student-attandence/internal/enrollment"
)

// Student is a student profile. UserID points at the identity account used
// for auth and notifications.
type Student struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"user_id"`
	SpecialtyID int64  `json:"specialty_id"`
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
}

// Teacher is a teacher profile.
type Teacher struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"user_id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// Module is a taught unit belonging to a specialty.
type Module struct {
	ID          int64  `json:"id"`
	SpecialtyID int64  `json:"specialty_id"`
	Name        string `json:"name"`
	Code        string `json:"code"`
}

// Specialty groups students and modules.
type Specialty struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	YearLevel int    `json:"year_level"`
}

// TeacherModule assigns a teacher to a module. Sessions reference the
// assignment, not the teacher or module directly.
type TeacherModule struct {
	ID        int64 `json:"id"`
	TeacherID int64 `json:"teacher_id"`
	ModuleID  int64 `json:"module_id"`
}

// Repository persists the roster.
type Repository interface {
	CreateSpecialty(ctx context.Context, s Specialty) (Specialty, error)
	GetSpecialty(ctx context.Context, id int64) (Specialty, error)

	CreateStudent(ctx context.Context, s Student) (Student, error)
	GetStudent(ctx context.Context, id int64) (Student, error)
	ListStudentsBySpecialty(ctx context.Context, specialtyID int64) ([]Student, error)

	CreateTeacher(ctx context.Context, t Teacher) (Teacher, error)
	GetTeacher(ctx context.Context, id int64) (Teacher, error)

	CreateModule(ctx context.Context, m Module) (Module, error)
	GetModule(ctx context.Context, id int64) (Module, error)
	ListModulesBySpecialty(ctx context.Context, specialtyID int64) ([]Module, error)

	AssignTeacher(ctx context.Context, tm TeacherModule) (TeacherModule, error)
	GetTeacherModule(ctx context.Context, id int64) (TeacherModule, error)
	FindTeacherModule(ctx context.Context, teacherID, moduleID int64) (TeacherModule, error)
	ListTeacherModules(ctx context.Context, teacherID int64) ([]TeacherModule, error)
}

// Service implements admin roster management. Enrollment fan-out runs
// through the registry's idempotent reconciliation, in both directions:
// adding a student enrolls them in every module of their specialty, and
// adding a module back-fills enrollments for the specialty's students.
type Service struct {
	repo        Repository
	enrollments *enrollment.Service
}

// NewService creates the roster service.
func NewService(repo Repository, enrollments *enrollment.Service) *Service {
	return &Service{repo: repo, enrollments: enrollments}
}

// CreateSpecialty registers a specialty.
func (s *Service) CreateSpecialty(ctx context.Context, name string, yearLevel int) (Specialty, error) {
	if name == "" {
		return Specialty{}, fmt.Errorf("specialty name required: %w", apperr.ErrInvalid)
	}
	return s.repo.CreateSpecialty(ctx, Specialty{Name: name, YearLevel: yearLevel})
}

// AddStudent creates a student profile and enrolls them in every module of
// the chosen specialty.
func (s *Service) AddStudent(ctx context.Context, userID, specialtyID int64, fullName, email string) (Student, int, error) {
	if _, err := s.repo.GetSpecialty(ctx, specialtyID); err != nil {
		return Student{}, 0, err
	}
	student, err := s.repo.CreateStudent(ctx, Student{
		UserID:      userID,
		SpecialtyID: specialtyID,
		FullName:    fullName,
		Email:       email,
	})
	if err != nil {
		return Student{}, 0, err
	}
	modules, err := s.repo.ListModulesBySpecialty(ctx, specialtyID)
	if err != nil {
		return Student{}, 0, err
	}
	ids := make([]int64, 0, len(modules))
	for _, m := range modules {
		ids = append(ids, m.ID)
	}
	enrolled, err := s.enrollments.Reconcile(ctx, student.ID, ids)
	if err != nil {
		return Student{}, 0, fmt.Errorf("auto-enroll student %d: %w", student.ID, err)
	}
	return student, enrolled, nil
}

// AddTeacher creates a teacher profile.
func (s *Service) AddTeacher(ctx context.Context, userID int64, fullName, email string) (Teacher, error) {
	return s.repo.CreateTeacher(ctx, Teacher{UserID: userID, FullName: fullName, Email: email})
}

// CreateModule registers a module and back-fills enrollments for students
// already in the specialty.
func (s *Service) CreateModule(ctx context.Context, specialtyID int64, name, code string) (Module, int, error) {
	if _, err := s.repo.GetSpecialty(ctx, specialtyID); err != nil {
		return Module{}, 0, err
	}
	module, err := s.repo.CreateModule(ctx, Module{SpecialtyID: specialtyID, Name: name, Code: code})
	if err != nil {
		return Module{}, 0, err
	}
	students, err := s.repo.ListStudentsBySpecialty(ctx, specialtyID)
	if err != nil {
		return Module{}, 0, err
	}
	ids := make([]int64, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
	}
	enrolled, err := s.enrollments.ReconcileModule(ctx, module.ID, ids)
	if err != nil {
		return Module{}, 0, fmt.Errorf("back-fill module %d: %w", module.ID, err)
	}
	return module, enrolled, nil
}

// AssignTeacher links a teacher to a module. The pair is unique.
func (s *Service) AssignTeacher(ctx context.Context, teacherID, moduleID int64) (TeacherModule, error) {
	if _, err := s.repo.GetTeacher(ctx, teacherID); err != nil {
		return TeacherModule{}, err
	}
	if _, err := s.repo.GetModule(ctx, moduleID); err != nil {
		return TeacherModule{}, err
	}
	return s.repo.AssignTeacher(ctx, TeacherModule{TeacherID: teacherID, ModuleID: moduleID})
}
