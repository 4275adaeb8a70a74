package roster

import (
	"context"
	"errors"
	"testing"

	"github.com/3boudi/student-attandence/internal/apperr"
	"github.com/3boudi/student-attandence/internal/enrollment"
)

func newTestService(t *testing.T) (*Service, *MemoryRepository, *enrollment.MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	enrRepo := enrollment.NewMemoryRepository()
	return NewService(repo, enrollment.NewService(enrRepo)), repo, enrRepo
}

func TestAddStudentAutoEnrolls(t *testing.T) {
	ctx := context.Background()
	svc, _, enrRepo := newTestService(t)

	sp, err := svc.CreateSpecialty(ctx, "Computer Science", 2)
	if err != nil {
		t.Fatalf("CreateSpecialty: %v", err)
	}
	for _, name := range []string{"Algorithms", "Databases"} {
		if _, _, err := svc.CreateModule(ctx, sp.ID, name, ""); err != nil {
			t.Fatalf("CreateModule %s: %v", name, err)
		}
	}

	st, enrolled, err := svc.AddStudent(ctx, 100, sp.ID, "Sami B", "sami@example.edu")
	if err != nil {
		t.Fatalf("AddStudent: %v", err)
	}
	if enrolled != 2 {
		t.Fatalf("enrolled = %d, want 2", enrolled)
	}
	list, err := enrRepo.ListByStudent(ctx, st.ID)
	if err != nil {
		t.Fatalf("ListByStudent: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("enrollments = %d, want 2", len(list))
	}
}

func TestCreateModuleBackFills(t *testing.T) {
	ctx := context.Background()
	svc, _, enrRepo := newTestService(t)

	sp, err := svc.CreateSpecialty(ctx, "Mathematics", 1)
	if err != nil {
		t.Fatalf("CreateSpecialty: %v", err)
	}
	var students []Student
	for i := 0; i < 3; i++ {
		st, _, err := svc.AddStudent(ctx, int64(200+i), sp.ID, "Student", "s@example.edu")
		if err != nil {
			t.Fatalf("AddStudent: %v", err)
		}
		students = append(students, st)
	}

	_, enrolled, err := svc.CreateModule(ctx, sp.ID, "Analysis", "MA101")
	if err != nil {
		t.Fatalf("CreateModule: %v", err)
	}
	if enrolled != 3 {
		t.Fatalf("back-filled = %d, want 3", enrolled)
	}
	for _, st := range students {
		list, err := enrRepo.ListByStudent(ctx, st.ID)
		if err != nil {
			t.Fatalf("ListByStudent: %v", err)
		}
		if len(list) != 1 {
			t.Fatalf("student %d has %d enrollments, want 1", st.ID, len(list))
		}
	}
}

func TestAddStudentUnknownSpecialty(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	if _, _, err := svc.AddStudent(ctx, 1, 999, "X", "x@example.edu"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAssignTeacherDuplicate(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	sp, err := svc.CreateSpecialty(ctx, "Physics", 3)
	if err != nil {
		t.Fatalf("CreateSpecialty: %v", err)
	}
	m, _, err := svc.CreateModule(ctx, sp.ID, "Optics", "PH301")
	if err != nil {
		t.Fatalf("CreateModule: %v", err)
	}
	teacher, err := svc.AddTeacher(ctx, 300, "Dr. N", "n@example.edu")
	if err != nil {
		t.Fatalf("AddTeacher: %v", err)
	}

	if _, err := svc.AssignTeacher(ctx, teacher.ID, m.ID); err != nil {
		t.Fatalf("AssignTeacher: %v", err)
	}
	if _, err := svc.AssignTeacher(ctx, teacher.ID, m.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}
