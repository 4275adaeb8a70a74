package enrollment

import (
	"context"
	"errors"
	"testing"

	"github.com/3boudi/student-attandence/internal/apperr"
)

func TestReconcileIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())

	created, err := svc.Reconcile(ctx, 1, []int64{10, 11, 12})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if created != 3 {
		t.Fatalf("created = %d, want 3", created)
	}

	// Running again with an overlapping set only fills the gap.
	created, err = svc.Reconcile(ctx, 1, []int64{10, 11, 12, 13})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}

	list, err := svc.ForStudent(ctx, 1)
	if err != nil {
		t.Fatalf("ForStudent: %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("enrollments = %d, want 4", len(list))
	}
}

func TestReconcileModule(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	svc := NewService(repo)

	if _, err := svc.Reconcile(ctx, 1, []int64{10}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	created, err := svc.ReconcileModule(ctx, 10, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("ReconcileModule: %v", err)
	}
	if created != 2 {
		t.Fatalf("created = %d, want 2", created)
	}
	for _, studentID := range []int64{1, 2, 3} {
		if _, err := repo.Find(ctx, studentID, 10); err != nil {
			t.Fatalf("student %d not enrolled: %v", studentID, err)
		}
	}
}

func TestSetExcluded(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	svc := NewService(repo)

	e, err := repo.Create(ctx, Enrollment{StudentID: 1, ModuleID: 10})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := svc.SetExcluded(ctx, e.ID, true)
	if err != nil {
		t.Fatalf("SetExcluded: %v", err)
	}
	if !got.IsExcluded {
		t.Fatal("IsExcluded not set")
	}

	// Excluded enrollments drop out of the default module listing.
	list, err := repo.ListByModule(ctx, 10, false)
	if err != nil {
		t.Fatalf("ListByModule: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("listing = %d enrollments, want 0", len(list))
	}

	if _, err := svc.SetExcluded(ctx, 999, true); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	if _, err := repo.Create(ctx, Enrollment{StudentID: 1, ModuleID: 10}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.Create(ctx, Enrollment{StudentID: 1, ModuleID: 10}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}
