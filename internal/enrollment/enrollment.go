// Package enrollment is the registry of which students sit in which modules,
// with per-enrollment absence counters and the exclusion flag.
package enrollment

import (
	"context"
	"errors"
	"fmt"

	"github.com/3boudi/student-attandence/internal/apperr"
)

// Enrollment ties a student to a module. The (StudentID, ModuleID) pair is
// unique. Once IsExcluded is true the student can no longer mark attendance
// in that module.
type Enrollment struct {
	ID                int64 `json:"id"`
	StudentID         int64 `json:"student_id"`
	ModuleID          int64 `json:"module_id"`
	IsExcluded        bool  `json:"is_excluded"`
	Absences          int   `json:"number_of_absences"`
	JustifiedAbsences int   `json:"number_of_absences_justified"`
}

// Repository persists enrollments.
type Repository interface {
	Create(ctx context.Context, e Enrollment) (Enrollment, error)
	Get(ctx context.Context, id int64) (Enrollment, error)
	Find(ctx context.Context, studentID, moduleID int64) (Enrollment, error)
	ListByModule(ctx context.Context, moduleID int64, includeExcluded bool) ([]Enrollment, error)
	ListByStudent(ctx context.Context, studentID int64) ([]Enrollment, error)
	SetExcluded(ctx context.Context, id int64, excluded bool) error
	AddAbsences(ctx context.Context, id int64, delta int) error
	AddJustifiedAbsences(ctx context.Context, id int64, delta int) error
}

// Service exposes registry operations. It is stateless; all mutable state
// lives in the repository.
type Service struct {
	repo Repository
}

// NewService creates the registry service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Reconcile ensures the student holds one enrollment per given module.
// Existing pairs are left untouched, so the call is idempotent and safe to
// run both at student-creation and at module-creation time. Returns the
// number of enrollments created.
func (s *Service) Reconcile(ctx context.Context, studentID int64, moduleIDs []int64) (int, error) {
	created := 0
	for _, moduleID := range moduleIDs {
		_, err := s.repo.Find(ctx, studentID, moduleID)
		if err == nil {
			continue
		}
		if !isNotFound(err) {
			return created, fmt.Errorf("reconcile student %d module %d: %w", studentID, moduleID, err)
		}
		_, err = s.repo.Create(ctx, Enrollment{StudentID: studentID, ModuleID: moduleID})
		if err != nil {
			// A concurrent reconcile may have won the insert; that still
			// satisfies the postcondition.
			if isConflict(err) {
				continue
			}
			return created, fmt.Errorf("enroll student %d in module %d: %w", studentID, moduleID, err)
		}
		created++
	}
	return created, nil
}

// ReconcileModule back-fills enrollments for existing students when a module
// is added to a specialty. Symmetric to Reconcile.
func (s *Service) ReconcileModule(ctx context.Context, moduleID int64, studentIDs []int64) (int, error) {
	created := 0
	for _, studentID := range studentIDs {
		n, err := s.Reconcile(ctx, studentID, []int64{moduleID})
		if err != nil {
			return created, err
		}
		created += n
	}
	return created, nil
}

// SetExcluded flips the manual exclusion flag. There is no automatic
// threshold; exclusion is an administrative decision.
func (s *Service) SetExcluded(ctx context.Context, enrollmentID int64, excluded bool) (Enrollment, error) {
	if _, err := s.repo.Get(ctx, enrollmentID); err != nil {
		return Enrollment{}, err
	}
	if err := s.repo.SetExcluded(ctx, enrollmentID, excluded); err != nil {
		return Enrollment{}, err
	}
	return s.repo.Get(ctx, enrollmentID)
}

// ForStudent lists a student's enrollments.
func (s *Service) ForStudent(ctx context.Context, studentID int64) ([]Enrollment, error) {
	return s.repo.ListByStudent(ctx, studentID)
}

func isNotFound(err error) bool { return errors.Is(err, apperr.ErrNotFound) }
func isConflict(err error) bool { return errors.Is(err, apperr.ErrConflict) }
