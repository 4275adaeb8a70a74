package justification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/3boudi/student-attandence/internal/apperr"
	"github.com/3boudi/student-attandence/internal/attendance"
	"github.com/3boudi/student-attandence/internal/enrollment"
	"github.com/3boudi/student-attandence/internal/metrics"
	"github.com/3boudi/student-attandence/internal/notify"
	"github.com/3boudi/student-attandence/internal/roster"
)

// Validator is the typed capability for deciding justifications: either the
// teacher owning the linked session, or an admin acting system-wide.
type Validator struct {
	ProfileID int64
	IsAdmin   bool
}

// Service runs the workflow. Stateless; all mutable state is in the
// repositories.
type Service struct {
	repo        Repository
	ledger      attendance.Repository
	enrollments enrollment.Repository
	roster      roster.Repository
	notifier    notify.Notifier
	now         func() time.Time
}

// NewService creates the workflow service.
func NewService(repo Repository, ledger attendance.Repository, enrollments enrollment.Repository, rosterRepo roster.Repository, notifier notify.Notifier) *Service {
	return &Service{
		repo:        repo,
		ledger:      ledger,
		enrollments: enrollments,
		roster:      rosterRepo,
		notifier:    notifier,
		now:         time.Now,
	}
}

// Submit files a justification for the student's own ABSENT record. Only
// absences are justifiable, and each record takes at most one justification.
func (s *Service) Submit(ctx context.Context, studentID, attendanceRecordID int64, comment, fileURL string) (Justification, error) {
	if comment == "" {
		return Justification{}, fmt.Errorf("comment required: %w", apperr.ErrInvalid)
	}
	rec, err := s.ledger.GetRecord(ctx, attendanceRecordID)
	if err != nil {
		return Justification{}, err
	}
	enr, err := s.enrollments.Get(ctx, rec.EnrollmentID)
	if err != nil {
		return Justification{}, err
	}
	if enr.StudentID != studentID {
		return Justification{}, fmt.Errorf("this attendance record belongs to another student: %w", apperr.ErrForbidden)
	}
	if rec.Status != attendance.StatusAbsent {
		return Justification{}, fmt.Errorf("only absences can be justified: %w", apperr.ErrInvalid)
	}
	if _, err := s.repo.ByRecord(ctx, attendanceRecordID); err == nil {
		return Justification{}, fmt.Errorf("a justification already exists for this absence: %w", apperr.ErrInvalid)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return Justification{}, err
	}

	created, err := s.repo.Create(ctx, Justification{
		AttendanceRecordID: attendanceRecordID,
		Comment:            comment,
		FileURL:            fileURL,
		Status:             StatusPending,
	})
	if err != nil {
		// Duplicate submit racing past the pre-check loses on the unique
		// index; surface it the same way.
		if errors.Is(err, apperr.ErrConflict) {
			return Justification{}, fmt.Errorf("a justification already exists for this absence: %w", apperr.ErrInvalid)
		}
		return Justification{}, err
	}

	s.notifyStudent(ctx, enr.StudentID, "Justification Submitted",
		fmt.Sprintf("Your justification for attendance record #%d has been submitted and is pending review.", attendanceRecordID),
		notify.KindJustificationSubmitted)
	return created, nil
}

// Decide resolves a PENDING justification. Approval forgives the absence:
// the linked record moves to EXCLUDED and the enrollment's justified-absence
// counter is bumped. Rejection stores the reason and leaves the record
// ABSENT. The loser of a concurrent decide gets Conflict.
func (s *Service) Decide(ctx context.Context, v Validator, justificationID int64, approve bool, reason string) (Justification, error) {
	j, err := s.repo.Get(ctx, justificationID)
	if err != nil {
		return Justification{}, err
	}
	if j.Status != StatusPending {
		return Justification{}, fmt.Errorf("justification is not pending: %w", apperr.ErrInvalid)
	}
	if !approve && reason == "" {
		return Justification{}, fmt.Errorf("rejection reason required: %w", apperr.ErrInvalid)
	}

	rec, err := s.ledger.GetRecord(ctx, j.AttendanceRecordID)
	if err != nil {
		return Justification{}, err
	}
	sess, err := s.ledger.GetSession(ctx, rec.SessionID)
	if err != nil {
		return Justification{}, err
	}
	if !v.IsAdmin {
		tm, err := s.roster.GetTeacherModule(ctx, sess.TeacherModuleID)
		if err != nil {
			return Justification{}, err
		}
		if tm.TeacherID != v.ProfileID {
			return Justification{}, fmt.Errorf("justification belongs to another teacher's session: %w", apperr.ErrForbidden)
		}
	}

	to := StatusRejected
	if approve {
		to = StatusApproved
	}
	flipped, err := s.repo.Decide(ctx, justificationID, to, v.ProfileID, reason, s.now().UTC())
	if err != nil {
		return Justification{}, err
	}
	if !flipped {
		return Justification{}, fmt.Errorf("justification already decided: %w", apperr.ErrConflict)
	}

	enr, enrErr := s.enrollments.Get(ctx, rec.EnrollmentID)
	if approve {
		metrics.JustificationsDecided.WithLabelValues("approved").Inc()
		if moved, err := s.ledger.SetRecordStatus(ctx, rec.ID, attendance.StatusAbsent, attendance.StatusExcluded); err != nil {
			log.Printf("justification %d: exclude record %d: %v", justificationID, rec.ID, err)
		} else if moved && enrErr == nil {
			if err := s.enrollments.AddJustifiedAbsences(ctx, enr.ID, 1); err != nil {
				log.Printf("justification %d: bump justified counter: %v", justificationID, err)
			}
			// The unjustified counter was already settled if the session had
			// closed; move that absence into the justified bucket.
			if !sess.IsActive && enr.Absences > 0 {
				if err := s.enrollments.AddAbsences(ctx, enr.ID, -1); err != nil {
					log.Printf("justification %d: unwind absence counter: %v", justificationID, err)
				}
			}
		}
	} else {
		metrics.JustificationsDecided.WithLabelValues("rejected").Inc()
	}

	if enrErr == nil {
		if approve {
			s.notifyStudent(ctx, enr.StudentID, "Justification Approved",
				fmt.Sprintf("Your justification for attendance record #%d has been approved.", rec.ID),
				notify.KindJustificationApproved)
		} else {
			s.notifyStudent(ctx, enr.StudentID, "Justification Rejected",
				fmt.Sprintf("Your justification for attendance record #%d has been rejected: %s", rec.ID, reason),
				notify.KindJustificationRejected)
		}
	}
	return s.repo.Get(ctx, justificationID)
}

// ListPending lists undecided justifications, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]Justification, error) {
	return s.repo.ListPending(ctx)
}

// ListByStudent lists justifications across all the student's attendance
// records.
func (s *Service) ListByStudent(ctx context.Context, studentID int64) ([]Justification, error) {
	enrollments, err := s.enrollments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	enrollmentIDs := make([]int64, 0, len(enrollments))
	for _, e := range enrollments {
		enrollmentIDs = append(enrollmentIDs, e.ID)
	}
	records, err := s.ledger.ListRecordsForEnrollments(ctx, enrollmentIDs)
	if err != nil {
		return nil, err
	}
	recordIDs := make([]int64, 0, len(records))
	for _, r := range records {
		recordIDs = append(recordIDs, r.ID)
	}
	return s.repo.ListByRecords(ctx, recordIDs)
}

// notifyStudent resolves the student's user account and fires the
// notification. Delivery failures are logged, never surfaced to the caller.
func (s *Service) notifyStudent(ctx context.Context, studentID int64, title, message string, kind notify.Kind) {
	st, err := s.roster.GetStudent(ctx, studentID)
	if err != nil {
		log.Printf("notify: resolve student %d: %v", studentID, err)
		return
	}
	if err := s.notifier.Notify(ctx, st.UserID, title, message, kind); err != nil {
		log.Printf("notify: user %d: %v", st.UserID, err)
	}
}
