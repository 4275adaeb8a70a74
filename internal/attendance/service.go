package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/3boudi/student-attandence/internal/apperr"
	"github.com/3boudi/student-attandence/internal/enrollment"
	"github.com/3boudi/student-attandence/internal/metrics"
	"github.com/3boudi/student-attandence/internal/roster"
	"github.com/3boudi/student-attandence/internal/stats"
)

// Attempts to win the share-code unique index before giving up.
const createRetries = 5

// Service coordinates sessions and the attendance ledger. Stateless; all
// mutable state lives in the repositories.
type Service struct {
	repo        Repository
	roster      roster.Repository
	enrollments enrollment.Repository
	qr          QRGenerator
	now         func() time.Time
}

// NewService creates the lifecycle service. qr may be nil when no QR
// artifact storage is configured; sessions are then created without one.
func NewService(repo Repository, rosterRepo roster.Repository, enrollments enrollment.Repository, qr QRGenerator) *Service {
	return &Service{
		repo:        repo,
		roster:      rosterRepo,
		enrollments: enrollments,
		qr:          qr,
		now:         time.Now,
	}
}

// CreatedSession is the session plus the seeding outcome.
type CreatedSession struct {
	Session       Session  `json:"session"`
	EnrolledCount int      `json:"enrolled_count"`
	Records       []Record `json:"records"`
}

// CreateSession opens a session for a (teacher, module) assignment and seeds
// one ABSENT record per non-excluded enrollment of the module. Creation and
// seeding are a single unit of work: a failed record insert aborts the whole
// creation. Rejected with Conflict while the teacher still has an
// effectively active session for the same module.
func (s *Service) CreateSession(ctx context.Context, teacherID, moduleID int64, durationMinutes int, room string) (CreatedSession, error) {
	if durationMinutes <= 0 {
		return CreatedSession{}, fmt.Errorf("duration must be positive: %w", apperr.ErrInvalid)
	}
	if _, err := s.roster.GetTeacher(ctx, teacherID); err != nil {
		return CreatedSession{}, err
	}
	if _, err := s.roster.GetModule(ctx, moduleID); err != nil {
		return CreatedSession{}, err
	}
	tm, err := s.roster.FindTeacherModule(ctx, teacherID, moduleID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return CreatedSession{}, fmt.Errorf("teacher %d is not assigned to module %d: %w", teacherID, moduleID, apperr.ErrForbidden)
		}
		return CreatedSession{}, err
	}

	now := s.now()
	active, err := s.repo.ActiveSessionsForTeacherModule(ctx, tm.ID)
	if err != nil {
		return CreatedSession{}, err
	}
	for _, sess := range active {
		if !sess.Expired(now) {
			return CreatedSession{}, fmt.Errorf("an active session already exists for this module: %w", apperr.ErrConflict)
		}
	}

	enrollments, err := s.enrollments.ListByModule(ctx, moduleID, false)
	if err != nil {
		return CreatedSession{}, err
	}
	enrollmentIDs := make([]int64, 0, len(enrollments))
	for _, e := range enrollments {
		enrollmentIDs = append(enrollmentIDs, e.ID)
	}

	var created Session
	var records []Record
	for attempt := 0; ; attempt++ {
		code, err := NewShareCode()
		if err != nil {
			return CreatedSession{}, err
		}
		created, records, err = s.repo.CreateSessionWithRecords(ctx, Session{
			TeacherModuleID: tm.ID,
			DateTime:        now.UTC(),
			DurationMinutes: durationMinutes,
			Code:            code,
			Room:            room,
			IsActive:        true,
		}, enrollmentIDs)
		if err == nil {
			break
		}
		if errors.Is(err, apperr.ErrConflict) && attempt < createRetries-1 {
			continue
		}
		return CreatedSession{}, fmt.Errorf("create session: %w", err)
	}

	if s.qr != nil {
		ref, err := s.qr.Generate(created.Code)
		if err != nil {
			// The share code alone admits marks; a missing artifact is not
			// fatal to the session.
			log.Printf("qr artifact for session %d failed: %v", created.ID, err)
		} else if err := s.repo.SetSessionQRCode(ctx, created.ID, ref); err != nil {
			log.Printf("persist qr ref for session %d failed: %v", created.ID, err)
		} else {
			created.QRCodeRef = ref
		}
	}

	metrics.SessionsCreated.Inc()
	return CreatedSession{Session: created, EnrolledCount: len(records), Records: records}, nil
}

// CloseSession deactivates a session. Only the owning teacher may close it.
// Closing an already-closed session is a no-op success. The first close
// settles the ledger: every record still ABSENT bumps its enrollment's
// unjustified absence counter.
func (s *Service) CloseSession(ctx context.Context, sessionID, teacherID int64) (Session, error) {
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	tm, err := s.roster.GetTeacherModule(ctx, sess.TeacherModuleID)
	if err != nil {
		return Session{}, err
	}
	if tm.TeacherID != teacherID {
		return Session{}, fmt.Errorf("session %d belongs to another teacher: %w", sessionID, apperr.ErrForbidden)
	}

	flipped, err := s.repo.CloseSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if flipped {
		metrics.SessionsClosed.WithLabelValues("explicit").Inc()
		if err := s.settleAbsences(ctx, sessionID); err != nil {
			log.Printf("settle absences for session %d: %v", sessionID, err)
		}
	}
	return s.repo.GetSession(ctx, sessionID)
}

// CloseExpired sweeps active sessions whose validity window has elapsed.
// Individual failures are logged and skipped so one bad session does not
// abort the sweep. Returns the number of sessions closed by this call.
func (s *Service) CloseExpired(ctx context.Context) (int, error) {
	active, err := s.repo.ListActiveSessions(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	closed := 0
	for _, sess := range active {
		if !sess.Expired(now) {
			continue
		}
		flipped, err := s.repo.CloseSession(ctx, sess.ID)
		if err != nil {
			log.Printf("sweep: close session %d: %v", sess.ID, err)
			continue
		}
		if !flipped {
			continue // another sweep got there first
		}
		metrics.SessionsClosed.WithLabelValues("expired").Inc()
		closed++
		if err := s.settleAbsences(ctx, sess.ID); err != nil {
			log.Printf("sweep: settle absences for session %d: %v", sess.ID, err)
		}
	}
	return closed, nil
}

// settleAbsences bumps the unjustified absence counter for every record
// still ABSENT in a just-closed session. Runs once per session because
// CloseSession reports whether this caller performed the flip.
func (s *Service) settleAbsences(ctx context.Context, sessionID int64) error {
	records, err := s.repo.ListRecords(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.Status != StatusAbsent {
			continue
		}
		if err := s.enrollments.AddAbsences(ctx, r.EnrollmentID, 1); err != nil {
			return err
		}
	}
	return nil
}

// MarkPresent admits a student's attendance mark for the session identified
// by code. Expiry is checked inline against the validity window even when
// the stored is_active flag is stale. Marking twice is an error, not a
// no-op.
func (s *Service) MarkPresent(ctx context.Context, studentID int64, code string) (Record, error) {
	sess, err := s.repo.SessionByCode(ctx, code)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			metrics.MarksRejected.WithLabelValues("bad_code").Inc()
		}
		return Record{}, err
	}
	if !sess.IsActive {
		metrics.MarksRejected.WithLabelValues("closed").Inc()
		return Record{}, fmt.Errorf("session closed: %w", apperr.ErrInvalid)
	}
	if sess.Expired(s.now()) {
		metrics.MarksRejected.WithLabelValues("expired").Inc()
		return Record{}, fmt.Errorf("session expired: %w", apperr.ErrInvalid)
	}

	tm, err := s.roster.GetTeacherModule(ctx, sess.TeacherModuleID)
	if err != nil {
		return Record{}, err
	}
	enr, err := s.enrollments.Find(ctx, studentID, tm.ModuleID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			metrics.MarksRejected.WithLabelValues("not_enrolled").Inc()
			return Record{}, fmt.Errorf("student is not enrolled in this module: %w", apperr.ErrForbidden)
		}
		return Record{}, err
	}
	if enr.IsExcluded {
		metrics.MarksRejected.WithLabelValues("excluded").Inc()
		return Record{}, fmt.Errorf("student is excluded from this module: %w", apperr.ErrForbidden)
	}

	rec, err := s.repo.RecordFor(ctx, sess.ID, enr.ID)
	if err != nil {
		// Missing record for a live enrollment means seeding was incomplete,
		// a data-integrity problem rather than a student error.
		return Record{}, err
	}
	if rec.Status == StatusPresent {
		metrics.MarksRejected.WithLabelValues("already_present").Inc()
		return Record{}, fmt.Errorf("attendance already marked as present: %w", apperr.ErrInvalid)
	}

	flipped, err := s.repo.MarkPresent(ctx, rec.ID)
	if err != nil {
		return Record{}, err
	}
	if !flipped {
		// Lost the race against a concurrent mark of the same record.
		metrics.MarksRejected.WithLabelValues("already_present").Inc()
		return Record{}, fmt.Errorf("attendance already marked as present: %w", apperr.ErrInvalid)
	}
	metrics.MarksAccepted.Inc()
	return s.repo.GetRecord(ctx, rec.ID)
}

// RecordDetail pairs an attendance record with the student behind its
// enrollment.
type RecordDetail struct {
	Record
	StudentID   int64  `json:"student_id"`
	StudentName string `json:"student_name"`
}

// SessionAttendance is the read side for one session: records plus derived
// statistics, recomputed from the snapshot on every call.
type SessionAttendance struct {
	Session Session        `json:"session"`
	Records []RecordDetail `json:"records"`
	Stats   stats.Summary  `json:"stats"`
}

// GetSessionAttendance returns the session's records with per-status counts
// and the attendance rate.
func (s *Service) GetSessionAttendance(ctx context.Context, sessionID int64) (SessionAttendance, error) {
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return SessionAttendance{}, err
	}
	records, err := s.repo.ListRecords(ctx, sessionID)
	if err != nil {
		return SessionAttendance{}, err
	}

	out := SessionAttendance{Session: sess, Records: make([]RecordDetail, 0, len(records))}
	var present, absent, excluded int
	for _, r := range records {
		detail := RecordDetail{Record: r}
		if enr, err := s.enrollments.Get(ctx, r.EnrollmentID); err == nil {
			detail.StudentID = enr.StudentID
			if st, err := s.roster.GetStudent(ctx, enr.StudentID); err == nil {
				detail.StudentName = st.FullName
			}
		}
		out.Records = append(out.Records, detail)
		switch r.Status {
		case StatusPresent:
			present++
		case StatusExcluded:
			excluded++
		default:
			absent++
		}
	}
	out.Stats = stats.Summarize(present, absent, excluded)
	return out, nil
}

// ListTeacherSessions returns every session across a teacher's assignments,
// newest first.
func (s *Service) ListTeacherSessions(ctx context.Context, teacherID int64) ([]Session, error) {
	tms, err := s.roster.ListTeacherModules(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(tms))
	for _, tm := range tms {
		ids = append(ids, tm.ID)
	}
	return s.repo.ListSessionsForTeacherModules(ctx, ids)
}

// StudentRecords lists a student's attendance records across all their
// enrollments.
func (s *Service) StudentRecords(ctx context.Context, studentID int64) ([]Record, error) {
	enrollments, err := s.enrollments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.ID)
	}
	return s.repo.ListRecordsForEnrollments(ctx, ids)
}

// StudentSummary aggregates a student's standing across all enrollments.
func (s *Service) StudentSummary(ctx context.Context, studentID int64) (stats.StudentSummary, error) {
	enrollments, err := s.enrollments.ListByStudent(ctx, studentID)
	if err != nil {
		return stats.StudentSummary{}, err
	}
	excludedModules := 0
	ids := make([]int64, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.ID)
		if e.IsExcluded {
			excludedModules++
		}
	}
	records, err := s.repo.ListRecordsForEnrollments(ctx, ids)
	if err != nil {
		return stats.StudentSummary{}, err
	}
	var present, absent, excluded int
	for _, r := range records {
		switch r.Status {
		case StatusPresent:
			present++
		case StatusExcluded:
			excluded++
		default:
			absent++
		}
	}
	return stats.ForStudent(present, absent, excluded, excludedModules), nil
}
