// Package attendance implements the session/attendance lifecycle: time-boxed
// class sessions identified by a shareable code, and the per-enrollment
// attendance ledger seeded ABSENT at session creation.
package attendance

import (
	"context"
	"time"
)

// Status of one attendance record.
type Status string

const (
	// StatusPresent is set by a valid mark-attendance call.
	StatusPresent Status = "PRESENT"
	// StatusAbsent is the seeded default.
	StatusAbsent Status = "ABSENT"
	// StatusExcluded means the absence was forgiven through an approved
	// justification. Counted separately from unresolved ABSENT.
	StatusExcluded Status = "EXCLUDED"
)

// Session is one scheduled occurrence of a module meeting. It hangs off a
// teacher-module assignment, not a teacher or module directly.
type Session struct {
	ID              int64     `json:"id"`
	TeacherModuleID int64     `json:"teacher_module_id"`
	DateTime        time.Time `json:"date_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Code            string    `json:"session_code"`
	QRCodeRef       string    `json:"session_qrcode"`
	Room            string    `json:"room,omitempty"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

// EndsAt returns the end of the validity window [DateTime, DateTime+Duration).
func (s Session) EndsAt() time.Time {
	return s.DateTime.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// Expired reports whether the validity window has elapsed, regardless of the
// possibly stale IsActive flag.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.EndsAt())
}

// Record is the per-student-per-session attendance fact. Exactly one exists
// per (session, enrollment) pair, created ABSENT when the session is created.
type Record struct {
	ID           int64     `json:"id"`
	SessionID    int64     `json:"session_id"`
	EnrollmentID int64     `json:"enrollment_id"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Repository persists sessions and attendance records. Implementations must
// make the conditional transitions (MarkPresent, SetRecordStatus,
// CloseSession) atomic so concurrent writers race safely.
type Repository interface {
	// CreateSessionWithRecords inserts the session and one ABSENT record per
	// enrollment as a single unit of work. A duplicate session code fails the
	// whole creation with apperr.ErrConflict.
	CreateSessionWithRecords(ctx context.Context, s Session, enrollmentIDs []int64) (Session, []Record, error)
	GetSession(ctx context.Context, id int64) (Session, error)
	SessionByCode(ctx context.Context, code string) (Session, error)
	// ActiveSessionsForTeacherModule returns sessions still flagged active
	// for the assignment; callers decide effective activity against the
	// validity window.
	ActiveSessionsForTeacherModule(ctx context.Context, teacherModuleID int64) ([]Session, error)
	ListActiveSessions(ctx context.Context) ([]Session, error)
	ListSessionsForTeacherModules(ctx context.Context, teacherModuleIDs []int64) ([]Session, error)
	// CloseSession flips is_active true->false and reports whether this call
	// performed the flip.
	CloseSession(ctx context.Context, id int64) (bool, error)
	// SetSessionQRCode stores the QR artifact reference after creation.
	SetSessionQRCode(ctx context.Context, id int64, ref string) error

	GetRecord(ctx context.Context, id int64) (Record, error)
	RecordFor(ctx context.Context, sessionID, enrollmentID int64) (Record, error)
	ListRecords(ctx context.Context, sessionID int64) ([]Record, error)
	ListRecordsForEnrollments(ctx context.Context, enrollmentIDs []int64) ([]Record, error)
	// MarkPresent transitions the record to PRESENT only if it is not
	// already PRESENT, reporting whether the transition happened.
	MarkPresent(ctx context.Context, recordID int64) (bool, error)
	// SetRecordStatus transitions from->to conditionally, reporting whether
	// the transition happened.
	SetRecordStatus(ctx context.Context, recordID int64, from, to Status) (bool, error)
}

// QRGenerator produces a QR artifact for a session code and returns a
// reference to it. Artifact storage is a collaborator concern.
type QRGenerator interface {
	Generate(code string) (string, error)
}
