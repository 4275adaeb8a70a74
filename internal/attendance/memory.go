package attendance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/3boudi/student-attandence/internal/apperr"
)

// MemoryRepository keeps sessions and records in process. It mirrors the
// Postgres semantics, including the conditional transitions, so tests
// exercise the same race rules.
type MemoryRepository struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[int64]Session
	records  map[int64]Record
}

// NewMemoryRepository creates an empty repo.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nextID:   1,
		sessions: make(map[int64]Session),
		records:  make(map[int64]Record),
	}
}

func (r *MemoryRepository) id() int64 {
	id := r.nextID
	r.nextID++
	return id
}

// CreateSessionWithRecords inserts the session and its seeded records as one
// atomic unit under the lock.
func (r *MemoryRepository) CreateSessionWithRecords(_ context.Context, s Session, enrollmentIDs []int64) (Session, []Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.sessions {
		if existing.Code == s.Code {
			return Session{}, nil, fmt.Errorf("session code taken: %w", apperr.ErrConflict)
		}
	}
	s.ID = r.id()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	r.sessions[s.ID] = s

	records := make([]Record, 0, len(enrollmentIDs))
	for _, enrollmentID := range enrollmentIDs {
		rec := Record{
			ID:           r.id(),
			SessionID:    s.ID,
			EnrollmentID: enrollmentID,
			Status:       StatusAbsent,
			CreatedAt:    s.CreatedAt,
		}
		r.records[rec.ID] = rec
		records = append(records, rec)
	}
	return s, records, nil
}

// GetSession returns a session by id.
func (r *MemoryRepository) GetSession(_ context.Context, id int64) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("session %d: %w", id, apperr.ErrNotFound)
	}
	return s, nil
}

// SessionByCode resolves a session from its share code.
func (r *MemoryRepository) SessionByCode(_ context.Context, code string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.Code == code {
			return s, nil
		}
	}
	return Session{}, fmt.Errorf("invalid session code: %w", apperr.ErrNotFound)
}

// ActiveSessionsForTeacherModule lists active-flagged sessions for an
// assignment.
func (r *MemoryRepository) ActiveSessionsForTeacherModule(_ context.Context, teacherModuleID int64) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Session
	for _, s := range r.sessions {
		if s.TeacherModuleID == teacherModuleID && s.IsActive {
			out = append(out, s)
		}
	}
	sortSessions(out)
	return out, nil
}

// ListActiveSessions lists every active-flagged session.
func (r *MemoryRepository) ListActiveSessions(_ context.Context) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Session
	for _, s := range r.sessions {
		if s.IsActive {
			out = append(out, s)
		}
	}
	sortSessions(out)
	return out, nil
}

// ListSessionsForTeacherModules lists sessions across assignments, newest
// first.
func (r *MemoryRepository) ListSessionsForTeacherModules(_ context.Context, teacherModuleIDs []int64) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[int64]bool, len(teacherModuleIDs))
	for _, id := range teacherModuleIDs {
		want[id] = true
	}
	var out []Session
	for _, s := range r.sessions {
		if want[s.TeacherModuleID] {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateTime.After(out[j].DateTime) })
	return out, nil
}

// CloseSession conditionally flips is_active.
func (r *MemoryRepository) CloseSession(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false, fmt.Errorf("session %d: %w", id, apperr.ErrNotFound)
	}
	if !s.IsActive {
		return false, nil
	}
	s.IsActive = false
	r.sessions[id] = s
	return true, nil
}

// SetSessionQRCode stores the QR artifact reference.
func (r *MemoryRepository) SetSessionQRCode(_ context.Context, id int64, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("session %d: %w", id, apperr.ErrNotFound)
	}
	s.QRCodeRef = ref
	r.sessions[id] = s
	return nil
}

// GetRecord returns a record by id.
func (r *MemoryRepository) GetRecord(_ context.Context, id int64) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return Record{}, fmt.Errorf("attendance record %d: %w", id, apperr.ErrNotFound)
	}
	return rec, nil
}

// RecordFor returns the record for a (session, enrollment) pair.
func (r *MemoryRepository) RecordFor(_ context.Context, sessionID, enrollmentID int64) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.SessionID == sessionID && rec.EnrollmentID == enrollmentID {
			return rec, nil
		}
	}
	return Record{}, fmt.Errorf("no attendance record for this session: %w", apperr.ErrNotFound)
}

// ListRecords lists a session's records.
func (r *MemoryRepository) ListRecords(_ context.Context, sessionID int64) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, rec := range r.records {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListRecordsForEnrollments lists records across enrollments.
func (r *MemoryRepository) ListRecordsForEnrollments(_ context.Context, enrollmentIDs []int64) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[int64]bool, len(enrollmentIDs))
	for _, id := range enrollmentIDs {
		want[id] = true
	}
	var out []Record
	for _, rec := range r.records {
		if want[rec.EnrollmentID] {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MarkPresent performs the guarded PRESENT transition.
func (r *MemoryRepository) MarkPresent(_ context.Context, recordID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[recordID]
	if !ok {
		return false, fmt.Errorf("attendance record %d: %w", recordID, apperr.ErrNotFound)
	}
	if rec.Status == StatusPresent {
		return false, nil
	}
	rec.Status = StatusPresent
	r.records[recordID] = rec
	return true, nil
}

// SetRecordStatus performs a guarded from->to transition.
func (r *MemoryRepository) SetRecordStatus(_ context.Context, recordID int64, from, to Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[recordID]
	if !ok {
		return false, fmt.Errorf("attendance record %d: %w", recordID, apperr.ErrNotFound)
	}
	if rec.Status != from {
		return false, nil
	}
	rec.Status = to
	r.records[recordID] = rec
	return true, nil
}

func sortSessions(list []Session) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}
