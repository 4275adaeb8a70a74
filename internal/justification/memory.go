package justification

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/3boudi/student-attandence/internal/apperr"
)

// MemoryRepository keeps justifications in process with the same uniqueness
// and conditional-decide semantics as the Postgres schema.
type MemoryRepository struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]Justification
}

// NewMemoryRepository creates an empty repo.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1, byID: make(map[int64]Justification)}
}

// Create inserts a PENDING justification, one per attendance record.
func (r *MemoryRepository) Create(_ context.Context, j Justification) (Justification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.AttendanceRecordID == j.AttendanceRecordID {
			return Justification{}, fmt.Errorf("justification exists for record %d: %w", j.AttendanceRecordID, apperr.ErrConflict)
		}
	}
	j.ID = r.nextID
	r.nextID++
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	r.byID[j.ID] = j
	return j, nil
}

// Get returns a justification by id.
func (r *MemoryRepository) Get(_ context.Context, id int64) (Justification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.byID[id]
	if !ok {
		return Justification{}, fmt.Errorf("justification %d: %w", id, apperr.ErrNotFound)
	}
	return j, nil
}

// ByRecord returns the justification linked to an attendance record.
func (r *MemoryRepository) ByRecord(_ context.Context, attendanceRecordID int64) (Justification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.byID {
		if j.AttendanceRecordID == attendanceRecordID {
			return j, nil
		}
	}
	return Justification{}, fmt.Errorf("no justification for record %d: %w", attendanceRecordID, apperr.ErrNotFound)
}

// Decide performs the guarded PENDING->to transition.
func (r *MemoryRepository) Decide(_ context.Context, id int64, to Status, validatorID int64, reason string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.byID[id]
	if !ok {
		return false, fmt.Errorf("justification %d: %w", id, apperr.ErrNotFound)
	}
	if j.Status != StatusPending {
		return false, nil
	}
	j.Status = to
	j.ValidatorID = &validatorID
	j.ValidationDate = &at
	j.RejectionReason = reason
	r.byID[id] = j
	return true, nil
}

// ListPending lists undecided justifications, oldest first.
func (r *MemoryRepository) ListPending(_ context.Context) ([]Justification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Justification
	for _, j := range r.byID {
		if j.Status == StatusPending {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListByRecords lists justifications for a set of attendance records.
func (r *MemoryRepository) ListByRecords(_ context.Context, attendanceRecordIDs []int64) ([]Justification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[int64]bool, len(attendanceRecordIDs))
	for _, id := range attendanceRecordIDs {
		want[id] = true
	}
	var out []Justification
	for _, j := range r.byID {
		if want[j.AttendanceRecordID] {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}
