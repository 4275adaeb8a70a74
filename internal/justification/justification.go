// Package justification implements the absence-justification workflow: a
// student explains an ABSENT record, a validator approves or rejects, and an
// approval forgives the absence by moving the record to EXCLUDED.
package justification

import (
	"context"
	"time"
)

// Status of a justification. PENDING transitions to APPROVED or REJECTED
// exactly once and is terminal thereafter.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Justification is a student-submitted explanation for one absence. At most
// one exists per attendance record.
type Justification struct {
	ID                 int64      `json:"id"`
	AttendanceRecordID int64      `json:"attendance_record_id"`
	Comment            string     `json:"comment"`
	FileURL            string     `json:"file_url,omitempty"`
	Status             Status     `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	ValidationDate     *time.Time `json:"validation_date,omitempty"`
	ValidatorID        *int64     `json:"validator_id,omitempty"`
	RejectionReason    string     `json:"rejection_reason,omitempty"`
}

// Repository persists justifications. Decide must be a conditional update so
// two concurrent validators cannot both resolve the same justification.
type Repository interface {
	// Create inserts a PENDING justification. The unique
	// attendance_record_id index turns a duplicate into apperr.ErrConflict.
	Create(ctx context.Context, j Justification) (Justification, error)
	Get(ctx context.Context, id int64) (Justification, error)
	ByRecord(ctx context.Context, attendanceRecordID int64) (Justification, error)
	// Decide transitions PENDING->to, reporting whether this call performed
	// the transition.
	Decide(ctx context.Context, id int64, to Status, validatorID int64, reason string, at time.Time) (bool, error)
	ListPending(ctx context.Context) ([]Justification, error)
	ListByRecords(ctx context.Context, attendanceRecordIDs []int64) ([]Justification, error)
}
