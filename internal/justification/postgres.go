package justification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/3boudi/student-attandence/internal/apperr"
)

// PostgresRepository persists justifications in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const justificationCols = `id, attendance_record_id, comment, file_url, status, created_at, validation_date, validator_id, rejection_reason`

func scanJustification(row interface{ Scan(...any) error }) (Justification, error) {
	var j Justification
	var fileURL, reason sql.NullString
	var validatedAt sql.NullTime
	var validatorID sql.NullInt64
	err := row.Scan(&j.ID, &j.AttendanceRecordID, &j.Comment, &fileURL, &j.Status, &j.CreatedAt, &validatedAt, &validatorID, &reason)
	j.FileURL = fileURL.String
	j.RejectionReason = reason.String
	if validatedAt.Valid {
		t := validatedAt.Time
		j.ValidationDate = &t
	}
	if validatorID.Valid {
		v := validatorID.Int64
		j.ValidatorID = &v
	}
	return j, err
}

// Create inserts a PENDING justification. The unique attendance_record_id
// index maps duplicates to ErrConflict.
func (r *PostgresRepository) Create(ctx context.Context, j Justification) (Justification, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO justifications (attendance_record_id, comment, file_url, status)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		RETURNING `+justificationCols,
		j.AttendanceRecordID, j.Comment, j.FileURL, j.Status)
	created, err := scanJustification(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Justification{}, fmt.Errorf("justification exists for record %d: %w", j.AttendanceRecordID, apperr.ErrConflict)
		}
		return Justification{}, err
	}
	return created, nil
}

// Get returns a justification by id.
func (r *PostgresRepository) Get(ctx context.Context, id int64) (Justification, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+justificationCols+` FROM justifications WHERE id = $1`, id)
	j, err := scanJustification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Justification{}, fmt.Errorf("justification %d: %w", id, apperr.ErrNotFound)
	}
	return j, err
}

// ByRecord returns the justification linked to an attendance record.
func (r *PostgresRepository) ByRecord(ctx context.Context, attendanceRecordID int64) (Justification, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+justificationCols+` FROM justifications WHERE attendance_record_id = $1`, attendanceRecordID)
	j, err := scanJustification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Justification{}, fmt.Errorf("no justification for record %d: %w", attendanceRecordID, apperr.ErrNotFound)
	}
	return j, err
}

// Decide performs the guarded PENDING->to transition.
func (r *PostgresRepository) Decide(ctx context.Context, id int64, to Status, validatorID int64, reason string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE justifications
		SET status = $2, validator_id = $3, validation_date = $4, rejection_reason = NULLIF($5, '')
		WHERE id = $1 AND status = $6`,
		id, to, validatorID, at, reason, StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListPending lists undecided justifications, oldest first.
func (r *PostgresRepository) ListPending(ctx context.Context) ([]Justification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+justificationCols+` FROM justifications WHERE status = $1 ORDER BY created_at`, StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJustifications(rows)
}

// ListByRecords lists justifications for a set of attendance records.
func (r *PostgresRepository) ListByRecords(ctx context.Context, attendanceRecordIDs []int64) ([]Justification, error) {
	if len(attendanceRecordIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(attendanceRecordIDs))
	args := make([]any, len(attendanceRecordIDs))
	for i, id := range attendanceRecordIDs {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+justificationCols+` FROM justifications
		WHERE attendance_record_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJustifications(rows)
}

func collectJustifications(rows *sql.Rows) ([]Justification, error) {
	var out []Justification
	for rows.Next() {
		j, err := scanJustification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
