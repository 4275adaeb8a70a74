package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/3boudi/student-attandence/internal/apperr"
)

// PostgresRepository persists sessions and attendance records in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionCols = `id, teacher_module_id, date_time, duration_minutes, session_code, session_qrcode, room, is_active, created_at`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var s Session
	var qrcode, room sql.NullString
	err := row.Scan(&s.ID, &s.TeacherModuleID, &s.DateTime, &s.DurationMinutes, &s.Code, &qrcode, &room, &s.IsActive, &s.CreatedAt)
	s.QRCodeRef = qrcode.String
	s.Room = room.String
	return s, err
}

// CreateSessionWithRecords inserts the session and its seeded ABSENT records
// in one transaction. A duplicate session code rolls everything back and
// surfaces ErrConflict so the caller can retry with a fresh code; any record
// insert failure likewise aborts the whole creation.
func (r *PostgresRepository) CreateSessionWithRecords(ctx context.Context, s Session, enrollmentIDs []int64) (Session, []Record, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO sessions (teacher_module_id, date_time, duration_minutes, session_code, room, is_active)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING `+sessionCols,
		s.TeacherModuleID, s.DateTime, s.DurationMinutes, s.Code, s.Room, s.IsActive)
	created, err := scanSession(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Session{}, nil, fmt.Errorf("session code taken: %w", apperr.ErrConflict)
		}
		return Session{}, nil, err
	}

	records := make([]Record, 0, len(enrollmentIDs))
	for _, enrollmentID := range enrollmentIDs {
		var rec Record
		rec.SessionID = created.ID
		rec.EnrollmentID = enrollmentID
		rec.Status = StatusAbsent
		err := tx.QueryRowContext(ctx, `
			INSERT INTO attendance_records (session_id, enrollment_id, status)
			VALUES ($1, $2, $3)
			RETURNING id, created_at`,
			created.ID, enrollmentID, StatusAbsent).Scan(&rec.ID, &rec.CreatedAt)
		if err != nil {
			return Session{}, nil, fmt.Errorf("seed record for enrollment %d: %w", enrollmentID, err)
		}
		records = append(records, rec)
	}

	if err := tx.Commit(); err != nil {
		return Session{}, nil, err
	}
	return created, records, nil
}

// GetSession returns a session by id.
func (r *PostgresRepository) GetSession(ctx context.Context, id int64) (Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %d: %w", id, apperr.ErrNotFound)
	}
	return s, err
}

// SessionByCode resolves a session from its share code.
func (r *PostgresRepository) SessionByCode(ctx context.Context, code string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE session_code = $1`, code)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("invalid session code: %w", apperr.ErrNotFound)
	}
	return s, err
}

// ActiveSessionsForTeacherModule lists sessions still flagged active for an
// assignment.
func (r *PostgresRepository) ActiveSessionsForTeacherModule(ctx context.Context, teacherModuleID int64) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionCols+` FROM sessions
		WHERE teacher_module_id = $1 AND is_active = TRUE`, teacherModuleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// ListActiveSessions lists every session still flagged active.
func (r *PostgresRepository) ListActiveSessions(ctx context.Context) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE is_active = TRUE ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// ListSessionsForTeacherModules lists sessions across assignments, newest
// first.
func (r *PostgresRepository) ListSessionsForTeacherModules(ctx context.Context, teacherModuleIDs []int64) ([]Session, error) {
	if len(teacherModuleIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(teacherModuleIDs))
	args := make([]any, len(teacherModuleIDs))
	for i, id := range teacherModuleIDs {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionCols+` FROM sessions
		WHERE teacher_module_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY date_time DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// CloseSession conditionally flips is_active so concurrent closers and the
// sweep do not double-process.
func (r *PostgresRepository) CloseSession(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET is_active = FALSE WHERE id = $1 AND is_active = TRUE`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetSessionQRCode stores the QR artifact reference.
func (r *PostgresRepository) SetSessionQRCode(ctx context.Context, id int64, ref string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET session_qrcode = $2 WHERE id = $1`, id, ref)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

const recordCols = `id, session_id, enrollment_id, status, created_at`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.EnrollmentID, &rec.Status, &rec.CreatedAt)
	return rec, err
}

// GetRecord returns a record by id.
func (r *PostgresRepository) GetRecord(ctx context.Context, id int64) (Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordCols+` FROM attendance_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("attendance record %d: %w", id, apperr.ErrNotFound)
	}
	return rec, err
}

// RecordFor returns the record for a (session, enrollment) pair.
func (r *PostgresRepository) RecordFor(ctx context.Context, sessionID, enrollmentID int64) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordCols+` FROM attendance_records
		WHERE session_id = $1 AND enrollment_id = $2`, sessionID, enrollmentID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("no attendance record for this session: %w", apperr.ErrNotFound)
	}
	return rec, err
}

// ListRecords lists a session's records.
func (r *PostgresRepository) ListRecords(ctx context.Context, sessionID int64) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordCols+` FROM attendance_records WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListRecordsForEnrollments lists records across enrollments.
func (r *PostgresRepository) ListRecordsForEnrollments(ctx context.Context, enrollmentIDs []int64) ([]Record, error) {
	if len(enrollmentIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(enrollmentIDs))
	args := make([]any, len(enrollmentIDs))
	for i, id := range enrollmentIDs {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordCols+` FROM attendance_records
		WHERE enrollment_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// MarkPresent performs the guarded PRESENT transition. The WHERE clause is
// the serialization point for concurrent marks of the same record.
func (r *PostgresRepository) MarkPresent(ctx context.Context, recordID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_records SET status = $2
		WHERE id = $1 AND status <> $2`, recordID, StatusPresent)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetRecordStatus performs a guarded from->to transition.
func (r *PostgresRepository) SetRecordStatus(ctx context.Context, recordID int64, from, to Status) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_records SET status = $3
		WHERE id = $1 AND status = $2`, recordID, from, to)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func collectSessions(rows *sql.Rows) ([]Session, error) {
	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
