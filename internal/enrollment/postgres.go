package enrollment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/3boudi/student-attandence/internal/apperr"
)

// PostgresRepository persists enrollments in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const enrollmentCols = `id, student_id, module_id, is_excluded, number_of_absences, number_of_absences_justified`

func scanEnrollment(row interface{ Scan(...any) error }) (Enrollment, error) {
	var e Enrollment
	err := row.Scan(&e.ID, &e.StudentID, &e.ModuleID, &e.IsExcluded, &e.Absences, &e.JustifiedAbsences)
	return e, err
}

// Create inserts an enrollment. The unique (student_id, module_id) index
// turns a duplicate insert into ErrConflict.
func (r *PostgresRepository) Create(ctx context.Context, e Enrollment) (Enrollment, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO enrollments (student_id, module_id, is_excluded, number_of_absences, number_of_absences_justified)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+enrollmentCols,
		e.StudentID, e.ModuleID, e.IsExcluded, e.Absences, e.JustifiedAbsences)
	created, err := scanEnrollment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Enrollment{}, fmt.Errorf("enrollment exists: %w", apperr.ErrConflict)
		}
		return Enrollment{}, err
	}
	return created, nil
}

// Get returns an enrollment by id.
func (r *PostgresRepository) Get(ctx context.Context, id int64) (Enrollment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+enrollmentCols+` FROM enrollments WHERE id = $1`, id)
	e, err := scanEnrollment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Enrollment{}, fmt.Errorf("enrollment %d: %w", id, apperr.ErrNotFound)
	}
	return e, err
}

// Find returns the enrollment for a (student, module) pair.
func (r *PostgresRepository) Find(ctx context.Context, studentID, moduleID int64) (Enrollment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+enrollmentCols+` FROM enrollments
		WHERE student_id = $1 AND module_id = $2`, studentID, moduleID)
	e, err := scanEnrollment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Enrollment{}, fmt.Errorf("enrollment for student %d in module %d: %w", studentID, moduleID, apperr.ErrNotFound)
	}
	return e, err
}

// ListByModule lists enrollments for a module, optionally filtering out
// excluded students.
func (r *PostgresRepository) ListByModule(ctx context.Context, moduleID int64, includeExcluded bool) ([]Enrollment, error) {
	query := `SELECT ` + enrollmentCols + ` FROM enrollments WHERE module_id = $1`
	if !includeExcluded {
		query += ` AND is_excluded = FALSE`
	}
	query += ` ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// ListByStudent lists all enrollments of a student.
func (r *PostgresRepository) ListByStudent(ctx context.Context, studentID int64) ([]Enrollment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+enrollmentCols+` FROM enrollments WHERE student_id = $1 ORDER BY id`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// SetExcluded flips the exclusion flag.
func (r *PostgresRepository) SetExcluded(ctx context.Context, id int64, excluded bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE enrollments SET is_excluded = $2 WHERE id = $1`, id, excluded)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// AddAbsences bumps the unjustified absence counter.
func (r *PostgresRepository) AddAbsences(ctx context.Context, id int64, delta int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE enrollments SET number_of_absences = number_of_absences + $2 WHERE id = $1`, id, delta)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// AddJustifiedAbsences moves an absence into the justified bucket.
func (r *PostgresRepository) AddJustifiedAbsences(ctx context.Context, id int64, delta int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE enrollments SET number_of_absences_justified = number_of_absences_justified + $2 WHERE id = $1`, id, delta)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func collect(rows *sql.Rows) ([]Enrollment, error) {
	var out []Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("enrollment %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}
