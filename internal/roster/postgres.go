package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/3boudi/student-attandence/internal/apperr"
)

// PostgresRepository persists the roster in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateSpecialty inserts a specialty.
func (r *PostgresRepository) CreateSpecialty(ctx context.Context, s Specialty) (Specialty, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO specialties (name, year_level) VALUES ($1, $2) RETURNING id`,
		s.Name, s.YearLevel)
	if err := row.Scan(&s.ID); err != nil {
		return Specialty{}, err
	}
	return s, nil
}

// GetSpecialty returns a specialty by id.
func (r *PostgresRepository) GetSpecialty(ctx context.Context, id int64) (Specialty, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, year_level FROM specialties WHERE id = $1`, id)
	var s Specialty
	if err := row.Scan(&s.ID, &s.Name, &s.YearLevel); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Specialty{}, fmt.Errorf("specialty %d: %w", id, apperr.ErrNotFound)
		}
		return Specialty{}, err
	}
	return s, nil
}

// CreateStudent inserts a student profile.
func (r *PostgresRepository) CreateStudent(ctx context.Context, s Student) (Student, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (user_id, specialty_id, full_name, email)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		s.UserID, s.SpecialtyID, s.FullName, s.Email)
	if err := row.Scan(&s.ID); err != nil {
		return Student{}, err
	}
	return s, nil
}

// GetStudent returns a student by id.
func (r *PostgresRepository) GetStudent(ctx context.Context, id int64) (Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, specialty_id, full_name, email FROM students WHERE id = $1`, id)
	var s Student
	if err := row.Scan(&s.ID, &s.UserID, &s.SpecialtyID, &s.FullName, &s.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, fmt.Errorf("student %d: %w", id, apperr.ErrNotFound)
		}
		return Student{}, err
	}
	return s, nil
}

// ListStudentsBySpecialty lists students registered under a specialty.
func (r *PostgresRepository) ListStudentsBySpecialty(ctx context.Context, specialtyID int64) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, specialty_id, full_name, email
		FROM students WHERE specialty_id = $1 ORDER BY id`, specialtyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.UserID, &s.SpecialtyID, &s.FullName, &s.Email); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateTeacher inserts a teacher profile.
func (r *PostgresRepository) CreateTeacher(ctx context.Context, t Teacher) (Teacher, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO teachers (user_id, full_name, email) VALUES ($1, $2, $3) RETURNING id`,
		t.UserID, t.FullName, t.Email)
	if err := row.Scan(&t.ID); err != nil {
		return Teacher{}, err
	}
	return t, nil
}

// GetTeacher returns a teacher by id.
func (r *PostgresRepository) GetTeacher(ctx context.Context, id int64) (Teacher, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, user_id, full_name, email FROM teachers WHERE id = $1`, id)
	var t Teacher
	if err := row.Scan(&t.ID, &t.UserID, &t.FullName, &t.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Teacher{}, fmt.Errorf("teacher %d: %w", id, apperr.ErrNotFound)
		}
		return Teacher{}, err
	}
	return t, nil
}

// CreateModule inserts a module.
func (r *PostgresRepository) CreateModule(ctx context.Context, m Module) (Module, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO modules (specialty_id, name, code) VALUES ($1, $2, $3) RETURNING id`,
		m.SpecialtyID, m.Name, m.Code)
	if err := row.Scan(&m.ID); err != nil {
		return Module{}, err
	}
	return m, nil
}

// GetModule returns a module by id.
func (r *PostgresRepository) GetModule(ctx context.Context, id int64) (Module, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, specialty_id, name, code FROM modules WHERE id = $1`, id)
	var m Module
	if err := row.Scan(&m.ID, &m.SpecialtyID, &m.Name, &m.Code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Module{}, fmt.Errorf("module %d: %w", id, apperr.ErrNotFound)
		}
		return Module{}, err
	}
	return m, nil
}

// ListModulesBySpecialty lists a specialty's modules.
func (r *PostgresRepository) ListModulesBySpecialty(ctx context.Context, specialtyID int64) ([]Module, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, specialty_id, name, code FROM modules WHERE specialty_id = $1 ORDER BY id`, specialtyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Module
	for rows.Next() {
		var m Module
		if err := rows.Scan(&m.ID, &m.SpecialtyID, &m.Name, &m.Code); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AssignTeacher inserts a teacher-module assignment. The unique
// (teacher_id, module_id) index maps duplicates to ErrConflict.
func (r *PostgresRepository) AssignTeacher(ctx context.Context, tm TeacherModule) (TeacherModule, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO teacher_modules (teacher_id, module_id) VALUES ($1, $2) RETURNING id`,
		tm.TeacherID, tm.ModuleID)
	if err := row.Scan(&tm.ID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return TeacherModule{}, fmt.Errorf("assignment exists: %w", apperr.ErrConflict)
		}
		return TeacherModule{}, err
	}
	return tm, nil
}

// GetTeacherModule returns an assignment by id.
func (r *PostgresRepository) GetTeacherModule(ctx context.Context, id int64) (TeacherModule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, teacher_id, module_id FROM teacher_modules WHERE id = $1`, id)
	var tm TeacherModule
	if err := row.Scan(&tm.ID, &tm.TeacherID, &tm.ModuleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TeacherModule{}, fmt.Errorf("teacher-module %d: %w", id, apperr.ErrNotFound)
		}
		return TeacherModule{}, err
	}
	return tm, nil
}

// FindTeacherModule returns the assignment for a (teacher, module) pair.
func (r *PostgresRepository) FindTeacherModule(ctx context.Context, teacherID, moduleID int64) (TeacherModule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, teacher_id, module_id FROM teacher_modules
		WHERE teacher_id = $1 AND module_id = $2`, teacherID, moduleID)
	var tm TeacherModule
	if err := row.Scan(&tm.ID, &tm.TeacherID, &tm.ModuleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TeacherModule{}, fmt.Errorf("teacher %d is not assigned to module %d: %w", teacherID, moduleID, apperr.ErrNotFound)
		}
		return TeacherModule{}, err
	}
	return tm, nil
}

// ListTeacherModules lists a teacher's assignments.
func (r *PostgresRepository) ListTeacherModules(ctx context.Context, teacherID int64) ([]TeacherModule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, teacher_id, module_id FROM teacher_modules WHERE teacher_id = $1 ORDER BY id`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TeacherModule
	for rows.Next() {
		var tm TeacherModule
		if err := rows.Scan(&tm.ID, &tm.TeacherID, &tm.ModuleID); err != nil {
			return nil, err
		}
		out = append(out, tm)
	}
	return out, rows.Err()
}
