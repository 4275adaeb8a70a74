package store

import "context"

// schema is the full DDL, idempotent so startup can apply it every boot.
// Unique indexes carry the concurrency rules: one enrollment per
// (student, module), one assignment per (teacher, module), one share code per
// session, one record per (session, enrollment), one justification per
// record.
const schema = `
CREATE TABLE IF NOT EXISTS specialties (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	year_level INT  NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS students (
	id           BIGSERIAL PRIMARY KEY,
	user_id      BIGINT NOT NULL,
	specialty_id BIGINT NOT NULL REFERENCES specialties(id),
	full_name    TEXT   NOT NULL,
	email        TEXT   NOT NULL
);

CREATE TABLE IF NOT EXISTS teachers (
	id        BIGSERIAL PRIMARY KEY,
	user_id   BIGINT NOT NULL,
	full_name TEXT   NOT NULL,
	email     TEXT   NOT NULL
);

CREATE TABLE IF NOT EXISTS modules (
	id           BIGSERIAL PRIMARY KEY,
	specialty_id BIGINT NOT NULL REFERENCES specialties(id),
	name         TEXT   NOT NULL,
	code         TEXT   NOT NULL
);

CREATE TABLE IF NOT EXISTS teacher_modules (
	id         BIGSERIAL PRIMARY KEY,
	teacher_id BIGINT NOT NULL REFERENCES teachers(id),
	module_id  BIGINT NOT NULL REFERENCES modules(id),
	UNIQUE (teacher_id, module_id)
);

CREATE TABLE IF NOT EXISTS enrollments (
	id                           BIGSERIAL PRIMARY KEY,
	student_id                   BIGINT  NOT NULL REFERENCES students(id),
	module_id                    BIGINT  NOT NULL REFERENCES modules(id),
	is_excluded                  BOOLEAN NOT NULL DEFAULT FALSE,
	number_of_absences           INT     NOT NULL DEFAULT 0,
	number_of_absences_justified INT     NOT NULL DEFAULT 0,
	UNIQUE (student_id, module_id)
);

CREATE TABLE IF NOT EXISTS sessions (
	id                BIGSERIAL PRIMARY KEY,
	teacher_module_id BIGINT      NOT NULL REFERENCES teacher_modules(id),
	date_time         TIMESTAMPTZ NOT NULL,
	duration_minutes  INT         NOT NULL,
	session_code      TEXT        NOT NULL UNIQUE,
	session_qrcode    TEXT,
	room              TEXT,
	is_active         BOOLEAN     NOT NULL DEFAULT TRUE,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS attendance_records (
	id            BIGSERIAL PRIMARY KEY,
	session_id    BIGINT      NOT NULL REFERENCES sessions(id),
	enrollment_id BIGINT      NOT NULL REFERENCES enrollments(id),
	status        TEXT        NOT NULL DEFAULT 'ABSENT',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (session_id, enrollment_id)
);

CREATE TABLE IF NOT EXISTS justifications (
	id                   BIGSERIAL PRIMARY KEY,
	attendance_record_id BIGINT      NOT NULL UNIQUE REFERENCES attendance_records(id),
	comment              TEXT        NOT NULL,
	file_url             TEXT,
	status               TEXT        NOT NULL DEFAULT 'PENDING',
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	validation_date      TIMESTAMPTZ,
	validator_id         BIGINT,
	rejection_reason     TEXT
);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	user_id    BIGINT      NOT NULL,
	title      TEXT        NOT NULL,
	message    TEXT        NOT NULL,
	type       TEXT        NOT NULL,
	is_read    BOOLEAN     NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_active ON sessions (is_active) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_records_enrollment ON attendance_records (enrollment_id);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications (user_id, created_at DESC);
`

// EnsureSchema applies the DDL.
func (d *DB) EnsureSchema(ctx context.Context) error {
	_, err := d.Client.ExecContext(ctx, schema)
	return err
}
