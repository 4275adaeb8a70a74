package attendance

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/3boudi/student-attandence/internal/apperr"
	"github.com/3boudi/student-attandence/internal/enrollment"
	"github.com/3boudi/student-attandence/internal/roster"
)

var baseTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	t          *testing.T
	svc        *Service
	repo       *MemoryRepository
	rosterRepo *roster.MemoryRepository
	enrRepo    *enrollment.MemoryRepository

	specialty roster.Specialty
	teacher   roster.Teacher
	module    roster.Module
	tm        roster.TeacherModule
	students  []roster.Student
	enrs      []enrollment.Enrollment

	clock time.Time
}

// newTestEnv builds one teacher assigned to one module with n enrolled
// students, on a controllable clock.
func newTestEnv(t *testing.T, n int) *testEnv {
	t.Helper()
	ctx := context.Background()
	env := &testEnv{
		t:          t,
		repo:       NewMemoryRepository(),
		rosterRepo: roster.NewMemoryRepository(),
		enrRepo:    enrollment.NewMemoryRepository(),
		clock:      baseTime,
	}
	env.svc = NewService(env.repo, env.rosterRepo, env.enrRepo, nil)
	env.svc.now = func() time.Time { return env.clock }

	var err error
	env.specialty, err = env.rosterRepo.CreateSpecialty(ctx, roster.Specialty{Name: "CS", YearLevel: 2})
	if err != nil {
		t.Fatalf("CreateSpecialty: %v", err)
	}
	env.teacher, err = env.rosterRepo.CreateTeacher(ctx, roster.Teacher{UserID: 1000, FullName: "Dr. T", Email: "t@example.edu"})
	if err != nil {
		t.Fatalf("CreateTeacher: %v", err)
	}
	env.module, env.tm = env.addModule()

	for i := 0; i < n; i++ {
		st, err := env.rosterRepo.CreateStudent(ctx, roster.Student{
			UserID:      int64(2000 + i),
			SpecialtyID: env.specialty.ID,
			FullName:    fmt.Sprintf("Student %d", i+1),
			Email:       fmt.Sprintf("s%d@example.edu", i+1),
		})
		if err != nil {
			t.Fatalf("CreateStudent: %v", err)
		}
		enr, err := env.enrRepo.Create(ctx, enrollment.Enrollment{StudentID: st.ID, ModuleID: env.module.ID})
		if err != nil {
			t.Fatalf("Create enrollment: %v", err)
		}
		env.students = append(env.students, st)
		env.enrs = append(env.enrs, enr)
	}
	return env
}

// addModule registers another module assigned to the same teacher.
func (env *testEnv) addModule() (roster.Module, roster.TeacherModule) {
	env.t.Helper()
	ctx := context.Background()
	m, err := env.rosterRepo.CreateModule(ctx, roster.Module{SpecialtyID: env.specialty.ID, Name: "Module", Code: "M"})
	if err != nil {
		env.t.Fatalf("CreateModule: %v", err)
	}
	tm, err := env.rosterRepo.AssignTeacher(ctx, roster.TeacherModule{TeacherID: env.teacher.ID, ModuleID: m.ID})
	if err != nil {
		env.t.Fatalf("AssignTeacher: %v", err)
	}
	return m, tm
}

func (env *testEnv) createSession(minutes int) CreatedSession {
	env.t.Helper()
	created, err := env.svc.CreateSession(context.Background(), env.teacher.ID, env.module.ID, minutes, "B-204")
	if err != nil {
		env.t.Fatalf("CreateSession: %v", err)
	}
	return created
}

func TestCreateSessionSeedsLedger(t *testing.T) {
	env := newTestEnv(t, 3)
	ctx := context.Background()

	// The excluded student must not receive a record.
	if err := env.enrRepo.SetExcluded(ctx, env.enrs[2].ID, true); err != nil {
		t.Fatalf("SetExcluded: %v", err)
	}

	created := env.createSession(60)
	if created.EnrolledCount != 2 {
		t.Fatalf("enrolled = %d, want 2", created.EnrolledCount)
	}
	if len(created.Session.Code) != codeLength {
		t.Fatalf("code %q has wrong length", created.Session.Code)
	}
	if !created.Session.IsActive {
		t.Fatal("session not active")
	}
	for _, rec := range created.Records {
		if rec.Status != StatusAbsent {
			t.Fatalf("seeded record %d = %s, want ABSENT", rec.ID, rec.Status)
		}
	}
}

func TestCreateSessionNotAssigned(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()

	other, err := env.rosterRepo.CreateTeacher(ctx, roster.Teacher{UserID: 1001, FullName: "Dr. O", Email: "o@example.edu"})
	if err != nil {
		t.Fatalf("CreateTeacher: %v", err)
	}
	_, err = env.svc.CreateSession(ctx, other.ID, env.module.ID, 60, "")
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestCreateSessionInvalidDuration(t *testing.T) {
	env := newTestEnv(t, 1)
	_, err := env.svc.CreateSession(context.Background(), env.teacher.ID, env.module.ID, 0, "")
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestCreateSessionConflictWhileActive(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()

	env.createSession(60)
	_, err := env.svc.CreateSession(ctx, env.teacher.ID, env.module.ID, 60, "")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	// A session with a lapsed window no longer blocks, even with a stale
	// active flag.
	env.clock = env.clock.Add(61 * time.Minute)
	if _, err := env.svc.CreateSession(ctx, env.teacher.ID, env.module.ID, 60, ""); err != nil {
		t.Fatalf("CreateSession after expiry: %v", err)
	}
}

func TestMarkPresent(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()
	created := env.createSession(60)

	rec, err := env.svc.MarkPresent(ctx, env.students[0].ID, created.Session.Code)
	if err != nil {
		t.Fatalf("MarkPresent: %v", err)
	}
	if rec.Status != StatusPresent {
		t.Fatalf("status = %s, want PRESENT", rec.Status)
	}

	// Marking twice is an error, not a no-op.
	_, err = env.svc.MarkPresent(ctx, env.students[0].ID, created.Session.Code)
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("second mark err = %v, want ErrInvalid", err)
	}
}

func TestMarkPresentUnknownCode(t *testing.T) {
	env := newTestEnv(t, 1)
	_, err := env.svc.MarkPresent(context.Background(), env.students[0].ID, "ZZZZZZ")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMarkPresentClosedSession(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	created := env.createSession(60)

	if _, err := env.svc.CloseSession(ctx, created.Session.ID, env.teacher.ID); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	_, err := env.svc.MarkPresent(ctx, env.students[0].ID, created.Session.Code)
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestMarkPresentExpiredStaleActive(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	created := env.createSession(30)

	// Nobody closed the session; the flag is still true but the window has
	// lapsed.
	env.clock = env.clock.Add(31 * time.Minute)
	_, err := env.svc.MarkPresent(ctx, env.students[0].ID, created.Session.Code)
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
	sess, err := env.repo.GetSession(ctx, created.Session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !sess.IsActive {
		t.Fatal("mark path must not flip is_active, that is the sweep's job")
	}
}

func TestMarkPresentNotEnrolled(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	created := env.createSession(60)

	outsider, err := env.rosterRepo.CreateStudent(ctx, roster.Student{UserID: 3000, SpecialtyID: env.specialty.ID, FullName: "Out Sider", Email: "out@example.edu"})
	if err != nil {
		t.Fatalf("CreateStudent: %v", err)
	}
	_, err = env.svc.MarkPresent(ctx, outsider.ID, created.Session.Code)
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestMarkPresentExcludedStudent(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	created := env.createSession(60)

	// Exclusion decided mid-session still blocks the mark.
	if err := env.enrRepo.SetExcluded(ctx, env.enrs[0].ID, true); err != nil {
		t.Fatalf("SetExcluded: %v", err)
	}
	_, err := env.svc.MarkPresent(ctx, env.students[0].ID, created.Session.Code)
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestCloseSessionSettlesAbsencesOnce(t *testing.T) {
	env := newTestEnv(t, 3)
	ctx := context.Background()
	created := env.createSession(60)

	if _, err := env.svc.MarkPresent(ctx, env.students[0].ID, created.Session.Code); err != nil {
		t.Fatalf("MarkPresent: %v", err)
	}

	sess, err := env.svc.CloseSession(ctx, created.Session.ID, env.teacher.ID)
	if err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if sess.IsActive {
		t.Fatal("session still active after close")
	}

	// Closing again is a quiet no-op and must not double-count.
	if _, err := env.svc.CloseSession(ctx, created.Session.ID, env.teacher.ID); err != nil {
		t.Fatalf("second CloseSession: %v", err)
	}

	for i, enr := range env.enrs {
		got, err := env.enrRepo.Get(ctx, enr.ID)
		if err != nil {
			t.Fatalf("Get enrollment: %v", err)
		}
		want := 1
		if i == 0 {
			want = 0 // marked present
		}
		if got.Absences != want {
			t.Fatalf("enrollment %d absences = %d, want %d", enr.ID, got.Absences, want)
		}
	}
}

func TestCloseSessionWrongTeacher(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	created := env.createSession(60)

	other, err := env.rosterRepo.CreateTeacher(ctx, roster.Teacher{UserID: 1002, FullName: "Dr. X", Email: "x@example.edu"})
	if err != nil {
		t.Fatalf("CreateTeacher: %v", err)
	}
	_, err = env.svc.CloseSession(ctx, created.Session.ID, other.ID)
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestCloseExpiredSweep(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()

	shortLived := env.createSession(30)

	// Second session on another module so the per-module conflict rule does
	// not fire.
	module2, _ := env.addModule()
	for _, st := range env.students {
		if _, err := env.enrRepo.Create(ctx, enrollment.Enrollment{StudentID: st.ID, ModuleID: module2.ID}); err != nil {
			t.Fatalf("Create enrollment: %v", err)
		}
	}
	longLived, err := env.svc.CreateSession(ctx, env.teacher.ID, module2.ID, 120, "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	env.clock = env.clock.Add(31 * time.Minute)
	closed, err := env.svc.CloseExpired(ctx)
	if err != nil {
		t.Fatalf("CloseExpired: %v", err)
	}
	if closed != 1 {
		t.Fatalf("closed = %d, want 1", closed)
	}

	s1, _ := env.repo.GetSession(ctx, shortLived.Session.ID)
	if s1.IsActive {
		t.Fatal("expired session still active")
	}
	s2, _ := env.repo.GetSession(ctx, longLived.Session.ID)
	if !s2.IsActive {
		t.Fatal("sweep closed a session inside its window")
	}

	// The sweep settles the ledger like an explicit close.
	got, err := env.enrRepo.Get(ctx, env.enrs[0].ID)
	if err != nil {
		t.Fatalf("Get enrollment: %v", err)
	}
	if got.Absences != 1 {
		t.Fatalf("absences = %d, want 1", got.Absences)
	}

	// A second sweep finds nothing left to do.
	closed, err = env.svc.CloseExpired(ctx)
	if err != nil {
		t.Fatalf("CloseExpired: %v", err)
	}
	if closed != 0 {
		t.Fatalf("second sweep closed = %d, want 0", closed)
	}
}

func TestGetSessionAttendanceStats(t *testing.T) {
	env := newTestEnv(t, 4)
	ctx := context.Background()
	created := env.createSession(60)

	for _, st := range env.students[:2] {
		if _, err := env.svc.MarkPresent(ctx, st.ID, created.Session.Code); err != nil {
			t.Fatalf("MarkPresent: %v", err)
		}
	}

	view, err := env.svc.GetSessionAttendance(ctx, created.Session.ID)
	if err != nil {
		t.Fatalf("GetSessionAttendance: %v", err)
	}
	if view.Stats.Total != 4 || view.Stats.Present != 2 || view.Stats.Absent != 2 {
		t.Fatalf("stats = %+v", view.Stats)
	}
	if view.Stats.Rate != 50 {
		t.Fatalf("rate = %v, want 50", view.Stats.Rate)
	}
	if len(view.Records) != 4 {
		t.Fatalf("records = %d, want 4", len(view.Records))
	}
	if view.Records[0].StudentName == "" {
		t.Fatal("record detail missing student name")
	}
}

func TestListTeacherSessions(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()

	first := env.createSession(30)
	env.clock = env.clock.Add(31 * time.Minute)
	second := env.createSession(30)

	sessions, err := env.svc.ListTeacherSessions(ctx, env.teacher.ID)
	if err != nil {
		t.Fatalf("ListTeacherSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	if sessions[0].ID != second.Session.ID || sessions[1].ID != first.Session.ID {
		t.Fatal("sessions not newest first")
	}
}

func TestStudentSummary(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()

	created := env.createSession(30)
	if _, err := env.svc.MarkPresent(ctx, env.students[0].ID, created.Session.Code); err != nil {
		t.Fatalf("MarkPresent: %v", err)
	}
	if _, err := env.svc.CloseSession(ctx, created.Session.ID, env.teacher.ID); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}

	env.clock = env.clock.Add(time.Hour)
	missed := env.createSession(30)
	if _, err := env.svc.CloseSession(ctx, missed.Session.ID, env.teacher.ID); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}

	summary, err := env.svc.StudentSummary(ctx, env.students[0].ID)
	if err != nil {
		t.Fatalf("StudentSummary: %v", err)
	}
	if summary.TotalSessions != 2 || summary.Present != 1 || summary.UnjustifiedAbsences != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.AttendanceRate != 50 {
		t.Fatalf("rate = %v, want 50", summary.AttendanceRate)
	}
}

type fakeQR struct {
	ref string
	err error
}

func (f fakeQR) Generate(string) (string, error) { return f.ref, f.err }

func TestCreateSessionQRArtifact(t *testing.T) {
	env := newTestEnv(t, 1)
	env.svc.qr = fakeQR{ref: "artifact.png"}

	created := env.createSession(60)
	if created.Session.QRCodeRef != "artifact.png" {
		t.Fatalf("qr ref = %q", created.Session.QRCodeRef)
	}
}

func TestCreateSessionQRFailureNotFatal(t *testing.T) {
	env := newTestEnv(t, 1)
	env.svc.qr = fakeQR{err: errors.New("disk full")}

	created := env.createSession(60)
	if created.Session.ID == 0 {
		t.Fatal("session not created")
	}
	if created.Session.QRCodeRef != "" {
		t.Fatalf("qr ref = %q, want empty", created.Session.QRCodeRef)
	}
}
