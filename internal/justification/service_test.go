package justification

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/3boudi/student-attandence/internal/apperr"
	"github.com/3boudi/student-attandence/internal/attendance"
	"github.com/3boudi/student-attandence/internal/enrollment"
	"github.com/3boudi/student-attandence/internal/notify"
	"github.com/3boudi/student-attandence/internal/roster"
)

var baseTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	t          *testing.T
	svc        *Service
	repo       *MemoryRepository
	ledger     *attendance.MemoryRepository
	enrRepo    *enrollment.MemoryRepository
	rosterRepo *roster.MemoryRepository
	inbox      *notify.MemoryStore

	teacher roster.Teacher
	student roster.Student
	enr     enrollment.Enrollment
	session attendance.Session
	record  attendance.Record
}

// newTestEnv builds one open session with one seeded ABSENT record for one
// enrolled student.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	env := &testEnv{
		t:          t,
		repo:       NewMemoryRepository(),
		ledger:     attendance.NewMemoryRepository(),
		enrRepo:    enrollment.NewMemoryRepository(),
		rosterRepo: roster.NewMemoryRepository(),
		inbox:      notify.NewMemoryStore(),
	}
	env.svc = NewService(env.repo, env.ledger, env.enrRepo, env.rosterRepo, notify.NewStoreNotifier(env.inbox))
	env.svc.now = func() time.Time { return baseTime.Add(2 * time.Hour) }

	sp, err := env.rosterRepo.CreateSpecialty(ctx, roster.Specialty{Name: "CS", YearLevel: 2})
	if err != nil {
		t.Fatalf("CreateSpecialty: %v", err)
	}
	env.teacher, err = env.rosterRepo.CreateTeacher(ctx, roster.Teacher{UserID: 1000, FullName: "Dr. T", Email: "t@example.edu"})
	if err != nil {
		t.Fatalf("CreateTeacher: %v", err)
	}
	m, err := env.rosterRepo.CreateModule(ctx, roster.Module{SpecialtyID: sp.ID, Name: "Algorithms", Code: "CS201"})
	if err != nil {
		t.Fatalf("CreateModule: %v", err)
	}
	tm, err := env.rosterRepo.AssignTeacher(ctx, roster.TeacherModule{TeacherID: env.teacher.ID, ModuleID: m.ID})
	if err != nil {
		t.Fatalf("AssignTeacher: %v", err)
	}
	env.student, err = env.rosterRepo.CreateStudent(ctx, roster.Student{UserID: 2000, SpecialtyID: sp.ID, FullName: "Sami B", Email: "sami@example.edu"})
	if err != nil {
		t.Fatalf("CreateStudent: %v", err)
	}
	env.enr, err = env.enrRepo.Create(ctx, enrollment.Enrollment{StudentID: env.student.ID, ModuleID: m.ID})
	if err != nil {
		t.Fatalf("Create enrollment: %v", err)
	}

	sess, records, err := env.ledger.CreateSessionWithRecords(ctx, attendance.Session{
		TeacherModuleID: tm.ID,
		DateTime:        baseTime,
		DurationMinutes: 60,
		Code:            "ABC123",
		IsActive:        true,
	}, []int64{env.enr.ID})
	if err != nil {
		t.Fatalf("CreateSessionWithRecords: %v", err)
	}
	env.session = sess
	env.record = records[0]
	return env
}

func (env *testEnv) teacherValidator() Validator {
	return Validator{ProfileID: env.teacher.ID}
}

func (env *testEnv) submit() Justification {
	env.t.Helper()
	j, err := env.svc.Submit(context.Background(), env.student.ID, env.record.ID, "was at the doctor", "")
	if err != nil {
		env.t.Fatalf("Submit: %v", err)
	}
	return j
}

func (env *testEnv) notifications() []notify.Notification {
	env.t.Helper()
	list, err := env.inbox.ListByUser(context.Background(), env.student.UserID, false, 50)
	if err != nil {
		env.t.Fatalf("ListByUser: %v", err)
	}
	return list
}

func TestSubmit(t *testing.T) {
	env := newTestEnv(t)

	j := env.submit()
	if j.Status != StatusPending {
		t.Fatalf("status = %s, want PENDING", j.Status)
	}
	if j.AttendanceRecordID != env.record.ID {
		t.Fatalf("record id = %d, want %d", j.AttendanceRecordID, env.record.ID)
	}

	msgs := env.notifications()
	if len(msgs) != 1 {
		t.Fatalf("notifications = %d, want 1", len(msgs))
	}
	if msgs[0].Title != "Justification Submitted" {
		t.Fatalf("title = %q", msgs[0].Title)
	}
	if msgs[0].Kind != notify.KindJustificationSubmitted {
		t.Fatalf("kind = %q", msgs[0].Kind)
	}
}

func TestSubmitRequiresComment(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Submit(context.Background(), env.student.ID, env.record.ID, "", "")
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestSubmitOwnership(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Submit(context.Background(), env.student.ID+100, env.record.ID, "not mine", "")
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestSubmitOnlyAbsences(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.ledger.MarkPresent(ctx, env.record.ID); err != nil {
		t.Fatalf("MarkPresent: %v", err)
	}
	_, err := env.svc.Submit(ctx, env.student.ID, env.record.ID, "but I was there", "")
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestSubmitDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.submit()
	_, err := env.svc.Submit(context.Background(), env.student.ID, env.record.ID, "again", "")
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestDecideApproveOpenSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	j := env.submit()

	decided, err := env.svc.Decide(ctx, env.teacherValidator(), j.ID, true, "")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decided.Status != StatusApproved {
		t.Fatalf("status = %s, want APPROVED", decided.Status)
	}
	if decided.ValidatorID == nil || *decided.ValidatorID != env.teacher.ID {
		t.Fatal("validator not recorded")
	}
	if decided.ValidationDate == nil {
		t.Fatal("validation date not recorded")
	}

	rec, err := env.ledger.GetRecord(ctx, env.record.ID)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.Status != attendance.StatusExcluded {
		t.Fatalf("record = %s, want EXCLUDED", rec.Status)
	}

	enr, err := env.enrRepo.Get(ctx, env.enr.ID)
	if err != nil {
		t.Fatalf("Get enrollment: %v", err)
	}
	if enr.JustifiedAbsences != 1 {
		t.Fatalf("justified = %d, want 1", enr.JustifiedAbsences)
	}
	// The session is still open, so no unjustified absence was settled yet
	// and there is nothing to unwind.
	if enr.Absences != 0 {
		t.Fatalf("absences = %d, want 0", enr.Absences)
	}

	msgs := env.notifications()
	if len(msgs) != 2 {
		t.Fatalf("notifications = %d, want 2", len(msgs))
	}
}

func TestDecideApproveAfterClose(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	j := env.submit()

	// Close settled the ledger: the record's absence already counts.
	if _, err := env.ledger.CloseSession(ctx, env.session.ID); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if err := env.enrRepo.AddAbsences(ctx, env.enr.ID, 1); err != nil {
		t.Fatalf("AddAbsences: %v", err)
	}

	if _, err := env.svc.Decide(ctx, env.teacherValidator(), j.ID, true, ""); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	enr, err := env.enrRepo.Get(ctx, env.enr.ID)
	if err != nil {
		t.Fatalf("Get enrollment: %v", err)
	}
	if enr.Absences != 0 {
		t.Fatalf("absences = %d, want 0 after approval", enr.Absences)
	}
	if enr.JustifiedAbsences != 1 {
		t.Fatalf("justified = %d, want 1", enr.JustifiedAbsences)
	}
}

func TestDecideRejectRequiresReason(t *testing.T) {
	env := newTestEnv(t)
	j := env.submit()
	_, err := env.svc.Decide(context.Background(), env.teacherValidator(), j.ID, false, "")
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestDecideReject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	j := env.submit()

	decided, err := env.svc.Decide(ctx, env.teacherValidator(), j.ID, false, "no evidence provided")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decided.Status != StatusRejected {
		t.Fatalf("status = %s, want REJECTED", decided.Status)
	}
	if decided.RejectionReason != "no evidence provided" {
		t.Fatalf("reason = %q", decided.RejectionReason)
	}

	rec, err := env.ledger.GetRecord(ctx, env.record.ID)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.Status != attendance.StatusAbsent {
		t.Fatalf("record = %s, want ABSENT", rec.Status)
	}

	enr, err := env.enrRepo.Get(ctx, env.enr.ID)
	if err != nil {
		t.Fatalf("Get enrollment: %v", err)
	}
	if enr.JustifiedAbsences != 0 {
		t.Fatalf("justified = %d, want 0", enr.JustifiedAbsences)
	}

	msgs := env.notifications()
	if len(msgs) != 2 {
		t.Fatalf("notifications = %d, want 2", len(msgs))
	}
	var rejected notify.Notification
	for _, m := range msgs {
		if m.Kind == notify.KindJustificationRejected {
			rejected = m
		}
	}
	if !strings.Contains(rejected.Message, "no evidence provided") {
		t.Fatalf("rejection message %q missing reason", rejected.Message)
	}
}

func TestDecideTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	j := env.submit()

	if _, err := env.svc.Decide(ctx, env.teacherValidator(), j.ID, true, ""); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	_, err := env.svc.Decide(ctx, env.teacherValidator(), j.ID, false, "changed my mind")
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestDecideForeignTeacher(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	j := env.submit()

	other, err := env.rosterRepo.CreateTeacher(ctx, roster.Teacher{UserID: 1001, FullName: "Dr. O", Email: "o@example.edu"})
	if err != nil {
		t.Fatalf("CreateTeacher: %v", err)
	}
	_, err = env.svc.Decide(ctx, Validator{ProfileID: other.ID}, j.ID, true, "")
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}

	// An admin resolves any session's justification.
	if _, err := env.svc.Decide(ctx, Validator{ProfileID: 1, IsAdmin: true}, j.ID, true, ""); err != nil {
		t.Fatalf("admin Decide: %v", err)
	}
}

func TestListPendingAndByStudent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	j := env.submit()

	pending, err := env.svc.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != j.ID {
		t.Fatalf("pending = %+v", pending)
	}

	mine, err := env.svc.ListByStudent(ctx, env.student.ID)
	if err != nil {
		t.Fatalf("ListByStudent: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != j.ID {
		t.Fatalf("mine = %+v", mine)
	}

	if _, err := env.svc.Decide(ctx, env.teacherValidator(), j.ID, true, ""); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	pending, err = env.svc.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending after decide = %d, want 0", len(pending))
	}
}
