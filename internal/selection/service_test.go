package selection_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"placement/internal/apperr"
	"placement/internal/eligibility"
	"placement/internal/model"
	"placement/internal/queue"
	"placement/internal/repository"
	"placement/internal/repository/memrepo"
	"placement/internal/selection"
)

var admin = model.AdminContext{AdminID: "admin-1"}

func ptr[T any](v T) *T { return &v }

// failingStore makes ApplyFinalSelection fail for chosen users.
type failingStore struct {
	*memrepo.Store

	mu   sync.Mutex
	fail map[string]error
}

func (s *failingStore) failFor(userID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, userID)
		return
	}
	s.fail[userID] = err
}

func (s *failingStore) ApplyFinalSelection(ctx context.Context, in repository.SelectionInput) (repository.SelectionOutcome, error) {
	s.mu.Lock()
	err := s.fail[in.UserID]
	s.mu.Unlock()
	if err != nil {
		return repository.SelectionOutcome{}, err
	}
	return s.Store.ApplyFinalSelection(ctx, in)
}

type fixture struct {
	t      *testing.T
	store  *failingStore
	queue  *queue.InMemory
	svc    *selection.Service
	job    model.Job
	rounds []model.Round
}

func newFixture(t *testing.T, tier model.Tier) *fixture {
	t.Helper()
	store := &failingStore{Store: memrepo.New(), fail: make(map[string]error)}
	f := &fixture{t: t, store: store, queue: queue.NewInMemory(16)}
	f.job = model.Job{ID: uuid.NewString(), Title: "SDE", CompanyName: "Acme", Tier: tier, MaxSalary: ptr(12.5)}
	f.store.PutJob(f.job)
	rounds, err := f.store.CreateRounds(context.Background(), f.job.ID, []string{"Aptitude", "Technical", "HR"})
	if err != nil {
		t.Fatal(err)
	}
	f.rounds = rounds
	f.svc = selection.NewService(f.store, f.queue, zap.NewNop(), nil)
	return f
}

func (f *fixture) student(tier model.Tier) string {
	id := uuid.NewString()
	f.store.PutProfile(model.Profile{UserID: id, USN: "USN-" + id[:4], Batch: "2022-2026", KYCStatus: model.KYCVerified, HighestPlacementTier: tier})
	f.store.PutApplication(model.Application{UserID: id, JobID: f.job.ID})
	return id
}

func (f *fixture) attend(userID string, r model.Round) model.RoundAttendance {
	f.t.Helper()
	a, err := f.store.InsertAttendance(context.Background(), model.RoundAttendance{
		UserID: userID, JobID: f.job.ID, RoundID: r.ID, SessionID: uuid.NewString(), MarkedAt: time.Now(),
	})
	if err != nil {
		f.t.Fatal(err)
	}
	return a
}

func TestUpdateStatus_NonFinalRoundWritesNoSelections(t *testing.T) {
	f := newFixture(t, model.TierTwo)
	a1 := f.attend(f.student(model.TierNone), f.rounds[0])
	a2 := f.attend(f.student(model.TierNone), f.rounds[1])

	res, err := f.svc.UpdateStatus(context.Background(), admin, f.job.ID, []string{a1.ID, a2.ID}, "PASSED")
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 2 || len(res.Selections) != 0 {
		t.Fatalf("result = %+v", res)
	}
	if _, sel, pl := f.store.Counts(); sel != 0 || pl != 0 {
		t.Fatalf("selections=%d placements=%d, want 0/0", sel, pl)
	}
}

func TestUpdateStatus_FinalRoundCascadeIsIdempotent(t *testing.T) {
	f := newFixture(t, model.TierOne)
	ctx := context.Background()
	user := f.student(model.TierThree)
	a := f.attend(user, f.rounds[2])

	for i := 0; i < 3; i++ {
		res, err := f.svc.UpdateStatus(ctx, admin, f.job.ID, []string{a.ID, a.ID}, "PASSED")
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if res.Updated != 1 || len(res.Selections) != 1 || len(res.CascadeFailures) != 0 {
			t.Fatalf("run %d result = %+v", i, res)
		}
	}
	if _, sel, pl := f.store.Counts(); sel != 1 || pl != 1 {
		t.Fatalf("selections=%d placements=%d, want 1/1", sel, pl)
	}

	fs, err := f.store.GetFinalSelected(ctx, user, f.job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fs.IsManual || fs.Tier != model.TierOne || fs.Role != "SDE" || fs.Year != "2022-2026" || *fs.Package != 12.5 {
		t.Fatalf("selection = %+v", fs)
	}
	pl, err := f.store.GetPlacement(ctx, user, f.job.ID)
	if err != nil || pl.Salary != 12.5 || pl.CompanyName != "Acme" {
		t.Fatalf("placement = %+v, %v", pl, err)
	}
	p, _ := f.store.GetProfile(ctx, user)
	if p.HighestPlacementTier != model.TierOne || p.PlacedAt == nil {
		t.Fatalf("profile tier = %s", p.HighestPlacementTier)
	}
}

func TestUpdateStatus_TierNeverDowngrades(t *testing.T) {
	f := newFixture(t, model.TierTwo)
	ctx := context.Background()
	user := f.student(model.TierOne)
	a := f.attend(user, f.rounds[2])

	if _, err := f.svc.UpdateStatus(ctx, admin, f.job.ID, []string{a.ID}, "PASSED"); err != nil {
		t.Fatal(err)
	}
	p, _ := f.store.GetProfile(ctx, user)
	if p.HighestPlacementTier != model.TierOne {
		t.Fatalf("tier = %s, want TIER_1", p.HighestPlacementTier)
	}
}

func TestUpdateStatus_FailedOnFinalRoundHasNoCascade(t *testing.T) {
	f := newFixture(t, model.TierTwo)
	a := f.attend(f.student(model.TierNone), f.rounds[2])
	res, err := f.svc.UpdateStatus(context.Background(), admin, f.job.ID, []string{a.ID}, "FAILED")
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 1 || len(res.Selections) != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestUpdateStatus_VerdictNeverReverts(t *testing.T) {
	f := newFixture(t, model.TierTwo)
	ctx := context.Background()
	a := f.attend(f.student(model.TierNone), f.rounds[0])
	b := f.attend(f.student(model.TierNone), f.rounds[0])
	if _, err := f.svc.UpdateStatus(ctx, admin, f.job.ID, []string{a.ID}, "PASSED"); err != nil {
		t.Fatal(err)
	}
	res, err := f.svc.UpdateStatus(ctx, admin, f.job.ID, []string{a.ID, b.ID}, "FAILED")
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 1 || len(res.Rejected) != 1 || res.Rejected[0].AttendanceID != a.ID {
		t.Fatalf("result = %+v", res)
	}
	rows, _ := f.store.AttendanceBatch(ctx, f.job.ID, []string{a.ID})
	if rows[0].Status != model.AttendancePassed {
		t.Fatalf("status = %s, want PASSED", rows[0].Status)
	}
}

func TestUpdateStatus_Validation(t *testing.T) {
	f := newFixture(t, model.TierTwo)
	ctx := context.Background()
	a := f.attend(f.student(model.TierNone), f.rounds[0])

	cases := []struct {
		name   string
		ids    []string
		status string
	}{
		{"attended is not a verdict", []string{a.ID}, "ATTENDED"},
		{"unknown status", []string{a.ID}, "MAYBE"},
		{"no ids", nil, "PASSED"},
		{"malformed id", []string{"x"}, "PASSED"},
		{"foreign id", []string{a.ID, uuid.NewString()}, "PASSED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.UpdateStatus(ctx, admin, f.job.ID, tc.ids, tc.status)
			if !apperr.HasCode(err, apperr.CodeInvalidRequest) {
				t.Fatalf("err = %v", err)
			}
		})
	}
	rows, _ := f.store.AttendanceBatch(ctx, f.job.ID, []string{a.ID})
	if rows[0].Status != model.AttendanceAttended {
		t.Fatalf("rejected batch wrote status %s", rows[0].Status)
	}
}

func TestUpdateStatus_CascadeFailureKeepsStatusAndQueuesRetry(t *testing.T) {
	f := newFixture(t, model.TierTwo)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ok := f.student(model.TierNone)
	bad := f.student(model.TierNone)
	f.store.failFor(bad, errors.New("lock timeout"))
	a1 := f.attend(ok, f.rounds[2])
	a2 := f.attend(bad, f.rounds[2])

	res, err := f.svc.UpdateStatus(ctx, admin, f.job.ID, []string{a1.ID, a2.ID}, "PASSED")
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 2 || len(res.Selections) != 1 || len(res.CascadeFailures) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if cf := res.CascadeFailures[0]; cf.AttendanceID != a2.ID || !cf.Queued {
		t.Fatalf("cascade failure = %+v", cf)
	}
	rows, _ := f.store.AttendanceBatch(ctx, f.job.ID, []string{a2.ID})
	if rows[0].Status != model.AttendancePassed {
		t.Fatalf("status write rolled back: %s", rows[0].Status)
	}

	msgs, _ := f.queue.Consume(ctx)
	msg := <-msgs
	retry, err := msg.CascadeRetry()
	if err != nil || retry.AttendanceID != a2.ID {
		t.Fatalf("retry = %+v, %v", retry, err)
	}

	if err := f.svc.Retry(ctx, retry); err == nil {
		t.Fatal("retry should fail while storage still fails")
	}
	f.store.failFor(bad, nil)
	if err := f.svc.Retry(ctx, retry); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.GetFinalSelected(ctx, bad, f.job.ID); err != nil {
		t.Fatalf("selection after retry: %v", err)
	}
}

func TestReconcile_RepairsMissingCascade(t *testing.T) {
	f := newFixture(t, model.TierThree)
	ctx := context.Background()
	user := f.student(model.TierNone)
	f.store.failFor(user, errors.New("boom"))
	a := f.attend(user, f.rounds[2])
	f.svc = selection.NewService(f.store, nil, zap.NewNop(), nil)
	if _, err := f.svc.UpdateStatus(ctx, admin, f.job.ID, []string{a.ID}, "PASSED"); err != nil {
		t.Fatal(err)
	}

	pending, _ := f.store.PendingSelectionJobs(ctx)
	if len(pending) != 1 || pending[0] != f.job.ID {
		t.Fatalf("pending = %v", pending)
	}
	f.store.failFor(user, nil)
	results, err := f.svc.ReconcileAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Repaired != 1 {
		t.Fatalf("results = %+v", results)
	}
	again, err := f.svc.Reconcile(ctx, f.job.ID)
	if err != nil || again.Checked != 1 || again.Repaired != 0 {
		t.Fatalf("second pass = %+v, %v", again, err)
	}
}

func TestManualSelect_IsCascadeExempt(t *testing.T) {
	f := newFixture(t, model.TierOne)
	ctx := context.Background()
	user := f.student(model.TierThree)

	fs, err := f.svc.ManualSelect(ctx, admin, f.job.ID, selection.ManualRequest{UserID: user, Role: "Intern"})
	if err != nil {
		t.Fatal(err)
	}
	if !fs.IsManual || fs.Tier != model.TierOne || fs.Role != "Intern" || *fs.Package != 12.5 {
		t.Fatalf("selection = %+v", fs)
	}
	if _, err := f.store.GetPlacement(ctx, user, f.job.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("manual override wrote a placement: %v", err)
	}
	p, _ := f.store.GetProfile(ctx, user)
	if p.HighestPlacementTier != model.TierThree {
		t.Fatalf("tier = %s, want TIER_3", p.HighestPlacementTier)
	}

	_, err = f.svc.ManualSelect(ctx, admin, f.job.ID, selection.ManualRequest{UserID: uuid.NewString()})
	if !apperr.HasCode(err, apperr.CodeNotApplied) {
		t.Fatalf("unapplied err = %v", err)
	}
	_, err = f.svc.ManualSelect(ctx, admin, f.job.ID, selection.ManualRequest{UserID: user, Tier: "TIER_9"})
	if !apperr.HasCode(err, apperr.CodeInvalidRequest) {
		t.Fatalf("bad tier err = %v", err)
	}
}

func TestListAndRemove(t *testing.T) {
	f := newFixture(t, model.TierTwo)
	ctx := context.Background()
	user := f.student(model.TierNone)
	fs, err := f.svc.ManualSelect(ctx, admin, f.job.ID, selection.ManualRequest{UserID: user})
	if err != nil {
		t.Fatal(err)
	}
	page, err := f.svc.List(ctx, repository.SelectionFilter{JobID: f.job.ID, Year: "2022-2026"})
	if err != nil || page.Total != 1 {
		t.Fatalf("page = %+v, %v", page, err)
	}
	if err := f.svc.Remove(ctx, admin, f.job.ID, fs.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Remove(ctx, admin, f.job.ID, fs.ID); !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Fatalf("second remove err = %v", err)
	}
	if err := f.svc.Remove(ctx, admin, "job-1", fs.ID); !apperr.HasCode(err, apperr.CodeInvalidRequest) {
		t.Fatalf("malformed job id err = %v", err)
	}
	page, err = f.svc.List(ctx, repository.SelectionFilter{JobID: f.job.ID})
	if err != nil || page.Total != 0 || len(page.Items) != 0 {
		t.Fatalf("page after remove = %+v, %v", page, err)
	}
}

func TestRemove_SurvivesReconcileAndRetry(t *testing.T) {
	f := newFixture(t, model.TierTwo)
	ctx := context.Background()
	user := f.student(model.TierNone)
	a := f.attend(user, f.rounds[2])
	if _, err := f.svc.UpdateStatus(ctx, admin, f.job.ID, []string{a.ID}, "PASSED"); err != nil {
		t.Fatal(err)
	}
	fs, err := f.store.GetFinalSelected(ctx, user, f.job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Remove(ctx, admin, f.job.ID, fs.ID); err != nil {
		t.Fatal(err)
	}

	if pending, _ := f.store.PendingSelectionJobs(ctx); len(pending) != 0 {
		t.Fatalf("pending after remove = %v", pending)
	}
	if _, err := f.svc.ReconcileAll(ctx); err != nil {
		t.Fatal(err)
	}
	res, err := f.svc.Reconcile(ctx, f.job.ID)
	if err != nil || res.Checked != 1 || res.Repaired != 0 || len(res.Failed) != 0 {
		t.Fatalf("reconcile = %+v, %v", res, err)
	}
	if err := f.svc.Retry(ctx, queue.CascadeRetry{JobID: f.job.ID, AttendanceID: a.ID, UserID: user}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	got, err := f.store.GetFinalSelected(ctx, user, f.job.ID)
	if err != nil || !got.Removed() {
		t.Fatalf("selection = %+v, %v; want still removed", got, err)
	}
	page, err := f.svc.List(ctx, repository.SelectionFilter{JobID: f.job.ID})
	if err != nil || page.Total != 0 {
		t.Fatalf("page = %+v, %v", page, err)
	}

	// An admin re-running the batch restores it.
	res2, err := f.svc.UpdateStatus(ctx, admin, f.job.ID, []string{a.ID}, "PASSED")
	if err != nil || len(res2.Selections) != 1 {
		t.Fatalf("rerun = %+v, %v", res2, err)
	}
	got, _ = f.store.GetFinalSelected(ctx, user, f.job.ID)
	if got.Removed() || got.ID != fs.ID {
		t.Fatalf("selection after rerun = %+v", got)
	}
}

func TestConcurrentBatchesForSameStudent(t *testing.T) {
	f := newFixture(t, model.TierTwo)
	ctx := context.Background()
	user := f.student(model.TierNone)
	a := f.attend(user, f.rounds[2])

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.UpdateStatus(ctx, admin, f.job.ID, []string{a.ID}, "PASSED"); err != nil {
				t.Errorf("update: %v", err)
			}
		}()
	}
	wg.Wait()
	if _, sel, pl := f.store.Counts(); sel != 1 || pl != 1 {
		t.Fatalf("selections=%d placements=%d, want 1/1", sel, pl)
	}
}

// Aptitude → Technical → HR for one student, ending in an automatic selection.
func TestWorkedExample(t *testing.T) {
	f := newFixture(t, model.TierTwo)
	ctx := context.Background()
	user := f.student(model.TierNone)
	apt, tech, hr := f.rounds[0], f.rounds[1], f.rounds[2]

	attended := func() map[string]model.RoundAttendance {
		rows, _ := f.store.AttendanceForJob(ctx, user, f.job.ID)
		m := make(map[string]model.RoundAttendance)
		for _, r := range rows {
			m[r.RoundID] = r
		}
		return m
	}
	pass := func(a model.RoundAttendance) {
		if _, err := f.svc.UpdateStatus(ctx, admin, f.job.ID, []string{a.ID}, "PASSED"); err != nil {
			t.Fatal(err)
		}
	}

	pass(f.attend(user, apt))
	if r := eligibility.ForRound(tech, f.rounds, attended(), eligibility.OK); !r.Eligible {
		t.Fatalf("technical = %+v", r)
	}
	if r := eligibility.ForRound(hr, f.rounds, attended(), eligibility.OK); r.Code != apperr.CodePreviousRoundNotAttended {
		t.Fatalf("hr = %+v", r)
	}
	pass(f.attend(user, tech))
	if r := eligibility.ForRound(hr, f.rounds, attended(), eligibility.OK); !r.Eligible {
		t.Fatalf("hr after technical = %+v", r)
	}
	pass(f.attend(user, hr))

	fs, err := f.store.GetFinalSelected(ctx, user, f.job.ID)
	if err != nil || fs.IsManual {
		t.Fatalf("final selection = %+v, %v", fs, err)
	}
}
