package memrepo_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"placement/internal/model"
	"placement/internal/repository"
	"placement/internal/repository/memrepo"
)

func TestInsertAttendance_UniquePerStudentRound(t *testing.T) {
	s := memrepo.New()
	ctx := context.Background()
	row := model.RoundAttendance{UserID: "u1", JobID: "j1", RoundID: "r1", SessionID: "s1", MarkedAt: time.Now()}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok, dup int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.InsertAttendance(ctx, row)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, repository.ErrDuplicate):
				dup++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 || dup != 19 {
		t.Fatalf("ok=%d dup=%d, want 1/19", ok, dup)
	}
	if n, _, _ := s.Counts(); n != 1 {
		t.Fatalf("attendance rows = %d, want 1", n)
	}
}

func TestAdvanceAttendance_NeverReverts(t *testing.T) {
	s := memrepo.New()
	ctx := context.Background()
	a, err := s.InsertAttendance(ctx, model.RoundAttendance{UserID: "u1", JobID: "j1", RoundID: "r1"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != model.AttendanceAttended {
		t.Fatalf("initial status = %s", a.Status)
	}
	if _, err := s.AdvanceAttendance(ctx, a.ID, model.AttendancePassed); err != nil {
		t.Fatalf("ATTENDED -> PASSED: %v", err)
	}
	if _, err := s.AdvanceAttendance(ctx, a.ID, model.AttendancePassed); err != nil {
		t.Fatalf("PASSED -> PASSED should be a no-op: %v", err)
	}
	if _, err := s.AdvanceAttendance(ctx, a.ID, model.AttendanceFailed); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("PASSED -> FAILED err = %v, want ErrConflict", err)
	}
}

func TestCreateSession_OneOpenPerRound(t *testing.T) {
	s := memrepo.New()
	ctx := context.Background()
	first, err := s.CreateSession(ctx, model.Session{JobID: "j1", RoundID: "r1", Status: model.SessionActive})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateSession(ctx, model.Session{JobID: "j1", RoundID: "r1", Status: model.SessionActive}); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("second open session err = %v, want ErrDuplicate", err)
	}
	if _, err := s.UpdateSessionStatus(ctx, first.ID, model.SessionActive, model.SessionPermClosed); err != nil {
		t.Fatal(err)
	}
	second, err := s.CreateSession(ctx, model.Session{JobID: "j1", RoundID: "r1", Status: model.SessionActive})
	if err != nil {
		t.Fatalf("reopen after close: %v", err)
	}
	latest, err := s.LatestSessionsByJob(ctx, "j1")
	if err != nil || latest["r1"].ID != second.ID {
		t.Fatalf("latest = %+v, %v; want %s", latest, err, second.ID)
	}
	if _, err := s.UpdateSessionStatus(ctx, first.ID, model.SessionActive, model.SessionTempClosed); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("stale CAS err = %v, want ErrConflict", err)
	}
}

func TestApplyFinalSelection_UpsertAndMerge(t *testing.T) {
	s := memrepo.New()
	ctx := context.Background()
	s.PutProfile(model.Profile{UserID: "u1", HighestPlacementTier: model.TierThree})

	in := repository.SelectionInput{UserID: "u1", JobID: "j1", Tier: model.TierOne, CompanyName: "Acme", Salary: 12, At: time.Now()}
	out, err := s.ApplyFinalSelection(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	if out.PreviousTier != model.TierThree || out.Tier != model.TierOne {
		t.Fatalf("tiers = %s -> %s", out.PreviousTier, out.Tier)
	}
	if _, err := s.ApplyFinalSelection(ctx, in); err != nil {
		t.Fatal(err)
	}
	if _, sel, pl := s.Counts(); sel != 1 || pl != 1 {
		t.Fatalf("selections=%d placements=%d, want 1/1", sel, pl)
	}

	in.JobID, in.Tier = "j2", model.TierTwo
	out, err = s.ApplyFinalSelection(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	if out.Tier != model.TierOne {
		t.Fatalf("tier after lower job = %s, want TIER_1", out.Tier)
	}
}

func TestManualSelectionThenAutomaticClearsFlag(t *testing.T) {
	s := memrepo.New()
	ctx := context.Background()
	s.PutProfile(model.Profile{UserID: "u1"})
	fs, err := s.UpsertManualSelection(ctx, model.FinalSelected{UserID: "u1", JobID: "j1", Tier: model.TierTwo, SelectedAt: time.Now()})
	if err != nil || !fs.IsManual {
		t.Fatalf("manual = %+v, %v", fs, err)
	}
	out, err := s.ApplyFinalSelection(ctx, repository.SelectionInput{UserID: "u1", JobID: "j1", Tier: model.TierTwo, At: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	if out.Selection.IsManual || out.Selection.ID != fs.ID {
		t.Fatalf("selection = %+v, want same row with isManual=false", out.Selection)
	}
}

func TestRemovedSelectionStaysRemoved(t *testing.T) {
	s := memrepo.New()
	ctx := context.Background()
	s.PutProfile(model.Profile{UserID: "u1"})
	in := repository.SelectionInput{UserID: "u1", JobID: "j1", Tier: model.TierTwo, CompanyName: "Acme", At: time.Now()}
	out, err := s.ApplyFinalSelection(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	removed, err := s.RemoveFinalSelected(ctx, "j1", out.Selection.ID, time.Now())
	if err != nil || !removed.Removed() {
		t.Fatalf("remove = %+v, %v", removed, err)
	}
	if _, err := s.RemoveFinalSelected(ctx, "j1", out.Selection.ID, time.Now()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("second remove err = %v, want ErrNotFound", err)
	}

	if _, err := s.ApplyFinalSelection(ctx, in); !errors.Is(err, repository.ErrRemoved) {
		t.Fatalf("cascade over removal err = %v, want ErrRemoved", err)
	}
	got, err := s.GetFinalSelected(ctx, "u1", "j1")
	if err != nil || !got.Removed() {
		t.Fatalf("selection = %+v, %v; want removed", got, err)
	}
	if list, total, _ := s.ListFinalSelected(ctx, repository.SelectionFilter{JobID: "j1", Page: 1, Limit: 10}); total != 0 || len(list) != 0 {
		t.Fatalf("list total = %d, want 0", total)
	}

	in.Revive = true
	out, err = s.ApplyFinalSelection(ctx, in)
	if err != nil || out.Selection.Removed() || out.Selection.ID != removed.ID {
		t.Fatalf("revive = %+v, %v", out.Selection, err)
	}
}

func TestPendingSelectionJobs_IgnoresRemoved(t *testing.T) {
	s := memrepo.New()
	ctx := context.Background()
	s.PutJob(model.Job{ID: "j1"})
	s.PutProfile(model.Profile{UserID: "u1"})
	rounds, err := s.CreateRounds(ctx, "j1", []string{"HR"})
	if err != nil {
		t.Fatal(err)
	}
	a, err := s.InsertAttendance(ctx, model.RoundAttendance{UserID: "u1", JobID: "j1", RoundID: rounds[0].ID})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AdvanceAttendance(ctx, a.ID, model.AttendancePassed); err != nil {
		t.Fatal(err)
	}
	if jobs, _ := s.PendingSelectionJobs(ctx); len(jobs) != 1 || jobs[0] != "j1" {
		t.Fatalf("pending = %v, want [j1]", jobs)
	}
	out, err := s.ApplyFinalSelection(ctx, repository.SelectionInput{UserID: "u1", JobID: "j1", Tier: model.TierTwo, At: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.RemoveFinalSelected(ctx, "j1", out.Selection.ID, time.Now()); err != nil {
		t.Fatal(err)
	}
	if jobs, _ := s.PendingSelectionJobs(ctx); len(jobs) != 0 {
		t.Fatalf("pending after removal = %v, want none", jobs)
	}
}

func TestRoundsAppendAndSwap(t *testing.T) {
	s := memrepo.New()
	ctx := context.Background()
	s.PutJob(model.Job{ID: "j1"})
	rounds, err := s.CreateRounds(ctx, "j1", []string{"Aptitude", "Technical", "HR"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveRound(ctx, "j1", rounds[2].ID); err != nil {
		t.Fatal(err)
	}
	more, err := s.CreateRounds(ctx, "j1", []string{"Managerial"})
	if err != nil {
		t.Fatal(err)
	}
	if more[0].Order != 3 {
		t.Fatalf("appended order = %d, want 3", more[0].Order)
	}
	if err := s.SwapRoundOrder(ctx, "j1", rounds[0].ID, more[0].ID); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetRound(ctx, rounds[0].ID)
	if got.Order != 3 {
		t.Fatalf("swapped order = %d, want 3", got.Order)
	}
	orders := s.RoundOrders("j1")
	if len(orders) != 3 || orders[0] != 1 || orders[1] != 2 || orders[2] != 3 {
		t.Fatalf("orders = %v", orders)
	}
	if err := s.SwapRoundOrder(ctx, "j1", rounds[0].ID, rounds[2].ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("swap with removed round err = %v", err)
	}
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	body := `{"jobs":[{"id":"j1","tier":"TIER_2"}],"profiles":[{"user_id":"u1","kyc_status":"VERIFIED"}],"applications":[{"user_id":"u1","job_id":"j1"}]}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	s := memrepo.New()
	if err := s.LoadSeed(path); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if j, err := s.GetJob(ctx, "j1"); err != nil || j.Tier != model.TierTwo {
		t.Fatalf("job = %+v, %v", j, err)
	}
	if _, err := s.GetApplication(ctx, "u1", "j1"); err != nil {
		t.Fatalf("application: %v", err)
	}
}
