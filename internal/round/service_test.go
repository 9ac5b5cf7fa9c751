package round_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"placement/internal/apperr"
	"placement/internal/model"
	"placement/internal/repository/memrepo"
	"placement/internal/round"
)

var admin = model.AdminContext{AdminID: "admin-1"}

func setup(t *testing.T) (*round.Service, string) {
	t.Helper()
	store := memrepo.New()
	jobID := uuid.NewString()
	store.PutJob(model.Job{ID: jobID, Tier: model.TierTwo})
	return round.NewService(store, zap.NewNop()), jobID
}

func orders(rs []model.Round) []int {
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = r.Order
	}
	return out
}

func TestCreate_AppendsInOrder(t *testing.T) {
	svc, jobID := setup(t)
	ctx := context.Background()
	if _, err := svc.Create(ctx, admin, jobID, []string{"Aptitude", " ", "Technical"}); err != nil {
		t.Fatal(err)
	}
	rs, err := svc.Create(ctx, admin, jobID, []string{"HR"})
	if err != nil {
		t.Fatal(err)
	}
	if rs[0].Order != 3 {
		t.Fatalf("HR order = %d, want 3", rs[0].Order)
	}
	all, _ := svc.List(ctx, jobID)
	if got := orders(all); len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("orders = %v", got)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, jobID := setup(t)
	if _, err := svc.Create(context.Background(), admin, jobID, []string{"", "  "}); !apperr.HasCode(err, apperr.CodeInvalidRequest) {
		t.Fatalf("err = %v", err)
	}
	if _, err := svc.Create(context.Background(), admin, uuid.NewString(), []string{"A"}); !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Fatalf("unknown job err = %v", err)
	}
}

func TestSwap_PreservesStrictOrder(t *testing.T) {
	svc, jobID := setup(t)
	ctx := context.Background()
	rs, err := svc.Create(ctx, admin, jobID, []string{"Aptitude", "Technical", "HR"})
	if err != nil {
		t.Fatal(err)
	}
	after, err := svc.Swap(ctx, admin, jobID, rs[0].ID, rs[2].ID)
	if err != nil {
		t.Fatal(err)
	}
	names := []string{after[0].Name, after[1].Name, after[2].Name}
	if names[0] != "HR" || names[1] != "Technical" || names[2] != "Aptitude" {
		t.Fatalf("names = %v", names)
	}
	seen := map[int]bool{}
	for _, o := range orders(after) {
		if seen[o] {
			t.Fatalf("duplicate order %d", o)
		}
		seen[o] = true
	}
}

func TestSwap_Rejections(t *testing.T) {
	svc, jobID := setup(t)
	ctx := context.Background()
	rs, _ := svc.Create(ctx, admin, jobID, []string{"Aptitude", "Technical"})

	if _, err := svc.Swap(ctx, admin, jobID, rs[0].ID, rs[0].ID); !apperr.HasCode(err, apperr.CodeInvalidRequest) {
		t.Errorf("self swap err = %v", err)
	}
	if err := svc.Remove(ctx, admin, jobID, rs[1].ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Swap(ctx, admin, jobID, rs[0].ID, rs[1].ID); !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Errorf("swap with removed err = %v", err)
	}
	if err := svc.Remove(ctx, admin, jobID, rs[1].ID); !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Errorf("double remove err = %v", err)
	}
	if err := svc.Remove(ctx, admin, "not-a-job", rs[0].ID); !apperr.HasCode(err, apperr.CodeInvalidRequest) {
		t.Errorf("malformed job id err = %v", err)
	}
}
