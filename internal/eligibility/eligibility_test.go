package eligibility_test

import (
	"strings"
	"testing"

	"placement/internal/apperr"
	"placement/internal/eligibility"
	"placement/internal/model"
)

func ptr[T any](v T) *T { return &v }

// ── Tier ──────────────────────────────────────────────────────────────────

func TestTier(t *testing.T) {
	cases := []struct {
		name    string
		current model.Tier
		job     model.Tier
		dream   bool
		want    bool
	}{
		{"dream bypasses tier 1 lock", model.TierOne, model.TierThree, true, true},
		{"unplaced may apply anywhere", model.TierNone, model.TierThree, false, true},
		{"tier 1 blocked from tier 1", model.TierOne, model.TierOne, false, false},
		{"tier 1 blocked from tier 2", model.TierOne, model.TierTwo, false, false},
		{"tier 2 may go to tier 1", model.TierTwo, model.TierOne, false, true},
		{"tier 2 blocked from tier 2", model.TierTwo, model.TierTwo, false, false},
		{"tier 2 blocked from tier 3", model.TierTwo, model.TierThree, false, false},
		{"tier 3 may go to tier 1", model.TierThree, model.TierOne, false, true},
		{"tier 3 may go to tier 2", model.TierThree, model.TierTwo, false, true},
		{"tier 3 blocked from tier 3", model.TierThree, model.TierThree, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := eligibility.Tier(tc.current, tc.job, tc.dream)
			if got.Eligible != tc.want {
				t.Errorf("Tier(%s, %s, %v) = %+v, want eligible=%v", tc.current, tc.job, tc.dream, got, tc.want)
			}
			if !got.Eligible && got.Reason == "" {
				t.Error("rejection must carry a reason")
			}
		})
	}
}

// ── Job ───────────────────────────────────────────────────────────────────

func baseProfile() model.Profile {
	return model.Profile{
		UserID:    "u1",
		Branch:    "CSE",
		Batch:     "2021-2025",
		KYCStatus: model.KYCVerified,
		CGPA:      ptr(8.2),
	}
}

func TestJob_AllCriteriaPass(t *testing.T) {
	job := model.Job{
		Tier:            model.TierTwo,
		MinCGPA:         ptr(7.0),
		AllowedBranches: []string{"CSE", "ISE"},
		EligibleBatch:   "2025",
		MaxBacklogs:     ptr(0),
	}
	if r := eligibility.Job(baseProfile(), job); !r.Eligible {
		t.Fatalf("expected eligible, got %+v", r)
	}
}

func TestJob_FirstFailureWins(t *testing.T) {
	p := baseProfile()
	p.HighestPlacementTier = model.TierOne
	p.CGPA = ptr(5.0)

	job := model.Job{Tier: model.TierTwo, MinCGPA: ptr(7.0)}
	r := eligibility.Job(p, job)
	if r.Eligible {
		t.Fatal("expected rejection")
	}
	if !strings.Contains(r.Reason, "Tier 1") {
		t.Errorf("tier rule should fail first, got %q", r.Reason)
	}
}

func TestJob_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*model.Profile, *model.Job)
		snippet string
	}{
		{"cgpa floor", func(p *model.Profile, j *model.Job) { j.MinCGPA = ptr(9.0) }, "minimum CGPA"},
		{"final cgpa preferred", func(p *model.Profile, j *model.Job) {
			p.FinalCGPA = ptr(6.0)
			j.MinCGPA = ptr(7.0)
		}, "6.00"},
		{"branch not allowed", func(p *model.Profile, j *model.Job) { j.AllowedBranches = []string{"ECE"} }, "branch CSE"},
		{"batch year mismatch", func(p *model.Profile, j *model.Job) { j.EligibleBatch = "2022-2026" }, "batch"},
		{"active backlog", func(p *model.Profile, j *model.Job) {
			p.ActiveBacklogs = true
			j.MaxBacklogs = ptr(0)
		}, "backlogs"},
		{"declared backlog", func(p *model.Profile, j *model.Job) {
			p.HasBacklogs = "yes"
			j.MaxBacklogs = ptr(0)
		}, "backlogs"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := baseProfile()
			j := model.Job{Tier: model.TierThree}
			tc.mutate(&p, &j)
			r := eligibility.Job(p, j)
			if r.Eligible {
				t.Fatal("expected rejection")
			}
			if r.Code != apperr.CodeNotEligible {
				t.Errorf("code = %q", r.Code)
			}
			if !strings.Contains(r.Reason, tc.snippet) {
				t.Errorf("reason %q should mention %q", r.Reason, tc.snippet)
			}
		})
	}
}

func TestJob_NoRestrictionWhenUnset(t *testing.T) {
	p := baseProfile()
	p.ActiveBacklogs = true
	job := model.Job{Tier: model.TierThree, MaxBacklogs: ptr(2)}
	if r := eligibility.Job(p, job); !r.Eligible {
		t.Errorf("backlogs allowed when max > 0, got %+v", r)
	}
}

func TestBatchYear(t *testing.T) {
	cases := map[string]string{
		"2021-2025":   "2025",
		"2025":        "2025",
		"2021 - 2025": "2025",
		"":            "",
	}
	for in, want := range cases {
		if got := eligibility.BatchYear(in); got != want {
			t.Errorf("BatchYear(%q) = %q, want %q", in, got, want)
		}
	}
}
