// Package eligibility decides whether a student may pursue a job and whether
// they may be admitted to a given round of it. Everything here is pure: the
// callers load the rows and both the QR issuance path and the scan path feed
// the same inputs through the same functions.
package eligibility

import (
	"fmt"
	"slices"
	"strings"

	"placement/internal/apperr"
	"placement/internal/model"
)

// Result is an eligibility verdict. Code and Reason are empty when Eligible.
type Result struct {
	Eligible bool   `json:"eligible"`
	Code     string `json:"code,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// OK is the eligible verdict.
var OK = Result{Eligible: true}

func deny(code, format string, args ...any) Result {
	return Result{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Tier applies the placement-tier lock. Dream offers bypass it entirely.
func Tier(current, jobTier model.Tier, dreamOffer bool) Result {
	if dreamOffer || current == model.TierNone {
		return OK
	}
	switch current {
	case model.TierOne:
		return deny(apperr.CodeNotEligible, "already placed in Tier 1 and blocked from further placements")
	case model.TierTwo:
		if jobTier == model.TierOne {
			return OK
		}
		return deny(apperr.CodeNotEligible, "placed in Tier 2: only Tier 1 jobs are open")
	case model.TierThree:
		if jobTier == model.TierOne || jobTier == model.TierTwo {
			return OK
		}
		return deny(apperr.CodeNotEligible, "placed in Tier 3: only Tier 1 or Tier 2 jobs are open")
	}
	return OK
}

// BatchYear returns the terminal year token of a "2021-2025" style batch.
func BatchYear(batch string) string {
	parts := strings.Split(batch, "-")
	return strings.TrimSpace(parts[len(parts)-1])
}

// Job runs the tier lock followed by the job's academic criteria. The first
// failing rule wins.
func Job(p model.Profile, j model.Job) Result {
	if r := Tier(p.HighestPlacementTier, j.Tier, j.IsDreamOffer); !r.Eligible {
		return r
	}

	cgpa := p.EffectiveCGPA()
	if j.MinCGPA != nil && *j.MinCGPA > 0 && cgpa < *j.MinCGPA {
		return deny(apperr.CodeNotEligible, "minimum CGPA required: %.2f, student CGPA: %.2f", *j.MinCGPA, cgpa)
	}

	if len(j.AllowedBranches) > 0 && p.Branch != "" && !slices.Contains(j.AllowedBranches, p.Branch) {
		return deny(apperr.CodeNotEligible, "branch %s is not eligible for this job", p.Branch)
	}

	if j.EligibleBatch != "" && p.Batch != "" && BatchYear(p.Batch) != BatchYear(j.EligibleBatch) {
		return deny(apperr.CodeNotEligible, "only the %s batch is eligible, student batch: %s", j.EligibleBatch, p.Batch)
	}

	if j.MaxBacklogs != nil && *j.MaxBacklogs == 0 && p.HasActiveBacklog() {
		return deny(apperr.CodeNotEligible, "no active backlogs allowed for this job")
	}
	return OK
}
