package eligibility

import (
	"placement/internal/apperr"
	"placement/internal/model"
)

// PreviousRound returns the non-removed round with the greatest order strictly
// below target's order.
func PreviousRound(target model.Round, rounds []model.Round) (model.Round, bool) {
	var (
		prev  model.Round
		found bool
	)
	for _, r := range rounds {
		if r.IsRemoved || r.JobID != target.JobID || r.Order >= target.Order {
			continue
		}
		if !found || r.Order > prev.Order {
			prev, found = r, true
		}
	}
	return prev, found
}

// FinalRound returns the non-removed round with the greatest order.
func FinalRound(rounds []model.Round) (model.Round, bool) {
	var (
		last  model.Round
		found bool
	)
	for _, r := range rounds {
		if r.IsRemoved {
			continue
		}
		if !found || r.Order > last.Order {
			last, found = r, true
		}
	}
	return last, found
}

// ForRound decides admission to target. The first round (or any round with no
// non-removed predecessor) defers to base, the job-level verdict. Later rounds
// require PASSED on the immediate previous round. attendance is keyed by round id.
func ForRound(target model.Round, rounds []model.Round, attendance map[string]model.RoundAttendance, base Result) Result {
	if target.Order <= 1 {
		return base
	}
	prev, ok := PreviousRound(target, rounds)
	if !ok {
		return base
	}

	att, attended := attendance[prev.ID]
	if !attended {
		return deny(apperr.CodePreviousRoundNotAttended, "has not attended the previous round %q", prev.Name)
	}
	switch att.Status {
	case model.AttendancePassed:
		return OK
	case model.AttendanceFailed:
		return deny(apperr.CodeNotShortlisted, "not shortlisted from the %q round", prev.Name)
	default:
		return deny(apperr.CodeAwaitingResults, "waiting for results from %q", prev.Name)
	}
}
