package attendance

import (
	"context"
	"fmt"
	"time"

	"placement/internal/apperr"
	"placement/internal/eligibility"
	"placement/internal/model"
	"placement/internal/qrtoken"
)

// Round states reported to the student. Attended rounds report
// "ATTENDED_" followed by the attendance status.
const (
	StateNotStarted  = "NOT_STARTED"
	StateActive      = "ACTIVE"
	StateNotEligible = "NOT_ELIGIBLE"
	StateTempClosed  = "TEMP_CLOSED"
	StatePermClosed  = "PERM_CLOSED"
)

// AttendedState is the state of a round the student already attended.
func AttendedState(st model.AttendanceStatus) string { return "ATTENDED_" + string(st) }

// RoundState is one round as the student sees it.
type RoundState struct {
	RoundID          string           `json:"roundId"`
	RoundName        string           `json:"roundName"`
	RoundOrder       int              `json:"roundOrder"`
	Status           string           `json:"status"`
	QRToken          string           `json:"qrToken,omitempty"`
	QRExpiresAt      *time.Time       `json:"qrExpiresAt,omitempty"`
	IneligibleCode   string           `json:"ineligibleCode,omitempty"`
	IneligibleReason string           `json:"ineligibleReason,omitempty"`
	Attendance       *AttendanceState `json:"attendance,omitempty"`
}

// AttendanceState summarizes a recorded attendance.
type AttendanceState struct {
	MarkedAt time.Time              `json:"markedAt"`
	Result   model.AttendanceStatus `json:"result"`
}

// StudentView is the student's poll response for one job.
type StudentView struct {
	Rounds         []RoundState       `json:"rounds"`
	JobEligibility eligibility.Result `json:"jobEligibility"`
}

// RoundStatuses reports every live round of a job for the student and issues
// a fresh QR token for each round whose latest session is ACTIVE and which
// the student may enter. The admin scan applies the same eligibility rules.
func (s *Service) RoundStatuses(ctx context.Context, student model.StudentContext, jobID string) (StudentView, error) {
	if err := validID("jobId", jobID); err != nil {
		return StudentView{}, err
	}
	if student.UserID == "" {
		return StudentView{}, apperr.Unauthorized(apperr.CodeUnauthorized, "student identity required")
	}
	profile, err := s.requireCandidate(ctx, student.UserID, jobID)
	if err != nil {
		return StudentView{}, err
	}
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return StudentView{}, err
	}
	base := eligibility.Job(profile, job)

	rounds, err := s.store.ListRounds(ctx, jobID, false)
	if err != nil {
		return StudentView{}, apperr.Internal(fmt.Errorf("list rounds: %w", err))
	}
	latest, err := s.store.LatestSessionsByJob(ctx, jobID)
	if err != nil {
		return StudentView{}, apperr.Internal(fmt.Errorf("latest sessions: %w", err))
	}
	attended, err := s.attendanceByRound(ctx, student.UserID, jobID)
	if err != nil {
		return StudentView{}, err
	}

	view := StudentView{Rounds: make([]RoundState, 0, len(rounds)), JobEligibility: base}
	for _, r := range rounds {
		st := RoundState{RoundID: r.ID, RoundName: r.Name, RoundOrder: r.Order}
		ss, hasSession := latest[r.ID]
		a, hasAttendance := attended[r.ID]

		switch {
		case hasAttendance:
			st.Status = AttendedState(a.Status)
			st.Attendance = &AttendanceState{MarkedAt: a.MarkedAt, Result: a.Status}
		case !hasSession:
			st.Status = StateNotStarted
		case ss.Status == model.SessionActive:
			verdict := eligibility.ForRound(r, rounds, attended, base)
			if !verdict.Eligible {
				st.Status = StateNotEligible
				st.IneligibleCode = verdict.Code
				st.IneligibleReason = verdict.Reason
				break
			}
			token, exp, err := s.signer.Issue(qrtoken.Payload{
				UserID:    student.UserID,
				JobID:     jobID,
				RoundID:   r.ID,
				SessionID: ss.ID,
			})
			if err != nil {
				return StudentView{}, apperr.Internal(fmt.Errorf("issue qr token: %w", err))
			}
			s.metrics.TokenIssued()
			st.Status = StateActive
			st.QRToken = token
			st.QRExpiresAt = &exp
		case ss.Status == model.SessionTempClosed:
			st.Status = StateTempClosed
		case ss.Status == model.SessionPermClosed:
			st.Status = StatePermClosed
		default:
			st.Status = StateNotStarted
		}
		view.Rounds = append(view.Rounds, st)
	}
	return view, nil
}
