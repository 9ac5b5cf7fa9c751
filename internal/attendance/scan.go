package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"placement/internal/apperr"
	"placement/internal/eligibility"
	"placement/internal/model"
	"placement/internal/qrtoken"
	"placement/internal/repository"
)

// outcome labels for scans that succeed; failures are labelled by error code.
const (
	outcomeVerified = "VERIFIED"
	outcomeLegacy   = "LEGACY"
	outcomeMarked   = "MARKED"
)

// Tuple is the (student, job, round, session) binding a scan verified. It is
// echoed back unchanged to Confirm.
type Tuple struct {
	UserID    string `json:"userId"`
	JobID     string `json:"jobId"`
	RoundID   string `json:"roundId"`
	SessionID string `json:"sessionId"`
}

// ScanRequest is the decoded QR string plus the scanning context.
type ScanRequest struct {
	QRData   string
	JobID    string
	Location string
}

// ScanResult is returned by a successful phase-one scan or a legacy scan.
type ScanResult struct {
	Message              string      `json:"message"`
	RequiresConfirmation bool        `json:"requireConfirmation"`
	Legacy               bool        `json:"legacy,omitempty"`
	Student              StudentInfo `json:"student"`
	Round                *RoundInfo  `json:"round,omitempty"`
	Job                  JobInfo     `json:"job"`
	TokenData            *Tuple      `json:"tokenData,omitempty"`
	ScannedAt            *time.Time  `json:"scannedAt,omitempty"`
}

// ConfirmRequest commits a tuple returned by Scan.
type ConfirmRequest struct {
	Tuple
	Location string
}

// verified is everything phase one resolved for a tuple.
type verified struct {
	profile model.Profile
	job     model.Job
	round   model.Round
	session model.Session
}

// Scan is phase one: it verifies the token and every admission rule without
// writing anything. Strings that are not signed tokens go down the legacy path.
func (s *Service) Scan(ctx context.Context, admin model.AdminContext, req ScanRequest) (ScanResult, error) {
	res, outcome, err := s.scan(ctx, admin, req)
	s.metrics.Scan(outcomeLabel(outcome, err))
	return res, err
}

func (s *Service) scan(ctx context.Context, admin model.AdminContext, req ScanRequest) (ScanResult, string, error) {
	raw := strings.TrimSpace(req.QRData)
	if raw == "" {
		return ScanResult{}, "", apperr.Validation(apperr.CodeInvalidRequest, "QR data is required")
	}

	payload, err := s.signer.Verify(raw)
	switch {
	case errors.Is(err, qrtoken.ErrNotSigned):
		res, err := s.legacyScan(ctx, admin, raw, req.JobID, req.Location)
		return res, outcomeLegacy, err
	case errors.Is(err, qrtoken.ErrExpired):
		return ScanResult{}, "", apperr.Validation(apperr.CodeInvalidToken, "QR code has expired, ask the student to refresh it")
	case err != nil:
		return ScanResult{}, "", apperr.Validation(apperr.CodeInvalidToken, "QR code failed verification")
	}

	t := Tuple(payload)
	if req.JobID != "" && t.JobID != req.JobID {
		return ScanResult{}, "", apperr.Validation(apperr.CodeWrongJob, "this QR code is for a different job").
			With("jobId", t.JobID)
	}
	v, err := s.verify(ctx, t)
	if err != nil {
		return ScanResult{}, "", err
	}
	round := roundInfo(v.round)
	return ScanResult{
		Message:              "Student verified. Ready to mark attendance.",
		RequiresConfirmation: true,
		Student:              studentInfo(v.profile),
		Round:                &round,
		Job:                  jobInfo(v.job),
		TokenData:            &t,
	}, outcomeVerified, nil
}

// Confirm is phase two. It trusts nothing from phase one: every rule is
// checked again, then the row is inserted. The (student, round) unique key
// turns a racing second confirm into ALREADY_ATTENDED.
func (s *Service) Confirm(ctx context.Context, admin model.AdminContext, req ConfirmRequest) (model.RoundAttendance, error) {
	a, err := s.confirm(ctx, admin, req)
	outcome := ""
	if err == nil {
		outcome = outcomeMarked
	}
	s.metrics.Confirm(outcomeLabel(outcome, err))
	return a, err
}

func (s *Service) confirm(ctx context.Context, admin model.AdminContext, req ConfirmRequest) (model.RoundAttendance, error) {
	for field, id := range map[string]string{
		"jobId": req.JobID, "roundId": req.RoundID, "sessionId": req.SessionID,
	} {
		if err := validID(field, id); err != nil {
			return model.RoundAttendance{}, err
		}
	}
	if req.UserID == "" {
		return model.RoundAttendance{}, apperr.Validation(apperr.CodeInvalidRequest, "userId is required")
	}

	v, err := s.verify(ctx, req.Tuple)
	if err != nil {
		return model.RoundAttendance{}, err
	}

	created, err := s.store.InsertAttendance(ctx, model.RoundAttendance{
		UserID:    req.UserID,
		JobID:     req.JobID,
		RoundID:   req.RoundID,
		SessionID: req.SessionID,
		Status:    model.AttendanceAttended,
		MarkedAt:  s.now().UTC(),
		MarkedBy:  admin.AdminID,
		Location:  req.Location,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.RoundAttendance{}, apperr.Conflict(apperr.CodeAlreadyAttended,
				"attendance already recorded for this round").
				With("student", studentInfo(v.profile)).
				With("round", roundInfo(v.round))
		}
		return model.RoundAttendance{}, apperr.Internal(fmt.Errorf("insert attendance: %w", err))
	}
	s.log.Info("round attendance marked",
		zap.String("admin_id", admin.AdminID),
		zap.String("job_id", created.JobID),
		zap.String("round_id", created.RoundID),
		zap.String("session_id", created.SessionID),
		zap.String("user_id", created.UserID),
	)
	return created, nil
}

// verify runs every admission rule for t in a fixed order: session, round,
// application, KYC, duplicate, progression. It never writes.
func (s *Service) verify(ctx context.Context, t Tuple) (verified, error) {
	var v verified

	ss, err := s.store.GetSession(ctx, t.SessionID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return v, apperr.Internal(fmt.Errorf("get session: %w", err))
	}
	if err != nil || ss.JobID != t.JobID || ss.RoundID != t.RoundID {
		return v, apperr.NotFound("session not found, the QR code may be invalid")
	}
	switch ss.Status {
	case model.SessionActive:
	case model.SessionTempClosed:
		return v, apperr.Conflict(apperr.CodeSessionTempClosed, "session is temporarily closed, QR is no longer valid").
			With("sessionStatus", ss.Status)
	default:
		return v, apperr.Conflict(apperr.CodeSessionPermClosed, "session is permanently closed, QR is no longer valid").
			With("sessionStatus", ss.Status)
	}
	v.session = ss

	round, err := s.store.GetRound(ctx, t.RoundID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return v, apperr.Internal(fmt.Errorf("get round: %w", err))
	}
	if err != nil || round.JobID != t.JobID || round.IsRemoved {
		return v, apperr.NotFound("round not found")
	}
	v.round = round

	if v.job, err = s.getJob(ctx, t.JobID); err != nil {
		return v, err
	}
	if v.profile, err = s.requireCandidate(ctx, t.UserID, t.JobID); err != nil {
		return v, err
	}

	attended, err := s.attendanceByRound(ctx, t.UserID, t.JobID)
	if err != nil {
		return v, err
	}
	if existing, ok := attended[t.RoundID]; ok {
		return v, apperr.Conflict(apperr.CodeAlreadyAttended, "attendance already recorded for this round").
			With("student", studentInfo(v.profile)).
			With("round", roundInfo(round)).
			With("job", jobInfo(v.job)).
			With("markedAt", existing.MarkedAt)
	}

	rounds, err := s.store.ListRounds(ctx, t.JobID, false)
	if err != nil {
		return v, apperr.Internal(fmt.Errorf("list rounds: %w", err))
	}
	verdict := eligibility.ForRound(round, rounds, attended, eligibility.Job(v.profile, v.job))
	if !verdict.Eligible {
		return v, apperr.Conflict(verdict.Code, "%s", verdict.Reason).
			With("round", roundInfo(round))
	}
	return v, nil
}

func outcomeLabel(outcome string, err error) string {
	if err == nil {
		return outcome
	}
	if ae, ok := apperr.As(err); ok {
		return ae.Code
	}
	return apperr.CodeInternal
}
