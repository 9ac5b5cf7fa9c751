// Package selection adjudicates round attendance and turns a PASSED verdict
// on a job's final round into a final selection, a placement and a tier merge.
package selection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"placement/internal/apperr"
	"placement/internal/eligibility"
	"placement/internal/metrics"
	"placement/internal/model"
	"placement/internal/queue"
	"placement/internal/repository"
)

// Store is the storage the selection engine needs.
type Store interface {
	repository.JobRepository
	repository.StudentRepository
	repository.RoundRepository
	repository.AttendanceRepository
	repository.SelectionRepository
}

// Publisher accepts cascade retries. queue.Queue satisfies it.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Service runs batch status updates, the selection cascade and overrides.
type Service struct {
	store   Store
	retries Publisher
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService builds the engine. retries may be nil, in which case failed
// cascades are only left for the reconciliation sweep.
func NewService(store Store, retries Publisher, log *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{store: store, retries: retries, log: log, metrics: m, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Rejection is a row of the batch whose status could not be written.
type Rejection struct {
	AttendanceID string                 `json:"attendanceId"`
	Current      model.AttendanceStatus `json:"currentStatus,omitempty"`
	Code         string                 `json:"code"`
	Reason       string                 `json:"reason"`
}

// CascadeFailure is a row whose status was written but whose cascade failed.
type CascadeFailure struct {
	AttendanceID string `json:"attendanceId"`
	UserID       string `json:"userId"`
	Error        string `json:"error"`
	Queued       bool   `json:"queued"`
}

// BatchResult summarizes UpdateStatus.
type BatchResult struct {
	Status          model.AttendanceStatus  `json:"status"`
	Updated         int                     `json:"updated"`
	Attendances     []model.RoundAttendance `json:"attendances"`
	FinalRoundID    string                  `json:"finalRoundId,omitempty"`
	Selections      []model.FinalSelected   `json:"selections"`
	Rejected        []Rejection             `json:"rejected,omitempty"`
	CascadeFailures []CascadeFailure        `json:"cascadeFailures,omitempty"`
}

// UpdateStatus moves every referenced attendance of jobID to PASSED or FAILED.
// All ids must belong to the job. Each row is written on its own; rows already
// carrying the other verdict are reported in Rejected. For PASSED rows on the
// final round the cascade runs after the status write and a failure there
// never undoes the write.
func (s *Service) UpdateStatus(ctx context.Context, admin model.AdminContext, jobID string, ids []string, status string) (BatchResult, error) {
	to, ok := model.ParseAttendanceStatus(status)
	if !ok || to == model.AttendanceAttended {
		return BatchResult{}, apperr.Validation(apperr.CodeInvalidRequest, "status must be PASSED or FAILED")
	}
	ids, err := uniqueIDs(ids)
	if err != nil {
		return BatchResult{}, err
	}
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return BatchResult{}, err
	}

	rows, err := s.store.AttendanceBatch(ctx, jobID, ids)
	if err != nil {
		return BatchResult{}, apperr.Internal(fmt.Errorf("load attendance batch: %w", err))
	}
	if len(rows) != len(ids) {
		found := make(map[string]bool, len(rows))
		for _, a := range rows {
			found[a.ID] = true
		}
		var missing []string
		for _, id := range ids {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return BatchResult{}, apperr.Validation(apperr.CodeInvalidRequest,
			"%d attendance record(s) do not belong to this job", len(missing)).With("missing", missing)
	}

	final, hasFinal, err := s.finalRound(ctx, jobID)
	if err != nil {
		return BatchResult{}, err
	}

	res := BatchResult{Status: to, Attendances: make([]model.RoundAttendance, 0, len(rows)), Selections: []model.FinalSelected{}}
	if hasFinal {
		res.FinalRoundID = final.ID
	}
	var passedFinal []model.RoundAttendance
	for _, a := range rows {
		updated, err := s.store.AdvanceAttendance(ctx, a.ID, to)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				res.Rejected = append(res.Rejected, Rejection{
					AttendanceID: a.ID,
					Current:      a.Status,
					Code:         apperr.CodeInvalidTransition,
					Reason:       fmt.Sprintf("attendance is already %s and cannot be changed to %s", a.Status, to),
				})
				continue
			}
			return res, apperr.Internal(fmt.Errorf("advance attendance %s: %w", a.ID, err))
		}
		res.Updated++
		res.Attendances = append(res.Attendances, updated)
		if to == model.AttendancePassed && hasFinal && updated.RoundID == final.ID {
			passedFinal = append(passedFinal, updated)
		}
	}
	s.metrics.StatusUpdated(string(to), res.Updated)

	if len(passedFinal) > 0 {
		userIDs := make([]string, 0, len(passedFinal))
		for _, a := range passedFinal {
			userIDs = append(userIDs, a.UserID)
		}
		profiles, err := s.store.ListProfiles(ctx, userIDs)
		if err != nil {
			return res, apperr.Internal(fmt.Errorf("load profiles: %w", err))
		}
		for _, a := range passedFinal {
			out, err := s.cascade(ctx, job, a, profiles[a.UserID], true)
			if err != nil {
				res.CascadeFailures = append(res.CascadeFailures, s.cascadeFailed(ctx, a, err))
				continue
			}
			res.Selections = append(res.Selections, out.Selection)
		}
		s.log.Info("final selections auto-created",
			zap.String("admin_id", admin.AdminID),
			zap.String("job_id", jobID),
			zap.Strings("user_ids", userIDs),
			zap.Int("count", len(res.Selections)),
		)
	}

	s.log.Info("batch attendance status updated",
		zap.String("admin_id", admin.AdminID),
		zap.String("job_id", jobID),
		zap.Strings("attendance_ids", ids),
		zap.String("status", string(to)),
		zap.Int("updated", res.Updated),
		zap.Int("rejected", len(res.Rejected)),
		zap.Int("cascade_failures", len(res.CascadeFailures)),
	)
	return res, nil
}

// cascade writes FinalSelected, Placement and the tier merge for one
// final-round PASSED row. It is idempotent. Only an admin batch sets revive;
// background repair leaves an admin removal in place and gets ErrRemoved.
func (s *Service) cascade(ctx context.Context, job model.Job, a model.RoundAttendance, profile model.Profile, revive bool) (repository.SelectionOutcome, error) {
	tier := job.Tier
	if !tier.Valid() {
		tier = model.TierThree
	}
	company := job.CompanyName
	if company == "" {
		company = "Unknown"
	}
	var salary float64
	if job.MaxSalary != nil {
		salary = *job.MaxSalary
	}
	out, err := s.store.ApplyFinalSelection(ctx, repository.SelectionInput{
		UserID:      a.UserID,
		JobID:       job.ID,
		USN:         profile.USN,
		Year:        profile.Batch,
		Tier:        tier,
		Package:     job.MaxSalary,
		Role:        job.Title,
		CompanyName: company,
		Salary:      salary,
		At:          s.now().UTC(),
		Revive:      revive,
	})
	if err != nil {
		return repository.SelectionOutcome{}, err
	}
	s.metrics.SelectionCreated()
	if out.Tier != out.PreviousTier {
		s.log.Info("placement tier upgraded",
			zap.String("user_id", a.UserID),
			zap.String("job_id", job.ID),
			zap.String("from", string(out.PreviousTier)),
			zap.String("to", string(out.Tier)),
		)
	}
	return out, nil
}

func (s *Service) cascadeFailed(ctx context.Context, a model.RoundAttendance, cause error) CascadeFailure {
	s.metrics.CascadeFailed()
	f := CascadeFailure{AttendanceID: a.ID, UserID: a.UserID, Error: cause.Error()}
	s.log.Error("final selection cascade failed",
		zap.String("job_id", a.JobID),
		zap.String("attendance_id", a.ID),
		zap.String("user_id", a.UserID),
		zap.Error(cause),
	)
	if s.retries == nil {
		return f
	}
	msg, err := queue.NewCascadeRetry(queue.CascadeRetry{
		JobID:        a.JobID,
		AttendanceID: a.ID,
		UserID:       a.UserID,
		FailedAt:     s.now().UTC(),
		Reason:       cause.Error(),
	})
	if err == nil {
		err = s.retries.Publish(ctx, msg)
	}
	if err != nil {
		s.log.Warn("cascade retry not queued, left for reconciliation",
			zap.String("attendance_id", a.ID), zap.Error(err))
		return f
	}
	f.Queued = true
	return f
}

func (s *Service) getJob(ctx context.Context, jobID string) (model.Job, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return model.Job{}, apperr.Validation(apperr.CodeInvalidRequest, "jobId must be a valid id")
	}
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Job{}, apperr.NotFound("job not found")
		}
		return model.Job{}, apperr.Internal(fmt.Errorf("get job: %w", err))
	}
	return job, nil
}

func (s *Service) finalRound(ctx context.Context, jobID string) (model.Round, bool, error) {
	rounds, err := s.store.ListRounds(ctx, jobID, false)
	if err != nil {
		return model.Round{}, false, apperr.Internal(fmt.Errorf("list rounds: %w", err))
	}
	final, ok := eligibility.FinalRound(rounds)
	return final, ok, nil
}

func uniqueIDs(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, apperr.Validation(apperr.CodeInvalidRequest, "attendanceIds are required")
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return nil, apperr.Validation(apperr.CodeInvalidRequest, "attendance id %q is not a valid id", id)
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}
