package selection

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"placement/internal/apperr"
	"placement/internal/model"
	"placement/internal/queue"
	"placement/internal/repository"
)

// ReconcileResult reports one reconciliation pass over a job.
type ReconcileResult struct {
	JobID    string   `json:"jobId"`
	Checked  int      `json:"checked"`
	Repaired int      `json:"repaired"`
	Failed   []string `json:"failed,omitempty"`
}

// Reconcile re-runs the cascade for every PASSED attendance on the job's
// final round whose FinalSelected, Placement or tier merge is missing.
// Selections an admin removed are left alone.
func (s *Service) Reconcile(ctx context.Context, jobID string) (ReconcileResult, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return ReconcileResult{}, err
	}
	res := ReconcileResult{JobID: jobID}
	final, ok, err := s.finalRound(ctx, jobID)
	if err != nil || !ok {
		return res, err
	}

	for page := 1; ; page++ {
		rows, total, err := s.store.ListAttendance(ctx, repository.AttendanceFilter{
			JobID:   jobID,
			RoundID: final.ID,
			Status:  model.AttendancePassed,
			Page:    page,
			Limit:   500,
		})
		if err != nil {
			return res, apperr.Internal(fmt.Errorf("list passed attendance: %w", err))
		}
		for _, a := range rows {
			res.Checked++
			pending, profile, err := s.needsCascade(ctx, job, a)
			if err != nil {
				return res, err
			}
			if !pending {
				continue
			}
			_, err = s.cascade(ctx, job, a, profile, false)
			if errors.Is(err, repository.ErrRemoved) {
				continue
			}
			if err != nil {
				s.metrics.CascadeFailed()
				s.log.Error("reconcile cascade failed",
					zap.String("job_id", jobID),
					zap.String("attendance_id", a.ID),
					zap.Error(err),
				)
				res.Failed = append(res.Failed, a.ID)
				continue
			}
			res.Repaired++
		}
		if len(rows) == 0 || page*500 >= total {
			break
		}
	}
	if res.Repaired > 0 || len(res.Failed) > 0 {
		s.log.Info("selection reconciliation",
			zap.String("job_id", jobID),
			zap.Int("checked", res.Checked),
			zap.Int("repaired", res.Repaired),
			zap.Int("failed", len(res.Failed)),
		)
	}
	return res, nil
}

func (s *Service) needsCascade(ctx context.Context, job model.Job, a model.RoundAttendance) (bool, model.Profile, error) {
	profile, err := s.store.GetProfile(ctx, a.UserID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return false, profile, apperr.Internal(fmt.Errorf("get profile: %w", err))
	}
	fs, err := s.store.GetFinalSelected(ctx, a.UserID, job.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return true, profile, nil
		}
		return false, profile, apperr.Internal(fmt.Errorf("get final selection: %w", err))
	}
	if fs.Removed() {
		return false, profile, nil
	}
	if _, err := s.store.GetPlacement(ctx, a.UserID, job.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return true, profile, nil
		}
		return false, profile, apperr.Internal(fmt.Errorf("get placement: %w", err))
	}
	return model.MergeTier(profile.HighestPlacementTier, job.Tier) != profile.HighestPlacementTier, profile, nil
}

// ReconcileAll reconciles every job the store reports as pending.
func (s *Service) ReconcileAll(ctx context.Context) ([]ReconcileResult, error) {
	jobs, err := s.store.PendingSelectionJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("pending selection jobs: %w", err)
	}
	out := make([]ReconcileResult, 0, len(jobs))
	for _, jobID := range jobs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := s.Reconcile(ctx, jobID)
		if err != nil {
			s.log.Error("reconcile job failed", zap.String("job_id", jobID), zap.Error(err))
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

// Retry re-runs the cascade for one queued failure. A row that is no longer
// PASSED on the final round, or whose selection an admin removed, is dropped.
func (s *Service) Retry(ctx context.Context, r queue.CascadeRetry) error {
	job, err := s.getJob(ctx, r.JobID)
	if err != nil {
		return err
	}
	rows, err := s.store.AttendanceBatch(ctx, r.JobID, []string{r.AttendanceID})
	if err != nil {
		return fmt.Errorf("load attendance: %w", err)
	}
	if len(rows) == 0 || rows[0].Status != model.AttendancePassed {
		return nil
	}
	final, ok, err := s.finalRound(ctx, r.JobID)
	if err != nil {
		return err
	}
	if !ok || rows[0].RoundID != final.ID {
		return nil
	}
	profile, err := s.store.GetProfile(ctx, rows[0].UserID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("get profile: %w", err)
	}
	_, err = s.cascade(ctx, job, rows[0], profile, false)
	if errors.Is(err, repository.ErrRemoved) {
		s.log.Info("cascade retry dropped, selection removed",
			zap.String("job_id", r.JobID),
			zap.String("attendance_id", r.AttendanceID),
		)
		return nil
	}
	if err != nil {
		s.metrics.CascadeFailed()
		return fmt.Errorf("cascade retry: %w", err)
	}
	s.log.Info("cascade retry succeeded",
		zap.String("job_id", r.JobID),
		zap.String("attendance_id", r.AttendanceID),
	)
	return nil
}
