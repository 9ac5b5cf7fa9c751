// Package round manages the ordered stages of a job's drive.
package round

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"placement/internal/apperr"
	"placement/internal/model"
	"placement/internal/repository"
)

// Store is the storage the round service needs.
type Store interface {
	repository.JobRepository
	repository.RoundRepository
}

// Service creates, removes, lists and reorders rounds.
type Service struct {
	store Store
	log   *zap.Logger
}

// NewService builds a round service.
func NewService(store Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log}
}

// Create appends rounds after the job's current highest order, in the order given.
func (s *Service) Create(ctx context.Context, admin model.AdminContext, jobID string, names []string) ([]model.Round, error) {
	clean := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			clean = append(clean, n)
		}
	}
	if len(clean) == 0 {
		return nil, apperr.Validation(apperr.CodeInvalidRequest, "at least one round name is required")
	}
	if err := s.requireJob(ctx, jobID); err != nil {
		return nil, err
	}
	rounds, err := s.store.CreateRounds(ctx, jobID, clean)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict(apperr.CodeConcurrentUpdate, "rounds changed concurrently, retry")
		}
		return nil, apperr.Internal(fmt.Errorf("create rounds: %w", err))
	}
	s.log.Info("rounds created",
		zap.String("admin_id", admin.AdminID),
		zap.String("job_id", jobID),
		zap.Int("count", len(rounds)),
	)
	return rounds, nil
}

// List returns a job's non-removed rounds by ascending order.
func (s *Service) List(ctx context.Context, jobID string) ([]model.Round, error) {
	if err := s.requireJob(ctx, jobID); err != nil {
		return nil, err
	}
	rounds, err := s.store.ListRounds(ctx, jobID, false)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list rounds: %w", err))
	}
	return rounds, nil
}

// Remove soft-deletes a round. Remaining orders are not compacted; gating
// always looks at the next-lower live order.
func (s *Service) Remove(ctx context.Context, admin model.AdminContext, jobID, roundID string) error {
	if _, err := uuid.Parse(jobID); err != nil {
		return apperr.Validation(apperr.CodeInvalidRequest, "jobId must be a valid id")
	}
	if _, err := uuid.Parse(roundID); err != nil {
		return apperr.Validation(apperr.CodeInvalidRequest, "roundId must be a valid id")
	}
	if err := s.store.RemoveRound(ctx, jobID, roundID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("round not found")
		}
		return apperr.Internal(fmt.Errorf("remove round: %w", err))
	}
	s.log.Info("round removed",
		zap.String("admin_id", admin.AdminID),
		zap.String("job_id", jobID),
		zap.String("round_id", roundID),
	)
	return nil
}

// Swap exchanges the order of two live rounds of the same job.
func (s *Service) Swap(ctx context.Context, admin model.AdminContext, jobID, roundA, roundB string) ([]model.Round, error) {
	for _, id := range []string{roundA, roundB} {
		if _, err := uuid.Parse(id); err != nil {
			return nil, apperr.Validation(apperr.CodeInvalidRequest, "round ids must be valid ids")
		}
	}
	if roundA == roundB {
		return nil, apperr.Validation(apperr.CodeInvalidRequest, "cannot swap a round with itself")
	}
	if err := s.store.SwapRoundOrder(ctx, jobID, roundA, roundB); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperr.NotFound("both rounds must exist in this job and not be removed")
		case errors.Is(err, repository.ErrDuplicate), errors.Is(err, repository.ErrConflict):
			return nil, apperr.Conflict(apperr.CodeConcurrentUpdate, "rounds changed concurrently, retry")
		}
		return nil, apperr.Internal(fmt.Errorf("swap rounds: %w", err))
	}
	s.log.Info("rounds reordered",
		zap.String("admin_id", admin.AdminID),
		zap.String("job_id", jobID),
		zap.String("round_a", roundA),
		zap.String("round_b", roundB),
	)
	return s.List(ctx, jobID)
}

func (s *Service) requireJob(ctx context.Context, jobID string) error {
	if _, err := uuid.Parse(jobID); err != nil {
		return apperr.Validation(apperr.CodeInvalidRequest, "jobId must be a valid id")
	}
	if _, err := s.store.GetJob(ctx, jobID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("job not found")
		}
		return apperr.Internal(fmt.Errorf("get job: %w", err))
	}
	return nil
}
