package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"placement/internal/apperr"
	"placement/internal/metrics"
	"placement/internal/model"
	"placement/internal/repository"
)

// Store is the storage the session service needs.
type Store interface {
	repository.RoundRepository
	repository.SessionRepository
}

// Service starts and moves sessions.
type Service struct {
	store           Store
	log             *zap.Logger
	metrics         *metrics.Metrics
	defaultDuration time.Duration
	now             func() time.Time
}

// NewService builds a session service. defaultDuration is used when Start is
// called without an explicit duration.
func NewService(store Store, log *zap.Logger, m *metrics.Metrics, defaultDuration time.Duration) *Service {
	if defaultDuration <= 0 {
		defaultDuration = time.Hour
	}
	return &Service{store: store, log: log, metrics: m, defaultDuration: defaultDuration, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// StartRequest opens a session for a round.
type StartRequest struct {
	JobID     string
	RoundID   string
	StartTime *time.Time
	Duration  time.Duration
}

// Start creates an ACTIVE session. It fails with SESSION_ALREADY_OPEN when
// the round already has an ACTIVE or TEMP_CLOSED session.
func (s *Service) Start(ctx context.Context, admin model.AdminContext, req StartRequest) (model.Session, error) {
	if _, err := uuid.Parse(req.RoundID); err != nil {
		return model.Session{}, apperr.Validation(apperr.CodeInvalidRequest, "roundId must be a valid id")
	}
	if req.Duration < 0 {
		return model.Session{}, apperr.Validation(apperr.CodeInvalidRequest, "duration must be positive")
	}
	round, err := s.store.GetRound(ctx, req.RoundID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Session{}, apperr.NotFound("round not found")
		}
		return model.Session{}, apperr.Internal(fmt.Errorf("get round: %w", err))
	}
	if round.JobID != req.JobID || round.IsRemoved {
		return model.Session{}, apperr.NotFound("round not found")
	}

	start := s.now().UTC()
	if req.StartTime != nil {
		start = req.StartTime.UTC()
	}
	duration := req.Duration
	if duration == 0 {
		duration = s.defaultDuration
	}
	end := start.Add(duration)

	created, err := s.store.CreateSession(ctx, model.Session{
		JobID:     round.JobID,
		RoundID:   round.ID,
		Status:    model.SessionActive,
		StartTime: start,
		EndTime:   &end,
		CreatedBy: admin.AdminID,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.Session{}, apperr.Conflict(apperr.CodeSessionAlreadyOpen,
				"round %q already has an open session", round.Name)
		}
		return model.Session{}, apperr.Internal(fmt.Errorf("create session: %w", err))
	}
	s.metrics.SessionTransition(string(model.SessionActive))
	s.log.Info("session started",
		zap.String("admin_id", admin.AdminID),
		zap.String("job_id", created.JobID),
		zap.String("round_id", created.RoundID),
		zap.String("session_id", created.ID),
		zap.Time("end_time", end),
	)
	return created, nil
}

// Apply moves a session according to action. The write is a compare-and-set
// on the status read here, so a concurrent admin action yields INVALID_TRANSITION.
func (s *Service) Apply(ctx context.Context, admin model.AdminContext, jobID, sessionID string, action Action) (model.Session, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return model.Session{}, apperr.Validation(apperr.CodeInvalidRequest, "sessionId must be a valid id")
	}
	cur, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Session{}, apperr.NotFound("session not found")
		}
		return model.Session{}, apperr.Internal(fmt.Errorf("get session: %w", err))
	}
	if cur.JobID != jobID {
		return model.Session{}, apperr.NotFound("session not found")
	}

	to := action.Target()
	if !IsTransitionAllowed(cur.Status, to) {
		return model.Session{}, apperr.Conflict(apperr.CodeInvalidTransition,
			"cannot move session from %s to %s", cur.Status, to).
			With("from", cur.Status).With("to", to)
	}
	updated, err := s.store.UpdateSessionStatus(ctx, cur.ID, cur.Status, to)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return model.Session{}, apperr.Conflict(apperr.CodeInvalidTransition,
				"session changed concurrently, reload and retry")
		case errors.Is(err, repository.ErrDuplicate):
			return model.Session{}, apperr.Conflict(apperr.CodeSessionAlreadyOpen,
				"round already has another open session")
		}
		return model.Session{}, apperr.Internal(fmt.Errorf("update session: %w", err))
	}
	s.metrics.SessionTransition(string(to))
	s.log.Info("session transition",
		zap.String("admin_id", admin.AdminID),
		zap.String("job_id", jobID),
		zap.String("session_id", sessionID),
		zap.String("from", string(cur.Status)),
		zap.String("to", string(to)),
	)
	return updated, nil
}

// Pause moves ACTIVE → TEMP_CLOSED.
func (s *Service) Pause(ctx context.Context, admin model.AdminContext, jobID, sessionID string) (model.Session, error) {
	return s.Apply(ctx, admin, jobID, sessionID, ActionTempClose)
}

// Resume moves TEMP_CLOSED → ACTIVE.
func (s *Service) Resume(ctx context.Context, admin model.AdminContext, jobID, sessionID string) (model.Session, error) {
	return s.Apply(ctx, admin, jobID, sessionID, ActionResume)
}

// Close moves ACTIVE or TEMP_CLOSED → PERM_CLOSED.
func (s *Service) Close(ctx context.Context, admin model.AdminContext, jobID, sessionID string) (model.Session, error) {
	return s.Apply(ctx, admin, jobID, sessionID, ActionPermClose)
}

// View is a session with its advisory expiry flag.
type View struct {
	model.Session
	Expired bool `json:"expired"`
}

// List returns a job's sessions, newest first.
func (s *Service) List(ctx context.Context, jobID string) ([]View, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, apperr.Validation(apperr.CodeInvalidRequest, "jobId must be a valid id")
	}
	sessions, err := s.store.ListSessions(ctx, jobID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list sessions: %w", err))
	}
	now := s.now()
	out := make([]View, 0, len(sessions))
	for _, ss := range sessions {
		out = append(out, View{Session: ss, Expired: ss.Expired(now)})
	}
	return out, nil
}
