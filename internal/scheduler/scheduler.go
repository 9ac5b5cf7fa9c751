// Package scheduler runs the periodic cascade reconciliation sweep.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"placement/internal/selection"
)

// Reconciler repairs missing final selections. selection.Service satisfies it.
type Reconciler interface {
	ReconcileAll(ctx context.Context) ([]selection.ReconcileResult, error)
}

// Scheduler wraps robfig/cron and owns the sweep.
type Scheduler struct {
	cron *cron.Cron
	rec  Reconciler
	spec string
	log  *zap.Logger

	running sync.Mutex
}

func New(rec Reconciler, spec string, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		rec:  rec,
		spec: spec,
		log:  log,
	}
}

// Start registers the sweep and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule reconcile %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.log.Info("reconcile scheduler started", zap.String("spec", s.spec))
	return nil
}

// Stop halts the scheduler and waits for a running sweep.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("reconcile scheduler stopped")
}

// Sweep runs one reconciliation pass. Overlapping ticks are skipped.
func (s *Scheduler) Sweep(ctx context.Context) {
	if !s.running.TryLock() {
		s.log.Warn("reconcile sweep still running, skipping tick")
		return
	}
	defer s.running.Unlock()

	results, err := s.rec.ReconcileAll(ctx)
	if err != nil {
		s.log.Error("reconcile sweep failed", zap.Error(err))
		return
	}
	repaired, failed := 0, 0
	for _, r := range results {
		repaired += r.Repaired
		failed += len(r.Failed)
	}
	s.log.Info("reconcile sweep complete",
		zap.Int("jobs", len(results)),
		zap.Int("repaired", repaired),
		zap.Int("failed", failed),
	)
}
