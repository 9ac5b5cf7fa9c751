// Package worker drains the cascade retry queue.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"placement/internal/queue"
)

// Retrier re-runs one failed cascade. selection.Service satisfies it.
type Retrier interface {
	Retry(ctx context.Context, r queue.CascadeRetry) error
}

// Consumer processes cascade retries. Retries that keep failing are dropped
// after MaxAttempts and left to the reconciliation sweep.
type Consumer struct {
	q           queue.Queue
	retrier     Retrier
	log         *zap.Logger
	MaxAttempts int
	Backoff     time.Duration
}

func NewConsumer(q queue.Queue, r Retrier, log *zap.Logger) *Consumer {
	return &Consumer{q: q, retrier: r, log: log, MaxAttempts: 5, Backoff: 2 * time.Second}
}

// Run blocks until ctx is done or the queue closes.
func (c *Consumer) Run(ctx context.Context) error {
	messages, err := c.q.Consume(ctx)
	if err != nil {
		return err
	}
	c.log.Info("worker started, waiting for messages")
	for msg := range messages {
		c.handle(ctx, msg)
	}
	c.log.Info("worker stopped")
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg queue.Message) {
	if msg.Type != queue.TypeCascadeRetry {
		c.log.Warn("skipping unknown message", zap.String("type", msg.Type))
		return
	}
	r, err := msg.CascadeRetry()
	if err != nil {
		c.log.Error("bad cascade retry", zap.Error(err))
		return
	}
	log := c.log.With(
		zap.String("job_id", r.JobID),
		zap.String("attendance_id", r.AttendanceID),
		zap.Int("attempt", r.Attempts+1),
	)
	err = c.retrier.Retry(ctx, r)
	if err == nil {
		return
	}
	r.Attempts++
	if r.Attempts >= c.MaxAttempts {
		log.Error("cascade retry exhausted, left for reconciliation", zap.Error(err))
		return
	}
	log.Warn("cascade retry failed, requeueing", zap.Error(err))

	select {
	case <-ctx.Done():
		return
	case <-time.After(c.Backoff * time.Duration(r.Attempts)):
	}
	r.Reason = err.Error()
	next, err := queue.NewCascadeRetry(r)
	if err == nil {
		err = c.q.Publish(ctx, next)
	}
	if err != nil {
		log.Error("requeue cascade retry", zap.Error(err))
	}
}
