package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"placement/internal/app"
	"placement/internal/config"
	"placement/internal/logger"
	"placement/internal/metrics"
	"placement/internal/scheduler"
	"placement/internal/worker"
)

// Worker drains cascade retries and runs the reconciliation sweep.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log.Named("worker"), metrics.New(prometheus.DefaultRegisterer))
	if err != nil {
		log.Fatal("open backends failed", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	sched := scheduler.New(a.Services.Selection, cfg.ReconcileSpec, log.Named("scheduler"))
	if err := sched.Start(ctx); err != nil {
		log.Fatal("scheduler start failed", zap.Error(err))
	}
	defer sched.Stop()

	// Catch anything that failed while the worker was down.
	go sched.Sweep(ctx)

	if err := worker.NewConsumer(a.Queue, a.Services.Selection, log.Named("worker")).Run(ctx); err != nil {
		log.Error("queue consume failed", zap.Error(err))
	}
}
