// Package app opens the storage and queue backends selected by configuration
// and builds the domain services on top of them. Both binaries share it.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"placement/internal/attendance"
	"placement/internal/config"
	"placement/internal/export"
	"placement/internal/handler"
	"placement/internal/metrics"
	"placement/internal/qrtoken"
	"placement/internal/queue"
	"placement/internal/repository"
	"placement/internal/repository/memrepo"
	"placement/internal/round"
	"placement/internal/selection"
	"placement/internal/session"
	"placement/internal/store"
)

// App holds the opened backends and services.
type App struct {
	Store    repository.Store
	DB       *store.DB
	Redis    *store.Redis
	Queue    queue.Queue
	Services handler.Services
	Checks   map[string]handler.Check
}

// Open connects the configured backends. Postgres is migrated first when
// RUN_MIGRATIONS is set.
func Open(ctx context.Context, cfg config.App, log *zap.Logger, m *metrics.Metrics) (*App, error) {
	a := &App{Checks: make(map[string]handler.Check)}

	switch cfg.StoreBackend {
	case "memory":
		mem := memrepo.New()
		if cfg.StoreSeedFile != "" {
			if err := mem.LoadSeed(cfg.StoreSeedFile); err != nil {
				return nil, err
			}
			log.Info("memory store seeded", zap.String("file", cfg.StoreSeedFile))
		}
		a.Store = mem
	default:
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.DB = db
		if cfg.RunMigrations {
			if err := store.RunMigrations(db.Client, log); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		a.Store = repository.NewPostgres(db.Client)
		a.Checks["db"] = db.Healthy
	}

	switch cfg.QueueBackend {
	case "memory":
		a.Queue = queue.NewInMemory(256)
	default:
		a.Redis = store.NewRedis(cfg.RedisAddr)
		a.Queue = queue.NewRedisQueue(a.Redis.Client, queue.DefaultKey)
		a.Checks["redis"] = a.Redis.Healthy
	}

	signer := qrtoken.NewSigner(cfg.QRSigningKey, cfg.JWTIssuer, cfg.QRTokenTTL)
	att := attendance.NewService(a.Store, signer, log, m)
	sel := selection.NewService(a.Store, a.Queue, log, m)
	a.Services = handler.Services{
		Rounds:     round.NewService(a.Store, log),
		Sessions:   session.NewService(a.Store, log, m, cfg.DefaultSessionDuration),
		Attendance: att,
		Selection:  sel,
		Export:     export.NewService(att, sel, a.Store, log),
	}
	return a, nil
}

// Close releases the backends.
func (a *App) Close() error {
	var first error
	if err := a.Redis.Close(); err != nil {
		first = fmt.Errorf("close redis: %w", err)
	}
	if err := a.DB.Close(); err != nil && first == nil {
		first = fmt.Errorf("close db: %w", err)
	}
	return first
}
