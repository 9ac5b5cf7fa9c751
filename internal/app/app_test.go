package app

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"placement/internal/config"
	"placement/internal/repository/memrepo"
)

func TestOpen_MemoryBackends(t *testing.T) {
	cfg := config.App{
		StoreBackend:           "memory",
		QueueBackend:           "memory",
		JWTIssuer:              "placement-test",
		QRSigningKey:           "qr-key-for-tests-0123",
		QRTokenTTL:             30 * time.Second,
		DefaultSessionDuration: time.Hour,
	}
	a, err := Open(context.Background(), cfg, zap.NewNop(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if _, ok := a.Store.(*memrepo.Store); !ok {
		t.Fatalf("store = %T", a.Store)
	}
	if a.DB != nil || a.Redis != nil || len(a.Checks) != 0 {
		t.Fatal("memory backends must not open network clients")
	}
	s := a.Services
	if s.Rounds == nil || s.Sessions == nil || s.Attendance == nil || s.Selection == nil || s.Export == nil {
		t.Fatalf("services = %+v", s)
	}
}

func TestOpen_MissingSeedFile(t *testing.T) {
	cfg := config.App{StoreBackend: "memory", QueueBackend: "memory", StoreSeedFile: "does-not-exist.json", QRTokenTTL: time.Second}
	if _, err := Open(context.Background(), cfg, zap.NewNop(), nil); err == nil {
		t.Fatal("expected an error for a missing seed file")
	}
}
