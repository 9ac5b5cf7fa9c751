package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPPort != "8081" {
		t.Errorf("HTTPPort = %q, want 8081", cfg.HTTPPort)
	}
	if cfg.QRTokenTTL != 30*time.Second {
		t.Errorf("QRTokenTTL = %s, want 30s", cfg.QRTokenTTL)
	}
	if cfg.DefaultSessionDuration != time.Hour {
		t.Errorf("DefaultSessionDuration = %s, want 1h", cfg.DefaultSessionDuration)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Errorf("AccessTTL = %s, want 15m", cfg.AccessTTL)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("QR_TOKEN_TTL", "45s")
	t.Setenv("ACCESS_TTL", "2h")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("CORS_ALLOW_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPPort != "9000" || cfg.QRTokenTTL != 45*time.Second || cfg.StoreBackend != "memory" {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.AccessTTL != 2*time.Hour {
		t.Errorf("AccessTTL = %s, want 2h", cfg.AccessTTL)
	}
	if len(cfg.CORSAllowOrigins) != 2 || cfg.CORSAllowOrigins[1] != "http://b.test" {
		t.Errorf("CORSAllowOrigins = %v", cfg.CORSAllowOrigins)
	}
}

func TestValidate(t *testing.T) {
	base := App{
		StoreBackend:           "postgres",
		QueueBackend:           "redis",
		QRTokenTTL:             time.Minute,
		DefaultSessionDuration: time.Hour,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	bad := base
	bad.StoreBackend = "mysql"
	if bad.Validate() == nil {
		t.Error("unknown store backend should fail")
	}

	prod := base
	prod.Env = "production"
	prod.JWTSigningKey = "short"
	prod.QRSigningKey = "another-long-enough-key"
	if prod.Validate() == nil {
		t.Error("short signing key in production should fail")
	}

	prod.JWTSigningKey = "another-long-enough-key"
	if prod.Validate() == nil {
		t.Error("shared signing keys in production should fail")
	}

	prod.JWTSigningKey = "a-distinct-long-signing-key"
	if err := prod.Validate(); err != nil {
		t.Errorf("valid production config rejected: %v", err)
	}
}
