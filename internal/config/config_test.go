package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaultsAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte("store:\n  driver: redis\nredis:\n  addr: localhost:6379\nvote:\n  duration: 45s\n")
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Driver != DriverRedis || cfg.Redis.Prefix != "festival:" {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Auth.JWTSecret != "s3cret" || cfg.Auth.Provider != "jwt" {
		t.Fatalf("expected env secret, got %+v", cfg.Auth)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := TTLDuration(cfg.Vote.Duration, 30*time.Second); got != 45*time.Second {
		t.Fatalf("expected 45s, got %s", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Driver != DriverMemory || cfg.Env != "development" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing jwt secret to fail")
	}
	cfg.Auth.JWTSecret = "x"
	cfg.Store.Driver = DriverFirestore
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing project id to fail")
	}
	cfg.Store.Driver = "sqlite"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown driver to fail")
	}
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := TTLDuration("bogus", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for bad input, got %s", got)
	}
	if got := TTLDuration("250ms", time.Minute); got != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", got)
	}
}
