package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("http addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Limits.UsageCacheTTL != 5*time.Minute {
		t.Fatalf("usage cache ttl = %s", cfg.Limits.UsageCacheTTL)
	}
	if !cfg.Limits.FailOpen {
		t.Fatal("limit checks default to fail-open")
	}
	if cfg.Transfer.OTPTTL != 15*time.Minute || cfg.Transfer.MaxAttempts != 3 {
		t.Fatalf("transfer config = %+v", cfg.Transfer)
	}
	if cfg.Billing.TrialDays != 14 || cfg.Billing.DefaultDurationDays != 30 {
		t.Fatalf("billing config = %+v", cfg.Billing)
	}
}

func TestLoadYAMLAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
env: prod
http:
  addr: ":9090"
limits:
  usage_cache_ttl: 1m
  fail_open: false
transfer:
  max_attempts: 5
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("HTTP_ADDR", ":7070")
	t.Setenv("TRANSFER_OTP_TTL", "10m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Env != "prod" {
		t.Fatalf("env = %q", cfg.Env)
	}
	if cfg.HTTP.Addr != ":7070" {
		t.Fatalf("addr = %q, env must override yaml", cfg.HTTP.Addr)
	}
	if cfg.Limits.UsageCacheTTL != time.Minute || cfg.Limits.FailOpen {
		t.Fatalf("limits = %+v", cfg.Limits)
	}
	if cfg.Transfer.MaxAttempts != 5 || cfg.Transfer.OTPTTL != 10*time.Minute {
		t.Fatalf("transfer = %+v", cfg.Transfer)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.HTTP.Addr)
	}
}

func TestLoadBadEnvValue(t *testing.T) {
	t.Setenv("USAGE_CACHE_TTL", "not-a-duration")

	if _, err := Load(""); err == nil {
		t.Fatal("expected parse error")
	}
}
