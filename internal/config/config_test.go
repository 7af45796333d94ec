package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// chdir moves into dir so stray .env or config.yaml files in the package do not leak in.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.ListenAddr)
	}
	if cfg.Limits.IPRequests != 5 || cfg.Limits.IPWindow != time.Minute {
		t.Fatalf("unexpected ip limits: %+v", cfg.Limits)
	}
	if cfg.Limits.EmailCooldown != time.Minute {
		t.Fatalf("expected 60s cooldown, got %v", cfg.Limits.EmailCooldown)
	}
	if cfg.Limits.StoreTimeout != 200*time.Millisecond {
		t.Fatalf("expected 200ms store timeout, got %v", cfg.Limits.StoreTimeout)
	}
	if cfg.Limits.FailurePolicy != "closed" {
		t.Fatalf("expected closed policy, got %q", cfg.Limits.FailurePolicy)
	}
	if cfg.Redis.Addr != "" {
		t.Fatalf("expected no redis by default, got %q", cfg.Redis.Addr)
	}
	if cfg.Redis.ReadTimeout != 500*time.Millisecond || cfg.Redis.PoolSize != 20 {
		t.Fatalf("unexpected redis defaults: %+v", cfg.Redis)
	}
	if cfg.MaxBodyBytes != 64<<10 {
		t.Fatalf("expected 64KiB body limit, got %d", cfg.MaxBodyBytes)
	}
	if cfg.GracefulShutdownTimeout != 15*time.Second {
		t.Fatalf("expected 15s shutdown timeout, got %v", cfg.GracefulShutdownTimeout)
	}
	if cfg.Delivery.Rate != 5 || cfg.Delivery.Burst != 10 {
		t.Fatalf("unexpected delivery defaults: %+v", cfg.Delivery)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LIMITS_IP_REQUESTS", "10")
	t.Setenv("LIMITS_IP_WINDOW", "30s")
	t.Setenv("LIMITS_FAILURE_POLICY", "open")
	t.Setenv("ADMIN_JWT_SECRET", "s3cret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Fatalf("expected env redis addr, got %q", cfg.Redis.Addr)
	}
	if cfg.Limits.IPRequests != 10 || cfg.Limits.IPWindow != 30*time.Second {
		t.Fatalf("unexpected limits: %+v", cfg.Limits)
	}
	if cfg.Limits.FailurePolicy != "open" {
		t.Fatalf("expected open policy, got %q", cfg.Limits.FailurePolicy)
	}
	if cfg.Admin.JWTSecret != "s3cret" {
		t.Fatalf("expected admin secret from env")
	}
}

func TestLoadLegacyCooldownSeconds(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONTACT_COOLDOWN_SECONDS", "90")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Limits.EmailCooldown != 90*time.Second {
		t.Fatalf("expected 90s cooldown, got %v", cfg.Limits.EmailCooldown)
	}

	t.Setenv("LIMITS_EMAIL_COOLDOWN", "2m")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Limits.EmailCooldown != 2*time.Minute {
		t.Fatalf("explicit key must win over legacy seconds, got %v", cfg.Limits.EmailCooldown)
	}
}

func TestLoadRejectsBadLegacyCooldown(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONTACT_COOLDOWN_SECONDS", "soon")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-numeric cooldown")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "contactd.yaml")
	body := `
listen_addr: ":9090"
limits:
  ip_requests: 3
  email_cooldown: 5m
breaker:
  reset_timeout: 30s
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9090" || cfg.Limits.IPRequests != 3 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Limits.EmailCooldown != 5*time.Minute || cfg.Breaker.ResetTimeout != 30*time.Second {
		t.Fatalf("durations not decoded: %+v / %+v", cfg.Limits, cfg.Breaker)
	}
	if cfg.Limits.IPWindow != time.Minute {
		t.Fatalf("defaults must fill keys missing from the file, got %v", cfg.Limits.IPWindow)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())
	tests := map[string]string{
		"LIMITS_IP_REQUESTS":    "0",
		"LIMITS_IP_WINDOW":      "0s",
		"LIMITS_FAILURE_POLICY": "sometimes",
		"MAX_BODY_BYTES":        "-1",
	}
	for env, val := range tests {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, val)
			if _, err := Load(""); err == nil {
				t.Fatalf("expected %s=%s to be rejected", env, val)
			}
		})
	}
}

func TestSetupLogging(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	logger := setupLogging(Log{Level: "warn"}, &buf)
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected log output: %q", out)
	}

	buf.Reset()
	logger = setupLogging(Log{Level: "bogus"}, &buf)
	logger.Info().Msg("info fallback")
	if !strings.Contains(buf.String(), "info fallback") {
		t.Fatalf("invalid level must fall back to info, got %q", buf.String())
	}
}
