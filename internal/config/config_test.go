package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
lookup:
  order: [archive_today]
  timeout_seconds: 4
submit:
  max_attempts: 5
  backoff_initial_ms: 500
  backoff_max_ms: 8000
browser:
  enabled: true
  archive_hosts: [archive.ph]
  poll_interval_ms: 250
challenge:
  api_key: file-key
  workers: 3
cache:
  backend: redis
  redis_addr: localhost:6379
  ttl_seconds: 60
watchlist:
  backend: postgres
  dsn: postgres://localhost/archiver
  seed: [nytimes.com]
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if len(cfg.Lookup.Order) != 1 || cfg.Lookup.Order[0] != "archive_today" {
		t.Fatalf("expected lookup order override, got %v", cfg.Lookup.Order)
	}
	if got := cfg.LookupTimeout(); got != 4*time.Second {
		t.Fatalf("expected lookup timeout 4s, got %v", got)
	}
	initial, maxDelay := cfg.Backoff()
	if cfg.Submit.MaxAttempts != 5 || initial != 500*time.Millisecond || maxDelay != 8*time.Second {
		t.Fatalf("unexpected submit overrides: %+v", cfg.Submit)
	}
	if !cfg.Browser.Enabled || len(cfg.Browser.ArchiveHosts) != 1 {
		t.Fatalf("expected browser overrides: %+v", cfg.Browser)
	}
	_, poll, interval, _ := cfg.BrowserTimings()
	if poll != 120*time.Second || interval != 250*time.Millisecond {
		t.Fatalf("unexpected browser timings poll=%v interval=%v", poll, interval)
	}
	if cfg.Challenge.APIKey != "file-key" || cfg.Challenge.Workers != 3 {
		t.Fatalf("expected challenge overrides: %+v", cfg.Challenge)
	}
	if cfg.Cache.Backend != "redis" || cfg.CacheTTL() != time.Minute {
		t.Fatalf("expected redis cache with 1m ttl: %+v", cfg.Cache)
	}
	if cfg.Watchlist.Table != "paywall_sites" || len(cfg.Watchlist.Seed) != 1 {
		t.Fatalf("expected watchlist defaults and seed: %+v", cfg.Watchlist)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected logging.development=false")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if len(cfg.Lookup.Order) != 2 || cfg.Lookup.Order[0] != "wayback" {
		t.Fatalf("expected default lookup order, got %v", cfg.Lookup.Order)
	}
	if cfg.Submit.MaxAttempts != 3 {
		t.Fatalf("expected 3 submit attempts, got %d", cfg.Submit.MaxAttempts)
	}
	if initial, _ := cfg.Backoff(); initial != time.Second {
		t.Fatalf("expected 1s initial backoff, got %v", initial)
	}
	if cfg.Challenge.Workers != 2 || cfg.SolveTimeout() != 120*time.Second {
		t.Fatalf("unexpected challenge defaults: %+v", cfg.Challenge)
	}
	if cfg.SolvePollInterval() != 5*time.Second {
		t.Fatalf("unexpected solve poll interval %v", cfg.SolvePollInterval())
	}
	if cfg.Browser.Enabled {
		t.Fatalf("browser must be disabled by default")
	}
	if cfg.CacheTTL() != 24*time.Hour {
		t.Fatalf("expected 24h cache ttl, got %v", cfg.CacheTTL())
	}
	if cfg.RequestTimeout() != 5*time.Minute {
		t.Fatalf("expected 5m request timeout, got %v", cfg.RequestTimeout())
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.ServiceName != "archive-resolver" {
		t.Fatalf("unexpected tracing defaults: %+v", cfg.Tracing)
	}
}

// Environment tests mutate process state, so they do not run in parallel.
func TestLoadSolverKeyFromEnvironment(t *testing.T) {
	t.Setenv("SOLVECAPTCHA_API_KEY", "env-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Challenge.APIKey != "env-key" {
		t.Fatalf("expected api key from SOLVECAPTCHA_API_KEY, got %q", cfg.Challenge.APIKey)
	}
}

func TestLoadPrefixedEnvironment(t *testing.T) {
	t.Setenv("ARCHIVER_SERVER_PORT", "7070")
	t.Setenv("ARCHIVER_CHALLENGE_API_KEY", "prefixed")
	t.Setenv("SOLVECAPTCHA_API_KEY", "legacy")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected port from env, got %d", cfg.Server.Port)
	}
	if cfg.Challenge.APIKey != "prefixed" {
		t.Fatalf("expected prefixed env to win, got %q", cfg.Challenge.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:      ServerConfig{Port: 8080},
		Lookup:      LookupConfig{Order: []string{"wayback"}, TimeoutSeconds: 10},
		Submit:      SubmitConfig{TimeoutSeconds: 60, MaxAttempts: 3, BackoffInitialMs: 1000, BackoffMaxMs: 4000},
		Challenge:   ChallengeConfig{Workers: 2},
		Diagnostics: DiagnosticsConfig{Sink: "log"},
		Storage:     StorageConfig{Backend: "memory"},
		Cache:       CacheConfig{Backend: "memory"},
		Watchlist:   WatchlistConfig{Backend: "memory"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
		{name: "unknown lookup", mutate: func(c *Config) { c.Lookup.Order = []string{"bing"} }, want: "lookup.order"},
		{name: "lookup timeout", mutate: func(c *Config) { c.Lookup.TimeoutSeconds = 0 }, want: "lookup.timeout_seconds"},
		{name: "submit attempts", mutate: func(c *Config) { c.Submit.MaxAttempts = 0 }, want: "submit.max_attempts"},
		{name: "backoff order", mutate: func(c *Config) { c.Submit.BackoffMaxMs = 10 }, want: "submit.backoff_max_ms"},
		{name: "solver workers", mutate: func(c *Config) { c.Challenge.Workers = 0 }, want: "challenge.workers"},
		{
			name:   "browser poll timeout",
			mutate: func(c *Config) { c.Browser.Enabled = true },
			want:   "browser.poll_timeout_seconds",
		},
		{name: "diagnostics sink", mutate: func(c *Config) { c.Diagnostics.Sink = "s3" }, want: "diagnostics.sink"},
		{name: "gcs bucket", mutate: func(c *Config) { c.Storage.Backend = "gcs" }, want: "storage.gcs_bucket"},
		{name: "redis addr", mutate: func(c *Config) { c.Cache.Backend = "redis" }, want: "cache.redis_addr"},
		{name: "postgres dsn", mutate: func(c *Config) { c.Watchlist.Backend = "postgres" }, want: "watchlist.dsn"},
		{name: "pubsub project", mutate: func(c *Config) { c.PubSub.Enabled = true }, want: "pubsub.project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Lookup.Order = append([]string(nil), base.Lookup.Order...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
