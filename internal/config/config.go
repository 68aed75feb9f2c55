// Package config loads and validates resolver configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Providers   ProvidersConfig   `mapstructure:"providers"`
	Lookup      LookupConfig      `mapstructure:"lookup"`
	Submit      SubmitConfig      `mapstructure:"submit"`
	Browser     BrowserConfig     `mapstructure:"browser"`
	Challenge   ChallengeConfig   `mapstructure:"challenge"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Watchlist   WatchlistConfig   `mapstructure:"watchlist"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ProvidersConfig holds provider endpoints and the shared user agent.
type ProvidersConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	WaybackAvailable string `mapstructure:"wayback_available_url"`
	WaybackSave      string `mapstructure:"wayback_save_url"`
	ArchiveTodayBase string `mapstructure:"archive_today_url"`
}

// LookupConfig selects and bounds read-only lookups.
type LookupConfig struct {
	// Order lists lookup providers by name: wayback, archive_today.
	Order          []string `mapstructure:"order"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
}

// SubmitConfig configures the HTTP save path.
type SubmitConfig struct {
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxAttempts      int     `mapstructure:"max_attempts"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
	RateLimitRPS     float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst   int     `mapstructure:"rate_limit_burst"`
}

// BrowserConfig configures the browser form flow.
type BrowserConfig struct {
	Enabled              bool     `mapstructure:"enabled"`
	ExecPath             string   `mapstructure:"exec_path"`
	RemoteURL            string   `mapstructure:"remote_url"`
	Headless             bool     `mapstructure:"headless"`
	ArchiveHosts         []string `mapstructure:"archive_hosts"`
	NavTimeoutSeconds    int      `mapstructure:"nav_timeout_seconds"`
	PollTimeoutSeconds   int      `mapstructure:"poll_timeout_seconds"`
	PollIntervalMs       int      `mapstructure:"poll_interval_ms"`
	SettleMs             int      `mapstructure:"settle_ms"`
	Screenshots          bool     `mapstructure:"screenshots"`
	URLFieldSelector     string   `mapstructure:"url_field_selector"`
	SubmitButtonSelector string   `mapstructure:"submit_button_selector"`
}

// ChallengeConfig configures the solving service.
type ChallengeConfig struct {
	APIKey         string `mapstructure:"api_key"`
	ServiceURL     string `mapstructure:"service_url"`
	Workers        int    `mapstructure:"workers"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	PollIntervalMs int    `mapstructure:"poll_interval_ms"`
}

// DiagnosticsConfig selects where browser artifacts go.
type DiagnosticsConfig struct {
	// Sink is one of: log, blob, none.
	Sink string `mapstructure:"sink"`
}

// StorageConfig selects the blob backend used for diagnostics.
type StorageConfig struct {
	// Backend is one of: memory, local, gcs.
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// CacheConfig selects the found-archive cache.
type CacheConfig struct {
	// Backend is one of: none, memory, redis.
	Backend       string `mapstructure:"backend"`
	TTLSeconds    int    `mapstructure:"ttl_seconds"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	KeyPrefix     string `mapstructure:"key_prefix"`
}

// WatchlistConfig selects the watch-list store.
type WatchlistConfig struct {
	// Backend is one of: memory, postgres.
	Backend  string   `mapstructure:"backend"`
	DSN      string   `mapstructure:"dsn"`
	Table    string   `mapstructure:"table"`
	MaxConns int32    `mapstructure:"max_conns"`
	Seed     []string `mapstructure:"seed"`
}

// PubSubConfig holds metadata for resolution events.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TracingConfig controls the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARCHIVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("challenge.api_key", "ARCHIVER_CHALLENGE_API_KEY", "SOLVECAPTCHA_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 300)
	v.SetDefault("logging.development", true)
	v.SetDefault("providers.user_agent", "archive-resolver/0.1")
	v.SetDefault("providers.wayback_available_url", "https://archive.org/wayback/available")
	v.SetDefault("providers.wayback_save_url", "https://web.archive.org/save/")
	v.SetDefault("providers.archive_today_url", "https://archive.today")
	v.SetDefault("lookup.order", []string{"wayback", "archive_today"})
	v.SetDefault("lookup.timeout_seconds", 10)
	v.SetDefault("submit.timeout_seconds", 60)
	v.SetDefault("submit.max_attempts", 3)
	v.SetDefault("submit.backoff_initial_ms", 1000)
	v.SetDefault("submit.backoff_max_ms", 4000)
	v.SetDefault("submit.rate_limit_rps", 0.2)
	v.SetDefault("submit.rate_limit_burst", 1)
	v.SetDefault("browser.enabled", false)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("browser.poll_timeout_seconds", 120)
	v.SetDefault("browser.poll_interval_ms", 2000)
	v.SetDefault("browser.settle_ms", 2000)
	v.SetDefault("browser.screenshots", false)
	v.SetDefault("challenge.service_url", "https://api.solvecaptcha.com")
	v.SetDefault("challenge.workers", 2)
	v.SetDefault("challenge.timeout_seconds", 120)
	v.SetDefault("challenge.poll_interval_ms", 5000)
	v.SetDefault("diagnostics.sink", "log")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "screenshots")
	v.SetDefault("storage.prefix", "diagnostics")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl_seconds", 86400)
	v.SetDefault("cache.key_prefix", "archiver:found:")
	v.SetDefault("watchlist.backend", "memory")
	v.SetDefault("watchlist.table", "paywall_sites")
	v.SetDefault("watchlist.max_conns", 4)
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.topic_name", "archive-resolutions")
	v.SetDefault("tracing.enabled", true)
	v.SetDefault("tracing.service_name", "archive-resolver")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	for _, name := range c.Lookup.Order {
		switch name {
		case "wayback", "archive_today":
		default:
			return fmt.Errorf("lookup.order: unknown provider %q", name)
		}
	}
	if c.Lookup.TimeoutSeconds <= 0 {
		return fmt.Errorf("lookup.timeout_seconds must be > 0")
	}
	if c.Submit.TimeoutSeconds <= 0 {
		return fmt.Errorf("submit.timeout_seconds must be > 0")
	}
	if c.Submit.MaxAttempts <= 0 {
		return fmt.Errorf("submit.max_attempts must be > 0")
	}
	if c.Submit.BackoffInitialMs < 0 || c.Submit.BackoffMaxMs < c.Submit.BackoffInitialMs {
		return fmt.Errorf("submit.backoff_max_ms must be >= submit.backoff_initial_ms >= 0")
	}
	if c.Challenge.Workers <= 0 {
		return fmt.Errorf("challenge.workers must be > 0")
	}
	if c.Browser.Enabled && c.Browser.PollTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.poll_timeout_seconds must be > 0 when browser is enabled")
	}
	switch c.Diagnostics.Sink {
	case "log", "blob", "none":
	default:
		return fmt.Errorf("diagnostics.sink must be log, blob or none")
	}
	switch c.Storage.Backend {
	case "memory", "local":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be memory, local or gcs")
	}
	switch c.Cache.Backend {
	case "none", "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr must be set for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be none, memory or redis")
	}
	switch c.Watchlist.Backend {
	case "memory":
	case "postgres":
		if c.Watchlist.DSN == "" {
			return fmt.Errorf("watchlist.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("watchlist.backend must be memory or postgres")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}

// RequestTimeout bounds one HTTP API request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// LookupTimeout bounds one lookup request.
func (c Config) LookupTimeout() time.Duration {
	return time.Duration(c.Lookup.TimeoutSeconds) * time.Second
}

// SubmitTimeout bounds one save request.
func (c Config) SubmitTimeout() time.Duration {
	return time.Duration(c.Submit.TimeoutSeconds) * time.Second
}

// Backoff returns the initial and maximum submission backoff.
func (c Config) Backoff() (initial, maxDelay time.Duration) {
	return time.Duration(c.Submit.BackoffInitialMs) * time.Millisecond,
		time.Duration(c.Submit.BackoffMaxMs) * time.Millisecond
}

// SolveTimeout bounds one challenge solve.
func (c Config) SolveTimeout() time.Duration {
	return time.Duration(c.Challenge.TimeoutSeconds) * time.Second
}

// SolvePollInterval is the delay between solver result polls.
func (c Config) SolvePollInterval() time.Duration {
	return time.Duration(c.Challenge.PollIntervalMs) * time.Millisecond
}

// CacheTTL is how long a found archive address is reused.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// BrowserTimings converts the browser knobs into durations.
func (c Config) BrowserTimings() (nav, poll, interval, settle time.Duration) {
	b := c.Browser
	return time.Duration(b.NavTimeoutSeconds) * time.Second,
		time.Duration(b.PollTimeoutSeconds) * time.Second,
		time.Duration(b.PollIntervalMs) * time.Millisecond,
		time.Duration(b.SettleMs) * time.Millisecond
}
