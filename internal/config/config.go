// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Scrapers  ScrapersConfig  `mapstructure:"scrapers"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Blobs     BlobConfig      `mapstructure:"blobs"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// EngineConfig governs the scheduling loop.
type EngineConfig struct {
	MaxConcurrentJobs   int  `mapstructure:"max_concurrent_jobs"`
	PollIntervalSeconds int  `mapstructure:"poll_interval_seconds"`
	ErrorBackoffSeconds int  `mapstructure:"error_backoff_seconds"`
	AutoStart           bool `mapstructure:"auto_start"`
}

// ScrapersConfig tunes the fetch pipeline shared by all capabilities.
type ScrapersConfig struct {
	UserAgent           string         `mapstructure:"user_agent"`
	TimeoutSeconds      int            `mapstructure:"timeout_seconds"`
	DefaultDelaySeconds int            `mapstructure:"default_delay_seconds"`
	Headless            HeadlessConfig `mapstructure:"headless"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// CeilingsConfig is one set of three-window request ceilings.
type CeilingsConfig struct {
	PerMinute int `mapstructure:"per_minute"`
	PerHour   int `mapstructure:"per_hour"`
	PerDay    int `mapstructure:"per_day"`
}

// RateLimitConfig holds the default ceilings plus per-source overrides keyed
// by data source name.
type RateLimitConfig struct {
	Default   CeilingsConfig            `mapstructure:"default"`
	PerSource map[string]CeilingsConfig `mapstructure:"per_source"`
}

// StorageConfig selects the job/data store backend.
type StorageConfig struct {
	Provider string         `mapstructure:"provider"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig controls access to the relational database.
type PostgresConfig struct {
	DSN                 string `mapstructure:"dsn"`
	MaxConns            int    `mapstructure:"max_conns"`
	MinConns            int    `mapstructure:"min_conns"`
	ConnLifetimeMinutes int    `mapstructure:"conn_lifetime_minutes"`
}

// RedisConfig controls the robots.txt rule cache backend.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BlobConfig selects where raw page captures are archived.
type BlobConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PubSubConfig holds metadata for job-completion notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("engine.max_concurrent_jobs", 3)
	v.SetDefault("engine.poll_interval_seconds", 5)
	v.SetDefault("engine.error_backoff_seconds", 10)
	v.SetDefault("engine.auto_start", true)
	v.SetDefault("scrapers.user_agent", "rme-scrape-bot/0.1")
	v.SetDefault("scrapers.timeout_seconds", 30)
	v.SetDefault("scrapers.default_delay_seconds", 1)
	v.SetDefault("scrapers.headless.enabled", false)
	v.SetDefault("scrapers.headless.max_parallel", 1)
	v.SetDefault("scrapers.headless.nav_timeout_seconds", 45)
	v.SetDefault("ratelimit.default.per_minute", 10)
	v.SetDefault("ratelimit.default.per_hour", 100)
	v.SetDefault("ratelimit.default.per_day", 1000)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.postgres.max_conns", 10)
	v.SetDefault("storage.postgres.min_conns", 2)
	v.SetDefault("storage.postgres.conn_lifetime_minutes", 60)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("blobs.provider", "memory")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Engine.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("engine.max_concurrent_jobs must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Scrapers.Headless.Enabled && c.Scrapers.Headless.MaxParallel <= 0 {
		return fmt.Errorf("scrapers.headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Storage.Provider {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn must be set when storage.provider is 'postgres'")
		}
	default:
		return fmt.Errorf("storage.provider must be 'memory' or 'postgres', got %q", c.Storage.Provider)
	}
	switch c.Blobs.Provider {
	case "memory":
	case "gcs":
		if c.Blobs.GCSBucket == "" {
			return fmt.Errorf("blobs.gcs_bucket must be set when blobs.provider is 'gcs'")
		}
	default:
		return fmt.Errorf("blobs.provider must be 'memory' or 'gcs', got %q", c.Blobs.Provider)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must be set when redis is enabled")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}

// PollInterval returns the scheduling loop cadence.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Engine.PollIntervalSeconds) * time.Second
}

// ErrorBackoff returns the loop delay after a failed scheduling pass.
func (c Config) ErrorBackoff() time.Duration {
	return time.Duration(c.Engine.ErrorBackoffSeconds) * time.Second
}

// RequestTimeout returns the management API request budget.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}
