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
  timeout_seconds: 45
auth:
  enabled: true
  api_key: secret
engine:
  max_concurrent_jobs: 6
  poll_interval_seconds: 2
  error_backoff_seconds: 4
  auto_start: false
scrapers:
  user_agent: rme-agent
  timeout_seconds: 20
  headless:
    enabled: true
    max_parallel: 2
    nav_timeout_seconds: 30
ratelimit:
  default:
    per_minute: 5
    per_hour: 50
    per_day: 500
  per_source:
    glassdoor:
      per_minute: 2
storage:
  provider: postgres
  postgres:
    dsn: postgres://localhost:5432/scrape
blobs:
  provider: gcs
  gcs_bucket: captures
pubsub:
  enabled: true
  project_id: rme-prod
  topic_name: scraping-events
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
	if cfg.Engine.MaxConcurrentJobs != 6 || cfg.Engine.AutoStart {
		t.Fatalf("expected engine overrides to apply: %+v", cfg.Engine)
	}
	if cfg.RateLimit.Default.PerMinute != 5 {
		t.Fatalf("expected default ceiling override, got %+v", cfg.RateLimit.Default)
	}
	override, ok := cfg.RateLimit.PerSource["glassdoor"]
	if !ok || override.PerMinute != 2 {
		t.Fatalf("expected glassdoor override to be loaded: %+v", cfg.RateLimit.PerSource)
	}
	if cfg.Storage.Provider != "postgres" || cfg.Storage.Postgres.DSN == "" {
		t.Fatalf("expected postgres storage config: %+v", cfg.Storage)
	}
	if cfg.Blobs.Provider != "gcs" || cfg.Blobs.GCSBucket != "captures" {
		t.Fatalf("expected gcs blob config: %+v", cfg.Blobs)
	}
	if got := cfg.PollInterval(); got != 2*time.Second {
		t.Fatalf("expected poll interval 2s, got %v", got)
	}
	if got := cfg.RequestTimeout(); got != 45*time.Second {
		t.Fatalf("expected request timeout 45s, got %v", got)
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
	if cfg.Engine.MaxConcurrentJobs != 3 || !cfg.Engine.AutoStart {
		t.Fatalf("expected default engine config: %+v", cfg.Engine)
	}
	if cfg.RateLimit.Default.PerMinute != 10 || cfg.RateLimit.Default.PerDay != 1000 {
		t.Fatalf("expected default ceilings: %+v", cfg.RateLimit.Default)
	}
	if cfg.Storage.Provider != "memory" || cfg.Blobs.Provider != "memory" {
		t.Fatalf("expected memory providers by default")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080, TimeoutSeconds: 60},
		Engine:  EngineConfig{MaxConcurrentJobs: 3},
		Storage: StorageConfig{Provider: "memory"},
		Blobs:   BlobConfig{Provider: "memory"},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid concurrency",
			cfg: func() Config {
				c := base
				c.Engine.MaxConcurrentJobs = 0
				return c
			}(),
			want: "engine.max_concurrent_jobs",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
		{
			name: "headless missing max parallel",
			cfg: func() Config {
				c := base
				c.Scrapers.Headless.Enabled = true
				return c
			}(),
			want: "scrapers.headless.max_parallel",
		},
		{
			name: "postgres missing dsn",
			cfg: func() Config {
				c := base
				c.Storage.Provider = "postgres"
				return c
			}(),
			want: "storage.postgres.dsn",
		},
		{
			name: "unknown storage provider",
			cfg: func() Config {
				c := base
				c.Storage.Provider = "dynamo"
				return c
			}(),
			want: "storage.provider",
		},
		{
			name: "gcs missing bucket",
			cfg: func() Config {
				c := base
				c.Blobs.Provider = "gcs"
				return c
			}(),
			want: "blobs.gcs_bucket",
		},
		{
			name: "redis missing addr",
			cfg: func() Config {
				c := base
				c.Redis.Enabled = true
				return c
			}(),
			want: "redis.addr",
		},
		{
			name: "pubsub missing topic",
			cfg: func() Config {
				c := base
				c.PubSub.Enabled = true
				c.PubSub.ProjectID = "rme-prod"
				return c
			}(),
			want: "pubsub",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
