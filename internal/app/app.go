// Package app initializes and holds the long-lived services of the scraping
// engine, acting as the composition root.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/ratemyemployer/scrape-engine/internal/api"
	"github.com/ratemyemployer/scrape-engine/internal/clock/system"
	"github.com/ratemyemployer/scrape-engine/internal/config"
	"github.com/ratemyemployer/scrape-engine/internal/engine"
	"github.com/ratemyemployer/scrape-engine/internal/hash/sha256"
	"github.com/ratemyemployer/scrape-engine/internal/id/uuid"
	"github.com/ratemyemployer/scrape-engine/internal/logging"
	"github.com/ratemyemployer/scrape-engine/internal/metrics"
	"github.com/ratemyemployer/scrape-engine/internal/policy/ratelimit"
	"github.com/ratemyemployer/scrape-engine/internal/policy/robots"
	pubsubpublisher "github.com/ratemyemployer/scrape-engine/internal/publisher/pubsub"
	"github.com/ratemyemployer/scrape-engine/internal/quality"
	"github.com/ratemyemployer/scrape-engine/internal/scrapers"
	"github.com/ratemyemployer/scrape-engine/internal/scraping"
	"github.com/ratemyemployer/scrape-engine/internal/storage/gcs"
	"github.com/ratemyemployer/scrape-engine/internal/storage/memory"
	"github.com/ratemyemployer/scrape-engine/internal/storage/postgres"
	"github.com/ratemyemployer/scrape-engine/internal/storage/redis"
)

// App owns every long-lived service and the order they shut down in.
type App struct {
	Logger *zap.Logger
	Engine *engine.Engine
	Server *api.Server

	cfg      config.Config
	closers  []func()
	renderer *scrapers.Renderer
}

type stores struct {
	jobs         scraping.JobStore
	data         scraping.DataStore
	logs         scraping.LogStore
	limits       scraping.RateLimitStore
	robotsCache  scraping.RobotsCacheStore
	checks       scraping.QualityCheckStore
	enhancements scraping.EnhancementStore
}

// New builds the full service graph from configuration. It fails fast: any
// unreachable backend aborts startup.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	metrics.Init()

	a := &App{Logger: logger, cfg: cfg}

	clock := system.New()
	ids := uuid.New()
	hasher := sha256.New()

	st, err := a.buildStores(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	blobs, err := a.buildBlobStore(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	publisher, err := a.buildPublisher(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	validator := quality.New(st.checks, clock, logger)
	if err := validator.EnsureDefaults(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("seed quality checks: %w", err)
	}

	limiter := ratelimit.New(st.limits, clock, ratelimit.Config{
		DefaultCeilings: ceilings(cfg.RateLimit.Default),
		PerSource:       perSourceCeilings(cfg.RateLimit.PerSource),
	}, logger)
	gate := robots.New(st.robotsCache, nil, clock, logger)

	deps := scrapers.Deps{
		Fetcher: scrapers.NewFetcher(scrapers.FetchConfig{
			UserAgent: cfg.Scrapers.UserAgent,
			Timeout:   time.Duration(cfg.Scrapers.TimeoutSeconds) * time.Second,
		}),
		Politeness: scrapers.NewPoliteness(
			time.Duration(cfg.Scrapers.DefaultDelaySeconds)*time.Second, gate),
		Data:      st.data,
		Blobs:     blobs,
		Hasher:    hasher,
		IDs:       ids,
		Clock:     clock,
		Validator: validator,
		Logger:    logger,
	}
	if cfg.Scrapers.Headless.Enabled {
		renderer, err := scrapers.NewRenderer(scrapers.RendererConfig{
			MaxParallel:       cfg.Scrapers.Headless.MaxParallel,
			UserAgent:         cfg.Scrapers.UserAgent,
			NavigationTimeout: time.Duration(cfg.Scrapers.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("build headless renderer: %w", err)
		}
		a.renderer = renderer
		deps.Renderer = renderer
	}

	registry := engine.NewRegistry()
	registry.Register(scraping.ScraperTypeCompanyData, scrapers.NewCompanyScraper(deps))
	registry.Register(scraping.ScraperTypeReviews, scrapers.NewReviewScraper(deps))
	registry.Register(scraping.ScraperTypeNews, scrapers.NewNewsScraper(deps))
	registry.Register(scraping.ScraperTypeJobListings, scrapers.NewJobListingScraper(deps))
	// Site-specific types reuse the capability matching their payload shape.
	registry.Register(scraping.ScraperTypeGlassdoor, scrapers.NewReviewScraper(deps))
	registry.Register(scraping.ScraperTypeIndeed, scrapers.NewJobListingScraper(deps))
	registry.Register(scraping.ScraperTypeLinkedIn, scrapers.NewCompanyScraper(deps))

	a.Engine = engine.New(st.jobs, st.logs, limiter, gate, registry, clock, ids, publisher, engine.Config{
		MaxConcurrentJobs: cfg.Engine.MaxConcurrentJobs,
		PollInterval:      cfg.PollInterval(),
		ErrorBackoff:      cfg.ErrorBackoff(),
	}, logger)

	apiCfg := api.Config{RequestTimeout: cfg.RequestTimeout()}
	if cfg.Auth.Enabled {
		apiCfg.APIKey = cfg.Auth.APIKey
	}
	a.Server = api.NewServer(a.Engine, st.jobs, st.data, st.logs, st.enhancements,
		limiter, validator, clock, apiCfg, logger)

	return a, nil
}

func (a *App) buildStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (stores, error) {
	var st stores
	switch cfg.Storage.Provider {
	case "postgres":
		pool, err := postgres.Connect(ctx, postgres.Config{
			DSN:             cfg.Storage.Postgres.DSN,
			MaxConns:        int32(cfg.Storage.Postgres.MaxConns),
			MinConns:        int32(cfg.Storage.Postgres.MinConns),
			MaxConnLifetime: time.Duration(cfg.Storage.Postgres.ConnLifetimeMinutes) * time.Minute,
		})
		if err != nil {
			return stores{}, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		logger.Info("using postgres storage provider")
		st = stores{
			jobs:         postgres.NewJobStore(pool),
			data:         postgres.NewDataStore(pool),
			logs:         postgres.NewLogStore(pool),
			limits:       postgres.NewRateLimitStore(pool),
			robotsCache:  postgres.NewRobotsCacheStore(pool),
			checks:       postgres.NewQualityCheckStore(pool),
			enhancements: postgres.NewEnhancementStore(pool),
		}
	default:
		logger.Info("using in-memory storage provider")
		st = stores{
			jobs:         memory.NewJobStore(),
			data:         memory.NewDataStore(),
			logs:         memory.NewLogStore(),
			limits:       memory.NewRateLimitStore(),
			robotsCache:  memory.NewRobotsCacheStore(),
			checks:       memory.NewQualityCheckStore(),
			enhancements: memory.NewEnhancementStore(),
		}
	}

	if cfg.Redis.Enabled {
		client, err := redis.NewClient(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return stores{}, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("close redis client failed", zap.Error(err))
			}
		})
		logger.Info("using redis robots.txt cache", zap.String("addr", cfg.Redis.Addr))
		st.robotsCache = redis.NewRobotsCacheStore(client)
	}
	return st, nil
}

func (a *App) buildBlobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (scraping.BlobStore, error) {
	if cfg.Blobs.Provider != "gcs" {
		logger.Info("using in-memory blob store, captures are not durable")
		return memory.NewBlobStore(), nil
	}
	client, err := gcsclient.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect gcs: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := client.Close(); err != nil {
			logger.Warn("close gcs client failed", zap.Error(err))
		}
	})
	logger.Info("using gcs blob store", zap.String("bucket", cfg.Blobs.GCSBucket))
	return gcs.New(client, gcs.Config{Bucket: cfg.Blobs.GCSBucket})
}

func (a *App) buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (scraping.Publisher, error) {
	if !cfg.PubSub.Enabled {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("connect pubsub: %w", err)
	}
	topic := client.Topic(cfg.PubSub.TopicName)
	a.closers = append(a.closers, func() {
		topic.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("close pubsub client failed", zap.Error(err))
		}
	})
	logger.Info("publishing job completions to pubsub",
		zap.String("project_id", cfg.PubSub.ProjectID),
		zap.String("topic", cfg.PubSub.TopicName),
	)
	return pubsubpublisher.New(topic), nil
}

// Handler returns the management API handler.
func (a *App) Handler() http.Handler {
	return a.Server.Handler()
}

// Close shuts down the engine, flushes the logger, and releases every
// backend client in reverse construction order.
func (a *App) Close() {
	if a.Engine != nil {
		a.Engine.Stop()
	}
	if a.renderer != nil {
		a.renderer.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}

func ceilings(c config.CeilingsConfig) scraping.RateLimitCeilings {
	return scraping.RateLimitCeilings{
		PerMinute: c.PerMinute,
		PerHour:   c.PerHour,
		PerDay:    c.PerDay,
	}
}

func perSourceCeilings(overrides map[string]config.CeilingsConfig) map[scraping.DataSource]scraping.RateLimitCeilings {
	if len(overrides) == 0 {
		return nil
	}
	out := make(map[scraping.DataSource]scraping.RateLimitCeilings, len(overrides))
	for source, c := range overrides {
		out[scraping.DataSource(source)] = ceilings(c)
	}
	return out
}
