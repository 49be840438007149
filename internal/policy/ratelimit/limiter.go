// Package ratelimit gates scraping admissions on per-source window counters.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ratemyemployer/scrape-engine/internal/metrics"
	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

// Config holds the default ceilings applied to every data source, plus
// per-source overrides.
type Config struct {
	DefaultCeilings scraping.RateLimitCeilings
	PerSource       map[scraping.DataSource]scraping.RateLimitCeilings
}

// Limiter answers whether a new request against a data source may proceed.
// The store's counters are the single source of truth; the limiter never
// caches admission decisions across calls.
type Limiter struct {
	store  scraping.RateLimitStore
	clock  scraping.Clock
	cfg    Config
	logger *zap.Logger
}

// New builds a Limiter.
func New(store scraping.RateLimitStore, clock scraping.Clock, cfg Config, logger *zap.Logger) *Limiter {
	if cfg.DefaultCeilings.PerMinute <= 0 {
		cfg.DefaultCeilings.PerMinute = 10
	}
	if cfg.DefaultCeilings.PerHour <= 0 {
		cfg.DefaultCeilings.PerHour = 100
	}
	if cfg.DefaultCeilings.PerDay <= 0 {
		cfg.DefaultCeilings.PerDay = 1000
	}
	return &Limiter{
		store:  store,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
}

// Ceilings resolves the window ceilings applied to a data source.
func (l *Limiter) Ceilings(source scraping.DataSource) scraping.RateLimitCeilings {
	c, ok := l.cfg.PerSource[source]
	if !ok {
		return l.cfg.DefaultCeilings
	}
	if c.PerMinute <= 0 {
		c.PerMinute = l.cfg.DefaultCeilings.PerMinute
	}
	if c.PerHour <= 0 {
		c.PerHour = l.cfg.DefaultCeilings.PerHour
	}
	if c.PerDay <= 0 {
		c.PerDay = l.cfg.DefaultCeilings.PerDay
	}
	return c
}

// Check performs one atomic admit-or-deny against the counter store. A false
// result with a nil error is an ordinary denial; store failures are wrapped
// in scraping.ErrRateLimitStoreUnavailable and reported as a denial so the
// caller can fail closed.
func (l *Limiter) Check(ctx context.Context, source scraping.DataSource) (bool, error) {
	allowed, err := l.store.Admit(ctx, source, l.Ceilings(source), l.clock.Now())
	if err != nil {
		metrics.ObserveRateLimitStoreError(string(source))
		return false, fmt.Errorf("%w: %v", scraping.ErrRateLimitStoreUnavailable, err)
	}
	if !allowed {
		metrics.ObserveRateLimitDenial(string(source))
		l.logger.Debug("rate limit denied", zap.String("data_source", string(source)))
	}
	return allowed, nil
}

// Block suppresses all admissions for a source until the given time,
// regardless of counter state.
func (l *Limiter) Block(ctx context.Context, source scraping.DataSource, until time.Time) error {
	if err := l.store.SetBlocked(ctx, source, until); err != nil {
		return fmt.Errorf("block data source %s: %w", source, err)
	}
	l.logger.Warn("data source blocked",
		zap.String("data_source", string(source)),
		zap.Time("blocked_until", until),
	)
	return nil
}

// State returns the current counter row for a source.
func (l *Limiter) State(ctx context.Context, source scraping.DataSource) (scraping.RateLimitState, error) {
	state, err := l.store.GetState(ctx, source)
	if err != nil {
		return scraping.RateLimitState{}, fmt.Errorf("rate limit state for %s: %w", source, err)
	}
	return state, nil
}
