package scrapers

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// CrawlDelayer resolves a per-domain minimum delay, typically from a cached
// robots.txt Crawl-delay directive.
type CrawlDelayer interface {
	CrawlDelay(ctx context.Context, domain string) time.Duration
}

// Politeness paces outgoing requests per domain. Each domain gets its own
// token bucket; the effective interval is the larger of the configured
// default and the domain's crawl delay.
type Politeness struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultDelay time.Duration
	delays       CrawlDelayer
}

// NewPoliteness builds a Politeness pacer. delays may be nil.
func NewPoliteness(defaultDelay time.Duration, delays CrawlDelayer) *Politeness {
	if defaultDelay <= 0 {
		defaultDelay = time.Second
	}
	return &Politeness{
		limiters:     make(map[string]*rate.Limiter),
		defaultDelay: defaultDelay,
		delays:       delays,
	}
}

// Wait blocks until the domain's next request slot, or until ctx is done.
func (p *Politeness) Wait(ctx context.Context, domain string) error {
	return p.limiterFor(ctx, domain).Wait(ctx)
}

func (p *Politeness) limiterFor(ctx context.Context, domain string) *rate.Limiter {
	p.mu.Lock()
	if lim, ok := p.limiters[domain]; ok {
		p.mu.Unlock()
		return lim
	}
	p.mu.Unlock()

	delay := p.defaultDelay
	if p.delays != nil {
		if d := p.delays.CrawlDelay(ctx, domain); d > delay {
			delay = d
		}
	}
	lim := rate.NewLimiter(rate.Every(delay), 1)

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.limiters[domain]; ok {
		return existing
	}
	p.limiters[domain] = lim
	return lim
}
