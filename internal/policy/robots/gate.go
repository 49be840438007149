// Package robots fetches, caches, and evaluates robots.txt policies for
// scrape targets.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ratemyemployer/scrape-engine/internal/metrics"
	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

const (
	cacheTTL     = 24 * time.Hour
	fetchTimeout = 10 * time.Second
	maxBodySize  = 1 << 20
)

// Gate answers whether a URL may be scraped under the target domain's
// robots.txt. Fetch and parse failures fail open: an unreachable or
// malformed robots.txt never blocks a job, it only gets logged.
type Gate struct {
	cache  scraping.RobotsCacheStore
	client *http.Client
	clock  scraping.Clock
	logger *zap.Logger
}

// New builds a Gate. A nil client gets a default with a 10 second timeout.
func New(cache scraping.RobotsCacheStore, client *http.Client, clock scraping.Clock, logger *zap.Logger) *Gate {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	return &Gate{
		cache:  cache,
		client: client,
		clock:  clock,
		logger: logger,
	}
}

// Allowed reports whether the target URL may be fetched. The verdict comes
// from cached rules when fresh, otherwise from a new robots.txt fetch. URLs
// that cannot be parsed are allowed.
func (g *Gate) Allowed(ctx context.Context, targetURL string) bool {
	parsed, err := url.Parse(targetURL)
	if err != nil || parsed.Host == "" {
		g.logger.Debug("robots check skipped, unparseable url", zap.String("url", targetURL))
		return true
	}

	rules, err := g.Rules(ctx, parsed.Host)
	if err != nil {
		g.logger.Warn("robots rules unavailable, allowing",
			zap.String("domain", parsed.Host),
			zap.Error(err),
		)
		return true
	}

	path := parsed.Path
	if path == "" {
		path = "/"
	}
	if pathAllowed(rules, path) {
		return true
	}
	metrics.ObserveRobotsDenial(parsed.Host)
	g.logger.Info("robots.txt disallows path",
		zap.String("domain", parsed.Host),
		zap.String("path", path),
	)
	return false
}

// CrawlDelay returns the robots.txt crawl delay for a domain, zero when none
// is declared or the rules cannot be resolved.
func (g *Gate) CrawlDelay(ctx context.Context, domain string) time.Duration {
	rules, err := g.Rules(ctx, domain)
	if err != nil {
		return 0
	}
	return time.Duration(rules.CrawlDelay) * time.Second
}

// Rules returns the parsed robots.txt rules for a domain, consulting the
// cache before fetching.
func (g *Gate) Rules(ctx context.Context, domain string) (scraping.RobotsRules, error) {
	now := g.clock.Now()
	cached, ok, err := g.cache.GetRules(ctx, domain)
	if err != nil {
		g.logger.Warn("robots cache read failed", zap.String("domain", domain), zap.Error(err))
	} else if ok && !cached.Expired(now) {
		return cached, nil
	}

	rules, err := g.fetch(ctx, domain, now)
	if err != nil {
		return scraping.RobotsRules{}, err
	}
	if err := g.cache.PutRules(ctx, rules); err != nil {
		g.logger.Warn("robots cache write failed", zap.String("domain", domain), zap.Error(err))
	}
	return rules, nil
}

func (g *Gate) fetch(ctx context.Context, domain string, now time.Time) (scraping.RobotsRules, error) {
	robotsURL := fmt.Sprintf("https://%s/robots.txt", domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return scraping.RobotsRules{}, fmt.Errorf("build robots request for %s: %w", domain, err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return scraping.RobotsRules{}, fmt.Errorf("fetch %s: %w", robotsURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Missing robots.txt means everything is allowed. Cache the empty
		// rule set so the domain is not re-fetched on every job.
		rules := scraping.RobotsRules{
			Domain:      domain,
			LastFetched: now,
			ExpiresAt:   now.Add(cacheTTL),
		}
		return rules, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return scraping.RobotsRules{}, fmt.Errorf("read %s: %w", robotsURL, err)
	}

	rules := parse(string(body))
	rules.Domain = domain
	rules.LastFetched = now
	rules.ExpiresAt = now.Add(cacheTTL)
	return rules, nil
}

// parse extracts Allow, Disallow, and Crawl-delay directives line by line.
// Directive names match case-insensitively; user-agent grouping is ignored
// so the strictest union of all groups applies.
func parse(content string) scraping.RobotsRules {
	var rules scraping.RobotsRules
	rules.RobotsContent = content
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "disallow":
			if value != "" {
				rules.DisallowedPaths = append(rules.DisallowedPaths, value)
			}
		case "allow":
			if value != "" {
				rules.AllowedPaths = append(rules.AllowedPaths, value)
			}
		case "crawl-delay":
			var delay int
			if _, err := fmt.Sscanf(value, "%d", &delay); err == nil && delay > rules.CrawlDelay {
				rules.CrawlDelay = delay
			}
		}
	}
	return rules
}

// pathAllowed applies prefix matching: any disallowed prefix denies the
// path, and when an allow list exists the path must start with one of its
// prefixes. An empty rule set allows everything.
func pathAllowed(rules scraping.RobotsRules, path string) bool {
	for _, prefix := range rules.DisallowedPaths {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	if len(rules.AllowedPaths) == 0 {
		return true
	}
	for _, prefix := range rules.AllowedPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
