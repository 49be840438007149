package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

// RobotsCacheStore keeps parsed robots.txt rules per domain in Postgres.
type RobotsCacheStore struct {
	pool querier
}

// NewRobotsCacheStore wraps a pool in a RobotsCacheStore.
func NewRobotsCacheStore(pool querier) *RobotsCacheStore {
	return &RobotsCacheStore{pool: pool}
}

// GetRules returns the cached rules for a domain, if any.
func (s *RobotsCacheStore) GetRules(ctx context.Context, domain string) (scraping.RobotsRules, bool, error) {
	var (
		rules      scraping.RobotsRules
		allowed    []byte
		disallowed []byte
	)
	err := s.pool.QueryRow(ctx, `
SELECT domain, robots_content, crawl_delay, allowed_paths, disallowed_paths,
	last_fetched, expires_at
FROM robots_txt_cache
WHERE domain = $1`, strings.ToLower(domain)).Scan(
		&rules.Domain, &rules.RobotsContent, &rules.CrawlDelay, &allowed, &disallowed,
		&rules.LastFetched, &rules.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return scraping.RobotsRules{}, false, nil
	}
	if err != nil {
		return scraping.RobotsRules{}, false, fmt.Errorf("select robots cache: %w", err)
	}
	if len(allowed) > 0 {
		_ = json.Unmarshal(allowed, &rules.AllowedPaths)
	}
	if len(disallowed) > 0 {
		_ = json.Unmarshal(disallowed, &rules.DisallowedPaths)
	}
	return rules, true, nil
}

// PutRules upserts the rules for a domain.
func (s *RobotsCacheStore) PutRules(ctx context.Context, rules scraping.RobotsRules) error {
	allowed, err := json.Marshal(rules.AllowedPaths)
	if err != nil {
		return fmt.Errorf("marshal allowed paths: %w", err)
	}
	disallowed, err := json.Marshal(rules.DisallowedPaths)
	if err != nil {
		return fmt.Errorf("marshal disallowed paths: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO robots_txt_cache (
	domain, robots_content, crawl_delay, allowed_paths, disallowed_paths,
	last_fetched, expires_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (domain) DO UPDATE SET
	robots_content = EXCLUDED.robots_content,
	crawl_delay = EXCLUDED.crawl_delay,
	allowed_paths = EXCLUDED.allowed_paths,
	disallowed_paths = EXCLUDED.disallowed_paths,
	last_fetched = EXCLUDED.last_fetched,
	expires_at = EXCLUDED.expires_at`,
		strings.ToLower(rules.Domain), rules.RobotsContent, rules.CrawlDelay, allowed, disallowed,
		rules.LastFetched, rules.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert robots cache: %w", err)
	}
	return nil
}
