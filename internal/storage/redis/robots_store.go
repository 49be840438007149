// Package redis provides a robots.txt rule cache backed by Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

// keyPrefix namespaces robots cache entries in a shared Redis instance.
const keyPrefix = "scrape:robots:"

// Config captures the parameters required to connect to Redis.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient dials Redis and verifies connectivity.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RobotsCacheStore caches parsed robots.txt rules per domain. Entries expire
// through Redis TTLs, so a missing key means the rules must be refetched.
type RobotsCacheStore struct {
	client *redis.Client
}

// NewRobotsCacheStore wraps a client in a RobotsCacheStore.
func NewRobotsCacheStore(client *redis.Client) *RobotsCacheStore {
	return &RobotsCacheStore{client: client}
}

// GetRules returns the cached rules for a domain, if any.
func (s *RobotsCacheStore) GetRules(ctx context.Context, domain string) (scraping.RobotsRules, bool, error) {
	data, err := s.client.Get(ctx, keyPrefix+strings.ToLower(domain)).Bytes()
	if errors.Is(err, redis.Nil) {
		return scraping.RobotsRules{}, false, nil
	}
	if err != nil {
		return scraping.RobotsRules{}, false, fmt.Errorf("get robots rules: %w", err)
	}

	var rules scraping.RobotsRules
	if err := json.Unmarshal(data, &rules); err != nil {
		return scraping.RobotsRules{}, false, fmt.Errorf("unmarshal robots rules: %w", err)
	}
	return rules, true, nil
}

// PutRules stores the rules for a domain with a TTL matching their expiry.
func (s *RobotsCacheStore) PutRules(ctx context.Context, rules scraping.RobotsRules) error {
	data, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("marshal robots rules: %w", err)
	}

	ttl := time.Until(rules.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	key := keyPrefix + strings.ToLower(rules.Domain)
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("set robots rules: %w", err)
	}
	return nil
}
