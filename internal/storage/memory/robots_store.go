package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

// RobotsCacheStore keeps parsed robots.txt rules per domain in memory.
// Expiry is evaluated by the caller against RobotsRules.ExpiresAt.
type RobotsCacheStore struct {
	mu    sync.RWMutex
	rules map[string]scraping.RobotsRules
}

// NewRobotsCacheStore constructs a RobotsCacheStore.
func NewRobotsCacheStore() *RobotsCacheStore {
	return &RobotsCacheStore{rules: make(map[string]scraping.RobotsRules)}
}

// GetRules returns the cached rules for a domain, if any.
func (s *RobotsCacheStore) GetRules(_ context.Context, domain string) (scraping.RobotsRules, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rules, ok := s.rules[strings.ToLower(domain)]
	return rules, ok, nil
}

// PutRules caches the rules for a domain.
func (s *RobotsCacheStore) PutRules(_ context.Context, rules scraping.RobotsRules) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[strings.ToLower(rules.Domain)] = rules
	return nil
}
