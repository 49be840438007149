package memory

import (
	"context"
	"sync"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

// QualityCheckStore keeps validator rule sets in memory.
type QualityCheckStore struct {
	mu     sync.RWMutex
	checks map[string]scraping.DataQualityCheck
}

// NewQualityCheckStore constructs a QualityCheckStore.
func NewQualityCheckStore() *QualityCheckStore {
	return &QualityCheckStore{checks: make(map[string]scraping.DataQualityCheck)}
}

// ListActiveChecks returns every active rule set.
func (s *QualityCheckStore) ListActiveChecks(_ context.Context) ([]scraping.DataQualityCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scraping.DataQualityCheck, 0, len(s.checks))
	for _, check := range s.checks {
		if check.IsActive {
			out = append(out, check)
		}
	}
	return out, nil
}

// UpsertCheck inserts or replaces a rule set by check name.
func (s *QualityCheckStore) UpsertCheck(_ context.Context, check scraping.DataQualityCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[check.CheckName] = check
	return nil
}
