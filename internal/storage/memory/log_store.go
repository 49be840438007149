package memory

import (
	"context"
	"sync"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

// LogStore keeps job audit entries in memory, append-only.
type LogStore struct {
	mu      sync.RWMutex
	entries map[string][]scraping.ScrapingLog
}

// NewLogStore constructs a LogStore.
func NewLogStore() *LogStore {
	return &LogStore{entries: make(map[string][]scraping.ScrapingLog)}
}

// AppendLog records one audit entry for a job.
func (s *LogStore) AppendLog(_ context.Context, entry scraping.ScrapingLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ScrapingJobID] = append(s.entries[entry.ScrapingJobID], entry)
	return nil
}

// ListLogs returns the newest entries for a job, most recent first.
func (s *LogStore) ListLogs(_ context.Context, jobID string, limit int) ([]scraping.ScrapingLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.entries[jobID]
	out := make([]scraping.ScrapingLog, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
