package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

// EnhancementStore keeps company-data enhancements in memory.
type EnhancementStore struct {
	mu           sync.RWMutex
	enhancements map[string]scraping.CompanyDataEnhancement
}

// NewEnhancementStore constructs an EnhancementStore.
func NewEnhancementStore() *EnhancementStore {
	return &EnhancementStore{enhancements: make(map[string]scraping.CompanyDataEnhancement)}
}

// InsertEnhancement stores one enhancement.
func (s *EnhancementStore) InsertEnhancement(_ context.Context, e scraping.CompanyDataEnhancement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enhancements[e.ID] = e
	return nil
}

// ListEnhancements filters and paginates enhancements, newest first.
func (s *EnhancementStore) ListEnhancements(_ context.Context, filter scraping.EnhancementFilter, limit, offset int) ([]scraping.CompanyDataEnhancement, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []scraping.CompanyDataEnhancement
	for _, e := range s.enhancements {
		if filter.CompanyID != 0 && e.CompanyID != filter.CompanyID {
			continue
		}
		if filter.DataSource != "" && e.DataSource != filter.DataSource {
			continue
		}
		if filter.EnhancementType != "" && e.EnhancementType != filter.EnhancementType {
			continue
		}
		if filter.IsVerified != nil && e.IsVerified != *filter.IsVerified {
			continue
		}
		if filter.ConfidenceThreshold > 0 && e.ConfidenceScore < filter.ConfidenceThreshold {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	matched = paginate(matched, limit, offset)
	return matched, total, nil
}

// SetVerified applies a verification verdict to an enhancement.
func (s *EnhancementStore) SetVerified(_ context.Context, enhancementID string, verified bool, verifiedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enhancements[enhancementID]
	if !ok {
		return scraping.ErrEnhancementNotFound
	}
	e.IsVerified = verified
	e.UpdatedAt = at
	if verified {
		e.VerifiedBy = verifiedBy
		ts := at
		e.VerifiedAt = &ts
	} else {
		e.VerifiedBy = ""
		e.VerifiedAt = nil
	}
	s.enhancements[enhancementID] = e
	return nil
}
