package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

// DataStore keeps scraped records in memory.
type DataStore struct {
	mu      sync.RWMutex
	records map[string]scraping.ScrapedData
}

// NewDataStore constructs a DataStore.
func NewDataStore() *DataStore {
	return &DataStore{records: make(map[string]scraping.ScrapedData)}
}

// InsertData stores one scraped record.
func (s *DataStore) InsertData(_ context.Context, data scraping.ScrapedData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[data.ID] = data
	return nil
}

// GetData fetches a record by ID.
func (s *DataStore) GetData(_ context.Context, dataID string) (scraping.ScrapedData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[dataID]
	if !ok {
		return scraping.ScrapedData{}, scraping.ErrDataNotFound
	}
	return rec, nil
}

// ListData filters and paginates records, newest first.
func (s *DataStore) ListData(_ context.Context, filter scraping.DataFilter, limit, offset int) ([]scraping.ScrapedData, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []scraping.ScrapedData
	for _, rec := range s.records {
		if filter.CompanyID != 0 && rec.CompanyID != filter.CompanyID {
			continue
		}
		if filter.DataType != "" && rec.DataType != filter.DataType {
			continue
		}
		if filter.IsValidated != nil && rec.IsValidated != *filter.IsValidated {
			continue
		}
		if filter.ScrapingJobID != "" && rec.ScrapingJobID != filter.ScrapingJobID {
			continue
		}
		matched = append(matched, rec)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ScrapedAt.After(matched[j].ScrapedAt)
	})
	total := len(matched)
	matched = paginate(matched, limit, offset)
	return matched, total, nil
}

// SetValidation applies a manual validation verdict to a record.
func (s *DataStore) SetValidation(_ context.Context, dataID string, isValidated bool, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[dataID]
	if !ok {
		return scraping.ErrDataNotFound
	}
	rec.IsValidated = isValidated
	rec.ValidationNotes = notes
	s.records[dataID] = rec
	return nil
}

// AverageConfidence returns the mean confidence score across all records.
func (s *DataStore) AverageConfidence(_ context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return 0, nil
	}
	total := 0.0
	for _, rec := range s.records {
		total += rec.ConfidenceScore
	}
	return total / float64(len(s.records)), nil
}
