// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

// JobStore keeps scraping jobs in a mutex-guarded map.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]scraping.ScrapingJob
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]scraping.ScrapingJob)}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job scraping.ScrapingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return scraping.ErrInvalidJobState
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (scraping.ScrapingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scraping.ScrapingJob{}, scraping.ErrJobNotFound
	}
	return job, nil
}

// UpdateJob applies field-level changes to a stored job.
func (s *JobStore) UpdateJob(_ context.Context, jobID string, update scraping.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scraping.ErrJobNotFound
	}
	if update.Status != nil {
		job.Status = *update.Status
	}
	if update.ErrorMessage != nil {
		job.ErrorMessage = *update.ErrorMessage
	}
	if update.StartedAt != nil {
		job.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		job.CompletedAt = update.CompletedAt
	}
	if update.RetryCount != nil {
		job.RetryCount = *update.RetryCount
	}
	if update.ScheduledAt != nil {
		job.ScheduledAt = *update.ScheduledAt
	}
	if update.ResultsSummary != nil {
		job.ResultsSummary = update.ResultsSummary
	}
	job.UpdatedAt = time.Now().UTC()
	s.jobs[jobID] = job
	return nil
}

// FetchPending returns due pending jobs ordered by priority descending, then
// scheduled time ascending.
func (s *JobStore) FetchPending(_ context.Context, now time.Time, limit int) ([]scraping.ScrapingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pending []scraping.ScrapingJob
	for _, job := range s.jobs {
		if job.Status == scraping.JobStatusPending && !job.ScheduledAt.After(now) {
			pending = append(pending, job)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		if !pending[i].ScheduledAt.Equal(pending[j].ScheduledAt) {
			return pending[i].ScheduledAt.Before(pending[j].ScheduledAt)
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// ListJobs filters and paginates jobs, newest first.
func (s *JobStore) ListJobs(_ context.Context, filter scraping.JobFilter, limit, offset int) ([]scraping.ScrapingJob, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []scraping.ScrapingJob
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.ScraperType != "" && job.ScraperType != filter.ScraperType {
			continue
		}
		if filter.DataSource != "" && job.DataSource != filter.DataSource {
			continue
		}
		if filter.CompanyID != 0 && job.TargetCompanyID != filter.CompanyID {
			continue
		}
		if filter.Since != nil && job.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && job.CreatedAt.After(*filter.Until) {
			continue
		}
		matched = append(matched, job)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	matched = paginate(matched, limit, offset)
	return matched, total, nil
}

// Stats aggregates job counts, success rate, completion time, and per-source
// breakdowns.
func (s *JobStore) Stats(_ context.Context) (scraping.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := scraping.Stats{}
	var completionTotal time.Duration
	completionSamples := 0
	type sourceAgg struct{ total, completed int }
	bySource := make(map[scraping.DataSource]*sourceAgg)

	for _, job := range s.jobs {
		stats.TotalJobs++
		agg, ok := bySource[job.DataSource]
		if !ok {
			agg = &sourceAgg{}
			bySource[job.DataSource] = agg
		}
		agg.total++
		switch job.Status {
		case scraping.JobStatusCompleted:
			stats.CompletedJobs++
			agg.completed++
			if job.StartedAt != nil && job.CompletedAt != nil {
				completionTotal += job.CompletedAt.Sub(*job.StartedAt)
				completionSamples++
			}
		case scraping.JobStatusFailed:
			stats.FailedJobs++
		case scraping.JobStatusPending:
			stats.PendingJobs++
		}
	}
	if stats.TotalJobs > 0 {
		stats.SuccessRate = float64(stats.CompletedJobs) / float64(stats.TotalJobs) * 100
	}
	if completionSamples > 0 {
		stats.AverageCompletionMS = float64(completionTotal.Milliseconds()) / float64(completionSamples)
	}
	sources := make([]scraping.DataSource, 0, len(bySource))
	for source := range bySource {
		sources = append(sources, source)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	for _, source := range sources {
		agg := bySource[source]
		rate := 0.0
		if agg.total > 0 {
			rate = float64(agg.completed) / float64(agg.total) * 100
		}
		stats.BySource = append(stats.BySource, scraping.SourceStats{
			Source:      source,
			JobCount:    agg.total,
			SuccessRate: rate,
		})
	}
	return stats, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}
