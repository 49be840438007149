package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ratemyemployer/scrape-engine/internal/hash/sha256"
	"github.com/ratemyemployer/scrape-engine/internal/id/uuid"
	"github.com/ratemyemployer/scrape-engine/internal/policy/ratelimit"
	"github.com/ratemyemployer/scrape-engine/internal/policy/robots"
	pubmemory "github.com/ratemyemployer/scrape-engine/internal/publisher/memory"
	"github.com/ratemyemployer/scrape-engine/internal/quality"
	"github.com/ratemyemployer/scrape-engine/internal/scrapers"
	"github.com/ratemyemployer/scrape-engine/internal/scraping"
	"github.com/ratemyemployer/scrape-engine/internal/storage/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type failingScraper struct{}

func (failingScraper) Scrape(context.Context, scraping.ScrapingJob) (scraping.ScrapingResult, error) {
	return scraping.ScrapingResult{}, errors.New("target returned 503")
}

type blockingScraper struct {
	started chan string
}

func (s *blockingScraper) Scrape(ctx context.Context, job scraping.ScrapingJob) (scraping.ScrapingResult, error) {
	s.started <- job.ID
	<-ctx.Done()
	return scraping.ScrapingResult{}, ctx.Err()
}

type failingRateLimitStore struct{}

func (failingRateLimitStore) Admit(context.Context, scraping.DataSource, scraping.RateLimitCeilings, time.Time) (bool, error) {
	return false, errors.New("connection refused")
}

func (failingRateLimitStore) GetState(context.Context, scraping.DataSource) (scraping.RateLimitState, error) {
	return scraping.RateLimitState{}, errors.New("connection refused")
}

func (failingRateLimitStore) SetBlocked(context.Context, scraping.DataSource, time.Time) error {
	return errors.New("connection refused")
}

type harness struct {
	engine    *Engine
	jobs      *memory.JobStore
	logs      *memory.LogStore
	data      *memory.DataStore
	publisher *pubmemory.Publisher
	registry  *Registry
	clock     *fakeClock
}

func newHarness(t *testing.T, limitStore scraping.RateLimitStore, gate *robots.Gate) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	clock := &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	if limitStore == nil {
		limitStore = memory.NewRateLimitStore()
	}
	limiter := ratelimit.New(limitStore, clock, ratelimit.Config{
		DefaultCeilings: scraping.RateLimitCeilings{PerMinute: 100, PerHour: 1000, PerDay: 10000},
	}, logger)

	jobs := memory.NewJobStore()
	logs := memory.NewLogStore()
	data := memory.NewDataStore()
	pub := pubmemory.New()
	registry := NewRegistry()

	eng := New(jobs, logs, limiter, gate, registry, clock, uuid.New(), pub, Config{
		MaxConcurrentJobs: 3,
		PollInterval:      10 * time.Millisecond,
		ErrorBackoff:      20 * time.Millisecond,
	}, logger)

	h := &harness{
		engine:    eng,
		jobs:      jobs,
		logs:      logs,
		data:      data,
		publisher: pub,
		registry:  registry,
		clock:     clock,
	}
	t.Cleanup(eng.Stop)
	return h
}

func (h *harness) registerNewsScraper(t *testing.T) {
	t.Helper()
	checks := memory.NewQualityCheckStore()
	validator := quality.New(checks, h.clock, zaptest.NewLogger(t))
	require.NoError(t, validator.EnsureDefaults(context.Background()))
	h.registry.Register(scraping.ScraperTypeNews, scrapers.NewNewsScraper(scrapers.Deps{
		Fetcher:   scrapers.NewFetcher(scrapers.FetchConfig{}),
		Data:      h.data,
		Hasher:    sha256.New(),
		IDs:       uuid.New(),
		Clock:     h.clock,
		Validator: validator,
		Logger:    zaptest.NewLogger(t),
	}))
}

func waitForStatus(t *testing.T, jobs *memory.JobStore, jobID string, want scraping.JobStatus) scraping.ScrapingJob {
	t.Helper()
	var job scraping.ScrapingJob
	require.Eventually(t, func() bool {
		var err error
		job, err = jobs.GetJob(context.Background(), jobID)
		return err == nil && job.Status == want
	}, 3*time.Second, 5*time.Millisecond, "job %s never reached %s", jobID, want)
	return job
}

func TestEngineRunsNewsJobEndToEnd(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.registerNewsScraper(t)

	resp, err := h.engine.CreateJob(context.Background(), scraping.CreateJobRequest{
		JobName:           "acme news sweep",
		ScraperType:       scraping.ScraperTypeNews,
		DataSource:        scraping.DataSourceNewsSites,
		TargetCompanyName: "Acme Corp",
	})
	require.NoError(t, err)
	require.Equal(t, scraping.JobStatusPending, resp.Job.Status)
	require.Equal(t, h.clock.now.Add(10*time.Minute), resp.EstimatedCompletion)
	require.True(t, resp.RateLimitStatus.CanProceed)

	h.engine.Start(context.Background())
	job := waitForStatus(t, h.jobs, resp.Job.ID, scraping.JobStatusCompleted)

	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)
	require.EqualValues(t, 4, job.ResultsSummary["data_count"])

	entries, err := h.logs.ListLogs(context.Background(), job.ID, 50)
	require.NoError(t, err)
	var sawCompletion bool
	for _, entry := range entries {
		if entry.LogLevel == scraping.LogLevelInfo && entry.Message == "Job completed successfully, 4 items scraped" {
			sawCompletion = true
		}
	}
	require.True(t, sawCompletion, "expected completion log entry, got %+v", entries)

	msgs := h.publisher.Events()
	require.Len(t, msgs, 1)
	require.Equal(t, "scraping.job.completed", msgs[0].Topic)
	payload, ok := msgs[0].Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, job.ID, payload["job_id"])
	require.Equal(t, 4, payload["data_count"])
}

func TestEngineCreateJobValidation(t *testing.T) {
	h := newHarness(t, nil, nil)

	_, err := h.engine.CreateJob(context.Background(), scraping.CreateJobRequest{
		ScraperType: scraping.ScraperTypeNews,
		DataSource:  scraping.DataSourceNewsSites,
	})
	require.ErrorIs(t, err, scraping.ErrInvalidRequest)

	_, err = h.engine.CreateJob(context.Background(), scraping.CreateJobRequest{
		JobName:    "no type",
		DataSource: scraping.DataSourceNewsSites,
	})
	require.ErrorIs(t, err, scraping.ErrInvalidRequest)
}

func TestEngineCreateJobRateLimited(t *testing.T) {
	store := memory.NewRateLimitStore()
	logger := zaptest.NewLogger(t)
	clock := &fakeClock{now: time.Now().UTC()}
	limiter := ratelimit.New(store, clock, ratelimit.Config{
		DefaultCeilings: scraping.RateLimitCeilings{PerMinute: 1, PerHour: 10, PerDay: 100},
	}, logger)

	jobs := memory.NewJobStore()
	eng := New(jobs, memory.NewLogStore(), limiter, nil, NewRegistry(), clock, uuid.New(), nil, Config{}, logger)

	req := scraping.CreateJobRequest{
		JobName:     "first",
		ScraperType: scraping.ScraperTypeNews,
		DataSource:  scraping.DataSourceNewsSites,
	}
	_, err := eng.CreateJob(context.Background(), req)
	require.NoError(t, err)

	_, err = eng.CreateJob(context.Background(), req)
	require.ErrorIs(t, err, scraping.ErrRateLimitExceeded)

	_, total, err := jobs.ListJobs(context.Background(), scraping.JobFilter{}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total, "denied request must not create a job")
}

func TestEngineCreateJobFailsClosedOnStoreError(t *testing.T) {
	h := newHarness(t, failingRateLimitStore{}, nil)

	_, err := h.engine.CreateJob(context.Background(), scraping.CreateJobRequest{
		JobName:     "unlucky",
		ScraperType: scraping.ScraperTypeNews,
		DataSource:  scraping.DataSourceNewsSites,
	})
	require.ErrorIs(t, err, scraping.ErrRateLimitStoreUnavailable)

	_, total, err := h.jobs.ListJobs(context.Background(), scraping.JobFilter{}, 10, 0)
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestEngineCreateJobRobotsDenied(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	cache := memory.NewRobotsCacheStore()
	require.NoError(t, cache.PutRules(context.Background(), scraping.RobotsRules{
		Domain:          "blocked.example",
		DisallowedPaths: []string{"/"},
		LastFetched:     clock.now,
		ExpiresAt:       clock.now.Add(24 * time.Hour),
	}))
	gate := robots.New(cache, nil, clock, zaptest.NewLogger(t))

	h := newHarness(t, nil, gate)
	h.clock.now = clock.now

	_, err := h.engine.CreateJob(context.Background(), scraping.CreateJobRequest{
		JobName:     "disallowed",
		ScraperType: scraping.ScraperTypeNews,
		DataSource:  scraping.DataSourceNewsSites,
		TargetURL:   "https://blocked.example/articles/1",
	})
	require.ErrorIs(t, err, scraping.ErrRobotsDisallowed)
}

func TestEngineRetriesFailedJobWithBackoff(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.registry.Register(scraping.ScraperTypeCustom, failingScraper{})

	resp, err := h.engine.CreateJob(context.Background(), scraping.CreateJobRequest{
		JobName:     "flaky",
		ScraperType: scraping.ScraperTypeCustom,
		DataSource:  scraping.DataSourceCustomAPI,
	})
	require.NoError(t, err)

	h.engine.Start(context.Background())

	// The first attempt fails and recycles to pending; the fixed fake clock
	// keeps the retry (now + 2s) in the future so the state is stable.
	var job scraping.ScrapingJob
	require.Eventually(t, func() bool {
		job, err = h.jobs.GetJob(context.Background(), resp.Job.ID)
		return err == nil && job.Status == scraping.JobStatusPending && job.RetryCount == 1
	}, 3*time.Second, 5*time.Millisecond)

	require.Equal(t, h.clock.now.Add(scraping.RetryDelay(1)), job.ScheduledAt)
	require.Equal(t, "target returned 503", job.ErrorMessage)
}

func TestEngineUnsupportedScraperType(t *testing.T) {
	h := newHarness(t, nil, nil)

	resp, err := h.engine.CreateJob(context.Background(), scraping.CreateJobRequest{
		JobName:     "mystery",
		ScraperType: scraping.ScraperTypeSocialMedia,
		DataSource:  scraping.DataSourceSocialMedia,
	})
	require.NoError(t, err)

	h.engine.Start(context.Background())

	var job scraping.ScrapingJob
	require.Eventually(t, func() bool {
		job, err = h.jobs.GetJob(context.Background(), resp.Job.ID)
		return err == nil && job.Status == scraping.JobStatusPending && job.RetryCount == 1
	}, 3*time.Second, 5*time.Millisecond)
	require.Contains(t, job.ErrorMessage, "unsupported scraper type")
}

func TestEngineStopCancelsRunningJob(t *testing.T) {
	h := newHarness(t, nil, nil)
	blocker := &blockingScraper{started: make(chan string, 1)}
	h.registry.Register(scraping.ScraperTypeReviews, blocker)

	resp, err := h.engine.CreateJob(context.Background(), scraping.CreateJobRequest{
		JobName:     "long haul",
		ScraperType: scraping.ScraperTypeReviews,
		DataSource:  scraping.DataSourceGlassdoor,
	})
	require.NoError(t, err)

	h.engine.Start(context.Background())
	select {
	case <-blocker.started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never started")
	}

	h.engine.Stop()

	job, err := h.jobs.GetJob(context.Background(), resp.Job.ID)
	require.NoError(t, err)
	require.Equal(t, scraping.JobStatusCancelled, job.Status)
	require.Equal(t, "Job was cancelled", job.ErrorMessage)
	require.False(t, h.engine.Running())
}

func TestEngineConcurrencyBound(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.engine.SetMaxConcurrentJobs(1)
	blocker := &blockingScraper{started: make(chan string, 2)}
	h.registry.Register(scraping.ScraperTypeReviews, blocker)

	for _, name := range []string{"one", "two"} {
		_, err := h.engine.CreateJob(context.Background(), scraping.CreateJobRequest{
			JobName:     name,
			ScraperType: scraping.ScraperTypeReviews,
			DataSource:  scraping.DataSourceGlassdoor,
		})
		require.NoError(t, err)
	}

	h.engine.Start(context.Background())
	select {
	case <-blocker.started:
	case <-time.After(3 * time.Second):
		t.Fatal("no job started")
	}

	// With capacity 1 the second job must stay pending while the first
	// blocks.
	time.Sleep(50 * time.Millisecond)
	_, total, err := h.jobs.ListJobs(context.Background(), scraping.JobFilter{Status: scraping.JobStatusRunning}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
}

func TestEngineCancelPendingJob(t *testing.T) {
	h := newHarness(t, nil, nil)

	resp, err := h.engine.CreateJob(context.Background(), scraping.CreateJobRequest{
		JobName:     "queued",
		ScraperType: scraping.ScraperTypeNews,
		DataSource:  scraping.DataSourceNewsSites,
	})
	require.NoError(t, err)

	require.NoError(t, h.engine.CancelJob(context.Background(), resp.Job.ID))
	job, err := h.jobs.GetJob(context.Background(), resp.Job.ID)
	require.NoError(t, err)
	require.Equal(t, scraping.JobStatusCancelled, job.Status)

	err = h.engine.CancelJob(context.Background(), resp.Job.ID)
	require.ErrorIs(t, err, scraping.ErrInvalidJobState)

	err = h.engine.CancelJob(context.Background(), "missing")
	require.ErrorIs(t, err, scraping.ErrJobNotFound)
}

func TestEngineCancelRunningJob(t *testing.T) {
	h := newHarness(t, nil, nil)
	blocker := &blockingScraper{started: make(chan string, 1)}
	h.registry.Register(scraping.ScraperTypeReviews, blocker)

	resp, err := h.engine.CreateJob(context.Background(), scraping.CreateJobRequest{
		JobName:     "in flight",
		ScraperType: scraping.ScraperTypeReviews,
		DataSource:  scraping.DataSourceGlassdoor,
	})
	require.NoError(t, err)

	h.engine.Start(context.Background())
	select {
	case <-blocker.started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never started")
	}

	require.NoError(t, h.engine.CancelJob(context.Background(), resp.Job.ID))
	waitForStatus(t, h.jobs, resp.Job.ID, scraping.JobStatusCancelled)
}

func TestEngineManualRetryResetsJob(t *testing.T) {
	h := newHarness(t, nil, nil)

	resp, err := h.engine.CreateJob(context.Background(), scraping.CreateJobRequest{
		JobName:     "give it another go",
		ScraperType: scraping.ScraperTypeNews,
		DataSource:  scraping.DataSourceNewsSites,
	})
	require.NoError(t, err)

	// Retrying a pending job is invalid.
	err = h.engine.RetryJob(context.Background(), resp.Job.ID)
	require.ErrorIs(t, err, scraping.ErrInvalidJobState)

	failed := scraping.JobStatusFailed
	msg := "boom"
	three := 3
	require.NoError(t, h.jobs.UpdateJob(context.Background(), resp.Job.ID, scraping.JobUpdate{
		Status:       &failed,
		ErrorMessage: &msg,
		RetryCount:   &three,
	}))

	require.NoError(t, h.engine.RetryJob(context.Background(), resp.Job.ID))
	job, err := h.jobs.GetJob(context.Background(), resp.Job.ID)
	require.NoError(t, err)
	require.Equal(t, scraping.JobStatusPending, job.Status)
	require.Zero(t, job.RetryCount)
	require.Empty(t, job.ErrorMessage)
}

func TestEngineStartIsIdempotent(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.engine.Start(context.Background())
	h.engine.Start(context.Background())
	require.True(t, h.engine.Running())
	h.engine.Stop()
	h.engine.Stop()
	require.False(t, h.engine.Running())
}
