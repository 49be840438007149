// Package engine schedules, executes, and retries scraping jobs.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ratemyemployer/scrape-engine/internal/metrics"
	"github.com/ratemyemployer/scrape-engine/internal/policy/ratelimit"
	"github.com/ratemyemployer/scrape-engine/internal/policy/robots"
	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

const (
	// DefaultMaxConcurrentJobs bounds simultaneous running jobs.
	DefaultMaxConcurrentJobs = 3

	defaultPollInterval = 5 * time.Second
	defaultErrorBackoff = 10 * time.Second

	completionTopic = "scraping.job.completed"
)

// estimatedMinutes is the static per-type completion estimate reported when
// a job is created.
var estimatedMinutes = map[scraping.ScraperType]int{
	scraping.ScraperTypeCompanyData:   5,
	scraping.ScraperTypeReviews:       15,
	scraping.ScraperTypeNews:          10,
	scraping.ScraperTypeJobListings:   8,
	scraping.ScraperTypeSocialMedia:   12,
	scraping.ScraperTypeFinancialData: 7,
	scraping.ScraperTypeEmployeeData:  10,
	scraping.ScraperTypeGlassdoor:     20,
	scraping.ScraperTypeLinkedIn:      15,
	scraping.ScraperTypeIndeed:        18,
	scraping.ScraperTypeCustom:        10,
}

// Config tunes the scheduling loop.
type Config struct {
	MaxConcurrentJobs int
	PollInterval      time.Duration
	ErrorBackoff      time.Duration
}

// Engine is the orchestrator: it admits new jobs through the policy gates,
// pulls due pending jobs, dispatches them to capabilities, and manages
// retry-with-backoff.
type Engine struct {
	jobs      scraping.JobStore
	logs      scraping.LogStore
	limiter   *ratelimit.Limiter
	robots    *robots.Gate
	registry  *Registry
	clock     scraping.Clock
	ids       scraping.IDGenerator
	publisher scraping.Publisher
	logger    *zap.Logger

	pollInterval time.Duration
	errorBackoff time.Duration

	mu            sync.Mutex
	running       bool
	loopCancel    context.CancelFunc
	active        map[string]context.CancelFunc
	maxConcurrent int
	wg            sync.WaitGroup
}

// New builds an Engine. robots and publisher may be nil.
func New(
	jobs scraping.JobStore,
	logs scraping.LogStore,
	limiter *ratelimit.Limiter,
	gate *robots.Gate,
	registry *Registry,
	clock scraping.Clock,
	ids scraping.IDGenerator,
	publisher scraping.Publisher,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaultErrorBackoff
	}
	return &Engine{
		jobs:          jobs,
		logs:          logs,
		limiter:       limiter,
		robots:        gate,
		registry:      registry,
		clock:         clock,
		ids:           ids,
		publisher:     publisher,
		logger:        logger,
		pollInterval:  cfg.PollInterval,
		errorBackoff:  cfg.ErrorBackoff,
		active:        make(map[string]context.CancelFunc),
		maxConcurrent: cfg.MaxConcurrentJobs,
	}
}

// CreateJob admits a new job through the rate limiter and, when a target URL
// is present, the robots gate. A denied rate limit or a store failure never
// creates a job.
func (e *Engine) CreateJob(ctx context.Context, req scraping.CreateJobRequest) (scraping.JobResponse, error) {
	if req.JobName == "" {
		return scraping.JobResponse{}, fmt.Errorf("%w: job_name is required", scraping.ErrInvalidRequest)
	}
	if req.ScraperType == "" {
		return scraping.JobResponse{}, fmt.Errorf("%w: scraper_type is required", scraping.ErrInvalidRequest)
	}
	if req.DataSource == "" {
		return scraping.JobResponse{}, fmt.Errorf("%w: data_source is required", scraping.ErrInvalidRequest)
	}

	allowed, err := e.limiter.Check(ctx, req.DataSource)
	if err != nil {
		// Fail closed: an unreachable counter store denies admission.
		return scraping.JobResponse{}, err
	}
	if !allowed {
		return scraping.JobResponse{}, fmt.Errorf("%w for data source %s", scraping.ErrRateLimitExceeded, req.DataSource)
	}

	if req.TargetURL != "" && e.robots != nil {
		if !e.robots.Allowed(ctx, req.TargetURL) {
			return scraping.JobResponse{}, fmt.Errorf("%w: %s", scraping.ErrRobotsDisallowed, req.TargetURL)
		}
	}

	id, err := e.ids.NewID()
	if err != nil {
		return scraping.JobResponse{}, fmt.Errorf("generate job id: %w", err)
	}

	now := e.clock.Now()
	job := scraping.ScrapingJob{
		ID:                id,
		JobName:           req.JobName,
		ScraperType:       req.ScraperType,
		DataSource:        req.DataSource,
		TargetURL:         req.TargetURL,
		TargetCompanyID:   req.TargetCompanyID,
		TargetCompanyName: req.TargetCompanyName,
		Status:            scraping.JobStatusPending,
		Priority:          req.Priority,
		ScheduledAt:       now,
		MaxRetries:        scraping.DefaultMaxRetries,
		Configuration:     req.Configuration,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if job.Priority == 0 {
		job.Priority = scraping.DefaultPriority
	}
	if req.ScheduledAt != nil {
		job.ScheduledAt = *req.ScheduledAt
	}
	if job.Configuration == nil {
		job.Configuration = map[string]any{}
	}

	if err := e.jobs.CreateJob(ctx, job); err != nil {
		return scraping.JobResponse{}, fmt.Errorf("persist job: %w", err)
	}

	e.appendLog(ctx, job.ID, scraping.LogLevelInfo, "Scraping job created", map[string]any{
		"scraper_type": string(job.ScraperType),
		"data_source":  string(job.DataSource),
		"priority":     job.Priority,
	})
	e.logger.Info("scraping job created",
		zap.String("job_id", job.ID),
		zap.String("scraper_type", string(job.ScraperType)),
		zap.String("data_source", string(job.DataSource)),
	)

	resp := scraping.JobResponse{
		Job:                 job,
		EstimatedCompletion: job.ScheduledAt.Add(e.estimateFor(job.ScraperType)),
		RateLimitStatus:     scraping.RateLimitStatus{CanProceed: true},
	}
	if state, err := e.limiter.State(ctx, job.DataSource); err == nil {
		reset := state.ResetMinuteAt
		resp.RateLimitStatus.ResetAt = &reset
	}
	return resp, nil
}

func (e *Engine) estimateFor(t scraping.ScraperType) time.Duration {
	minutes, ok := estimatedMinutes[t]
	if !ok {
		minutes = 10
	}
	return time.Duration(minutes) * time.Minute
}

// Start launches the scheduling loop. Calling Start on a running engine is a
// no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	e.running = true
	e.loopCancel = cancel
	e.wg.Add(1)
	go e.run(loopCtx)
	e.logger.Info("scraping engine started",
		zap.Int("max_concurrent_jobs", e.maxConcurrent),
		zap.Duration("poll_interval", e.pollInterval),
	)
}

// Stop halts the loop and cancels every in-flight job. In-flight jobs are
// marked cancelled by their own execution goroutines. Safe to call more than
// once and from signal handlers.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.loopCancel()
	for _, cancel := range e.active {
		cancel()
	}
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Info("scraping engine stopped")
}

// Running reports whether the scheduling loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// SetMaxConcurrentJobs adjusts the concurrency cap at runtime.
func (e *Engine) SetMaxConcurrentJobs(n int) {
	if n <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxConcurrent = n
}

// run is the scheduling loop. It never panics the process: pass-level errors
// are logged and retried after a longer backoff.
func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	for {
		delay := e.pollInterval
		if err := e.dispatchPending(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error("scheduling pass failed", zap.Error(err))
			delay = e.errorBackoff
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// dispatchPending claims up to the free capacity worth of due pending jobs
// and starts them without waiting for each other.
func (e *Engine) dispatchPending(ctx context.Context) error {
	e.mu.Lock()
	free := e.maxConcurrent - len(e.active)
	e.mu.Unlock()
	if free <= 0 {
		return nil
	}

	pending, err := e.jobs.FetchPending(ctx, e.clock.Now(), free)
	if err != nil {
		return fmt.Errorf("fetch pending jobs: %w", err)
	}
	for _, job := range pending {
		e.startJob(ctx, job)
	}
	return nil
}

func (e *Engine) startJob(ctx context.Context, job scraping.ScrapingJob) {
	e.mu.Lock()
	if !e.running || len(e.active) >= e.maxConcurrent {
		e.mu.Unlock()
		return
	}
	if _, alreadyActive := e.active[job.ID]; alreadyActive {
		e.mu.Unlock()
		return
	}
	jobCtx, cancel := context.WithCancel(ctx)
	e.active[job.ID] = cancel
	metrics.SetActiveJobs(len(e.active))
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			e.mu.Lock()
			delete(e.active, job.ID)
			metrics.SetActiveJobs(len(e.active))
			e.mu.Unlock()
			e.wg.Done()
		}()
		e.executeJob(jobCtx, job)
	}()
}

// executeJob runs one claimed job to a terminal or retryable state. Cleanup
// of the active set is guaranteed by startJob on every exit path.
func (e *Engine) executeJob(ctx context.Context, job scraping.ScrapingJob) {
	start := e.clock.Now()
	status := scraping.JobStatusRunning
	if err := e.jobs.UpdateJob(ctx, job.ID, scraping.JobUpdate{Status: &status, StartedAt: &start}); err != nil {
		e.logger.Error("mark job running failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	e.appendLog(ctx, job.ID, scraping.LogLevelInfo, "Job execution started", nil)

	// Defense in depth: a job may sit pending long enough that its admission
	// check is stale. A store failure here only logs; the admission gate at
	// CreateJob is the one that fails closed.
	allowed, err := e.limiter.Check(ctx, job.DataSource)
	if err != nil {
		e.logger.Warn("rate limit re-check unavailable, continuing",
			zap.String("job_id", job.ID), zap.Error(err))
	} else if !allowed {
		e.finishFailure(ctx, job, start, fmt.Sprintf("rate limit exceeded for data source %s at execution time", job.DataSource))
		return
	}

	scraper, ok := e.registry.Get(job.ScraperType)
	if !ok {
		e.finishFailure(ctx, job, start, fmt.Sprintf("%v: %s", scraping.ErrUnsupportedScraperType, job.ScraperType))
		return
	}

	result, err := scraper.Scrape(ctx, job)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			e.finishCancelled(job, start)
			return
		}
		e.finishFailure(ctx, job, start, err.Error())
		return
	}

	e.finishSuccess(ctx, job, start, result)
}

func (e *Engine) finishSuccess(ctx context.Context, job scraping.ScrapingJob, start time.Time, result scraping.ScrapingResult) {
	done := e.clock.Now()
	status := scraping.JobStatusCompleted
	summary := map[string]any{
		"data_count":         result.DataCount,
		"errors":             result.Errors,
		"warnings":           result.Warnings,
		"data_quality_score": result.DataQualityScore,
		"processing_time_ms": result.ProcessingTimeMS,
	}
	if err := e.jobs.UpdateJob(ctx, job.ID, scraping.JobUpdate{
		Status:         &status,
		CompletedAt:    &done,
		ResultsSummary: summary,
	}); err != nil {
		e.logger.Error("mark job completed failed", zap.String("job_id", job.ID), zap.Error(err))
	}

	e.appendLog(ctx, job.ID, scraping.LogLevelInfo,
		fmt.Sprintf("Job completed successfully, %d items scraped", result.DataCount),
		map[string]any{
			"data_count":         result.DataCount,
			"data_quality_score": result.DataQualityScore,
		})
	e.logger.Info("job completed",
		zap.String("job_id", job.ID),
		zap.Int("data_count", result.DataCount),
		zap.Float64("data_quality_score", result.DataQualityScore),
	)
	metrics.ObserveJobFinished(string(job.ScraperType), "completed", done.Sub(start))
	e.publishCompletion(ctx, job, string(scraping.JobStatusCompleted), result)
}

func (e *Engine) finishCancelled(job scraping.ScrapingJob, start time.Time) {
	// The job context is gone; use a short background context so the
	// terminal state still lands in the store.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := e.clock.Now()
	status := scraping.JobStatusCancelled
	msg := "Job was cancelled"
	if err := e.jobs.UpdateJob(ctx, job.ID, scraping.JobUpdate{
		Status:       &status,
		CompletedAt:  &done,
		ErrorMessage: &msg,
	}); err != nil {
		e.logger.Error("mark job cancelled failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	e.appendLog(ctx, job.ID, scraping.LogLevelWarn, msg, nil)
	e.logger.Warn("job cancelled", zap.String("job_id", job.ID))
	metrics.ObserveJobFinished(string(job.ScraperType), "cancelled", done.Sub(start))
}

func (e *Engine) finishFailure(ctx context.Context, job scraping.ScrapingJob, start time.Time, errMsg string) {
	done := e.clock.Now()
	status := scraping.JobStatusFailed
	if err := e.jobs.UpdateJob(ctx, job.ID, scraping.JobUpdate{
		Status:       &status,
		CompletedAt:  &done,
		ErrorMessage: &errMsg,
	}); err != nil {
		e.logger.Error("mark job failed failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	e.appendLog(ctx, job.ID, scraping.LogLevelError, "Job execution failed", map[string]any{
		"error": errMsg,
	})
	e.logger.Error("job failed", zap.String("job_id", job.ID), zap.String("error", errMsg))
	metrics.ObserveJobFinished(string(job.ScraperType), "failed", done.Sub(start))

	e.handleRetry(ctx, job.ID)
}

// handleRetry recycles a failed job back to pending with exponential backoff
// while its retry budget lasts.
func (e *Engine) handleRetry(ctx context.Context, jobID string) {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		e.logger.Error("load job for retry failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if job.RetryCount >= job.MaxRetries {
		e.appendLog(ctx, job.ID, scraping.LogLevelError, "Retry budget exhausted, job failed permanently", map[string]any{
			"retry_count": job.RetryCount,
			"max_retries": job.MaxRetries,
		})
		return
	}

	retryCount := job.RetryCount + 1
	delay := scraping.RetryDelay(retryCount)
	nextRun := e.clock.Now().Add(delay)
	status := scraping.JobStatusPending
	if err := e.jobs.UpdateJob(ctx, job.ID, scraping.JobUpdate{
		Status:      &status,
		RetryCount:  &retryCount,
		ScheduledAt: &nextRun,
	}); err != nil {
		e.logger.Error("schedule retry failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	e.appendLog(ctx, job.ID, scraping.LogLevelInfo, "Job scheduled for retry", map[string]any{
		"retry_count": retryCount,
		"delay":       delay.String(),
	})
	e.logger.Info("job scheduled for retry",
		zap.String("job_id", job.ID),
		zap.Int("retry_count", retryCount),
		zap.Duration("delay", delay),
	)
}

// CancelJob cancels a pending, paused, or running job. Running jobs are
// cancelled through their context and transition asynchronously.
func (e *Engine) CancelJob(ctx context.Context, jobID string) error {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	switch job.Status {
	case scraping.JobStatusRunning:
		e.mu.Lock()
		cancel, active := e.active[jobID]
		e.mu.Unlock()
		if active {
			cancel()
			return nil
		}
		// Not in this instance's active set; mark it directly.
		fallthrough
	case scraping.JobStatusPending, scraping.JobStatusPaused:
		done := e.clock.Now()
		status := scraping.JobStatusCancelled
		if err := e.jobs.UpdateJob(ctx, jobID, scraping.JobUpdate{
			Status:      &status,
			CompletedAt: &done,
		}); err != nil {
			return fmt.Errorf("cancel job %s: %w", jobID, err)
		}
		e.appendLog(ctx, jobID, scraping.LogLevelWarn, "Job was cancelled", nil)
		return nil
	default:
		return fmt.Errorf("%w: cannot cancel %s job", scraping.ErrInvalidJobState, job.Status)
	}
}

// RetryJob manually recycles a failed or cancelled job: retry_count resets
// to zero and the error message is cleared.
func (e *Engine) RetryJob(ctx context.Context, jobID string) error {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != scraping.JobStatusFailed && job.Status != scraping.JobStatusCancelled {
		return fmt.Errorf("%w: cannot retry %s job", scraping.ErrInvalidJobState, job.Status)
	}

	status := scraping.JobStatusPending
	zero := 0
	empty := ""
	now := e.clock.Now()
	if err := e.jobs.UpdateJob(ctx, jobID, scraping.JobUpdate{
		Status:       &status,
		RetryCount:   &zero,
		ErrorMessage: &empty,
		ScheduledAt:  &now,
	}); err != nil {
		return fmt.Errorf("retry job %s: %w", jobID, err)
	}
	e.appendLog(ctx, jobID, scraping.LogLevelInfo, "Job manually queued for retry", nil)
	return nil
}

func (e *Engine) publishCompletion(ctx context.Context, job scraping.ScrapingJob, status string, result scraping.ScrapingResult) {
	if e.publisher == nil {
		return
	}
	payload := map[string]any{
		"job_id":             job.ID,
		"scraper_type":       string(job.ScraperType),
		"data_source":        string(job.DataSource),
		"status":             status,
		"data_count":         result.DataCount,
		"data_quality_score": result.DataQualityScore,
		"timestamp":          e.clock.Now().Format(time.RFC3339),
	}
	if _, err := e.publisher.Publish(ctx, completionTopic, payload); err != nil {
		e.logger.Warn("publish completion event failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (e *Engine) appendLog(ctx context.Context, jobID string, level scraping.LogLevel, message string, details map[string]any) {
	id, err := e.ids.NewID()
	if err != nil {
		e.logger.Warn("generate log id failed", zap.Error(err))
		return
	}
	entry := scraping.ScrapingLog{
		ID:            id,
		ScrapingJobID: jobID,
		LogLevel:      level,
		Message:       message,
		Details:       details,
		CreatedAt:     e.clock.Now(),
	}
	if err := e.logs.AppendLog(ctx, entry); err != nil {
		e.logger.Warn("append job log failed", zap.String("job_id", jobID), zap.Error(err))
	}
}
