package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

const jobColumns = `id, job_name, scraper_type, data_source, target_url,
	target_company_id, target_company_name, status, priority, scheduled_at,
	started_at, completed_at, retry_count, max_retries, error_message,
	configuration, results_summary, created_at, updated_at`

// JobStore persists scraping jobs in Postgres.
type JobStore struct {
	pool querier
}

// NewJobStore wraps a pool in a JobStore.
func NewJobStore(pool querier) *JobStore {
	return &JobStore{pool: pool}
}

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job scraping.ScrapingJob) error {
	configuration, err := json.Marshal(job.Configuration)
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}
	summary, err := marshalNullable(job.ResultsSummary)
	if err != nil {
		return fmt.Errorf("marshal results summary: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO scraping_jobs (
	id, job_name, scraper_type, data_source, target_url,
	target_company_id, target_company_name, status, priority, scheduled_at,
	retry_count, max_retries, error_message, configuration, results_summary,
	created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		job.ID, job.JobName, string(job.ScraperType), string(job.DataSource), job.TargetURL,
		job.TargetCompanyID, job.TargetCompanyName, string(job.Status), job.Priority, job.ScheduledAt,
		job.RetryCount, job.MaxRetries, job.ErrorMessage, configuration, summary,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert scraping job: %w", err)
	}
	return nil
}

// GetJob fetches one job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (scraping.ScrapingJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM scraping_jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return scraping.ScrapingJob{}, scraping.ErrJobNotFound
	}
	if err != nil {
		return scraping.ScrapingJob{}, fmt.Errorf("select scraping job: %w", err)
	}
	return job, nil
}

// UpdateJob applies field-level changes. Only non-nil update fields touch
// their columns.
func (s *JobStore) UpdateJob(ctx context.Context, jobID string, update scraping.JobUpdate) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{jobID}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Status != nil {
		add("status", string(*update.Status))
	}
	if update.ErrorMessage != nil {
		add("error_message", *update.ErrorMessage)
	}
	if update.StartedAt != nil {
		add("started_at", *update.StartedAt)
	}
	if update.CompletedAt != nil {
		add("completed_at", *update.CompletedAt)
	}
	if update.RetryCount != nil {
		add("retry_count", *update.RetryCount)
	}
	if update.ScheduledAt != nil {
		add("scheduled_at", *update.ScheduledAt)
	}
	if update.ResultsSummary != nil {
		summary, err := json.Marshal(update.ResultsSummary)
		if err != nil {
			return fmt.Errorf("marshal results summary: %w", err)
		}
		add("results_summary", summary)
	}

	query := fmt.Sprintf("UPDATE scraping_jobs SET %s WHERE id = $1", strings.Join(sets, ", "))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update scraping job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scraping.ErrJobNotFound
	}
	return nil
}

// FetchPending claims up to limit due pending jobs inside a transaction,
// skipping rows locked by concurrent engine instances.
func (s *JobStore) FetchPending(ctx context.Context, now time.Time, limit int) ([]scraping.ScrapingJob, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin pending claim: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	rows, err := tx.Query(ctx, `
SELECT `+jobColumns+`
FROM scraping_jobs
WHERE status = 'pending' AND scheduled_at <= $1
ORDER BY priority DESC, COALESCE(scheduled_at, created_at) ASC
LIMIT $2
FOR UPDATE SKIP LOCKED`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending jobs: %w", err)
	}
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit pending claim: %w", err)
	}
	return jobs, nil
}

// ListJobs filters and paginates jobs, newest first, returning the total
// matching count.
func (s *JobStore) ListJobs(ctx context.Context, filter scraping.JobFilter, limit, offset int) ([]scraping.ScrapingJob, int, error) {
	where := "TRUE"
	args := []any{}
	and := func(clause string, value any) {
		args = append(args, value)
		where += fmt.Sprintf(" AND %s $%d", clause, len(args))
	}

	if filter.Status != "" {
		and("status =", string(filter.Status))
	}
	if filter.ScraperType != "" {
		and("scraper_type =", string(filter.ScraperType))
	}
	if filter.DataSource != "" {
		and("data_source =", string(filter.DataSource))
	}
	if filter.CompanyID != 0 {
		and("target_company_id =", filter.CompanyID)
	}
	if filter.Since != nil {
		and("created_at >=", *filter.Since)
	}
	if filter.Until != nil {
		and("created_at <=", *filter.Until)
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM scraping_jobs WHERE "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count scraping jobs: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
SELECT `+jobColumns+`
FROM scraping_jobs
WHERE %s
ORDER BY created_at DESC
LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select scraping jobs: %w", err)
	}
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// Stats aggregates job counts, success rate, average completion time, and a
// per-source breakdown.
func (s *JobStore) Stats(ctx context.Context) (scraping.Stats, error) {
	var stats scraping.Stats
	err := s.pool.QueryRow(ctx, `
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE status = 'completed'),
	COUNT(*) FILTER (WHERE status = 'failed'),
	COUNT(*) FILTER (WHERE status = 'pending'),
	COALESCE(AVG(EXTRACT(EPOCH FROM (completed_at - started_at)) * 1000)
		FILTER (WHERE status = 'completed' AND started_at IS NOT NULL AND completed_at IS NOT NULL), 0)
FROM scraping_jobs`).Scan(
		&stats.TotalJobs, &stats.CompletedJobs, &stats.FailedJobs,
		&stats.PendingJobs, &stats.AverageCompletionMS,
	)
	if err != nil {
		return scraping.Stats{}, fmt.Errorf("aggregate job stats: %w", err)
	}
	if stats.TotalJobs > 0 {
		stats.SuccessRate = float64(stats.CompletedJobs) / float64(stats.TotalJobs) * 100
	}

	rows, err := s.pool.Query(ctx, `
SELECT data_source, COUNT(*),
	COALESCE(COUNT(*) FILTER (WHERE status = 'completed')::float / COUNT(*) * 100, 0)
FROM scraping_jobs
GROUP BY data_source
ORDER BY data_source`)
	if err != nil {
		return scraping.Stats{}, fmt.Errorf("aggregate per-source stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var entry scraping.SourceStats
		var source string
		if err := rows.Scan(&source, &entry.JobCount, &entry.SuccessRate); err != nil {
			return scraping.Stats{}, fmt.Errorf("scan per-source stats: %w", err)
		}
		entry.Source = scraping.DataSource(source)
		stats.BySource = append(stats.BySource, entry)
	}
	if err := rows.Err(); err != nil {
		return scraping.Stats{}, fmt.Errorf("iterate per-source stats: %w", err)
	}
	return stats, nil
}

func scanJobs(rows pgx.Rows) ([]scraping.ScrapingJob, error) {
	defer rows.Close()
	var jobs []scraping.ScrapingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scraping job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scraping jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (scraping.ScrapingJob, error) {
	var (
		job           scraping.ScrapingJob
		scraperType   string
		dataSource    string
		status        string
		configuration []byte
		summary       []byte
	)
	err := row.Scan(
		&job.ID, &job.JobName, &scraperType, &dataSource, &job.TargetURL,
		&job.TargetCompanyID, &job.TargetCompanyName, &status, &job.Priority, &job.ScheduledAt,
		&job.StartedAt, &job.CompletedAt, &job.RetryCount, &job.MaxRetries, &job.ErrorMessage,
		&configuration, &summary, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return scraping.ScrapingJob{}, err
	}
	job.ScraperType = scraping.ScraperType(scraperType)
	job.DataSource = scraping.DataSource(dataSource)
	job.Status = scraping.JobStatus(status)
	if len(configuration) > 0 {
		_ = json.Unmarshal(configuration, &job.Configuration)
	}
	if len(summary) > 0 {
		_ = json.Unmarshal(summary, &job.ResultsSummary)
	}
	return job, nil
}

func marshalNullable(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
