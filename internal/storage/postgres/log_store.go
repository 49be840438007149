package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

// LogStore persists job audit entries in Postgres.
type LogStore struct {
	pool querier
}

// NewLogStore wraps a pool in a LogStore.
func NewLogStore(pool querier) *LogStore {
	return &LogStore{pool: pool}
}

// AppendLog inserts one audit entry.
func (s *LogStore) AppendLog(ctx context.Context, entry scraping.ScrapingLog) error {
	details, err := marshalNullable(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal log details: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO scraping_logs (
	id, scraping_job_id, log_level, message, details,
	url, response_code, response_time_ms, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		entry.ID, entry.ScrapingJobID, string(entry.LogLevel), entry.Message, details,
		entry.URL, entry.ResponseCode, entry.ResponseTimeMS, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert scraping log: %w", err)
	}
	return nil
}

// ListLogs returns the newest entries for a job, most recent first.
func (s *LogStore) ListLogs(ctx context.Context, jobID string, limit int) ([]scraping.ScrapingLog, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, scraping_job_id, log_level, message, details,
	url, response_code, response_time_ms, created_at
FROM scraping_logs
WHERE scraping_job_id = $1
ORDER BY created_at DESC
LIMIT $2`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("select scraping logs: %w", err)
	}
	defer rows.Close()

	var out []scraping.ScrapingLog
	for rows.Next() {
		var (
			entry   scraping.ScrapingLog
			level   string
			details []byte
		)
		if err := rows.Scan(
			&entry.ID, &entry.ScrapingJobID, &level, &entry.Message, &details,
			&entry.URL, &entry.ResponseCode, &entry.ResponseTimeMS, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan scraping log: %w", err)
		}
		entry.LogLevel = scraping.LogLevel(level)
		if len(details) > 0 {
			_ = json.Unmarshal(details, &entry.Details)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scraping logs: %w", err)
	}
	return out, nil
}
