package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

const dataColumns = `id, scraping_job_id, company_id, data_type, source_url,
	raw_data, processed_data, data_hash, confidence_score, is_processed,
	is_validated, validation_notes, scraped_at, created_at`

// DataStore persists scraped records in Postgres.
type DataStore struct {
	pool querier
}

// NewDataStore wraps a pool in a DataStore.
func NewDataStore(pool querier) *DataStore {
	return &DataStore{pool: pool}
}

// InsertData stores one extracted record.
func (s *DataStore) InsertData(ctx context.Context, data scraping.ScrapedData) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO scraped_data (
	id, scraping_job_id, company_id, data_type, source_url,
	raw_data, processed_data, data_hash, confidence_score, is_processed,
	is_validated, validation_notes, scraped_at, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		data.ID, data.ScrapingJobID, data.CompanyID, data.DataType, data.SourceURL,
		[]byte(data.RawData), []byte(data.ProcessedData), data.DataHash, data.ConfidenceScore, data.IsProcessed,
		data.IsValidated, data.ValidationNotes, data.ScrapedAt, data.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert scraped data: %w", err)
	}
	return nil
}

// GetData fetches one record by ID.
func (s *DataStore) GetData(ctx context.Context, dataID string) (scraping.ScrapedData, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+dataColumns+` FROM scraped_data WHERE id = $1`, dataID)
	data, err := scanData(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return scraping.ScrapedData{}, scraping.ErrDataNotFound
	}
	if err != nil {
		return scraping.ScrapedData{}, fmt.Errorf("select scraped data: %w", err)
	}
	return data, nil
}

// ListData filters and paginates records, newest first.
func (s *DataStore) ListData(ctx context.Context, filter scraping.DataFilter, limit, offset int) ([]scraping.ScrapedData, int, error) {
	where := "TRUE"
	args := []any{}
	and := func(clause string, value any) {
		args = append(args, value)
		where += fmt.Sprintf(" AND %s $%d", clause, len(args))
	}

	if filter.CompanyID != 0 {
		and("company_id =", filter.CompanyID)
	}
	if filter.DataType != "" {
		and("data_type =", filter.DataType)
	}
	if filter.IsValidated != nil {
		and("is_validated =", *filter.IsValidated)
	}
	if filter.ScrapingJobID != "" {
		and("scraping_job_id =", filter.ScrapingJobID)
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM scraped_data WHERE "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count scraped data: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
SELECT `+dataColumns+`
FROM scraped_data
WHERE %s
ORDER BY scraped_at DESC
LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select scraped data: %w", err)
	}
	defer rows.Close()

	var out []scraping.ScrapedData
	for rows.Next() {
		data, err := scanData(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan scraped data: %w", err)
		}
		out = append(out, data)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate scraped data: %w", err)
	}
	return out, total, nil
}

// SetValidation applies a validation verdict to a record.
func (s *DataStore) SetValidation(ctx context.Context, dataID string, isValidated bool, notes string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scraped_data SET is_validated = $2, validation_notes = $3 WHERE id = $1`,
		dataID, isValidated, notes)
	if err != nil {
		return fmt.Errorf("update validation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scraping.ErrDataNotFound
	}
	return nil
}

// AverageConfidence returns the mean confidence score across all records.
func (s *DataStore) AverageConfidence(ctx context.Context) (float64, error) {
	var avg float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(AVG(confidence_score), 0) FROM scraped_data`).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("average confidence: %w", err)
	}
	return avg, nil
}

func scanData(row pgx.Row) (scraping.ScrapedData, error) {
	var (
		data      scraping.ScrapedData
		raw       []byte
		processed []byte
	)
	err := row.Scan(
		&data.ID, &data.ScrapingJobID, &data.CompanyID, &data.DataType, &data.SourceURL,
		&raw, &processed, &data.DataHash, &data.ConfidenceScore, &data.IsProcessed,
		&data.IsValidated, &data.ValidationNotes, &data.ScrapedAt, &data.CreatedAt,
	)
	if err != nil {
		return scraping.ScrapedData{}, err
	}
	data.RawData = raw
	data.ProcessedData = processed
	return data, nil
}
