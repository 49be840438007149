package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

// QualityCheckStore keeps validator rule sets in Postgres.
type QualityCheckStore struct {
	pool querier
}

// NewQualityCheckStore wraps a pool in a QualityCheckStore.
func NewQualityCheckStore(pool querier) *QualityCheckStore {
	return &QualityCheckStore{pool: pool}
}

// ListActiveChecks returns every active rule set.
func (s *QualityCheckStore) ListActiveChecks(ctx context.Context) ([]scraping.DataQualityCheck, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, check_name, data_type, validation_rule, error_threshold, is_active
FROM data_quality_checks
WHERE is_active`)
	if err != nil {
		return nil, fmt.Errorf("select quality checks: %w", err)
	}
	defer rows.Close()

	var out []scraping.DataQualityCheck
	for rows.Next() {
		var (
			check scraping.DataQualityCheck
			rule  []byte
		)
		if err := rows.Scan(&check.ID, &check.CheckName, &check.DataType, &rule,
			&check.ErrorThreshold, &check.IsActive); err != nil {
			return nil, fmt.Errorf("scan quality check: %w", err)
		}
		if len(rule) > 0 {
			if err := json.Unmarshal(rule, &check.ValidationRule); err != nil {
				return nil, fmt.Errorf("decode validation rule %s: %w", check.CheckName, err)
			}
		}
		out = append(out, check)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quality checks: %w", err)
	}
	return out, nil
}

// UpsertCheck inserts or replaces a rule set by check name.
func (s *QualityCheckStore) UpsertCheck(ctx context.Context, check scraping.DataQualityCheck) error {
	rule, err := json.Marshal(check.ValidationRule)
	if err != nil {
		return fmt.Errorf("marshal validation rule: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO data_quality_checks (
	id, check_name, data_type, validation_rule, error_threshold, is_active
) VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (check_name) DO UPDATE SET
	data_type = EXCLUDED.data_type,
	validation_rule = EXCLUDED.validation_rule,
	error_threshold = EXCLUDED.error_threshold,
	is_active = EXCLUDED.is_active`,
		check.ID, check.CheckName, check.DataType, rule, check.ErrorThreshold, check.IsActive,
	)
	if err != nil {
		return fmt.Errorf("upsert quality check: %w", err)
	}
	return nil
}
