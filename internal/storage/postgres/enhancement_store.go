package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

// EnhancementStore persists company-data enhancements in Postgres.
type EnhancementStore struct {
	pool querier
}

// NewEnhancementStore wraps a pool in an EnhancementStore.
func NewEnhancementStore(pool querier) *EnhancementStore {
	return &EnhancementStore{pool: pool}
}

// InsertEnhancement stores one enhancement.
func (s *EnhancementStore) InsertEnhancement(ctx context.Context, e scraping.CompanyDataEnhancement) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO company_data_enhancements (
	id, company_id, data_source, enhancement_type, data_field,
	original_value, enhanced_value, confidence_score, source_url,
	is_verified, verified_by, verified_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		e.ID, e.CompanyID, string(e.DataSource), e.EnhancementType, e.DataField,
		e.OriginalValue, e.EnhancedValue, e.ConfidenceScore, e.SourceURL,
		e.IsVerified, e.VerifiedBy, e.VerifiedAt, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert enhancement: %w", err)
	}
	return nil
}

// ListEnhancements filters and paginates enhancements, newest first.
func (s *EnhancementStore) ListEnhancements(ctx context.Context, filter scraping.EnhancementFilter, limit, offset int) ([]scraping.CompanyDataEnhancement, int, error) {
	where := "TRUE"
	args := []any{}
	and := func(clause string, value any) {
		args = append(args, value)
		where += fmt.Sprintf(" AND %s $%d", clause, len(args))
	}

	if filter.CompanyID != 0 {
		and("company_id =", filter.CompanyID)
	}
	if filter.DataSource != "" {
		and("data_source =", string(filter.DataSource))
	}
	if filter.EnhancementType != "" {
		and("enhancement_type =", filter.EnhancementType)
	}
	if filter.IsVerified != nil {
		and("is_verified =", *filter.IsVerified)
	}
	if filter.ConfidenceThreshold > 0 {
		and("confidence_score >=", filter.ConfidenceThreshold)
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM company_data_enhancements WHERE "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count enhancements: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
SELECT id, company_id, data_source, enhancement_type, data_field,
	original_value, enhanced_value, confidence_score, source_url,
	is_verified, verified_by, verified_at, created_at, updated_at
FROM company_data_enhancements
WHERE %s
ORDER BY created_at DESC
LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select enhancements: %w", err)
	}
	defer rows.Close()

	var out []scraping.CompanyDataEnhancement
	for rows.Next() {
		var (
			e      scraping.CompanyDataEnhancement
			source string
		)
		if err := rows.Scan(
			&e.ID, &e.CompanyID, &source, &e.EnhancementType, &e.DataField,
			&e.OriginalValue, &e.EnhancedValue, &e.ConfidenceScore, &e.SourceURL,
			&e.IsVerified, &e.VerifiedBy, &e.VerifiedAt, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan enhancement: %w", err)
		}
		e.DataSource = scraping.DataSource(source)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate enhancements: %w", err)
	}
	return out, total, nil
}

// SetVerified applies a verification verdict to an enhancement.
func (s *EnhancementStore) SetVerified(ctx context.Context, enhancementID string, verified bool, verifiedBy string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE company_data_enhancements SET
	is_verified = $2,
	verified_by = CASE WHEN $2 THEN $3 ELSE '' END,
	verified_at = CASE WHEN $2 THEN $4 ELSE NULL END,
	updated_at = $4
WHERE id = $1`,
		enhancementID, verified, verifiedBy, at)
	if err != nil {
		return fmt.Errorf("update enhancement verification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scraping.ErrEnhancementNotFound
	}
	return nil
}
