package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

// RateLimitStore keeps the per-source window counters in Postgres. Admission
// runs inside a row-locking transaction so concurrent checks against the
// same source serialize on the counter row.
type RateLimitStore struct {
	pool querier
}

// NewRateLimitStore wraps a pool in a RateLimitStore.
func NewRateLimitStore(pool querier) *RateLimitStore {
	return &RateLimitStore{pool: pool}
}

// Admit performs the three-window admission check atomically. The counter
// row is created lazily on a source's first request.
func (s *RateLimitStore) Admit(ctx context.Context, source scraping.DataSource, ceilings scraping.RateLimitCeilings, now time.Time) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin admit: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx, `
INSERT INTO scraping_rate_limits (
	data_source, requests_per_minute, requests_per_hour, requests_per_day,
	current_minute_count, current_hour_count, current_day_count,
	reset_minute_at, reset_hour_at, reset_day_at, is_blocked
) VALUES ($1,$2,$3,$4,0,0,0,$5,$6,$7,FALSE)
ON CONFLICT (data_source) DO NOTHING`,
		string(source), ceilings.PerMinute, ceilings.PerHour, ceilings.PerDay,
		now.Add(time.Minute), now.Add(time.Hour), now.Add(24*time.Hour),
	)
	if err != nil {
		return false, fmt.Errorf("upsert rate limit row: %w", err)
	}

	var state scraping.RateLimitState
	var blockedUntil *time.Time
	err = tx.QueryRow(ctx, `
SELECT current_minute_count, current_hour_count, current_day_count,
	reset_minute_at, reset_hour_at, reset_day_at, is_blocked, blocked_until
FROM scraping_rate_limits
WHERE data_source = $1
FOR UPDATE`, string(source)).Scan(
		&state.CurrentMinuteCount, &state.CurrentHourCount, &state.CurrentDayCount,
		&state.ResetMinuteAt, &state.ResetHourAt, &state.ResetDayAt,
		&state.IsBlocked, &blockedUntil,
	)
	if err != nil {
		return false, fmt.Errorf("lock rate limit row: %w", err)
	}

	if !now.Before(state.ResetMinuteAt) {
		state.CurrentMinuteCount = 0
		state.ResetMinuteAt = now.Add(time.Minute)
	}
	if !now.Before(state.ResetHourAt) {
		state.CurrentHourCount = 0
		state.ResetHourAt = now.Add(time.Hour)
	}
	if !now.Before(state.ResetDayAt) {
		state.CurrentDayCount = 0
		state.ResetDayAt = now.Add(24 * time.Hour)
	}

	blocked := state.IsBlocked
	if blocked && (blockedUntil == nil || !now.Before(*blockedUntil)) {
		blocked = false
	}

	allowed := !blocked &&
		state.CurrentMinuteCount < ceilings.PerMinute &&
		state.CurrentHourCount < ceilings.PerHour &&
		state.CurrentDayCount < ceilings.PerDay

	if allowed {
		state.CurrentMinuteCount++
		state.CurrentHourCount++
		state.CurrentDayCount++
	}

	_, err = tx.Exec(ctx, `
UPDATE scraping_rate_limits SET
	requests_per_minute = $2, requests_per_hour = $3, requests_per_day = $4,
	current_minute_count = $5, current_hour_count = $6, current_day_count = $7,
	reset_minute_at = $8, reset_hour_at = $9, reset_day_at = $10,
	is_blocked = $11,
	blocked_until = CASE WHEN $11 THEN blocked_until ELSE NULL END,
	last_request_at = CASE WHEN $12 THEN $13 ELSE last_request_at END
WHERE data_source = $1`,
		string(source),
		ceilings.PerMinute, ceilings.PerHour, ceilings.PerDay,
		state.CurrentMinuteCount, state.CurrentHourCount, state.CurrentDayCount,
		state.ResetMinuteAt, state.ResetHourAt, state.ResetDayAt,
		blocked, allowed, now,
	)
	if err != nil {
		return false, fmt.Errorf("update rate limit row: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit admit: %w", err)
	}
	return allowed, nil
}

// GetState reads the counter row for a source. Unknown sources return a zero
// state.
func (s *RateLimitStore) GetState(ctx context.Context, source scraping.DataSource) (scraping.RateLimitState, error) {
	state := scraping.RateLimitState{DataSource: source}
	err := s.pool.QueryRow(ctx, `
SELECT requests_per_minute, requests_per_hour, requests_per_day,
	current_minute_count, current_hour_count, current_day_count,
	last_request_at, reset_minute_at, reset_hour_at, reset_day_at,
	is_blocked, blocked_until
FROM scraping_rate_limits
WHERE data_source = $1`, string(source)).Scan(
		&state.Ceilings.PerMinute, &state.Ceilings.PerHour, &state.Ceilings.PerDay,
		&state.CurrentMinuteCount, &state.CurrentHourCount, &state.CurrentDayCount,
		&state.LastRequestAt, &state.ResetMinuteAt, &state.ResetHourAt, &state.ResetDayAt,
		&state.IsBlocked, &state.BlockedUntil,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return scraping.RateLimitState{DataSource: source}, nil
	}
	if err != nil {
		return scraping.RateLimitState{}, fmt.Errorf("select rate limit state: %w", err)
	}
	return state, nil
}

// SetBlocked suppresses admissions for a source until the given time.
func (s *RateLimitStore) SetBlocked(ctx context.Context, source scraping.DataSource, until time.Time) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO scraping_rate_limits (
	data_source, requests_per_minute, requests_per_hour, requests_per_day,
	current_minute_count, current_hour_count, current_day_count,
	reset_minute_at, reset_hour_at, reset_day_at, is_blocked, blocked_until
) VALUES ($1,0,0,0,0,0,0,$2,$2,$2,TRUE,$2)
ON CONFLICT (data_source) DO UPDATE SET is_blocked = TRUE, blocked_until = $2`,
		string(source), until)
	if err != nil {
		return fmt.Errorf("block data source: %w", err)
	}
	return nil
}
