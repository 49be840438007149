package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

func limitStateRows(minute, hour, day int, resetMinute, resetHour, resetDay time.Time, blocked bool, blockedUntil *time.Time) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"current_minute_count", "current_hour_count", "current_day_count",
		"reset_minute_at", "reset_hour_at", "reset_day_at", "is_blocked", "blocked_until",
	}).AddRow(minute, hour, day, resetMinute, resetHour, resetDay, blocked, blockedUntil)
}

func TestRateLimitStoreAdmitAllowsAndIncrements(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewRateLimitStore(mock)
	now := time.Unix(1700000000, 0).UTC()
	ceilings := scraping.RateLimitCeilings{PerMinute: 10, PerHour: 100, PerDay: 1000}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scraping_rate_limits").
		WithArgs("glassdoor", 10, 100, 1000,
			now.Add(time.Minute), now.Add(time.Hour), now.Add(24*time.Hour)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("glassdoor").
		WillReturnRows(limitStateRows(2, 20, 200,
			now.Add(30*time.Second), now.Add(time.Hour), now.Add(24*time.Hour), false, nil))
	mock.ExpectExec("UPDATE scraping_rate_limits SET").
		WithArgs("glassdoor",
			10, 100, 1000,
			3, 21, 201,
			now.Add(30*time.Second), now.Add(time.Hour), now.Add(24*time.Hour),
			false, true, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	allowed, err := store.Admit(context.Background(), scraping.DataSourceGlassdoor, ceilings, now)
	require.NoError(t, err)
	require.True(t, allowed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitStoreAdmitDeniesAtCeiling(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewRateLimitStore(mock)
	now := time.Unix(1700000000, 0).UTC()
	ceilings := scraping.RateLimitCeilings{PerMinute: 3, PerHour: 100, PerDay: 1000}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scraping_rate_limits").
		WithArgs("indeed", 3, 100, 1000,
			now.Add(time.Minute), now.Add(time.Hour), now.Add(24*time.Hour)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("indeed").
		WillReturnRows(limitStateRows(3, 50, 500,
			now.Add(30*time.Second), now.Add(time.Hour), now.Add(24*time.Hour), false, nil))
	// Denied admissions keep the counters unchanged.
	mock.ExpectExec("UPDATE scraping_rate_limits SET").
		WithArgs("indeed",
			3, 100, 1000,
			3, 50, 500,
			now.Add(30*time.Second), now.Add(time.Hour), now.Add(24*time.Hour),
			false, false, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	allowed, err := store.Admit(context.Background(), scraping.DataSourceIndeed, ceilings, now)
	require.NoError(t, err)
	require.False(t, allowed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitStoreAdmitResetsExpiredWindow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewRateLimitStore(mock)
	now := time.Unix(1700000000, 0).UTC()
	ceilings := scraping.RateLimitCeilings{PerMinute: 3, PerHour: 100, PerDay: 1000}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scraping_rate_limits").
		WithArgs("indeed", 3, 100, 1000,
			now.Add(time.Minute), now.Add(time.Hour), now.Add(24*time.Hour)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	// The minute window expired, so its counter restarts before admission.
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("indeed").
		WillReturnRows(limitStateRows(3, 50, 500,
			now.Add(-time.Second), now.Add(time.Hour), now.Add(24*time.Hour), false, nil))
	mock.ExpectExec("UPDATE scraping_rate_limits SET").
		WithArgs("indeed",
			3, 100, 1000,
			1, 51, 501,
			now.Add(time.Minute), now.Add(time.Hour), now.Add(24*time.Hour),
			false, true, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	allowed, err := store.Admit(context.Background(), scraping.DataSourceIndeed, ceilings, now)
	require.NoError(t, err)
	require.True(t, allowed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitStoreGetStateUnknownSource(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewRateLimitStore(mock)

	mock.ExpectQuery("FROM scraping_rate_limits").
		WithArgs("linkedin").
		WillReturnRows(pgxmock.NewRows([]string{
			"requests_per_minute", "requests_per_hour", "requests_per_day",
			"current_minute_count", "current_hour_count", "current_day_count",
			"last_request_at", "reset_minute_at", "reset_hour_at", "reset_day_at",
			"is_blocked", "blocked_until",
		}))

	state, err := store.GetState(context.Background(), scraping.DataSourceLinkedIn)
	require.NoError(t, err)
	require.Equal(t, scraping.DataSourceLinkedIn, state.DataSource)
	require.Zero(t, state.CurrentMinuteCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitStoreSetBlocked(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewRateLimitStore(mock)
	until := time.Unix(1700003600, 0).UTC()

	mock.ExpectExec("INSERT INTO scraping_rate_limits").
		WithArgs("glassdoor", until).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.SetBlocked(context.Background(), scraping.DataSourceGlassdoor, until))
	require.NoError(t, mock.ExpectationsWereMet())
}
