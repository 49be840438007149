package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

func TestRateLimitStoreAdmitCeiling(t *testing.T) {
	ctx := context.Background()
	store := NewRateLimitStore()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	ceilings := scraping.RateLimitCeilings{PerMinute: 3, PerHour: 100, PerDay: 1000}

	for i := 0; i < 3; i++ {
		allowed, err := store.Admit(ctx, scraping.DataSourceNewsSites, ceilings, now)
		require.NoError(t, err)
		require.True(t, allowed, "request %d should be admitted", i+1)
	}

	allowed, err := store.Admit(ctx, scraping.DataSourceNewsSites, ceilings, now.Add(30*time.Second))
	require.NoError(t, err)
	require.False(t, allowed)

	// A denied request must not consume counters.
	state, err := store.GetState(ctx, scraping.DataSourceNewsSites)
	require.NoError(t, err)
	require.Equal(t, 3, state.CurrentMinuteCount)
	require.Equal(t, 3, state.CurrentHourCount)
}

func TestRateLimitStoreWindowReset(t *testing.T) {
	ctx := context.Background()
	store := NewRateLimitStore()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	ceilings := scraping.RateLimitCeilings{PerMinute: 1, PerHour: 100, PerDay: 1000}

	allowed, err := store.Admit(ctx, scraping.DataSourceGlassdoor, ceilings, now)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = store.Admit(ctx, scraping.DataSourceGlassdoor, ceilings, now.Add(10*time.Second))
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, err = store.Admit(ctx, scraping.DataSourceGlassdoor, ceilings, now.Add(61*time.Second))
	require.NoError(t, err)
	require.True(t, allowed)

	state, err := store.GetState(ctx, scraping.DataSourceGlassdoor)
	require.NoError(t, err)
	require.Equal(t, 1, state.CurrentMinuteCount)
	require.Equal(t, 2, state.CurrentHourCount)
}

func TestRateLimitStoreIndependentSources(t *testing.T) {
	ctx := context.Background()
	store := NewRateLimitStore()
	now := time.Now().UTC()
	ceilings := scraping.RateLimitCeilings{PerMinute: 1, PerHour: 10, PerDay: 100}

	allowed, err := store.Admit(ctx, scraping.DataSourceLinkedIn, ceilings, now)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = store.Admit(ctx, scraping.DataSourceLinkedIn, ceilings, now)
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, err = store.Admit(ctx, scraping.DataSourceIndeed, ceilings, now)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestRateLimitStoreBlocked(t *testing.T) {
	ctx := context.Background()
	store := NewRateLimitStore()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	ceilings := scraping.RateLimitCeilings{PerMinute: 100, PerHour: 1000, PerDay: 10000}

	require.NoError(t, store.SetBlocked(ctx, scraping.DataSourceIndeed, now.Add(time.Hour)))

	allowed, err := store.Admit(ctx, scraping.DataSourceIndeed, ceilings, now)
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, err = store.Admit(ctx, scraping.DataSourceIndeed, ceilings, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.True(t, allowed)

	state, err := store.GetState(ctx, scraping.DataSourceIndeed)
	require.NoError(t, err)
	require.False(t, state.IsBlocked)
	require.Nil(t, state.BlockedUntil)
}
