package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

// RateLimitStore keeps per-source window counters in memory. A single mutex
// serializes admissions, which is this backend's native atomic update
// primitive.
type RateLimitStore struct {
	mu     sync.Mutex
	states map[scraping.DataSource]*scraping.RateLimitState
}

// NewRateLimitStore constructs a RateLimitStore.
func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{states: make(map[scraping.DataSource]*scraping.RateLimitState)}
}

// Admit performs the three-window admission check: expired windows are reset,
// blocks are honored, and counters are only incremented when all three
// windows have headroom.
func (s *RateLimitStore) Admit(_ context.Context, source scraping.DataSource, ceilings scraping.RateLimitCeilings, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[source]
	if !ok {
		state = &scraping.RateLimitState{
			DataSource:    source,
			ResetMinuteAt: now.Add(time.Minute),
			ResetHourAt:   now.Add(time.Hour),
			ResetDayAt:    now.Add(24 * time.Hour),
		}
		s.states[source] = state
	}
	state.Ceilings = ceilings

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

	if state.IsBlocked {
		if state.BlockedUntil != nil && now.Before(*state.BlockedUntil) {
			return false, nil
		}
		state.IsBlocked = false
		state.BlockedUntil = nil
	}

	if state.CurrentMinuteCount >= ceilings.PerMinute ||
		state.CurrentHourCount >= ceilings.PerHour ||
		state.CurrentDayCount >= ceilings.PerDay {
		return false, nil
	}

	state.CurrentMinuteCount++
	state.CurrentHourCount++
	state.CurrentDayCount++
	ts := now
	state.LastRequestAt = &ts
	return true, nil
}

// GetState returns a copy of the counter row for a source.
func (s *RateLimitStore) GetState(_ context.Context, source scraping.DataSource) (scraping.RateLimitState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[source]
	if !ok {
		return scraping.RateLimitState{DataSource: source}, nil
	}
	return *state, nil
}

// SetBlocked suppresses admissions for a source until the given time.
func (s *RateLimitStore) SetBlocked(_ context.Context, source scraping.DataSource, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[source]
	if !ok {
		state = &scraping.RateLimitState{
			DataSource:    source,
			ResetMinuteAt: until,
			ResetHourAt:   until,
			ResetDayAt:    until,
		}
		s.states[source] = state
	}
	state.IsBlocked = true
	ts := until
	state.BlockedUntil = &ts
	return nil
}
