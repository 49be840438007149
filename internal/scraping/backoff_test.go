package scraping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryDelay_DoublesPerAttempt(t *testing.T) {
	t.Parallel()

	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{5, 32 * time.Second},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, RetryDelay(tc.retryCount), "retry_count=%d", tc.retryCount)
	}
}

func TestRetryDelay_MonotonicallyIncreasing(t *testing.T) {
	t.Parallel()

	prev := time.Duration(0)
	for i := 0; i < 10; i++ {
		d := RetryDelay(i)
		require.Greater(t, d, prev)
		prev = d
	}
}

func TestRetryDelay_NegativeCountClamped(t *testing.T) {
	t.Parallel()

	require.Equal(t, time.Second, RetryDelay(-3))
}
