package scraping

import "time"

// RetryDelay returns the backoff applied before a failed job is recycled to
// pending: 2^retryCount seconds (1s, 2s, 4s, ...). Negative counts are
// treated as zero.
func RetryDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	return time.Duration(1<<uint(retryCount)) * time.Second
}
