package scraping

import (
	"context"
	"time"
)

// JobStore persists scraping jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job ScrapingJob) error
	GetJob(ctx context.Context, jobID string) (ScrapingJob, error)
	UpdateJob(ctx context.Context, jobID string, update JobUpdate) error
	// FetchPending returns up to limit pending jobs whose scheduled_at is not
	// after now, ordered by priority descending then scheduled_at ascending.
	FetchPending(ctx context.Context, now time.Time, limit int) ([]ScrapingJob, error)
	ListJobs(ctx context.Context, filter JobFilter, limit, offset int) ([]ScrapingJob, int, error)
	Stats(ctx context.Context) (Stats, error)
}

// DataStore persists scraped records.
type DataStore interface {
	InsertData(ctx context.Context, data ScrapedData) error
	GetData(ctx context.Context, dataID string) (ScrapedData, error)
	ListData(ctx context.Context, filter DataFilter, limit, offset int) ([]ScrapedData, int, error)
	SetValidation(ctx context.Context, dataID string, isValidated bool, notes string) error
	AverageConfidence(ctx context.Context) (float64, error)
}

// LogStore is the append-only sink for job audit entries.
type LogStore interface {
	AppendLog(ctx context.Context, entry ScrapingLog) error
	ListLogs(ctx context.Context, jobID string, limit int) ([]ScrapingLog, error)
}

// RateLimitStore exposes the three-window counters as one atomic
// admit-or-deny operation. Implementations must use their backend's native
// consistency primitive so concurrent admissions never lose updates.
type RateLimitStore interface {
	Admit(ctx context.Context, source DataSource, ceilings RateLimitCeilings, now time.Time) (bool, error)
	GetState(ctx context.Context, source DataSource) (RateLimitState, error)
	SetBlocked(ctx context.Context, source DataSource, until time.Time) error
}

// RobotsCacheStore caches parsed robots.txt rules per domain with TTL semantics.
type RobotsCacheStore interface {
	GetRules(ctx context.Context, domain string) (RobotsRules, bool, error)
	PutRules(ctx context.Context, rules RobotsRules) error
}

// QualityCheckStore holds the named rule sets consumed by the validator.
type QualityCheckStore interface {
	ListActiveChecks(ctx context.Context) ([]DataQualityCheck, error)
	UpsertCheck(ctx context.Context, check DataQualityCheck) error
}

// EnhancementStore persists company-data enhancements.
type EnhancementStore interface {
	InsertEnhancement(ctx context.Context, e CompanyDataEnhancement) error
	ListEnhancements(ctx context.Context, filter EnhancementFilter, limit, offset int) ([]CompanyDataEnhancement, int, error)
	SetVerified(ctx context.Context, enhancementID string, verified bool, verifiedBy string, at time.Time) error
}

// Scraper is the pluggable capability that performs fetch/extraction for one
// scraper type. Implementations must observe ctx at every I/O boundary so
// cancellation terminates in-flight work promptly.
type Scraper interface {
	Scrape(ctx context.Context, job ScrapingJob) (ScrapingResult, error)
}

// Publisher pushes job-completion events to a message bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore archives raw captures and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Hasher computes digests for deduplication.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (injectable for tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs.
type IDGenerator interface {
	NewID() (string, error)
}
