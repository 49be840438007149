// Package scraping defines core types shared across the scraping engine subsystems.
package scraping

import (
	"encoding/json"
	"time"
)

// JobStatus represents the lifecycle state of a scraping job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether a status can no longer transition.
// A failed job is only terminal once its retry budget is exhausted,
// which the engine decides; at the type level failed is non-terminal.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// ScraperType identifies the capability used to execute a job.
type ScraperType string

// Supported scraper types.
const (
	ScraperTypeCompanyData   ScraperType = "company_data"
	ScraperTypeJobListings   ScraperType = "job_listings"
	ScraperTypeReviews       ScraperType = "reviews"
	ScraperTypeNews          ScraperType = "news"
	ScraperTypeSocialMedia   ScraperType = "social_media"
	ScraperTypeFinancialData ScraperType = "financial_data"
	ScraperTypeEmployeeData  ScraperType = "employee_data"
	ScraperTypeGlassdoor     ScraperType = "glassdoor"
	ScraperTypeLinkedIn      ScraperType = "linkedin"
	ScraperTypeIndeed        ScraperType = "indeed"
	ScraperTypeCustom        ScraperType = "custom"
)

// DataSource identifies the external site or API family a job targets.
type DataSource string

// Supported data sources.
const (
	DataSourceGlassdoor      DataSource = "glassdoor"
	DataSourceIndeed         DataSource = "indeed"
	DataSourceLinkedIn       DataSource = "linkedin"
	DataSourceCrunchbase     DataSource = "crunchbase"
	DataSourceCompanyWebsite DataSource = "company_website"
	DataSourceNewsSites      DataSource = "news_sites"
	DataSourceSocialMedia    DataSource = "social_media"
	DataSourceGovernmentData DataSource = "government_data"
	DataSourceFinancialAPIs  DataSource = "financial_apis"
	DataSourceJobBoards      DataSource = "job_boards"
	DataSourceReviewSites    DataSource = "review_sites"
	DataSourceCustomAPI      DataSource = "custom_api"
)

// LogLevel classifies a scraping log entry.
type LogLevel string

// Log levels for the append-only audit trail.
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// DefaultMaxRetries is the retry budget assigned to newly created jobs.
const DefaultMaxRetries = 3

// DefaultPriority is the mid-range priority assigned when a request omits one.
const DefaultPriority = 5

// ScrapingJob is one scheduled unit of automated external data collection.
type ScrapingJob struct {
	ID                string         `json:"id"`
	JobName           string         `json:"job_name"`
	ScraperType       ScraperType    `json:"scraper_type"`
	DataSource        DataSource     `json:"data_source"`
	TargetURL         string         `json:"target_url,omitempty"`
	TargetCompanyID   int64          `json:"target_company_id,omitempty"`
	TargetCompanyName string         `json:"target_company_name,omitempty"`
	Status            JobStatus      `json:"status"`
	Priority          int            `json:"priority"`
	ScheduledAt       time.Time      `json:"scheduled_at"`
	StartedAt         *time.Time     `json:"started_at,omitempty"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	RetryCount        int            `json:"retry_count"`
	MaxRetries        int            `json:"max_retries"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	Configuration     map[string]any `json:"configuration"`
	ResultsSummary    map[string]any `json:"results_summary,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// JobUpdate carries field-level changes applied to a stored job.
// Nil pointers leave the corresponding column untouched.
type JobUpdate struct {
	Status         *JobStatus
	ErrorMessage   *string
	StartedAt      *time.Time
	CompletedAt    *time.Time
	RetryCount     *int
	ScheduledAt    *time.Time
	ResultsSummary map[string]any
}

// CreateJobRequest is the caller-facing payload for creating a job.
type CreateJobRequest struct {
	JobName           string         `json:"job_name"`
	ScraperType       ScraperType    `json:"scraper_type"`
	DataSource        DataSource     `json:"data_source"`
	TargetURL         string         `json:"target_url,omitempty"`
	TargetCompanyID   int64          `json:"target_company_id,omitempty"`
	TargetCompanyName string         `json:"target_company_name,omitempty"`
	Priority          int            `json:"priority,omitempty"`
	ScheduledAt       *time.Time     `json:"scheduled_at,omitempty"`
	Configuration     map[string]any `json:"configuration,omitempty"`
}

// RateLimitStatus reports the admission outcome attached to a job response.
type RateLimitStatus struct {
	CanProceed bool       `json:"can_proceed"`
	ResetAt    *time.Time `json:"reset_at,omitempty"`
}

// JobResponse is returned by CreateJob.
type JobResponse struct {
	Job                 ScrapingJob     `json:"job"`
	EstimatedCompletion time.Time       `json:"estimated_completion"`
	RateLimitStatus     RateLimitStatus `json:"rate_limit_status"`
}

// ScrapedData is one extracted record produced during job execution.
type ScrapedData struct {
	ID              string          `json:"id"`
	ScrapingJobID   string          `json:"scraping_job_id"`
	CompanyID       int64           `json:"company_id,omitempty"`
	DataType        string          `json:"data_type"`
	SourceURL       string          `json:"source_url,omitempty"`
	RawData         json.RawMessage `json:"raw_data,omitempty"`
	ProcessedData   json.RawMessage `json:"processed_data,omitempty"`
	DataHash        string          `json:"data_hash,omitempty"`
	ConfidenceScore float64         `json:"confidence_score"`
	IsProcessed     bool            `json:"is_processed"`
	IsValidated     bool            `json:"is_validated"`
	ValidationNotes string          `json:"validation_notes,omitempty"`
	ScrapedAt       time.Time       `json:"scraped_at"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ScrapingResult is the contract a scraper capability returns to the engine.
type ScrapingResult struct {
	Success          bool     `json:"success"`
	DataCount        int      `json:"data_count"`
	Errors           []string `json:"errors"`
	Warnings         []string `json:"warnings"`
	ProcessingTimeMS int64    `json:"processing_time_ms"`
	DataQualityScore float64  `json:"data_quality_score"`
}

// RateLimitCeilings bounds requests per data source across the three windows.
type RateLimitCeilings struct {
	PerMinute int `json:"requests_per_minute"`
	PerHour   int `json:"requests_per_hour"`
	PerDay    int `json:"requests_per_day"`
}

// RateLimitState mirrors one row of the rate-limit counter store.
type RateLimitState struct {
	DataSource         DataSource `json:"data_source"`
	Endpoint           string     `json:"endpoint,omitempty"`
	Ceilings           RateLimitCeilings
	CurrentMinuteCount int        `json:"current_minute_count"`
	CurrentHourCount   int        `json:"current_hour_count"`
	CurrentDayCount    int        `json:"current_day_count"`
	LastRequestAt      *time.Time `json:"last_request_at,omitempty"`
	ResetMinuteAt      time.Time  `json:"reset_minute_at"`
	ResetHourAt        time.Time  `json:"reset_hour_at"`
	ResetDayAt         time.Time  `json:"reset_day_at"`
	IsBlocked          bool       `json:"is_blocked"`
	BlockedUntil       *time.Time `json:"blocked_until,omitempty"`
}

// RobotsRules is the cached, parsed robots.txt policy for one domain.
type RobotsRules struct {
	Domain          string    `json:"domain"`
	RobotsContent   string    `json:"robots_content,omitempty"`
	CrawlDelay      int       `json:"crawl_delay"`
	AllowedPaths    []string  `json:"allowed_paths"`
	DisallowedPaths []string  `json:"disallowed_paths"`
	LastFetched     time.Time `json:"last_fetched"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Expired reports whether the cache entry is stale at the given time.
func (r RobotsRules) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// ScrapingLog is one append-only audit entry for a job.
type ScrapingLog struct {
	ID             string         `json:"id"`
	ScrapingJobID  string         `json:"scraping_job_id"`
	LogLevel       LogLevel       `json:"log_level"`
	Message        string         `json:"message"`
	Details        map[string]any `json:"details,omitempty"`
	URL            string         `json:"url,omitempty"`
	ResponseCode   int            `json:"response_code,omitempty"`
	ResponseTimeMS int64          `json:"response_time_ms,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// DataQualityCheck is a named, data-type-scoped rule set used by the validator.
type DataQualityCheck struct {
	ID             string         `json:"id"`
	CheckName      string         `json:"check_name"`
	DataType       string         `json:"data_type"`
	ValidationRule ValidationRule `json:"validation_rule"`
	ErrorThreshold float64        `json:"error_threshold"`
	IsActive       bool           `json:"is_active"`
}

// ValidationRule carries the type-specific thresholds applied by the
// quality validator. Zero values fall back to built-in defaults; penalty
// overrides allow tuning the deduction weights per check record.
type ValidationRule struct {
	RequiredFields       []string           `json:"required_fields,omitempty"`
	OptionalFields       []string           `json:"optional_fields,omitempty"`
	MinOptionalFields    int                `json:"min_optional_fields,omitempty"`
	MinTitleLength       int                `json:"min_title_length,omitempty"`
	MinContentLength     int                `json:"min_content_length,omitempty"`
	MaxContentLength     int                `json:"max_content_length,omitempty"`
	MinDescriptionLength int                `json:"min_description_length,omitempty"`
	RatingRange          []float64          `json:"rating_range,omitempty"`
	URLPattern           string             `json:"url_pattern,omitempty"`
	EmploymentTypes      []string           `json:"employment_types,omitempty"`
	MaxPostingAgeDays    int                `json:"max_posting_age_days,omitempty"`
	Penalties            map[string]float64 `json:"penalties,omitempty"`
}

// CompanyDataEnhancement is a proposed field-level improvement to a company
// record, produced from scraped data and verified by a human.
type CompanyDataEnhancement struct {
	ID              string     `json:"id"`
	CompanyID       int64      `json:"company_id"`
	DataSource      DataSource `json:"data_source"`
	EnhancementType string     `json:"enhancement_type"`
	DataField       string     `json:"data_field"`
	OriginalValue   string     `json:"original_value,omitempty"`
	EnhancedValue   string     `json:"enhanced_value"`
	ConfidenceScore float64    `json:"confidence_score"`
	SourceURL       string     `json:"source_url,omitempty"`
	IsVerified      bool       `json:"is_verified"`
	VerifiedBy      string     `json:"verified_by,omitempty"`
	VerifiedAt      *time.Time `json:"verified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// JobFilter narrows job listings.
type JobFilter struct {
	Status      JobStatus
	ScraperType ScraperType
	DataSource  DataSource
	CompanyID   int64
	Since       *time.Time
	Until       *time.Time
}

// DataFilter narrows scraped-data listings.
type DataFilter struct {
	CompanyID     int64
	DataType      string
	IsValidated   *bool
	ScrapingJobID string
}

// EnhancementFilter narrows enhancement listings.
type EnhancementFilter struct {
	CompanyID           int64
	DataSource          DataSource
	EnhancementType     string
	IsVerified          *bool
	ConfidenceThreshold float64
}

// SourceStats summarizes job outcomes for one data source.
type SourceStats struct {
	Source      DataSource `json:"source"`
	JobCount    int        `json:"job_count"`
	SuccessRate float64    `json:"success_rate"`
}

// Stats is the aggregate view returned by the management API.
type Stats struct {
	TotalJobs             int           `json:"total_jobs"`
	CompletedJobs         int           `json:"completed_jobs"`
	FailedJobs            int           `json:"failed_jobs"`
	PendingJobs           int           `json:"pending_jobs"`
	AverageCompletionMS   float64       `json:"average_completion_time"`
	SuccessRate           float64       `json:"success_rate"`
	DataQualityAverage    float64       `json:"data_quality_average"`
	BySource              []SourceStats `json:"by_source"`
}
