package scraping

import "errors"

// Sentinel errors surfaced across the engine and management API.
var (
	// ErrRateLimitExceeded is returned at admission when the data source's
	// window counters deny a new request.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrRobotsDisallowed is returned at admission when the target URL is
	// denied by the domain's robots.txt policy.
	ErrRobotsDisallowed = errors.New("robots.txt disallows scraping")

	// ErrUnsupportedScraperType is returned before any network activity when
	// no capability is registered for a job's scraper type.
	ErrUnsupportedScraperType = errors.New("unsupported scraper type")

	// ErrRateLimitStoreUnavailable wraps counter-store failures. CreateJob
	// treats it as a denial (fail closed).
	ErrRateLimitStoreUnavailable = errors.New("rate limit store unavailable")

	// ErrJobNotFound is returned by stores and management operations for an
	// unknown job ID.
	ErrJobNotFound = errors.New("job not found")

	// ErrDataNotFound is returned for an unknown scraped-data ID.
	ErrDataNotFound = errors.New("scraped data not found")

	// ErrEnhancementNotFound is returned for an unknown enhancement ID.
	ErrEnhancementNotFound = errors.New("enhancement not found")

	// ErrInvalidJobState is returned when a cancel/retry request targets a
	// job whose status does not permit the transition.
	ErrInvalidJobState = errors.New("job is not in a valid state for this operation")

	// ErrInvalidRequest is returned when a create request is missing a
	// required field.
	ErrInvalidRequest = errors.New("invalid job request")
)
