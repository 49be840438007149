// Package main hosts the scraping engine service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, and management endpoints for jobs, scraped data,
//     enhancements, rate limits, and the engine lifecycle. Requests are validated and handed to the engine or the
//     stores; sentinel errors map onto HTTP status codes.
//   - Engine: internal/engine polls the JobStore for due pending jobs ordered by priority, dispatches them to the
//     registered scraper capabilities under a concurrency cap, and recycles failures back to pending with
//     exponential backoff while the retry budget lasts. Context cancellation cancels in-flight jobs cleanly.
//   - Admission policy: every job creation passes the three-window rate limiter (internal/policy/ratelimit, counters
//     in the RateLimitStore) and, when a target URL is present, the robots.txt gate (internal/policy/robots, rules
//     cached per domain in Postgres or Redis). The limiter fails closed on store errors; the gate fails open.
//   - Scrapers: capabilities share a Colly-based fetcher, an optional Chromedp renderer for JavaScript-heavy targets,
//     and per-domain politeness pacing seeded from robots.txt crawl delays. Extracted records are scored by the
//     quality validator, persisted to the DataStore, and raw captures archived to the configured BlobStore.
//   - Persistence & fanout: job, data, log, counter, and enhancement stores run on Postgres (pgx) or in memory;
//     captures go to GCS or memory; a compact Pub/Sub notification is published on job completion when configured.
//   - Configuration & plumbing: Viper populates config from env/files under the SCRAPER prefix; zap provides
//     structured logging; Prometheus metrics are exported via the metrics middleware and /metrics handler.
//
// Run locally: go run ./cmd/scrapeengine -config config.yaml (or rely solely on env overrides). The process reacts
// to SIGTERM by draining the HTTP server, stopping the engine, and closing backend clients.
package main
