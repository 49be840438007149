// Package metrics exposes Prometheus collectors for the scraping engine.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal                 *prometheus.CounterVec
	jobDurationSeconds        *prometheus.HistogramVec
	activeJobs                prometheus.Gauge
	rateLimitDenialsTotal     *prometheus.CounterVec
	rateLimitStoreErrorsTotal *prometheus.CounterVec
	robotsDenialsTotal        *prometheus.CounterVec
	dataQualityScore          *prometheus.HistogramVec
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDuration       *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_jobs_total",
				Help: "Total number of scraping jobs processed, labeled by scraper type and final status.",
			},
			[]string{"scraper_type", "status"},
		)
		jobDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_job_duration_seconds",
				Help:    "Wall-clock duration of job executions, labeled by scraper type.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"scraper_type"},
		)
		activeJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_active_jobs",
				Help: "Number of jobs currently running.",
			},
		)
		rateLimitDenialsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_rate_limit_denials_total",
				Help: "Admission checks denied by the rate limiter, labeled by data source.",
			},
			[]string{"data_source"},
		)
		rateLimitStoreErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_rate_limit_store_errors_total",
				Help: "Counter-store failures during admission checks, labeled by data source.",
			},
			[]string{"data_source"},
		)
		robotsDenialsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_robots_denials_total",
				Help: "URLs denied by robots.txt policy, labeled by domain.",
			},
			[]string{"domain"},
		)
		dataQualityScore = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_data_quality_score",
				Help:    "Quality scores assigned to scraped records, labeled by data type.",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"data_type"},
		)
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of management API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)
		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of management API request latencies, labeled by method.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method"},
		)
	})
}

// ObserveJobFinished records one finished job.
func ObserveJobFinished(scraperType, status string, duration time.Duration) {
	if jobsTotal == nil {
		return
	}
	jobsTotal.WithLabelValues(scraperType, status).Inc()
	jobDurationSeconds.WithLabelValues(scraperType).Observe(duration.Seconds())
}

// SetActiveJobs tracks the size of the engine's active set.
func SetActiveJobs(n int) {
	if activeJobs == nil {
		return
	}
	activeJobs.Set(float64(n))
}

// ObserveRateLimitDenial records one denied admission.
func ObserveRateLimitDenial(source string) {
	if rateLimitDenialsTotal == nil {
		return
	}
	rateLimitDenialsTotal.WithLabelValues(source).Inc()
}

// ObserveRateLimitStoreError records one counter-store failure.
func ObserveRateLimitStoreError(source string) {
	if rateLimitStoreErrorsTotal == nil {
		return
	}
	rateLimitStoreErrorsTotal.WithLabelValues(source).Inc()
}

// ObserveRobotsDenial records one robots.txt denial.
func ObserveRobotsDenial(domain string) {
	if robotsDenialsTotal == nil {
		return
	}
	robotsDenialsTotal.WithLabelValues(domain).Inc()
}

// ObserveQualityScore records one validated record's score.
func ObserveQualityScore(dataType string, score float64) {
	if dataQualityScore == nil {
		return
	}
	dataQualityScore.WithLabelValues(dataType).Observe(score)
}

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware instruments management API requests.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if httpRequestsTotal == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
