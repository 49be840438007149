// Package api exposes the management HTTP interface for the scraping engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ratemyemployer/scrape-engine/internal/engine"
	"github.com/ratemyemployer/scrape-engine/internal/metrics"
	"github.com/ratemyemployer/scrape-engine/internal/policy/ratelimit"
	"github.com/ratemyemployer/scrape-engine/internal/quality"
	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

// Config tunes the HTTP surface.
type Config struct {
	RequestTimeout time.Duration
	APIKey         string
}

// Server wires HTTP handlers to the engine, the stores, and the validator.
type Server struct {
	router       chi.Router
	engine       *engine.Engine
	jobs         scraping.JobStore
	data         scraping.DataStore
	logs         scraping.LogStore
	enhancements scraping.EnhancementStore
	limiter      *ratelimit.Limiter
	validator    *quality.Validator
	clock        scraping.Clock
	logger       *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	eng *engine.Engine,
	jobs scraping.JobStore,
	data scraping.DataStore,
	logs scraping.LogStore,
	enhancements scraping.EnhancementStore,
	limiter *ratelimit.Limiter,
	validator *quality.Validator,
	clock scraping.Clock,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		engine:       eng,
		jobs:         jobs,
		data:         data,
		logs:         logs,
		enhancements: enhancements,
		limiter:      limiter,
		validator:    validator,
		clock:        clock,
		logger:       logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))
	if cfg.APIKey != "" {
		r.Use(apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.createJob)
			r.Get("/", s.listJobs)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Post("/cancel", s.cancelJob)
				r.Post("/retry", s.retryJob)
				r.Get("/logs", s.listJobLogs)
			})
		})
		r.Route("/data", func(r chi.Router) {
			r.Get("/", s.listData)
			r.Route("/{data_id}", func(r chi.Router) {
				r.Get("/", s.getData)
				r.Post("/validate", s.validateData)
			})
		})
		r.Route("/enhancements", func(r chi.Router) {
			r.Get("/", s.listEnhancements)
			r.Post("/{enhancement_id}/verify", s.verifyEnhancement)
		})
		r.Get("/ratelimits/{data_source}", s.rateLimitState)
		r.Post("/ratelimits/{data_source}/block", s.blockDataSource)
		r.Get("/stats", s.stats)
		r.Route("/engine", func(r chi.Router) {
			r.Get("/status", s.engineStatus)
			r.Post("/start", s.startEngine)
			r.Post("/stop", s.stopEngine)
			r.Put("/concurrency", s.setConcurrency)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The job store is the hard dependency; one cheap read proves it out.
	if _, err := s.jobs.Stats(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "job store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON response failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps sentinel errors onto HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	s.writeError(w, statusForError(err), err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, scraping.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, scraping.ErrJobNotFound),
		errors.Is(err, scraping.ErrDataNotFound),
		errors.Is(err, scraping.ErrEnhancementNotFound):
		return http.StatusNotFound
	case errors.Is(err, scraping.ErrInvalidJobState):
		return http.StatusConflict
	case errors.Is(err, scraping.ErrRobotsDisallowed):
		return http.StatusForbidden
	case errors.Is(err, scraping.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, scraping.ErrRateLimitStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
