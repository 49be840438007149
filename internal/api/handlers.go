package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	defaultLogLimit = 100
)

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req scraping.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	resp, err := s.engine.CreateJob(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := scraping.JobFilter{
		Status:      scraping.JobStatus(q.Get("status")),
		ScraperType: scraping.ScraperType(q.Get("scraper_type")),
		DataSource:  scraping.DataSource(q.Get("data_source")),
		CompanyID:   parseInt64(q.Get("company_id")),
	}
	var err error
	if filter.Since, err = parseTimeParam(q.Get("since")); err != nil {
		s.writeError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
		return
	}
	if filter.Until, err = parseTimeParam(q.Get("until")); err != nil {
		s.writeError(w, http.StatusBadRequest, "until must be an RFC3339 timestamp")
		return
	}
	limit, offset := pagination(q.Get("limit"), q.Get("offset"))

	jobs, total, err := s.jobs.ListJobs(r.Context(), filter, limit, offset)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if jobs == nil {
		jobs = []scraping.ScrapingJob{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"jobs":   jobs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetJob(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if err := s.engine.CancelJob(r.Context(), jobID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	// Running jobs transition asynchronously once their context unwinds.
	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": "cancel_requested"})
}

func (s *Server) retryJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if err := s.engine.RetryJob(r.Context(), jobID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": string(scraping.JobStatusPending)})
}

func (s *Server) listJobLogs(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if _, err := s.jobs.GetJob(r.Context(), jobID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	limit := defaultLogLimit
	if n := parseInt64(r.URL.Query().Get("limit")); n > 0 {
		limit = int(n)
	}
	logs, err := s.logs.ListLogs(r.Context(), jobID, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if logs == nil {
		logs = []scraping.ScrapingLog{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "logs": logs})
}

func (s *Server) listData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := scraping.DataFilter{
		CompanyID:     parseInt64(q.Get("company_id")),
		DataType:      q.Get("data_type"),
		ScrapingJobID: q.Get("job_id"),
	}
	if raw := q.Get("validated"); raw != "" {
		validated := raw == "true"
		filter.IsValidated = &validated
	}
	limit, offset := pagination(q.Get("limit"), q.Get("offset"))

	records, total, err := s.data.ListData(r.Context(), filter, limit, offset)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if records == nil {
		records = []scraping.ScrapedData{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"data":   records,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) getData(w http.ResponseWriter, r *http.Request) {
	record, err := s.data.GetData(r.Context(), chi.URLParam(r, "data_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

// validateData re-runs the quality validator against a stored record and
// persists the verdict.
func (s *Server) validateData(w http.ResponseWriter, r *http.Request) {
	dataID := chi.URLParam(r, "data_id")
	record, err := s.data.GetData(r.Context(), dataID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	validation := s.validator.ValidateData(r.Context(), record)
	notes := strings.Join(append(append([]string{}, validation.Errors...), validation.Warnings...), "; ")
	if err := s.data.SetValidation(r.Context(), dataID, validation.IsValid, notes); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"data_id":    dataID,
		"validation": validation,
	})
}

func (s *Server) listEnhancements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := scraping.EnhancementFilter{
		CompanyID:       parseInt64(q.Get("company_id")),
		DataSource:      scraping.DataSource(q.Get("data_source")),
		EnhancementType: q.Get("enhancement_type"),
	}
	if raw := q.Get("verified"); raw != "" {
		verified := raw == "true"
		filter.IsVerified = &verified
	}
	if raw := q.Get("min_confidence"); raw != "" {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			filter.ConfidenceThreshold = f
		}
	}
	limit, offset := pagination(q.Get("limit"), q.Get("offset"))

	enhancements, total, err := s.enhancements.ListEnhancements(r.Context(), filter, limit, offset)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if enhancements == nil {
		enhancements = []scraping.CompanyDataEnhancement{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"enhancements": enhancements,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	})
}

type verifyEnhancementRequest struct {
	Verified   bool   `json:"verified"`
	VerifiedBy string `json:"verified_by"`
}

func (s *Server) verifyEnhancement(w http.ResponseWriter, r *http.Request) {
	enhancementID := chi.URLParam(r, "enhancement_id")
	var req verifyEnhancementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Verified && req.VerifiedBy == "" {
		s.writeError(w, http.StatusBadRequest, "verified_by is required when verifying")
		return
	}
	if err := s.enhancements.SetVerified(r.Context(), enhancementID, req.Verified, req.VerifiedBy, s.clock.Now()); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"enhancement_id": enhancementID,
		"is_verified":    req.Verified,
	})
}

func (s *Server) rateLimitState(w http.ResponseWriter, r *http.Request) {
	source := scraping.DataSource(chi.URLParam(r, "data_source"))
	state, err := s.limiter.State(r.Context(), source)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	state.Ceilings = s.limiter.Ceilings(source)
	s.writeJSON(w, http.StatusOK, state)
}

type blockRequest struct {
	BlockedUntil *time.Time `json:"blocked_until"`
}

func (s *Server) blockDataSource(w http.ResponseWriter, r *http.Request) {
	source := scraping.DataSource(chi.URLParam(r, "data_source"))
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	until := s.clock.Now().Add(time.Hour)
	if req.BlockedUntil != nil {
		until = *req.BlockedUntil
	}
	if err := s.limiter.Block(r.Context(), source, until); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"data_source":   source,
		"blocked_until": until,
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.jobs.Stats(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if avg, err := s.data.AverageConfidence(r.Context()); err == nil {
		stats.DataQualityAverage = avg
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) engineStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"running": s.engine.Running()})
}

func (s *Server) startEngine(w http.ResponseWriter, _ *http.Request) {
	// The loop must outlive the request, so it runs under the background
	// context and stops through /v1/engine/stop or process shutdown.
	s.engine.Start(context.Background())
	s.writeJSON(w, http.StatusOK, map[string]any{"running": true})
}

func (s *Server) stopEngine(w http.ResponseWriter, _ *http.Request) {
	s.engine.Stop()
	s.writeJSON(w, http.StatusOK, map[string]any{"running": false})
}

type concurrencyRequest struct {
	MaxConcurrentJobs int `json:"max_concurrent_jobs"`
}

func (s *Server) setConcurrency(w http.ResponseWriter, r *http.Request) {
	var req concurrencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.MaxConcurrentJobs <= 0 {
		s.writeError(w, http.StatusBadRequest, "max_concurrent_jobs must be positive")
		return
	}
	s.engine.SetMaxConcurrentJobs(req.MaxConcurrentJobs)
	s.writeJSON(w, http.StatusOK, map[string]any{"max_concurrent_jobs": req.MaxConcurrentJobs})
}

func parseInt64(raw string) int64 {
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseTimeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func pagination(rawLimit, rawOffset string) (int, int) {
	limit := defaultPageSize
	if n := parseInt64(rawLimit); n > 0 {
		limit = int(n)
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := 0
	if n := parseInt64(rawOffset); n > 0 {
		offset = int(n)
	}
	return limit, offset
}
