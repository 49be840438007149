package scrapers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ratemyemployer/scrape-engine/internal/metrics"
	"github.com/ratemyemployer/scrape-engine/internal/quality"
	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

// Deps carries everything a capability needs to fetch, persist, and score
// records. Renderer and Blobs may be nil.
type Deps struct {
	Fetcher    *Fetcher
	Renderer   *Renderer
	Politeness *Politeness
	Data       scraping.DataStore
	Blobs      scraping.BlobStore
	Hasher     scraping.Hasher
	IDs        scraping.IDGenerator
	Clock      scraping.Clock
	Validator  *quality.Validator
	Logger     *zap.Logger
}

// base holds the shared fetch and persistence plumbing for all capabilities.
type base struct {
	deps Deps
}

// capturePage fetches the job's target URL, honoring per-domain pacing and
// the render_js configuration flag. Jobs without a target URL return nil.
func (b *base) capturePage(ctx context.Context, job scraping.ScrapingJob) (*Page, error) {
	if job.TargetURL == "" {
		return nil, nil
	}
	parsed, err := url.Parse(job.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("parse target url: %w", err)
	}
	if b.deps.Politeness != nil && parsed.Host != "" {
		if err := b.deps.Politeness.Wait(ctx, parsed.Host); err != nil {
			return nil, fmt.Errorf("politeness wait: %w", err)
		}
	}

	if renderJS(job.Configuration) && b.deps.Renderer != nil {
		page, err := b.deps.Renderer.Render(ctx, job.TargetURL)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", job.TargetURL, err)
		}
		return &page, nil
	}
	page, err := b.deps.Fetcher.Fetch(ctx, job.TargetURL)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// persist stores each record, scores it through the validator, and archives
// the raw capture. The returned result aggregates counts and the average
// quality score.
func (b *base) persist(ctx context.Context, job scraping.ScrapingJob, dataType string, records []any, page *Page) (scraping.ScrapingResult, error) {
	start := b.deps.Clock.Now()
	result := scraping.ScrapingResult{Success: true}

	sourceURL := job.TargetURL
	if page != nil {
		sourceURL = page.URL
	}

	var scoreTotal float64
	for _, record := range records {
		processed, err := json.Marshal(record)
		if err != nil {
			return scraping.ScrapingResult{}, fmt.Errorf("marshal %s record: %w", dataType, err)
		}
		id, err := b.deps.IDs.NewID()
		if err != nil {
			return scraping.ScrapingResult{}, fmt.Errorf("generate record id: %w", err)
		}
		hash, err := b.deps.Hasher.Hash(processed)
		if err != nil {
			return scraping.ScrapingResult{}, fmt.Errorf("hash %s record: %w", dataType, err)
		}

		data := scraping.ScrapedData{
			ID:            id,
			ScrapingJobID: job.ID,
			CompanyID:     job.TargetCompanyID,
			DataType:      dataType,
			SourceURL:     sourceURL,
			RawData:       processed,
			ProcessedData: processed,
			DataHash:      hash,
			IsProcessed:   true,
			ScrapedAt:     b.deps.Clock.Now(),
			CreatedAt:     b.deps.Clock.Now(),
		}

		val := b.deps.Validator.ValidateData(ctx, data)
		data.ConfidenceScore = val.QualityScore
		data.IsValidated = val.IsValid
		if notes := append(append([]string(nil), val.Errors...), val.Warnings...); len(notes) > 0 {
			data.ValidationNotes = strings.Join(notes, "; ")
		}
		metrics.ObserveQualityScore(dataType, val.QualityScore)

		if err := b.deps.Data.InsertData(ctx, data); err != nil {
			return scraping.ScrapingResult{}, fmt.Errorf("insert %s record: %w", dataType, err)
		}

		result.DataCount++
		scoreTotal += val.QualityScore
		result.Warnings = append(result.Warnings, val.Warnings...)
		if !val.IsValid {
			result.Errors = append(result.Errors, val.Errors...)
		}
	}

	if page != nil {
		b.archive(ctx, job, page)
	}

	if result.DataCount > 0 {
		result.DataQualityScore = scoreTotal / float64(result.DataCount)
	}
	result.ProcessingTimeMS = b.deps.Clock.Now().Sub(start).Milliseconds()
	return result, nil
}

// archive stores the raw capture body. Failures are logged, not fatal: the
// extracted records are already persisted.
func (b *base) archive(ctx context.Context, job scraping.ScrapingJob, page *Page) {
	if b.deps.Blobs == nil || len(page.Body) == 0 {
		return
	}
	hash, err := b.deps.Hasher.Hash(page.Body)
	if err != nil {
		b.deps.Logger.Warn("hash capture body failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	contentType := page.ContentType
	if contentType == "" {
		contentType = "text/html"
	}
	path := fmt.Sprintf("captures/%s/%s", job.ID, hash)
	uri, err := b.deps.Blobs.PutObject(ctx, path, contentType, page.Body)
	if err != nil {
		b.deps.Logger.Warn("archive capture failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	b.deps.Logger.Debug("capture archived", zap.String("job_id", job.ID), zap.String("uri", uri))
}

func renderJS(cfg map[string]any) bool {
	switch v := cfg["render_js"].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

// configString reads an optional string from the job configuration.
func configString(cfg map[string]any, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}
