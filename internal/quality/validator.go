// Package quality scores scraped records against data-type-specific rule sets.
package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

// Validation is the outcome for a single record. Findings are data, not
// errors: validation never fails hard on malformed input.
type Validation struct {
	IsValid      bool     `json:"is_valid"`
	QualityScore float64  `json:"quality_score"`
	Errors       []string `json:"errors"`
	Warnings     []string `json:"warnings"`
}

// ItemValidation pairs a record ID with its validation outcome.
type ItemValidation struct {
	ID string `json:"id"`
	Validation
}

// BatchValidation aggregates outcomes over a set of records.
type BatchValidation struct {
	ValidCount     int              `json:"valid_count"`
	InvalidCount   int              `json:"invalid_count"`
	AverageQuality float64          `json:"average_quality"`
	Results        []ItemValidation `json:"results"`
}

// Validator applies active DataQualityCheck rule sets to scraped records.
type Validator struct {
	store  scraping.QualityCheckStore
	clock  scraping.Clock
	logger *zap.Logger

	mu     sync.RWMutex
	checks map[string]scraping.DataQualityCheck
}

// New builds a Validator. Checks are loaded lazily on first use and can be
// refreshed with Reload.
func New(store scraping.QualityCheckStore, clock scraping.Clock, logger *zap.Logger) *Validator {
	return &Validator{
		store:  store,
		clock:  clock,
		logger: logger,
		checks: make(map[string]scraping.DataQualityCheck),
	}
}

// EnsureDefaults seeds the built-in checks when the store has none.
func (v *Validator) EnsureDefaults(ctx context.Context) error {
	existing, err := v.store.ListActiveChecks(ctx)
	if err != nil {
		return fmt.Errorf("list quality checks: %w", err)
	}
	if len(existing) == 0 {
		for _, check := range DefaultChecks() {
			if err := v.store.UpsertCheck(ctx, check); err != nil {
				return fmt.Errorf("seed quality check %s: %w", check.CheckName, err)
			}
		}
	}
	return v.Reload(ctx)
}

// Reload refreshes the in-memory check set from the store.
func (v *Validator) Reload(ctx context.Context) error {
	checks, err := v.store.ListActiveChecks(ctx)
	if err != nil {
		return fmt.Errorf("list quality checks: %w", err)
	}
	byType := make(map[string]scraping.DataQualityCheck, len(checks))
	for _, check := range checks {
		byType[check.DataType] = check
	}
	v.mu.Lock()
	v.checks = byType
	v.mu.Unlock()
	return nil
}

func (v *Validator) checkFor(ctx context.Context, dataType string) (scraping.DataQualityCheck, bool) {
	v.mu.RLock()
	loaded := len(v.checks) > 0
	check, ok := v.checks[dataType]
	v.mu.RUnlock()
	if !loaded {
		if err := v.Reload(ctx); err != nil {
			v.logger.Warn("quality check reload failed", zap.Error(err))
			return scraping.DataQualityCheck{}, false
		}
		v.mu.RLock()
		check, ok = v.checks[dataType]
		v.mu.RUnlock()
	}
	return check, ok
}

// ValidateData scores a single record. Records with no matching rule set are
// treated as valid with a neutral 0.5 score plus a warning.
func (v *Validator) ValidateData(ctx context.Context, data scraping.ScrapedData) Validation {
	check, ok := v.checkFor(ctx, data.DataType)
	if !ok {
		return Validation{
			IsValid:      true,
			QualityScore: 0.5,
			Errors:       []string{},
			Warnings:     []string{fmt.Sprintf("No quality check defined for data type: %s", data.DataType)},
		}
	}

	switch data.DataType {
	case scraping.DataTypeCompanyData:
		return v.validateCompanyData(data, check.ValidationRule)
	case scraping.DataTypeEmployeeReview:
		return v.validateReview(data, check.ValidationRule)
	case scraping.DataTypeNewsArticle:
		return v.validateNews(data, check.ValidationRule)
	case scraping.DataTypeJobListing:
		return v.validateJobListing(data, check.ValidationRule)
	default:
		return v.validateGeneric(data, check.ValidationRule)
	}
}

// ValidateBatch runs ValidateData over each record sequentially and
// aggregates counts and the average score. An empty input yields zero counts
// and a zero average.
func (v *Validator) ValidateBatch(ctx context.Context, items []scraping.ScrapedData) BatchValidation {
	out := BatchValidation{Results: make([]ItemValidation, 0, len(items))}
	total := 0.0
	for _, item := range items {
		val := v.ValidateData(ctx, item)
		out.Results = append(out.Results, ItemValidation{ID: item.ID, Validation: val})
		if val.IsValid {
			out.ValidCount++
		}
		total += val.QualityScore
	}
	out.InvalidCount = len(items) - out.ValidCount
	if len(items) > 0 {
		out.AverageQuality = total / float64(len(items))
	}
	return out
}

type scorer struct {
	score    float64
	errors   []string
	warnings []string
}

func newScorer() *scorer {
	return &scorer{score: 1.0, errors: []string{}, warnings: []string{}}
}

func (s *scorer) fail(msg string, deduction float64) {
	s.errors = append(s.errors, msg)
	s.score -= deduction
}

func (s *scorer) warn(msg string, deduction float64) {
	s.warnings = append(s.warnings, msg)
	s.score -= deduction
}

func (s *scorer) result() Validation {
	score := s.score
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return Validation{
		IsValid:      len(s.errors) == 0,
		QualityScore: score,
		Errors:       s.errors,
		Warnings:     s.warnings,
	}
}

func (v *Validator) validateCompanyData(data scraping.ScrapedData, rule scraping.ValidationRule) Validation {
	s := newScorer()

	var company scraping.CompanyDataResult
	decodeLenient(data.ProcessedData, &company)
	fields := asMap(data.ProcessedData)

	for _, field := range rule.RequiredFields {
		if !hasField(fields, field) && !hasField(fields, "company_info."+field) {
			s.fail(fmt.Sprintf("Missing required field: %s", field), penalty(rule, penaltyMissingRequired))
		}
	}

	if len(rule.OptionalFields) > 0 {
		present := 0
		for _, field := range rule.OptionalFields {
			if hasField(fields, field) || hasField(fields, "company_info."+field) {
				present++
			}
		}
		if rule.MinOptionalFields > 0 && present < rule.MinOptionalFields {
			s.warn(fmt.Sprintf("Only %d of %d recommended optional fields present", present, rule.MinOptionalFields),
				penalty(rule, penaltyFewOptional))
		}
	}

	if name := company.CompanyInfo.Name; name != "" && len(name) < 2 {
		s.warn("Company name too short", penalty(rule, penaltyShortName))
	}
	if desc := company.CompanyInfo.Description; desc != "" && len(desc) < 20 {
		s.warn("Company description is very short", penalty(rule, penaltyShortDescription))
	}
	if site := company.CompanyInfo.Website; site != "" && !isValidURL(site) {
		s.fail("Invalid website URL format", penalty(rule, penaltyInvalidWebsite))
	}

	return s.result()
}

func (v *Validator) validateReview(data scraping.ScrapedData, rule scraping.ValidationRule) Validation {
	s := newScorer()

	var review scraping.ReviewResult
	decodeLenient(data.ProcessedData, &review)

	if review.Rating == 0 {
		s.fail("Missing rating", penalty(rule, penaltyMissingRating))
	} else if len(rule.RatingRange) == 2 {
		min, max := rule.RatingRange[0], rule.RatingRange[1]
		if review.Rating < min || review.Rating > max {
			s.fail(fmt.Sprintf("Rating %g outside valid range [%g, %g]", review.Rating, min, max),
				penalty(rule, penaltyRatingRange))
		}
	}

	if len(review.Title) < 5 {
		s.fail("Missing or too short review title", penalty(rule, penaltyShortTitle))
	}

	if review.Content == "" {
		s.fail("Missing review content", penalty(rule, penaltyMissingContent))
	} else {
		minLen := rule.MinContentLength
		if minLen == 0 {
			minLen = 20
		}
		maxLen := rule.MaxContentLength
		if maxLen == 0 {
			maxLen = 5000
		}
		if len(review.Content) < minLen {
			s.fail(fmt.Sprintf("Review content too short (%d chars)", len(review.Content)),
				penalty(rule, penaltyShortContent))
		}
		if len(review.Content) > maxLen {
			s.warn(fmt.Sprintf("Review content very long (%d chars)", len(review.Content)),
				penalty(rule, penaltyLongContent))
		}
	}

	if detectSpam(review.Content + " " + review.Title) {
		s.fail("Content appears to be spam", penalty(rule, penaltySpam))
	}

	if t, ok := parseDate(review.ReviewDate); ok && t.After(v.clock.Now()) {
		s.fail("Review date is in the future", penalty(rule, penaltyFutureDate))
	}

	return s.result()
}

func (v *Validator) validateNews(data scraping.ScrapedData, rule scraping.ValidationRule) Validation {
	s := newScorer()

	var article scraping.NewsResult
	decodeLenient(data.ProcessedData, &article)

	minTitle := rule.MinTitleLength
	if minTitle == 0 {
		minTitle = 10
	}
	if len(article.Title) < minTitle {
		s.fail("Missing or too short article title", penalty(rule, penaltyShortTitle))
	}

	minContent := rule.MinContentLength
	if minContent == 0 {
		minContent = 50
	}
	if len(article.Content) < minContent {
		s.fail("Missing or too short article content", penalty(rule, penaltyMissingContent))
	}

	if article.URL == "" {
		s.fail("Missing article URL", penalty(rule, penaltyMissingURL))
	} else if rule.URLPattern != "" {
		if re, err := regexp.Compile(rule.URLPattern); err == nil && !re.MatchString(article.URL) {
			s.fail("Invalid URL format", penalty(rule, penaltyInvalidURL))
		}
	}

	if article.PublishedDate == "" {
		s.fail("Missing publication date", penalty(rule, penaltyMissingDate))
	} else if t, ok := parseDate(article.PublishedDate); ok && t.After(v.clock.Now()) {
		s.fail("Publication date is in the future", penalty(rule, penaltyFutureDate))
	}

	if article.Content != "" {
		if words := len(strings.Fields(article.Content)); words < 50 {
			s.warn("Article content is very short", penalty(rule, penaltyLowWordCount))
		}
	}

	return s.result()
}

func (v *Validator) validateJobListing(data scraping.ScrapedData, rule scraping.ValidationRule) Validation {
	s := newScorer()

	var listing scraping.JobListingResult
	decodeLenient(data.ProcessedData, &listing)

	if len(listing.Title) < 5 {
		s.fail("Missing or too short job title", penalty(rule, penaltyShortTitle))
	}

	minDesc := rule.MinDescriptionLength
	if minDesc == 0 {
		minDesc = 50
	}
	if len(listing.Description) < minDesc {
		s.fail("Missing or too short job description", penalty(rule, penaltyMissingContent))
	}

	if listing.Location == "" {
		s.fail("Missing job location", penalty(rule, penaltyMissingLocation))
	}

	if len(rule.EmploymentTypes) > 0 && listing.EmploymentType != "" {
		allowed := false
		for _, t := range rule.EmploymentTypes {
			if t == listing.EmploymentType {
				allowed = true
				break
			}
		}
		if !allowed {
			s.warn(fmt.Sprintf("Unusual employment type: %s", listing.EmploymentType),
				penalty(rule, penaltyEmploymentType))
		}
	}

	maxAge := rule.MaxPostingAgeDays
	if maxAge == 0 {
		maxAge = 90
	}
	if t, ok := parseDate(listing.PostedDate); ok {
		if v.clock.Now().Sub(t) > time.Duration(maxAge)*24*time.Hour {
			s.warn("Job posting is quite old", penalty(rule, penaltyStalePosting))
		}
	}

	return s.result()
}

func (v *Validator) validateGeneric(data scraping.ScrapedData, rule scraping.ValidationRule) Validation {
	s := newScorer()

	if len(asMap(data.RawData)) == 0 {
		s.fail("No raw data present", penalty(rule, penaltyNoRawData))
	}
	if len(asMap(data.ProcessedData)) == 0 {
		s.fail("No processed data present", penalty(rule, penaltyNoProcessedData))
	}

	return s.result()
}

// decodeLenient unmarshals without failing the validation on shape problems;
// missing or mistyped fields simply stay zero and trip the field rules.
func decodeLenient(raw json.RawMessage, out any) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, out)
}

func asMap(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// hasField walks a dotted path and reports whether the leaf is present and
// non-empty.
func hasField(m map[string]any, path string) bool {
	parts := strings.Split(path, ".")
	var current any = m
	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return false
		}
		current, ok = obj[part]
		if !ok {
			return false
		}
	}
	switch val := current.(type) {
	case nil:
		return false
	case string:
		return val != ""
	default:
		return true
	}
}

func isValidURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func parseDate(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
