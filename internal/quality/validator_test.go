package quality

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

type fakeCheckStore struct {
	mu     sync.Mutex
	checks []scraping.DataQualityCheck
	err    error
}

func (s *fakeCheckStore) ListActiveChecks(context.Context) ([]scraping.DataQualityCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]scraping.DataQualityCheck, len(s.checks))
	copy(out, s.checks)
	return out, nil
}

func (s *fakeCheckStore) UpsertCheck(_ context.Context, check scraping.DataQualityCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, check)
	return nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	store := &fakeCheckStore{checks: DefaultChecks()}
	clock := &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	v := New(store, clock, zap.NewNop())
	require.NoError(t, v.Reload(context.Background()))
	return v
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestValidateData_CompanyMissingNameIsInvalid(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)
	data := scraping.ScrapedData{
		DataType: scraping.DataTypeCompanyData,
		ProcessedData: mustJSON(t, scraping.CompanyDataResult{
			CompanyInfo: scraping.CompanyInfo{Description: "A mid-size logistics company."},
		}),
	}

	result := v.ValidateData(context.Background(), data)
	require.False(t, result.IsValid)
	require.Contains(t, result.Errors, "Missing required field: name")
}

func TestValidateData_CompanyCompleteRecordIsValid(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)
	data := scraping.ScrapedData{
		DataType: scraping.DataTypeCompanyData,
		ProcessedData: mustJSON(t, scraping.CompanyDataResult{
			CompanyInfo: scraping.CompanyInfo{
				Name:        "Acme Logistics",
				Description: "A mid-size logistics company operating in three regions.",
				Industry:    "Logistics",
				Website:     "https://acme.example.com",
			},
		}),
	}

	result := v.ValidateData(context.Background(), data)
	require.True(t, result.IsValid)
	require.Empty(t, result.Errors)
	require.InDelta(t, 1.0, result.QualityScore, 1e-9)
}

func TestValidateData_CompanyBadWebsiteIsError(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)
	data := scraping.ScrapedData{
		DataType: scraping.DataTypeCompanyData,
		ProcessedData: mustJSON(t, scraping.CompanyDataResult{
			CompanyInfo: scraping.CompanyInfo{
				Name:     "Acme",
				Industry: "Logistics",
				Website:  "not a url",
			},
		}),
	}

	result := v.ValidateData(context.Background(), data)
	require.False(t, result.IsValid)
	require.Contains(t, result.Errors, "Invalid website URL format")
}

func validReview() scraping.ReviewResult {
	return scraping.ReviewResult{
		Rating:     4,
		Title:      "Great place to grow",
		Content:    "Supportive management, honest feedback cycles, and reasonable expectations around delivery timelines.",
		ReviewDate: "2026-05-20",
	}
}

func TestValidateData_ReviewRatingOutOfRange(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)
	review := validReview()
	review.Rating = 6
	data := scraping.ScrapedData{
		DataType:      scraping.DataTypeEmployeeReview,
		ProcessedData: mustJSON(t, review),
	}

	result := v.ValidateData(context.Background(), data)
	require.False(t, result.IsValid)
	require.Contains(t, result.Errors, "Rating 6 outside valid range [1, 5]")
}

func TestValidateData_ReviewContentTooShort(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)
	review := validReview()
	review.Content = "Short one" // 9 chars, minimum is 20
	data := scraping.ScrapedData{
		DataType:      scraping.DataTypeEmployeeReview,
		ProcessedData: mustJSON(t, review),
	}

	result := v.ValidateData(context.Background(), data)
	require.False(t, result.IsValid)
	require.Contains(t, result.Errors, "Review content too short (9 chars)")
}

func TestValidateData_ReviewFullyValidScoresOne(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)
	data := scraping.ScrapedData{
		DataType:      scraping.DataTypeEmployeeReview,
		ProcessedData: mustJSON(t, validReview()),
	}

	result := v.ValidateData(context.Background(), data)
	require.True(t, result.IsValid)
	require.Empty(t, result.Errors)
	require.InDelta(t, 1.0, result.QualityScore, 1e-9)
}

func TestValidateData_ReviewSpamIsError(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)
	review := validReview()
	review.Content = "BUY NOW!!!!!!!!!!!!!!!! totally automated content that repeats repeats"
	data := scraping.ScrapedData{
		DataType:      scraping.DataTypeEmployeeReview,
		ProcessedData: mustJSON(t, review),
	}

	result := v.ValidateData(context.Background(), data)
	require.False(t, result.IsValid)
	require.Contains(t, result.Errors, "Content appears to be spam")
}

func TestValidateData_ReviewFutureDatedIsError(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)
	review := validReview()
	review.ReviewDate = "2027-01-01"
	data := scraping.ScrapedData{
		DataType:      scraping.DataTypeEmployeeReview,
		ProcessedData: mustJSON(t, review),
	}

	result := v.ValidateData(context.Background(), data)
	require.False(t, result.IsValid)
	require.Contains(t, result.Errors, "Review date is in the future")
}

func TestValidateData_NewsArticleRules(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)
	data := scraping.ScrapedData{
		DataType: scraping.DataTypeNewsArticle,
		ProcessedData: mustJSON(t, scraping.NewsResult{
			Title:         "Too short", // 9 chars, minimum is 10
			Content:       "Brief.",
			URL:           "ftp://bad.example.com/article",
			PublishedDate: "2026-05-01",
		}),
	}

	result := v.ValidateData(context.Background(), data)
	require.False(t, result.IsValid)
	require.Contains(t, result.Errors, "Missing or too short article title")
	require.Contains(t, result.Errors, "Missing or too short article content")
	require.Contains(t, result.Errors, "Invalid URL format")
}

func TestValidateData_JobListingRules(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)
	data := scraping.ScrapedData{
		DataType: scraping.DataTypeJobListing,
		ProcessedData: mustJSON(t, scraping.JobListingResult{
			Title:          "Senior Backend Engineer",
			Description:    "Own the job scheduling services end to end, from design through production operations.",
			Location:       "Remote",
			EmploymentType: "Gig",
			PostedDate:     "2026-01-01", // ~150 days before the fake clock
		}),
	}

	result := v.ValidateData(context.Background(), data)
	require.True(t, result.IsValid)
	require.Contains(t, result.Warnings, "Unusual employment type: Gig")
	require.Contains(t, result.Warnings, "Job posting is quite old")
}

func TestValidateData_UnknownTypeGetsNeutralScore(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)
	data := scraping.ScrapedData{DataType: "press_release"}

	result := v.ValidateData(context.Background(), data)
	require.True(t, result.IsValid)
	require.InDelta(t, 0.5, result.QualityScore, 1e-9)
	require.Len(t, result.Warnings, 1)
}

func TestValidateData_GenericFallback(t *testing.T) {
	t.Parallel()

	store := &fakeCheckStore{checks: []scraping.DataQualityCheck{{
		CheckName: "raw_presence",
		DataType:  "press_release",
		IsActive:  true,
	}}}
	v := New(store, &fakeClock{now: time.Now()}, zap.NewNop())
	require.NoError(t, v.Reload(context.Background()))

	result := v.ValidateData(context.Background(), scraping.ScrapedData{DataType: "press_release"})
	require.False(t, result.IsValid)
	require.Contains(t, result.Errors, "No raw data present")
	require.Contains(t, result.Errors, "No processed data present")
	require.InDelta(t, 0.2, result.QualityScore, 1e-9)
}

func TestValidateBatch_EmptyInput(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)
	out := v.ValidateBatch(context.Background(), nil)
	require.Zero(t, out.ValidCount)
	require.Zero(t, out.InvalidCount)
	require.Zero(t, out.AverageQuality)
	require.Empty(t, out.Results)
}

func TestValidateBatch_Aggregates(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)
	good := scraping.ScrapedData{
		ID:            "good",
		DataType:      scraping.DataTypeEmployeeReview,
		ProcessedData: mustJSON(t, validReview()),
	}
	bad := scraping.ScrapedData{
		ID:            "bad",
		DataType:      scraping.DataTypeEmployeeReview,
		ProcessedData: mustJSON(t, scraping.ReviewResult{}),
	}

	out := v.ValidateBatch(context.Background(), []scraping.ScrapedData{good, bad})
	require.Equal(t, 1, out.ValidCount)
	require.Equal(t, 1, out.InvalidCount)
	require.Len(t, out.Results, 2)
	require.Equal(t, "good", out.Results[0].ID)
	require.Greater(t, out.AverageQuality, 0.0)
	require.Less(t, out.AverageQuality, 1.0)
}

func TestPenaltyOverrides(t *testing.T) {
	t.Parallel()

	rule := scraping.ValidationRule{Penalties: map[string]float64{penaltySpam: 0.9}}
	require.InDelta(t, 0.9, penalty(rule, penaltySpam), 1e-9)
	require.InDelta(t, 0.2, penalty(rule, penaltyShortTitle), 1e-9)
}

func TestDetectSpam(t *testing.T) {
	t.Parallel()

	require.True(t, detectSpam("this is a fake review"))
	require.True(t, detectSpam("AAAAAAAAAAAAAAAAAAAAAAAA"))
	require.True(t, detectSpam("zzzzzzzzzzzzz"))
	require.True(t, detectSpam("buy!buy!buy!buy!buy!buy!"))
	require.False(t, detectSpam("An ordinary, thoughtful review of the workplace."))
}
