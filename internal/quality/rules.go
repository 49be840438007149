package quality

import "github.com/ratemyemployer/scrape-engine/internal/scraping"

// Penalty keys recognized in ValidationRule.Penalties. Each maps to a default
// deduction applied when the corresponding rule is violated.
const (
	penaltyMissingRequired  = "missing_required_field"
	penaltyFewOptional      = "few_optional_fields"
	penaltyShortName        = "short_name"
	penaltyShortDescription = "short_description"
	penaltyInvalidWebsite   = "invalid_website_url"
	penaltyMissingRating    = "missing_rating"
	penaltyRatingRange      = "rating_out_of_range"
	penaltyShortTitle       = "short_title"
	penaltyMissingContent   = "missing_content"
	penaltyShortContent     = "short_content"
	penaltyLongContent      = "long_content"
	penaltySpam             = "spam_content"
	penaltyFutureDate       = "future_date"
	penaltyMissingURL       = "missing_url"
	penaltyInvalidURL       = "invalid_url"
	penaltyMissingDate      = "missing_date"
	penaltyLowWordCount     = "low_word_count"
	penaltyMissingLocation  = "missing_location"
	penaltyEmploymentType   = "unusual_employment_type"
	penaltyStalePosting     = "stale_posting"
	penaltyNoRawData        = "no_raw_data"
	penaltyNoProcessedData  = "no_processed_data"
)

var defaultPenalties = map[string]float64{
	penaltyMissingRequired:  0.2,
	penaltyFewOptional:      0.1,
	penaltyShortName:        0.1,
	penaltyShortDescription: 0.1,
	penaltyInvalidWebsite:   0.2,
	penaltyMissingRating:    0.3,
	penaltyRatingRange:      0.2,
	penaltyShortTitle:       0.2,
	penaltyMissingContent:   0.3,
	penaltyShortContent:     0.2,
	penaltyLongContent:      0.1,
	penaltySpam:             0.5,
	penaltyFutureDate:       0.2,
	penaltyMissingURL:       0.2,
	penaltyInvalidURL:       0.2,
	penaltyMissingDate:      0.1,
	penaltyLowWordCount:     0.1,
	penaltyMissingLocation:  0.2,
	penaltyEmploymentType:   0.1,
	penaltyStalePosting:     0.1,
	penaltyNoRawData:        0.5,
	penaltyNoProcessedData:  0.3,
}

// penalty resolves the deduction for a rule violation, preferring the
// override configured on the check record.
func penalty(rule scraping.ValidationRule, key string) float64 {
	if v, ok := rule.Penalties[key]; ok {
		return v
	}
	return defaultPenalties[key]
}

// DefaultChecks returns the built-in rule sets seeded when the check store is
// empty.
func DefaultChecks() []scraping.DataQualityCheck {
	return []scraping.DataQualityCheck{
		{
			CheckName: "company_data_completeness",
			DataType:  scraping.DataTypeCompanyData,
			ValidationRule: scraping.ValidationRule{
				RequiredFields:    []string{"name"},
				OptionalFields:    []string{"description", "industry", "website"},
				MinOptionalFields: 2,
			},
			ErrorThreshold: 0.2,
			IsActive:       true,
		},
		{
			CheckName: "review_content_quality",
			DataType:  scraping.DataTypeEmployeeReview,
			ValidationRule: scraping.ValidationRule{
				RequiredFields:   []string{"rating", "title", "content"},
				MinContentLength: 20,
				MaxContentLength: 5000,
				RatingRange:      []float64{1, 5},
			},
			ErrorThreshold: 0.1,
			IsActive:       true,
		},
		{
			CheckName: "news_article_validity",
			DataType:  scraping.DataTypeNewsArticle,
			ValidationRule: scraping.ValidationRule{
				RequiredFields:   []string{"title", "content", "url", "published_date"},
				MinTitleLength:   10,
				MinContentLength: 50,
				URLPattern:       "^https?://",
			},
			ErrorThreshold: 0.15,
			IsActive:       true,
		},
		{
			CheckName: "job_listing_completeness",
			DataType:  scraping.DataTypeJobListing,
			ValidationRule: scraping.ValidationRule{
				RequiredFields:       []string{"title", "description", "location"},
				MinDescriptionLength: 50,
				EmploymentTypes:      []string{"Full-time", "Part-time", "Contract", "Internship"},
				MaxPostingAgeDays:    90,
			},
			ErrorThreshold: 0.2,
			IsActive:       true,
		},
	}
}
