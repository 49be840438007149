package scraping

// Typed processed_data payloads. The shape stored in ScrapedData.ProcessedData
// must match the struct for its data_type; the quality validator decodes into
// these before applying rules.

// Data types carried by ScrapedData records.
const (
	DataTypeCompanyData    = "company_data"
	DataTypeEmployeeReview = "employee_review"
	DataTypeNewsArticle    = "news_article"
	DataTypeJobListing     = "job_listing"
)

// CompanyInfo is the descriptive portion of a company capture.
type CompanyInfo struct {
	Name         string            `json:"name,omitempty"`
	Description  string            `json:"description,omitempty"`
	Industry     string            `json:"industry,omitempty"`
	Size         string            `json:"size,omitempty"`
	FoundedYear  int               `json:"founded_year,omitempty"`
	Headquarters string            `json:"headquarters,omitempty"`
	Website      string            `json:"website,omitempty"`
	LogoURL      string            `json:"logo_url,omitempty"`
	SocialMedia  map[string]string `json:"social_media,omitempty"`
}

// CompanyFinancials captures scraped financial figures.
type CompanyFinancials struct {
	Revenue   float64 `json:"revenue,omitempty"`
	Employees int     `json:"employees,omitempty"`
	Funding   float64 `json:"funding,omitempty"`
	Valuation float64 `json:"valuation,omitempty"`
}

// CompanyRatings captures aggregate rating figures.
type CompanyRatings struct {
	OverallRating       float64 `json:"overall_rating,omitempty"`
	CultureRating       float64 `json:"culture_rating,omitempty"`
	CompensationRating  float64 `json:"compensation_rating,omitempty"`
	WorkLifeBalance     float64 `json:"work_life_balance,omitempty"`
	CareerOpportunities float64 `json:"career_opportunities,omitempty"`
}

// CompanyDataResult is the processed_data shape for company_data records.
type CompanyDataResult struct {
	CompanyInfo   CompanyInfo        `json:"company_info"`
	FinancialData *CompanyFinancials `json:"financial_data,omitempty"`
	Ratings       *CompanyRatings    `json:"ratings,omitempty"`
}

// ReviewResult is the processed_data shape for employee_review records.
type ReviewResult struct {
	ReviewID          string  `json:"review_id,omitempty"`
	Rating            float64 `json:"rating,omitempty"`
	Title             string  `json:"title,omitempty"`
	Content           string  `json:"content,omitempty"`
	Pros              string  `json:"pros,omitempty"`
	Cons              string  `json:"cons,omitempty"`
	Position          string  `json:"position,omitempty"`
	Location          string  `json:"location,omitempty"`
	EmploymentStatus  string  `json:"employment_status,omitempty"`
	IsCurrentEmployee bool    `json:"is_current_employee,omitempty"`
	ReviewDate        string  `json:"review_date,omitempty"`
	HelpfulCount      int     `json:"helpful_count,omitempty"`
	Verified          bool    `json:"verified,omitempty"`
}

// NewsResult is the processed_data shape for news_article records.
type NewsResult struct {
	Title         string   `json:"title,omitempty"`
	Content       string   `json:"content,omitempty"`
	Summary       string   `json:"summary,omitempty"`
	URL           string   `json:"url,omitempty"`
	Source        string   `json:"source,omitempty"`
	Author        string   `json:"author,omitempty"`
	PublishedDate string   `json:"published_date,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	Sentiment     string   `json:"sentiment,omitempty"`
}

// JobListingResult is the processed_data shape for job_listing records.
type JobListingResult struct {
	Title          string   `json:"title,omitempty"`
	Description    string   `json:"description,omitempty"`
	Location       string   `json:"location,omitempty"`
	EmploymentType string   `json:"employment_type,omitempty"`
	SalaryRange    string   `json:"salary_range,omitempty"`
	Benefits       []string `json:"benefits,omitempty"`
	Requirements   []string `json:"requirements,omitempty"`
	PostedDate     string   `json:"posted_date,omitempty"`
	ApplyURL       string   `json:"apply_url,omitempty"`
}
