package scrapers

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/ratemyemployer/scrape-engine/internal/scraping"
)

// CompanyScraper captures company profile data.
type CompanyScraper struct {
	base
}

// NewCompanyScraper builds a CompanyScraper.
func NewCompanyScraper(deps Deps) *CompanyScraper {
	return &CompanyScraper{base: base{deps: deps}}
}

// Scrape fetches the target page when one is configured, otherwise it
// synthesizes a profile from the job configuration.
func (s *CompanyScraper) Scrape(ctx context.Context, job scraping.ScrapingJob) (scraping.ScrapingResult, error) {
	page, err := s.capturePage(ctx, job)
	if err != nil {
		return scraping.ScrapingResult{}, err
	}

	var record scraping.CompanyDataResult
	if page != nil {
		record = s.extract(page, job)
	} else {
		record = s.simulate(job)
	}
	return s.persist(ctx, job, scraping.DataTypeCompanyData, []any{record}, page)
}

func (s *CompanyScraper) extract(page *Page, job scraping.ScrapingJob) scraping.CompanyDataResult {
	result := scraping.CompanyDataResult{}
	result.CompanyInfo.Name = job.TargetCompanyName

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return result
	}

	if name, ok := doc.Find(`meta[property="og:site_name"]`).Attr("content"); ok && name != "" {
		result.CompanyInfo.Name = cleanText(name)
	} else if title := doc.Find("title").First().Text(); result.CompanyInfo.Name == "" && title != "" {
		result.CompanyInfo.Name = cleanText(title)
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		result.CompanyInfo.Description = cleanText(desc)
	}
	if parsed, err := url.Parse(page.URL); err == nil && parsed.Host != "" {
		result.CompanyInfo.Website = fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
	}
	if logo, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
		result.CompanyInfo.LogoURL = logo
	}
	return result
}

func (s *CompanyScraper) simulate(job scraping.ScrapingJob) scraping.CompanyDataResult {
	name := job.TargetCompanyName
	if name == "" {
		name = configString(job.Configuration, "company_name")
	}
	return scraping.CompanyDataResult{
		CompanyInfo: scraping.CompanyInfo{
			Name:         name,
			Description:  fmt.Sprintf("%s is a company profiled from the %s data source.", name, job.DataSource),
			Industry:     configString(job.Configuration, "industry"),
			Size:         "201-500",
			Headquarters: configString(job.Configuration, "headquarters"),
			Website:      fmt.Sprintf("https://www.%s.example", slug(name)),
		},
		FinancialData: &scraping.CompanyFinancials{Employees: 350},
		Ratings:       &scraping.CompanyRatings{OverallRating: 4.1, WorkLifeBalance: 3.9},
	}
}
