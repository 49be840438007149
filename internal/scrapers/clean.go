package scrapers

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var stripPolicy = bluemonday.StrictPolicy()

// cleanText strips all markup from scraped fragments and collapses
// whitespace so extracted fields are safe to persist and compare.
func cleanText(s string) string {
	return strings.Join(strings.Fields(stripPolicy.Sanitize(s)), " ")
}

// slug lowercases a name and keeps only letters and digits.
func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "company"
	}
	return b.String()
}
