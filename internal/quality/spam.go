package quality

import (
	"regexp"
	"strings"
)

var (
	spamKeywords  = regexp.MustCompile(`(?i)\b(spam|fake|bot|automated)\b`)
	excessiveCaps = regexp.MustCompile(`[A-Z]{20,}`)
)

// detectSpam flags content with repeated characters, excessive capitals,
// repeated substrings, or explicit spam keywords.
func detectSpam(content string) bool {
	if spamKeywords.MatchString(content) || excessiveCaps.MatchString(content) {
		return true
	}
	return hasRepeatedRune(content, 11) || hasRepeatedPattern(content)
}

// hasRepeatedRune reports whether any rune occurs at least n times in a row.
func hasRepeatedRune(s string, n int) bool {
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev {
			run++
			if run >= n {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}

// hasRepeatedPattern reports whether a short substring (up to 10 chars)
// repeats at least six times consecutively.
func hasRepeatedPattern(s string) bool {
	const repeats = 6
	for size := 1; size <= 10; size++ {
		if len(s) < size*repeats {
			break
		}
		for i := 0; i+size*repeats <= len(s); i++ {
			unit := s[i : i+size]
			if strings.Count(s[i:i+size*repeats], unit) == repeats {
				return true
			}
		}
	}
	return false
}
