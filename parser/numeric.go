package parser

import (
	"regexp"
	"strconv"
	"strings"
)

// PricePattern matches German-formatted prices such as "12,50 €" or
// "1.234,56". The first group holds the number without the currency sign.
var PricePattern = regexp.MustCompile(`(\d{1,3}(?:\.\d{3})*,\d{2})\s*€?`)

// priceSeparators are trimmed from a dish name once the price is cut out.
const priceSeparators = " -–•|"

// ExtractRecommendationCount parses "1.234 Empfehlungen" into 1234.
func ExtractRecommendationCount(text string) (int, bool) {
	return defaultExtractor.RecommendationCount(text)
}

// RecommendationCount finds a digit group, optionally grouped by periods or
// spaces, directly followed by the recommendation marker.
func (e *Extractor) RecommendationCount(text string) (int, bool) {
	if text == "" {
		return 0, false
	}
	m := e.patterns.recommendation.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	digits := strings.Map(func(r rune) rune {
		if r == '.' || r == ' ' {
			return -1
		}
		return r
	}, m[1])
	n, err := strconv.Atoi(strings.Join(strings.Fields(digits), ""))
	if err != nil {
		return 0, false
	}
	return n, true
}

// priceMatches returns PricePattern submatch indexes that do not continue a
// longer number: a match preceded by a digit or a period is dropped.
func priceMatches(text string) [][]int {
	var out [][]int
	for _, m := range PricePattern.FindAllStringSubmatchIndex(text, -1) {
		if m[0] > 0 {
			if prev := text[m[0]-1]; prev == '.' || (prev >= '0' && prev <= '9') {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

// HasPrice reports whether text contains a standalone price token.
func HasPrice(text string) bool {
	return len(priceMatches(text)) > 0
}

// ExtractPrice returns the first price token in text.
func ExtractPrice(text string) (string, bool) {
	matches := priceMatches(text)
	if len(matches) == 0 {
		return "", false
	}
	m := matches[0]
	return text[m[2]:m[3]], true
}

// StripPrice removes every price token from text along with separator
// punctuation left at either end.
func StripPrice(text string) string {
	var b strings.Builder
	last := 0
	for _, m := range priceMatches(text) {
		b.WriteString(text[last:m[0]])
		last = m[1]
	}
	b.WriteString(text[last:])
	return strings.Trim(b.String(), priceSeparators)
}
