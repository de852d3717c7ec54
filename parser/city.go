package parser

import (
	"net/url"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CityNameFromPath turns "/bad-aachen/restaurants" into "Bad Aachen".
func CityNameFromPath(path string) string {
	segment, _, _ := strings.Cut(strings.Trim(path, "/"), "/")
	if decoded, err := url.PathUnescape(segment); err == nil {
		segment = decoded
	}
	name := strings.TrimSpace(strings.ReplaceAll(segment, "-", " "))
	// Casers keep state between calls and must not be shared.
	return cases.Title(language.German).String(name)
}
