package parser

import (
	"strings"

	"github.com/andybalholm/cascadia"

	"github.com/aluiziolira/speisekarte-scraper/dom"
)

// citySuffix ends every city listing path in the city directory.
const citySuffix = "/restaurants"

var cityLinkSelector = cascadia.MustCompile(`div.grid a[href$="/restaurants"], a[href$="/restaurants"]`)

// CityPaths returns the site-relative city listing paths linked from a city
// directory page, in document order. Absolute and foreign links are skipped.
// Duplicates are kept; callers track which cities they have seen.
func CityPaths(doc dom.Node) []string {
	var paths []string
	for _, a := range doc.FindMatcher(cityLinkSelector) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if strings.HasPrefix(href, "/") && !strings.HasPrefix(href, "//") && strings.HasSuffix(href, citySuffix) {
			paths = append(paths, href)
		}
	}
	return paths
}
