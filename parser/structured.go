package parser

import (
	"encoding/json"

	"github.com/andybalholm/cascadia"

	"github.com/aluiziolira/speisekarte-scraper/dom"
)

var ldJSONSelector = cascadia.MustCompile(`script[type="application/ld+json"]`)

// businessTypes are the JSON-LD @type values describing a restaurant.
var businessTypes = map[string]struct{}{
	"Restaurant":    {},
	"LocalBusiness": {},
}

// ReadStructuredData returns the first Restaurant or LocalBusiness entry
// found in the page's JSON-LD blocks, in document order. Blocks that are not
// valid JSON are skipped.
func ReadStructuredData(doc dom.Node) map[string]any {
	for _, script := range doc.FindMatcher(ldJSONSelector) {
		raw := script.Text()
		if raw == "" {
			continue
		}
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			continue
		}
		switch v := data.(type) {
		case []any:
			for _, item := range v {
				if entry, ok := item.(map[string]any); ok && isBusiness(entry) {
					return entry
				}
			}
		case map[string]any:
			if isBusiness(v) {
				return v
			}
		}
	}
	return nil
}

func isBusiness(entry map[string]any) bool {
	switch t := entry["@type"].(type) {
	case string:
		_, ok := businessTypes[t]
		return ok
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				if _, hit := businessTypes[s]; hit {
					return true
				}
			}
		}
	}
	return false
}

// stringField reads a string value from a JSON-LD object.
func stringField(entry map[string]any, key string) string {
	s, _ := entry[key].(string)
	return Normalize(s)
}
