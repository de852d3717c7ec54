package parser

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Vocabulary holds the site-local words the extractors anchor on. Swapping it
// retargets the extractors to another locale without touching traversal.
type Vocabulary struct {
	// StatusKeywords mark opening-state badges ("geöffnet", "jetzt", ...)
	// that share CSS classes with real descriptions.
	StatusKeywords       []string `yaml:"status_keywords"`
	RecommendationMarker string   `yaml:"recommendation_marker"`
	FavouriteDishLabel   string   `yaml:"favourite_dish_label"`
	Weekdays             []string `yaml:"weekdays"`
	ClosedDayMarker      string   `yaml:"closed_day_marker"`
	OpeningHoursLabel    string   `yaml:"opening_hours_label"`
	ServicesLabel        string   `yaml:"services_label"`
	AddressLabels        []string `yaml:"address_labels"`
	// RatingPhrase follows the numeric rating in running text.
	RatingPhrase string `yaml:"rating_phrase"`
}

// GermanVocabulary returns the labels used by speisekarte.de.
func GermanVocabulary() Vocabulary {
	return Vocabulary{
		StatusKeywords:       []string{"geöffnet", "geschlossen", "jetzt"},
		RecommendationMarker: "Empfehlungen",
		FavouriteDishLabel:   "Beliebtestes Gericht",
		Weekdays:             []string{"Montag", "Dienstag", "Mittwoch", "Donnerstag", "Freitag", "Samstag", "Sonntag", "Feiertag"},
		ClosedDayMarker:      "Ruhetag",
		OpeningHoursLabel:    "Öffnungszeiten",
		ServicesLabel:        "Service",
		AddressLabels:        []string{"Karte & Adresse", "Adresse"},
		RatingPhrase:         "von 5 möglichen Sternen",
	}
}

// LoadVocabulary decodes a YAML vocabulary. Keys missing from the document
// keep their German defaults.
func LoadVocabulary(r io.Reader) (Vocabulary, error) {
	v := GermanVocabulary()
	if err := yaml.NewDecoder(r).Decode(&v); err != nil && err != io.EOF {
		return Vocabulary{}, fmt.Errorf("decode vocabulary: %w", err)
	}
	if err := v.Validate(); err != nil {
		return Vocabulary{}, err
	}
	return v, nil
}

// LoadVocabularyFile reads a YAML vocabulary from path. An empty path yields
// the German vocabulary.
func LoadVocabularyFile(path string) (Vocabulary, error) {
	if path == "" {
		return GermanVocabulary(), nil
	}
	f, err := os.Open(path) //nolint:gosec // user supplied vocabulary path
	if err != nil {
		return Vocabulary{}, fmt.Errorf("open vocabulary: %w", err)
	}
	defer f.Close()
	vocab, err := LoadVocabulary(f)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("load vocabulary %s: %w", path, err)
	}
	return vocab, nil
}

// Validate rejects vocabularies the extractors cannot compile patterns from.
func (v Vocabulary) Validate() error {
	switch {
	case len(v.StatusKeywords) == 0:
		return fmt.Errorf("vocabulary: status keywords cannot be empty")
	case strings.TrimSpace(v.RecommendationMarker) == "":
		return fmt.Errorf("vocabulary: recommendation marker cannot be empty")
	case len(v.Weekdays) == 0:
		return fmt.Errorf("vocabulary: weekdays cannot be empty")
	case strings.TrimSpace(v.RatingPhrase) == "":
		return fmt.Errorf("vocabulary: rating phrase cannot be empty")
	}
	return nil
}

// patterns are the regular expressions derived from one vocabulary.
type patterns struct {
	status         *regexp.Regexp
	statusOrMarker *regexp.Regexp
	recommendation *regexp.Regexp
	weekday        *regexp.Regexp
	rating         *regexp.Regexp
}

func compilePatterns(v Vocabulary) (patterns, error) {
	if err := v.Validate(); err != nil {
		return patterns{}, err
	}
	marker := regexp.QuoteMeta(v.RecommendationMarker)
	status := alternation(v.StatusKeywords)

	var words []string
	for _, w := range strings.Fields(v.RatingPhrase) {
		words = append(words, regexp.QuoteMeta(w))
	}

	p := patterns{}
	var err error
	if p.status, err = regexp.Compile(`(?i)\b(` + status + `)\b`); err != nil {
		return patterns{}, fmt.Errorf("compile status pattern: %w", err)
	}
	if p.statusOrMarker, err = regexp.Compile(`(?i)\b(` + status + `|` + marker + `)\b`); err != nil {
		return patterns{}, fmt.Errorf("compile status pattern: %w", err)
	}
	if p.recommendation, err = regexp.Compile(`(?i)(\d[\d.\s]*)\s*` + marker); err != nil {
		return patterns{}, fmt.Errorf("compile recommendation pattern: %w", err)
	}
	if p.weekday, err = regexp.Compile(`(?i)^(` + alternation(v.Weekdays) + `)`); err != nil {
		return patterns{}, fmt.Errorf("compile weekday pattern: %w", err)
	}
	if p.rating, err = regexp.Compile(`(?i)(\d+(?:[.,]\d+)?)\s*` + strings.Join(words, `\s*`)); err != nil {
		return patterns{}, fmt.Errorf("compile rating pattern: %w", err)
	}
	return p, nil
}

func alternation(words []string) string {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	return strings.Join(quoted, "|")
}
