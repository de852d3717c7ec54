// Package parser recovers restaurant records from speisekarte.de listing and
// detail pages. Every extractor is a pure function of the document it is
// given: a missing element yields a nil field, never an error.
package parser

import (
	"fmt"
	"net/url"
)

// DefaultBaseURL is the origin relative restaurant links are resolved against.
const DefaultBaseURL = "https://www.speisekarte.de"

// Extractor binds the extraction routines to a site origin and a vocabulary.
// It is immutable and safe for concurrent use.
type Extractor struct {
	base     *url.URL
	vocab    Vocabulary
	patterns patterns
}

var defaultExtractor = MustNewExtractor(DefaultBaseURL, GermanVocabulary())

// NewExtractor compiles the vocabulary and validates the base origin.
func NewExtractor(baseURL string, vocab Vocabulary) (*Extractor, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", baseURL)
	}
	p, err := compilePatterns(vocab)
	if err != nil {
		return nil, err
	}
	return &Extractor{base: base, vocab: vocab, patterns: p}, nil
}

// MustNewExtractor is NewExtractor for package-level defaults.
func MustNewExtractor(baseURL string, vocab Vocabulary) *Extractor {
	e, err := NewExtractor(baseURL, vocab)
	if err != nil {
		panic(err)
	}
	return e
}

// Default returns the extractor for speisekarte.de with German labels.
func Default() *Extractor {
	return defaultExtractor
}

// absoluteURL resolves href against the site origin.
func (e *Extractor) absoluteURL(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	return e.base.ResolveReference(ref).String()
}
