package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aluiziolira/speisekarte-scraper/models"
)

// MultiWriter fans every batch out to several named writers in order.
type MultiWriter struct {
	mu      sync.Mutex
	names   []string
	writers []OutputWriter
}

// Add appends a writer. Errors from it are prefixed with name.
func (mw *MultiWriter) Add(name string, w OutputWriter) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.names = append(mw.names, name)
	mw.writers = append(mw.writers, w)
}

// NewDualWriter writes CSV and JSON lines side by side. The JSONL path
// defaults to the CSV path with a .jsonl extension.
func NewDualWriter(csvFilename, jsonFilename string) (*MultiWriter, error) {
	if jsonFilename == "" {
		jsonFilename = strings.TrimSuffix(csvFilename, ".csv") + ".jsonl"
	}

	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("create csv writer: %w", err)
	}
	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("create json writer: %w", err)
	}

	mw := &MultiWriter{}
	mw.Add("csv", csvWriter)
	mw.Add("json", jsonWriter)
	return mw, nil
}

// Write stops at the first writer that fails.
func (mw *MultiWriter) Write(records []*models.Restaurant) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	for i, w := range mw.writers {
		if err := w.Write(records); err != nil {
			return fmt.Errorf("%s write: %w", mw.names[i], err)
		}
	}
	return nil
}

// Close closes every writer and joins their errors.
func (mw *MultiWriter) Close() error {
	return mw.each("close", OutputWriter.Close)
}

func (mw *MultiWriter) Validate() error {
	return mw.each("validate", OutputWriter.Validate)
}

func (mw *MultiWriter) each(op string, fn func(OutputWriter) error) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for i, w := range mw.writers {
		if err := fn(w); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", mw.names[i], op, err))
		}
	}
	return errors.Join(errs...)
}
