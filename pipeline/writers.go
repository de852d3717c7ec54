package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/speisekarte-scraper/models"
)

// outputFile is an output file plus the number of records appended to it.
// Callers hold mu around every use.
type outputFile struct {
	mu     sync.Mutex
	format string
	file   *os.File
	rows   int
}

func openOutputFile(format, filename string) (*outputFile, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename) //nolint:gosec // user supplied output path
	if err != nil {
		return nil, fmt.Errorf("create %s file: %w", format, err)
	}
	return &outputFile{format: format, file: f}, nil
}

// requireRows fails when nothing but an optional header was written.
func (o *outputFile) requireRows() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.rows == 0 {
		return fmt.Errorf("%s file %s has no records", o.format, o.file.Name())
	}
	return nil
}

// CSVWriter writes records to CSV with a Columns header.
type CSVWriter struct {
	*outputFile
	csv *csv.Writer
}

// NewCSVWriter creates filename and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	out, err := openOutputFile("csv", filename)
	if err != nil {
		return nil, err
	}

	cw := &CSVWriter{outputFile: out, csv: csv.NewWriter(out.file)}
	if err := cw.flushRow(Columns); err != nil {
		out.file.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return cw, nil
}

func (cw *CSVWriter) flushRow(row []string) error {
	if err := cw.csv.Write(row); err != nil {
		return err
	}
	cw.csv.Flush()
	return cw.csv.Error()
}

// Write appends one row per record and flushes.
func (cw *CSVWriter) Write(records []*models.Restaurant) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, rec := range records {
		if err := cw.csv.Write(csvRow(rec)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
		cw.rows++
	}
	cw.csv.Flush()
	if err := cw.csv.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.csv.Flush()
	if err := cw.csv.Error(); err != nil {
		cw.file.Close()
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures at least one row was written below the header.
func (cw *CSVWriter) Validate() error {
	return cw.requireRows()
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	*outputFile
	buf *bufio.Writer
	enc *json.Encoder
}

// NewJSONWriter creates filename for JSON lines output.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	out, err := openOutputFile("json", filename)
	if err != nil {
		return nil, err
	}

	buf := bufio.NewWriter(out.file)
	enc := json.NewEncoder(buf)
	// Restaurant names and dishes carry "&" often enough to keep it readable.
	enc.SetEscapeHTML(false)
	return &JSONWriter{outputFile: out, buf: buf, enc: enc}, nil
}

// Write appends one line per record and flushes.
func (jw *JSONWriter) Write(records []*models.Restaurant) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, rec := range records {
		if err := jw.enc.Encode(rec); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		jw.rows++
	}
	if err := jw.buf.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.buf.Flush(); err != nil {
		jw.file.Close()
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures at least one record was written.
func (jw *JSONWriter) Validate() error {
	return jw.requireRows()
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
