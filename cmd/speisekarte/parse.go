package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/speisekarte-scraper/dom"
	"github.com/aluiziolira/speisekarte-scraper/models"
	"github.com/aluiziolira/speisekarte-scraper/parser"
)

const (
	parseKindListing = "listing"
	parseKindDetail  = "detail"
)

// NewParseCmd creates the parse subcommand.
func NewParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse [flags] FILE...",
		Short: "Extract records from saved listing or detail pages",
		Long: `Parse runs the extractors over HTML files already on disk and prints one
JSON record per line, in input order. No network access is made.

A listing file yields one record per card. A detail file yields the fields
found on a restaurant page.

Every record needs a city: listing files take it from --page-url, detail
files from --city. Records failing validation abort the run.

Examples:
  speisekarte parse --page-url https://www.speisekarte.de/aachen/restaurants aachen.html
  speisekarte parse --kind detail --city Aachen restaurant.html`,
		Args: cobra.MinimumNArgs(1),
		RunE: runParse,
	}

	flags := cmd.Flags()
	flags.StringP("kind", "k", parseKindListing, "Page kind: listing or detail")
	flags.String("page-url", "", "URL the page was fetched from; required for listing pages")
	flags.String("city", "", "City of the records; required for detail pages, overrides the page URL city")
	flags.String("base-url", parser.DefaultBaseURL, "Origin relative restaurant links resolve against")
	flags.String("vocabulary", "", "YAML file overriding the page label vocabulary")
	flags.IntP("jobs", "j", runtime.NumCPU(), "Files parsed concurrently")

	return cmd
}

func runParse(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	opts := parseOptions{}
	opts.kind, _ = flags.GetString("kind")
	opts.pageURL, _ = flags.GetString("page-url")
	opts.city, _ = flags.GetString("city")
	baseURL, _ := flags.GetString("base-url")
	vocabFile, _ := flags.GetString("vocabulary")
	jobs, _ := flags.GetInt("jobs")

	if err := opts.validate(); err != nil {
		return err
	}

	vocab, err := parser.LoadVocabularyFile(vocabFile)
	if err != nil {
		return err
	}
	extractor, err := parser.NewExtractor(baseURL, vocab)
	if err != nil {
		return err
	}

	results := make([][]*models.Restaurant, len(args))
	g := new(errgroup.Group)
	g.SetLimit(max(jobs, 1))
	for i, path := range args {
		g.Go(func() error {
			records, err := parseFile(extractor, opts, path)
			if err != nil {
				return err
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return writeRecords(cmd.OutOrStdout(), results)
}

type parseOptions struct {
	kind    string
	pageURL string
	city    string
}

func (o parseOptions) validate() error {
	switch o.kind {
	case parseKindListing:
		if o.pageURL == "" {
			return fmt.Errorf("--page-url is required for listing pages")
		}
	case parseKindDetail:
		if strings.TrimSpace(o.city) == "" {
			return fmt.Errorf("--city is required for detail pages")
		}
	default:
		return fmt.Errorf("unknown page kind %q (want %s or %s)", o.kind, parseKindListing, parseKindDetail)
	}
	return nil
}

func parseFile(extractor *parser.Extractor, opts parseOptions, path string) ([]*models.Restaurant, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := dom.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var records []*models.Restaurant
	if opts.kind == parseKindDetail {
		rec := extractor.EnrichDetail(doc, &models.Restaurant{})
		if opts.pageURL != "" {
			rec.RestaurantURL = &opts.pageURL
		}
		records = []*models.Restaurant{rec}
	} else {
		records = extractor.ParseListingPage(doc, opts.pageURL).Records
	}

	for _, rec := range records {
		if opts.city != "" {
			rec.City = parser.Normalize(opts.city)
		}
		if err := parser.ValidateRestaurant(rec); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return records, nil
}

func writeRecords(w io.Writer, results [][]*models.Restaurant) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, records := range results {
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("write record: %w", err)
			}
		}
	}
	return nil
}
