package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/speisekarte-scraper/config"
	"github.com/aluiziolira/speisekarte-scraper/models"
	"github.com/aluiziolira/speisekarte-scraper/pipeline"
	"github.com/aluiziolira/speisekarte-scraper/scraper"
)

// NewCrawlCmd creates the crawl subcommand.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the city directory and write restaurant records",
		Long: `Crawl walks the city directory for each configured letter, every city's
paginated restaurant listing and each restaurant's detail page. Records are
validated, de-duplicated by restaurant URL and written in batches.

Examples:
  speisekarte crawl --letters a --city-pages 2
  speisekarte crawl --format sqlite --output out/restaurants.db
  SCRAPER_DATABASE_URL=postgres://... speisekarte crawl --format postgres`,
		RunE: runCrawl,
	}

	defaults := config.DefaultConfig()
	flags := cmd.Flags()
	flags.StringP("config", "c", "", "Path to a YAML config file")
	flags.String("env-file", ".env", "Dotenv file loaded before reading SCRAPER_* variables")
	flags.String("base-url", defaults.BaseURL, "Site origin to crawl")
	flags.String("letters", defaults.Letters, "Directory letters to crawl")
	flags.Int("dir-pages", defaults.MaxDirPages, "Maximum directory pages per letter")
	flags.Int("city-pages", defaults.MaxCityPages, "Maximum listing pages per city")
	flags.IntP("parallel", "p", defaults.Parallelism, "Number of concurrent requests")
	flags.Duration("delay", defaults.Delay, "Delay between requests")
	flags.Duration("random-delay", defaults.RandomDelay, "Random jitter added to delay")
	flags.Duration("timeout", defaults.Timeout, "HTTP request timeout")
	flags.Int("max-retries", defaults.MaxRetries, "Maximum retry attempts per URL")
	flags.Duration("retry-backoff", defaults.RetryBackoff, "Initial retry backoff")
	flags.Duration("retry-backoff-max", defaults.RetryBackoffMax, "Maximum retry backoff")
	flags.Bool("respect-robots", defaults.RespectRobotsTxt, "Respect robots.txt directives")
	flags.StringP("output", "o", defaults.OutputFile, "Output file path")
	flags.StringP("format", "f", defaults.OutputFormat, "Output format: csv, json, dual, sqlite or postgres")
	flags.String("database-url", "", "PostgreSQL connection string for --format postgres")
	flags.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	flags.String("vocabulary", "", "YAML file overriding the page label vocabulary")

	return cmd
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	cfg, err := buildCrawlConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, level := newLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	slog.Info("starting crawl",
		slog.String("base_url", cfg.BaseURL),
		slog.String("letters", cfg.Letters),
		slog.Int("workers", cfg.Parallelism),
		slog.String("format", cfg.OutputFormat),
	)

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	writer, err := pipeline.NewWriter(cfg)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	metricsServer := startMetricsServer(cfg.MetricsAddr, s.Metrics)
	defer shutdownMetricsServer(metricsServer)

	p := pipeline.NewPipeline(ctx, writer, cfg)
	p.Start(cfg.Parallelism)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	startTime := time.Now()
	result, err := s.Run(ctx, p)
	if err != nil {
		_ = p.Close()
		return fmt.Errorf("scraping failed: %w", err)
	}

	if err := p.Close(); err != nil {
		return fmt.Errorf("pipeline shutdown failed: %w", err)
	}

	if err := writer.Validate(); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}

	printSummary(cmd.OutOrStdout(), result, time.Since(startTime), outputTarget(cfg), p.GetMetrics())
	return nil
}

// buildCrawlConfig layers defaults, the config file, the environment and
// explicitly set flags, in that order.
func buildCrawlConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	cfg := config.DefaultConfig()

	configPath, _ := flags.GetString("config")
	if path := config.FindConfigFile(configPath); path != "" {
		if err := config.LoadFile(path, cfg); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else if configPath != "" {
		return nil, fmt.Errorf("load config %s: %w", configPath, config.ErrConfigNotFound)
	}

	envFile, _ := flags.GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	strs := map[string]*string{
		"base-url":     &cfg.BaseURL,
		"letters":      &cfg.Letters,
		"output":       &cfg.OutputFile,
		"format":       &cfg.OutputFormat,
		"database-url": &cfg.DatabaseURL,
		"metrics-addr": &cfg.MetricsAddr,
		"vocabulary":   &cfg.VocabularyFile,
	}
	for name, dst := range strs {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	ints := map[string]*int{
		"dir-pages":   &cfg.MaxDirPages,
		"city-pages":  &cfg.MaxCityPages,
		"parallel":    &cfg.Parallelism,
		"max-retries": &cfg.MaxRetries,
	}
	for name, dst := range ints {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetInt(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	durations := map[string]*time.Duration{
		"delay":             &cfg.Delay,
		"random-delay":      &cfg.RandomDelay,
		"timeout":           &cfg.Timeout,
		"retry-backoff":     &cfg.RetryBackoff,
		"retry-backoff-max": &cfg.RetryBackoffMax,
	}
	for name, dst := range durations {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetDuration(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if flags.Changed("respect-robots") {
		v, err := flags.GetBool("respect-robots")
		if err != nil {
			return err
		}
		cfg.RespectRobotsTxt = v
	}
	if getVerboseFlag(cmd) {
		cfg.Verbose = true
	}
	return nil
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func shutdownMetricsServer(server *http.Server) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

// outputTarget names where records went without leaking database credentials.
func outputTarget(cfg *config.Config) string {
	if cfg.OutputFormat == "postgres" {
		return "postgres table " + pipeline.TableName
	}
	return cfg.OutputFile
}

func printSummary(w io.Writer, result *models.ScraperResult, duration time.Duration, output string, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Crawl complete")

	written := int64(0)
	if processed, ok := metrics["processed_records"].(int64); ok {
		written = processed
	}
	recordsPerSec := 0.0
	if duration.Seconds() > 0 {
		recordsPerSec = float64(written) / duration.Seconds()
	}

	fmt.Fprintf(w, "  Records:       %d emitted, %d written\n", result.TotalCount, written)
	fmt.Fprintf(w, "  Enriched:      %d\n", result.DetailCount)
	fmt.Fprintf(w, "  Pages:         %d\n", result.PageCount)
	successRate := 0.0
	if result.RequestCount > 0 {
		successRate = float64(result.RequestCount-result.ErrorCount) / float64(result.RequestCount) * 100
	}
	fmt.Fprintf(w, "  Success rate:  %.2f%%\n", successRate)
	fmt.Fprintf(w, "  Errors:        %d\n", result.ErrorCount)
	fmt.Fprintf(w, "  Retries:       %d\n", result.RetryCount)
	fmt.Fprintf(w, "  Failed URLs:   %d\n", len(result.FailedURLs))
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(w, "  Error types:   %v\n", result.ErrorsByType)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Fprintf(w, "  Validation:    %v\n", valErrors)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", duration)
	fmt.Fprintf(w, "  Records/sec:   %.2f\n", recordsPerSec)
	fmt.Fprintf(w, "  Output:        %s\n", output)
	fmt.Fprintln(w, separator)
}
