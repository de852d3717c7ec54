package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL          string        `yaml:"base_url"`
	Letters          string        `yaml:"letters"`
	MaxDirPages      int           `yaml:"max_dir_pages"`
	MaxCityPages     int           `yaml:"max_city_pages"`
	Parallelism      int           `yaml:"parallelism"`
	Delay            time.Duration `yaml:"delay"`
	RandomDelay      time.Duration `yaml:"random_delay"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
	RetryBackoffMax  time.Duration `yaml:"retry_backoff_max"`
	OutputFile       string        `yaml:"output_file"`
	OutputFormat     string        `yaml:"output_format"` // csv, json, dual, sqlite or postgres
	DatabaseURL      string        `yaml:"database_url"`  // postgres only
	UserAgent        string        `yaml:"user_agent"`
	AcceptLanguage   string        `yaml:"accept_language"`
	Verbose          bool          `yaml:"verbose"`
	RespectRobotsTxt bool          `yaml:"respect_robots_txt"`
	MetricsAddr      string        `yaml:"metrics_addr"`

	PipelineBufferSize int `yaml:"pipeline_buffer_size"`
	BatchSize          int `yaml:"batch_size"`
	DedupeMaxSize      int `yaml:"dedupe_max_size"`

	// VocabularyFile optionally replaces the German site labels.
	VocabularyFile string `yaml:"vocabulary_file"`
}

// DefaultConfig returns polite defaults for speisekarte.de.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "https://www.speisekarte.de",
		Letters:            "abcdefghijklmnopqrstuvwxyz",
		MaxDirPages:        50,
		MaxCityPages:       200,
		Parallelism:        1,
		Delay:              time.Second,
		RandomDelay:        0,
		Timeout:            30 * time.Second,
		MaxRetries:         6,
		RetryBackoff:       time.Second,
		RetryBackoffMax:    20 * time.Second,
		OutputFile:         "output/restaurants.csv",
		OutputFormat:       "csv",
		UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
		AcceptLanguage:     "de-DE,de;q=0.9,en-US;q=0.8,en;q=0.7",
		Verbose:            false,
		RespectRobotsTxt:   true,
		PipelineBufferSize: 512,
		BatchSize:          64,
		DedupeMaxSize:      100000,
	}
}

// LetterList returns the configured directory letters, lower-cased and with
// non-letters dropped.
func (c *Config) LetterList() []string {
	var out []string
	for _, r := range strings.ToLower(c.Letters) {
		if r >= 'a' && r <= 'z' {
			out = append(out, string(r))
		}
	}
	return out
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if len(c.LetterList()) == 0 {
		return fmt.Errorf("letters must contain at least one of a-z")
	}
	if c.MaxDirPages <= 0 {
		return fmt.Errorf("max directory pages must be positive")
	}
	if c.MaxCityPages <= 0 {
		return fmt.Errorf("max city pages must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	switch c.OutputFormat {
	case "csv", "json", "dual", "sqlite":
		if c.OutputFile == "" {
			return fmt.Errorf("output file cannot be empty")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for postgres output")
		}
	default:
		return fmt.Errorf("output format must be csv, json, dual, sqlite, or postgres")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}

	return nil
}
