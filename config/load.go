package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const (
	// AppName names the XDG config directory.
	AppName = "speisekarte"
	// DefaultConfigFile is looked up in the working directory and the XDG
	// config directory.
	DefaultConfigFile = "speisekarte.yaml"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "SCRAPER_"
)

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// XDGConfigDir returns the per-user config directory.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// FindConfigFile returns configPath when it exists, otherwise the first of
// ./speisekarte.yaml and the XDG config file that exists. Empty when none do.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	candidate := filepath.Join(XDGConfigDir(), DefaultConfigFile)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

// LoadFile overlays the YAML file at path onto cfg. Keys missing from the
// file keep their current values.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path) //nolint:gosec // user supplied config path
	if err != nil {
		if os.IsNotExist(err) {
			return ErrConfigNotFound
		}
		return err
	}
	defer f.Close()

	if err := Decode(f, cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Decode overlays a YAML document onto cfg. Durations use Go syntax ("1500ms").
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// EnvString returns the trimmed value of key and whether it was set.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// EnvBool parses key with strconv.ParseBool.
func EnvBool(key string) (bool, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", key, err)
	}
	return b, true, nil
}

// EnvDuration parses key as a Go duration. Bare integers are milliseconds.
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond, true, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}

// ApplyEnv overlays SCRAPER_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	strs := map[string]*string{
		"BASE_URL":        &cfg.BaseURL,
		"LETTERS":         &cfg.Letters,
		"OUTPUT":          &cfg.OutputFile,
		"FORMAT":          &cfg.OutputFormat,
		"DATABASE_URL":    &cfg.DatabaseURL,
		"USER_AGENT":      &cfg.UserAgent,
		"ACCEPT_LANGUAGE": &cfg.AcceptLanguage,
		"METRICS_ADDR":    &cfg.MetricsAddr,
		"VOCABULARY":      &cfg.VocabularyFile,
	}
	for name, dst := range strs {
		if v, ok := EnvString(EnvPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"DIR_PAGES":   &cfg.MaxDirPages,
		"CITY_PAGES":  &cfg.MaxCityPages,
		"PARALLEL":    &cfg.Parallelism,
		"MAX_RETRIES": &cfg.MaxRetries,
		"BUFFER_SIZE": &cfg.PipelineBufferSize,
		"BATCH_SIZE":  &cfg.BatchSize,
		"DEDUPE_SIZE": &cfg.DedupeMaxSize,
	}
	for name, dst := range ints {
		v, ok, err := EnvInt(EnvPrefix + name)
		if err != nil {
			return err
		}
		if ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"DELAY":             &cfg.Delay,
		"RANDOM_DELAY":      &cfg.RandomDelay,
		"TIMEOUT":           &cfg.Timeout,
		"RETRY_BACKOFF":     &cfg.RetryBackoff,
		"RETRY_BACKOFF_MAX": &cfg.RetryBackoffMax,
	}
	for name, dst := range durations {
		v, ok, err := EnvDuration(EnvPrefix + name)
		if err != nil {
			return err
		}
		if ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"VERBOSE":        &cfg.Verbose,
		"RESPECT_ROBOTS": &cfg.RespectRobotsTxt,
	}
	for name, dst := range bools {
		v, ok, err := EnvBool(EnvPrefix + name)
		if err != nil {
			return err
		}
		if ok {
			*dst = v
		}
	}

	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	return nil
}
