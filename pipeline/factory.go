package pipeline

import (
	"fmt"

	"github.com/aluiziolira/speisekarte-scraper/config"
)

// NewWriter builds the writer for cfg.OutputFormat.
func NewWriter(cfg *config.Config) (OutputWriter, error) {
	switch cfg.OutputFormat {
	case "csv":
		return NewCSVWriter(cfg.OutputFile)
	case "json":
		return NewJSONWriter(cfg.OutputFile)
	case "dual":
		return NewDualWriter(cfg.OutputFile, "")
	case "sqlite":
		return NewSQLiteWriter(cfg.OutputFile)
	case "postgres":
		return NewPostgresWriter(cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}
}
