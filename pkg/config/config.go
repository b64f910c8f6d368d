// Package config loads engine configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for schemalens-engine. Everything comes from
// environment variables; unknown variables are ignored. DATABASE_URL is the
// only required setting.
type Config struct {
	// DatabaseURL selects the target database. The scheme picks the adapter
	// (postgres://, mysql://, sqlserver://, sqlite://).
	DatabaseURL string `env:"DATABASE_URL"`

	// Version is injected at build time, not from the environment.
	Version string `env:"-"`

	// Execution budgets.
	RowLimit     int `env:"ROW_LIMIT" env-default:"200"`
	MaxCellChars int `env:"MAX_CELL_CHARS" env-default:"120"`

	// Profiling budgets.
	SampleRows               int `env:"SAMPLE_ROWS" env-default:"100"`
	SampleTimeoutSeconds     int `env:"SAMPLE_TIMEOUT_SECONDS" env-default:"5"`
	ValueConstraintThreshold int `env:"VALUE_CONSTRAINT_THRESHOLD" env-default:"20"`

	// Graph partitioning.
	MinAreaSize       int  `env:"MIN_AREA_SIZE" env-default:"3"`
	MergeArchiveAreas bool `env:"MERGE_ARCHIVE_AREAS" env-default:"true"`

	// Fast-start cap; tables beyond it are picked up by enrichment.
	MaxTablesFastStart int `env:"MAX_TABLES_FAST_START" env-default:"300"`

	// Periodic schema drift check; zero disables it.
	DriftCheckSeconds int `env:"DRIFT_CHECK_SECONDS" env-default:"300"`

	// Embeddings (optional; retrieval falls back to lexical when unset).
	EmbeddingModel        string `env:"EMBEDDING_MODEL" env-default:""`
	EmbeddingBaseURL      string `env:"EMBEDDING_BASE_URL" env-default:""`
	EmbeddingAPIKey       string `env:"EMBEDDING_API_KEY" env-default:""`
	MaxColsForEmbeddings  int    `env:"MAX_COLS_FOR_EMBEDDINGS" env-default:"20"`

	// Schema filtering.
	IncludeSchemasStr string   `env:"INCLUDE_SCHEMAS" env-default:""`
	ExcludeSchemasStr string   `env:"EXCLUDE_SCHEMAS" env-default:""`
	IncludeSchemas    []string `env:"-"`
	ExcludeSchemas    []string `env:"-"`

	// Optional schema card cache directory; empty disables persistence.
	CacheDir string `env:"CACHE_DIR" env-default:""`

	// DebugTools registers find_tables/find_columns when true.
	DebugTools bool `env:"DEBUG_TOOLS" env-default:"false"`

	// HTTPAddr switches transport to streamable HTTP when set (e.g. ":8080").
	// Empty means stdio.
	HTTPAddr string `env:"HTTP_ADDR" env-default:""`

	LogLevel string `env:"LOG_LEVEL" env-default:"info"`
}

// Load reads configuration from environment variables. The version parameter
// is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	cfg.parseComplexFields()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) parseComplexFields() {
	c.IncludeSchemas = splitList(c.IncludeSchemasStr)
	c.ExcludeSchemas = splitList(c.ExcludeSchemasStr)
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.RowLimit <= 0 {
		return fmt.Errorf("ROW_LIMIT must be positive, got %d", c.RowLimit)
	}
	if c.MaxCellChars <= 0 {
		return fmt.Errorf("MAX_CELL_CHARS must be positive, got %d", c.MaxCellChars)
	}
	if c.SampleRows < 0 {
		return fmt.Errorf("SAMPLE_ROWS must not be negative, got %d", c.SampleRows)
	}
	return nil
}

// SampleTimeout returns the per-table sampling deadline.
func (c *Config) SampleTimeout() time.Duration {
	return time.Duration(c.SampleTimeoutSeconds) * time.Second
}

// DriftCheckInterval returns the schema drift check period; zero or negative
// disables the check.
func (c *Config) DriftCheckInterval() time.Duration {
	return time.Duration(c.DriftCheckSeconds) * time.Second
}

// EmbeddingsConfigured reports whether an encoder should be constructed.
func (c *Config) EmbeddingsConfigured() bool {
	return c.EmbeddingModel != ""
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
