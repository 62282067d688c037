// Package config loads and validates MAMA's configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all engine configuration.
type Config struct {
	// Storage settings.
	DBPath string // Path to the SQLite database file. "" selects an in-memory DB (tests only).

	// Auth settings.
	AuthToken string // Parsed only; this module has no adapter layer and nothing checks the token.

	// Feature flags.
	EnableV1_1 bool // Governance + checkpoint + reporting surface (§1 "v1.1").

	// Embedding provider settings.
	EmbeddingProvider   string // "hash", "openai", "ollama", or "noop"
	OpenAIAPIKey        string
	EmbeddingModel      string
	EmbeddingDimensions int
	OllamaURL           string
	OllamaModel         string

	// Search tuning.
	SearchCacheSize int           // Parsed and validated only; search has no query cache.
	SearchCacheTTL  time.Duration // Parsed and validated only; search has no query cache.
	SearchTimeout   time.Duration // Parsed and validated only; Search applies no timeout of its own.

	// Graph expansion tuning.
	ExpandDefaultDepth int // Parsed and validated only; callers of the graph expander pass their own depth.
	ExpandMaxDepth     int // Parsed and validated only; the expander clamps depth to graph.MaxDepth (5).

	// Governance tuning.
	BackupDir             string        // Directory for link backup JSON files.
	BackupMaxAge          time.Duration // How old a backup may be before ExecuteLinkCleanup refuses to run (ErrNoRecentBackup).
	AutoLinkConfidenceMin float64       // Parsed and range-checked only; no component reads it.

	// Observability.
	MetricsEnabled bool
	ServiceName    string
	LogLevel       string
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if any environment variable contains an unparseable value.
// Missing variables use sensible defaults; only malformed values are rejected.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		DBPath:            envStr("MAMA_DB_PATH", "mama.db"),
		AuthToken:         envStr("MAMA_AUTH_TOKEN", ""),
		EmbeddingProvider: envStr("MAMA_EMBEDDING_PROVIDER", "hash"),
		OpenAIAPIKey:      envStr("OPENAI_API_KEY", ""),
		EmbeddingModel:    envStr("MAMA_EMBEDDING_MODEL", "text-embedding-3-small"),
		OllamaURL:         envStr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:       envStr("OLLAMA_MODEL", "mxbai-embed-large"),
		ServiceName:       envStr("MAMA_SERVICE_NAME", "mama"),
		LogLevel:          envStr("MAMA_LOG_LEVEL", "info"),
		BackupDir:         envStr("MAMA_BACKUP_DIR", "mama_backups"),
	}

	cfg.EnableV1_1, errs = collectBool(errs, "MAMA_ENABLE_V1_1", true)
	cfg.MetricsEnabled, errs = collectBool(errs, "MAMA_METRICS_ENABLED", true)

	cfg.EmbeddingDimensions, errs = collectInt(errs, "MAMA_EMBEDDING_DIMENSIONS", 256)
	cfg.SearchCacheSize, errs = collectInt(errs, "MAMA_SEARCH_CACHE_SIZE", 100)
	cfg.ExpandDefaultDepth, errs = collectInt(errs, "MAMA_EXPAND_DEFAULT_DEPTH", 2)
	cfg.ExpandMaxDepth, errs = collectInt(errs, "MAMA_EXPAND_MAX_DEPTH", 6)

	cfg.SearchCacheTTL, errs = collectDuration(errs, "MAMA_SEARCH_CACHE_TTL", 5*time.Minute)
	cfg.SearchTimeout, errs = collectDuration(errs, "MAMA_SEARCH_TIMEOUT", 500*time.Millisecond)
	cfg.BackupMaxAge, errs = collectDuration(errs, "MAMA_BACKUP_MAX_AGE", 24*time.Hour)

	var confidencePermille int
	confidencePermille, errs = collectInt(errs, "MAMA_AUTO_LINK_CONFIDENCE_MIN_PERMILLE", 700)
	cfg.AutoLinkConfidenceMin = float64(confidencePermille) / 1000.0

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return Config{}, fmt.Errorf("config: invalid environment variables:\n  %s", strings.Join(msgs, "\n  "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// collectInt parses an int env var, appending any error to the accumulator.
func collectInt(errs []error, key string, fallback int) (int, []error) {
	v, err := envInt(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectBool parses a bool env var, appending any error to the accumulator.
func collectBool(errs []error, key string, fallback bool) (bool, []error) {
	v, err := envBool(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectDuration parses a duration env var, appending any error to the accumulator.
func collectDuration(errs []error, key string, fallback time.Duration) (time.Duration, []error) {
	v, err := envDuration(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	var errs []error

	if c.EmbeddingDimensions <= 0 {
		errs = append(errs, errors.New("config: MAMA_EMBEDDING_DIMENSIONS must be positive"))
	}
	if c.SearchCacheSize <= 0 {
		errs = append(errs, errors.New("config: MAMA_SEARCH_CACHE_SIZE must be positive"))
	}
	if c.SearchCacheTTL <= 0 {
		errs = append(errs, errors.New("config: MAMA_SEARCH_CACHE_TTL must be positive"))
	}
	if c.SearchTimeout <= 0 {
		errs = append(errs, errors.New("config: MAMA_SEARCH_TIMEOUT must be positive"))
	}
	if c.ExpandDefaultDepth <= 0 {
		errs = append(errs, errors.New("config: MAMA_EXPAND_DEFAULT_DEPTH must be positive"))
	}
	if c.ExpandMaxDepth < c.ExpandDefaultDepth {
		errs = append(errs, errors.New("config: MAMA_EXPAND_MAX_DEPTH must be >= MAMA_EXPAND_DEFAULT_DEPTH"))
	}
	if c.BackupMaxAge <= 0 {
		errs = append(errs, errors.New("config: MAMA_BACKUP_MAX_AGE must be positive"))
	}
	if c.AutoLinkConfidenceMin < 0 || c.AutoLinkConfidenceMin > 1 {
		errs = append(errs, errors.New("config: MAMA_AUTO_LINK_CONFIDENCE_MIN_PERMILLE must resolve to a value between 0 and 1"))
	}
	switch c.EmbeddingProvider {
	case "hash", "openai", "ollama", "noop":
	default:
		errs = append(errs, fmt.Errorf("config: MAMA_EMBEDDING_PROVIDER %q is not one of hash, openai, ollama, noop", c.EmbeddingProvider))
	}

	return errors.Join(errs...)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
