// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Journal (filesystem GHAP store) settings.
	JournalDir string

	// Metadata (SQLite) settings.
	MetadataDBPath string

	// Vector store settings.
	VectorBackend    string // "memory" or "qdrant"
	QdrantURL        string
	QdrantAPIKey     string
	CollectionPrefix string

	// Embedding provider settings.
	EmbeddingProvider string // "hash", "ollama"
	EmbeddingDims     int
	OllamaURL         string
	OllamaModel       string

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Context assembly settings.
	DefaultMaxTokens int

	// Clustering settings.
	ClusterMinSize    int
	ClusterMinSamples int
	ClusterEpsilon    float64

	// Operational settings.
	LogLevel          string
	SessionIdleReset  time.Duration
	CheckInEvery      int
	PIDFilePath       string
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if any environment variable contains an unparseable value.
// Missing variables use sensible defaults; the loaded config is then
// checked by Validate, whose errors are returned as well.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		JournalDir:        envStr("KESSA_JOURNAL_DIR", ".kessa/journal"),
		MetadataDBPath:    envStr("KESSA_METADATA_DB", ".kessa/metadata.db"),
		VectorBackend:     envStr("KESSA_VECTOR_BACKEND", "memory"),
		QdrantURL:         envStr("KESSA_QDRANT_URL", ""),
		QdrantAPIKey:      envStr("KESSA_QDRANT_API_KEY", ""),
		CollectionPrefix:  envStr("KESSA_COLLECTION_PREFIX", "ghap"),
		EmbeddingProvider: envStr("KESSA_EMBEDDING_PROVIDER", "hash"),
		OllamaURL:         envStr("KESSA_OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:       envStr("KESSA_OLLAMA_MODEL", "mxbai-embed-large"),
		OTELEndpoint:      envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:       envStr("OTEL_SERVICE_NAME", "kessa"),
		LogLevel:          envStr("KESSA_LOG_LEVEL", "info"),
		PIDFilePath:       envStr("KESSA_PID_FILE", ".kessa/kessa.pid"),
	}

	cfg.EmbeddingDims, errs = collectInt(errs, "KESSA_EMBEDDING_DIMENSIONS", 256)
	cfg.DefaultMaxTokens, errs = collectInt(errs, "KESSA_DEFAULT_MAX_TOKENS", 4000)
	cfg.ClusterMinSize, errs = collectInt(errs, "KESSA_CLUSTER_MIN_SIZE", 5)
	cfg.ClusterMinSamples, errs = collectInt(errs, "KESSA_CLUSTER_MIN_SAMPLES", 3)
	cfg.CheckInEvery, errs = collectInt(errs, "KESSA_CHECK_IN_EVERY", 10)

	cfg.OTELInsecure, errs = collectBool(errs, "OTEL_EXPORTER_OTLP_INSECURE", false)

	cfg.SessionIdleReset, errs = collectDuration(errs, "KESSA_SESSION_IDLE_RESET", 4*time.Hour)

	var epsilonStr = envStr("KESSA_CLUSTER_EPSILON", "0.35")
	epsilon, err := strconv.ParseFloat(epsilonStr, 64)
	if err != nil {
		errs = append(errs, fmt.Errorf("KESSA_CLUSTER_EPSILON=%q is not a valid float", epsilonStr))
	}
	cfg.ClusterEpsilon = epsilon

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

// Validate checks that required configuration is present and sane.
func (c Config) Validate() error {
	var errs []error

	if c.JournalDir == "" {
		errs = append(errs, errors.New("config: KESSA_JOURNAL_DIR is required"))
	}
	if c.MetadataDBPath == "" {
		errs = append(errs, errors.New("config: KESSA_METADATA_DB is required"))
	}
	if c.VectorBackend != "memory" && c.VectorBackend != "qdrant" {
		errs = append(errs, errors.New("config: KESSA_VECTOR_BACKEND must be \"memory\" or \"qdrant\""))
	}
	if c.VectorBackend == "qdrant" && c.QdrantURL == "" {
		errs = append(errs, errors.New("config: KESSA_QDRANT_URL is required when KESSA_VECTOR_BACKEND=qdrant"))
	}
	if c.EmbeddingProvider != "hash" && c.EmbeddingProvider != "ollama" {
		errs = append(errs, errors.New("config: KESSA_EMBEDDING_PROVIDER must be \"hash\" or \"ollama\""))
	}
	if c.EmbeddingDims <= 0 {
		errs = append(errs, errors.New("config: KESSA_EMBEDDING_DIMENSIONS must be positive"))
	}
	if c.DefaultMaxTokens <= 0 || c.DefaultMaxTokens > 100000 {
		errs = append(errs, errors.New("config: KESSA_DEFAULT_MAX_TOKENS must be between 1 and 100000"))
	}
	if c.ClusterMinSize < 1 {
		errs = append(errs, errors.New("config: KESSA_CLUSTER_MIN_SIZE must be at least 1"))
	}
	if c.ClusterMinSamples < 1 {
		errs = append(errs, errors.New("config: KESSA_CLUSTER_MIN_SAMPLES must be at least 1"))
	}
	if c.ClusterEpsilon <= 0 {
		errs = append(errs, errors.New("config: KESSA_CLUSTER_EPSILON must be positive"))
	}
	if c.SessionIdleReset <= 0 {
		errs = append(errs, errors.New("config: KESSA_SESSION_IDLE_RESET must be positive"))
	}
	if c.CheckInEvery < 1 {
		errs = append(errs, errors.New("config: KESSA_CHECK_IN_EVERY must be at least 1"))
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
