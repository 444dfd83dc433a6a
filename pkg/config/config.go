// Package config assembles runtime configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Vector store backends.
const (
	BackendQdrant  = "qdrant"
	BackendChromem = "chromem"
)

// Embedding backends.
const (
	EmbedOllama = "ollama"
	EmbedHash   = "hash"
)

// Chunking strategies.
const (
	ChunkWindow    = "window"
	ChunkRecursive = "recursive"
)

// Config holds all service configuration.
type Config struct {
	Port string `yaml:"port"`

	VectorBackend string `yaml:"vector_backend"`
	QdrantURL     string `yaml:"qdrant_url"`
	Collection    string `yaml:"collection"`
	VectorSize    int    `yaml:"vector_size"`
	ChromemPath   string `yaml:"chromem_path"`

	OllamaBaseURL  string  `yaml:"ollama_base_url"`
	LLMModel       string  `yaml:"llm_model"`
	EmbedModel     string  `yaml:"embed_model"`
	EmbedBackend   string  `yaml:"embed_backend"`
	HashDimensions int     `yaml:"hash_dimensions"`
	EmbedWorkers   int     `yaml:"embed_workers"`
	EmbedRateLimit float64 `yaml:"embed_rate_limit"`

	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerTimeout   time.Duration `yaml:"breaker_timeout"`

	ChunkSize     int    `yaml:"chunk_size"`
	ChunkOverlap  int    `yaml:"chunk_overlap"`
	ChunkStrategy string `yaml:"chunk_strategy"`
	TopK          int    `yaml:"top_k"`
	StrictGuards  bool   `yaml:"strict_guards"`

	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	CORSOrigin     string `yaml:"cors_origin"`
	NATSURL        string `yaml:"nats_url"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:             "8000",
		VectorBackend:    BackendQdrant,
		QdrantURL:        "qdrant:6334",
		Collection:       "Document",
		OllamaBaseURL:    "http://ollama:11434",
		LLMModel:         "smollm2:1.7b",
		EmbedBackend:     EmbedOllama,
		HashDimensions:   256,
		EmbedWorkers:     4,
		BreakerThreshold: 5,
		BreakerTimeout:   30 * time.Second,
		ChunkSize:        500,
		ChunkOverlap:     50,
		ChunkStrategy:    ChunkWindow,
		TopK:             4,
		StrictGuards:     true,
		MaxUploadBytes:   32 << 20,
		CORSOrigin:       "*",
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

// Load builds the configuration. path may be empty, in which case CONFIG_FILE
// is consulted; a missing file is only an error when named explicitly.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case explicit || !errors.Is(err, os.ErrNotExist):
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = cfg.LLMModel
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	c.Port = envOr("PORT", c.Port)
	c.VectorBackend = envOr("VECTOR_BACKEND", c.VectorBackend)
	c.QdrantURL = envOr("QDRANT_URL", c.QdrantURL)
	c.Collection = envOr("COLLECTION", c.Collection)
	c.ChromemPath = envOr("CHROMEM_PATH", c.ChromemPath)
	c.OllamaBaseURL = envOr("OLLAMA_BASE_URL", c.OllamaBaseURL)
	c.LLMModel = envOr("LLM_MODEL", c.LLMModel)
	c.EmbedModel = envOr("EMBED_MODEL", c.EmbedModel)
	c.EmbedBackend = envOr("EMBED_BACKEND", c.EmbedBackend)
	c.ChunkStrategy = envOr("CHUNK_STRATEGY", c.ChunkStrategy)
	c.CORSOrigin = envOr("CORS_ORIGIN", c.CORSOrigin)
	c.NATSURL = envOr("NATS_URL", c.NATSURL)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envOr("LOG_FORMAT", c.LogFormat)

	var errs []error
	ints := []struct {
		key string
		dst *int
	}{
		{"VECTOR_SIZE", &c.VectorSize},
		{"HASH_DIMENSIONS", &c.HashDimensions},
		{"EMBED_WORKERS", &c.EmbedWorkers},
		{"BREAKER_THRESHOLD", &c.BreakerThreshold},
		{"CHUNK_SIZE", &c.ChunkSize},
		{"CHUNK_OVERLAP", &c.ChunkOverlap},
		{"TOP_K", &c.TopK},
	}
	for _, f := range ints {
		if v := os.Getenv(f.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", f.key, err))
				continue
			}
			*f.dst = n
		}
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES: %w", err))
		} else {
			c.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("EMBED_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("EMBED_RATE_LIMIT: %w", err))
		} else {
			c.EmbedRateLimit = f
		}
	}
	if v := os.Getenv("BREAKER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("BREAKER_TIMEOUT: %w", err))
		} else {
			c.BreakerTimeout = d
		}
	}
	if v := os.Getenv("STRICT_GUARDS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("STRICT_GUARDS: %w", err))
		} else {
			c.StrictGuards = b
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: env: %w", err)
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk_overlap must be in [0, chunk_size), got %d", c.ChunkOverlap))
	}
	if c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top_k must be positive, got %d", c.TopK))
	}
	if c.EmbedWorkers <= 0 {
		errs = append(errs, fmt.Errorf("embed_workers must be positive, got %d", c.EmbedWorkers))
	}
	if c.VectorSize < 0 {
		errs = append(errs, fmt.Errorf("vector_size must not be negative, got %d", c.VectorSize))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes))
	}
	if !oneOf(c.VectorBackend, BackendQdrant, BackendChromem) {
		errs = append(errs, fmt.Errorf("unknown vector_backend %q", c.VectorBackend))
	}
	if !oneOf(c.EmbedBackend, EmbedOllama, EmbedHash) {
		errs = append(errs, fmt.Errorf("unknown embed_backend %q", c.EmbedBackend))
	}
	if !oneOf(c.ChunkStrategy, ChunkWindow, ChunkRecursive) {
		errs = append(errs, fmt.Errorf("unknown chunk_strategy %q", c.ChunkStrategy))
	}
	if !oneOf(strings.ToLower(c.LogFormat), "json", "text") {
		errs = append(errs, fmt.Errorf("unknown log_format %q", c.LogFormat))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func oneOf(v string, opts ...string) bool {
	for _, o := range opts {
		if v == o {
			return true
		}
	}
	return false
}
