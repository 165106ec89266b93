// Package config loads StudyTutor configuration from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config file names looked up in the working directory.
const (
	FileName    = ".studytutor.yaml"
	AltFileName = ".studytutor.yml"
)

// Config represents the complete StudyTutor configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Lexical    LexicalConfig    `yaml:"lexical" json:"lexical"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Expansion  ExpansionConfig  `yaml:"expansion" json:"expansion"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge" json:"knowledge"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// IndexConfig locates the corpus index bundle.
type IndexConfig struct {
	Dir string `yaml:"dir" json:"dir"`
	// VectorBackend is "flat" (exact, default) or "hnsw" (approximate).
	VectorBackend string `yaml:"vector_backend" json:"vector_backend"`
	// Watch reloads the bundle when the ingestion pipeline rewrites it.
	Watch         bool          `yaml:"watch" json:"watch"`
	WatchDebounce time.Duration `yaml:"watch_debounce" json:"watch_debounce"`
}

// RetrievalConfig holds the per-call retrieval parameters.
// Environment variables TOP_K, USE_MULTI_QUERY, NUM_QUERY_VARIATIONS,
// USE_HYBRID_RETRIEVAL and RRF_K take precedence over the file.
type RetrievalConfig struct {
	TopK               int           `yaml:"top_k" json:"top_k"`
	UseMultiQuery      bool          `yaml:"use_multi_query" json:"use_multi_query"`
	NumQueryVariations int           `yaml:"num_query_variations" json:"num_query_variations"`
	UseHybrid          bool          `yaml:"use_hybrid" json:"use_hybrid"`
	RRFK               int           `yaml:"rrf_k" json:"rrf_k"`
	CandidateK         int           `yaml:"candidate_k" json:"candidate_k"` // 0 = max(10*top_k, 50)
	Timeout            time.Duration `yaml:"timeout" json:"timeout"`
}

// LexicalConfig selects and tunes the BM25 backend.
type LexicalConfig struct {
	// Backend is "memory", "bleve", "sqlite" or "none".
	Backend string  `yaml:"backend" json:"backend"`
	K1      float64 `yaml:"k1" json:"k1"`
	B       float64 `yaml:"b" json:"b"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama", "openrouter" or "static".
	Provider   string        `yaml:"provider" json:"provider"`
	Model      string        `yaml:"model" json:"model"`
	OllamaHost string        `yaml:"ollama_host" json:"ollama_host"`
	BaseURL    string        `yaml:"base_url" json:"base_url"`
	APIKey     string        `yaml:"-" json:"-"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	CacheSize  int           `yaml:"cache_size" json:"cache_size"`
	// PersistentCacheDir enables the on-disk embedding cache when set.
	PersistentCacheDir string `yaml:"persistent_cache_dir" json:"persistent_cache_dir"`
}

// ExpansionConfig configures the multi-query generator.
type ExpansionConfig struct {
	// Provider is "ollama", "openrouter", "heuristic" or "none".
	Provider   string        `yaml:"provider" json:"provider"`
	Model      string        `yaml:"model" json:"model"`
	OllamaHost string        `yaml:"ollama_host" json:"ollama_host"`
	BaseURL    string        `yaml:"base_url" json:"base_url"`
	APIKey     string        `yaml:"-" json:"-"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	// RatePerSecond bounds generator calls; 0 disables limiting.
	RatePerSecond float64 `yaml:"rate_per_second" json:"rate_per_second"`
}

// KnowledgeConfig configures the optional Wikipedia source.
type KnowledgeConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	Endpoint      string        `yaml:"endpoint" json:"endpoint"`
	UserAgent     string        `yaml:"user_agent" json:"user_agent"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second" json:"rate_per_second"`
	MaxExtract    int           `yaml:"max_extract" json:"max_extract"`
	CacheSize     int           `yaml:"cache_size" json:"cache_size"`
	CacheTTL      time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

// ServerConfig configures the HTTP and MCP servers.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" json:"http_addr"`
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// NewConfig returns a Config with default values.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Index: IndexConfig{
			Dir:           "storage",
			VectorBackend: "flat",
			WatchDebounce: 500 * time.Millisecond,
		},
		Retrieval: RetrievalConfig{
			TopK:               3,
			UseMultiQuery:      false,
			NumQueryVariations: 3,
			UseHybrid:          true,
			RRFK:               60,
			Timeout:            30 * time.Second,
		},
		Lexical: LexicalConfig{
			Backend: "memory",
			K1:      1.2,
			B:       0.75,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			OllamaHost: "http://localhost:11434",
			BaseURL:    "https://openrouter.ai/api/v1",
			Timeout:    30 * time.Second,
			CacheSize:  1000,
		},
		Expansion: ExpansionConfig{
			Provider:      "ollama",
			Model:         "llama3",
			OllamaHost:    "http://localhost:11434",
			BaseURL:       "https://openrouter.ai/api/v1",
			Timeout:       30 * time.Second,
			RatePerSecond: 2,
		},
		Knowledge: KnowledgeConfig{
			Enabled:       false,
			Endpoint:      "https://en.wikipedia.org/w/api.php",
			Timeout:       10 * time.Second,
			RatePerSecond: 1,
			MaxExtract:    500,
			CacheSize:     500,
			CacheTTL:      24 * time.Hour,
		},
		Server: ServerConfig{
			HTTPAddr: ":8080",
			LogLevel: "info",
		},
	}
}

// Load loads configuration from dir. Precedence, lowest first:
//  1. Hardcoded defaults
//  2. .studytutor.yaml (or .yml) in dir
//  3. TUTOR_* environment variables and provider keys
//  4. TOP_K, USE_MULTI_QUERY, NUM_QUERY_VARIATIONS, USE_HYBRID_RETRIEVAL, RRF_K
func Load(dir string) (*Config, error) {
	path := ""
	for _, name := range []string{FileName, AltFileName} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
			break
		}
	}
	return LoadFile(path)
}

// LoadFile loads configuration from an explicit file. An empty path
// skips the file layer.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAML decodes path on top of the current values, so keys absent from
// the file keep their defaults and explicit false/zero values are honoured.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
			}
		}
	}

	setString(&c.Index.Dir, "TUTOR_INDEX_DIR")
	setString(&c.Index.VectorBackend, "TUTOR_VECTOR_BACKEND")
	setString(&c.Lexical.Backend, "TUTOR_LEXICAL_BACKEND")
	setString(&c.Embeddings.Provider, "EMBEDDINGS_BACKEND", "TUTOR_EMBEDDINGS_PROVIDER")
	setString(&c.Embeddings.Model, "TUTOR_EMBEDDINGS_MODEL")
	setString(&c.Embeddings.OllamaHost, "TUTOR_OLLAMA_HOST")
	setString(&c.Embeddings.BaseURL, "OPENROUTER_BASE_URL")
	setString(&c.Embeddings.APIKey, "OPENROUTER_API_KEY")
	setString(&c.Embeddings.PersistentCacheDir, "TUTOR_EMBEDDING_CACHE_DIR")
	setString(&c.Expansion.Provider, "TUTOR_EXPANSION_PROVIDER")
	setString(&c.Expansion.Model, "TUTOR_EXPANSION_MODEL")
	setString(&c.Expansion.OllamaHost, "TUTOR_OLLAMA_HOST")
	setString(&c.Expansion.BaseURL, "OPENROUTER_BASE_URL")
	setString(&c.Expansion.APIKey, "OPENROUTER_API_KEY")
	setString(&c.Knowledge.UserAgent, "WIKIMEDIA_USER_AGENT")
	setString(&c.Server.HTTPAddr, "TUTOR_HTTP_ADDR")
	setString(&c.Server.LogLevel, "TUTOR_LOG_LEVEL")

	if v := os.Getenv("WIKIMEDIA_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WIKIMEDIA_ENABLED: %w", err)
		}
		c.Knowledge.Enabled = b
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"TOP_K", &c.Retrieval.TopK},
		{"NUM_QUERY_VARIATIONS", &c.Retrieval.NumQueryVariations},
		{"RRF_K", &c.Retrieval.RRFK},
	}
	for _, e := range ints {
		if v := os.Getenv(e.key); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
			*e.dst = n
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"USE_MULTI_QUERY", &c.Retrieval.UseMultiQuery},
		{"USE_HYBRID_RETRIEVAL", &c.Retrieval.UseHybrid},
	}
	for _, e := range bools {
		if v := os.Getenv(e.key); v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
			*e.dst = b
		}
	}

	return nil
}

// Validate checks the configuration for out-of-range values.
func (c *Config) Validate() error {
	if c.Retrieval.TopK < 0 {
		return fmt.Errorf("retrieval.top_k must be non-negative, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.RRFK <= 0 {
		return fmt.Errorf("retrieval.rrf_k must be positive, got %d", c.Retrieval.RRFK)
	}
	if c.Retrieval.NumQueryVariations < 0 || c.Retrieval.NumQueryVariations > 10 {
		return fmt.Errorf("retrieval.num_query_variations must be between 0 and 10, got %d", c.Retrieval.NumQueryVariations)
	}
	if c.Retrieval.CandidateK < 0 {
		return fmt.Errorf("retrieval.candidate_k must be non-negative, got %d", c.Retrieval.CandidateK)
	}
	if c.Lexical.K1 < 0 || c.Lexical.B < 0 || c.Lexical.B > 1 {
		return fmt.Errorf("lexical.k1 must be >= 0 and lexical.b within [0,1], got k1=%.2f b=%.2f", c.Lexical.K1, c.Lexical.B)
	}

	checks := []struct {
		field string
		value string
		valid []string
	}{
		{"index.vector_backend", c.Index.VectorBackend, []string{"flat", "hnsw"}},
		{"lexical.backend", c.Lexical.Backend, []string{"memory", "bleve", "sqlite", "none"}},
		{"embeddings.provider", c.Embeddings.Provider, []string{"ollama", "openrouter", "static"}},
		{"expansion.provider", c.Expansion.Provider, []string{"ollama", "openrouter", "heuristic", "none"}},
		{"server.log_level", c.Server.LogLevel, []string{"debug", "info", "warn", "error"}},
	}
	for _, chk := range checks {
		if !slices.Contains(chk.valid, strings.ToLower(chk.value)) {
			return fmt.Errorf("%s must be one of %s, got %q", chk.field, strings.Join(chk.valid, ", "), chk.value)
		}
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
