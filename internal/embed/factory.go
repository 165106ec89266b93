package embed

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
)

// Provider names.
const (
	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"
	ProviderStatic     = "static"
)

// Config selects and configures an embedding provider.
type Config struct {
	Provider   string
	Model      string
	OllamaHost string
	BaseURL    string
	APIKey     string
	Dimensions int
	Timeout    time.Duration

	// CacheSize is the LRU size; negative disables caching.
	CacheSize int
	// PersistentCacheDir enables the badger cache when non-empty.
	PersistentCacheDir string

	Logger *slog.Logger
}

// NewEmbedder creates the configured embedder wrapped in the query cache.
// It does not contact the backend, so a server that is down at startup
// only fails the calls that need it.
func NewEmbedder(cfg Config) (Embedder, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		embedder Embedder
		err      error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOllama:
		embedder = NewOllamaEmbedder(OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
	case ProviderOpenRouter:
		model := cfg.Model
		if model == "" || model == DefaultOllamaModel {
			model = DefaultOpenRouterModel
		}
		embedder, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
	case ProviderStatic:
		embedder = NewStaticEmbedder()
	default:
		return nil, tterrors.ConfigError(fmt.Sprintf("unknown embeddings provider %q", cfg.Provider), nil).
			WithSuggestion("Use one of: ollama, openrouter, static")
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize < 0 {
		return embedder, nil
	}

	var persistent *PersistentCache
	if cfg.PersistentCacheDir != "" {
		persistent, err = OpenPersistentCache(cfg.PersistentCacheDir, logger)
		if err != nil {
			logger.Warn("persistent embedding cache disabled",
				slog.String("dir", cfg.PersistentCacheDir),
				slog.String("error", err.Error()))
			persistent = nil
		}
	}

	logger.Debug("embedder ready",
		slog.String("backend", embedder.Backend()),
		slog.String("model", embedder.ModelName()),
		slog.Int("cache_size", cfg.CacheSize),
		slog.Bool("persistent_cache", persistent != nil))

	return NewCachedEmbedder(embedder, cfg.CacheSize, persistent), nil
}
