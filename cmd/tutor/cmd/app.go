package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bjornefisk/StudyTutor/internal/config"
	"github.com/bjornefisk/StudyTutor/internal/embed"
	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
	"github.com/bjornefisk/StudyTutor/internal/knowledge"
	"github.com/bjornefisk/StudyTutor/internal/logging"
	"github.com/bjornefisk/StudyTutor/internal/search"
	"github.com/bjornefisk/StudyTutor/internal/store"
	"github.com/bjornefisk/StudyTutor/internal/telemetry"
)

// App is the wired retrieval stack shared by the commands.
type App struct {
	Config  *config.Config
	Engine  *search.Engine
	Metrics *telemetry.Metrics
	Options search.Options
	Logger  *slog.Logger

	embedder embed.Embedder
	loadOpts store.LoadOptions
}

// NewApp builds the engine and its collaborators from cfg. No index is
// loaded; call LoadIndex.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := retrievalOptions(cfg.Retrieval)
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	backend := strings.ToLower(cfg.Lexical.Backend)
	lexical, lexErr := store.NewLexicalBuilder(ctx, backend, store.BM25Config{K1: cfg.Lexical.K1, B: cfg.Lexical.B})
	if lexErr != nil && !errors.Is(lexErr, tterrors.ErrLexicalBackendAbsent) {
		return nil, lexErr
	}

	embedder, err := embed.NewEmbedder(embed.Config{
		Provider:           cfg.Embeddings.Provider,
		Model:              cfg.Embeddings.Model,
		OllamaHost:         cfg.Embeddings.OllamaHost,
		BaseURL:            cfg.Embeddings.BaseURL,
		APIKey:             cfg.Embeddings.APIKey,
		Dimensions:         cfg.Embeddings.Dimensions,
		Timeout:            cfg.Embeddings.Timeout,
		CacheSize:          cfg.Embeddings.CacheSize,
		PersistentCacheDir: cfg.Embeddings.PersistentCacheDir,
		Logger:             logger,
	})
	if err != nil {
		return nil, err
	}

	notifier := logging.NewNotifier(logger)
	expander, err := newExpander(cfg.Expansion, notifier)
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	metrics := telemetry.NewMetrics(telemetry.NewQueryStats(telemetry.QueryStatsConfig{}))

	engineCfg := search.EngineConfig{
		Embedder:       embedder,
		Expander:       expander,
		LexicalBackend: backend,
		LexicalAbsent:  lexErr,
		Recorder:       metrics,
		Notifier:       notifier,
		Logger:         logger,
		Timeout:        cfg.Retrieval.Timeout,
	}
	if cfg.Knowledge.Enabled {
		wiki, err := newKnowledge(cfg.Knowledge, logger)
		if err != nil {
			_ = embedder.Close()
			return nil, err
		}
		engineCfg.Knowledge = wiki
	}

	return &App{
		Config:   cfg,
		Engine:   search.NewEngine(engineCfg),
		Metrics:  metrics,
		Options:  opts,
		Logger:   logger,
		embedder: embedder,
		loadOpts: store.LoadOptions{
			VectorBackend: cfg.Index.VectorBackend,
			HNSW:          store.DefaultHNSWConfig(),
			Lexical:       lexical,
			Logger:        logger,
			Notifier:      notifier,
		},
	}, nil
}

// LoadIndex loads the bundle in the configured directory and swaps it in.
func (a *App) LoadIndex(ctx context.Context) error {
	idx, err := store.Load(ctx, a.Config.Index.Dir, a.loadOpts)
	if err != nil {
		return err
	}
	a.Engine.Swap(idx)
	return nil
}

// Embedder returns the query embedder.
func (a *App) Embedder() embed.Embedder { return a.embedder }

// LoadOptions returns the options LoadIndex uses, for the watcher.
func (a *App) LoadOptions() store.LoadOptions { return a.loadOpts }

// Close releases the index and the embedder.
func (a *App) Close() error {
	_ = a.Engine.Close()
	return a.embedder.Close()
}

// retrievalOptions maps the retrieval config onto per-call options.
func retrievalOptions(r config.RetrievalConfig) search.Options {
	return search.Options{
		TopK:          r.TopK,
		UseMultiQuery: r.UseMultiQuery,
		NumVariations: r.NumQueryVariations,
		UseHybrid:     r.UseHybrid,
		RRFK:          r.RRFK,
		CandidateK:    r.CandidateK,
	}
}

// newExpander builds the query expander. LLM providers are guarded and
// fall back to the heuristic expander; "none" disables expansion.
func newExpander(cfg config.ExpansionConfig, notifier *logging.Notifier) (search.Expander, error) {
	var gen search.Generator
	switch strings.ToLower(cfg.Provider) {
	case "none":
		return nil, nil
	case "heuristic":
		return search.HeuristicExpander{}, nil
	case "ollama":
		gen = search.NewOllamaGenerator(cfg.OllamaHost, cfg.Model, cfg.Timeout)
	case "openrouter":
		g, err := search.NewOpenAIGenerator(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		gen = g
	default:
		return nil, tterrors.ConfigError(fmt.Sprintf("unknown expansion provider %q", cfg.Provider), nil)
	}

	return search.NewGuardedExpander(search.NewLLMExpander(gen), search.GuardOptions{
		RatePerSecond: cfg.RatePerSecond,
		Fallback:      search.HeuristicExpander{},
		Notifier:      notifier,
	}), nil
}

func newKnowledge(cfg config.KnowledgeConfig, logger *slog.Logger) (*knowledge.Wikipedia, error) {
	return knowledge.New(knowledge.Config{
		Endpoint:      cfg.Endpoint,
		UserAgent:     cfg.UserAgent,
		Timeout:       cfg.Timeout,
		RatePerSecond: cfg.RatePerSecond,
		MaxExtract:    cfg.MaxExtract,
		CacheSize:     cfg.CacheSize,
		CacheTTL:      cfg.CacheTTL,
		Logger:        logger,
	})
}
