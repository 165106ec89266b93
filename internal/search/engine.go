package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bjornefisk/StudyTutor/internal/embed"
	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
	"github.com/bjornefisk/StudyTutor/internal/knowledge"
	"github.com/bjornefisk/StudyTutor/internal/logging"
	"github.com/bjornefisk/StudyTutor/internal/store"
)

// NotReadyMessage is shown to callers when no index is loaded.
const NotReadyMessage = "Vector index not loaded. Upload documents and run ingestion first."

// Notice conditions owned by the engine.
const (
	conditionLexicalAbsent   = "lexical_backend_absent"
	conditionLexicalCorpus   = "lexical_corpus_missing"
	conditionEmbedMismatch   = "embedding_mismatch"
	conditionKnowledgeFailed = "knowledge_source_failed"
)

// KnowledgeSource supplies an encyclopedia article for a query.
// Search returns nil, nil when nothing suitable exists.
type KnowledgeSource interface {
	Search(ctx context.Context, query string) (*knowledge.Article, error)
}

// EngineConfig wires an Engine.
type EngineConfig struct {
	Embedder embed.Embedder
	// Expander must never fail; nil disables multi-query expansion.
	Expander Expander
	// LexicalBackend is the configured lexical backend name.
	LexicalBackend string
	// LexicalAbsent is the startup probe failure for LexicalBackend, if any.
	LexicalAbsent error
	// Knowledge is optional.
	Knowledge KnowledgeSource
	Recorder  Recorder
	Notifier  *logging.Notifier
	Logger    *slog.Logger
	// Timeout bounds each Retrieve call; 0 leaves the caller's deadline.
	Timeout time.Duration
}

// Engine is the explicit retrieval context: the current index handle, the
// embedder, the expander and the notice/metrics sinks. Construct it once
// and share it; all methods are safe for concurrent use.
type Engine struct {
	current   atomic.Pointer[indexHandle]
	retriever *Retriever
	embedder  embed.Embedder
	expander  Expander
	lexical   string
	lexAbsent error
	knowledge KnowledgeSource
	recorder  Recorder
	notifier  *logging.Notifier
	logger    *slog.Logger
	timeout   time.Duration

	mu sync.Mutex // serialises Swap
}

// NewEngine creates an Engine with no index loaded.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = logging.NewNotifier(cfg.Logger)
	}
	if cfg.LexicalBackend == "" {
		cfg.LexicalBackend = store.LexicalNone
	}

	e := &Engine{
		embedder:  cfg.Embedder,
		expander:  cfg.Expander,
		lexical:   cfg.LexicalBackend,
		lexAbsent: cfg.LexicalAbsent,
		knowledge: cfg.Knowledge,
		recorder:  cfg.Recorder,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger,
		timeout:   cfg.Timeout,
	}
	e.retriever = NewRetriever(cfg.Embedder,
		WithExpander(cfg.Expander),
		WithRecorder(cfg.Recorder),
		WithNotifier(cfg.Notifier),
		WithLogger(cfg.Logger))

	if cfg.LexicalAbsent != nil {
		e.notifier.Warn(conditionLexicalAbsent, "lexical backend unavailable, retrieval runs vector-only",
			slog.String("backend", cfg.LexicalBackend),
			slog.String("error", cfg.LexicalAbsent.Error()))
	}
	cfg.Recorder.IndexState(0, false)
	return e
}

// Swap installs idx as the current index. The previous index is closed
// once in-flight retrievals release it; callers must not close it.
// Passing nil unloads the index.
func (e *Engine) Swap(idx *store.Index) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var next *indexHandle
	if idx != nil {
		next = newIndexHandle(idx)
		e.checkIndex(idx)
	}
	prev := e.current.Swap(next)
	if prev != nil {
		prev.retire()
	}

	if idx == nil {
		e.recorder.IndexState(0, false)
		e.logger.Info("index unloaded")
		return
	}
	e.recorder.IndexState(idx.Len(), idx.Lexical() != nil)
	e.logger.Info("index loaded",
		slog.String("dir", idx.Dir()),
		slog.Int("chunks", idx.Len()),
		slog.String("vector_backend", idx.VectorBackend()),
		slog.String("mode", string(modeOf(idx))))
}

// checkIndex emits one-time notices about the index against the engine's
// configuration.
func (e *Engine) checkIndex(idx *store.Index) {
	if e.lexAbsent == nil && e.lexical != store.LexicalNone && !idx.HasTokens() {
		e.notifier.Warn(conditionLexicalCorpus, "index has no tokenized corpus, retrieval runs vector-only",
			slog.String("dir", idx.Dir()))
	}

	if e.embedder == nil {
		return
	}
	info := idx.Info()
	var mismatches []string
	if info.EmbedBackend != "" && info.EmbedBackend != e.embedder.Backend() {
		mismatches = append(mismatches, fmt.Sprintf("backend %s != %s", info.EmbedBackend, e.embedder.Backend()))
	}
	if info.EmbedModel != "" && info.EmbedModel != e.embedder.ModelName() {
		mismatches = append(mismatches, fmt.Sprintf("model %s != %s", info.EmbedModel, e.embedder.ModelName()))
	}
	if d := e.embedder.Dimensions(); d > 0 && d != info.Dim {
		mismatches = append(mismatches, fmt.Sprintf("dim %d != %d", info.Dim, d))
	}
	if len(mismatches) > 0 {
		e.notifier.Warn(conditionEmbedMismatch, "index was built with different embedding settings; re-run ingestion",
			slog.String("dir", idx.Dir()),
			slog.String("mismatches", strings.Join(mismatches, "; ")))
	}
}

// Retrieve runs hybrid retrieval against the current index snapshot.
func (e *Engine) Retrieve(ctx context.Context, query string, opts Options) ([]Result, error) {
	h := e.acquire()
	if h == nil {
		e.recorder.ObserveRetrieve(OutcomeNotReady, 0, 0)
		return nil, tterrors.NotReady(NotReadyMessage)
	}
	defer h.release()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	logger := e.logger.With(slog.String("request_id", uuid.NewString()))
	start := time.Now()
	results, st, err := e.retriever.retrieve(ctx, logger, h.idx, query, opts)
	elapsed := time.Since(start)

	if err != nil {
		outcome := OutcomeUnavailable
		if tterrors.GetCode(err) == tterrors.ErrCodeInvalidInput {
			outcome = OutcomeInvalid
		}
		e.recorder.ObserveRetrieve(outcome, elapsed, st.variants)
		logger.Warn("retrieve failed",
			slog.String("code", tterrors.GetCode(err)),
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", elapsed.Milliseconds()))
		return nil, err
	}

	outcome := OutcomeOK
	if len(results) == 0 {
		outcome = OutcomeEmpty
	}
	e.recorder.ObserveRetrieve(outcome, elapsed, st.variants)
	e.recorder.ObserveQuery(query, len(results), elapsed)
	logger.Info("retrieve",
		slog.Int("results", len(results)),
		slog.Int("variants", st.variants),
		slog.Int("variants_dropped", st.dropped),
		slog.Bool("hybrid", st.hybrid),
		slog.Int64("duration_ms", elapsed.Milliseconds()))
	return results, nil
}

// Answer is local retrieval plus an optional encyclopedia article.
type Answer struct {
	Results   []Result
	Knowledge *knowledge.Article
}

// RetrieveWithKnowledge runs Retrieve and, when the query looks
// encyclopedic and a knowledge source is configured, a knowledge lookup
// concurrently. Knowledge failures are logged and never fail the call.
func (e *Engine) RetrieveWithKnowledge(ctx context.Context, query string, opts Options) (*Answer, error) {
	var (
		answer  Answer
		localEr error
	)
	var g errgroup.Group
	g.Go(func() error {
		answer.Results, localEr = e.Retrieve(ctx, query, opts)
		return nil
	})
	if e.knowledge != nil && knowledge.ShouldQuery(query) {
		g.Go(func() error {
			article, err := e.knowledge.Search(ctx, query)
			if err != nil {
				e.notifier.Warn(conditionKnowledgeFailed, "knowledge lookup failed, continuing with local results",
					slog.String("error", err.Error()))
				e.logger.Debug("knowledge lookup failed", slog.String("error", err.Error()))
				return nil
			}
			answer.Knowledge = article
			return nil
		})
	}
	_ = g.Wait()

	if localEr != nil {
		return nil, localEr
	}
	return &answer, nil
}

// Mode is the retrieval mode reported by Status.
type Mode string

// Modes.
const (
	ModeHybrid     Mode = "hybrid"
	ModeVectorOnly Mode = "vector-only"
	ModeNotReady   Mode = "not-ready"
)

func modeOf(idx *store.Index) Mode {
	switch {
	case idx == nil:
		return ModeNotReady
	case idx.Lexical() != nil:
		return ModeHybrid
	default:
		return ModeVectorOnly
	}
}

// Status is the readiness and mode signal.
type Status struct {
	Ready          bool      `json:"ready"`
	Mode           Mode      `json:"mode"`
	Chunks         int       `json:"chunks"`
	IndexDir       string    `json:"index_dir,omitempty"`
	VectorBackend  string    `json:"vector_backend,omitempty"`
	LexicalBackend string    `json:"lexical_backend"`
	LexicalError   string    `json:"lexical_error,omitempty"`
	Embedder       string    `json:"embedder"`
	Expansion      string    `json:"expansion"`
	LoadedAt       time.Time `json:"loaded_at,omitzero"`
}

// Status reports whether the engine can serve retrievals and in which
// mode. It performs no I/O.
func (e *Engine) Status() Status {
	st := Status{
		Mode:           ModeNotReady,
		LexicalBackend: e.lexical,
		Expansion:      "none",
	}
	if e.lexAbsent != nil {
		st.LexicalError = e.lexAbsent.Error()
	}
	if e.embedder != nil {
		st.Embedder = e.embedder.Backend() + "/" + e.embedder.ModelName()
	}
	if e.expander != nil {
		st.Expansion = e.expander.Name()
	}

	h := e.acquire()
	if h == nil {
		return st
	}
	defer h.release()

	idx := h.idx
	st.Ready = true
	st.Mode = modeOf(idx)
	st.Chunks = idx.Len()
	st.IndexDir = idx.Dir()
	st.VectorBackend = idx.VectorBackend()
	st.LoadedAt = idx.LoadedAt()
	if l := idx.Lexical(); l != nil {
		st.LexicalBackend = l.Name()
	} else if e.lexAbsent == nil {
		st.LexicalBackend = store.LexicalNone
	}
	return st
}

// Close unloads the index.
func (e *Engine) Close() error {
	e.Swap(nil)
	return nil
}

// indexHandle reference-counts an index so that Swap can retire it while
// retrievals still hold it.
type indexHandle struct {
	idx     *store.Index
	refs    atomic.Int64
	retired atomic.Bool
	once    sync.Once
}

func newIndexHandle(idx *store.Index) *indexHandle {
	return &indexHandle{idx: idx}
}

// acquire returns the current handle with a reference held, or nil.
func (e *Engine) acquire() *indexHandle {
	for {
		h := e.current.Load()
		if h == nil {
			return nil
		}
		h.refs.Add(1)
		if e.current.Load() == h {
			return h
		}
		// Swapped between Load and Add.
		h.release()
	}
}

func (h *indexHandle) release() {
	if h.refs.Add(-1) == 0 && h.retired.Load() {
		h.close()
	}
}

func (h *indexHandle) retire() {
	h.retired.Store(true)
	if h.refs.Load() == 0 {
		h.close()
	}
}

func (h *indexHandle) close() {
	h.once.Do(func() { _ = h.idx.Close() })
}
