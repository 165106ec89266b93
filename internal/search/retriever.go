package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bjornefisk/StudyTutor/internal/embed"
	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
	"github.com/bjornefisk/StudyTutor/internal/logging"
	"github.com/bjornefisk/StudyTutor/internal/store"
)

const conditionLexicalScoring = "lexical_scoring_failed"

// Retriever runs hybrid retrieval against a loaded index. It holds no
// mutable state and is safe for concurrent use.
type Retriever struct {
	embedder embed.Embedder
	expander Expander
	recorder Recorder
	notifier *logging.Notifier
	logger   *slog.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithExpander sets the query expander. It must never fail; wrap
// external expanders in a GuardedExpander.
func WithExpander(e Expander) RetrieverOption {
	return func(r *Retriever) { r.expander = e }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec Recorder) RetrieverOption {
	return func(r *Retriever) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RetrieverOption {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithNotifier sets where once-per-process degradation notices go.
func WithNotifier(n *logging.Notifier) RetrieverOption {
	return func(r *Retriever) { r.notifier = n }
}

// NewRetriever creates a Retriever using embedder for every variant.
func NewRetriever(embedder embed.Embedder, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		embedder: embedder,
		recorder: nopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.notifier == nil {
		r.notifier = logging.NewNotifier(r.logger)
	}
	return r
}

// retrieveStats describes one call for logging.
type retrieveStats struct {
	variants int // variants that contributed
	dropped  int
	hybrid   bool
}

// Retrieve returns at most opts.TopK chunks for query, best first.
//
// The original query is embedded first; if that fails the call fails with
// ErrRetrievalUnavailable before any expansion or variant work. Expansion
// variants that fail to embed, or are not done by the context deadline,
// are left out of the merge.
func (r *Retriever) Retrieve(ctx context.Context, idx *store.Index, query string, opts Options) ([]Result, error) {
	results, _, err := r.retrieve(ctx, r.logger, idx, query, opts)
	return results, err
}

func (r *Retriever) retrieve(ctx context.Context, logger *slog.Logger, idx *store.Index, query string, opts Options) ([]Result, retrieveStats, error) {
	var st retrieveStats
	if err := opts.Validate(); err != nil {
		return nil, st, err
	}
	query = strings.TrimSpace(query)
	if query == "" || opts.TopK == 0 {
		return []Result{}, st, nil
	}
	if idx == nil {
		return nil, st, tterrors.NotReady("vector index not loaded")
	}

	primaryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, st, tterrors.RetrievalUnavailable("embedding the query failed", err)
	}

	lexical := idx.Lexical()
	if !opts.UseHybrid {
		lexical = nil
	}
	st.hybrid = lexical != nil
	maxVariants := opts.maxVariants()

	// The primary search and expansion are independent once the primary
	// embedding exists.
	var (
		primary    []FusedHit
		primaryErr error
		expansions []string
	)
	var g errgroup.Group
	g.Go(func() error {
		primary, primaryErr = r.rankVariant(ctx, logger, idx, lexical, query, primaryVec, opts)
		return nil
	})
	if maxVariants > 1 && r.expander != nil {
		g.Go(func() error {
			expansions, _ = r.expander.Expand(ctx, query, maxVariants-1)
			return nil
		})
	}
	_ = g.Wait()

	if primaryErr != nil {
		return nil, st, tterrors.RetrievalUnavailable("searching the index failed", primaryErr)
	}

	variants := DedupVariants(query, expansions, maxVariants)
	perVariant := make([][]FusedHit, len(variants))
	perVariant[0] = primary

	var vg errgroup.Group
	for i := 1; i < len(variants); i++ {
		vg.Go(func() error {
			hits, reason := r.runVariant(ctx, logger, idx, lexical, variants[i], opts)
			if reason != "" {
				r.recorder.VariantDropped(reason)
				logger.Debug("variant dropped",
					slog.Int("variant", i),
					slog.String("reason", reason))
				return nil
			}
			perVariant[i] = hits
			return nil
		})
	}
	_ = vg.Wait()

	for _, hits := range perVariant {
		if hits == nil {
			st.dropped++
		} else {
			st.variants++
		}
	}

	merged := MergeVariants(perVariant)
	if len(merged) > opts.TopK {
		merged = merged[:opts.TopK]
	}

	results := make([]Result, 0, len(merged))
	for _, m := range merged {
		chunk, err := idx.MetadataAt(m.Ordinal)
		if err != nil {
			return nil, st, tterrors.InternalError("resolve chunk metadata", err)
		}
		results = append(results, Result{
			Score:      m.Score,
			Ordinal:    m.Ordinal,
			Chunk:      chunk,
			Variants:   m.Variants,
			Similarity: m.BestSim,
		})
	}
	return results, st, nil
}

// runVariant embeds and ranks one expansion variant. A non-empty reason
// means the variant is dropped.
func (r *Retriever) runVariant(ctx context.Context, logger *slog.Logger, idx *store.Index, lexical store.LexicalRanker, text string, opts Options) ([]FusedHit, string) {
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, DropDeadline
		}
		return nil, DropEmbedFailed
	}
	hits, err := r.rankVariant(ctx, logger, idx, lexical, text, vec, opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, DropDeadline
		}
		return nil, DropSearch
	}
	return hits, ""
}

// rankVariant runs the dense and lexical searches for one variant
// concurrently and fuses them. A lexical failure degrades the variant to
// dense only; a dense failure is returned.
func (r *Retriever) rankVariant(ctx context.Context, logger *slog.Logger, idx *store.Index, lexical store.LexicalRanker, text string, vec []float32, opts Options) ([]FusedHit, error) {
	candK := opts.candidateK()

	var (
		dense   RankedList
		sims    []float32
		lexList RankedList
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		neighbors, err := idx.NearestByVector(vec, candK)
		if err != nil {
			return err
		}
		dense = make(RankedList, len(neighbors))
		sims = make([]float32, len(neighbors))
		for i, n := range neighbors {
			dense[i] = n.Ordinal
			sims[i] = n.Similarity()
		}
		return nil
	})
	if lexical != nil {
		g.Go(func() error {
			start := time.Now()
			scores, err := lexical.Score(gctx, store.Tokenize(text))
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Debug("lexical scoring failed, using dense ranking for variant",
						slog.String("backend", lexical.Name()),
						slog.String("error", err.Error()))
					r.notifier.Warn(conditionLexicalScoring, "lexical scoring failed, affected variants use dense ranking",
						slog.String("backend", lexical.Name()),
						slog.String("error", err.Error()))
				}
				return nil
			}
			lexList = topLexical(scores, candK)
			logger.Debug("lexical scored",
				slog.String("backend", lexical.Name()),
				slog.Int("matches", len(lexList)),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return FuseRRF(dense, sims, lexList, opts.RRFK), nil
}
