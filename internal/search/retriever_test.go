package search

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
	"github.com/bjornefisk/StudyTutor/internal/store"
)

// photosynCorpus has one chunk (ordinal 5) holding the token PHOTOSYN_42.
// Dense similarity to the query vector [1,0,0] falls with the ordinal, so
// ordinal 5 is only sixth by embedding.
func photosynCorpus() ([]string, [][]float32) {
	texts := []string{
		"Chlorophyll absorbs red and blue light in the leaf",
		"The Calvin cycle fixes carbon dioxide into sugars",
		"Stomata regulate gas exchange in plants",
		"Mitochondria produce ATP through respiration",
		"Thylakoid membranes host the light reactions",
		"Lab code PHOTOSYN_42 covers the electron transport chain",
		"Plant cells have rigid cell walls made of cellulose",
		"Xylem carries water from roots to leaves",
		"Phloem distributes sugars through the plant",
		"Glucose is stored as starch in many plants",
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0.15 * float32(i), 0}
	}
	return texts, vectors
}

func TestRetrieve_ScenarioA_LexicalSignalRanksExactTokenFirst(t *testing.T) {
	for _, backend := range []string{store.LexicalMemory, store.LexicalBleve, store.LexicalSQLite} {
		t.Run(backend, func(t *testing.T) {
			// Given: a corpus where only ordinal 5 contains PHOTOSYN_42 and
			// its embedding similarity is mediocre
			texts, vectors := photosynCorpus()
			idx := buildIndex(t, texts, vectors, backend)
			r := NewRetriever(newFakeEmbedder([]float32{1, 0, 0}))

			// When: retrieving with the lexical signal on
			results, err := r.Retrieve(context.Background(), idx, "PHOTOSYN_42", hybridOptions(3))

			// Then: the exact-token chunk ranks first
			require.NoError(t, err)
			require.NotEmpty(t, results)
			assert.Equal(t, 5, results[0].Ordinal)
			assert.Contains(t, results[0].Chunk.Text, "PHOTOSYN_42")
			assert.InDelta(t, 1.0/66+1.0/61, results[0].Score, 1e-9)
		})
	}
}

func TestRetrieve_ScenarioB_DenseOnlyRanksExactTokenLower(t *testing.T) {
	// Given: the Scenario A corpus
	texts, vectors := photosynCorpus()
	idx := buildIndex(t, texts, vectors, store.LexicalMemory)
	r := NewRetriever(newFakeEmbedder([]float32{1, 0, 0}))

	opts := hybridOptions(10)
	opts.UseHybrid = false

	// When: retrieving without the lexical signal
	results, err := r.Retrieve(context.Background(), idx, "PHOTOSYN_42", opts)

	// Then: ordering is purely by embedding and ordinal 5 is sixth
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, ordinals(results))
	assert.NotEqual(t, 5, results[0].Ordinal)
	assert.InDelta(t, 1.0/61, results[0].Score, 1e-9)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
}

// scenarioCIndex has ten orthogonal chunks. Each variant's vector puts
// ordinal 7 in its top two next to a chunk only that variant finds.
func scenarioCIndex(t *testing.T) (*store.Index, *fakeEmbedder) {
	t.Helper()
	const dim = 10
	texts := make([]string, dim)
	vectors := make([][]float32, dim)
	for i := range dim {
		texts[i] = fmt.Sprintf("chunk number %d", i)
		vectors[i] = unit(dim, i)
	}
	idx := buildIndex(t, texts, vectors, "")

	emb := newFakeEmbedder(unit(dim, 9))
	emb.vectors["What is X"] = mix(dim, map[int]float32{0: 1, 7: 0.9})
	emb.vectors["Explain X"] = mix(dim, map[int]float32{7: 1, 3: 0.9})
	emb.vectors["X definition"] = mix(dim, map[int]float32{5: 1, 7: 0.9})
	return idx, emb
}

func multiQueryOptions(topK int) Options {
	return Options{
		TopK:          topK,
		UseMultiQuery: true,
		NumVariations: 3,
		UseHybrid:     false,
		RRFK:          DefaultRRFConstant,
		CandidateK:    2,
	}
}

func TestRetrieve_ScenarioC_ConsistentChunkWinsMerge(t *testing.T) {
	// Given: three variants that all surface ordinal 7
	idx, emb := scenarioCIndex(t)
	exp := &scriptedExpander{variants: []string{"Explain X", "X definition"}}
	r := NewRetriever(emb, WithExpander(exp))

	// When: retrieving with multi-query
	results, err := r.Retrieve(context.Background(), idx, "What is X", multiQueryOptions(5))

	// Then: ordinal 7 is first and beats every single-variant chunk
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, 7, results[0].Ordinal)
	assert.Equal(t, 3, results[0].Variants)
	assert.InDelta(t, 2.0/62+1.0/61, results[0].Score, 1e-9)
	for _, res := range results[1:] {
		assert.Equal(t, 1, res.Variants)
		assert.Greater(t, results[0].Score, res.Score)
	}

	// And: equal scores fall back to the variant that surfaced them first
	assert.Equal(t, []int{7, 0, 5, 3}, ordinals(results))
}

func TestRetrieve_ScenarioD_PrimaryEmbedFailureIsFatal(t *testing.T) {
	// Given: an embedder that fails on the original query
	idx, emb := scenarioCIndex(t)
	emb.fail["What is X"] = true
	exp := &scriptedExpander{variants: []string{"Explain X", "X definition"}}
	r := NewRetriever(emb, WithExpander(exp))

	// When: retrieving with multi-query
	results, err := r.Retrieve(context.Background(), idx, "What is X", multiQueryOptions(3))

	// Then: the call fails before any variant work
	require.Error(t, err)
	assert.Nil(t, results)
	assert.ErrorIs(t, err, tterrors.ErrRetrievalUnavailable)
	assert.Equal(t, 0, exp.Calls())
	assert.Equal(t, []string{"What is X"}, emb.Calls())
}

func TestRetrieve_ExpansionEmbedFailureDropsVariant(t *testing.T) {
	// Given: the second variant fails to embed
	idx, emb := scenarioCIndex(t)
	emb.fail["X definition"] = true
	exp := &scriptedExpander{variants: []string{"Explain X", "X definition"}}
	rec := newFakeRecorder()
	r := NewRetriever(emb, WithExpander(exp), WithRecorder(rec))

	// When: retrieving
	results, err := r.Retrieve(context.Background(), idx, "What is X", multiQueryOptions(5))

	// Then: the call succeeds without that variant's chunks
	require.NoError(t, err)
	assert.Equal(t, []int{7, 0, 3}, ordinals(results))
	assert.Equal(t, 2, results[0].Variants)
	assert.Equal(t, 1, rec.dropped(DropEmbedFailed))
}

func TestRetrieve_VariantPastDeadlineIsExcluded(t *testing.T) {
	// Given: an expansion variant whose embedding never finishes
	idx, emb := scenarioCIndex(t)
	emb.block["Explain X"] = true
	exp := &scriptedExpander{variants: []string{"Explain X"}}
	rec := newFakeRecorder()
	r := NewRetriever(emb, WithExpander(exp), WithRecorder(rec))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// When: retrieving under a short deadline
	results, err := r.Retrieve(ctx, idx, "What is X", multiQueryOptions(5))

	// Then: the primary results come back and the variant is dropped
	require.NoError(t, err)
	assert.Equal(t, []int{0, 7}, ordinals(results))
	assert.Equal(t, 1, rec.dropped(DropDeadline))
}

func TestRetrieve_DedupsVariantsBeforeEmbedding(t *testing.T) {
	// Given: an expander echoing the original and padding a duplicate
	idx, emb := scenarioCIndex(t)
	exp := &scriptedExpander{variants: []string{"What is X", "  Explain X  ", "Explain X"}}
	r := NewRetriever(emb, WithExpander(exp))

	opts := multiQueryOptions(5)
	opts.NumVariations = 4

	// When: retrieving
	_, err := r.Retrieve(context.Background(), idx, "What is X", opts)

	// Then: each distinct text is embedded exactly once
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"What is X", "Explain X"}, emb.Calls())
}

func TestRetrieve_MultiQueryOffIgnoresExpander(t *testing.T) {
	idx, emb := scenarioCIndex(t)
	exp := &scriptedExpander{variants: []string{"Explain X"}}
	r := NewRetriever(emb, WithExpander(exp))

	opts := multiQueryOptions(5)
	opts.UseMultiQuery = false

	results, err := r.Retrieve(context.Background(), idx, "What is X", opts)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 7}, ordinals(results))
	assert.Equal(t, 0, exp.Calls())
}

func TestRetrieve_AtMostKNoDuplicates(t *testing.T) {
	// Given: a hybrid index and heuristic expansion
	texts, vectors := photosynCorpus()
	idx := buildIndex(t, texts, vectors, store.LexicalMemory)
	r := NewRetriever(newFakeEmbedder([]float32{1, 0, 0}), WithExpander(HeuristicExpander{}))

	for k := 0; k <= 12; k++ {
		for _, multi := range []bool{false, true} {
			opts := hybridOptions(k)
			opts.UseMultiQuery = multi

			// When: retrieving with top_k = k
			results, err := r.Retrieve(context.Background(), idx, "What is the light reaction in plants?", opts)

			// Then: at most k results, each ordinal once
			require.NoError(t, err)
			assert.LessOrEqual(t, len(results), k)
			seen := map[int]bool{}
			for _, res := range results {
				assert.False(t, seen[res.Ordinal], "duplicate ordinal %d at k=%d", res.Ordinal, k)
				seen[res.Ordinal] = true
			}
			for i := 1; i < len(results); i++ {
				assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
			}
		}
	}
}

func TestRetrieve_Deterministic(t *testing.T) {
	texts, vectors := photosynCorpus()
	idx := buildIndex(t, texts, vectors, store.LexicalMemory)
	r := NewRetriever(newFakeEmbedder([]float32{1, 0.4, 0}))

	first, err := r.Retrieve(context.Background(), idx, "light reactions in the leaf", hybridOptions(10))
	require.NoError(t, err)

	for range 5 {
		again, err := r.Retrieve(context.Background(), idx, "light reactions in the leaf", hybridOptions(10))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRetrieve_DegradationEquivalence(t *testing.T) {
	// Given: an index without a lexical ranker
	texts, vectors := photosynCorpus()
	idx := buildIndex(t, texts, vectors, "")
	require.Nil(t, idx.Lexical())
	r := NewRetriever(newFakeEmbedder([]float32{1, 0.3, 0}))

	// When: retrieving with and without hybrid
	hybrid, err := r.Retrieve(context.Background(), idx, "PHOTOSYN_42", hybridOptions(5))
	require.NoError(t, err)
	opts := hybridOptions(5)
	opts.UseHybrid = false
	dense, err := r.Retrieve(context.Background(), idx, "PHOTOSYN_42", opts)
	require.NoError(t, err)

	// Then: the outputs are identical
	assert.Equal(t, dense, hybrid)
}

func TestRetrieve_EmptyQueryAndZeroK(t *testing.T) {
	texts, vectors := photosynCorpus()
	idx := buildIndex(t, texts, vectors, store.LexicalMemory)
	emb := newFakeEmbedder([]float32{1, 0, 0})
	r := NewRetriever(emb)

	results, err := r.Retrieve(context.Background(), idx, "   ", hybridOptions(3))
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = r.Retrieve(context.Background(), idx, "leaf", hybridOptions(0))
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.Empty(t, emb.Calls())
}

func TestRetrieve_InvalidOptions(t *testing.T) {
	texts, vectors := photosynCorpus()
	idx := buildIndex(t, texts, vectors, "")
	r := NewRetriever(newFakeEmbedder([]float32{1, 0, 0}))

	opts := hybridOptions(-1)
	_, err := r.Retrieve(context.Background(), idx, "leaf", opts)
	assert.ErrorIs(t, err, tterrors.ErrInvalidInput)

	opts = hybridOptions(3)
	opts.RRFK = 0
	_, err = r.Retrieve(context.Background(), idx, "leaf", opts)
	assert.ErrorIs(t, err, tterrors.ErrInvalidInput)
}

func TestRetrieve_DimensionMismatchIsUnavailable(t *testing.T) {
	texts, vectors := photosynCorpus()
	idx := buildIndex(t, texts, vectors, "")
	r := NewRetriever(newFakeEmbedder([]float32{1, 0, 0, 0}))

	_, err := r.Retrieve(context.Background(), idx, "leaf", hybridOptions(3))
	require.Error(t, err)
	assert.ErrorIs(t, err, tterrors.ErrRetrievalUnavailable)
	assert.ErrorIs(t, err, tterrors.ErrDimensionMismatch)
}

func TestRetrieve_NilIndexIsNotReady(t *testing.T) {
	r := NewRetriever(newFakeEmbedder([]float32{1, 0, 0}))
	_, err := r.Retrieve(context.Background(), nil, "leaf", hybridOptions(3))
	assert.ErrorIs(t, err, tterrors.ErrNotReady)
}

func TestRetrieve_ConcurrentCallsShareIndex(t *testing.T) {
	texts, vectors := photosynCorpus()
	idx := buildIndex(t, texts, vectors, store.LexicalMemory)
	r := NewRetriever(newFakeEmbedder([]float32{1, 0, 0}), WithExpander(HeuristicExpander{}))

	opts := hybridOptions(3)
	opts.UseMultiQuery = true
	want, err := r.Retrieve(context.Background(), idx, "What is PHOTOSYN_42?", opts)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.Retrieve(context.Background(), idx, "What is PHOTOSYN_42?", opts)
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

// fakeRecorder counts metrics calls.
type fakeRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
	drops    map[string]int
	chunks   int
	lexical  bool
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{outcomes: map[string]int{}, drops: map[string]int{}}
}

func (f *fakeRecorder) ObserveRetrieve(outcome string, _ time.Duration, _ int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[outcome]++
}

func (f *fakeRecorder) ObserveQuery(string, int, time.Duration) {}

func (f *fakeRecorder) VariantDropped(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drops[reason]++
}

func (f *fakeRecorder) IndexState(chunks int, lexical bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks, f.lexical = chunks, lexical
}

func (f *fakeRecorder) dropped(reason string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drops[reason]
}

func (f *fakeRecorder) outcome(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outcomes[name]
}
