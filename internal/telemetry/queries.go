package telemetry

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryKind classifies a query by its surface form.
type QueryKind string

const (
	// QueryKindQuestion is natural language, e.g. "what is osmosis?".
	QueryKindQuestion QueryKind = "question"
	// QueryKindKeyword is short or identifier-like, e.g. "PHOTOSYN_42".
	QueryKindKeyword QueryKind = "keyword"
	// QueryKindMixed is a natural phrase that also carries identifiers.
	QueryKindMixed QueryKind = "mixed"
)

var questionWords = map[string]bool{
	"what": true, "why": true, "how": true, "when": true, "where": true,
	"who": true, "which": true, "explain": true, "describe": true, "define": true,
}

// ClassifyQuery returns the QueryKind for query.
func ClassifyQuery(query string) QueryKind {
	words := strings.Fields(strings.TrimSpace(query))
	if len(words) == 0 {
		return QueryKindKeyword
	}
	question := strings.HasSuffix(query, "?") || questionWords[strings.ToLower(words[0])] || len(words) >= 5
	identifier := false
	for _, w := range words {
		if strings.ContainsAny(w, "_0123456789") || isAllUpper(w) {
			identifier = true
			break
		}
	}
	switch {
	case question && identifier:
		return QueryKindMixed
	case question:
		return QueryKindQuestion
	default:
		return QueryKindKeyword
	}
}

func isAllUpper(w string) bool {
	letters := 0
	for _, r := range w {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 2
}

// LatencyBucket is a coarse latency class.
type LatencyBucket string

const (
	BucketP50   LatencyBucket = "p50"   // <50ms
	BucketP250  LatencyBucket = "p250"  // 50-250ms
	BucketP1000 LatencyBucket = "p1000" // 250ms-1s
	BucketSlow  LatencyBucket = "slow"  // >=1s
)

// LatencyToBucket converts a duration to its bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 50:
		return BucketP50
	case ms < 250:
		return BucketP250
	case ms < 1000:
		return BucketP1000
	default:
		return BucketSlow
	}
}

// QueryEvent is one completed retrieval.
type QueryEvent struct {
	Query       string
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// CircularBuffer keeps the last capacity items.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int // next write position
	size     int
	capacity int
}

// NewCircularBuffer creates a buffer; capacity <= 0 means 100.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add appends item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffered items, oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the number of buffered items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// TermCount is a query term and how often it was seen.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// QueryStatsSnapshot is a point-in-time copy of QueryStats.
type QueryStatsSnapshot struct {
	TotalQueries        int64                   `json:"total_queries"`
	KindCounts          map[QueryKind]int64     `json:"kind_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	RepeatCount         int64                   `json:"repeat_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultRate is the share of queries that returned nothing.
func (s *QueryStatsSnapshot) ZeroResultRate() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries)
}

// QueryStatsConfig sizes the trackers.
type QueryStatsConfig struct {
	TopTermsCapacity    int // default 100
	ZeroResultsCapacity int // default 50
	RecentCapacity      int // default 500
}

// QueryStats aggregates query patterns in memory: kinds, frequent terms,
// zero-result queries, latency classes and exact repeats.
type QueryStats struct {
	mu sync.Mutex

	total       int64
	kinds       map[QueryKind]int64
	topTerms    *lru.Cache[string, int64]
	zeroResults *CircularBuffer[string]
	zeroCount   int64
	latencies   map[LatencyBucket]int64
	recent      *lru.Cache[string, struct{}]
	repeats     int64
	since       time.Time
}

// NewQueryStats creates an empty tracker.
func NewQueryStats(cfg QueryStatsConfig) *QueryStats {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 50
	}
	if cfg.RecentCapacity <= 0 {
		cfg.RecentCapacity = 500
	}
	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentCapacity)
	return &QueryStats{
		kinds:       make(map[QueryKind]int64),
		topTerms:    topTerms,
		zeroResults: NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:   make(map[LatencyBucket]int64),
		recent:      recent,
		since:       time.Now(),
	}
}

// Record adds one event.
func (q *QueryStats) Record(e QueryEvent) {
	query := strings.TrimSpace(e.Query)
	if query == "" {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.total++
	q.kinds[ClassifyQuery(query)]++
	for _, term := range extractTerms(query) {
		n, _ := q.topTerms.Get(term)
		q.topTerms.Add(term, n+1)
	}
	if e.ResultCount == 0 {
		q.zeroResults.Add(query)
		q.zeroCount++
	}
	q.latencies[LatencyToBucket(e.Latency)]++

	key := hashQuery(query)
	if _, ok := q.recent.Get(key); ok {
		q.repeats++
	}
	q.recent.Add(key, struct{}{})
}

// Snapshot copies the current statistics. Top terms are ordered by count
// descending, then term.
func (q *QueryStats) Snapshot() *QueryStatsSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	kinds := make(map[QueryKind]int64, len(q.kinds))
	for k, v := range q.kinds {
		kinds[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(q.latencies))
	for k, v := range q.latencies {
		latencies[k] = v
	}

	terms := make([]TermCount, 0, q.topTerms.Len())
	for _, key := range q.topTerms.Keys() {
		if n, ok := q.topTerms.Peek(key); ok {
			terms = append(terms, TermCount{Term: key, Count: n})
		}
	}
	slices.SortFunc(terms, func(a, b TermCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Term, b.Term)
	})

	return &QueryStatsSnapshot{
		TotalQueries:        q.total,
		KindCounts:          kinds,
		TopTerms:            terms,
		ZeroResultQueries:   q.zeroResults.Items(),
		ZeroResultCount:     q.zeroCount,
		LatencyDistribution: latencies,
		RepeatCount:         q.repeats,
		Since:               q.since,
	}
}

// extractTerms lower-cases query and keeps words of three or more
// characters.
func extractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' })
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(query)))
	return hex.EncodeToString(sum[:16])
}
