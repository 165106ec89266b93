package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// StaticModelName identifies the hash embedding scheme. Bump it if the
// feature weights or hashing change, since stored vectors stop matching.
const StaticModelName = "hash-v1"

// Feature weights for the hash embedding.
const (
	wordWeight    = 0.7
	trigramWeight = 0.3
	trigramSize   = 3
)

// englishStopWords are dropped from word features.
var englishStopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "was": true, "what": true, "with": true,
}

// StaticEmbedder hashes words and character trigrams into a fixed vector.
// It needs no network or model, is fully deterministic and captures
// lexical overlap only.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed implements Embedder. Blank text yields the zero vector.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, unavailable(ProviderStatic, fmt.Errorf("embedder is closed"))
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}
	return normalizeVector(hashFeatures(trimmed)), nil
}

func hashFeatures(text string) []float32 {
	vector := make([]float32, StaticDimensions)

	for _, w := range words(text) {
		if englishStopWords[w] {
			continue
		}
		vector[hashToIndex("w:"+w, StaticDimensions)] += wordWeight
	}

	for _, g := range trigrams(lettersOnly(text)) {
		vector[hashToIndex("g:"+g, StaticDimensions)] += trigramWeight
	}
	return vector
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
}

func lettersOnly(text string) []rune {
	var out []rune
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out = append(out, r)
		}
	}
	return out
}

// trigrams returns the rune trigrams of s.
func trigrams(s []rune) []string {
	if len(s) < trigramSize {
		return []string{}
	}
	out := make([]string, 0, len(s)-trigramSize+1)
	for i := 0; i+trigramSize <= len(s); i++ {
		out = append(out, string(s[i:i+trigramSize]))
	}
	return out
}

// hashToIndex maps s onto [0, size) with FNV-64.
func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

// Dimensions returns StaticDimensions.
func (e *StaticEmbedder) Dimensions() int { return StaticDimensions }

// ModelName returns StaticModelName.
func (e *StaticEmbedder) ModelName() string { return StaticModelName }

// Backend returns "static".
func (e *StaticEmbedder) Backend() string { return ProviderStatic }

// Available is true until Close.
func (e *StaticEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close marks the embedder closed.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
