// Package embed converts text to fixed-dimension vectors.
//
// Every backend L2-normalises its output and wraps failures in
// ErrEmbeddingUnavailable. Nothing in this package retries; the caller
// decides whether to retry or degrade.
package embed

import (
	"context"
	"fmt"
	"math"
	"time"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
)

// Embedding defaults.
const (
	// DefaultTimeout bounds a single embedding request when the caller's
	// context has no earlier deadline.
	DefaultTimeout = 30 * time.Second

	// DefaultEmbeddingCacheSize is the number of query embeddings kept in
	// memory. At 768 dimensions that is about 3MB.
	DefaultEmbeddingCacheSize = 1000

	// StaticDimensions is the dimension of the hash embedder.
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text.
// Output for identical (backend, model, text) is deterministic; vectors
// from different backends are not comparable.
type Embedder interface {
	// Embed generates the embedding for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension, or 0 if not yet known.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Backend returns the provider name, e.g. "ollama".
	Backend() string

	// Available checks whether the backend can currently serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector returns v scaled to unit length. Zero vectors are
// returned as-is.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// unavailable wraps a backend failure.
func unavailable(backend string, err error) error {
	return tterrors.EmbeddingUnavailable(fmt.Sprintf("%s embedding failed", backend), err).
		WithDetail("backend", backend)
}

// withDefaultTimeout applies timeout unless ctx already ends sooner.
func withDefaultTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
