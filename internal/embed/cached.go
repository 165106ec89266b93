package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder wraps an Embedder with an in-memory LRU and an optional
// persistent layer underneath it. Repeated queries skip the backend.
type CachedEmbedder struct {
	inner      Embedder
	cache      *lru.Cache[string, []float32]
	persistent *PersistentCache
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with an LRU of cacheSize entries.
// persistent may be nil. The CachedEmbedder owns persistent and closes it.
func NewCachedEmbedder(inner Embedder, cacheSize int, persistent *PersistentCache) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedEmbedder{
		inner:      inner,
		cache:      cache,
		persistent: persistent,
	}
}

// cacheKey hashes backend, model and text so keys have a fixed length and
// vectors from different models never collide.
func (c *CachedEmbedder) cacheKey(text string) string {
	combined := c.inner.Backend() + "\x00" + c.inner.ModelName() + "\x00" + text
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// Embed returns a cached embedding if available, otherwise computes and
// caches it. Errors are never cached. The returned slice is the caller's
// own copy.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if vec, ok := c.cache.Get(key); ok {
		return slices.Clone(vec), nil
	}
	if c.persistent != nil {
		if vec, ok := c.persistent.Get(key); ok {
			c.cache.Add(key, vec)
			return slices.Clone(vec), nil
		}
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, slices.Clone(vec))
	if c.persistent != nil {
		c.persistent.Put(key, vec)
	}
	return vec, nil
}

// Dimensions passes through to the inner embedder.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// ModelName passes through to the inner embedder.
func (c *CachedEmbedder) ModelName() string { return c.inner.ModelName() }

// Backend passes through to the inner embedder.
func (c *CachedEmbedder) Backend() string { return c.inner.Backend() }

// Available passes through to the inner embedder.
func (c *CachedEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }

// Close closes the persistent cache and the inner embedder.
func (c *CachedEmbedder) Close() error {
	c.cache.Purge()
	var perr error
	if c.persistent != nil {
		perr = c.persistent.Close()
	}
	if err := c.inner.Close(); err != nil {
		return err
	}
	return perr
}

// CacheLen returns the number of in-memory entries.
func (c *CachedEmbedder) CacheLen() int { return c.cache.Len() }

// Inner returns the wrapped embedder.
func (c *CachedEmbedder) Inner() Embedder { return c.inner }
