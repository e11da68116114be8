package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/nim-memory/memory"
)

// DefaultMaxEntries bounds the cache when Config.MaxEntries is zero.
const DefaultMaxEntries = 10_000

// Config configures the embedding cache.
type Config struct {
	// MaxEntries is roughly how many embeddings are kept.
	MaxEntries int64
}

// CachedEmbedder wraps an Embedder and memoises vectors by text, so
// repeated queries and re-added fragments skip the embedding round trip.
type CachedEmbedder struct {
	next  memory.Embedder
	cache *ristretto.Cache
}

var _ memory.Embedder = (*CachedEmbedder)(nil)

// New wraps next with a ristretto cache.
func New(next memory.Embedder, cfg Config) (*CachedEmbedder, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.MaxEntries * 10,
		MaxCost:     cfg.MaxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	return &CachedEmbedder{next: next, cache: cache}, nil
}

// Embed returns the cached vector for text or computes and caches it.
// Callers must not modify the returned slice.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v.([]float32), nil
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	// Set may be rejected by the admission policy; the vector is still valid
	c.cache.Set(text, vec, 1)
	return vec, nil
}

// Dimensions forwards to the wrapped embedder.
func (c *CachedEmbedder) Dimensions(ctx context.Context) (int, error) {
	return c.next.Dimensions(ctx)
}

// Wait blocks until pending cache writes are visible.
func (c *CachedEmbedder) Wait() {
	c.cache.Wait()
}

// Close stops the cache's background goroutines.
func (c *CachedEmbedder) Close() {
	c.cache.Close()
}
