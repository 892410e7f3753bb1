package embed

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 512

// Cached wraps an Embedder with an in-memory LRU of recent results.
//
// The speech pipeline embeds a text once during cache lookup and, on a miss,
// again during store. The wrapper collapses that pair (and bursts of
// identical requests) into a single upstream call. It is safe for concurrent
// use; concurrent misses for the same text may each call upstream, which is
// wasteful but harmless.
type Cached struct {
	inner Embedder
	lru   *lru.Cache[string, []float32]
}

var _ Embedder = (*Cached)(nil)

// NewCached wraps inner with an LRU of the given size.
// size <= 0 uses a default of 512 entries.
func NewCached(inner Embedder, size int) *Cached {
	if size <= 0 {
		size = defaultCacheSize
	}
	// Only errors on size <= 0, which is excluded above.
	c, _ := lru.New[string, []float32](size)
	return &Cached{inner: inner, lru: c}
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.lru.Get(text); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.lru.Add(text, vec)
	return vec, nil
}

func (c *Cached) Dimension() int {
	return c.inner.Dimension()
}
