package embedding

import (
	"context"
	"sync"
)

// Cache is a concurrent read-through cache in front of a Provider, keyed by
// the exact (normalized) text. It is scoped to a single evaluation run: the
// same utterance is queried by many behaviors within a run, but vectors are
// never shared across runs.
//
// Concurrent requests for the same key wait on a single provider call rather
// than issuing duplicates.
type Cache struct {
	provider Provider

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	mu   sync.Mutex
	done bool
	vec  []float64
}

// NewCache wraps the provider with a fresh, empty cache.
func NewCache(provider Provider) *Cache {
	return &Cache{
		provider: provider,
		entries:  make(map[string]*cacheEntry),
	}
}

// Embed returns the cached vector for text, computing it at most once on
// success. Failures are never cached: each failed call carries its caller's
// context, and one behavior's expired deadline must not degrade every other
// behavior querying the same utterance. Concurrent callers for the same text
// serialize on the entry, so a success is still computed only once.
func (c *Cache) Embed(ctx context.Context, text string) ([]float64, error) {
	c.mu.Lock()
	e, ok := c.entries[text]
	if !ok {
		e = &cacheEntry{}
		c.entries[text] = e
	}
	c.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return e.vec, nil
	}
	vec, err := c.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.vec = vec
	e.done = true
	return vec, nil
}

// Len reports how many distinct texts have been requested.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
