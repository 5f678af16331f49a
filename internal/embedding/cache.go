package embedding

import (
	"context"
	"sync"
)

// Cache stores vectors keyed by the content hash of normalized text. Both
// implementations are best-effort: a failing lookup is a miss, never an error
// surfaced to scoring.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Put(ctx context.Context, key string, vector []float32)
}

const defaultMaxEntries = 4096

// MemoryCache is a bounded in-process cache evicting the oldest entries once
// full.
type MemoryCache struct {
	mu         sync.RWMutex
	maxEntries int
	entries    map[string][]float32
	order      []string
}

func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &MemoryCache{
		maxEntries: maxEntries,
		entries:    make(map[string][]float32),
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vector, ok := c.entries[key]
	return vector, ok
}

func (c *MemoryCache) Put(_ context.Context, key string, vector []float32) {
	if len(vector) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = vector
		return
	}

	c.entries[key] = vector
	c.order = append(c.order, key)

	for len(c.order) > c.maxEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// Len reports the number of cached vectors.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
