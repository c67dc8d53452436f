// Package client implements the editor-side core: a key-addressed query
// cache with optimistic writes, the drag-reorder coordinator, and a REST
// client for the API. The persistent store stays the single source of truth;
// everything cached here is a disposable projection that can be rebuilt by a
// refetch.
package client

import (
	"context"
	"sync"
	"time"
)

type queryEntry struct {
	value     interface{}
	fetchedAt time.Time
	stale     bool
}

// QueryCache holds server query results under stable composite keys. Entries
// are fresh for a bounded window and can be explicitly invalidated or marked
// stale; a stale or missing entry forces the next read through the fetcher.
type QueryCache struct {
	mu         sync.Mutex
	staleAfter time.Duration
	now        func() time.Time
	entries    map[string]*queryEntry
}

const DefaultStaleAfter = 5 * time.Minute

func NewQueryCache(staleAfter time.Duration) *QueryCache {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &QueryCache{
		staleAfter: staleAfter,
		now:        time.Now,
		entries:    map[string]*queryEntry{},
	}
}

// Get returns the cached value and whether it is still fresh. A stale value
// is not returned: the caller must refetch.
func (c *QueryCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.stale || c.now().Sub(e.fetchedAt) >= c.staleAfter {
		return nil, false
	}
	return e.value, true
}

// Set stores a server-confirmed value.
func (c *QueryCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &queryEntry{value: value, fetchedAt: c.now()}
}

// SetOptimistic stores a locally computed value before server confirmation.
// The write is provisional: the mutation that produced it must either
// confirm it (Set) or roll it back (Invalidate) once the server call
// settles.
func (c *QueryCache) SetOptimistic(key string, value interface{}) {
	c.Set(key, value)
}

// Invalidate drops the entry entirely; the next read goes to the server.
func (c *QueryCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// MarkStale keeps the entry but forces a refetch on the next read. Used by
// cross-context signals, which carry no payload to trust.
func (c *QueryCache) MarkStale(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.stale = true
	}
}

// GetOrFetch returns the fresh cached value or runs fetch and caches its
// result.
func (c *QueryCache) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.Set(key, v)
	return v, nil
}
