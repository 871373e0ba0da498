package gradio

import (
	"sync"
	"sync/atomic"
	"time"
)

// CacheStats is a point-in-time snapshot of one cache's counters.
type CacheStats struct {
	Hits              int64 `json:"hits"`
	Misses            int64 `json:"misses"`
	Size              int   `json:"size"`
	ETagRevalidations int64 `json:"etagRevalidations,omitempty"`
}

// cacheEntry pairs a value with its creation timestamp. Expiration is
// measured from creation, never from last access, so entries expire
// predictably under frequent reads.
type cacheEntry[V any] struct {
	value     V
	fetchedAt time.Time
}

// Cache is a concurrent in-memory TTL cache keyed by space name. It backs
// both cache levels (metadata and schema). The privacy invariant — private
// spaces are never stored — is enforced at the fetcher call sites, not here.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry[V]
	ttl     time.Duration

	hits          atomic.Int64
	misses        atomic.Int64
	revalidations atomic.Int64
}

// NewCache creates a cache whose entries expire ttl after creation.
func NewCache[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]cacheEntry[V]),
		ttl:     ttl,
	}
}

// Get returns a live entry. Expired entries count as misses but are left in
// place so GetForRevalidation can still surface them for their ETag.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Since(entry.fetchedAt) >= c.ttl {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	return entry.value, true
}

// GetForRevalidation returns an entry regardless of expiry, so the caller
// can attach its ETag to a conditional refetch. Does not touch statistics.
func (c *Cache[V]) GetForRevalidation(key string) (V, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Set stores a value with a fresh creation timestamp, overwriting in place.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	c.entries[key] = cacheEntry[V]{value: value, fetchedAt: time.Now()}
	c.mu.Unlock()
}

// Revalidate refreshes an entry's creation timestamp after a 304 answer and
// counts the revalidation. Returns false when the entry is gone.
func (c *Cache[V]) Revalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	entry.fetchedAt = time.Now()
	c.entries[key] = entry
	c.revalidations.Add(1)
	return true
}

// FetchedAt returns an entry's creation timestamp, mainly for tests and the
// management surface.
func (c *Cache[V]) FetchedAt(key string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry.fetchedAt, ok
}

// Clear drops every entry and resets all statistics to zero.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry[V])
	c.mu.Unlock()
	c.hits.Store(0)
	c.misses.Store(0)
	c.revalidations.Store(0)
}

// Size returns the number of stored entries, expired or not.
func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() CacheStats {
	return CacheStats{
		Hits:              c.hits.Load(),
		Misses:            c.misses.Load(),
		Size:              c.Size(),
		ETagRevalidations: c.revalidations.Load(),
	}
}
