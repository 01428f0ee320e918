// Package cache provides the bounded caches used by the media layer.
package cache

import (
	"sync/atomic"
)

// DefaultCapacity is the default maximum number of entries.
const DefaultCapacity = 30

// Stats contains cache statistics for monitoring.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Capacity is the maximum number of entries.
	Capacity int
	// Hits is the number of cache hits.
	Hits uint64
	// Misses is the number of cache misses.
	Misses uint64
	// HitRate is the cache hit rate (0.0 to 1.0).
	HitRate float64
	// Evictions is the number of entries evicted.
	Evictions uint64
}

// FIFO is a bounded cache that evicts strictly in insertion order.
//
// Unlike an LRU, a hit does not promote an entry: decoded video frames
// are requested in a forward sweep, so the oldest insertion is always
// the least likely to be requested again, and insertion-order eviction
// keeps the bound exact and the bookkeeping trivial.
//
// FIFO is NOT safe for concurrent use. The media layer confines each
// instance to a single-writer owner; statistics counters are atomic so
// monitoring can read them from any goroutine.
type FIFO[K comparable, V any] struct {
	entries  map[K]V
	order    []K // insertion order, oldest first
	capacity int

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewFIFO creates a FIFO cache holding at most capacity entries.
// If capacity <= 0, DefaultCapacity is used.
func NewFIFO[K comparable, V any](capacity int) *FIFO[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &FIFO[K, V]{
		entries:  make(map[K]V, capacity),
		order:    make([]K, 0, capacity),
		capacity: capacity,
	}
}

// Get retrieves a cached value by key.
// Returns (value, true) if found, (zero, false) otherwise.
func (c *FIFO[K, V]) Get(key K) (V, bool) {
	v, ok := c.entries[key]
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Contains reports whether the key is cached without counting a hit.
func (c *FIFO[K, V]) Contains(key K) bool {
	_, ok := c.entries[key]
	return ok
}

// Set stores a value. If the key is already present the value is
// replaced in place and keeps its original eviction position. If the
// cache is full, the oldest insertion is evicted first; the evicted
// value and true are returned so the caller can release resources it
// owns (pooled textures).
func (c *FIFO[K, V]) Set(key K, value V) (evicted V, wasEvicted bool) {
	if _, ok := c.entries[key]; ok {
		c.entries[key] = value
		return evicted, false
	}

	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		evicted = c.entries[oldest]
		delete(c.entries, oldest)
		c.evictions.Add(1)
		wasEvicted = true
	}

	c.entries[key] = value
	c.order = append(c.order, key)
	return evicted, wasEvicted
}

// Clear removes all entries. Values are returned so owners can release
// the resources behind them.
func (c *FIFO[K, V]) Clear() []V {
	values := make([]V, 0, len(c.entries))
	for _, k := range c.order {
		values = append(values, c.entries[k])
	}
	c.entries = make(map[K]V, c.capacity)
	c.order = c.order[:0]
	return values
}

// Len returns the number of entries.
func (c *FIFO[K, V]) Len() int { return len(c.entries) }

// Capacity returns the maximum number of entries.
func (c *FIFO[K, V]) Capacity() int { return c.capacity }

// Stats returns current cache statistics.
func (c *FIFO[K, V]) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Len:       len(c.entries),
		Capacity:  c.capacity,
		Hits:      hits,
		Misses:    misses,
		HitRate:   hitRate,
		Evictions: c.evictions.Load(),
	}
}
