// Package cache provides an expiring LRU cache: entries are bounded
// by a fixed capacity with LRU eviction and become misses after a
// fixed TTL. An expired entry is not proactively removed; it keeps
// its LRU slot until displaced by capacity pressure or overwritten.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry[V any] struct {
	value V
	ctime time.Time
}

// Cache is a capacity and TTL bounded key/value store. Both bounds
// are fixed at construction. Safe for concurrent use.
type Cache[K comparable, V any] struct {
	ttl   time.Duration
	items *lru.Cache[K, entry[V]]
	now   func() time.Time // injectable for deterministic tests
}

// New creates a Cache holding at most size entries, each live for ttl
// after its most recent Put.
func New[K comparable, V any](size int, ttl time.Duration) (*Cache[K, V], error) {
	items, err := lru.New[K, entry[V]](size)
	if err != nil {
		return nil, err
	}
	return &Cache[K, V]{ttl: ttl, items: items, now: time.Now}, nil
}

// Get returns the cached value for key. A present entry older than
// the TTL is a miss for the caller but stays in the LRU until
// ordinary eviction or a Put displaces it.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V
	e, ok := c.items.Get(key)
	if !ok {
		return zero, false
	}
	if c.now().Sub(e.ctime) > c.ttl {
		return zero, false
	}
	return e.value, true
}

// Put inserts or replaces the value for key, resetting its creation
// time and marking it most recently used.
func (c *Cache[K, V]) Put(key K, value V) {
	c.items.Add(key, entry[V]{value: value, ctime: c.now()})
}

// Del removes the entry for key, if present.
func (c *Cache[K, V]) Del(key K) {
	c.items.Remove(key)
}

// Reset drops every entry.
func (c *Cache[K, V]) Reset() {
	c.items.Purge()
}

// Len reports the number of entries currently held, live or expired.
func (c *Cache[K, V]) Len() int {
	return c.items.Len()
}
