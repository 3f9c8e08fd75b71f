// Package lru implements a bounded LRU cache with optional entry expiry.
//
// It backs the geolocation hot cache and the enrichment failure cooldown.
// When a TTL is set, entries older than the TTL are treated as absent and
// dropped lazily on access. Expiry is measured from the last Put of a key.
//
// Thread Safety: All methods are safe for concurrent access.
package lru

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a generic LRU cache with optional expiry.
//
// Type Parameters:
//   - K: Key type (must be comparable)
//   - V: Value type (any)
type Cache[K comparable, V any] struct {
	capacity int                 // Maximum items before eviction
	ttl      time.Duration       // Zero means entries never expire
	now      func() time.Time    // Clock, replaceable in tests
	mu       sync.Mutex          // Protects all fields
	list     *list.List          // LRU order (front = most recent)
	items    map[K]*list.Element // Key -> list element lookup
}

// entry stores key-value pair in list elements.
type entry[K comparable, V any] struct {
	key     K
	value   V
	expires time.Time
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	ttl time.Duration
	now func() time.Time
}

// WithTTL makes entries expire ttl after they were last stored.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates an LRU cache with the given capacity.
//
// Parameters:
//   - capacity: Maximum items before eviction (default: 1000 if <= 0)
//   - opts: WithTTL, WithClock
func New[K comparable, V any](capacity int, opts ...Option) *Cache[K, V] {
	if capacity <= 0 {
		capacity = 1000
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[K, V]{
		capacity: capacity,
		ttl:      o.ttl,
		now:      o.now,
		list:     list.New(),
		items:    make(map[K]*list.Element),
	}
}

func (c *Cache[K, V]) expired(e *entry[K, V]) bool {
	return c.ttl > 0 && !c.now().Before(e.expires)
}

// Get retrieves a live value by key and moves it to most recently used.
// Expired entries are removed and reported as not found.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := elem.Value.(*entry[K, V])
	if c.expired(e) {
		c.list.Remove(elem)
		delete(c.items, key)
		return zero, false
	}
	c.list.MoveToFront(elem)
	return e.value, true
}

// Contains reports whether key holds a live value without touching its
// recency.
func (c *Cache[K, V]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	return ok && !c.expired(elem.Value.(*entry[K, V]))
}

// Put stores a key-value pair, evicting the LRU item if at capacity.
// Storing an existing key refreshes its expiry.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if elem, ok := c.items[key]; ok {
		c.list.MoveToFront(elem)
		e := elem.Value.(*entry[K, V])
		e.value = value
		e.expires = expires
		return
	}

	elem := c.list.PushFront(&entry[K, V]{key: key, value: value, expires: expires})
	c.items[key] = elem

	for c.list.Len() > c.capacity {
		back := c.list.Back()
		c.list.Remove(back)
		delete(c.items, back.Value.(*entry[K, V]).key)
	}
}

// Len returns the number of stored items, expired ones included until they
// are next accessed.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Len()
}
