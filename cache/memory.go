package cache

import (
	"container/list"
	"sync"
	"time"
)

// Options configures a ResponseCache.
type Options struct {
	Capacity   int           // Maximum number of entries (must be > 0)
	TTL        time.Duration // Entry lifetime from insertion
	AllowStale bool          // Return an expired value once instead of a miss
}

// Stats is a point-in-time view of a cache.
type Stats struct {
	Size      int    `json:"size"`
	Capacity  int    `json:"max"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Stale     uint64 `json:"stale"`
	Evictions uint64 `json:"evictions"`
}

// Entry is an exported view of a cached value.
type Entry[T any] struct {
	Key       string
	Value     T
	ExpiresAt time.Time
}

// entry holds a cached value with its absolute expiry.
type entry[T any] struct {
	key       string
	value     T
	expiresAt time.Time
}

// ResponseCache is a thread-safe, bounded LRU cache with per-instance TTL.
// The front of the list is the most recently used entry.
type ResponseCache[T any] struct {
	capacity   int
	ttl        time.Duration
	allowStale bool
	now        func() time.Time

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List

	hits, misses, stale, evictions uint64
}

// Option adjusts a ResponseCache after construction.
type Option func(*responseCacheConfig)

type responseCacheConfig struct {
	now func() time.Time
}

// WithClock replaces the time source. Used to simulate expiry in tests.
func WithClock(now func() time.Time) Option {
	return func(c *responseCacheConfig) {
		c.now = now
	}
}

// NewResponseCache creates a cache. A non-positive capacity is treated as 1.
func NewResponseCache[T any](opts Options, extra ...Option) *ResponseCache[T] {
	cfg := responseCacheConfig{now: time.Now}
	for _, opt := range extra {
		opt(&cfg)
	}

	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = 1
	}

	return &ResponseCache[T]{
		capacity:   capacity,
		ttl:        opts.TTL,
		allowStale: opts.AllowStale,
		now:        cfg.now,
		items:      make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Set stores a value, evicting the least recently used entry when full.
// Re-setting an existing key overwrites it, resets its expiry and marks it
// most recently used.
func (c *ResponseCache[T]) Set(key string, value T) {
	c.SetWithExpiry(key, value, c.now().Add(c.ttl))
}

// SetWithExpiry stores a value with an explicit expiry instant.
func (c *ResponseCache[T]) SetWithExpiry(key string, value T, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[T])
		e.value = value
		e.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return
	}

	for len(c.items) >= c.capacity {
		c.evictOldest()
	}

	e := &entry[T]{key: key, value: value, expiresAt: expiresAt}
	c.items[key] = c.order.PushFront(e)
}

// Get returns the value for key. An expired entry is always removed; with
// stale reads enabled its value is still returned this one time.
func (c *ResponseCache[T]) Get(key string) (T, bool) {
	v, status := c.Lookup(key)
	return v, status != Miss
}

// Lookup is Get with the kind of result reported.
func (c *ResponseCache[T]) Lookup(key string) (T, Status) {
	var zero T

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, Miss
	}

	e := el.Value.(*entry[T])
	if c.now().After(e.expiresAt) {
		c.removeElement(el)
		if c.allowStale {
			c.stale++
			return e.value, Stale
		}
		c.misses++
		return zero, Miss
	}

	c.order.MoveToFront(el)
	c.hits++
	return e.value, Hit
}

// Has reports whether Get would return a value, with the same side effects.
func (c *ResponseCache[T]) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key and reports whether it was present.
func (c *ResponseCache[T]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(el)
	return true
}

// Clear removes all entries.
func (c *ResponseCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// Cleanup removes expired entries and returns how many were dropped.
// Caches that allow stale reads keep expired entries for their one stale read.
func (c *ResponseCache[T]) Cleanup() int {
	if c.allowStale {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*entry[T]).expiresAt) {
			c.removeElement(el)
			removed++
		}
		el = prev
	}
	return removed
}

// Len returns the number of entries, including expired ones not yet removed.
func (c *ResponseCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Cap returns the configured capacity.
func (c *ResponseCache[T]) Cap() int {
	return c.capacity
}

// TTL returns the configured entry lifetime.
func (c *ResponseCache[T]) TTL() time.Duration {
	return c.ttl
}

// AllowStale reports whether expired entries are served once.
func (c *ResponseCache[T]) AllowStale() bool {
	return c.allowStale
}

// Stats returns size, capacity and counters.
func (c *ResponseCache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      len(c.items),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Stale:     c.stale,
		Evictions: c.evictions,
	}
}

// Entries returns all entries from least to most recently used, expired
// ones included. Used for snapshots.
func (c *ResponseCache[T]) Entries() []Entry[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]Entry[T], 0, len(c.items))
	for el := c.order.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry[T])
		result = append(result, Entry[T]{Key: e.key, Value: e.value, ExpiresAt: e.expiresAt})
	}
	return result
}

// Keys returns keys from least to most recently used.
func (c *ResponseCache[T]) Keys() []string {
	entries := c.Entries()
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

// evictOldest removes the least recently used entry (must hold lock).
func (c *ResponseCache[T]) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	c.removeElement(oldest)
	c.evictions++
}

// removeElement drops an entry from both indexes (must hold lock).
func (c *ResponseCache[T]) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry[T]).key)
}
