package cache

import (
	"context"
	"encoding/json"
	"sort"
	"time"
)

// Config is the configuration of one named cache.
type Config struct {
	Type Type
	Options
}

// DefaultConfigs returns the per-endpoint-family cache settings.
func DefaultConfigs() []Config {
	return []Config{
		// For you / latest feeds change frequently.
		{Type: ForYou, Options: Options{Capacity: 200, TTL: 3 * time.Minute, AllowStale: true}},
		{Type: Detail, Options: Options{Capacity: 500, TTL: 10 * time.Minute, AllowStale: true}},
		{Type: Episodes, Options: Options{Capacity: 300, TTL: 15 * time.Minute, AllowStale: true}},
		// Search results are never served stale.
		{Type: Search, Options: Options{Capacity: 1000, TTL: 2 * time.Minute, AllowStale: false}},
		{Type: Trending, Options: Options{Capacity: 100, TTL: 5 * time.Minute, AllowStale: true}},
	}
}

// Registry holds the named response caches. Upstream payloads are cached
// as raw JSON so they can be proxied untouched or decoded by page handlers.
type Registry struct {
	caches map[Type]*ResponseCache[json.RawMessage]
}

// NewRegistry builds one cache per config. Later configs for the same type
// replace earlier ones.
func NewRegistry(configs []Config, opts ...Option) *Registry {
	r := &Registry{caches: make(map[Type]*ResponseCache[json.RawMessage], len(configs))}
	for _, cfg := range configs {
		r.caches[cfg.Type] = NewResponseCache[json.RawMessage](cfg.Options, opts...)
	}
	return r
}

// NewDefaultRegistry builds a registry from DefaultConfigs.
func NewDefaultRegistry(opts ...Option) *Registry {
	return NewRegistry(DefaultConfigs(), opts...)
}

// Get returns the cache for t.
func (r *Registry) Get(t Type) (*ResponseCache[json.RawMessage], bool) {
	c, ok := r.caches[t]
	return c, ok
}

// Types returns the configured cache types in sorted order.
func (r *Registry) Types() []Type {
	types := make([]Type, 0, len(r.caches))
	for t := range r.caches {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Stats returns the stats of every cache keyed by type.
func (r *Registry) Stats() map[Type]Stats {
	stats := make(map[Type]Stats, len(r.caches))
	for t, c := range r.caches {
		stats[t] = c.Stats()
	}
	return stats
}

// Clear empties one cache. Unknown types are ignored.
func (r *Registry) Clear(t Type) {
	if c, ok := r.caches[t]; ok {
		c.Clear()
	}
}

// ClearAll empties every cache.
func (r *Registry) ClearAll() {
	for _, c := range r.caches {
		c.Clear()
	}
}

// Cleanup sweeps expired entries from every cache and returns the total removed.
func (r *Registry) Cleanup() int {
	removed := 0
	for _, c := range r.caches {
		removed += c.Cleanup()
	}
	return removed
}

// StartJanitor runs Cleanup every interval until ctx is done.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Cleanup()
			}
		}
	}()
}
