// Package cache provides the response caches that shield the upstream
// content API: a bounded in-memory LRU with TTL and stale reads, a registry
// of named instances, an optional Redis-backed shared tier, and JSON
// snapshots.
package cache

import (
	"context"
	"time"
)

// Type names one independently configured cache instance.
type Type string

const (
	ForYou   Type = "forYou"
	Detail   Type = "detail"
	Episodes Type = "episodes"
	Search   Type = "search"
	Trending Type = "trending"
)

// Status reports how a lookup was served.
type Status int

const (
	// Miss means the key was unknown, evicted, or expired without stale reads.
	Miss Status = iota
	// Hit means a fresh value was returned.
	Hit
	// Stale means an expired value was returned once and then dropped.
	Stale
)

func (s Status) String() string {
	switch s {
	case Hit:
		return "HIT"
	case Stale:
		return "STALE"
	default:
		return "MISS"
	}
}

// SharedCache is a second cache tier shared between server instances.
type SharedCache interface {
	// Get returns the stored bytes. Errors are reported as misses.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores bytes with the given TTL (0 = no expiration).
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
