package dramabox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/ZaguanLabs/dramabox/cache"
)

// Gateway implements cache-aside access to the upstream content API.
type Gateway struct {
	registry *cache.Registry
	shared   cache.SharedCache
	coalesce bool
	logger   *slog.Logger
	sf       singleflight.Group
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithSharedCache adds a second cache tier consulted on local misses.
func WithSharedCache(sc cache.SharedCache) GatewayOption {
	return func(g *Gateway) {
		g.shared = sc
	}
}

// WithCoalescing toggles single-flight deduplication of concurrent misses
// for the same key (default: enabled).
func WithCoalescing(enabled bool) GatewayOption {
	return func(g *Gateway) {
		g.coalesce = enabled
	}
}

// WithLogger sets the logger used for cache tier diagnostics.
func WithLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		g.logger = l
	}
}

// NewGateway creates a gateway over the given cache registry.
func NewGateway(registry *cache.Registry, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		registry: registry,
		coalesce: true,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Registry returns the underlying cache registry.
func (g *Gateway) Registry() *cache.Registry {
	return g.registry
}

// WithCache returns the cached value for key in the cache named typ, or
// invokes produce once, stores its result and returns it. A hit, including a
// one-time stale read, never invokes produce. Producer errors are returned
// unchanged and nothing is cached.
func (g *Gateway) WithCache(ctx context.Context, typ cache.Type, key string, produce Producer) (json.RawMessage, cache.Status, error) {
	c, ok := g.registry.Get(typ)
	if !ok {
		return nil, cache.Miss, &CacheError{Message: "unknown cache type " + string(typ)}
	}

	if val, status := c.Lookup(key); status != cache.Miss {
		g.logger.Debug("cache hit", "cache", typ, "key", key, "status", status.String())
		return val, status, nil
	}

	if !g.coalesce {
		val, err := g.fill(ctx, c, typ, key, produce)
		return val, cache.Miss, err
	}

	// The flight outlives any single caller: a leader that gives up must not
	// fail the followers sharing its call. Each caller still stops waiting
	// when its own context ends.
	flightCtx := context.WithoutCancel(ctx)
	ch := g.sf.DoChan(string(typ)+"|"+key, func() (interface{}, error) {
		// Re-check inside the flight; a previous flight may have just filled it.
		if val, status := c.Lookup(key); status != cache.Miss {
			return val, nil
		}
		return g.fill(flightCtx, c, typ, key, produce)
	})

	select {
	case <-ctx.Done():
		return nil, cache.Miss, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, cache.Miss, res.Err
		}
		if res.Shared {
			g.logger.Debug("coalesced cache miss", "cache", typ, "key", key)
		}
		return res.Val.(json.RawMessage), cache.Miss, nil
	}
}

// fill resolves a local miss through the shared tier or the producer.
func (g *Gateway) fill(ctx context.Context, c *cache.ResponseCache[json.RawMessage], typ cache.Type, key string, produce Producer) (json.RawMessage, error) {
	sharedKey := string(typ) + ":" + key

	if g.shared != nil {
		if raw, ok := g.shared.Get(ctx, sharedKey); ok && json.Valid(raw) {
			g.logger.Debug("shared cache hit", "cache", typ, "key", key)
			val := json.RawMessage(raw)
			c.Set(key, val)
			return val, nil
		}
	}

	val, err := produce(ctx)
	if err != nil {
		return nil, err
	}

	c.Set(key, val)

	if g.shared != nil {
		if err := g.shared.Set(ctx, sharedKey, val, c.TTL()); err != nil {
			g.logger.Warn("shared cache write failed", "cache", typ, "key", key, "error", err)
		}
	}

	return val, nil
}
