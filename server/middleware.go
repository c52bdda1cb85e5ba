package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/ZaguanLabs/dramabox"
	"github.com/ZaguanLabs/dramabox/cache"
	"github.com/ZaguanLabs/dramabox/internal/profile"
	"github.com/ZaguanLabs/dramabox/resolver"
)

const (
	// LogFieldRequestID is the field name for request ID.
	LogFieldRequestID = "request_id"
	// LogFieldDuration is the field name for duration in milliseconds.
	LogFieldDuration = "duration_ms"

	// HeaderPageLanguage carries the resolved language to page handlers.
	HeaderPageLanguage = "X-Page-Language"

	contextKeyLang = "lang"
)

// languageMiddleware runs before routing and applies the language resolver:
// skipped paths pass untouched, language-prefixed paths are tagged, and
// everything else is redirected to its language-prefixed form.
func (s *Server) languageMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		// The escaped path keeps %3F and %2F encoded in the Location header.
		d := s.resolver.Resolve(req.URL.EscapedPath(), req.Header.Get("Accept-Language"), req.URL.RawQuery)

		switch d.Action {
		case resolver.Redirect:
			return c.Redirect(resolver.RedirectStatus, d.Location)
		case resolver.Pass:
			c.Set(contextKeyLang, d.Lang)
			req.Header.Set(HeaderPageLanguage, string(d.Lang))
			c.Response().Header().Set("Content-Language", dramabox.ToHTMLLang(d.Lang))
		}
		return next(c)
	}
}

// ipExtractor reads the client IP from the socket, or from X-Forwarded-For
// when the request came through one of the trusted proxies.
func ipExtractor(p *profile.Profile) (echo.IPExtractor, error) {
	nets, err := p.ProxyNets()
	if err != nil {
		return nil, err
	}
	if len(nets) == 0 {
		return echo.ExtractIPDirect(), nil
	}

	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range nets {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}

// requestLogger tags every request with an ID and logs its outcome.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()

		requestID := c.Request().Header.Get(echo.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Response().Header().Set(echo.HeaderXRequestID, requestID)

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		attrs := []any{
			slog.String(LogFieldRequestID, requestID),
			slog.String("method", c.Request().Method),
			slog.String("path", c.Request().URL.Path),
			slog.Int("status", c.Response().Status),
			slog.Int64(LogFieldDuration, time.Since(start).Milliseconds()),
		}
		if lang, ok := c.Get(contextKeyLang).(dramabox.Language); ok {
			attrs = append(attrs, slog.String("lang", string(lang)))
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}

		if c.Response().Status >= http.StatusInternalServerError {
			s.logger.Error("request", attrs...)
		} else {
			s.logger.Info("request", attrs...)
		}
		return nil
	}
}

// RateLimiter keeps one token bucket per client key. Buckets of idle
// clients expire from a bounded cache.
type RateLimiter struct {
	mu     sync.Mutex
	limits *cache.ResponseCache[*rate.Limiter]
	rate   rate.Limit
	burst  int
}

// NewRateLimiter creates a limiter allowing r requests per second with the
// given burst for every key.
func NewRateLimiter(r rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{
		limits: cache.NewResponseCache[*rate.Limiter](cache.Options{
			Capacity: 10000,
			TTL:      10 * time.Minute,
		}),
		rate:  r,
		burst: burst,
	}
}

// getLimiter gets or creates a limiter for the given key.
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.limits.Get(key)
	if !ok {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
	}
	// Re-set so active clients keep their bucket.
	rl.limits.Set(key, limiter)
	return limiter
}

// Allow checks if a request is allowed for the given key.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	return rl.limits.Len()
}

// Middleware rejects requests over the limit of their client IP with 429.
func (rl *RateLimiter) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !rl.Allow(c.RealIP()) {
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusTooManyRequests, errorResponse{
				Error:   "rate_limited",
				Message: "Too many requests",
			})
		}
		return next(c)
	}
}
