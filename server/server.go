// Package server is the HTTP surface of dramabox: the JSON proxy API, the
// server-rendered pages and the static PWA assets, wired on echo.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/ZaguanLabs/dramabox"
	"github.com/ZaguanLabs/dramabox/cache"
	"github.com/ZaguanLabs/dramabox/internal/profile"
	"github.com/ZaguanLabs/dramabox/locale"
	"github.com/ZaguanLabs/dramabox/processor"
	"github.com/ZaguanLabs/dramabox/resolver"
	"github.com/ZaguanLabs/dramabox/upstream"
)

// JanitorInterval is how often expired cache entries are swept.
const JanitorInterval = time.Minute

// Server is the DramaBox web front-end: the page routes, the /api proxy and
// the static assets, served by one echo instance over a shared gateway.
type Server struct {
	Profile *profile.Profile

	echoServer *echo.Echo
	registry   *cache.Registry
	shared     cache.SharedCache
	gateway    *dramabox.Gateway
	client     *upstream.Client
	httpClient *http.Client
	locales    *locale.Store
	resolver   *resolver.Resolver
	localizer  *processor.Localizer
	renderer   *renderer
	limiter    *RateLimiter
	retry      dramabox.RetryConfig
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger of the server and everything it builds.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithRegistry uses registry instead of the default response caches.
func WithRegistry(registry *cache.Registry) Option {
	return func(s *Server) {
		s.registry = registry
	}
}

// WithSharedCache adds a shared second cache tier.
func WithSharedCache(sc cache.SharedCache) Option {
	return func(s *Server) {
		s.shared = sc
	}
}

// WithLocaleStore uses store instead of the embedded bundles.
func WithLocaleStore(store *locale.Store) Option {
	return func(s *Server) {
		s.locales = store
	}
}

// WithHTTPClient sets the client used for upstream and CDN calls.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) {
		s.httpClient = c
	}
}

// WithRetryConfig sets the backoff of detail and episode fetches.
func WithRetryConfig(cfg dramabox.RetryConfig) Option {
	return func(s *Server) {
		s.retry = cfg
	}
}

// NewServer builds the server from a validated profile. Every locale
// bundle is loaded up front so that a broken bundle fails startup.
func NewServer(ctx context.Context, p *profile.Profile, opts ...Option) (*Server, error) {
	s := &Server{
		Profile: p,
		retry:   dramabox.DefaultRetryConfig(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.registry == nil {
		s.registry = cache.NewDefaultRegistry()
	}
	if s.locales == nil {
		s.locales = locale.NewStore(locale.WithFallback(p.Language()), locale.WithLogger(s.logger))
	}
	if err := s.locales.Preload(ctx); err != nil {
		return nil, err
	}

	gatewayOpts := []dramabox.GatewayOption{
		dramabox.WithCoalescing(p.Coalesce),
		dramabox.WithLogger(s.logger),
	}
	if s.shared != nil {
		gatewayOpts = append(gatewayOpts, dramabox.WithSharedCache(s.shared))
	}
	s.gateway = dramabox.NewGateway(s.registry, gatewayOpts...)

	s.client = upstream.NewClient(upstream.Config{
		BaseURL:       p.UpstreamAPI,
		Timeout:       p.UpstreamTimeout,
		HTTPClient:    s.httpClient,
		Logger:        s.logger,
		DownloadHosts: p.DownloadHosts,
	})
	s.resolver = resolver.New(resolver.WithFallback(p.Language()))
	s.localizer = processor.NewLocalizer()

	r, err := newRenderer(s.locales, s.localizer, s.logger, p.IsDev())
	if err != nil {
		return nil, err
	}
	s.renderer = r

	if p.RateLimit > 0 {
		s.limiter = NewRateLimiter(rate.Limit(p.RateLimit), p.RateBurst)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler
	extractor, err := ipExtractor(p)
	if err != nil {
		return nil, err
	}
	e.IPExtractor = extractor

	e.Pre(s.requestLogger, s.languageMiddleware, middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.Secure())

	if err := s.registerStatic(e); err != nil {
		return nil, err
	}
	api := e.Group("/api", middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodHead},
	}))
	s.registerAPI(api)
	s.registerPages(e)

	s.echoServer = e
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echoServer.ServeHTTP(w, r)
}

// Registry returns the response caches.
func (s *Server) Registry() *cache.Registry {
	return s.registry
}

// Start sweeps the caches in the background, optionally warms them, and
// serves until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.registry.StartJanitor(ctx, JanitorInterval)
	if s.Profile.Warm {
		go s.Warm(ctx)
	}

	s.logger.Info("server listening", "addr", s.Profile.ListenAddr(), "mode", s.Profile.Mode, "upstream", s.client.BaseURL())
	if err := s.echoServer.Start(s.Profile.ListenAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echoServer.Shutdown(ctx)
}

// Warm prefetches the home feed of every supported language. Failures are
// logged and do not stop the other languages.
func (s *Server) Warm(ctx context.Context) {
	start := time.Now()
	warmed, errs := dramabox.CollectByLanguage(ctx, dramabox.SupportedLanguages, 4, func(ctx context.Context, lang dramabox.Language) (cache.Status, error) {
		_, status, err := s.fetch(ctx, feedQuery("foryou", lang))
		return status, err
	})
	for lang, err := range errs {
		s.logger.Warn("cache warm-up failed", "lang", lang, "error", err)
	}
	s.logger.Info("cache warmed", "languages", len(warmed), "failed", len(errs), "duration", time.Since(start))
}

// httpErrorHandler renders localized error pages for page routes and keeps
// echo's JSON errors for everything else.
func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
	}

	path := c.Request().URL.Path
	if strings.HasPrefix(path, "/api") || strings.HasPrefix(path, "/static") || s.resolver.Excluded(path) {
		c.Echo().DefaultHTTPErrorHandler(err, c)
		return
	}

	lang := s.requestLanguage(c)
	var renderErr error
	if code == http.StatusNotFound {
		renderErr = s.notFoundPage(c, lang)
	} else {
		s.logger.Error("page failed", "path", path, "status", code, "error", err)
		renderErr = s.failedPage(c, s.newView(c, lang, ""), err)
	}
	if renderErr != nil {
		s.logger.Error("error page failed", "path", path, "error", renderErr)
		c.Echo().DefaultHTTPErrorHandler(err, c)
	}
}

// requestLanguage is the language tagged by the middleware, or the
// negotiated one for untagged requests.
func (s *Server) requestLanguage(c echo.Context) dramabox.Language {
	if lang, ok := c.Get(contextKeyLang).(dramabox.Language); ok {
		return lang
	}
	if lang, ok := resolver.FromPath(c.Request().URL.Path); ok {
		return lang
	}
	return s.resolver.Detect(c.Request().Header.Get("Accept-Language"))
}
