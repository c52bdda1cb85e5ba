package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ZaguanLabs/dramabox"
	"github.com/ZaguanLabs/dramabox/cache"
	"github.com/ZaguanLabs/dramabox/upstream"
)

// errorResponse is the JSON body of every API error.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// healthResponse is the body of /api/health.
type healthResponse struct {
	Status   string                     `json:"status"`
	Version  string                     `json:"version"`
	Upstream string                     `json:"upstream"`
	Caches   map[cache.Type]cache.Stats `json:"caches"`
}

func (s *Server) registerAPI(g *echo.Group) {
	if s.limiter != nil {
		g.Use(s.limiter.Middleware)
	}
	g.GET("/health", s.apiHealth)
	g.GET("/download/:chapterId", s.apiDownload)

	d := g.Group("/dramabox")
	d.GET("/foryou", s.apiFeed("foryou"))
	d.GET("/latest", s.apiFeed("latest"))
	d.GET("/trending", s.apiFeed("trending"))
	d.GET("/dubbed", s.apiDubbed)
	d.GET("/search", s.apiSearch)
	d.GET("/detail/:bookId", s.apiBook("detail"))
	d.GET("/allepisode/:bookId", s.apiBook("allepisode"))
}

// queryLanguage returns the supported ?lang value, or the default language.
func (s *Server) queryLanguage(c echo.Context) dramabox.Language {
	return dramabox.ValidateLanguage(c.QueryParam("lang"), s.Profile.Language())
}

// proxy answers with the cached or fresh upstream envelope of q.
func (s *Server) proxy(c echo.Context, q query) error {
	body, status, err := s.fetch(c.Request().Context(), q)
	if err != nil {
		return s.apiError(c, q.endpoint, err)
	}

	ttl := 0
	if rc, ok := s.registry.Get(q.typ); ok {
		ttl = int(rc.TTL().Seconds())
	}
	header := c.Response().Header()
	header.Set(echo.HeaderCacheControl, fmt.Sprintf("public, s-maxage=%d, stale-while-revalidate=%d", ttl, 2*ttl))
	header.Set("X-Cache", status.String())
	return c.JSONBlob(http.StatusOK, body)
}

// apiError maps a fetch failure to the API error contract.
func (s *Server) apiError(c echo.Context, endpoint string, err error) error {
	var upstreamErr *dramabox.UpstreamError
	switch {
	case dramabox.IsUpstreamTimeout(err):
		s.logger.Warn("upstream timeout", "endpoint", endpoint, "error", err)
		return c.JSON(http.StatusServiceUnavailable, errorResponse{
			Error:   "upstream_timeout",
			Message: "Upstream timeout - please try again later",
		})
	case errors.As(err, &upstreamErr) && upstreamErr.Status >= http.StatusBadRequest:
		s.logger.Warn("upstream error", "endpoint", endpoint, "status", upstreamErr.Status, "error", err)
		return c.JSON(upstreamErr.Status, errorResponse{
			Error:   "Failed to fetch data",
			Message: upstreamErr.Message,
		})
	case errors.Is(err, context.Canceled):
		// The client went away; nobody reads the body.
		return c.NoContent(499)
	default:
		s.logger.Error("api request failed", "endpoint", endpoint, "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{
			Error:   "Internal Server Error",
			Message: err.Error(),
		})
	}
}

func (s *Server) apiFeed(endpoint string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return s.proxy(c, feedQuery(endpoint, s.queryLanguage(c)))
	}
}

func (s *Server) apiDubbed(c echo.Context) error {
	return s.proxy(c, dubbedQuery(s.queryLanguage(c), c.QueryParam("classify"), c.QueryParam("page")))
}

func (s *Server) apiSearch(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("query"))
	if q == "" {
		return c.JSONBlob(http.StatusOK, []byte("[]"))
	}
	return s.proxy(c, searchQuery(s.queryLanguage(c), q))
}

// apiBook serves detail and allepisode. Browser navigations are sent to the
// detail page instead.
func (s *Server) apiBook(endpoint string) echo.HandlerFunc {
	return func(c echo.Context) error {
		bookID := c.Param("bookId")
		lang := s.queryLanguage(c)

		if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMETextHTML) {
			return c.Redirect(http.StatusFound, "/"+string(lang)+"/detail/"+bookID)
		}

		q := detailQuery(lang, bookID)
		if endpoint == "allepisode" {
			q = episodesQuery(lang, bookID)
		}
		return s.proxy(c, q)
	}
}

// apiDownload streams a media file from the CDN as an attachment.
func (s *Server) apiDownload(c echo.Context) error {
	chapterID := c.Param("chapterId")
	mediaURL := c.QueryParam("url")
	if mediaURL == "" {
		return c.String(http.StatusBadRequest, "Missing URL")
	}
	title := c.QueryParam("title")
	if title == "" {
		title = "episode-" + chapterID
	}

	dl, err := s.client.Download(c.Request().Context(), mediaURL)
	if err != nil {
		switch {
		case errors.Is(err, upstream.ErrInvalidMediaURL):
			return c.String(http.StatusBadRequest, "Invalid URL")
		case errors.Is(err, upstream.ErrHostNotAllowed):
			s.logger.Warn("download host refused", "chapterId", chapterID, "error", err)
			return c.String(http.StatusForbidden, "Host not allowed")
		}
		s.logger.Error("download failed", "chapterId", chapterID, "error", err)
		return c.String(http.StatusInternalServerError, "Download failed")
	}
	defer dl.Body.Close()

	header := c.Response().Header()
	header.Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.mp4"`, upstream.SanitizeFilename(title)))
	if dl.ContentLength > 0 {
		header.Set(echo.HeaderContentLength, strconv.FormatInt(dl.ContentLength, 10))
	}
	if err := c.Stream(http.StatusOK, dl.ContentType, dl.Body); err != nil {
		s.logger.Warn("download interrupted", "chapterId", chapterID, "error", err)
	}
	return nil
}

func (s *Server) apiHealth(c echo.Context) error {
	resp := healthResponse{
		Status:   "ok",
		Version:  s.Profile.Version,
		Upstream: s.client.State(),
		Caches:   s.registry.Stats(),
	}
	if resp.Upstream == "open" {
		resp.Status = "degraded"
	}
	return c.JSON(http.StatusOK, resp)
}
