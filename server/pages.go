package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/ZaguanLabs/dramabox"
	"github.com/ZaguanLabs/dramabox/upstream"
)

// contentSections are the static pages served from bundle text.
var contentSections = []string{"about", "terms", "privacy", "contact"}

func (s *Server) registerPages(e *echo.Echo) {
	e.GET("/:lang", s.pageFeed("foryou", "home", "home.forYouTitle", "home.forYouDescription"))
	e.GET("/:lang/terbaru", s.pageFeed("latest", "latest", "nav.latest", "home.latestDescription"))
	e.GET("/:lang/terpopuler", s.pageFeed("trending", "trending", "nav.trending", "home.trendingDescription"))
	e.GET("/:lang/sulih-suara", s.pageDubbed)
	e.GET("/:lang/search", s.pageSearch)
	e.GET("/:lang/detail/:bookId", s.pageDetail)
	e.GET("/:lang/watch/:bookId/:index", s.pageWatch)
	for _, section := range contentSections {
		e.GET("/:lang/"+section, s.pageContent(section))
	}
}

// pageLanguage returns the supported language of the :lang segment.
func pageLanguage(c echo.Context) (dramabox.Language, error) {
	code := c.Param("lang")
	if !dramabox.IsSupported(code) {
		return "", echo.ErrNotFound
	}
	return dramabox.Language(code), nil
}

// newView fills the fields every page shares.
func (s *Server) newView(c echo.Context, lang dramabox.Language, active string) *view {
	seo := s.locales.SEO(lang)

	rest := strings.TrimPrefix(c.Request().URL.Path, "/"+string(lang))
	if rest == "/" {
		rest = ""
	}
	suffix := rest
	if raw := c.Request().URL.RawQuery; raw != "" {
		suffix += "?" + raw
	}

	v := &view{
		Lang:        lang,
		Dir:         s.locales.Direction(lang),
		SEO:         seo,
		Title:       seo.SiteTitle,
		Description: seo.SiteDescription,
		Canonical:   s.Profile.SiteURL + "/" + string(lang) + rest,
		Active:      active,
		Prev:        -1,
		Next:        -1,
	}
	for _, l := range dramabox.SupportedLanguages {
		link := languageLink{
			Label:    dramabox.DisplayName(l),
			HTMLLang: dramabox.ToHTMLLang(l),
			Href:     "/" + string(l) + suffix,
			URL:      s.Profile.SiteURL + "/" + string(l) + rest,
			Current:  l == lang,
		}
		v.Languages = append(v.Languages, link)
		v.Alternates = append(v.Alternates, link)
	}
	return v
}

func (s *Server) titled(v *view, key string) {
	v.Title = s.locales.T(v.Lang, key) + " | " + v.SEO.SiteTitle
}

// failedPage renders the localized load failure with 502.
func (s *Server) failedPage(c echo.Context, v *view, err error) error {
	s.logger.Warn("page data unavailable", "path", c.Request().URL.Path, "lang", v.Lang, "error", err)
	v.HeadingKey = "errors.failedToLoad"
	v.LeadKey = "errors.tryAgain"
	s.titled(v, "errors.failedToLoad")
	return s.renderer.render(c, http.StatusBadGateway, "error", v)
}

func (s *Server) pageFeed(endpoint, active, headingKey, leadKey string) echo.HandlerFunc {
	return func(c echo.Context) error {
		lang, err := pageLanguage(c)
		if err != nil {
			return err
		}
		v := s.newView(c, lang, active)
		v.HeadingKey = headingKey
		v.LeadKey = leadKey
		v.EmptyKey = "home.empty"
		if active != "home" {
			s.titled(v, headingKey)
		}

		dramas, err := fetchData[[]dramabox.Drama](c.Request().Context(), s, feedQuery(endpoint, lang))
		if err != nil {
			return s.failedPage(c, v, err)
		}
		v.Dramas = dramas
		return s.renderer.render(c, http.StatusOK, "feed", v)
	}
}

func (s *Server) pageDubbed(c echo.Context) error {
	lang, err := pageLanguage(c)
	if err != nil {
		return err
	}
	classify := c.QueryParam("classify")
	if _, ok := dubbedClassify[classify]; !ok {
		classify = "terbaru"
	}
	page := parsePage(c.QueryParam("page"))

	v := s.newView(c, lang, "dubbed")
	v.HeadingKey = "nav.dubbed"
	v.LeadKey = "home.dubbedDescription"
	v.EmptyKey = "home.empty"
	v.Classify = classify
	v.Page = page
	s.titled(v, "nav.dubbed")
	for _, f := range []struct{ classify, label string }{
		{"terbaru", "filters.latest"},
		{"terpopuler", "filters.popular"},
	} {
		v.Filters = append(v.Filters, filterLink{
			LabelKey: f.label,
			Href:     "/sulih-suara?classify=" + f.classify,
			Active:   dubbedClassify[classify] == dubbedClassify[f.classify],
		})
	}

	dramas, err := fetchData[[]dramabox.Drama](c.Request().Context(), s, dubbedQuery(lang, classify, strconv.Itoa(page)))
	if err != nil {
		return s.failedPage(c, v, err)
	}
	v.Dramas = dramas
	if page > 1 {
		v.PrevPage = page - 1
	}
	if len(dramas) > 0 {
		v.NextPage = page + 1
	}
	return s.renderer.render(c, http.StatusOK, "feed", v)
}

func (s *Server) pageSearch(c echo.Context) error {
	lang, err := pageLanguage(c)
	if err != nil {
		return err
	}
	q := strings.TrimSpace(c.QueryParam("q"))

	v := s.newView(c, lang, "search")
	v.HeadingKey = "home.searchResults"
	v.LeadKey = "home.searchPlaceholder"
	v.Query = q
	s.titled(v, "nav.search")

	if q != "" {
		v.EmptyKey = "errors.noResults"
		dramas, err := fetchData[[]dramabox.Drama](c.Request().Context(), s, searchQuery(lang, q))
		if err != nil {
			return s.failedPage(c, v, err)
		}
		v.Dramas = dramas
	}
	return s.renderer.render(c, http.StatusOK, "feed", v)
}

// loadDrama fetches the detail and episode list of bookID in parallel.
// Only a detail failure is fatal.
func (s *Server) loadDrama(c echo.Context, v *view, bookID string) error {
	g, ctx := errgroup.WithContext(c.Request().Context())

	var detail dramabox.DramaDetail
	g.Go(func() error {
		var err error
		detail, err = fetchData[dramabox.DramaDetail](ctx, s, detailQuery(v.Lang, bookID))
		return err
	})
	g.Go(func() error {
		episodes, err := fetchData[[]dramabox.Episode](ctx, s, episodesQuery(v.Lang, bookID))
		if err != nil {
			s.logger.Warn("episodes unavailable", "bookId", bookID, "lang", v.Lang, "error", err)
			v.EpisodesError = true
			return nil
		}
		v.Episodes = episodes
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	v.Drama = detail.Resolved()
	if v.Drama.BookID == "" {
		v.Drama.BookID = bookID
	}
	return nil
}

func (s *Server) pageDetail(c echo.Context) error {
	lang, err := pageLanguage(c)
	if err != nil {
		return err
	}
	v := s.newView(c, lang, "detail")

	if err := s.loadDrama(c, v, c.Param("bookId")); err != nil {
		return s.failedPage(c, v, err)
	}
	v.Title = v.Drama.BookName + " | " + v.SEO.SiteTitle
	if v.Drama.Introduction != "" {
		v.Description = v.Drama.Introduction
	}
	return s.renderer.render(c, http.StatusOK, "detail", v)
}

func (s *Server) pageWatch(c echo.Context) error {
	lang, err := pageLanguage(c)
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		return echo.ErrNotFound
	}
	v := s.newView(c, lang, "watch")

	if err := s.loadDrama(c, v, c.Param("bookId")); err != nil {
		return s.failedPage(c, v, err)
	}
	if v.EpisodesError {
		return s.failedPage(c, v, &dramabox.UpstreamError{Endpoint: "allepisode", Message: "episodes unavailable"})
	}
	if index >= len(v.Episodes) {
		return echo.ErrNotFound
	}

	v.Episode = v.Episodes[index]
	if index > 0 {
		v.Prev = index - 1
	}
	if index+1 < len(v.Episodes) {
		v.Next = index + 1
	}
	v.DownloadTitle = upstream.SanitizeFilename(v.Drama.BookName + " - " + v.Episode.ChapterName)
	v.Title = v.Drama.BookName + " - " + v.Episode.ChapterName + " | " + v.SEO.SiteTitle
	return s.renderer.render(c, http.StatusOK, "watch", v)
}

func (s *Server) pageContent(section string) echo.HandlerFunc {
	titleKey := "page." + section + ".title"
	return func(c echo.Context) error {
		lang, err := pageLanguage(c)
		if err != nil {
			return err
		}
		v := s.newView(c, lang, section)
		v.Section = section
		s.titled(v, titleKey)
		v.Description = s.locales.T(lang, "page."+section+".description")
		return s.renderer.render(c, http.StatusOK, "content", v)
	}
}

// notFoundPage renders the localized 404 page for lang.
func (s *Server) notFoundPage(c echo.Context, lang dramabox.Language) error {
	v := s.newView(c, lang, "")
	v.HeadingKey = "errors.notFound"
	v.LeadKey = "errors.notFoundDescription"
	s.titled(v, "errors.notFound")
	return s.renderer.render(c, http.StatusNotFound, "error", v)
}
