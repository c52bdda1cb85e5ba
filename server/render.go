package server

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ZaguanLabs/dramabox"
	"github.com/ZaguanLabs/dramabox/locale"
	"github.com/ZaguanLabs/dramabox/processor"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = []string{"feed", "detail", "watch", "content", "error"}

// view is the data every page template is executed with.
type view struct {
	Lang        dramabox.Language
	Dir         string
	SEO         locale.SEO
	Title       string
	Description string
	Canonical   string
	Alternates  []languageLink
	Languages   []languageLink
	Active      string

	HeadingKey string
	LeadKey    string
	EmptyKey   string
	Query      string
	Filters    []filterLink
	Classify   string
	Page       int
	PrevPage   int
	NextPage   int

	Dramas        []dramabox.Drama
	Drama         dramabox.Drama
	Episodes      []dramabox.Episode
	EpisodesError bool
	Episode       dramabox.Episode
	Prev          int
	Next          int
	DownloadTitle string

	Section string
}

type languageLink struct {
	Label    string
	HTMLLang string
	Href     string
	URL      string
	Current  bool
}

type filterLink struct {
	LabelKey string
	Href     string
	Active   bool
}

// renderer executes page templates with a per-request translation function
// and post-processes the output with the localizer.
type renderer struct {
	pages     map[string]*template.Template
	locales   *locale.Store
	localizer *processor.Localizer
	logger    *slog.Logger
	dev       bool
}

func newRenderer(locales *locale.Store, localizer *processor.Localizer, logger *slog.Logger, dev bool) (*renderer, error) {
	base, err := template.New("layout.html").Funcs(template.FuncMap{
		"t": func(path string) string { return path },
	}).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, errors.Wrap(err, "parsing layout template")
	}

	r := &renderer{
		pages:     make(map[string]*template.Template, len(pageTemplates)),
		locales:   locales,
		localizer: localizer,
		logger:    logger,
		dev:       dev,
	}
	for _, name := range pageTemplates {
		page, err := base.Clone()
		if err != nil {
			return nil, errors.Wrapf(err, "cloning layout for %s", name)
		}
		if _, err := page.ParseFS(templateFS, "templates/"+name+".html"); err != nil {
			return nil, errors.Wrapf(err, "parsing %s template", name)
		}
		r.pages[name] = page
	}
	return r, nil
}

// render writes the page name with status. A 200 response whose ETag
// matches If-None-Match is answered with 304.
func (r *renderer) render(c echo.Context, status int, name string, v *view) error {
	page, ok := r.pages[name]
	if !ok {
		return errors.Errorf("unknown template %q", name)
	}
	// Templates are never executed directly, so they stay cloneable.
	tmpl, err := page.Clone()
	if err != nil {
		return errors.Wrapf(err, "cloning %s template", name)
	}
	tmpl.Funcs(template.FuncMap{"t": r.locales.Translator(v.Lang)})

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", v); err != nil {
		return errors.Wrapf(err, "rendering %s template", name)
	}

	out, err := r.localizer.Localize(buf.String(), v.Lang, v.Dir)
	if err != nil {
		return err
	}

	if r.dev {
		if keys, err := r.localizer.UnresolvedKeys(out); err == nil && len(keys) > 0 {
			r.logger.Warn("unresolved locale keys", "lang", v.Lang, "template", name, "keys", keys)
		}
	}

	body := []byte(out)
	etag := dramabox.ETag(body)
	header := c.Response().Header()
	header.Set("ETag", etag)
	header.Set(echo.HeaderCacheControl, "public, max-age=0, must-revalidate")
	if status == http.StatusOK && etagMatch(c.Request().Header.Get("If-None-Match"), etag) {
		return c.NoContent(http.StatusNotModified)
	}
	return c.HTMLBlob(status, body)
}

func etagMatch(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
