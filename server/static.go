package server

import (
	"embed"
	"encoding/xml"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ZaguanLabs/dramabox"
)

//go:embed static
var staticFS embed.FS

// sitemapSections are the per-language pages listed in the sitemap.
var sitemapSections = []struct {
	path       string
	changeFreq string
	priority   string
}{
	{"", "daily", "1.0"},
	{"/terbaru", "hourly", "0.9"},
	{"/terpopuler", "daily", "0.9"},
	{"/sulih-suara", "daily", "0.8"},
	{"/about", "monthly", "0.5"},
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

type webManifest struct {
	Name            string         `json:"name"`
	ShortName       string         `json:"short_name"`
	Description     string         `json:"description"`
	StartURL        string         `json:"start_url"`
	Scope           string         `json:"scope"`
	Display         string         `json:"display"`
	BackgroundColor string         `json:"background_color"`
	ThemeColor      string         `json:"theme_color"`
	Lang            string         `json:"lang"`
	Dir             string         `json:"dir"`
	Icons           []manifestIcon `json:"icons"`
}

type manifestIcon struct {
	Src   string `json:"src"`
	Sizes string `json:"sizes"`
	Type  string `json:"type"`
}

func (s *Server) registerStatic(e *echo.Echo) error {
	assets, err := fs.Sub(staticFS, "static")
	if err != nil {
		return err
	}
	e.StaticFS("/static", assets)
	e.GET("/sw.js", func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set("Service-Worker-Allowed", "/")
		data, err := fs.ReadFile(assets, "sw.js")
		if err != nil {
			return err
		}
		return c.Blob(http.StatusOK, "application/javascript; charset=utf-8", data)
	})
	e.GET("/robots.txt", s.robots)
	e.GET("/sitemap.xml", s.sitemap)
	e.GET("/manifest.webmanifest", s.manifest)
	e.GET("/manifest.json", s.manifest)
	return nil
}

func (s *Server) robots(c echo.Context) error {
	var b strings.Builder
	b.WriteString("User-agent: *\nAllow: /\nDisallow: /api/\nDisallow: /static/\n\n")
	for _, bot := range []string{"Googlebot", "Googlebot-Video", "Googlebot-Image"} {
		fmt.Fprintf(&b, "User-agent: %s\nAllow: /\n\n", bot)
	}
	fmt.Fprintf(&b, "Host: %s\nSitemap: %s/sitemap.xml\n", s.Profile.SiteURL, s.Profile.SiteURL)
	return c.String(http.StatusOK, b.String())
}

func (s *Server) sitemap(c echo.Context) error {
	lastMod := time.Now().UTC().Format("2006-01-02")
	set := urlSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs: []sitemapURL{{
			Loc:        s.Profile.SiteURL,
			LastMod:    lastMod,
			ChangeFreq: "daily",
			Priority:   "1.0",
		}},
	}
	for _, lang := range dramabox.SupportedLanguages {
		for _, section := range sitemapSections {
			set.URLs = append(set.URLs, sitemapURL{
				Loc:        s.Profile.SiteURL + "/" + string(lang) + section.path,
				LastMod:    lastMod,
				ChangeFreq: section.changeFreq,
				Priority:   section.priority,
			})
		}
	}

	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationXMLCharsetUTF8, append([]byte(xml.Header), out...))
}

func (s *Server) manifest(c echo.Context) error {
	lang := s.Profile.Language()
	seo := s.locales.SEO(lang)
	return c.JSON(http.StatusOK, webManifest{
		Name:            seo.SiteTitle,
		ShortName:       "DramaBox",
		Description:     seo.SiteDescription,
		StartURL:        "/" + string(lang),
		Scope:           "/",
		Display:         "standalone",
		BackgroundColor: "#0f0f0f",
		ThemeColor:      "#e11d48",
		Lang:            dramabox.ToHTMLLang(lang),
		Dir:             s.locales.Direction(lang),
		Icons: []manifestIcon{
			{Src: "/static/icons/icon.svg", Sizes: "any", Type: "image/svg+xml"},
		},
	})
}
