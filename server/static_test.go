package server

import (
	"encoding/json"
	"encoding/xml"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaguanLabs/dramabox"
)

func TestRobots(t *testing.T) {
	up := newFakeUpstream(t)
	s := newTestServer(t, up, nil)

	rec := get(s, "/robots.txt")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Disallow: /api/\n")
	assert.Contains(t, body, "User-agent: Googlebot-Video\n")
	assert.Contains(t, body, "Sitemap: https://drama.example.com/sitemap.xml\n")
}

func TestSitemap(t *testing.T) {
	up := newFakeUpstream(t)
	s := newTestServer(t, up, nil)

	rec := get(s, "/sitemap.xml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/xml")

	var set urlSet
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &set))
	require.Len(t, set.URLs, 1+len(dramabox.SupportedLanguages)*len(sitemapSections))
	assert.Equal(t, "https://drama.example.com", set.URLs[0].Loc)

	locs := make(map[string]sitemapURL, len(set.URLs))
	for _, u := range set.URLs {
		locs[u.Loc] = u
	}
	assert.Equal(t, "hourly", locs["https://drama.example.com/fr/terbaru"].ChangeFreq)
	assert.Equal(t, "0.8", locs["https://drama.example.com/zhHans/sulih-suara"].Priority)
	assert.Contains(t, locs, "https://drama.example.com/in")
}

func TestManifest(t *testing.T) {
	up := newFakeUpstream(t)
	s := newTestServer(t, up, nil)

	for _, path := range []string{"/manifest.webmanifest", "/manifest.json"} {
		t.Run(path, func(t *testing.T) {
			rec := get(s, path)
			require.Equal(t, http.StatusOK, rec.Code)

			var m webManifest
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
			assert.Equal(t, "/in", m.StartURL)
			assert.Equal(t, "id", m.Lang)
			assert.Equal(t, s.locales.T(dramabox.Indonesian, "seo.siteTitle"), m.Name)
			assert.NotEmpty(t, m.Icons)
		})
	}
}

func TestStaticAssets(t *testing.T) {
	up := newFakeUpstream(t)
	s := newTestServer(t, up, nil)

	tests := []struct {
		path        string
		contentType string
	}{
		{"/static/app.css", "text/css"},
		{"/static/app.js", "javascript"},
		{"/static/icons/icon.svg", "image/svg+xml"},
		{"/sw.js", "application/javascript"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(s, tt.path)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), tt.contentType)
		})
	}

	rec := get(s, "/sw.js")
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "/", rec.Header().Get("Service-Worker-Allowed"))

	assert.Equal(t, http.StatusNotFound, get(s, "/static/missing.css").Code)
}
