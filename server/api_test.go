package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaguanLabs/dramabox"
	"github.com/ZaguanLabs/dramabox/cache"
	"github.com/ZaguanLabs/dramabox/internal/profile"
)

func TestAPIFeeds(t *testing.T) {
	tests := []struct {
		route        string
		endpoint     string
		cacheControl string
	}{
		{"/api/dramabox/foryou", "foryou", "public, s-maxage=180, stale-while-revalidate=360"},
		{"/api/dramabox/latest", "latest", "public, s-maxage=180, stale-while-revalidate=360"},
		{"/api/dramabox/trending", "trending", "public, s-maxage=300, stale-while-revalidate=600"},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			up := newFakeUpstream(t)
			s := newTestServer(t, up, nil)

			rec := get(s, tt.route+"?lang=en")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
			assert.Equal(t, tt.cacheControl, rec.Header().Get("Cache-Control"))
			assert.JSONEq(t, feedBody, rec.Body.String(), "the upstream envelope is proxied untouched")
			assert.Equal(t, "en", up.Query(tt.endpoint).Get("lang"))

			rec = get(s, tt.route+"?lang=en")
			assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
			assert.Equal(t, 1, up.Hits(tt.endpoint), "a hit must not call upstream")
		})
	}
}

func TestAPIFeeds_LanguageValidation(t *testing.T) {
	up := newFakeUpstream(t)
	s := newTestServer(t, up, func(p *profile.Profile) {
		p.DefaultLanguage = "en"
	})

	rec := get(s, "/api/dramabox/foryou?lang=ko")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "en", up.Query("foryou").Get("lang"), "unsupported languages fall back to the default")

	get(s, "/api/dramabox/foryou")
	assert.Equal(t, 1, up.Hits("foryou"), "missing and unsupported lang share the default cache key")
}

func TestAPIDubbed(t *testing.T) {
	tests := []struct {
		query        string
		wantClassify string
		wantPage     string
	}{
		{"", "latest", "1"},
		{"classify=terpopuler&page=3", "popular", "3"},
		{"classify=terbaru&page=0", "latest", "1"},
		{"classify=popular&page=x", "popular", "1"},
		{"classify=unknown", "latest", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			up := newFakeUpstream(t)
			s := newTestServer(t, up, nil)

			rec := get(s, "/api/dramabox/dubbed?"+tt.query)
			require.Equal(t, http.StatusOK, rec.Code)

			q := up.Query("dubbed")
			assert.Equal(t, tt.wantClassify, q.Get("classify"))
			assert.Equal(t, tt.wantPage, q.Get("page"))
			assert.Equal(t, "in", q.Get("lang"))
		})
	}
}

func TestAPISearch(t *testing.T) {
	up := newFakeUpstream(t)
	s := newTestServer(t, up, nil)

	rec := get(s, "/api/dramabox/search?query=")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
	assert.Zero(t, up.Hits("search"), "an empty query must not call upstream")

	rec = get(s, "/api/dramabox/search?query="+url.QueryEscape("cinta ceo")+"&lang=th")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, s-maxage=120, stale-while-revalidate=240", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "cinta ceo", up.Query("search").Get("query"))
	assert.Equal(t, "th", up.Query("search").Get("lang"))
}

func TestAPIBook(t *testing.T) {
	up := newFakeUpstream(t)
	s := newTestServer(t, up, nil)

	rec := get(s, "/api/dramabox/detail/42?lang=ja")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, detailBody, rec.Body.String())
	assert.Equal(t, "42", up.Query("detail").Get("bookId"))
	assert.Equal(t, "public, s-maxage=600, stale-while-revalidate=1200", rec.Header().Get("Cache-Control"))

	rec = get(s, "/api/dramabox/allepisode/42?lang=ja")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, episodesBody, rec.Body.String())
	assert.Equal(t, "public, s-maxage=900, stale-while-revalidate=1800", rec.Header().Get("Cache-Control"))
}

func TestAPIBook_BrowserRedirect(t *testing.T) {
	up := newFakeUpstream(t)
	s := newTestServer(t, up, nil)

	for _, route := range []string{"/api/dramabox/detail/42?lang=en", "/api/dramabox/allepisode/42?lang=en"} {
		t.Run(route, func(t *testing.T) {
			header := http.Header{}
			header.Set("Accept", "text/html,application/xhtml+xml")
			rec := do(s, http.MethodGet, route, header)

			require.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, "/en/detail/42", rec.Header().Get("Location"))
		})
	}
	assert.Zero(t, up.Hits("detail")+up.Hits("allepisode"))
}

func TestAPIBook_Retry(t *testing.T) {
	up := newFakeUpstream(t)
	up.Respond(func(w http.ResponseWriter, r *http.Request, endpoint string) bool {
		if endpoint == "detail" && up.Hits("detail") == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return true
		}
		return false
	})
	s := newTestServer(t, up, nil)

	rec := get(s, "/api/dramabox/detail/42")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, up.Hits("detail"), "a retryable failure should be retried once")
}

func TestAPIErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantBody   string
	}{
		{"upstream not found", http.StatusNotFound, `{"message":"no such feed"}`, http.StatusNotFound, `{"error":"Failed to fetch data","message":"no such feed"}`},
		{"upstream error", http.StatusInternalServerError, `oops`, http.StatusInternalServerError, `{"error":"Failed to fetch data","message":"Internal Server Error"}`},
		{"unsuccessful envelope", http.StatusOK, `{"success":false,"message":"maintenance"}`, http.StatusBadGateway, `{"error":"Failed to fetch data","message":"maintenance"}`},
		{"not json", http.StatusOK, `<html>`, http.StatusBadGateway, `{"error":"Failed to fetch data","message":"invalid JSON response"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newFakeUpstream(t)
			up.Respond(func(w http.ResponseWriter, r *http.Request, endpoint string) bool {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
				return true
			})
			s := newTestServer(t, up, nil)

			rec := get(s, "/api/dramabox/foryou")
			require.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())

			stats := s.Registry().Stats()[cache.ForYou]
			assert.Zero(t, stats.Size, "failures are never cached")
		})
	}
}

func TestAPIErrors_Timeout(t *testing.T) {
	up := newFakeUpstream(t)
	up.Respond(func(w http.ResponseWriter, r *http.Request, endpoint string) bool {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
		return true
	})
	s := newTestServer(t, up, func(p *profile.Profile) {
		p.UpstreamTimeout = 50 * time.Millisecond
	})

	rec := get(s, "/api/dramabox/foryou")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "upstream_timeout", body.Error)
}

func TestAPIStaleRead(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	up := newFakeUpstream(t)
	s := newTestServer(t, up, nil, WithRegistry(cache.NewDefaultRegistry(cache.WithClock(clock.Now))))

	rec := get(s, "/api/dramabox/detail/42?lang=en")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	clock.Advance(9 * time.Minute)
	assert.Equal(t, "HIT", get(s, "/api/dramabox/detail/42?lang=en").Header().Get("X-Cache"))

	clock.Advance(2 * time.Minute)
	rec = get(s, "/api/dramabox/detail/42?lang=en")
	assert.Equal(t, "STALE", rec.Header().Get("X-Cache"))
	assert.JSONEq(t, detailBody, rec.Body.String())
	assert.Equal(t, 1, up.Hits("detail"), "a stale read must not call upstream")

	rec = get(s, "/api/dramabox/detail/42?lang=en")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"), "stale values are served only once")
	assert.Equal(t, 2, up.Hits("detail"))
}

func TestAPIDownload(t *testing.T) {
	up := newFakeUpstream(t)
	up.Respond(func(w http.ResponseWriter, r *http.Request, endpoint string) bool {
		switch r.URL.Path {
		case "/cdn/1.mp4":
			w.Header().Set("Content-Type", "video/mp4")
			fmt.Fprint(w, "MP4DATA")
			return true
		case "/cdn/missing.mp4":
			w.WriteHeader(http.StatusNotFound)
			return true
		case "/cdn/rejected.mp4":
			w.WriteHeader(http.StatusBadRequest)
			return true
		}
		return false
	})
	s := newTestServer(t, up, nil)

	t.Run("streams attachment", func(t *testing.T) {
		target := "/api/download/c1?url=" + url.QueryEscape(up.URL+"/cdn/1.mp4") + "&title=" + url.QueryEscape(`EP 1: "Awal"`)
		rec := get(s, target)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "MP4DATA", rec.Body.String())
		assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="EP 1_ _Awal_.mp4"`, rec.Header().Get("Content-Disposition"))
	})

	t.Run("default title", func(t *testing.T) {
		rec := get(s, "/api/download/c9?url="+url.QueryEscape(up.URL+"/cdn/1.mp4"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `attachment; filename="episode-c9.mp4"`, rec.Header().Get("Content-Disposition"))
	})

	t.Run("missing url", func(t *testing.T) {
		rec := get(s, "/api/download/c1")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Missing URL", rec.Body.String())
	})

	t.Run("invalid url", func(t *testing.T) {
		rec := get(s, "/api/download/c1?url=file:///etc/passwd")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("cdn failure", func(t *testing.T) {
		rec := get(s, "/api/download/c1?url="+url.QueryEscape(up.URL+"/cdn/missing.mp4"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Download failed", rec.Body.String())
	})

	t.Run("cdn bad request is a download failure", func(t *testing.T) {
		rec := get(s, "/api/download/c1?url="+url.QueryEscape(up.URL+"/cdn/rejected.mp4"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Download failed", rec.Body.String())
	})

	t.Run("unlisted host", func(t *testing.T) {
		rec := get(s, "/api/download/c1?url="+url.QueryEscape("http://169.254.169.254/latest/meta-data"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Host not allowed", rec.Body.String())
	})
}

func TestAPIDownload_DefaultHostPolicy(t *testing.T) {
	up := newFakeUpstream(t)
	s := newTestServer(t, up, func(p *profile.Profile) {
		p.DownloadHosts = nil
	})

	for _, target := range []string{
		up.URL + "/cdn/1.mp4",
		"http://localhost:8080/admin",
		"http://10.1.2.3/video.mp4",
		"http://[::1]/video.mp4",
	} {
		rec := get(s, "/api/download/c1?url="+url.QueryEscape(target))
		assert.Equal(t, http.StatusForbidden, rec.Code, target)
	}
}

func TestAPIHealth(t *testing.T) {
	up := newFakeUpstream(t)
	s := newTestServer(t, up, nil)
	get(s, "/api/dramabox/foryou")

	rec := get(s, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status   string                     `json:"status"`
		Version  string                     `json:"version"`
		Upstream string                     `json:"upstream"`
		Caches   map[cache.Type]cache.Stats `json:"caches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "test", body.Version)
	assert.Equal(t, "closed", body.Upstream)
	assert.Len(t, body.Caches, 5)
	assert.Equal(t, 1, body.Caches[cache.ForYou].Size)
	assert.Equal(t, 200, body.Caches[cache.ForYou].Capacity)
}

func TestAPICircuitBreaker(t *testing.T) {
	up := newFakeUpstream(t)
	up.Respond(func(w http.ResponseWriter, r *http.Request, endpoint string) bool {
		w.WriteHeader(http.StatusInternalServerError)
		return true
	})
	s := newTestServer(t, up, nil)

	for i := 0; i < 5; i++ {
		get(s, fmt.Sprintf("/api/dramabox/foryou?lang=%s", dramabox.SupportedLanguages[i]))
	}
	rec := get(s, "/api/dramabox/trending")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to fetch data","message":"circuit open"}`, rec.Body.String())
	assert.Zero(t, up.Hits("trending"), "an open circuit must not call upstream")

	var health healthResponse
	require.NoError(t, json.Unmarshal(get(s, "/api/health").Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
}
