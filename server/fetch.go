package server

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/ZaguanLabs/dramabox"
	"github.com/ZaguanLabs/dramabox/cache"
)

// query is one cacheable upstream call.
type query struct {
	endpoint string
	typ      cache.Type
	params   url.Values
	retry    bool
}

// dubbedClassify maps the site's classify values to the upstream ones.
var dubbedClassify = map[string]string{
	"terbaru":    "latest",
	"terpopuler": "popular",
	"latest":     "latest",
	"popular":    "popular",
}

func feedQuery(endpoint string, lang dramabox.Language) query {
	typ := cache.ForYou
	if endpoint == "trending" {
		typ = cache.Trending
	}
	return query{endpoint: endpoint, typ: typ, params: url.Values{"lang": {string(lang)}}}
}

func dubbedQuery(lang dramabox.Language, classify, page string) query {
	upstreamClassify, ok := dubbedClassify[classify]
	if !ok {
		upstreamClassify = "latest"
	}
	return query{
		endpoint: "dubbed",
		typ:      cache.ForYou,
		params: url.Values{
			"classify": {upstreamClassify},
			"page":     {strconv.Itoa(parsePage(page))},
			"lang":     {string(lang)},
		},
	}
}

func searchQuery(lang dramabox.Language, q string) query {
	return query{endpoint: "search", typ: cache.Search, params: url.Values{"query": {q}, "lang": {string(lang)}}}
}

func detailQuery(lang dramabox.Language, bookID string) query {
	return query{endpoint: "detail", typ: cache.Detail, params: url.Values{"bookId": {bookID}, "lang": {string(lang)}}, retry: true}
}

func episodesQuery(lang dramabox.Language, bookID string) query {
	return query{endpoint: "allepisode", typ: cache.Episodes, params: url.Values{"bookId": {bookID}, "lang": {string(lang)}}, retry: true}
}

// parsePage returns a positive page number, 1 for anything else.
func parsePage(raw string) int {
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func (q query) cacheKey() string {
	params := make(map[string]any, len(q.params))
	for k := range q.params {
		params[k] = q.params.Get(k)
	}
	return dramabox.GenerateCacheKey(q.endpoint, params)
}

// fetch resolves q through the gateway.
func (s *Server) fetch(ctx context.Context, q query) (json.RawMessage, cache.Status, error) {
	produce := s.client.Producer(q.endpoint, q.params)
	if q.retry {
		produce = dramabox.RetryProducer(s.retry, produce)
	}
	return s.gateway.WithCache(ctx, q.typ, q.cacheKey(), produce)
}

// fetchData resolves q and decodes the envelope payload into T.
func fetchData[T any](ctx context.Context, s *Server, q query) (T, error) {
	var data T
	raw, _, err := s.fetch(ctx, q)
	if err != nil {
		return data, err
	}

	var env dramabox.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return data, &dramabox.UpstreamError{Endpoint: q.endpoint, Message: "decoding envelope", Cause: err}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return data, nil
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return data, &dramabox.UpstreamError{Endpoint: q.endpoint, Message: "decoding payload", Cause: err}
	}
	return data, nil
}
