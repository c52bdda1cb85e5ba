// Package resolver decides which language a request is served in.
//
// A request path either already carries a supported language as its first
// segment, or it is redirected to one negotiated from the Accept-Language
// header. API routes and static files are never touched.
package resolver

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/ZaguanLabs/dramabox"
)

// Action is the outcome of resolving a request.
type Action int

const (
	// Skip leaves the request alone (API routes, static files).
	Skip Action = iota
	// Pass serves the request in the language of its first path segment.
	Pass
	// Redirect sends the client to a language-prefixed location.
	Redirect
)

func (a Action) String() string {
	switch a {
	case Pass:
		return "pass"
	case Redirect:
		return "redirect"
	default:
		return "skip"
	}
}

// RedirectStatus is the status code used for language redirects.
const RedirectStatus = http.StatusTemporaryRedirect

// Decision is the result of Resolve.
type Decision struct {
	Action   Action
	Lang     dramabox.Language
	Location string // set for Redirect
}

// DefaultExcludedPrefixes are path prefixes that bypass language routing.
var DefaultExcludedPrefixes = []string{"/api", "/static"}

// Resolver negotiates request languages.
type Resolver struct {
	fallback dramabox.Language
	excluded []string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFallback sets the language used when negotiation finds no match.
func WithFallback(lang dramabox.Language) Option {
	return func(r *Resolver) {
		r.fallback = lang
	}
}

// WithExcludedPrefixes replaces the prefixes that bypass routing.
func WithExcludedPrefixes(prefixes ...string) Option {
	return func(r *Resolver) {
		r.excluded = prefixes
	}
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		fallback: dramabox.DefaultLanguage,
		excluded: DefaultExcludedPrefixes,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fallback returns the fallback language.
func (r *Resolver) Fallback() dramabox.Language {
	return r.fallback
}

// Resolve decides how to route a request for path, the escaped request
// path. path and rawQuery are carried over to the redirect location
// unchanged.
//
// An unsupported first segment is not replaced: /xx/page redirects to
// /<lang>/xx/page.
func (r *Resolver) Resolve(path, acceptLanguage, rawQuery string) Decision {
	if path == "" {
		path = "/"
	}
	if r.Excluded(path) {
		return Decision{Action: Skip}
	}
	if lang, ok := FromPath(path); ok {
		return Decision{Action: Pass, Lang: lang}
	}

	lang := r.Detect(acceptLanguage)
	location := "/" + string(lang)
	if path != "/" {
		location += path
	}
	if rawQuery != "" {
		location += "?" + rawQuery
	}
	return Decision{Action: Redirect, Lang: lang, Location: location}
}

// Excluded reports whether path bypasses language routing.
func (r *Resolver) Excluded(path string) bool {
	for _, prefix := range r.excluded {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return strings.Contains(path, ".")
}

// FromPath returns the language of the first path segment, if supported.
func FromPath(path string) (dramabox.Language, bool) {
	seg := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(seg, '/'); i >= 0 {
		seg = seg[:i]
	}
	if dramabox.IsSupported(seg) {
		return dramabox.Language(seg), true
	}
	return "", false
}

// Detect negotiates a language from an Accept-Language header value.
func (r *Resolver) Detect(acceptLanguage string) dramabox.Language {
	for _, pref := range ParseAcceptLanguage(acceptLanguage) {
		if lang, ok := Match(pref); ok {
			return lang
		}
	}
	return r.fallback
}

// Preference is one entry of an Accept-Language header.
type Preference struct {
	Tag     string // lowercased, e.g. "zh-tw"
	Primary string // e.g. "zh"
	Quality float64
}

// ParseAcceptLanguage splits an Accept-Language header into preferences
// ordered by quality, highest first. Entries of equal quality keep their
// header order. A missing q is 1.0; an unparsable one is 0. Empty entries
// and the "*" wildcard are dropped.
func ParseAcceptLanguage(header string) []Preference {
	if strings.TrimSpace(header) == "" {
		return nil
	}

	var prefs []Preference
	for _, part := range strings.Split(header, ",") {
		fields := strings.Split(part, ";")
		tag := strings.ToLower(strings.TrimSpace(fields[0]))
		if tag == "" || tag == "*" {
			continue
		}

		quality := 1.0
		for _, param := range fields[1:] {
			param = strings.TrimSpace(param)
			if !strings.HasPrefix(param, "q=") {
				continue
			}
			q, err := strconv.ParseFloat(strings.TrimPrefix(param, "q="), 64)
			if err != nil {
				q = 0
			}
			quality = q
		}

		primary := tag
		if i := strings.IndexByte(tag, '-'); i >= 0 {
			primary = tag[:i]
		}
		prefs = append(prefs, Preference{Tag: tag, Primary: primary, Quality: quality})
	}

	sort.SliceStable(prefs, func(i, j int) bool {
		return prefs[i].Quality > prefs[j].Quality
	})
	return prefs
}

// Match maps a preference onto a supported language: the full tag through
// the browser map first, then the primary subtag as-is, then the primary
// subtag through the browser map.
func Match(p Preference) (dramabox.Language, bool) {
	if lang, ok := dramabox.BrowserLanguageMap[p.Tag]; ok {
		return lang, true
	}
	if dramabox.IsSupported(p.Primary) {
		return dramabox.Language(p.Primary), true
	}
	if lang, ok := dramabox.BrowserLanguageMap[p.Primary]; ok {
		return lang, true
	}
	return "", false
}
