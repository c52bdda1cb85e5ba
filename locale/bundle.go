// Package locale loads per-language content bundles and resolves dotted key
// paths with fallback to a default language.
package locale

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ZaguanLabs/dramabox"
)

// SEO holds the search/social metadata strings of a bundle.
type SEO struct {
	SiteTitle          string `json:"siteTitle"`
	SiteDescription    string `json:"siteDescription"`
	SiteKeywords       string `json:"siteKeywords"`
	OGTitle            string `json:"ogTitle"`
	OGDescription      string `json:"ogDescription"`
	TwitterTitle       string `json:"twitterTitle"`
	TwitterDescription string `json:"twitterDescription"`
}

// Bundle is the typed content of one language.
type Bundle struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	NativeName string `json:"nativeName"`
	Flag       string `json:"flag"`
	Region     string `json:"region"`
	Direction  string `json:"direction"`
	SEO        SEO    `json:"seo"`

	Nav        map[string]string            `json:"nav,omitempty"`
	Home       map[string]string            `json:"home,omitempty"`
	Page       map[string]map[string]string `json:"page,omitempty"`
	Buttons    map[string]string            `json:"buttons,omitempty"`
	Filters    map[string]string            `json:"filters,omitempty"`
	Genres     map[string]string            `json:"genres,omitempty"`
	Detail     map[string]string            `json:"detail,omitempty"`
	Status     map[string]string            `json:"status,omitempty"`
	Errors     map[string]string            `json:"errors,omitempty"`
	Footer     map[string]string            `json:"footer,omitempty"`
	Pagination map[string]string            `json:"pagination,omitempty"`
	Watch      map[string]string            `json:"watch,omitempty"`
	Loading    map[string]string            `json:"loading,omitempty"`

	// flat indexes every non-empty string leaf by its dotted path.
	flat map[string]string
	once sync.Once
}

// ParseBundle decodes and validates the bundle of lang. Unknown fields are
// rejected so that typos in a bundle surface at load time.
func ParseBundle(lang dramabox.Language, data []byte) (*Bundle, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var b Bundle
	if err := dec.Decode(&b); err != nil {
		return nil, &dramabox.BundleError{Lang: lang, Message: "decoding bundle", Cause: err}
	}
	if err := b.Validate(lang); err != nil {
		return nil, err
	}
	b.ensureIndex()
	return &b, nil
}

// Validate checks the bundle header against lang.
func (b *Bundle) Validate(lang dramabox.Language) error {
	if b.Code != string(lang) {
		return &dramabox.BundleError{Lang: lang, Message: fmt.Sprintf("code %q does not match", b.Code)}
	}
	if b.Name == "" || b.NativeName == "" {
		return &dramabox.BundleError{Lang: lang, Message: "name and nativeName are required"}
	}
	if b.Direction != "ltr" && b.Direction != "rtl" {
		return &dramabox.BundleError{Lang: lang, Message: fmt.Sprintf("invalid direction %q", b.Direction)}
	}
	return nil
}

// Lookup returns the string at a dotted path such as "nav.home" or
// "page.about.title". Empty strings count as missing.
func (b *Bundle) Lookup(path string) (string, bool) {
	if b == nil {
		return "", false
	}
	b.ensureIndex()
	v, ok := b.flat[path]
	return v, ok
}

// Keys returns every dotted path in sorted order.
func (b *Bundle) Keys() []string {
	b.ensureIndex()
	keys := make([]string, 0, len(b.flat))
	for k := range b.flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Flatten returns a copy of the dotted-path index.
func (b *Bundle) Flatten() map[string]string {
	b.ensureIndex()
	out := make(map[string]string, len(b.flat))
	for k, v := range b.flat {
		out[k] = v
	}
	return out
}

func (b *Bundle) ensureIndex() {
	b.once.Do(b.index)
}

func (b *Bundle) index() {
	flat := make(map[string]string)
	put := func(path, v string) {
		if v != "" {
			flat[path] = v
		}
	}

	put("code", b.Code)
	put("name", b.Name)
	put("nativeName", b.NativeName)
	put("flag", b.Flag)
	put("region", b.Region)
	put("direction", b.Direction)

	put("seo.siteTitle", b.SEO.SiteTitle)
	put("seo.siteDescription", b.SEO.SiteDescription)
	put("seo.siteKeywords", b.SEO.SiteKeywords)
	put("seo.ogTitle", b.SEO.OGTitle)
	put("seo.ogDescription", b.SEO.OGDescription)
	put("seo.twitterTitle", b.SEO.TwitterTitle)
	put("seo.twitterDescription", b.SEO.TwitterDescription)

	for ns, m := range b.namespaces() {
		for k, v := range m {
			put(ns+"."+k, v)
		}
	}
	for name, m := range b.Page {
		for k, v := range m {
			put("page."+name+"."+k, v)
		}
	}

	b.flat = flat
}

func (b *Bundle) namespaces() map[string]map[string]string {
	return map[string]map[string]string{
		"nav":        b.Nav,
		"home":       b.Home,
		"buttons":    b.Buttons,
		"filters":    b.Filters,
		"genres":     b.Genres,
		"detail":     b.Detail,
		"status":     b.Status,
		"errors":     b.Errors,
		"footer":     b.Footer,
		"pagination": b.Pagination,
		"watch":      b.Watch,
		"loading":    b.Loading,
	}
}
