package locale

import (
	"context"
	"embed"
	"io"
	"io/fs"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ZaguanLabs/dramabox"
)

//go:embed locales/*.json
var embedded embed.FS

// DefaultFS returns the bundles compiled into the binary, one
// "<code>.json" file per supported language.
func DefaultFS() fs.FS {
	sub, err := fs.Sub(embedded, "locales")
	if err != nil {
		panic(err)
	}
	return sub
}

// Store loads bundles lazily and memoizes them until Clear.
type Store struct {
	fsys     fs.FS
	fallback dramabox.Language
	logger   *slog.Logger

	mu      sync.RWMutex
	bundles map[dramabox.Language]*Bundle
	sf      singleflight.Group
}

// Option configures a Store.
type Option func(*Store)

// WithFS loads bundles from fsys instead of the embedded files.
func WithFS(fsys fs.FS) Option {
	return func(s *Store) {
		s.fsys = fsys
	}
}

// WithFallback sets the language used when a key or bundle is unavailable.
func WithFallback(lang dramabox.Language) Option {
	return func(s *Store) {
		s.fallback = lang
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore creates a bundle store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		fallback: dramabox.DefaultLanguage,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		bundles:  make(map[dramabox.Language]*Bundle),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fsys == nil {
		s.fsys = DefaultFS()
	}
	return s
}

// Fallback returns the fallback language.
func (s *Store) Fallback() dramabox.Language {
	return s.fallback
}

// Bundle returns the bundle of lang, loading it on first use. Concurrent
// first loads of the same language share a single read.
func (s *Store) Bundle(lang dramabox.Language) (*Bundle, error) {
	s.mu.RLock()
	b, ok := s.bundles[lang]
	s.mu.RUnlock()
	if ok {
		return b, nil
	}

	if !dramabox.IsSupported(string(lang)) {
		return nil, &dramabox.BundleError{Lang: lang, Message: "unsupported language"}
	}

	v, err, _ := s.sf.Do(string(lang), func() (interface{}, error) {
		s.mu.RLock()
		b, ok := s.bundles[lang]
		s.mu.RUnlock()
		if ok {
			return b, nil
		}

		b, err := s.load(lang)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.bundles[lang] = b
		s.mu.Unlock()
		s.logger.Debug("locale bundle loaded", "lang", lang, "keys", len(b.Keys()))
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Bundle), nil
}

func (s *Store) load(lang dramabox.Language) (*Bundle, error) {
	data, err := fs.ReadFile(s.fsys, string(lang)+".json")
	if err != nil {
		return nil, &dramabox.BundleError{Lang: lang, Message: "reading bundle", Cause: err}
	}
	return ParseBundle(lang, data)
}

// T resolves a dotted path for lang. Missing keys, or an unavailable
// bundle, fall back to the fallback bundle; if that misses too the path
// itself is returned. T never returns an empty string.
func (s *Store) T(lang dramabox.Language, path string) string {
	if b, err := s.Bundle(lang); err == nil {
		if v, ok := b.Lookup(path); ok {
			return v
		}
	}

	if lang != s.fallback {
		if b, err := s.Bundle(s.fallback); err == nil {
			if v, ok := b.Lookup(path); ok {
				return v
			}
		} else {
			s.logger.Error("fallback bundle unavailable", "lang", s.fallback, "error", err)
		}
	}

	return path
}

// Translator returns T bound to lang, for use as a template function.
func (s *Store) Translator(lang dramabox.Language) func(string) string {
	return func(path string) string {
		return s.T(lang, path)
	}
}

// Direction returns the bundle-declared text direction, "ltr" or "rtl".
func (s *Store) Direction(lang dramabox.Language) string {
	if b, err := s.Bundle(lang); err == nil {
		return b.Direction
	}
	return dramabox.GetDirection(lang)
}

// SEO returns the SEO metadata of lang, each field falling back like T.
func (s *Store) SEO(lang dramabox.Language) SEO {
	return SEO{
		SiteTitle:          s.T(lang, "seo.siteTitle"),
		SiteDescription:    s.T(lang, "seo.siteDescription"),
		SiteKeywords:       s.T(lang, "seo.siteKeywords"),
		OGTitle:            s.T(lang, "seo.ogTitle"),
		OGDescription:      s.T(lang, "seo.ogDescription"),
		TwitterTitle:       s.T(lang, "seo.twitterTitle"),
		TwitterDescription: s.T(lang, "seo.twitterDescription"),
	}
}

// Preload loads every supported bundle. A missing or invalid bundle is a
// configuration error and is returned.
func (s *Store) Preload(ctx context.Context) error {
	return dramabox.ForEachLanguage(ctx, dramabox.SupportedLanguages, 4, func(ctx context.Context, lang dramabox.Language) error {
		_, err := s.Bundle(lang)
		return err
	})
}

// Loaded returns the languages currently memoized.
func (s *Store) Loaded() []dramabox.Language {
	s.mu.RLock()
	defer s.mu.RUnlock()

	langs := make([]dramabox.Language, 0, len(s.bundles))
	for _, lang := range dramabox.SupportedLanguages {
		if _, ok := s.bundles[lang]; ok {
			langs = append(langs, lang)
		}
	}
	return langs
}

// Clear drops all memoized bundles.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles = make(map[dramabox.Language]*Bundle)
}
