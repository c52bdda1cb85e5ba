package dramabox

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEachLanguage runs fn for every language with at most limit calls in
// flight (limit <= 0 means unbounded). It returns the first error; the
// context passed to fn is cancelled once any call fails.
func ForEachLanguage(ctx context.Context, langs []Language, limit int, fn func(context.Context, Language) error) error {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for _, lang := range langs {
		g.Go(func() error {
			return fn(ctx, lang)
		})
	}

	return g.Wait()
}

// CollectByLanguage runs fn for every language like ForEachLanguage and
// gathers successful results keyed by language. Failures are reported in
// the returned error map rather than aborting the other calls.
func CollectByLanguage[T any](ctx context.Context, langs []Language, limit int, fn func(context.Context, Language) (T, error)) (map[Language]T, map[Language]error) {
	type result struct {
		lang Language
		val  T
		err  error
	}

	results := make(chan result, len(langs))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for _, lang := range langs {
		g.Go(func() error {
			val, err := fn(ctx, lang)
			results <- result{lang: lang, val: val, err: err}
			return nil
		})
	}

	_ = g.Wait()
	close(results)

	values := make(map[Language]T)
	errs := make(map[Language]error)
	for r := range results {
		if r.err != nil {
			errs[r.lang] = r.err
			continue
		}
		values[r.lang] = r.val
	}
	return values, errs
}
