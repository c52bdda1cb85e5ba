package locale

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ZaguanLabs/dramabox"
)

// Filler machine-translates the keys a bundle is missing relative to a base
// bundle.
type Filler struct {
	translator    dramabox.MachineTranslator
	batchSize     int
	excludedTerms []string
}

// FillerOption configures a Filler.
type FillerOption func(*Filler)

// WithBatchSize sets how many strings are sent per translation request.
func WithBatchSize(n int) FillerOption {
	return func(f *Filler) {
		if n > 0 {
			f.batchSize = n
		}
	}
}

// WithExcludedTerms sets terms the translator must keep verbatim.
func WithExcludedTerms(terms ...string) FillerOption {
	return func(f *Filler) {
		f.excludedTerms = terms
	}
}

// NewFiller creates a filler backed by translator.
func NewFiller(translator dramabox.MachineTranslator, opts ...FillerOption) *Filler {
	f := &Filler{
		translator:    translator,
		batchSize:     50,
		excludedTerms: []string{"DramaBox"},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fill returns translations for every key missing from target, keyed by
// dotted path. base supplies the source strings.
func (f *Filler) Fill(ctx context.Context, baseLang dramabox.Language, base *Bundle, targetLang dramabox.Language, target *Bundle) (map[string]string, error) {
	missing := Diff(base, target).Missing
	result := make(map[string]string, len(missing))
	if len(missing) == 0 {
		return result, nil
	}

	source := base.Flatten()
	for start := 0; start < len(missing); start += f.batchSize {
		end := start + f.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		keys := missing[start:end]

		texts := make([]string, len(keys))
		for i, key := range keys {
			texts[i] = source[key]
		}

		translations, err := f.translator.Translate(ctx, dramabox.TranslateRequest{
			Texts:         texts,
			SourceLang:    baseLang,
			TargetLang:    targetLang,
			ExcludedTerms: f.excludedTerms,
			Context:       "User interface strings of a short-drama streaming website.",
			TextContexts:  keys,
		})
		if err != nil {
			return nil, err
		}
		if len(translations) != len(keys) {
			return nil, &dramabox.CountMismatchError{Expected: len(keys), Got: len(translations)}
		}

		for i, key := range keys {
			result[key] = translations[i]
		}
	}

	return result, nil
}

// Merge writes additions into the bundle JSON in data and returns the
// re-encoded document. Existing values are never overwritten.
func Merge(data []byte, additions map[string]string) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding bundle: %w", err)
	}

	for path, value := range additions {
		if err := setPath(doc, strings.Split(path, "."), value); err != nil {
			return nil, fmt.Errorf("setting %s: %w", path, err)
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding bundle: %w", err)
	}
	return buf.Bytes(), nil
}

func setPath(node map[string]any, segments []string, value string) error {
	key := segments[0]
	if len(segments) == 1 {
		if existing, ok := node[key]; ok {
			if s, isString := existing.(string); !isString || s != "" {
				return nil
			}
		}
		node[key] = value
		return nil
	}

	child, ok := node[key]
	if !ok {
		next := make(map[string]any)
		node[key] = next
		return setPath(next, segments[1:], value)
	}
	next, ok := child.(map[string]any)
	if !ok {
		return fmt.Errorf("%q is not an object", key)
	}
	return setPath(next, segments[1:], value)
}
