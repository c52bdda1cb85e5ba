package locale

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ZaguanLabs/dramabox"
)

// upperTranslator "translates" by upper-casing and records requests.
type upperTranslator struct {
	requests []dramabox.TranslateRequest
	short    bool
	err      error
}

func (u *upperTranslator) Translate(ctx context.Context, req dramabox.TranslateRequest) ([]string, error) {
	u.requests = append(u.requests, req)
	if u.err != nil {
		return nil, u.err
	}
	out := make([]string, 0, len(req.Texts))
	for _, text := range req.Texts {
		out = append(out, strings.ToUpper(text))
	}
	if u.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

const fillBase = `{
	"code": "in", "name": "Indonesian", "nativeName": "Bahasa Indonesia", "direction": "ltr",
	"nav": {"home": "Beranda", "latest": "Terbaru", "search": "Cari"},
	"errors": {"failedToLoad": "Gagal memuat"}
}`

const fillTarget = `{
	"code": "de", "name": "German", "nativeName": "Deutsch", "direction": "ltr",
	"nav": {"home": "Startseite"}
}`

func TestFiller_Fill(t *testing.T) {
	base := mustParse(t, dramabox.Indonesian, fillBase)
	target := mustParse(t, dramabox.German, fillTarget)
	tr := &upperTranslator{}

	got, err := NewFiller(tr, WithBatchSize(2)).Fill(context.Background(), dramabox.Indonesian, base, dramabox.German, target)
	if err != nil {
		t.Fatalf("Fill failed: %v", err)
	}

	want := map[string]string{
		"errors.failedToLoad": "GAGAL MEMUAT",
		"nav.latest":          "TERBARU",
		"nav.search":          "CARI",
	}
	if len(got) != len(want) {
		t.Fatalf("Fill returned %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("Fill[%q] = %q, want %q", k, got[k], v)
		}
	}

	if len(tr.requests) != 2 {
		t.Fatalf("Expected 2 batches, got %d", len(tr.requests))
	}
	first := tr.requests[0]
	if first.TargetLang != dramabox.German || first.SourceLang != dramabox.Indonesian {
		t.Errorf("Unexpected languages in request: %+v", first)
	}
	if len(first.TextContexts) != len(first.Texts) || first.TextContexts[0] != "errors.failedToLoad" {
		t.Errorf("Text contexts should carry keys: %v", first.TextContexts)
	}
	if len(first.ExcludedTerms) == 0 || first.ExcludedTerms[0] != "DramaBox" {
		t.Errorf("Expected brand name excluded, got %v", first.ExcludedTerms)
	}
}

func TestFiller_NothingMissing(t *testing.T) {
	base := mustParse(t, dramabox.Indonesian, fillBase)
	tr := &upperTranslator{}

	got, err := NewFiller(tr).Fill(context.Background(), dramabox.Indonesian, base, dramabox.Indonesian, base)
	if err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	if len(got) != 0 || len(tr.requests) != 0 {
		t.Errorf("Expected no translation work, got %v (%d requests)", got, len(tr.requests))
	}
}

func TestFiller_CountMismatch(t *testing.T) {
	base := mustParse(t, dramabox.Indonesian, fillBase)
	target := mustParse(t, dramabox.German, fillTarget)

	_, err := NewFiller(&upperTranslator{short: true}).Fill(context.Background(), dramabox.Indonesian, base, dramabox.German, target)

	var mismatch *dramabox.CountMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Expected CountMismatchError, got %v", err)
	}
}

func TestFiller_TranslatorError(t *testing.T) {
	base := mustParse(t, dramabox.Indonesian, fillBase)
	target := mustParse(t, dramabox.German, fillTarget)
	boom := &dramabox.ProviderError{Message: "rate limited"}

	_, err := NewFiller(&upperTranslator{err: boom}).Fill(context.Background(), dramabox.Indonesian, base, dramabox.German, target)
	if !errors.Is(err, boom) {
		t.Errorf("Expected provider error, got %v", err)
	}
}

func TestMerge(t *testing.T) {
	out, err := Merge([]byte(fillTarget), map[string]string{
		"nav.latest":          "Neu",
		"nav.home":            "Overwritten",
		"errors.failedToLoad": "Fehler",
		"page.about.title":    "Über uns",
	})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	b, err := ParseBundle(dramabox.German, out)
	if err != nil {
		t.Fatalf("merged bundle should stay valid: %v\n%s", err, out)
	}

	checks := map[string]string{
		"nav.home":            "Startseite", // existing values are kept
		"nav.latest":          "Neu",
		"errors.failedToLoad": "Fehler",
		"page.about.title":    "Über uns",
	}
	for path, want := range checks {
		if got, _ := b.Lookup(path); got != want {
			t.Errorf("Lookup(%q) = %q, want %q", path, got, want)
		}
	}

	if !json.Valid(out) || !strings.Contains(string(out), `"title": "Über uns"`) {
		t.Errorf("Merge output should be readable JSON:\n%s", out)
	}
}

func TestMerge_Conflicts(t *testing.T) {
	if _, err := Merge([]byte(fillTarget), map[string]string{"nav.home.deep": "x"}); err == nil {
		t.Error("Expected error when a path crosses a string value")
	}
	if _, err := Merge([]byte("not json"), nil); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}
