package dramabox

import "context"

// TranslateRequest is a batch of locale strings to machine-translate.
type TranslateRequest struct {
	Texts         []string
	TargetLang    Language
	SourceLang    Language
	ExcludedTerms []string // Terms to never translate (e.g., "DramaBox")
	Context       string   // Global context for all texts
	TextContexts  []string // Per-text context; the dotted bundle key
}

// MachineTranslator is the interface for machine translation backends used
// to fill missing locale keys.
type MachineTranslator interface {
	// Translate returns one translation per input text, in order.
	Translate(ctx context.Context, req TranslateRequest) ([]string, error)
}
