package provider

import (
	"context"
	"fmt"
)

// MockProvider is a mock machine translator for tests and dry runs.
type MockProvider struct {
	Translations map[string]string // Map of source text to translation
	Err          error             // Returned by Translate when set
	CallCount    int               // Number of times Translate was called
	LastRequest  *TranslateRequest // Last request received
}

// NewMockProvider creates a new mock provider with a few Indonesian to
// English translations.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Translations: map[string]string{
			"Beranda":      "Home",
			"Terbaru":      "Latest",
			"Tonton":       "Watch",
			"Gagal memuat": "Failed to load",
		},
	}
}

// Translate returns mock translations. Unknown texts come back bracketed.
func (m *MockProvider) Translate(ctx context.Context, req TranslateRequest) ([]string, error) {
	m.CallCount++
	m.LastRequest = &req

	if m.Err != nil {
		return nil, m.Err
	}

	results := make([]string, len(req.Texts))
	for i, text := range req.Texts {
		if translation, ok := m.Translations[text]; ok {
			results[i] = translation
		} else {
			results[i] = fmt.Sprintf("[%s]", text)
		}
	}

	return results, nil
}

// Reset resets the call count and last request.
func (m *MockProvider) Reset() {
	m.CallCount = 0
	m.LastRequest = nil
}

// Verify MockProvider implements MachineTranslator
var _ MachineTranslator = (*MockProvider)(nil)
