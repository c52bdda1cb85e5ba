package cache

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// ExportFormat represents the JSON structure for cache export/import.
type ExportFormat struct {
	Version    string            `json:"version"`
	ExportedAt string            `json:"exported_at"`
	Entries    []ExportEntry     `json:"entries"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ExportEntry represents a single cache entry.
type ExportEntry struct {
	Type      Type            `json:"type"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Exporter writes registry snapshots.
type Exporter struct {
	registry *Registry
	now      func() time.Time
}

// NewExporter creates a new cache exporter.
func NewExporter(registry *Registry) *Exporter {
	return &Exporter{registry: registry, now: time.Now}
}

// Export writes every cache of the registry to w in JSON format.
// Entries are written least recently used first so an import restores
// the recency order.
func (e *Exporter) Export(w io.Writer, metadata map[string]string) error {
	export := ExportFormat{
		Version:    "1.0",
		ExportedAt: e.now().UTC().Format(time.RFC3339),
		Entries:    []ExportEntry{},
		Metadata:   metadata,
	}

	for _, t := range e.registry.Types() {
		c, _ := e.registry.Get(t)
		for _, entry := range c.Entries() {
			export.Entries = append(export.Entries, ExportEntry{
				Type:      t,
				Key:       entry.Key,
				Value:     entry.Value,
				ExpiresAt: entry.ExpiresAt.UTC(),
			})
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(export); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}

	return nil
}

// ExportToFile exports the registry to a file.
// The path is provided by the caller and is intentionally user-controlled.
func (e *Exporter) ExportToFile(path string, metadata map[string]string) error {
	f, err := os.Create(path) // #nosec G304 - path is intentionally user-provided
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	return e.Export(f, metadata)
}

// Importer loads registry snapshots.
type Importer struct {
	registry *Registry
	now      func() time.Time
}

// NewImporter creates a new cache importer.
func NewImporter(registry *Registry) *Importer {
	return &Importer{registry: registry, now: time.Now}
}

// Import reads entries from r into the registry, keeping their original
// expiry. Expired entries and unknown cache types are skipped.
func (i *Importer) Import(r io.Reader) (*ImportResult, error) {
	var export ExportFormat
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}

	result := &ImportResult{
		Version:  export.Version,
		Metadata: export.Metadata,
	}

	now := i.now()
	for _, entry := range export.Entries {
		c, ok := i.registry.Get(entry.Type)
		if !ok || len(entry.Value) == 0 {
			result.Failed++
			continue
		}
		if now.After(entry.ExpiresAt) {
			result.Expired++
			continue
		}
		c.SetWithExpiry(entry.Key, entry.Value, entry.ExpiresAt)
		result.Imported++
	}

	return result, nil
}

// ImportFromFile imports cache entries from a file.
// The path is provided by the caller and is intentionally user-controlled.
func (i *Importer) ImportFromFile(path string) (*ImportResult, error) {
	f, err := os.Open(path) // #nosec G304 - path is intentionally user-provided
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	return i.Import(f)
}

// ImportResult contains statistics about the import operation.
type ImportResult struct {
	Version  string
	Metadata map[string]string
	Imported int
	Expired  int
	Failed   int
}
