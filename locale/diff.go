package locale

import "sort"

// metaKeys are per-language header fields that are never translated.
var metaKeys = map[string]bool{
	"code": true, "name": true, "nativeName": true,
	"flag": true, "region": true, "direction": true,
}

// DiffResult represents the key differences between a base bundle and a
// target bundle.
type DiffResult struct {
	// Missing contains keys present in the base but not in the target.
	Missing []string

	// Extra contains keys present in the target but not in the base.
	Extra []string

	// Shared contains keys present in both bundles.
	Shared []string

	// Untranslated contains shared keys whose target value is identical to
	// the base value. This is a heuristic; brand names legitimately match.
	Untranslated []string
}

// Stats returns summary statistics for the diff.
func (d *DiffResult) Stats() DiffStats {
	return DiffStats{
		Missing:      len(d.Missing),
		Extra:        len(d.Extra),
		Shared:       len(d.Shared),
		Untranslated: len(d.Untranslated),
	}
}

// DiffStats contains summary statistics for a diff.
type DiffStats struct {
	Missing      int
	Extra        int
	Shared       int
	Untranslated int
}

// Complete reports whether the target has every base key.
func (d *DiffResult) Complete() bool {
	return len(d.Missing) == 0
}

// Coverage returns the share of base keys present in the target, 0..1.
func (d *DiffResult) Coverage() float64 {
	total := len(d.Missing) + len(d.Shared)
	if total == 0 {
		return 1
	}
	return float64(len(d.Shared)) / float64(total)
}

// Diff compares the translatable keys of two bundles. Header fields such
// as code and direction are ignored. All slices are sorted.
func Diff(base, target *Bundle) *DiffResult {
	result := &DiffResult{}

	baseKeys := base.Flatten()
	targetKeys := target.Flatten()

	for key, baseVal := range baseKeys {
		if metaKeys[key] {
			continue
		}
		targetVal, exists := targetKeys[key]
		if !exists {
			result.Missing = append(result.Missing, key)
			continue
		}
		result.Shared = append(result.Shared, key)
		if targetVal == baseVal {
			result.Untranslated = append(result.Untranslated, key)
		}
	}

	for key := range targetKeys {
		if metaKeys[key] {
			continue
		}
		if _, exists := baseKeys[key]; !exists {
			result.Extra = append(result.Extra, key)
		}
	}

	sort.Strings(result.Missing)
	sort.Strings(result.Extra)
	sort.Strings(result.Shared)
	sort.Strings(result.Untranslated)
	return result
}
