// Package processor post-processes rendered HTML for the request language.
package processor

import (
	"strings"

	"github.com/ZaguanLabs/dramabox/resolver"
)

// IgnoredTags are elements whose text is never inspected for leaked keys.
var IgnoredTags = map[string]bool{
	"script":   true,
	"style":    true,
	"code":     true,
	"pre":      true,
	"textarea": true,
	"noscript": true,
	"svg":      true,
}

// Option configures a Localizer.
type Option func(*Localizer)

// WithIgnoredTags replaces the tags skipped by UnresolvedKeys.
func WithIgnoredTags(tags []string) Option {
	return func(l *Localizer) {
		ignored := make(map[string]bool)
		for _, tag := range tags {
			ignored[strings.ToLower(tag)] = true
		}
		l.ignoredTags = ignored
	}
}

// WithExcludedPrefixes sets the link prefixes that are never localized.
func WithExcludedPrefixes(prefixes ...string) Option {
	return func(l *Localizer) {
		l.resolver = resolver.New(resolver.WithExcludedPrefixes(prefixes...))
	}
}
