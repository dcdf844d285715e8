// Package extract holds the stateless field extractors used by the
// rule-based strategy. Every extractor is safe for concurrent use.
package extract

import (
	"regexp"
	"strings"
)

// Extractor pulls one field out of an alert body. The sender may be empty.
type Extractor[T any] interface {
	Extract(body, sender string) (T, bool)
}

// Func adapts a plain function to the Extractor interface.
type Func[T any] func(body, sender string) (T, bool)

// Extract calls f.
func (f Func[T]) Extract(body, sender string) (T, bool) {
	return f(body, sender)
}

// firstSubmatch returns the first capture group of the first pattern that matches.
func firstSubmatch(patterns []*regexp.Regexp, s string) (string, bool) {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(s); len(m) > 1 {
			if v := strings.TrimSpace(m[1]); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// wordPattern compiles a case-insensitive whole-word matcher for a keyword or phrase.
func wordPattern(phrase string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(phrase) + `\b`)
}

// containsAny reports whether lower contains any of the substrings.
func containsAny(lower string, subs ...string) bool {
	for _, s := range subs {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
