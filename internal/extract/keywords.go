package extract

import (
	"regexp"
	"sort"
)

// keywordTable scores a body against keyword lists keyed by label.
// Labels are kept sorted so ties resolve lexicographically by label.
type keywordTable struct {
	labels   []string
	patterns map[string][]*regexp.Regexp
}

func newKeywordTable(words map[string][]string) *keywordTable {
	t := &keywordTable{patterns: make(map[string][]*regexp.Regexp, len(words))}
	for label, list := range words {
		t.labels = append(t.labels, label)
		for _, w := range list {
			t.patterns[label] = append(t.patterns[label], wordPattern(w))
		}
	}
	sort.Strings(t.labels)
	return t
}

// best returns the label with the most distinct keyword hits, or false when nothing hits.
func (t *keywordTable) best(body string) (string, bool) {
	bestLabel, bestScore := "", 0
	for _, label := range t.labels {
		score := 0
		for _, p := range t.patterns[label] {
			if p.MatchString(body) {
				score++
			}
		}
		if score > bestScore {
			bestLabel, bestScore = label, score
		}
	}
	return bestLabel, bestScore > 0
}
