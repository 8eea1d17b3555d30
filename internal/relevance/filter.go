// Package relevance implements the keyword substring/stem test a Source
// Adapter applies to a candidate's composed text corpus before it's kept,
// per §4.4.
package relevance

import (
	"strings"

	"github.com/kljensen/snowball"
)

// DefaultKeywords is the default keyword set when SEARCH_KEYWORDS is unset.
var DefaultKeywords = []string{"webmethods"}

// Filter tests a composed text corpus against a configured keyword set,
// using both raw substring matching and English stemming so that
// "scraping" and "scrape" both satisfy a "scrape" keyword.
type Filter struct {
	keywords []string
	stems    []string
}

// New builds a Filter from a keyword list; keywords are lower-cased and
// stemmed once at construction time.
func New(keywords []string) *Filter {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	f := &Filter{keywords: make([]string, len(keywords)), stems: make([]string, len(keywords))}
	for i, k := range keywords {
		lower := strings.ToLower(strings.TrimSpace(k))
		f.keywords[i] = lower
		f.stems[i] = stem(lower)
	}
	return f
}

// Keywords returns the configured keyword set.
func (f *Filter) Keywords() []string { return f.keywords }

// Matches reports whether corpus text contains any configured keyword,
// either as a raw substring or as a stemmed token. The corpus is expected
// to already be the concatenation of title, description, tags, keywords
// and source labels described in §4.4.
func (f *Filter) Matches(corpus string) (bool, []string) {
	lower := strings.ToLower(corpus)
	var hits []string
	tokens := tokenize(lower)
	stemmed := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		stemmed[stem(t)] = true
	}

	for i, kw := range f.keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, kw) || stemmed[f.stems[i]] {
			hits = append(hits, kw)
		}
	}
	return len(hits) > 0, hits
}

func stem(word string) string {
	s, err := snowball.Stem(word, "english", true)
	if err != nil {
		return word
	}
	return s
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}
