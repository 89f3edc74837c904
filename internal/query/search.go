package query

import (
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mmcdole/crate/internal/domain"
)

// fold lowercases s and strips diacritics so "Björk" and "bjork" compare equal.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// tokenize splits text into lowercase word tokens.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// allowedTypos returns the edit distance tolerated for a query token.
// Short tokens must match exactly; a single typo is allowed from five runes on.
func allowedTypos(length int) int {
	if length < 5 {
		return 0
	}
	return 1
}

// matcher holds a compiled search query. The zero value matches everything.
type matcher struct {
	tokens []string
}

// compileSearch splits the query on whitespace. Every token must match.
func compileSearch(query string) matcher {
	return matcher{tokens: strings.Fields(fold(query))}
}

func (m matcher) empty() bool {
	return len(m.tokens) == 0
}

// haystack is the searchable text of one item.
type haystack struct {
	text  string   // folded title, creator and labels joined by newlines
	words []string // tokens of text, for typo-tolerant matching
}

func newHaystack(it domain.CatalogItem) haystack {
	parts := make([]string, 0, 2+len(it.Attributes.Labels))
	parts = append(parts, it.Attributes.Title, it.Attributes.Creator)
	parts = append(parts, it.Attributes.Labels...)
	text := fold(strings.Join(parts, "\n"))
	return haystack{text: text, words: tokenize(text)}
}

// match reports whether every query token matches the haystack, either as
// a substring or within the typo budget of a whole word.
func (m matcher) match(h haystack) bool {
	for _, tok := range m.tokens {
		if !matchToken(tok, h) {
			return false
		}
	}
	return true
}

func matchToken(tok string, h haystack) bool {
	if strings.Contains(h.text, tok) {
		return true
	}
	maxTypos := allowedTypos(len([]rune(tok)))
	if maxTypos == 0 {
		return false
	}
	for _, w := range h.words {
		if fuzzy.LevenshteinDistance(tok, w) <= maxTypos {
			return true
		}
	}
	return false
}
