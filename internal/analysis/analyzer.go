// Package analysis turns raw text into the normalised term sequence that the
// indexer interns and the retrieval engine looks up. The pipeline is
// lower-casing, splitting on non-alphanumeric boundaries, Snowball English
// stemming and stop-word removal.
package analysis

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

// Analyzer is the text-analysis collaborator shared by block building and
// query processing. Both sides must use the same Analyzer or query terms will
// not line up with indexed terms.
type Analyzer interface {
	Analyze(text string) []string
}

// AnalyzerFunc adapts a plain function to the Analyzer interface.
type AnalyzerFunc func(text string) []string

func (f AnalyzerFunc) Analyze(text string) []string { return f(text) }

var stopWords = map[string]struct{}{
	"i": {}, "me": {}, "my": {}, "myself": {}, "we": {}, "our": {}, "ours": {},
	"ourselves": {}, "you": {}, "your": {}, "yours": {}, "yourself": {},
	"yourselves": {}, "he": {}, "him": {}, "his": {}, "himself": {}, "she": {},
	"her": {}, "hers": {}, "herself": {}, "it": {}, "its": {}, "itself": {},
	"they": {}, "them": {}, "their": {}, "theirs": {}, "themselves": {},
	"what": {}, "which": {}, "who": {}, "whom": {}, "this": {}, "that": {},
	"these": {}, "those": {}, "am": {}, "is": {}, "are": {}, "was": {},
	"were": {}, "be": {}, "been": {}, "being": {}, "have": {}, "has": {},
	"had": {}, "having": {}, "do": {}, "does": {}, "did": {}, "doing": {},
	"a": {}, "an": {}, "the": {}, "and": {}, "but": {}, "if": {}, "or": {},
	"because": {}, "as": {}, "until": {}, "while": {}, "of": {}, "at": {},
	"by": {}, "for": {}, "with": {}, "about": {}, "against": {}, "between": {},
	"into": {}, "through": {}, "during": {}, "before": {}, "after": {},
	"above": {}, "below": {}, "to": {}, "from": {}, "up": {}, "down": {},
	"in": {}, "out": {}, "on": {}, "off": {}, "over": {}, "under": {},
	"again": {}, "further": {}, "then": {}, "once": {}, "here": {}, "there": {},
	"when": {}, "where": {}, "why": {}, "how": {}, "all": {}, "any": {},
	"both": {}, "each": {}, "few": {}, "more": {}, "most": {}, "other": {},
	"some": {}, "such": {}, "no": {}, "nor": {}, "not": {}, "only": {},
	"own": {}, "same": {}, "so": {}, "than": {}, "too": {}, "very": {},
	"s": {}, "t": {}, "can": {}, "will": {}, "just": {}, "don": {},
	"should": {}, "now": {},
}

// IsStopWord reports whether term is dropped by the English analyzer.
func IsStopWord(term string) bool {
	_, ok := stopWords[term]
	return ok
}

// English is the default Analyzer. The zero value is ready to use and safe for
// concurrent calls.
type English struct{}

// NewEnglish returns the default English analyzer.
func NewEnglish() English {
	return English{}
}

// Analyze lower-cases text, splits it into alphanumeric words, stems each word
// and drops stop words. Stemming happens before the stop-word check.
func (English) Analyze(text string) []string {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words))
	for _, word := range words {
		stemmed := english.Stem(word, false)
		if stemmed == "" {
			continue
		}
		if IsStopWord(stemmed) {
			continue
		}
		terms = append(terms, stemmed)
	}
	return terms
}

// Whitespace splits lower-cased text on whitespace only. It is the token
// shape handed to rerankers, which expect unstemmed surface words.
func Whitespace(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
