package hybridindex

import "strings"

// defaultStopwords is a small, fixed English stopword list. Configurable
// per §4.4, but a sane built-in default keeps the index usable with no
// configuration.
var defaultStopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "have": true,
	"if": true, "in": true, "into": true, "is": true, "it": true, "its": true,
	"of": true, "on": true, "or": true, "that": true, "the": true, "their": true,
	"this": true, "to": true, "was": true, "were": true, "will": true, "with": true,
}

// tokenize lowercases and splits on anything but ASCII letters and digits,
// dropping stopwords and tokens shorter than two characters. Simple and deterministic, which is all BM25
// scoring over a self-maintained postings table needs.
func tokenize(text string, stopwords map[string]bool) []string {
	if stopwords == nil {
		stopwords = defaultStopwords
	}
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// termFrequencies counts occurrences of each token.
func termFrequencies(tokens []string) map[string]int {
	freq := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freq[t]++
	}
	return freq
}
