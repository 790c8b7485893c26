package extract

import (
	"sort"
	"strings"
	"unicode"
)

// maxKeywords is the number of terms kept from each of the text and title.
const maxKeywords = 10

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
a about above after again against all am an and any are as at be because been
before being below between both but by can could did do does doing down during
each few for from further had has have having he her here hers herself him
himself his how i if in into is it its itself just me more most my myself no
nor not now of off on once only or other our ours ourselves out over own said
same she should so some such than that the their theirs them themselves then
there these they this those through to too under until up very was we were
what when where which while who whom why will with would you your yours
yourself yourselves also one two new says like get got may many much us`) {
		stopWords[w] = struct{}{}
	}
}

// Keywords returns the most frequent terms of text merged with those of
// title, sorted alphabetically. Stop words, numbers and single letters are
// ignored.
func Keywords(text, title string) []string {
	set := make(map[string]struct{})
	for _, source := range []string{text, title} {
		for _, term := range topTerms(source, maxKeywords) {
			set[term] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func topTerms(source string, n int) []string {
	counts := make(map[string]int)
	words := strings.FieldsFunc(strings.ToLower(source), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
	for _, word := range words {
		word = strings.Trim(word, "'")
		if len([]rune(word)) < 2 || isNumeric(word) {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		counts[word]++
	}

	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

func isNumeric(word string) bool {
	for _, r := range word {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
