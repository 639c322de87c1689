package dedupe

import "strings"

// minKeywordLength is the shortest token worth indexing. Two-character
// words ("a", "on", "is") match far too much to be useful for retrieval.
const minKeywordLength = 3

// ExtractKeywords turns free text into the normalized tokens used for
// candidate retrieval: lowercase, split on whitespace runs, tokens shorter
// than three characters dropped. No stemming, no stop-word list, no
// deduplication. Pure: the same input always yields the same output, and
// empty or whitespace-only input yields nil.
func ExtractKeywords(text string) []string {
	var keywords []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if len(word) >= minKeywordLength {
			keywords = append(keywords, word)
		}
	}
	return keywords
}
