package dedupe

import "strings"

// DefaultThreshold is the similarity above which two titles are considered
// likely duplicates. Strictly greater-than: a score of exactly 0.4 is not
// a match. Tunable policy, not a hard constraint.
const DefaultThreshold = 0.4

// Similarity computes the Jaccard similarity of two strings over their
// word sets: |intersection| / |union|, in [0, 1]. Both inputs are
// lowercased and split on whitespace runs; unlike keyword extraction,
// short words count here. Symmetric by construction.
//
// If both inputs reduce to empty word sets the ratio is 0/0; that case is
// defined as 0 ("not similar") rather than NaN.
func Similarity(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)

	union := len(setB)
	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		} else {
			union++
		}
	}

	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}
