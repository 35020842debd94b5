package knowledge

import (
	"sort"
	"strings"
	"unicode"
)

// rankByHint orders entries by how many significant hint words their
// content contains, then by score. The sort is stable so store order
// breaks the remaining ties. An empty hint orders by score alone.
func rankByHint(entries []LearnedEntry, hint string) []LearnedEntry {
	hintWords := significantWords(hint)
	relevance := make(map[int]int, len(entries))
	if len(hintWords) > 0 {
		for i, e := range entries {
			content := strings.ToLower(e.Content)
			for _, w := range hintWords {
				if strings.Contains(content, w) {
					relevance[i]++
				}
			}
		}
	}

	idx := make([]int, len(entries))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		if relevance[ia] != relevance[ib] {
			return relevance[ia] > relevance[ib]
		}
		return entries[ia].Score > entries[ib].Score
	})

	out := make([]LearnedEntry, len(entries))
	for i, j := range idx {
		out[i] = entries[j]
	}
	return out
}

func truncate(entries []LearnedEntry, limit int) []LearnedEntry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}

// significantWords lowercases s and keeps the distinct words longer than
// three characters.
func significantWords(s string) []string {
	seen := make(map[string]bool)
	var words []string
	for _, w := range strings.FieldsFunc(strings.ToLower(s), isSeparator) {
		if len([]rune(w)) > 3 && !seen[w] {
			seen[w] = true
			words = append(words, w)
		}
	}
	return words
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
