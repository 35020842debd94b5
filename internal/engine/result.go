package engine

import (
	"sort"

	"github.com/jeanpaul/recall/internal/knowledge"
)

// RetrievalResult holds one ranked, deduplicated list per category.
type RetrievalResult struct {
	lists [knowledge.NumCategories][]knowledge.LearnedEntry
}

// Get returns the ranked list for c. Invalid categories have no entries.
func (r *RetrievalResult) Get(c knowledge.Category) []knowledge.LearnedEntry {
	if r == nil || !c.Valid() {
		return nil
	}
	return r.lists[c]
}

func (r *RetrievalResult) set(c knowledge.Category, entries []knowledge.LearnedEntry) {
	r.lists[c] = entries
}

// Empty reports whether no category has entries.
func (r *RetrievalResult) Empty() bool {
	for _, c := range knowledge.Categories {
		if len(r.Get(c)) > 0 {
			return false
		}
	}
	return true
}

// Union returns every category's entries sorted by score, best first.
// Categories are concatenated in declaration order before the stable sort.
func (r *RetrievalResult) Union() []knowledge.LearnedEntry {
	var all []knowledge.LearnedEntry
	for _, c := range knowledge.Categories {
		all = append(all, r.Get(c)...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	return all
}
