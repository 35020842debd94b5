package engine

import (
	"sort"
	"strings"

	"github.com/jeanpaul/recall/internal/knowledge"
)

// MaxPerCategory caps each category's list after deduplication.
const MaxPerCategory = 20

// Rank deduplicates entries by exact content (first occurrence wins),
// sorts them by score descending and keeps the best MaxPerCategory.
// The sort is stable, so equal scores keep retrieval order.
func Rank(entries []knowledge.LearnedEntry) []knowledge.LearnedEntry {
	seen := make(map[string]bool, len(entries))
	out := make([]knowledge.LearnedEntry, 0, len(entries))
	for _, e := range entries {
		if seen[e.Content] {
			continue
		}
		seen[e.Content] = true
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > MaxPerCategory {
		out = out[:MaxPerCategory]
	}
	return out
}

// Preference is the synthesis-time ordering: framework match first, then
// preferred provenance, then score.
type Preference struct {
	Framework      string
	TrustedSources []string
}

// MentionsFramework reports whether e is about the preferred framework,
// either in its content or in its metadata. It is false when no framework
// was detected.
func (p Preference) MentionsFramework(e knowledge.LearnedEntry) bool {
	fw := strings.TrimSpace(p.Framework)
	if fw == "" {
		return false
	}
	if strings.EqualFold(e.Metadata.Framework, fw) {
		return true
	}
	return strings.Contains(strings.ToLower(e.Content), strings.ToLower(fw))
}

// Trusted reports whether e comes from a preferred source.
func (p Preference) Trusted(e knowledge.LearnedEntry) bool {
	for _, s := range p.TrustedSources {
		if strings.EqualFold(s, e.Source) {
			return true
		}
	}
	return false
}

// Order returns a copy of entries sorted by the preference. The input is
// not modified.
func (p Preference) Order(entries []knowledge.LearnedEntry) []knowledge.LearnedEntry {
	out := append([]knowledge.LearnedEntry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if fa, fb := p.MentionsFramework(a), p.MentionsFramework(b); fa != fb {
			return fa
		}
		if ta, tb := p.Trusted(a), p.Trusted(b); ta != tb {
			return ta
		}
		return a.Score > b.Score
	})
	return out
}
