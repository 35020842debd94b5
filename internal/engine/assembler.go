package engine

import (
	"fmt"
	"strings"

	"github.com/jeanpaul/recall/internal/analysis"
	"github.com/jeanpaul/recall/internal/knowledge"
)

// How many entries of each category the context blob includes.
const (
	contextFrameworkLimit = 3
	contextSnippetLimit   = 5
	contextAPILimit       = 3
	contextFixLimit       = 3
)

// AssembleContext builds the prioritized context blob: framework knowledge,
// code snippets, API usage and, when the message is about fixing an error,
// fix patches.
func AssembleContext(res *RetrievalResult, pa analysis.PromptAnalysis, msg string, pref Preference) string {
	var sb strings.Builder

	framework := res.Get(knowledge.CategoryFrameworkKnowledge)
	if pa.FrameworkType != "" {
		framework = filter(framework, func(e knowledge.LearnedEntry) bool {
			return Preference{Framework: pa.FrameworkType}.MentionsFramework(e)
		})
	}
	writeBlocks(&sb, first(framework, contextFrameworkLimit))

	writeBlocks(&sb, first(pref.Order(res.Get(knowledge.CategoryCodeSnippet)), contextSnippetLimit))
	writeBlocks(&sb, first(res.Get(knowledge.CategoryAPIUsage), contextAPILimit))

	lower := strings.ToLower(msg)
	if strings.Contains(lower, "fix") || strings.Contains(lower, "error") {
		writeBlocks(&sb, first(res.Get(knowledge.CategoryFixPatch), contextFixLimit))
	}
	return sb.String()
}

// writeBlocks renders entries as labeled blocks:
//
//	[CODE_SNIPPET] (score 0.90)
//	content
func writeBlocks(sb *strings.Builder, entries []knowledge.LearnedEntry) {
	for _, e := range entries {
		fmt.Fprintf(sb, "[%s] (score %.2f)\n%s\n\n", e.Category.Tag(), e.Score, e.Content)
	}
}

func first(entries []knowledge.LearnedEntry, n int) []knowledge.LearnedEntry {
	if len(entries) > n {
		return entries[:n]
	}
	return entries
}

func filter(entries []knowledge.LearnedEntry, keep func(knowledge.LearnedEntry) bool) []knowledge.LearnedEntry {
	var out []knowledge.LearnedEntry
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
