package analysis

import (
	"strings"
	"unicode"
)

// MaxKeywords caps the keyword set extracted from one message.
const MaxKeywords = 10

// ProgrammingTerms are added to the keyword set whenever they occur
// anywhere in the message, even inside a longer word.
var ProgrammingTerms = []string{
	"function", "class", "method", "api", "fix", "error",
	"bug", "code", "implementation", "create", "generate", "write",
}

// ExtractKeywords returns the distinct lowercase words longer than three
// characters, followed by the programming terms found in msg, capped at
// MaxKeywords.
func ExtractKeywords(msg string) []string {
	lower := strings.ToLower(msg)
	seen := make(map[string]bool)
	var out []string
	add := func(w string) {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}

	for _, w := range tokenize(lower) {
		if len([]rune(w)) > 3 {
			add(w)
		}
	}
	for _, term := range ProgrammingTerms {
		if strings.Contains(lower, term) {
			add(term)
		}
	}

	if len(out) > MaxKeywords {
		out = out[:MaxKeywords]
	}
	return out
}

// tokenize splits on runs of anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
