// Package analysis turns a raw request into keywords and a PromptAnalysis.
package analysis

import (
	"context"
	"strings"
)

// Intent represents the user's intention
type Intent int

const (
	IntentGeneral Intent = iota
	IntentAnswerQuestion
	IntentCreateCode
	IntentFixCode
	IntentUseAPI
	IntentRunTest
)

// QuestionWords mark a message as a question when they appear as a word.
var QuestionWords = []string{
	"what", "how", "why", "when", "where", "which", "who",
	"does", "do", "did", "will", "would", "should", "can", "could",
}

// intentRule is one step of the heuristic; rules are tried in order and
// the first rule with a matching substring wins.
type intentRule struct {
	intent   Intent
	keywords []string
}

var intentRules = []intentRule{
	{IntentCreateCode, []string{"create", "write", "generate", "implement"}},
	{IntentFixCode, []string{"fix", "error", "bug", "issue"}},
	{IntentUseAPI, []string{"api", "call", "request"}},
}

// PromptAnalysis is the classified form of one request. It is built fresh
// per request and not modified afterwards.
type PromptAnalysis struct {
	Intent               Intent
	FrameworkType        string
	FileTypes            []string
	ImportPatterns       string
	EventHandlerPatterns string
	PromptPattern        string
	Metadata             Hints
}

// Hints are the optional structured names downstream steps look for.
type Hints struct {
	FileNames     []string `json:"file_names,omitempty"`
	FunctionNames []string `json:"function_names,omitempty"`
}

// FirstFileName returns the first file name hint, if any.
func (h Hints) FirstFileName() (string, bool) {
	if len(h.FileNames) == 0 {
		return "", false
	}
	return h.FileNames[0], true
}

// FirstFunctionName returns the first function name hint, if any.
func (h Hints) FirstFunctionName() (string, bool) {
	if len(h.FunctionNames) == 0 {
		return "", false
	}
	return h.FunctionNames[0], true
}

// Classifier maps a message to a PromptAnalysis.
type Classifier interface {
	Classify(ctx context.Context, msg string) (PromptAnalysis, error)
}

// HeuristicClassifier is the deterministic keyword classifier. It is always
// ready and never fails.
type HeuristicClassifier struct{}

func (HeuristicClassifier) Classify(_ context.Context, msg string) (PromptAnalysis, error) {
	return PromptAnalysis{Intent: DetectIntent(msg)}, nil
}

// DetectIntent analyzes the message and returns its intent. Questions win
// over everything else, then create, fix and api keywords in that order.
func DetectIntent(msg string) Intent {
	lowerMsg := strings.ToLower(strings.TrimSpace(msg))

	if strings.HasSuffix(lowerMsg, "?") || hasQuestionWord(lowerMsg) {
		return IntentAnswerQuestion
	}
	for _, rule := range intentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lowerMsg, kw) {
				return rule.intent
			}
		}
	}
	return IntentGeneral
}

func hasQuestionWord(lowerMsg string) bool {
	words := make(map[string]bool)
	for _, w := range tokenize(lowerMsg) {
		words[w] = true
	}
	for _, q := range QuestionWords {
		if words[q] {
			return true
		}
	}
	return false
}

// IntentName returns human-readable intent name
func IntentName(intent Intent) string {
	names := map[Intent]string{
		IntentGeneral:        "General",
		IntentAnswerQuestion: "AnswerQuestion",
		IntentCreateCode:     "CreateCode",
		IntentFixCode:        "FixCode",
		IntentUseAPI:         "UseApi",
		IntentRunTest:        "RunTest",
	}
	if name, ok := names[intent]; ok {
		return name
	}
	return "Unknown"
}

func (i Intent) String() string { return IntentName(i) }

// ParseIntent accepts the names produced by IntentName, case-insensitively,
// with or without underscores.
func ParseIntent(s string) (Intent, bool) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	for _, i := range []Intent{IntentGeneral, IntentAnswerQuestion, IntentCreateCode, IntentFixCode, IntentUseAPI, IntentRunTest} {
		if strings.ToLower(IntentName(i)) == norm {
			return i, true
		}
	}
	return IntentGeneral, false
}
