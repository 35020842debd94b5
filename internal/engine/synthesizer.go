package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jeanpaul/recall/internal/analysis"
	"github.com/jeanpaul/recall/internal/knowledge"
	"github.com/jeanpaul/recall/internal/schema"
)

// Fixed fallback texts.
const (
	ApologyText           = "Sorry, no relevant knowledge found."
	NeedMoreKnowledgeText = "I need more knowledge to answer that."
)

const (
	// FixLookupLimit bounds the structured fix lookup.
	FixLookupLimit = 5

	// FixFieldLimit bounds the old and new code shown per fix.
	FixFieldLimit = 200

	// SearchFixesTool names the fix lookup in tool events.
	SearchFixesTool = "search_fixes"

	citationLimit = 100
)

// Request is everything the synthesizer needs for one response.
type Request struct {
	Message  string
	Keywords []string
	Analysis analysis.PromptAnalysis
	Results  *RetrievalResult
}

// ToolInvocation records a store lookup made while synthesizing, so it can
// be reported to the caller.
type ToolInvocation struct {
	Name   string
	Args   string
	Result string
}

// Synthesis is a synthesized response.
type Synthesis struct {
	Text  string
	Tools []ToolInvocation

	// Fallback is ErrNoRelevantKnowledge when Text is one of the fixed
	// fallback texts.
	Fallback error
}

// Synthesizer builds the response text for a classified request.
type Synthesizer struct {
	store     knowledge.Store
	validator *schema.Validator
	trusted   []string
	log       *zap.Logger
}

// NewSynthesizer returns a Synthesizer preferring entries from trusted sources.
func NewSynthesizer(store knowledge.Store, trusted []string, log *zap.Logger) *Synthesizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Synthesizer{
		store:     store,
		validator: schema.NewValidator(),
		trusted:   trusted,
		log:       log,
	}
}

// Synthesize dispatches on the request's intent. Missing knowledge is never
// an error: every branch ends in a response or a fixed fallback text. An
// error means a store lookup failed.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (Synthesis, error) {
	pref := Preference{Framework: req.Analysis.FrameworkType, TrustedSources: s.trusted}

	switch req.Analysis.Intent {
	case analysis.IntentAnswerQuestion:
		return s.answerQuestion(req), nil
	case analysis.IntentCreateCode:
		return s.createCode(req, pref), nil
	case analysis.IntentFixCode:
		return s.fixCode(ctx, req)
	case analysis.IntentUseAPI:
		return joinContents(first(req.Results.Get(knowledge.CategoryAPIUsage), 3)), nil
	case analysis.IntentRunTest:
		tests := filter(req.Results.Get(knowledge.CategoryCodeSnippet), func(e knowledge.LearnedEntry) bool {
			return strings.Contains(strings.ToLower(e.Content), "test")
		})
		return joinContents(first(tests, 3)), nil
	default:
		return s.general(req, pref), nil
	}
}

func (s *Synthesizer) answerQuestion(req Request) Synthesis {
	entries := req.Results.Get(knowledge.CategoryMetadataTransformation)

	for _, e := range entries {
		if !e.Metadata.HasQA() {
			continue
		}
		qa, err := s.validator.ParseQA(e.Metadata.QA)
		if err != nil {
			s.log.Debug("falling back to raw content",
				zap.String("id", e.ID), zap.Error(fmt.Errorf("%w: %w", ErrMalformedEntry, err)))
			return Synthesis{Text: e.Content}
		}
		return Synthesis{Text: fmt.Sprintf("%s\n\n(Learned from: %q)", qa.Answer, truncateText(qa.Question, citationLimit))}
	}

	return joinContents(first(entries, 3))
}

func (s *Synthesizer) createCode(req Request, pref Preference) Synthesis {
	var pool []knowledge.LearnedEntry
	pool = append(pool, req.Results.Get(knowledge.CategoryCodeSnippet)...)
	pool = append(pool, filter(req.Results.Get(knowledge.CategoryFrameworkKnowledge), carriesCode)...)

	if ordered := pref.Order(pool); len(ordered) > 0 {
		return Synthesis{Text: renderSnippet(ordered[0].Content, req.Analysis)}
	}

	// Framework knowledge is already sorted by score.
	if fw := req.Results.Get(knowledge.CategoryFrameworkKnowledge); len(fw) > 0 {
		return Synthesis{Text: fw[0].Content}
	}
	return apology()
}

// carriesCode reports whether a framework entry can stand in for a snippet.
func carriesCode(e knowledge.LearnedEntry) bool {
	return strings.Contains(e.Content, "```") ||
		strings.Contains(e.Content, "{file}") ||
		strings.Contains(e.Content, "{function}")
}

// renderSnippet prepends import hints, fills placeholders and appends an
// event handler hint for web frameworks.
func renderSnippet(snippet string, pa analysis.PromptAnalysis) string {
	var sb strings.Builder

	if imports := strings.TrimSpace(pa.ImportPatterns); imports != "" {
		for _, line := range strings.Split(imports, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				sb.WriteString("// " + line + "\n")
			}
		}
		sb.WriteString("\n")
	}

	if name, ok := pa.Metadata.FirstFileName(); ok {
		snippet = strings.ReplaceAll(snippet, "{file}", name)
	}
	if name, ok := pa.Metadata.FirstFunctionName(); ok {
		snippet = strings.ReplaceAll(snippet, "{function}", name)
	}
	sb.WriteString(snippet)

	web := strings.EqualFold(pa.FrameworkType, "HTML") || strings.EqualFold(pa.FrameworkType, "JavaScript")
	if web && strings.TrimSpace(pa.EventHandlerPatterns) != "" {
		if !strings.HasSuffix(snippet, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("// Event handler: " + strings.TrimSpace(pa.EventHandlerPatterns))
	}
	return sb.String()
}

func (s *Synthesizer) fixCode(ctx context.Context, req Request) (Synthesis, error) {
	fixes, err := s.store.SearchFixes(ctx, req.Keywords, FixLookupLimit)
	if err != nil {
		return Synthesis{}, fmt.Errorf("search fixes: %w", err)
	}
	if len(fixes) > FixLookupLimit {
		fixes = fixes[:FixLookupLimit]
	}

	tool := ToolInvocation{
		Name:   SearchFixesTool,
		Args:   strings.Join(req.Keywords, ", "),
		Result: fmt.Sprintf("%d fixes", len(fixes)),
	}

	if len(fixes) == 0 {
		syn := joinContents(first(req.Results.Get(knowledge.CategoryFixPatch), 2))
		syn.Tools = []ToolInvocation{tool}
		return syn, nil
	}

	blocks := make([]string, 0, len(fixes))
	for i, f := range fixes {
		blocks = append(blocks, renderFix(i+1, f))
	}
	return Synthesis{Text: strings.Join(blocks, "\n\n"), Tools: []ToolInvocation{tool}}, nil
}

func renderFix(n int, f knowledge.FixRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Fix %d (score %.2f)\n", n, f.Score)
	if reason := strings.TrimSpace(f.Reason); reason != "" {
		fmt.Fprintf(&sb, "Reason: %s\n", reason)
	}
	fmt.Fprintf(&sb, "Before:\n%s\n", truncateText(f.OldCode, FixFieldLimit))
	fmt.Fprintf(&sb, "After:\n%s", truncateText(f.NewCode, FixFieldLimit))
	return sb.String()
}

func (s *Synthesizer) general(req Request, pref Preference) Synthesis {
	union := req.Results.Union()
	if len(union) == 0 {
		return Synthesis{Text: NeedMoreKnowledgeText, Fallback: ErrNoRelevantKnowledge}
	}

	var sb strings.Builder
	sb.WriteString(AssembleContext(req.Results, req.Analysis, req.Message, pref))
	sb.WriteString("Top matches:\n\n")
	writeBlocks(&sb, first(union, 5))
	return Synthesis{Text: strings.TrimRight(sb.String(), "\n")}
}

// joinContents returns the entries' contents separated by blank lines, or
// the apology when there are none.
func joinContents(entries []knowledge.LearnedEntry) Synthesis {
	if len(entries) == 0 {
		return apology()
	}
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.Content
	}
	return Synthesis{Text: strings.Join(parts, "\n\n")}
}

func apology() Synthesis {
	return Synthesis{Text: ApologyText, Fallback: ErrNoRelevantKnowledge}
}

// IsFallback reports whether syn is one of the fixed fallback texts.
func (syn Synthesis) IsFallback() bool {
	return errors.Is(syn.Fallback, ErrNoRelevantKnowledge)
}

// truncateText caps s at limit runes, marking the cut with "...".
func truncateText(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}
