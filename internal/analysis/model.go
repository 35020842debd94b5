package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jeanpaul/recall/internal/schema"
)

// ErrModelNotReady is returned when the classification model is missing
// or still loading.
var ErrModelNotReady = errors.New("classification model not ready")

// Model is a local prompt-analysis model. Infer returns the model's raw
// text output for a prompt.
type Model interface {
	Ready() bool
	Infer(ctx context.Context, prompt string) (string, error)
}

// Readiness is implemented by classifiers whose backing model may be
// unavailable. Callers check it before starting a pipeline.
type Readiness interface {
	Ready() bool
}

// ModelClassifier asks a Model for a structured analysis and falls back to
// Fallback when the model output does not validate.
type ModelClassifier struct {
	model     Model
	validator *schema.Validator
	Fallback  Classifier
	log       *zap.Logger
}

func NewModelClassifier(model Model, log *zap.Logger) *ModelClassifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &ModelClassifier{
		model:     model,
		validator: schema.NewValidator(),
		Fallback:  HeuristicClassifier{},
		log:       log,
	}
}

func (c *ModelClassifier) Ready() bool {
	return c.model != nil && c.model.Ready()
}

func (c *ModelClassifier) Classify(ctx context.Context, msg string) (PromptAnalysis, error) {
	if !c.Ready() {
		return PromptAnalysis{}, ErrModelNotReady
	}

	output, err := c.model.Infer(ctx, fmt.Sprintf(analysisPrompt, msg))
	if err != nil {
		return PromptAnalysis{}, fmt.Errorf("model inference: %w", err)
	}

	pa, err := c.ParseOutput(output)
	if err != nil {
		c.log.Warn("model output rejected, using fallback classifier", zap.Error(err))
		if c.Fallback == nil {
			return PromptAnalysis{}, err
		}
		return c.Fallback.Classify(ctx, msg)
	}
	return pa, nil
}

// modelOutput is the JSON shape the model is asked to produce.
type modelOutput struct {
	Intent               string   `json:"intent"`
	FrameworkType        string   `json:"framework_type"`
	FileTypes            []string `json:"file_types"`
	ImportPatterns       string   `json:"import_patterns"`
	EventHandlerPatterns string   `json:"event_handler_patterns"`
	PromptPattern        string   `json:"prompt_pattern"`
	Metadata             Hints    `json:"metadata"`
}

var modelOutputSchema = map[string]any{
	"type":     "object",
	"required": []string{"intent"},
	"properties": map[string]any{
		"intent":                 map[string]any{"type": "string", "minLength": 1},
		"framework_type":         map[string]any{"type": "string"},
		"file_types":             map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"import_patterns":        map[string]any{"type": "string"},
		"event_handler_patterns": map[string]any{"type": "string"},
		"prompt_pattern":         map[string]any{"type": "string"},
		"metadata": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_names":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"function_names": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
		},
	},
}

// ParseOutput validates raw model output and converts it into a PromptAnalysis.
func (c *ModelClassifier) ParseOutput(output string) (PromptAnalysis, error) {
	output = cleanJSON(output)
	if err := c.validator.Validate(modelOutputSchema, output); err != nil {
		return PromptAnalysis{}, err
	}

	var out modelOutput
	if err := json.Unmarshal([]byte(output), &out); err != nil {
		return PromptAnalysis{}, fmt.Errorf("invalid JSON: %w", err)
	}
	intent, ok := ParseIntent(out.Intent)
	if !ok {
		return PromptAnalysis{}, fmt.Errorf("invalid intent: %s", out.Intent)
	}

	return PromptAnalysis{
		Intent:               intent,
		FrameworkType:        strings.TrimSpace(out.FrameworkType),
		FileTypes:            out.FileTypes,
		ImportPatterns:       out.ImportPatterns,
		EventHandlerPatterns: out.EventHandlerPatterns,
		PromptPattern:        strings.TrimSpace(out.PromptPattern),
		Metadata:             out.Metadata,
	}, nil
}

// cleanJSON strips markdown code fences around model output.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

const analysisPrompt = `Analyze the developer request below and answer with one JSON object:
{
  "intent": "AnswerQuestion | CreateCode | FixCode | UseApi | RunTest | General",
  "framework_type": "framework or language the request targets, or empty",
  "file_types": ["file extensions involved"],
  "import_patterns": "import lines the answer needs, or empty",
  "event_handler_patterns": "event handler hint, or empty",
  "prompt_pattern": "short reusable pattern describing the request",
  "metadata": {"file_names": [], "function_names": []}
}
Output only the JSON.

Request: %s
`
