package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// QA is a learned question/answer pair.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// qaSchema requires both fields as non-blank strings. Extra keys are
// allowed because the flat form shares the object with other metadata.
const qaSchema = `{
	"type": "object",
	"required": ["question", "answer"],
	"properties": {
		"question": {"type": "string", "minLength": 1, "pattern": "\\S"},
		"answer":   {"type": "string", "minLength": 1, "pattern": "\\S"}
	}
}`

// ParseQA strictly parses a question/answer payload. Anything short of a
// complete, well-typed pair is an error; there is no partial result.
func (v *Validator) ParseQA(raw []byte) (QA, error) {
	if len(raw) == 0 {
		return QA{}, fmt.Errorf("%w: empty qa payload", ErrInvalidDocument)
	}
	if err := v.ValidateBytes(qaSchema, raw); err != nil {
		return QA{}, err
	}

	var qa QA
	if err := json.Unmarshal(raw, &qa); err != nil {
		return QA{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	qa.Question = strings.TrimSpace(qa.Question)
	qa.Answer = strings.TrimSpace(qa.Answer)
	return qa, nil
}
