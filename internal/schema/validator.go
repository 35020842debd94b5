// Package schema validates JSON documents against JSON schemas and parses
// the structured payloads stored in learned entries.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidDocument wraps every validation failure so callers can tell a
// bad document apart from a bad schema.
var ErrInvalidDocument = errors.New("document does not match schema")

// maxReported bounds the number of violations included in an error.
const maxReported = 3

// Validator checks JSON documents against schemas, caching compiled schemas
// by their JSON encoding.
type Validator struct {
	cache sync.Map // map[string]*gojsonschema.Schema
}

// NewValidator creates a new validator instance.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks doc against schemaData, which may be a map, a struct or
// a JSON string.
func (v *Validator) Validate(schemaData any, doc string) error {
	return v.validate(schemaData, gojsonschema.NewStringLoader(doc))
}

// ValidateBytes is Validate for a raw JSON document.
func (v *Validator) ValidateBytes(schemaData any, doc []byte) error {
	return v.validate(schemaData, gojsonschema.NewBytesLoader(doc))
}

func (v *Validator) validate(schemaData any, doc gojsonschema.JSONLoader) error {
	compiled, err := v.compile(schemaData)
	if err != nil {
		return fmt.Errorf("invalid schema definition: %w", err)
	}

	result, err := compiled.Validate(doc)
	if err != nil {
		// Unparseable documents land here.
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if result.Valid() {
		return nil
	}

	var violations []string
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidDocument, summarize(violations))
}

func (v *Validator) compile(schemaData any) (*gojsonschema.Schema, error) {
	var raw []byte
	switch s := schemaData.(type) {
	case string:
		raw = []byte(s)
	case []byte:
		raw = s
	default:
		b, err := json.Marshal(schemaData)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	key := string(raw)

	if cached, ok := v.cache.Load(key); ok {
		return cached.(*gojsonschema.Schema), nil
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, err
	}
	v.cache.Store(key, compiled)
	return compiled, nil
}

func summarize(violations []string) string {
	if len(violations) <= maxReported {
		return strings.Join(violations, "; ")
	}
	return fmt.Sprintf("%s; ... and %d more",
		strings.Join(violations[:maxReported], "; "), len(violations)-maxReported)
}
