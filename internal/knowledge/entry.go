package knowledge

import (
	"encoding/json"
	"strings"
	"time"
)

// LearnedEntry is a stored unit of past knowledge. Entries handed out by a
// Store are values; callers never mutate the store through them.
type LearnedEntry struct {
	ID        string    `json:"id"`
	Category  Category  `json:"category"`
	Content   string    `json:"content"`
	Metadata  Metadata  `json:"metadata"`
	Source    string    `json:"source"` // provenance tag, e.g. the generator name
	Score     float64   `json:"score"`  // positive ranking weight, higher is better
	CreatedAt time.Time `json:"created_at"`
}

// FixRecord is a structured before/after fix returned by the fix lookup.
type FixRecord struct {
	ID        string    `json:"id"`
	OldCode   string    `json:"old_code"`
	NewCode   string    `json:"new_code"`
	Reason    string    `json:"reason"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// Metadata holds the optional annotations of an entry. It is decoded once
// from raw JSON when an entry enters or leaves a store; fields that are
// missing or have the wrong type are left at their zero value.
type Metadata struct {
	Kind      string          `json:"kind,omitempty"`
	Framework string          `json:"framework,omitempty"`
	Language  string          `json:"language,omitempty"`
	Tags      []string        `json:"tags,omitempty"`
	QA        json.RawMessage `json:"qa,omitempty"` // unparsed question/answer payload
}

// KindQA marks entries whose metadata carries a question/answer pair.
const KindQA = "qa"

// HasQA reports whether the entry carries a question/answer payload. The
// payload itself is only validated when it is used.
func (m Metadata) HasQA() bool {
	return len(m.QA) > 0
}

// DecodeMetadata parses raw metadata JSON into a Metadata value. It never
// fails: malformed input yields the zero value and malformed fields are
// skipped individually.
func DecodeMetadata(raw []byte) Metadata {
	var fields map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &fields) != nil {
		return Metadata{}
	}

	var m Metadata
	decodeString(fields["kind"], &m.Kind)
	decodeString(fields["framework"], &m.Framework)
	decodeString(fields["language"], &m.Language)
	if t, ok := fields["tags"]; ok {
		var tags []string
		if json.Unmarshal(t, &tags) == nil {
			m.Tags = tags
		}
	}

	switch {
	case len(fields["qa"]) > 0 && string(fields["qa"]) != "null":
		m.QA = append(json.RawMessage(nil), fields["qa"]...)
	case fields["question"] != nil:
		// Flat form: question/answer stored next to the other keys.
		m.QA = append(json.RawMessage(nil), raw...)
	}
	if m.HasQA() && m.Kind == "" {
		m.Kind = KindQA
	}
	return m
}

// Encode returns the JSON form accepted by DecodeMetadata.
func (m Metadata) Encode() []byte {
	b, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func decodeString(raw json.RawMessage, dst *string) {
	if len(raw) == 0 {
		return
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		*dst = strings.TrimSpace(s)
	}
}

// UnmarshalJSON routes every JSON decode of an entry through DecodeMetadata
// so a bad annotation never rejects the whole entry.
func (m *Metadata) UnmarshalJSON(b []byte) error {
	*m = DecodeMetadata(b)
	return nil
}
