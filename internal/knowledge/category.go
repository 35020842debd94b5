package knowledge

import (
	"fmt"
	"strings"
)

// Category is the closed set of artifact kinds the store holds.
type Category int

const (
	CategoryCodeSnippet Category = iota
	CategoryAPIUsage
	CategoryFixPatch
	CategoryMetadataTransformation
	CategoryFrameworkKnowledge

	// NumCategories is the number of valid categories. It is used to size
	// per-category arrays, so adding a category grows every such array.
	NumCategories = int(CategoryFrameworkKnowledge) + 1
)

// Categories lists every category in declaration order.
var Categories = [NumCategories]Category{
	CategoryCodeSnippet,
	CategoryAPIUsage,
	CategoryFixPatch,
	CategoryMetadataTransformation,
	CategoryFrameworkKnowledge,
}

var categoryNames = [NumCategories]string{
	CategoryCodeSnippet:            "code_snippet",
	CategoryAPIUsage:               "api_usage",
	CategoryFixPatch:               "fix_patch",
	CategoryMetadataTransformation: "metadata_transformation",
	CategoryFrameworkKnowledge:     "framework_knowledge",
}

// Valid reports whether c is one of the declared categories.
func (c Category) Valid() bool {
	return c >= 0 && int(c) < NumCategories
}

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// Tag is the short upper-case label used when rendering entries.
func (c Category) Tag() string {
	return strings.ToUpper(c.String())
}

// ParseCategory accepts the snake_case name ("code_snippet") or the
// CamelCase name ("CodeSnippet").
func ParseCategory(s string) (Category, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	for _, c := range Categories {
		if strings.ReplaceAll(categoryNames[c], "_", "") == norm {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// MarshalText lets categories round-trip through JSON and YAML as names.
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid category %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
