package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML document accepted by Import.
//
//	entries:
//	  - category: code_snippet
//	    content: "func {function}() {}"
//	    source: trusted-generator
//	    score: 0.9
//	    metadata: {framework: Go}
//	fixes:
//	  - old_code: "x := nil"
//	    new_code: "x := new(T)"
//	    reason: nil dereference
//	    score: 0.7
type SeedFile struct {
	Entries []SeedEntry `yaml:"entries"`
	Fixes   []SeedFix   `yaml:"fixes"`
}

type SeedEntry struct {
	Category Category       `yaml:"category"`
	Content  string         `yaml:"content"`
	Source   string         `yaml:"source"`
	Score    float64        `yaml:"score"`
	Metadata map[string]any `yaml:"metadata"`
}

type SeedFix struct {
	OldCode string  `yaml:"old_code"`
	NewCode string  `yaml:"new_code"`
	Reason  string  `yaml:"reason"`
	Score   float64 `yaml:"score"`
}

// ImportReport summarises an Import run.
type ImportReport struct {
	Files   []string
	Entries int
	Fixes   int
}

// Import expands the doublestar patterns, parses every matched YAML seed
// file and writes its contents through w. Files are processed in sorted
// order so repeated imports assign the same insertion order.
func Import(ctx context.Context, w Writer, patterns []string) (ImportReport, error) {
	var report ImportReport
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return report, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				report.Files = append(report.Files, m)
			}
		}
	}
	sort.Strings(report.Files)

	for _, path := range report.Files {
		seed, err := ReadSeedFile(path)
		if err != nil {
			return report, err
		}
		for _, se := range seed.Entries {
			if _, err := w.Add(ctx, se.toEntry()); err != nil {
				return report, fmt.Errorf("%s: %w", path, err)
			}
			report.Entries++
		}
		for _, sf := range seed.Fixes {
			fix := FixRecord{OldCode: sf.OldCode, NewCode: sf.NewCode, Reason: sf.Reason, Score: sf.Score}
			if _, err := RecordFix(ctx, w, fix, "import"); err != nil {
				return report, fmt.Errorf("%s: %w", path, err)
			}
			report.Fixes++
		}
	}
	return report, nil
}

// ReadSeedFile parses one YAML seed file.
func ReadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &seed, nil
}

func (se SeedEntry) toEntry() LearnedEntry {
	var meta Metadata
	if len(se.Metadata) > 0 {
		if raw, err := json.Marshal(se.Metadata); err == nil {
			meta = DecodeMetadata(raw)
		}
	}
	return LearnedEntry{
		Category: se.Category,
		Content:  se.Content,
		Source:   se.Source,
		Score:    se.Score,
		Metadata: meta,
	}
}

// RecordFix stores a structured fix together with a FixPatch entry whose
// content is the unified diff from old to new code.
func RecordFix(ctx context.Context, w Writer, fix FixRecord, source string) (FixRecord, error) {
	stored, err := w.AddFix(ctx, fix)
	if err != nil {
		return FixRecord{}, err
	}
	patch := PatchEntry(stored, source)
	if _, err := w.Add(ctx, patch); err != nil {
		return stored, fmt.Errorf("store patch entry: %w", err)
	}
	return stored, nil
}

// PatchEntry renders a fix as a FixPatch entry.
func PatchEntry(fix FixRecord, source string) LearnedEntry {
	oldText, newText := withNewline(fix.OldCode), withNewline(fix.NewCode)
	edits := myers.ComputeEdits(span.URIFromPath("fix"), oldText, newText)
	diff := fmt.Sprint(gotextdiff.ToUnified("before", "after", oldText, edits))
	if strings.TrimSpace(diff) == "" {
		diff = newText
	}

	content := diff
	if fix.Reason != "" {
		content = "# " + fix.Reason + "\n" + diff
	}
	return LearnedEntry{
		Category: CategoryFixPatch,
		Content:  content,
		Source:   source,
		Score:    fix.Score,
		Metadata: Metadata{Kind: "patch"},
	}
}

func withNewline(s string) string {
	if s == "" || s[len(s)-1] == '\n' {
		return s
	}
	return s + "\n"
}
