package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Ensure MemoryStore implements Store and Writer
var (
	_ Store  = (*MemoryStore)(nil)
	_ Writer = (*MemoryStore)(nil)
)

// snapshot is the on-disk form of a MemoryStore.
type snapshot struct {
	Entries []LearnedEntry `json:"entries"`
	Fixes   []FixRecord    `json:"fixes"`
}

// MemoryStore keeps learned entries in memory and persists them to a JSON
// file. An empty path disables persistence.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []LearnedEntry
	fixes   []FixRecord
	path    string
	writes  atomic.Bool
}

// NewMemoryStore creates a store backed by path, loading it if it exists.
func NewMemoryStore(path string) (*MemoryStore, error) {
	m := &MemoryStore{path: path}
	m.writes.Store(true)
	if err := m.Load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Load reads the store from disk
func (m *MemoryStore) Load() error {
	if m.path == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("load %s: %w", m.path, err)
	}
	m.entries = snap.Entries
	m.fixes = snap.Fixes
	return nil
}

// Save writes the store to disk
func (m *MemoryStore) Save() error {
	if m.path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snapshot{Entries: m.entries, Fixes: m.fixes}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0644)
}

func (m *MemoryStore) SetWriteEnabled(enabled bool) { m.writes.Store(enabled) }
func (m *MemoryStore) WriteEnabled() bool           { return m.writes.Load() }

// Add records a new entry. Exact duplicates (same category and content)
// are not stored twice; the existing entry is returned instead.
func (m *MemoryStore) Add(_ context.Context, e LearnedEntry) (LearnedEntry, error) {
	if !m.WriteEnabled() {
		return LearnedEntry{}, ErrWritesDisabled
	}
	if err := validateEntry(e); err != nil {
		return LearnedEntry{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.entries {
		if existing.Category == e.Category && existing.Content == e.Content {
			return existing, nil
		}
	}
	e = stampEntry(e)
	m.entries = append(m.entries, e)
	return e, nil
}

// AddFix records a structured fix.
func (m *MemoryStore) AddFix(_ context.Context, f FixRecord) (FixRecord, error) {
	if !m.WriteEnabled() {
		return FixRecord{}, ErrWritesDisabled
	}
	if f.OldCode == "" && f.NewCode == "" {
		return FixRecord{}, fmt.Errorf("fix record needs old or new code")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	f = stampFix(f)
	m.fixes = append(m.fixes, f)
	return f, nil
}

func (m *MemoryStore) Stats(_ context.Context) (map[Category]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[Category]int, NumCategories)
	for _, e := range m.entries {
		stats[e.Category]++
	}
	return stats, nil
}

func (m *MemoryStore) SearchByKeyword(_ context.Context, keyword string, cat Category, limit int) ([]LearnedEntry, error) {
	return m.match(cat, limit, keyword), nil
}

func (m *MemoryStore) SearchByPattern(_ context.Context, pattern string, cat Category, limit int) ([]LearnedEntry, error) {
	return m.match(cat, limit, pattern), nil
}

func (m *MemoryStore) TopByCategory(_ context.Context, cat Category, limit int, hint string) ([]LearnedEntry, error) {
	m.mu.RLock()
	var out []LearnedEntry
	for _, e := range m.entries {
		if e.Category == cat {
			out = append(out, e)
		}
	}
	m.mu.RUnlock()

	return truncate(rankByHint(out, hint), limit), nil
}

func (m *MemoryStore) SearchFixes(_ context.Context, keywords []string, limit int) ([]FixRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []FixRecord
	for _, f := range m.fixes {
		haystack := strings.ToLower(f.OldCode + "\n" + f.NewCode + "\n" + f.Reason)
		for _, kw := range keywords {
			if kw != "" && strings.Contains(haystack, strings.ToLower(kw)) {
				out = append(out, f)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// match returns entries of cat whose content contains needle
// (case-insensitive), best score first, insertion order on ties.
func (m *MemoryStore) match(cat Category, limit int, needle string) []LearnedEntry {
	needle = strings.ToLower(strings.TrimSpace(needle))
	if needle == "" {
		return nil
	}

	m.mu.RLock()
	var out []LearnedEntry
	for _, e := range m.entries {
		if e.Category == cat && strings.Contains(strings.ToLower(e.Content), needle) {
			out = append(out, e)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return truncate(out, limit)
}

func validateEntry(e LearnedEntry) error {
	if !e.Category.Valid() {
		return fmt.Errorf("invalid category %d", int(e.Category))
	}
	if strings.TrimSpace(e.Content) == "" {
		return fmt.Errorf("entry content is empty")
	}
	return nil
}

func stampEntry(e LearnedEntry) LearnedEntry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return e
}

func stampFix(f FixRecord) FixRecord {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	return f
}
