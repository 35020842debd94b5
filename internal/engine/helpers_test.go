package engine

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeanpaul/recall/internal/knowledge"
)

func entry(cat knowledge.Category, content string, score float64) knowledge.LearnedEntry {
	return knowledge.LearnedEntry{Category: cat, Content: content, Score: score}
}

func newStore(t *testing.T, entries ...knowledge.LearnedEntry) *knowledge.MemoryStore {
	t.Helper()
	s, err := knowledge.NewMemoryStore("")
	require.NoError(t, err)
	for _, e := range entries {
		_, err := s.Add(context.Background(), e)
		require.NoError(t, err)
	}
	return s
}

func addFixes(t *testing.T, s *knowledge.MemoryStore, fixes ...knowledge.FixRecord) {
	t.Helper()
	for _, f := range fixes {
		_, err := s.AddFix(context.Background(), f)
		require.NoError(t, err)
	}
}

// quietEmitter streams without pauses.
func quietEmitter() *Emitter {
	return &Emitter{Delay: 0, FlushTokens: FlushTokens}
}

func collect(ch <-chan Event) []Event {
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func chunkText(events []Event) string {
	var sb strings.Builder
	for _, ev := range events {
		if ev.Type == EventChunk {
			sb.WriteString(ev.Text)
		}
	}
	return sb.String()
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

// faultStore injects failures into the fix lookup and records the write
// flag it saw while the pipeline was running.
type faultStore struct {
	*knowledge.MemoryStore
	fixErr        error
	fixPanic      string
	writesDuring  atomic.Bool
	sawFixLookups atomic.Int32
}

func (s *faultStore) SearchFixes(ctx context.Context, keywords []string, limit int) ([]knowledge.FixRecord, error) {
	s.sawFixLookups.Add(1)
	s.writesDuring.Store(s.WriteEnabled())
	if s.fixPanic != "" {
		panic(s.fixPanic)
	}
	if s.fixErr != nil {
		return nil, s.fixErr
	}
	return s.MemoryStore.SearchFixes(ctx, keywords, limit)
}

type call struct {
	method string
	arg    string
	cat    knowledge.Category
	limit  int
	hint   string
}

// recordingStore logs every read query.
type recordingStore struct {
	*knowledge.MemoryStore
	mu    sync.Mutex
	calls []call
}

func (s *recordingStore) record(c call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
}

func (s *recordingStore) SearchByKeyword(ctx context.Context, keyword string, cat knowledge.Category, limit int) ([]knowledge.LearnedEntry, error) {
	s.record(call{method: "keyword", arg: keyword, cat: cat, limit: limit})
	return s.MemoryStore.SearchByKeyword(ctx, keyword, cat, limit)
}

func (s *recordingStore) SearchByPattern(ctx context.Context, pattern string, cat knowledge.Category, limit int) ([]knowledge.LearnedEntry, error) {
	s.record(call{method: "pattern", arg: pattern, cat: cat, limit: limit})
	return s.MemoryStore.SearchByPattern(ctx, pattern, cat, limit)
}

func (s *recordingStore) TopByCategory(ctx context.Context, cat knowledge.Category, limit int, hint string) ([]knowledge.LearnedEntry, error) {
	s.record(call{method: "top", cat: cat, limit: limit, hint: hint})
	return s.MemoryStore.TopByCategory(ctx, cat, limit, hint)
}

func (s *recordingStore) callsFor(cat knowledge.Category) []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []call
	for _, c := range s.calls {
		if c.cat == cat {
			out = append(out, c)
		}
	}
	return out
}
