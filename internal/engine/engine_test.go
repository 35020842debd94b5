package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jeanpaul/recall/internal/analysis"
	"github.com/jeanpaul/recall/internal/knowledge"
	"github.com/jeanpaul/recall/internal/metrics"
)

type stubModel struct {
	ready  bool
	output string
}

func (m stubModel) Ready() bool { return m.ready }

func (m stubModel) Infer(context.Context, string) (string, error) { return m.output, nil }

func newEngine(store knowledge.Store, classifier analysis.Classifier) *Engine {
	return New(store, classifier, Options{Emitter: quietEmitter()})
}

func TestEngine_AnswersQuestion(t *testing.T) {
	defer goleak.VerifyNone(t)

	msg := "What is a coroutine context?"
	require.Equal(t, analysis.IntentAnswerQuestion, analysis.DetectIntent(msg))

	qa := entry(knowledge.CategoryMetadataTransformation, "coroutine context notes", 0.8)
	qa.Metadata = knowledge.DecodeMetadata([]byte(`{"question":"What is a coroutine context?","answer":"An indexed set of elements that define a coroutine."}`))
	store := newStore(t, qa)

	events := collect(newEngine(store, nil).Run(context.Background(), msg))
	require.NotEmpty(t, events)
	assert.Equal(t, EventDone, events[len(events)-1].Type)
	assert.Equal(t, "An indexed set of elements that define a coroutine.\n\n(Learned from: \"What is a coroutine context?\")", chunkText(events))
}

func TestEngine_NoKnowledgeApologizes(t *testing.T) {
	defer goleak.VerifyNone(t)

	events := collect(newEngine(newStore(t), nil).Run(context.Background(), "Create a login screen in React"))
	assert.Equal(t, []Event{
		{Type: EventChunk, Text: ApologyText},
		{Type: EventDone},
	}, events)
}

func TestEngine_FixCodeTruncatesFixes(t *testing.T) {
	defer goleak.VerifyNone(t)

	msg := "Fix the null pointer error in UserService"
	require.Equal(t, analysis.IntentFixCode, analysis.DetectIntent(msg))

	store := newStore(t)
	oldCode := "func (s *UserService) Get(id string) *User {\n" + strings.Repeat("\treturn s.cache[id].user\n", 20) + "}"
	newCode := "func (s *UserService) Get(id string) *User {\n" + strings.Repeat("\tif u, ok := s.cache[id]; ok { return u.user }\n", 20) + "}"
	addFixes(t, store, knowledge.FixRecord{OldCode: oldCode, NewCode: newCode, Reason: "null pointer on cache miss", Score: 0.9})

	events := collect(newEngine(store, nil).Run(context.Background(), msg))
	require.GreaterOrEqual(t, len(events), 4)

	assert.Equal(t, EventToolCall, events[0].Type)
	assert.Equal(t, SearchFixesTool, events[0].ToolName)
	assert.Equal(t, "null, pointer, error, userservice, fix", events[0].ToolArgs)
	assert.Equal(t, EventToolResult, events[1].Type)
	assert.Equal(t, "1 fixes", events[1].Result)
	assert.Equal(t, EventDone, events[len(events)-1].Type)

	text := chunkText(events)
	before := between(text, "Before:\n", "\nAfter:\n")
	after := text[strings.Index(text, "\nAfter:\n")+len("\nAfter:\n"):]
	assert.LessOrEqual(t, len([]rune(before)), FixFieldLimit)
	assert.LessOrEqual(t, len([]rune(after)), FixFieldLimit)
	assert.Equal(t, truncateText(oldCode, FixFieldLimit), before)
	assert.Equal(t, truncateText(newCode, FixFieldLimit), after)
}

func between(s, start, end string) string {
	i := strings.Index(s, start)
	if i < 0 {
		return ""
	}
	s = s[i+len(start):]
	if j := strings.Index(s, end); j >= 0 {
		return s[:j]
	}
	return s
}

func TestEngine_ModelNotReadyStreamsGuidance(t *testing.T) {
	defer goleak.VerifyNone(t)

	for name, classifier := range map[string]analysis.Classifier{
		"not ready": analysis.NewModelClassifier(stubModel{ready: false}, nil),
		"no model":  analysis.NewModelClassifier(nil, nil),
	} {
		t.Run(name, func(t *testing.T) {
			store := newStore(t, entry(knowledge.CategoryCodeSnippet, "should never be used", 1))
			events := collect(newEngine(store, classifier).Run(context.Background(), "Create a login screen"))

			require.GreaterOrEqual(t, len(events), 2)
			assert.Equal(t, EventDone, events[len(events)-1].Type)
			for _, ev := range events[:len(events)-1] {
				assert.Equal(t, EventChunk, ev.Type)
			}
			assert.True(t, strings.HasPrefix(GuidanceText, events[0].Text))
			assert.Equal(t, GuidanceText, chunkText(events))
			assert.True(t, store.WriteEnabled())
		})
	}
}

// notReadyClassifier reports readiness through Classify only.
type notReadyClassifier struct{}

func (notReadyClassifier) Classify(context.Context, string) (analysis.PromptAnalysis, error) {
	return analysis.PromptAnalysis{}, fmt.Errorf("loading: %w", analysis.ErrModelNotReady)
}

func TestEngine_ClassifierNotReadyError(t *testing.T) {
	events := collect(newEngine(newStore(t), notReadyClassifier{}).Run(context.Background(), "hi"))
	assert.Equal(t, GuidanceText, chunkText(events))
	assert.Equal(t, EventDone, events[len(events)-1].Type)
}

func TestEngine_FaultRestoresWriteFlag(t *testing.T) {
	defer goleak.VerifyNone(t)

	tests := []struct {
		name  string
		prior bool
		store func(*knowledge.MemoryStore) *faultStore
	}{
		{
			name:  "store error",
			prior: true,
			store: func(m *knowledge.MemoryStore) *faultStore {
				return &faultStore{MemoryStore: m, fixErr: errors.New("index corrupted")}
			},
		},
		{
			name:  "panic",
			prior: true,
			store: func(m *knowledge.MemoryStore) *faultStore {
				return &faultStore{MemoryStore: m, fixPanic: "index corrupted"}
			},
		},
		{
			name:  "prior value disabled",
			prior: false,
			store: func(m *knowledge.MemoryStore) *faultStore {
				return &faultStore{MemoryStore: m, fixErr: errors.New("index corrupted")}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := tt.store(newStore(t))
			store.SetWriteEnabled(tt.prior)
			store.writesDuring.Store(true)

			var last Event
			var flagAtError bool
			for ev := range newEngine(store, nil).Run(context.Background(), "Fix the null pointer error") {
				if ev.Type == EventError {
					flagAtError = store.WriteEnabled()
				}
				last = ev
			}

			assert.Equal(t, EventError, last.Type)
			assert.Contains(t, last.Error, "index corrupted")
			assert.Contains(t, last.Error, ErrSynthesis.Error())
			assert.Equal(t, tt.prior, flagAtError)
			assert.Equal(t, tt.prior, store.WriteEnabled())
			assert.False(t, store.writesDuring.Load(), "writes must be disabled while the pipeline runs")
			assert.EqualValues(t, 1, store.sawFixLookups.Load())
		})
	}
}

func TestEngine_WritesDisabledDuringRun(t *testing.T) {
	store := &faultStore{MemoryStore: newStore(t)}
	store.writesDuring.Store(true)

	events := collect(newEngine(store, nil).Run(context.Background(), "fix the crash"))
	assert.Equal(t, EventDone, events[len(events)-1].Type)
	assert.False(t, store.writesDuring.Load())

	_, err := store.Add(context.Background(), entry(knowledge.CategoryCodeSnippet, "learned later", 1))
	assert.NoError(t, err)
}

func TestEngine_OverlappingRunsRestoreWriteFlag(t *testing.T) {
	defer goleak.VerifyNone(t)

	var entries []knowledge.LearnedEntry
	for i := range 5 {
		entries = append(entries, entry(knowledge.CategoryCodeSnippet, fmt.Sprintf("widget snippet number %d with several words in it", i), float64(i)))
	}
	store := newStore(t, entries...)
	require.True(t, store.WriteEnabled())

	// One token per chunk keeps each run blocked on its next send.
	e := New(store, nil, Options{Emitter: &Emitter{FlushTokens: 1}})
	a := e.Run(context.Background(), "show me a widget")
	require.Equal(t, EventChunk, (<-a).Type)
	b := e.Run(context.Background(), "show me a widget")
	require.Equal(t, EventChunk, (<-b).Type)

	assert.False(t, store.WriteEnabled(), "writes stay off while both runs are active")

	restA := collect(a)
	assert.Equal(t, EventDone, restA[len(restA)-1].Type)
	assert.False(t, store.WriteEnabled(), "the second run still holds the flag")

	restB := collect(b)
	assert.Equal(t, EventDone, restB[len(restB)-1].Type)
	assert.True(t, store.WriteEnabled())
}

func TestEngine_CancelledBeforeStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := newStore(t, entry(knowledge.CategoryCodeSnippet, "anything", 1))
	events := collect(newEngine(store, nil).Run(ctx, "hello anything"))
	assert.Equal(t, []Event{{Type: EventCancelled}}, events)
	assert.True(t, store.WriteEnabled())
}

func TestEngine_CancelledMidStream(t *testing.T) {
	defer goleak.VerifyNone(t)

	var entries []knowledge.LearnedEntry
	for i := range 10 {
		entries = append(entries, entry(knowledge.CategoryCodeSnippet, fmt.Sprintf("widget snippet number %d with several words in it", i), float64(i)))
	}
	store := newStore(t, entries...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := New(store, nil, Options{Emitter: &Emitter{Delay: 20 * time.Millisecond, FlushTokens: FlushTokens}})
	events := e.Run(ctx, "show me a widget")

	first := <-events
	assert.Equal(t, EventChunk, first.Type)
	cancel()

	rest := collect(events)
	require.NotEmpty(t, rest)
	last := rest[len(rest)-1]
	assert.Equal(t, EventCancelled, last.Type)
	for _, ev := range rest[:len(rest)-1] {
		assert.Equal(t, EventChunk, ev.Type)
	}
	assert.True(t, store.WriteEnabled())
}

func TestEngine_StreamReproducesResponse(t *testing.T) {
	store := newStore(t,
		entry(knowledge.CategoryAPIUsage, "client.Get(ctx, \"/users\")\n  returns   a list", 0.7),
		entry(knowledge.CategoryAPIUsage, "client.Post(ctx, \"/users\", body)", 0.6),
	)
	e := newEngine(store, nil)
	msg := "use the users api"

	events := collect(e.Run(context.Background(), msg))
	assert.Equal(t, EventDone, events[len(events)-1].Type)

	keywords := analysis.ExtractKeywords(msg)
	pa, _ := analysis.HeuristicClassifier{}.Classify(context.Background(), msg)
	res, err := e.retriever.Retrieve(context.Background(), msg, keywords, pa)
	require.NoError(t, err)
	syn, err := e.synth.Synthesize(context.Background(), Request{Message: msg, Keywords: keywords, Analysis: pa, Results: res})
	require.NoError(t, err)

	assert.Equal(t, syn.Text, chunkText(events))
	assert.Equal(t, "client.Get(ctx, \"/users\")\n  returns   a list\n\nclient.Post(ctx, \"/users\", body)", syn.Text)
}

func TestEngine_SelfCheckDoesNotChangeResponse(t *testing.T) {
	store := newStore(t, entry(knowledge.CategoryCodeSnippet, "func {function}() {}", 1))
	model := stubModel{ready: true, output: `{"intent":"CreateCode","metadata":{"file_names":["main.go"],"function_names":["run"]}}`}

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	e := New(store, analysis.NewModelClassifier(model, nil), Options{Emitter: quietEmitter(), Metrics: m})

	events := collect(e.Run(context.Background(), "make it"))
	assert.Equal(t, "func run() {}", chunkText(events))
	assert.Equal(t, EventDone, events[len(events)-1].Type)

	// main.go is not mentioned, so the self-check fails but the run succeeds
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SelfCheckFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineRuns.WithLabelValues("CreateCode", "done")))
}

func TestEngine_Deterministic(t *testing.T) {
	var entries []knowledge.LearnedEntry
	for i := range 30 {
		cat := knowledge.Categories[i%knowledge.NumCategories]
		entries = append(entries, entry(cat, fmt.Sprintf("shared entry %d", i%12), float64(i%3)))
	}
	store := newStore(t, entries...)
	e := New(store, nil, Options{Emitter: quietEmitter(), Concurrency: 8})

	want := chunkText(collect(e.Run(context.Background(), "shared entry overview")))
	for range 5 {
		assert.Equal(t, want, chunkText(collect(e.Run(context.Background(), "shared entry overview"))))
	}
}
