// Package engine is the offline retrieval and response pipeline: it
// classifies a request, retrieves and ranks learned knowledge, synthesizes
// a response and streams it back as events.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeanpaul/recall/internal/analysis"
	"github.com/jeanpaul/recall/internal/knowledge"
	"github.com/jeanpaul/recall/internal/metrics"
)

// GuidanceText is streamed instead of an answer when the classification
// model is not ready.
const GuidanceText = "Warning: the prompt analysis model is not ready.\n" +
	"Requests cannot be classified until it is available.\n" +
	"1. Check that the model file is installed and readable.\n" +
	"2. Wait for the model to finish loading, then ask again.\n" +
	"3. Or set engine.classifier to \"heuristic\" to run without it.\n"

// DefaultTrustedSources is the preferred provenance used when none is
// configured.
var DefaultTrustedSources = []string{"trusted-generator"}

// Options tune an Engine. Zero values select the defaults.
type Options struct {
	TrustedSources []string
	Concurrency    int
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	Emitter        *Emitter
}

// Engine runs one pipeline per request.
type Engine struct {
	store      knowledge.Store
	classifier analysis.Classifier
	retriever  *Retriever
	synth      *Synthesizer
	emitter    *Emitter
	metrics    *metrics.Metrics
	log        *zap.Logger
}

// New wires an Engine over store. A nil classifier selects the heuristic one.
func New(store knowledge.Store, classifier analysis.Classifier, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	trusted := opts.TrustedSources
	if trusted == nil {
		trusted = DefaultTrustedSources
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = NewEmitter()
	}
	if classifier == nil {
		classifier = analysis.HeuristicClassifier{}
	}
	return &Engine{
		store:      store,
		classifier: classifier,
		retriever:  NewRetriever(store, opts.Concurrency, log.Named("retriever")),
		synth:      NewSynthesizer(store, trusted, log.Named("synthesizer")),
		emitter:    emitter,
		metrics:    opts.Metrics,
		log:        log,
	}
}

// Run starts a pipeline for msg and returns its event stream. The channel
// is closed after the terminal event. Consumers must read until the channel
// is closed, even after cancelling ctx.
func (e *Engine) Run(ctx context.Context, msg string) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		e.Send(ctx, msg, out)
	}()
	return out
}

// Send runs the pipeline synchronously, writing events to out. Exactly one
// terminal event is written last; by then the store's write flag has been
// restored.
func (e *Engine) Send(ctx context.Context, msg string, out chan<- Event) {
	out <- e.run(ctx, msg, out)
}

func (e *Engine) run(ctx context.Context, msg string, out chan<- Event) (term Event) {
	intent := "unknown"
	defer func() { e.metrics.RecordRun(intent, term.Type.String()) }()

	restore := knowledge.DisableWrites(e.store)
	defer restore()

	defer func() {
		if r := recover(); r != nil {
			err := stageFailure("pipeline", fmt.Errorf("panic: %v", r))
			e.log.Error("pipeline panicked", zap.String("message", msg), zap.String("intent", intent), zap.Error(err))
			term = errorEvent(err)
		}
	}()

	if r, ok := e.classifier.(analysis.Readiness); ok && !r.Ready() {
		intent = "none"
		return e.guidance(ctx, out)
	}

	// Keyword extraction and classification are independent.
	var (
		keywords []string
		pa       analysis.PromptAnalysis
	)
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		keywords = analysis.ExtractKeywords(msg)
		return nil
	})
	g.Go(func() error {
		var err error
		pa, err = e.classifier.Classify(gctx, msg)
		return err
	})
	err := g.Wait()
	e.metrics.RecordStage("classify", time.Since(start))
	switch {
	case errors.Is(err, analysis.ErrModelNotReady):
		intent = "none"
		return e.guidance(ctx, out)
	case err != nil:
		return e.fail(ctx, "classify", msg, intent, err)
	}
	intent = pa.Intent.String()
	e.log.Debug("request classified", zap.String("intent", intent), zap.Strings("keywords", keywords))

	if ctx.Err() != nil {
		return Event{Type: EventCancelled}
	}

	start = time.Now()
	res, err := e.retriever.Retrieve(ctx, msg, keywords, pa)
	e.metrics.RecordStage("retrieve", time.Since(start))
	if err != nil {
		return e.fail(ctx, "retrieve", msg, intent, err)
	}

	if ctx.Err() != nil {
		return Event{Type: EventCancelled}
	}

	start = time.Now()
	syn, err := e.synth.Synthesize(ctx, Request{Message: msg, Keywords: keywords, Analysis: pa, Results: res})
	e.metrics.RecordStage("synthesize", time.Since(start))
	if err != nil {
		return e.fail(ctx, "synthesize", msg, intent, err)
	}

	report := SelfCheck(syn.Text, pa.Metadata)
	report.Log(e.log)
	e.metrics.RecordSelfCheck(report.Passed())

	for _, t := range syn.Tools {
		if !e.send(ctx, out, Event{Type: EventToolCall, ToolName: t.Name, ToolArgs: t.Args}) ||
			!e.send(ctx, out, Event{Type: EventToolResult, ToolName: t.Name, Result: t.Result}) {
			return Event{Type: EventCancelled}
		}
	}

	start = time.Now()
	if syn.IsFallback() {
		// Fixed fallback texts go out as a single chunk.
		if !e.send(ctx, out, Event{Type: EventChunk, Text: syn.Text}) {
			return Event{Type: EventCancelled}
		}
	} else if err := e.emitter.Emit(ctx, syn.Text, out); err != nil {
		return Event{Type: EventCancelled}
	}
	e.metrics.RecordStage("emit", time.Since(start))

	return Event{Type: EventDone}
}

func (e *Engine) guidance(ctx context.Context, out chan<- Event) Event {
	e.log.Warn("classification model not ready, sending guidance")
	if err := e.emitter.Emit(ctx, GuidanceText, out); err != nil {
		return Event{Type: EventCancelled}
	}
	return Event{Type: EventDone}
}

// fail turns a stage error into the terminal event. Errors caused by
// cancellation end the run as cancelled rather than failed.
func (e *Engine) fail(ctx context.Context, stage, msg, intent string, err error) Event {
	if ctx.Err() != nil {
		return Event{Type: EventCancelled}
	}
	perr := stageFailure(stage, err)
	e.log.Error("pipeline failed", zap.String("message", msg), zap.String("intent", intent), zap.Error(perr))
	return errorEvent(perr)
}

func (e *Engine) send(ctx context.Context, out chan<- Event, ev Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func errorEvent(err error) Event {
	return Event{Type: EventError, Error: err.Error()}
}
