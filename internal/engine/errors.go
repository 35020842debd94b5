package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRelevantKnowledge marks a run answered with a fixed fallback text.
	ErrNoRelevantKnowledge = errors.New("no relevant knowledge")

	// ErrMalformedEntry marks an entry whose structured metadata failed to
	// parse. It is recovered per entry and never ends a run.
	ErrMalformedEntry = errors.New("malformed learned entry")

	// ErrSynthesis marks an unforeseen fault during retrieval, ranking or
	// synthesis. It is the only error surfaced to the caller as an Error event.
	ErrSynthesis = errors.New("synthesis failed")
)

// PipelineError records the stage a fault happened in.
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// stageFailure wraps err as a SynthesisFailure raised in stage.
func stageFailure(stage string, err error) *PipelineError {
	if errors.Is(err, ErrSynthesis) {
		return &PipelineError{Stage: stage, Err: err}
	}
	return &PipelineError{Stage: stage, Err: fmt.Errorf("%w: %w", ErrSynthesis, err)}
}
