package engine

import (
	"context"
	"strings"
	"time"
	"unicode"
)

const (
	// ChunkDelay is the pause after each flushed chunk.
	ChunkDelay = 50 * time.Millisecond

	// FlushTokens is the number of tokens that fills a chunk.
	FlushTokens = 5
)

// Emitter streams text as paced chunks.
type Emitter struct {
	Delay       time.Duration
	FlushTokens int
}

// NewEmitter returns an Emitter with the default pacing.
func NewEmitter() *Emitter {
	return &Emitter{Delay: ChunkDelay, FlushTokens: FlushTokens}
}

// Emit sends text as Chunk events. The context is checked before every
// flush and during each pause; on cancellation Emit stops and returns the
// context's error. Each send waits for the consumer.
func (em *Emitter) Emit(ctx context.Context, text string, out chan<- Event) error {
	chunks := Chunks(text, em.FlushTokens)
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case out <- Event{Type: EventChunk, Text: c}:
		case <-ctx.Done():
			return ctx.Err()
		}
		if i == len(chunks)-1 || em.Delay <= 0 {
			continue
		}

		timer := time.NewTimer(em.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return nil
}

// Chunks splits text into whitespace-delimited tokens, each keeping the
// whitespace that follows it, and groups them. A chunk is cut as soon as it
// spans more than one line or holds n tokens. Concatenating the chunks
// gives back text exactly.
func Chunks(text string, n int) []string {
	if n < 1 {
		n = FlushTokens
	}

	var (
		chunks []string
		buf    strings.Builder
		count  int
	)
	flush := func() {
		if buf.Len() > 0 {
			chunks = append(chunks, buf.String())
		}
		buf.Reset()
		count = 0
	}

	for _, tok := range tokens(text) {
		buf.WriteString(tok)
		count++
		if strings.Contains(buf.String(), "\n") || count >= n {
			flush()
		}
	}
	flush()
	return chunks
}

// tokens splits text into words with their trailing whitespace. Leading
// whitespace is attached to the first token.
func tokens(text string) []string {
	var (
		out      []string
		cur      strings.Builder
		seenWord bool
		trailing bool
	)
	for _, r := range text {
		space := unicode.IsSpace(r)
		if !space && trailing {
			out = append(out, cur.String())
			cur.Reset()
			seenWord, trailing = false, false
		}
		cur.WriteRune(r)
		if !space {
			seenWord = true
		} else if seenWord {
			trailing = true
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
