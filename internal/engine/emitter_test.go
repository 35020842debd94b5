package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jeanpaul/recall/internal/analysis"
)

func TestChunks(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "five tokens per chunk", text: "one two three four five six seven", want: []string{"one two three four five ", "six seven"}},
		{name: "newline flushes early", text: "line one\nline two", want: []string{"line one\n", "line two"}},
		{name: "blank lines stay with their token", text: "a\n\nb", want: []string{"a\n\n", "b"}},
		{name: "leading whitespace kept", text: "  indented code", want: []string{"  indented code"}},
		{name: "trailing whitespace kept", text: "end  ", want: []string{"end  "}},
		{name: "empty", text: "", want: nil},
		{name: "whitespace only", text: " \t ", want: []string{" \t "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Chunks(tt.text, FlushTokens))
		})
	}
}

func TestChunks_Concatenation(t *testing.T) {
	texts := []string{
		ApologyText,
		GuidanceText,
		"Fix 1 (score 0.90)\nReason: nil\nBefore:\n\tif x {\n\t\treturn\n\t}\nAfter:\n    ok  ",
		strings.Repeat("word ", 37),
		"\n\nleading newlines then    spaced\twords\r\nand crlf",
		"ünïcödé tökens with   mixed spacing",
	}
	for _, text := range texts {
		for _, n := range []int{1, 2, FlushTokens, 100} {
			chunks := Chunks(text, n)
			assert.Equal(t, text, strings.Join(chunks, ""))
			for _, c := range chunks[:max(len(chunks)-1, 0)] {
				lines := strings.Count(c, "\n")
				words := len(strings.Fields(c))
				assert.True(t, lines > 0 || words == n, "chunk %q flushed early", c)
				assert.LessOrEqual(t, words, n)
			}
		}
	}
}

func TestEmitter_Emit(t *testing.T) {
	defer goleak.VerifyNone(t)

	em := &Emitter{Delay: time.Millisecond, FlushTokens: 2}
	out := make(chan Event, 16)
	require.NoError(t, em.Emit(context.Background(), "a b c d e", out))
	close(out)

	var got []string
	for ev := range out {
		assert.Equal(t, EventChunk, ev.Type)
		got = append(got, ev.Text)
	}
	assert.Equal(t, []string{"a b ", "c d ", "e"}, got)
}

func TestEmitter_Cancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	em := &Emitter{Delay: time.Hour, FlushTokens: 1}
	out := make(chan Event, 16)

	done := make(chan error, 1)
	go func() { done <- em.Emit(ctx, "a b c", out) }()

	first := <-out
	assert.Equal(t, "a ", first.Text)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, out)

	// already cancelled: nothing is sent
	assert.ErrorIs(t, em.Emit(ctx, "x", out), context.Canceled)
	assert.Empty(t, out)
}

func TestSelfCheck(t *testing.T) {
	response := "export function HandleLogin() {} // login.tsx"

	r := SelfCheck(response, analysis.Hints{})
	assert.True(t, r.Passed())

	r = SelfCheck(response, analysis.Hints{FileNames: []string{"Login.tsx"}, FunctionNames: []string{"handleLogin"}})
	assert.True(t, r.Passed())

	r = SelfCheck(response, analysis.Hints{
		FileNames:     []string{"Login.tsx", "styles.css"},
		FunctionNames: []string{"handleLogout", "handleLogin"},
	})
	assert.False(t, r.Passed())
	assert.Equal(t, []string{"styles.css"}, r.MissingFiles)
	assert.Equal(t, []string{"handleLogout"}, r.MissingFunctions)

	for _, text := range []string{"", "anything", strings.Repeat("z", 1000)} {
		assert.True(t, SelfCheck(text, analysis.Hints{FileNames: []string{}, FunctionNames: nil}).Passed())
	}
}
