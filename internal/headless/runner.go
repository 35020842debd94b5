// Package headless consumes an engine event stream and writes it to a
// terminal: answer text to stdout, tool activity and status to stderr.
package headless

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/glamour"

	"github.com/jeanpaul/recall/internal/engine"
)

// Streamer starts a pipeline run. *engine.Engine implements it.
type Streamer interface {
	Run(ctx context.Context, msg string) <-chan engine.Event
}

// Runner renders one run.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Theme  Theme

	// Render buffers the answer and prints it as markdown once the run is
	// done instead of streaming it.
	Render bool
	Width  int
}

// NewRunner returns a Runner writing to the process's stdout and stderr.
func NewRunner(theme string, render bool) *Runner {
	return &Runner{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Theme:  ThemeFor(theme),
		Render: render,
		Width:  80,
	}
}

// Run executes prompt and renders its events. It reads until the stream is
// closed and returns an error for Error and Cancelled endings.
func (r *Runner) Run(ctx context.Context, s Streamer, prompt string) error {
	var (
		answer strings.Builder
		result error
	)

	for evt := range s.Run(ctx, prompt) {
		switch evt.Type {
		case engine.EventChunk:
			if r.Render {
				answer.WriteString(evt.Text)
			} else {
				fmt.Fprint(r.Stdout, evt.Text)
			}

		case engine.EventToolCall:
			fmt.Fprintln(r.Stderr, r.Theme.ToolLabel.Render(fmt.Sprintf("[Tool Call: %s(%s)]", evt.ToolName, evt.ToolArgs)))

		case engine.EventToolResult:
			fmt.Fprintln(r.Stderr, r.Theme.ToolResult.Render(fmt.Sprintf("[Tool Result: %s]", clip(evt.Result, resultLimit))))

		case engine.EventError:
			fmt.Fprintln(r.Stderr, "\n"+r.Theme.Error.Render(fmt.Sprintf("[Error: %s]", evt.Error)))
			result = errors.New(evt.Error)

		case engine.EventCancelled:
			fmt.Fprintln(r.Stderr, "\n"+r.Theme.Status.Render("[Cancelled]"))
			result = context.Canceled

		case engine.EventDone:
			if r.Render {
				fmt.Fprint(r.Stdout, r.markdown(answer.String()))
			} else {
				fmt.Fprintln(r.Stdout)
			}
			fmt.Fprintln(r.Stderr, r.Theme.Status.Render("[Done]"))
		}
	}
	return result
}

// resultLimit caps tool results echoed to stderr, in runes.
const resultLimit = 200

func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}

// markdown renders content with glamour, falling back to the raw text.
func (r *Runner) markdown(content string) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(r.Width),
	)
	if err != nil {
		return content
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}
