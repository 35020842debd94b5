package engine

// EventType identifies what an Event carries.
type EventType int

const (
	EventChunk EventType = iota
	EventToolCall
	EventToolResult
	EventDone
	EventError
	EventCancelled
)

func (t EventType) String() string {
	switch t {
	case EventChunk:
		return "chunk"
	case EventToolCall:
		return "tool_call"
	case EventToolResult:
		return "tool_result"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	case EventCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Event is one item of the stream a pipeline run produces. Every run ends
// with exactly one terminal event: Done, Error or Cancelled.
type Event struct {
	Type     EventType
	Text     string // chunk text
	ToolName string
	ToolArgs string
	Result   string
	Error    string
}

// Terminal reports whether e ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError || e.Type == EventCancelled
}
