// Package events defines the event sequence every long-running wand
// operation produces for its caller, and writers that put that sequence on
// the wire.
package events

import (
	"iter"
	"strings"
)

// Kind identifies the type of an event.
type Kind string

const (
	// KindStatus carries progress text (scan tree lines, selection reasoning,
	// warnings). Content may contain simple markup.
	KindStatus Kind = "status"
	// KindResult is the final event of a file selection and carries Files.
	KindResult Kind = "result"
	// KindChunk is a raw fragment of assistant text.
	KindChunk Kind = "chunk"
	// KindToolResult is tool output, already wrapped in the tool delimiters.
	KindToolResult Kind = "tool_result"
	// KindError reports a fatal error; nothing follows it.
	KindError Kind = "error"
)

// Delimiters around tool output in KindToolResult events.
const (
	ToolResultOpen  = "\n<tool_output>\n"
	ToolResultClose = "\n</tool_output>\n"
)

// Event is one element of an operation's output sequence.
type Event struct {
	Type    Kind           `json:"type"`
	Content string         `json:"content,omitempty"`
	Files   []string       `json:"files,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Status creates a status event.
func Status(text string) Event { return Event{Type: KindStatus, Content: text} }

// Chunk creates a chunk event.
func Chunk(text string) Event { return Event{Type: KindChunk, Content: text} }

// Result creates a result event carrying the selected files.
func Result(files []string) Event {
	if files == nil {
		files = []string{}
	}
	return Event{Type: KindResult, Files: files}
}

// Error creates an error event.
func Error(err error) Event { return Event{Type: KindError, Content: err.Error()} }

// ToolResult wraps tool output in the tool delimiters.
func ToolResult(name, output string) Event {
	return Event{
		Type:    KindToolResult,
		Content: ToolResultOpen + output + ToolResultClose,
		Data:    map[string]any{"tool": name},
	}
}

// Sink receives events in production order. It returns false when the
// consumer has stopped listening; producers must then stop doing work.
type Sink func(Event) bool

// Discard is a Sink that accepts and drops everything.
func Discard(Event) bool { return true }

// Emitter wraps a Sink and remembers whether the consumer went away.
type Emitter struct {
	sink    Sink
	stopped bool
}

// NewEmitter creates an Emitter. A nil sink discards.
func NewEmitter(sink Sink) *Emitter {
	if sink == nil {
		sink = Discard
	}
	return &Emitter{sink: sink}
}

// Emit delivers ev unless the consumer already stopped. It reports whether
// the consumer still wants events.
func (e *Emitter) Emit(ev Event) bool {
	if e.stopped {
		return false
	}
	if !e.sink(ev) {
		e.stopped = true
	}
	return !e.stopped
}

// Status emits a status event.
func (e *Emitter) Status(text string) bool { return e.Emit(Status(text)) }

// Stopped reports whether the consumer abandoned the sequence.
func (e *Emitter) Stopped() bool { return e.stopped }

// Seq turns a sink-driven producer into an iterator. A non-nil error from
// run is delivered as a final KindError event. Breaking out of the range
// loop makes the sink return false.
func Seq(run func(emit Sink) error) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		stopped := false
		err := run(func(ev Event) bool {
			if stopped {
				return false
			}
			if !yield(ev) {
				stopped = true
			}
			return !stopped
		})
		if err != nil && !stopped {
			yield(Error(err))
		}
	}
}

// Collect drains a sequence into a slice.
func Collect(seq iter.Seq[Event]) []Event {
	var out []Event
	for ev := range seq {
		out = append(out, ev)
	}
	return out
}

// Text concatenates the content of chunk and tool result events.
func Text(evs []Event) string {
	var sb strings.Builder
	for _, ev := range evs {
		if ev.Type == KindChunk || ev.Type == KindToolResult {
			sb.WriteString(ev.Content)
		}
	}
	return sb.String()
}
