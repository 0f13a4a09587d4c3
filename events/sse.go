package events

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SSEWriter sends events to an http.ResponseWriter as server-sent events,
// using the event kind as the SSE event name.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter prepares w for streaming. It returns nil if w cannot flush.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	return &SSEWriter{w: w, flusher: flusher}
}

// Send writes ev as a named SSE event with JSON data.
func (s *SSEWriter) Send(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal SSE data: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Comment writes an SSE comment, used as a keep-alive.
func (s *SSEWriter) Comment(text string) {
	fmt.Fprintf(s.w, ": %s\n\n", text)
	s.flusher.Flush()
}

// Sink adapts the writer to a Sink. A failed write ends the sequence.
func (s *SSEWriter) Sink() Sink {
	return func(ev Event) bool {
		return s.Send(ev) == nil
	}
}
