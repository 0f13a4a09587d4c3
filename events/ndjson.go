package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// NDJSONWriter writes one JSON object per event, one per line.
type NDJSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

// NewNDJSONWriter creates a writer on w.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &NDJSONWriter{enc: enc}
}

// Write encodes ev. After the first failure every call returns that error.
func (n *NDJSONWriter) Write(ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	if err := n.enc.Encode(ev); err != nil {
		n.err = fmt.Errorf("write event: %w", err)
	}
	return n.err
}

// Sink adapts the writer to a Sink. A write failure ends the sequence.
func (n *NDJSONWriter) Sink() Sink {
	return func(ev Event) bool {
		return n.Write(ev) == nil
	}
}
