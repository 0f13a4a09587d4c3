package unifiedllm

import (
	"context"
	"strings"
)

// Stream is a pull-based iterator over the text fragments of a streaming
// completion. The producer runs in its own goroutine and writes to a channel;
// Close cancels it. After Next returns false the stream is exhausted and Err
// reports whether it ended because of a failure.
//
//	s, err := client.Stream(ctx, req)
//	if err != nil { ... }
//	defer s.Close()
//	for s.Next() {
//		fmt.Print(s.Fragment())
//	}
//	if err := s.Err(); err != nil { ... }
type Stream struct {
	events   <-chan StreamEvent
	cancel   context.CancelFunc
	current  string
	text     strings.Builder
	err      error
	done     bool
	response *Response
}

// NewStream wraps a provider event channel. cancel is invoked on Close and
// may be nil.
func NewStream(events <-chan StreamEvent, cancel context.CancelFunc) *Stream {
	return &Stream{events: events, cancel: cancel}
}

// Next advances to the next non-empty text fragment.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	for ev := range s.events {
		switch ev.Type {
		case TextDelta:
			if ev.Delta == "" {
				continue
			}
			s.current = ev.Delta
			s.text.WriteString(ev.Delta)
			return true
		case StreamError:
			s.err = ev.Error
			if s.err == nil {
				s.err = &StreamErrorType{SDKError: SDKError{Message: "stream failed"}}
			}
			s.finish()
			return false
		case StreamFinish:
			s.response = ev.Response
		}
	}
	s.finish()
	return false
}

// Fragment returns the fragment produced by the last successful Next.
func (s *Stream) Fragment() string {
	return s.current
}

// Text returns everything received so far.
func (s *Stream) Text() string {
	return s.text.String()
}

// Err returns the error that terminated the stream, if any.
func (s *Stream) Err() error {
	return s.err
}

// Exhausted reports whether the stream has reached its terminal state.
func (s *Stream) Exhausted() bool {
	return s.done
}

// Response returns the final response reported by the provider, or nil if
// the stream has not finished or the provider did not report one.
func (s *Stream) Response() *Response {
	return s.response
}

// Close abandons the stream. It is safe to call more than once.
func (s *Stream) Close() {
	s.finish()
}

func (s *Stream) finish() {
	s.done = true
	s.current = ""
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
