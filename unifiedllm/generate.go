package unifiedllm

import (
	"context"
	"strings"
)

// Completer is the completion surface the rest of the module depends on.
// *Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request) (*Stream, error)
}

// GenerateText runs a blocking completion and returns the assistant text.
func GenerateText(ctx context.Context, c Completer, model string, messages []Message, temperature float64) (string, error) {
	resp, err := c.Complete(ctx, newRequest(model, messages, temperature))
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// StreamText starts a streaming completion. The caller must Close the stream.
func StreamText(ctx context.Context, c Completer, model string, messages []Message, temperature float64) (*Stream, error) {
	return c.Stream(ctx, newRequest(model, messages, temperature))
}

// Collect drains a stream and returns the concatenated text.
func Collect(s *Stream) (string, error) {
	defer s.Close()
	var sb strings.Builder
	for s.Next() {
		sb.WriteString(s.Fragment())
	}
	return sb.String(), s.Err()
}

// newRequest sends temperature as given; defaults belong to configuration.
func newRequest(model string, messages []Message, temperature float64) Request {
	msgs := make([]Message, len(messages))
	copy(msgs, messages)
	return Request{
		Model:       model,
		Messages:    msgs,
		Temperature: Float64(temperature),
	}
}
