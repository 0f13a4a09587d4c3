package unifiedllm

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mockAdapter is a test double for ProviderAdapter.
type mockAdapter struct {
	name     string
	response *Response
	err      error
	events   []StreamEvent
	lastReq  Request
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan StreamEvent, len(m.events))
	for _, e := range m.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

func newMockAdapter(name, text string) *mockAdapter {
	return &mockAdapter{
		name: name,
		response: &Response{
			ID:           "test_resp",
			Model:        "test-model",
			Provider:     name,
			Message:      AssistantMessage(text),
			FinishReason: FinishReason{Reason: "stop"},
		},
	}
}

func deltas(parts ...string) []StreamEvent {
	events := []StreamEvent{{Type: StreamStart}}
	for _, p := range parts {
		events = append(events, StreamEvent{Type: TextDelta, Delta: p})
	}
	return append(events, StreamEvent{Type: StreamFinish})
}

func TestClientComplete(t *testing.T) {
	mock := newMockAdapter("test-provider", "Hello!")
	client := NewClient(WithProvider("test-provider", mock))

	resp, err := client.Complete(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "Hello!" {
		t.Errorf("expected text %q, got %q", "Hello!", resp.Text())
	}
	if mock.lastReq.Provider != "test-provider" {
		t.Errorf("expected provider to be filled in, got %q", mock.lastReq.Provider)
	}
}

func TestClientProviderRouting(t *testing.T) {
	openai := newMockAdapter("openai", "OpenAI response")
	anthropic := newMockAdapter("anthropic", "Anthropic response")
	client := NewClient(
		WithProvider("openai", openai),
		WithProvider("anthropic", anthropic),
		WithDefaultProvider("openai"),
	)

	resp, err := client.Complete(context.Background(), Request{Provider: "anthropic"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "Anthropic response" {
		t.Errorf("expected anthropic routing, got %q", resp.Text())
	}

	resp, err = client.Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "OpenAI response" {
		t.Errorf("expected default routing, got %q", resp.Text())
	}
}

func TestClientUnknownProvider(t *testing.T) {
	client := NewClient(WithProvider("openai", newMockAdapter("openai", "x")))
	_, err := client.Complete(context.Background(), Request{Provider: "missing"})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestClientNoProviders(t *testing.T) {
	client := NewClient()
	if _, err := client.Stream(context.Background(), Request{Model: "unknown"}); err == nil {
		t.Fatal("expected error with no providers")
	}
}

func TestClientMiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(tag string) Middleware {
		return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
			order = append(order, tag)
			return next(ctx, req)
		}
	}
	client := NewClient(
		WithProvider("p", newMockAdapter("p", "ok")),
		WithMiddleware(mw("first"), mw("second")),
	)
	if _, err := client.Complete(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("expected [first second], got %v", order)
	}
}

func TestClientStreamFragments(t *testing.T) {
	mock := newMockAdapter("p", "")
	mock.events = deltas("Hel", "", "lo")
	client := NewClient(WithProvider("p", mock))

	stream, err := client.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stream.Close()

	var got []string
	for stream.Next() {
		got = append(got, stream.Fragment())
	}
	if len(got) != 2 || got[0] != "Hel" || got[1] != "lo" {
		t.Errorf("expected [Hel lo], got %v", got)
	}
	if stream.Err() != nil {
		t.Errorf("unexpected stream error: %v", stream.Err())
	}
	if !stream.Exhausted() {
		t.Error("expected stream to be exhausted")
	}
	if stream.Text() != "Hello" {
		t.Errorf("expected accumulated %q, got %q", "Hello", stream.Text())
	}
	if stream.Next() {
		t.Error("exhausted stream must not yield again")
	}
}

func TestClientStreamError(t *testing.T) {
	mock := newMockAdapter("p", "")
	boom := ErrorFromStatusCode(500, "boom", "p", nil)
	mock.events = []StreamEvent{
		{Type: TextDelta, Delta: "partial"},
		{Type: StreamError, Error: boom},
	}
	client := NewClient(WithProvider("p", mock))

	text, err := Collect(mustStream(t, client))
	if text != "partial" {
		t.Errorf("expected partial text, got %q", text)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected stream error, got %v", err)
	}
}

func mustStream(t *testing.T, c *Client) *Stream {
	t.Helper()
	s, err := c.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

// endlessAdapter streams until its context is cancelled.
type endlessAdapter struct {
	stopped chan struct{}
}

func (e *endlessAdapter) Name() string { return "endless" }

func (e *endlessAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	return nil, errors.New("not supported")
}

func (e *endlessAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	ch := make(chan StreamEvent)
	go func() {
		defer close(e.stopped)
		defer close(ch)
		for {
			select {
			case ch <- StreamEvent{Type: TextDelta, Delta: "x"}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func TestStreamCloseStopsProducer(t *testing.T) {
	adapter := &endlessAdapter{stopped: make(chan struct{})}
	client := NewClient(WithProvider("endless", adapter))

	stream := mustStream(t, client)
	if !stream.Next() {
		t.Fatal("expected a first fragment")
	}
	stream.Close()

	select {
	case <-adapter.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("producer kept running after Close")
	}
	if stream.Next() {
		t.Error("closed stream must not yield")
	}
}

func TestGenerateTextPassesTemperature(t *testing.T) {
	for _, temp := range []float64{0, 0.3, DefaultTemperature} {
		mock := newMockAdapter("p", "answer")
		client := NewClient(WithProvider("p", mock))

		text, err := GenerateText(context.Background(), client, "m", []Message{UserMessage("q")}, temp)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if text != "answer" {
			t.Errorf("expected %q, got %q", "answer", text)
		}
		if mock.lastReq.Temperature == nil || *mock.lastReq.Temperature != temp {
			t.Errorf("expected temperature %v, got %v", temp, mock.lastReq.Temperature)
		}
		if mock.lastReq.Model != "m" {
			t.Errorf("expected model m, got %q", mock.lastReq.Model)
		}
	}
}

// listingAdapter reports its own model list.
type listingAdapter struct{ *mockAdapter }

func (l listingAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{"remote-a", "remote-b"}, nil
}

func TestClientListModels(t *testing.T) {
	client := NewClient(WithProvider("anthropic", newMockAdapter("anthropic", "")))
	models, err := client.ListModels(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != len(ListModels("anthropic")) {
		t.Errorf("expected catalog fallback, got %v", models)
	}

	client = NewClient(WithProvider("custom", listingAdapter{newMockAdapter("custom", "")}))
	models, err = client.ListModels(context.Background(), "custom")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != 2 || models[0] != "remote-a" {
		t.Errorf("expected adapter listing, got %v", models)
	}
}

func TestFetchModelsReportsError(t *testing.T) {
	result := FetchModels(context.Background(), Config{Provider: "openai", APIKey: "k", BaseURL: "http://localhost:1"})
	if result.Error == "" {
		t.Fatal("expected error result")
	}
	if len(result.Models) != 0 {
		t.Errorf("expected no models alongside an error, got %v", result.Models)
	}
}
