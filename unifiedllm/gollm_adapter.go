package unifiedllm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter wraps a gollm.LLM instance and implements ProviderAdapter.
type GollmAdapter struct {
	provider string
	llm      gollm.LLM
	model    string

	// gollm options are set on the shared LLM before each call.
	mu sync.Mutex
}

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	apiKey      string
	model       string
	baseURL     string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithModel sets the default model for the adapter.
func WithModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the default temperature. Zero keeps DefaultTemperature.
func WithTemperature(t float64) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		if t > 0 {
			c.temperature = t
		}
	}
}

// WithBaseURL points the adapter at a self-hosted endpoint. Only the ollama
// provider accepts a custom endpoint.
func WithBaseURL(url string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.baseURL = url
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmAdapter creates a new GollmAdapter for the given provider.
// If apiKey is empty, gollm reads it from the provider's environment variable.
func NewGollmAdapter(provider string, apiKey string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{
		apiKey:      apiKey,
		maxTokens:   4096,
		temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		if info := GetLatestModel(provider, ""); info != nil {
			model = info.ID
		} else {
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries happen in RetryMiddleware
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	if cfg.baseURL != "" {
		if provider != "ollama" {
			return nil, &ConfigurationError{SDKError: SDKError{
				Message: fmt.Sprintf("custom base URL is not supported for provider %q", provider),
			}}
		}
		gollmOpts = append(gollmOpts, gollm.SetOllamaEndpoint(cfg.baseURL))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", provider, err)
	}

	return &GollmAdapter{
		provider: provider,
		llm:      llm,
		model:    model,
	}, nil
}

// NewGollmAdapterFromLLM wraps an existing gollm.LLM instance.
func NewGollmAdapterFromLLM(provider string, llm gollm.LLM) *GollmAdapter {
	return &GollmAdapter{
		provider: provider,
		llm:      llm,
	}
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string {
	return a.provider
}

// Complete sends a blocking request and returns the full response.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := a.translateRequest(req)

	a.mu.Lock()
	a.applyRequestOptions(req)
	text, err := a.llm.Generate(ctx, prompt)
	a.mu.Unlock()
	if err != nil {
		return nil, a.translateError(err)
	}

	return a.buildResponse(req, text), nil
}

// Stream sends a streaming request and returns a channel of StreamEvent
// values. The producer stops as soon as ctx is cancelled.
func (a *GollmAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	prompt := a.translateRequest(req)
	ch := make(chan StreamEvent, 64)
	send := func(ev StreamEvent) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	a.mu.Lock()
	a.applyRequestOptions(req)
	if !a.llm.SupportsStreaming() {
		text, err := a.llm.Generate(ctx, prompt)
		a.mu.Unlock()
		if err != nil {
			return nil, a.translateError(err)
		}
		go func() {
			defer close(ch)
			resp := a.buildResponse(req, text)
			_ = send(StreamEvent{Type: StreamStart}) &&
				send(StreamEvent{Type: TextDelta, Delta: text}) &&
				send(StreamEvent{Type: StreamFinish, FinishReason: &resp.FinishReason, Usage: &resp.Usage, Response: resp})
		}()
		return ch, nil
	}
	stream, err := a.llm.Stream(ctx, prompt)
	a.mu.Unlock()
	if err != nil {
		return nil, a.translateError(err)
	}

	go func() {
		defer close(ch)
		defer stream.Close()

		if !send(StreamEvent{Type: StreamStart}) {
			return
		}

		var full strings.Builder
		for {
			token, err := stream.Next(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				if ctx.Err() == nil {
					send(StreamEvent{Type: StreamError, Error: a.translateError(err)})
				}
				return
			}
			if token == nil || token.Text == "" {
				continue
			}
			full.WriteString(token.Text)
			if !send(StreamEvent{Type: TextDelta, Delta: token.Text}) {
				return
			}
		}

		resp := a.buildResponse(req, full.String())
		send(StreamEvent{
			Type:         StreamFinish,
			FinishReason: &resp.FinishReason,
			Usage:        &resp.Usage,
			Response:     resp,
		})
	}()

	return ch, nil
}

// ListModels returns the catalog models of the adapter's provider. gollm has
// no remote listing endpoint, so the configured default model is included
// when the catalog does not know it.
func (a *GollmAdapter) ListModels(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ids []string
	seen := map[string]bool{}
	for _, m := range ListModels(a.provider) {
		ids = append(ids, m.ID)
		seen[m.ID] = true
	}
	if a.model != "" && !seen[a.model] {
		ids = append(ids, a.model)
	}
	if len(ids) == 0 {
		return nil, &NotFoundError{ProviderError: ProviderError{
			SDKError: SDKError{Message: "no models known for provider"}, Provider: a.provider, StatusCode: 404,
		}}
	}
	return ids, nil
}

// translateRequest folds a conversation into a single gollm prompt. System
// messages become the system prompt; assistant turns are labelled so the
// model can tell them apart from user turns.
func (a *GollmAdapter) translateRequest(req Request) *gollm.Prompt {
	var system []string
	var turns []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
		case RoleUser:
			turns = append(turns, msg.Content)
		case RoleAssistant:
			if msg.Content != "" {
				turns = append(turns, "[Assistant]: "+msg.Content)
			}
		}
	}

	promptText := strings.Join(turns, "\n\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption
	if len(system) > 0 {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(strings.Join(system, "\n")), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// applyRequestOptions applies request-level parameters to the gollm LLM.
// Callers hold a.mu.
func (a *GollmAdapter) applyRequestOptions(req Request) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

// buildResponse constructs a Response from the generated text.
func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}
	in := estimateTokens(req)
	out := len(text) / 4
	return &Response{
		ID:           "resp_" + uuid.New().String()[:8],
		Model:        model,
		Provider:     a.provider,
		Message:      AssistantMessage(text),
		FinishReason: FinishReason{Reason: "stop", Raw: "stop"},
		// gollm does not expose provider usage; this is a length estimate.
		Usage: Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
	}
}

var (
	statusCodePattern = regexp.MustCompile(`\b(40[0-9]|41[0-9]|42[0-9]|50[0-4])\b`)
	retryAfterPattern = regexp.MustCompile(`(?i)retry[- ]after[":= ]+([0-9]+(?:\.[0-9]+)?)`)
)

// withRetryAfter copies a "retry after N" hint from msg onto rate limit errors.
func withRetryAfter(err error, msg string) error {
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		return err
	}
	if m := retryAfterPattern.FindStringSubmatch(msg); m != nil {
		if secs, perr := strconv.ParseFloat(m[1], 64); perr == nil {
			rl.RetryAfter = Float64(secs)
		}
	}
	return err
}

// translateError converts a gollm error into the error hierarchy. An HTTP
// status code embedded in the message wins over keyword matching.
func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &AbortError{SDKError: SDKError{Message: "request cancelled", Cause: err}}
	}
	msg := err.Error()

	if m := statusCodePattern.FindString(msg); m != "" {
		code, _ := strconv.Atoi(m)
		return withRetryAfter(ErrorFromStatusCode(code, msg, a.provider, err), msg)
	}

	lower := strings.ToLower(msg)
	pe := ProviderError{SDKError: SDKError{Message: msg, Cause: err}, Provider: a.provider}
	switch {
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key") || strings.Contains(lower, "api key"):
		pe.StatusCode = 401
		return &AuthenticationError{ProviderError: pe}
	case strings.Contains(lower, "forbidden"):
		pe.StatusCode = 403
		return &AccessDeniedError{ProviderError: pe}
	case strings.Contains(lower, "rate limit"):
		pe.StatusCode, pe.Retryable = 429, true
		return withRetryAfter(&RateLimitError{ProviderError: pe}, msg)
	case strings.Contains(lower, "context length") || strings.Contains(lower, "too many tokens"):
		pe.StatusCode = 413
		return &ContextLengthError{ProviderError: pe}
	case strings.Contains(lower, "timeout"):
		return &RequestTimeoutError{SDKError: pe.SDKError}
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host"):
		return &NetworkError{SDKError: pe.SDKError}
	case strings.Contains(lower, "content filter") || strings.Contains(lower, "safety"):
		return &ContentFilterError{ProviderError: pe}
	default:
		pe.Retryable = true
		return &pe
	}
}

// estimateTokens provides a rough token count estimate from request messages.
func estimateTokens(req Request) int {
	total := len(JoinText(req.Messages, "")) / 4
	if total == 0 {
		total = 10
	}
	return total
}
