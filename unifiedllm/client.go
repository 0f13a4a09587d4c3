package unifiedllm

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Middleware wraps a provider call. It receives the request and a next function
// that calls the downstream handler, and returns the response.
type Middleware func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error)

// StreamMiddleware wraps a streaming provider call.
type StreamMiddleware func(ctx context.Context, req Request, next func(context.Context, Request) (<-chan StreamEvent, error)) (<-chan StreamEvent, error)

// Client holds registered provider adapters, routes requests by provider
// identifier, and applies middleware.
type Client struct {
	providers       map[string]ProviderAdapter
	defaultProvider string
	middleware      []Middleware
	streamMW        []StreamMiddleware
	mu              sync.RWMutex
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers a provider adapter.
func WithProvider(name string, adapter ProviderAdapter) ClientOption {
	return func(c *Client) {
		c.providers[name] = adapter
	}
}

// WithDefaultProvider sets the default provider name.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = name
	}
}

// WithMiddleware adds middleware to the client.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// WithStreamMiddleware adds stream middleware to the client.
func WithStreamMiddleware(mw ...StreamMiddleware) ClientOption {
	return func(c *Client) {
		c.streamMW = append(c.streamMW, mw...)
	}
}

// NewClient creates a new Client with the given options.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers: make(map[string]ProviderAdapter),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.defaultProvider == "" && len(c.providers) == 1 {
		for name := range c.providers {
			c.defaultProvider = name
		}
	}
	return c
}

// Config carries the connection settings of a completion backend.
type Config struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxRetries  int
}

// DefaultTemperature is the sampling temperature used when none is configured.
const DefaultTemperature = 0.7

// NewClientFromConfig builds a Client with a single gollm-backed provider and
// retry middleware.
func NewClientFromConfig(cfg Config) (*Client, error) {
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	opts := []GollmAdapterOption{WithTemperature(cfg.Temperature)}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	adapter, err := NewGollmAdapter(cfg.Provider, cfg.APIKey, opts...)
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "cannot initialize provider " + cfg.Provider, Cause: err}}
	}

	policy := DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries
	return NewClient(
		WithProvider(cfg.Provider, adapter),
		WithMiddleware(RetryMiddleware(policy)),
		WithStreamMiddleware(RetryStreamMiddleware(policy)),
	), nil
}

// RegisterProvider adds a provider adapter to the client.
func (c *Client) RegisterProvider(name string, adapter ProviderAdapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[name] = adapter
	if c.defaultProvider == "" {
		c.defaultProvider = name
	}
}

// resolveProvider determines which provider adapter to use for a request.
func (c *Client) resolveProvider(name, model string) (ProviderAdapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		if info := GetModelInfo(model); info != nil {
			name = info.Provider
		}
	}
	if name == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "no provider specified and no default provider configured",
		}}
	}

	adapter, ok := c.providers[name]
	if !ok {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("provider %q is not registered", name),
		}}
	}
	return adapter, nil
}

// Complete sends a blocking request through middleware to the resolved provider.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	adapter, err := c.resolveProvider(req.Provider, req.Model)
	if err != nil {
		return nil, err
	}
	if req.Provider == "" {
		req.Provider = adapter.Name()
	}

	handler := func(ctx context.Context, r Request) (*Response, error) {
		return adapter.Complete(ctx, r)
	}

	// Apply middleware in reverse order so first registered runs first.
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw := c.middleware[i]
		next := handler
		handler = func(ctx context.Context, r Request) (*Response, error) {
			return mw(ctx, r, next)
		}
	}

	return handler(ctx, req)
}

// Stream sends a streaming request through middleware to the resolved
// provider. The caller must Close the returned Stream.
func (c *Client) Stream(ctx context.Context, req Request) (*Stream, error) {
	adapter, err := c.resolveProvider(req.Provider, req.Model)
	if err != nil {
		return nil, err
	}
	if req.Provider == "" {
		req.Provider = adapter.Name()
	}

	handler := func(ctx context.Context, r Request) (<-chan StreamEvent, error) {
		return adapter.Stream(ctx, r)
	}

	for i := len(c.streamMW) - 1; i >= 0; i-- {
		mw := c.streamMW[i]
		next := handler
		handler = func(ctx context.Context, r Request) (<-chan StreamEvent, error) {
			return mw(ctx, r, next)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	ch, err := handler(ctx, req)
	if err != nil {
		cancel()
		return nil, err
	}
	return NewStream(ch, cancel), nil
}

// ListModels returns the model identifiers available from a provider. An
// empty name selects the default provider. Adapters that cannot enumerate
// remotely fall back to the built-in catalog.
func (c *Client) ListModels(ctx context.Context, provider string) ([]string, error) {
	adapter, err := c.resolveProvider(provider, "")
	if err != nil {
		return nil, err
	}
	if lister, ok := adapter.(ModelLister); ok {
		return lister.ListModels(ctx)
	}
	var ids []string
	for _, m := range ListModels(adapter.Name()) {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close releases resources held by all registered providers.
func (c *Client) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var firstErr error
	for _, adapter := range c.providers {
		if closer, ok := adapter.(Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ModelList is the result of FetchModels: exactly one of Models or Error is
// meaningful.
type ModelList struct {
	Models []string `json:"models,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// FetchModels builds a client from cfg and lists its models. Failures are
// reported in the Error field instead of being returned.
func FetchModels(ctx context.Context, cfg Config) ModelList {
	client, err := NewClientFromConfig(cfg)
	if err != nil {
		return ModelList{Error: err.Error()}
	}
	defer client.Close()

	models, err := client.ListModels(ctx, "")
	if err != nil {
		return ModelList{Error: err.Error()}
	}
	return ModelList{Models: models}
}
