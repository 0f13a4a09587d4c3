package agentloop

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/martinemde/wand/events"
	"github.com/martinemde/wand/logging"
	"github.com/martinemde/wand/unifiedllm"
)

// DefaultMaxTurns caps the completion requests of one Submit.
const DefaultMaxTurns = 10

// ErrStopped is returned when the event consumer stopped listening.
var ErrStopped = errors.New("agent stopped by caller")

// SessionConfig holds the limits and options of a session.
type SessionConfig struct {
	MaxTurns            int            `json:"max_turns"`
	Temperature         float64        `json:"temperature"`
	ToolOutputLimits    map[string]int `json:"tool_output_limits,omitempty"`
	ToolLineLimits      map[string]int `json:"tool_line_limits,omitempty"`
	EnableLoopDetection bool           `json:"enable_loop_detection"`
	LoopDetectionWindow int            `json:"loop_detection_window"`
	MaxSubagentDepth    int            `json:"max_subagent_depth"`
	// UserInstructions is appended last to the system prompt.
	UserInstructions string `json:"user_instructions,omitempty"`
}

// DefaultSessionConfig returns the default limits.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxTurns:            DefaultMaxTurns,
		Temperature:         unifiedllm.DefaultTemperature,
		EnableLoopDetection: true,
		LoopDetectionWindow: 4,
		MaxSubagentDepth:    1,
	}
}

// Input is one user request to the agent.
type Input struct {
	Query string
	// Context is a listing of context files, see BuildContextListing.
	Context string
	// Model overrides the profile model when set.
	Model string
}

// Session drives the tool-calling loop. Each Submit starts a fresh
// Conversation seeded with the system prompt, the context listing and the
// query.
type Session struct {
	id        string
	profile   *Profile
	executor  Executor
	env       ExecutionEnvironment
	completer unifiedllm.Completer
	config    SessionConfig
	logger    *slog.Logger
	depth     int

	mu       sync.Mutex
	steering []string
	conv     *Conversation
	turns    int
}

// NewSession creates a session. When executor is a *ToolRegistry and
// MaxSubagentDepth allows nesting, spawn_agent is registered on it.
func NewSession(completer unifiedllm.Completer, profile *Profile, executor Executor, config *SessionConfig, logger *slog.Logger) *Session {
	return newSession(completer, profile, executor, config, logger, 0)
}

func newSession(completer unifiedllm.Completer, profile *Profile, executor Executor, config *SessionConfig, logger *slog.Logger, depth int) *Session {
	cfg := DefaultSessionConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if profile == nil {
		profile = NewProfile("")
	}

	s := &Session{
		id:        uuid.New().String(),
		profile:   profile,
		executor:  executor,
		completer: completer,
		config:    cfg,
		logger:    logging.OrDiscard(logger),
		depth:     depth,
		conv:      NewConversation(),
	}
	s.logger = s.logger.With("session", s.id[:8])

	if reg, ok := executor.(*ToolRegistry); ok {
		if depth > 0 {
			reg = reg.Clone()
		}
		if depth < cfg.MaxSubagentDepth {
			registerSpawnAgent(reg, s)
		} else {
			reg.Unregister(spawnAgentTool)
		}
		s.executor = reg
		s.env = reg.Env()
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Executor returns the executor the session calls tools through.
func (s *Session) Executor() Executor { return s.executor }

// Conversation returns the messages of the current or last Submit.
func (s *Session) Conversation() []unifiedllm.Message {
	s.mu.Lock()
	conv := s.conv
	s.mu.Unlock()
	return conv.Messages()
}

// LastAnswer returns the text of the last assistant reply.
func (s *Session) LastAnswer() string {
	s.mu.Lock()
	conv := s.conv
	s.mu.Unlock()
	return conv.LastAssistantText()
}

// Turns returns the number of completion requests made by the last Submit.
func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns
}

// Steer queues a user message that is added to the conversation after the
// current tool round.
func (s *Session) Steer(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steering = append(s.steering, message)
}

// SystemPrompt builds the system prompt for the session's tools.
func (s *Session) SystemPrompt() string {
	var tools []ToolDefinition
	if c, ok := s.executor.(Catalog); ok {
		tools = c.Definitions()
	}
	var docs string
	if s.env != nil {
		docs = DiscoverProjectDocs(s.env.WorkingDirectory(), s.profile.ProjectDocFiles)
	}
	return s.profile.BuildSystemPrompt(s.env, tools, docs, s.config.UserInstructions)
}

// Run is Submit as an event sequence. A fatal error is the last event.
func (s *Session) Run(ctx context.Context, in Input) iter.Seq[events.Event] {
	return events.Seq(func(emit events.Sink) error {
		return s.Submit(ctx, in, emit)
	})
}

// Submit runs the loop for one input. Assistant text is emitted as chunk
// events while it streams and tool output as tool_result events. The loop
// ends at the first reply without a tool call or after MaxTurns completion
// requests; reaching the cap is not an error. Completion failures are
// returned. If emit returns false the loop stops without issuing further
// requests or tool calls.
func (s *Session) Submit(ctx context.Context, in Input, emit events.Sink) error {
	if emit == nil {
		emit = events.Discard
	}
	model := in.Model
	if model == "" {
		model = s.profile.Model
	}

	conv := NewConversation()
	system := s.SystemPrompt()
	conv.Seed(system, in.Context, in.Query)
	s.mu.Lock()
	s.conv = conv
	s.turns = 0
	s.mu.Unlock()
	s.logger.Debug("agent system prompt", "prompt", system)
	s.drainSteering(conv)

	for turn := 1; turn <= s.config.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.mu.Lock()
		s.turns = turn
		s.mu.Unlock()

		text, err := s.complete(ctx, model, conv, emit)
		if err != nil {
			return err
		}
		conv.Append(unifiedllm.AssistantMessage(text))
		s.logger.Debug("agent response", "turn", turn, "response", text)
		s.checkContextUsage(conv)

		res := ParseToolCall(text)
		switch res.Kind {
		case NoCall:
			return nil
		case ParseError:
			s.logger.Warn("malformed tool call", "reason", res.Reason)
			conv.Append(unifiedllm.UserMessage(parseErrorMessage(res.Reason)))
			if !emit(events.Status("\nTool call could not be parsed: " + res.Reason + "\n")) {
				return ErrStopped
			}
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		output := s.runTool(ctx, res.Call)
		truncated := TruncateToolOutput(output, res.Call.Name, s.config.ToolOutputLimits, s.config.ToolLineLimits)
		conv.Append(unifiedllm.UserMessage(FormatToolResult(res.Call.Name, truncated)))
		if !emit(events.ToolResult(res.Call.Name, output)) {
			return ErrStopped
		}

		s.drainSteering(conv)
		if s.config.EnableLoopDetection && DetectLoop(conv, s.config.LoopDetectionWindow) {
			warning := loopWarning(s.config.LoopDetectionWindow)
			s.logger.Warn("tool call loop detected", "window", s.config.LoopDetectionWindow)
			conv.Append(unifiedllm.UserMessage(warning))
			if !emit(events.Status("\n" + warning + "\n")) {
				return ErrStopped
			}
		}
	}

	s.logger.Info("turn limit reached", "max_turns", s.config.MaxTurns)
	return nil
}

// complete streams one reply, forwarding every fragment as a chunk event.
func (s *Session) complete(ctx context.Context, model string, conv *Conversation, emit events.Sink) (string, error) {
	stream, err := unifiedllm.StreamText(ctx, s.completer, model, conv.Messages(), s.config.Temperature)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer stream.Close()

	for stream.Next() {
		if !emit(events.Chunk(stream.Fragment())) {
			return "", ErrStopped
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("completion stream failed: %w", err)
	}
	return stream.Text(), nil
}

// runTool executes a call and turns any failure into text for the model.
func (s *Session) runTool(ctx context.Context, call ToolCall) string {
	if s.executor == nil {
		return fmt.Sprintf("Tool error (%s): no tools are available", call.Name)
	}
	s.logger.Debug("executing tool", "tool", call.Name, "args", call.Arguments)
	out, err := s.executor.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		var panicErr *ToolPanicError
		if errors.As(err, &panicErr) {
			s.logger.Error("tool panicked", "tool", call.Name, "panic", panicErr.Value, "stack", string(panicErr.Stack))
		} else {
			s.logger.Warn("tool failed", "tool", call.Name, "error", err)
		}
		return fmt.Sprintf("Tool error (%s): %v", call.Name, err)
	}
	return out
}

// drainSteering moves queued steering messages into the conversation.
func (s *Session) drainSteering(conv *Conversation) {
	s.mu.Lock()
	queued := s.steering
	s.steering = nil
	s.mu.Unlock()

	for _, msg := range queued {
		conv.Append(unifiedllm.UserMessage(msg))
		s.logger.Debug("steering injected", "content", msg)
	}
}

// checkContextUsage warns when the conversation nears the context window.
func (s *Session) checkContextUsage(conv *Conversation) {
	window := s.profile.ContextWindow
	if window <= 0 {
		return
	}
	chars := len(unifiedllm.JoinText(conv.Messages(), ""))
	approxTokens := chars / 4
	if approxTokens > window*8/10 {
		s.logger.Warn("context usage high", "percent", approxTokens*100/window, "context_window", window)
	}
}
