package pipeline

import (
	"context"
	"errors"
	"iter"
	"log/slog"

	"github.com/martinemde/wand/agentloop"
	"github.com/martinemde/wand/events"
	"github.com/martinemde/wand/logging"
	"github.com/martinemde/wand/unifiedllm"
)

// ChatRequest is one user turn in a workspace.
type ChatRequest struct {
	WorkspacePath string   `json:"workspacePath,omitempty"`
	Query         string   `json:"query"`
	Files         []string `json:"files,omitempty"`
	// Model overrides the routed model when set.
	Model string `json:"model,omitempty"`
}

// Assistant answers chat requests: it selects context files, routes to a
// model and runs the agent loop over the selection.
type Assistant struct {
	Preprocessor *Preprocessor
	Completer    unifiedllm.Completer
	Models       Models
	Session      agentloop.SessionConfig
	// ContextChars bounds each file in the context listing.
	ContextChars int
	Logger       *slog.Logger
}

// NewAssistant creates an Assistant with the default session limits.
func NewAssistant(pre *Preprocessor, c unifiedllm.Completer, models Models, logger *slog.Logger) *Assistant {
	return &Assistant{
		Preprocessor: pre,
		Completer:    c,
		Models:       models,
		Session:      agentloop.DefaultSessionConfig(),
		ContextChars: agentloop.DefaultContextFileChars,
		Logger:       logging.OrDiscard(logger),
	}
}

// Chat runs selection then the agent, forwarding every event of both in
// order: the selection's status and result events come first, then the
// agent's chunk, tool_result and status events.
func (a *Assistant) Chat(ctx context.Context, req ChatRequest) iter.Seq[events.Event] {
	return events.Seq(func(emit events.Sink) error {
		err := a.Run(ctx, req, emit)
		if errors.Is(err, ErrStopped) || errors.Is(err, agentloop.ErrStopped) {
			return nil
		}
		return err
	})
}

// Run is Chat in callback form.
func (a *Assistant) Run(ctx context.Context, req ChatRequest, emit events.Sink) error {
	logger := logging.OrDiscard(a.Logger)
	em := events.NewEmitter(emit)

	files, err := a.Preprocessor.Select(ctx, Request{
		WorkspacePath: req.WorkspacePath,
		Query:         req.Query,
		Files:         req.Files,
	}, em.Emit)
	if err != nil {
		return err
	}

	model := req.Model
	if model == "" {
		model = ChooseModel(files, a.Models)
	}
	logger.Info("chat routed", "model", model, "files", len(files))

	reg := NewToolbox(req.WorkspacePath, logger)
	cfg := a.Session
	sess := agentloop.NewSession(a.Completer, agentloop.NewProfile(model), reg, &cfg, logger)
	return sess.Submit(ctx, agentloop.Input{
		Query:   req.Query,
		Context: agentloop.BuildContextListing(files, a.ContextChars),
		Model:   model,
	}, em.Emit)
}

// NewToolbox builds the tool registry for a workspace: the core file and
// shell tools, tool management, and every stored tool. Stored tools that
// fail to load are logged and skipped.
func NewToolbox(root string, logger *slog.Logger) *agentloop.ToolRegistry {
	logger = logging.OrDiscard(logger)
	env := agentloop.NewLocalExecutionEnvironment(root)
	reg := agentloop.NewToolRegistry(env)
	agentloop.RegisterCoreTools(reg, agentloop.DefaultCommandTimeoutMs, agentloop.MaxCommandTimeoutMs)

	store := agentloop.NewToolStore(env.WorkingDirectory())
	agentloop.RegisterToolStoreTools(reg, store)
	names, err := agentloop.RegisterStoredTools(reg, store)
	if err != nil {
		logger.Warn("some stored tools could not be loaded", "dir", store.Dir(), "error", err)
	}
	if len(names) > 0 {
		logger.Debug("stored tools registered", "tools", names)
	}
	return reg
}
