package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
)

// ToolFunc runs a tool with its parsed arguments.
type ToolFunc func(ctx context.Context, args map[string]any, env ExecutionEnvironment) (string, error)

// ToolDefinition describes a tool for the system prompt.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// RegisteredTool pairs a tool definition with its implementation.
type RegisteredTool struct {
	Definition ToolDefinition
	Func       ToolFunc
}

// Executor runs a named tool. Errors are reported to the model as text.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]any) (string, error)
}

// Catalog lists the tools an Executor offers.
type Catalog interface {
	Definitions() []ToolDefinition
}

// UnknownToolError is returned for a name that is not registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string { return "unknown tool: " + e.Name }

// ToolPanicError wraps a panic raised inside a tool.
type ToolPanicError struct {
	Name  string
	Value any
	Stack []byte
}

func (e *ToolPanicError) Error() string {
	return fmt.Sprintf("tool %s panicked: %v", e.Name, e.Value)
}

// ToolRegistry holds the tools of a session and executes them against one
// ExecutionEnvironment.
type ToolRegistry struct {
	env   ExecutionEnvironment
	tools map[string]*RegisteredTool
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty registry bound to env.
func NewToolRegistry(env ExecutionEnvironment) *ToolRegistry {
	return &ToolRegistry{
		env:   env,
		tools: make(map[string]*RegisteredTool),
	}
}

// Env returns the environment tools run in.
func (r *ToolRegistry) Env() ExecutionEnvironment { return r.env }

// Register adds or replaces a tool.
func (r *ToolRegistry) Register(tool RegisteredTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Definition.Name] = &tool
}

// Unregister removes a tool.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a registered tool by name, or nil.
func (r *ToolRegistry) Get(name string) *RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Definitions returns all tool definitions sorted by name.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns the sorted names of all registered tools.
func (r *ToolRegistry) Names() []string {
	defs := r.Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Clone returns a copy of the registry sharing the environment.
func (r *ToolRegistry) Clone() *ToolRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := NewToolRegistry(r.env)
	for name, tool := range r.tools {
		cloned := *tool
		clone.tools[name] = &cloned
	}
	return clone
}

// Execute runs the named tool. A panic inside the tool is returned as a
// *ToolPanicError.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args map[string]any) (out string, err error) {
	tool := r.Get(name)
	if tool == nil {
		return "", &UnknownToolError{Name: name}
	}
	if args == nil {
		args = map[string]any{}
	}
	defer func() {
		if v := recover(); v != nil {
			out, err = "", &ToolPanicError{Name: name, Value: v, Stack: debug.Stack()}
		}
	}()
	return tool.Func(ctx, args, r.env)
}

// GetStringArg extracts a string argument.
func GetStringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetIntArg extracts an integer argument.
func GetIntArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// GetBoolArg extracts a boolean argument.
func GetBoolArg(args map[string]any, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func requireString(args map[string]any, key string) (string, error) {
	s, ok := GetStringArg(args, key)
	if !ok || s == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}
