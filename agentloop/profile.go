package agentloop

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/martinemde/wand/unifiedllm"
)

// DefaultContextWindow is assumed for models missing from the catalog.
const DefaultContextWindow = 128000

// Profile holds the prompt configuration of an agent: which model it talks
// to and how its system prompt is assembled.
type Profile struct {
	Model         string
	ContextWindow int
	// Instructions opens the system prompt.
	Instructions string
	// ProjectDocFiles are the instruction files loaded from the workspace.
	ProjectDocFiles []string
}

// NewProfile creates a profile for model with the default instructions.
func NewProfile(model string) *Profile {
	return &Profile{
		Model:           model,
		ContextWindow:   unifiedllm.ContextWindow(model, DefaultContextWindow),
		Instructions:    baseInstructions,
		ProjectDocFiles: []string{"AGENTS.md", "WAND.md"},
	}
}

// BuildSystemPrompt assembles the system prompt: instructions, environment,
// git state, the tool catalog with the call syntax, project docs and user
// instructions.
func (p *Profile) BuildSystemPrompt(env ExecutionEnvironment, tools []ToolDefinition, projectDocs, userInstructions string) string {
	var sb strings.Builder

	sb.WriteString(p.Instructions)
	sb.WriteString("\n\n")

	if env != nil {
		sb.WriteString(BuildEnvironmentContext(env, p.Model))
		sb.WriteString("\n\n")
		if gitCtx := GetGitContext(env.WorkingDirectory()); gitCtx != "" {
			sb.WriteString(gitCtx)
			sb.WriteString("\n\n")
		}
	}

	sb.WriteString(ToolCatalog(tools))

	if projectDocs != "" {
		sb.WriteString("\n\n# Project Instructions\n\n")
		sb.WriteString(projectDocs)
	}
	if userInstructions != "" {
		sb.WriteString("\n\n# User Instructions\n\n")
		sb.WriteString(userInstructions)
	}
	return sb.String()
}

// ToolCatalog describes the tools and the exact syntax for calling them.
func ToolCatalog(tools []ToolDefinition) string {
	if len(tools) == 0 {
		return "# Tools\n\nNo tools are available. Answer directly."
	}

	var sb strings.Builder
	sb.WriteString("# Tools\n\n")
	for _, def := range tools {
		fmt.Fprintf(&sb, "## %s\n%s\n", def.Name, def.Description)
		if len(def.Parameters) > 0 {
			params, _ := json.Marshal(def.Parameters)
			fmt.Fprintf(&sb, "Parameters: %s\n", params)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("# Calling Tools\n\n")
	sb.WriteString("To call a tool, put exactly this block in your reply:\n\n")
	sb.WriteString(FormatToolCall(ToolCall{Name: "tool_name", Arguments: map[string]any{"param": "value"}}))
	sb.WriteString("\n\n")
	sb.WriteString(`Rules:
- Put at most one tool call in a reply. Only the first block is executed.
- The arguments line must be a single JSON object.
- After the block, stop and wait. The result arrives in the next message inside <tool_result> tags.
- When you need no more tools, answer the user without any tool_call block.`)
	return sb.String()
}

const baseInstructions = `You are a workspace assistant. You help the user understand and change the files in their workspace: you read documents and code, answer questions about them, and edit or create files when asked.

# Principles

- Ground your answers in the files. Read before you answer or edit.
- Keep changes minimal and focused on the request.
- After changing a file, check the result.
- If a tool fails, read the error and try a different approach.
- When the provided context files already answer the question, answer without tools.`
