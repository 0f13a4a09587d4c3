package agentloop

import (
	"context"
	"fmt"

	"github.com/martinemde/wand/events"
)

const spawnAgentTool = "spawn_agent"

// SubAgentResult is the outcome of a nested session.
type SubAgentResult struct {
	Output    string `json:"output"`
	Success   bool   `json:"success"`
	TurnsUsed int    `json:"turns_used"`
}

func (r SubAgentResult) String() string {
	status := "completed"
	if !r.Success {
		status = "failed"
	}
	return fmt.Sprintf("Status: %s\nTurns used: %d\nOutput:\n%s", status, r.TurnsUsed, r.Output)
}

// RunSubAgent runs task in a nested session one level deeper than parent and
// waits for its final answer. The nested session's events are discarded.
func RunSubAgent(ctx context.Context, parent *Session, task string, maxTurns int) (SubAgentResult, error) {
	if parent.depth >= parent.config.MaxSubagentDepth {
		return SubAgentResult{}, fmt.Errorf("maximum subagent depth (%d) reached", parent.config.MaxSubagentDepth)
	}

	cfg := parent.config
	cfg.UserInstructions = ""
	if maxTurns > 0 {
		cfg.MaxTurns = maxTurns
	}
	child := newSession(parent.completer, parent.profile, parent.executor, &cfg, parent.logger, parent.depth+1)
	parent.logger.Debug("spawning subagent", "child", child.ID(), "depth", child.depth)

	err := child.Submit(ctx, Input{Query: task}, events.Discard)
	result := SubAgentResult{
		Output:    child.LastAnswer(),
		Success:   err == nil,
		TurnsUsed: child.Turns(),
	}
	if err != nil {
		result.Output = fmt.Sprintf("Error: %v", err)
	}
	return result, nil
}

func registerSpawnAgent(reg *ToolRegistry, parent *Session) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        spawnAgentTool,
			Description: "Hand a scoped task to a helper agent with the same tools and wait for its answer.",
			Parameters: objectSchema([]string{"task"}, map[string]any{
				"task":      prop("string", "What the helper agent should do, in plain language."),
				"max_turns": prop("integer", "Turn limit for the helper agent."),
			}),
		},
		Func: func(ctx context.Context, args map[string]any, _ ExecutionEnvironment) (string, error) {
			task, err := requireString(args, "task")
			if err != nil {
				return "", err
			}
			maxTurns, _ := GetIntArg(args, "max_turns")
			result, err := RunSubAgent(ctx, parent, task, maxTurns)
			if err != nil {
				return "", err
			}
			return result.String(), nil
		},
	})
}
