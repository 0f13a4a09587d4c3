package agentloop

import (
	"fmt"
	"strings"
)

// TruncationMode specifies which part of an oversized output is kept.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// DefaultToolCharLimit applies to tools without an entry in
// DefaultToolCharLimits.
const DefaultToolCharLimit = 30000

// Character limits of tool output fed back to the model.
var DefaultToolCharLimits = map[string]int{
	"read_file":   50000,
	"shell":       30000,
	"grep":        20000,
	"glob":        20000,
	"list_dir":    20000,
	"edit_file":   10000,
	"write_file":  1000,
	"create_tool": 1000,
	"list_tools":  10000,
	"spawn_agent": 20000,
}

var DefaultTruncationModes = map[string]TruncationMode{
	"read_file":   TruncateHeadTail,
	"shell":       TruncateHeadTail,
	"grep":        TruncateTail,
	"glob":        TruncateTail,
	"list_dir":    TruncateTail,
	"edit_file":   TruncateTail,
	"write_file":  TruncateTail,
	"spawn_agent": TruncateHeadTail,
}

// Line limits, applied after character truncation.
var DefaultToolLineLimits = map[string]int{
	"shell":    256,
	"grep":     200,
	"glob":     500,
	"list_dir": 500,
}

// TruncateOutput cuts output to maxChars, keeping the head and tail or only
// the tail, and says how much was removed.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}
	removed := len(output) - maxChars

	if mode == TruncateTail {
		return fmt.Sprintf("[WARNING: Tool output was truncated. The first %d characters were removed.]\n\n", removed) +
			output[len(output)-maxChars:]
	}
	half := maxChars / 2
	return output[:half] +
		fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
			"Re-run the tool with narrower parameters to see a specific part.]\n\n", removed) +
		output[len(output)-half:]
}

// TruncateLines keeps the first and last lines of output.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateToolOutput applies the character limit and then the line limit of
// a tool. Entries in charLimits and lineLimits override the defaults.
func TruncateToolOutput(output string, toolName string, charLimits map[string]int, lineLimits map[string]int) string {
	maxChars, ok := charLimits[toolName]
	if !ok {
		maxChars, ok = DefaultToolCharLimits[toolName]
		if !ok {
			maxChars = DefaultToolCharLimit
		}
	}
	mode, ok := DefaultTruncationModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}
	result := TruncateOutput(output, maxChars, mode)

	maxLines, ok := lineLimits[toolName]
	if !ok {
		maxLines = DefaultToolLineLimits[toolName]
	}
	return TruncateLines(result, maxLines)
}
