package agentloop

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Tags and labels of the text tool-call protocol.
const (
	ToolCallOpen   = "<tool_call>"
	ToolCallClose  = "</tool_call>"
	FunctionLabel  = "function:"
	ArgumentsLabel = "arguments:"
)

// ToolCall is a tool invocation parsed from assistant text.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ParseKind classifies the outcome of ParseToolCall.
type ParseKind int

const (
	// NoCall means the text holds no complete tool-call block.
	NoCall ParseKind = iota
	// Call means a block was found and parsed.
	Call
	// ParseError means a block was found but is malformed.
	ParseError
)

func (k ParseKind) String() string {
	switch k {
	case Call:
		return "call"
	case ParseError:
		return "parse_error"
	default:
		return "no_call"
	}
}

// ParseResult is the outcome of scanning one assistant reply.
type ParseResult struct {
	Kind   ParseKind
	Call   ToolCall
	Reason string
}

// ParseToolCall scans text for the first tool-call block:
//
//	<tool_call>
//	function: read_file
//	arguments: {"file_path": "notes.md"}
//	</tool_call>
//
// A block without its closing tag is not a call. Later blocks are ignored.
// A missing arguments line means no arguments.
func ParseToolCall(text string) ParseResult {
	_, rest, ok := strings.Cut(text, ToolCallOpen)
	if !ok {
		return ParseResult{Kind: NoCall}
	}
	body, _, ok := strings.Cut(rest, ToolCallClose)
	if !ok {
		return ParseResult{Kind: NoCall}
	}

	var name string
	var rawArgs string
	var haveName bool
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case !haveName && strings.HasPrefix(trimmed, FunctionLabel):
			name = strings.TrimSpace(strings.TrimPrefix(trimmed, FunctionLabel))
			haveName = true
		case rawArgs == "" && strings.HasPrefix(trimmed, ArgumentsLabel):
			// Arguments may continue over the following lines.
			tail := append([]string{strings.TrimPrefix(trimmed, ArgumentsLabel)}, lines[i+1:]...)
			rawArgs = strings.Join(tail, "\n")
		}
	}
	if name == "" {
		return ParseResult{Kind: ParseError, Reason: "missing " + FunctionLabel + " line"}
	}

	args, err := parseArguments(rawArgs)
	if err != nil {
		return ParseResult{Kind: ParseError, Call: ToolCall{Name: name}, Reason: err.Error()}
	}
	return ParseResult{Kind: Call, Call: ToolCall{Name: name, Arguments: args}}
}

func parseArguments(raw string) (map[string]any, error) {
	raw = stripFence(strings.TrimSpace(raw))
	if raw == "" {
		return map[string]any{}, nil
	}

	var value any
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("invalid JSON in arguments: %v", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("invalid JSON in arguments: unexpected data after object")
	}
	args, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("arguments must be a JSON object")
	}
	return args, nil
}

// stripFence removes a surrounding ``` or ```json fence.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// FormatToolCall renders a call in the wire format.
func FormatToolCall(call ToolCall) string {
	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	data, _ := json.Marshal(args)
	return fmt.Sprintf("%s\n%s %s\n%s %s\n%s", ToolCallOpen, FunctionLabel, call.Name, ArgumentsLabel, data, ToolCallClose)
}

// FormatToolResult renders tool output as the message fed back to the model.
func FormatToolResult(name, output string) string {
	return fmt.Sprintf("<tool_result name=%q>\n%s\n</tool_result>", name, output)
}

// parseErrorMessage is appended to the conversation when a reply holds a
// malformed tool call.
func parseErrorMessage(reason string) string {
	return fmt.Sprintf("Your tool call could not be parsed: %s.\nUse exactly this format, with arguments as a JSON object:\n\n%s",
		reason, FormatToolCall(ToolCall{Name: "<tool name>", Arguments: map[string]any{"key": "value"}}))
}
