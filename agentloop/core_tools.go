package agentloop

import (
	"context"
	"fmt"
	"strings"
)

// Shell timeouts in milliseconds.
const (
	DefaultCommandTimeoutMs = 10000
	MaxCommandTimeoutMs     = 600000
)

// RegisterCoreTools registers the workspace tools: read_file, write_file,
// edit_file, shell, grep, glob and list_dir.
func RegisterCoreTools(reg *ToolRegistry, defaultTimeoutMs int, maxTimeoutMs int) {
	if defaultTimeoutMs <= 0 {
		defaultTimeoutMs = DefaultCommandTimeoutMs
	}
	if maxTimeoutMs <= 0 {
		maxTimeoutMs = MaxCommandTimeoutMs
	}
	registerReadFile(reg)
	registerWriteFile(reg)
	registerEditFile(reg)
	registerShell(reg, defaultTimeoutMs, maxTimeoutMs)
	registerGrep(reg)
	registerGlob(reg)
	registerListDir(reg)
}

func objectSchema(required []string, props map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func registerReadFile(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "read_file",
			Description: "Read a file from the workspace. Returns line-numbered content.",
			Parameters: objectSchema([]string{"file_path"}, map[string]any{
				"file_path": prop("string", "Path to the file, absolute or relative to the workspace."),
				"offset":    prop("integer", "1-based line number to start reading from."),
				"limit":     prop("integer", "Maximum number of lines to read. Default: 2000."),
			}),
		},
		Func: func(_ context.Context, args map[string]any, env ExecutionEnvironment) (string, error) {
			filePath, err := requireString(args, "file_path")
			if err != nil {
				return "", err
			}
			offset, _ := GetIntArg(args, "offset")
			limit, _ := GetIntArg(args, "limit")
			if limit <= 0 {
				limit = 2000
			}
			return env.ReadFile(filePath, offset, limit)
		},
	})
}

func registerWriteFile(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "write_file",
			Description: "Write content to a file, creating it and its parent directories if needed.",
			Parameters: objectSchema([]string{"file_path", "content"}, map[string]any{
				"file_path": prop("string", "Path to write to."),
				"content":   prop("string", "The full file content."),
			}),
		},
		Func: func(_ context.Context, args map[string]any, env ExecutionEnvironment) (string, error) {
			filePath, err := requireString(args, "file_path")
			if err != nil {
				return "", err
			}
			content, ok := GetStringArg(args, "content")
			if !ok {
				return "", fmt.Errorf("content is required")
			}
			if err := env.WriteFile(filePath, content); err != nil {
				return "", err
			}
			return fmt.Sprintf("Wrote %d bytes to %s", len(content), filePath), nil
		},
	})
}

func registerEditFile(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "edit_file",
			Description: "Replace an exact string in a file. old_string must be unique in the file unless replace_all is true.",
			Parameters: objectSchema([]string{"file_path", "old_string", "new_string"}, map[string]any{
				"file_path":   prop("string", "Path to the file to edit."),
				"old_string":  prop("string", "Exact text to find."),
				"new_string":  prop("string", "Replacement text."),
				"replace_all": prop("boolean", "Replace every occurrence. Default: false."),
			}),
		},
		Func: func(_ context.Context, args map[string]any, env ExecutionEnvironment) (string, error) {
			filePath, err := requireString(args, "file_path")
			if err != nil {
				return "", err
			}
			oldString, err := requireString(args, "old_string")
			if err != nil {
				return "", err
			}
			newString, _ := GetStringArg(args, "new_string")
			replaceAll, _ := GetBoolArg(args, "replace_all")

			content, err := env.ReadRaw(filePath)
			if err != nil {
				return "", err
			}
			count := strings.Count(content, oldString)
			switch {
			case count == 0:
				return "", fmt.Errorf("old_string not found in %s", filePath)
			case count > 1 && !replaceAll:
				return "", fmt.Errorf("old_string found %d times in %s; add context to make it unique or set replace_all", count, filePath)
			}

			n := 1
			if replaceAll {
				n = -1
			}
			if err := env.WriteFile(filePath, strings.Replace(content, oldString, newString, n)); err != nil {
				return "", err
			}
			if !replaceAll {
				count = 1
			}
			return fmt.Sprintf("Replaced %d occurrence(s) in %s", count, filePath), nil
		},
	})
}

func registerShell(reg *ToolRegistry, defaultTimeoutMs int, maxTimeoutMs int) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "shell",
			Description: fmt.Sprintf("Run a shell command in the workspace. Returns stdout, stderr and the exit code. Timeout: %dms.", defaultTimeoutMs),
			Parameters: objectSchema([]string{"command"}, map[string]any{
				"command":    prop("string", "The command to run."),
				"timeout_ms": prop("integer", "Override the timeout in milliseconds."),
			}),
		},
		Func: func(ctx context.Context, args map[string]any, env ExecutionEnvironment) (string, error) {
			command, err := requireString(args, "command")
			if err != nil {
				return "", err
			}
			timeoutMs, _ := GetIntArg(args, "timeout_ms")
			if timeoutMs <= 0 {
				timeoutMs = defaultTimeoutMs
			}
			timeoutMs = min(timeoutMs, maxTimeoutMs)

			result, err := env.ExecCommand(ctx, command, timeoutMs, "", nil)
			if err != nil {
				return "", err
			}
			return formatExecResult(result, timeoutMs), nil
		},
	})
}

func formatExecResult(result *ExecResult, timeoutMs int) string {
	var sb strings.Builder
	sb.WriteString(result.Output())
	if result.TimedOut {
		fmt.Fprintf(&sb, "\n\n[ERROR: Command timed out after %dms. Partial output is shown above.]", timeoutMs)
	} else if result.ExitCode != 0 {
		fmt.Fprintf(&sb, "\n\n[Exit code: %d]", result.ExitCode)
	}
	return sb.String()
}

func registerGrep(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "grep",
			Description: "Search file contents with a regular expression. Returns matching lines with paths and line numbers.",
			Parameters: objectSchema([]string{"pattern"}, map[string]any{
				"pattern":          prop("string", "Regular expression to search for."),
				"path":             prop("string", "Directory or file to search. Default: the workspace."),
				"glob_filter":      prop("string", "File name filter, e.g. \"*.md\"."),
				"case_insensitive": prop("boolean", "Ignore case. Default: false."),
				"max_results":      prop("integer", "Maximum matches per file. Default: 100."),
			}),
		},
		Func: func(ctx context.Context, args map[string]any, env ExecutionEnvironment) (string, error) {
			pattern, err := requireString(args, "pattern")
			if err != nil {
				return "", err
			}
			path, _ := GetStringArg(args, "path")
			globFilter, _ := GetStringArg(args, "glob_filter")
			caseInsensitive, _ := GetBoolArg(args, "case_insensitive")
			maxResults, _ := GetIntArg(args, "max_results")
			if maxResults <= 0 {
				maxResults = 100
			}
			out, err := env.Grep(ctx, pattern, path, GrepOptions{
				GlobFilter:      globFilter,
				CaseInsensitive: caseInsensitive,
				MaxResults:      maxResults,
			})
			if err == nil && out == "" {
				out = "No matches found."
			}
			return out, err
		},
	})
}

func registerGlob(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "glob",
			Description: "Find files by name pattern. \"**\" matches any number of directories.",
			Parameters: objectSchema([]string{"pattern"}, map[string]any{
				"pattern": prop("string", "Glob pattern, e.g. \"**/*.md\"."),
				"path":    prop("string", "Base directory. Default: the workspace."),
			}),
		},
		Func: func(_ context.Context, args map[string]any, env ExecutionEnvironment) (string, error) {
			pattern, err := requireString(args, "pattern")
			if err != nil {
				return "", err
			}
			path, _ := GetStringArg(args, "path")
			matches, err := env.Glob(pattern, path)
			if err != nil {
				return "", err
			}
			if len(matches) == 0 {
				return "No files matched the pattern.", nil
			}
			return strings.Join(matches, "\n"), nil
		},
	})
}

func registerListDir(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "list_dir",
			Description: "List a directory. Directories end with a slash.",
			Parameters: objectSchema(nil, map[string]any{
				"path":  prop("string", "Directory to list. Default: the workspace."),
				"depth": prop("integer", "How many levels to descend. Default: 1."),
			}),
		},
		Func: func(_ context.Context, args map[string]any, env ExecutionEnvironment) (string, error) {
			path, _ := GetStringArg(args, "path")
			if path == "" {
				path = "."
			}
			depth, _ := GetIntArg(args, "depth")
			entries, err := env.ListDirectory(path, depth)
			if err != nil {
				return "", err
			}
			if len(entries) == 0 {
				return "(empty directory)", nil
			}
			var sb strings.Builder
			for _, e := range entries {
				if e.IsDir {
					fmt.Fprintf(&sb, "%s/\n", e.Name)
				} else {
					fmt.Fprintf(&sb, "%s (%d bytes)\n", e.Name, e.Size)
				}
			}
			return sb.String(), nil
		},
	})
}
