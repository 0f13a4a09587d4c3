package agentloop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"
)

// ExecResult holds the result of a command execution.
type ExecResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out"`
	DurationMs int64  `json:"duration_ms"`
}

// Output returns combined stdout and stderr.
func (r ExecResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// DirEntry is one entry of a directory listing. Name is relative to the
// listed directory.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

// GrepOptions configures grep behavior.
type GrepOptions struct {
	GlobFilter      string `json:"glob_filter,omitempty"`
	CaseInsensitive bool   `json:"case_insensitive,omitempty"`
	MaxResults      int    `json:"max_results,omitempty"`
}

// ExecutionEnvironment is where tools read, write and run things.
type ExecutionEnvironment interface {
	ReadFile(path string, offset, limit int) (string, error)
	ReadRaw(path string) (string, error)
	WriteFile(path string, content string) error
	FileExists(path string) bool
	ListDirectory(path string, depth int) ([]DirEntry, error)

	ExecCommand(ctx context.Context, command string, timeoutMs int, workingDir string, envVars map[string]string) (*ExecResult, error)

	Grep(ctx context.Context, pattern string, path string, options GrepOptions) (string, error)
	Glob(pattern string, path string) ([]string, error)

	WorkingDirectory() string
	Platform() string
	OSVersion() string
}

// Suffixes of environment variables withheld from commands.
var sensitiveEnvPatterns = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"GOPATH": true, "GOROOT": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range sensitiveEnvPatterns {
		if strings.HasSuffix(upper, pattern) {
			return true
		}
	}
	return false
}

func filterEnvironment() []string {
	var filtered []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if safeEnvVars[name] || !isSensitiveEnvVar(name) {
			filtered = append(filtered, kv)
		}
	}
	return filtered
}

// LocalExecutionEnvironment runs tools on the local machine, resolving
// relative paths against the workspace root.
type LocalExecutionEnvironment struct {
	workingDir string
}

// NewLocalExecutionEnvironment creates a local environment rooted at
// workingDir, or the process working directory if empty.
func NewLocalExecutionEnvironment(workingDir string) *LocalExecutionEnvironment {
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}
	return &LocalExecutionEnvironment{workingDir: workingDir}
}

func (e *LocalExecutionEnvironment) WorkingDirectory() string { return e.workingDir }

func (e *LocalExecutionEnvironment) Platform() string { return runtime.GOOS }

func (e *LocalExecutionEnvironment) OSVersion() string { return runtime.GOOS + "/" + runtime.GOARCH }

func (e *LocalExecutionEnvironment) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(e.workingDir, p)
}

// ReadFile returns line-numbered content. offset is 1-based; limit 0 reads
// to the end.
func (e *LocalExecutionEnvironment) ReadFile(p string, offset, limit int) (string, error) {
	raw, err := e.ReadRaw(p)
	if err != nil {
		return "", err
	}
	lines := strings.Split(raw, "\n")

	start := 0
	if offset > 0 {
		start = offset - 1
	}
	if start >= len(lines) {
		return "", nil
	}
	end := len(lines)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	var sb strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&sb, "%d | %s\n", i+1, lines[i])
	}
	return sb.String(), nil
}

// ReadRaw returns the file content unchanged.
func (e *LocalExecutionEnvironment) ReadRaw(p string) (string, error) {
	data, err := os.ReadFile(e.resolvePath(p))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", p, err)
	}
	return string(data), nil
}

func (e *LocalExecutionEnvironment) WriteFile(p string, content string) error {
	resolved := e.resolvePath(p)
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", p, err)
	}
	return os.WriteFile(resolved, []byte(content), 0o644)
}

func (e *LocalExecutionEnvironment) FileExists(p string) bool {
	_, err := os.Stat(e.resolvePath(p))
	return err == nil
}

// ListDirectory lists p down to depth levels (1 lists direct children).
// Dot entries are skipped.
func (e *LocalExecutionEnvironment) ListDirectory(p string, depth int) ([]DirEntry, error) {
	if depth <= 0 {
		depth = 1
	}
	root := e.resolvePath(p)
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("list %s: not a directory", p)
	}

	var result []DirEntry
	err = filepath.WalkDir(root, func(cur string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if cur == root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(root, cur)
		entry := DirEntry{Name: filepath.ToSlash(rel), IsDir: d.IsDir()}
		if fi, err := d.Info(); err == nil && !d.IsDir() {
			entry.Size = fi.Size()
		}
		result = append(result, entry)
		if d.IsDir() && strings.Count(entry.Name, "/")+1 >= depth {
			return filepath.SkipDir
		}
		return nil
	})
	return result, err
}

func (e *LocalExecutionEnvironment) ExecCommand(ctx context.Context, command string, timeoutMs int, workingDir string, envVars map[string]string) (*ExecResult, error) {
	if workingDir == "" {
		workingDir = e.workingDir
	} else {
		workingDir = e.resolvePath(workingDir)
	}

	if timeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = workingDir
	// Own process group so a timeout kills the whole pipeline.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	env := filterEnvironment()
	for k, v := range envVars {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &ExecResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			result.TimedOut = true
			result.ExitCode = -1
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		default:
			return nil, fmt.Errorf("run command: %w", err)
		}
	}
	return result, nil
}

func (e *LocalExecutionEnvironment) Grep(ctx context.Context, pattern string, p string, options GrepOptions) (string, error) {
	if p == "" {
		p = e.workingDir
	} else {
		p = e.resolvePath(p)
	}

	rgPath, err := exec.LookPath("rg")
	if err != nil {
		return e.grepFallback(ctx, pattern, p, options)
	}

	args := []string{pattern, p, "--line-number", "--no-heading"}
	if options.CaseInsensitive {
		args = append(args, "-i")
	}
	if options.GlobFilter != "" {
		args = append(args, "--glob", options.GlobFilter)
	}
	if options.MaxResults > 0 {
		args = append(args, "--max-count", fmt.Sprintf("%d", options.MaxResults))
	}

	cmd := exec.CommandContext(ctx, rgPath, args...)
	cmd.Dir = e.workingDir
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	_ = cmd.Run() // exit 1 means no matches
	return stdout.String(), nil
}

func (e *LocalExecutionEnvironment) grepFallback(ctx context.Context, pattern string, p string, options GrepOptions) (string, error) {
	args := []string{"-rn"}
	if options.CaseInsensitive {
		args = append(args, "-i")
	}
	if options.GlobFilter != "" {
		args = append(args, "--include="+options.GlobFilter)
	}
	if options.MaxResults > 0 {
		args = append(args, "-m", fmt.Sprintf("%d", options.MaxResults))
	}
	args = append(args, "-e", pattern, p)

	cmd := exec.CommandContext(ctx, "grep", args...)
	cmd.Dir = e.workingDir
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	_ = cmd.Run()
	return stdout.String(), nil
}

// Glob returns slash-separated paths under p matching pattern, relative to
// p. "**" matches any number of directories.
func (e *LocalExecutionEnvironment) Glob(pattern string, p string) ([]string, error) {
	if p == "" {
		p = e.workingDir
	} else {
		p = e.resolvePath(p)
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	want := strings.Split(filepath.ToSlash(pattern), "/")

	var matches []string
	err := filepath.WalkDir(p, func(cur string, d fs.DirEntry, err error) error {
		if err != nil || cur == p {
			return nil
		}
		if d.IsDir() && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		rel, _ := filepath.Rel(p, cur)
		if matchSegments(want, strings.Split(filepath.ToSlash(rel), "/")) {
			matches = append(matches, filepath.ToSlash(rel))
		}
		return nil
	})
	sort.Strings(matches)
	return matches, err
}

func matchSegments(pattern, name []string) bool {
	if len(pattern) == 0 {
		return len(name) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(name); i++ {
			if matchSegments(pattern[1:], name[i:]) {
				return true
			}
		}
		return false
	}
	if len(name) == 0 {
		return false
	}
	if ok, _ := path.Match(pattern[0], name[0]); !ok {
		return false
	}
	return matchSegments(pattern[1:], name[1:])
}
