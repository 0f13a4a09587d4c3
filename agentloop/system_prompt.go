package agentloop

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const maxProjectDocBytes = 32 * 1024

const docsTruncatedNote = "[Project instructions truncated at 32KB]"

// BuildEnvironmentContext describes the workspace the agent runs in.
func BuildEnvironmentContext(env ExecutionEnvironment, model string) string {
	dir := env.WorkingDirectory()
	branch := gitOutput(dir, "rev-parse", "--abbrev-ref", "HEAD")

	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Workspace: %s\n", dir)
	fmt.Fprintf(&sb, "Is git repository: %v\n", branch != "")
	if branch != "" {
		fmt.Fprintf(&sb, "Git branch: %s\n", branch)
	}
	fmt.Fprintf(&sb, "Platform: %s (%s)\n", env.Platform(), env.OSVersion())
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format(time.DateOnly))
	if model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

// DiscoverProjectDocs loads the named instruction files from every
// directory between the git root (or workingDir) and workingDir, root first.
// The total is capped at 32KB.
func DiscoverProjectDocs(workingDir string, fileNames []string) string {
	root := gitOutput(workingDir, "rev-parse", "--show-toplevel")
	if root == "" {
		root = workingDir
	}

	var docs []string
	used := 0
	for _, dir := range pathHierarchy(root, workingDir) {
		for _, name := range fileNames {
			content, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				continue
			}
			remaining := maxProjectDocBytes - used
			if remaining <= 0 {
				docs = append(docs, docsTruncatedNote)
				return strings.Join(docs, "\n\n---\n\n")
			}
			text := string(content)
			if len(text) > remaining {
				text = text[:remaining] + "\n" + docsTruncatedNote
			}
			docs = append(docs, fmt.Sprintf("# %s (from %s)\n\n%s", name, dir, text))
			used += len(text)
		}
	}
	return strings.Join(docs, "\n\n---\n\n")
}

// GetGitContext summarizes the git state of workingDir, or returns "" when
// it is not inside a repository.
func GetGitContext(workingDir string) string {
	root := gitOutput(workingDir, "rev-parse", "--show-toplevel")
	if root == "" {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("<git_context>\n")
	if status := gitOutput(root, "status", "--short"); status != "" {
		fmt.Fprintf(&sb, "Modified/untracked files: %d\n", len(strings.Split(status, "\n")))
	}
	if log := gitOutput(root, "log", "--oneline", "-10"); log != "" {
		sb.WriteString("Recent commits:\n")
		sb.WriteString(log)
		sb.WriteString("\n")
	}
	sb.WriteString("</git_context>")
	return sb.String()
}

// pathHierarchy returns the directories from root down to target.
func pathHierarchy(root, target string) []string {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	dirs := []string{root}

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return dirs
	}
	cur := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		dirs = append(dirs, cur)
	}
	return dirs
}

// gitOutput runs git in dir and returns its trimmed output, or "" on error.
func gitOutput(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
