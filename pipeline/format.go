package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/martinemde/wand/workspace"
)

// Formatter renders the status sections of a preprocessing run. Every
// method returns the content of one status event.
type Formatter interface {
	ScanOpen() string
	FileLine(st workspace.FileStatus) string
	ScanClose() string
	Warning(msg string) string
	SelectOpen() string
	SelectClose() string
	SelectedList(paths []string) string
}

// HTMLFormat produces the collapsible markup chat hosts render inline.
type HTMLFormat struct{}

const (
	colorChanged   = "#eab308"
	colorUnchanged = "#4ade80"
)

func (HTMLFormat) ScanOpen() string {
	return "<details><summary>Preprocessing: scanning workspace</summary>\n" +
		"<div style='font-family: monospace; font-size: 0.85em; line-height: 1.4;'>\n"
}

func (HTMLFormat) FileLine(st workspace.FileStatus) string {
	color := colorChanged
	if st.Change == workspace.ChangeUnchanged {
		color = colorUnchanged
	}
	return fmt.Sprintf("%s📄 <span style='color:%s'>%s</span> %s<br/>",
		strings.Repeat("&nbsp;&nbsp;", st.Depth), color, st.Change.Mark(), st.Name)
}

func (HTMLFormat) ScanClose() string { return "</div></details>\n\n" }

func (HTMLFormat) Warning(msg string) string { return "Warning: " + msg + "\n" }

func (HTMLFormat) SelectOpen() string {
	return "<details><summary>Preprocessing: file selection</summary>\n" +
		"<div style='color: #a1a1aa; font-size: 0.9em; margin-bottom: 8px; padding-left: 4px;'>\n"
}

func (HTMLFormat) SelectClose() string { return "</div>\n" }

func (HTMLFormat) SelectedList(paths []string) string {
	return "\n\n" + selectedLines(paths) + "\n</details>\n\n"
}

// TextFormat produces plain text for terminals and logs.
type TextFormat struct{}

func (TextFormat) ScanOpen() string { return "Scanning workspace\n" }

func (TextFormat) FileLine(st workspace.FileStatus) string { return st.Line() + "\n" }

func (TextFormat) ScanClose() string { return "\n" }

func (TextFormat) Warning(msg string) string { return "Warning: " + msg + "\n" }

func (TextFormat) SelectOpen() string { return "Selecting files\n" }

func (TextFormat) SelectClose() string { return "\n" }

func (TextFormat) SelectedList(paths []string) string {
	return "\n" + selectedLines(paths) + "\n\n"
}

func selectedLines(paths []string) string {
	lines := make([]string, len(paths))
	for i, p := range paths {
		lines[i] = "- selected `" + filepath.Base(p) + "`"
	}
	return strings.Join(lines, "\n")
}
