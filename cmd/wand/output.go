package main

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/martinemde/wand/events"
)

var (
	changedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#eab308"))
	unchangedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ade80"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#a1a1aa"))
	toolStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#71717a"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444")).Bold(true)
	headingStyle   = lipgloss.NewStyle().Bold(true)
)

// printer writes an event sequence for a terminal or, with json set, as
// NDJSON for another program.
type printer struct {
	w    io.Writer
	json bool
	// render buffers the answer and prints it as markdown at the end.
	render bool
	width  int
}

// print drains seq. It returns the first error event as an error so the
// command exits non-zero.
func (p *printer) print(seq iter.Seq[events.Event]) error {
	if p.json {
		return p.printJSON(seq)
	}

	var answer strings.Builder
	var failure error
	for ev := range seq {
		switch ev.Type {
		case events.KindStatus:
			fmt.Fprint(p.w, styleStatus(ev.Content))
		case events.KindChunk:
			if p.render {
				answer.WriteString(ev.Content)
			} else {
				fmt.Fprint(p.w, ev.Content)
			}
		case events.KindToolResult:
			if p.render {
				answer.WriteString("\n```\n" + trimToolDelimiters(ev.Content) + "\n```\n")
			} else {
				fmt.Fprint(p.w, toolStyle.Render(ev.Content))
			}
		case events.KindResult:
			fmt.Fprintln(p.w, headingStyle.Render(fmt.Sprintf("%d file(s) selected", len(ev.Files))))
			for _, f := range ev.Files {
				fmt.Fprintln(p.w, "  "+f)
			}
		case events.KindError:
			failure = errors.New(ev.Content)
		}
	}

	if p.render && answer.Len() > 0 {
		out, err := renderMarkdown(answer.String(), p.width)
		if err != nil {
			// Unrendered text is still the answer.
			out = answer.String()
		}
		fmt.Fprint(p.w, out)
	}
	if !p.render {
		fmt.Fprintln(p.w)
	}
	return failure
}

func (p *printer) printJSON(seq iter.Seq[events.Event]) error {
	w := events.NewNDJSONWriter(p.w)
	var failure error
	for ev := range seq {
		if err := w.Write(ev); err != nil {
			return err
		}
		if ev.Type == events.KindError {
			failure = errors.New(ev.Content)
		}
	}
	return failure
}

// styleStatus colors the change markers of scan lines and dims the rest.
func styleStatus(s string) string {
	lines := strings.SplitAfter(s, "\n")
	var sb strings.Builder
	for _, line := range lines {
		body, nl := strings.CutSuffix(line, "\n")
		switch {
		case body == "":
		case strings.Contains(body, "[N]") || strings.Contains(body, "[M]"):
			body = changedStyle.Render(body)
		case strings.Contains(body, "[✓]"):
			body = unchangedStyle.Render(body)
		case strings.HasPrefix(body, "Warning:") || strings.Contains(body, "Error in selection"):
			body = errorStyle.Render(body)
		default:
			body = statusStyle.Render(body)
		}
		sb.WriteString(body)
		if nl {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func trimToolDelimiters(s string) string {
	s = strings.TrimPrefix(s, events.ToolResultOpen)
	s = strings.TrimSuffix(s, events.ToolResultClose)
	return s
}

func renderMarkdown(md string, width int) (string, error) {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("ascii"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}
