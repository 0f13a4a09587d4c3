package agentloop

import (
	"fmt"
	"strings"

	"github.com/martinemde/wand/summarize"
)

// DefaultContextFileChars limits each file in a context listing.
const DefaultContextFileChars = 20000

const contextTruncatedMarker = "\n...[truncated]..."

// BuildContextListing reads the given files into "--- File: path ---"
// sections. Each file is cut to limit characters; unreadable files are
// listed with the error instead of their content.
func BuildContextListing(paths []string, limit int) string {
	if limit <= 0 {
		limit = DefaultContextFileChars
	}
	var sb strings.Builder
	for _, p := range paths {
		content := readContextFile(p)
		if r := []rune(content); len(r) > limit {
			content = string(r[:limit]) + contextTruncatedMarker
		}
		fmt.Fprintf(&sb, "\n--- File: %s ---\n%s\n", p, content)
	}
	return sb.String()
}

func readContextFile(p string) string {
	if summarize.Classify(p) == summarize.KindPDF {
		text, err := summarize.ReadPDF(p)
		if err != nil {
			return fmt.Sprintf("[Error reading PDF: %v]", err)
		}
		return text
	}
	text, err := summarize.ReadText(p)
	if err != nil {
		return fmt.Sprintf("[Error reading file: %v]", err)
	}
	return text
}
