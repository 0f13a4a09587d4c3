package selector

import (
	"strings"
)

// ReasoningFilter decides which streamed fragments of a selection response
// are shown to the user. Text is forwarded until the accumulated response
// contains a code fence or starts with '['; from then on everything is
// suppressed. The fragment that completes the fence is suppressed whole,
// including any prose before the fence in that fragment.
type ReasoningFilter struct {
	full       strings.Builder
	suppressed bool
}

// Push adds a fragment and returns the HTML-escaped text to show, if any.
func (f *ReasoningFilter) Push(fragment string) (string, bool) {
	f.full.WriteString(fragment)
	if f.suppressed {
		return "", false
	}
	full := f.full.String()
	if strings.Contains(full, "```") || strings.HasPrefix(strings.TrimSpace(full), "[") {
		f.suppressed = true
		return "", false
	}
	return escapeHTML(fragment), true
}

// Response returns everything pushed so far.
func (f *ReasoningFilter) Response() string {
	return f.full.String()
}

var htmlEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
