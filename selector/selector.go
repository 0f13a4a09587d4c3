// Package selector asks a model which of a set of described files are
// relevant to a query.
package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/martinemde/wand/events"
	"github.com/martinemde/wand/logging"
	"github.com/martinemde/wand/unifiedllm"
	"github.com/martinemde/wand/workspace"
)

// DefaultFallbackCount is how many leading entries are selected when the
// model's answer cannot be used.
const DefaultFallbackCount = 5

// ErrStopped is returned when the event consumer stopped listening.
var ErrStopped = errors.New("selection stopped by caller")

// Selector streams a selection request and parses the chosen indices.
type Selector struct {
	Completer     unifiedllm.Completer
	Model         string
	Temperature   float64
	FallbackCount int
	Logger        *slog.Logger
}

// New creates a Selector with the default fallback size.
func New(c unifiedllm.Completer, model string, temperature float64, logger *slog.Logger) *Selector {
	return &Selector{
		Completer:     c,
		Model:         model,
		Temperature:   temperature,
		FallbackCount: DefaultFallbackCount,
		Logger:        logging.OrDiscard(logger),
	}
}

// Select returns the paths of the relevant entries in the order the model
// listed them. The model's reasoning is forwarded to emit as status events
// while it streams. If the request or the parse fails, an "Error in
// selection" status is emitted and the first FallbackCount entries are
// returned instead. With no entries, no request is made.
//
// The only errors returned are cancellation and ErrStopped.
func (s *Selector) Select(ctx context.Context, query string, entries []workspace.Selectable, emit events.Sink) ([]string, error) {
	if len(entries) == 0 {
		return []string{}, nil
	}
	if emit == nil {
		emit = events.Discard
	}
	logger := logging.OrDiscard(s.Logger)

	prompt := Prompt(query, entries)
	logger.Debug("selection prompt", "prompt", prompt)

	indices, err := s.request(ctx, prompt, len(entries), emit)
	if errors.Is(err, ErrStopped) {
		return nil, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		logger.Warn("selection failed, using fallback", "error", err)
		if !emit(events.Status("\nError in selection: " + err.Error() + "\n")) {
			return nil, ErrStopped
		}
		return s.fallback(entries), nil
	}

	files := make([]string, 0, len(indices))
	for _, i := range indices {
		files = append(files, entries[i].Path)
	}
	return files, nil
}

func (s *Selector) request(ctx context.Context, prompt string, n int, emit events.Sink) ([]int, error) {
	stream, err := unifiedllm.StreamText(ctx, s.Completer, s.Model,
		[]unifiedllm.Message{unifiedllm.UserMessage(prompt)}, s.Temperature)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var filter ReasoningFilter
	for stream.Next() {
		if text, ok := filter.Push(stream.Fragment()); ok {
			if !emit(events.Status(text)) {
				return nil, ErrStopped
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	logging.OrDiscard(s.Logger).Debug("selection response", "response", filter.Response())
	return ParseIndices(filter.Response(), n)
}

func (s *Selector) fallback(entries []workspace.Selectable) []string {
	n := s.FallbackCount
	if n <= 0 {
		n = DefaultFallbackCount
	}
	if n > len(entries) {
		n = len(entries)
	}
	files := make([]string, 0, n)
	for _, e := range entries[:n] {
		files = append(files, e.Path)
	}
	return files
}

// Prompt builds the selection request. Entries are numbered from zero and
// shown by base name.
func Prompt(query string, entries []workspace.Selectable) string {
	var list strings.Builder
	for i, e := range entries {
		if i > 0 {
			list.WriteString("\n")
		}
		fmt.Fprintf(&list, "%d. %s: %s", i, filepath.Base(e.Path), e.Description)
	}

	return fmt.Sprintf(`
User Query: "%s"

Available Files:
%s

Task: Select the files that are most relevant to answering the user's query.
1. Explain your reasoning for selecting specific files in 1-2 sentences.
2. Provide the JSON array of the INDICES (integers) of the files.

IMPORTANT:
- DO NOT answer the user's query directly.
- ONLY provide the reasoning and the file indices.

Example Output:
I selected file A because it contains the definition of the class mentioned in the query.
`+"```json\n[0, 2]\n```\n", query, list.String())
}
