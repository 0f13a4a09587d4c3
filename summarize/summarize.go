// Package summarize produces the short per-file descriptions stored in the
// workspace index.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/martinemde/wand/logging"
	"github.com/martinemde/wand/unifiedllm"
)

// MaxContentChars bounds how much file content is sent for summarization.
const MaxContentChars = 50000

// DocumentPolicy decides what happens when a structured document (PDF) cannot
// be parsed.
type DocumentPolicy int

const (
	// DescribeFailure stores "<metadata> PDF document (read error: ...)"
	// without calling the model.
	DescribeFailure DocumentPolicy = iota
	// DocumentFilenameOnly summarizes from the file name alone.
	DocumentFilenameOnly
)

// CompletionPolicy decides what is stored when the summary request fails.
type CompletionPolicy int

const (
	// ReportError stores "Error: <message>".
	ReportError CompletionPolicy = iota
	// MetadataOnly stores just the metadata bracket.
	MetadataOnly
)

// Policy groups the fallbacks used when a step fails. The zero value is
// the default behavior. Unreadable text files are always summarized from
// their name.
type Policy struct {
	OnDocumentFailure   DocumentPolicy
	OnCompletionFailure CompletionPolicy
}

// Summarizer describes files with a fast completion model.
type Summarizer struct {
	Completer   unifiedllm.Completer
	Model       string
	Temperature float64
	Policy      Policy
	Logger      *slog.Logger
}

// New creates a Summarizer with the default policy.
func New(c unifiedllm.Completer, model string, temperature float64, logger *slog.Logger) *Summarizer {
	return &Summarizer{Completer: c, Model: model, Temperature: temperature, Logger: logging.OrDiscard(logger)}
}

// Summarize returns "<metadata> <summary>". It never fails: every problem
// ends up described in the returned text.
func (s *Summarizer) Summarize(ctx context.Context, path string) string {
	logger := logging.OrDiscard(s.Logger)
	meta := Metadata(path)
	name := filepath.Base(path)

	kind := Classify(path)
	content, err := ReadContent(path, kind)
	if err != nil {
		switch kind {
		case KindPDF:
			logger.Warn("pdf extraction failed", "path", path, "error", err)
			if s.Policy.OnDocumentFailure == DescribeFailure {
				return fmt.Sprintf("%s PDF document (read error: %v)", meta, err)
			}
			kind = KindBinary
		case KindHTML:
			logger.Debug("readability failed, reading raw html", "path", path, "error", err)
			if content, err = ReadText(path); err != nil {
				kind = KindBinary
			} else {
				kind = KindText
			}
		default:
			logger.Warn("file unreadable, summarizing from name", "path", path, "error", err)
			kind = KindBinary
		}
	}

	prompt := filenamePrompt(name)
	if kind != KindBinary {
		prompt = contentPrompt(name, Truncate(content, MaxContentChars))
	}
	logger.Debug("summary prompt", "path", path, "kind", kind.String(), "chars", len(prompt))

	summary, err := unifiedllm.GenerateText(ctx, s.Completer, s.Model,
		[]unifiedllm.Message{unifiedllm.UserMessage(prompt)}, s.Temperature)
	if err != nil {
		logger.Warn("summary request failed", "path", path, "error", err)
		if s.Policy.OnCompletionFailure == MetadataOnly {
			return meta
		}
		return "Error: " + err.Error()
	}
	return meta + " " + summary
}

func contentPrompt(name, content string) string {
	return "Summarize the topics, functional areas or kinds of knowledge this file contains. Note:\n" +
		"1. Do not list specific values, code details or detailed content.\n" +
		"2. Describe what kind of things are in the file, not what the content says.\n" +
		"3. Keep the summary brief so it can be used to find the file by topic later.\n\n" +
		"File name: " + name + "\n\nFile content:\n" + content
}

func filenamePrompt(name string) string {
	return "This is a non-text file (binary, image or unreadable). Guess its purpose from the file name only. File name: " + name
}
