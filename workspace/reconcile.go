package workspace

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/martinemde/wand/logging"
)

// Summarizer produces a description for a file. It never fails; problems
// are described in the returned text.
type Summarizer interface {
	Summarize(ctx context.Context, path string) string
}

// Change classifies a file relative to the cached index.
type Change string

const (
	ChangeNew       Change = "new"
	ChangeModified  Change = "modified"
	ChangeUnchanged Change = "unchanged"
)

// Mark is the short status marker shown in progress output.
func (c Change) Mark() string {
	switch c {
	case ChangeNew:
		return "[N]"
	case ChangeModified:
		return "[M]"
	default:
		return "[✓]"
	}
}

// FileStatus is reported once per reconciled file, in scan order.
type FileStatus struct {
	Path   string `json:"path"`
	Key    string `json:"key"`
	Name   string `json:"name"`
	Depth  int    `json:"depth"`
	Change Change `json:"change"`
}

// Line renders the status as an indented tree line.
func (s FileStatus) Line() string {
	return strings.Repeat("  ", s.Depth) + s.Change.Mark() + " " + s.Name
}

// Selectable pairs a file with the description offered to the selector.
type Selectable struct {
	Path        string
	Description string
}

// ErrStopped is returned when the status consumer stopped listening.
var ErrStopped = errors.New("reconcile stopped by caller")

// Reconciler brings an Index up to date with the files on disk.
type Reconciler struct {
	Summarizer Summarizer
	MaxFiles   int
	Logger     *slog.Logger
}

// NewReconciler creates a Reconciler with the default file cap.
func NewReconciler(s Summarizer, logger *slog.Logger) *Reconciler {
	return &Reconciler{Summarizer: s, MaxFiles: DefaultMaxFiles, Logger: logging.OrDiscard(logger)}
}

// Reconcile sorts files, keeps the first MaxFiles, and for each one compares
// its digest with the index. New or changed files are summarized and their
// entry replaced; unchanged files keep their cached description. report is
// called once per file before any summarization work for it; returning false
// stops the run with ErrStopped.
//
// A file whose digest cannot be computed is always treated as changed. If
// ctx ends while a file is being summarized, its previous entry is kept.
func (r *Reconciler) Reconcile(ctx context.Context, root string, files []string, idx Index, report func(FileStatus) bool) ([]Selectable, error) {
	logger := logging.OrDiscard(r.Logger)
	limit := r.MaxFiles
	if limit <= 0 {
		limit = DefaultMaxFiles
	}

	ordered := make([]string, len(files))
	copy(ordered, files)
	sort.Strings(ordered)
	if len(ordered) > limit {
		logger.Info("file cap reached", "found", len(ordered), "kept", limit)
		ordered = ordered[:limit]
	}

	out := make([]Selectable, 0, len(ordered))
	for _, path := range ordered {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		key := RelativeKey(root, path)
		hash, hashErr := HashFile(path)
		if hashErr != nil {
			logger.Warn("digest failed, treating file as changed", "path", path, "error", hashErr)
		}

		entry, cached := idx[key]
		change := ChangeUnchanged
		switch {
		case !cached:
			change = ChangeNew
		case hashErr != nil || entry.Hash != hash:
			change = ChangeModified
		}

		status := FileStatus{
			Path:   path,
			Key:    key,
			Name:   filepath.Base(path),
			Depth:  Depth(key),
			Change: change,
		}
		if report != nil && !report(status) {
			return out, ErrStopped
		}

		if change != ChangeUnchanged {
			desc := r.Summarizer.Summarize(ctx, path)
			// A cancelled summary describes the cancellation, not the file.
			if err := ctx.Err(); err != nil {
				return out, err
			}
			entry = Entry{Hash: hash, Description: desc, Path: path}
			idx[key] = entry
		}
		out = append(out, Selectable{Path: path, Description: entry.Description})
	}
	return out, nil
}
