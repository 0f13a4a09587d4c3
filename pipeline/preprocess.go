// Package pipeline chains the workspace index, the selector and the agent
// into the two operations hosts call: file selection and chat.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"

	"github.com/martinemde/wand/events"
	"github.com/martinemde/wand/logging"
	"github.com/martinemde/wand/selector"
	"github.com/martinemde/wand/workspace"
)

// ErrStopped is returned when the event consumer stopped listening.
var ErrStopped = errors.New("preprocessing stopped by caller")

// Request describes one file selection.
type Request struct {
	WorkspacePath string   `json:"workspacePath,omitempty"`
	Query         string   `json:"query"`
	Files         []string `json:"files,omitempty"`
}

// Preprocessor brings the workspace index up to date and selects the files
// relevant to a query.
type Preprocessor struct {
	Scanner    *workspace.Scanner
	Reconciler *workspace.Reconciler
	Selector   *selector.Selector
	Format     Formatter
	Logger     *slog.Logger
}

// NewPreprocessor creates a Preprocessor that reports in HTMLFormat.
func NewPreprocessor(scanner *workspace.Scanner, reconciler *workspace.Reconciler, sel *selector.Selector, logger *slog.Logger) *Preprocessor {
	return &Preprocessor{
		Scanner:    scanner,
		Reconciler: reconciler,
		Selector:   sel,
		Format:     HTMLFormat{},
		Logger:     logging.OrDiscard(logger),
	}
}

// WhichFiles runs a selection as an event sequence. It always ends with a
// result event unless the run was cancelled or abandoned.
func (p *Preprocessor) WhichFiles(ctx context.Context, req Request) iter.Seq[events.Event] {
	return events.Seq(func(emit events.Sink) error {
		_, err := p.Select(ctx, req, emit)
		return err
	})
}

// Select is WhichFiles in callback form. It returns the selected paths,
// which are also delivered in the final result event.
//
// Explicit files win over scanning WorkspacePath. When WorkspacePath is set
// the index is loaded from and saved to the workspace; otherwise an
// in-memory index is used. With neither files nor a workspace the result is
// empty and no work is done.
func (p *Preprocessor) Select(ctx context.Context, req Request, emit events.Sink) ([]string, error) {
	em := events.NewEmitter(emit)
	logger := logging.OrDiscard(p.Logger)
	format := p.format()
	root := req.WorkspacePath

	files := req.Files
	if len(files) == 0 {
		if root == "" {
			return p.finish(em, []string{})
		}
		scanned, err := p.scan(root)
		if err != nil {
			logger.Warn("workspace scan failed", "root", root, "error", err)
			if !em.Status(format.Warning(err.Error())) {
				return nil, ErrStopped
			}
			return p.finish(em, []string{})
		}
		files = scanned
	}

	idx := workspace.Index{}
	indexPath := ""
	if root != "" {
		indexPath = workspace.IndexPath(root)
		loaded, err := workspace.LoadIndex(indexPath)
		if err != nil {
			logger.Warn("index not loaded, starting empty", "path", indexPath, "error", err)
			if !em.Status(format.Warning("ignoring index: " + err.Error())) {
				return nil, ErrStopped
			}
		}
		idx = loaded
	}

	if !em.Status(format.ScanOpen()) {
		return nil, ErrStopped
	}
	entries, err := p.Reconciler.Reconcile(ctx, root, files, idx, func(st workspace.FileStatus) bool {
		return em.Status(format.FileLine(st))
	})
	if err != nil {
		// Entries are replaced whole, so the partial index is still valid.
		p.save(idx, indexPath)
		if errors.Is(err, workspace.ErrStopped) {
			return nil, ErrStopped
		}
		return nil, err
	}
	if !em.Status(format.ScanClose()) {
		p.save(idx, indexPath)
		return nil, ErrStopped
	}
	if saveErr := p.save(idx, indexPath); saveErr != nil {
		if !em.Status(format.Warning("Failed to save cache: " + saveErr.Error())) {
			return nil, ErrStopped
		}
	}

	if !em.Status(format.SelectOpen()) {
		return nil, ErrStopped
	}
	selected, err := p.Selector.Select(ctx, req.Query, entries, em.Emit)
	if errors.Is(err, selector.ErrStopped) {
		return nil, ErrStopped
	}
	if err != nil {
		return nil, err
	}
	if !em.Status(format.SelectClose()) || !em.Status(format.SelectedList(selected)) {
		return nil, ErrStopped
	}
	return p.finish(em, selected)
}

func (p *Preprocessor) scan(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("workspace %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace %s is not a directory", root)
	}
	scanner := p.Scanner
	if scanner == nil {
		scanner = workspace.NewScanner()
	}
	return scanner.Scan(root)
}

func (p *Preprocessor) save(idx workspace.Index, path string) error {
	if path == "" {
		return nil
	}
	err := idx.Save(path)
	if err != nil {
		logging.OrDiscard(p.Logger).Warn("index save failed", "path", path, "error", err)
	}
	return err
}

func (p *Preprocessor) finish(em *events.Emitter, files []string) ([]string, error) {
	if !em.Emit(events.Result(files)) {
		return nil, ErrStopped
	}
	return files, nil
}

func (p *Preprocessor) format() Formatter {
	if p.Format == nil {
		return HTMLFormat{}
	}
	return p.Format
}
