package workspace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// MetaDir is the per-workspace directory wand owns.
const MetaDir = ".wand"

// IndexFile is the name of the persisted index inside MetaDir.
const IndexFile = "workspace_index.json"

// Entry is the cached summary of one file. Hash and Description always
// describe the same content; they are replaced together.
type Entry struct {
	Hash        string `json:"hash"`
	Description string `json:"description"`
	Path        string `json:"path"`
}

// Index maps a workspace-relative path to its cached entry.
type Index map[string]Entry

// IndexPath returns the location of the index for a workspace root.
func IndexPath(root string) string {
	return filepath.Join(root, MetaDir, IndexFile)
}

// LoadIndex reads an index. A missing file yields an empty index. A corrupt
// file also yields an empty index together with a *CorruptIndexError so the
// caller can warn and carry on.
func LoadIndex(path string) (Index, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Index{}, nil
	}
	if err != nil {
		return Index{}, fmt.Errorf("read index: %w", err)
	}
	idx := Index{}
	if err := json.Unmarshal(data, &idx); err != nil {
		return Index{}, &CorruptIndexError{Path: path, Err: err}
	}
	return idx, nil
}

// CorruptIndexError reports an index file that could not be decoded.
type CorruptIndexError struct {
	Path string
	Err  error
}

func (e *CorruptIndexError) Error() string {
	return fmt.Sprintf("corrupt index %s: %v", e.Path, e.Err)
}

func (e *CorruptIndexError) Unwrap() error { return e.Err }

// Save writes the index as indented JSON. The file is replaced atomically so
// a crash never leaves a half-written index behind.
func (idx Index) Save(path string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(idx); err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, IndexFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("save index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	return nil
}
