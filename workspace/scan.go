package workspace

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultMaxFiles bounds how many files one reconciliation considers.
const DefaultMaxFiles = 20

// DefaultIgnoreDirs returns the directory names skipped while scanning.
func DefaultIgnoreDirs() []string {
	return []string{".git", "node_modules", "__pycache__", ".vscode", "dist", "build", "coverage", MetaDir}
}

// Scanner enumerates candidate files below a workspace root.
type Scanner struct {
	IgnoreDirs []string
}

// NewScanner creates a Scanner with the default ignore list.
func NewScanner() *Scanner {
	return &Scanner{IgnoreDirs: DefaultIgnoreDirs()}
}

// Scan returns every regular file below root in lexicographic order of path.
// Ignored directories are not descended into and dot-files are skipped.
// Unreadable subdirectories are skipped rather than failing the scan.
func (s *Scanner) Scan(root string) ([]string, error) {
	ignore := make(map[string]bool, len(s.IgnoreDirs))
	for _, d := range s.IgnoreDirs {
		ignore[d] = true
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && ignore[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !d.Type().IsRegular() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// RelativeKey returns the index key of path: the path relative to root when
// path lies inside root, otherwise the path itself.
func RelativeKey(root, path string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return filepath.ToSlash(rel)
}

// Depth is the number of directories between the root and the file.
func Depth(key string) int {
	if filepath.IsAbs(key) {
		return 0
	}
	return strings.Count(filepath.ToSlash(key), "/")
}
