package summarize

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Kind is the content class of a file as far as summarization cares.
type Kind int

const (
	KindText Kind = iota
	KindPDF
	KindHTML
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindHTML:
		return "html"
	case KindBinary:
		return "binary"
	default:
		return "text"
	}
}

// textExtensions are read as text without sniffing.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".py": true, ".js": true, ".ts": true, ".jsx": true,
	".tsx": true, ".css": true, ".json": true, ".xml": true, ".yaml": true, ".yml": true,
	".ini": true, ".conf": true, ".sh": true, ".bat": true, ".ps1": true, ".c": true,
	".cpp": true, ".h": true, ".java": true, ".cs": true, ".go": true, ".rs": true,
	".php": true, ".rb": true, ".lua": true, ".sql": true, ".log": true,
}

// sniffSize is how much of an unknown file is inspected for NUL bytes.
const sniffSize = 4096

// Classify decides how a file is read. Unknown extensions are sniffed: a NUL
// byte in the first 4096 bytes means binary. A file that cannot be opened is
// binary, so only its name is used.
func Classify(path string) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return KindPDF
	case ".html", ".htm":
		return KindHTML
	}
	if textExtensions[ext] {
		return KindText
	}

	f, err := os.Open(path)
	if err != nil {
		return KindBinary
	}
	defer f.Close()

	buf := make([]byte, sniffSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return KindBinary
	}
	if bytes.IndexByte(buf[:n], 0) >= 0 {
		return KindBinary
	}
	return KindText
}
