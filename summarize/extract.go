package summarize

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"github.com/gogs/chardet"
	"github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding/htmlindex"
)

// TruncationMarker is appended to content cut at the character limit.
const TruncationMarker = "\n...[content truncated]..."

// Truncate cuts s to at most limit characters (not bytes) and appends the
// marker when anything was removed.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + TruncationMarker
		}
		n++
	}
	return s
}

// ReadText reads a file as text. UTF-8 is assumed and invalid sequences
// become U+FFFD; only data that is mostly not UTF-8 goes through charset
// detection.
func ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return DecodeText(data), nil
}

// DecodeText converts bytes to a UTF-8 string.
func DecodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	if mostlyInvalidUTF8(data) {
		res, err := chardet.NewTextDetector().DetectBest(data)
		if err == nil && res != nil && !strings.EqualFold(res.Charset, "UTF-8") {
			if enc, err := htmlindex.Get(res.Charset); err == nil {
				if out, err := enc.NewDecoder().Bytes(data); err == nil {
					return string(out)
				}
			}
		}
	}
	return strings.ToValidUTF8(string(data), "\uFFFD")
}

// mostlyInvalidUTF8 reports whether more than half of the non-ASCII bytes
// fail to decode as UTF-8. ASCII reads the same in every supported charset.
func mostlyInvalidUTF8(data []byte) bool {
	var high, bad int
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if data[0] >= utf8.RuneSelf {
			high += size
			if r == utf8.RuneError && size == 1 {
				bad++
			}
		}
		data = data[size:]
	}
	return bad*2 > high
}

// ReadPDF extracts the plain text of every page, one page per line block.
func ReadPDF(path string) (text string, err error) {
	// The pdf reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, content)
	}
	return strings.Join(pages, "\n"), nil
}

// ReadHTML extracts the readable article text of an HTML file, prefixed by
// its title when one is found.
func ReadHTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	article, err := readability.FromReader(f, &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(article.TextContent)
	if article.Title != "" {
		text = article.Title + "\n\n" + text
	}
	return text, nil
}

// ReadContent reads a file according to its kind. Binary files yield no
// content and no error.
func ReadContent(path string, kind Kind) (string, error) {
	switch kind {
	case KindPDF:
		return ReadPDF(path)
	case KindHTML:
		return ReadHTML(path)
	case KindText:
		return ReadText(path)
	default:
		return "", nil
	}
}
