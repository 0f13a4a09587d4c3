package pipeline

import (
	"path/filepath"
	"strings"
)

// Models names the models a chat may be routed to.
type Models struct {
	Text       string
	Multimodal string
}

// Fallback model names used when Models leaves a field empty.
const (
	DefaultTextModel       = "gpt-4"
	DefaultMultimodalModel = "gpt-4-vision-preview"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// ChooseModel picks the multimodal model when any selected file is an
// image, and the text model otherwise.
func ChooseModel(files []string, m Models) string {
	for _, f := range files {
		if imageExtensions[strings.ToLower(filepath.Ext(f))] {
			if m.Multimodal != "" {
				return m.Multimodal
			}
			return DefaultMultimodalModel
		}
	}
	if m.Text != "" {
		return m.Text
	}
	return DefaultTextModel
}
