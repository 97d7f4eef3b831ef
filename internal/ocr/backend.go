package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Backend names.
const (
	NameOCRmyPDF  = "ocrmypdf"
	NameTesseract = "tesseract"
	NameTextLayer = "textlayer"
)

// DefaultPriority orders backends for tie-breaks.
var DefaultPriority = []string{NameOCRmyPDF, NameTesseract, NameTextLayer}

// Backend extracts text from a PDF on disk.
type Backend interface {
	Name() string
	Extract(ctx context.Context, path string) (string, error)
}

// Outcome is the result of one backend run. Text is only meaningful when Err is nil.
type Outcome struct {
	Backend  string
	Text     string
	Err      error
	Duration time.Duration
}

// Succeeded reports whether the backend produced text.
func (o Outcome) Succeeded() bool { return o.Err == nil }

// formatPages joins page texts as "--- PAGE n ---" sections, skipping blank pages.
// Page numbers stay 1-based relative to the input slice.
func formatPages(pages []string) string {
	var b strings.Builder
	for i, p := range pages {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		fmt.Fprintf(&b, "--- PAGE %d ---\n%s\n\n", i+1, p)
	}
	return b.String()
}
