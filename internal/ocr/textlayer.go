package ocr

import (
	"context"
	"strings"
)

// TextLayer reads the text already embedded in the PDF.
type TextLayer struct{}

func (TextLayer) Name() string { return NameTextLayer }

func (TextLayer) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	pages, err := readTextLayer(path)
	if err != nil {
		return "", &BackendError{Backend: NameTextLayer, Reason: "read text layer", Err: err}
	}
	text := formatPages(pages)
	if strings.TrimSpace(text) == "" {
		return "", &BackendError{Backend: NameTextLayer, Reason: "no embedded text"}
	}
	return text, nil
}
