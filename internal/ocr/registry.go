package ocr

import (
	"fmt"
	"strings"
)

// Options configure the backends built by NewBackends.
type Options struct {
	Language    string
	DPI         int
	OCRmyPDFBin string
	PdftoppmBin string
	TempDir     string
	Runner      Runner
}

// NewBackends builds backends by name, in the given order. Names are
// case-insensitive; duplicates are ignored.
func NewBackends(names []string, opts Options) ([]Backend, error) {
	if len(names) == 0 {
		names = DefaultPriority
	}
	runner := opts.Runner
	if runner == nil {
		runner = ExecRunner{}
	}

	seen := make(map[string]bool, len(names))
	backends := make([]Backend, 0, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		switch name {
		case NameOCRmyPDF:
			backends = append(backends, &OCRmyPDF{Bin: opts.OCRmyPDFBin, Language: opts.Language, TempDir: opts.TempDir, Runner: runner})
		case NameTesseract:
			backends = append(backends, &Tesseract{PdftoppmBin: opts.PdftoppmBin, Language: opts.Language, DPI: opts.DPI, TempDir: opts.TempDir, Runner: runner})
		case NameTextLayer:
			backends = append(backends, TextLayer{})
		default:
			return nil, fmt.Errorf("unknown ocr backend %q", raw)
		}
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("no ocr backends configured")
	}
	return backends, nil
}
