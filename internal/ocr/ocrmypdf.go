package ocr

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// OCRmyPDF re-OCRs the document with ocrmypdf and reads the resulting text layer.
type OCRmyPDF struct {
	Bin      string
	Language string
	TempDir  string
	Runner   Runner
}

func (o *OCRmyPDF) Name() string { return NameOCRmyPDF }

func (o *OCRmyPDF) Extract(ctx context.Context, path string) (string, error) {
	tmpDir, err := os.MkdirTemp(o.TempDir, "ocrmypdf-*")
	if err != nil {
		return "", &BackendError{Backend: NameOCRmyPDF, Reason: "create temp dir", Err: err}
	}
	defer os.RemoveAll(tmpDir)

	out := filepath.Join(tmpDir, "ocr_"+filepath.Base(path))
	_, stderr, err := o.runner().Run(ctx, o.bin(), o.args(path, out)...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", execFailure(NameOCRmyPDF, o.bin(), stderr, err)
	}

	pages, err := readTextLayer(out)
	if err != nil {
		return "", &BackendError{Backend: NameOCRmyPDF, Reason: "read ocr output", Err: err}
	}
	text := formatPages(pages)
	if strings.TrimSpace(text) == "" {
		return "", &BackendError{Backend: NameOCRmyPDF, Reason: "empty output"}
	}
	return text, nil
}

func (o *OCRmyPDF) args(in, out string) []string {
	lang := o.Language
	if lang == "" {
		lang = "eng"
	}
	return []string{
		in, out,
		"--output-type", "pdf",
		"--force-ocr",
		"--optimize", "0",
		"--language", lang,
		"--tesseract-oem", "3",
		"--tesseract-pagesegmode", "1",
		"--tesseract-thresholding", "adaptive-otsu",
		"--tesseract-timeout", strconv.Itoa(300),
	}
}

func (o *OCRmyPDF) bin() string {
	if o.Bin == "" {
		return "ocrmypdf"
	}
	return o.Bin
}

func (o *OCRmyPDF) runner() Runner {
	if o.Runner == nil {
		return ExecRunner{}
	}
	return o.Runner
}
