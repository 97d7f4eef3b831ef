package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// PageRecognizer turns one page image (PNG bytes) into text.
type PageRecognizer func(ctx context.Context, image []byte, lang string) (string, error)

// Tesseract renders pages with pdftoppm, enhances them and recognizes each with tesseract.
type Tesseract struct {
	PdftoppmBin string
	Language    string
	DPI         int
	TempDir     string
	Runner      Runner
	Recognize   PageRecognizer
}

func (t *Tesseract) Name() string { return NameTesseract }

func (t *Tesseract) Extract(ctx context.Context, path string) (string, error) {
	tmpDir, err := os.MkdirTemp(t.TempDir, "tesseract-*")
	if err != nil {
		return "", &BackendError{Backend: NameTesseract, Reason: "create temp dir", Err: err}
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	bin := t.PdftoppmBin
	if bin == "" {
		bin = "pdftoppm"
	}
	runner := t.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	// pdftoppm -r <dpi> -png <in.pdf> <tmp/page>
	_, stderr, err := runner.Run(ctx, bin, "-r", strconv.Itoa(t.dpi()), "-png", path, prefix)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", execFailure(NameTesseract, bin, stderr, err)
	}

	images, _ := filepath.Glob(prefix + "-*.png")
	if len(images) == 0 {
		return "", &BackendError{Backend: NameTesseract, Reason: "pdftoppm produced no images"}
	}
	sortPageImages(images)

	recognize := t.Recognize
	if recognize == nil {
		recognize = recognizeWithGosseract
	}
	lang := t.Language
	if lang == "" {
		lang = "eng"
	}

	pages := make([]string, 0, len(images))
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		enhanced, err := enhancePage(img)
		if err != nil {
			return "", &BackendError{Backend: NameTesseract, Reason: "prepare page image", Err: err}
		}
		text, err := recognize(ctx, enhanced, lang)
		if err != nil {
			return "", &BackendError{Backend: NameTesseract, Reason: "recognize page", Err: err}
		}
		pages = append(pages, text)
	}

	text := formatPages(pages)
	if strings.TrimSpace(text) == "" {
		return "", &BackendError{Backend: NameTesseract, Reason: "empty output"}
	}
	return text, nil
}

func (t *Tesseract) dpi() int {
	if t.DPI <= 0 {
		return 180
	}
	return t.DPI
}

// enhancePage converts a rendered page to grayscale and boosts contrast.
func enhancePage(path string) ([]byte, error) {
	src, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	img := imaging.AdjustContrast(imaging.Grayscale(src), 50)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}

func recognizeWithGosseract(ctx context.Context, image []byte, lang string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c := gosseract.NewClient()
	defer c.Close()
	if err := c.SetLanguage(lang); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	if err := c.SetPageSegMode(gosseract.PSM_AUTO_OSD); err != nil {
		return "", fmt.Errorf("set page seg mode: %w", err)
	}
	if err := c.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return text, nil
}

// sortPageImages orders page-1.png, page-2.png, ..., page-10.png numerically.
// pdftoppm zero-pads only when the page count needs it.
func sortPageImages(paths []string) {
	num := func(p string) int {
		base := strings.TrimSuffix(filepath.Base(p), ".png")
		i := strings.LastIndexByte(base, '-')
		n, err := strconv.Atoi(base[i+1:])
		if err != nil {
			return 0
		}
		return n
	}
	sort.SliceStable(paths, func(i, j int) bool { return num(paths[i]) < num(paths[j]) })
}
