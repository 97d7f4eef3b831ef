package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	name   string
	args   []string
	stderr []byte
	err    error
	onRun  func(args []string) error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.name = name
	f.args = args
	if f.onRun != nil {
		if err := f.onRun(args); err != nil {
			return nil, nil, err
		}
	}
	return nil, f.stderr, f.err
}

func TestOCRmyPDFPassesToolArguments(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 2"), stderr: []byte("warn\nInputFileError: not a pdf")}
	b := &OCRmyPDF{Language: "eng", TempDir: t.TempDir(), Runner: runner}

	_, err := b.Extract(context.Background(), "/docs/deed.pdf")

	require.Error(t, err)
	assert.Equal(t, "ocrmypdf", runner.name)
	require.GreaterOrEqual(t, len(runner.args), 2)
	assert.Equal(t, "/docs/deed.pdf", runner.args[0])
	assert.Equal(t, []string{
		"--output-type", "pdf", "--force-ocr", "--optimize", "0", "--language", "eng",
		"--tesseract-oem", "3", "--tesseract-pagesegmode", "1",
		"--tesseract-thresholding", "adaptive-otsu", "--tesseract-timeout", "300",
	}, runner.args[2:])

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, NameOCRmyPDF, be.Backend)
	assert.Contains(t, be.Reason, "InputFileError: not a pdf")
}

func TestOCRmyPDFMissingTool(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("ocrmypdf: %w", ErrToolMissing)}
	b := &OCRmyPDF{TempDir: t.TempDir(), Runner: runner}

	_, err := b.Extract(context.Background(), "deed.pdf")

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Contains(t, be.Reason, "not installed")
	assert.ErrorIs(t, err, ErrToolMissing)
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 180, B: 160, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestTesseractRecognizesPagesInOrder(t *testing.T) {
	runner := &fakeRunner{onRun: func(args []string) error {
		prefix := args[len(args)-1]
		for _, n := range []int{1, 2, 10} {
			writePNG(t, fmt.Sprintf("%s-%d.png", prefix, n))
		}
		return nil
	}}
	var calls int
	b := &Tesseract{
		DPI:     180,
		TempDir: t.TempDir(),
		Runner:  runner,
		Recognize: func(ctx context.Context, img []byte, lang string) (string, error) {
			calls++
			assert.Equal(t, "eng", lang)
			assert.NotEmpty(t, img)
			if calls == 2 {
				return "   ", nil
			}
			return fmt.Sprintf("text %d", calls), nil
		},
	}

	text, err := b.Extract(context.Background(), "deed.pdf")

	require.NoError(t, err)
	assert.Equal(t, "pdftoppm", runner.name)
	assert.Equal(t, []string{"-r", "180", "-png", "deed.pdf"}, runner.args[:4])
	assert.Equal(t, "--- PAGE 1 ---\ntext 1\n\n--- PAGE 3 ---\ntext 3\n\n", text)
}

func TestTesseractNoImages(t *testing.T) {
	b := &Tesseract{TempDir: t.TempDir(), Runner: &fakeRunner{}}

	_, err := b.Extract(context.Background(), "deed.pdf")

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Contains(t, be.Reason, "no images")
}

func TestTextLayerRejectsUnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf"), 0o644))

	_, err := TextLayer{}.Extract(context.Background(), path)

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, NameTextLayer, be.Backend)
}

func TestNewBackends(t *testing.T) {
	backends, err := NewBackends([]string{"TextLayer", "ocrmypdf", "textlayer"}, Options{})
	require.NoError(t, err)
	require.Len(t, backends, 2)
	assert.Equal(t, NameTextLayer, backends[0].Name())
	assert.Equal(t, NameOCRmyPDF, backends[1].Name())

	_, err = NewBackends([]string{"abbyy"}, Options{})
	assert.Error(t, err)

	defaults, err := NewBackends(nil, Options{})
	require.NoError(t, err)
	assert.Len(t, defaults, 3)
}

func TestAllFailedErrorUnwraps(t *testing.T) {
	inner := &BackendError{Backend: NameTesseract, Reason: "timed out", Timeout: true}
	err := &AllFailedError{Document: "deed.pdf", Failures: []error{inner}}

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Contains(t, err.Error(), "deed.pdf")
}
