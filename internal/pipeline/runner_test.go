package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-analyzer/internal/jobs"
	"property-analyzer/internal/llm"
	"property-analyzer/internal/ocr"
	"property-analyzer/internal/ocr/scoring"
	"property-analyzer/internal/portal"
	local "property-analyzer/internal/shared/storage/object/local"
)

type fakeDownloader struct {
	names []string
	err   error
}

func (f *fakeDownloader) Download(ctx context.Context, query string, limit int, dir string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []string
	for i, n := range f.names {
		if i >= limit {
			break
		}
		p := filepath.Join(dir, portal.DocumentFileName(i+1, query, n))
		if err := os.WriteFile(p, []byte("%PDF-1.4 "+n), 0o644); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

type fakeBackend struct {
	name string
	text string
	err  error
}

func (b fakeBackend) Name() string { return b.name }

func (b fakeBackend) Extract(ctx context.Context, path string) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	return b.text, nil
}

type fakeSummarizer struct {
	mu     sync.Mutex
	inputs []llm.SummaryInput
	err    error
}

func (s *fakeSummarizer) Summarize(ctx context.Context, in llm.SummaryInput) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, in)
	if s.err != nil {
		return "", &llm.SummarizationError{Document: in.DocumentName, Err: s.err}
	}
	return "TITLE EXAMINER'S REPORT\nAmount due: $500", nil
}

// progressRecorder wraps the memory repo and records every progress write.
type progressRecorder struct {
	*jobs.MemoryRepo
	mu       sync.Mutex
	progress []int
}

func (p *progressRecorder) UpdateProgress(ctx context.Context, jobID string, progress int, message string) error {
	if err := p.MemoryRepo.UpdateProgress(ctx, jobID, progress, message); err != nil {
		return err
	}
	job, _ := p.MemoryRepo.GetByID(ctx, jobID)
	p.mu.Lock()
	p.progress = append(p.progress, job.Progress)
	p.mu.Unlock()
	return nil
}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(ctx context.Context, jobID string) error { return nil }

type fixture struct {
	runner     *Runner
	svc        *jobs.Service
	repo       *progressRecorder
	summarizer *fakeSummarizer
}

func newFixture(t *testing.T, dl portal.Downloader, backends ...ocr.Backend) fixture {
	t.Helper()
	repo := &progressRecorder{MemoryRepo: jobs.NewMemoryRepo()}
	store := local.New(t.TempDir())
	svc := &jobs.Service{Repo: repo, Store: store, Dispatcher: noopDispatcher{}}
	sum := &fakeSummarizer{}
	return fixture{
		runner: &Runner{
			Jobs:           svc,
			Downloader:     dl,
			Backends:       backends,
			Summarizer:     sum,
			Store:          store,
			Weights:        scoring.DefaultWeights,
			Priority:       ocr.DefaultPriority,
			BackendTimeout: time.Second,
			WorkDir:        t.TempDir(),
		},
		svc:        svc,
		repo:       repo,
		summarizer: sum,
	}
}

func TestProcessWalkerRanchScenario(t *testing.T) {
	f := newFixture(t,
		&fakeDownloader{names: []string{"Warranty Deed.pdf"}},
		fakeBackend{name: ocr.NameOCRmyPDF, text: "amount due $500"},
		fakeBackend{name: ocr.NameTesseract, text: "amsurit due $500"},
	)
	ctx := context.Background()
	job, err := f.svc.Create(ctx, "TR NBR 910 WALKER RANCH AREA", 1)
	require.NoError(t, err)

	require.NoError(t, f.runner.Process(ctx, job.ID))

	got, err := f.svc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.Len(t, got.Results, 1)
	assert.Equal(t, ocr.NameOCRmyPDF, got.Results[0].Backend)
	assert.Equal(t, "amount due $500", got.Results[0].Text)
	assert.Equal(t, "01_TR_NBR_910_WALKER_RANCH_AREA__Warranty Deed.pdf", got.Results[0].DocumentID)
	require.Len(t, got.Documents, 1)
	assert.Equal(t, jobs.StageDone, got.Documents[0].Stage)

	require.Len(t, f.summarizer.inputs, 1)
	assert.Equal(t, "amount due $500", f.summarizer.inputs[0].Text)

	_, md, err := f.svc.Report(ctx, job.ID)
	require.NoError(t, err)
	assert.Contains(t, md, "TR NBR 910 WALKER RANCH AREA")
	assert.Contains(t, md, "ocrmypdf")

	_, body, err := f.svc.OpenDocument(ctx, job.ID, got.Documents[0].Name)
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	body.Close()
	assert.Equal(t, "%PDF-1.4 Warranty Deed.pdf", string(data))
}

func TestProcessAllOCRFailedSkipsSummarizer(t *testing.T) {
	f := newFixture(t,
		&fakeDownloader{names: []string{"deed.pdf"}},
		fakeBackend{name: ocr.NameOCRmyPDF, err: &ocr.BackendError{Backend: ocr.NameOCRmyPDF, Reason: "exit status 2"}},
		fakeBackend{name: ocr.NameTesseract, err: &ocr.BackendError{Backend: ocr.NameTesseract, Reason: "tool missing", Err: ocr.ErrToolMissing}},
		fakeBackend{name: ocr.NameTextLayer, text: "   "},
	)
	ctx := context.Background()
	job, err := f.svc.Create(ctx, "walker ranch", 1)
	require.NoError(t, err)

	err = f.runner.Process(ctx, job.ID)
	var allFailed *ocr.AllFailedError
	require.ErrorAs(t, err, &allFailed)
	assert.Len(t, allFailed.Failures, 3)
	assert.Empty(t, f.summarizer.inputs)

	got, _ := f.svc.Get(ctx, job.ID)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	assert.Contains(t, got.Message, "Analysis failed")
	require.Len(t, got.Documents, 1)
	assert.Equal(t, jobs.StageFailed, got.Documents[0].Stage)
	assert.NotEmpty(t, got.Documents[0].Error)
}

func TestProcessOneBackendFailingIsAbsorbed(t *testing.T) {
	f := newFixture(t,
		&fakeDownloader{names: []string{"deed.pdf"}},
		fakeBackend{name: ocr.NameOCRmyPDF, err: errors.New("boom")},
		fakeBackend{name: ocr.NameTextLayer, text: "Grantor conveys the property described in the deed"},
	)
	ctx := context.Background()
	job, _ := f.svc.Create(ctx, "walker ranch", 1)

	require.NoError(t, f.runner.Process(ctx, job.ID))
	got, _ := f.svc.Get(ctx, job.ID)
	require.Len(t, got.Results, 1)
	assert.Equal(t, ocr.NameTextLayer, got.Results[0].Backend)
}

func TestProcessDownloadErrorFailsJob(t *testing.T) {
	f := newFixture(t,
		&fakeDownloader{err: &portal.DownloadError{Stage: portal.StageAuth, Err: errors.New("login rejected")}},
		fakeBackend{name: ocr.NameTextLayer, text: "x"},
	)
	ctx := context.Background()
	job, _ := f.svc.Create(ctx, "walker ranch", 1)

	err := f.runner.Process(ctx, job.ID)
	var dlErr *portal.DownloadError
	require.ErrorAs(t, err, &dlErr)

	got, _ := f.svc.Get(ctx, job.ID)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "login rejected")
	assert.Equal(t, 20, got.Progress)
	assert.Empty(t, got.Documents)
}

// pdfRejectingStore fails every PDF write and passes the rest through.
type pdfRejectingStore struct {
	*local.Store
}

func (s pdfRejectingStore) SaveWithKey(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	if contentType == "application/pdf" {
		return 0, errors.New("bucket unavailable")
	}
	return s.Store.SaveWithKey(ctx, key, contentType, r)
}

func TestProcessStoreFailureFailsDocumentInDownloading(t *testing.T) {
	f := newFixture(t,
		&fakeDownloader{names: []string{"deed.pdf"}},
		fakeBackend{name: ocr.NameTextLayer, text: "x"},
	)
	f.runner.Store = pdfRejectingStore{Store: local.New(t.TempDir())}
	ctx := context.Background()
	job, _ := f.svc.Create(ctx, "walker ranch", 1)

	err := f.runner.Process(ctx, job.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unavailable")

	got, _ := f.svc.Get(ctx, job.ID)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	require.Len(t, got.Documents, 1)
	assert.Equal(t, jobs.StageFailed, got.Documents[0].Stage)
	assert.Contains(t, got.Documents[0].Error, "bucket unavailable")
	assert.Empty(t, f.summarizer.inputs)
}

func TestProcessNoDocumentsIsDownloadError(t *testing.T) {
	f := newFixture(t, &fakeDownloader{}, fakeBackend{name: ocr.NameTextLayer, text: "x"})
	ctx := context.Background()
	job, _ := f.svc.Create(ctx, "walker ranch", 1)

	err := f.runner.Process(ctx, job.ID)
	var dlErr *portal.DownloadError
	require.ErrorAs(t, err, &dlErr)
}

func TestProcessSummarizationErrorSurfaces(t *testing.T) {
	f := newFixture(t,
		&fakeDownloader{names: []string{"deed.pdf"}},
		fakeBackend{name: ocr.NameTextLayer, text: "amount due $500"},
	)
	f.summarizer.err = errors.New("status 503")
	ctx := context.Background()
	job, _ := f.svc.Create(ctx, "walker ranch", 1)

	err := f.runner.Process(ctx, job.ID)
	var sumErr *llm.SummarizationError
	require.ErrorAs(t, err, &sumErr)
	assert.Len(t, f.summarizer.inputs, 1)

	got, _ := f.svc.Get(ctx, job.ID)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	assert.Equal(t, jobs.StageFailed, got.Documents[0].Stage)
}

func TestProcessProgressIsMonotonic(t *testing.T) {
	f := newFixture(t,
		&fakeDownloader{names: []string{"a.pdf", "b.pdf", "c.pdf"}},
		fakeBackend{name: ocr.NameTextLayer, text: "amount due $500"},
	)
	ctx := context.Background()
	job, _ := f.svc.Create(ctx, "walker ranch", 3)

	require.NoError(t, f.runner.Process(ctx, job.ID))
	require.NotEmpty(t, f.repo.progress)
	for i := 1; i < len(f.repo.progress); i++ {
		assert.GreaterOrEqual(t, f.repo.progress[i], f.repo.progress[i-1], "progress decreased at step %d: %v", i, f.repo.progress)
	}
	got, _ := f.svc.Get(ctx, job.ID)
	assert.Len(t, got.Results, 3)
}

func TestProcessRejectsAlreadyClaimedJob(t *testing.T) {
	f := newFixture(t, &fakeDownloader{names: []string{"a.pdf"}}, fakeBackend{name: ocr.NameTextLayer, text: "x"})
	ctx := context.Background()
	job, _ := f.svc.Create(ctx, "walker ranch", 1)
	_, err := f.svc.Begin(ctx, job.ID)
	require.NoError(t, err)

	err = f.runner.Process(ctx, job.ID)
	require.ErrorIs(t, err, jobs.ErrInvalidState)
}

func TestProcessUnknownJob(t *testing.T) {
	f := newFixture(t, &fakeDownloader{}, fakeBackend{name: ocr.NameTextLayer, text: "x"})
	err := f.runner.Process(context.Background(), "missing")
	require.ErrorIs(t, err, jobs.ErrNotFound)
}

type panickingSummarizer struct{}

func (panickingSummarizer) Summarize(ctx context.Context, in llm.SummaryInput) (string, error) {
	panic("unexpected nil")
}

func TestProcessRecoversPanics(t *testing.T) {
	f := newFixture(t, &fakeDownloader{names: []string{"a.pdf"}}, fakeBackend{name: ocr.NameTextLayer, text: "amount due"})
	f.runner.Summarizer = panickingSummarizer{}
	ctx := context.Background()
	job, _ := f.svc.Create(ctx, "walker ranch", 1)

	err := f.runner.Process(ctx, job.ID)
	require.Error(t, err)
	got, _ := f.svc.Get(ctx, job.ID)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "panic")
}
