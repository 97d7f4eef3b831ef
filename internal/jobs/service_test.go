package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	local "property-analyzer/internal/shared/storage/object/local"
)

type stubDispatcher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (d *stubDispatcher) Dispatch(ctx context.Context, jobID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, jobID)
	return d.err
}

func newTestService(t *testing.T) (*Service, *MemoryRepo, *stubDispatcher) {
	t.Helper()
	repo := NewMemoryRepo()
	dispatcher := &stubDispatcher{}
	svc := &Service{Repo: repo, Store: local.New(t.TempDir()), Dispatcher: dispatcher}
	return svc, repo, dispatcher
}

func TestServiceCreateQueuesAndDispatches(t *testing.T) {
	svc, repo, dispatcher := newTestService(t)

	job, err := svc.Create(context.Background(), "  TR NBR 910 WALKER RANCH AREA ", 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.Status != StatusQueued || job.Query != "TR NBR 910 WALKER RANCH AREA" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if len(dispatcher.ids) != 1 || dispatcher.ids[0] != job.ID {
		t.Fatalf("expected job to be dispatched once, got %v", dispatcher.ids)
	}
	stored, err := repo.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != StatusQueued {
		t.Fatalf("expected queued, got %s", stored.Status)
	}
}

func TestServiceCreateValidatesInput(t *testing.T) {
	svc, _, dispatcher := newTestService(t)

	cases := []struct {
		query string
		limit int
	}{
		{"", 1},
		{"   ", 1},
		{"walker ranch", 0},
		{"walker ranch", -3},
		{"walker ranch", MaxLimit + 1},
	}
	for _, tc := range cases {
		if _, err := svc.Create(context.Background(), tc.query, tc.limit); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("Create(%q, %d): expected ErrInvalidInput, got %v", tc.query, tc.limit, err)
		}
	}
	if len(dispatcher.ids) != 0 {
		t.Fatalf("invalid requests must not dispatch, got %v", dispatcher.ids)
	}
}

func TestServiceCreateWithoutDispatcher(t *testing.T) {
	svc := &Service{Repo: NewMemoryRepo()}
	if _, err := svc.Create(context.Background(), "walker ranch", 1); !errors.Is(err, ErrJobQueueNotConfigured) {
		t.Fatalf("expected ErrJobQueueNotConfigured, got %v", err)
	}
}

func TestServiceCreateDispatchFailureFailsJob(t *testing.T) {
	svc, repo, dispatcher := newTestService(t)
	dispatcher.err = errors.New("queue unavailable")

	if _, err := svc.Create(context.Background(), "walker ranch", 1); err == nil {
		t.Fatalf("expected dispatch error")
	}
	list, _ := repo.List(context.Background(), 0, 0)
	if len(list) != 1 || list[0].Status != StatusFailed {
		t.Fatalf("expected the stored job to be failed, got %+v", list)
	}
}

func TestServiceGetUnknownJob(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Get(context.Background(), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty id, got %v", err)
	}
}

func TestServiceLifecycleCompleted(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	job, err := svc.Create(ctx, "walker ranch", 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Begin(ctx, job.ID); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := svc.Begin(ctx, job.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected second Begin to fail, got %v", err)
	}
	if err := svc.SetProgress(ctx, job.ID, 50, "Processing"); err != nil {
		t.Fatalf("SetProgress: %v", err)
	}
	if err := svc.Complete(ctx, job.ID, []DocumentResult{{DocumentID: "01_walker__deed.pdf", Backend: "ocrmypdf", Score: 0.92}}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, _ := svc.Get(ctx, job.ID)
	if got.Status != StatusCompleted || got.Progress != 100 || got.Message != completedMessage {
		t.Fatalf("unexpected completed job: %+v", got)
	}
	if err := svc.Fail(ctx, job.ID, errors.New("late")); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState after completion, got %v", err)
	}
}

func TestServiceFailSanitizesMessage(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	job, _ := svc.Create(ctx, "walker ranch", 1)
	if _, err := svc.Begin(ctx, job.ID); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := svc.SetProgress(ctx, job.ID, 40, "Downloaded"); err != nil {
		t.Fatalf("SetProgress: %v", err)
	}

	cause := errors.New("line one\nline two " + strings.Repeat("x", 800))
	if err := svc.Fail(ctx, job.ID, cause); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	got, _ := svc.Get(ctx, job.ID)
	if got.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if strings.Contains(got.Error, "\n") || len(got.Error) > 500 {
		t.Fatalf("error not sanitized: %q", got.Error)
	}
	if !strings.HasPrefix(got.Message, "Analysis failed: line one line two") {
		t.Fatalf("unexpected message %q", got.Message)
	}
	if got.Progress != 40 {
		t.Fatalf("expected progress to stay at 40, got %d", got.Progress)
	}
}

func TestServiceFailKeepsMultibyteMessageValid(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	job, _ := svc.Create(ctx, "walker ranch", 1)
	if _, err := svc.Begin(ctx, job.ID); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	// 499 ASCII bytes put the 500-byte cap inside the first "é".
	cause := errors.New(strings.Repeat("a", 499) + strings.Repeat("é", 10))
	if err := svc.Fail(ctx, job.ID, cause); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	got, _ := svc.Get(ctx, job.ID)
	if !utf8.ValidString(got.Error) {
		t.Fatalf("error is not valid UTF-8: %q", got.Error)
	}
	if got.Error != strings.Repeat("a", 499) {
		t.Fatalf("expected cut before the split rune, got %d bytes", len(got.Error))
	}
}

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc"},
		{"日本語", 4, "日"},
		{"日本語", 6, "日本"},
		{"日本語", 2, ""},
	}
	for _, tc := range tests {
		if got := truncateUTF8(tc.in, tc.max); got != tc.want {
			t.Fatalf("truncateUTF8(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestServiceReportRequiresCompletion(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	job, _ := svc.Create(ctx, "walker ranch", 1)

	if _, _, err := svc.Report(ctx, job.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	if _, err := svc.Store.SaveWithKey(ctx, ReportKey(job.ID), "text/markdown", strings.NewReader("# Property Analysis Report")); err != nil {
		t.Fatalf("save report: %v", err)
	}
	if _, err := svc.Begin(ctx, job.ID); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := svc.Complete(ctx, job.ID, nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	_, md, err := svc.Report(ctx, job.ID)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if md != "# Property Analysis Report" {
		t.Fatalf("unexpected report %q", md)
	}
}

func TestServiceOpenDocumentUnknownFile(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	job, _ := svc.Create(ctx, "walker ranch", 1)

	if _, _, err := svc.OpenDocument(ctx, job.ID, "missing.pdf"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := svc.OpenDocument(ctx, "nope", "missing.pdf"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown job, got %v", err)
	}
}

func TestServiceUsesInjectedClock(t *testing.T) {
	svc, _, _ := newTestService(t)
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	svc.Now = func() time.Time { return fixed }

	job, err := svc.Create(context.Background(), "walker ranch", 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !job.CreatedAt.Equal(fixed) {
		t.Fatalf("expected createdAt %s, got %s", fixed, job.CreatedAt)
	}
}
