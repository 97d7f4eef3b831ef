package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func seedJob(t *testing.T, repo Repo, id string) Job {
	t.Helper()
	job := Job{
		ID:        id,
		Query:     "TR NBR 910 WALKER RANCH AREA",
		Limit:     1,
		Status:    StatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func TestMemoryRepoGetUnknownReturnsNotFound(t *testing.T) {
	repo := NewMemoryRepo()
	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepoProgressNeverDecreases(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	seedJob(t, repo, "job-1")
	if err := repo.MarkProcessing(ctx, "job-1", time.Now().UTC()); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}

	for _, p := range []int{10, 40, 20, 150, -5} {
		if err := repo.UpdateProgress(ctx, "job-1", p, "step"); err != nil {
			t.Fatalf("UpdateProgress(%d): %v", p, err)
		}
	}
	job, err := repo.GetByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Progress != 100 {
		t.Fatalf("expected progress clamped to 100, got %d", job.Progress)
	}
}

func TestMemoryRepoTerminalRejectsMutation(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	seedJob(t, repo, "job-1")
	if err := repo.MarkProcessing(ctx, "job-1", time.Now().UTC()); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := repo.Complete(ctx, "job-1", []DocumentResult{{DocumentID: "a.pdf"}}, "done", time.Now().UTC()); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	checks := map[string]error{
		"progress": repo.UpdateProgress(ctx, "job-1", 50, "late"),
		"fail":     repo.Fail(ctx, "job-1", "failed", "boom", time.Now().UTC()),
		"complete": repo.Complete(ctx, "job-1", nil, "again", time.Now().UTC()),
		"docs":     repo.SetDocuments(ctx, "job-1", nil),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrInvalidState) {
			t.Fatalf("%s: expected ErrInvalidState, got %v", name, err)
		}
	}
	job, _ := repo.GetByID(ctx, "job-1")
	if job.Status != StatusCompleted || len(job.Results) != 1 {
		t.Fatalf("terminal job changed: %+v", job)
	}
}

func TestMemoryRepoMarkProcessingOnlyFromQueued(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	seedJob(t, repo, "job-1")
	if err := repo.MarkProcessing(ctx, "job-1", time.Now().UTC()); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := repo.MarkProcessing(ctx, "job-1", time.Now().UTC()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected second claim to fail with ErrInvalidState, got %v", err)
	}
}

func TestMemoryRepoCompleteRequiresProcessing(t *testing.T) {
	repo := NewMemoryRepo()
	seedJob(t, repo, "job-1")
	err := repo.Complete(context.Background(), "job-1", nil, "done", time.Now().UTC())
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestMemoryRepoSnapshotsAreCopies(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	seedJob(t, repo, "job-1")
	if err := repo.SetDocuments(ctx, "job-1", []DocumentFile{{Name: "01_a__deed.pdf", Stage: StagePending}}); err != nil {
		t.Fatalf("SetDocuments: %v", err)
	}

	snap, _ := repo.GetByID(ctx, "job-1")
	snap.Documents[0].Stage = StageDone

	again, _ := repo.GetByID(ctx, "job-1")
	if again.Documents[0].Stage != StagePending {
		t.Fatalf("snapshot mutation leaked into the store: %q", again.Documents[0].Stage)
	}
}

func TestMemoryRepoUpdateDocumentStageUnknownDocument(t *testing.T) {
	repo := NewMemoryRepo()
	seedJob(t, repo, "job-1")
	err := repo.UpdateDocumentStage(context.Background(), "job-1", "nope.pdf", StageDone, "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepoListNewestFirst(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		if err := repo.Create(ctx, Job{ID: id, Status: StatusQueued, CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	list, err := repo.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "new" || list[1].ID != "mid" {
		t.Fatalf("unexpected order: %+v", list)
	}
	rest, _ := repo.List(ctx, 2, 2)
	if len(rest) != 1 || rest[0].ID != "old" {
		t.Fatalf("unexpected page 2: %+v", rest)
	}
}

func TestMemoryRepoConcurrentReadsDuringWrites(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	seedJob(t, repo, "job-1")
	if err := repo.MarkProcessing(ctx, "job-1", time.Now().UTC()); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for p := 1; p <= 100; p++ {
			_ = repo.UpdateProgress(ctx, "job-1", p, "working")
		}
	}()

	last := 0
	for i := 0; i < 200; i++ {
		job, err := repo.GetByID(ctx, "job-1")
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if job.Progress < last {
			t.Fatalf("progress went backwards: %d after %d", job.Progress, last)
		}
		last = job.Progress
	}
	wg.Wait()
}
