// Package pipeline runs one job end to end: download, OCR selection,
// summarization and the report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"property-analyzer/internal/jobs"
	"property-analyzer/internal/llm"
	"property-analyzer/internal/ocr"
	"property-analyzer/internal/ocr/scoring"
	"property-analyzer/internal/portal"
	"property-analyzer/internal/report"
	"property-analyzer/internal/shared/metrics"
	"property-analyzer/internal/shared/storage/object"
	"property-analyzer/internal/shared/telemetry"
)

// Progress checkpoints reported on the job.
const (
	progressInit        = 10
	progressDownloading = 20
	progressDownloaded  = 40
	progressDocsStart   = 50
	progressDocsEnd     = 90
)

// Runner processes jobs. One Process call is the single writer of its job.
type Runner struct {
	Jobs           *jobs.Service
	Downloader     portal.Downloader
	Backends       []ocr.Backend
	Summarizer     llm.Summarizer
	Store          object.ObjectStore
	Weights        scoring.Weights
	Priority       []string
	BackendTimeout time.Duration
	WorkDir        string
	Now            func() time.Time
}

// Process claims a queued job and runs it to a terminal state. Any failure
// after the claim fails the job; the returned error is for the caller's logs.
func (r *Runner) Process(ctx context.Context, jobID string) (err error) {
	job, err := r.Jobs.Begin(ctx, jobID)
	if err != nil {
		return fmt.Errorf("claim job %s: %w", jobID, err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
			_ = r.Jobs.Fail(ctx, jobID, err)
		}
	}()

	if err := r.run(ctx, job); err != nil {
		_ = r.Jobs.Fail(ctx, jobID, err)
		return err
	}
	return nil
}

func (r *Runner) run(ctx context.Context, job jobs.Job) error {
	if r.Downloader == nil || r.Summarizer == nil || r.Store == nil {
		return errors.New("pipeline dependencies not configured")
	}
	if len(r.Backends) == 0 {
		return errors.New("no ocr backends configured")
	}
	if err := r.Jobs.SetProgress(ctx, job.ID, progressInit, "Initializing analysis"); err != nil {
		return err
	}

	dir, err := os.MkdirTemp(r.WorkDir, "job-"+job.ID+"-")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := r.Jobs.SetProgress(ctx, job.ID, progressDownloading, "Downloading documents from portal"); err != nil {
		return err
	}
	paths, err := r.Downloader.Download(ctx, job.Query, job.Limit, dir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return &portal.DownloadError{Stage: portal.StageDownload, Err: errors.New("no documents downloaded")}
	}

	docs, err := describeDocuments(job.ID, paths)
	if err != nil {
		return err
	}
	if err := r.Jobs.SetDocuments(ctx, job.ID, docs); err != nil {
		return err
	}
	if err := r.Jobs.SetProgress(ctx, job.ID, progressDownloaded, fmt.Sprintf("Downloaded %d documents", len(docs))); err != nil {
		return err
	}

	results := make([]jobs.DocumentResult, 0, len(docs))
	sections := make([]report.Section, 0, len(docs))
	for i, doc := range docs {
		start := progressDocsStart + (progressDocsEnd-progressDocsStart)*i/len(docs)
		msg := fmt.Sprintf("Processing document %d of %d: %s", i+1, len(docs), doc.Name)
		if err := r.Jobs.SetProgress(ctx, job.ID, start, msg); err != nil {
			return err
		}

		d := &document{jobID: job.ID, name: doc.Name, stage: jobs.StagePending, svc: r.Jobs}
		res, err := r.processDocument(ctx, d, paths[i], doc)
		if err != nil {
			d.fail(ctx, err)
			return err
		}
		results = append(results, res)
		sections = append(sections, report.Section{
			DocumentName: doc.Name,
			Backend:      res.Backend,
			Score:        res.Score,
			Analysis:     res.Analysis,
		})
	}
	if err := r.Jobs.SetProgress(ctx, job.ID, progressDocsEnd, "Generating report"); err != nil {
		return err
	}

	md := report.BuildMarkdown(report.Input{
		JobID:       job.ID,
		Query:       job.Query,
		GeneratedAt: r.now(),
		Sections:    sections,
	})
	if _, err := r.Store.SaveWithKey(ctx, jobs.ReportKey(job.ID), "text/markdown", strings.NewReader(md)); err != nil {
		return fmt.Errorf("store report: %w", err)
	}
	return r.Jobs.Complete(ctx, job.ID, results)
}

// processDocument walks one document through the stage machine. The portal
// fetch happens for the whole job before any document exists, so its failures
// fail the job as a DownloadError and leave Documents empty. Per document,
// Downloading covers persisting the fetched PDF to the object store; a store
// failure there marks that document Failed.
func (r *Runner) processDocument(ctx context.Context, d *document, path string, doc jobs.DocumentFile) (jobs.DocumentResult, error) {
	if err := d.advance(ctx, jobs.StageDownloading); err != nil {
		return jobs.DocumentResult{}, err
	}
	if err := r.storeFile(ctx, doc.StorageKey, "application/pdf", path); err != nil {
		return jobs.DocumentResult{}, fmt.Errorf("store %s: %w", doc.Name, err)
	}

	if err := d.advance(ctx, jobs.StageOcrRunning); err != nil {
		return jobs.DocumentResult{}, err
	}
	outcomes := ocr.RunAll(ctx, r.Backends, path, r.BackendTimeout)
	var failures []error
	for _, o := range outcomes {
		if !o.Succeeded() {
			failures = append(failures, o.Err)
			continue
		}
		key := jobs.TextKey(d.jobID, doc.Name, o.Backend)
		if _, err := r.Store.SaveWithKey(ctx, key, "text/plain; charset=utf-8", strings.NewReader(o.Text)); err != nil {
			telemetry.Warn("pipeline.ocr_text.store_failed", map[string]any{
				"job_id":   d.jobID,
				"document": doc.Name,
				"backend":  o.Backend,
				"error":    err.Error(),
			})
		}
	}

	cands := scoring.ScoreAll(outcomes, r.Weights)
	best, err := scoring.Select(cands, r.Priority)
	if err != nil {
		var allFailed *ocr.AllFailedError
		if errors.As(err, &allFailed) {
			allFailed.Document = doc.Name
			allFailed.Failures = failures
		}
		return jobs.DocumentResult{}, err
	}
	metrics.IncOCRSelected(best.Backend)
	telemetry.Info("pipeline.ocr.selected", map[string]any{
		"request_id": jobs.RequestIDFromContext(ctx),
		"job_id":     d.jobID,
		"document":   doc.Name,
		"backend":    best.Backend,
		"score":      best.Score,
		"candidates": candidateScores(cands),
	})
	if err := d.advance(ctx, jobs.StageOcrScored); err != nil {
		return jobs.DocumentResult{}, err
	}

	if err := d.advance(ctx, jobs.StageAnalyzing); err != nil {
		return jobs.DocumentResult{}, err
	}
	analysis, err := r.Summarizer.Summarize(ctx, llm.SummaryInput{DocumentName: doc.Name, Text: best.Text})
	if err != nil {
		return jobs.DocumentResult{}, err
	}
	if err := d.advance(ctx, jobs.StageDone); err != nil {
		return jobs.DocumentResult{}, err
	}

	return jobs.DocumentResult{
		DocumentID: doc.Name,
		Backend:    best.Backend,
		Score:      best.Score,
		Text:       best.Text,
		TextKey:    jobs.TextKey(d.jobID, doc.Name, best.Backend),
		Analysis:   analysis,
	}, nil
}

func (r *Runner) storeFile(ctx context.Context, key, contentType, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = r.Store.SaveWithKey(ctx, key, contentType, f)
	return err
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func describeDocuments(jobID string, paths []string) ([]jobs.DocumentFile, error) {
	docs := make([]jobs.DocumentFile, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat downloaded file: %w", err)
		}
		name := filepath.Base(p)
		if seen[name] {
			return nil, fmt.Errorf("duplicate document name %s", name)
		}
		seen[name] = true
		docs = append(docs, jobs.DocumentFile{
			Name:       name,
			StorageKey: jobs.PDFKey(jobID, name),
			SizeBytes:  info.Size(),
			Stage:      jobs.StagePending,
		})
	}
	return docs, nil
}

func candidateScores(cands []scoring.Candidate) map[string]float64 {
	out := make(map[string]float64, len(cands))
	for _, c := range cands {
		out[c.Backend] = c.Score
	}
	return out
}
