package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"property-analyzer/internal/shared/metrics"
	"property-analyzer/internal/shared/storage/object"
	"property-analyzer/internal/shared/telemetry"
)

const (
	MaxLimit = 50

	completedMessage = "Analysis completed successfully"
	queuedMessage    = "Job queued"
)

// Dispatcher hands a stored job to whatever runs the pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// Service contains the job lifecycle. It is the only writer path to Repo.
type Service struct {
	Repo       Repo
	Store      object.ObjectStore
	Dispatcher Dispatcher
	Now        func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Create stores a queued job and dispatches it. It never waits on processing.
func (s *Service) Create(ctx context.Context, query string, limit int) (Job, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Job{}, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	if limit < 1 || limit > MaxLimit {
		return Job{}, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidInput, MaxLimit)
	}
	if s.Dispatcher == nil {
		return Job{}, ErrJobQueueNotConfigured
	}

	now := s.now()
	job := Job{
		ID:        uuid.NewString(),
		Query:     query,
		Limit:     limit,
		Status:    StatusQueued,
		Message:   queuedMessage,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Repo.Create(ctx, job); err != nil {
		return Job{}, err
	}
	metrics.IncJobCreated()
	telemetry.Info("job.status", map[string]any{
		"request_id": RequestIDFromContext(ctx),
		"job_id":     job.ID,
		"status":     StatusQueued,
		"limit":      limit,
	})

	if err := s.Dispatcher.Dispatch(ctx, job.ID); err != nil {
		s.Fail(BackgroundWithRequestID(ctx), job.ID, fmt.Errorf("dispatch: %w", err))
		return Job{}, fmt.Errorf("dispatch job %s: %w", job.ID, err)
	}
	return job, nil
}

// Get returns a snapshot of a job.
func (s *Service) Get(ctx context.Context, jobID string) (Job, error) {
	if strings.TrimSpace(jobID) == "" {
		return Job{}, ErrNotFound
	}
	return s.Repo.GetByID(ctx, jobID)
}

// List returns jobs newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Job, error) {
	return s.Repo.List(ctx, limit, offset)
}

// Begin claims a queued job for processing.
func (s *Service) Begin(ctx context.Context, jobID string) (Job, error) {
	if err := s.Repo.MarkProcessing(ctx, jobID, s.now()); err != nil {
		return Job{}, err
	}
	telemetry.Info("job.status", map[string]any{
		"request_id":        RequestIDFromContext(ctx),
		"job_id":            jobID,
		"status":            StatusProcessing,
		"status_transition": "queued->processing",
	})
	return s.Repo.GetByID(ctx, jobID)
}

// SetProgress records a progress checkpoint. Lower values than the current
// progress only update the message.
func (s *Service) SetProgress(ctx context.Context, jobID string, percent int, message string) error {
	if err := s.Repo.UpdateProgress(ctx, jobID, percent, message); err != nil {
		return err
	}
	telemetry.Debug("job.progress", map[string]any{
		"request_id": RequestIDFromContext(ctx),
		"job_id":     jobID,
		"progress":   percent,
		"message":    message,
	})
	return nil
}

// SetDocuments attaches the downloaded documents to a job.
func (s *Service) SetDocuments(ctx context.Context, jobID string, docs []DocumentFile) error {
	return s.Repo.SetDocuments(ctx, jobID, docs)
}

// UpdateDocumentStage records the stage reached by one document.
func (s *Service) UpdateDocumentStage(ctx context.Context, jobID, name string, stage DocumentStage, errMsg string) error {
	if err := s.Repo.UpdateDocumentStage(ctx, jobID, name, stage, errMsg); err != nil {
		return err
	}
	fields := map[string]any{
		"request_id": RequestIDFromContext(ctx),
		"job_id":     jobID,
		"document":   name,
		"stage":      string(stage),
	}
	if errMsg != "" {
		fields["error"] = errMsg
	}
	telemetry.Info("job.document.stage", fields)
	return nil
}

// Complete finishes a job with its per-document results.
func (s *Service) Complete(ctx context.Context, jobID string, results []DocumentResult) error {
	completedAt := s.now()
	if err := s.Repo.Complete(ctx, jobID, results, completedMessage, completedAt); err != nil {
		return err
	}
	metrics.IncJobCompleted()
	fields := map[string]any{
		"request_id":        RequestIDFromContext(ctx),
		"job_id":            jobID,
		"status":            StatusCompleted,
		"status_transition": "processing->completed",
		"documents":         len(results),
	}
	s.observeDuration(ctx, jobID, completedAt, fields)
	telemetry.Info("job.status", fields)
	return nil
}

// Fail marks a job failed with a sanitized message built from cause.
func (s *Service) Fail(ctx context.Context, jobID string, cause error) error {
	msg := sanitizeError(cause)
	completedAt := s.now()
	if err := s.Repo.Fail(context.Background(), jobID, "Analysis failed: "+msg, msg, completedAt); err != nil {
		telemetry.Error("job.fail.update_failed", map[string]any{
			"request_id": RequestIDFromContext(ctx),
			"job_id":     jobID,
			"error":      err.Error(),
			"cause":      msg,
		})
		return err
	}
	metrics.IncJobFailed()
	fields := map[string]any{
		"request_id":        RequestIDFromContext(ctx),
		"job_id":            jobID,
		"status":            StatusFailed,
		"status_transition": "->failed",
		"error":             msg,
	}
	s.observeDuration(ctx, jobID, completedAt, fields)
	telemetry.Info("job.status", fields)
	return nil
}

func (s *Service) observeDuration(ctx context.Context, jobID string, completedAt time.Time, fields map[string]any) {
	job, err := s.Repo.GetByID(ctx, jobID)
	if err != nil || job.StartedAt == nil {
		return
	}
	d := completedAt.Sub(*job.StartedAt)
	metrics.ObserveJobDuration(d)
	fields["duration_ms"] = float64(d.Microseconds()) / 1000.0
}

// OpenDocument opens a downloaded PDF attached to a job.
func (s *Service) OpenDocument(ctx context.Context, jobID, name string) (DocumentFile, io.ReadCloser, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return DocumentFile{}, nil, err
	}
	doc, ok := job.Document(name)
	if !ok {
		return DocumentFile{}, nil, ErrNotFound
	}
	if s.Store == nil {
		return DocumentFile{}, nil, errors.New("object store not configured")
	}
	body, err := s.Store.Open(ctx, doc.StorageKey)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return DocumentFile{}, nil, ErrNotFound
		}
		return DocumentFile{}, nil, err
	}
	return doc, body, nil
}

// Report returns the Markdown report of a completed job.
func (s *Service) Report(ctx context.Context, jobID string) (Job, string, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return Job{}, "", err
	}
	if job.Status != StatusCompleted {
		return job, "", ErrInvalidState
	}
	if s.Store == nil {
		return job, "", errors.New("object store not configured")
	}
	body, err := s.Store.Open(ctx, ReportKey(jobID))
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return job, "", ErrNotFound
		}
		return job, "", err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return job, "", err
	}
	return job, string(data), nil
}

func sanitizeError(err error) string {
	if err == nil {
		return "unknown error"
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	return truncateUTF8(msg, maxLen)
}

// truncateUTF8 cuts s to at most max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
