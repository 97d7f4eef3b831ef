package jobs

import (
	"context"
	"time"
)

// Repo defines persistence operations for jobs. Implementations enforce the
// lifecycle: terminal jobs reject every mutation with ErrInvalidState, progress
// is clamped to [0,100] and never lowered, and only queued jobs can start.
type Repo interface {
	Create(ctx context.Context, job Job) error
	GetByID(ctx context.Context, jobID string) (Job, error)
	List(ctx context.Context, limit, offset int) ([]Job, error)
	MarkProcessing(ctx context.Context, jobID string, startedAt time.Time) error
	UpdateProgress(ctx context.Context, jobID string, progress int, message string) error
	SetDocuments(ctx context.Context, jobID string, docs []DocumentFile) error
	UpdateDocumentStage(ctx context.Context, jobID, name string, stage DocumentStage, errMsg string) error
	Complete(ctx context.Context, jobID string, results []DocumentResult, message string, completedAt time.Time) error
	Fail(ctx context.Context, jobID string, message, errMsg string, completedAt time.Time) error
}
