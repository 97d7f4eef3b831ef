package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores jobs in memory and is safe for concurrent use. Reads return
// deep copies so callers always see a consistent snapshot.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]*Job
	now  func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]*Job), now: func() time.Time { return time.Now().UTC() }}
}

// Create stores the job.
func (r *MemoryRepo) Create(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := job.clone()
	stored.Progress = clampProgress(stored.Progress)
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	r.byID[job.ID] = &stored
	return nil
}

// GetByID returns a job by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.byID[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job.clone(), nil
}

// List returns jobs newest first, with limit/offset.
func (r *MemoryRepo) List(ctx context.Context, limit, offset int) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}

	r.mu.RLock()
	all := make([]Job, 0, len(r.byID))
	for _, j := range r.byID {
		all = append(all, j.clone())
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if offset >= len(all) {
		return []Job{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

// MarkProcessing moves a queued job to processing.
func (r *MemoryRepo) MarkProcessing(ctx context.Context, jobID string, startedAt time.Time) error {
	return r.mutate(ctx, jobID, func(j *Job) error {
		if j.Status != StatusQueued {
			return ErrInvalidState
		}
		j.Status = StatusProcessing
		t := startedAt
		j.StartedAt = &t
		return nil
	})
}

// UpdateProgress raises progress and replaces the message.
func (r *MemoryRepo) UpdateProgress(ctx context.Context, jobID string, progress int, message string) error {
	return r.mutate(ctx, jobID, func(j *Job) error {
		if p := clampProgress(progress); p > j.Progress {
			j.Progress = p
		}
		j.Message = message
		return nil
	})
}

// SetDocuments replaces the attached documents.
func (r *MemoryRepo) SetDocuments(ctx context.Context, jobID string, docs []DocumentFile) error {
	return r.mutate(ctx, jobID, func(j *Job) error {
		j.Documents = append([]DocumentFile(nil), docs...)
		return nil
	})
}

// UpdateDocumentStage sets the stage of one attached document.
func (r *MemoryRepo) UpdateDocumentStage(ctx context.Context, jobID, name string, stage DocumentStage, errMsg string) error {
	return r.mutate(ctx, jobID, func(j *Job) error {
		for i := range j.Documents {
			if j.Documents[i].Name == name {
				j.Documents[i].Stage = stage
				j.Documents[i].Error = errMsg
				return nil
			}
		}
		return ErrNotFound
	})
}

// Complete finishes a processing job with its results.
func (r *MemoryRepo) Complete(ctx context.Context, jobID string, results []DocumentResult, message string, completedAt time.Time) error {
	return r.mutate(ctx, jobID, func(j *Job) error {
		if j.Status != StatusProcessing {
			return ErrInvalidState
		}
		j.Status = StatusCompleted
		j.Progress = 100
		j.Message = message
		j.Results = append([]DocumentResult(nil), results...)
		t := completedAt
		j.CompletedAt = &t
		return nil
	})
}

// Fail marks the job failed. Progress is left where the run stopped.
func (r *MemoryRepo) Fail(ctx context.Context, jobID string, message, errMsg string, completedAt time.Time) error {
	return r.mutate(ctx, jobID, func(j *Job) error {
		j.Status = StatusFailed
		j.Message = message
		j.Error = errMsg
		t := completedAt
		j.CompletedAt = &t
		return nil
	})
}

// mutate applies fn under the write lock. Terminal jobs are rejected before fn runs
// and fn's changes are discarded when it returns an error.
func (r *MemoryRepo) mutate(ctx context.Context, jobID string, fn func(*Job) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.Terminal() {
		return ErrInvalidState
	}
	next := job.clone()
	if err := fn(&next); err != nil {
		return err
	}
	next.UpdatedAt = r.now()
	r.byID[jobID] = &next
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
