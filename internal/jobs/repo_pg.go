package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PGRepo implements Repo using Postgres. Lifecycle rules are enforced in the
// WHERE clauses so concurrent writers cannot break them.
type PGRepo struct {
	DB *sql.DB
}

const jobColumns = `id, query, job_limit, status, progress, message, documents, results, error, created_at, updated_at, started_at, completed_at`

// Create inserts a new job.
func (r *PGRepo) Create(ctx context.Context, job Job) error {
	const query = `
INSERT INTO jobs (id, query, job_limit, status, progress, message, documents, results, error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	docs, err := marshalJSONB(job.Documents)
	if err != nil {
		return err
	}
	results, err := marshalJSONB(job.Results)
	if err != nil {
		return err
	}
	updatedAt := job.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = job.CreatedAt
	}
	_, err = r.DB.ExecContext(ctx, query,
		job.ID,
		job.Query,
		job.Limit,
		job.Status,
		clampProgress(job.Progress),
		job.Message,
		docs,
		results,
		job.Error,
		job.CreatedAt,
		updatedAt,
	)
	return err
}

// GetByID returns a job by ID.
func (r *PGRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 LIMIT 1`
	job, err := scanJob(r.DB.QueryRowContext(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	return job, nil
}

// List returns jobs newest first.
func (r *PGRepo) List(ctx context.Context, limit, offset int) ([]Job, error) {
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC, id ASC OFFSET $1`
	args := []any{offset}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// MarkProcessing moves a queued job to processing.
func (r *PGRepo) MarkProcessing(ctx context.Context, jobID string, startedAt time.Time) error {
	const query = `
UPDATE jobs
SET status = 'processing', started_at = $2, updated_at = $2
WHERE id = $1 AND status = 'queued'`
	return r.execGuarded(ctx, jobID, query, jobID, startedAt)
}

// UpdateProgress raises progress (never lowering it) and replaces the message.
func (r *PGRepo) UpdateProgress(ctx context.Context, jobID string, progress int, message string) error {
	const query = `
UPDATE jobs
SET progress = GREATEST(progress, $2), message = $3, updated_at = $4
WHERE id = $1 AND status IN ('queued', 'processing')`
	return r.execGuarded(ctx, jobID, query, jobID, clampProgress(progress), message, time.Now().UTC())
}

// SetDocuments replaces the attached documents.
func (r *PGRepo) SetDocuments(ctx context.Context, jobID string, docs []DocumentFile) error {
	const query = `
UPDATE jobs
SET documents = $2, updated_at = $3
WHERE id = $1 AND status IN ('queued', 'processing')`
	payload, err := marshalJSONB(docs)
	if err != nil {
		return err
	}
	return r.execGuarded(ctx, jobID, query, jobID, payload, time.Now().UTC())
}

// UpdateDocumentStage sets the stage of one attached document.
func (r *PGRepo) UpdateDocumentStage(ctx context.Context, jobID, name string, stage DocumentStage, errMsg string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status string
	var raw []byte
	err = tx.QueryRowContext(ctx, `SELECT status, documents FROM jobs WHERE id = $1 FOR UPDATE`, jobID).Scan(&status, &raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if status == StatusCompleted || status == StatusFailed {
		return ErrInvalidState
	}

	var docs []DocumentFile
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &docs); err != nil {
			return fmt.Errorf("decode documents: %w", err)
		}
	}
	found := false
	for i := range docs {
		if docs[i].Name == name {
			docs[i].Stage = stage
			docs[i].Error = errMsg
			found = true
			break
		}
	}
	if !found {
		return ErrNotFound
	}
	payload, err := marshalJSONB(docs)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE jobs SET documents = $2, updated_at = $3 WHERE id = $1`, jobID, payload, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

// Complete finishes a processing job with its results.
func (r *PGRepo) Complete(ctx context.Context, jobID string, results []DocumentResult, message string, completedAt time.Time) error {
	const query = `
UPDATE jobs
SET status = 'completed', progress = 100, message = $2, results = $3, completed_at = $4, updated_at = $4
WHERE id = $1 AND status = 'processing'`
	payload, err := marshalJSONB(results)
	if err != nil {
		return err
	}
	return r.execGuarded(ctx, jobID, query, jobID, message, payload, completedAt)
}

// Fail marks a non-terminal job failed.
func (r *PGRepo) Fail(ctx context.Context, jobID string, message, errMsg string, completedAt time.Time) error {
	const query = `
UPDATE jobs
SET status = 'failed', message = $2, error = $3, completed_at = $4, updated_at = $4
WHERE id = $1 AND status IN ('queued', 'processing')`
	return r.execGuarded(ctx, jobID, query, jobID, message, errMsg, completedAt)
}

// execGuarded runs a guarded UPDATE. When no row matched it tells a missing job
// apart from one in the wrong state.
func (r *PGRepo) execGuarded(ctx context.Context, jobID, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists bool
	if err := r.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, jobID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInvalidState
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var message sql.NullString
	var docs, results []byte
	var errMsg sql.NullString
	var startedAt, completedAt sql.NullTime
	if err := row.Scan(
		&j.ID,
		&j.Query,
		&j.Limit,
		&j.Status,
		&j.Progress,
		&message,
		&docs,
		&results,
		&errMsg,
		&j.CreatedAt,
		&j.UpdatedAt,
		&startedAt,
		&completedAt,
	); err != nil {
		return Job{}, err
	}
	j.Message = message.String
	j.Error = errMsg.String
	if len(docs) > 0 {
		if err := json.Unmarshal(docs, &j.Documents); err != nil {
			return Job{}, fmt.Errorf("decode documents: %w", err)
		}
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &j.Results); err != nil {
			return Job{}, fmt.Errorf("decode results: %w", err)
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return j, nil
}

func marshalJSONB(value any) ([]byte, error) {
	switch v := value.(type) {
	case []DocumentFile:
		if v == nil {
			return []byte("[]"), nil
		}
	case []DocumentResult:
		if v == nil {
			return []byte("[]"), nil
		}
	}
	return json.Marshal(value)
}

var _ Repo = (*PGRepo)(nil)
