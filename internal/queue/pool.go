package queue

import (
	"context"
	"errors"
	"sync"

	"property-analyzer/internal/jobs"
	"property-analyzer/internal/shared/telemetry"
)

// ErrPoolClosed is returned by Dispatch after Shutdown.
var ErrPoolClosed = errors.New("worker pool closed")

// Processor runs one job to completion.
type Processor interface {
	Process(ctx context.Context, jobID string) error
}

// Pool runs jobs in-process with at most size running at once. Dispatch never
// waits for a free slot; extra jobs stay queued until one frees up.
type Pool struct {
	proc Processor
	sem  chan struct{}

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool constructs a Pool. size below 1 is treated as 1.
func NewPool(proc Processor, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{proc: proc, sem: make(chan struct{}, size)}
}

// Dispatch schedules jobID and returns immediately.
func (p *Pool) Dispatch(ctx context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.wg.Add(1)
	go p.run(jobs.BackgroundWithRequestID(ctx), jobID)
	return nil
}

func (p *Pool) run(ctx context.Context, jobID string) {
	defer p.wg.Done()
	p.sem <- struct{}{}
	defer func() { <-p.sem }()
	defer func() {
		if r := recover(); r != nil {
			telemetry.Error("worker.job.panic", map[string]any{
				"job_id":     jobID,
				"request_id": jobs.RequestIDFromContext(ctx),
				"panic":      r,
			})
		}
	}()

	if err := p.proc.Process(ctx, jobID); err != nil {
		telemetry.Error("worker.job.failed", map[string]any{
			"job_id":     jobID,
			"request_id": jobs.RequestIDFromContext(ctx),
			"error":      err.Error(),
		})
		return
	}
	telemetry.Info("worker.job.completed", map[string]any{
		"job_id":     jobID,
		"request_id": jobs.RequestIDFromContext(ctx),
	})
}

// Shutdown stops accepting jobs and waits for in-flight and queued runs, or
// for ctx to end.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ jobs.Dispatcher = (*Pool)(nil)
