package queue

import (
	"context"
	"time"

	"property-analyzer/internal/jobs"
)

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher dispatches jobs by sending them to a queue for an external
// worker to pick up.
type Dispatcher struct {
	Client Client
	Now    func() time.Time
}

// Dispatch enqueues jobID with the caller's request ID.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID string) error {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	return d.Client.Send(ctx, Message{
		JobID:      jobID,
		RequestID:  jobs.RequestIDFromContext(ctx),
		EnqueuedAt: now().UTC().Format(time.RFC3339),
		Version:    MessageVersion,
	})
}

var _ jobs.Dispatcher = (*Dispatcher)(nil)
