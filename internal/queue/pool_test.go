package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"property-analyzer/internal/jobs"
)

type blockingProcessor struct {
	release chan struct{}
	running int32
	peak    int32
	mu      sync.Mutex
	seen    []string
	reqIDs  []string
}

func (p *blockingProcessor) Process(ctx context.Context, jobID string) error {
	n := atomic.AddInt32(&p.running, 1)
	for {
		peak := atomic.LoadInt32(&p.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&p.peak, peak, n) {
			break
		}
	}
	<-p.release
	atomic.AddInt32(&p.running, -1)
	p.mu.Lock()
	p.seen = append(p.seen, jobID)
	p.reqIDs = append(p.reqIDs, jobs.RequestIDFromContext(ctx))
	p.mu.Unlock()
	return nil
}

func TestPoolDispatchDoesNotBlockAndCapsConcurrency(t *testing.T) {
	proc := &blockingProcessor{release: make(chan struct{})}
	pool := NewPool(proc, 2)

	start := time.Now()
	for _, id := range []string{"a", "b", "c", "d"} {
		if err := pool.Dispatch(context.Background(), id); err != nil {
			t.Fatalf("Dispatch(%s): %v", id, err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("dispatch blocked for %s", elapsed)
	}

	time.Sleep(50 * time.Millisecond)
	close(proc.release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if len(proc.seen) != 4 {
		t.Fatalf("expected 4 processed jobs, got %v", proc.seen)
	}
	if peak := atomic.LoadInt32(&proc.peak); peak > 2 {
		t.Fatalf("expected at most 2 concurrent runs, got %d", peak)
	}
}

func TestPoolCarriesRequestIDAcrossCancellation(t *testing.T) {
	proc := &blockingProcessor{release: make(chan struct{})}
	close(proc.release)
	pool := NewPool(proc, 1)

	ctx, cancel := context.WithCancel(jobs.WithRequestID(context.Background(), "req-1"))
	if err := pool.Dispatch(ctx, "job-1"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	cancel()

	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if len(proc.reqIDs) != 1 || proc.reqIDs[0] != "req-1" {
		t.Fatalf("expected request id to be carried, got %v", proc.reqIDs)
	}
}

func TestPoolRejectsAfterShutdown(t *testing.T) {
	pool := NewPool(&blockingProcessor{release: make(chan struct{})}, 1)
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := pool.Dispatch(context.Background(), "late"); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

type recordingClient struct {
	messages []Message
}

func (c *recordingClient) Send(ctx context.Context, msg Message) error {
	c.messages = append(c.messages, msg)
	return nil
}

func TestDispatcherSendsVersionedMessage(t *testing.T) {
	client := &recordingClient{}
	fixed := time.Date(2026, 1, 30, 22, 0, 0, 0, time.UTC)
	d := &Dispatcher{Client: client, Now: func() time.Time { return fixed }}

	ctx := jobs.WithRequestID(context.Background(), "req-7")
	if err := d.Dispatch(ctx, "job-7"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	want := Message{JobID: "job-7", RequestID: "req-7", EnqueuedAt: "2026-01-30T22:00:00Z", Version: MessageVersion}
	if len(client.messages) != 1 || client.messages[0] != want {
		t.Fatalf("unexpected messages %+v", client.messages)
	}
}
