package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"property-analyzer/internal/shared/metrics"
	"property-analyzer/internal/shared/telemetry"
)

// RunAll runs every backend against path concurrently and waits for all of them.
// Each backend gets its own timeout; a backend that overruns it is reported as a
// timeout failure. Cancelling ctx fails every backend still running, and
// backends not yet started are never invoked. Outcomes are returned in the
// order of backends.
func RunAll(ctx context.Context, backends []Backend, path string, timeout time.Duration) []Outcome {
	outcomes := make([]Outcome, len(backends))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range backends {
		i, b := i, b
		g.Go(func() error {
			outcomes[i] = runOne(gctx, b, path, timeout)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

type extractResult struct {
	text string
	err  error
}

func runOne(ctx context.Context, b Backend, path string, timeout time.Duration) Outcome {
	name := b.Name()
	bctx := ctx
	cancel := func() {}
	if timeout > 0 {
		bctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	start := time.Now()
	done := make(chan extractResult, 1)
	if err := ctx.Err(); err != nil {
		done <- extractResult{err: err}
	} else {
		go extract(bctx, b, path, done)
	}

	var res extractResult
	select {
	case res = <-done:
	case <-bctx.Done():
		res = extractResult{err: bctx.Err()}
	}

	out := Outcome{Backend: name, Text: res.text, Err: normalizeErr(name, res, bctx), Duration: time.Since(start)}
	if out.Err != nil {
		out.Text = ""
	}

	outcome := "ok"
	if out.Err != nil {
		outcome = "failed"
		var be *BackendError
		if errors.As(out.Err, &be) && be.Timeout {
			outcome = "timeout"
		}
		telemetry.Warn("ocr.backend.failed", map[string]any{
			"backend":     name,
			"path":        path,
			"outcome":     outcome,
			"error":       out.Err,
			"duration_ms": out.Duration.Milliseconds(),
		})
	} else {
		telemetry.Info("ocr.backend.ok", map[string]any{
			"backend":     name,
			"path":        path,
			"chars":       len(out.Text),
			"duration_ms": out.Duration.Milliseconds(),
		})
	}
	metrics.ObserveOCRBackend(name, outcome, out.Duration)
	return out
}

func extract(ctx context.Context, b Backend, path string, done chan<- extractResult) {
	defer func() {
		if r := recover(); r != nil {
			done <- extractResult{err: fmt.Errorf("panic: %v", r)}
		}
	}()
	text, err := b.Extract(ctx, path)
	done <- extractResult{text: text, err: err}
}

func normalizeErr(name string, res extractResult, bctx context.Context) error {
	if errors.Is(bctx.Err(), context.DeadlineExceeded) {
		return &BackendError{Backend: name, Reason: "timed out", Timeout: true, Err: context.DeadlineExceeded}
	}
	if errors.Is(bctx.Err(), context.Canceled) {
		return &BackendError{Backend: name, Reason: "cancelled", Err: context.Canceled}
	}
	if res.err != nil {
		var be *BackendError
		if errors.As(res.err, &be) {
			return res.err
		}
		return &BackendError{Backend: name, Reason: "extract failed", Err: res.err}
	}
	if strings.TrimSpace(res.text) == "" {
		return &BackendError{Backend: name, Reason: "empty output"}
	}
	return nil
}
