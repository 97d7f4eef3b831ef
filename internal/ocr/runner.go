package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"property-analyzer/internal/shared/telemetry"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		telemetry.Error("ocr.exec.failed", map[string]any{
			"cmd":         name,
			"args":        strings.Join(args, " "),
			"duration_ms": dur.Milliseconds(),
			"error":       err,
			"stderr":      truncate(errb.String(), 8<<10),
		})
		if errors.Is(err, exec.ErrNotFound) {
			err = fmt.Errorf("%s: %w", name, ErrToolMissing)
		}
	} else {
		telemetry.Debug("ocr.exec.ok", map[string]any{
			"cmd":          name,
			"duration_ms":  dur.Milliseconds(),
			"stdout_bytes": out.Len(),
			"stderr_bytes": errb.Len(),
		})
	}

	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// execFailure turns a Runner error into a BackendError, keeping the tail of stderr.
func execFailure(backend, tool string, stderr []byte, err error) *BackendError {
	if errors.Is(err, ErrToolMissing) {
		return &BackendError{Backend: backend, Reason: tool + " not installed", Err: err}
	}
	reason := tool + " exited with error"
	if msg := strings.TrimSpace(string(stderr)); msg != "" {
		reason = reason + ": " + truncate(lastLine(msg), 300)
	}
	return &BackendError{Backend: backend, Reason: reason, Err: err}
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
