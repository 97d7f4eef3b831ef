package ocr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrToolMissing marks a backend whose external tool is not installed.
var ErrToolMissing = errors.New("ocr tool not found")

// BackendError is returned by a single backend that could not produce text.
// It is absorbed by the fan-out and only surfaces through AllFailedError.
type BackendError struct {
	Backend string
	Reason  string
	Timeout bool
	Err     error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ocr backend %s: %s", e.Backend, e.Reason)
	}
	return fmt.Sprintf("ocr backend %s: %s: %v", e.Backend, e.Reason, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// AllFailedError means no backend produced usable text for a document.
type AllFailedError struct {
	Document string
	Failures []error
}

func (e *AllFailedError) Error() string {
	if len(e.Failures) == 0 {
		if e.Document == "" {
			return "all ocr backends failed"
		}
		return fmt.Sprintf("all ocr backends failed for %s", e.Document)
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	name := e.Document
	if name == "" {
		name = "document"
	}
	return fmt.Sprintf("all ocr backends failed for %s: %s", name, strings.Join(parts, "; "))
}

func (e *AllFailedError) Unwrap() []error { return e.Failures }
