package llm

import (
	"context"
	"fmt"
)

// Summarizer turns the selected OCR text of one document into a written report section.
type Summarizer interface {
	Summarize(ctx context.Context, input SummaryInput) (string, error)
}

// SummaryInput captures the inputs needed for one document summary.
type SummaryInput struct {
	DocumentName string
	Text         string
}

// SummarizationError is returned when the provider fails or returns nothing usable.
// It is surfaced to the job and never retried.
type SummarizationError struct {
	Document string
	Err      error
}

func (e *SummarizationError) Error() string {
	if e.Document == "" {
		return fmt.Sprintf("summarization failed: %v", e.Err)
	}
	return fmt.Sprintf("summarization failed for %s: %v", e.Document, e.Err)
}

func (e *SummarizationError) Unwrap() error { return e.Err }
