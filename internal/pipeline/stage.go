package pipeline

import (
	"context"
	"fmt"

	"property-analyzer/internal/jobs"
)

var transitions = map[jobs.DocumentStage][]jobs.DocumentStage{
	jobs.StagePending:     {jobs.StageDownloading, jobs.StageFailed},
	jobs.StageDownloading: {jobs.StageOcrRunning, jobs.StageFailed},
	jobs.StageOcrRunning:  {jobs.StageOcrScored, jobs.StageFailed},
	jobs.StageOcrScored:   {jobs.StageAnalyzing, jobs.StageFailed},
	jobs.StageAnalyzing:   {jobs.StageDone, jobs.StageFailed},
}

// CanTransition reports whether a document may move from one stage to another.
// Done and Failed are final.
func CanTransition(from, to jobs.DocumentStage) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError is an attempt to move a document along an edge the state
// machine does not have.
type TransitionError struct {
	Document string
	From     jobs.DocumentStage
	To       jobs.DocumentStage
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("document %s: illegal stage transition %s -> %s", e.Document, e.From, e.To)
}

// document tracks one document's stage and mirrors every change onto the job.
type document struct {
	jobID string
	name  string
	stage jobs.DocumentStage
	svc   *jobs.Service
}

func (d *document) advance(ctx context.Context, to jobs.DocumentStage) error {
	return d.move(ctx, to, "")
}

func (d *document) fail(ctx context.Context, cause error) {
	if d.stage == jobs.StageDone || d.stage == jobs.StageFailed {
		return
	}
	_ = d.move(ctx, jobs.StageFailed, cause.Error())
}

func (d *document) move(ctx context.Context, to jobs.DocumentStage, errMsg string) error {
	if !CanTransition(d.stage, to) {
		return &TransitionError{Document: d.name, From: d.stage, To: to}
	}
	if err := d.svc.UpdateDocumentStage(ctx, d.jobID, d.name, to, errMsg); err != nil {
		return fmt.Errorf("record stage %s for %s: %w", to, d.name, err)
	}
	d.stage = to
	return nil
}
