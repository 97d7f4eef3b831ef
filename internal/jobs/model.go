package jobs

import "time"

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// DocumentStage is where a single document is in the pipeline.
type DocumentStage string

const (
	StagePending     DocumentStage = "pending"
	StageDownloading DocumentStage = "downloading"
	StageOcrRunning  DocumentStage = "ocr_running"
	StageOcrScored   DocumentStage = "ocr_scored"
	StageAnalyzing   DocumentStage = "analyzing"
	StageDone        DocumentStage = "done"
	StageFailed      DocumentStage = "failed"
)

// DocumentFile is a downloaded document attached to a job.
type DocumentFile struct {
	Name       string        `json:"name"`
	StorageKey string        `json:"storageKey"`
	SizeBytes  int64         `json:"sizeBytes"`
	Stage      DocumentStage `json:"stage"`
	Error      string        `json:"error,omitempty"`
}

// DocumentResult is the outcome for one document. It is written once.
type DocumentResult struct {
	DocumentID string  `json:"documentId"`
	Backend    string  `json:"backend"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
	TextKey    string  `json:"textKey,omitempty"`
	Analysis   string  `json:"analysis"`
}

// Job is an asynchronous property analysis run.
type Job struct {
	ID          string           `json:"id"`
	Query       string           `json:"query"`
	Limit       int              `json:"limit"`
	Status      string           `json:"status"`
	Progress    int              `json:"progress"`
	Message     string           `json:"message"`
	Documents   []DocumentFile   `json:"documents"`
	Results     []DocumentResult `json:"results"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	StartedAt   *time.Time       `json:"startedAt,omitempty"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}

// Terminal reports whether the job can no longer change.
func (j Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Document returns the attached document with the given name.
func (j Job) Document(name string) (DocumentFile, bool) {
	for _, d := range j.Documents {
		if d.Name == name {
			return d, true
		}
	}
	return DocumentFile{}, false
}

func (j Job) clone() Job {
	out := j
	if j.Documents != nil {
		out.Documents = append([]DocumentFile(nil), j.Documents...)
	}
	if j.Results != nil {
		out.Results = append([]DocumentResult(nil), j.Results...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// PDFKey is the object store key of a downloaded document.
func PDFKey(jobID, name string) string { return "jobs/" + jobID + "/pdfs/" + name }

// TextKey is where one backend's OCR text for a document is kept.
func TextKey(jobID, name, backend string) string {
	return "jobs/" + jobID + "/text/" + name + "." + backend + ".txt"
}

func ReportKey(jobID string) string { return "jobs/" + jobID + "/report.md" }

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
