package jobs

import (
	"errors"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"property-analyzer/internal/report"
	"property-analyzer/internal/shared/server/respond"
	"property-analyzer/internal/shared/telemetry"
)

const defaultLimit = 1

// Handler wires HTTP handlers to the job service.
type Handler struct {
	Svc     *Service
	limiter *pollLimiter
}

// NewHandler constructs a Handler. pollInterval is the minimum spacing between
// status reads of one job by one client.
func NewHandler(svc *Service, pollInterval time.Duration) *Handler {
	return &Handler{Svc: svc, limiter: newPollLimiter(pollInterval, nil)}
}

// RegisterRoutes attaches job routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyze", h.createJob)
	rg.GET("/jobs", h.listJobs)
	rg.GET("/jobs/:id", h.getJob)
	rg.GET("/jobs/:id/pdfs", h.listDocuments)
	rg.GET("/jobs/:id/pdfs/:filename", h.downloadDocument)
	rg.GET("/jobs/:id/report", h.getReport)
}

type createJobRequest struct {
	Query string `json:"query"`
	Limit *int   `json:"limit"`
}

func (h *Handler) createJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid request body", nil)
		return
	}
	limit := defaultLimit
	if req.Limit != nil {
		limit = *req.Limit
	}

	ctx := WithRequestID(c.Request.Context(), c.GetString("requestId"))
	job, err := h.Svc.Create(ctx, req.Query, limit)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": "), nil)
		case errors.Is(err, ErrJobQueueNotConfigured):
			respond.Error(c, http.StatusServiceUnavailable, ErrorCodeInternal, "job queue not configured", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to start analysis", nil)
		}
		return
	}

	c.Set("jobId", job.ID)
	respond.JSON(c, http.StatusAccepted, gin.H{
		"jobId":   job.ID,
		"status":  job.Status,
		"message": job.Message,
		"job":     job,
	})
}

func (h *Handler) getJob(c *gin.Context) {
	jobID := c.Param("id")
	c.Set("jobId", jobID)
	if !h.limiter.Allow(c.ClientIP(), jobID) {
		c.Header("Retry-After", strconv.Itoa(h.limiter.RetryAfterSeconds()))
		respond.Error(c, http.StatusTooManyRequests, ErrorCodeRateLimited, "polling too frequently", nil)
		return
	}

	job, err := h.Svc.Get(c.Request.Context(), jobID)
	if err != nil {
		h.writeLookupError(c, err, "job not found", "failed to fetch job")
		return
	}
	respond.JSON(c, http.StatusOK, job)
}

func (h *Handler) listJobs(c *gin.Context) {
	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 0 {
		limit = 0
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	list, err := h.Svc.List(c.Request.Context(), limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to list jobs", nil)
		return
	}

	resp := make([]gin.H, 0, len(list))
	for _, j := range list {
		resp = append(resp, gin.H{
			"jobId":     j.ID,
			"query":     j.Query,
			"limit":     j.Limit,
			"status":    j.Status,
			"progress":  j.Progress,
			"message":   j.Message,
			"createdAt": j.CreatedAt,
		})
	}
	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) listDocuments(c *gin.Context) {
	jobID := c.Param("id")
	c.Set("jobId", jobID)
	job, err := h.Svc.Get(c.Request.Context(), jobID)
	if err != nil {
		h.writeLookupError(c, err, "job not found", "failed to fetch job")
		return
	}

	pdfs := make([]gin.H, 0, len(job.Documents))
	for _, d := range job.Documents {
		pdfs = append(pdfs, gin.H{
			"filename": d.Name,
			"size":     d.SizeBytes,
			"stage":    d.Stage,
		})
	}
	respond.JSON(c, http.StatusOK, gin.H{"pdfs": pdfs})
}

func (h *Handler) downloadDocument(c *gin.Context) {
	jobID := c.Param("id")
	c.Set("jobId", jobID)
	name := c.Param("filename")
	if name == "" || name != path.Base(name) || strings.Contains(name, "..") {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid filename", nil)
		return
	}

	doc, body, err := h.Svc.OpenDocument(c.Request.Context(), jobID, name)
	if err != nil {
		h.writeLookupError(c, err, "document not found", "failed to open document")
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, doc.SizeBytes, "application/pdf", body, map[string]string{
		"Content-Disposition": `attachment; filename="` + doc.Name + `"`,
	})
}

func (h *Handler) getReport(c *gin.Context) {
	jobID := c.Param("id")
	c.Set("jobId", jobID)
	format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "md")))
	if format != "md" && format != "html" {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "format must be md or html", nil)
		return
	}

	job, markdown, err := h.Svc.Report(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, ErrInvalidState) {
			respond.Error(c, http.StatusConflict, ErrorCodeInvalidState, "report is available once the job completes", gin.H{"status": job.Status})
			return
		}
		h.writeLookupError(c, err, "report not found", "failed to load report")
		return
	}

	if format == "html" {
		html, err := report.RenderHTML("Property analysis: "+job.Query, markdown)
		if err != nil {
			telemetry.Error("report.render_failed", map[string]any{"job_id": jobID, "error": err.Error()})
			respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to render report", nil)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
		return
	}
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(markdown))
}

func (h *Handler) writeLookupError(c *gin.Context, err error, notFoundMsg, internalMsg string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, notFoundMsg, nil)
	default:
		respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, internalMsg, nil)
	}
}
