package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestHandlerExposesJobAndOCRMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	IncJobCreated()
	ObserveOCRBackend("ocrmypdf", "ok", 2*time.Second)
	IncOCRSelected("ocrmypdf")

	router := gin.New()
	router.GET("/metrics", Handler())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	body := resp.Body.String()
	for _, name := range []string{"jobs_created_total", `ocr_backend_runs_total{backend="ocrmypdf",outcome="ok"}`, `ocr_selected_total{backend="ocrmypdf"}`} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in metrics output", name)
		}
	}
}
