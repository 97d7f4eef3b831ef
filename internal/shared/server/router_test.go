package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"property-analyzer/internal/jobs"
	"property-analyzer/internal/shared/config"
	"property-analyzer/internal/shared/storage/object/local"
)

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(ctx context.Context, jobID string) error { return nil }

func newTestRouter(t *testing.T, createPerMin float64) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := &jobs.Service{
		Repo:       jobs.NewMemoryRepo(),
		Store:      local.New(t.TempDir()),
		Dispatcher: noopDispatcher{},
	}
	return NewRouter(RouterDeps{
		Config: config.Config{
			Env:              "dev",
			CORSAllowOrigin:  []string{"*"},
			CreateRatePerMin: createPerMin,
		},
		JobHandler: jobs.NewHandler(svc, time.Millisecond),
	})
}

func TestHealthEndpoints(t *testing.T) {
	r := newTestRouter(t, 0)

	cases := map[string]string{
		"/":              `"status":"ok"`,
		"/healthz":       `"ok":true`,
		"/api/v1/health": `"ok":true`,
	}
	for path, want := range cases {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
		if !strings.Contains(resp.Body.String(), want) {
			t.Fatalf("%s: expected %s in %s", path, want, resp.Body.String())
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, 0)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestCreateIsRateLimitedPerClient(t *testing.T) {
	r := newTestRouter(t, 1)

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", bytes.NewBufferString(`{"query":"WALKER RANCH"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "10.1.1.1:5555"
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp.Code
	}

	if code := post(); code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", code)
	}
	if code := post(); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}

	// Reads are not throttled by the create rule.
	resp := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	req.RemoteAddr = "10.1.1.1:5555"
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for list, got %d", resp.Code)
	}
}

func TestAddr(t *testing.T) {
	for in, want := range map[string]string{"": ":8080", "8001": ":8001", ":9000": ":9000"} {
		if got := Addr(in); got != want {
			t.Fatalf("Addr(%q) = %q, want %q", in, got, want)
		}
	}
}
