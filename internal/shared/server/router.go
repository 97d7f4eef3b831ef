package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"property-analyzer/internal/jobs"
	"property-analyzer/internal/shared/config"
	"property-analyzer/internal/shared/metrics"
	"property-analyzer/internal/shared/server/middleware"
	"property-analyzer/internal/shared/server/respond"
)

const createRateGroup = "CREATE"

// RouterDeps holds the dependencies needed to build the HTTP router.
type RouterDeps struct {
	Config     config.Config
	JobHandler *jobs.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if !config.IsDevLike(cfg.Env) {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.RateLimit(createRateLimit(cfg.CreateRatePerMin)),
	)

	r.GET("/", func(c *gin.Context) {
		respond.OK(c, gin.H{"status": "ok"})
	})
	r.GET("/healthz", func(c *gin.Context) {
		respond.OK(c, gin.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	if deps.JobHandler != nil {
		deps.JobHandler.RegisterRoutes(api)
	}

	return r
}

// createRateLimit throttles job creation per client. Other routes carry no rule.
func createRateLimit(perMinute float64) middleware.RateLimitConfig {
	rules := map[string]middleware.RateLimitRule{}
	if perMinute > 0 {
		burst := int(perMinute)
		if burst < 1 {
			burst = 1
		}
		rules[createRateGroup] = middleware.RateLimitRule{Rate: perMinute / 60, Burst: burst}
	}
	return middleware.RateLimitConfig{
		Rules:   rules,
		Limiter: middleware.NewRateLimiter(time.Now),
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodPost && c.FullPath() == "/api/v1/analyze" {
				return createRateGroup
			}
			return ""
		},
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
