package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"property-analyzer/internal/shared/server/respond"
	"property-analyzer/internal/shared/telemetry"
)

const (
	defaultRateLimitGroup = "DEFAULT"
	defaultMaxBuckets     = 10000
)

// RateLimitRule is a token bucket: Rate tokens per second up to Burst.
type RateLimitRule struct {
	Rate  float64
	Burst int
}

// RateLimitConfig maps route groups to rules. Buckets are keyed by client IP
// and group; groups without a rule pass through.
type RateLimitConfig struct {
	Rules        map[string]RateLimitRule
	DefaultGroup string
	GroupFor     func(*gin.Context) string
	Limiter      *RateLimiter
}

// RateLimiter holds per-client buckets. Once it tracks more than maxBuckets
// clients, buckets that have refilled completely are dropped.
type RateLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*rateBucket
	now        func() time.Time
	maxBuckets int
}

type rateBucket struct {
	tokens float64
	last   time.Time
	fullAt time.Time
}

func NewRateLimiter(now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		buckets:    make(map[string]*rateBucket),
		now:        now,
		maxBuckets: defaultMaxBuckets,
	}
}

// RateLimit rejects requests over their group's rule with 429 rate_limited
// and a Retry-After header in whole seconds.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(nil)
	}
	if cfg.DefaultGroup == "" {
		cfg.DefaultGroup = defaultRateLimitGroup
	}
	return func(c *gin.Context) {
		group := cfg.DefaultGroup
		if cfg.GroupFor != nil {
			if g := strings.TrimSpace(cfg.GroupFor(c)); g != "" {
				group = g
			}
		}
		rule, ok := cfg.Rules[group]
		if !ok {
			c.Next()
			return
		}
		client := strings.TrimSpace(c.ClientIP())
		allowed, retryAfter := cfg.Limiter.Allow(client+"|"+group, rule)
		if allowed {
			c.Next()
			return
		}

		retryAfterMs := retryAfter.Milliseconds()
		if retryAfterMs <= 0 {
			retryAfterMs = 1000
		}
		retryAfterSeconds := (retryAfterMs + 999) / 1000
		telemetry.Warn("http.rate_limited", map[string]any{
			"request_id":     c.GetString(requestIDKey),
			"client":         client,
			"group":          group,
			"path":           c.FullPath(),
			"retry_after_ms": retryAfterMs,
		})
		c.Header("Retry-After", strconv.FormatInt(retryAfterSeconds, 10))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "too many requests", gin.H{
			"retryAfterMs": retryAfterMs,
		})
	}
}

// Allow takes one token from key's bucket. When none is left it reports how
// long until one will be.
func (l *RateLimiter) Allow(key string, rule RateLimitRule) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	if rule.Rate <= 0 || rule.Burst <= 0 {
		return true, 0
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok {
		if l.maxBuckets > 0 && len(l.buckets) >= l.maxBuckets {
			l.pruneLocked(now)
		}
		bucket = &rateBucket{tokens: float64(rule.Burst), last: now}
		l.buckets[key] = bucket
	}
	if elapsed := now.Sub(bucket.last).Seconds(); elapsed > 0 {
		bucket.tokens = math.Min(float64(rule.Burst), bucket.tokens+elapsed*rule.Rate)
		bucket.last = now
	}
	bucket.fullAt = now.Add(time.Duration((float64(rule.Burst) - bucket.tokens) / rule.Rate * float64(time.Second)))

	if bucket.tokens >= 1 {
		bucket.tokens--
		bucket.fullAt = bucket.fullAt.Add(time.Duration(float64(time.Second) / rule.Rate))
		return true, 0
	}
	waitSec := math.Max(0, (1-bucket.tokens)/rule.Rate)
	return false, time.Duration(math.Ceil(waitSec*1000)) * time.Millisecond
}

// pruneLocked drops buckets that would be full again by now; a returning
// client gets a fresh full bucket, which is the same state.
func (l *RateLimiter) pruneLocked(now time.Time) {
	for key, b := range l.buckets {
		if !now.Before(b.fullAt) {
			delete(l.buckets, key)
		}
	}
}
