package jobs

import (
	"sync"
	"time"
)

const pollLimitWindow = 500 * time.Millisecond

type pollLimiter struct {
	mu      sync.Mutex
	lastHit map[string]time.Time
	now     func() time.Time
	window  time.Duration
}

func newPollLimiter(window time.Duration, now func() time.Time) *pollLimiter {
	if now == nil {
		now = time.Now
	}
	if window <= 0 {
		window = pollLimitWindow
	}
	return &pollLimiter{
		lastHit: make(map[string]time.Time),
		now:     now,
		window:  window,
	}
}

func (l *pollLimiter) Allow(clientID, jobID string) bool {
	if l == nil {
		return true
	}
	key := clientID + "|" + jobID
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.lastHit[key]; ok {
		if now.Sub(last) < l.window {
			return false
		}
	}
	l.lastHit[key] = now
	l.sweep(now)
	return true
}

// sweep drops entries that can no longer limit anything once the map grows.
func (l *pollLimiter) sweep(now time.Time) {
	if len(l.lastHit) < 1024 {
		return
	}
	for k, last := range l.lastHit {
		if now.Sub(last) >= l.window {
			delete(l.lastHit, k)
		}
	}
}

func (l *pollLimiter) RetryAfterSeconds() int {
	window := pollLimitWindow
	if l != nil {
		window = l.window
	}
	secs := int((window + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
