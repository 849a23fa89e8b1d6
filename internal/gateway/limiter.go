// ABOUTME: Per-session token bucket rate limiting for inbound submissions
// ABOUTME: Idle limiters are dropped once the table grows past a bound

package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL   = 10 * time.Minute
	limiterPruneSize = 10000
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// sessionLimiter hands out one token bucket per session id.
// A zero rate disables limiting.
type sessionLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries map[string]*limiterEntry
}

func newSessionLimiter(perSecond float64, burst int) *sessionLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &sessionLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		entries: make(map[string]*limiterEntry),
	}
}

// Allow reports whether sessionID may submit now.
func (l *sessionLimiter) Allow(sessionID string, now time.Time) bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[sessionID]
	if !ok {
		if len(l.entries) >= limiterPruneSize {
			l.pruneLocked(now)
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[sessionID] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *sessionLimiter) pruneLocked(now time.Time) {
	for id, entry := range l.entries {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(l.entries, id)
		}
	}
}
