// ABOUTME: Tests for per-session rate limiting
// ABOUTME: Uses explicit timestamps instead of sleeping

package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionLimiter(t *testing.T) {
	l := newSessionLimiter(1, 2)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, l.Allow("s1", now))
	assert.True(t, l.Allow("s1", now))
	assert.False(t, l.Allow("s1", now), "burst exhausted")
	assert.True(t, l.Allow("s2", now), "sessions are independent")

	assert.True(t, l.Allow("s1", now.Add(time.Second)), "refilled after one interval")
}

func TestSessionLimiter_ZeroRateDisables(t *testing.T) {
	l := newSessionLimiter(0, 0)
	now := time.Now()
	for range 100 {
		assert.True(t, l.Allow("s1", now))
	}
	assert.Empty(t, l.entries)
}

func TestSessionLimiter_PrunesIdle(t *testing.T) {
	l := newSessionLimiter(10, 1)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	l.Allow("old", start)
	l.mu.Lock()
	l.pruneLocked(start.Add(limiterIdleTTL + time.Second))
	_, ok := l.entries["old"]
	l.mu.Unlock()

	assert.False(t, ok)
}
