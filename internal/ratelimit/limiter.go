// Package ratelimit provides fixed-window request counters keyed by
// client identity and route. Window-boundary bursts are accepted as a
// known limitation of the fixed-window strategy.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Result reports the outcome of a single counter check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the current window ends and counters restart.
	ResetAt time.Time
}

// Limiter is a fixed-window counter. Implementations must be safe for
// concurrent use; counts within one window may reach limit+1 because
// the first over-limit request is recorded before being rejected.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) Result
}

// sweepProbability controls the opportunistic cleanup of expired
// windows: roughly one in sweepInverse checks triggers a sweep.
const sweepInverse = 64

// MemoryLimiter keeps counters in process memory. It is only correct
// for single-instance deployments; multi-instance setups should use
// RedisLimiter so all replicas share one counter space.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	count   int
	resetAt time.Time
}

// NewMemoryLimiter constructs an in-memory limiter. The limiter is an
// explicit object passed into the middleware, never package state.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{entries: make(map[string]*memoryEntry)}
}

// Check counts a request against the window for key.
func (l *MemoryLimiter) Check(_ context.Context, key string, limit int, window time.Duration) Result {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if rand.Intn(sweepInverse) == 0 {
		l.sweepLocked(now)
	}

	entry, ok := l.entries[key]
	if !ok || entry.resetAt.Before(now) {
		entry = &memoryEntry{count: 0, resetAt: now.Add(window)}
		l.entries[key] = entry
	}

	entry.count++

	remaining := limit - entry.count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   entry.count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   entry.resetAt,
	}
}

// Len reports the number of live counter entries.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryLimiter) sweepLocked(now time.Time) {
	for key, entry := range l.entries {
		if entry.resetAt.Before(now) {
			delete(l.entries, key)
		}
	}
}
