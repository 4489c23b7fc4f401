package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryLimiterAllowsUpToLimit(t *testing.T) {
	limiter := NewMemoryLimiter()

	for i := 1; i <= 5; i++ {
		result := limiter.Check(context.Background(), "1.2.3.4:/api", 5, time.Minute)
		assert.True(t, result.Allowed, "request %d should be allowed", i)
		assert.Equal(t, 5-i, result.Remaining)
	}

	result := limiter.Check(context.Background(), "1.2.3.4:/api", 5, time.Minute)
	assert.False(t, result.Allowed, "6th request must be rejected")
	assert.Equal(t, 0, result.Remaining)
	assert.Equal(t, 5, result.Limit)
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewMemoryLimiter()

	for i := 0; i < 3; i++ {
		limiter.Check(context.Background(), "1.2.3.4:/api", 2, time.Minute)
	}

	result := limiter.Check(context.Background(), "5.6.7.8:/api", 2, time.Minute)
	assert.True(t, result.Allowed)

	result = limiter.Check(context.Background(), "1.2.3.4:/other", 2, time.Minute)
	assert.True(t, result.Allowed)
}

func TestMemoryLimiterWindowReset(t *testing.T) {
	limiter := NewMemoryLimiter()

	window := 30 * time.Millisecond
	for i := 0; i < 3; i++ {
		limiter.Check(context.Background(), "1.2.3.4:/api", 2, window)
	}

	result := limiter.Check(context.Background(), "1.2.3.4:/api", 2, window)
	assert.False(t, result.Allowed)

	time.Sleep(window + 10*time.Millisecond)

	result = limiter.Check(context.Background(), "1.2.3.4:/api", 2, window)
	assert.True(t, result.Allowed, "first request after window reset must be allowed")
	assert.Equal(t, 1, result.Remaining)
}

func TestMemoryLimiterResetTime(t *testing.T) {
	limiter := NewMemoryLimiter()

	before := time.Now()
	result := limiter.Check(context.Background(), "1.2.3.4:/api", 5, time.Minute)

	assert.False(t, result.ResetAt.Before(before))
	assert.False(t, result.ResetAt.After(before.Add(time.Minute+time.Second)))
}

func TestMemoryLimiterConcurrentIncrements(t *testing.T) {
	limiter := NewMemoryLimiter()

	const workers = 20
	var wg sync.WaitGroup
	rejected := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !limiter.Check(context.Background(), "1.2.3.4:/api", 10, time.Minute).Allowed {
				rejected <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(rejected)

	assert.Equal(t, workers-10, len(rejected))
}
