package server

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source for the rate limiter.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(cfg RateLimitConfig) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, time.March, 14, 10, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(cfg)
	rl.now = clock.now
	return rl, clock
}

func TestNewRateLimiter_Disabled(t *testing.T) {
	assert.Nil(t, NewRateLimiter(RateLimitConfig{}))
	assert.NotNil(t, NewRateLimiter(RateLimitConfig{MaxDataPerDay: 1}))
}

func TestRateLimiter_PerMinute(t *testing.T) {
	rl, clock := newTestLimiter(RateLimitConfig{RequestsPerMinute: 2})

	require.NoError(t, rl.CheckRateLimit("a", 0))
	require.NoError(t, rl.CheckRateLimit("a", 0))

	clock.advance(20 * time.Second)
	err := rl.CheckRateLimit("a", 0)
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, "minute", rateErr.Type)
	assert.Equal(t, 2, rateErr.Limit)
	assert.Equal(t, 40*time.Second, rateErr.RetryAfter)

	require.NoError(t, rl.CheckRateLimit("b", 0), "clients are counted separately")

	clock.advance(40 * time.Second)
	require.NoError(t, rl.CheckRateLimit("a", 0), "a new minute window starts")
	assert.Equal(t, 1, rl.GetUsage("a").RequestsLastMinute)
}

func TestRateLimiter_PerHour(t *testing.T) {
	rl, clock := newTestLimiter(RateLimitConfig{RequestsPerHour: 3})

	for range 3 {
		require.NoError(t, rl.CheckRateLimit("a", 0))
		clock.advance(10 * time.Minute)
	}
	err := rl.CheckRateLimit("a", 0)
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, "hour", rateErr.Type)
	assert.Equal(t, 30*time.Minute, rateErr.RetryAfter)

	clock.advance(30 * time.Minute)
	assert.NoError(t, rl.CheckRateLimit("a", 0))
}

func TestRateLimiter_DailyRequests(t *testing.T) {
	rl, clock := newTestLimiter(RateLimitConfig{RequestsPerDay: 1})

	require.NoError(t, rl.CheckRateLimit("a", 0))
	err := rl.CheckRateLimit("a", 0)
	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, "requests", quotaErr.Type)
	assert.Equal(t, int64(1), quotaErr.Used)
	assert.Equal(t, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), quotaErr.Resets)

	clock.advance(14 * time.Hour)
	assert.NoError(t, rl.CheckRateLimit("a", 0), "quota resets at midnight")
}

func TestRateLimiter_DailyData(t *testing.T) {
	rl, _ := newTestLimiter(RateLimitConfig{MaxDataPerDay: 100})

	require.NoError(t, rl.CheckRateLimit("a", 60))
	err := rl.CheckRateLimit("a", 60)
	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, "data", quotaErr.Type)
	assert.Equal(t, int64(60), quotaErr.Used)

	require.NoError(t, rl.CheckRateLimit("a", 40))
	assert.Equal(t, int64(100), rl.GetUsage("a").DataToday)
}

func TestRateLimiter_RejectedRequestsAreNotCounted(t *testing.T) {
	rl, _ := newTestLimiter(RateLimitConfig{RequestsPerMinute: 1, RequestsPerDay: 10})

	require.NoError(t, rl.CheckRateLimit("a", 0))
	for range 5 {
		require.Error(t, rl.CheckRateLimit("a", 0))
	}
	assert.Equal(t, 1, rl.GetUsage("a").RequestsToday)
}

func TestRateLimiter_PrunesIdleClients(t *testing.T) {
	rl, clock := newTestLimiter(RateLimitConfig{RequestsPerMinute: 10})

	require.NoError(t, rl.CheckRateLimit("idle", 0))
	clock.advance(25 * time.Hour)
	require.NoError(t, rl.CheckRateLimit("active", 0))

	assert.Equal(t, UserUsage{}, rl.GetUsage("idle"))
	assert.Equal(t, 1, rl.GetUsage("active").RequestsToday)
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl, _ := newTestLimiter(RateLimitConfig{RequestsPerMinute: 50})

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- rl.CheckRateLimit(fmt.Sprintf("client-%d", i%2), 0)
		}()
	}
	wg.Wait()
	close(errs)

	var failed int
	for err := range errs {
		if err != nil {
			failed++
		}
	}
	assert.Equal(t, 0, failed, "two clients with 50 requests each stay within the limit")
	assert.Equal(t, 50, rl.GetUsage("client-0").RequestsLastMinute)
}

func TestRateLimitErrors_Message(t *testing.T) {
	err := &RateLimitError{Type: "minute", Limit: 5, RetryAfter: 30 * time.Second}
	assert.Contains(t, err.Error(), "rate limit exceeded for minute")

	quota := &QuotaExceededError{Type: "data", Limit: 10, Used: 10, Resets: time.Unix(0, 0).UTC()}
	assert.Contains(t, quota.Error(), "quota exceeded for data")
	assert.Contains(t, quota.Error(), "1970-01-01T00:00:00Z")
}
