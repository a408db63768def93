package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitConfig bounds what a single client may request. Zero disables
// the corresponding limit.
type RateLimitConfig struct {
	RequestsPerMinute int
	RequestsPerHour   int
	RequestsPerDay    int
	MaxDataPerDay     int64 // request body bytes
}

// Enabled reports whether any limit is set.
func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerMinute > 0 || c.RequestsPerHour > 0 || c.RequestsPerDay > 0 || c.MaxDataPerDay > 0
}

// RateLimiter counts requests per client in fixed minute, hour and day
// windows. Windows start at a client's first request in them.
type RateLimiter struct {
	mu     sync.Mutex
	cfg    RateLimitConfig
	now    func() time.Time
	usage  map[string]*UserUsage
	pruned time.Time
}

// UserUsage tracks usage for one client.
type UserUsage struct {
	MinuteStart time.Time
	HourStart   time.Time
	DayStart    time.Time

	RequestsLastMinute int
	RequestsLastHour   int
	RequestsToday      int
	DataToday          int64
	LastRequest        time.Time
}

// NewRateLimiter creates a rate limiter, or nil when cfg sets no limit.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if !cfg.Enabled() {
		return nil
	}
	return &RateLimiter{cfg: cfg, now: time.Now, usage: make(map[string]*UserUsage)}
}

// CheckRateLimit records a request of dataSize bytes from clientID, or
// returns a *RateLimitError or *QuotaExceededError without recording it.
func (rl *RateLimiter) CheckRateLimit(clientID string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.prune(now)

	u, ok := rl.usage[clientID]
	if !ok {
		u = &UserUsage{MinuteStart: now, HourStart: now, DayStart: startOfDay(now)}
		rl.usage[clientID] = u
	}
	u.roll(now)

	if l := rl.cfg.RequestsPerMinute; l > 0 && u.RequestsLastMinute >= l {
		return &RateLimitError{Type: "minute", Limit: l, RetryAfter: u.MinuteStart.Add(time.Minute).Sub(now)}
	}
	if l := rl.cfg.RequestsPerHour; l > 0 && u.RequestsLastHour >= l {
		return &RateLimitError{Type: "hour", Limit: l, RetryAfter: u.HourStart.Add(time.Hour).Sub(now)}
	}
	resets := u.DayStart.AddDate(0, 0, 1)
	if l := rl.cfg.RequestsPerDay; l > 0 && u.RequestsToday >= l {
		return &QuotaExceededError{Type: "requests", Limit: int64(l), Used: int64(u.RequestsToday), Resets: resets}
	}
	if l := rl.cfg.MaxDataPerDay; l > 0 && u.DataToday+dataSize > l {
		return &QuotaExceededError{Type: "data", Limit: l, Used: u.DataToday, Resets: resets}
	}

	u.RequestsLastMinute++
	u.RequestsLastHour++
	u.RequestsToday++
	u.DataToday += dataSize
	u.LastRequest = now
	return nil
}

// roll starts new windows for every period that has elapsed.
func (u *UserUsage) roll(now time.Time) {
	if now.Sub(u.MinuteStart) >= time.Minute {
		u.MinuteStart, u.RequestsLastMinute = now, 0
	}
	if now.Sub(u.HourStart) >= time.Hour {
		u.HourStart, u.RequestsLastHour = now, 0
	}
	if day := startOfDay(now); !day.Equal(u.DayStart) {
		u.DayStart, u.RequestsToday, u.DataToday = day, 0, 0
	}
}

// prune forgets clients idle for more than a day, at most once an hour.
func (rl *RateLimiter) prune(now time.Time) {
	if now.Sub(rl.pruned) < time.Hour {
		return
	}
	rl.pruned = now
	for id, u := range rl.usage {
		if now.Sub(u.LastRequest) > 24*time.Hour {
			delete(rl.usage, id)
		}
	}
}

// GetUsage returns a copy of the usage recorded for clientID.
func (rl *RateLimiter) GetUsage(clientID string) UserUsage {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if u, ok := rl.usage[clientID]; ok {
		return *u
	}
	return UserUsage{}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string        // "minute" or "hour"
	Limit      int           // the limit that was exceeded
	RetryAfter time.Duration // how long to wait before retrying
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError represents a daily quota violation.
type QuotaExceededError struct {
	Type   string    // "requests" or "data"
	Limit  int64     // the limit that was exceeded
	Used   int64     // current usage
	Resets time.Time // when the quota resets
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
