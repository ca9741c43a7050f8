package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter bounds the requests a client may send per minute and the
// bytes it may upload per day. A zero limit disables that check.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	maxBytesPerDay    int64

	now     func() time.Time
	clients map[string]*clientUsage
}

// clientUsage tracks one client's current windows.
type clientUsage struct {
	windowStart time.Time
	requests    int

	day   time.Time
	bytes int64
}

// NewRateLimiter creates a rate limiter with the given limits.
func NewRateLimiter(requestsPerMinute int, maxBytesPerDay int64) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		maxBytesPerDay:    maxBytesPerDay,
		now:               time.Now,
		clients:           make(map[string]*clientUsage),
	}
}

// Allow records a request of size bytes from client, or returns a
// *RateLimitError or *QuotaExceededError without recording it.
func (rl *RateLimiter) Allow(client string, size int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	usage, ok := rl.clients[client]
	if !ok {
		usage = &clientUsage{windowStart: now, day: startOfDay(now)}
		rl.clients[client] = usage
	}

	if now.Sub(usage.windowStart) >= time.Minute {
		usage.windowStart = now
		usage.requests = 0
	}
	if today := startOfDay(now); !today.Equal(usage.day) {
		usage.day = today
		usage.bytes = 0
	}

	if rl.requestsPerMinute > 0 && usage.requests >= rl.requestsPerMinute {
		return &RateLimitError{
			Limit:      rl.requestsPerMinute,
			RetryAfter: time.Minute - now.Sub(usage.windowStart),
		}
	}
	if rl.maxBytesPerDay > 0 && usage.bytes+size > rl.maxBytesPerDay {
		return &QuotaExceededError{
			Limit:  rl.maxBytesPerDay,
			Used:   usage.bytes,
			Resets: usage.day.AddDate(0, 0, 1),
		}
	}

	usage.requests++
	usage.bytes += size
	return nil
}

// Usage returns the requests in the current minute window and the bytes
// uploaded today by client.
func (rl *RateLimiter) Usage(client string) (requests int, bytes int64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if u, ok := rl.clients[client]; ok {
		return u.requests, u.bytes
	}
	return 0, 0
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// RateLimitError reports too many requests within a minute.
type RateLimitError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (limit: %d per minute, retry after: %v)", e.Limit, e.RetryAfter)
}

// QuotaExceededError reports an exhausted daily upload quota.
type QuotaExceededError struct {
	Limit  int64
	Used   int64
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("upload quota exceeded (used: %d, limit: %d bytes, resets: %s)",
		e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
