// Package ratelimit provides per-client sliding-window rate limiters.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether a request from clientID may proceed at now.
type Limiter interface {
	Allow(clientID string, now time.Time) bool
}

// RateLimiter is an in-memory sliding-window log limiter. It remembers the
// admission time of every request inside the trailing window, per client.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string][]time.Time
}

// New creates a rate limiter that admits at most limit requests per client
// within any window-long interval.
func New(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string][]time.Time),
	}
}

// Allow records and admits the request if the client still has room in its
// window. Expired timestamps are pruned whether or not the request is admitted.
func (rl *RateLimiter) Allow(clientID string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	pruned := rl.prune(rl.clients[clientID], now)

	if len(pruned) >= rl.limit {
		rl.clients[clientID] = pruned
		return false
	}

	rl.clients[clientID] = append(pruned, now)
	return true
}

// record appends now to clientID's log without checking the limit. It keeps
// the local log in step with decisions made elsewhere.
func (rl *RateLimiter) record(clientID string, now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.clients[clientID] = append(rl.prune(rl.clients[clientID], now), now)
}

// Remaining reports how many more requests clientID could make at now
// without changing any state.
func (rl *RateLimiter) Remaining(clientID string, now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	retained := 0
	for _, t := range rl.clients[clientID] {
		if now.Sub(t) <= rl.window {
			retained++
		}
	}

	if remaining := rl.limit - retained; remaining > 0 {
		return remaining
	}
	return 0
}

// Limit returns the maximum number of admissions per window.
func (rl *RateLimiter) Limit() int {
	return rl.limit
}

// Window returns the sliding window length.
func (rl *RateLimiter) Window() time.Duration {
	return rl.window
}

// Clients returns the number of tracked client entries, expired or not.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return len(rl.clients)
}

// Sweep deletes clients whose timestamps have all expired at now and
// returns how many were removed.
func (rl *RateLimiter) Sweep(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for clientID, timestamps := range rl.clients {
		if len(rl.prune(timestamps, now)) == 0 {
			delete(rl.clients, clientID)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done. onSweep, if not
// nil, receives the number of entries removed by each pass.
func (rl *RateLimiter) StartSweeper(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			removed := rl.Sweep(now)
			if onSweep != nil {
				onSweep(removed)
			}
		case <-ctx.Done():
			return
		}
	}
}

// prune drops timestamps for which now-t > window. Must be called with mu held.
func (rl *RateLimiter) prune(timestamps []time.Time, now time.Time) []time.Time {
	pruned := make([]time.Time, 0, len(timestamps)+1)
	for _, t := range timestamps {
		if now.Sub(t) <= rl.window {
			pruned = append(pruned, t)
		}
	}
	return pruned
}
