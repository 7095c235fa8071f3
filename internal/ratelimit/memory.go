// Package ratelimit applies per-route request limits, keyed by caller.
//
// Two backends satisfy Limiter with the same fixed-window semantics: Memory
// (in process) and store.RedisRateLimiter (shared across restarts).
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/MGallo-Code/moodlog/internal/store"
	"golang.org/x/time/rate"
)

// Policy names a limit: Max requests per Window.
type Policy = store.RateLimit

// Decision is the outcome of one Allow call.
type Decision = store.RateDecision

// Limiter records one request against key under policy.
// A non-nil error means the backend failed, not that the request was denied.
type Limiter interface {
	Allow(ctx context.Context, key string, policy Policy) (Decision, error)
}

type bucket struct {
	limiter *rate.Limiter
	// start opens the current window; the budget refills in full at start+window.
	start  time.Time
	window time.Duration
}

// Memory keeps one fixed window per (policy, key), the same semantics as the
// Redis backend: a window opens on the first request, admits at most Max
// requests and refills completely once Window has elapsed.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewMemory returns an empty limiter. Call Run to evict idle buckets.
func NewMemory() *Memory {
	return &Memory{buckets: make(map[string]*bucket), now: time.Now}
}

// newWindow returns a full budget. The limiter refills one token per Window,
// which never completes inside the window, so it admits at most Max.
func newWindow(policy Policy, now time.Time) *bucket {
	return &bucket{
		limiter: rate.NewLimiter(rate.Every(policy.Window), policy.Max),
		start:   now,
		window:  policy.Window,
	}
}

// Allow takes a token if the current window has one left.
func (m *Memory) Allow(_ context.Context, key string, policy Policy) (Decision, error) {
	now := m.now()
	k := policy.Name + ":" + key

	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[k]
	if !ok || !now.Before(b.start.Add(b.window)) {
		b = newWindow(policy, now)
		m.buckets[k] = b
	}

	reset := b.start.Add(b.window).Sub(now)
	d := Decision{Limit: policy.Max, ResetAfter: reset}
	if !b.limiter.AllowN(now, 1) {
		d.RetryAfter = reset
		return d, nil
	}
	d.Allowed = true
	d.Remaining = max(0, int(b.limiter.TokensAt(now)))
	return d, nil
}

// Sweep drops buckets whose window has ended; the next request would open a
// fresh one anyway. Returns the number removed.
func (m *Memory) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, b := range m.buckets {
		if !now.Before(b.start.Add(b.window)) {
			delete(m.buckets, k)
			removed++
		}
	}
	return removed
}

// Len reports how many buckets are live.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// Run sweeps every interval until ctx is done.
func (m *Memory) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			m.Sweep(t)
		}
	}
}
