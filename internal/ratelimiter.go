package internal

import (
	"sync"
	"time"
)

// RateLimiter is a keyed sliding-window limiter. The upload endpoint keys it
// by client IP.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records a hit for key and reports whether it fits in the window.
// A limiter with a non-positive limit allows everything.
func (r *RateLimiter) Allow(key string) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := pruneBefore(r.hits[key], now.Add(-r.window))
	if len(kept) >= r.limit {
		r.hits[key] = kept
		return false
	}
	r.hits[key] = append(kept, now)
	return true
}

// Sweep forgets keys with no hits inside the window.
func (r *RateLimiter) Sweep() {
	if r == nil {
		return
	}
	cutoff := r.now().Add(-r.window)
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, hits := range r.hits {
		if kept := pruneBefore(hits, cutoff); len(kept) == 0 {
			delete(r.hits, key)
		} else {
			r.hits[key] = kept
		}
	}
}

func pruneBefore(hits []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for _, ts := range hits {
		if ts.After(cutoff) {
			hits[idx] = ts
			idx++
		}
	}
	return hits[:idx]
}
