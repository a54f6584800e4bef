// Package ratelimit provides a per-key sliding-window rate limiter, used to
// throttle credential guessing against the auth endpoints.
package ratelimit

import (
	"sync"
	"time"
)

// KeyedLimiter tracks request timestamps per key (client IP, account email)
// over a sliding window. Zero keys cost nothing; stale keys are evicted
// lazily on access.
type KeyedLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	entries map[string][]time.Time

	now func() time.Time // test hook
}

func NewKeyedLimiter(limit int, window time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		limit:   limit,
		window:  window,
		entries: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records one request for key and reports whether it is within the
// limit. Denied requests are not recorded, so a throttled client does not
// extend its own penalty.
func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.entries[key][:0]
	for _, t := range l.entries[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.limit {
		l.entries[key] = kept
		return false
	}

	l.entries[key] = append(kept, now)
	return true
}

// Remaining reports how many requests key may still make in the current
// window.
func (l *KeyedLimiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	n := 0
	for _, t := range l.entries[key] {
		if t.After(cutoff) {
			n++
		}
	}
	if n >= l.limit {
		return 0
	}
	return l.limit - n
}

// RetryAfter reports how long until key's oldest in-window request ages out.
// Zero when the key is not currently throttled.
func (l *KeyedLimiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	var inWindow []time.Time
	for _, t := range l.entries[key] {
		if t.After(cutoff) {
			inWindow = append(inWindow, t)
		}
	}
	if len(inWindow) < l.limit {
		return 0
	}

	oldest := inWindow[0]
	for _, t := range inWindow[1:] {
		if t.Before(oldest) {
			oldest = t
		}
	}
	return oldest.Add(l.window).Sub(now)
}

// Reset clears the history for key. Called after a successful login so a
// legitimate user who fumbled a password is not penalized further.
func (l *KeyedLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}
