// Package ratelimit implements an in-memory token-bucket limiter keyed by
// caller. The classifier uses it to throttle manual retrain triggers.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// entry tracks the token-bucket state for a single key.
type entry struct {
	tokens    float64
	lastCheck time.Time
}

// Limiter grants each key `limit` tokens per window, refilled continuously.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	limit   int
	window  time.Duration
	now     func() time.Time
}

// New creates a limiter allowing limit requests per window for every key.
func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 1
	}
	return &Limiter{
		entries: make(map[string]*entry),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Allow consumes one token for key and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, exists := l.entries[key]
	if !exists {
		l.entries[key] = &entry{
			tokens:    float64(l.limit - 1),
			lastCheck: now,
		}
		return true
	}

	elapsed := now.Sub(e.lastCheck)
	e.lastCheck = now

	rate := float64(l.limit) / l.window.Seconds()
	e.tokens += elapsed.Seconds() * rate
	if e.tokens > float64(l.limit) {
		e.tokens = float64(l.limit)
	}

	if e.tokens < 1 {
		return false
	}
	e.tokens--
	return true
}

// StartCleanup drops idle keys every interval until ctx is cancelled.
func (l *Limiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.sweep()
			}
		}
	}()
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.window)
	for key, e := range l.entries {
		if e.lastCheck.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}
