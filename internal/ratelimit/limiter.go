// Package ratelimit provides an in-process per-dependency rate limiter. Each
// key gets its own timeline: Acquire blocks the caller until the configured
// minimum interval has elapsed since the key's previous call.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter spaces calls per key. The interval is derived from a requests/second
// ceiling at construction time and applies to every key independently.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     map[string]time.Time
}

// New creates a Limiter allowing at most perSecond calls per key per second.
// perSecond <= 0 disables limiting (Acquire returns immediately).
func New(perSecond float64) *Limiter {
	var interval time.Duration
	if perSecond > 0 {
		interval = time.Duration(float64(time.Second) / perSecond)
	}
	return &Limiter{
		interval: interval,
		next:     make(map[string]time.Time),
	}
}

// Acquire blocks until the key's next slot is available, then claims it.
// Slots are handed out under the mutex so concurrent callers on the same key
// queue up one interval apart; distinct keys never wait on each other.
func (l *Limiter) Acquire(ctx context.Context, key string) error {
	if l.interval <= 0 {
		return nil
	}

	l.mu.Lock()
	now := time.Now()
	slot := l.next[key]
	if slot.Before(now) {
		slot = now
	}
	l.next[key] = slot.Add(l.interval)
	l.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("ratelimit: acquire %s: %w", key, ctx.Err())
	case <-timer.C:
		return nil
	}
}
