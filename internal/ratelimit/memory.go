package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	window int64
	count  int
}

// MemoryLimiter implements a fixed-window in-memory rate limiter.
type MemoryLimiter struct {
	mu        sync.Mutex
	counters  map[string]*memoryEntry
	lastSweep int64
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memoryEntry),
	}
}

// Allow checks whether the request should be allowed in the current window.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	start := windowStart(now)
	reset := windowReset(start)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(start)

	entry := l.counters[key]
	if entry == nil {
		entry = &memoryEntry{window: start}
		l.counters[key] = entry
	}
	if entry.window != start {
		entry.window = start
		entry.count = 0
	}
	if entry.count >= limit {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	entry.count++
	return Result{Allowed: true, Remaining: limit - entry.count, Reset: reset}, nil
}

// sweepLocked drops counters from earlier windows once per window.
func (l *MemoryLimiter) sweepLocked(start int64) {
	if l.lastSweep == start {
		return
	}
	l.lastSweep = start
	for key, entry := range l.counters {
		if entry.window < start {
			delete(l.counters, key)
		}
	}
}
