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
	mu       sync.Mutex
	counters map[string]*memoryEntry
	lastGC   int64
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memoryEntry),
	}
}

// Allow checks whether the request should be allowed in the window containing now.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	start, size := windowStart(now, window)
	reset := time.Unix(start+size, 0).UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.collect(start)
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

// collect drops counters from past windows. Callers hold l.mu.
func (l *MemoryLimiter) collect(current int64) {
	if current == l.lastGC {
		return
	}
	l.lastGC = current
	for key, entry := range l.counters {
		if entry.window < current {
			delete(l.counters, key)
		}
	}
}
