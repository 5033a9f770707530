package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// RateLimiter caps requests per caller key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

const sweepEvery = 1024

type windowCounter struct {
	start time.Time
	count int
}

var _ RateLimiter = (*FixedWindow)(nil)

// FixedWindow is an in-process fixed-window counter. Counters are independent
// per key and are not shared across processes.
type FixedWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	counters map[string]*windowCounter
	calls    int
}

func NewFixedWindow(limit int, window time.Duration) (*FixedWindow, error) {
	return newFixedWindow(limit, window, time.Now)
}

func newFixedWindow(limit int, window time.Duration, nowFn func() time.Time) (*FixedWindow, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("rate limit window must be positive, got %s", window)
	}
	if nowFn == nil {
		nowFn = time.Now
	}

	return &FixedWindow{
		limit:    limit,
		window:   window,
		now:      nowFn,
		counters: make(map[string]*windowCounter),
	}, nil
}

func (f *FixedWindow) Allow(_ context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("rate limit key is required")
	}

	start := f.now().Truncate(f.window)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.calls%sweepEvery == 0 {
		f.sweep(start)
	}

	c, ok := f.counters[key]
	if !ok || !c.start.Equal(start) {
		c = &windowCounter{start: start}
		f.counters[key] = c
	}
	c.count++

	return c.count <= f.limit, nil
}

func (f *FixedWindow) sweep(current time.Time) {
	for key, c := range f.counters {
		if c.start.Before(current) {
			delete(f.counters, key)
		}
	}
}
