// Package ratelimit provides the per-source request budget bookkeeper used
// by data source adapters. Admission is a sliding-window counter: at most
// MaxRequests may start inside any window, and callers block until the
// window reopens or their deadline elapses.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ErrDeadline is returned when the caller's deadline elapses before the
// window reopens.
var ErrDeadline = fmt.Errorf("rate limit wait exceeded deadline")

// Limiter is a sliding-window rate limiter. Safe for concurrent use: all
// symbols being collected in parallel share one budget per source.
type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	starts []time.Time // request start times inside the current window
	now    func() time.Time

	waits int64 // number of Wait calls that had to block
}

// New creates a limiter admitting max requests per window.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// newWithClock is used by tests to control time.
func newWithClock(max int, window time.Duration, now func() time.Time) *Limiter {
	l := New(max, window)
	l.now = now
	return l
}

// prune drops start times that have slid out of the window.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.starts) && !l.starts[i].After(cutoff) {
		i++
	}
	l.starts = l.starts[i:]
}

// Allow reports whether a request may start immediately, reserving a slot
// when it can.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	if len(l.starts) >= l.max {
		return false
	}
	l.starts = append(l.starts, now)
	return true
}

// retryAfter returns how long until the oldest in-window request slides out.
// Callers must hold the lock.
func (l *Limiter) retryAfter(now time.Time) time.Duration {
	if len(l.starts) == 0 {
		return 0
	}
	return l.starts[0].Add(l.window).Sub(now)
}

// Wait blocks until a slot opens or ctx is done. It returns ErrDeadline
// (wrapping the context error) when the deadline elapses first.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)
		if len(l.starts) < l.max {
			l.starts = append(l.starts, now)
			l.mu.Unlock()
			return nil
		}
		sleep := l.retryAfter(now)
		l.waits++
		l.mu.Unlock()

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", ErrDeadline, ctx.Err())
		case <-timer.C:
		}
	}
}

// Pending returns how many requests currently occupy the window.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.starts)
}

// BlockedWaits returns how many Wait calls had to block at least once.
func (l *Limiter) BlockedWaits() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waits
}
