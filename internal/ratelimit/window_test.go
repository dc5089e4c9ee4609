package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllow_WithinBudget(t *testing.T) {
	l := New(3, time.Minute)

	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow(), "fourth request in the window must be rejected")
	assert.Equal(t, 3, l.Pending())
}

func TestAllow_WindowSlides(t *testing.T) {
	current := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	l := newWithClock(2, time.Minute, func() time.Time { return current })

	require.True(t, l.Allow())
	require.True(t, l.Allow())
	require.False(t, l.Allow())

	// 30 seconds later the window is still occupied.
	current = current.Add(30 * time.Second)
	assert.False(t, l.Allow())

	// 61 seconds after the first two requests, both have slid out.
	current = current.Add(31 * time.Second)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}

func TestWait_BlocksUntilWindowReopens(t *testing.T) {
	// 2 requests per 200ms; 5 requests must take at least 2 windows.
	l := New(2, 200*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 400*time.Millisecond,
		"5 requests at 2 per 200ms window must span at least 2 full windows")
	assert.Greater(t, l.BlockedWaits(), int64(0))
}

func TestWait_DeadlineElapses(t *testing.T) {
	l := New(1, time.Hour)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeadline)
}

func TestWait_SharedBudgetAcrossGoroutines(t *testing.T) {
	l := New(2, 150*time.Millisecond)
	ctx := context.Background()

	done := make(chan time.Time, 6)
	start := time.Now()
	for i := 0; i < 6; i++ {
		go func() {
			if err := l.Wait(ctx); err == nil {
				done <- time.Now()
			}
		}()
	}

	var last time.Time
	for i := 0; i < 6; i++ {
		last = <-done
	}

	// 6 requests at 2 per window need at least 2 extra windows.
	assert.GreaterOrEqual(t, last.Sub(start), 300*time.Millisecond)
}
