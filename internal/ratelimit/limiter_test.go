package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitAllowsBurst(t *testing.T) {
	limiter := New("test", 10)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	for range 10 {
		require.NoError(t, limiter.Wait(ctx))
	}
	require.Less(t, time.Since(start), time.Second, "burst capacity should absorb the first requests")
}

func TestWaitThrottlesBeyondBurst(t *testing.T) {
	limiter := New("test", 5)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	for range 7 {
		require.NoError(t, limiter.Wait(ctx))
	}
	require.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	limiter := NewWithBurst("test", 0.1, 1)
	require.True(t, limiter.Allow(), "burst token available immediately")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "test")
}

func TestFractionalRate(t *testing.T) {
	limiter := New("slow", 0.5)
	require.True(t, limiter.Allow())
	require.False(t, limiter.Allow(), "fractional rates still get a burst of one")
}

func TestName(t *testing.T) {
	require.Equal(t, "GoogleBooks", New("GoogleBooks", 1).Name())
}
