package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnboundedLimiterNeverBlocks(t *testing.T) {
	l := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Consume(ctx, 10_000_000))
}

func TestBoundedLimiterThrottlesOverBurst(t *testing.T) {
	l := New(1000) // 1000 bytes/sec, burst == 1000

	start := time.Now()
	require.NoError(t, l.Consume(context.Background(), 1000)) // drains the bucket, no wait
	require.NoError(t, l.Consume(context.Background(), 500))  // must wait ~0.5s for refill
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 400*time.Millisecond)
}

func TestConsumeHonorsCancellation(t *testing.T) {
	l := New(1) // 1 byte/sec: any meaningful consume blocks a long time

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Consume(ctx, 1000)
	require.Error(t, err)
}

func TestManagerIsolatesByClientAndLibrary(t *testing.T) {
	mgr := NewManager(map[string]uint64{"lib1": 1000, "lib2": 0})

	a := mgr.Get("client-a", "lib1")
	b := mgr.Get("client-b", "lib1")
	assert.NotSame(t, a, b)

	again := mgr.Get("client-a", "lib1")
	assert.Same(t, a, again)

	unbounded := mgr.Get("client-a", "lib2")
	require.NoError(t, unbounded.Consume(context.Background(), 1<<30))
}
