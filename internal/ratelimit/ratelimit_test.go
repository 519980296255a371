package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedWaitsFullDelay(t *testing.T) {
	l := NewFixed(20 * time.Millisecond)

	start := time.Now()
	assert.NoError(t, l.Wait(context.Background()))
	assert.NoError(t, l.Wait(context.Background()))

	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, 2, l.Waits())
}

func TestWaitHonorsCancellation(t *testing.T) {
	l := NewFixed(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.Wait(ctx), context.Canceled)
}

func TestZeroDelay(t *testing.T) {
	l := NewFixed(0)
	assert.NoError(t, l.Wait(context.Background()))
}

func TestJitterStaysInRange(t *testing.T) {
	l := NewJittered(10*time.Millisecond, 30*time.Millisecond)
	for i := 0; i < 100; i++ {
		d := l.calculateDelay()
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.Less(t, d, 30*time.Millisecond)
	}

	assert.Equal(t, 50*time.Millisecond, NewJittered(50*time.Millisecond, 10*time.Millisecond).calculateDelay())
}
