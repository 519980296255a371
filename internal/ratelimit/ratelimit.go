package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter sleeps between work items. Unlike a token bucket it always waits
// the full delay, no matter how long the previous item took.
type Limiter struct {
	minDelay time.Duration
	maxDelay time.Duration
	waits    int
	mu       sync.Mutex
}

// NewFixed waits exactly delay on every call.
func NewFixed(delay time.Duration) *Limiter {
	return NewJittered(delay, delay)
}

// NewJittered waits a random duration in [minDelay, maxDelay).
func NewJittered(minDelay, maxDelay time.Duration) *Limiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Limiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
	}
}

func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	delay := l.calculateDelay()
	l.waits++
	l.mu.Unlock()

	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Waits returns how many times Wait has been called.
func (l *Limiter) Waits() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waits
}

func (l *Limiter) calculateDelay() time.Duration {
	if l.minDelay == l.maxDelay {
		return l.minDelay
	}

	delta := l.maxDelay - l.minDelay
	return l.minDelay + time.Duration(rand.Int63n(int64(delta)))
}
