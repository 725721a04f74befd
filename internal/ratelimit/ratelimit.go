package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter paces renderer navigations against the storefront.
type Limiter interface {
	Wait(ctx context.Context) error
}

// JitterLimiter spaces consecutive Wait calls by a random gap in
// [minDelay, maxDelay). A zero gap disables pacing.
type JitterLimiter struct {
	minDelay time.Duration
	maxDelay time.Duration

	mu   sync.Mutex
	last time.Time
}

func NewJitterLimiter(minDelay, maxDelay time.Duration) *JitterLimiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &JitterLimiter{minDelay: minDelay, maxDelay: maxDelay}
}

func (l *JitterLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	gap := l.nextGap()
	if gap > 0 {
		if remaining := gap - time.Since(l.last); remaining > 0 {
			timer := time.NewTimer(remaining)
			defer timer.Stop()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	l.last = time.Now()
	return ctx.Err()
}

func (l *JitterLimiter) nextGap() time.Duration {
	if l.maxDelay <= l.minDelay {
		return l.minDelay
	}
	return l.minDelay + time.Duration(rand.Int63n(int64(l.maxDelay-l.minDelay)))
}
