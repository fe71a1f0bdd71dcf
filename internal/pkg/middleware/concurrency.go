package middleware

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// ConcurrencyGate bounds how many requests are processed at once. Waiters
// block until a permit frees or their context ends; nothing is shed.
type ConcurrencyGate struct {
	sem *semaphore.Weighted
	max int64
}

// NewConcurrencyGate creates a gate with max permits.
func NewConcurrencyGate(max int) *ConcurrencyGate {
	if max <= 0 {
		max = 1
	}
	return &ConcurrencyGate{
		sem: semaphore.NewWeighted(int64(max)),
		max: int64(max),
	}
}

// Max returns the number of permits.
func (g *ConcurrencyGate) Max() int {
	return int(g.max)
}

// Acquire blocks for a permit. The returned release func must be called
// exactly once when the work is done.
func (g *ConcurrencyGate) Acquire(ctx context.Context) (release func(), err error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { g.sem.Release(1) }, nil
}

// Do runs fn while holding a permit.
func (g *ConcurrencyGate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	release, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}
