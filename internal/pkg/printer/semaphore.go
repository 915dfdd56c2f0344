package printer

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// ConcurrencyGate caps the number of simultaneous PDF orchestrations so
// they never outrun the browser's real capacity.
type ConcurrencyGate struct {
	sem *semaphore.Weighted
}

// NewConcurrencyGate returns a gate with the given number of permits.
func NewConcurrencyGate(permits int64) *ConcurrencyGate {
	return &ConcurrencyGate{sem: semaphore.NewWeighted(permits)}
}

// Acquire blocks for one permit, or returns ctx.Err() if ctx is done
// first.
func (g *ConcurrencyGate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// Release returns one permit. Must be called exactly once per
// successful Acquire, on every exit path.
func (g *ConcurrencyGate) Release() {
	g.sem.Release(1)
}
