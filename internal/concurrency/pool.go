// Package concurrency provides bounded-concurrency primitives; the
// evaluator suite's parallel dispatch is their only user.
package concurrency

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool limits concurrent work using a weighted semaphore. The evaluator
// suite creates one Pool per parallel evaluation and runs each evaluator
// through it, bounding that evaluation's in-flight calls (spec §5:
// "bounded by max_concurrent enforced by a permit pool").
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a Pool that allows at most limit concurrent operations.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Run acquires a slot, runs fn, and releases the slot. Blocks if all slots
// are busy. Returns ctx.Err() if the context is cancelled while waiting for
// a slot. If the pool is nil, fn is executed directly without concurrency
// control.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}

// TryRun attempts to acquire a slot without blocking. It returns false if no
// slot was available.
func (p *Pool) TryRun(fn func() error) (ran bool, err error) {
	if p == nil || p.sem == nil {
		return true, fn()
	}
	if !p.sem.TryAcquire(1) {
		return false, nil
	}
	defer p.sem.Release(1)
	return true, fn()
}
