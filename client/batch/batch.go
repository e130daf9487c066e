// Package batch runs indexed work concurrently with an optional bound on
// how many items are in flight.
package batch

import (
	"context"
	"sync"
)

// Group tracks a set of goroutines sharing one concurrency limit.
type Group struct {
	wg  sync.WaitGroup
	sem chan struct{}
}

// New creates a Group. If maxConcurrent <= 0, concurrency is unlimited.
func New(maxConcurrent int) *Group {
	g := &Group{}
	if maxConcurrent > 0 {
		g.sem = make(chan struct{}, maxConcurrent)
	}
	return g
}

// Go launches fn in a new goroutine once a slot is free. If ctx ends
// while waiting for a slot, fn still runs, without a slot, so that it
// can report the cancellation itself.
func (g *Group) Go(ctx context.Context, fn func(ctx context.Context)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		if g.sem != nil {
			select {
			case g.sem <- struct{}{}:
				defer func() {
					<-g.sem
				}()
			case <-ctx.Done():
			}
		}

		fn(ctx)
	}()
}

// Wait blocks until every function started with Go has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}

// Run calls fn for every index in [0, n) and returns the outcomes in
// index order, whatever order they complete in. A non-positive n yields
// an empty, non-nil slice.
func Run[T any](ctx context.Context, n, maxConcurrent int, fn func(ctx context.Context, i int) T) []T {
	if n <= 0 {
		return []T{}
	}

	out := make([]T, n)
	g := New(maxConcurrent)
	for i := range n {
		g.Go(ctx, func(ctx context.Context) {
			out[i] = fn(ctx, i)
		})
	}
	g.Wait()

	return out
}
