package fetch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool bounds how many repository syncs or package downloads run
// concurrently, grounded on golang.org/x/sync/errgroup's cancel-on-
// first-error semantics.
type Pool struct {
	limit int
}

// NewPool returns a Pool that runs at most limit tasks concurrently.
// A limit <= 0 means unbounded.
func NewPool(limit int) *Pool {
	return &Pool{limit: limit}
}

// Run executes fn once per item, bounded by the pool's concurrency
// limit, and returns the first error encountered (if any), canceling
// ctx for the remaining in-flight tasks.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return fn(gctx, i)
		})
	}
	return g.Wait()
}
