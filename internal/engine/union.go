package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/fedq/internal/algebra"
	"github.com/roach88/fedq/internal/ir"
)

// evalUnion runs both branches as concurrent tasks feeding one queue.
// Rows of the two branches interleave in arrival order.
func (e *Engine) evalUnion(ctx context.Context, ev env, u *algebra.Union, in ir.BindingSet) (ir.Stream, error) {
	return e.start(ctx, func(ctx context.Context, q *blockQueue) error {
		g, gctx := errgroup.WithContext(ctx)
		for _, branch := range []algebra.Node{u.Left, u.Right} {
			g.Go(func() error {
				return e.pump(gctx, ev, func(ctx context.Context, ev env) (ir.Stream, error) {
					return e.eval(ctx, ev, branch, in)
				}, q)
			})
		}
		return g.Wait()
	}), nil
}
