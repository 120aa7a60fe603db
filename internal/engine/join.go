package engine

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/fedq/internal/algebra"
	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/member"
	"github.com/roach88/fedq/internal/render"
)

// indexVar carries the position of each left-hand row through a bound-join
// request so results can be matched back to their row.
const indexVar = "__index"

// evalJoin evaluates args left to right. The first argument is evaluated
// against in; every later argument becomes a join step that consumes the
// previous step's rows in a background task.
func (e *Engine) evalJoin(ctx context.Context, ev env, args []algebra.Node, in ir.BindingSet) (ir.Stream, error) {
	if len(args) == 0 {
		return ir.NewSliceStream(in), nil
	}
	s, err := e.eval(ctx, ev, args[0], in)
	if err != nil {
		return nil, err
	}
	for _, arg := range args[1:] {
		s = e.joinStep(ctx, ev, s, arg)
	}
	return s, nil
}

// joinStep joins the rows of left with arg.
//
// An owned argument whose owner takes query text is evaluated as a bound
// join: left rows are sent in batches of batchSize as a VALUES block, one
// request per batch. Any other argument is evaluated as a nested loop, once
// per left row. Each batch or row is a task of one errgroup limited to
// parallelism; the first failing task cancels its siblings and the step
// reports that error. Each task pushes its rows as one block, so rows
// sharing a left row stay contiguous.
func (e *Engine) joinStep(ctx context.Context, ev env, left ir.Stream, arg algebra.Node) ir.Stream {
	owned, bound := e.boundJoinTarget(arg)

	return e.start(ctx, func(ctx context.Context, q *blockQueue) error {
		defer left.Close()

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.parallelism)

		var batch []ir.BindingSet
		flush := func() {
			rows := batch
			batch = nil
			g.Go(func() error {
				out, err := e.boundJoin(gctx, ev, owned, rows)
				if err != nil {
					return err
				}
				return q.Enqueue(gctx, out)
			})
		}

		var readErr error
		for {
			row, ok, err := left.Next(gctx)
			if err != nil {
				readErr = err
				break
			}
			if !ok {
				break
			}
			if bound {
				batch = append(batch, row)
				if len(batch) == e.batchSize {
					flush()
				}
				continue
			}
			g.Go(func() error {
				out, err := e.collect(gctx, ev, arg, row)
				if err != nil {
					return err
				}
				return q.Enqueue(gctx, out)
			})
		}
		if readErr == nil && len(batch) > 0 {
			flush()
		}

		if err := g.Wait(); err != nil {
			return err
		}
		return readErr
	})
}

// boundJoinTarget reports whether arg is evaluated as a bound join.
func (e *Engine) boundJoinTarget(arg algebra.Node) (*algebra.Owned, bool) {
	o, ok := arg.(*algebra.Owned)
	if !ok {
		return nil, false
	}
	h, err := e.members.Resolve(o.Member)
	if err != nil || !acceptsQueries(h) {
		return nil, false
	}
	return o, true
}

// collect evaluates n against row and drains the result.
func (e *Engine) collect(ctx context.Context, ev env, n algebra.Node, row ir.BindingSet) ([]ir.BindingSet, error) {
	s, err := e.eval(ctx, ev, n, row)
	if err != nil {
		return nil, err
	}
	return ir.Collect(ctx, s)
}

// boundJoin sends rows to the owner of o in one request and returns the
// joined rows grouped by left row, in left-row order.
func (e *Engine) boundJoin(ctx context.Context, ev env, o *algebra.Owned, rows []ir.BindingSet) ([]ir.BindingSet, error) {
	h, err := e.members.Resolve(o.Member)
	if err != nil {
		return nil, err
	}
	if len(rows) > 1 && render.Sliced(o.Arg) {
		return e.boundJoinEach(ctx, ev, o, rows)
	}

	cols := boundColumns(o.Arg, rows)
	vrows := make([]ir.BindingSet, len(rows))
	for i, row := range rows {
		vrows[i] = row.Project(cols).With(indexVar, ir.NewInteger(int64(i)))
	}
	values := algebra.NewValues(append(cols, indexVar), vrows)

	text, err := render.NewSPARQLRenderer(h.ID).RenderBatch(o.Arg, values, indexVar)
	if err != nil {
		if !render.IsRenderError(err) {
			return nil, err
		}
		e.logger.Warn("bound join not renderable, evaluating per row",
			"member", h.ID,
			"error", err)
		e.metrics.RecordFallback(h.ID)
		return e.perRow(ctx, ev, h, o, rows)
	}

	conn, err := e.members.Connect(ctx, h)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	qc, ok := conn.(member.QueryConnection)
	if !ok {
		return e.perRow(ctx, ev, h, o, rows)
	}

	e.logger.Debug("bound join dispatch",
		"member", h.ID,
		"batch", len(rows),
		"query_hash", ir.QueryHash(text))
	e.metrics.RecordBoundJoinBatch(h.ID, len(rows))

	start := time.Now()
	s, err := qc.Select(ctx, text)
	e.metrics.RecordDispatch(h.ID, opSelect, time.Since(start), err)
	if err != nil {
		return nil, memberFailure(h.ID, text, err)
	}
	results, err := ir.Collect(ctx, s)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, memberFailure(h.ID, text, err)
	}

	groups := make([][]ir.BindingSet, len(rows))
	for _, res := range results {
		i, ok := rowIndex(res, len(rows))
		if !ok {
			return nil, &EvaluationError{
				Code:    ErrCodeMemberFailure,
				Member:  h.ID,
				Query:   text,
				Message: "bound join result without a valid " + indexVar,
			}
		}
		if merged, ok := rows[i].Merge(withoutIndex(res)); ok {
			groups[i] = append(groups[i], merged)
		}
	}
	var out []ir.BindingSet
	for _, g := range groups {
		out = append(out, g...)
	}
	return out, nil
}

// boundJoinEach sends one request per row. A limit inside o applies to the
// solutions of each left row, not to the batch.
func (e *Engine) boundJoinEach(ctx context.Context, ev env, o *algebra.Owned, rows []ir.BindingSet) ([]ir.BindingSet, error) {
	var out []ir.BindingSet
	for _, row := range rows {
		got, err := e.boundJoin(ctx, ev, o, []ir.BindingSet{row})
		if err != nil {
			return nil, err
		}
		out = append(out, got...)
	}
	return out, nil
}

// perRow evaluates o locally for each row.
func (e *Engine) perRow(ctx context.Context, ev env, h member.Handle, o *algebra.Owned, rows []ir.BindingSet) ([]ir.BindingSet, error) {
	var out []ir.BindingSet
	for _, row := range rows {
		s, err := e.evalLocal(ctx, ev, h, o, row)
		if err != nil {
			return nil, err
		}
		got, err := ir.Collect(ctx, s)
		if err != nil {
			return nil, err
		}
		out = append(out, got...)
	}
	return out, nil
}

func rowIndex(row ir.BindingSet, n int) (int, bool) {
	lit, ok := row.Value(indexVar).(ir.Literal)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(lit.Lexical)
	if err != nil || i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

func withoutIndex(row ir.BindingSet) ir.BindingSet {
	names := row.Names()
	keep := names[:0]
	for _, name := range names {
		if name != indexVar {
			keep = append(keep, name)
		}
	}
	return row.Project(keep)
}
