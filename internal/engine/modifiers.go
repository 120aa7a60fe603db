package engine

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/fedq/internal/algebra"
	"github.com/roach88/fedq/internal/ir"
)

// evalProjection evaluates a variable scope. Only the projected names of
// in are visible inside; results are renamed to their targets and merged
// back into in.
func (e *Engine) evalProjection(ctx context.Context, ev env, p *algebra.Projection, in ir.BindingSet) (ir.Stream, error) {
	inner := ir.BindingSet{}
	for _, el := range p.Elems {
		if v := in.Value(el.Target); v != nil {
			inner = inner.With(el.Source, v)
		}
	}
	s, err := e.eval(ctx, ev, p.Arg, inner)
	if err != nil {
		return nil, err
	}
	return ir.MapStream(s, func(row ir.BindingSet) (ir.BindingSet, bool, error) {
		out := ir.BindingSet{}
		for _, el := range p.Elems {
			if v := row.Value(el.Source); v != nil {
				out = out.With(el.Target, v)
			}
		}
		merged, ok := in.Merge(out)
		return merged, ok, nil
	}), nil
}

func (e *Engine) evalFilter(ctx context.Context, ev env, f *algebra.Filter, in ir.BindingSet) (ir.Stream, error) {
	s, err := e.eval(ctx, ev, f.Arg, in)
	if err != nil {
		return nil, err
	}
	return ir.MapStream(s, func(row ir.BindingSet) (ir.BindingSet, bool, error) {
		return row, truth(f.Condition, row), nil
	}), nil
}

// evalExtension binds computed values. An expression that fails leaves
// its name unbound.
func (e *Engine) evalExtension(ctx context.Context, ev env, x *algebra.Extension, in ir.BindingSet) (ir.Stream, error) {
	s, err := e.eval(ctx, ev, x.Arg, in)
	if err != nil {
		return nil, err
	}
	return ir.MapStream(s, func(row ir.BindingSet) (ir.BindingSet, bool, error) {
		for _, el := range x.Elems {
			v, err := evalExpr(el.Expr, row)
			if err != nil {
				continue
			}
			var ok bool
			if row, ok = bindSlot(row, algebra.V(el.Name), v); !ok {
				return row, false, nil
			}
		}
		return row, true, nil
	}), nil
}

// evalOrder sorts the rows of o.Arg. A pushed order over a union merges
// the already sorted branches; any other pushed order trusts its
// argument's order.
func (e *Engine) evalOrder(ctx context.Context, ev env, o *algebra.Order, in ir.BindingSet) (ir.Stream, error) {
	if o.Pushed {
		if u, ok := o.Arg.(*algebra.Union); ok {
			return e.mergeBranches(ctx, ev, o.Elems, []algebra.Node{u.Left, u.Right}, in)
		}
		return e.eval(ctx, ev, o.Arg, in)
	}

	rows, err := e.collect(ctx, ev, o.Arg, in)
	if err != nil {
		return nil, err
	}
	keys := sortKeys(o.Elems, rows)
	perm := make([]int, len(rows))
	for i := range perm {
		perm[i] = i
	}
	slices.SortStableFunc(perm, func(a, b int) int {
		return compareKeys(o.Elems, keys[a], keys[b])
	})
	sorted := make([]ir.BindingSet, len(rows))
	for i, p := range perm {
		sorted[i] = rows[p]
	}
	return ir.NewSliceStream(sorted...), nil
}

// sortKeys evaluates the order expressions of every row once. Failed
// expressions sort as unbound.
func sortKeys(elems []algebra.OrderElem, rows []ir.BindingSet) [][]ir.Term {
	keys := make([][]ir.Term, len(rows))
	for i, row := range rows {
		keys[i] = rowKey(elems, row)
	}
	return keys
}

func rowKey(elems []algebra.OrderElem, row ir.BindingSet) []ir.Term {
	k := make([]ir.Term, len(elems))
	for j, el := range elems {
		if v, err := evalExpr(el.Expr, row); err == nil {
			k[j] = v
		}
	}
	return k
}

func compareKeys(elems []algebra.OrderElem, a, b []ir.Term) int {
	for j, el := range elems {
		c := ir.Compare(a[j], b[j])
		if el.Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// mergeBranches runs every branch as its own task and merges the sorted
// branch streams. Ties go to the earlier branch, so the merge is stable.
func (e *Engine) mergeBranches(ctx context.Context, ev env, elems []algebra.OrderElem, branches []algebra.Node, in ir.BindingSet) (ir.Stream, error) {
	m := &mergeStream{elems: elems}
	for _, b := range branches {
		m.srcs = append(m.srcs, e.start(ctx, func(ctx context.Context, q *blockQueue) error {
			return e.pump(ctx, ev, func(ctx context.Context, ev env) (ir.Stream, error) {
				return e.eval(ctx, ev, b, in)
			}, q)
		}))
	}
	return m, nil
}

// mergeStream is a k-way merge of sorted streams.
type mergeStream struct {
	elems   []algebra.OrderElem
	srcs    []ir.Stream
	heads   []*mergeHead
	started bool
	once    sync.Once
	err     error
}

type mergeHead struct {
	row ir.BindingSet
	key []ir.Term
}

func (m *mergeStream) Next(ctx context.Context) (ir.BindingSet, bool, error) {
	if !m.started {
		m.heads = make([]*mergeHead, len(m.srcs))
		for i := range m.srcs {
			if err := m.advance(ctx, i); err != nil {
				return ir.BindingSet{}, false, err
			}
		}
		m.started = true
	}

	best := -1
	for i, h := range m.heads {
		if h == nil {
			continue
		}
		if best < 0 || compareKeys(m.elems, h.key, m.heads[best].key) < 0 {
			best = i
		}
	}
	if best < 0 {
		return ir.BindingSet{}, false, nil
	}
	row := m.heads[best].row
	if err := m.advance(ctx, best); err != nil {
		return ir.BindingSet{}, false, err
	}
	return row, true, nil
}

func (m *mergeStream) advance(ctx context.Context, i int) error {
	row, ok, err := m.srcs[i].Next(ctx)
	if err != nil {
		return err
	}
	if !ok {
		m.heads[i] = nil
		return nil
	}
	m.heads[i] = &mergeHead{row: row, key: rowKey(m.elems, row)}
	return nil
}

func (m *mergeStream) Close() error {
	m.once.Do(func() {
		for _, s := range m.srcs {
			if err := s.Close(); err != nil && m.err == nil {
				m.err = err
			}
		}
	})
	return m.err
}

func (e *Engine) evalSlice(ctx context.Context, ev env, sl *algebra.Slice, in ir.BindingSet) (ir.Stream, error) {
	s, err := e.eval(ctx, ev, sl.Arg, in)
	if err != nil {
		return nil, err
	}
	return &sliceStream{src: s, offset: sl.Offset, limit: sl.Limit}, nil
}

// sliceStream skips offset rows and stops after limit rows. A negative
// limit is unbounded.
type sliceStream struct {
	src     ir.Stream
	offset  int64
	limit   int64
	skipped int64
	emitted int64
}

func (s *sliceStream) Next(ctx context.Context) (ir.BindingSet, bool, error) {
	for {
		if s.limit >= 0 && s.emitted >= s.limit {
			return ir.BindingSet{}, false, nil
		}
		row, ok, err := s.src.Next(ctx)
		if err != nil || !ok {
			return ir.BindingSet{}, false, err
		}
		if s.skipped < s.offset {
			s.skipped++
			continue
		}
		s.emitted++
		return row, true, nil
	}
}

func (s *sliceStream) Close() error { return s.src.Close() }

func (e *Engine) evalDistinct(ctx context.Context, ev env, d *algebra.Distinct, in ir.BindingSet) (ir.Stream, error) {
	s, err := e.eval(ctx, ev, d.Arg, in)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	return ir.MapStream(s, func(row ir.BindingSet) (ir.BindingSet, bool, error) {
		h := ir.BindingHash(row)
		if seen[h] {
			return row, false, nil
		}
		seen[h] = true
		return row, true, nil
	}), nil
}

// evalValues joins in with the rows of an inline relation.
func evalValues(v *algebra.Values, in ir.BindingSet) ir.Stream {
	var out []ir.BindingSet
	for _, row := range v.Rows {
		if merged, ok := in.Merge(row); ok {
			out = append(out, merged)
		}
	}
	return ir.NewSliceStream(out...)
}

// evalLeftJoin evaluates the optional side once per left row. Left rows
// without a matching right row that satisfies the condition are kept as
// they are.
func (e *Engine) evalLeftJoin(ctx context.Context, ev env, lj *algebra.LeftJoin, in ir.BindingSet) (ir.Stream, error) {
	left, err := e.eval(ctx, ev, lj.Left, in)
	if err != nil {
		return nil, err
	}
	return flatMap(left, func(ctx context.Context, row ir.BindingSet) ([]ir.BindingSet, error) {
		right, err := e.collect(ctx, ev, lj.Right, row)
		if err != nil {
			return nil, err
		}
		var out []ir.BindingSet
		for _, r := range right {
			if lj.Condition == nil || truth(lj.Condition, r) {
				out = append(out, r)
			}
		}
		if len(out) == 0 {
			return []ir.BindingSet{row}, nil
		}
		return out, nil
	}), nil
}
