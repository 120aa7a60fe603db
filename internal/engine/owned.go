package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/roach88/fedq/internal/algebra"
	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/member"
	"github.com/roach88/fedq/internal/render"
)

// acceptsQueries reports whether the owner of an owned subtree takes SPARQL
// text. Only such owners are dispatched to and bound-joined; local stores
// and capability services have their owned subtrees evaluated here.
func acceptsQueries(h member.Handle) bool {
	return h.Kind == member.KindSPARQL
}

// evalOwned renders o for its owner and dispatches it. Subtrees the
// renderer rejects, and owners that take no query text, are evaluated
// locally with the owner as the triple source.
func (e *Engine) evalOwned(ctx context.Context, ev env, o *algebra.Owned, in ir.BindingSet) (ir.Stream, error) {
	h, err := e.members.Resolve(o.Member)
	if err != nil {
		return nil, err
	}
	if !acceptsQueries(h) {
		return e.evalLocal(ctx, ev, h, o, in)
	}

	text, err := renderOwned(h, o, in)
	if err != nil {
		if render.IsRenderError(err) {
			e.logger.Warn("owned subtree not renderable, evaluating locally",
				"member", h.ID,
				"error", err)
			e.metrics.RecordFallback(h.ID)
			return e.evalLocal(ctx, ev, h, o, in)
		}
		return nil, err
	}

	conn, err := e.members.Connect(ctx, h)
	if err != nil {
		return nil, err
	}
	qc, ok := conn.(member.QueryConnection)
	if !ok {
		conn.Close()
		return e.evalLocal(ctx, ev, h, o, in)
	}
	return e.dispatch(ctx, h, qc, text, in)
}

// evalLocal evaluates the argument of o with its owner as triple source.
func (e *Engine) evalLocal(ctx context.Context, ev env, h member.Handle, o *algebra.Owned, in ir.BindingSet) (ir.Stream, error) {
	ev.source = h
	return e.eval(ctx, ev, o.Arg, in)
}

// renderOwned renders the argument of o. Variables of the subtree that in
// already binds are passed in a one-row VALUES block.
func renderOwned(h member.Handle, o *algebra.Owned, in ir.BindingSet) (string, error) {
	r := render.NewSPARQLRenderer(h.ID)
	cols := boundColumns(o.Arg, []ir.BindingSet{in})
	if len(cols) == 0 || algebra.BindingNames(o.Arg).Cardinality() == 0 {
		return r.Render(o.Arg)
	}
	return r.RenderBatch(o.Arg, algebra.NewValues(cols, []ir.BindingSet{in.Project(cols)}))
}

// boundColumns returns the binding names of n that any of rows binds,
// sorted.
func boundColumns(n algebra.Node, rows []ir.BindingSet) []string {
	var cols []string
	for _, name := range algebra.Sorted(algebra.BindingNames(n)) {
		for _, row := range rows {
			if row.Has(name) {
				cols = append(cols, name)
				break
			}
		}
	}
	return cols
}

// dispatch sends rendered query text over qc and returns its solutions
// merged with in. The returned stream owns qc and closes it. ASK queries
// yield in once when true and nothing when false.
func (e *Engine) dispatch(ctx context.Context, h member.Handle, qc member.QueryConnection, text string, in ir.BindingSet) (ir.Stream, error) {
	e.logger.Debug("dispatching query",
		"member", h.ID,
		"query_hash", ir.QueryHash(text))

	if strings.HasPrefix(text, "ASK") {
		start := time.Now()
		ok, err := qc.Ask(ctx, text)
		e.metrics.RecordDispatch(h.ID, opAsk, time.Since(start), err)
		qc.Close()
		if err != nil {
			return nil, memberFailure(h.ID, text, err)
		}
		if !ok {
			return ir.EmptyStream(), nil
		}
		return ir.NewSliceStream(in), nil
	}

	start := time.Now()
	s, err := qc.Select(ctx, text)
	e.metrics.RecordDispatch(h.ID, opSelect, time.Since(start), err)
	if err != nil {
		qc.Close()
		return nil, memberFailure(h.ID, text, err)
	}
	return &remoteStream{src: s, conn: qc, member: h.ID, query: text, in: in}, nil
}

// remoteStream merges member solutions with the input row and wraps
// member errors.
type remoteStream struct {
	src    ir.Stream
	conn   member.Connection
	member string
	query  string
	in     ir.BindingSet
	once   sync.Once
	err    error
}

func (r *remoteStream) Next(ctx context.Context) (ir.BindingSet, bool, error) {
	for {
		row, ok, err := r.src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ir.BindingSet{}, false, ctx.Err()
			}
			return ir.BindingSet{}, false, memberFailure(r.member, r.query, err)
		}
		if !ok {
			return ir.BindingSet{}, false, nil
		}
		if merged, ok := r.in.Merge(row); ok {
			return merged, true, nil
		}
	}
}

func (r *remoteStream) Close() error {
	r.once.Do(func() {
		err := r.src.Close()
		if cerr := r.conn.Close(); err == nil {
			err = cerr
		}
		r.err = err
	})
	return r.err
}
