package engine

import (
	"context"
	"time"

	"github.com/roach88/fedq/internal/algebra"
	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/member"
	"github.com/roach88/fedq/internal/render"
)

// evalPattern matches p against the current source member. A source that
// matches triples directly is asked for the pattern with the bound slots
// filled in; a source that only accepts query text gets the pattern as a
// one-pattern query. Bindings the query cannot carry, such as blank nodes,
// are applied to the solutions instead.
func (e *Engine) evalPattern(ctx context.Context, ev env, p *algebra.Pattern, in ir.BindingSet) (ir.Stream, error) {
	if ev.source.ID == "" {
		return nil, &EvaluationError{Code: ErrCodeUnsupported, Query: p.String(), Message: "no default member to match patterns against"}
	}
	conn, err := e.members.Connect(ctx, ev.source)
	if err != nil {
		return nil, err
	}

	switch c := conn.(type) {
	case member.TripleConnection:
		defer c.Close()
		return e.matchTriples(ctx, ev, c, p, in)
	case member.QueryConnection:
		r := render.NewSPARQLRenderer(ev.source.ID)
		text, err := r.Render(bindPattern(p, in))
		if err != nil && render.IsRenderError(err) {
			// Send the pattern without the input bindings; the
			// remote stream joins the solutions with in.
			e.logger.Debug("bound pattern not renderable, scanning pattern",
				"member", ev.source.ID,
				"pattern", p.String(),
				"error", err)
			e.metrics.RecordFallback(ev.source.ID)
			text, err = r.Render(p)
		}
		if err != nil {
			c.Close()
			return nil, err
		}
		return e.dispatch(ctx, ev.source, c, text, in)
	}
	conn.Close()
	return nil, &EvaluationError{
		Code:    ErrCodeUnsupported,
		Member:  ev.source.ID,
		Query:   p.String(),
		Message: "member cannot match triple patterns",
	}
}

func (e *Engine) matchTriples(ctx context.Context, ev env, c member.TripleConnection, p *algebra.Pattern, in ir.BindingSet) (ir.Stream, error) {
	s := p.Subject.Resolve(in)
	pr := p.Predicate.Resolve(in)
	o := p.Object.Resolve(in)
	g := ev.graph
	if p.Context != nil {
		g = p.Context.Resolve(in)
	}

	start := time.Now()
	triples, err := c.Match(ctx, s, pr, o, g)
	e.metrics.RecordDispatch(ev.source.ID, opMatch, time.Since(start), err)
	if err != nil {
		return nil, memberFailure(ev.source.ID, p.String(), err)
	}
	e.logger.Debug("pattern matched",
		"member", ev.source.ID,
		"pattern", p.String(),
		"rows", len(triples))

	rows := make([]ir.BindingSet, 0, len(triples))
	for _, t := range triples {
		// An unbound GRAPH variable ranges over named graphs only.
		if p.Context != nil && g == nil && t.Graph == nil {
			continue
		}
		row, ok := bindSlot(in, p.Subject, t.Subject)
		if ok {
			row, ok = bindSlot(row, p.Predicate, t.Predicate)
		}
		if ok {
			row, ok = bindSlot(row, p.Object, t.Object)
		}
		if ok && p.Context != nil {
			row, ok = bindSlot(row, *p.Context, t.Graph)
		}
		if ok {
			rows = append(rows, row)
		}
	}
	return ir.NewSliceStream(rows...), nil
}

// bindSlot binds a variable slot to value. A slot already bound to a
// different value, such as ?x in "?x <p> ?x", rejects the row.
func bindSlot(row ir.BindingSet, v algebra.Var, value ir.Term) (ir.BindingSet, bool) {
	if v.IsConst() {
		return row, true
	}
	if cur, ok := row.Get(v.Name); ok {
		return row, ir.Equal(cur, value)
	}
	return row.With(v.Name, value), true
}

// bindPattern returns a copy of p with slots bound in in replaced by
// constants.
func bindPattern(p *algebra.Pattern, in ir.BindingSet) *algebra.Pattern {
	sub := func(v algebra.Var) algebra.Var {
		if v.IsConst() {
			return v
		}
		if t := in.Value(v.Name); t != nil {
			return algebra.C(t)
		}
		return v
	}
	out := algebra.NewPattern(sub(p.Subject), sub(p.Predicate), sub(p.Object))
	if p.Context != nil {
		c := sub(*p.Context)
		out.Context = &c
	}
	return out
}
