package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/roach88/fedq/internal/algebra"
	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/member"
)

// evalServiceCall calls a capability-described service with the inputs
// bound in in and binds its outputs.
func (e *Engine) evalServiceCall(ctx context.Context, sc *algebra.ServiceCall, in ir.BindingSet) (ir.Stream, error) {
	h, err := e.members.Resolve(sc.Ref)
	if err != nil {
		return nil, err
	}
	req := member.Request{Inputs: map[string]ir.Term{}}
	for _, p := range sc.Inputs {
		if v := p.Var.Resolve(in); v != nil {
			req.Inputs[p.Param] = v
		}
	}

	rows, err := e.call(ctx, h, req)
	if err != nil {
		return nil, err
	}
	if d, ok := e.members.Capabilities(h); ok {
		if err := checkCardinality(h, d, req, len(rows)); err != nil {
			return nil, err
		}
	}

	out := make([]ir.BindingSet, 0, len(rows))
	for _, row := range rows {
		if bs, ok := bindOutputs(in, sc.Outputs, row); ok {
			out = append(out, bs)
		}
	}
	return ir.NewSliceStream(out...), nil
}

// evalKeywordSearch runs a keyword search and binds the matching subjects
// with their optional score and type.
func (e *Engine) evalKeywordSearch(ctx context.Context, ks *algebra.KeywordSearch, in ir.BindingSet) (ir.Stream, error) {
	h, err := e.members.Resolve(ks.Ref)
	if err != nil {
		return nil, err
	}
	query := ks.Query.Resolve(in)
	if query == nil {
		return nil, &EvaluationError{
			Code:    ErrCodeUnbound,
			Member:  h.ID,
			Message: fmt.Sprintf("keyword search query %s is unbound", ks.Query),
		}
	}
	req := member.Request{
		Inputs:     map[string]ir.Term{member.KeywordQuery: query},
		Properties: ks.Properties,
	}

	rows, err := e.call(ctx, h, req)
	if err != nil {
		return nil, err
	}
	outputs := []algebra.ParamBinding{{Param: member.KeywordSubject, Var: ks.Subject}}
	if ks.Score != nil {
		outputs = append(outputs, algebra.ParamBinding{Param: member.KeywordScore, Var: *ks.Score, Optional: true})
	}
	if ks.Type != nil {
		outputs = append(outputs, algebra.ParamBinding{Param: member.KeywordType, Var: *ks.Type, Optional: true})
	}

	out := make([]ir.BindingSet, 0, len(rows))
	for _, row := range rows {
		if bs, ok := bindOutputs(in, outputs, row); ok {
			out = append(out, bs)
		}
	}
	return ir.NewSliceStream(out...), nil
}

// call sends req to a service member.
func (e *Engine) call(ctx context.Context, h member.Handle, req member.Request) ([]ir.BindingSet, error) {
	conn, err := e.members.Connect(ctx, h)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	svc, ok := conn.(member.ServiceConnection)
	if !ok {
		return nil, &EvaluationError{Code: ErrCodeUnsupported, Member: h.ID, Message: "member does not accept service calls"}
	}

	start := time.Now()
	rows, err := svc.Call(ctx, req)
	e.metrics.RecordDispatch(h.ID, opCall, time.Since(start), err)
	if err != nil {
		return nil, memberFailure(h.ID, describeRequest(req), err)
	}
	e.logger.Debug("service called",
		"member", h.ID,
		"rows", len(rows))
	return rows, nil
}

func checkCardinality(h member.Handle, d *member.Descriptor, req member.Request, n int) error {
	want := -1
	switch d.Cardinality {
	case member.CardinalityOne:
		want = 1
	case member.CardinalityFixed:
		want = d.OutputCount
	}
	if want < 0 || n == want {
		return nil
	}
	return &EvaluationError{
		Code:    ErrCodeCardinality,
		Member:  h.ID,
		Query:   describeRequest(req),
		Message: fmt.Sprintf("%s cardinality expects %d rows, got %d", d.Cardinality, want, n),
	}
}

// bindOutputs binds each output parameter of row to its slot. A constant
// slot or an already bound variable must agree with the produced value,
// and a row without a mandatory output is rejected.
func bindOutputs(in ir.BindingSet, outputs []algebra.ParamBinding, row ir.BindingSet) (ir.BindingSet, bool) {
	out := in
	for _, p := range outputs {
		v := row.Value(p.Param)
		if v == nil {
			if !p.Optional {
				return ir.BindingSet{}, false
			}
			continue
		}
		if p.Var.IsConst() {
			if !ir.Equal(p.Var.Value, v) {
				return ir.BindingSet{}, false
			}
			continue
		}
		var ok bool
		if out, ok = bindSlot(out, p.Var, v); !ok {
			return ir.BindingSet{}, false
		}
	}
	return out, true
}

// describeRequest renders a request for error messages, inputs sorted by
// name.
func describeRequest(req member.Request) string {
	names := make([]string, 0, len(req.Inputs))
	for name := range req.Inputs {
		names = append(names, name)
	}
	slices.Sort(names)
	parts := make([]string, 0, len(names)+1)
	for _, name := range names {
		parts = append(parts, name+"="+req.Inputs[name].String())
	}
	if len(req.Properties) > 0 {
		props := make([]string, len(req.Properties))
		for i, p := range req.Properties {
			props[i] = p.String()
		}
		parts = append(parts, "properties="+strings.Join(props, ","))
	}
	return "call(" + strings.Join(parts, " ") + ")"
}

// evalRank collects the rows of r.Arg, sends the values of r.Input to the
// aggregate member in one request, and binds the answers to r.Result.
// Rows without an input value pass through unranked.
func (e *Engine) evalRank(ctx context.Context, ev env, r *algebra.Rank, in ir.BindingSet) (ir.Stream, error) {
	rows, err := e.collect(ctx, ev, r.Arg, in)
	if err != nil {
		return nil, err
	}
	var values []ir.Term
	var idx []int
	for i, row := range rows {
		if v := row.Value(r.Input); v != nil {
			values = append(values, v)
			idx = append(idx, i)
		}
	}
	if len(values) == 0 {
		return ir.NewSliceStream(rows...), nil
	}

	h, err := e.members.Resolve(r.Ref)
	if err != nil {
		return nil, err
	}
	conn, err := e.members.Connect(ctx, h)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	agg, ok := conn.(member.AggregateConnection)
	if !ok {
		return nil, &EvaluationError{Code: ErrCodeUnsupported, Member: h.ID, Message: "member does not aggregate"}
	}

	start := time.Now()
	results, err := agg.Aggregate(ctx, values)
	e.metrics.RecordDispatch(h.ID, opAggregate, time.Since(start), err)
	query := fmt.Sprintf("aggregate(%d values of ?%s)", len(values), r.Input)
	if err != nil {
		return nil, memberFailure(h.ID, query, err)
	}
	if len(results) != len(values) {
		return nil, &EvaluationError{
			Code:    ErrCodeCardinality,
			Member:  h.ID,
			Query:   query,
			Message: fmt.Sprintf("expected %d results, got %d", len(values), len(results)),
		}
	}

	out := make([]ir.BindingSet, 0, len(rows))
	j := 0
	for i, row := range rows {
		if j < len(idx) && idx[j] == i {
			res := results[j]
			j++
			if res != nil {
				var ok bool
				if row, ok = bindSlot(row, algebra.V(r.Result), res); !ok {
					continue
				}
			}
		}
		out = append(out, row)
	}
	return ir.NewSliceStream(out...), nil
}

// evalService evaluates an explicit SERVICE block the optimizer left in
// place: a variable reference, or a constant one the pipeline did not
// assign to an owner. The block is dispatched to the resolved member as an
// owned subtree. A silent service yields in when the member is unknown or
// fails.
func (e *Engine) evalService(ctx context.Context, ev env, s *algebra.Service, in ir.BindingSet) (ir.Stream, error) {
	// Already owned by the pipeline: SERVICE SILENT { Owned(...) }.
	if o, ok := s.Arg.(*algebra.Owned); ok {
		return e.silently(ctx, s, in, func() (ir.Stream, error) {
			return e.eval(ctx, ev, o, in)
		})
	}

	ref := s.RefIRI()
	if !s.Ref.IsConst() {
		iri, ok := in.Value(s.Ref.Name).(ir.IRI)
		if !ok {
			return nil, &EvaluationError{
				Code:    ErrCodeUnbound,
				Message: fmt.Sprintf("service reference %s is not bound to an IRI", s.Ref),
			}
		}
		ref = string(iri)
	}

	return e.silently(ctx, s, in, func() (ir.Stream, error) {
		h, err := e.members.Resolve(ref)
		if err != nil {
			return nil, err
		}
		// The tree is shared by concurrent tasks; wrap a private copy.
		return e.eval(ctx, ev, algebra.NewOwned(h.ID, s.Arg.Clone()), in)
	})
}

// silently runs fn. For a silent service it drains the result first so
// that a failure anywhere in the stream can still be replaced by in.
func (e *Engine) silently(ctx context.Context, s *algebra.Service, in ir.BindingSet, fn func() (ir.Stream, error)) (ir.Stream, error) {
	if !s.Silent {
		return fn()
	}
	st, err := fn()
	if err == nil {
		var rows []ir.BindingSet
		if rows, err = ir.Collect(ctx, st); err == nil {
			return ir.NewSliceStream(rows...), nil
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	e.logger.Warn("silent service failed, keeping input bindings",
		"service", s.Ref.String(),
		"error", err)
	return ir.NewSliceStream(in), nil
}
