package optimizer

import (
	"github.com/roach88/fedq/internal/algebra"
	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/member"
)

// ServicePass turns SERVICE blocks addressed to capability-described
// members into ServiceCall, KeywordSearch, or Rank nodes. Every triple
// pattern in such a block must match one of the descriptor's templates.
type ServicePass struct {
	Members Members
}

func (*ServicePass) Name() string { return "service" }

func (p *ServicePass) Apply(root *algebra.Root) (bool, error) {
	var services []*algebra.Service
	algebra.Inspect(root, func(n algebra.Node) bool {
		if s, ok := n.(*algebra.Service); ok {
			services = append(services, s)
		}
		return true
	})

	changed := false
	for _, s := range services {
		if algebra.TreeRoot(s) != root {
			continue
		}
		ref := s.RefIRI()
		if ref == "" {
			continue
		}
		h, err := p.Members.Resolve(ref)
		if err != nil {
			if member.IsUnknownMember(err) {
				continue
			}
			return changed, err
		}
		d, ok := p.Members.Capabilities(h)
		if !ok {
			continue
		}
		if err := extractService(s, ref, h, d); err != nil {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}

func extractService(s *algebra.Service, ref string, h member.Handle, d *member.Descriptor) error {
	patterns, other := bodyPatterns(s.Arg)
	if len(patterns) == 0 {
		return &UndescribedPatternError{Service: ref, Pattern: "{}"}
	}
	m := &templateMatcher{ref: ref, kind: h.Kind, d: d, params: map[string]algebra.Var{}, internal: map[string]algebra.Var{}}
	for _, pt := range patterns {
		if err := m.match(pt); err != nil {
			return err
		}
	}

	if h.Kind == member.KindAggregate {
		if other {
			return &UndescribedPatternError{Service: ref, Pattern: s.Arg.Kind().String()}
		}
		return m.rank(s)
	}

	call, err := m.call(patterns)
	if err != nil {
		return err
	}
	if err := patterns[0].Parent().ReplaceChild(patterns[0], call); err != nil {
		return err
	}
	for _, pt := range patterns[1:] {
		if err := removeAt(pt); err != nil {
			return err
		}
	}
	body := s.Arg
	if body.Hints().IsZero() {
		body.SetHints(s.Hints())
	}
	return s.Parent().ReplaceChild(s, body)
}

// bodyPatterns returns the triple patterns of a SERVICE body and whether
// the body holds anything else. Filters around the body are looked through.
func bodyPatterns(body algebra.Node) ([]*algebra.Pattern, bool) {
	for {
		f, ok := body.(*algebra.Filter)
		if !ok {
			break
		}
		body = f.Arg
	}
	switch x := body.(type) {
	case *algebra.Pattern:
		return []*algebra.Pattern{x}, false
	case *algebra.NaryJoin:
		var out []*algebra.Pattern
		other := false
		for _, a := range x.Args {
			if pt, ok := a.(*algebra.Pattern); ok && pt.Hints().IsZero() {
				out = append(out, pt)
			} else {
				other = true
			}
		}
		return out, other
	}
	return nil, true
}

type templateMatcher struct {
	ref      string
	kind     member.Kind
	d        *member.Descriptor
	params   map[string]algebra.Var
	internal map[string]algebra.Var
	props    []ir.IRI
}

type slotBinding struct {
	name string
	slot algebra.Var
}

// match finds the first template compatible with pt and records the
// parameter and internal variable bindings it implies.
func (m *templateMatcher) match(pt *algebra.Pattern) error {
	if pt.Context == nil {
		for _, tp := range m.d.Patterns {
			binds, ok := m.try(tp, pt)
			if !ok {
				continue
			}
			return m.bind(binds)
		}
	}
	return &UndescribedPatternError{Service: m.ref, Pattern: pt.Subject.String() + " " + pt.Predicate.String() + " " + pt.Object.String()}
}

func (m *templateMatcher) try(tp member.TemplatePattern, pt *algebra.Pattern) ([]slotBinding, bool) {
	actual := []algebra.Var{pt.Subject, pt.Predicate, pt.Object}
	var binds []slotBinding
	for i, ts := range tp.Slots() {
		a := actual[i]
		switch {
		case ts.Var != "":
			for _, b := range binds {
				if b.name == ts.Var && !b.slot.Equal(a) {
					return nil, false
				}
			}
			if prev, ok := m.internal[ts.Var]; ok && !m.d.IsParameter(ts.Var) && !prev.Equal(a) {
				return nil, false
			}
			binds = append(binds, slotBinding{name: ts.Var, slot: a})
		case ts.Wildcard:
		case a.IsConst():
			if !ts.Matches(a.Value) {
				return nil, false
			}
		default:
			return nil, false
		}
	}
	return binds, true
}

func (m *templateMatcher) bind(binds []slotBinding) error {
	for _, b := range binds {
		if !m.d.IsParameter(b.name) {
			m.internal[b.name] = b.slot
			continue
		}
		if m.kind == member.KindKeyword && b.name == member.KeywordProperty {
			if iri, ok := b.slot.Value.(ir.IRI); ok {
				m.props = append(m.props, iri)
				continue
			}
		}
		prev, ok := m.params[b.name]
		if ok && !prev.Equal(b.slot) {
			return &AmbiguousParameterError{Service: m.ref, Param: b.name, First: prev.String(), Second: b.slot.String()}
		}
		m.params[b.name] = b.slot
	}
	return nil
}

func (m *templateMatcher) bindings(ps []member.Parameter) []algebra.ParamBinding {
	var out []algebra.ParamBinding
	for _, p := range ps {
		if v, ok := m.params[p.Name]; ok {
			out = append(out, algebra.ParamBinding{Param: p.Name, Var: v, Optional: p.Optional})
		}
	}
	return out
}

func (m *templateMatcher) call(source []*algebra.Pattern) (algebra.Node, error) {
	if m.kind != member.KindKeyword {
		return algebra.NewServiceCall(m.ref, m.bindings(m.d.Inputs), m.bindings(m.d.Outputs), source), nil
	}

	subject, ok := m.params[member.KeywordSubject]
	if !ok {
		return nil, &UndescribedPatternError{Service: m.ref, Pattern: "keyword search without ?" + member.KeywordSubject}
	}
	query, ok := m.params[member.KeywordQuery]
	if !ok {
		return nil, &UndescribedPatternError{Service: m.ref, Pattern: "keyword search without ?" + member.KeywordQuery}
	}
	ks := &algebra.KeywordSearch{
		Ref:        m.ref,
		Subject:    subject,
		Query:      query,
		Properties: m.props,
		Source:     source,
	}
	if v, ok := m.params[member.KeywordScore]; ok {
		ks.Score = &v
	}
	if v, ok := m.params[member.KeywordType]; ok {
		ks.Type = &v
	}
	return ks, nil
}

// rank replaces the n-ary join holding s with a Rank over the join's
// remaining arguments.
func (m *templateMatcher) rank(s *algebra.Service) error {
	if len(m.d.Inputs) == 0 || len(m.d.Outputs) == 0 {
		return &UndescribedPatternError{Service: m.ref, Pattern: "aggregate without input or output"}
	}
	in, inOK := m.params[m.d.Inputs[0].Name]
	out, outOK := m.params[m.d.Outputs[0].Name]
	if !inOK || !outOK || in.IsConst() || out.IsConst() {
		return &UndescribedPatternError{Service: m.ref, Pattern: "aggregate needs variable input and output"}
	}

	rank := algebra.NewRank(algebra.NewSingleton(), m.ref, in.Name, out.Name)
	j, ok := s.Parent().(*algebra.NaryJoin)
	if !ok {
		return s.Parent().ReplaceChild(s, rank)
	}
	if err := j.RemoveArg(s); err != nil {
		return err
	}
	if err := j.Parent().ReplaceChild(j, rank); err != nil {
		return err
	}
	var arg algebra.Node = j
	switch len(j.Args) {
	case 0:
		return nil
	case 1:
		arg = j.Args[0]
		if err := j.RemoveArg(arg); err != nil {
			return err
		}
	}
	return rank.ReplaceChild(rank.Arg, arg)
}
