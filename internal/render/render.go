package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/fedq/internal/algebra"
	"github.com/roach88/fedq/internal/ir"
)

// SPARQLRenderer renders algebra subtrees to SPARQL query text.
//
// The output re-parses to an equivalent tree: group scoping is preserved
// by wrapping filters, optionals, and binds that appear as join arguments
// in their own group, and sub-selects are emitted for modifiers below the
// top of the query.
type SPARQLRenderer struct {
	// Member is the federation member the query is rendered for. Owned
	// subtrees of any other member cannot be rendered.
	Member string
}

// NewSPARQLRenderer creates a renderer for queries sent to member.
func NewSPARQLRenderer(member string) *SPARQLRenderer {
	return &SPARQLRenderer{Member: member}
}

// Render converts a subtree into a complete SELECT or ASK query.
//
// A Root renders with its own form. For any other node the SELECT clause
// comes from the topmost Projection, or from the subtree's binding names
// when there is none; a subtree without binding names renders as ASK.
func (r *SPARQLRenderer) Render(n algebra.Node) (string, error) {
	if n == nil {
		return "", fmt.Errorf("cannot render nil node")
	}
	if root, ok := n.(*algebra.Root); ok {
		if root.Form == algebra.FormAsk {
			return r.renderAsk(root.Arg)
		}
		n = root.Arg
	}
	q := peel(n)
	if !q.hasProj && algebra.BindingNames(q.body).Cardinality() == 0 {
		return r.renderAsk(n)
	}
	return r.renderSelect(q, nil, "")
}

// RenderBatch renders n as a SELECT whose innermost WHERE clause is prefixed
// by the inline relation values, so solution modifiers on top of n apply
// after the values join. Extra names are appended to the SELECT clause;
// the bound join uses this to carry its row index variable through the
// remote member.
func (r *SPARQLRenderer) RenderBatch(n algebra.Node, values *algebra.Values, extra ...string) (string, error) {
	if values == nil {
		return "", fmt.Errorf("cannot render nil values")
	}
	if o, ok := n.(*algebra.Owned); ok {
		if o.Member != r.Member {
			return "", unsupported(n, "subtree owned by %q cannot be sent to %q", o.Member, r.Member)
		}
		n = o.Arg
	}
	q := peel(n)
	if q.hasProj {
		values = renameValues(values, q.proj)
	}
	return r.renderSelect(q, values, strings.Join(prefixAll(extra), " "))
}

// Sliced reports whether n limits or offsets its solutions anywhere. A sliced
// subtree cannot be evaluated for several input rows in one query because the
// limit would apply to the combined solutions.
func Sliced(n algebra.Node) bool {
	found := false
	algebra.Inspect(n, func(c algebra.Node) bool {
		if _, ok := c.(*algebra.Slice); ok {
			found = true
		}
		return !found
	})
	return found
}

// renameValues rewrites columns bound under a projection alias to the name
// the body binds, so the VALUES block joins inside the projection.
func renameValues(v *algebra.Values, proj []algebra.ProjectionElem) *algebra.Values {
	source := make(map[string]string)
	for _, e := range proj {
		if e.Source != e.Target {
			source[e.Target] = e.Source
		}
	}
	if len(source) == 0 {
		return v
	}
	names := make([]string, len(v.Names))
	for i, name := range v.Names {
		names[i] = name
		if s, ok := source[name]; ok {
			names[i] = s
		}
	}
	rows := make([]ir.BindingSet, len(v.Rows))
	for i, row := range v.Rows {
		var bs []ir.Binding
		for j, name := range v.Names {
			if t, ok := row.Get(name); ok {
				bs = append(bs, ir.B(names[j], t))
			}
		}
		rows[i] = ir.NewBindingSet(bs...)
	}
	return algebra.NewValues(names, rows)
}

// query is a subtree split into its solution modifiers and body.
type query struct {
	distinct bool
	proj     []algebra.ProjectionElem
	hasProj  bool
	order    []algebra.OrderElem
	offset   int64
	limit    int64
	body     algebra.Node
}

// peel splits Slice, Distinct, Projection, and Order off the top of n in
// that order. Anything else stays in the body.
func peel(n algebra.Node) query {
	q := query{limit: algebra.NoLimit, body: n}
	if s, ok := q.body.(*algebra.Slice); ok && s.Hints().IsZero() {
		q.offset, q.limit, q.body = s.Offset, s.Limit, s.Arg
	}
	if d, ok := q.body.(*algebra.Distinct); ok && d.Hints().IsZero() {
		q.distinct, q.body = true, d.Arg
	}
	if p, ok := q.body.(*algebra.Projection); ok && p.Hints().IsZero() {
		q.proj, q.hasProj, q.body = p.Elems, true, p.Arg
		if q.proj == nil {
			q.proj = []algebra.ProjectionElem{}
		}
	}
	if o, ok := q.body.(*algebra.Order); ok && o.Hints().IsZero() {
		q.order, q.body = o.Elems, o.Arg
	}
	return q
}

func (r *SPARQLRenderer) renderAsk(n algebra.Node) (string, error) {
	var b strings.Builder
	if err := r.group(&b, n, true); err != nil {
		return "", err
	}
	return "ASK WHERE { " + strings.TrimSpace(b.String()) + " }", nil
}

func (r *SPARQLRenderer) renderSelect(q query, values *algebra.Values, extra string) (string, error) {
	var sel []string
	if q.hasProj {
		for _, e := range q.proj {
			if e.Source == e.Target {
				sel = append(sel, "?"+e.Target)
			} else {
				sel = append(sel, fmt.Sprintf("(?%s AS ?%s)", e.Source, e.Target))
			}
		}
	} else {
		sel = prefixAll(algebra.Sorted(algebra.BindingNames(q.body)))
	}
	if extra != "" {
		sel = append(sel, extra)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if q.distinct {
		b.WriteString("DISTINCT ")
	}
	if len(sel) == 0 {
		// SPARQL has no empty projection; project a name nothing binds.
		sel = []string{"?_nothing"}
	}
	b.WriteString(strings.Join(sel, " "))
	b.WriteString(" WHERE { ")

	if values != nil {
		v, err := r.values(values)
		if err != nil {
			return "", err
		}
		b.WriteString(v)
		b.WriteByte(' ')
	}
	var body strings.Builder
	if err := r.group(&body, q.body, true); err != nil {
		return "", err
	}
	b.WriteString(strings.TrimSpace(body.String()))
	b.WriteString(" }")

	if len(q.order) > 0 {
		b.WriteString(" ORDER BY")
		for _, o := range q.order {
			e, err := r.expr(q.body, o.Expr)
			if err != nil {
				return "", err
			}
			if o.Descending {
				b.WriteString(" DESC(" + e + ")")
			} else {
				b.WriteString(" ASC(" + e + ")")
			}
		}
	}
	if q.limit >= 0 {
		b.WriteString(" LIMIT " + strconv.FormatInt(q.limit, 10))
	}
	if q.offset > 0 {
		b.WriteString(" OFFSET " + strconv.FormatInt(q.offset, 10))
	}
	return b.String(), nil
}

// group writes n as the elements of a group graph pattern. lead is true
// when n is the first element of its group, where left-associative
// constructs (OPTIONAL, BIND, FILTER) may be written inline.
func (r *SPARQLRenderer) group(b *strings.Builder, n algebra.Node, lead bool) error {
	if !n.Hints().IsZero() {
		return r.hinted(b, n)
	}
	return r.groupBody(b, n, lead)
}

func (r *SPARQLRenderer) groupBody(b *strings.Builder, n algebra.Node, lead bool) error {
	switch x := n.(type) {
	case *algebra.Pattern:
		return r.pattern(b, x)

	case *algebra.Join:
		if err := r.prefix(b, x.Left, lead); err != nil {
			return err
		}
		return r.element(b, x.Right)

	case *algebra.NaryJoin:
		for i, a := range x.Args {
			var err error
			if i == 0 {
				err = r.prefix(b, a, lead)
			} else {
				err = r.element(b, a)
			}
			if err != nil {
				return err
			}
		}
		return nil

	case *algebra.LeftJoin:
		if !lead {
			return r.wrapped(b, n)
		}
		if err := r.prefix(b, x.Left, true); err != nil {
			return err
		}
		b.WriteString("OPTIONAL { ")
		if err := r.group(b, x.Right, true); err != nil {
			return err
		}
		if x.Condition != nil {
			e, err := r.expr(n, x.Condition)
			if err != nil {
				return err
			}
			b.WriteString("FILTER(" + e + ") ")
		}
		b.WriteString("} ")
		return nil

	case *algebra.Union:
		b.WriteString("{ ")
		if err := r.group(b, x.Left, true); err != nil {
			return err
		}
		b.WriteString("} UNION { ")
		if err := r.group(b, x.Right, true); err != nil {
			return err
		}
		b.WriteString("} ")
		return nil

	case *algebra.Filter:
		if !lead {
			return r.wrapped(b, n)
		}
		if err := r.group(b, x.Arg, true); err != nil {
			return err
		}
		e, err := r.expr(n, x.Condition)
		if err != nil {
			return err
		}
		b.WriteString("FILTER(" + e + ") ")
		return nil

	case *algebra.Extension:
		if !lead {
			return r.wrapped(b, n)
		}
		if err := r.prefix(b, x.Arg, true); err != nil {
			return err
		}
		for _, el := range x.Elems {
			e, err := r.expr(n, el.Expr)
			if err != nil {
				return err
			}
			b.WriteString("BIND(" + e + " AS ?" + el.Name + ") ")
		}
		return nil

	case *algebra.Values:
		v, err := r.values(x)
		if err != nil {
			return err
		}
		b.WriteString(v + " ")
		return nil

	case *algebra.Empty:
		if !lead {
			return r.wrapped(b, n)
		}
		b.WriteString("FILTER(false) ")
		return nil

	case *algebra.Singleton:
		if !lead {
			b.WriteString("{ } ")
		}
		return nil

	case *algebra.Service:
		b.WriteString("SERVICE ")
		if x.Silent {
			b.WriteString("SILENT ")
		}
		b.WriteString(x.Ref.String() + " { ")
		if err := r.group(b, x.Arg, true); err != nil {
			return err
		}
		b.WriteString("} ")
		return nil

	case *algebra.Owned:
		if x.Member != r.Member {
			return unsupported(n, "subtree owned by %q cannot be sent to %q", x.Member, r.Member)
		}
		return r.group(b, x.Arg, lead)

	case *algebra.Projection, *algebra.Order, *algebra.Slice, *algebra.Distinct:
		sub, err := r.renderSelect(peel(n), nil, "")
		if err != nil {
			return err
		}
		b.WriteString("{ " + sub + " } ")
		return nil

	case *algebra.ServiceCall:
		return unsupported(n, "service call to <%s> has no query form", x.Ref)
	case *algebra.KeywordSearch:
		return unsupported(n, "keyword search on <%s> has no query form", x.Ref)
	case *algebra.Rank:
		return unsupported(n, "rank by <%s> has no query form", x.Ref)
	case *algebra.Root:
		return unsupported(n, "nested query root")
	}
	return unsupported(n, "unsupported node type %T", n)
}

// prefix writes n as the leading part of a group that continues with more
// elements. A FILTER there would widen to the whole group, so filters are
// wrapped in their own group.
func (r *SPARQLRenderer) prefix(b *strings.Builder, n algebra.Node, lead bool) error {
	if _, ok := n.(*algebra.Filter); ok {
		return r.wrapped(b, n)
	}
	return r.group(b, n, lead)
}

// element writes a non-leading group element, wrapping constructs whose
// meaning depends on their position in the group.
func (r *SPARQLRenderer) element(b *strings.Builder, n algebra.Node) error {
	return r.group(b, n, false)
}

func (r *SPARQLRenderer) wrapped(b *strings.Builder, n algebra.Node) error {
	b.WriteString("{ ")
	if err := r.group(b, n, true); err != nil {
		return err
	}
	b.WriteString("} ")
	return nil
}

// hinted writes n in its own group followed by its hint triples.
func (r *SPARQLRenderer) hinted(b *strings.Builder, n algebra.Node) error {
	h := n.Hints()
	b.WriteString("{ ")
	if err := r.groupBody(b, n, true); err != nil {
		return err
	}
	const group = "<urn:fedq:hint#Group>"
	if h.ExecuteFirst {
		b.WriteString(group + " <urn:fedq:hint#executeFirst> true . ")
	}
	if h.ExecuteLast {
		b.WriteString(group + " <urn:fedq:hint#executeLast> true . ")
	}
	if h.DisableReordering {
		b.WriteString(group + " <urn:fedq:hint#disableReordering> true . ")
	}
	b.WriteString("} ")
	return nil
}

func (r *SPARQLRenderer) pattern(b *strings.Builder, p *algebra.Pattern) error {
	var slots []string
	for _, v := range []algebra.Var{p.Subject, p.Predicate, p.Object} {
		s, err := r.slot(p, v)
		if err != nil {
			return err
		}
		slots = append(slots, s)
	}
	triple := strings.Join(slots, " ") + " . "
	if p.Context == nil {
		b.WriteString(triple)
		return nil
	}
	ctx, err := r.slot(p, *p.Context)
	if err != nil {
		return err
	}
	b.WriteString("GRAPH " + ctx + " { " + triple + "} ")
	return nil
}

func (r *SPARQLRenderer) slot(n algebra.Node, v algebra.Var) (string, error) {
	if _, ok := v.Value.(ir.BNode); ok {
		return "", unsupported(n, "blank node constant %s", v.Value)
	}
	if v.IsZero() {
		return "", unsupported(n, "unset pattern slot")
	}
	return v.String(), nil
}

func (r *SPARQLRenderer) values(v *algebra.Values) (string, error) {
	var b strings.Builder
	b.WriteString("VALUES (")
	b.WriteString(strings.Join(prefixAll(v.Names), " "))
	b.WriteString(") {")
	for _, row := range v.Rows {
		b.WriteString(" (")
		for i, name := range v.Names {
			if i > 0 {
				b.WriteByte(' ')
			}
			t, ok := row.Get(name)
			switch {
			case !ok:
				b.WriteString("UNDEF")
			case isBNode(t):
				return "", unsupported(v, "blank node value %s", t)
			default:
				b.WriteString(t.String())
			}
		}
		b.WriteByte(')')
	}
	b.WriteString(" }")
	return b.String(), nil
}

func (r *SPARQLRenderer) expr(n algebra.Node, e algebra.Expr) (string, error) {
	var bad ir.Term
	var walk func(algebra.Expr)
	walk = func(e algebra.Expr) {
		switch x := e.(type) {
		case algebra.ConstExpr:
			if isBNode(x.Value) {
				bad = x.Value
			}
		case algebra.Compare:
			walk(x.Left)
			walk(x.Right)
		case algebra.And:
			walk(x.Left)
			walk(x.Right)
		case algebra.Or:
			walk(x.Left)
			walk(x.Right)
		case algebra.Not:
			walk(x.Arg)
		case algebra.Call:
			for _, a := range x.Args {
				walk(a)
			}
		}
	}
	walk(e)
	if bad != nil {
		return "", unsupported(n, "blank node constant %s in expression", bad)
	}
	return e.String(), nil
}

func isBNode(t ir.Term) bool {
	_, ok := t.(ir.BNode)
	return ok
}

func prefixAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = "?" + n
	}
	return out
}
