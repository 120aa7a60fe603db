package sparql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/fedq/internal/algebra"
	"github.com/roach88/fedq/internal/ir"
)

// HintNamespace is the namespace of query hint triples. A triple
// `hint:Group hint:executeFirst true .` inside a group annotates that group.
const HintNamespace = "urn:fedq:hint#"

// Hint IRIs.
const (
	HintGroup             = ir.IRI(HintNamespace + "Group")
	HintExecuteFirst      = ir.IRI(HintNamespace + "executeFirst")
	HintExecuteLast       = ir.IRI(HintNamespace + "executeLast")
	HintDisableReordering = ir.IRI(HintNamespace + "disableReordering")
)

// DefaultPrefixes are declared in every query before its own prologue.
var DefaultPrefixes = map[string]string{
	"rdf":  "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
	"rdfs": "http://www.w3.org/2000/01/rdf-schema#",
	"xsd":  "http://www.w3.org/2001/XMLSchema#",
	"hint": HintNamespace,
}

// Parse parses a SELECT or ASK query into an algebra tree.
//
// Joins come out binary and left-deep; the optimizer flattens them.
// Blank nodes in patterns become variables whose names start with
// "_anon" and are never projected by SELECT *.
func Parse(query string) (*algebra.Root, error) {
	p := &parser{
		lex:      newLexer(query),
		prefixes: map[string]string{},
	}
	for k, v := range DefaultPrefixes {
		p.prefixes[k] = v
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	root, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	return root, nil
}

// MustParse is like Parse but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustParse(query string) *algebra.Root {
	r, err := Parse(query)
	if err != nil {
		panic(err)
	}
	return r
}

type parser struct {
	lex      *lexer
	tok      token
	prefixes map[string]string
	base     string
	anon     int
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return newSyntaxError(p.tok.line, p.tok.col, format, args...)
}

func (p *parser) isPunct(s string) bool {
	return p.tok.kind == tokPunct && p.tok.text == s
}

func (p *parser) isKeyword(kw string) bool {
	return p.tok.kind == tokName && strings.EqualFold(p.tok.text, kw)
}

func (p *parser) expectPunct(s string) error {
	if !p.isPunct(s) {
		return p.errorf("expected %q, found %q", s, p.tok.text)
	}
	return p.advance()
}

func (p *parser) expectKeyword(kw string) error {
	if !p.isKeyword(kw) {
		return p.errorf("expected %s, found %q", kw, p.tok.text)
	}
	return p.advance()
}

func (p *parser) parseQuery() (*algebra.Root, error) {
	if err := p.parsePrologue(); err != nil {
		return nil, err
	}

	var root *algebra.Root
	switch {
	case p.isKeyword("SELECT"):
		n, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		root = algebra.NewRoot(n)
	case p.isKeyword("ASK"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.isKeyword("WHERE") {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		g, err := p.parseGroup()
		if err != nil {
			return nil, err
		}
		root = algebra.NewAskRoot(g)
	default:
		return nil, p.errorf("expected SELECT or ASK, found %q", p.tok.text)
	}

	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected %q after query", p.tok.text)
	}
	return root, nil
}

func (p *parser) parsePrologue() error {
	for {
		switch {
		case p.isKeyword("PREFIX"):
			if err := p.advance(); err != nil {
				return err
			}
			if p.tok.kind != tokPName || !strings.HasSuffix(p.tok.text, ":") {
				return p.errorf("expected prefix name, found %q", p.tok.text)
			}
			name := strings.TrimSuffix(p.tok.text, ":")
			if err := p.advance(); err != nil {
				return err
			}
			if p.tok.kind != tokIRI {
				return p.errorf("expected IRI for prefix %s", name)
			}
			p.prefixes[name] = p.resolveIRI(p.tok.text)
			if err := p.advance(); err != nil {
				return err
			}
		case p.isKeyword("BASE"):
			if err := p.advance(); err != nil {
				return err
			}
			if p.tok.kind != tokIRI {
				return p.errorf("expected IRI after BASE")
			}
			p.base = p.tok.text
			if err := p.advance(); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (p *parser) resolveIRI(s string) string {
	if p.base == "" || strings.Contains(s, ":") {
		return s
	}
	return p.base + s
}

func (p *parser) expandPName(pname string) (ir.IRI, error) {
	prefix, local, _ := strings.Cut(pname, ":")
	ns, ok := p.prefixes[prefix]
	if !ok {
		return "", p.errorf("undeclared prefix %q", prefix)
	}
	return ir.IRI(ns + local), nil
}

// projItem is one entry of a SELECT clause.
type projItem struct {
	name string
	expr algebra.Expr // nil for a plain variable
}

// parseSelect parses a SELECT query or sub-select, including its solution
// modifiers, and assembles Extension, Order, Projection, Distinct, and
// Slice around the WHERE group.
func (p *parser) parseSelect() (algebra.Node, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	distinct := false
	if p.isKeyword("DISTINCT") || p.isKeyword("REDUCED") {
		distinct = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	var items []projItem
	star := false
	if p.isPunct("*") {
		star = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	} else {
		for p.tok.kind == tokVar || p.isPunct("(") {
			if p.tok.kind == tokVar {
				items = append(items, projItem{name: p.tok.text})
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectKeyword("AS"); err != nil {
				return nil, err
			}
			if p.tok.kind != tokVar {
				return nil, p.errorf("expected variable after AS")
			}
			name := p.tok.text
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			items = append(items, projItem{name: name, expr: e})
		}
		if len(items) == 0 {
			return nil, p.errorf("empty SELECT clause")
		}
	}

	if p.isKeyword("WHERE") {
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	node, err := p.parseGroup()
	if err != nil {
		return nil, err
	}

	order, err := p.parseOrderBy()
	if err != nil {
		return nil, err
	}
	offset, limit, err := p.parseLimitOffset()
	if err != nil {
		return nil, err
	}

	var elems []algebra.ProjectionElem
	var ext []algebra.ExtensionElem
	if star {
		for _, name := range algebra.Sorted(algebra.BindingNames(node)) {
			if !strings.HasPrefix(name, "_anon") {
				elems = append(elems, algebra.ProjectionElem{Source: name, Target: name})
			}
		}
	}
	for _, it := range items {
		switch e := it.expr.(type) {
		case nil:
			elems = append(elems, algebra.ProjectionElem{Source: it.name, Target: it.name})
		case algebra.VarExpr:
			elems = append(elems, algebra.ProjectionElem{Source: e.Name, Target: it.name})
		default:
			ext = append(ext, algebra.ExtensionElem{Name: it.name, Expr: e})
			elems = append(elems, algebra.ProjectionElem{Source: it.name, Target: it.name})
		}
	}

	if len(ext) > 0 {
		node = algebra.NewExtension(node, ext...)
	}
	if len(order) > 0 {
		node = algebra.NewOrder(node, order...)
	}
	node = algebra.NewProjectionElems(node, elems)
	if distinct {
		node = algebra.NewDistinct(node)
	}
	if offset > 0 || limit != algebra.NoLimit {
		node = algebra.NewSlice(node, offset, limit)
	}
	return node, nil
}

func (p *parser) parseOrderBy() ([]algebra.OrderElem, error) {
	if !p.isKeyword("ORDER") {
		return nil, nil
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("BY"); err != nil {
		return nil, err
	}
	var elems []algebra.OrderElem
	for {
		switch {
		case p.isKeyword("ASC") || p.isKeyword("DESC"):
			desc := p.isKeyword("DESC")
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.expectPunct("("); err != nil {
				return nil, err
			}
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			elems = append(elems, algebra.OrderElem{Expr: e, Descending: desc})
		case p.tok.kind == tokVar:
			elems = append(elems, algebra.OrderElem{Expr: algebra.VarExpr{Name: p.tok.text}})
			if err := p.advance(); err != nil {
				return nil, err
			}
		case p.isPunct("("):
			e, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			elems = append(elems, algebra.OrderElem{Expr: e})
		default:
			if len(elems) == 0 {
				return nil, p.errorf("empty ORDER BY")
			}
			return elems, nil
		}
	}
}

func (p *parser) parseLimitOffset() (int64, int64, error) {
	offset, limit := int64(0), algebra.NoLimit
	for p.isKeyword("LIMIT") || p.isKeyword("OFFSET") {
		isLimit := p.isKeyword("LIMIT")
		if err := p.advance(); err != nil {
			return 0, 0, err
		}
		if p.tok.kind != tokInteger {
			return 0, 0, p.errorf("expected integer, found %q", p.tok.text)
		}
		n, err := strconv.ParseInt(p.tok.text, 10, 64)
		if err != nil {
			return 0, 0, p.errorf("bad integer %q", p.tok.text)
		}
		if isLimit {
			limit = n
		} else {
			offset = n
		}
		if err := p.advance(); err != nil {
			return 0, 0, err
		}
	}
	return offset, limit, nil
}

// parseGroup parses a group graph pattern: { ... }.
func (p *parser) parseGroup() (algebra.Node, error) {
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	if p.isKeyword("SELECT") {
		sub, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("}"); err != nil {
			return nil, err
		}
		return sub, nil
	}

	var acc algebra.Node
	var filters []algebra.Expr
	var hints algebra.Hints

	join := func(n algebra.Node) {
		if acc == nil {
			acc = n
			return
		}
		acc = algebra.NewJoin(acc, n)
	}
	orSingleton := func() algebra.Node {
		if acc == nil {
			return algebra.NewSingleton()
		}
		return acc
	}

	for !p.isPunct("}") {
		switch {
		case p.tok.kind == tokEOF:
			return nil, p.errorf("unterminated group")

		case p.isPunct("{"):
			g, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			for p.isKeyword("UNION") {
				if err := p.advance(); err != nil {
					return nil, err
				}
				right, err := p.parseGroup()
				if err != nil {
					return nil, err
				}
				g = algebra.NewUnion(g, right)
			}
			join(g)

		case p.isKeyword("OPTIONAL"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			g, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			var cond algebra.Expr
			if f, ok := g.(*algebra.Filter); ok && f.Hints().IsZero() {
				cond = f.Condition
				g = f.Arg
				if err := f.ReplaceChild(g, algebra.NewEmpty()); err != nil {
					return nil, err
				}
			}
			acc = algebra.NewLeftJoin(orSingleton(), g, cond)

		case p.isKeyword("GRAPH"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			ctx, err := p.parseVarOrIRI()
			if err != nil {
				return nil, err
			}
			g, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			setContext(g, ctx)
			join(g)

		case p.isKeyword("SERVICE"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			silent := false
			if p.isKeyword("SILENT") {
				silent = true
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
			ref, err := p.parseVarOrIRI()
			if err != nil {
				return nil, err
			}
			g, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			join(algebra.NewService(ref, silent, g))

		case p.isKeyword("FILTER"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			e, err := p.parseConstraint()
			if err != nil {
				return nil, err
			}
			filters = append(filters, e)

		case p.isKeyword("BIND"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.expectPunct("("); err != nil {
				return nil, err
			}
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectKeyword("AS"); err != nil {
				return nil, err
			}
			if p.tok.kind != tokVar {
				return nil, p.errorf("expected variable after AS")
			}
			name := p.tok.text
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			acc = algebra.NewExtension(orSingleton(), algebra.ExtensionElem{Name: name, Expr: e})

		case p.isKeyword("VALUES"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			v, err := p.parseValues()
			if err != nil {
				return nil, err
			}
			join(v)

		default:
			patterns, err := p.parseTriplesBlock()
			if err != nil {
				return nil, err
			}
			for _, pt := range patterns {
				if h, ok := hintOf(pt); ok {
					hints = mergeHints(hints, h)
					continue
				}
				join(pt)
			}
		}

		if p.isPunct(".") {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	node := orSingleton()
	if len(filters) > 0 {
		node = algebra.NewFilter(node, algebra.Conjoin(filters...))
	}
	if !hints.IsZero() {
		node.SetHints(mergeHints(node.Hints(), hints))
	}
	return node, nil
}

func hintOf(pt *algebra.Pattern) (algebra.Hints, bool) {
	if !pt.Subject.IsConst() || !ir.Equal(pt.Subject.Value, HintGroup) {
		return algebra.Hints{}, false
	}
	on := false
	if l, ok := pt.Object.Value.(ir.Literal); ok {
		on, _ = l.Bool()
	}
	var h algebra.Hints
	switch pt.Predicate.Value {
	case HintExecuteFirst:
		h.ExecuteFirst = on
	case HintExecuteLast:
		h.ExecuteLast = on
	case HintDisableReordering:
		h.DisableReordering = on
	default:
		return algebra.Hints{}, false
	}
	return h, true
}

func mergeHints(a, b algebra.Hints) algebra.Hints {
	return algebra.Hints{
		ExecuteFirst:      a.ExecuteFirst || b.ExecuteFirst,
		ExecuteLast:       a.ExecuteLast || b.ExecuteLast,
		DisableReordering: a.DisableReordering || b.DisableReordering,
	}
}

// setContext restricts every pattern in g to the graph ctx, leaving
// patterns under nested GRAPH or SERVICE blocks alone.
func setContext(g algebra.Node, ctx algebra.Var) {
	algebra.Inspect(g, func(n algebra.Node) bool {
		switch x := n.(type) {
		case *algebra.Service:
			return false
		case *algebra.Pattern:
			if x.Context == nil {
				c := ctx
				x.Context = &c
			}
		}
		return true
	})
}

func (p *parser) parseVarOrIRI() (algebra.Var, error) {
	switch p.tok.kind {
	case tokVar:
		v := algebra.V(p.tok.text)
		return v, p.advance()
	case tokIRI:
		v := algebra.C(ir.IRI(p.resolveIRI(p.tok.text)))
		return v, p.advance()
	case tokPName:
		iri, err := p.expandPName(p.tok.text)
		if err != nil {
			return algebra.Var{}, err
		}
		return algebra.C(iri), p.advance()
	}
	return algebra.Var{}, p.errorf("expected variable or IRI, found %q", p.tok.text)
}

func (p *parser) parseValues() (*algebra.Values, error) {
	var names []string
	multi := false
	if p.isPunct("(") {
		multi = true
		if err := p.advance(); err != nil {
			return nil, err
		}
		for p.tok.kind == tokVar {
			names = append(names, p.tok.text)
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
	} else {
		if p.tok.kind != tokVar {
			return nil, p.errorf("expected variable after VALUES")
		}
		names = []string{p.tok.text}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}

	var rows []ir.BindingSet
	for !p.isPunct("}") {
		var vals []ir.Term
		if multi {
			if err := p.expectPunct("("); err != nil {
				return nil, err
			}
			for !p.isPunct(")") {
				v, err := p.parseDataValue()
				if err != nil {
					return nil, err
				}
				vals = append(vals, v)
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		} else {
			v, err := p.parseDataValue()
			if err != nil {
				return nil, err
			}
			vals = []ir.Term{v}
		}
		if len(vals) != len(names) {
			return nil, p.errorf("VALUES row has %d values for %d variables", len(vals), len(names))
		}
		var row ir.BindingSet
		for i, v := range vals {
			row = row.With(names[i], v)
		}
		rows = append(rows, row)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return algebra.NewValues(names, rows), nil
}

// parseDataValue parses a VALUES entry; UNDEF yields nil.
func (p *parser) parseDataValue() (ir.Term, error) {
	if p.isKeyword("UNDEF") {
		return nil, p.advance()
	}
	v, err := p.parseTermSlot()
	if err != nil {
		return nil, err
	}
	if !v.IsConst() {
		return nil, p.errorf("variables are not allowed in VALUES data")
	}
	return v.Value, nil
}

// parseTriplesBlock parses subject predicate-object lists separated by '.'.
func (p *parser) parseTriplesBlock() ([]*algebra.Pattern, error) {
	var out []*algebra.Pattern
	for {
		subj, nested, err := p.parseSubject()
		if err != nil {
			return nil, err
		}
		out = append(out, nested...)
		if !(nested != nil && (p.isPunct(".") || p.isPunct("}"))) {
			pats, err := p.parsePropertyList(subj)
			if err != nil {
				return nil, err
			}
			out = append(out, pats...)
		}
		if !p.isPunct(".") {
			return out, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if !p.startsTerm() {
			return out, nil
		}
	}
}

func (p *parser) startsTerm() bool {
	switch p.tok.kind {
	case tokVar, tokIRI, tokPName, tokString, tokBNode, tokInteger, tokDecimal, tokDouble:
		return true
	case tokName:
		return p.isKeyword("true") || p.isKeyword("false")
	case tokPunct:
		return p.tok.text == "["
	}
	return false
}

func (p *parser) parseSubject() (algebra.Var, []*algebra.Pattern, error) {
	if p.isPunct("[") {
		return p.parseAnonNode()
	}
	v, err := p.parseTermSlot()
	return v, nil, err
}

// parseAnonNode parses [ predicate-object-list ] and returns the fresh
// variable standing for it with the nested patterns.
func (p *parser) parseAnonNode() (algebra.Var, []*algebra.Pattern, error) {
	if err := p.advance(); err != nil {
		return algebra.Var{}, nil, err
	}
	v := p.freshAnon()
	var nested []*algebra.Pattern
	if !p.isPunct("]") {
		pats, err := p.parsePropertyList(v)
		if err != nil {
			return algebra.Var{}, nil, err
		}
		nested = pats
	}
	if err := p.expectPunct("]"); err != nil {
		return algebra.Var{}, nil, err
	}
	if nested == nil {
		nested = []*algebra.Pattern{}
	}
	return v, nested, nil
}

func (p *parser) freshAnon() algebra.Var {
	p.anon++
	return algebra.V(fmt.Sprintf("_anon%d", p.anon))
}

func (p *parser) parsePropertyList(subj algebra.Var) ([]*algebra.Pattern, error) {
	var out []*algebra.Pattern
	for {
		pred, err := p.parseVerb()
		if err != nil {
			return nil, err
		}
		for {
			var obj algebra.Var
			if p.isPunct("[") {
				v, nested, err := p.parseAnonNode()
				if err != nil {
					return nil, err
				}
				obj = v
				out = append(out, nested...)
			} else {
				obj, err = p.parseTermSlot()
				if err != nil {
					return nil, err
				}
			}
			out = append(out, algebra.NewPattern(subj, pred, obj))
			if !p.isPunct(",") {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		if !p.isPunct(";") {
			return out, nil
		}
		for p.isPunct(";") {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		if p.isPunct(".") || p.isPunct("}") || p.isPunct("]") {
			return out, nil
		}
	}
}

func (p *parser) parseVerb() (algebra.Var, error) {
	if p.isKeyword("a") && p.tok.text == "a" {
		return algebra.C(ir.RDFType), p.advance()
	}
	v, err := p.parseTermSlot()
	if err != nil {
		return algebra.Var{}, err
	}
	if v.IsConst() {
		if _, ok := v.Value.(ir.IRI); !ok {
			return algebra.Var{}, p.errorf("predicate must be a variable or IRI")
		}
	}
	return v, nil
}

// parseTermSlot parses a variable, IRI, prefixed name, blank node label,
// or literal.
func (p *parser) parseTermSlot() (algebra.Var, error) {
	switch p.tok.kind {
	case tokVar, tokIRI, tokPName:
		return p.parseVarOrIRI()
	case tokBNode:
		v := algebra.V("_anon_" + p.tok.text)
		return v, p.advance()
	}
	lit, err := p.parseLiteral()
	if err != nil {
		return algebra.Var{}, err
	}
	return algebra.C(lit), nil
}

func (p *parser) parseLiteral() (ir.Term, error) {
	switch p.tok.kind {
	case tokString:
		lex := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		switch {
		case p.tok.kind == tokLangTag:
			lang := p.tok.text
			return ir.NewLangString(lex, lang), p.advance()
		case p.isPunct("^^"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			dt, err := p.parseVarOrIRI()
			if err != nil {
				return nil, err
			}
			if !dt.IsConst() {
				return nil, p.errorf("datatype must be an IRI")
			}
			return ir.NewTyped(lex, dt.Value.(ir.IRI)), nil
		}
		return ir.NewString(lex), nil
	case tokInteger:
		return ir.NewTyped(p.tok.text, ir.XSDInteger), p.advance()
	case tokDecimal:
		return ir.NewTyped(p.tok.text, ir.XSDDecimal), p.advance()
	case tokDouble:
		return ir.NewTyped(p.tok.text, ir.XSDDouble), p.advance()
	case tokName:
		if p.isKeyword("true") || p.isKeyword("false") {
			return ir.NewBool(p.isKeyword("true")), p.advance()
		}
	}
	return nil, p.errorf("expected term, found %q", p.tok.text)
}

// parseConstraint parses a FILTER constraint: a bracketted expression or a
// function call.
func (p *parser) parseConstraint() (algebra.Expr, error) {
	if p.isPunct("(") {
		return p.parsePrimary()
	}
	if p.tok.kind == tokName {
		return p.parsePrimary()
	}
	return nil, p.errorf("expected constraint, found %q", p.tok.text)
}

func (p *parser) parseExpr() (algebra.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isPunct("||") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = algebra.Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (algebra.Expr, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for p.isPunct("&&") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = algebra.And{Left: left, Right: right}
	}
	return left, nil
}

var compareOps = map[string]algebra.CompareOp{
	"=":  algebra.OpEQ,
	"!=": algebra.OpNE,
	"<":  algebra.OpLT,
	">":  algebra.OpGT,
	"<=": algebra.OpLE,
	">=": algebra.OpGE,
}

func (p *parser) parseRelational() (algebra.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.tok.kind == tokPunct {
		if op, ok := compareOps[p.tok.text]; ok {
			if err := p.advance(); err != nil {
				return nil, err
			}
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return algebra.Compare{Op: op, Left: left, Right: right}, nil
		}
	}
	return left, nil
}

func (p *parser) parseUnary() (algebra.Expr, error) {
	if p.isPunct("!") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		arg, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return algebra.Not{Arg: arg}, nil
	}
	if p.isPunct("-") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		l, ok := lit.(ir.Literal)
		if !ok || !l.IsNumeric() {
			return nil, p.errorf("unary minus needs a numeric literal")
		}
		return algebra.ConstExpr{Value: ir.NewTyped("-"+l.Lexical, l.Datatype)}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (algebra.Expr, error) {
	switch {
	case p.isPunct("("):
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return e, p.expectPunct(")")

	case p.tok.kind == tokVar:
		e := algebra.VarExpr{Name: p.tok.text}
		return e, p.advance()

	case p.tok.kind == tokIRI || p.tok.kind == tokPName:
		v, err := p.parseVarOrIRI()
		if err != nil {
			return nil, err
		}
		if p.isPunct("(") {
			return nil, p.errorf("custom function %s is not supported", v)
		}
		return algebra.ConstExpr{Value: v.Value}, nil

	case p.isKeyword("BOUND"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		if p.tok.kind != tokVar {
			return nil, p.errorf("BOUND needs a variable")
		}
		e := algebra.Bound{Name: p.tok.text}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return e, p.expectPunct(")")

	case p.tok.kind == tokName && !p.isKeyword("true") && !p.isKeyword("false"):
		fn := strings.ToUpper(p.tok.text)
		arity, ok := algebra.Builtins[fn]
		if !ok {
			return nil, p.errorf("unsupported function %s", p.tok.text)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		var args []algebra.Expr
		for !p.isPunct(")") {
			a, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.isPunct(",") {
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if arity >= 0 && len(args) != arity {
			return nil, p.errorf("%s takes %d arguments, got %d", fn, arity, len(args))
		}
		return algebra.Call{Func: fn, Args: args}, nil
	}

	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return algebra.ConstExpr{Value: lit}, nil
}
