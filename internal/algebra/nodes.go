package algebra

import (
	"slices"
	"strings"

	"github.com/roach88/fedq/internal/ir"
)

// QueryForm distinguishes SELECT from ASK queries.
type QueryForm int

const (
	FormSelect QueryForm = iota
	FormAsk
)

// Root holds the whole tree. Rewrites that replace the top node edit the
// Root's child instead of returning a new tree.
type Root struct {
	base
	Arg  Node
	Form QueryForm
}

// NewRoot wraps arg in a Root.
func NewRoot(arg Node) *Root {
	r := &Root{Arg: arg}
	adopt(r, arg)
	return r
}

// NewAskRoot wraps arg in a Root for an ASK query.
func NewAskRoot(arg Node) *Root {
	r := NewRoot(arg)
	r.Form = FormAsk
	return r
}

func (*Root) Kind() Kind { return KindRoot }
func (n *Root) Children() []Node { return []Node{n.Arg} }
func (n *Root) Accept(v Visitor) error { return v.VisitRoot(n) }
func (n *Root) ReplaceChild(c, r Node) error {
	return replaceUnary(n, &n.Arg, c, r)
}
func (n *Root) Clone() Node {
	c := &Root{base: n.cloneBase(), Arg: n.Arg.Clone(), Form: n.Form}
	adopt(c, c.Arg)
	return c
}

// Pattern is a triple pattern. Context, when set, restricts the pattern to
// a named graph.
type Pattern struct {
	base
	Subject   Var
	Predicate Var
	Object    Var
	Context   *Var
}

// NewPattern creates a triple pattern in the default graph.
func NewPattern(s, p, o Var) *Pattern {
	return &Pattern{Subject: s, Predicate: p, Object: o}
}

func (*Pattern) Kind() Kind { return KindPattern }
func (*Pattern) Children() []Node { return nil }
func (n *Pattern) Accept(v Visitor) error { return v.VisitPattern(n) }
func (n *Pattern) ReplaceChild(c, _ Node) error {
	return notAChild(n, c)
}
func (n *Pattern) Clone() Node {
	c := &Pattern{base: n.cloneBase(), Subject: n.Subject, Predicate: n.Predicate, Object: n.Object}
	if n.Context != nil {
		ctx := *n.Context
		c.Context = &ctx
	}
	return c
}

// Slots returns the subject, predicate, object, and context slots that are set.
func (n *Pattern) Slots() []Var {
	out := []Var{n.Subject, n.Predicate, n.Object}
	if n.Context != nil {
		out = append(out, *n.Context)
	}
	return out
}

// String renders the pattern as "s p o", with the graph slot last when set.
func (n *Pattern) String() string {
	parts := make([]string, 0, 4)
	for _, v := range n.Slots() {
		parts = append(parts, v.String())
	}
	return strings.Join(parts, " ")
}

// NaryJoin is an inner join over an ordered argument list.
type NaryJoin struct {
	base
	Args []Node
}

// NewNaryJoin creates an n-ary join over args.
func NewNaryJoin(args ...Node) *NaryJoin {
	j := &NaryJoin{Args: args}
	adopt(j, args...)
	return j
}

func (*NaryJoin) Kind() Kind { return KindNaryJoin }
func (n *NaryJoin) Children() []Node { return slices.Clone(n.Args) }
func (n *NaryJoin) Accept(v Visitor) error { return v.VisitNaryJoin(n) }
func (n *NaryJoin) ReplaceChild(c, r Node) error {
	if r == nil {
		return newStructureError(n, "replacement is nil")
	}
	for i, a := range n.Args {
		if a == c {
			n.Args[i] = r
			r.setParent(n)
			c.setParent(nil)
			return nil
		}
	}
	return notAChild(n, c)
}
func (n *NaryJoin) Clone() Node {
	c := &NaryJoin{base: n.cloneBase(), Args: cloneAll(n.Args)}
	adopt(c, c.Args...)
	return c
}

// RemoveArg drops child from the argument list.
func (n *NaryJoin) RemoveArg(child Node) error {
	i := slices.Index(n.Args, child)
	if i < 0 {
		return notAChild(n, child)
	}
	n.Args = slices.Delete(n.Args, i, i+1)
	child.setParent(nil)
	return nil
}

// SetArgs replaces the argument list, adopting every argument.
func (n *NaryJoin) SetArgs(args []Node) {
	n.Args = args
	adopt(n, args...)
}

// Join is a binary inner join.
type Join struct {
	base
	Left  Node
	Right Node
}

// NewJoin creates a binary join.
func NewJoin(left, right Node) *Join {
	j := &Join{Left: left, Right: right}
	adopt(j, left, right)
	return j
}

func (*Join) Kind() Kind { return KindJoin }
func (n *Join) Children() []Node { return []Node{n.Left, n.Right} }
func (n *Join) Accept(v Visitor) error { return v.VisitJoin(n) }
func (n *Join) ReplaceChild(c, r Node) error {
	return replaceBinary(n, &n.Left, &n.Right, c, r)
}
func (n *Join) Clone() Node {
	return withBase(NewJoin(n.Left.Clone(), n.Right.Clone()), n.cloneBase())
}

// LeftJoin is a left outer join (OPTIONAL). Condition may be nil.
type LeftJoin struct {
	base
	Left      Node
	Right     Node
	Condition Expr
}

// NewLeftJoin creates a left outer join.
func NewLeftJoin(left, right Node, cond Expr) *LeftJoin {
	j := &LeftJoin{Left: left, Right: right, Condition: cond}
	adopt(j, left, right)
	return j
}

func (*LeftJoin) Kind() Kind { return KindLeftJoin }
func (n *LeftJoin) Children() []Node { return []Node{n.Left, n.Right} }
func (n *LeftJoin) Accept(v Visitor) error { return v.VisitLeftJoin(n) }
func (n *LeftJoin) ReplaceChild(c, r Node) error {
	return replaceBinary(n, &n.Left, &n.Right, c, r)
}
func (n *LeftJoin) Clone() Node {
	return withBase(NewLeftJoin(n.Left.Clone(), n.Right.Clone(), n.Condition), n.cloneBase())
}

// Union is a bag union of two branches.
type Union struct {
	base
	Left  Node
	Right Node
}

// NewUnion creates a union.
func NewUnion(left, right Node) *Union {
	u := &Union{Left: left, Right: right}
	adopt(u, left, right)
	return u
}

func (*Union) Kind() Kind { return KindUnion }
func (n *Union) Children() []Node { return []Node{n.Left, n.Right} }
func (n *Union) Accept(v Visitor) error { return v.VisitUnion(n) }
func (n *Union) ReplaceChild(c, r Node) error {
	return replaceBinary(n, &n.Left, &n.Right, c, r)
}
func (n *Union) Clone() Node {
	return withBase(NewUnion(n.Left.Clone(), n.Right.Clone()), n.cloneBase())
}

// ProjectionElem maps a source binding name to an output name.
type ProjectionElem struct {
	Source string
	Target string
}

// Projection restricts and renames bindings. A Projection is a variable
// scope boundary: a sub-select in a query is a nested Projection.
type Projection struct {
	base
	Arg   Node
	Elems []ProjectionElem
}

// NewProjection projects names without renaming.
func NewProjection(arg Node, names ...string) *Projection {
	elems := make([]ProjectionElem, len(names))
	for i, name := range names {
		elems[i] = ProjectionElem{Source: name, Target: name}
	}
	return NewProjectionElems(arg, elems)
}

// NewProjectionElems creates a projection with explicit elements.
func NewProjectionElems(arg Node, elems []ProjectionElem) *Projection {
	p := &Projection{Arg: arg, Elems: elems}
	adopt(p, arg)
	return p
}

func (*Projection) Kind() Kind { return KindProjection }
func (n *Projection) Children() []Node { return []Node{n.Arg} }
func (n *Projection) Accept(v Visitor) error { return v.VisitProjection(n) }
func (n *Projection) ReplaceChild(c, r Node) error {
	return replaceUnary(n, &n.Arg, c, r)
}
func (n *Projection) Clone() Node {
	return withBase(NewProjectionElems(n.Arg.Clone(), slices.Clone(n.Elems)), n.cloneBase())
}

// Filter keeps rows for which Condition evaluates to true.
type Filter struct {
	base
	Arg       Node
	Condition Expr
}

// NewFilter creates a filter.
func NewFilter(arg Node, cond Expr) *Filter {
	f := &Filter{Arg: arg, Condition: cond}
	adopt(f, arg)
	return f
}

func (*Filter) Kind() Kind { return KindFilter }
func (n *Filter) Children() []Node { return []Node{n.Arg} }
func (n *Filter) Accept(v Visitor) error { return v.VisitFilter(n) }
func (n *Filter) ReplaceChild(c, r Node) error {
	return replaceUnary(n, &n.Arg, c, r)
}
func (n *Filter) Clone() Node {
	return withBase(NewFilter(n.Arg.Clone(), n.Condition), n.cloneBase())
}

// ExtensionElem binds Name to the value of Expr (BIND).
type ExtensionElem struct {
	Name string
	Expr Expr
}

// Extension adds computed bindings to every row.
type Extension struct {
	base
	Arg   Node
	Elems []ExtensionElem
}

// NewExtension creates an extension.
func NewExtension(arg Node, elems ...ExtensionElem) *Extension {
	e := &Extension{Arg: arg, Elems: elems}
	adopt(e, arg)
	return e
}

func (*Extension) Kind() Kind { return KindExtension }
func (n *Extension) Children() []Node { return []Node{n.Arg} }
func (n *Extension) Accept(v Visitor) error { return v.VisitExtension(n) }
func (n *Extension) ReplaceChild(c, r Node) error {
	return replaceUnary(n, &n.Arg, c, r)
}
func (n *Extension) Clone() Node {
	return withBase(NewExtension(n.Arg.Clone(), slices.Clone(n.Elems)...), n.cloneBase())
}

// OrderElem is one sort key.
type OrderElem struct {
	Expr       Expr
	Descending bool
}

// Order sorts rows. Pushed is set once the order has been copied into the
// branches or arguments below it; an Order over a Union with Pushed set
// merges the already sorted branches instead of sorting from scratch.
type Order struct {
	base
	Arg    Node
	Elems  []OrderElem
	Pushed bool
}

// NewOrder creates an order node.
func NewOrder(arg Node, elems ...OrderElem) *Order {
	o := &Order{Arg: arg, Elems: elems}
	adopt(o, arg)
	return o
}

func (*Order) Kind() Kind { return KindOrder }
func (n *Order) Children() []Node { return []Node{n.Arg} }
func (n *Order) Accept(v Visitor) error { return v.VisitOrder(n) }
func (n *Order) ReplaceChild(c, r Node) error {
	return replaceUnary(n, &n.Arg, c, r)
}
func (n *Order) Clone() Node {
	c := NewOrder(n.Arg.Clone(), slices.Clone(n.Elems)...)
	c.Pushed = n.Pushed
	return withBase(c, n.cloneBase())
}

// NoLimit marks a Slice without LIMIT.
const NoLimit int64 = -1

// Slice applies OFFSET and LIMIT. Pushed is set once a bounding slice has
// been copied into the union branches below it.
type Slice struct {
	base
	Arg    Node
	Offset int64
	Limit  int64
	Pushed bool
}

// NewSlice creates a slice. Use NoLimit for an offset-only slice.
func NewSlice(arg Node, offset, limit int64) *Slice {
	s := &Slice{Arg: arg, Offset: offset, Limit: limit}
	adopt(s, arg)
	return s
}

// HasLimit reports whether the slice bounds the row count.
func (n *Slice) HasLimit() bool { return n.Limit >= 0 }

func (*Slice) Kind() Kind { return KindSlice }
func (n *Slice) Children() []Node { return []Node{n.Arg} }
func (n *Slice) Accept(v Visitor) error { return v.VisitSlice(n) }
func (n *Slice) ReplaceChild(c, r Node) error {
	return replaceUnary(n, &n.Arg, c, r)
}
func (n *Slice) Clone() Node {
	c := NewSlice(n.Arg.Clone(), n.Offset, n.Limit)
	c.Pushed = n.Pushed
	return withBase(c, n.cloneBase())
}

// Distinct removes duplicate rows.
type Distinct struct {
	base
	Arg Node
}

// NewDistinct creates a distinct node.
func NewDistinct(arg Node) *Distinct {
	d := &Distinct{Arg: arg}
	adopt(d, arg)
	return d
}

func (*Distinct) Kind() Kind { return KindDistinct }
func (n *Distinct) Children() []Node { return []Node{n.Arg} }
func (n *Distinct) Accept(v Visitor) error { return v.VisitDistinct(n) }
func (n *Distinct) ReplaceChild(c, r Node) error {
	return replaceUnary(n, &n.Arg, c, r)
}
func (n *Distinct) Clone() Node {
	return withBase(NewDistinct(n.Arg.Clone()), n.cloneBase())
}

// Values is an inline relation (VALUES). Rows may leave names unbound.
type Values struct {
	base
	Names []string
	Rows  []ir.BindingSet
}

// NewValues creates an inline relation.
func NewValues(names []string, rows []ir.BindingSet) *Values {
	return &Values{Names: names, Rows: rows}
}

func (*Values) Kind() Kind { return KindValues }
func (*Values) Children() []Node { return nil }
func (n *Values) Accept(v Visitor) error { return v.VisitValues(n) }
func (n *Values) ReplaceChild(c, _ Node) error {
	return notAChild(n, c)
}
func (n *Values) Clone() Node {
	return withBase(NewValues(slices.Clone(n.Names), slices.Clone(n.Rows)), n.cloneBase())
}

// Empty produces no rows. Dead-node removal leaves it behind when the
// only argument of a unary operator is removed.
type Empty struct {
	base
}

// NewEmpty creates an empty relation.
func NewEmpty() *Empty { return &Empty{} }

func (*Empty) Kind() Kind { return KindEmpty }
func (*Empty) Children() []Node { return nil }
func (n *Empty) Accept(v Visitor) error { return v.VisitEmpty(n) }
func (n *Empty) ReplaceChild(c, _ Node) error {
	return notAChild(n, c)
}
func (n *Empty) Clone() Node { return &Empty{base: n.cloneBase()} }

// Singleton produces exactly one row: the incoming bindings.
type Singleton struct {
	base
}

// NewSingleton creates the join identity.
func NewSingleton() *Singleton { return &Singleton{} }

func (*Singleton) Kind() Kind { return KindSingleton }
func (*Singleton) Children() []Node { return nil }
func (n *Singleton) Accept(v Visitor) error { return v.VisitSingleton(n) }
func (n *Singleton) ReplaceChild(c, _ Node) error {
	return notAChild(n, c)
}
func (n *Singleton) Clone() Node { return &Singleton{base: n.cloneBase()} }

// Service is an explicit SERVICE block addressed to Ref. Silent services
// yield the incoming bindings when the member is unknown or fails.
type Service struct {
	base
	Ref    Var
	Silent bool
	Arg    Node
}

// NewService creates a service block.
func NewService(ref Var, silent bool, arg Node) *Service {
	s := &Service{Ref: ref, Silent: silent, Arg: arg}
	adopt(s, arg)
	return s
}

// RefIRI returns the constant service reference, or "" when Ref is a variable.
func (n *Service) RefIRI() string {
	if iri, ok := n.Ref.Value.(ir.IRI); ok {
		return string(iri)
	}
	return ""
}

func (*Service) Kind() Kind { return KindService }
func (n *Service) Children() []Node { return []Node{n.Arg} }
func (n *Service) Accept(v Visitor) error { return v.VisitService(n) }
func (n *Service) ReplaceChild(c, r Node) error {
	return replaceUnary(n, &n.Arg, c, r)
}
func (n *Service) Clone() Node {
	return withBase(NewService(n.Ref, n.Silent, n.Arg.Clone()), n.cloneBase())
}

// ParamBinding maps a service parameter to a query slot.
type ParamBinding struct {
	Param string
	Var   Var
	// Optional outputs may be absent from a result row.
	Optional bool
}

// ServiceCall is a call to a capability-described service. Source holds
// the detached patterns the call replaced; they take no part in
// evaluation and keep the call's binding names complete.
type ServiceCall struct {
	base
	Ref     string
	Inputs  []ParamBinding
	Outputs []ParamBinding
	Source  []*Pattern
}

// NewServiceCall creates a service call.
func NewServiceCall(ref string, inputs, outputs []ParamBinding, source []*Pattern) *ServiceCall {
	return &ServiceCall{Ref: ref, Inputs: inputs, Outputs: outputs, Source: source}
}

// InputVars returns the names of variables supplied as inputs.
func (n *ServiceCall) InputVars() []string {
	var out []string
	for _, in := range n.Inputs {
		if !in.Var.IsConst() {
			out = append(out, in.Var.Name)
		}
	}
	return out
}

func (*ServiceCall) Kind() Kind { return KindServiceCall }
func (*ServiceCall) Children() []Node { return nil }
func (n *ServiceCall) Accept(v Visitor) error { return v.VisitServiceCall(n) }
func (n *ServiceCall) ReplaceChild(c, _ Node) error {
	return notAChild(n, c)
}
func (n *ServiceCall) Clone() Node {
	c := NewServiceCall(n.Ref, slices.Clone(n.Inputs), slices.Clone(n.Outputs), clonePatterns(n.Source))
	return withBase(c, n.cloneBase())
}

// KeywordSearch is a full-text lookup answered by a keyword-search member.
// Score and Type are optional output slots.
type KeywordSearch struct {
	base
	Ref        string
	Subject    Var
	Query      Var
	Properties []ir.IRI
	Score      *Var
	Type       *Var
	Source     []*Pattern
}

func (*KeywordSearch) Kind() Kind { return KindKeywordSearch }
func (*KeywordSearch) Children() []Node { return nil }
func (n *KeywordSearch) Accept(v Visitor) error { return v.VisitKeywordSearch(n) }
func (n *KeywordSearch) ReplaceChild(c, _ Node) error {
	return notAChild(n, c)
}
func (n *KeywordSearch) Clone() Node {
	c := &KeywordSearch{
		base:       n.cloneBase(),
		Ref:        n.Ref,
		Subject:    n.Subject,
		Query:      n.Query,
		Properties: slices.Clone(n.Properties),
		Source:     clonePatterns(n.Source),
	}
	if n.Score != nil {
		v := *n.Score
		c.Score = &v
	}
	if n.Type != nil {
		v := *n.Type
		c.Type = &v
	}
	return c
}

// Rank sends the values of Input over all rows of Arg to an aggregate
// service in one call and binds the per-row answers to Result.
type Rank struct {
	base
	Arg    Node
	Ref    string
	Input  string
	Result string
}

// NewRank creates a rank node.
func NewRank(arg Node, ref, input, result string) *Rank {
	r := &Rank{Arg: arg, Ref: ref, Input: input, Result: result}
	adopt(r, arg)
	return r
}

func (*Rank) Kind() Kind { return KindRank }
func (n *Rank) Children() []Node { return []Node{n.Arg} }
func (n *Rank) Accept(v Visitor) error { return v.VisitRank(n) }
func (n *Rank) ReplaceChild(c, r Node) error {
	return replaceUnary(n, &n.Arg, c, r)
}
func (n *Rank) Clone() Node {
	return withBase(NewRank(n.Arg.Clone(), n.Ref, n.Input, n.Result), n.cloneBase())
}

// Owned marks a subtree that is dispatched as a whole to Member.
type Owned struct {
	base
	Member string
	Arg    Node
}

// NewOwned creates an owned subtree.
func NewOwned(member string, arg Node) *Owned {
	o := &Owned{Member: member, Arg: arg}
	adopt(o, arg)
	return o
}

func (*Owned) Kind() Kind { return KindOwned }
func (n *Owned) Children() []Node { return []Node{n.Arg} }
func (n *Owned) Accept(v Visitor) error { return v.VisitOwned(n) }
func (n *Owned) ReplaceChild(c, r Node) error {
	return replaceUnary(n, &n.Arg, c, r)
}
func (n *Owned) Clone() Node {
	return withBase(NewOwned(n.Member, n.Arg.Clone()), n.cloneBase())
}

func replaceUnary(parent Node, slot *Node, current, replacement Node) error {
	if replacement == nil {
		return newStructureError(parent, "replacement is nil")
	}
	if !setChild(parent, slot, current, replacement) {
		return notAChild(parent, current)
	}
	return nil
}

func replaceBinary(parent Node, left, right *Node, current, replacement Node) error {
	if replacement == nil {
		return newStructureError(parent, "replacement is nil")
	}
	if setChild(parent, left, current, replacement) || setChild(parent, right, current, replacement) {
		return nil
	}
	return notAChild(parent, current)
}

func cloneAll(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

func clonePatterns(ps []*Pattern) []*Pattern {
	if ps == nil {
		return nil
	}
	out := make([]*Pattern, len(ps))
	for i, p := range ps {
		out[i] = p.Clone().(*Pattern)
	}
	return out
}

// withBase copies hints from the source node onto a freshly built clone.
func withBase[T Node](n T, b base) T {
	n.SetHints(b.hints)
	return n
}
