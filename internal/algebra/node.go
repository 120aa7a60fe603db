package algebra

import (
	"github.com/roach88/fedq/internal/ir"
)

// Node is a sealed interface implemented by every algebra node.
//
// Children returns the direct children in evaluation order. ReplaceChild
// swaps one direct child for another and fixes both parent links; it fails
// with a StructureError when current is not a child. Clone returns a deep
// copy whose root has no parent.
type Node interface {
	Kind() Kind
	Parent() Node
	Children() []Node
	Accept(v Visitor) error
	ReplaceChild(current, replacement Node) error
	Clone() Node

	// Hints returns the join-order hints attached to this node.
	Hints() Hints
	// SetHints replaces the hints attached to this node.
	SetHints(h Hints)

	setParent(p Node)
	algebraNode() // Marker method - seals interface to this package
}

// base carries the state shared by all nodes.
type base struct {
	parent Node
	hints  Hints
}

func (b *base) Parent() Node { return b.parent }
func (b *base) setParent(p Node) { b.parent = p }
func (b *base) Hints() Hints { return b.hints }
func (b *base) SetHints(h Hints) { b.hints = h }
func (*base) algebraNode() {}
func (b *base) cloneBase() base { return base{hints: b.hints} }

// Hints are join-order annotations. They are read by the join-ordering
// pass and otherwise ignored.
type Hints struct {
	ExecuteFirst      bool
	ExecuteLast       bool
	DisableReordering bool
}

// IsZero reports whether no hint is set.
func (h Hints) IsZero() bool {
	return !h.ExecuteFirst && !h.ExecuteLast && !h.DisableReordering
}

// Var is a pattern slot: either a named variable or a constant value,
// never both.
type Var struct {
	Name  string
	Value ir.Term
}

// V creates a named variable.
func V(name string) Var { return Var{Name: name} }

// C creates a constant.
func C(value ir.Term) Var { return Var{Value: value} }

// IsConst reports whether the slot holds a constant.
func (v Var) IsConst() bool { return v.Value != nil }

// IsZero reports whether the slot is unset.
func (v Var) IsZero() bool { return v.Name == "" && v.Value == nil }

// Equal reports whether two slots are the same variable or the same constant.
func (v Var) Equal(o Var) bool {
	if v.IsConst() || o.IsConst() {
		return ir.Equal(v.Value, o.Value)
	}
	return v.Name == o.Name
}

// Resolve returns the constant value of the slot, or the value bound to
// the variable in bs, or nil.
func (v Var) Resolve(bs ir.BindingSet) ir.Term {
	if v.IsConst() {
		return v.Value
	}
	return bs.Value(v.Name)
}

func (v Var) String() string {
	if v.IsConst() {
		return v.Value.String()
	}
	return "?" + v.Name
}

// setChild points a child slot at replacement when it currently holds
// current, fixing both parent links.
func setChild(parent Node, slot *Node, current, replacement Node) bool {
	if *slot != current {
		return false
	}
	*slot = replacement
	replacement.setParent(parent)
	current.setParent(nil)
	return true
}

func adopt(parent Node, children ...Node) {
	for _, c := range children {
		if c != nil {
			c.setParent(parent)
		}
	}
}
