package optimizer

import (
	"github.com/roach88/fedq/internal/algebra"
)

// wrap puts build(n) where n sits in its parent. build must adopt n.
func wrap(n algebra.Node, build func(algebra.Node) algebra.Node) (algebra.Node, error) {
	parent := n.Parent()
	hole := algebra.NewEmpty()
	if err := parent.ReplaceChild(n, hole); err != nil {
		return nil, err
	}
	w := build(n)
	return w, parent.ReplaceChild(hole, w)
}

// wrapOwned wraps n in an Owned node for member. The hints of n move to
// the Owned node, which takes n's place among its siblings.
func wrapOwned(n algebra.Node, member string) (algebra.Node, error) {
	return wrap(n, func(c algebra.Node) algebra.Node {
		o := algebra.NewOwned(member, c)
		o.SetHints(c.Hints())
		c.SetHints(algebra.Hints{})
		return o
	})
}

// unwrap replaces o by its content.
func unwrap(o *algebra.Owned) error {
	return o.Parent().ReplaceChild(o, o.Arg)
}

// insideOwned returns the node a pushed-down operator should wrap: the
// content of an Owned branch, or the branch itself.
func insideOwned(n algebra.Node) algebra.Node {
	if o, ok := n.(*algebra.Owned); ok {
		return o.Arg
	}
	return n
}

func ownedBy(n algebra.Node) (string, bool) {
	o, ok := n.(*algebra.Owned)
	if !ok || !o.Hints().IsZero() {
		return "", false
	}
	return o.Member, true
}
