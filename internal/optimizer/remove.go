package optimizer

import (
	"fmt"

	"github.com/roach88/fedq/internal/algebra"
)

// NodeRemover removes every node structurally equal to Target and repairs
// the parents:
//
//   - in an n-ary join the argument is dropped; a join left with one
//     argument is replaced by it, a join left with none by Singleton
//   - an Owned wrapper is removed together with its content
//   - in a binary node the whole node is replaced by the other side
//   - under a unary node or the Root the child becomes Empty
//
// When Scope is set only nodes whose enclosing scope root is Scope are
// removed, so an equal node inside a sub-select or outside it is kept.
type NodeRemover struct {
	Target algebra.Node
	Scope  algebra.Node
}

// Apply removes the matching nodes under root and returns how many were
// removed.
func (r NodeRemover) Apply(root *algebra.Root) (int, error) {
	if r.Target == nil {
		return 0, fmt.Errorf("node remover: no target")
	}
	var found []algebra.Node
	algebra.Inspect(root.Arg, func(n algebra.Node) bool {
		if !algebra.Equal(n, r.Target) {
			return true
		}
		if r.Scope != nil && algebra.ScopeRoot(n) != r.Scope {
			return true
		}
		found = append(found, n)
		return false
	})
	for _, n := range found {
		if err := removeAt(n); err != nil {
			return 0, err
		}
	}
	return len(found), nil
}

// RemoveNode is shorthand for NodeRemover{Target: target, Scope: scope}.Apply(root).
func RemoveNode(root *algebra.Root, target, scope algebra.Node) (int, error) {
	return NodeRemover{Target: target, Scope: scope}.Apply(root)
}

// removeAt removes exactly n from the tree it is attached to.
func removeAt(n algebra.Node) error {
	switch p := n.Parent().(type) {
	case nil:
		return &algebra.StructureError{Node: n.Kind(), Message: "cannot remove a detached node"}

	case *algebra.NaryJoin:
		if err := p.RemoveArg(n); err != nil {
			return err
		}
		switch len(p.Args) {
		case 0:
			return p.Parent().ReplaceChild(p, algebra.NewSingleton())
		case 1:
			return collapse(p)
		}
		return nil

	case *algebra.Owned:
		return removeAt(p)

	case *algebra.Join:
		return keepOther(p, n, p.Left, p.Right)
	case *algebra.LeftJoin:
		return keepOther(p, n, p.Left, p.Right)
	case *algebra.Union:
		return keepOther(p, n, p.Left, p.Right)

	default:
		return p.ReplaceChild(n, algebra.NewEmpty())
	}
}

func keepOther(p, n, left, right algebra.Node) error {
	other := left
	if n == left {
		other = right
	}
	if err := p.ReplaceChild(n, algebra.NewEmpty()); err != nil {
		return err
	}
	return p.Parent().ReplaceChild(p, other)
}

// collapse replaces a one-argument n-ary join by its argument. The join's
// hints move to the argument unless it has its own.
func collapse(j *algebra.NaryJoin) error {
	arg := j.Args[0]
	if arg.Hints().IsZero() {
		arg.SetHints(j.Hints())
	}
	return j.Parent().ReplaceChild(j, arg)
}

// DeadNodePass drops join identities and empty union branches: Singleton
// arguments of joins with other arguments, and Empty sides of a Union.
type DeadNodePass struct{}

func (DeadNodePass) Name() string { return "deadnode" }

func (DeadNodePass) Apply(root *algebra.Root) (bool, error) {
	changed := false
	err := algebra.PostOrder(root, func(n algebra.Node) error {
		switch x := n.(type) {
		case *algebra.NaryJoin:
			removed := false
			for len(x.Args) > 1 {
				i := indexOfSingleton(x.Args)
				if i < 0 {
					break
				}
				if err := x.RemoveArg(x.Args[i]); err != nil {
					return err
				}
				removed = true
			}
			if removed {
				changed = true
				if len(x.Args) == 1 {
					return collapse(x)
				}
			}

		case *algebra.Join:
			if isSingleton(x.Left) {
				changed = true
				return removeAt(x.Left)
			}
			if isSingleton(x.Right) {
				changed = true
				return removeAt(x.Right)
			}

		case *algebra.Union:
			if isEmpty(x.Left) {
				changed = true
				return removeAt(x.Left)
			}
			if isEmpty(x.Right) {
				changed = true
				return removeAt(x.Right)
			}
		}
		return nil
	})
	return changed, err
}

func indexOfSingleton(args []algebra.Node) int {
	for i, a := range args {
		if isSingleton(a) {
			return i
		}
	}
	return -1
}

func isSingleton(n algebra.Node) bool {
	_, ok := n.(*algebra.Singleton)
	return ok && n.Hints().IsZero()
}

func isEmpty(n algebra.Node) bool {
	_, ok := n.(*algebra.Empty)
	return ok
}
