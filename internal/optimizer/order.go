package optimizer

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/roach88/fedq/internal/algebra"
)

// OrderPass pushes ORDER BY toward the members.
//
// Over a Union every branch gets a copy of the order, inside the branch's
// Owned node when it has one, and the central order is marked pushed so
// the engine merges the sorted branches. Over an n-ary join the keys are
// copied into the arguments only when every key is bound by exactly one
// argument; the central order stays and sorts the joined rows. Over a Rank
// whose result is not a key the order moves below the Rank.
type OrderPass struct{}

func (OrderPass) Name() string { return "order" }

func (OrderPass) Apply(root *algebra.Root) (bool, error) {
	changed := false
	var err error
	algebra.Inspect(root, func(n algebra.Node) bool {
		if err != nil {
			return false
		}
		o, ok := n.(*algebra.Order)
		if !ok || o.Pushed {
			return true
		}
		var pushed bool
		pushed, err = pushOrder(o)
		changed = changed || pushed
		return err == nil
	})
	return changed, err
}

func pushOrder(o *algebra.Order) (bool, error) {
	switch arg := o.Arg.(type) {
	case *algebra.Union:
		for _, branch := range []algebra.Node{arg.Left, arg.Right} {
			if err := orderBelow(branch, o.Elems); err != nil {
				return false, err
			}
		}
		o.Pushed = true
		return true, nil

	case *algebra.NaryJoin:
		keys := keysByArg(arg, o.Elems)
		if keys == nil {
			return false, nil
		}
		changed := false
		for i, a := range slices.Clone(arg.Args) {
			elems := keys[i]
			if len(elems) == 0 {
				continue
			}
			if existing, ok := insideOwned(a).(*algebra.Order); ok && elemsEqual(existing.Elems, elems) {
				continue
			}
			if err := orderBelow(a, elems); err != nil {
				return changed, err
			}
			changed = true
		}
		return changed, nil

	case *algebra.Rank:
		for _, e := range o.Elems {
			if slices.Contains(algebra.ExprVars(e.Expr), arg.Result) {
				return false, nil
			}
		}
		if err := orderBelow(arg.Arg, o.Elems); err != nil {
			return false, err
		}
		o.Pushed = true
		return true, nil
	}
	return false, nil
}

// orderBelow wraps n, or the content of n when n is Owned, in a copy of
// the sort keys.
func orderBelow(n algebra.Node, elems []algebra.OrderElem) error {
	_, err := wrap(insideOwned(n), func(c algebra.Node) algebra.Node {
		return algebra.NewOrder(c, slices.Clone(elems)...)
	})
	return err
}

// keysByArg assigns each sort key to the single join argument that binds
// all of its variables. It returns nil when some key has no such argument.
func keysByArg(j *algebra.NaryJoin, elems []algebra.OrderElem) map[int][]algebra.OrderElem {
	names := make([]mapset.Set[string], len(j.Args))
	for i, a := range j.Args {
		names[i] = algebra.BindingNames(a)
	}
	out := map[int][]algebra.OrderElem{}
	for _, e := range elems {
		vars := algebra.ExprVars(e.Expr)
		if len(vars) == 0 {
			return nil
		}
		owner := -1
		for i := range j.Args {
			if !slices.ContainsFunc(vars, func(v string) bool { return names[i].Contains(v) }) {
				continue
			}
			if owner >= 0 {
				return nil
			}
			owner = i
		}
		if owner < 0 || !names[owner].Contains(vars...) {
			return nil
		}
		out[owner] = append(out[owner], e)
	}
	return out
}

func elemsEqual(a, b []algebra.OrderElem) bool {
	return slices.EqualFunc(a, b, func(x, y algebra.OrderElem) bool {
		return x.Descending == y.Descending && algebra.ExprEqual(x.Expr, y.Expr)
	})
}
