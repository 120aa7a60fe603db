package optimizer

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/roach88/fedq/internal/algebra"
)

// JoinOrderPass orders the arguments of each n-ary join by their hints:
// executeFirst arguments lead, executeLast arguments trail, and the rest
// keep their place in between. Within each group an argument whose
// service inputs are not yet bound waits until an earlier argument binds
// them. A join hinted disableReordering is left as written.
type JoinOrderPass struct{}

func (JoinOrderPass) Name() string { return "joinorder" }

func (JoinOrderPass) Apply(root *algebra.Root) (bool, error) {
	changed := false
	algebra.Inspect(root, func(n algebra.Node) bool {
		j, ok := n.(*algebra.NaryJoin)
		if !ok || j.Hints().DisableReordering || len(j.Args) < 2 {
			return true
		}
		ordered := orderArgs(j.Args)
		if !slices.Equal(ordered, j.Args) {
			j.SetArgs(ordered)
			changed = true
		}
		return true
	})
	return changed, nil
}

func orderArgs(args []algebra.Node) []algebra.Node {
	var first, middle, last []algebra.Node
	for _, a := range args {
		switch h := a.Hints(); {
		case h.ExecuteFirst:
			first = append(first, a)
		case h.ExecuteLast:
			last = append(last, a)
		default:
			middle = append(middle, a)
		}
	}

	bound := mapset.NewThreadUnsafeSet[string]()
	out := make([]algebra.Node, 0, len(args))
	for _, group := range [][]algebra.Node{first, middle, last} {
		pending := slices.Clone(group)
		for len(pending) > 0 {
			i := slices.IndexFunc(pending, func(a algebra.Node) bool {
				return bound.IsSuperset(requiredInputs(a))
			})
			if i < 0 {
				i = 0
			}
			a := pending[i]
			pending = slices.Delete(pending, i, i+1)
			out = append(out, a)
			bound = bound.Union(algebra.BindingNames(a))
		}
	}
	return out
}

// requiredInputs returns the variables an argument needs bound before it
// can be evaluated.
func requiredInputs(n algebra.Node) mapset.Set[string] {
	out := mapset.NewThreadUnsafeSet[string]()
	switch x := n.(type) {
	case *algebra.ServiceCall:
		for _, name := range x.InputVars() {
			out.Add(name)
		}
	case *algebra.KeywordSearch:
		if !x.Query.IsConst() {
			out.Add(x.Query.Name)
		}
	case *algebra.Order, *algebra.Slice, *algebra.Filter, *algebra.Distinct, *algebra.Owned:
		return requiredInputs(n.Children()[0])
	}
	return out
}
