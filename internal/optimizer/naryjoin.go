package optimizer

import (
	"slices"

	"github.com/roach88/fedq/internal/algebra"
)

// NaryJoinPass collapses nested binary joins into flat n-ary joins,
// keeping the arguments in left-to-right order. A join that carries hints
// stays a single argument of its parent so the hints keep their meaning.
type NaryJoinPass struct{}

func (NaryJoinPass) Name() string { return "naryjoin" }

func (NaryJoinPass) Apply(root *algebra.Root) (bool, error) {
	changed := false
	err := algebra.PostOrder(root, func(n algebra.Node) error {
		switch x := n.(type) {
		case *algebra.NaryJoin:
			args := flattenArgs(x.Args)
			if slices.Equal(args, x.Args) {
				return nil
			}
			x.SetArgs(args)
			changed = true

		case *algebra.Join:
			nj := algebra.NewNaryJoin(flattenArgs([]algebra.Node{x.Left, x.Right})...)
			nj.SetHints(x.Hints())
			changed = true
			return x.Parent().ReplaceChild(x, nj)
		}
		return nil
	})
	return changed, err
}

// flattenArgs spreads unhinted n-ary joins into the argument list.
// Children are already flat because the pass runs bottom-up.
func flattenArgs(args []algebra.Node) []algebra.Node {
	out := make([]algebra.Node, 0, len(args))
	for _, a := range args {
		if nj, ok := a.(*algebra.NaryJoin); ok && nj.Hints().IsZero() {
			out = append(out, nj.Args...)
			continue
		}
		out = append(out, a)
	}
	return out
}
