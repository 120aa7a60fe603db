package optimizer

import (
	"github.com/roach88/fedq/internal/algebra"
)

// SlicePass bounds union branches by a LIMIT above them. The slice must
// sit directly over the Union, or over a projection or pushed order of
// it; each branch then gets LIMIT offset+limit and the central slice is
// marked pushed. A slice over anything else is left alone.
type SlicePass struct{}

func (SlicePass) Name() string { return "slice" }

func (SlicePass) Apply(root *algebra.Root) (bool, error) {
	changed := false
	var err error
	algebra.Inspect(root, func(n algebra.Node) bool {
		if err != nil {
			return false
		}
		s, ok := n.(*algebra.Slice)
		if !ok || s.Pushed || !s.HasLimit() {
			return true
		}
		u := sliceableUnion(s.Arg)
		if u == nil {
			return true
		}
		bound := s.Offset + s.Limit
		for _, branch := range []algebra.Node{u.Left, u.Right} {
			if _, err = wrap(insideOwned(branch), func(c algebra.Node) algebra.Node {
				return algebra.NewSlice(c, 0, bound)
			}); err != nil {
				return false
			}
		}
		s.Pushed = true
		changed = true
		return true
	})
	return changed, err
}

func sliceableUnion(n algebra.Node) *algebra.Union {
	if p, ok := n.(*algebra.Projection); ok {
		n = p.Arg
	}
	if o, ok := n.(*algebra.Order); ok {
		if !o.Pushed {
			return nil
		}
		n = o.Arg
	}
	u, _ := n.(*algebra.Union)
	return u
}
