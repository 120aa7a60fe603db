package algebra

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/roach88/fedq/internal/ir"
)

// BindingNames returns every variable name the subtree may bind. Computed
// from the current tree shape on each call.
func BindingNames(n Node) mapset.Set[string] {
	return names(n, false)
}

// AssuredBindingNames returns the variable names bound in every row the
// subtree produces.
func AssuredBindingNames(n Node) mapset.Set[string] {
	return names(n, true)
}

// Sorted returns the members of a name set in canonical order.
func Sorted(s mapset.Set[string]) []string {
	return ir.SortedNames(s.ToSlice())
}

func names(n Node, assured bool) mapset.Set[string] {
	switch x := n.(type) {
	case *Root:
		return names(x.Arg, assured)

	case *Pattern:
		return slotNames(x.Slots()...)

	case *NaryJoin:
		out := mapset.NewThreadUnsafeSet[string]()
		for _, a := range x.Args {
			out = out.Union(names(a, assured))
		}
		return out

	case *Join:
		return names(x.Left, assured).Union(names(x.Right, assured))

	case *LeftJoin:
		if assured {
			return names(x.Left, true)
		}
		return names(x.Left, false).Union(names(x.Right, false))

	case *Union:
		if assured {
			return names(x.Left, true).Intersect(names(x.Right, true))
		}
		return names(x.Left, false).Union(names(x.Right, false))

	case *Projection:
		inner := names(x.Arg, assured)
		out := mapset.NewThreadUnsafeSet[string]()
		for _, e := range x.Elems {
			if !assured || inner.Contains(e.Source) {
				out.Add(e.Target)
			}
		}
		return out

	case *Filter:
		return names(x.Arg, assured)
	case *Order:
		return names(x.Arg, assured)
	case *Slice:
		return names(x.Arg, assured)
	case *Distinct:
		return names(x.Arg, assured)
	case *Owned:
		return names(x.Arg, assured)

	case *Extension:
		out := names(x.Arg, assured)
		if !assured {
			for _, e := range x.Elems {
				out.Add(e.Name)
			}
		}
		return out

	case *Values:
		if !assured {
			return mapset.NewThreadUnsafeSet(x.Names...)
		}
		out := mapset.NewThreadUnsafeSet[string]()
		for _, name := range x.Names {
			if len(x.Rows) > 0 && !slices.ContainsFunc(x.Rows, func(r ir.BindingSet) bool { return !r.Has(name) }) {
				out.Add(name)
			}
		}
		return out

	case *Service:
		out := names(x.Arg, assured)
		if !x.Ref.IsConst() && x.Ref.Name != "" {
			out.Add(x.Ref.Name)
		}
		return out

	case *ServiceCall:
		out := mapset.NewThreadUnsafeSet[string]()
		for _, p := range x.Inputs {
			addSlot(out, p.Var)
		}
		for _, p := range x.Outputs {
			if !assured || !p.Optional {
				addSlot(out, p.Var)
			}
		}
		if !assured {
			for _, p := range x.Source {
				out = out.Union(slotNames(p.Slots()...))
			}
		}
		return out

	case *KeywordSearch:
		out := slotNames(x.Subject, x.Query)
		if !assured {
			if x.Score != nil {
				addSlot(out, *x.Score)
			}
			if x.Type != nil {
				addSlot(out, *x.Type)
			}
			for _, p := range x.Source {
				out = out.Union(slotNames(p.Slots()...))
			}
		}
		return out

	case *Rank:
		out := names(x.Arg, assured)
		if !assured {
			out.Add(x.Result)
		}
		return out
	}

	// Empty, Singleton
	return mapset.NewThreadUnsafeSet[string]()
}

func slotNames(vars ...Var) mapset.Set[string] {
	out := mapset.NewThreadUnsafeSet[string]()
	for _, v := range vars {
		addSlot(out, v)
	}
	return out
}

func addSlot(s mapset.Set[string], v Var) {
	if !v.IsConst() && v.Name != "" {
		s.Add(v.Name)
	}
}

// ResultNames returns the variables a query reports, in projection order.
// Solution modifiers and owner wrappers above the projection are looked
// through; a tree without a projection reports its sorted binding names.
func ResultNames(root *Root) []string {
	n := root.Arg
	for {
		switch x := n.(type) {
		case *Projection:
			out := make([]string, len(x.Elems))
			for i, el := range x.Elems {
				out[i] = el.Target
			}
			return out
		case *Slice:
			n = x.Arg
		case *Distinct:
			n = x.Arg
		case *Order:
			n = x.Arg
		case *Owned:
			n = x.Arg
		default:
			return Sorted(BindingNames(root.Arg))
		}
	}
}
