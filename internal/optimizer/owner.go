package optimizer

import (
	"github.com/roach88/fedq/internal/algebra"
	"github.com/roach88/fedq/internal/member"
)

// OwnerPass marks subtrees that a single member can answer on its own.
//
// A SERVICE block naming a registered member becomes an Owned node for
// that member; a silent block keeps its Service node around the Owned one
// so the engine can swallow failures. Owned nodes then grow upward:
// adjacent join arguments owned by the same member merge into one owned
// join, a Union or optional join whose sides share an owner is owned by
// it, and unary operators over an owned subtree move inside it. A subtree
// that mixes members stays unwrapped.
type OwnerPass struct {
	Members Members
}

func (*OwnerPass) Name() string { return "owner" }

func (p *OwnerPass) Apply(root *algebra.Root) (bool, error) {
	changed, err := p.markServices(root)
	if err != nil {
		return changed, err
	}
	err = algebra.PostOrder(root, func(n algebra.Node) error {
		grew, err := grow(n)
		changed = changed || grew
		return err
	})
	return changed, err
}

func (p *OwnerPass) markServices(root *algebra.Root) (bool, error) {
	var services []*algebra.Service
	algebra.Inspect(root, func(n algebra.Node) bool {
		if s, ok := n.(*algebra.Service); ok {
			services = append(services, s)
		}
		return true
	})

	changed := false
	for _, s := range services {
		ref := s.RefIRI()
		if ref == "" {
			continue
		}
		h, err := p.Members.Resolve(ref)
		if err != nil {
			if member.IsUnknownMember(err) {
				continue
			}
			return changed, err
		}
		if _, described := p.Members.Capabilities(h); described {
			continue
		}

		if s.Silent {
			if o, ok := s.Arg.(*algebra.Owned); ok && o.Member == h.ID {
				continue
			}
			if _, err := wrapOwned(s.Arg, h.ID); err != nil {
				return changed, err
			}
			changed = true
			continue
		}

		o := algebra.NewOwned(h.ID, s.Arg)
		o.SetHints(s.Hints())
		if err := s.Parent().ReplaceChild(s, o); err != nil {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}

// grow applies the single-owner rules to n, whose children are already
// done.
func grow(n algebra.Node) (bool, error) {
	switch x := n.(type) {
	case *algebra.Owned:
		if inner, ok := x.Arg.(*algebra.Owned); ok && inner.Member == x.Member && inner.Hints().IsZero() {
			return true, unwrap(inner)
		}

	case *algebra.NaryJoin:
		merged := mergeOwnedRuns(x)
		if len(x.Args) == 1 && x.Parent() != nil {
			return true, collapse(x)
		}
		return merged, nil

	case *algebra.Union:
		return liftBinary(x, x.Left, x.Right)
	case *algebra.LeftJoin:
		return liftBinary(x, x.Left, x.Right)
	case *algebra.Join:
		return liftBinary(x, x.Left, x.Right)

	case *algebra.Filter, *algebra.Extension, *algebra.Order, *algebra.Slice, *algebra.Distinct, *algebra.Projection:
		arg := n.Children()[0]
		m, ok := ownedBy(arg)
		if !ok {
			return false, nil
		}
		if err := unwrap(arg.(*algebra.Owned)); err != nil {
			return false, err
		}
		_, err := wrapOwned(n, m)
		return true, err
	}
	return false, nil
}

func liftBinary(n, left, right algebra.Node) (bool, error) {
	lm, ok := ownedBy(left)
	if !ok {
		return false, nil
	}
	if rm, ok := ownedBy(right); !ok || rm != lm {
		return false, nil
	}
	if err := unwrap(left.(*algebra.Owned)); err != nil {
		return false, err
	}
	if err := unwrap(right.(*algebra.Owned)); err != nil {
		return false, err
	}
	_, err := wrapOwned(n, lm)
	return true, err
}

// mergeOwnedRuns replaces each run of two or more adjacent arguments owned
// by the same member with one Owned n-ary join over their contents.
func mergeOwnedRuns(j *algebra.NaryJoin) bool {
	var out []algebra.Node
	merged := false
	for i := 0; i < len(j.Args); {
		m, ok := ownedBy(j.Args[i])
		end := i + 1
		for ok && end < len(j.Args) {
			next, same := ownedBy(j.Args[end])
			if !same || next != m {
				break
			}
			end++
		}
		if end-i < 2 {
			out = append(out, j.Args[i])
			i++
			continue
		}
		var inner []algebra.Node
		for _, a := range j.Args[i:end] {
			inner = append(inner, flattenArgs([]algebra.Node{a.(*algebra.Owned).Arg})...)
		}
		out = append(out, algebra.NewOwned(m, algebra.NewNaryJoin(inner...)))
		merged = true
		i = end
	}
	if merged {
		j.SetArgs(out)
	}
	return merged
}
