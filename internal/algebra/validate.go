package algebra

import (
	"fmt"
)

// Validate checks the structural invariants of a tree and returns one
// message per violation. An empty result means the tree is well formed.
//
// Checked invariants:
//  1. Every child's parent link points at the node that holds it
//  2. No node appears twice in the tree
//  3. Pattern slots are set and never hold both a name and a value
//  4. N-ary joins have at least one argument
//
// Validate is a pure function with no side effects.
func Validate(root Node) []string {
	v := &validator{seen: map[Node]bool{}}
	v.validate(root, nil)
	return v.problems
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
	seen     map[Node]bool
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validate(n, parent Node) {
	if n == nil {
		v.addProblem("nil child under %s", kindOf(parent))
		return
	}
	if v.seen[n] {
		v.addProblem("%s appears more than once", n.Kind())
		return
	}
	v.seen[n] = true

	if n.Parent() != parent {
		v.addProblem("%s has parent %s, held by %s", n.Kind(), kindOf(n.Parent()), kindOf(parent))
	}

	switch x := n.(type) {
	case *Pattern:
		for _, s := range x.Slots() {
			v.validateVar(s)
		}
	case *NaryJoin:
		if len(x.Args) == 0 {
			v.addProblem("NaryJoin without arguments")
		}
	case *Owned:
		if x.Member == "" {
			v.addProblem("Owned without member")
		}
	}

	for _, c := range n.Children() {
		v.validate(c, n)
	}
}

func (v *validator) validateVar(s Var) {
	switch {
	case s.IsZero():
		v.addProblem("pattern slot is unset")
	case s.IsConst() && s.Name != "":
		v.addProblem("slot ?%s holds both a name and the value %s", s.Name, s.Value)
	}
}

func kindOf(n Node) string {
	if n == nil {
		return "<none>"
	}
	return n.Kind().String()
}
