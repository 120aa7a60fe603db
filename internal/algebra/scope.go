package algebra

// ScopeRoot returns the nearest ancestor of n that opens a variable scope:
// a Projection (sub-select) or the tree Root. It returns nil for a
// detached node.
func ScopeRoot(n Node) Node {
	for p := n.Parent(); p != nil; p = p.Parent() {
		switch p.(type) {
		case *Projection, *Root:
			return p
		}
	}
	return nil
}

// TreeRoot returns the topmost ancestor of n, or n itself.
func TreeRoot(n Node) Node {
	for n.Parent() != nil {
		n = n.Parent()
	}
	return n
}

// HasAncestor reports whether anc is a proper ancestor of n.
func HasAncestor(n, anc Node) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p == anc {
			return true
		}
	}
	return false
}
