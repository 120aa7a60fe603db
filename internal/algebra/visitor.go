package algebra

// Visitor defines the interface for objects that can visit each type of
// algebra node. Node.Accept dispatches to the method for the node's
// concrete type. A visitor that wants to descend calls VisitChildren.
type Visitor interface {
	VisitRoot(*Root) error
	VisitPattern(*Pattern) error
	VisitNaryJoin(*NaryJoin) error
	VisitJoin(*Join) error
	VisitLeftJoin(*LeftJoin) error
	VisitUnion(*Union) error
	VisitProjection(*Projection) error
	VisitFilter(*Filter) error
	VisitExtension(*Extension) error
	VisitOrder(*Order) error
	VisitSlice(*Slice) error
	VisitDistinct(*Distinct) error
	VisitValues(*Values) error
	VisitEmpty(*Empty) error
	VisitSingleton(*Singleton) error
	VisitService(*Service) error
	VisitServiceCall(*ServiceCall) error
	VisitKeywordSearch(*KeywordSearch) error
	VisitRank(*Rank) error
	VisitOwned(*Owned) error
}

// VisitChildren dispatches v to each child of n in order and stops at the
// first error.
func VisitChildren(n Node, v Visitor) error {
	for _, c := range n.Children() {
		if err := c.Accept(v); err != nil {
			return err
		}
	}
	return nil
}

// Inspect traverses the tree rooted at n in depth-first pre-order. If fn
// returns false, the children of that node are skipped. Children are read
// after fn returns, so fn may rewrite the node's own children.
func Inspect(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children() {
		Inspect(c, fn)
	}
}

// PostOrder traverses the tree rooted at n visiting children before their
// parent. The child list is captured before descending, so fn may replace
// the node it is given.
func PostOrder(n Node, fn func(Node) error) error {
	if n == nil {
		return nil
	}
	for _, c := range n.Children() {
		if err := PostOrder(c, fn); err != nil {
			return err
		}
	}
	return fn(n)
}
