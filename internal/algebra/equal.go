package algebra

import (
	"slices"

	"github.com/roach88/fedq/internal/ir"
)

// Equal reports whether two trees are structurally equal. Parent links are
// ignored; hints and pushdown markers are compared.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() || a.Hints() != b.Hints() {
		return false
	}

	switch x := a.(type) {
	case *Root:
		if x.Form != b.(*Root).Form {
			return false
		}
	case *Pattern:
		y := b.(*Pattern)
		return patternEqual(x, y)
	case *Projection:
		if !slices.Equal(x.Elems, b.(*Projection).Elems) {
			return false
		}
	case *Filter:
		if !ExprEqual(x.Condition, b.(*Filter).Condition) {
			return false
		}
	case *LeftJoin:
		if !ExprEqual(x.Condition, b.(*LeftJoin).Condition) {
			return false
		}
	case *Extension:
		y := b.(*Extension)
		if !slices.EqualFunc(x.Elems, y.Elems, func(p, q ExtensionElem) bool {
			return p.Name == q.Name && ExprEqual(p.Expr, q.Expr)
		}) {
			return false
		}
	case *Order:
		y := b.(*Order)
		if x.Pushed != y.Pushed || !slices.EqualFunc(x.Elems, y.Elems, func(p, q OrderElem) bool {
			return p.Descending == q.Descending && ExprEqual(p.Expr, q.Expr)
		}) {
			return false
		}
	case *Slice:
		y := b.(*Slice)
		if x.Offset != y.Offset || x.Limit != y.Limit || x.Pushed != y.Pushed {
			return false
		}
	case *Values:
		y := b.(*Values)
		if !slices.Equal(x.Names, y.Names) || !slices.EqualFunc(x.Rows, y.Rows, ir.BindingSet.Equal) {
			return false
		}
	case *Service:
		y := b.(*Service)
		if !x.Ref.Equal(y.Ref) || x.Silent != y.Silent {
			return false
		}
	case *ServiceCall:
		y := b.(*ServiceCall)
		return x.Ref == y.Ref &&
			slices.EqualFunc(x.Inputs, y.Inputs, paramEqual) &&
			slices.EqualFunc(x.Outputs, y.Outputs, paramEqual) &&
			slices.EqualFunc(x.Source, y.Source, patternEqual)
	case *KeywordSearch:
		y := b.(*KeywordSearch)
		return x.Ref == y.Ref && x.Subject.Equal(y.Subject) && x.Query.Equal(y.Query) &&
			slices.Equal(x.Properties, y.Properties) &&
			optVarEqual(x.Score, y.Score) && optVarEqual(x.Type, y.Type)
	case *Rank:
		y := b.(*Rank)
		if x.Ref != y.Ref || x.Input != y.Input || x.Result != y.Result {
			return false
		}
	case *Owned:
		if x.Member != b.(*Owned).Member {
			return false
		}
	}

	ca, cb := a.Children(), b.Children()
	return slices.EqualFunc(ca, cb, Equal)
}

func patternEqual(x, y *Pattern) bool {
	return x.Subject.Equal(y.Subject) && x.Predicate.Equal(y.Predicate) &&
		x.Object.Equal(y.Object) && optVarEqual(x.Context, y.Context)
}

func paramEqual(p, q ParamBinding) bool {
	return p.Param == q.Param && p.Var.Equal(q.Var)
}

func optVarEqual(a, b *Var) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// ExprEqual reports whether two expressions are structurally equal.
func ExprEqual(a, b Expr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case VarExpr:
		y, ok := b.(VarExpr)
		return ok && x.Name == y.Name
	case ConstExpr:
		y, ok := b.(ConstExpr)
		return ok && ir.Equal(x.Value, y.Value)
	case Bound:
		y, ok := b.(Bound)
		return ok && x.Name == y.Name
	case Compare:
		y, ok := b.(Compare)
		return ok && x.Op == y.Op && ExprEqual(x.Left, y.Left) && ExprEqual(x.Right, y.Right)
	case And:
		y, ok := b.(And)
		return ok && ExprEqual(x.Left, y.Left) && ExprEqual(x.Right, y.Right)
	case Or:
		y, ok := b.(Or)
		return ok && ExprEqual(x.Left, y.Left) && ExprEqual(x.Right, y.Right)
	case Not:
		y, ok := b.(Not)
		return ok && ExprEqual(x.Arg, y.Arg)
	case Call:
		y, ok := b.(Call)
		return ok && x.Func == y.Func && slices.EqualFunc(x.Args, y.Args, ExprEqual)
	}
	return false
}
