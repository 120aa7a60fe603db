package algebra

import (
	"strings"

	"github.com/roach88/fedq/internal/ir"
)

// Expr is a sealed interface for value expressions used by Filter,
// Extension, LeftJoin conditions, and Order keys.
//
// Expr types:
//   - VarExpr: a variable reference
//   - ConstExpr: a constant term
//   - Compare: =, !=, <, >, <=, >=
//   - And, Or, Not: logical connectives
//   - Bound: BOUND(?x)
//   - Call: a builtin function such as STR, LANG, REGEX
//
// String renders the expression in SPARQL syntax.
type Expr interface {
	exprNode() // Marker method - seals interface to this package
	String() string
}

// CompareOp is a comparison operator.
type CompareOp string

const (
	OpEQ CompareOp = "="
	OpNE CompareOp = "!="
	OpLT CompareOp = "<"
	OpGT CompareOp = ">"
	OpLE CompareOp = "<="
	OpGE CompareOp = ">="
)

// VarExpr references a variable.
type VarExpr struct {
	Name string
}

func (VarExpr) exprNode() {}

func (e VarExpr) String() string { return "?" + e.Name }

// ConstExpr is a constant term.
type ConstExpr struct {
	Value ir.Term
}

func (ConstExpr) exprNode() {}

func (e ConstExpr) String() string { return e.Value.String() }

// Compare compares two expressions.
type Compare struct {
	Op    CompareOp
	Left  Expr
	Right Expr
}

func (Compare) exprNode() {}

func (e Compare) String() string {
	return "(" + e.Left.String() + " " + string(e.Op) + " " + e.Right.String() + ")"
}

// And is logical conjunction.
type And struct {
	Left  Expr
	Right Expr
}

func (And) exprNode() {}

func (e And) String() string { return "(" + e.Left.String() + " && " + e.Right.String() + ")" }

// Or is logical disjunction.
type Or struct {
	Left  Expr
	Right Expr
}

func (Or) exprNode() {}

func (e Or) String() string { return "(" + e.Left.String() + " || " + e.Right.String() + ")" }

// Not is logical negation.
type Not struct {
	Arg Expr
}

func (Not) exprNode() {}

func (e Not) String() string { return "!" + e.Arg.String() }

// Bound tests whether a variable is bound.
type Bound struct {
	Name string
}

func (Bound) exprNode() {}

func (e Bound) String() string { return "BOUND(?" + e.Name + ")" }

// Call applies a builtin function. Func is upper case.
type Call struct {
	Func string
	Args []Expr
}

func (Call) exprNode() {}

func (e Call) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return e.Func + "(" + strings.Join(args, ", ") + ")"
}

// Builtin functions understood by the engine.
var Builtins = map[string]int{
	"STR":       1,
	"LANG":      1,
	"DATATYPE":  1,
	"ISIRI":     1,
	"ISLITERAL": 1,
	"ISBLANK":   1,
	"LCASE":     1,
	"UCASE":     1,
	"CONTAINS":  2,
	"STRSTARTS": 2,
	"REGEX":     -1,
}

// ExprVars returns the variable names referenced by e in first-seen order.
func ExprVars(e Expr) []string {
	var out []string
	seen := map[string]bool{}
	var walk func(Expr)
	walk = func(e Expr) {
		switch x := e.(type) {
		case VarExpr:
			if !seen[x.Name] {
				seen[x.Name] = true
				out = append(out, x.Name)
			}
		case Bound:
			if !seen[x.Name] {
				seen[x.Name] = true
				out = append(out, x.Name)
			}
		case Compare:
			walk(x.Left)
			walk(x.Right)
		case And:
			walk(x.Left)
			walk(x.Right)
		case Or:
			walk(x.Left)
			walk(x.Right)
		case Not:
			walk(x.Arg)
		case Call:
			for _, a := range x.Args {
				walk(a)
			}
		}
	}
	if e != nil {
		walk(e)
	}
	return out
}

// Conjoin joins expressions with &&, skipping nils.
func Conjoin(exprs ...Expr) Expr {
	var out Expr
	for _, e := range exprs {
		switch {
		case e == nil:
		case out == nil:
			out = e
		default:
			out = And{Left: out, Right: e}
		}
	}
	return out
}
