package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/fedq/internal/algebra"
	"github.com/roach88/fedq/internal/ir"
)

var (
	errUnbound = errors.New("unbound variable")
	errType    = errors.New("type error")
)

// truth is the effective boolean value of e over row. Expression errors
// count as false.
func truth(e algebra.Expr, row ir.BindingSet) bool {
	b, err := ebv(e, row)
	return err == nil && b
}

func ebv(e algebra.Expr, row ir.BindingSet) (bool, error) {
	v, err := evalExpr(e, row)
	if err != nil {
		return false, err
	}
	lit, ok := v.(ir.Literal)
	if !ok {
		return false, errType
	}
	b, ok := lit.Bool()
	if !ok {
		return false, errType
	}
	return b, nil
}

// evalExpr evaluates a value expression over row.
func evalExpr(e algebra.Expr, row ir.BindingSet) (ir.Term, error) {
	switch x := e.(type) {
	case algebra.VarExpr:
		if v := row.Value(x.Name); v != nil {
			return v, nil
		}
		return nil, errUnbound
	case algebra.ConstExpr:
		return x.Value, nil
	case algebra.Bound:
		return ir.NewBool(row.Has(x.Name)), nil
	case algebra.Not:
		b, err := ebv(x.Arg, row)
		if err != nil {
			return nil, err
		}
		return ir.NewBool(!b), nil
	case algebra.And:
		// A false operand decides the result even if the other fails.
		l, lerr := ebv(x.Left, row)
		r, rerr := ebv(x.Right, row)
		switch {
		case lerr == nil && !l, rerr == nil && !r:
			return ir.NewBool(false), nil
		case lerr != nil:
			return nil, lerr
		case rerr != nil:
			return nil, rerr
		}
		return ir.NewBool(true), nil
	case algebra.Or:
		l, lerr := ebv(x.Left, row)
		r, rerr := ebv(x.Right, row)
		switch {
		case lerr == nil && l, rerr == nil && r:
			return ir.NewBool(true), nil
		case lerr != nil:
			return nil, lerr
		case rerr != nil:
			return nil, rerr
		}
		return ir.NewBool(false), nil
	case algebra.Compare:
		l, err := evalExpr(x.Left, row)
		if err != nil {
			return nil, err
		}
		r, err := evalExpr(x.Right, row)
		if err != nil {
			return nil, err
		}
		b, err := compare(x.Op, l, r)
		if err != nil {
			return nil, err
		}
		return ir.NewBool(b), nil
	case algebra.Call:
		return callBuiltin(x, row)
	}
	return nil, fmt.Errorf("unsupported expression %T", e)
}

// compare applies a comparison operator. Numbers compare by value and
// plain or language-tagged strings by lexical form; any other pair only
// supports = and !=.
func compare(op algebra.CompareOp, l, r ir.Term) (bool, error) {
	c, ordered := order(l, r)
	switch op {
	case algebra.OpEQ:
		if ordered {
			return c == 0, nil
		}
		return ir.Equal(l, r), nil
	case algebra.OpNE:
		if ordered {
			return c != 0, nil
		}
		return !ir.Equal(l, r), nil
	}
	if !ordered {
		return false, errType
	}
	switch op {
	case algebra.OpLT:
		return c < 0, nil
	case algebra.OpGT:
		return c > 0, nil
	case algebra.OpLE:
		return c <= 0, nil
	case algebra.OpGE:
		return c >= 0, nil
	}
	return false, fmt.Errorf("unknown operator %q", op)
}

func order(l, r ir.Term) (int, bool) {
	ll, lok := l.(ir.Literal)
	rl, rok := r.(ir.Literal)
	if !lok || !rok {
		return 0, false
	}
	if lf, ok := ll.Float(); ok {
		if rf, ok := rl.Float(); ok {
			switch {
			case lf < rf:
				return -1, true
			case lf > rf:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	if isString(ll) && isString(rl) && ll.Lang == rl.Lang {
		return strings.Compare(ll.Lexical, rl.Lexical), true
	}
	return 0, false
}

func isString(l ir.Literal) bool {
	return l.DatatypeIRI() == ir.XSDString || l.Lang != ""
}

func callBuiltin(c algebra.Call, row ir.BindingSet) (ir.Term, error) {
	args := make([]ir.Term, len(c.Args))
	for i, a := range c.Args {
		v, err := evalExpr(a, row)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	want, ok := algebra.Builtins[c.Func]
	if !ok {
		return nil, fmt.Errorf("unknown function %s", c.Func)
	}
	if want >= 0 && len(args) != want {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", c.Func, want, len(args))
	}

	switch c.Func {
	case "STR":
		switch v := args[0].(type) {
		case ir.IRI:
			return ir.NewString(string(v)), nil
		case ir.Literal:
			return ir.NewString(v.Lexical), nil
		}
		return nil, errType
	case "LANG":
		lit, ok := args[0].(ir.Literal)
		if !ok {
			return nil, errType
		}
		return ir.NewString(lit.Lang), nil
	case "DATATYPE":
		lit, ok := args[0].(ir.Literal)
		if !ok {
			return nil, errType
		}
		return lit.DatatypeIRI(), nil
	case "ISIRI":
		_, ok := args[0].(ir.IRI)
		return ir.NewBool(ok), nil
	case "ISLITERAL":
		_, ok := args[0].(ir.Literal)
		return ir.NewBool(ok), nil
	case "ISBLANK":
		_, ok := args[0].(ir.BNode)
		return ir.NewBool(ok), nil
	case "LCASE", "UCASE":
		lit, ok := args[0].(ir.Literal)
		if !ok || !isString(lit) {
			return nil, errType
		}
		if c.Func == "LCASE" {
			lit.Lexical = strings.ToLower(lit.Lexical)
		} else {
			lit.Lexical = strings.ToUpper(lit.Lexical)
		}
		return lit, nil
	case "CONTAINS", "STRSTARTS":
		a, aok := args[0].(ir.Literal)
		b, bok := args[1].(ir.Literal)
		if !aok || !bok || !isString(a) || !isString(b) {
			return nil, errType
		}
		if c.Func == "CONTAINS" {
			return ir.NewBool(strings.Contains(a.Lexical, b.Lexical)), nil
		}
		return ir.NewBool(strings.HasPrefix(a.Lexical, b.Lexical)), nil
	case "REGEX":
		return regex(args)
	}
	return nil, fmt.Errorf("unsupported function %s", c.Func)
}

// regex implements REGEX(text, pattern [, flags]). Supported flags are
// i, s, and m.
func regex(args []ir.Term) (ir.Term, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, fmt.Errorf("REGEX takes 2 or 3 arguments, got %d", len(args))
	}
	text, ok := args[0].(ir.Literal)
	if !ok || !isString(text) {
		return nil, errType
	}
	pat, ok := args[1].(ir.Literal)
	if !ok {
		return nil, errType
	}
	expr := pat.Lexical
	if len(args) == 3 {
		flags, ok := args[2].(ir.Literal)
		if !ok {
			return nil, errType
		}
		if f := strings.Map(func(r rune) rune {
			if strings.ContainsRune("ism", r) {
				return r
			}
			return -1
		}, flags.Lexical); f != "" {
			expr = "(?" + f + ")" + expr
		}
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("REGEX: %w", err)
	}
	return ir.NewBool(re.MatchString(text.Lexical)), nil
}
