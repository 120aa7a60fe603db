package algebra

import (
	"fmt"
	"strings"
)

// Format renders the tree as indented text, one node per line. The
// explain command and the optimizer golden tests print trees this way.
func Format(n Node) string {
	f := &formatter{}
	if n != nil {
		_ = n.Accept(f)
	}
	return f.b.String()
}

type formatter struct {
	b     strings.Builder
	depth int
}

func (f *formatter) line(n Node, format string, args ...any) error {
	f.b.WriteString(strings.Repeat("  ", f.depth))
	f.b.WriteString(fmt.Sprintf(format, args...))
	if h := n.Hints(); !h.IsZero() {
		f.b.WriteString(hintSuffix(h))
	}
	f.b.WriteByte('\n')
	f.depth++
	err := VisitChildren(n, f)
	f.depth--
	return err
}

func hintSuffix(h Hints) string {
	var parts []string
	if h.ExecuteFirst {
		parts = append(parts, "executeFirst")
	}
	if h.ExecuteLast {
		parts = append(parts, "executeLast")
	}
	if h.DisableReordering {
		parts = append(parts, "disableReordering")
	}
	return " {" + strings.Join(parts, ",") + "}"
}

func (f *formatter) VisitRoot(n *Root) error {
	if n.Form == FormAsk {
		return f.line(n, "Root ASK")
	}
	return f.line(n, "Root")
}

func (f *formatter) VisitPattern(n *Pattern) error {
	if n.Context != nil {
		return f.line(n, "Pattern %s %s %s %s", n.Subject, n.Predicate, n.Object, *n.Context)
	}
	return f.line(n, "Pattern %s %s %s", n.Subject, n.Predicate, n.Object)
}

func (f *formatter) VisitNaryJoin(n *NaryJoin) error { return f.line(n, "NaryJoin") }
func (f *formatter) VisitJoin(n *Join) error { return f.line(n, "Join") }

func (f *formatter) VisitLeftJoin(n *LeftJoin) error {
	if n.Condition != nil {
		return f.line(n, "LeftJoin %s", n.Condition)
	}
	return f.line(n, "LeftJoin")
}

func (f *formatter) VisitUnion(n *Union) error { return f.line(n, "Union") }

func (f *formatter) VisitProjection(n *Projection) error {
	elems := make([]string, len(n.Elems))
	for i, e := range n.Elems {
		if e.Source == e.Target {
			elems[i] = "?" + e.Target
		} else {
			elems[i] = "?" + e.Source + " AS ?" + e.Target
		}
	}
	return f.line(n, "Projection %s", strings.Join(elems, " "))
}

func (f *formatter) VisitFilter(n *Filter) error { return f.line(n, "Filter %s", n.Condition) }

func (f *formatter) VisitExtension(n *Extension) error {
	elems := make([]string, len(n.Elems))
	for i, e := range n.Elems {
		elems[i] = e.Expr.String() + " AS ?" + e.Name
	}
	return f.line(n, "Extension %s", strings.Join(elems, ", "))
}

func (f *formatter) VisitOrder(n *Order) error {
	elems := make([]string, len(n.Elems))
	for i, e := range n.Elems {
		if e.Descending {
			elems[i] = "DESC(" + e.Expr.String() + ")"
		} else {
			elems[i] = "ASC(" + e.Expr.String() + ")"
		}
	}
	if n.Pushed {
		return f.line(n, "Order %s pushed", strings.Join(elems, " "))
	}
	return f.line(n, "Order %s", strings.Join(elems, " "))
}

func (f *formatter) VisitSlice(n *Slice) error {
	s := fmt.Sprintf("Slice offset=%d", n.Offset)
	if n.HasLimit() {
		s += fmt.Sprintf(" limit=%d", n.Limit)
	}
	if n.Pushed {
		s += " pushed"
	}
	return f.line(n, "%s", s)
}

func (f *formatter) VisitDistinct(n *Distinct) error { return f.line(n, "Distinct") }

func (f *formatter) VisitValues(n *Values) error {
	return f.line(n, "Values (%s) rows=%d", strings.Join(n.Names, " "), len(n.Rows))
}

func (f *formatter) VisitEmpty(n *Empty) error { return f.line(n, "Empty") }
func (f *formatter) VisitSingleton(n *Singleton) error { return f.line(n, "Singleton") }

func (f *formatter) VisitService(n *Service) error {
	if n.Silent {
		return f.line(n, "Service SILENT %s", n.Ref)
	}
	return f.line(n, "Service %s", n.Ref)
}

func (f *formatter) VisitServiceCall(n *ServiceCall) error {
	return f.line(n, "ServiceCall <%s> in(%s) out(%s)", n.Ref, params(n.Inputs), params(n.Outputs))
}

func params(ps []ParamBinding) string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Param + "=" + p.Var.String()
	}
	return strings.Join(out, " ")
}

func (f *formatter) VisitKeywordSearch(n *KeywordSearch) error {
	return f.line(n, "KeywordSearch <%s> %s %s", n.Ref, n.Subject, n.Query)
}

func (f *formatter) VisitRank(n *Rank) error {
	return f.line(n, "Rank <%s> ?%s -> ?%s", n.Ref, n.Input, n.Result)
}

func (f *formatter) VisitOwned(n *Owned) error { return f.line(n, "Owned %s", n.Member) }
