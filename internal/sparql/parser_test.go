package sparql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedq/internal/algebra"
	"github.com/roach88/fedq/internal/ir"
)

func TestParse_BasicGraphPattern(t *testing.T) {
	root, err := Parse(`PREFIX ex: <http://ex.org/>
SELECT ?a WHERE { ?a ex:p1 ?b . ?a ex:p2 ?c . }`)
	require.NoError(t, err)

	proj, ok := root.Arg.(*algebra.Projection)
	require.True(t, ok, "top node is a projection")
	assert.Equal(t, []algebra.ProjectionElem{{Source: "a", Target: "a"}}, proj.Elems)

	join, ok := proj.Arg.(*algebra.Join)
	require.True(t, ok)
	left := join.Left.(*algebra.Pattern)
	assert.Equal(t, algebra.C(ir.IRI("http://ex.org/p1")), left.Predicate)
	assert.Empty(t, algebra.Validate(root))
}

func TestParse_PropertyAndObjectLists(t *testing.T) {
	root := MustParse(`SELECT * WHERE { ?s a <urn:T> ; <urn:name> "x", "y"@en . }`)

	var patterns []*algebra.Pattern
	algebra.Inspect(root, func(n algebra.Node) bool {
		if p, ok := n.(*algebra.Pattern); ok {
			patterns = append(patterns, p)
		}
		return true
	})
	require.Len(t, patterns, 3)
	assert.Equal(t, algebra.C(ir.RDFType), patterns[0].Predicate)
	assert.Equal(t, algebra.C(ir.NewString("x")), patterns[1].Object)
	assert.Equal(t, algebra.C(ir.NewLangString("y", "en")), patterns[2].Object)
}

func TestParse_SelectStarSkipsAnonymousVariables(t *testing.T) {
	root := MustParse(`SELECT * WHERE { ?s <urn:knows> [ <urn:name> ?n ] . _:b <urn:p> ?s . }`)
	proj := root.Arg.(*algebra.Projection)

	var names []string
	for _, e := range proj.Elems {
		names = append(names, e.Target)
	}
	assert.Equal(t, []string{"n", "s"}, names)
}

func TestParse_OptionalLiftsFilter(t *testing.T) {
	root := MustParse(`SELECT * WHERE { ?s <urn:p> ?o OPTIONAL { ?s <urn:q> ?x FILTER(?x > 3) } }`)
	lj, ok := root.Arg.(*algebra.Projection).Arg.(*algebra.LeftJoin)
	require.True(t, ok)

	assert.Equal(t, algebra.KindPattern, lj.Right.Kind())
	assert.Equal(t, algebra.Compare{
		Op:    algebra.OpGT,
		Left:  algebra.VarExpr{Name: "x"},
		Right: algebra.ConstExpr{Value: ir.NewTyped("3", ir.XSDInteger)},
	}, lj.Condition)
	assert.Empty(t, algebra.Validate(root))
}

func TestParse_Modifiers(t *testing.T) {
	root := MustParse(`SELECT DISTINCT ?s WHERE { ?s <urn:p> ?o } ORDER BY DESC(?o) ?s LIMIT 5 OFFSET 2`)

	slice, ok := root.Arg.(*algebra.Slice)
	require.True(t, ok)
	assert.Equal(t, int64(2), slice.Offset)
	assert.Equal(t, int64(5), slice.Limit)

	distinct := slice.Arg.(*algebra.Distinct)
	order := distinct.Arg.(*algebra.Projection).Arg.(*algebra.Order)
	require.Len(t, order.Elems, 2)
	assert.True(t, order.Elems[0].Descending)
	assert.False(t, order.Elems[1].Descending)
}

func TestParse_SubSelectIsScope(t *testing.T) {
	root := MustParse(`SELECT ?a WHERE {
		?a <urn:p1> ?b .
		{ SELECT ?a WHERE { ?a <urn:p1> ?c } }
	}`)
	join := root.Arg.(*algebra.Projection).Arg.(*algebra.Join)
	sub, ok := join.Right.(*algebra.Projection)
	require.True(t, ok)

	inner := sub.Arg.(*algebra.Pattern)
	assert.Same(t, sub, algebra.ScopeRoot(inner))
	assert.Same(t, root.Arg, algebra.ScopeRoot(join.Left))
}

func TestParse_ServiceGraphValuesBind(t *testing.T) {
	root := MustParse(`SELECT * WHERE {
		VALUES (?s ?t) { (<urn:a> UNDEF) (<urn:b> "x") }
		GRAPH <urn:g> { ?s <urn:p> ?o }
		SERVICE SILENT <urn:svc> { ?o <urn:q> ?z }
		BIND(STR(?z) AS ?label)
	}`)
	ext := root.Arg.(*algebra.Projection).Arg.(*algebra.Extension)
	assert.Equal(t, "label", ext.Elems[0].Name)

	j2 := ext.Arg.(*algebra.Join)
	svc := j2.Right.(*algebra.Service)
	assert.True(t, svc.Silent)
	assert.Equal(t, "urn:svc", svc.RefIRI())

	j1 := j2.Left.(*algebra.Join)
	values := j1.Left.(*algebra.Values)
	require.Len(t, values.Rows, 2)
	assert.False(t, values.Rows[0].Has("t"), "UNDEF leaves the name unbound")

	graph := j1.Right.(*algebra.Pattern)
	require.NotNil(t, graph.Context)
	assert.Equal(t, algebra.C(ir.IRI("urn:g")), *graph.Context)
}

func TestParse_Hints(t *testing.T) {
	root := MustParse(`SELECT * WHERE {
		{ ?s <urn:p> ?o . hint:Group hint:executeLast true . }
		?s <urn:q> ?x .
		hint:Group hint:disableReordering true .
	}`)
	join := root.Arg.(*algebra.Projection).Arg.(*algebra.Join)
	assert.True(t, join.Hints().DisableReordering)
	assert.True(t, join.Left.Hints().ExecuteLast)
	assert.True(t, join.Right.Hints().IsZero())
}

func TestParse_Ask(t *testing.T) {
	root := MustParse(`ASK { <urn:s> <urn:p> ?o }`)
	assert.Equal(t, algebra.FormAsk, root.Form)
	assert.Equal(t, algebra.KindPattern, root.Arg.Kind())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"no form", `{ ?s ?p ?o }`},
		{"unterminated group", `SELECT * WHERE { ?s ?p ?o `},
		{"undeclared prefix", `SELECT * WHERE { ?s nope:p ?o }`},
		{"unknown function", `SELECT * WHERE { ?s ?p ?o FILTER(FROB(?o)) }`},
		{"values arity", `SELECT * WHERE { VALUES (?a ?b) { (<urn:x>) } }`},
		{"trailing garbage", `ASK { ?s ?p ?o } }`},
		{"literal predicate", `SELECT * WHERE { ?s "p" ?o }`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.query)
			require.Error(t, err)
			assert.True(t, IsSyntaxError(err), "got %v", err)
		})
	}
}

func TestParse_RemovedPatternMatchesSmallerQuery(t *testing.T) {
	full := MustParse(`SELECT ?a WHERE { ?a <urn:p1> ?b . ?a <urn:p2> ?c . }`)
	join := full.Arg.(*algebra.Projection).Arg.(*algebra.Join)
	require.NoError(t, join.Parent().ReplaceChild(join, join.Right))

	want := MustParse(`SELECT ?a WHERE { ?a <urn:p2> ?c . }`)
	assert.True(t, algebra.Equal(want, full), "got\n%s", algebra.Format(full))
}
