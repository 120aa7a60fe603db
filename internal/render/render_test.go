package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedq/internal/algebra"
	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/sparql"
)

func TestRender_RoundTrip(t *testing.T) {
	queries := []string{
		`SELECT ?a WHERE { ?a <urn:p1> ?b . ?a <urn:p2> ?c . }`,
		`SELECT * WHERE { ?s <urn:p> ?o OPTIONAL { ?s <urn:q> ?x FILTER(?x > 3) } }`,
		`SELECT ?s WHERE { { ?s <urn:a> ?o } UNION { ?s <urn:b> ?o } }`,
		`SELECT DISTINCT ?s WHERE { ?s <urn:p> ?o } ORDER BY DESC(?o) LIMIT 5 OFFSET 2`,
		`SELECT ?s WHERE { ?s <urn:p> ?o . { SELECT ?s WHERE { ?s <urn:q> ?z } LIMIT 1 } }`,
		`SELECT ?s ?l WHERE { ?s <urn:p> ?o BIND(STR(?o) AS ?l) }`,
		`SELECT ?s WHERE { VALUES ?s { <urn:a> <urn:b> } ?s <urn:p> ?o }`,
		`SELECT * WHERE { SERVICE SILENT <urn:svc> { ?s <urn:p> ?o } }`,
		`SELECT * WHERE { GRAPH ?g { ?s <urn:p> ?o } }`,
		`ASK { ?s <urn:p> "x"@en }`,
		`SELECT ?s WHERE { ?s <urn:p> ?o . FILTER(?o != "a" && !BOUND(?z)) }`,
		`SELECT (?s AS ?subject) WHERE { ?s <urn:p> ?o }`,
		`SELECT * WHERE { { ?s <urn:p> ?o . hint:Group hint:executeFirst true . } ?s <urn:q> ?x }`,
		`SELECT * WHERE { { ?s <urn:p> ?o FILTER(?o = 1) } ?s <urn:q> ?x }`,
	}
	r := NewSPARQLRenderer("")
	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			tree := sparql.MustParse(q)
			text, err := r.Render(tree)
			require.NoError(t, err)

			again, err := sparql.Parse(text)
			require.NoError(t, err, "rendered text: %s", text)
			assert.True(t, algebra.Equal(tree, again),
				"rendered %s\nwant\n%s\ngot\n%s", text, algebra.Format(tree), algebra.Format(again))
		})
	}
}

func TestRender_ExactText(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "projection",
			query: `SELECT ?a WHERE { ?a <urn:p2> ?c }`,
			want:  `SELECT ?a WHERE { ?a <urn:p2> ?c . }`,
		},
		{
			name:  "modifiers",
			query: `SELECT ?s WHERE { ?s <urn:p> ?o } ORDER BY ?o LIMIT 10`,
			want:  `SELECT ?s WHERE { ?s <urn:p> ?o . } ORDER BY ASC(?o) LIMIT 10`,
		},
		{
			name:  "union",
			query: `SELECT ?s WHERE { { ?s <urn:a> ?o } UNION { ?s <urn:b> ?o } }`,
			want:  `SELECT ?s WHERE { { ?s <urn:a> ?o . } UNION { ?s <urn:b> ?o . } }`,
		},
		{
			name:  "ask",
			query: `ASK { <urn:s> <urn:p> ?o }`,
			want:  `ASK WHERE { <urn:s> <urn:p> ?o . }`,
		},
	}
	r := NewSPARQLRenderer("")
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Render(sparql.MustParse(tc.query))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRender_SubtreeWithoutProjection(t *testing.T) {
	r := NewSPARQLRenderer("")

	p := algebra.NewPattern(algebra.V("s"), algebra.C(ir.IRI("urn:p")), algebra.V("o"))
	got, err := r.Render(p)
	require.NoError(t, err)
	assert.Equal(t, `SELECT ?o ?s WHERE { ?s <urn:p> ?o . }`, got)

	ground := algebra.NewPattern(algebra.C(ir.IRI("urn:s")), algebra.C(ir.IRI("urn:p")), algebra.C(ir.NewString("x")))
	got, err = r.Render(ground)
	require.NoError(t, err)
	assert.Equal(t, `ASK WHERE { <urn:s> <urn:p> "x" . }`, got)
}

func TestRenderBatch(t *testing.T) {
	r := NewSPARQLRenderer("a")
	p := algebra.NewPattern(algebra.V("s"), algebra.C(ir.IRI("urn:p")), algebra.V("o"))
	values := algebra.NewValues([]string{"s", "__index"}, []ir.BindingSet{
		ir.NewBindingSet(ir.B("s", ir.IRI("urn:x")), ir.B("__index", ir.NewInteger(0))),
		ir.NewBindingSet(ir.B("s", ir.IRI("urn:y")), ir.B("__index", ir.NewInteger(1))),
	})

	got, err := r.RenderBatch(p, values, "__index")
	require.NoError(t, err)
	assert.Equal(t, `SELECT ?o ?s ?__index WHERE { VALUES (?s ?__index) {`+
		` (<urn:x> "0"^^<http://www.w3.org/2001/XMLSchema#integer>)`+
		` (<urn:y> "1"^^<http://www.w3.org/2001/XMLSchema#integer>) }`+
		` ?s <urn:p> ?o . }`, got)

	_, err = sparql.Parse(got)
	assert.NoError(t, err)
}

func TestRenderBatch_Modifiers(t *testing.T) {
	r := NewSPARQLRenderer("a")
	p := algebra.NewPattern(algebra.V("s"), algebra.C(ir.IRI("urn:p")), algebra.V("o"))
	sliced := algebra.NewOwned("a", algebra.NewSlice(algebra.NewProjection(p, "s", "o"), 0, 1))
	values := algebra.NewValues([]string{"s"}, []ir.BindingSet{
		ir.NewBindingSet(ir.B("s", ir.IRI("urn:s2"))),
	})

	got, err := r.RenderBatch(sliced, values)
	require.NoError(t, err)
	assert.Equal(t, `SELECT ?s ?o WHERE { VALUES (?s) { (<urn:s2>) } ?s <urn:p> ?o . } LIMIT 1`, got)
	_, err = sparql.Parse(got)
	assert.NoError(t, err)

	renamed := algebra.NewDistinct(algebra.NewProjectionElems(p, []algebra.ProjectionElem{
		{Source: "s", Target: "subject"},
	}))
	values = algebra.NewValues([]string{"subject"}, []ir.BindingSet{
		ir.NewBindingSet(ir.B("subject", ir.IRI("urn:s2"))),
	})
	got, err = r.RenderBatch(renamed, values)
	require.NoError(t, err)
	assert.Equal(t, `SELECT DISTINCT (?s AS ?subject) WHERE { VALUES (?s) { (<urn:s2>) } ?s <urn:p> ?o . }`, got)

	_, err = NewSPARQLRenderer("b").RenderBatch(sliced, values)
	assert.True(t, IsRenderError(err))
}

func TestSliced(t *testing.T) {
	p := algebra.NewPattern(algebra.V("s"), algebra.C(ir.IRI("urn:p")), algebra.V("o"))
	assert.False(t, Sliced(p))
	assert.False(t, Sliced(algebra.NewDistinct(p)))
	assert.True(t, Sliced(algebra.NewSlice(p, 0, 1)))
	assert.True(t, Sliced(algebra.NewJoin(p, algebra.NewSlice(p, 2, algebra.NoLimit))))
}

func TestRender_Owned(t *testing.T) {
	p := algebra.NewPattern(algebra.V("s"), algebra.C(ir.IRI("urn:p")), algebra.V("o"))
	owned := algebra.NewOwned("wiki", p)

	got, err := NewSPARQLRenderer("wiki").Render(owned)
	require.NoError(t, err)
	assert.Equal(t, `SELECT ?o ?s WHERE { ?s <urn:p> ?o . }`, got)

	_, err = NewSPARQLRenderer("other").Render(owned)
	require.Error(t, err)
	assert.True(t, IsRenderError(err))
}

func TestRender_Unsupported(t *testing.T) {
	r := NewSPARQLRenderer("")
	tests := []struct {
		name string
		node algebra.Node
	}{
		{
			name: "service call",
			node: algebra.NewServiceCall("urn:geo", nil, []algebra.ParamBinding{{Param: "out", Var: algebra.V("x")}}, nil),
		},
		{
			name: "blank node slot",
			node: algebra.NewPattern(algebra.V("s"), algebra.C(ir.IRI("urn:p")), algebra.C(ir.BNode("b0"))),
		},
		{
			name: "blank node in filter",
			node: algebra.NewFilter(
				algebra.NewPattern(algebra.V("s"), algebra.C(ir.IRI("urn:p")), algebra.V("o")),
				algebra.Compare{Op: algebra.OpEQ, Left: algebra.VarExpr{Name: "o"}, Right: algebra.ConstExpr{Value: ir.BNode("b1")}},
			),
		},
		{
			name: "rank",
			node: algebra.NewRank(algebra.NewSingleton(), "urn:rank", "x", "score"),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Render(tc.node)
			require.Error(t, err)
			assert.True(t, IsRenderError(err), "got %v", err)
		})
	}
}
