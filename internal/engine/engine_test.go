package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedq/internal/algebra"
	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/member"
	"github.com/roach88/fedq/internal/store"
	"github.com/roach88/fedq/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture is a registry whose default member is a fresh local store.
type fixture struct {
	reg   *member.Registry
	store *store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg := member.NewRegistry(member.WithRegistryLogger(discardLogger()))
	require.NoError(t, reg.Register(member.Handle{ID: "local", Ref: "urn:m:local", Kind: member.KindLocal}, s, nil))
	return &fixture{reg: reg, store: s}
}

func (f *fixture) add(t *testing.T, h member.Handle, c member.Connector, d *member.Descriptor) {
	t.Helper()
	require.NoError(t, f.reg.Register(h, c, d))
}

// load inserts N-Triples lines into the local store.
func (f *fixture) load(t *testing.T, lines ...string) {
	t.Helper()
	_, err := f.store.LoadNTriples(context.Background(), strings.NewReader(strings.Join(lines, "\n")), "test.nt", nil)
	require.NoError(t, err)
}

func (f *fixture) engine(opts ...Option) *Engine {
	return New(f.reg, append([]Option{WithLogger(discardLogger())}, opts...)...)
}

func pattern(s, p, o string) *algebra.Pattern {
	slot := func(x string) algebra.Var {
		if strings.HasPrefix(x, "?") {
			return algebra.V(x[1:])
		}
		return algebra.C(ir.MustParseTerm(x))
	}
	return algebra.NewPattern(slot(s), slot(p), slot(o))
}

func evaluate(t *testing.T, e *Engine, n algebra.Node, in ir.BindingSet) []ir.BindingSet {
	t.Helper()
	ctx := context.Background()
	s, err := e.Evaluate(ctx, algebra.NewRoot(n), in, Dataset{})
	require.NoError(t, err)
	rows, err := ir.Collect(ctx, s)
	require.NoError(t, err)
	return rows
}

func values(names []string, rows ...[]ir.Term) *algebra.Values {
	out := make([]ir.BindingSet, len(rows))
	for i, r := range rows {
		bs := ir.BindingSet{}
		for j, v := range r {
			if v != nil {
				bs = bs.With(names[j], v)
			}
		}
		out[i] = bs
	}
	return algebra.NewValues(names, out)
}

func iri(s string) ir.Term { return ir.IRI(s) }

func column(rows []ir.BindingSet, name string) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		if v := r.Value(name); v != nil {
			out[i] = v.String()
		}
	}
	return out
}

var batchRow = regexp.MustCompile(`\(<(urn:o\d+)> "(\d+)"\^\^<http://www\.w3\.org/2001/XMLSchema#integer>\)`)

// fanOut answers bound-join queries with k rows per VALUES row.
func fanOut(k int) func(string) ([]ir.BindingSet, error) {
	return func(q string) ([]ir.BindingSet, error) {
		var out []ir.BindingSet
		for _, m := range batchRow.FindAllStringSubmatch(q, -1) {
			i, _ := strconv.Atoi(m[2])
			for j := 0; j < k; j++ {
				out = append(out, ir.NewBindingSet(
					ir.B("o", ir.IRI(m[1])),
					ir.B("x", ir.NewInteger(int64(j))),
					ir.B(indexVar, ir.NewInteger(int64(i))),
				))
			}
		}
		return out, nil
	}
}

func TestEvaluate_LocalPatternJoin(t *testing.T) {
	f := newFixture(t)
	f.load(t,
		`<urn:alice> <urn:knows> <urn:bob> .`,
		`<urn:alice> <urn:knows> <urn:carol> .`,
		`<urn:bob> <urn:name> "Bob" .`,
		`<urn:carol> <urn:name> "Carol" .`,
		`<urn:dave> <urn:name> "Dave" .`,
	)
	e := f.engine()

	rows := evaluate(t, e, algebra.NewNaryJoin(
		pattern("<urn:alice>", "<urn:knows>", "?f"),
		pattern("?f", "<urn:name>", "?n"),
	), ir.BindingSet{})

	names := column(rows, "n")
	slices.Sort(names)
	assert.Equal(t, []string{`"Bob"`, `"Carol"`}, names)
}

func TestEvaluate_InitialBindings(t *testing.T) {
	f := newFixture(t)
	f.load(t,
		`<urn:bob> <urn:name> "Bob" .`,
		`<urn:carol> <urn:name> "Carol" .`,
	)
	rows := evaluate(t, f.engine(), pattern("?p", "<urn:name>", "?n"),
		ir.NewBindingSet(ir.B("p", ir.IRI("urn:carol"))))

	require.Len(t, rows, 1)
	assert.Equal(t, ir.NewString("Carol"), rows[0].Value("n"))
	assert.Equal(t, ir.IRI("urn:carol"), rows[0].Value("p"))
}

func TestEvaluate_RepeatedVariable(t *testing.T) {
	f := newFixture(t)
	f.load(t,
		`<urn:a> <urn:same> <urn:a> .`,
		`<urn:a> <urn:same> <urn:b> .`,
	)
	rows := evaluate(t, f.engine(), pattern("?x", "<urn:same>", "?x"), ir.BindingSet{})
	require.Len(t, rows, 1)
	assert.Equal(t, ir.IRI("urn:a"), rows[0].Value("x"))
}

// Three-way join whose last argument is owned by a remote member: five
// left rows at batch size 2 make three requests of 2, 2, and 1 rows.
func TestBoundJoin_BatchesLeftRows(t *testing.T) {
	f := newFixture(t)
	var lines []string
	for i := 1; i <= 5; i++ {
		lines = append(lines,
			fmt.Sprintf(`<urn:s%d> <urn:p> <urn:o%d> .`, i, i),
			fmt.Sprintf(`<urn:s%d> <urn:q> "t%d" .`, i, i))
	}
	f.load(t, lines...)

	const k = 3
	remote := &testutil.QueryMember{Answer: fanOut(k)}
	f.add(t, member.Handle{ID: "remote", Ref: "urn:m:remote", Kind: member.KindSPARQL}, remote, nil)

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	e := f.engine(WithBatchSize(2), WithMetrics(metrics))

	rows := evaluate(t, e, algebra.NewNaryJoin(
		pattern("?s", "<urn:p>", "?o"),
		pattern("?s", "<urn:q>", "?t"),
		algebra.NewOwned("remote", pattern("?o", "<urn:r>", "?x")),
	), ir.BindingSet{})

	assert.Len(t, rows, 5*k)
	queries := remote.Queries()
	require.Len(t, queries, 3, "one dispatch per batch")
	var sizes []int
	for _, q := range queries {
		sizes = append(sizes, len(batchRow.FindAllString(q, -1)))
		assert.Contains(t, q, "?__index")
	}
	slices.Sort(sizes)
	assert.Equal(t, []int{1, 2, 2}, sizes)

	for _, r := range rows {
		assert.False(t, r.Has(indexVar), "index column must not leak")
		assert.NotNil(t, r.Value("t"))
		assert.Equal(t, strings.Replace(r.Value("s").String(), "urn:s", "urn:o", 1), r.Value("o").String())
	}

	// Rows sharing a left row stay contiguous.
	seen := map[string]bool{}
	prev := ""
	for _, r := range rows {
		s := r.Value("s").String()
		if s != prev {
			assert.False(t, seen[s], "rows of %s are split", s)
			seen[s] = true
			prev = s
		}
	}

	assert.Equal(t, int64(3), remote.Opens())
	assert.Equal(t, int64(0), remote.Open(), "every connection released")
	assert.Equal(t, 3.0, promtest.ToFloat64(metrics.boundJoinBatches.WithLabelValues("remote")))
	assert.Equal(t, 5.0, promtest.ToFloat64(metrics.boundJoinRows.WithLabelValues("remote")))
	assert.Equal(t, 3.0, promtest.ToFloat64(metrics.dispatchTotal.WithLabelValues("remote", opSelect)))
}

func TestBoundJoin_SlicedArgumentPerRow(t *testing.T) {
	f := newFixture(t)
	var lines []string
	for i := 1; i <= 3; i++ {
		lines = append(lines, fmt.Sprintf(`<urn:s%d> <urn:p> <urn:o%d> .`, i, i))
	}
	f.load(t, lines...)

	remote := &testutil.QueryMember{Answer: fanOut(1)}
	f.add(t, member.Handle{ID: "remote", Ref: "urn:m:remote", Kind: member.KindSPARQL}, remote, nil)

	e := f.engine(WithBatchSize(10))
	rows := evaluate(t, e, algebra.NewNaryJoin(
		pattern("?s", "<urn:p>", "?o"),
		algebra.NewOwned("remote", algebra.NewSlice(pattern("?o", "<urn:r>", "?x"), 0, 1)),
	), ir.BindingSet{})

	assert.Len(t, rows, 3, "each left row keeps its own limit")
	queries := remote.Queries()
	require.Len(t, queries, 3)
	for _, q := range queries {
		assert.Len(t, batchRow.FindAllString(q, -1), 1)
		assert.Contains(t, q, "WHERE { VALUES")
		assert.True(t, strings.HasSuffix(q, "} LIMIT 1"), q)
	}
}

func TestJoin_NestedLoopForLocalArguments(t *testing.T) {
	f := newFixture(t)
	f.load(t,
		`<urn:s1> <urn:p> "a" .`,
		`<urn:s2> <urn:p> "b" .`,
	)
	other := &testutil.QueryMember{Answer: func(q string) ([]ir.BindingSet, error) {
		return []ir.BindingSet{ir.NewBindingSet(ir.B("z", ir.NewString("remote")))}, nil
	}}
	f.add(t, member.Handle{ID: "other", Ref: "urn:m:other", Kind: member.KindSPARQL}, other, nil)

	// A plain subtree around the owned node makes the step a nested loop.
	rows := evaluate(t, f.engine(WithBatchSize(10)), algebra.NewNaryJoin(
		pattern("?s", "<urn:p>", "?v"),
		algebra.NewFilter(algebra.NewOwned("other", pattern("?s", "<urn:r>", "?z")), algebra.Bound{Name: "z"}),
	), ir.BindingSet{})

	assert.Len(t, rows, 2)
	assert.Len(t, other.Queries(), 2, "one request per left row")
	for _, q := range other.Queries() {
		assert.Contains(t, q, "VALUES (?s)")
	}
	assert.Equal(t, int64(0), other.Open())
}

func TestBoundJoin_ErrorCancelsSiblings(t *testing.T) {
	f := newFixture(t)
	var lines []string
	for i := 1; i <= 6; i++ {
		lines = append(lines, fmt.Sprintf(`<urn:s%d> <urn:p> <urn:o%d> .`, i, i))
	}
	f.load(t, lines...)

	boom := errors.New("endpoint exploded")
	remote := &testutil.QueryMember{Answer: func(string) ([]ir.BindingSet, error) { return nil, boom }}
	f.add(t, member.Handle{ID: "remote", Ref: "urn:m:remote", Kind: member.KindSPARQL}, remote, nil)

	ctx := context.Background()
	e := f.engine(WithBatchSize(1))
	s, err := e.Evaluate(ctx, algebra.NewRoot(algebra.NewNaryJoin(
		pattern("?s", "<urn:p>", "?o"),
		algebra.NewOwned("remote", pattern("?o", "<urn:r>", "?x")),
	)), ir.BindingSet{}, Dataset{})
	require.NoError(t, err)

	_, err = ir.Collect(ctx, s)
	require.Error(t, err)
	assert.True(t, IsEvaluationError(err))
	assert.ErrorIs(t, err, boom)

	var ee *EvaluationError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "remote", ee.Member)
	assert.Contains(t, ee.Query, "VALUES")
	assert.Equal(t, int64(0), remote.Open(), "failed and cancelled tasks release connections")
}

// Closing the consumer of a union of two member-backed branches after one
// row cancels both branch tasks and releases both connections.
func TestUnion_CloseCancelsBranches(t *testing.T) {
	f := newFixture(t)
	answer := func(v string) func(string) ([]ir.BindingSet, error) {
		return func(string) ([]ir.BindingSet, error) {
			return []ir.BindingSet{ir.NewBindingSet(ir.B("o", ir.NewString(v)))}, nil
		}
	}
	a := &testutil.QueryMember{Answer: answer("a"), Block: true}
	b := &testutil.QueryMember{Answer: answer("b"), Block: true}
	f.add(t, member.Handle{ID: "a", Ref: "urn:m:a", Kind: member.KindSPARQL}, a, nil)
	f.add(t, member.Handle{ID: "b", Ref: "urn:m:b", Kind: member.KindSPARQL}, b, nil)

	ctx := context.Background()
	e := f.engine()
	s, err := e.Evaluate(ctx, algebra.NewRoot(algebra.NewUnion(
		algebra.NewOwned("a", pattern("?s", "<urn:p>", "?o")),
		algebra.NewOwned("b", pattern("?s", "<urn:p>", "?o")),
	)), ir.BindingSet{}, Dataset{})
	require.NoError(t, err)

	_, ok, err := s.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return a.Waiting() == 1 && b.Waiting() == 1
	}, time.Second, time.Millisecond, "both branches should be mid-stream")

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close is a no-op")

	for name, m := range map[string]*testutil.QueryMember{"a": a, "b": b} {
		assert.Equal(t, int64(1), m.Opens(), name)
		assert.Equal(t, int64(0), m.Open(), "%s leaked a connection", name)
		assert.Equal(t, int64(1), m.Cancelled(), "%s did not observe cancellation", name)
	}

	_, ok, err = s.Next(ctx)
	assert.False(t, ok)
	assert.NoError(t, err, "a closed stream reports no further errors")
}

func TestUnion_AllRows(t *testing.T) {
	f := newFixture(t)
	rows := evaluate(t, f.engine(), algebra.NewUnion(
		values([]string{"x"}, []ir.Term{ir.NewInteger(1)}, []ir.Term{ir.NewInteger(2)}),
		values([]string{"x"}, []ir.Term{ir.NewInteger(3)}),
	), ir.BindingSet{})

	got := column(rows, "x")
	slices.Sort(got)
	assert.Len(t, got, 3)
}

func TestEvaluate_ContextCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.engine().Evaluate(ctx, algebra.NewRoot(pattern("?s", "?p", "?o")), ir.BindingSet{}, Dataset{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOwned_AskPushdown(t *testing.T) {
	f := newFixture(t)
	remote := &testutil.QueryMember{AskAnswer: func(q string) (bool, error) {
		return strings.Contains(q, "<urn:yes>"), nil
	}}
	f.add(t, member.Handle{ID: "remote", Ref: "urn:m:remote", Kind: member.KindSPARQL}, remote, nil)
	e := f.engine()

	in := ir.NewBindingSet(ir.B("k", ir.NewString("kept")))
	rows := evaluate(t, e, algebra.NewOwned("remote", pattern("<urn:yes>", "<urn:p>", "<urn:o>")), in)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Equal(in))

	rows = evaluate(t, e, algebra.NewOwned("remote", pattern("<urn:no>", "<urn:p>", "<urn:o>")), in)
	assert.Empty(t, rows)

	for _, q := range remote.Queries() {
		assert.True(t, strings.HasPrefix(q, "ASK"), q)
	}
}

func TestOwned_LocalOwnerEvaluatesAgainstOwner(t *testing.T) {
	f := newFixture(t)
	f.load(t, `<urn:a> <urn:p> "default" .`)

	other, err := store.Open(filepath.Join(t.TempDir(), "other.db"))
	require.NoError(t, err)
	t.Cleanup(func() { other.Close() })
	_, err = other.LoadNTriples(context.Background(), strings.NewReader(`<urn:a> <urn:p> "other" .`), "o.nt", nil)
	require.NoError(t, err)
	f.add(t, member.Handle{ID: "other", Ref: "urn:m:other", Kind: member.KindLocal}, other, nil)

	rows := evaluate(t, f.engine(), algebra.NewOwned("other", pattern("?s", "<urn:p>", "?v")), ir.BindingSet{})
	require.Len(t, rows, 1)
	assert.Equal(t, ir.NewString("other"), rows[0].Value("v"))
}

func TestOwned_RenderFailureFallsBack(t *testing.T) {
	f := newFixture(t)
	remote := &testutil.QueryMember{}
	f.add(t, member.Handle{ID: "remote", Ref: "urn:m:remote", Kind: member.KindSPARQL}, remote, nil)
	geo := &testutil.ServiceMember{Rows: func(req member.Request) ([]ir.BindingSet, error) {
		return []ir.BindingSet{ir.NewBindingSet(ir.B("lat", ir.NewString("52.5")))}, nil
	}}
	f.add(t, member.Handle{ID: "geo", Ref: "urn:m:geo", Kind: member.KindREST}, geo, nil)

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	call := algebra.NewServiceCall("urn:m:geo",
		[]algebra.ParamBinding{{Param: "name", Var: algebra.V("name")}},
		[]algebra.ParamBinding{{Param: "lat", Var: algebra.V("lat")}}, nil)

	rows := evaluate(t, f.engine(WithMetrics(metrics)), algebra.NewOwned("remote", call),
		ir.NewBindingSet(ir.B("name", ir.NewString("Berlin"))))

	require.Len(t, rows, 1)
	assert.Equal(t, ir.NewString("52.5"), rows[0].Value("lat"))
	assert.Empty(t, remote.Queries(), "nothing renderable reached the remote member")
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.fallbacks.WithLabelValues("remote")))
}

func TestPattern_BlankNodeBindingScansQueryMember(t *testing.T) {
	f := newFixture(t)
	remote := &testutil.QueryMember{Answer: func(string) ([]ir.BindingSet, error) {
		return []ir.BindingSet{
			ir.NewBindingSet(ir.B("s", ir.BNode("b1")), ir.B("o", ir.NewString("kept"))),
			ir.NewBindingSet(ir.B("s", ir.IRI("urn:x")), ir.B("o", ir.NewString("dropped"))),
		}, nil
	}}
	f.add(t, member.Handle{ID: "remote", Ref: "urn:m:remote", Kind: member.KindSPARQL}, remote, nil)

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	rows := evaluate(t, f.engine(WithMetrics(metrics)),
		algebra.NewOwned("remote", pattern("?s", "<urn:p>", "?o")),
		ir.NewBindingSet(ir.B("s", ir.BNode("b1"))))

	require.Len(t, rows, 1)
	assert.Equal(t, ir.NewString("kept"), rows[0].Value("o"))
	assert.Equal(t, []string{`SELECT ?o ?s WHERE { ?s <urn:p> ?o . }`}, remote.Queries())
	assert.Equal(t, 2.0, promtest.ToFloat64(metrics.fallbacks.WithLabelValues("remote")),
		"owned render and bound pattern render both fell back")
}

func TestServiceCall_Cardinality(t *testing.T) {
	f := newFixture(t)
	geo := &testutil.ServiceMember{Rows: func(req member.Request) ([]ir.BindingSet, error) {
		name := req.Inputs["name"].(ir.Literal).Lexical
		n := 1
		if name == "Springfield" {
			n = 2
		}
		var out []ir.BindingSet
		for i := 0; i < n; i++ {
			out = append(out, ir.NewBindingSet(ir.B("lat", ir.NewInteger(int64(i)))))
		}
		return out, nil
	}}
	f.add(t, member.Handle{ID: "geo", Ref: "urn:m:geo", Kind: member.KindREST}, geo,
		&member.Descriptor{Label: "geo", Cardinality: member.CardinalityOne})

	call := algebra.NewServiceCall("urn:m:geo",
		[]algebra.ParamBinding{{Param: "name", Var: algebra.V("name")}},
		[]algebra.ParamBinding{{Param: "lat", Var: algebra.V("lat")}}, nil)
	e := f.engine()
	ctx := context.Background()

	rows := evaluate(t, e, call, ir.NewBindingSet(ir.B("name", ir.NewString("Berlin"))))
	require.Len(t, rows, 1)
	assert.Equal(t, "Berlin", geo.Requests()[0].Inputs["name"].(ir.Literal).Lexical)

	_, err := e.Evaluate(ctx, algebra.NewRoot(call.Clone()), ir.NewBindingSet(ir.B("name", ir.NewString("Springfield"))), Dataset{})
	require.Error(t, err)
	assert.True(t, IsCardinalityError(err))
	assert.Equal(t, int64(0), geo.Open())
}

func TestServiceCall_ConstantOutputFilters(t *testing.T) {
	f := newFixture(t)
	svc := &testutil.ServiceMember{Rows: func(member.Request) ([]ir.BindingSet, error) {
		return []ir.BindingSet{
			ir.NewBindingSet(ir.B("kind", ir.NewString("city")), ir.B("id", ir.NewInteger(1))),
			ir.NewBindingSet(ir.B("kind", ir.NewString("river")), ir.B("id", ir.NewInteger(2))),
		}, nil
	}}
	f.add(t, member.Handle{ID: "svc", Ref: "urn:m:svc", Kind: member.KindREST}, svc, nil)

	rows := evaluate(t, f.engine(), algebra.NewServiceCall("urn:m:svc", nil,
		[]algebra.ParamBinding{
			{Param: "kind", Var: algebra.C(ir.NewString("city"))},
			{Param: "id", Var: algebra.V("id")},
		}, nil), ir.BindingSet{})

	require.Len(t, rows, 1)
	assert.Equal(t, ir.NewInteger(1), rows[0].Value("id"))
}

func TestServiceCall_MandatoryOutputs(t *testing.T) {
	f := newFixture(t)
	svc := &testutil.ServiceMember{Rows: func(member.Request) ([]ir.BindingSet, error) {
		return []ir.BindingSet{
			ir.NewBindingSet(ir.B("id", ir.NewInteger(1)), ir.B("note", ir.NewString("first"))),
			ir.NewBindingSet(ir.B("id", ir.NewInteger(2))),
			ir.NewBindingSet(ir.B("note", ir.NewString("no id"))),
		}, nil
	}}
	f.add(t, member.Handle{ID: "svc", Ref: "urn:m:svc", Kind: member.KindREST}, svc, nil)

	rows := evaluate(t, f.engine(), algebra.NewServiceCall("urn:m:svc", nil,
		[]algebra.ParamBinding{
			{Param: "id", Var: algebra.V("id")},
			{Param: "note", Var: algebra.V("note"), Optional: true},
		}, nil), ir.BindingSet{})

	require.Len(t, rows, 2, "a row without the mandatory id is dropped")
	assert.Equal(t, []string{`"1"^^<http://www.w3.org/2001/XMLSchema#integer>`, `"2"^^<http://www.w3.org/2001/XMLSchema#integer>`}, column(rows, "id"))
	assert.False(t, rows[1].Has("note"))
}

func TestKeywordSearch(t *testing.T) {
	f := newFixture(t)
	search := &testutil.ServiceMember{Rows: func(req member.Request) ([]ir.BindingSet, error) {
		return []ir.BindingSet{
			ir.NewBindingSet(ir.B(member.KeywordSubject, ir.IRI("urn:doc1")), ir.B(member.KeywordScore, ir.NewInteger(9))),
			ir.NewBindingSet(ir.B(member.KeywordSubject, ir.IRI("urn:doc2")), ir.B(member.KeywordScore, ir.NewInteger(4))),
		}, nil
	}}
	f.add(t, member.Handle{ID: "search", Ref: "urn:m:search", Kind: member.KindKeyword}, search, nil)

	score := algebra.V("score")
	ks := &algebra.KeywordSearch{
		Ref:        "urn:m:search",
		Subject:    algebra.V("doc"),
		Query:      algebra.C(ir.NewString("federation")),
		Properties: []ir.IRI{"urn:title"},
		Score:      &score,
	}
	rows := evaluate(t, f.engine(), ks, ir.BindingSet{})

	require.Len(t, rows, 2)
	assert.Equal(t, []string{"<urn:doc1>", "<urn:doc2>"}, column(rows, "doc"))
	assert.Equal(t, ir.NewInteger(9), rows[0].Value("score"))

	req := search.Requests()[0]
	assert.Equal(t, ir.NewString("federation"), req.Inputs[member.KeywordQuery])
	assert.Equal(t, []ir.IRI{"urn:title"}, req.Properties)

	unbound := &algebra.KeywordSearch{Ref: "urn:m:search", Subject: algebra.V("doc"), Query: algebra.V("q")}
	_, err := f.engine().Evaluate(context.Background(), algebra.NewRoot(unbound), ir.BindingSet{}, Dataset{})
	require.Error(t, err)
	assert.True(t, IsEvaluationError(err))
}

func TestRank_OneBatch(t *testing.T) {
	f := newFixture(t)
	f.load(t,
		`<urn:d1> <urn:title> "b" .`,
		`<urn:d2> <urn:title> "a" .`,
		`<urn:d3> <urn:title> "c" .`,
	)
	ranker := &testutil.AggregateMember{Rank: func(vals []ir.Term) ([]ir.Term, error) {
		out := make([]ir.Term, len(vals))
		for i, v := range vals {
			out[i] = ir.NewInteger(int64(len(v.String())))
		}
		return out, nil
	}}
	f.add(t, member.Handle{ID: "rank", Ref: "urn:m:rank", Kind: member.KindAggregate}, ranker, nil)

	rows := evaluate(t, f.engine(), algebra.NewRank(pattern("?doc", "<urn:title>", "?t"), "urn:m:rank", "doc", "score"), ir.BindingSet{})

	require.Len(t, rows, 3)
	assert.Equal(t, int64(1), ranker.Batches(), "all values in one request")
	for _, r := range rows {
		assert.Equal(t, ir.NewInteger(8), r.Value("score"))
	}
}

func TestService_Silent(t *testing.T) {
	f := newFixture(t)
	in := ir.NewBindingSet(ir.B("k", ir.NewString("v")))
	e := f.engine()

	rows := evaluate(t, e, algebra.NewService(algebra.C(ir.IRI("urn:m:missing")), true, pattern("?s", "?p", "?o")), in)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Equal(in))

	failing := &testutil.QueryMember{Answer: func(string) ([]ir.BindingSet, error) { return nil, errors.New("down") }}
	f.add(t, member.Handle{ID: "down", Ref: "urn:m:down", Kind: member.KindSPARQL}, failing, nil)
	rows = evaluate(t, e, algebra.NewService(algebra.C(ir.IRI("urn:m:down")), true,
		algebra.NewOwned("down", pattern("?s", "?p", "?o"))), in)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Equal(in))

	_, err := e.Evaluate(context.Background(),
		algebra.NewRoot(algebra.NewService(algebra.C(ir.IRI("urn:m:missing")), false, pattern("?s", "?p", "?o"))),
		in, Dataset{})
	assert.True(t, member.IsUnknownMember(err))
}

func TestService_VariableReference(t *testing.T) {
	f := newFixture(t)
	remote := &testutil.QueryMember{Answer: func(string) ([]ir.BindingSet, error) {
		return []ir.BindingSet{ir.NewBindingSet(ir.B("o", ir.NewString("hit")))}, nil
	}}
	f.add(t, member.Handle{ID: "remote", Ref: "urn:m:remote", Kind: member.KindSPARQL}, remote, nil)

	svc := algebra.NewService(algebra.V("endpoint"), false, pattern("?s", "<urn:p>", "?o"))
	rows := evaluate(t, f.engine(), svc, ir.NewBindingSet(ir.B("endpoint", ir.IRI("urn:m:remote"))))

	require.Len(t, rows, 1)
	assert.Equal(t, ir.NewString("hit"), rows[0].Value("o"))
	assert.Equal(t, ir.IRI("urn:m:remote"), rows[0].Value("endpoint"))
	require.Len(t, remote.Queries(), 1)

	_, err := f.engine().Evaluate(context.Background(), algebra.NewRoot(svc), ir.BindingSet{}, Dataset{})
	assert.True(t, IsEvaluationError(err), "unbound service variable")
}

func TestModifiers(t *testing.T) {
	f := newFixture(t)
	e := f.engine()
	nums := func() *algebra.Values {
		return values([]string{"n", "s"},
			[]ir.Term{ir.NewInteger(3), ir.NewString("c")},
			[]ir.Term{ir.NewInteger(1), ir.NewString("a")},
			[]ir.Term{ir.NewInteger(2), ir.NewString("b")},
			[]ir.Term{ir.NewInteger(1), ir.NewString("a")},
		)
	}
	asc := algebra.OrderElem{Expr: algebra.VarExpr{Name: "n"}}
	desc := algebra.OrderElem{Expr: algebra.VarExpr{Name: "n"}, Descending: true}

	tests := []struct {
		name string
		node algebra.Node
		col  string
		want []string
	}{
		{
			name: "order asc",
			node: algebra.NewOrder(nums(), asc),
			col:  "s",
			want: []string{`"a"`, `"a"`, `"b"`, `"c"`},
		},
		{
			name: "order desc",
			node: algebra.NewOrder(nums(), desc),
			col:  "s",
			want: []string{`"c"`, `"b"`, `"a"`, `"a"`},
		},
		{
			name: "slice",
			node: algebra.NewSlice(algebra.NewOrder(nums(), asc), 1, 2),
			col:  "s",
			want: []string{`"a"`, `"b"`},
		},
		{
			name: "offset only",
			node: algebra.NewSlice(algebra.NewOrder(nums(), asc), 3, algebra.NoLimit),
			col:  "s",
			want: []string{`"c"`},
		},
		{
			name: "distinct",
			node: algebra.NewOrder(algebra.NewDistinct(nums()), asc),
			col:  "s",
			want: []string{`"a"`, `"b"`, `"c"`},
		},
		{
			name: "filter",
			node: algebra.NewFilter(nums(), algebra.Compare{Op: algebra.OpGT, Left: algebra.VarExpr{Name: "n"}, Right: algebra.ConstExpr{Value: ir.NewInteger(1)}}),
			col:  "s",
			want: []string{`"c"`, `"b"`},
		},
		{
			name: "extension",
			node: algebra.NewSlice(algebra.NewExtension(nums(), algebra.ExtensionElem{
				Name: "u",
				Expr: algebra.Call{Func: "UCASE", Args: []algebra.Expr{algebra.VarExpr{Name: "s"}}},
			}), 0, 1),
			col:  "u",
			want: []string{`"C"`},
		},
		{
			name: "projection renames",
			node: algebra.NewSlice(algebra.NewProjectionElems(nums(), []algebra.ProjectionElem{{Source: "s", Target: "label"}}), 0, 1),
			col:  "label",
			want: []string{`"c"`},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rows := evaluate(t, e, tc.node, ir.BindingSet{})
			assert.Equal(t, tc.want, column(rows, tc.col))
		})
	}
}

func TestProjection_Scope(t *testing.T) {
	f := newFixture(t)
	inner := algebra.NewProjection(
		values([]string{"x", "y"}, []ir.Term{ir.NewInteger(1), ir.NewInteger(10)}, []ir.Term{ir.NewInteger(2), ir.NewInteger(20)}),
		"x")

	// y is outside the projection: its outer binding neither filters nor
	// is replaced by the inner rows.
	rows := evaluate(t, f.engine(), inner, ir.NewBindingSet(ir.B("y", ir.NewInteger(99)), ir.B("x", ir.NewInteger(2))))
	require.Len(t, rows, 1)
	assert.Equal(t, ir.NewInteger(99), rows[0].Value("y"))
	assert.Equal(t, ir.NewInteger(2), rows[0].Value("x"))
}

func TestLeftJoin(t *testing.T) {
	f := newFixture(t)
	left := values([]string{"p"}, []ir.Term{iri("urn:alice")}, []ir.Term{iri("urn:bob")})
	right := values([]string{"p", "mail"}, []ir.Term{iri("urn:alice"), ir.NewString("a@x")})

	rows := evaluate(t, f.engine(), algebra.NewLeftJoin(left, right, nil), ir.BindingSet{})
	require.Len(t, rows, 2)
	assert.Equal(t, []string{`"a@x"`, ""}, column(rows, "mail"))

	cond := algebra.Call{Func: "CONTAINS", Args: []algebra.Expr{algebra.VarExpr{Name: "mail"}, algebra.ConstExpr{Value: ir.NewString("zzz")}}}
	left2 := values([]string{"p"}, []ir.Term{iri("urn:alice")})
	right2 := values([]string{"p", "mail"}, []ir.Term{iri("urn:alice"), ir.NewString("a@x")})
	rows = evaluate(t, f.engine(), algebra.NewLeftJoin(left2, right2, cond), ir.BindingSet{})
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Has("mail"), "failed condition keeps the left row alone")
}

func TestOrder_PushedUnionMerges(t *testing.T) {
	f := newFixture(t)
	asc := algebra.OrderElem{Expr: algebra.VarExpr{Name: "n"}}
	left := algebra.NewOrder(values([]string{"n"}, []ir.Term{ir.NewInteger(1)}, []ir.Term{ir.NewInteger(4)}, []ir.Term{ir.NewInteger(6)}), asc)
	right := algebra.NewOrder(values([]string{"n"}, []ir.Term{ir.NewInteger(2)}, []ir.Term{ir.NewInteger(3)}, []ir.Term{ir.NewInteger(7)}), asc)
	top := algebra.NewOrder(algebra.NewUnion(left, right), asc)
	top.Pushed = true

	rows := evaluate(t, f.engine(), top, ir.BindingSet{})
	assert.Equal(t, []string{"1", "2", "3", "4", "6", "7"}, lexicals(rows, "n"))
}

func lexicals(rows []ir.BindingSet, name string) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Value(name).(ir.Literal).Lexical
	}
	return out
}

func TestAsk(t *testing.T) {
	f := newFixture(t)
	f.load(t, `<urn:a> <urn:p> <urn:b> .`)
	e := f.engine()
	ctx := context.Background()

	ok, err := e.Ask(ctx, algebra.NewAskRoot(pattern("<urn:a>", "<urn:p>", "?x")), ir.BindingSet{}, Dataset{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Ask(ctx, algebra.NewAskRoot(pattern("<urn:zzz>", "<urn:p>", "?x")), ir.BindingSet{}, Dataset{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_NamedGraphs(t *testing.T) {
	f := newFixture(t)
	f.load(t,
		`<urn:a> <urn:p> "default" .`,
		`<urn:a> <urn:p> "named" <urn:g> .`,
	)
	g := algebra.V("g")
	p := pattern("?s", "<urn:p>", "?v")
	p.Context = &g

	rows := evaluate(t, f.engine(), p, ir.BindingSet{})
	require.Len(t, rows, 1)
	assert.Equal(t, ir.IRI("urn:g"), rows[0].Value("g"))

	ctx := context.Background()
	s, err := f.engine().Evaluate(ctx, algebra.NewRoot(pattern("?s", "<urn:p>", "?v")), ir.BindingSet{}, Dataset{DefaultGraph: ir.IRI("urn:g")})
	require.NoError(t, err)
	rows, err = ir.Collect(ctx, s)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ir.NewString("named"), rows[0].Value("v"))
}

func TestMetrics_NilSafe(t *testing.T) {
	assert.Nil(t, NewMetrics(nil))
	var m *Metrics
	m.RecordDispatch("x", opSelect, time.Millisecond, nil)
	m.RecordBoundJoinBatch("x", 1)
	m.RecordFallback("x")
}
