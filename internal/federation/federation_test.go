package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedq/internal/endpoint"
	"github.com/roach88/fedq/internal/engine"
	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/member"
	"github.com/roach88/fedq/internal/member/sparqlhttp"
	"github.com/roach88/fedq/internal/store"
	"github.com/roach88/fedq/internal/testutil"
)

func openStore(t *testing.T, name string, lines []string) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), name+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	_, err = s.LoadNTriples(context.Background(), strings.NewReader(strings.Join(lines, "\n")), name+".nt", nil)
	require.NoError(t, err)
	return s
}

// newFederation registers a local store as default and a second store
// served over HTTP as the SPARQL member urn:m:remote.
func newFederation(t *testing.T, logs io.Writer, opts ...Option) *Federation {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	var local, remote []string
	for i := 1; i <= 5; i++ {
		local = append(local, fmt.Sprintf(`<urn:s%d> <urn:p> <urn:o%d> .`, i, i))
		remote = append(remote, fmt.Sprintf(`<urn:o%d> <urn:r> "x%d" .`, i, i))
	}

	ep, err := endpoint.New("remote-store", openStore(t, "remote", remote), endpoint.WithLogger(quiet))
	require.NoError(t, err)
	srv := httptest.NewServer(ep)
	t.Cleanup(srv.Close)
	conn, err := sparqlhttp.NewConnector(sparqlhttp.Config{Endpoint: srv.URL, Logger: quiet})
	require.NoError(t, err)

	reg := member.NewRegistry(member.WithRegistryLogger(quiet))
	require.NoError(t, reg.Register(member.Handle{ID: "local", Ref: "urn:m:local", Kind: member.KindLocal}, openStore(t, "local", local), nil))
	require.NoError(t, reg.Register(member.Handle{ID: "remote", Ref: "urn:m:remote", Kind: member.KindSPARQL}, conn, nil))

	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return New(reg, append([]Option{WithLogger(logger)}, opts...)...)
}

func TestQuery_FederatesAcrossMembers(t *testing.T) {
	var logs bytes.Buffer
	metrics := prometheus.NewRegistry()
	f := newFederation(t, &logs,
		WithIDGenerator(testutil.NewFixedIDGenerator("q-1")),
		WithRegisterer(metrics),
		WithEngineOptions(engine.WithBatchSize(2)),
	)
	ctx := context.Background()

	res, err := f.QueryString(ctx, `
		SELECT ?s ?x WHERE {
			?s <urn:p> ?o .
			SERVICE <urn:m:remote> { ?o <urn:r> ?x }
		} ORDER BY ?s`, ir.BindingSet{}, engine.Dataset{})
	require.NoError(t, err)
	assert.Equal(t, "q-1", res.ID)
	assert.Equal(t, []string{"s", "x"}, res.Vars)

	rows, err := ir.Collect(ctx, res)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for i, r := range rows {
		assert.Equal(t, ir.IRI(fmt.Sprintf("urn:s%d", i+1)), r.Value("s"))
		assert.Equal(t, ir.NewString(fmt.Sprintf("x%d", i+1)), r.Value("x"))
		assert.False(t, r.Has("__index"))
	}

	out := logs.String()
	assert.Contains(t, out, "query started")
	assert.Contains(t, out, "query finished")
	assert.Contains(t, out, "query_id=q-1")
	assert.Contains(t, out, "rows=5")

	assert.Equal(t, 3.0, counterTotal(t, metrics, "fedq_engine_bound_join_batches_total"))
}

func TestQuery_EngineLogsCarryQueryID(t *testing.T) {
	var logs bytes.Buffer
	debug := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f := newFederation(t, io.Discard,
		WithLogger(debug),
		WithIDGenerator(testutil.NewSequenceIDGenerator("q")),
	)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := f.QueryString(ctx, `SELECT ?s ?x WHERE {
			?s <urn:p> ?o .
			SERVICE <urn:m:remote> { ?o <urn:r> ?x }
		}`, ir.BindingSet{}, engine.Dataset{})
		require.NoError(t, err)
		_, err = ir.Collect(ctx, res)
		require.NoError(t, err)
		require.NoError(t, res.Close())
	}

	dispatches := map[string]int{}
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		if entry["msg"] != "bound join dispatch" {
			continue
		}
		id, _ := entry["query_id"].(string)
		dispatches[id]++
	}
	assert.Equal(t, map[string]int{"q-1": 1, "q-2": 1}, dispatches)
}

func counterTotal(t *testing.T, g prometheus.Gatherer, name string) float64 {
	t.Helper()
	mfs, err := g.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestQuery_SilentUnknownService(t *testing.T) {
	f := newFederation(t, io.Discard)
	ctx := context.Background()

	res, err := f.QueryString(ctx, `
		SELECT ?s ?z WHERE {
			VALUES ?s { <urn:s1> }
			SERVICE SILENT <urn:m:nobody> { ?s <urn:q> ?z }
		}`, ir.BindingSet{}, engine.Dataset{})
	require.NoError(t, err)
	rows, err := ir.Collect(ctx, res)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ir.IRI("urn:s1"), rows[0].Value("s"))
	assert.False(t, rows[0].Has("z"))
}

func TestQuery_InitialBindings(t *testing.T) {
	f := newFederation(t, io.Discard)
	ctx := context.Background()

	res, err := f.QueryString(ctx, `SELECT ?s ?o WHERE { ?s <urn:p> ?o }`,
		ir.NewBindingSet(ir.B("s", ir.IRI("urn:s3"))), engine.Dataset{})
	require.NoError(t, err)
	rows, err := ir.Collect(ctx, res)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ir.IRI("urn:o3"), rows[0].Value("o"))
}

func TestAsk(t *testing.T) {
	f := newFederation(t, io.Discard)
	ctx := context.Background()

	root, err := f.Parse(`ASK { <urn:s1> <urn:p> ?o . SERVICE <urn:m:remote> { ?o <urn:r> "x1" } }`)
	require.NoError(t, err)
	ok, err := f.Ask(ctx, root, ir.BindingSet{}, engine.Dataset{})
	require.NoError(t, err)
	assert.True(t, ok)

	root, err = f.Parse(`ASK { <urn:s1> <urn:p> ?o . SERVICE <urn:m:remote> { ?o <urn:r> "x2" } }`)
	require.NoError(t, err)
	ok, err = f.Ask(ctx, root, ir.BindingSet{}, engine.Dataset{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExplain_ShowsOwnedSubtree(t *testing.T) {
	f := newFederation(t, io.Discard)
	root, err := f.Parse(`SELECT * WHERE { ?s <urn:p> ?o . SERVICE <urn:m:remote> { ?o <urn:r> ?x . ?x <urn:r> ?y } }`)
	require.NoError(t, err)

	out, err := f.Explain(root)
	require.NoError(t, err)
	assert.Contains(t, out, "Owned remote")
	assert.Contains(t, out, "NaryJoin")
}

func TestQuery_MemberFailureIsLogged(t *testing.T) {
	var logs bytes.Buffer
	f := newFederation(t, &logs, WithIDGenerator(testutil.NewFixedIDGenerator("q-err")))
	ctx := context.Background()

	refuse := member.ConnectorFunc(func(ctx context.Context) (member.Connection, error) {
		return nil, fmt.Errorf("refused")
	})
	require.NoError(t, f.Members().Register(member.Handle{ID: "broken", Ref: "urn:m:broken", Kind: member.KindSPARQL}, refuse, nil))

	res, err := f.QueryString(ctx, `SELECT * WHERE { ?s <urn:p> ?o . SERVICE <urn:m:broken> { ?o <urn:r> ?x } }`,
		ir.BindingSet{}, engine.Dataset{})
	require.NoError(t, err)
	_, err = ir.Collect(ctx, res)
	require.Error(t, err)
	assert.True(t, member.IsConnectionError(err))
	assert.Contains(t, logs.String(), "query_id=q-err")
	assert.Contains(t, logs.String(), "level=ERROR")
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	assert.Equal(t, byte('7'), a[14], "version nibble")
}
