package endpoint

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/member"
	"github.com/roach88/fedq/internal/member/sparqlhttp"
	"github.com/roach88/fedq/internal/store"
)

const people = `<urn:alice> <urn:name> "Alice" .
<urn:bob> <urn:name> "Bob" .
<urn:alice> <urn:knows> <urn:bob> .
`

func newEndpoint(t *testing.T) *Endpoint {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "ep.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	_, err = s.LoadNTriples(context.Background(), strings.NewReader(people), "people.nt", nil)
	require.NoError(t, err)

	ep, err := New("people", s, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	return ep
}

func TestSelect(t *testing.T) {
	ep := newEndpoint(t)
	ctx := context.Background()

	s, vars, err := ep.Select(ctx, `SELECT ?n WHERE { ?p <urn:name> ?n } ORDER BY DESC(?n)`)
	require.NoError(t, err)
	assert.Equal(t, []string{"n"}, vars)

	rows, err := ir.Collect(ctx, s)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ir.NewString("Bob"), rows[0].Value("n"))
	assert.Equal(t, ir.NewString("Alice"), rows[1].Value("n"))
	assert.False(t, rows[0].Has("p"), "unprojected variables are dropped")
}

func TestSelect_RejectsAsk(t *testing.T) {
	ep := newEndpoint(t)
	_, _, err := ep.Select(context.Background(), `ASK { ?s ?p ?o }`)
	assert.Error(t, err)
}

func TestConn_IsQueryConnection(t *testing.T) {
	ep := newEndpoint(t)
	ctx := context.Background()

	conn, err := ep.Connect(ctx)
	require.NoError(t, err)
	defer conn.Close()
	qc, ok := conn.(member.QueryConnection)
	require.True(t, ok)

	yes, err := qc.Ask(ctx, `ASK { <urn:alice> <urn:knows> ?x }`)
	require.NoError(t, err)
	assert.True(t, yes)

	no, err := qc.Ask(ctx, `ASK { <urn:bob> <urn:knows> ?x }`)
	require.NoError(t, err)
	assert.False(t, no)

	s, err := qc.Select(ctx, `SELECT ?x WHERE { VALUES ?p { <urn:alice> } ?p <urn:knows> ?x }`)
	require.NoError(t, err)
	rows, err := ir.Collect(ctx, s)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ir.IRI("urn:bob"), rows[0].Value("x"))
}

func TestServeHTTP_ThroughSPARQLClient(t *testing.T) {
	srv := httptest.NewServer(newEndpoint(t))
	t.Cleanup(srv.Close)

	c, err := sparqlhttp.NewConnector(sparqlhttp.Config{Endpoint: srv.URL})
	require.NoError(t, err)
	ctx := context.Background()
	conn, err := c.Connect(ctx)
	require.NoError(t, err)
	qc := conn.(member.QueryConnection)

	s, err := qc.Select(ctx, `SELECT ?p ?n WHERE { ?p <urn:name> ?n } ORDER BY ?n`)
	require.NoError(t, err)
	rows, err := ir.Collect(ctx, s)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ir.IRI("urn:alice"), rows[0].Value("p"))

	ok, err := qc.Ask(ctx, `ASK { ?p <urn:name> "Bob" }`)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = qc.Select(ctx, `SELEKT nonsense`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestServeHTTP_RequestForms(t *testing.T) {
	srv := httptest.NewServer(newEndpoint(t))
	t.Cleanup(srv.Close)
	query := `SELECT ?n WHERE { <urn:bob> <urn:name> ?n }`

	tests := []struct {
		name   string
		do     func() (*http.Response, error)
		status int
	}{
		{
			name:   "get",
			do:     func() (*http.Response, error) { return http.Get(srv.URL + "?query=" + url.QueryEscape(query)) },
			status: http.StatusOK,
		},
		{
			name: "direct post",
			do: func() (*http.Response, error) {
				return http.Post(srv.URL, "application/sparql-query", strings.NewReader(query))
			},
			status: http.StatusOK,
		},
		{
			name:   "form post",
			do:     func() (*http.Response, error) { return http.PostForm(srv.URL, url.Values{"query": {query}}) },
			status: http.StatusOK,
		},
		{
			name:   "missing query",
			do:     func() (*http.Response, error) { return http.Get(srv.URL) },
			status: http.StatusBadRequest,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := tc.do()
			require.NoError(t, err)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			require.Equal(t, tc.status, resp.StatusCode, string(body))
			if tc.status == http.StatusOK {
				assert.Equal(t, sparqlhttp.ContentType, resp.Header.Get("Content-Type"))
				assert.JSONEq(t, `{"head":{"vars":["n"]},"results":{"bindings":[{"n":{"type":"literal","value":"Bob"}}]}}`, string(body))
			}
		})
	}
}
