package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/member"
)

func geoDescriptor() *member.Descriptor {
	return &member.Descriptor{
		Label:      "geo",
		ResultPath: "data.places",
		Inputs: []member.Parameter{
			{Name: "name", Path: "q"},
			{Name: "country", Default: ir.NewString("NL")},
		},
		Outputs: []member.Parameter{
			{Name: "place", Path: "id", ValueType: member.XSDAnyURI},
			{Name: "lat", Path: "pos.lat", ValueType: ir.XSDDecimal},
			{Name: "pop", Path: "population"},
		},
	}
}

func dial(t *testing.T, cfg Config) *Conn {
	t.Helper()
	c, err := NewConnector(cfg)
	require.NoError(t, err)
	conn, err := c.Connect(context.Background())
	require.NoError(t, err)
	return conn.(*Conn)
}

func TestCall_MapsInputsAndOutputs(t *testing.T) {
	var query map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_, _ = w.Write([]byte(`{"data": {"places": [
			{"id": "urn:place:1", "pos": {"lat": "52.37"}, "population": 905234},
			{"id": "urn:place:2", "pos": {}}
		]}}`))
	}))
	defer srv.Close()

	conn := dial(t, Config{Endpoint: srv.URL, Descriptor: geoDescriptor()})
	rows, err := conn.Call(context.Background(), member.Request{
		Inputs:     map[string]ir.Term{"name": ir.NewString("Amsterdam")},
		Properties: []ir.IRI{"urn:label"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Amsterdam"}, query["q"])
	assert.Equal(t, []string{"NL"}, query["country"], "default fills unbound input")
	assert.Equal(t, []string{"urn:label"}, query[PropertyParam])

	require.Len(t, rows, 2)
	assert.Equal(t, ir.IRI("urn:place:1"), rows[0].Value("place"))
	assert.Equal(t, ir.NewTyped("52.37", ir.XSDDecimal), rows[0].Value("lat"))
	assert.Equal(t, ir.NewInteger(905234), rows[0].Value("pop"))
	assert.False(t, rows[1].Has("lat"), "missing paths leave outputs unbound")
}

func TestCall_MissingInput(t *testing.T) {
	conn := dial(t, Config{Endpoint: "http://example.org/geo", Descriptor: geoDescriptor()})
	_, err := conn.Call(context.Background(), member.Request{})
	assert.ErrorContains(t, err, "input name is not bound")
}

func TestCall_BearerFromSecret(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"data": {"places": []}}`))
	}))
	defer srv.Close()

	conn := dial(t, Config{
		Endpoint:   srv.URL,
		Descriptor: geoDescriptor(),
		Bearer:     "${geo_key}",
		Secrets:    member.MapResolver{"geo_key": "k1"},
	})
	rows, err := conn.Call(context.Background(), member.Request{Inputs: map[string]ir.Term{"name": ir.NewString("x")}})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, "Bearer k1", auth)
}

func TestAggregate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Values []string `json:"values"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		scores := make([]float64, len(in.Values))
		for i := range in.Values {
			scores[i] = float64(len(in.Values) - i)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"scores": scores})
	}))
	defer srv.Close()

	conn := dial(t, Config{Endpoint: srv.URL, Descriptor: &member.Descriptor{
		ResultPath: "scores",
		Outputs:    []member.Parameter{{Name: "score", ValueType: ir.XSDDouble}},
	}})
	got, err := conn.Aggregate(context.Background(), []ir.Term{ir.IRI("urn:a"), ir.IRI("urn:b")})
	require.NoError(t, err)
	assert.Equal(t, []ir.Term{ir.NewTyped("2", ir.XSDDouble), ir.NewTyped("1", ir.XSDDouble)}, got)
}

func TestAggregate_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[1]`))
	}))
	defer srv.Close()

	conn := dial(t, Config{Endpoint: srv.URL})
	_, err := conn.Aggregate(context.Background(), []ir.Term{ir.IRI("urn:a"), ir.IRI("urn:b")})
	assert.ErrorContains(t, err, "1 results for 2 values")
}

func TestLookup(t *testing.T) {
	doc := map[string]any{"a": []any{map[string]any{"b": "x"}}}
	v, ok := lookup(doc, "a.0.b")
	require.True(t, ok)
	assert.Equal(t, "x", v)

	_, ok = lookup(doc, "a.1.b")
	assert.False(t, ok)
	_, ok = lookup(doc, "a.b")
	assert.False(t, ok)
}
