// Package rest is a federation member backed by a JSON-over-HTTP service
// described by a member.Descriptor. It serves service calls, keyword
// searches, and batched aggregate (rank) requests.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/member"
)

// PropertyParam is the query parameter carrying keyword search predicates.
const PropertyParam = "property"

// Config configures a REST member.
type Config struct {
	Endpoint   string
	Descriptor *member.Descriptor
	// Bearer is an optional token, possibly a secret lookup.
	Bearer  string
	Secrets member.Resolver
	Client  *http.Client
	Logger  *slog.Logger
}

// Connector opens connections to one REST service.
type Connector struct {
	cfg Config
}

// NewConnector validates cfg and returns a connector.
func NewConnector(cfg Config) (*Connector, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint URL %q", cfg.Endpoint)
	}
	if cfg.Descriptor == nil {
		cfg.Descriptor = &member.Descriptor{}
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Connector{cfg: cfg}, nil
}

// Connect returns a connection with resolved credentials.
func (c *Connector) Connect(ctx context.Context) (member.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn := &Conn{cfg: c.cfg}
	if c.cfg.Bearer != "" {
		token, ok := member.ResolveOrFallback(c.cfg.Secrets, c.cfg.Bearer, c.cfg.Logger)
		if !ok {
			return nil, fmt.Errorf("bearer token %s could not be resolved", c.cfg.Bearer)
		}
		conn.token = token
	}
	return conn, nil
}

// Conn is a connection to a REST service.
type Conn struct {
	cfg   Config
	token string
}

var (
	_ member.ServiceConnection   = (*Conn)(nil)
	_ member.AggregateConnection = (*Conn)(nil)
)

// Close is a no-op.
func (c *Conn) Close() error { return nil }

// Call sends one GET request with the inputs as query parameters and maps
// each result object to a row of output parameters. Unbound inputs take
// their default; an input with neither is an error.
func (c *Conn) Call(ctx context.Context, req member.Request) ([]ir.BindingSet, error) {
	d := c.cfg.Descriptor
	q := url.Values{}
	for _, p := range d.Inputs {
		v, ok := req.Inputs[p.Name]
		if !ok || v == nil {
			v = p.Default
		}
		if v == nil {
			return nil, fmt.Errorf("input %s is not bound and has no default", p.Name)
		}
		q.Set(fieldName(p), lexical(v))
	}
	for _, prop := range req.Properties {
		q.Add(PropertyParam, string(prop))
	}

	u := c.cfg.Endpoint
	if len(q) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + q.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	items, err := resultItems(body, d.ResultPath)
	if err != nil {
		return nil, err
	}
	rows := make([]ir.BindingSet, 0, len(items))
	for _, item := range items {
		var row ir.BindingSet
		for _, p := range d.Outputs {
			raw, ok := lookup(item, fieldName(p))
			if !ok {
				continue
			}
			if t := toTerm(raw, p.ValueType); t != nil {
				row = row.With(p.Name, t)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Aggregate posts {"values": [...]} and expects one result per value, in
// order, at the descriptor's result path. Results take the type of the
// first output parameter.
func (c *Conn) Aggregate(ctx context.Context, values []ir.Term) ([]ir.Term, error) {
	in := make([]string, len(values))
	for i, v := range values {
		in[i] = lexical(v)
	}
	payload, err := json.Marshal(map[string][]string{"values": in})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	body, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	items, err := resultItems(body, c.cfg.Descriptor.ResultPath)
	if err != nil {
		return nil, err
	}
	if len(items) != len(values) {
		return nil, fmt.Errorf("aggregate returned %d results for %d values", len(items), len(values))
	}
	var vt ir.IRI
	if outs := c.cfg.Descriptor.Outputs; len(outs) > 0 {
		vt = outs[0].ValueType
	}
	out := make([]ir.Term, len(items))
	for i, item := range items {
		out[i] = toTerm(item, vt)
	}
	return out, nil
}

func (c *Conn) do(req *http.Request) (any, error) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.cfg.Logger.Debug("rest request", "method", req.Method, "url", req.URL.Redacted())

	resp, err := c.cfg.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%s returned %s: %s", c.cfg.Endpoint, resp.Status, strings.TrimSpace(string(msg)))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", c.cfg.Endpoint, err)
	}
	return body, nil
}

func fieldName(p member.Parameter) string {
	if p.Path != "" {
		return p.Path
	}
	return p.Name
}

func lexical(t ir.Term) string {
	switch v := t.(type) {
	case ir.IRI:
		return string(v)
	case ir.Literal:
		return v.Lexical
	case ir.BNode:
		return string(v)
	}
	return ""
}

// resultItems returns the array at path, or the value itself wrapped in a
// slice when it is not an array.
func resultItems(body any, path string) ([]any, error) {
	v, ok := lookup(body, path)
	if !ok {
		return nil, fmt.Errorf("response has no %q", path)
	}
	switch x := v.(type) {
	case []any:
		return x, nil
	case nil:
		return nil, nil
	}
	return []any{v}, nil
}

// lookup follows a dotted path through objects and arrays. The empty
// path is the value itself.
func lookup(v any, path string) (any, bool) {
	if path == "" {
		return v, true
	}
	for _, key := range strings.Split(path, ".") {
		switch x := v.(type) {
		case map[string]any:
			next, ok := x[key]
			if !ok {
				return nil, false
			}
			v = next
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(x) {
				return nil, false
			}
			v = x[i]
		default:
			return nil, false
		}
	}
	return v, true
}

// toTerm converts a decoded JSON value to a term of the given type. Nil
// yields nil (unbound).
func toTerm(v any, valueType ir.IRI) ir.Term {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		if valueType == member.XSDAnyURI {
			return ir.IRI(x)
		}
		return ir.NewTyped(x, valueType)
	case json.Number:
		if valueType == "" {
			if _, err := x.Int64(); err == nil {
				valueType = ir.XSDInteger
			} else {
				valueType = ir.XSDDecimal
			}
		}
		return ir.NewTyped(x.String(), valueType)
	case bool:
		return ir.NewBool(x)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return ir.NewString(string(raw))
}
