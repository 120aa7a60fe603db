// Package sparqlhttp is a federation member backed by a remote SPARQL
// endpoint reached over the SPARQL 1.1 protocol.
package sparqlhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/member"
)

// Auth holds endpoint credentials. Each field may be a secret lookup
// (`${name:fallback}`) resolved when a connection is opened.
type Auth struct {
	Bearer   string
	Username string
	Password string
}

// Config configures a remote endpoint member.
type Config struct {
	Endpoint string
	Auth     Auth
	Secrets  member.Resolver
	Client   *http.Client
	Logger   *slog.Logger
}

// Connector opens connections to one endpoint.
type Connector struct {
	cfg Config
}

// NewConnector validates cfg and returns a connector.
func NewConnector(cfg Config) (*Connector, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint URL %q", cfg.Endpoint)
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Connector{cfg: cfg}, nil
}

// Connect resolves credentials and returns a connection. No request is
// made until the first query.
func (c *Connector) Connect(ctx context.Context) (member.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn := &Conn{endpoint: c.cfg.Endpoint, client: c.cfg.Client, logger: c.cfg.Logger}

	a := c.cfg.Auth
	if a.Bearer != "" {
		token, ok := member.ResolveOrFallback(c.cfg.Secrets, a.Bearer, c.cfg.Logger)
		if !ok {
			return nil, fmt.Errorf("bearer token %s could not be resolved", a.Bearer)
		}
		conn.authorize = func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
	} else if a.Username != "" {
		user, _ := member.ResolveOrFallback(c.cfg.Secrets, a.Username, c.cfg.Logger)
		pass, ok := member.ResolveOrFallback(c.cfg.Secrets, a.Password, c.cfg.Logger)
		if !ok {
			return nil, fmt.Errorf("password for %s could not be resolved", user)
		}
		conn.authorize = func(r *http.Request) { r.SetBasicAuth(user, pass) }
	}
	return conn, nil
}

// Conn is a connection to a remote endpoint.
type Conn struct {
	endpoint  string
	client    *http.Client
	logger    *slog.Logger
	authorize func(*http.Request)
}

var _ member.QueryConnection = (*Conn)(nil)

// Select posts a SELECT query and streams the solutions as the response
// body is read. Closing the stream closes the body.
func (c *Conn) Select(ctx context.Context, query string) (ir.Stream, error) {
	resp, err := c.post(ctx, query)
	if err != nil {
		return nil, err
	}
	s, err := newResultStream(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.endpoint, err)
	}
	return s, nil
}

// Ask posts an ASK query.
func (c *Conn) Ask(ctx context.Context, query string) (bool, error) {
	resp, err := c.post(ctx, query)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	var res Results
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return false, fmt.Errorf("%s: decode boolean result: %w", c.endpoint, err)
	}
	if res.Boolean == nil {
		return false, fmt.Errorf("%s: response has no boolean", c.endpoint)
	}
	return *res.Boolean, nil
}

// Close is a no-op; HTTP connections are pooled by the client.
func (c *Conn) Close() error { return nil }

func (c *Conn) post(ctx context.Context, query string) (*http.Response, error) {
	form := url.Values{"query": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", ContentType)
	if c.authorize != nil {
		c.authorize(req)
	}

	c.logger.Debug("sparql request", "endpoint", c.endpoint, "query_hash", ir.QueryHash(query))
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%s returned %s: %s", c.endpoint, resp.Status, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}
