// Package endpoint answers SPARQL text over a single triple source, either
// in process as a federation member or over the SPARQL 1.1 protocol.
//
// An Endpoint parses each query, runs the optimizer pipeline against a
// registry holding only its source, and evaluates the result. Wrapping a
// local store in an Endpoint turns it into a member that accepts query
// text, so owned subtrees are dispatched to it as rendered SPARQL and
// bound joins batch over it the same way they do over a remote endpoint.
package endpoint

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/fedq/internal/algebra"
	"github.com/roach88/fedq/internal/engine"
	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/member"
	"github.com/roach88/fedq/internal/optimizer"
	"github.com/roach88/fedq/internal/sparql"
)

// Endpoint evaluates SPARQL queries against one triple source.
//
// Thread-safety: Each query gets its own tree, so an Endpoint serves
// concurrent queries.
type Endpoint struct {
	id       string
	members  *member.Registry
	pipeline *optimizer.Pipeline
	engine   *engine.Engine
	logger   *slog.Logger
}

// Option configures an Endpoint.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	engineOpts []engine.Option
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithEngineOptions passes options to the endpoint's evaluation engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, opts...)
	}
}

// New creates an endpoint named id over src, whose connections must
// implement member.TripleConnection.
func New(id string, src member.Connector, opts ...Option) (*Endpoint, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	reg := member.NewRegistry(member.WithRegistryLogger(o.logger))
	if err := reg.Register(member.Handle{ID: id, Kind: member.KindLocal}, src, nil); err != nil {
		return nil, fmt.Errorf("endpoint %s: %w", id, err)
	}
	return &Endpoint{
		id:       id,
		members:  reg,
		pipeline: optimizer.NewPipeline(reg, optimizer.WithLogger(o.logger)),
		engine:   engine.New(reg, append([]engine.Option{engine.WithLogger(o.logger)}, o.engineOpts...)...),
		logger:   o.logger,
	}, nil
}

// ID returns the endpoint's name.
func (e *Endpoint) ID() string { return e.id }

// Prepare parses and optimizes query.
func (e *Endpoint) Prepare(query string) (*algebra.Root, error) {
	root, err := sparql.Parse(query)
	if err != nil {
		return nil, err
	}
	if err := e.pipeline.Optimize(root); err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}
	return root, nil
}

// Select evaluates a SELECT query and returns its solutions and result
// variables.
func (e *Endpoint) Select(ctx context.Context, query string) (ir.Stream, []string, error) {
	root, err := e.Prepare(query)
	if err != nil {
		return nil, nil, err
	}
	if root.Form != algebra.FormSelect {
		return nil, nil, fmt.Errorf("endpoint %s: not a SELECT query", e.id)
	}
	s, err := e.engine.Evaluate(ctx, root, ir.BindingSet{}, engine.Dataset{})
	if err != nil {
		return nil, nil, err
	}
	return s, algebra.ResultNames(root), nil
}

// Ask evaluates an ASK query.
func (e *Endpoint) Ask(ctx context.Context, query string) (bool, error) {
	root, err := e.Prepare(query)
	if err != nil {
		return false, err
	}
	if root.Form != algebra.FormAsk {
		return false, fmt.Errorf("endpoint %s: not an ASK query", e.id)
	}
	return e.engine.Ask(ctx, root, ir.BindingSet{}, engine.Dataset{})
}

// Connect implements member.Connector, making the endpoint a member that
// accepts query text.
func (e *Endpoint) Connect(ctx context.Context) (member.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Conn{endpoint: e}, nil
}

// Conn is an in-process connection to an Endpoint.
type Conn struct {
	endpoint *Endpoint
}

var _ member.QueryConnection = (*Conn)(nil)

// Select implements member.QueryConnection.
func (c *Conn) Select(ctx context.Context, query string) (ir.Stream, error) {
	s, _, err := c.endpoint.Select(ctx, query)
	return s, err
}

// Ask implements member.QueryConnection.
func (c *Conn) Ask(ctx context.Context, query string) (bool, error) {
	return c.endpoint.Ask(ctx, query)
}

// Close is a no-op.
func (c *Conn) Close() error { return nil }

// Close closes the endpoint's source if it holds resources of its own.
func (e *Endpoint) Close() error {
	return e.members.Close()
}
