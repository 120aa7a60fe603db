// Package federation is the query entry point: it optimizes a parsed
// tree against the member registry and evaluates it with the engine.
package federation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/fedq/internal/algebra"
	"github.com/roach88/fedq/internal/engine"
	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/member"
	"github.com/roach88/fedq/internal/optimizer"
	"github.com/roach88/fedq/internal/sparql"
)

// Federation answers queries over the members of one registry.
//
// Thread-safety: Query and Explain may be called concurrently. Each call
// works on its own tree; callers must not reuse a tree after handing it
// to Query.
type Federation struct {
	members  *member.Registry
	pipeline *optimizer.Pipeline
	engine   *engine.Engine
	ids      IDGenerator
	logger   *slog.Logger
}

// Option configures a Federation.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	ids        IDGenerator
	registerer prometheus.Registerer
	engineOpts []engine.Option
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithIDGenerator sets the query id generator.
//
// Default: UUIDv7Generator. Tests use a fixed generator for stable logs.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) {
		o.ids = g
	}
}

// WithRegisterer registers engine metrics on r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = r
	}
}

// WithEngineOptions passes options such as engine.WithBatchSize to the
// evaluation engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, opts...)
	}
}

// New creates a federation over members.
func New(members *member.Registry, opts ...Option) *Federation {
	o := options{logger: slog.Default(), ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(&o)
	}
	engineOpts := []engine.Option{engine.WithLogger(o.logger)}
	if m := engine.NewMetrics(o.registerer); m != nil {
		engineOpts = append(engineOpts, engine.WithMetrics(m))
	}
	engineOpts = append(engineOpts, o.engineOpts...)

	return &Federation{
		members:  members,
		pipeline: optimizer.NewPipeline(members, optimizer.WithLogger(o.logger)),
		engine:   engine.New(members, engineOpts...),
		ids:      o.ids,
		logger:   o.logger,
	}
}

// Members returns the registry the federation queries.
func (f *Federation) Members() *member.Registry { return f.members }

// Parse parses SPARQL text into an unoptimized tree.
func (f *Federation) Parse(query string) (*algebra.Root, error) {
	return sparql.Parse(query)
}

// Optimize runs the optimizer pipeline over root in place.
func (f *Federation) Optimize(root *algebra.Root) error {
	return f.pipeline.Optimize(root)
}

// Explain optimizes root and returns the rewritten tree in indented form.
func (f *Federation) Explain(root *algebra.Root) (string, error) {
	if err := f.pipeline.Optimize(root); err != nil {
		return "", err
	}
	return algebra.Format(root), nil
}

// Query optimizes root and starts evaluating it with the initial
// bindings. The returned Result streams the solutions and must be
// closed.
func (f *Federation) Query(ctx context.Context, root *algebra.Root, bindings ir.BindingSet, ds engine.Dataset) (*Result, error) {
	id := f.ids.Generate()
	logger := f.logger.With("query_id", id)
	start := time.Now()

	if err := f.pipeline.Optimize(root); err != nil {
		logger.Error("query optimization failed", "error", err)
		return nil, fmt.Errorf("query %s: %w", id, err)
	}
	logger.Info("query started", "form", formName(root.Form), "batch_size", f.engine.BatchSize())
	logger.Debug("optimized tree", "tree", algebra.Format(root))

	s, err := f.engine.With(engine.WithLogger(logger)).Evaluate(ctx, root, bindings, ds)
	if err != nil {
		logger.Error("query failed", "error", err)
		return nil, fmt.Errorf("query %s: %w", id, err)
	}
	return &Result{
		ID:     id,
		Form:   root.Form,
		Vars:   algebra.ResultNames(root),
		stream: s,
		logger: logger,
		start:  start,
	}, nil
}

// QueryString parses query and runs it like Query.
func (f *Federation) QueryString(ctx context.Context, query string, bindings ir.BindingSet, ds engine.Dataset) (*Result, error) {
	root, err := sparql.Parse(query)
	if err != nil {
		return nil, err
	}
	return f.Query(ctx, root, bindings, ds)
}

// Ask runs an ASK tree and reports whether it has a solution.
func (f *Federation) Ask(ctx context.Context, root *algebra.Root, bindings ir.BindingSet, ds engine.Dataset) (bool, error) {
	res, err := f.Query(ctx, root, bindings, ds)
	if err != nil {
		return false, err
	}
	defer res.Close()
	_, ok, err := res.Next(ctx)
	return ok, err
}

func formName(f algebra.QueryForm) string {
	if f == algebra.FormAsk {
		return "ask"
	}
	return "select"
}

// Result is a running query. It implements ir.Stream; Close logs the
// outcome under the query id.
type Result struct {
	ID   string
	Form algebra.QueryForm
	// Vars are the result variables in projection order.
	Vars []string

	stream ir.Stream
	logger *slog.Logger
	start  time.Time
	rows   int
	err    error
	once   sync.Once
}

// Next implements ir.Stream.
func (r *Result) Next(ctx context.Context) (ir.BindingSet, bool, error) {
	row, ok, err := r.stream.Next(ctx)
	if err != nil && r.err == nil {
		r.err = err
	}
	if ok {
		r.rows++
	}
	return row, ok, err
}

// Close implements ir.Stream.
func (r *Result) Close() error {
	var err error
	r.once.Do(func() {
		err = r.stream.Close()
		elapsed := time.Since(r.start)
		if r.err != nil {
			r.logger.Error("query failed",
				"rows", r.rows,
				"duration", elapsed,
				"error", r.err)
			return
		}
		r.logger.Info("query finished",
			"rows", r.rows,
			"duration", elapsed)
	})
	return err
}
