package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/fedq/internal/algebra"
	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/member"
)

// Members is the part of the federation member registry the engine
// consumes. *member.Registry implements it.
type Members interface {
	Resolve(ref string) (member.Handle, error)
	Default() (member.Handle, bool)
	Connect(ctx context.Context, h member.Handle) (member.Connection, error)
	Capabilities(h member.Handle) (*member.Descriptor, bool)
}

// Engine defaults.
const (
	// DefaultBatchSize is the number of left-hand rows sent in one
	// bound-join request.
	DefaultBatchSize = 10

	// DefaultParallelism is the number of tasks one join step runs at
	// once.
	DefaultParallelism = 8

	// DefaultQueueSize is the number of row blocks buffered between the
	// producer tasks of an operator and its consumer.
	DefaultQueueSize = 64
)

// Dataset is the graph context of an evaluation.
type Dataset struct {
	// DefaultGraph restricts patterns outside GRAPH blocks to one graph.
	// Nil matches every graph of the default member.
	DefaultGraph ir.Term
}

// Engine evaluates optimized algebra trees against federation members.
//
// Evaluation is lazy: Evaluate returns a stream whose rows are computed
// as they are pulled. N-ary join steps and union branches run as
// background tasks that push row blocks into bounded queues; closing the
// returned stream cancels every task and waits for their member
// connections to be released.
//
// Thread-safety model:
//   - Evaluate(): safe from any goroutine once the tree is no longer
//     mutated; the engine only reads the tree
//   - Streams: a stream is consumed by one goroutine at a time
type Engine struct {
	members     Members
	batchSize   int
	parallelism int
	queueSize   int
	logger      *slog.Logger
	metrics     *Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithBatchSize sets the number of left-hand rows per bound-join request.
//
// Default: 10 (DefaultBatchSize). Values below 1 are ignored.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithParallelism sets the number of concurrent tasks per join step.
//
// Default: 8 (DefaultParallelism). Values below 1 are ignored.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// WithQueueSize sets the number of row blocks buffered per operator.
//
// Default: 64 (DefaultQueueSize). Values below 1 are ignored.
func WithQueueSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records member dispatches on m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an Engine evaluating against members.
func New(members Members, opts ...Option) *Engine {
	e := &Engine{
		members:     members,
		batchSize:   DefaultBatchSize,
		parallelism: DefaultParallelism,
		queueSize:   DefaultQueueSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// With returns a copy of e with opts applied on top of its configuration.
func (e *Engine) With(opts ...Option) *Engine {
	c := *e
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// BatchSize returns the bound-join batch size.
func (e *Engine) BatchSize() int { return e.batchSize }

// env is the evaluation context shared by a subtree.
type env struct {
	// source answers plain triple patterns: the default member at the
	// top, the owner inside a locally evaluated owned subtree.
	source member.Handle
	graph  ir.Term
}

// Evaluate starts evaluating root with the initial binding set bindings
// and returns the stream of solutions. ctx bounds the whole evaluation
// and must stay live while the stream is consumed; cancelling it aborts
// every running task.
//
// An ASK root yields one empty row when the pattern has a solution and
// no row otherwise; use Ask for the boolean.
func (e *Engine) Evaluate(ctx context.Context, root *algebra.Root, bindings ir.BindingSet, ds Dataset) (ir.Stream, error) {
	if root == nil || root.Arg == nil {
		return nil, &algebra.StructureError{Node: algebra.KindRoot, Message: "nothing to evaluate"}
	}
	ev := env{graph: ds.DefaultGraph}
	if h, ok := e.members.Default(); ok {
		ev.source = h
	}
	if root.Form == algebra.FormAsk {
		s, err := e.eval(ctx, ev, algebra.NewSlice(root.Arg.Clone(), 0, 1), bindings)
		if err != nil {
			return nil, err
		}
		return ir.MapStream(s, func(ir.BindingSet) (ir.BindingSet, bool, error) {
			return ir.BindingSet{}, true, nil
		}), nil
	}
	return e.eval(ctx, ev, root.Arg, bindings)
}

// Ask evaluates root and reports whether it has at least one solution.
func (e *Engine) Ask(ctx context.Context, root *algebra.Root, bindings ir.BindingSet, ds Dataset) (bool, error) {
	s, err := e.Evaluate(ctx, root, bindings, ds)
	if err != nil {
		return false, err
	}
	defer s.Close()
	_, ok, err := s.Next(ctx)
	return ok, err
}

// eval dispatches on the node kind. in is the row the node is evaluated
// against; every produced row extends it.
func (e *Engine) eval(ctx context.Context, ev env, n algebra.Node, in ir.BindingSet) (ir.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch x := n.(type) {
	case *algebra.Root:
		return e.eval(ctx, ev, x.Arg, in)
	case *algebra.Pattern:
		return e.evalPattern(ctx, ev, x, in)
	case *algebra.NaryJoin:
		return e.evalJoin(ctx, ev, x.Args, in)
	case *algebra.Join:
		return e.evalJoin(ctx, ev, []algebra.Node{x.Left, x.Right}, in)
	case *algebra.LeftJoin:
		return e.evalLeftJoin(ctx, ev, x, in)
	case *algebra.Union:
		return e.evalUnion(ctx, ev, x, in)
	case *algebra.Projection:
		return e.evalProjection(ctx, ev, x, in)
	case *algebra.Filter:
		return e.evalFilter(ctx, ev, x, in)
	case *algebra.Extension:
		return e.evalExtension(ctx, ev, x, in)
	case *algebra.Order:
		return e.evalOrder(ctx, ev, x, in)
	case *algebra.Slice:
		return e.evalSlice(ctx, ev, x, in)
	case *algebra.Distinct:
		return e.evalDistinct(ctx, ev, x, in)
	case *algebra.Values:
		return evalValues(x, in), nil
	case *algebra.Empty:
		return ir.EmptyStream(), nil
	case *algebra.Singleton:
		return ir.NewSliceStream(in), nil
	case *algebra.Owned:
		return e.evalOwned(ctx, ev, x, in)
	case *algebra.Service:
		return e.evalService(ctx, ev, x, in)
	case *algebra.ServiceCall:
		return e.evalServiceCall(ctx, x, in)
	case *algebra.KeywordSearch:
		return e.evalKeywordSearch(ctx, x, in)
	case *algebra.Rank:
		return e.evalRank(ctx, ev, x, in)
	}
	return nil, &algebra.StructureError{Node: n.Kind(), Message: fmt.Sprintf("cannot evaluate %T", n)}
}
