package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/fedq/internal/algebra"
	"github.com/roach88/fedq/internal/endpoint"
	"github.com/roach88/fedq/internal/engine"
	"github.com/roach88/fedq/internal/federation"
	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/member"
	"github.com/roach88/fedq/internal/store"
	"github.com/roach88/fedq/internal/testutil"
)

// Option configures a scenario run.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger routes the federation's logs to l. Runs are silent by
// default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Harness holds the federation built for one scenario.
type Harness struct {
	fed     *federation.Federation
	members *member.Registry
	counts  map[string]*dispatchCounter
	closers []io.Closer
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each run builds fresh in-memory member stores, so scenarios never
// observe each other's data. Execution flow:
// 1. Load every member's data
// 2. Build the registry and the federation
// 3. Optimize the query and record the plan
// 4. Evaluate and collect the solutions
// 5. Check the expectation and the assertions
//
// An error is returned only when the scenario cannot be run; a failing
// query is reported in Result.QueryError.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	h, err := build(ctx, scenario, o.logger)
	if err != nil {
		return nil, err
	}
	defer h.close()

	bindings, err := initialBindings(scenario.Bindings)
	if err != nil {
		return nil, err
	}

	root, err := h.fed.Parse(scenario.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse query: %w", err)
	}
	result := NewResult()
	if result.Plan, err = h.fed.Explain(root); err != nil {
		return nil, fmt.Errorf("failed to optimize query: %w", err)
	}

	// Explain consumed root; evaluation starts from a fresh parse.
	solutions, err := h.execute(ctx, scenario.Query, bindings, result)
	if err != nil {
		return nil, err
	}
	for id, c := range h.counts {
		result.Dispatches[id] = c.count()
	}

	for _, msg := range checkExpectation(scenario.Expect, result, solutions) {
		result.AddError(msg)
	}
	for _, msg := range EvaluateAssertions(result, solutions, scenario.Assertions) {
		result.AddError(msg)
	}

	h.logger.Info("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"rows", len(result.Rows))
	return result, nil
}

// build loads the members of scenario and wires them into a federation.
func build(ctx context.Context, scenario *Scenario, logger *slog.Logger) (*Harness, error) {
	h := &Harness{
		members: member.NewRegistry(member.WithRegistryLogger(logger)),
		counts:  make(map[string]*dispatchCounter),
		logger:  logger,
	}

	for _, spec := range scenario.Members {
		conn, kind, err := h.connector(ctx, spec)
		if err != nil {
			h.close()
			return nil, fmt.Errorf("member %s: %w", spec.ID, err)
		}
		ref := spec.Ref
		if ref == "" {
			ref = spec.ID
		}
		counter := &dispatchCounter{inner: conn}
		h.counts[spec.ID] = counter
		if err := h.members.Register(member.Handle{ID: spec.ID, Ref: ref, Kind: kind}, counter, nil); err != nil {
			h.close()
			return nil, fmt.Errorf("member %s: %w", spec.ID, err)
		}
	}

	def := scenario.Default
	if def == "" {
		def = scenario.Members[0].ID
	}
	if err := h.members.SetDefault(def); err != nil {
		h.close()
		return nil, err
	}

	fedOpts := []federation.Option{
		federation.WithLogger(logger),
		federation.WithIDGenerator(testutil.NewFixedIDGenerator(scenario.QueryID)),
	}
	if scenario.BatchSize > 0 {
		fedOpts = append(fedOpts, federation.WithEngineOptions(engine.WithBatchSize(scenario.BatchSize)))
	}
	h.fed = federation.New(h.members, fedOpts...)
	return h, nil
}

// connector opens the store behind spec and returns the connector the
// registry should hold for it.
func (h *Harness) connector(ctx context.Context, spec MemberSpec) (member.Connector, member.Kind, error) {
	kind := member.Kind(spec.Kind)
	if kind == "" {
		kind = member.KindLocal
	}
	if spec.Refuse != "" {
		refusal := errors.New(spec.Refuse)
		return member.ConnectorFunc(func(context.Context) (member.Connection, error) {
			return nil, refusal
		}), kind, nil
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create in-memory store: %w", err)
	}
	if spec.Data != "" {
		if _, err := st.LoadNTriples(ctx, strings.NewReader(spec.Data), spec.ID, nil); err != nil {
			st.Close()
			return nil, "", err
		}
	}

	if kind != member.KindSPARQL {
		h.closers = append(h.closers, st)
		return st, member.KindLocal, nil
	}
	// Closing the endpoint closes its store.
	ep, err := endpoint.New(spec.ID, st, endpoint.WithLogger(h.logger))
	if err != nil {
		st.Close()
		return nil, "", err
	}
	h.closers = append(h.closers, ep)
	return ep, member.KindSPARQL, nil
}

// execute runs query and records its solutions in result.
func (h *Harness) execute(ctx context.Context, query string, bindings ir.BindingSet, result *Result) ([]ir.BindingSet, error) {
	root, err := h.fed.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse query: %w", err)
	}
	res, err := h.fed.Query(ctx, root, bindings, engine.Dataset{})
	if err != nil {
		result.QueryError = err.Error()
		return nil, nil
	}
	defer res.Close()

	result.Vars = res.Vars
	var solutions []ir.BindingSet
	for {
		row, ok, err := res.Next(ctx)
		if err != nil {
			result.QueryError = err.Error()
			return solutions, nil
		}
		if !ok {
			break
		}
		solutions = append(solutions, row)
		result.Rows = append(result.Rows, toRow(row))
	}

	if res.Form == algebra.FormAsk {
		answer := len(solutions) > 0
		result.Ask = &answer
	}
	return solutions, nil
}

func (h *Harness) close() {
	for _, c := range h.closers {
		if err := c.Close(); err != nil {
			h.logger.Warn("failed to close member", "error", err)
		}
	}
}

// initialBindings parses the scenario's initial bindings.
func initialBindings(raw map[string]string) (ir.BindingSet, error) {
	var pairs []ir.Binding
	for _, name := range slices.Sorted(maps.Keys(raw)) {
		term, err := ir.ParseTerm(raw[name])
		if err != nil {
			return ir.BindingSet{}, fmt.Errorf("binding %s: %w", name, err)
		}
		pairs = append(pairs, ir.B(name, term))
	}
	return ir.NewBindingSet(pairs...), nil
}

func toRow(bs ir.BindingSet) Row {
	row := make(Row, bs.Len())
	for _, name := range bs.Names() {
		row[name] = bs.Value(name).String()
	}
	return row
}

// dispatchCounter counts the requests sent over the connections of one
// member: query texts for query members, pattern lookups for triple
// sources.
type dispatchCounter struct {
	inner member.Connector
	mu    sync.Mutex
	n     int
}

func (c *dispatchCounter) Connect(ctx context.Context) (member.Connection, error) {
	conn, err := c.inner.Connect(ctx)
	if err != nil {
		return nil, err
	}
	switch conn := conn.(type) {
	case member.QueryConnection:
		return &countedQuery{QueryConnection: conn, counter: c}, nil
	case member.TripleConnection:
		return &countedTriples{TripleConnection: conn, counter: c}, nil
	}
	return conn, nil
}

func (c *dispatchCounter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *dispatchCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type countedQuery struct {
	member.QueryConnection
	counter *dispatchCounter
}

func (c *countedQuery) Select(ctx context.Context, query string) (ir.Stream, error) {
	c.counter.inc()
	return c.QueryConnection.Select(ctx, query)
}

func (c *countedQuery) Ask(ctx context.Context, query string) (bool, error) {
	c.counter.inc()
	return c.QueryConnection.Ask(ctx, query)
}

type countedTriples struct {
	member.TripleConnection
	counter *dispatchCounter
}

func (c *countedTriples) Match(ctx context.Context, s, p, o, g ir.Term) ([]ir.Triple, error) {
	c.counter.inc()
	return c.TripleConnection.Match(ctx, s, p, o, g)
}
