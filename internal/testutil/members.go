package testutil

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/member"
)

// Counter counts connections opened and closed by a mock member.
type Counter struct {
	opens     atomic.Int64
	closes    atomic.Int64
	cancelled atomic.Int64
	waiting   atomic.Int64
}

// Opens returns the number of connections opened.
func (c *Counter) Opens() int64 { return c.opens.Load() }

// Closes returns the number of connections closed.
func (c *Counter) Closes() int64 { return c.closes.Load() }

// Open returns the number of connections currently open.
func (c *Counter) Open() int64 { return c.opens.Load() - c.closes.Load() }

// Cancelled returns the number of requests or streams that observed
// context cancellation.
func (c *Counter) Cancelled() int64 { return c.cancelled.Load() }

// Waiting returns the number of blocked streams waiting for cancellation.
func (c *Counter) Waiting() int64 { return c.waiting.Load() }

// conn is the counted part of every mock connection.
type conn struct {
	counter *Counter
	once    sync.Once
}

func (c *conn) Close() error {
	c.once.Do(func() { c.counter.closes.Add(1) })
	return nil
}

func (c *Counter) open(ctx context.Context) (*conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.opens.Add(1)
	return &conn{counter: c}, nil
}

// QueryMember is a mock SPARQL member. Answer computes the solutions of
// each SELECT; AskAnswer the result of each ASK.
type QueryMember struct {
	Counter

	Answer    func(query string) ([]ir.BindingSet, error)
	AskAnswer func(query string) (bool, error)

	// Block makes every Select stream wait for its context to end after
	// serving its rows, like a member that is slow to finish.
	Block bool

	mu      sync.Mutex
	queries []string
}

var _ member.Connector = (*QueryMember)(nil)

// Connect implements member.Connector.
func (m *QueryMember) Connect(ctx context.Context) (member.Connection, error) {
	c, err := m.open(ctx)
	if err != nil {
		return nil, err
	}
	return &queryConn{conn: c, m: m}, nil
}

// Queries returns the query texts received so far.
func (m *QueryMember) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.queries)
}

func (m *QueryMember) record(q string) {
	m.mu.Lock()
	m.queries = append(m.queries, q)
	m.mu.Unlock()
}

type queryConn struct {
	*conn
	m *QueryMember
}

func (c *queryConn) Select(ctx context.Context, query string) (ir.Stream, error) {
	c.m.record(query)
	var rows []ir.BindingSet
	if c.m.Answer != nil {
		var err error
		if rows, err = c.m.Answer(query); err != nil {
			return nil, err
		}
	}
	return &mockStream{rows: rows, block: c.m.Block, counter: &c.m.Counter}, nil
}

func (c *queryConn) Ask(ctx context.Context, query string) (bool, error) {
	c.m.record(query)
	if c.m.AskAnswer == nil {
		return false, errors.New("mock member answers no ASK queries")
	}
	return c.m.AskAnswer(query)
}

// mockStream serves fixed rows, then optionally blocks until cancelled.
type mockStream struct {
	rows    []ir.BindingSet
	pos     int
	block   bool
	counter *Counter
}

func (s *mockStream) Next(ctx context.Context) (ir.BindingSet, bool, error) {
	if err := ctx.Err(); err != nil {
		s.counter.cancelled.Add(1)
		return ir.BindingSet{}, false, err
	}
	if s.pos < len(s.rows) {
		s.pos++
		return s.rows[s.pos-1], true, nil
	}
	if s.block {
		s.counter.waiting.Add(1)
		<-ctx.Done()
		s.counter.waiting.Add(-1)
		s.counter.cancelled.Add(1)
		return ir.BindingSet{}, false, ctx.Err()
	}
	return ir.BindingSet{}, false, nil
}

func (s *mockStream) Close() error { return nil }

// ServiceMember is a mock capability service. Rows answers each call.
type ServiceMember struct {
	Counter

	Rows func(req member.Request) ([]ir.BindingSet, error)

	mu       sync.Mutex
	requests []member.Request
}

var _ member.Connector = (*ServiceMember)(nil)

// Connect implements member.Connector.
func (m *ServiceMember) Connect(ctx context.Context) (member.Connection, error) {
	c, err := m.open(ctx)
	if err != nil {
		return nil, err
	}
	return &serviceConn{conn: c, m: m}, nil
}

// Requests returns the calls received so far.
func (m *ServiceMember) Requests() []member.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.requests)
}

type serviceConn struct {
	*conn
	m *ServiceMember
}

func (c *serviceConn) Call(ctx context.Context, req member.Request) ([]ir.BindingSet, error) {
	if err := ctx.Err(); err != nil {
		c.m.cancelled.Add(1)
		return nil, err
	}
	c.m.mu.Lock()
	c.m.requests = append(c.m.requests, req)
	c.m.mu.Unlock()
	return c.m.Rows(req)
}

// AggregateMember is a mock aggregate service. Rank answers each batch.
type AggregateMember struct {
	Counter

	Rank func(values []ir.Term) ([]ir.Term, error)

	batches atomic.Int64
}

var _ member.Connector = (*AggregateMember)(nil)

// Connect implements member.Connector.
func (m *AggregateMember) Connect(ctx context.Context) (member.Connection, error) {
	c, err := m.open(ctx)
	if err != nil {
		return nil, err
	}
	return &aggregateConn{conn: c, m: m}, nil
}

// Batches returns the number of Aggregate calls.
func (m *AggregateMember) Batches() int64 { return m.batches.Load() }

type aggregateConn struct {
	*conn
	m *AggregateMember
}

func (c *aggregateConn) Aggregate(ctx context.Context, values []ir.Term) ([]ir.Term, error) {
	c.m.batches.Add(1)
	return c.m.Rank(values)
}
