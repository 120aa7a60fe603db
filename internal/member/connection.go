package member

import (
	"context"

	"github.com/roach88/fedq/internal/ir"
)

// Kind names the type of data source behind a member.
type Kind string

const (
	KindLocal     Kind = "local"
	KindSPARQL    Kind = "sparql"
	KindREST      Kind = "rest"
	KindKeyword   Kind = "keyword"
	KindAggregate Kind = "aggregate"
)

// Handle identifies a registered member.
type Handle struct {
	// ID is the short name used in configuration and in Owned nodes.
	ID string
	// Ref is the IRI written in SERVICE <ref> blocks.
	Ref  string
	Kind Kind
}

// Connection is an open session with a member.
type Connection interface {
	Close() error
}

// QueryConnection evaluates SPARQL query text.
type QueryConnection interface {
	Connection
	// Select runs a SELECT query and streams its solutions.
	Select(ctx context.Context, query string) (ir.Stream, error)
	// Ask runs an ASK query.
	Ask(ctx context.Context, query string) (bool, error)
}

// TripleConnection matches a single triple pattern. Nil terms are
// wildcards; a nil graph matches every graph.
type TripleConnection interface {
	Connection
	Match(ctx context.Context, s, p, o, g ir.Term) ([]ir.Triple, error)
}

// Request is one call of a described service.
type Request struct {
	// Inputs maps input parameter names to values.
	Inputs map[string]ir.Term
	// Properties restricts a keyword search to these predicates.
	Properties []ir.IRI
}

// ServiceConnection calls a service described by a Descriptor. Each
// returned row binds output parameter names.
type ServiceConnection interface {
	Connection
	Call(ctx context.Context, req Request) ([]ir.BindingSet, error)
}

// AggregateConnection ranks a batch of values in one request and returns
// one result per input value, in input order.
type AggregateConnection interface {
	Connection
	Aggregate(ctx context.Context, values []ir.Term) ([]ir.Term, error)
}

// Connector opens connections to one member.
type Connector interface {
	Connect(ctx context.Context) (Connection, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Connection, error)

// Connect calls f(ctx).
func (f ConnectorFunc) Connect(ctx context.Context) (Connection, error) { return f(ctx) }
