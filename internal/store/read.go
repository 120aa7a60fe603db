package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/member"
)

// Match returns the quads matching a pattern. Nil terms are wildcards; a
// nil graph matches every graph including the default one.
// Results are ordered by insertion: ORDER BY seq ASC.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) Match(ctx context.Context, subj, pred, obj, graph ir.Term) ([]ir.Triple, error) {
	var where []string
	var args []any
	for _, c := range []struct {
		col  string
		term ir.Term
	}{{"s", subj}, {"p", pred}, {"o", obj}, {"g", graph}} {
		if c.term == nil {
			continue
		}
		v, err := marshalTerm(c.term)
		if err != nil {
			return nil, fmt.Errorf("match: %w", err)
		}
		where = append(where, c.col+" = ?")
		args = append(args, v)
	}

	query := "SELECT s, p, o, g FROM triples"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query triples: %w", err)
	}
	defer rows.Close()

	out := []ir.Triple{}
	for rows.Next() {
		var sv, pv, ov, gv string
		if err := rows.Scan(&sv, &pv, &ov, &gv); err != nil {
			return nil, fmt.Errorf("scan triple: %w", err)
		}
		t, err := unmarshalTriple(sv, pv, ov, gv)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate triples: %w", err)
	}
	return out, nil
}

// Graphs returns the named graphs in the store, sorted.
func (s *Store) Graphs(ctx context.Context) ([]ir.Term, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT g FROM triples WHERE g != '' ORDER BY g COLLATE BINARY ASC")
	if err != nil {
		return nil, fmt.Errorf("query graphs: %w", err)
	}
	defer rows.Close()

	out := []ir.Term{}
	for rows.Next() {
		var gv string
		if err := rows.Scan(&gv); err != nil {
			return nil, fmt.Errorf("scan graph: %w", err)
		}
		g, err := unmarshalTerm(gv)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func unmarshalTriple(sv, pv, ov, gv string) (ir.Triple, error) {
	var t ir.Triple
	var err error
	if t.Subject, err = unmarshalTerm(sv); err != nil {
		return t, err
	}
	if t.Predicate, err = unmarshalTerm(pv); err != nil {
		return t, err
	}
	if t.Object, err = unmarshalTerm(ov); err != nil {
		return t, err
	}
	if t.Graph, err = unmarshalGraph(gv); err != nil {
		return t, err
	}
	return t, nil
}

// Connect implements member.Connector. Connections share the store's
// database handle; closing one does not close the store.
func (s *Store) Connect(ctx context.Context) (member.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.db == nil {
		return nil, fmt.Errorf("store is closed")
	}
	return &Conn{store: s}, nil
}

// Conn is a connection to the local store.
type Conn struct {
	store *Store
}

var _ member.TripleConnection = (*Conn)(nil)

// Match implements member.TripleConnection.
func (c *Conn) Match(ctx context.Context, s, p, o, g ir.Term) ([]ir.Triple, error) {
	return c.store.Match(ctx, s, p, o, g)
}

// Close implements member.Connection.
func (c *Conn) Close() error { return nil }
