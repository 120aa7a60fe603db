package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/fedq/internal/ir"
)

// Insert adds quads in one transaction. A nil Graph targets the default
// graph. Uses INSERT ... ON CONFLICT DO NOTHING for idempotency -
// duplicate quads are silently ignored. Returns the number of new quads.
func (s *Store) Insert(ctx context.Context, triples ...ir.Triple) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("insert: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO triples (s, p, o, g)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("insert: prepare: %w", err)
	}
	defer stmt.Close()

	added := 0
	for _, t := range triples {
		row, err := marshalTriple(t)
		if err != nil {
			return 0, fmt.Errorf("insert: %w", err)
		}
		res, err := stmt.ExecContext(ctx, row[0], row[1], row[2], row[3])
		if err != nil {
			return 0, fmt.Errorf("insert: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert: %w", err)
		}
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("insert: commit: %w", err)
	}
	return added, nil
}

// LoadNTriples reads N-Triples or N-Quads from r and inserts them. When
// graph is non-nil it overrides the graph of every line. source names the
// input in the loads table and in error messages.
func (s *Store) LoadNTriples(ctx context.Context, r io.Reader, source string, graph ir.Term) (int, error) {
	var batch []ir.Triple
	qr := newQuadReader(r)
	for {
		t, err := qr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", source, err)
		}
		if graph != nil {
			t.Graph = graph
		}
		batch = append(batch, t)
	}

	n, err := s.Insert(ctx, batch...)
	if err != nil {
		return 0, err
	}
	g, err := marshalGraph(graph)
	if err != nil {
		return 0, err
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO loads (source, graph, count) VALUES (?, ?, ?)", source, g, n); err != nil {
		return 0, fmt.Errorf("record load: %w", err)
	}
	return n, nil
}

func marshalTriple(t ir.Triple) ([4]string, error) {
	var row [4]string
	for i, term := range []ir.Term{t.Subject, t.Predicate, t.Object} {
		v, err := marshalTerm(term)
		if err != nil {
			return row, err
		}
		row[i] = v
	}
	g, err := marshalGraph(t.Graph)
	if err != nil {
		return row, err
	}
	row[3] = g
	return row, nil
}
