package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/fedq/internal/ir"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// triple builds a default-graph triple from N-Triples terms.
func triple(s, p, o string) ir.Triple {
	return ir.Triple{
		Subject:   ir.MustParseTerm(s),
		Predicate: ir.MustParseTerm(p),
		Object:    ir.MustParseTerm(o),
	}
}
