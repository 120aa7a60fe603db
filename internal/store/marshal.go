package store

import (
	"fmt"

	"github.com/roach88/fedq/internal/ir"
)

// defaultGraph is the stored form of the default graph.
const defaultGraph = ""

// marshalTerm converts a term to its N-Triples TEXT for storage.
// Language tags are lower-cased so equal terms always store identically.
func marshalTerm(t ir.Term) (string, error) {
	switch v := t.(type) {
	case nil:
		return "", fmt.Errorf("marshal term: nil term")
	case ir.Literal:
		if v.Lang != "" {
			return ir.NewLangString(v.Lexical, v.Lang).String(), nil
		}
	}
	return t.String(), nil
}

// marshalGraph is marshalTerm with nil meaning the default graph.
func marshalGraph(g ir.Term) (string, error) {
	if g == nil {
		return defaultGraph, nil
	}
	if _, ok := g.(ir.Literal); ok {
		return "", fmt.Errorf("marshal graph: literal %s cannot name a graph", g)
	}
	return marshalTerm(g)
}

// unmarshalTerm parses stored N-Triples TEXT back to a term.
func unmarshalTerm(data string) (ir.Term, error) {
	t, err := ir.ParseTerm(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal term %q: %w", data, err)
	}
	return t, nil
}

func unmarshalGraph(data string) (ir.Term, error) {
	if data == defaultGraph {
		return nil, nil
	}
	return unmarshalTerm(data)
}
