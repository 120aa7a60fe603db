package store

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/knakk/rdf"

	"github.com/roach88/fedq/internal/ir"
)

// quadReader decodes N-Triples and N-Quads one statement per line. Lines
// without a graph term belong to the default graph.
type quadReader struct {
	scanner *bufio.Scanner
	line    int
}

func newQuadReader(r io.Reader) *quadReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &quadReader{scanner: scanner}
}

// Next returns the next statement, or io.EOF once the input is drained.
// Decoding errors carry the line number.
func (q *quadReader) Next() (ir.Triple, error) {
	for q.scanner.Scan() {
		q.line++
		text := strings.TrimSpace(q.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		t, err := decodeLine(text)
		if err != nil {
			return ir.Triple{}, fmt.Errorf("line %d: %w", q.line, err)
		}
		return t, nil
	}
	if err := q.scanner.Err(); err != nil {
		return ir.Triple{}, err
	}
	return ir.Triple{}, io.EOF
}

func decodeLine(text string) (ir.Triple, error) {
	tr, err := rdf.NewTripleDecoder(strings.NewReader(text), rdf.NTriples).Decode()
	if err == nil {
		return fromTriple(tr, nil)
	}
	quad, qerr := rdf.NewQuadDecoder(strings.NewReader(text), rdf.NQuads).Decode()
	if qerr != nil {
		return ir.Triple{}, qerr
	}
	return fromTriple(quad.Triple, quad.Ctx)
}

func fromTriple(tr rdf.Triple, ctx rdf.Context) (ir.Triple, error) {
	var out ir.Triple
	var err error
	if out.Subject, err = ir.FromRDF(tr.Subj); err != nil {
		return out, err
	}
	if out.Predicate, err = ir.FromRDF(tr.Pred); err != nil {
		return out, err
	}
	if out.Object, err = ir.FromRDF(tr.Obj); err != nil {
		return out, err
	}
	if ctx != nil {
		if out.Graph, err = ir.FromRDF(ctx); err != nil {
			return out, err
		}
	}
	if _, ok := out.Predicate.(ir.IRI); !ok {
		return out, fmt.Errorf("predicate must be an IRI: %s", out.Predicate)
	}
	return out, nil
}
