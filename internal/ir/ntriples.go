package ir

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/knakk/rdf"
)

// holder is the subject and predicate of the statement ParseTerm decodes
// its input in.
const holder = "<urn:fedq:term>"

// ParseTerm parses a single term in N-Triples syntax: <iri>, _:label, or a
// quoted literal with optional @lang or ^^<datatype> suffix.
func ParseTerm(s string) (Term, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty term")
	}
	dec := rdf.NewTripleDecoder(strings.NewReader(holder+" "+holder+" "+s+" ."), rdf.NTriples)
	tr, err := dec.Decode()
	if err != nil {
		return nil, fmt.Errorf("parse term %q: %w", s, err)
	}
	if _, err := dec.Decode(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trailing input after term: %q", s)
	}
	return FromRDF(tr.Obj)
}

// MustParseTerm is like ParseTerm but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustParseTerm(s string) Term {
	t, err := ParseTerm(s)
	if err != nil {
		panic(err)
	}
	return t
}

// FromRDF maps a decoded RDF term onto the term model. The decoder types
// plain literals as xsd:string.
func FromRDF(t rdf.Term) (Term, error) {
	switch x := t.(type) {
	case rdf.IRI:
		return IRI(x.String()), nil
	case rdf.Blank:
		return BNode(strings.TrimPrefix(x.Serialize(rdf.NTriples), "_:")), nil
	case rdf.Literal:
		if lang := x.Lang(); lang != "" {
			return NewLangString(x.String(), lang), nil
		}
		return NewTyped(x.String(), IRI(x.DataType.String())), nil
	}
	return nil, fmt.Errorf("unsupported term %T", t)
}

// Triple is a subject, predicate, object statement with an optional graph.
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
	Graph     Term
}
