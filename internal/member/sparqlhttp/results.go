package sparqlhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/roach88/fedq/internal/ir"
)

// ContentType is the SPARQL 1.1 JSON results media type.
const ContentType = "application/sparql-results+json"

// JSONTerm is one RDF term in SPARQL JSON results.
type JSONTerm struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// Term converts a JSON term to an ir.Term.
func (j JSONTerm) Term() (ir.Term, error) {
	switch j.Type {
	case "uri":
		return ir.IRI(j.Value), nil
	case "bnode":
		return ir.BNode(j.Value), nil
	case "literal", "typed-literal":
		switch {
		case j.Lang != "":
			return ir.NewLangString(j.Value, j.Lang), nil
		case j.Datatype != "":
			return ir.NewTyped(j.Value, ir.IRI(j.Datatype)), nil
		}
		return ir.NewString(j.Value), nil
	}
	return nil, fmt.Errorf("unknown term type %q", j.Type)
}

// FromTerm converts an ir.Term to its JSON form.
func FromTerm(t ir.Term) JSONTerm {
	switch v := t.(type) {
	case ir.IRI:
		return JSONTerm{Type: "uri", Value: string(v)}
	case ir.BNode:
		return JSONTerm{Type: "bnode", Value: string(v)}
	case ir.Literal:
		j := JSONTerm{Type: "literal", Value: v.Lexical, Lang: v.Lang}
		if v.Lang == "" && v.Datatype != "" {
			j.Datatype = string(v.Datatype)
		}
		return j
	}
	return JSONTerm{}
}

// Results is the SPARQL JSON results document.
type Results struct {
	Head struct {
		Vars []string `json:"vars,omitempty"`
	} `json:"head"`
	Results *struct {
		Bindings []map[string]JSONTerm `json:"bindings"`
	} `json:"results,omitempty"`
	Boolean *bool `json:"boolean,omitempty"`
}

// NewSelectResults builds a results document for solutions over vars.
func NewSelectResults(vars []string, rows []ir.BindingSet) Results {
	var r Results
	r.Head.Vars = vars
	r.Results = &struct {
		Bindings []map[string]JSONTerm `json:"bindings"`
	}{Bindings: make([]map[string]JSONTerm, 0, len(rows))}
	for _, row := range rows {
		m := make(map[string]JSONTerm, row.Len())
		for _, name := range row.Names() {
			m[name] = FromTerm(row.Value(name))
		}
		r.Results.Bindings = append(r.Results.Bindings, m)
	}
	return r
}

// NewAskResults builds a boolean results document.
func NewAskResults(v bool) Results {
	return Results{Boolean: &v}
}

func bindingSet(row map[string]JSONTerm) (ir.BindingSet, error) {
	var bs ir.BindingSet
	for name, jt := range row {
		t, err := jt.Term()
		if err != nil {
			return ir.BindingSet{}, fmt.Errorf("binding %s: %w", name, err)
		}
		bs = bs.With(name, t)
	}
	return bs, nil
}

// resultStream decodes solutions one at a time from an open response body.
type resultStream struct {
	body io.ReadCloser
	dec  *json.Decoder
	done bool
	once sync.Once
	err  error
}

// newResultStream positions dec at the first solution of results.bindings.
func newResultStream(body io.ReadCloser) (*resultStream, error) {
	dec := json.NewDecoder(body)
	if err := seekBindings(dec); err != nil {
		body.Close()
		return nil, err
	}
	return &resultStream{body: body, dec: dec}, nil
}

func (s *resultStream) Next(ctx context.Context) (ir.BindingSet, bool, error) {
	if s.done {
		return ir.BindingSet{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		return ir.BindingSet{}, false, err
	}
	if !s.dec.More() {
		s.done = true
		return ir.BindingSet{}, false, nil
	}
	var row map[string]JSONTerm
	if err := s.dec.Decode(&row); err != nil {
		s.done = true
		return ir.BindingSet{}, false, fmt.Errorf("decode solution: %w", err)
	}
	bs, err := bindingSet(row)
	if err != nil {
		s.done = true
		return ir.BindingSet{}, false, err
	}
	return bs, true, nil
}

func (s *resultStream) Close() error {
	s.once.Do(func() {
		s.done = true
		s.err = s.body.Close()
	})
	return s.err
}

var errNoBindings = errors.New("response has no results.bindings")

// seekBindings walks the token stream to the opening bracket of
// results.bindings, skipping every other member.
func seekBindings(dec *json.Decoder) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		key, err := objectKey(dec)
		if err != nil {
			return err
		}
		if key != "results" {
			if err := skipValue(dec); err != nil {
				return err
			}
			continue
		}
		if err := expectDelim(dec, '{'); err != nil {
			return err
		}
		for dec.More() {
			inner, err := objectKey(dec)
			if err != nil {
				return err
			}
			if inner == "bindings" {
				return expectDelim(dec, '[')
			}
			if err := skipValue(dec); err != nil {
				return err
			}
		}
		return errNoBindings
	}
	return errNoBindings
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read results: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("read results: expected %q, found %v", want, tok)
	}
	return nil
}

func objectKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("read results: %w", err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("read results: expected object key, found %v", tok)
	}
	return key, nil
}

func skipValue(dec *json.Decoder) error {
	var raw json.RawMessage
	return dec.Decode(&raw)
}
