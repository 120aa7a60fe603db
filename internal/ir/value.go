package ir

import (
	"cmp"
	"strconv"
	"strings"
)

// Well-known datatype IRIs.
const (
	XSDString     IRI = "http://www.w3.org/2001/XMLSchema#string"
	XSDBoolean    IRI = "http://www.w3.org/2001/XMLSchema#boolean"
	XSDInteger    IRI = "http://www.w3.org/2001/XMLSchema#integer"
	XSDDecimal    IRI = "http://www.w3.org/2001/XMLSchema#decimal"
	XSDDouble     IRI = "http://www.w3.org/2001/XMLSchema#double"
	RDFLangString IRI = "http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"
	RDFType       IRI = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
)

// Term is a sealed interface representing an RDF term.
// Only IRI, BNode, and Literal implement it.
type Term interface {
	termNode() // Sealed - only these types implement it

	// String returns the N-Triples form of the term.
	String() string
}

// IRI is an absolute IRI reference.
type IRI string

func (IRI) termNode() {}

func (i IRI) String() string { return "<" + string(i) + ">" }

// BNode is a blank node identified by its label.
type BNode string

func (BNode) termNode() {}

func (b BNode) String() string { return "_:" + string(b) }

// Literal is an RDF literal. A literal with Lang set is a language-tagged
// string and its Datatype is RDFLangString. An empty Datatype means xsd:string.
type Literal struct {
	Lexical  string
	Datatype IRI
	Lang     string
}

func (Literal) termNode() {}

func (l Literal) String() string {
	var b strings.Builder
	b.WriteByte('"')
	b.WriteString(EscapeString(l.Lexical))
	b.WriteByte('"')
	switch {
	case l.Lang != "":
		b.WriteByte('@')
		b.WriteString(l.Lang)
	case l.Datatype != "" && l.Datatype != XSDString:
		b.WriteString("^^")
		b.WriteString(l.Datatype.String())
	}
	return b.String()
}

// DatatypeIRI returns the effective datatype, resolving the implicit
// xsd:string and rdf:langString cases.
func (l Literal) DatatypeIRI() IRI {
	if l.Lang != "" {
		return RDFLangString
	}
	if l.Datatype == "" {
		return XSDString
	}
	return l.Datatype
}

// NewString creates a plain xsd:string literal.
func NewString(s string) Literal {
	return Literal{Lexical: s}
}

// NewLangString creates a language-tagged literal.
func NewLangString(s, lang string) Literal {
	return Literal{Lexical: s, Datatype: RDFLangString, Lang: strings.ToLower(lang)}
}

// NewTyped creates a literal with an explicit datatype.
func NewTyped(s string, datatype IRI) Literal {
	if datatype == XSDString {
		datatype = ""
	}
	return Literal{Lexical: s, Datatype: datatype}
}

// NewInteger creates an xsd:integer literal.
func NewInteger(n int64) Literal {
	return Literal{Lexical: strconv.FormatInt(n, 10), Datatype: XSDInteger}
}

// NewBool creates an xsd:boolean literal.
func NewBool(v bool) Literal {
	return Literal{Lexical: strconv.FormatBool(v), Datatype: XSDBoolean}
}

// EscapeString escapes a lexical form for use between double quotes in
// N-Triples and SPARQL.
func EscapeString(s string) string {
	if !strings.ContainsAny(s, "\\\"\n\r\t") {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Equal reports whether two terms are the same RDF term. nil equals only nil.
func Equal(a, b Term) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	la, aok := a.(Literal)
	lb, bok := b.(Literal)
	if aok && bok {
		return la.Lexical == lb.Lexical && la.DatatypeIRI() == lb.DatatypeIRI() && la.Lang == lb.Lang
	}
	return a == b
}

// IsNumeric reports whether the literal has a numeric XSD datatype.
func (l Literal) IsNumeric() bool {
	switch l.DatatypeIRI() {
	case XSDInteger, XSDDecimal, XSDDouble,
		"http://www.w3.org/2001/XMLSchema#int",
		"http://www.w3.org/2001/XMLSchema#long",
		"http://www.w3.org/2001/XMLSchema#float":
		return true
	}
	return false
}

// Float returns the numeric value of a numeric literal.
func (l Literal) Float() (float64, bool) {
	if !l.IsNumeric() {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(l.Lexical), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Bool returns the effective boolean value of a literal.
func (l Literal) Bool() (bool, bool) {
	switch {
	case l.DatatypeIRI() == XSDBoolean:
		return l.Lexical == "true" || l.Lexical == "1", true
	case l.IsNumeric():
		f, ok := l.Float()
		return ok && f != 0, ok
	case l.DatatypeIRI() == XSDString || l.Lang != "":
		return l.Lexical != "", true
	}
	return false, false
}

// Compare orders terms for ORDER BY: unbound (nil) < blank nodes < IRIs <
// literals. Numeric literals compare by value; other literals by lexical
// form, then datatype, then language.
func Compare(a, b Term) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch av := a.(type) {
	case nil:
		return 0
	case BNode:
		return strings.Compare(string(av), string(b.(BNode)))
	case IRI:
		return strings.Compare(string(av), string(b.(IRI)))
	case Literal:
		bv := b.(Literal)
		if fa, ok := av.Float(); ok {
			if fb, ok := bv.Float(); ok && fa != fb {
				return cmp.Compare(fa, fb)
			}
		}
		if c := strings.Compare(av.Lexical, bv.Lexical); c != 0 {
			return c
		}
		if c := strings.Compare(string(av.DatatypeIRI()), string(bv.DatatypeIRI())); c != 0 {
			return c
		}
		return strings.Compare(av.Lang, bv.Lang)
	}
	return 0
}

func rank(t Term) int {
	switch t.(type) {
	case nil:
		return 0
	case BNode:
		return 1
	case IRI:
		return 2
	default:
		return 3
	}
}
