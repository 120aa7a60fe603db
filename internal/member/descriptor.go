package member

import (
	"fmt"
	"strings"

	"github.com/roach88/fedq/internal/ir"
)

// Cardinality is the number of rows a described service returns per call.
type Cardinality int

const (
	// CardinalityMany streams any number of rows.
	CardinalityMany Cardinality = iota
	// CardinalityOne returns exactly one row.
	CardinalityOne
	// CardinalityFixed returns exactly Descriptor.OutputCount rows.
	CardinalityFixed
)

func (c Cardinality) String() string {
	switch c {
	case CardinalityOne:
		return "one"
	case CardinalityFixed:
		return "fixed"
	}
	return "many"
}

// Parameter names a keyword-search descriptor uses for its roles. Call
// requests carry the query under KeywordQuery; result rows bind
// KeywordSubject and optionally KeywordScore and KeywordType.
const (
	KeywordSubject  = "subject"
	KeywordQuery    = "query"
	KeywordProperty = "property"
	KeywordScore    = "score"
	KeywordType     = "type"
)

// XSDAnyURI marks a parameter whose values are IRIs.
const XSDAnyURI = ir.IRI("http://www.w3.org/2001/XMLSchema#anyURI")

// Parameter is one input or output of a described service.
type Parameter struct {
	Name string
	// Path locates the value in the service's JSON: the request field for
	// inputs, a dotted path inside each result object for outputs.
	Path string
	// ValueType is the datatype of produced values; XSDAnyURI yields IRIs
	// and "" yields plain strings.
	ValueType ir.IRI
	// Default is used when an input is not bound by the query.
	Default ir.Term
	// Optional marks an output some results may leave out. Results
	// missing a mandatory output are dropped.
	Optional bool
}

// Descriptor describes a capability-limited service: the inputs it needs,
// the outputs it produces, and the triple patterns a query uses to address
// it.
type Descriptor struct {
	Label       string
	Inputs      []Parameter
	Outputs     []Parameter
	Patterns    []TemplatePattern
	Cardinality Cardinality
	OutputCount int
	// ResultPath is the dotted path of the result array in the response.
	ResultPath string
}

// Input returns the input parameter with the given name.
func (d *Descriptor) Input(name string) (Parameter, bool) {
	return findParam(d.Inputs, name)
}

// Output returns the output parameter with the given name.
func (d *Descriptor) Output(name string) (Parameter, bool) {
	return findParam(d.Outputs, name)
}

// IsParameter reports whether name is an input or output parameter.
func (d *Descriptor) IsParameter(name string) bool {
	_, in := d.Input(name)
	_, out := d.Output(name)
	return in || out
}

func findParam(ps []Parameter, name string) (Parameter, bool) {
	for _, p := range ps {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Validate checks that every template variable that is not a parameter is
// joined by at least two template patterns, and that every parameter
// appears in some pattern.
func (d *Descriptor) Validate() error {
	if len(d.Patterns) == 0 {
		return fmt.Errorf("descriptor %q has no template patterns", d.Label)
	}
	if d.Cardinality == CardinalityFixed && d.OutputCount <= 0 {
		return fmt.Errorf("descriptor %q: fixed cardinality needs a positive output count", d.Label)
	}
	seen := map[string]int{}
	for _, tp := range d.Patterns {
		for _, s := range tp.Slots() {
			if s.Var != "" {
				seen[s.Var]++
			}
		}
	}
	for _, p := range append(append([]Parameter{}, d.Inputs...), d.Outputs...) {
		if seen[p.Name] == 0 {
			return fmt.Errorf("descriptor %q: parameter %s appears in no pattern", d.Label, p.Name)
		}
	}
	for name, n := range seen {
		if !d.IsParameter(name) && n < 2 {
			return fmt.Errorf("descriptor %q: variable ?%s joins nothing", d.Label, name)
		}
	}
	return nil
}

// TemplateSlot is one position of a template pattern: a variable, a
// constant, a wildcard, or a set of alternative IRIs.
type TemplateSlot struct {
	Var          string
	Const        ir.Term
	Alternatives []ir.IRI
	Wildcard     bool
}

// Matches reports whether a constant term fits this slot.
func (s TemplateSlot) Matches(t ir.Term) bool {
	switch {
	case s.Wildcard:
		return true
	case s.Const != nil:
		return ir.Equal(s.Const, t)
	case len(s.Alternatives) > 0:
		for _, alt := range s.Alternatives {
			if ir.Equal(alt, t) {
				return true
			}
		}
		return false
	}
	return true
}

func (s TemplateSlot) String() string {
	switch {
	case s.Wildcard:
		return "*"
	case s.Const != nil:
		return s.Const.String()
	case len(s.Alternatives) > 0:
		parts := make([]string, len(s.Alternatives))
		for i, a := range s.Alternatives {
			parts[i] = a.String()
		}
		return strings.Join(parts, "|")
	}
	return "?" + s.Var
}

// TemplatePattern is the shape of a triple pattern that addresses a
// described service.
type TemplatePattern struct {
	Subject   TemplateSlot
	Predicate TemplateSlot
	Object    TemplateSlot
}

// Slots returns subject, predicate and object.
func (tp TemplatePattern) Slots() []TemplateSlot {
	return []TemplateSlot{tp.Subject, tp.Predicate, tp.Object}
}

func (tp TemplatePattern) String() string {
	return tp.Subject.String() + " " + tp.Predicate.String() + " " + tp.Object.String()
}

// ParseTemplate parses one template pattern such as
//
//	?item <urn:label>|<urn:name> ?label
//
// Slots are variables, N-Triples terms, `*`, or IRIs joined by `|`.
func ParseTemplate(text string) (TemplatePattern, error) {
	fields, err := splitTemplate(strings.TrimSuffix(strings.TrimSpace(text), "."))
	if err != nil {
		return TemplatePattern{}, err
	}
	if len(fields) != 3 {
		return TemplatePattern{}, fmt.Errorf("template %q: want 3 slots, got %d", text, len(fields))
	}
	var slots [3]TemplateSlot
	for i, f := range fields {
		s, err := parseSlot(f)
		if err != nil {
			return TemplatePattern{}, fmt.Errorf("template %q: %w", text, err)
		}
		slots[i] = s
	}
	return TemplatePattern{Subject: slots[0], Predicate: slots[1], Object: slots[2]}, nil
}

// MustParseTemplate is like ParseTemplate but panics on error.
func MustParseTemplate(text string) TemplatePattern {
	tp, err := ParseTemplate(text)
	if err != nil {
		panic(err)
	}
	return tp
}

func parseSlot(f string) (TemplateSlot, error) {
	switch {
	case f == "*":
		return TemplateSlot{Wildcard: true}, nil
	case strings.HasPrefix(f, "?"):
		if len(f) == 1 {
			return TemplateSlot{}, fmt.Errorf("empty variable name")
		}
		return TemplateSlot{Var: f[1:]}, nil
	case strings.HasPrefix(f, "<") && strings.Contains(f, ">|"):
		var alts []ir.IRI
		for _, part := range strings.Split(f, "|") {
			t, err := ir.ParseTerm(part)
			if err != nil {
				return TemplateSlot{}, err
			}
			iri, ok := t.(ir.IRI)
			if !ok {
				return TemplateSlot{}, fmt.Errorf("alternative %s is not an IRI", part)
			}
			alts = append(alts, iri)
		}
		return TemplateSlot{Alternatives: alts}, nil
	}
	t, err := ir.ParseTerm(f)
	if err != nil {
		return TemplateSlot{}, err
	}
	return TemplateSlot{Const: t}, nil
}

// splitTemplate splits on whitespace outside quoted literals.
func splitTemplate(s string) ([]string, error) {
	var out []string
	var cur strings.Builder
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote && c == '\\' && i+1 < len(s):
			cur.WriteByte(c)
			i++
			cur.WriteByte(s[i])
			continue
		case c == '"':
			inQuote = !inQuote
		case !inQuote && (c == ' ' || c == '\t'):
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
			continue
		}
		cur.WriteByte(c)
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated literal in %q", s)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out, nil
}
