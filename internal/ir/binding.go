package ir

import (
	"slices"
	"strings"
)

// Binding is a single name/value pair of a BindingSet.
type Binding struct {
	Name  string
	Value Term
}

// B is a shorthand for Binding for ergonomic construction.
// Example: NewBindingSet(B("s", IRI("urn:a")), B("o", NewString("x")))
func B(name string, value Term) Binding {
	return Binding{Name: name, Value: value}
}

// BindingSet is an ordered mapping from variable names to terms. The zero
// value is the empty binding set. BindingSet is immutable: With, Merge, and
// Project return new values and never alias the receiver's storage.
type BindingSet struct {
	names  []string
	values map[string]Term
}

// NewBindingSet creates a binding set from pairs. Later pairs replace
// earlier pairs with the same name. Pairs with a nil value are skipped.
func NewBindingSet(pairs ...Binding) BindingSet {
	var bs BindingSet
	for _, p := range pairs {
		bs = bs.With(p.Name, p.Value)
	}
	return bs
}

// Len returns the number of bound names.
func (bs BindingSet) Len() int { return len(bs.names) }

// Names returns the bound names in insertion order.
func (bs BindingSet) Names() []string { return slices.Clone(bs.names) }

// Get returns the value bound to name.
func (bs BindingSet) Get(name string) (Term, bool) {
	v, ok := bs.values[name]
	return v, ok
}

// Value returns the value bound to name, or nil.
func (bs BindingSet) Value(name string) Term { return bs.values[name] }

// Has reports whether name is bound.
func (bs BindingSet) Has(name string) bool {
	_, ok := bs.values[name]
	return ok
}

// With returns a copy of the binding set with name bound to value.
// A nil value leaves the binding set unchanged.
func (bs BindingSet) With(name string, value Term) BindingSet {
	if value == nil {
		return bs
	}
	out := BindingSet{
		names:  slices.Clone(bs.names),
		values: make(map[string]Term, len(bs.values)+1),
	}
	for k, v := range bs.values {
		out.values[k] = v
	}
	if _, exists := out.values[name]; !exists {
		out.names = append(out.names, name)
	}
	out.values[name] = value
	return out
}

// Compatible reports whether every name bound in both sets has equal values.
func (bs BindingSet) Compatible(other BindingSet) bool {
	small, large := bs, other
	if small.Len() > large.Len() {
		small, large = large, small
	}
	for _, n := range small.names {
		if v, ok := large.values[n]; ok && !Equal(v, small.values[n]) {
			return false
		}
	}
	return true
}

// Merge returns the union of two compatible binding sets. It returns false
// when the sets disagree on a shared name.
func (bs BindingSet) Merge(other BindingSet) (BindingSet, bool) {
	if !bs.Compatible(other) {
		return BindingSet{}, false
	}
	if other.Len() == 0 {
		return bs, true
	}
	if bs.Len() == 0 {
		return other, true
	}
	out := BindingSet{
		names:  slices.Clone(bs.names),
		values: make(map[string]Term, len(bs.values)+len(other.values)),
	}
	for k, v := range bs.values {
		out.values[k] = v
	}
	for _, n := range other.names {
		if _, exists := out.values[n]; !exists {
			out.names = append(out.names, n)
			out.values[n] = other.values[n]
		}
	}
	return out, true
}

// Project returns a binding set holding only the listed names.
func (bs BindingSet) Project(names []string) BindingSet {
	var out BindingSet
	for _, n := range names {
		if v, ok := bs.values[n]; ok {
			out = out.With(n, v)
		}
	}
	return out
}

// Equal reports whether both sets bind the same names to equal values,
// ignoring insertion order.
func (bs BindingSet) Equal(other BindingSet) bool {
	if bs.Len() != other.Len() {
		return false
	}
	for _, n := range bs.names {
		v, ok := other.values[n]
		if !ok || !Equal(v, bs.values[n]) {
			return false
		}
	}
	return true
}

// String renders the binding set with names in canonical order,
// e.g. [a=<urn:x>;b="1"].
func (bs BindingSet) String() string {
	names := SortedNames(bs.names)
	var b strings.Builder
	b.WriteByte('[')
	for i, n := range names {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(n)
		b.WriteByte('=')
		b.WriteString(bs.values[n].String())
	}
	b.WriteByte(']')
	return b.String()
}
