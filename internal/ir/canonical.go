package ir

import (
	"slices"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// CanonicalKey returns a deterministic key for the values bound to names.
// Unbound names contribute an explicit marker.
//
// Lexical forms and IRIs are NFC normalised: two members may return the
// same string in different normal forms and they must group together.
func CanonicalKey(bs BindingSet, names []string) string {
	var b strings.Builder
	for i, n := range names {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		v, ok := bs.Get(n)
		if !ok {
			b.WriteString("\x00")
			continue
		}
		b.WriteString(canonicalTerm(v))
	}
	return b.String()
}

// Canonical returns the canonical byte form of a full binding set, with
// names ordered by UTF-16 code units. Used for hashing.
func Canonical(bs BindingSet) []byte {
	names := SortedNames(bs.Names())
	var b strings.Builder
	for i, n := range names {
		if i > 0 {
			b.WriteByte(0x1e)
		}
		b.WriteString(norm.NFC.String(n))
		b.WriteByte('=')
		b.WriteString(canonicalTerm(bs.Value(n)))
	}
	return []byte(b.String())
}

func canonicalTerm(t Term) string {
	switch v := t.(type) {
	case IRI:
		return IRI(norm.NFC.String(string(v))).String()
	case BNode:
		return v.String()
	case Literal:
		return Literal{
			Lexical:  norm.NFC.String(v.Lexical),
			Datatype: v.DatatypeIRI(),
			Lang:     v.Lang,
		}.String() + "^^" + string(v.DatatypeIRI())
	}
	return ""
}

// SortedNames returns a sorted copy of names in UTF-16 code unit order.
// Go's default string order is UTF-8 byte order, which differs for
// characters outside the BMP; UTF-16 order matches what SPARQL JSON
// result consumers expect when comparing headers.
func SortedNames(names []string) []string {
	out := slices.Clone(names)
	slices.SortFunc(out, compareUTF16)
	return out
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	if len(a16) < len(b16) {
		return -1
	}
	if len(a16) > len(b16) {
		return 1
	}
	return 0
}
