package sparql

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIRI
	tokPName
	tokVar
	tokString
	tokLangTag
	tokInteger
	tokDecimal
	tokDouble
	tokBNode
	tokName // keywords, 'a', true/false, function names
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	line int
	col  int
}

// lexer splits query text into tokens. It is driven one token at a time
// by the parser so that '<' can be read as an IRI or an operator.
type lexer struct {
	src  string
	pos  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (l *lexer) advance(n int) {
	for i := 0; i < n && l.pos < len(l.src); i++ {
		if l.src[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance(1)
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.advance(1)
		default:
			return
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	tok := token{line: l.line, col: l.col}
	if l.pos >= len(l.src) {
		tok.kind = tokEOF
		return tok, nil
	}
	rest := l.src[l.pos:]
	c := rest[0]

	switch {
	case c == '<':
		if n := iriRefLen(rest); n > 0 {
			tok.kind, tok.text = tokIRI, rest[1:n-1]
			l.advance(n)
			return tok, nil
		}
		if strings.HasPrefix(rest, "<=") {
			return l.punct(tok, 2), nil
		}
		return l.punct(tok, 1), nil

	case c == '?' || c == '$':
		n := 1 + nameLen(rest[1:])
		if n == 1 {
			return tok, l.errorf(tok, "empty variable name")
		}
		tok.kind, tok.text = tokVar, rest[1:n]
		l.advance(n)
		return tok, nil

	case c == '"' || c == '\'':
		text, n, err := scanString(rest)
		if err != nil {
			return tok, l.errorf(tok, "%s", err.Error())
		}
		tok.kind, tok.text = tokString, text
		l.advance(n)
		return tok, nil

	case c == '@':
		n := 1
		for n < len(rest) && (isASCIIAlnum(rest[n]) || rest[n] == '-') {
			n++
		}
		tok.kind, tok.text = tokLangTag, rest[1:n]
		l.advance(n)
		return tok, nil

	case c == '_' && strings.HasPrefix(rest, "_:"):
		n := 2 + nameLen(rest[2:])
		tok.kind, tok.text = tokBNode, rest[2:n]
		l.advance(n)
		return tok, nil

	case c >= '0' && c <= '9' || (c == '.' && len(rest) > 1 && rest[1] >= '0' && rest[1] <= '9'):
		return l.number(tok, rest), nil

	case c == ':' || isNameStart(rest):
		n := nameLen(rest)
		if n < len(rest) && rest[n] == ':' {
			// prefixed name: prefix ':' local
			m := n + 1 + localLen(rest[n+1:])
			tok.kind, tok.text = tokPName, rest[:m]
			l.advance(m)
			return tok, nil
		}
		tok.kind, tok.text = tokName, rest[:n]
		l.advance(n)
		return tok, nil
	}

	for _, op := range []string{"^^", "!=", ">=", "&&", "||"} {
		if strings.HasPrefix(rest, op) {
			return l.punct(tok, len(op)), nil
		}
	}
	if strings.ContainsRune("{}().;,*=<>!+-/[]|", rune(c)) {
		return l.punct(tok, 1), nil
	}
	return tok, l.errorf(tok, "unexpected character %q", c)
}

func (l *lexer) punct(tok token, n int) token {
	tok.kind, tok.text = tokPunct, l.src[l.pos:l.pos+n]
	l.advance(n)
	return tok
}

func (l *lexer) number(tok token, rest string) token {
	n := 0
	for n < len(rest) && rest[n] >= '0' && rest[n] <= '9' {
		n++
	}
	tok.kind = tokInteger
	if n < len(rest) && rest[n] == '.' && n+1 < len(rest) && rest[n+1] >= '0' && rest[n+1] <= '9' {
		n++
		for n < len(rest) && rest[n] >= '0' && rest[n] <= '9' {
			n++
		}
		tok.kind = tokDecimal
	}
	if n < len(rest) && (rest[n] == 'e' || rest[n] == 'E') {
		m := n + 1
		if m < len(rest) && (rest[m] == '+' || rest[m] == '-') {
			m++
		}
		if m < len(rest) && rest[m] >= '0' && rest[m] <= '9' {
			for m < len(rest) && rest[m] >= '0' && rest[m] <= '9' {
				m++
			}
			n = m
			tok.kind = tokDouble
		}
	}
	tok.text = rest[:n]
	l.advance(n)
	return tok
}

func (l *lexer) errorf(tok token, format string, args ...any) error {
	return newSyntaxError(tok.line, tok.col, format, args...)
}

// iriRefLen returns the length of an IRIREF at the start of s including
// both angle brackets, or 0 when s does not start with one.
func iriRefLen(s string) int {
	for i := 1; i < len(s); i++ {
		switch c := s[i]; {
		case c == '>':
			return i + 1
		case c <= ' ' || strings.IndexByte("<\"{}|^`\\", c) >= 0:
			return 0
		}
	}
	return 0
}

func isNameStart(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r == '_' || unicode.IsLetter(r)
}

func nameLen(s string) int {
	n := 0
	for n < len(s) {
		r, size := utf8.DecodeRuneInString(s[n:])
		if r != '_' && r != '-' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		n += size
	}
	return n
}

// localLen is nameLen for the local part of a prefixed name, which may
// contain '.' except as its last character.
func localLen(s string) int {
	n := 0
	for n < len(s) {
		r, size := utf8.DecodeRuneInString(s[n:])
		if r == '.' {
			if n+1 < len(s) && (isNameStart(s[n+1:]) || s[n+1] >= '0' && s[n+1] <= '9') {
				n += size
				continue
			}
			break
		}
		if r != '_' && r != '-' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		n += size
	}
	return n
}

func isASCIIAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// scanString reads a quoted string (short or long form) and returns the
// unescaped text and the number of bytes consumed.
func scanString(s string) (string, int, error) {
	q := s[0]
	long := strings.HasPrefix(s, strings.Repeat(string(q), 3))
	i := 1
	if long {
		i = 3
	}
	var b strings.Builder
	for i < len(s) {
		c := s[i]
		switch {
		case long && strings.HasPrefix(s[i:], strings.Repeat(string(q), 3)):
			return b.String(), i + 3, nil
		case !long && c == q:
			return b.String(), i + 1, nil
		case !long && (c == '\n' || c == '\r'):
			return "", 0, errString("newline in string literal")
		case c == '\\':
			if i+1 >= len(s) {
				return "", 0, errString("dangling escape")
			}
			switch e := s[i+1]; e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case '"', '\'', '\\':
				b.WriteByte(e)
			default:
				return "", 0, errString("unknown escape \\" + string(e))
			}
			i += 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, errString("unterminated string literal")
}

type errString string

func (e errString) Error() string { return string(e) }
