package sparql

import (
	"errors"
	"fmt"
)

// SyntaxError reports a query that could not be parsed, with the position
// of the offending token.
type SyntaxError struct {
	Line    int
	Col     int
	Message string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("SYNTAX: %d:%d: %s", e.Line, e.Col, e.Message)
}

// IsSyntaxError returns true if the error is a SyntaxError.
func IsSyntaxError(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se)
}

func newSyntaxError(line, col int, format string, args ...any) *SyntaxError {
	return &SyntaxError{Line: line, Col: col, Message: fmt.Sprintf(format, args...)}
}
