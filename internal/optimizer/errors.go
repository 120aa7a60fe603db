package optimizer

import (
	"errors"
	"fmt"
)

// AmbiguousParameterError reports a service parameter that the patterns of
// one SERVICE block bind to two different slots.
type AmbiguousParameterError struct {
	// Service is the reference IRI of the described service.
	Service string

	// Param is the parameter name.
	Param string

	// First and Second are the conflicting slots as written in the query.
	First  string
	Second string
}

// Error implements the error interface.
func (e *AmbiguousParameterError) Error() string {
	return fmt.Sprintf("AMBIGUOUS_PARAMETER: <%s> parameter %s bound to both %s and %s",
		e.Service, e.Param, e.First, e.Second)
}

// IsAmbiguousParameter returns true if the error is an AmbiguousParameterError.
// Uses errors.As to handle wrapped errors.
func IsAmbiguousParameter(err error) bool {
	var ae *AmbiguousParameterError
	return errors.As(err, &ae)
}

// UndescribedPatternError reports a pattern inside a SERVICE block for a
// described service that matches none of its templates.
type UndescribedPatternError struct {
	Service string
	Pattern string
}

// Error implements the error interface.
func (e *UndescribedPatternError) Error() string {
	return fmt.Sprintf("UNDESCRIBED_PATTERN: <%s> has no template for %s", e.Service, e.Pattern)
}

// IsUndescribedPattern returns true if the error is an UndescribedPatternError.
func IsUndescribedPattern(err error) bool {
	var ue *UndescribedPatternError
	return errors.As(err, &ue)
}

// PassError wraps a failure of one optimizer pass.
type PassError struct {
	Pass string
	Err  error
}

// Error implements the error interface.
func (e *PassError) Error() string {
	return fmt.Sprintf("optimizer pass %s: %v", e.Pass, e.Err)
}

// Unwrap returns the underlying error.
func (e *PassError) Unwrap() error { return e.Err }
