package engine

import (
	"errors"
	"fmt"
)

// EvaluationErrorCode categorizes evaluation errors.
type EvaluationErrorCode string

const (
	// ErrCodeMemberFailure indicates a member reported a native failure.
	ErrCodeMemberFailure EvaluationErrorCode = "MEMBER_FAILURE"

	// ErrCodeCardinality indicates a described service returned a row
	// count its descriptor does not allow.
	ErrCodeCardinality EvaluationErrorCode = "CARDINALITY"

	// ErrCodeUnsupported indicates a member connection cannot serve the
	// requested operation.
	ErrCodeUnsupported EvaluationErrorCode = "UNSUPPORTED"

	// ErrCodeUnbound indicates a required input was not bound when the
	// node was evaluated.
	ErrCodeUnbound EvaluationErrorCode = "UNBOUND"
)

// EvaluationError reports a failure while evaluating part of a tree
// against a federation member.
//
// EvaluationError carries the member id and the attempted query text so
// the failing dispatch can be reproduced by hand.
type EvaluationError struct {
	// Code identifies the error category.
	Code EvaluationErrorCode

	// Member is the id of the member that was addressed.
	Member string

	// Query is the dispatched query text or a description of the request.
	Query string

	// Message is a human-readable description.
	Message string

	// Err is the member's native error, if any.
	Err error
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg += ": " + e.Err.Error()
		}
	}
	if e.Query != "" {
		return fmt.Sprintf("%s: member %s: %s (query=%q)", e.Code, e.Member, msg, e.Query)
	}
	return fmt.Sprintf("%s: member %s: %s", e.Code, e.Member, msg)
}

// Unwrap returns the member's native error.
func (e *EvaluationError) Unwrap() error { return e.Err }

// IsEvaluationError returns true if the error is an EvaluationError.
// Uses errors.As to handle wrapped errors.
func IsEvaluationError(err error) bool {
	var ee *EvaluationError
	return errors.As(err, &ee)
}

// IsCardinalityError returns true if the error is an EvaluationError
// with ErrCodeCardinality.
func IsCardinalityError(err error) bool {
	var ee *EvaluationError
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeCardinality
	}
	return false
}

// memberFailure wraps a native member error.
func memberFailure(member, query string, err error) *EvaluationError {
	return &EvaluationError{Code: ErrCodeMemberFailure, Member: member, Query: query, Err: err}
}
