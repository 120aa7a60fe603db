package member

import (
	"errors"
	"fmt"
)

// UnknownMemberError reports a reference that maps to no registered member.
type UnknownMemberError struct {
	Ref string
}

// Error implements the error interface.
func (e *UnknownMemberError) Error() string {
	return fmt.Sprintf("UNKNOWN_MEMBER: no federation member for %q", e.Ref)
}

// ConnectionError reports a failure to open a connection to a member,
// typically a network or authentication failure.
type ConnectionError struct {
	Member string
	Err    error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("CONNECTION: member %s: %v", e.Member, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error { return e.Err }

// IsUnknownMember returns true if the error is an UnknownMemberError.
// Uses errors.As to handle wrapped errors.
func IsUnknownMember(err error) bool {
	var ue *UnknownMemberError
	return errors.As(err, &ue)
}

// IsConnectionError returns true if the error is a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// ErrDuplicateMember is returned when a member id or ref is registered twice.
var ErrDuplicateMember = errors.New("duplicate federation member")
