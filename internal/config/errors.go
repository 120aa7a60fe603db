package config

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error code constants for configuration loading.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNotFound    = "E002" // Path not found
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeBuildFailed = "E005" // CUE build failed
	ErrCodeSchema      = "E006" // Value does not match the schema

	ErrCodeMissingFederation = "E101" // No federation block
	ErrCodeMemberField       = "E102" // Member field missing or inconsistent with its kind
	ErrCodeDescriptor        = "E103" // Invalid service descriptor
	ErrCodeUnknownDefault    = "E104" // Default names no member
)

// LoadError is a configuration error, positioned in the CUE source when
// the position is known.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// formatCUEError converts the first of possibly many CUE errors into a
// positioned LoadError.
func formatCUEError(code string, err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Code: code, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
