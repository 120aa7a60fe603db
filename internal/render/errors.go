package render

import (
	"errors"
	"fmt"

	"github.com/roach88/fedq/internal/algebra"
)

// RenderError reports a subtree that has no SPARQL text form, such as a
// capability service call or a blank node constant. The engine treats it
// as a signal to evaluate the subtree itself instead of pushing it down.
type RenderError struct {
	// Node is the kind of node that could not be rendered.
	Node algebra.Kind

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	return fmt.Sprintf("RENDER: %s: %s", e.Node, e.Message)
}

// IsRenderError returns true if the error is a RenderError.
// Uses errors.As to handle wrapped errors.
func IsRenderError(err error) bool {
	var re *RenderError
	return errors.As(err, &re)
}

func unsupported(n algebra.Node, format string, args ...any) *RenderError {
	return &RenderError{Node: n.Kind(), Message: fmt.Sprintf(format, args...)}
}
