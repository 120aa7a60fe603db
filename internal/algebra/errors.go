package algebra

import (
	"errors"
	"fmt"
)

// StructureError reports an invalid structural edit, such as replacing a
// node that is not a child of the receiver.
type StructureError struct {
	// Node is the kind of the node the edit was applied to.
	Node Kind

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *StructureError) Error() string {
	return fmt.Sprintf("STRUCTURE: %s: %s", e.Node, e.Message)
}

// IsStructureError returns true if the error is a StructureError.
// Uses errors.As to handle wrapped errors.
func IsStructureError(err error) bool {
	var se *StructureError
	return errors.As(err, &se)
}

func newStructureError(n Node, msg string) *StructureError {
	return &StructureError{Node: n.Kind(), Message: msg}
}

func notAChild(parent, child Node) *StructureError {
	if child == nil {
		return newStructureError(parent, "child is nil")
	}
	return newStructureError(parent, fmt.Sprintf("%s is not a child", child.Kind()))
}
