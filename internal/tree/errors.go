package tree

import (
	"errors"
	"fmt"
)

// ErrConflict is returned when the log rejects an append because an event
// inside the command's consistency boundary was committed after the command
// read its state. The returned error also matches
// eventlog.ErrAppendConditionFailed.
var ErrConflict = errors.New("concurrent modification")

// ConstraintError reports a command that is invalid for the observed tree.
type ConstraintError struct {
	// Code identifies the violated invariant.
	Code ConstraintErrorCode

	// Message is a human-readable description naming the ids involved.
	Message string

	// NodeID is the node the command targeted.
	NodeID string

	// ParentID is the requested (new) parent.
	ParentID string
}

// ConstraintErrorCode categorizes constraint violations.
type ConstraintErrorCode string

const (
	// ErrCodeInvalidID indicates an empty node id.
	ErrCodeInvalidID ConstraintErrorCode = "INVALID_ID"

	// ErrCodeSelfParent indicates a node would become its own parent.
	ErrCodeSelfParent ConstraintErrorCode = "SELF_PARENT"

	// ErrCodeDuplicateNode indicates the id is already taken.
	ErrCodeDuplicateNode ConstraintErrorCode = "DUPLICATE_NODE"

	// ErrCodeMissingParent indicates the (new) parent does not exist.
	ErrCodeMissingParent ConstraintErrorCode = "MISSING_PARENT"

	// ErrCodeMissingNode indicates the node to move does not exist.
	ErrCodeMissingNode ConstraintErrorCode = "MISSING_NODE"

	// ErrCodeRootImmovable indicates an attempt to move the root.
	ErrCodeRootImmovable ConstraintErrorCode = "ROOT_IMMOVABLE"

	// ErrCodeNoParent indicates the node to move has no parent.
	ErrCodeNoParent ConstraintErrorCode = "NO_PARENT"

	// ErrCodeAlreadyParent indicates a move to the current parent.
	ErrCodeAlreadyParent ConstraintErrorCode = "ALREADY_PARENT"

	// ErrCodeCycle indicates the new parent is a descendant of the node.
	ErrCodeCycle ConstraintErrorCode = "CYCLE"
)

// Error implements the error interface.
func (e *ConstraintError) Error() string {
	return e.Message
}

// IsConstraintError returns true if err is or wraps a *ConstraintError.
func IsConstraintError(err error) bool {
	var ce *ConstraintError
	return errors.As(err, &ce)
}

// ConstraintCode returns the code of a wrapped *ConstraintError.
func ConstraintCode(err error) (ConstraintErrorCode, bool) {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return "", false
}

// IsConflict returns true if err reports a failed append condition.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func conflictError(err error) error {
	return fmt.Errorf("%w: %w", ErrConflict, err)
}

func addError(code ConstraintErrorCode, id, parentID, reason string) *ConstraintError {
	return &ConstraintError{
		Code:     code,
		Message:  fmt.Sprintf("Failed to add node with id '%s' because %s", id, reason),
		NodeID:   id,
		ParentID: parentID,
	}
}

func moveError(code ConstraintErrorCode, id, newParentID, reason string) *ConstraintError {
	return &ConstraintError{
		Code:     code,
		Message:  fmt.Sprintf("Failed to move node with id '%s' to '%s' because %s", id, newParentID, reason),
		NodeID:   id,
		ParentID: newParentID,
	}
}
