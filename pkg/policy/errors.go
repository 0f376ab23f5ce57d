package policy

import (
	"errors"
	"fmt"
)

// ValidationError reports missing or malformed required input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// NotFoundError reports an absent policy or binding.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// IsNotFound checks if an error is a not-found error.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// ConflictError reports a uniqueness violation on (app_id, code) or
// (app_id, name).
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("policy %s already in use: %s", e.Field, e.Value)
}

// IsConflict checks if an error is a conflict error.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// PermissionDeniedError reports a caller lacking rights for an org-scoped
// query beyond their own user identity.
type PermissionDeniedError struct {
	Reason string
}

func (e *PermissionDeniedError) Error() string {
	return "permission denied: " + e.Reason
}

// IsPermissionDenied checks if an error is a permission-denied error.
func IsPermissionDenied(err error) bool {
	var target *PermissionDeniedError
	return errors.As(err, &target)
}
