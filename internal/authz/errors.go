package authz

import "errors"

var (
	// ErrValidation marks a malformed administrative payload rejected
	// before any state changed.
	ErrValidation = errors.New("authz: validation failed")
	// ErrNotFound marks an update or remove against a missing record.
	// Callers treat it as a signal, not a failure.
	ErrNotFound = errors.New("authz: not found")
)
