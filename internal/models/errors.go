package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an order id does not exist
var ErrNotFound = errors.New("order not found")

// ValidationError reports a missing or malformed request field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError wraps a backing-store fault
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// UpstreamServiceError wraps a failed text-generation call. Its detail is
// for logs only and must never reach the customer.
type UpstreamServiceError struct {
	Provider string
	Err      error
}

func (e *UpstreamServiceError) Error() string {
	return fmt.Sprintf("%s completion failed: %v", e.Provider, e.Err)
}

func (e *UpstreamServiceError) Unwrap() error { return e.Err }

// ExtractionError reports a structured order block that could not be used
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order block %s: %v", e.Reason, e.Err)
	}
	return "order block " + e.Reason
}

func (e *ExtractionError) Unwrap() error { return e.Err }
