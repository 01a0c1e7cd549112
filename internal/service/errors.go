package service

import (
	"errors"
	"fmt"
)

// Typed admissibility errors. Handlers map these onto HTTP statuses.
var (
	// ErrNotEntitled is returned when the identity has no entitlement
	// record or the record's validity window has closed. An expired record
	// discovered this way is deleted as a side effect.
	ErrNotEntitled = errors.New("no active entitlement")

	// ErrStyleUnavailable is returned when the requested style exists but
	// its flag has already been consumed.
	ErrStyleUnavailable = errors.New("style already used")
)

// ServiceError wraps an underlying error with the operation that failed,
// keeping errors.Is/As working through the wrapper.
type ServiceError struct {
	Operation string
	Err       error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("entitlement service %s failed: %v", e.Operation, e.Err)
}

// Unwrap returns the wrapped error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

func newServiceError(operation string, err error) *ServiceError {
	return &ServiceError{Operation: operation, Err: err}
}
