package broker

import (
	"errors"
	"fmt"
)

// Error represents a broker error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes for broker operations.
const (
	// ErrCodeNoData indicates no data was found.
	ErrCodeNoData = "NO_DATA"

	// ErrCodeValidation indicates validation failed.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeConfiguration indicates invalid configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeDatabase indicates a store operation failed.
	ErrCodeDatabase = "DATABASE_ERROR"

	// ErrCodeDeadlock indicates a transient store deadlock. Operations
	// wrapped by retry.DeadlockPolicy retry on this code; it is never
	// surfaced to publishers or subscribers.
	ErrCodeDeadlock = "DEADLOCK"

	// ErrCodeDelivery indicates message delivery failed.
	ErrCodeDelivery = "DELIVERY_ERROR"

	// ErrCodeAuthorization indicates the principal is not allowed to
	// publish or subscribe to the topic.
	ErrCodeAuthorization = "AUTHORIZATION_ERROR"
)

// Common errors.
var (
	// ErrNoData is returned when a query returns no results.
	// This is not necessarily an error condition in all cases.
	ErrNoData = &Error{
		Code:    ErrCodeNoData,
		Message: "no data found",
	}

	// ErrNotAuthorized is returned when a publish or subscribe attempt is
	// rejected by the permission entries. The rejection happens at the
	// boundary, before any state mutation.
	ErrNotAuthorized = &Error{
		Code:    ErrCodeAuthorization,
		Message: "access denied",
	}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

func hasCode(err error, code string) bool {
	var brokerErr *Error
	if errors.As(err, &brokerErr) {
		return brokerErr.Code == code
	}
	return false
}

// IsNoData checks if an error is ErrNoData.
func IsNoData(err error) bool {
	return hasCode(err, ErrCodeNoData) || errors.Is(err, ErrNoData)
}

// IsDeadlock checks whether an error is a transient store deadlock. Store
// adapters classify driver errors and wrap them with ErrCodeDeadlock.
func IsDeadlock(err error) bool {
	return hasCode(err, ErrCodeDeadlock)
}
