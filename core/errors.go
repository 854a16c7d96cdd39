package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Authentication errors
	ErrAuthRejected = errors.New("authentication rejected")
	ErrTokenMissing = errors.New("authentication token missing")

	// Transport errors
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrServerFault        = errors.New("server fault")

	// Resource errors
	ErrNotFound = errors.New("resource not found")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// Circuit breaker errors
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// ClientError provides structured error information with context.
// It implements the error interface and supports error wrapping.
type ClientError struct {
	Op      string // Operation that failed (e.g., "session.Login")
	Kind    string // Error kind (e.g., "auth", "cart", "gateway")
	Message string // Human-readable message, usually the server's error string
	Status  int    // HTTP status that produced the error, 0 for transport failures
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *ClientError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.Message != "" {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *ClientError) Unwrap() error {
	return e.Err
}

// NewClientError creates a new ClientError
func NewClientError(op, kind string, err error) *ClientError {
	return &ClientError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// IsAuthRejected checks whether an error means the credentials or token
// were refused by the collaborator
func IsAuthRejected(err error) bool {
	return errors.Is(err, ErrAuthRejected) || errors.Is(err, ErrTokenMissing)
}

// IsNetworkUnavailable checks whether an error means the request never
// reached the collaborator
func IsNetworkUnavailable(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable) || errors.Is(err, ErrCircuitOpen)
}

// IsServerFault checks whether an error was a 5xx from the collaborator.
// Callers may present a distinct "service unavailable" state for these;
// the core treats them like any other remote failure.
func IsServerFault(err error) bool {
	return errors.Is(err, ErrServerFault)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}
