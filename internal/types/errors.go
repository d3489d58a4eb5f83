package types

import (
	"errors"
	"fmt"
)

// NetworkError means no response was received from the backend.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a 4xx/5xx response.
type ServerError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// ValidationError is a failed client-side precondition. Actions that fail
// validation are not dispatched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// PartialFailure means the user message was stored but the agent reply failed.
type PartialFailure struct {
	Reason string
}

func (e *PartialFailure) Error() string {
	return "agent reply failed: " + e.Reason
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNetwork reports whether err is (or wraps) a NetworkError.
func IsNetwork(err error) bool {
	var n *NetworkError
	return errors.As(err, &n)
}

// StatusCode returns the HTTP status of a ServerError, or 0.
func StatusCode(err error) int {
	var s *ServerError
	if errors.As(err, &s) {
		return s.StatusCode
	}
	return 0
}
