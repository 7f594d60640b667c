package route

import (
	"errors"
	"fmt"
)

// Common errors returned by the resolver.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of resolver errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors and non-Ok payloads.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// RoutingError represents a failed route resolution with classification
// context. Callers decide the fallback policy.
type RoutingError struct {
	StatusCode int
	OSRMCode   string
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *RoutingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("routing %s error (status %d, code %q): %s: %v",
			e.ErrorClass, e.StatusCode, e.OSRMCode, e.Message, e.Err)
	}
	return fmt.Sprintf("routing %s error (status %d, code %q): %s",
		e.ErrorClass, e.StatusCode, e.OSRMCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RoutingError) Unwrap() error {
	return e.Err
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx and non-Ok payloads are deterministic; retrying wastes budget
		return false
	case ErrorClassServer:
		return true
	case ErrorClassRateLimit:
		return true
	case ErrorClassNetwork:
		return true
	default:
		return false
	}
}
