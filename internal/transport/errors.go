package transport

import (
	"errors"
	"fmt"
)

// ErrUnknownHandle is returned when an operation targets a transfer the transport is not running.
var ErrUnknownHandle = errors.New("unknown transfer handle")

// NetworkError represents network failures including non-2xx responses and connection errors.
type NetworkError struct {
	Operation  string // The operation that failed (e.g., "start", "resume")
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d): %v", e.Operation, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("network error during %s: %v", e.Operation, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RangeNotSupportedError is returned when a resume was requested but the server ignored the
// byte range, so the partial data cannot be reused.
type RangeNotSupportedError struct {
	URL string
	Err error
}

func (e *RangeNotSupportedError) Error() string {
	return fmt.Sprintf("server does not support range requests for %s", e.URL)
}

func (e *RangeNotSupportedError) Unwrap() error {
	return e.Err
}
