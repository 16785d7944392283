// Package errors provides custom error types for the reporting service.
//
// This package defines the error taxonomy of the aggregation engine. Each
// error type carries enough context to log it and to pick a recovery policy
// in the refresh scheduler.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a request
// without contacting the server.
var ErrCircuitOpen = stderrors.New("circuit breaker open")

// TransportError indicates that a request to the admin API failed.
//
// This error is returned when:
//   - The connection could not be established or timed out
//   - The server answered with a non-2xx status
//   - The circuit breaker rejected the call
//   - The response body could not be read
//
// Recovery strategy: none inside the core. The scheduler records the error
// and waits for the next tick or manual trigger.
type TransportError struct {
	Op         string // Logical operation, e.g. "fetch page 3"
	URL        string // Request URL (without credentials)
	StatusCode int    // HTTP status, 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("transport error: %s", e.Op)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: HTTP %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the wrapped error for error chain inspection
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new transport error with context
func NewTransportError(op, url string, statusCode int, err error) *TransportError {
	return &TransportError{Op: op, URL: url, StatusCode: statusCode, Err: err}
}

// MalformedResponseError indicates that a response body did not match any
// known shape.
//
// This error never crosses the fetcher boundary: callers degrade it to an
// empty page or zeroed stats. It exists so the decode step stays auditable
// and testable.
type MalformedResponseError struct {
	Source string // Which decoder rejected the body ("page", "stats")
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed %s response: %s", e.Source, e.Reason)
}

// NewMalformedResponseError creates a new malformed response error
func NewMalformedResponseError(source, reason string) *MalformedResponseError {
	return &MalformedResponseError{Source: source, Reason: reason}
}

// IsTransport checks if the error chain contains a transport error
func IsTransport(err error) bool {
	var te *TransportError
	return stderrors.As(err, &te)
}

// IsMalformed checks if the error chain contains a malformed response error
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return stderrors.As(err, &me)
}

// StatusCode extracts the HTTP status from a transport error, or 0.
func StatusCode(err error) int {
	var te *TransportError
	if stderrors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}
