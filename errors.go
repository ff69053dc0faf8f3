package questauth

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingCredential is returned when an operation needs a cached
	// credential and none is available.
	ErrMissingCredential = errors.New("no credential available, authorization required")

	// ErrAttemptsExhausted matches every *AttemptsExhaustedError.
	ErrAttemptsExhausted = errors.New("authorization attempts exhausted")

	ErrMissingClientID    = errors.New("client id is required")
	ErrMissingRedirectURL = errors.New("redirect url is required")
)

// NetworkError is a transport-level failure: no response was received.
// Context cancellation and deadlines surface as a NetworkError wrapping the
// context error.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	if e.URL == "" {
		return "network error: " + e.Err.Error()
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPStatusError is returned for any response whose status is not 200.
type HTTPStatusError struct {
	Code   int
	Reason string
	Header http.Header
	Body   []byte
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, e.Reason)
}

// Unauthorized reports whether the status is 401.
func (e *HTTPStatusError) Unauthorized() bool {
	return e.Code == http.StatusUnauthorized
}

// DecodeError is returned when a 200 response body does not match the
// expected shape.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "failed to decode response: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// AttemptsExhaustedError is delivered when a logical call used up its
// attempt bound on 401 responses. Last is the final 401, nil when the bound
// was already zero on entry.
type AttemptsExhaustedError struct {
	Attempts int
	Last     error
}

func (e *AttemptsExhaustedError) Error() string {
	if e.Last == nil {
		return ErrAttemptsExhausted.Error()
	}
	return fmt.Sprintf("%s after %d attempts: %v", ErrAttemptsExhausted, e.Attempts, e.Last)
}

func (e *AttemptsExhaustedError) Is(target error) bool {
	return target == ErrAttemptsExhausted
}

func (e *AttemptsExhaustedError) Unwrap() error {
	return e.Last
}

// URLParsingError reports a malformed authorization redirect or an invalid
// URL built internally.
type URLParsingError struct {
	URL    string
	Reason string
	Err    error
}

func (e *URLParsingError) Error() string {
	msg := "url parsing failed: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *URLParsingError) Unwrap() error {
	return e.Err
}

// StoreError indicates a key-value store failure. The cache recovers from
// these by treating the session as not authorized.
type StoreError struct {
	Op  string // "get", "set", "delete", "decode"
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether err is, or wraps, a 401 status error.
func IsUnauthorized(err error) bool {
	var statusErr *HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.Unauthorized()
}
