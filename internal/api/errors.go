package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized is returned for 401/403 responses and when an
	// authenticated call is attempted without a token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("not found")

	// ErrMalformedResponse is returned when a 2xx body cannot be decoded or
	// lacks required fields.
	ErrMalformedResponse = errors.New("malformed response")
)

// StatusError is a non-2xx response from the remote API.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: http %d", e.Endpoint, e.Code)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Endpoint, e.Code, e.Body)
}

// Unwrap maps well-known status codes onto the package sentinels so callers
// can use errors.Is.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}
