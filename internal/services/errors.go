// Package services implements the client-side synchronization core: credential
// persistence, the session lifecycle, the remote collection cache, favorites
// reconciliation, and the local cart. This file centralizes the service-level
// error taxonomy so callers branch on errors.Is rather than on raw transport or
// storage failures.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

// Session errors.
var (
	// ErrNoSession indicates that no credentials are stored. The user must
	// authenticate; this is not an application error.
	ErrNoSession = errors.New("no session")

	// ErrExpired indicates that the server rejected the access token. It is
	// recovered via refresh and never surfaced to the user.
	ErrExpired = errors.New("access token expired")

	// ErrRefreshFailed indicates that the refresh token was rejected or the
	// refresh call failed. The session has already been wiped.
	ErrRefreshFailed = errors.New("session refresh failed")

	// ErrUnauthenticated is returned by authenticated operations invoked
	// without a token, or whose token the server rejected.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrLoginFailed is returned when login or registration is refused.
	ErrLoginFailed = errors.New("login failed")
)

// Data errors.
var (
	// ErrRequestFailed wraps any other non-2xx response or network failure on
	// a data-fetching call.
	ErrRequestFailed = errors.New("request failed")

	// ErrSuperseded is returned when a response arrives for a request whose
	// parameters no longer match the caller's current intent.
	ErrSuperseded = errors.New("request superseded")
)

// Cart errors.
var (
	// ErrInvalidItem is returned when a cart item lacks an id or carries a
	// negative price or fee.
	ErrInvalidItem = errors.New("invalid cart item")

	// ErrLineNotFound is returned when a cart line hash is not in the cart.
	ErrLineNotFound = errors.New("cart line not found")
)
