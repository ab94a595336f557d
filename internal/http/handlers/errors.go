// Package handlers defines the error codes returned by the local bridge.
//
// Clients branch on these codes, never on messages. "reauthenticate" is the
// only code that should send the user back to the sign-in screen.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Session:
	ErrCodeReauthenticate = "reauthenticate"
	ErrCodeLoginFailed    = "login_failed"

	// Remote data:
	ErrCodeRequestFailed = "request_failed"
	ErrCodeSuperseded    = "superseded"

	// Cart:
	ErrCodeInvalidItem = "invalid_item"
)
