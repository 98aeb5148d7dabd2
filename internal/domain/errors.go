package domain

import "errors"

// Session and channel failures.
var (
	// ErrCredentialAbsent is returned when no token material is stored at all.
	ErrCredentialAbsent = errors.New("credential absent")

	// ErrRenewalFailed is returned when the refresh endpoint is unreachable,
	// answers non-2xx or yields no usable access token.
	ErrRenewalFailed = errors.New("credential renewal failed")

	// ErrTransport is a socket or handshake failure.
	ErrTransport = errors.New("transport error")

	// ErrDuplicateDelivery marks a notification id seen before. It is absorbed,
	// never surfaced.
	ErrDuplicateDelivery = errors.New("duplicate delivery")

	// ErrMalformedPayload marks an inbound push missing required fields.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrNotConnected is returned by channel operations that need a live connection.
	ErrNotConnected = errors.New("real-time channel not connected")
)

// Outcomes of an authenticated API call as seen by callers.
var (
	ErrAuthenticationExpired = errors.New("authentication expired")
	ErrTransientFailure      = errors.New("transient failure")
	ErrValidationFailure     = errors.New("validation failure")
	ErrUnknown               = errors.New("unknown failure")
)
