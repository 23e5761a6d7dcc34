package models

import "errors"

// Error taxonomy for one pairing request. Errors raised before the HTTP
// response is written are mapped to status codes by the daemon; errors
// raised afterwards are recovered locally and only ever logged.
var (
	// ErrInvalidIdentifier means the supplied phone number could not be
	// normalized into a valid international identifier. Maps to 400.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrPairingRequest means the remote service refused or failed to
	// issue a pairing code. Maps to 503.
	ErrPairingRequest = errors.New("pairing code request failed")

	// ErrSessionInit means local or remote session setup failed before
	// a pairing code could even be requested. Maps to 500.
	ErrSessionInit = errors.New("session initialization failed")

	// ErrDelivery means one or more credential delivery sends failed.
	// Never surfaced over HTTP; the response has already been written.
	ErrDelivery = errors.New("credential delivery failed")

	// ErrStorage wraps session directory read/write/remove failures.
	ErrStorage = errors.New("session storage failure")

	// ErrConnectionExhausted means the bounded reconnect policy gave up.
	ErrConnectionExhausted = errors.New("reconnect attempts exhausted")
)
