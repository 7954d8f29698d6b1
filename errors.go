package sessionauth

import "errors"

var (
	// ErrInvalidUserID is returned when a lifecycle operation is invoked
	// with an empty user identifier.
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrSessionCreationFailed is returned when CreateSession could not
	// durably persist the new session. Callers must fail fast rather than
	// issue a credential for a session that was never stored.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrSessionRemovalFailed is returned when an explicit logout could not
	// reach the store.
	ErrSessionRemovalFailed = errors.New("session removal failed")
	// ErrServiceNotReady is returned by Builder.Build when mandatory wiring
	// is missing.
	ErrServiceNotReady = errors.New("service not initialized")
)
