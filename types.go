package sessionauth

import (
	"context"
	"net/http"
	"time"

	"github.com/relaychat/sessionauth/session"
)

// ErrorKind classifies a failed validation. Kinds are stable strings safe to
// expose in API responses.
type ErrorKind string

const (
	// KindInvalidParameters marks a malformed request: missing userId or
	// sessionId. Caller-side bug, never retried.
	KindInvalidParameters ErrorKind = "INVALID_PARAMETERS"
	// KindInvalidSession marks a sessionId that no longer matches the
	// active one: the session was superseded by another login.
	KindInvalidSession ErrorKind = "INVALID_SESSION"
	// KindSessionNotFound marks an active pointer whose record is missing
	// or corrupt.
	KindSessionNotFound ErrorKind = "SESSION_NOT_FOUND"
	// KindSessionExpired marks a session past the inactivity ceiling. The
	// session is proactively deleted before this kind is reported.
	KindSessionExpired ErrorKind = "SESSION_EXPIRED"
	// KindUpdateFailed marks a store write failure while refreshing an
	// otherwise-valid session. Safe for the client to retry.
	KindUpdateFailed ErrorKind = "UPDATE_FAILED"
	// KindValidationError marks an unexpected store failure during
	// validation. Safe to retry with backoff.
	KindValidationError ErrorKind = "VALIDATION_ERROR"
)

// HTTPStatus maps the kind to its response status: 400 for parameter
// errors, 401 for every session-invalid kind, 500 for store failures.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindInvalidParameters:
		return http.StatusBadRequest
	case KindInvalidSession, KindSessionNotFound, KindSessionExpired:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the client may safely retry the same request.
func (k ErrorKind) Retryable() bool {
	return k == KindUpdateFailed || k == KindValidationError
}

// ValidationResult is returned by [Service.ValidateSession]. Expected
// negative outcomes (superseded, missing, expired) are values, not errors.
type ValidationResult struct {
	Valid   bool
	Session *session.Record
	Kind    ErrorKind
	Message string
}

// CreateSessionResult is returned by [Service.CreateSession].
type CreateSessionResult struct {
	SessionID string
	ExpiresIn time.Duration
}

// Identity is the resolved caller identity attached to a request or
// connection context after a guard accepts it.
type Identity struct {
	UserID    string
	SessionID string
}

// Claims is the decoded content of a verified credential.
type Claims struct {
	UserID    string
	SessionID string
}

// TokenVerifier is the external credential boundary consumed by the guards.
// Implementations check the signature and expiry of an opaque credential
// string and return the identity claims embedded at issuance.
type TokenVerifier interface {
	Verify(ctx context.Context, credential string) (Claims, error)
}

// VerifierFunc adapts a function to the [TokenVerifier] interface.
type VerifierFunc func(ctx context.Context, credential string) (Claims, error)

// Verify implements [TokenVerifier].
func (f VerifierFunc) Verify(ctx context.Context, credential string) (Claims, error) {
	return f(ctx, credential)
}
