// Package middleware exposes the HTTP credential guard: it resolves the
// {auth-token, session-id} pair from a request, verifies the token, asks the
// session service whether the session is still live, and attaches the
// resolved identity to the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Service calls. It does NOT
// implement authentication logic itself — every decision is delegated to the
// token verifier and Service.ValidateSession, and no failure, including an
// unreachable store, ever reaches handler code as anything but a rejected
// request.
//
// # What this package must NOT do
//
//   - Parse or create credentials directly (delegates to the verifier).
//   - Access Redis (the Service handles I/O).
//   - Make authorization decisions beyond pass/reject.
package middleware
