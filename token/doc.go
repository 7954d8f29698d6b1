// Package token implements the credential boundary of the session core: it
// mints and verifies the opaque signed credential that carries {userId,
// sessionId} between login and every subsequent request.
//
// The guards never inspect credential internals; they consume the verified
// claims through the sessionauth.TokenVerifier interface, which [Manager]
// satisfies.
//
// # What this package must NOT do
//
//   - Touch Redis or the session lifecycle.
//   - Embed session state beyond the two identity claims.
package token
