// Package realtime exposes the credential guard for WebSocket connections.
// Credentials arrive once, in a connection-handshake frame, rather than
// per-message: the guard reads that frame, verifies the token, validates
// the session, and only then hands the connection to application code.
//
// The guard owns the registry of live connections (connection-id →
// identity), with explicit insert-on-connect and delete-on-disconnect.
// Nothing outside this package holds connection state.
//
// # What this package must NOT do
//
//   - Re-check credentials on every message; the handshake decision stands
//     for the connection lifetime.
//   - Keep connection state in package-level globals.
package realtime
