// Package sessionauth is the session-identity core of a multi-client chat
// backend. It decides, for every inbound HTTP request or realtime
// connection, whether a presented credential still represents a live,
// single, authorized session for a user.
//
// Two invariants drive the design: a user has at most one live session at
// any time (a new login invalidates all others), and sessions expire on a
// sliding window (activity extends life, inactivity kills it). Session
// state lives in Redis as four denormalized keys sharing one TTL, with the
// active-session pointer as the authoritative value.
//
// The package is designed for concurrent server workloads: [Service]
// methods are safe to call from multiple goroutines after initialization
// through [Builder.Build]. No in-process lock is held across store
// round-trips; every read-modify-write is a fresh read from the store
// followed by a fresh write.
//
// # Architecture boundaries
//
// sessionauth is the public surface. It exposes [Service], [Builder],
// [Config], and the validation result types. Storage lives in kv, the
// record model and codec in session, the credential manager in token, and
// the transport guards in middleware and realtime.
//
// # What this package must NOT do
//
//   - Expose Redis clients or key names in its public API.
//   - Perform I/O outside of Service methods.
//   - Interpret token internals; it only consumes a verified user claim.
package sessionauth
