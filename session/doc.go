// Package session defines the canonical session record, the denormalized
// Redis key scheme, and the JSON codec used to persist records.
//
// # Key scheme
//
// A single logical session is stored under four keys that always share one
// TTL window: the full record, a sessionID → userID reverse mapping, a
// per-user session pointer used for cleanup, and the authoritative
// active-session pointer compared during validation.
//
// # Architecture boundaries
//
// This package owns the [Record] model, [Keys] layout, and [Encode]/[Decode].
// It performs no I/O and makes no lifecycle decisions — those belong to the
// root Service.
//
// # What this package must NOT do
//
//   - Import sessionauth, kv, or any transport package (no upward imports).
//   - Talk to Redis or any other store.
//   - Interpret metadata contents; they are stored and returned verbatim.
package session
