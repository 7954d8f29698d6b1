// Package kv provides the key-value store contract consumed by the session
// core and its Redis implementation.
//
// # Contract
//
// Every operation is independently atomic per key. [Store] additionally
// exposes atomic multi-key writes (MULTI/EXEC pipeline) and a single-key
// compare-and-swap (Lua) so that callers can keep denormalized keys
// consistent without cross-key transactions.
//
// # Availability
//
// The Redis client applies a bounded reconnect policy (exponential backoff,
// capped retry count) and thereafter fails fast. Connectivity failures are
// surfaced wrapped in [ErrStoreUnavailable]; they are never retried here
// beyond the client's own policy.
//
// # What this package must NOT do
//
//   - Know about session key names, records, or the session lifecycle.
//   - Import sessionauth or any transport package.
//   - Swallow store errors or translate them into "not found".
package kv
