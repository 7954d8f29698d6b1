package kv

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by [Store.Get] when the key is absent or has
// expired. Absence is an expected steady-state outcome, not a fault.
var ErrKeyNotFound = errors.New("key not found")

// ErrStoreUnavailable wraps every connectivity failure surfaced by a [Store]
// implementation. Callers match it with errors.Is.
var ErrStoreUnavailable = errors.New("key-value store unavailable")

// Store is the contract the session core requires from its key-value
// backend. Operations are atomic per key; SetManyWithTTL and Delete are
// additionally atomic across the given keys, and CompareAndSwap is an
// atomic read-compare-write on a single key.
type Store interface {
	// Get returns the value under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) (string, error)

	// SetWithTTL writes value under key with the given expiry.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// SetManyWithTTL writes all entries with one shared expiry in a single
	// atomic batch.
	SetManyWithTTL(ctx context.Context, entries map[string]string, ttl time.Duration) error

	// Delete removes the given keys in a single atomic batch. Missing keys
	// are not an error.
	Delete(ctx context.Context, keys ...string) error

	// RefreshTTL resets the expiry on the given keys. Missing keys are
	// skipped silently.
	RefreshTTL(ctx context.Context, ttl time.Duration, keys ...string) error

	// CompareAndSwap writes value under key with the given expiry only when
	// the current value equals expect. An empty expect requires the key to
	// be absent. Returns false when the guard failed, without writing.
	CompareAndSwap(ctx context.Context, key, expect, value string, ttl time.Duration) (bool, error)

	// Ping reports point-in-time availability and round-trip latency.
	Ping(ctx context.Context) (time.Duration, error)
}
