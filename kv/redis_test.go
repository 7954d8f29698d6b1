package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStoreTest(t *testing.T) (*Redis, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisFromClient(rdb)
	return store, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestGetSetRoundTrip(t *testing.T) {
	store, _, done := newRedisStoreTest(t)
	defer done()
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}

	if err := store.SetWithTTL(ctx, "k", "v", time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "v" {
		t.Fatalf("got %q want %q", val, "v")
	}
}

func TestTTLExpiryBecomesNotFound(t *testing.T) {
	store, mr, done := newRedisStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.SetWithTTL(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound after expiry, got %v", err)
	}
}

func TestSetManyWithTTLSharesWindow(t *testing.T) {
	store, mr, done := newRedisStoreTest(t)
	defer done()
	ctx := context.Background()

	entries := map[string]string{"a": "1", "b": "2", "c": "3"}
	if err := store.SetManyWithTTL(ctx, entries, time.Minute); err != nil {
		t.Fatalf("set many: %v", err)
	}
	for key, want := range entries {
		got, err := store.Get(ctx, key)
		if err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
		if got != want {
			t.Fatalf("%s: got %q want %q", key, got, want)
		}
	}

	mr.FastForward(2 * time.Minute)
	for key := range entries {
		if _, err := store.Get(ctx, key); !errors.Is(err, ErrKeyNotFound) {
			t.Fatalf("%s survived shared TTL window", key)
		}
	}
}

func TestRefreshTTLExtendsAllKeys(t *testing.T) {
	store, mr, done := newRedisStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.SetManyWithTTL(ctx, map[string]string{"a": "1", "b": "2"}, time.Minute); err != nil {
		t.Fatalf("set many: %v", err)
	}

	mr.FastForward(30 * time.Second)
	if err := store.RefreshTTL(ctx, time.Minute, "a", "b"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	mr.FastForward(45 * time.Second)

	for _, key := range []string{"a", "b"} {
		if _, err := store.Get(ctx, key); err != nil {
			t.Fatalf("%s expired despite refresh: %v", key, err)
		}
	}
}

func TestRefreshTTLSkipsMissingKeys(t *testing.T) {
	store, _, done := newRedisStoreTest(t)
	defer done()

	if err := store.RefreshTTL(context.Background(), time.Minute, "nope"); err != nil {
		t.Fatalf("refresh of missing key errored: %v", err)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	store, _, done := newRedisStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.SetWithTTL(ctx, "k", "v", time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Delete(ctx, "k", "unrelated"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestCompareAndSwap(t *testing.T) {
	store, _, done := newRedisStoreTest(t)
	defer done()
	ctx := context.Background()

	// Empty expect claims an absent key.
	ok, err := store.CompareAndSwap(ctx, "ptr", "", "s1", time.Hour)
	if err != nil {
		t.Fatalf("cas absent: %v", err)
	}
	if !ok {
		t.Fatal("cas on absent key should succeed")
	}

	// Claiming again with empty expect must fail: the key now exists.
	ok, err = store.CompareAndSwap(ctx, "ptr", "", "s2", time.Hour)
	if err != nil {
		t.Fatalf("cas conflict: %v", err)
	}
	if ok {
		t.Fatal("cas with empty expect succeeded against existing key")
	}
	val, _ := store.Get(ctx, "ptr")
	if val != "s1" {
		t.Fatalf("losing cas overwrote value: %q", val)
	}

	// Swap with the correct expect.
	ok, err = store.CompareAndSwap(ctx, "ptr", "s1", "s2", time.Hour)
	if err != nil {
		t.Fatalf("cas swap: %v", err)
	}
	if !ok {
		t.Fatal("cas with matching expect failed")
	}
	val, _ = store.Get(ctx, "ptr")
	if val != "s2" {
		t.Fatalf("cas did not write: %q", val)
	}

	// Stale expect loses.
	ok, err = store.CompareAndSwap(ctx, "ptr", "s1", "s3", time.Hour)
	if err != nil {
		t.Fatalf("cas stale: %v", err)
	}
	if ok {
		t.Fatal("cas with stale expect succeeded")
	}
}

func TestStoreUnavailableSentinel(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t)
	mr.Close()

	_, err := store.Get(context.Background(), "k")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := store.Ping(context.Background()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from ping, got %v", err)
	}
}
