package sessionauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/relaychat/sessionauth/session"
)

func newServiceTest(t *testing.T, ceiling time.Duration) (*Service, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := defaultConfig()
	cfg.Session.InactivityCeiling = ceiling

	svc, err := New().WithConfig(cfg).WithRedis(rdb).Build(context.Background())
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	return svc, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

// seedStaleActivity rewrites the stored record so the session looks idle for
// longer than the given duration, without touching the pointer keys.
func seedStaleActivity(t *testing.T, svc *Service, userID string, idle time.Duration) {
	t.Helper()
	ctx := context.Background()

	raw, err := svc.store.Get(ctx, svc.keys.Record(userID))
	if err != nil {
		t.Fatalf("load record: %v", err)
	}
	rec := session.Decode(raw)
	if rec == nil {
		t.Fatal("seeded record did not decode")
	}
	rec.LastActivity = time.Now().Add(-idle).UnixMilli()

	encoded, err := session.Encode(rec)
	if err != nil {
		t.Fatalf("encode stale record: %v", err)
	}
	if err := svc.store.SetWithTTL(ctx, svc.keys.Record(userID), encoded, svc.cfg.TTL); err != nil {
		t.Fatalf("store stale record: %v", err)
	}
}

func TestCreateSessionRejectsEmptyUser(t *testing.T) {
	svc, _, done := newServiceTest(t, time.Hour)
	defer done()

	if _, err := svc.CreateSession(context.Background(), "", nil); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
}

func TestValidateSessionParameterChecks(t *testing.T) {
	svc, _, done := newServiceTest(t, time.Hour)
	defer done()
	ctx := context.Background()

	for _, tc := range []struct{ userID, sessionID string }{
		{"", "sid"},
		{"u-1", ""},
		{"", ""},
	} {
		res := svc.ValidateSession(ctx, tc.userID, tc.sessionID)
		if res.Valid || res.Kind != KindInvalidParameters {
			t.Fatalf("(%q,%q): got %+v, want INVALID_PARAMETERS", tc.userID, tc.sessionID, res)
		}
	}
}

func TestSingleActiveSession(t *testing.T) {
	svc, _, done := newServiceTest(t, time.Hour)
	defer done()
	ctx := context.Background()

	first, err := svc.CreateSession(ctx, "u-1", map[string]string{"device": "laptop"})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := svc.CreateSession(ctx, "u-1", map[string]string{"device": "phone"})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.SessionID == second.SessionID {
		t.Fatal("session ids must be unique per login")
	}

	res := svc.ValidateSession(ctx, "u-1", first.SessionID)
	if res.Valid || res.Kind != KindInvalidSession {
		t.Fatalf("superseded session: got %+v, want INVALID_SESSION", res)
	}

	res = svc.ValidateSession(ctx, "u-1", second.SessionID)
	if !res.Valid {
		t.Fatalf("current session rejected: %+v", res)
	}
	if res.Session.Metadata["device"] != "phone" {
		t.Fatalf("metadata lost: %+v", res.Session.Metadata)
	}
}

func TestCreateSessionReplacesAllPriorKeys(t *testing.T) {
	svc, mr, done := newServiceTest(t, time.Hour)
	defer done()
	ctx := context.Background()

	first, err := svc.CreateSession(ctx, "u-1", nil)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := svc.CreateSession(ctx, "u-1", nil); err != nil {
		t.Fatalf("second create: %v", err)
	}

	if mr.Exists(svc.keys.Reverse(first.SessionID)) {
		t.Fatal("reverse mapping of replaced session survived")
	}
}

func TestValidateRefreshesActivityAndTTL(t *testing.T) {
	svc, _, done := newServiceTest(t, time.Hour)
	defer done()
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "u-1", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	before, err := svc.GetActiveSession(ctx, "u-1")
	if err != nil || before == nil {
		t.Fatalf("get active: %v %v", before, err)
	}

	time.Sleep(20 * time.Millisecond)
	res := svc.ValidateSession(ctx, "u-1", created.SessionID)
	if !res.Valid {
		t.Fatalf("validate: %+v", res)
	}
	if res.Session.LastActivity <= before.LastActivity {
		t.Fatalf("lastActivity not advanced: %d -> %d", before.LastActivity, res.Session.LastActivity)
	}
}

func TestSlidingExpirationUnderActivity(t *testing.T) {
	ceiling := 200 * time.Millisecond
	svc, _, done := newServiceTest(t, ceiling)
	defer done()
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "u-1", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Keep touching the session at intervals below the ceiling for longer
	// than the ceiling itself; it must stay valid throughout.
	for i := 0; i < 5; i++ {
		time.Sleep(60 * time.Millisecond)
		res := svc.ValidateSession(ctx, "u-1", created.SessionID)
		if !res.Valid {
			t.Fatalf("iteration %d: session expired despite activity: %+v", i, res)
		}
	}
}

func TestInactivityCeilingExpiresSession(t *testing.T) {
	svc, mr, done := newServiceTest(t, time.Minute)
	defer done()
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "u-1", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	seedStaleActivity(t, svc, "u-1", 2*time.Minute)

	res := svc.ValidateSession(ctx, "u-1", created.SessionID)
	if res.Valid || res.Kind != KindSessionExpired {
		t.Fatalf("stale session: got %+v, want SESSION_EXPIRED", res)
	}

	// The expired session was proactively deleted, all four keys at once.
	for _, key := range []string{
		svc.keys.Record("u-1"),
		svc.keys.Reverse(created.SessionID),
		svc.keys.UserPointer("u-1"),
		svc.keys.ActivePointer("u-1"),
	} {
		if mr.Exists(key) {
			t.Fatalf("key %s survived proactive expiry", key)
		}
	}

	res = svc.ValidateSession(ctx, "u-1", created.SessionID)
	if res.Valid || res.Kind != KindSessionNotFound {
		t.Fatalf("follow-up validate: got %+v, want SESSION_NOT_FOUND", res)
	}
}

func TestRemoveSessionIdempotent(t *testing.T) {
	svc, _, done := newServiceTest(t, time.Hour)
	defer done()
	ctx := context.Background()

	if _, err := svc.CreateSession(ctx, "u-1", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.RemoveSession(ctx, "u-1", ""); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if err := svc.RemoveSession(ctx, "u-1", ""); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}

func TestRemoveSessionSkipsReplacedSession(t *testing.T) {
	svc, _, done := newServiceTest(t, time.Hour)
	defer done()
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "u-1", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// A logout racing a newer login must not tear down the newer session.
	if err := svc.RemoveSession(ctx, "u-1", "some-older-session"); err != nil {
		t.Fatalf("mismatched remove: %v", err)
	}
	res := svc.ValidateSession(ctx, "u-1", created.SessionID)
	if !res.Valid {
		t.Fatalf("current session was removed by mismatched logout: %+v", res)
	}
}

func TestUpdateLastActivityHeartbeat(t *testing.T) {
	svc, _, done := newServiceTest(t, time.Hour)
	defer done()
	ctx := context.Background()

	// Absent session is an expected outcome, not a fault.
	ok, err := svc.UpdateLastActivity(ctx, "ghost")
	if err != nil {
		t.Fatalf("heartbeat on absent session errored: %v", err)
	}
	if ok {
		t.Fatal("heartbeat reported success without a session")
	}

	if _, err := svc.CreateSession(ctx, "u-1", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	before, _ := svc.GetActiveSession(ctx, "u-1")

	time.Sleep(20 * time.Millisecond)
	ok, err = svc.UpdateLastActivity(ctx, "u-1")
	if err != nil || !ok {
		t.Fatalf("heartbeat: ok=%v err=%v", ok, err)
	}

	after, _ := svc.GetActiveSession(ctx, "u-1")
	if after == nil || after.LastActivity <= before.LastActivity {
		t.Fatal("heartbeat did not advance lastActivity")
	}
}

func TestSelfHealingRead(t *testing.T) {
	svc, mr, done := newServiceTest(t, time.Hour)
	defer done()
	ctx := context.Background()

	if _, err := svc.CreateSession(ctx, "u-1", nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Delete the record out of band, leaving the pointers dangling.
	mr.Del(svc.keys.Record("u-1"))

	rec, err := svc.GetActiveSession(ctx, "u-1")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if rec != nil {
		t.Fatalf("dangling pointer resolved to a record: %+v", rec)
	}
	if mr.Exists(svc.keys.ActivePointer("u-1")) {
		t.Fatal("dangling active pointer was not healed")
	}
}

func TestGetActiveSessionAbsent(t *testing.T) {
	svc, _, done := newServiceTest(t, time.Hour)
	defer done()

	rec, err := svc.GetActiveSession(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil, got %+v", rec)
	}
}

func TestCreateSessionEnrichesMetadataFromContext(t *testing.T) {
	svc, _, done := newServiceTest(t, time.Hour)
	defer done()

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	ctx = WithUserAgent(ctx, "Mozilla/5.0")
	ctx = WithDevice(ctx, "pixel-9")

	if _, err := svc.CreateSession(ctx, "u-1", map[string]string{"ip": "explicit"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec, err := svc.GetActiveSession(ctx, "u-1")
	if err != nil || rec == nil {
		t.Fatalf("get active: %v %v", rec, err)
	}
	// Explicit metadata wins over ambient context values.
	if rec.Metadata["ip"] != "explicit" {
		t.Fatalf("explicit metadata overwritten: %+v", rec.Metadata)
	}
	if rec.Metadata["userAgent"] != "Mozilla/5.0" || rec.Metadata["device"] != "pixel-9" {
		t.Fatalf("ambient metadata missing: %+v", rec.Metadata)
	}
}

func TestValidateReportsStoreFailure(t *testing.T) {
	svc, mr, _ := newServiceTest(t, time.Hour)
	mr.Close()

	res := svc.ValidateSession(context.Background(), "u-1", "sid")
	if res.Valid || res.Kind != KindValidationError {
		t.Fatalf("got %+v, want VALIDATION_ERROR", res)
	}
	if !res.Kind.Retryable() {
		t.Fatal("VALIDATION_ERROR must be retryable")
	}
}

// Full lifecycle walk: login, idle, validate, second login kicks the first
// device, logout, validate again.
func TestLifecycleScenario(t *testing.T) {
	svc, _, done := newServiceTest(t, time.Hour)
	defer done()
	ctx := context.Background()

	s1, err := svc.CreateSession(ctx, "alice", map[string]string{"device": "laptop"})
	if err != nil {
		t.Fatalf("login 1: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	res := svc.ValidateSession(ctx, "alice", s1.SessionID)
	if !res.Valid {
		t.Fatalf("validate after idle: %+v", res)
	}
	if res.Session.LastActivity <= res.Session.CreatedAt {
		t.Fatal("lastActivity not updated on validate")
	}

	s2, err := svc.CreateSession(ctx, "alice", map[string]string{"device": "phone"})
	if err != nil {
		t.Fatalf("login 2: %v", err)
	}

	res = svc.ValidateSession(ctx, "alice", s1.SessionID)
	if res.Valid || res.Kind != KindInvalidSession {
		t.Fatalf("first device after second login: got %+v, want INVALID_SESSION", res)
	}
	res = svc.ValidateSession(ctx, "alice", s2.SessionID)
	if !res.Valid {
		t.Fatalf("second device: %+v", res)
	}

	if err := svc.RemoveSession(ctx, "alice", s2.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	res = svc.ValidateSession(ctx, "alice", s2.SessionID)
	if res.Valid || res.Kind != KindSessionNotFound {
		t.Fatalf("after logout: got %+v, want SESSION_NOT_FOUND", res)
	}
}
