package sessionauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaychat/sessionauth/kv"
	"github.com/relaychat/sessionauth/session"
)

// Service owns the session lifecycle: create, validate, refresh, remove.
// It enforces the single-active-session invariant and sliding expiration
// over the four denormalized keys in the key-value store.
//
// Service methods are safe for concurrent use. Expected lifecycle outcomes
// (no session, superseded session, expired session) are returned as values;
// only construction and removal failures are errors.
type Service struct {
	store   kv.Store
	keys    session.Keys
	cfg     SessionConfig
	log     zerolog.Logger
	metrics *metrics
}

// CreateSession unconditionally replaces any prior session for userID and
// persists a fresh one under all four keys with one shared TTL.
//
// The active pointer is claimed with a compare-and-swap; when a concurrent
// login claims it first, the whole remove-and-claim loop is retried up to
// the configured bound. Partial writes from a failed create are not rolled
// back — the next create or the store TTL cleans them up.
func (s *Service) CreateSession(ctx context.Context, userID string, metadata map[string]string) (*CreateSessionResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidUserID)
	}

	metadata = s.enrichMetadata(ctx, metadata)

	for attempt := 0; attempt < s.cfg.CreateRetries; attempt++ {
		if err := s.RemoveAllSessionsForUser(ctx, userID); err != nil {
			return nil, fmt.Errorf("%w: clearing prior sessions: %v", ErrSessionCreationFailed, err)
		}

		sessionID, err := session.NewID()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
		}

		now := time.Now().UnixMilli()
		encoded, err := session.Encode(&session.Record{
			UserID:       userID,
			SessionID:    sessionID,
			CreatedAt:    now,
			LastActivity: now,
			Metadata:     metadata,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
		}

		claimed, err := s.store.CompareAndSwap(ctx, s.keys.ActivePointer(userID), "", sessionID, s.cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
		}
		if !claimed {
			// A concurrent login claimed the pointer between our cleanup
			// and our write. Re-run the loop; last login wins.
			s.log.Debug().Str("user_id", userID).Int("attempt", attempt+1).
				Msg("active pointer claimed concurrently, retrying create")
			continue
		}

		err = s.store.SetManyWithTTL(ctx, map[string]string{
			s.keys.Record(userID):      encoded,
			s.keys.Reverse(sessionID):  userID,
			s.keys.UserPointer(userID): sessionID,
		}, s.cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
		}

		s.metrics.sessionsCreated.Inc()
		s.log.Info().Str("user_id", userID).Msg("session created")

		return &CreateSessionResult{SessionID: sessionID, ExpiresIn: s.cfg.TTL}, nil
	}

	return nil, fmt.Errorf("%w: concurrent logins kept replacing the active session", ErrSessionCreationFailed)
}

// ValidateSession checks that sessionID is the live session for userID and,
// on success, restamps lastActivity and slides the TTL window forward on all
// four keys. Failures are classified by [ErrorKind]; store failures are
// reported as such, never silently treated as valid or invalid.
func (s *Service) ValidateSession(ctx context.Context, userID, sessionID string) *ValidationResult {
	if userID == "" || sessionID == "" {
		return s.invalid(KindInvalidParameters, "userId and sessionId are required")
	}

	// The active pointer is authoritative. A pointer naming a different
	// session means this one was superseded; an absent pointer means no
	// session survives at all, which classifies like a missing record.
	active, err := s.store.Get(ctx, s.keys.ActivePointer(userID))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return s.invalid(KindSessionNotFound, "no active session for user")
		}
		return s.storeFailure(KindValidationError, userID, err)
	}
	if active != sessionID {
		return s.invalid(KindInvalidSession, "a newer session has replaced this one")
	}

	raw, err := s.store.Get(ctx, s.keys.Record(userID))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return s.invalid(KindSessionNotFound, "session record not found")
		}
		return s.storeFailure(KindValidationError, userID, err)
	}
	rec := session.Decode(raw)
	if rec == nil {
		return s.invalid(KindSessionNotFound, "session record not found")
	}

	now := time.Now()
	if rec.Idle(now) > s.cfg.InactivityCeiling {
		if err := s.deleteSessionKeys(ctx, userID, rec.SessionID); err != nil {
			return s.storeFailure(KindValidationError, userID, err)
		}
		s.metrics.sessionsRemoved.Inc()
		s.log.Info().Str("user_id", userID).Msg("stale session removed")
		return s.invalid(KindSessionExpired, "session expired, please log in again")
	}

	rec.LastActivity = now.UnixMilli()
	encoded, err := session.Encode(rec)
	if err != nil {
		return s.storeFailure(KindUpdateFailed, userID, err)
	}
	if err := s.store.SetWithTTL(ctx, s.keys.Record(userID), encoded, s.cfg.TTL); err != nil {
		return s.storeFailure(KindUpdateFailed, userID, err)
	}
	err = s.store.RefreshTTL(ctx, s.cfg.TTL,
		s.keys.ActivePointer(userID),
		s.keys.UserPointer(userID),
		s.keys.Reverse(rec.SessionID),
	)
	if err != nil {
		return s.storeFailure(KindUpdateFailed, userID, err)
	}

	res := &ValidationResult{Valid: true, Session: rec}
	s.metrics.observeValidation(res)
	return res
}

// RemoveSession removes the session currently pointed to for userID. When
// sessionID is non-empty, removal only happens if it still matches the
// active pointer — a session already replaced by a concurrent login is left
// alone. Removing a missing session is a no-op, not an error.
func (s *Service) RemoveSession(ctx context.Context, userID, sessionID string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidUserID)
	}

	active, err := s.store.Get(ctx, s.keys.ActivePointer(userID))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrSessionRemovalFailed, err)
	}
	if sessionID != "" && sessionID != active {
		return nil
	}

	if err := s.deleteSessionKeys(ctx, userID, active); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionRemovalFailed, err)
	}

	s.metrics.sessionsRemoved.Inc()
	s.log.Info().Str("user_id", userID).Msg("session removed")
	return nil
}

// RemoveAllSessionsForUser deletes both pointers unconditionally and, when a
// pointer was present, the session record and the reverse mapping it names.
// Missing keys are tolerated. Used standalone for force-logout and as the
// first step of CreateSession.
func (s *Service) RemoveAllSessionsForUser(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidUserID)
	}

	pointers := []string{
		s.keys.ActivePointer(userID),
		s.keys.UserPointer(userID),
	}
	keys := append([]string(nil), pointers...)

	// Either pointer may name the session; after a partial write they can
	// disagree, so the reverse mapping of each distinct value is removed.
	for _, pointerKey := range pointers {
		sid, err := s.store.Get(ctx, pointerKey)
		if err != nil {
			if errors.Is(err, kv.ErrKeyNotFound) {
				continue
			}
			return fmt.Errorf("%w: %v", ErrSessionRemovalFailed, err)
		}
		keys = appendUnique(keys, s.keys.Record(userID), s.keys.Reverse(sid))
	}

	if err := s.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionRemovalFailed, err)
	}
	return nil
}

// UpdateLastActivity is a lighter-weight heartbeat than ValidateSession: it
// restamps lastActivity and slides the TTL window without checking the
// active pointer. Returns false when no session exists — an absent session
// is an expected steady-state outcome, not a fault.
func (s *Service) UpdateLastActivity(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("%w: empty user id", ErrInvalidUserID)
	}

	raw, err := s.store.Get(ctx, s.keys.Record(userID))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	rec := session.Decode(raw)
	if rec == nil {
		return false, nil
	}

	rec.LastActivity = time.Now().UnixMilli()
	encoded, err := session.Encode(rec)
	if err != nil {
		return false, err
	}
	if err := s.store.SetWithTTL(ctx, s.keys.Record(userID), encoded, s.cfg.TTL); err != nil {
		return false, err
	}
	err = s.store.RefreshTTL(ctx, s.cfg.TTL,
		s.keys.ActivePointer(userID),
		s.keys.UserPointer(userID),
		s.keys.Reverse(rec.SessionID),
	)
	if err != nil {
		return false, err
	}

	s.metrics.heartbeats.Inc()
	return true, nil
}

// GetActiveSession resolves the active pointer and loads the record without
// mutating activity or TTL. A pointer whose record is missing or that names
// a different session is a partial write: the dangling keys are deleted as a
// side effect and nil is returned (self-healing read).
func (s *Service) GetActiveSession(ctx context.Context, userID string) (*session.Record, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidUserID)
	}

	active, err := s.store.Get(ctx, s.keys.ActivePointer(userID))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	raw, err := s.store.Get(ctx, s.keys.Record(userID))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			if healErr := s.deleteSessionKeys(ctx, userID, active); healErr != nil {
				return nil, healErr
			}
			s.log.Warn().Str("user_id", userID).Msg("healed dangling active pointer")
			return nil, nil
		}
		return nil, err
	}

	rec := session.Decode(raw)
	if rec == nil || rec.SessionID != active {
		if healErr := s.deleteSessionKeys(ctx, userID, active); healErr != nil {
			return nil, healErr
		}
		s.log.Warn().Str("user_id", userID).Msg("healed inconsistent session record")
		return nil, nil
	}

	return rec, nil
}

// deleteSessionKeys removes all four keys of one logical session in a
// single atomic batch.
func (s *Service) deleteSessionKeys(ctx context.Context, userID, sessionID string) error {
	return s.store.Delete(ctx,
		s.keys.Record(userID),
		s.keys.Reverse(sessionID),
		s.keys.UserPointer(userID),
		s.keys.ActivePointer(userID),
	)
}

func (s *Service) invalid(kind ErrorKind, message string) *ValidationResult {
	res := &ValidationResult{Kind: kind, Message: message}
	s.metrics.observeValidation(res)
	return res
}

func (s *Service) storeFailure(kind ErrorKind, userID string, err error) *ValidationResult {
	s.log.Error().Err(err).Str("user_id", userID).Msg("store failure during validation")
	return s.invalid(kind, err.Error())
}

func (s *Service) enrichMetadata(ctx context.Context, metadata map[string]string) map[string]string {
	ambient := map[string]string{
		"ip":        clientIPFromContext(ctx),
		"userAgent": userAgentFromContext(ctx),
		"device":    deviceFromContext(ctx),
	}

	for key, value := range ambient {
		if value == "" {
			continue
		}
		if _, set := metadata[key]; set {
			continue
		}
		if metadata == nil {
			metadata = make(map[string]string, len(ambient))
		}
		metadata[key] = value
	}

	return metadata
}

func appendUnique(keys []string, candidates ...string) []string {
	for _, candidate := range candidates {
		seen := false
		for _, key := range keys {
			if key == candidate {
				seen = true
				break
			}
		}
		if !seen {
			keys = append(keys, candidate)
		}
	}
	return keys
}
