package session

// Keys builds the four denormalized key names for a logical session.
// All four always share one TTL window and are written, refreshed, and
// deleted together — never independently.
type Keys struct {
	prefix string
}

// NewKeys returns a key builder namespaced under prefix. An empty prefix
// yields the bare key names.
func NewKeys(prefix string) Keys {
	if prefix != "" && prefix[len(prefix)-1] != ':' {
		prefix += ":"
	}
	return Keys{prefix: prefix}
}

// Record is the key holding the full JSON session record.
func (k Keys) Record(userID string) string {
	return k.prefix + "session:" + userID
}

// Reverse is the sessionID → userID reverse-lookup key.
func (k Keys) Reverse(sessionID string) string {
	return k.prefix + "sessionId:" + sessionID
}

// UserPointer is the per-user session pointer used for cleanup.
func (k Keys) UserPointer(userID string) string {
	return k.prefix + "user_sessions:" + userID
}

// ActivePointer is the authoritative key compared during validation. For a
// given user, at most one sessionID is active: whatever this key holds.
func (k Keys) ActivePointer(userID string) string {
	return k.prefix + "active_session:" + userID
}
