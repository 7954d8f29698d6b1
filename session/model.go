package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// Record is the sole session entity. Timestamps are epoch milliseconds.
//
// Record instances are intended to be configured during creation and then
// treated as immutable, except for LastActivity which is restamped on every
// successful validation or heartbeat.
type Record struct {
	UserID       string            `json:"userId"`
	SessionID    string            `json:"sessionId"`
	CreatedAt    int64             `json:"createdAt"`
	LastActivity int64             `json:"lastActivity"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Idle returns how long the record has been without activity as of now.
func (r *Record) Idle(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(r.LastActivity))
}

// idSize is 32 bytes = 256 bits of entropy.
const idSize = 32

// NewID generates a cryptographically random session ID. IDs are never
// reused and are not guessable.
func NewID() (string, error) {
	b := make([]byte, idSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: generate id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
