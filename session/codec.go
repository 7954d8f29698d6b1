package session

import (
	"encoding/json"
	"fmt"
)

// Encode serializes a record to the store's string representation.
func Encode(r *Record) (string, error) {
	if r == nil {
		return "", fmt.Errorf("session: encode nil record")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("session: encode: %w", err)
	}
	return string(data), nil
}

// Decode parses a stored payload back into a [Record]. Corrupt, empty, or
// alien payloads return nil rather than an error: a record that cannot be
// decoded is indistinguishable from a missing one and callers treat both as
// "no valid session".
func Decode(data string) *Record {
	if data == "" {
		return nil
	}

	var r Record
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil
	}
	if r.UserID == "" || r.SessionID == "" {
		return nil
	}

	return &r
}
