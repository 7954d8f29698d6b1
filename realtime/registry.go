package realtime

import (
	"sync"

	"github.com/relaychat/sessionauth"
)

// Registry tracks live authenticated connections. Each connection is keyed
// by a connection ID assigned at handshake time, never by user ID: a user
// reconnecting under a new session gets a new entry, and the stale one is
// removed when its connection closes.
type Registry struct {
	mu    sync.Mutex
	conns map[string]sessionauth.Identity
}

// NewRegistry returns an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]sessionauth.Identity)}
}

// Add records the identity behind a connection.
func (r *Registry) Add(connID string, id sessionauth.Identity) {
	r.mu.Lock()
	r.conns[connID] = id
	r.mu.Unlock()
}

// Remove forgets a connection. Removing an unknown ID is a no-op.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	delete(r.conns, connID)
	r.mu.Unlock()
}

// Get returns the identity behind a connection, if it is registered.
func (r *Registry) Get(connID string) (sessionauth.Identity, bool) {
	r.mu.Lock()
	id, ok := r.conns[connID]
	r.mu.Unlock()
	return id, ok
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	n := len(r.conns)
	r.mu.Unlock()
	return n
}
