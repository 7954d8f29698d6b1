package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/relaychat/sessionauth"
)

// DefaultHandshakeTimeout bounds how long a freshly accepted connection may
// take to send its credential frame before it is dropped.
const DefaultHandshakeTimeout = 10 * time.Second

// handshake is the single credential frame a client sends after the
// WebSocket upgrade completes.
type handshake struct {
	Token     string `json:"token"`
	SessionID string `json:"sessionId"`
}

// Handler receives an authenticated connection. The context carries the
// request's cancellation; the connection is already registered and is
// unregistered when Close is called.
type Handler func(ctx context.Context, conn *Conn)

// Conn is an authenticated WebSocket connection. It carries the identity
// established at handshake time for the lifetime of the connection.
type Conn struct {
	ID       string
	Identity sessionauth.Identity

	ws       *websocket.Conn
	registry *Registry
}

// Read returns the next message from the peer.
func (c *Conn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	return c.ws.Read(ctx)
}

// Write sends a message to the peer.
func (c *Conn) Write(ctx context.Context, typ websocket.MessageType, data []byte) error {
	return c.ws.Write(ctx, typ, data)
}

// Close unregisters the connection and closes the underlying socket.
func (c *Conn) Close(code websocket.StatusCode, reason string) error {
	c.registry.Remove(c.ID)
	return c.ws.Close(code, reason)
}

// Guard upgrades HTTP requests to WebSocket connections and admits only
// those that present a valid credential pair in their handshake frame.
type Guard struct {
	svc      *sessionauth.Service
	verifier sessionauth.TokenVerifier
	registry *Registry
	handler  Handler
	log      zerolog.Logger

	// HandshakeTimeout bounds the wait for the credential frame.
	// Zero means DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// AcceptOptions is passed through to the WebSocket upgrade. Leave nil
	// for the library defaults.
	AcceptOptions *websocket.AcceptOptions
}

// NewGuard builds a realtime guard. The guard owns reg: connections are
// inserted after a successful handshake and removed on Close.
func NewGuard(svc *sessionauth.Service, verifier sessionauth.TokenVerifier, reg *Registry, handler Handler, log zerolog.Logger) *Guard {
	return &Guard{
		svc:      svc,
		verifier: verifier,
		registry: reg,
		handler:  handler,
		log:      log.With().Str("component", "realtime_guard").Logger(),
	}
}

// Registry returns the guard's connection registry.
func (g *Guard) Registry() *Registry {
	return g.registry
}

// ServeHTTP upgrades the request, performs the credential handshake, and on
// success registers the connection and hands it to the guard's handler.
// Rejected connections are closed with a policy-violation status; the HTTP
// response itself is already committed by the upgrade, so all rejection
// signaling happens at the WebSocket layer.
func (g *Guard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, g.AcceptOptions)
	if err != nil {
		g.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	ctx := r.Context()
	ctx = sessionauth.WithClientIP(ctx, r.RemoteAddr)
	ctx = sessionauth.WithUserAgent(ctx, r.UserAgent())

	id, ok := g.admit(ctx, ws)
	if !ok {
		return
	}

	conn := &Conn{
		ID:       uuid.NewString(),
		Identity: id,
		ws:       ws,
		registry: g.registry,
	}
	g.registry.Add(conn.ID, id)
	g.log.Debug().
		Str("connection_id", conn.ID).
		Str("user_id", id.UserID).
		Msg("connection admitted")

	g.handler(ctx, conn)
}

// admit reads and checks the handshake frame. On failure it closes the
// socket and returns ok=false.
func (g *Guard) admit(ctx context.Context, ws *websocket.Conn) (sessionauth.Identity, bool) {
	timeout := g.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	hsCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, frame, err := ws.Read(hsCtx)
	if err != nil {
		ws.Close(websocket.StatusPolicyViolation, "handshake not received")
		return sessionauth.Identity{}, false
	}

	var hs handshake
	if err := json.Unmarshal(frame, &hs); err != nil || hs.Token == "" || hs.SessionID == "" {
		ws.Close(websocket.StatusPolicyViolation, "malformed handshake")
		return sessionauth.Identity{}, false
	}

	claims, err := g.verifier.Verify(ctx, hs.Token)
	if err != nil {
		ws.Close(websocket.StatusPolicyViolation, "invalid token")
		return sessionauth.Identity{}, false
	}
	if claims.SessionID != "" && claims.SessionID != hs.SessionID {
		ws.Close(websocket.StatusPolicyViolation, "token does not match session")
		return sessionauth.Identity{}, false
	}

	res := g.svc.ValidateSession(ctx, claims.UserID, hs.SessionID)
	if !res.Valid {
		g.log.Debug().
			Str("user_id", claims.UserID).
			Str("kind", string(res.Kind)).
			Msg("handshake rejected")
		ws.Close(websocket.StatusPolicyViolation, string(res.Kind))
		return sessionauth.Identity{}, false
	}

	return sessionauth.Identity{UserID: claims.UserID, SessionID: hs.SessionID}, true
}
