// Command sessionauth-demo runs a small HTTP server exercising the full
// credential lifecycle: login issues a token and session, guarded routes
// validate the pair on every request, logout tears the session down, and
// /ws admits realtime connections through the same checks.
//
// Without --redis-addr it starts an embedded miniredis, which makes the
// binary self-contained for local experiments.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/alicebob/miniredis/v2"
	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	sessionauth "github.com/relaychat/sessionauth"
	"github.com/relaychat/sessionauth/kv"
	"github.com/relaychat/sessionauth/middleware"
	"github.com/relaychat/sessionauth/realtime"
	"github.com/relaychat/sessionauth/token"
)

type cli struct {
	Listen            string        `help:"HTTP listen address." default:":8080"`
	RedisAddr         string        `help:"Redis address. Empty starts an embedded store." default:""`
	RedisPassword     string        `help:"Redis password." default:""`
	RedisDB           int           `help:"Redis database number." default:"0"`
	KeyPrefix         string        `help:"Namespace prefix for session keys." default:"sa"`
	SessionTTL        time.Duration `help:"Store-level session TTL." default:"24h"`
	InactivityCeiling time.Duration `help:"Maximum idle time before a session is treated as expired." default:"24h"`
	TokenSecret       string        `help:"HMAC secret for signing credentials." default:"demo-secret-change-me"`
	TokenTTL          time.Duration `help:"Credential lifetime." default:"24h"`
	Debug             bool          `help:"Enable debug logging."`
}

func main() {
	var flags cli
	kong.Parse(&flags,
		kong.Name("sessionauth-demo"),
		kong.Description("Session identity demo server."),
	)

	level := zerolog.InfoLevel
	if flags.Debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()

	addr := flags.RedisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			log.Fatal().Err(err).Msg("starting embedded store")
		}
		defer mr.Close()
		addr = mr.Addr()
		log.Info().Str("addr", addr).Msg("using embedded store")
	}

	registry := prometheus.NewRegistry()

	svc, err := sessionauth.New().
		WithConfig(sessionauth.Config{
			Session: sessionauth.SessionConfig{
				KeyPrefix:         flags.KeyPrefix,
				TTL:               flags.SessionTTL,
				InactivityCeiling: flags.InactivityCeiling,
			},
			Redis: kv.RedisConfig{
				Addr:     addr,
				Password: flags.RedisPassword,
				DB:       flags.RedisDB,
			},
		}).
		WithLogger(log).
		WithMetricsRegistry(registry).
		Build(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("building session service")
	}

	tokens, err := token.NewManager(token.Config{
		TTL:           flags.TokenTTL,
		SigningMethod: token.MethodHS256,
		PrivateKey:    []byte(flags.TokenSecret),
		Issuer:        "sessionauth-demo",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("building token manager")
	}

	wsGuard := realtime.NewGuard(svc, tokens, realtime.NewRegistry(), echoHandler(log), log)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", loginHandler(svc, tokens, log))
	mux.Handle("POST /logout", middleware.Guard(svc, tokens)(logoutHandler(svc, log)))
	mux.Handle("GET /me", middleware.Guard(svc, tokens)(http.HandlerFunc(meHandler)))
	mux.Handle("/ws", wsGuard)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	log.Info().Str("addr", flags.Listen).Msg("listening")
	if err := http.ListenAndServe(flags.Listen, mux); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func loginHandler(svc *sessionauth.Service, tokens *token.Manager, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.FormValue("user")
		if userID == "" {
			http.Error(w, "user is required", http.StatusBadRequest)
			return
		}

		ctx := sessionauth.WithClientIP(r.Context(), r.RemoteAddr)
		ctx = sessionauth.WithUserAgent(ctx, r.UserAgent())

		created, err := svc.CreateSession(ctx, userID, nil)
		if err != nil {
			http.Error(w, "login failed", http.StatusInternalServerError)
			return
		}

		credential, ttl, err := tokens.Issue(userID, created.SessionID)
		if err != nil {
			http.Error(w, "login failed", http.StatusInternalServerError)
			return
		}

		log.Info().Str("user_id", userID).Msg("login")
		writeJSON(w, map[string]any{
			"token":     credential,
			"sessionId": created.SessionID,
			"expiresIn": int64(ttl.Seconds()),
		})
	}
}

func logoutHandler(svc *sessionauth.Service, log zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := middleware.IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, "no identity", http.StatusInternalServerError)
			return
		}
		if err := svc.RemoveSession(r.Context(), identity.UserID, identity.SessionID); err != nil {
			http.Error(w, "logout failed", http.StatusInternalServerError)
			return
		}
		log.Info().Str("user_id", identity.UserID).Msg("logout")
		writeJSON(w, map[string]any{"ok": true})
	})
}

func meHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	writeJSON(w, map[string]any{
		"userId":    identity.UserID,
		"sessionId": identity.SessionID,
	})
}

// echoHandler echoes every frame back until the peer goes away.
func echoHandler(log zerolog.Logger) realtime.Handler {
	return func(ctx context.Context, conn *realtime.Conn) {
		defer conn.Close(websocket.StatusNormalClosure, "")
		log.Info().Str("user_id", conn.Identity.UserID).Msg("ws connected")
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				log.Info().Str("user_id", conn.Identity.UserID).Msg("ws disconnected")
				return
			}
			if err := conn.Write(ctx, typ, data); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
