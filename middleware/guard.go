package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	sessionauth "github.com/relaychat/sessionauth"
)

// Header names carrying the credential pair. The same names double as query
// parameters for transports that cannot set headers.
const (
	HeaderAuthToken = "auth-token"
	HeaderSessionID = "session-id"
)

type identityContextKey struct{}

// IdentityFromContext returns the identity attached by [Guard] after a
// request passed validation.
func IdentityFromContext(ctx context.Context) (sessionauth.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(sessionauth.Identity)
	return id, ok
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Guard returns middleware enforcing the session-identity contract: verify
// the token, validate the session, reject before any handler code runs.
func Guard(svc *sessionauth.Service, verifier sessionauth.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if svc == nil || verifier == nil {
				reject(w, sessionauth.KindValidationError, "credential guard not configured")
				return
			}

			credential, sessionID := credentials(r)
			if credential == "" || sessionID == "" {
				reject(w, sessionauth.KindInvalidParameters, "auth-token and session-id are required")
				return
			}

			claims, err := verifier.Verify(r.Context(), credential)
			if err != nil {
				reject(w, sessionauth.KindInvalidSession, "credential rejected")
				return
			}
			// A credential minted for a different session never validates
			// against the presented one.
			if claims.SessionID != "" && claims.SessionID != sessionID {
				reject(w, sessionauth.KindInvalidSession, "credential does not match session")
				return
			}

			ctx := sessionauth.WithClientIP(r.Context(), r.RemoteAddr)
			ctx = sessionauth.WithUserAgent(ctx, r.UserAgent())

			res := svc.ValidateSession(ctx, claims.UserID, sessionID)
			if !res.Valid {
				reject(w, res.Kind, res.Message)
				return
			}

			identity := sessionauth.Identity{UserID: claims.UserID, SessionID: sessionID}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, identityContextKey{}, identity)))
		})
	}
}

// credentials extracts the pair from headers, falling back to the
// equivalent query parameters.
func credentials(r *http.Request) (credential, sessionID string) {
	credential = r.Header.Get(HeaderAuthToken)
	sessionID = r.Header.Get(HeaderSessionID)

	if credential == "" || sessionID == "" {
		query := r.URL.Query()
		if credential == "" {
			credential = query.Get(HeaderAuthToken)
		}
		if sessionID == "" {
			sessionID = query.Get(HeaderSessionID)
		}
	}
	return credential, sessionID
}

func reject(w http.ResponseWriter, kind sessionauth.ErrorKind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(errorBody{Error: string(kind), Message: message})
}
