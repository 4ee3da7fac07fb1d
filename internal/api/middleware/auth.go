package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kiranshivaraju/enrichq/internal/api/response"
	"github.com/kiranshivaraju/enrichq/internal/store"
	"github.com/kiranshivaraju/enrichq/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// TokenPrefixLen is how many leading characters of a session token are stored
// in clear for lookup.
const TokenPrefixLen = 8

// Auth resolves Bearer session tokens to sessions.
type Auth struct {
	store store.Store
	now   func() time.Time
}

// NewAuth creates a new Auth middleware.
func NewAuth(s store.Store) *Auth {
	return &Auth{store: s, now: time.Now}
}

// Authenticate validates the Bearer token, finds the matching unexpired
// session, and stores it and the token prefix in the request context.
// Browsers cannot set headers on a WebSocket handshake, so upgrade requests
// may carry the token in the access_token query parameter instead.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized,
				response.CodeUnauthenticated, "Missing or invalid Authorization header", nil)
			return
		}

		if len(token) < TokenPrefixLen {
			response.Error(w, http.StatusUnauthorized,
				response.CodeUnauthenticated, "Invalid session token format", nil)
			return
		}

		prefix := token[:TokenPrefixLen]

		sessions, err := a.store.GetSessionsByPrefix(r.Context(), prefix)
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				response.CodeInternal, "Failed to validate session", nil)
			return
		}

		var matched *models.Session
		for _, sess := range sessions {
			if bcrypt.CompareHashAndPassword([]byte(sess.TokenHash), []byte(token)) == nil {
				matched = sess
				break
			}
		}

		if matched == nil {
			response.Error(w, http.StatusUnauthorized,
				response.CodeUnauthenticated, "Invalid session token", nil)
			return
		}
		if !matched.Valid(a.now()) {
			response.Error(w, http.StatusUnauthorized,
				response.CodeUnauthenticated, "Session expired", nil)
			return
		}

		ctx := SetSession(r.Context(), matched)
		ctx = setTokenPrefix(ctx, prefix)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		if websocket.IsWebSocketUpgrade(r) {
			return strings.TrimSpace(r.URL.Query().Get("access_token"))
		}
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
