package middleware

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/enrichq/pkg/models"
)

type contextKey string

const (
	sessionKey     contextKey = "session"
	tokenPrefixKey contextKey = "token_prefix"
)

func SetSession(ctx context.Context, s *models.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// GetSession returns the session placed by Authenticate, or nil.
func GetSession(r *http.Request) *models.Session {
	s, _ := r.Context().Value(sessionKey).(*models.Session)
	return s
}

func setTokenPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, tokenPrefixKey, prefix)
}

func getTokenPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(tokenPrefixKey).(string)
	return prefix, ok
}

// ExportedTokenPrefixKey returns the context key for token_prefix (for testing).
func ExportedTokenPrefixKey() contextKey {
	return tokenPrefixKey
}
