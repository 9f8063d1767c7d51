package middleware

import (
	"context"
	"net/http"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
)

// SessionVerifier is satisfied by *goGuard.Engine.
type SessionVerifier interface {
	VerifySession(ctx context.Context, token string) (goGuard.SessionInfo, error)
}

type sessionContextKey struct{}

// SessionFromContext returns the grant verified by RequireSession.
func SessionFromContext(ctx context.Context) (goGuard.SessionInfo, bool) {
	info, ok := ctx.Value(sessionContextKey{}).(goGuard.SessionInfo)
	return info, ok
}

// RequireSession rejects requests without a valid "Authorization: Bearer"
// session grant and stores the verified grant in the request context.
func RequireSession(verifier SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				unauthorized(w)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			info, err := verifier.VerifySession(r.Context(), token)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="goguard"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
