package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/tcollier/txgate/internal/models"
	pkghttp "github.com/tcollier/txgate/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing user claims in context
	UserContextKey contextKey = "user"
)

// SessionChecker reports whether a token's session is still live. Tokens are
// only honored while their jti appears in the allowlist.
type SessionChecker interface {
	IsActive(ctx context.Context, jti string) (bool, error)
}

// Middleware validates bearer tokens against the signing key and the session
// allowlist, then injects the claims into the request context. A valid
// signature with a missing session row is still a logged-out token.
func Middleware(tm *TokenManager, sessions SessionChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.WriteUnauthorized(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				pkghttp.WriteUnauthorized(w, "invalid authorization header format")
				return
			}

			claims, err := tm.ValidateToken(parts[1])
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			if sessions != nil && claims.ID != "" {
				active, err := sessions.IsActive(r.Context(), claims.ID)
				if err != nil {
					// Fail closed: a session we cannot verify is not a session
					pkghttp.WriteServiceUnavailable(w, "unable to verify session")
					return
				}
				if !active {
					pkghttp.WriteUnauthorized(w, "session is no longer active")
					return
				}
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}
