package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/tcollier/txgate/internal/auth"
	pkghttp "github.com/tcollier/txgate/pkg/http"
)

// RateLimitConfig holds per-window request caps.
type RateLimitConfig struct {
	AuthRequestsPerMinute     int
	DispatchRequestsPerMinute int
}

// DefaultRateLimits returns conservative caps: credential endpoints are
// kept tight, dispatch traffic is bounded per caller.
func DefaultRateLimits() RateLimitConfig {
	return RateLimitConfig{
		AuthRequestsPerMinute:     5,
		DispatchRequestsPerMinute: 120,
	}
}

func writeRateLimited(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteTooManyRequests(w, "too many requests")
}

// RateLimitByIP limits unauthenticated traffic per client IP. Used on the
// registration, login, and password reset endpoints.
func RateLimitByIP(requestsPerMinute int) func(next http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(writeRateLimited),
	)
}

// RateLimitByUser limits authenticated traffic per user ID, falling back
// to the client IP when no claims are present.
func RateLimitByUser(requestsPerMinute int) func(next http.Handler) http.Handler {
	keyFn := func(r *http.Request) (string, error) {
		if claims := auth.GetUserFromContext(r); claims != nil {
			return "user:" + claims.UserID, nil
		}
		return httprate.KeyByRealIP(r)
	}

	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(keyFn),
		httprate.WithLimitHandler(writeRateLimited),
	)
}
