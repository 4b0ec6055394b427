package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/tcollier/txgate/internal/auth"
	"github.com/tcollier/txgate/internal/handlers"
	"github.com/tcollier/txgate/internal/middleware"
)

// RegisterRoutes registers all application routes.
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	dispatchHandler *handlers.DispatchHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *auth.TokenManager,
	sessions auth.SessionChecker,
	limits middleware.RateLimitConfig,
) {
	// Probes are unauthenticated and unthrottled
	router.Get("/healthz", healthHandler.Healthz)
	router.Get("/readyz", healthHandler.Readyz)

	// Credential endpoints are public and tightly throttled per IP
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(limits.AuthRequestsPerMinute))

		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/verify-email", authHandler.VerifyEmail)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/login/verify", authHandler.VerifyLogin)
		r.Post("/auth/password-reset/request", authHandler.RequestPasswordReset)
		r.Post("/auth/password-reset/complete", authHandler.CompletePasswordReset)
	})

	// Everything else requires a live session
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager, sessions))
		r.Use(middleware.RateLimitByUser(limits.DispatchRequestsPerMinute))

		r.Post("/tx", dispatchHandler.Dispatch)

		r.Post("/auth/totp/enroll", authHandler.EnrollTOTP)
		r.Post("/auth/totp/activate", authHandler.ActivateTOTP)
	})
}
