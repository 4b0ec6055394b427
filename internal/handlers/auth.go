package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tcollier/txgate/internal/auth"
	"github.com/tcollier/txgate/internal/services"
	pkghttp "github.com/tcollier/txgate/pkg/http"
)

// AuthServiceInterface defines the auth business logic the handler needs
type AuthServiceInterface interface {
	Register(ctx context.Context, email, username, password string) (*services.UserResponse, error)
	VerifyEmail(ctx context.Context, email, code string) error
	Login(ctx context.Context, email, password string) (*services.ChallengeResponse, error)
	VerifyLogin(ctx context.Context, email, code string) (*services.AuthResponse, error)
	EnrollTOTP(ctx context.Context, userID string) (*services.TOTPEnrollmentResponse, error)
	ActivateTOTP(ctx context.Context, userID, code string) error
}

// PasswordResetServiceInterface defines the reset flow the handler needs
type PasswordResetServiceInterface interface {
	Request(ctx context.Context, email string) error
	Complete(ctx context.Context, email, token, newPassword string) (*services.ResetResult, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	authService  AuthServiceInterface
	resetService PasswordResetServiceInterface
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService AuthServiceInterface, resetService PasswordResetServiceInterface) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		resetService: resetService,
	}
}

// Request DTOs

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=1,max=64"`
	Password string `json:"password" validate:"required"`
}

type VerifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type VerifyLoginRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

type PasswordResetRequestRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type PasswordResetCompleteRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

type ActivateTOTPRequest struct {
	Code string `json:"code" validate:"required"`
}

// PasswordResetCompleteResponse reports whether live sessions were revoked
// along with the password change.
type PasswordResetCompleteResponse struct {
	SessionsInvalidated bool `json:"sessions_invalidated"`
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return false
	}
	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, err)
		return false
	}
	return true
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.authService.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteResult(w, http.StatusCreated, "registered", user)
}

// VerifyEmail handles POST /auth/verify-email
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.authService.VerifyEmail(r.Context(), req.Email, req.Code); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteResult(w, http.StatusOK, "email verified", nil)
}

// Login handles POST /auth/login. Success starts a step-up challenge; the
// client completes it via VerifyLogin.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	challenge, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteResult(w, http.StatusOK, "verification required", challenge)
}

// VerifyLogin handles POST /auth/login/verify
func (h *AuthHandler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	var req VerifyLoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	authResp, err := h.authService.VerifyLogin(r.Context(), req.Email, req.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteResult(w, http.StatusOK, "logged in", authResp)
}

// RequestPasswordReset handles POST /auth/password-reset/request. Unknown
// emails get the same response as known ones.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequestRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.resetService.Request(r.Context(), req.Email); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteResult(w, http.StatusOK, "if the account exists, a reset email has been sent", nil)
}

// CompletePasswordReset handles POST /auth/password-reset/complete
func (h *AuthHandler) CompletePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetCompleteRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.resetService.Complete(r.Context(), req.Email, req.Token, req.NewPassword)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteResult(w, http.StatusOK, "password updated", PasswordResetCompleteResponse{
		SessionsInvalidated: result.SessionsInvalidated,
	})
}

// EnrollTOTP handles POST /auth/totp/enroll (authenticated)
func (h *AuthHandler) EnrollTOTP(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}

	enrollment, err := h.authService.EnrollTOTP(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteResult(w, http.StatusOK, "authenticator enrollment created", enrollment)
}

// ActivateTOTP handles POST /auth/totp/activate (authenticated)
func (h *AuthHandler) ActivateTOTP(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}

	var req ActivateTOTPRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.authService.ActivateTOTP(r.Context(), claims.UserID, req.Code); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteResult(w, http.StatusOK, "authenticator activated", nil)
}
