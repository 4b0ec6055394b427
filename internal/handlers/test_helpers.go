package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tcollier/txgate/internal/auth"
	"github.com/tcollier/txgate/internal/models"
	"github.com/tcollier/txgate/internal/services"
)

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc     func(ctx context.Context, email, username, password string) (*services.UserResponse, error)
	VerifyEmailFunc  func(ctx context.Context, email, code string) error
	LoginFunc        func(ctx context.Context, email, password string) (*services.ChallengeResponse, error)
	VerifyLoginFunc  func(ctx context.Context, email, code string) (*services.AuthResponse, error)
	EnrollTOTPFunc   func(ctx context.Context, userID string) (*services.TOTPEnrollmentResponse, error)
	ActivateTOTPFunc func(ctx context.Context, userID, code string) error
}

func (m *MockAuthService) Register(ctx context.Context, email, username, password string) (*services.UserResponse, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, email, username, password)
	}
	return &services.UserResponse{ID: "user-1", Email: email, Username: username}, nil
}

func (m *MockAuthService) VerifyEmail(ctx context.Context, email, code string) error {
	if m.VerifyEmailFunc != nil {
		return m.VerifyEmailFunc(ctx, email, code)
	}
	return nil
}

func (m *MockAuthService) Login(ctx context.Context, email, password string) (*services.ChallengeResponse, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password)
	}
	return &services.ChallengeResponse{Method: services.StepUpOTP}, nil
}

func (m *MockAuthService) VerifyLogin(ctx context.Context, email, code string) (*services.AuthResponse, error) {
	if m.VerifyLoginFunc != nil {
		return m.VerifyLoginFunc(ctx, email, code)
	}
	return &services.AuthResponse{AccessToken: "token-1"}, nil
}

func (m *MockAuthService) EnrollTOTP(ctx context.Context, userID string) (*services.TOTPEnrollmentResponse, error) {
	if m.EnrollTOTPFunc != nil {
		return m.EnrollTOTPFunc(ctx, userID)
	}
	return &services.TOTPEnrollmentResponse{Secret: "SECRET", QRCodeDataURL: "data:image/png;base64,AAAA"}, nil
}

func (m *MockAuthService) ActivateTOTP(ctx context.Context, userID, code string) error {
	if m.ActivateTOTPFunc != nil {
		return m.ActivateTOTPFunc(ctx, userID, code)
	}
	return nil
}

// MockPasswordResetService implements PasswordResetServiceInterface for testing
type MockPasswordResetService struct {
	RequestFunc  func(ctx context.Context, email string) error
	CompleteFunc func(ctx context.Context, email, token, newPassword string) (*services.ResetResult, error)
}

func (m *MockPasswordResetService) Request(ctx context.Context, email string) error {
	if m.RequestFunc != nil {
		return m.RequestFunc(ctx, email)
	}
	return nil
}

func (m *MockPasswordResetService) Complete(ctx context.Context, email, token, newPassword string) (*services.ResetResult, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, email, token, newPassword)
	}
	return &services.ResetResult{UserID: "user-1", SessionsInvalidated: true}, nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newJSONRequest builds a request with a JSON body
func newJSONRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withCaller attaches authenticated claims the way the auth middleware does
func withCaller(req *http.Request, userID string, roleID int) *http.Request {
	claims := &models.TokenClaims{
		Type:   "access",
		UserID: userID,
		RoleID: roleID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID: "jti-test",
		},
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}
