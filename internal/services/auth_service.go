package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/tcollier/txgate/internal/auth"
	"github.com/tcollier/txgate/internal/models"
	pkgauth "github.com/tcollier/txgate/pkg/auth"
	pkglogger "github.com/tcollier/txgate/pkg/logger"
)

// Step-up methods returned by Login so the client knows what to collect.
const (
	StepUpTOTP = "totp"
	StepUpOTP  = "otp"
)

// CodeChallenger issues and validates emailed one-time codes
type CodeChallenger interface {
	Issue(ctx context.Context, userID, purpose string, meta json.RawMessage) (string, error)
	Validate(ctx context.Context, userID, purpose, code string) (json.RawMessage, error)
}

// TOTPDeviceRepository defines the store operations for authenticator devices
type TOTPDeviceRepository interface {
	Create(ctx context.Context, userID string, secretEncrypted, nonce []byte) (*models.TOTPDevice, error)
	GetByUserID(ctx context.Context, userID string) (*models.TOTPDevice, error)
	Activate(ctx context.Context, id string) error
	TouchLastUsed(ctx context.Context, id string) error
}

// SessionStore records live sessions for issued tokens
type SessionStore interface {
	Create(ctx context.Context, jti, userID string, expiresAt time.Time) error
}

// AuthService handles registration, login, and the step-up flows
type AuthService struct {
	userRepo    UserRepository
	deviceRepo  TOTPDeviceRepository
	sessions    SessionStore
	codes       CodeChallenger
	emailSvc    EmailService
	tm          *auth.TokenManager
	totpManager *auth.TOTPManager
	timing      *auth.TimingDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	otpTTL      time.Duration
}

// NewAuthService creates a new AuthService
func NewAuthService(
	userRepo UserRepository,
	deviceRepo TOTPDeviceRepository,
	sessions SessionStore,
	codes CodeChallenger,
	emailSvc EmailService,
	tm *auth.TokenManager,
	totpManager *auth.TOTPManager,
	timing *auth.TimingDelay,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	otpTTL time.Duration,
) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		deviceRepo:  deviceRepo,
		sessions:    sessions,
		codes:       codes,
		emailSvc:    emailSvc,
		tm:          tm,
		totpManager: totpManager,
		timing:      timing,
		logger:      logger,
		auditLogger: auditLogger,
		otpTTL:      otpTTL,
	}
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Username      string `json:"username"`
	EmailVerified bool   `json:"email_verified"`
	RoleID        int    `json:"role_id"`
	CreatedAt     string `json:"created_at"`
}

// ChallengeResponse tells the client which second factor to collect
type ChallengeResponse struct {
	Method string `json:"method"`
}

// AuthResponse is returned once the step-up succeeds
type AuthResponse struct {
	AccessToken string        `json:"access_token"`
	User        *UserResponse `json:"user"`
}

// Register creates a new user account and issues an email verification code.
// No token is granted until the email is verified.
func (s *AuthService) Register(ctx context.Context, email, username, password string) (*UserResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)

	if email == "" {
		return nil, models.ErrInvalidParameters.WithAlerts("email")
	}
	if username == "" {
		return nil, models.ErrInvalidParameters.WithAlerts("username")
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, models.ErrInvalidParameters.WithAlerts("password")
	}

	_, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		s.logger.Info("registration failed: user already exists")
		return nil, models.ErrAlreadyRegistered
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check if user exists", slog.Any("error", err))
		return nil, models.ErrUnknown
	}

	hashedPassword, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrUnknown
	}

	user := &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: hashedPassword,
		RoleID:       models.RoleMember,
	}

	createdUser, err := s.userRepo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrAlreadyRegistered
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrUnknown
	}

	if err := s.sendVerificationCode(ctx, createdUser); err != nil {
		// Account exists; the client can request a fresh code later
		s.logger.Error("failed to deliver verification code",
			slog.String("user_id", createdUser.ID), slog.Any("error", err))
	}

	s.logger.Info("user registered", slog.String("user_id", createdUser.ID))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "user_registered",
		UserID:    createdUser.ID,
		Success:   true,
	})

	return userModelToResponse(createdUser), nil
}

func (s *AuthService) sendVerificationCode(ctx context.Context, user *models.User) error {
	code, err := s.codes.Issue(ctx, user.ID, models.PurposeEmailVerify, nil)
	if err != nil {
		return err
	}

	return s.emailSvc.SendOneTimeCodeEmail(ctx, user.Email, code, models.PurposeEmailVerify, time.Now().Add(s.otpTTL))
}

// VerifyEmail consumes an email verification code and marks the account
// verified.
func (s *AuthService) VerifyEmail(ctx context.Context, email, code string) error {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidToken
		}
		s.logger.Error("failed to get user for email verification", slog.Any("error", err))
		return models.ErrUnknown
	}

	if _, err := s.codes.Validate(ctx, user.ID, models.PurposeEmailVerify, code); err != nil {
		return err
	}

	if err := s.userRepo.MarkEmailVerified(ctx, user.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to mark email verified",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrUnknown
	}

	s.logger.Info("email verified", slog.String("user_id", user.ID))
	return nil
}

// Login checks credentials and starts the step-up: accounts with an
// activated authenticator are asked for a TOTP code, everyone else gets an
// emailed one-time code. No token is issued here.
func (s *AuthService) Login(ctx context.Context, email, password string) (*ChallengeResponse, error) {
	start := time.Now()

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		s.timing.WaitFrom(start, false)
		return nil, models.ErrUnauthenticated
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("login failed: invalid credentials")
			s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login_failed",
				FailureReason: "invalid_credentials",
				Success:       false,
			})
			s.timing.WaitFrom(start, false)
			return nil, models.ErrUnauthenticated
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrUnknown
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.logger.Info("login failed: invalid credentials")
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			FailureReason: "invalid_credentials",
			Success:       false,
		})
		s.timing.WaitFrom(start, false)
		return nil, models.ErrUnauthenticated
	}

	if !user.EmailVerified() {
		s.logger.Info("login blocked: email not verified", slog.String("user_id", user.ID))
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			FailureReason: "email_not_verified",
			Success:       false,
		})
		return nil, models.ErrEmailNotVerified
	}

	method, err := s.startStepUp(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("login step-up started",
		slog.String("user_id", user.ID),
		slog.String("method", method))
	return &ChallengeResponse{Method: method}, nil
}

func (s *AuthService) startStepUp(ctx context.Context, user *models.User) (string, error) {
	device, err := s.deviceRepo.GetByUserID(ctx, user.ID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to look up authenticator device",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return "", models.ErrUnknown
	}

	if device != nil && device.IsActivated() {
		return StepUpTOTP, nil
	}

	code, err := s.codes.Issue(ctx, user.ID, models.PurposeLogin, nil)
	if err != nil {
		return "", err
	}

	if err := s.emailSvc.SendOneTimeCodeEmail(ctx, user.Email, code, models.PurposeLogin, time.Now().Add(s.otpTTL)); err != nil {
		s.logger.Error("failed to send login code",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return "", models.ErrUnknown
	}

	return StepUpOTP, nil
}

// VerifyLogin completes the step-up and issues an access token plus a
// session row. The token is only honored while the session row lives.
func (s *AuthService) VerifyLogin(ctx context.Context, email, code string) (*AuthResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidToken
		}
		s.logger.Error("failed to get user for login verification", slog.Any("error", err))
		return nil, models.ErrUnknown
	}

	if err := s.verifySecondFactor(ctx, user, code); err != nil {
		return nil, err
	}

	tokenString, claims, err := s.tm.GenerateAccessToken(user)
	if err != nil {
		s.logger.Error("failed to generate access token",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrUnknown
	}

	if err := s.sessions.Create(ctx, claims.ID, user.ID, claims.ExpiresAt.Time); err != nil {
		s.logger.Error("failed to record session",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrUnknown
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		Success:   true,
	})

	return &AuthResponse{
		AccessToken: tokenString,
		User:        userModelToResponse(user),
	}, nil
}

func (s *AuthService) verifySecondFactor(ctx context.Context, user *models.User, code string) error {
	device, err := s.deviceRepo.GetByUserID(ctx, user.ID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to look up authenticator device",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrUnknown
	}

	if device != nil && device.IsActivated() {
		return s.verifyTOTP(ctx, user, device, code)
	}

	_, err = s.codes.Validate(ctx, user.ID, models.PurposeLogin, code)
	return err
}

func (s *AuthService) verifyTOTP(ctx context.Context, user *models.User, device *models.TOTPDevice, code string) error {
	secret, err := s.totpManager.DecryptSecret(device.SecretEncrypted, device.Nonce)
	if err != nil {
		s.logger.Error("failed to decrypt TOTP secret",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrUnknown
	}

	valid, err := s.totpManager.ValidateCode(string(secret), code, device.LastUsedAt)
	if err != nil || !valid {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			FailureReason: "totp_invalid",
			Success:       false,
		})
		return models.ErrInvalidToken
	}

	if err := s.deviceRepo.TouchLastUsed(ctx, device.ID); err != nil {
		s.logger.Error("failed to record TOTP use",
			slog.String("device_id", device.ID), slog.Any("error", err))
	}

	return nil
}

// TOTPEnrollmentResponse carries authenticator setup material to the client
type TOTPEnrollmentResponse struct {
	Secret        string `json:"secret"`
	QRCodeDataURL string `json:"qr_code"`
}

// EnrollTOTP provisions a new authenticator secret for the user. The device
// stays unusable for login until one valid code activates it.
func (s *AuthService) EnrollTOTP(ctx context.Context, userID string) (*TOTPEnrollmentResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthenticated
		}
		s.logger.Error("failed to get user for TOTP enrollment", slog.Any("error", err))
		return nil, models.ErrUnknown
	}

	enrollment, err := s.totpManager.GenerateEnrollment(user.Email)
	if err != nil {
		s.logger.Error("failed to generate TOTP enrollment",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrUnknown
	}

	if _, err := s.deviceRepo.Create(ctx, user.ID, enrollment.SecretEncrypted, enrollment.Nonce); err != nil {
		s.logger.Error("failed to store authenticator device",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrUnknown
	}

	s.logger.Info("TOTP enrollment created", slog.String("user_id", user.ID))

	return &TOTPEnrollmentResponse{
		Secret:        enrollment.Secret,
		QRCodeDataURL: enrollment.QRCodeDataURL,
	}, nil
}

// ActivateTOTP confirms enrollment by validating one code from the device.
func (s *AuthService) ActivateTOTP(ctx context.Context, userID, code string) error {
	device, err := s.deviceRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidToken
		}
		s.logger.Error("failed to look up authenticator device",
			slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrUnknown
	}

	if device.IsActivated() {
		return models.ErrInvalidToken
	}

	secret, err := s.totpManager.DecryptSecret(device.SecretEncrypted, device.Nonce)
	if err != nil {
		s.logger.Error("failed to decrypt TOTP secret",
			slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrUnknown
	}

	valid, err := s.totpManager.ValidateCode(string(secret), code, nil)
	if err != nil || !valid {
		return models.ErrInvalidToken
	}

	if err := s.deviceRepo.Activate(ctx, device.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidToken
		}
		s.logger.Error("failed to activate authenticator device",
			slog.String("device_id", device.ID), slog.Any("error", err))
		return models.ErrUnknown
	}

	s.logger.Info("TOTP device activated", slog.String("user_id", userID))
	return nil
}

// userModelToResponse converts a user model to its response DTO
func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:            user.ID,
		Email:         user.Email,
		Username:      user.Username,
		EmailVerified: user.EmailVerified(),
		RoleID:        user.RoleID,
		CreatedAt:     user.CreatedAt.Format(time.RFC3339),
	}
}
