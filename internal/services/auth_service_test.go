package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcollier/txgate/internal/auth"
	"github.com/tcollier/txgate/internal/models"
	pkgauth "github.com/tcollier/txgate/pkg/auth"
)

type authServiceDeps struct {
	userRepo   *MockUserRepository
	deviceRepo *MockTOTPDeviceRepository
	sessions   *MockSessionStore
	codes      *MockCodeChallenger
	emailSvc   *MockEmailService
	tm         *auth.TokenManager
	totpMgr    *auth.TOTPManager
}

func newAuthService(t *testing.T, deps *authServiceDeps) *AuthService {
	t.Helper()

	if deps.userRepo == nil {
		deps.userRepo = &MockUserRepository{}
	}
	if deps.deviceRepo == nil {
		deps.deviceRepo = &MockTOTPDeviceRepository{}
	}
	if deps.sessions == nil {
		deps.sessions = &MockSessionStore{}
	}
	if deps.codes == nil {
		deps.codes = &MockCodeChallenger{}
	}
	if deps.emailSvc == nil {
		deps.emailSvc = &MockEmailService{}
	}
	if deps.tm == nil {
		deps.tm = auth.NewTokenManager("test-secret-with-enough-entropy-123", 15*time.Minute)
	}
	if deps.totpMgr == nil {
		mgr, err := auth.NewTOTPManager([]byte("0123456789abcdef0123456789abcdef"), "txgate")
		require.NoError(t, err)
		deps.totpMgr = mgr
	}

	timing := auth.NewTimingDelay(0, 0, false)

	return NewAuthService(deps.userRepo, deps.deviceRepo, deps.sessions, deps.codes,
		deps.emailSvc, deps.tm, deps.totpMgr, timing,
		newTestLogger(), newTestAuditLogger(), 10*time.Minute)
}

func hashedPasswordUser(t *testing.T, id, email, password string) *models.User {
	t.Helper()

	hash, err := pkgauth.HashPassword(password)
	require.NoError(t, err)

	user := NewTestUser(id, email, "alice")
	user.PasswordHash = hash
	return user
}

func TestAuthService_Register_Success(t *testing.T) {
	var createdUser *models.User
	var issuedPurpose string
	var emailedCode string

	deps := &authServiceDeps{
		userRepo: &MockUserRepository{
			CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
				user.ID = "user-1"
				user.CreatedAt = time.Now()
				createdUser = user
				return user, nil
			},
		},
		codes: &MockCodeChallenger{
			IssueFunc: func(ctx context.Context, userID, purpose string, meta json.RawMessage) (string, error) {
				issuedPurpose = purpose
				return "424242", nil
			},
		},
		emailSvc: &MockEmailService{
			SendOneTimeCodeEmailFunc: func(ctx context.Context, email, code, purpose string, expiresAt time.Time) error {
				emailedCode = code
				return nil
			},
		},
	}

	svc := newAuthService(t, deps)
	resp, err := svc.Register(context.Background(), "Alice@Example.com", "alice", "StrongPass123")

	require.NoError(t, err)
	assert.Equal(t, "user-1", resp.ID)
	assert.Equal(t, "alice@example.com", resp.Email)
	assert.False(t, resp.EmailVerified)
	assert.Equal(t, models.RoleMember, createdUser.RoleID)
	assert.NoError(t, pkgauth.ComparePassword(createdUser.PasswordHash, "StrongPass123"))
	assert.Equal(t, models.PurposeEmailVerify, issuedPurpose)
	assert.Equal(t, "424242", emailedCode)
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	deps := &authServiceDeps{
		userRepo: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return NewTestUser("user-1", email, "alice"), nil
			},
		},
	}

	svc := newAuthService(t, deps)
	_, err := svc.Register(context.Background(), "alice@example.com", "alice", "StrongPass123")

	assert.ErrorIs(t, err, models.ErrAlreadyRegistered)
}

func TestAuthService_Register_WeakPassword(t *testing.T) {
	svc := newAuthService(t, &authServiceDeps{})

	_, err := svc.Register(context.Background(), "alice@example.com", "alice", "weak")
	assert.ErrorIs(t, err, models.ErrInvalidParameters)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	user := hashedPasswordUser(t, "user-1", "alice@example.com", "StrongPass123")

	deps := &authServiceDeps{
		userRepo: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		},
	}

	svc := newAuthService(t, deps)
	_, err := svc.Login(context.Background(), "alice@example.com", "WrongPass456")

	assert.ErrorIs(t, err, models.ErrUnauthenticated)
}

func TestAuthService_Login_UnknownEmail(t *testing.T) {
	svc := newAuthService(t, &authServiceDeps{})

	_, err := svc.Login(context.Background(), "nobody@example.com", "StrongPass123")
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
}

func TestAuthService_Login_EmailNotVerified(t *testing.T) {
	user := hashedPasswordUser(t, "user-1", "alice@example.com", "StrongPass123")
	user.EmailVerifiedAt = nil

	deps := &authServiceDeps{
		userRepo: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		},
	}

	svc := newAuthService(t, deps)
	_, err := svc.Login(context.Background(), "alice@example.com", "StrongPass123")

	assert.ErrorIs(t, err, models.ErrEmailNotVerified)
}

func TestAuthService_Login_NoDevice_StartsEmailedCode(t *testing.T) {
	user := hashedPasswordUser(t, "user-1", "alice@example.com", "StrongPass123")

	var issuedPurpose, emailedCode string
	deps := &authServiceDeps{
		userRepo: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		},
		codes: &MockCodeChallenger{
			IssueFunc: func(ctx context.Context, userID, purpose string, meta json.RawMessage) (string, error) {
				issuedPurpose = purpose
				return "424242", nil
			},
		},
		emailSvc: &MockEmailService{
			SendOneTimeCodeEmailFunc: func(ctx context.Context, email, code, purpose string, expiresAt time.Time) error {
				emailedCode = code
				return nil
			},
		},
	}

	svc := newAuthService(t, deps)
	resp, err := svc.Login(context.Background(), "alice@example.com", "StrongPass123")

	require.NoError(t, err)
	assert.Equal(t, StepUpOTP, resp.Method)
	assert.Equal(t, models.PurposeLogin, issuedPurpose)
	assert.Equal(t, "424242", emailedCode)
}

func TestAuthService_Login_ActivatedDevice_AsksForTOTP(t *testing.T) {
	user := hashedPasswordUser(t, "user-1", "alice@example.com", "StrongPass123")
	activatedAt := time.Now().Add(-time.Hour)

	deps := &authServiceDeps{
		userRepo: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		},
		deviceRepo: &MockTOTPDeviceRepository{
			GetByUserIDFunc: func(ctx context.Context, userID string) (*models.TOTPDevice, error) {
				return &models.TOTPDevice{ID: "device-1", UserID: userID, ActivatedAt: &activatedAt}, nil
			},
		},
		codes: &MockCodeChallenger{
			IssueFunc: func(ctx context.Context, userID, purpose string, meta json.RawMessage) (string, error) {
				t.Fatal("no emailed code should be issued when a device is active")
				return "", nil
			},
		},
	}

	svc := newAuthService(t, deps)
	resp, err := svc.Login(context.Background(), "alice@example.com", "StrongPass123")

	require.NoError(t, err)
	assert.Equal(t, StepUpTOTP, resp.Method)
}

func TestAuthService_VerifyLogin_WithEmailedCode(t *testing.T) {
	user := hashedPasswordUser(t, "user-1", "alice@example.com", "StrongPass123")
	user.RoleID = models.RoleAdmin

	var sessionJTI string
	deps := &authServiceDeps{
		userRepo: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		},
		codes: &MockCodeChallenger{
			ValidateFunc: func(ctx context.Context, userID, purpose, code string) (json.RawMessage, error) {
				assert.Equal(t, models.PurposeLogin, purpose)
				assert.Equal(t, "424242", code)
				return json.RawMessage(`{}`), nil
			},
		},
		sessions: &MockSessionStore{
			CreateFunc: func(ctx context.Context, jti, userID string, expiresAt time.Time) error {
				sessionJTI = jti
				assert.Equal(t, "user-1", userID)
				return nil
			},
		},
		tm: auth.NewTokenManager("test-secret-with-enough-entropy-123", 15*time.Minute),
	}

	svc := newAuthService(t, deps)
	resp, err := svc.VerifyLogin(context.Background(), "alice@example.com", "424242")

	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)

	claims, err := deps.tm.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.RoleID)
	assert.Equal(t, claims.ID, sessionJTI)
}

func TestAuthService_VerifyLogin_WrongCode(t *testing.T) {
	user := hashedPasswordUser(t, "user-1", "alice@example.com", "StrongPass123")

	deps := &authServiceDeps{
		userRepo: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		},
		codes: &MockCodeChallenger{
			ValidateFunc: func(ctx context.Context, userID, purpose, code string) (json.RawMessage, error) {
				return nil, models.ErrInvalidToken
			},
		},
		sessions: &MockSessionStore{
			CreateFunc: func(ctx context.Context, jti, userID string, expiresAt time.Time) error {
				t.Fatal("no session should be created for a failed step-up")
				return nil
			},
		},
	}

	svc := newAuthService(t, deps)
	_, err := svc.VerifyLogin(context.Background(), "alice@example.com", "000000")

	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

func TestAuthService_VerifyLogin_WithTOTPDevice(t *testing.T) {
	totpMgr, err := auth.NewTOTPManager([]byte("0123456789abcdef0123456789abcdef"), "txgate")
	require.NoError(t, err)

	enrollment, err := totpMgr.GenerateEnrollment("alice@example.com")
	require.NoError(t, err)

	user := hashedPasswordUser(t, "user-1", "alice@example.com", "StrongPass123")
	activatedAt := time.Now().Add(-time.Hour)
	device := &models.TOTPDevice{
		ID:              "device-1",
		UserID:          "user-1",
		SecretEncrypted: enrollment.SecretEncrypted,
		Nonce:           enrollment.Nonce,
		ActivatedAt:     &activatedAt,
	}

	var touched bool
	deps := &authServiceDeps{
		userRepo: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		},
		deviceRepo: &MockTOTPDeviceRepository{
			GetByUserIDFunc: func(ctx context.Context, userID string) (*models.TOTPDevice, error) {
				return device, nil
			},
			TouchLastUsedFunc: func(ctx context.Context, id string) error {
				touched = true
				return nil
			},
		},
		totpMgr: totpMgr,
	}

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	svc := newAuthService(t, deps)
	resp, err := svc.VerifyLogin(context.Background(), "alice@example.com", code)

	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.True(t, touched)
}

func TestAuthService_VerifyEmail_MarksVerified(t *testing.T) {
	user := NewTestUserUnverified("user-1", "alice@example.com", "alice")

	var marked bool
	deps := &authServiceDeps{
		userRepo: &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
			MarkEmailVerifiedFunc: func(ctx context.Context, id string) error {
				marked = true
				return nil
			},
		},
		codes: &MockCodeChallenger{
			ValidateFunc: func(ctx context.Context, userID, purpose, code string) (json.RawMessage, error) {
				assert.Equal(t, models.PurposeEmailVerify, purpose)
				return json.RawMessage(`{}`), nil
			},
		},
	}

	svc := newAuthService(t, deps)
	err := svc.VerifyEmail(context.Background(), "alice@example.com", "424242")

	require.NoError(t, err)
	assert.True(t, marked)
}

func TestAuthService_EnrollAndActivateTOTP(t *testing.T) {
	user := NewTestUser("user-1", "alice@example.com", "alice")

	var storedDevice *models.TOTPDevice
	deps := &authServiceDeps{
		userRepo: &MockUserRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
				return user, nil
			},
		},
		deviceRepo: &MockTOTPDeviceRepository{
			CreateFunc: func(ctx context.Context, userID string, secretEncrypted, nonce []byte) (*models.TOTPDevice, error) {
				storedDevice = &models.TOTPDevice{
					ID:              "device-1",
					UserID:          userID,
					SecretEncrypted: secretEncrypted,
					Nonce:           nonce,
				}
				return storedDevice, nil
			},
			GetByUserIDFunc: func(ctx context.Context, userID string) (*models.TOTPDevice, error) {
				if storedDevice == nil {
					return nil, models.ErrNotFound
				}
				return storedDevice, nil
			},
			ActivateFunc: func(ctx context.Context, id string) error {
				now := time.Now()
				storedDevice.ActivatedAt = &now
				return nil
			},
		},
	}

	svc := newAuthService(t, deps)

	enrollment, err := svc.EnrollTOTP(context.Background(), "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.Secret)
	assert.Contains(t, enrollment.QRCodeDataURL, "data:image/png;base64,")

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	err = svc.ActivateTOTP(context.Background(), "user-1", code)
	require.NoError(t, err)
	assert.True(t, storedDevice.IsActivated())
}

func TestAuthService_ActivateTOTP_WrongCode(t *testing.T) {
	totpMgr, err := auth.NewTOTPManager([]byte("0123456789abcdef0123456789abcdef"), "txgate")
	require.NoError(t, err)

	enrollment, err := totpMgr.GenerateEnrollment("alice@example.com")
	require.NoError(t, err)

	device := &models.TOTPDevice{
		ID:              "device-1",
		UserID:          "user-1",
		SecretEncrypted: enrollment.SecretEncrypted,
		Nonce:           enrollment.Nonce,
	}

	deps := &authServiceDeps{
		deviceRepo: &MockTOTPDeviceRepository{
			GetByUserIDFunc: func(ctx context.Context, userID string) (*models.TOTPDevice, error) {
				return device, nil
			},
			ActivateFunc: func(ctx context.Context, id string) error {
				t.Fatal("wrong code must not activate the device")
				return nil
			},
		},
		totpMgr: totpMgr,
	}

	svc := newAuthService(t, deps)
	err = svc.ActivateTOTP(context.Background(), "user-1", "000000")

	assert.ErrorIs(t, err, models.ErrInvalidToken)
}
