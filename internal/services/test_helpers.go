package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/tcollier/txgate/internal/models"
	pkglogger "github.com/tcollier/txgate/pkg/logger"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc            func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc         func(ctx context.Context, email string) (*models.User, error)
	CreateFunc             func(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePasswordHashFunc func(ctx context.Context, id, passwordHash string) error
	MarkEmailVerifiedFunc  func(ctx context.Context, id string) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordHashFunc != nil {
		return m.UpdatePasswordHashFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *MockUserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	if m.MarkEmailVerifiedFunc != nil {
		return m.MarkEmailVerifiedFunc(ctx, id)
	}
	return nil
}

// MockPasswordResetRepository implements PasswordResetRepository for testing
type MockPasswordResetRepository struct {
	CreateFunc            func(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.PasswordResetRecord, error)
	GetLatestByUserIDFunc func(ctx context.Context, userID string) (*models.PasswordResetRecord, error)
	SupersedeActiveFunc   func(ctx context.Context, userID string) error
	IncrementAttemptsFunc func(ctx context.Context, id string) (int, error)
	ConsumeFunc           func(ctx context.Context, id string, maxAttempts int) (bool, error)
	CleanupExpiredFunc    func(ctx context.Context) (int64, error)
}

func (m *MockPasswordResetRepository) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.PasswordResetRecord, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, userID, tokenHash, expiresAt)
	}
	return &models.PasswordResetRecord{
		ID:        "reset_123",
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}, nil
}

func (m *MockPasswordResetRepository) GetLatestByUserID(ctx context.Context, userID string) (*models.PasswordResetRecord, error) {
	if m.GetLatestByUserIDFunc != nil {
		return m.GetLatestByUserIDFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockPasswordResetRepository) SupersedeActive(ctx context.Context, userID string) error {
	if m.SupersedeActiveFunc != nil {
		return m.SupersedeActiveFunc(ctx, userID)
	}
	return nil
}

func (m *MockPasswordResetRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	if m.IncrementAttemptsFunc != nil {
		return m.IncrementAttemptsFunc(ctx, id)
	}
	return 1, nil
}

func (m *MockPasswordResetRepository) Consume(ctx context.Context, id string, maxAttempts int) (bool, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, id, maxAttempts)
	}
	return true, nil
}

func (m *MockPasswordResetRepository) CleanupExpired(ctx context.Context) (int64, error) {
	if m.CleanupExpiredFunc != nil {
		return m.CleanupExpiredFunc(ctx)
	}
	return 0, nil
}

// MockOneTimeCodeRepository implements OneTimeCodeRepository for testing
type MockOneTimeCodeRepository struct {
	CreateFunc            func(ctx context.Context, userID, purpose, codeHash string, meta json.RawMessage, expiresAt time.Time) (*models.OneTimeCodeRecord, error)
	GetLatestFunc         func(ctx context.Context, userID, purpose string) (*models.OneTimeCodeRecord, error)
	SupersedeActiveFunc   func(ctx context.Context, userID, purpose string) error
	IncrementAttemptsFunc func(ctx context.Context, id string) (int, error)
	ConsumeFunc           func(ctx context.Context, id string, maxAttempts int) (bool, error)
	CleanupExpiredFunc    func(ctx context.Context) (int64, error)
}

func (m *MockOneTimeCodeRepository) Create(ctx context.Context, userID, purpose, codeHash string, meta json.RawMessage, expiresAt time.Time) (*models.OneTimeCodeRecord, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, userID, purpose, codeHash, meta, expiresAt)
	}
	return &models.OneTimeCodeRecord{
		ID:        "code_123",
		UserID:    userID,
		Purpose:   purpose,
		CodeHash:  codeHash,
		Meta:      meta,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}, nil
}

func (m *MockOneTimeCodeRepository) GetLatest(ctx context.Context, userID, purpose string) (*models.OneTimeCodeRecord, error) {
	if m.GetLatestFunc != nil {
		return m.GetLatestFunc(ctx, userID, purpose)
	}
	return nil, models.ErrNotFound
}

func (m *MockOneTimeCodeRepository) SupersedeActive(ctx context.Context, userID, purpose string) error {
	if m.SupersedeActiveFunc != nil {
		return m.SupersedeActiveFunc(ctx, userID, purpose)
	}
	return nil
}

func (m *MockOneTimeCodeRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	if m.IncrementAttemptsFunc != nil {
		return m.IncrementAttemptsFunc(ctx, id)
	}
	return 1, nil
}

func (m *MockOneTimeCodeRepository) Consume(ctx context.Context, id string, maxAttempts int) (bool, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, id, maxAttempts)
	}
	return true, nil
}

func (m *MockOneTimeCodeRepository) CleanupExpired(ctx context.Context) (int64, error) {
	if m.CleanupExpiredFunc != nil {
		return m.CleanupExpiredFunc(ctx)
	}
	return 0, nil
}

// MockTOTPDeviceRepository implements TOTPDeviceRepository for testing
type MockTOTPDeviceRepository struct {
	CreateFunc        func(ctx context.Context, userID string, secretEncrypted, nonce []byte) (*models.TOTPDevice, error)
	GetByUserIDFunc   func(ctx context.Context, userID string) (*models.TOTPDevice, error)
	ActivateFunc      func(ctx context.Context, id string) error
	TouchLastUsedFunc func(ctx context.Context, id string) error
}

func (m *MockTOTPDeviceRepository) Create(ctx context.Context, userID string, secretEncrypted, nonce []byte) (*models.TOTPDevice, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, userID, secretEncrypted, nonce)
	}
	return &models.TOTPDevice{
		ID:              "device_123",
		UserID:          userID,
		SecretEncrypted: secretEncrypted,
		Nonce:           nonce,
		CreatedAt:       time.Now(),
	}, nil
}

func (m *MockTOTPDeviceRepository) GetByUserID(ctx context.Context, userID string) (*models.TOTPDevice, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockTOTPDeviceRepository) Activate(ctx context.Context, id string) error {
	if m.ActivateFunc != nil {
		return m.ActivateFunc(ctx, id)
	}
	return nil
}

func (m *MockTOTPDeviceRepository) TouchLastUsed(ctx context.Context, id string) error {
	if m.TouchLastUsedFunc != nil {
		return m.TouchLastUsedFunc(ctx, id)
	}
	return nil
}

// MockSessionStore implements SessionStore and SessionInvalidator for testing
type MockSessionStore struct {
	CreateFunc           func(ctx context.Context, jti, userID string, expiresAt time.Time) error
	DeleteAllForUserFunc func(ctx context.Context, userID string) (int64, error)
}

func (m *MockSessionStore) Create(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, jti, userID, expiresAt)
	}
	return nil
}

func (m *MockSessionStore) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	if m.DeleteAllForUserFunc != nil {
		return m.DeleteAllForUserFunc(ctx, userID)
	}
	return 0, nil
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendPasswordResetEmailFunc func(ctx context.Context, email, token string, expiresAt time.Time) error
	SendOneTimeCodeEmailFunc   func(ctx context.Context, email, code, purpose string, expiresAt time.Time) error
}

func (m *MockEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	if m.SendPasswordResetEmailFunc != nil {
		return m.SendPasswordResetEmailFunc(ctx, email, token, expiresAt)
	}
	return nil
}

func (m *MockEmailService) SendOneTimeCodeEmail(ctx context.Context, email, code, purpose string, expiresAt time.Time) error {
	if m.SendOneTimeCodeEmailFunc != nil {
		return m.SendOneTimeCodeEmailFunc(ctx, email, code, purpose, expiresAt)
	}
	return nil
}

// MockCodeChallenger implements CodeChallenger for testing
type MockCodeChallenger struct {
	IssueFunc    func(ctx context.Context, userID, purpose string, meta json.RawMessage) (string, error)
	ValidateFunc func(ctx context.Context, userID, purpose, code string) (json.RawMessage, error)
}

func (m *MockCodeChallenger) Issue(ctx context.Context, userID, purpose string, meta json.RawMessage) (string, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, userID, purpose, meta)
	}
	return "123456", nil
}

func (m *MockCodeChallenger) Validate(ctx context.Context, userID, purpose, code string) (json.RawMessage, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, userID, purpose, code)
	}
	return json.RawMessage(`{}`), nil
}

// NewTestUser creates a verified test user
func NewTestUser(id, email, username string) *models.User {
	now := time.Now()
	verifiedAt := now.Add(-24 * time.Hour)
	return &models.User{
		ID:              id,
		Email:           email,
		Username:        username,
		RoleID:          models.RoleMember,
		EmailVerifiedAt: &verifiedAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// NewTestUserUnverified creates a user that has not verified their email
func NewTestUserUnverified(id, email, username string) *models.User {
	user := NewTestUser(id, email, username)
	user.EmailVerifiedAt = nil
	return user
}

// NewTestResetRecord creates an active reset record for the given raw token
func NewTestResetRecord(id, userID, rawToken string, expiresAt time.Time) *models.PasswordResetRecord {
	return &models.PasswordResetRecord{
		ID:        id,
		UserID:    userID,
		TokenHash: hashSecret(rawToken),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
}

// NewTestCodeRecord creates an active code record for the given raw code
func NewTestCodeRecord(id, userID, purpose, rawCode string, expiresAt time.Time) *models.OneTimeCodeRecord {
	return &models.OneTimeCodeRecord{
		ID:        id,
		UserID:    userID,
		Purpose:   purpose,
		CodeHash:  hashSecret(rawCode),
		Meta:      json.RawMessage(`{}`),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(newTestLogger())
}
