package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcollier/txgate/internal/config"
	"github.com/tcollier/txgate/internal/models"
	pkgauth "github.com/tcollier/txgate/pkg/auth"
)

func testChallengeConfig() config.ChallengeConfig {
	return config.ChallengeConfig{
		ResetTTL:        15 * time.Minute,
		OTPTTL:          10 * time.Minute,
		MaxAttempts:     5,
		OTPLength:       6,
		OTPCharset:      "0123456789",
		TokenByteLength: 32,
	}
}

func newResetService(resetRepo *MockPasswordResetRepository, userRepo *MockUserRepository, sessions *MockSessionStore, emailSvc *MockEmailService) *PasswordResetService {
	if resetRepo == nil {
		resetRepo = &MockPasswordResetRepository{}
	}
	if userRepo == nil {
		userRepo = &MockUserRepository{}
	}
	if sessions == nil {
		sessions = &MockSessionStore{}
	}
	if emailSvc == nil {
		emailSvc = &MockEmailService{}
	}

	return NewPasswordResetService(resetRepo, userRepo, sessions, emailSvc,
		newTestLogger(), newTestAuditLogger(), testChallengeConfig())
}

func TestPasswordResetService_Request_DeliversFreshToken(t *testing.T) {
	user := NewTestUser("user-1", "alice@example.com", "alice")

	var superseded bool
	var storedHash string
	var sentToken string

	resetRepo := &MockPasswordResetRepository{
		SupersedeActiveFunc: func(ctx context.Context, userID string) error {
			superseded = true
			return nil
		},
		CreateFunc: func(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.PasswordResetRecord, error) {
			storedHash = tokenHash
			assert.Equal(t, "user-1", userID)
			assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)
			return NewTestResetRecord("reset-1", userID, "ignored", expiresAt), nil
		},
	}
	userRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}
	emailSvc := &MockEmailService{
		SendPasswordResetEmailFunc: func(ctx context.Context, email, token string, expiresAt time.Time) error {
			sentToken = token
			return nil
		},
	}

	svc := newResetService(resetRepo, userRepo, nil, emailSvc)
	err := svc.Request(context.Background(), "alice@example.com")

	require.NoError(t, err)
	assert.True(t, superseded)
	require.NotEmpty(t, sentToken)
	// The store only ever sees the hash, and it matches the delivered token
	assert.Equal(t, hashSecret(sentToken), storedHash)
	assert.NotContains(t, storedHash, sentToken)
}

func TestPasswordResetService_Request_UnknownEmailSilentSuccess(t *testing.T) {
	var issued bool
	resetRepo := &MockPasswordResetRepository{
		CreateFunc: func(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.PasswordResetRecord, error) {
			issued = true
			return nil, nil
		},
	}

	svc := newResetService(resetRepo, &MockUserRepository{}, nil, nil)
	err := svc.Request(context.Background(), "nobody@example.com")

	assert.NoError(t, err)
	assert.False(t, issued)
}

func TestPasswordResetService_Complete_Success(t *testing.T) {
	user := NewTestUser("user-1", "alice@example.com", "alice")
	record := NewTestResetRecord("reset-1", "user-1", "the-raw-token", time.Now().Add(10*time.Minute))

	var consumed, passwordUpdated, sessionsDeleted bool

	resetRepo := &MockPasswordResetRepository{
		GetLatestByUserIDFunc: func(ctx context.Context, userID string) (*models.PasswordResetRecord, error) {
			return record, nil
		},
		ConsumeFunc: func(ctx context.Context, id string, maxAttempts int) (bool, error) {
			assert.Equal(t, "reset-1", id)
			assert.Equal(t, 5, maxAttempts)
			consumed = true
			return true, nil
		},
	}
	userRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
		UpdatePasswordHashFunc: func(ctx context.Context, id, passwordHash string) error {
			passwordUpdated = true
			assert.NoError(t, pkgauth.ComparePassword(passwordHash, "NewSecret123"))
			return nil
		},
	}
	sessions := &MockSessionStore{
		DeleteAllForUserFunc: func(ctx context.Context, userID string) (int64, error) {
			sessionsDeleted = true
			return 2, nil
		},
	}

	svc := newResetService(resetRepo, userRepo, sessions, nil)
	result, err := svc.Complete(context.Background(), "alice@example.com", "the-raw-token", "NewSecret123")

	require.NoError(t, err)
	assert.True(t, consumed)
	assert.True(t, passwordUpdated)
	assert.True(t, sessionsDeleted)
	assert.True(t, result.SessionsInvalidated)
}

func TestPasswordResetService_Complete_SessionCleanupFailureIsDegradedSuccess(t *testing.T) {
	user := NewTestUser("user-1", "alice@example.com", "alice")
	record := NewTestResetRecord("reset-1", "user-1", "the-raw-token", time.Now().Add(10*time.Minute))

	resetRepo := &MockPasswordResetRepository{
		GetLatestByUserIDFunc: func(ctx context.Context, userID string) (*models.PasswordResetRecord, error) {
			return record, nil
		},
	}
	userRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}
	sessions := &MockSessionStore{
		DeleteAllForUserFunc: func(ctx context.Context, userID string) (int64, error) {
			return 0, errors.New("connection refused")
		},
	}

	svc := newResetService(resetRepo, userRepo, sessions, nil)
	result, err := svc.Complete(context.Background(), "alice@example.com", "the-raw-token", "NewSecret123")

	// The password change stands even though session cleanup failed
	require.NoError(t, err)
	assert.False(t, result.SessionsInvalidated)
}

func TestPasswordResetService_Complete_WrongTokenIncrementsAttempts(t *testing.T) {
	user := NewTestUser("user-1", "alice@example.com", "alice")
	record := NewTestResetRecord("reset-1", "user-1", "the-raw-token", time.Now().Add(10*time.Minute))

	var incremented bool
	resetRepo := &MockPasswordResetRepository{
		GetLatestByUserIDFunc: func(ctx context.Context, userID string) (*models.PasswordResetRecord, error) {
			return record, nil
		},
		IncrementAttemptsFunc: func(ctx context.Context, id string) (int, error) {
			incremented = true
			return 1, nil
		},
	}
	userRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}

	svc := newResetService(resetRepo, userRepo, nil, nil)
	_, err := svc.Complete(context.Background(), "alice@example.com", "wrong-token", "NewSecret123")

	assert.ErrorIs(t, err, models.ErrInvalidToken)
	assert.True(t, incremented)
}

func TestPasswordResetService_Complete_AttemptCapLocksOutCorrectToken(t *testing.T) {
	// Five wrong guesses, then the correct token: the cap wins.
	user := NewTestUser("user-1", "alice@example.com", "alice")
	record := NewTestResetRecord("reset-1", "user-1", "the-raw-token", time.Now().Add(10*time.Minute))

	resetRepo := &MockPasswordResetRepository{
		GetLatestByUserIDFunc: func(ctx context.Context, userID string) (*models.PasswordResetRecord, error) {
			return record, nil
		},
		IncrementAttemptsFunc: func(ctx context.Context, id string) (int, error) {
			record.AttemptCount++
			return record.AttemptCount, nil
		},
		ConsumeFunc: func(ctx context.Context, id string, maxAttempts int) (bool, error) {
			t.Fatal("consume should never run once the cap is reached")
			return false, nil
		},
	}
	userRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}

	svc := newResetService(resetRepo, userRepo, nil, nil)

	for i := 0; i < 5; i++ {
		_, err := svc.Complete(context.Background(), "alice@example.com", "wrong-token", "NewSecret123")
		assert.ErrorIs(t, err, models.ErrInvalidToken)
	}
	assert.Equal(t, 5, record.AttemptCount)

	_, err := svc.Complete(context.Background(), "alice@example.com", "the-raw-token", "NewSecret123")
	assert.ErrorIs(t, err, models.ErrTooManyRequests)
}

func TestPasswordResetService_Complete_ExpiredMatchingToken(t *testing.T) {
	user := NewTestUser("user-1", "alice@example.com", "alice")
	record := NewTestResetRecord("reset-1", "user-1", "the-raw-token", time.Now().Add(-1*time.Minute))

	resetRepo := &MockPasswordResetRepository{
		GetLatestByUserIDFunc: func(ctx context.Context, userID string) (*models.PasswordResetRecord, error) {
			return record, nil
		},
	}
	userRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}

	svc := newResetService(resetRepo, userRepo, nil, nil)

	// Correct token on an expired record is reported as expired
	_, err := svc.Complete(context.Background(), "alice@example.com", "the-raw-token", "NewSecret123")
	assert.ErrorIs(t, err, models.ErrExpiredToken)

	// Wrong token on an expired record stays indistinguishable from no record
	_, err = svc.Complete(context.Background(), "alice@example.com", "wrong-token", "NewSecret123")
	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

func TestPasswordResetService_Complete_UsedRecordRejected(t *testing.T) {
	user := NewTestUser("user-1", "alice@example.com", "alice")
	usedAt := time.Now().Add(-1 * time.Minute)
	record := NewTestResetRecord("reset-1", "user-1", "the-raw-token", time.Now().Add(10*time.Minute))
	record.UsedAt = &usedAt

	resetRepo := &MockPasswordResetRepository{
		GetLatestByUserIDFunc: func(ctx context.Context, userID string) (*models.PasswordResetRecord, error) {
			return record, nil
		},
	}
	userRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}

	svc := newResetService(resetRepo, userRepo, nil, nil)
	_, err := svc.Complete(context.Background(), "alice@example.com", "the-raw-token", "NewSecret123")

	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

func TestPasswordResetService_Complete_WeakNewPasswordDoesNotBurnToken(t *testing.T) {
	user := NewTestUser("user-1", "alice@example.com", "alice")
	record := NewTestResetRecord("reset-1", "user-1", "the-raw-token", time.Now().Add(10*time.Minute))

	resetRepo := &MockPasswordResetRepository{
		GetLatestByUserIDFunc: func(ctx context.Context, userID string) (*models.PasswordResetRecord, error) {
			return record, nil
		},
		ConsumeFunc: func(ctx context.Context, id string, maxAttempts int) (bool, error) {
			t.Fatal("a weak new password must not consume the token")
			return false, nil
		},
	}
	userRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
		UpdatePasswordHashFunc: func(ctx context.Context, id, passwordHash string) error {
			t.Fatal("password must not change when validation fails")
			return nil
		},
	}

	svc := newResetService(resetRepo, userRepo, nil, nil)
	_, err := svc.Complete(context.Background(), "alice@example.com", "the-raw-token", "weak")

	assert.ErrorIs(t, err, models.ErrInvalidParameters)
}

func TestPasswordResetService_Complete_ConcurrentValidationsOneSuccess(t *testing.T) {
	user := NewTestUser("user-1", "alice@example.com", "alice")
	record := NewTestResetRecord("reset-1", "user-1", "the-raw-token", time.Now().Add(10*time.Minute))

	// Emulate the store's conditional update: first caller wins.
	var mu sync.Mutex
	var taken bool

	resetRepo := &MockPasswordResetRepository{
		GetLatestByUserIDFunc: func(ctx context.Context, userID string) (*models.PasswordResetRecord, error) {
			return record, nil
		},
		ConsumeFunc: func(ctx context.Context, id string, maxAttempts int) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			if taken {
				return false, nil
			}
			taken = true
			return true, nil
		},
	}
	userRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}

	svc := newResetService(resetRepo, userRepo, nil, nil)

	const workers = 16
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Complete(context.Background(), "alice@example.com", "the-raw-token", "NewSecret123")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, models.ErrInvalidToken)
		}
	}
	assert.Equal(t, 1, successes)
}
