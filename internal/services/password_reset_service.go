package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tcollier/txgate/internal/config"
	"github.com/tcollier/txgate/internal/models"
	pkgauth "github.com/tcollier/txgate/pkg/auth"
	pkglogger "github.com/tcollier/txgate/pkg/logger"
)

// PasswordResetRepository defines the store operations for reset records
type PasswordResetRepository interface {
	Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.PasswordResetRecord, error)
	GetLatestByUserID(ctx context.Context, userID string) (*models.PasswordResetRecord, error)
	SupersedeActive(ctx context.Context, userID string) error
	IncrementAttempts(ctx context.Context, id string) (int, error)
	Consume(ctx context.Context, id string, maxAttempts int) (bool, error)
	CleanupExpired(ctx context.Context) (int64, error)
}

// UserRepository defines the user operations the services need
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	MarkEmailVerified(ctx context.Context, id string) error
}

// SessionInvalidator removes all live sessions for a user
type SessionInvalidator interface {
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
}

// ResetResult reports the outcome of a completed reset. SessionsInvalidated
// is false on degraded success: the password changed but session cleanup
// failed.
type ResetResult struct {
	UserID              string
	SessionsInvalidated bool
}

// PasswordResetService issues and validates single-use password reset
// tokens: one active record per user, bounded attempts, TTL, at-most-once
// consumption.
type PasswordResetService struct {
	resetRepo   PasswordResetRepository
	userRepo    UserRepository
	sessions    SessionInvalidator
	emailSvc    EmailService
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	ttl         time.Duration
	maxAttempts int
	tokenBytes  int
}

// NewPasswordResetService creates a new PasswordResetService
func NewPasswordResetService(
	resetRepo PasswordResetRepository,
	userRepo UserRepository,
	sessions SessionInvalidator,
	emailSvc EmailService,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	cfg config.ChallengeConfig,
) *PasswordResetService {
	return &PasswordResetService{
		resetRepo:   resetRepo,
		userRepo:    userRepo,
		sessions:    sessions,
		emailSvc:    emailSvc,
		logger:      logger,
		auditLogger: auditLogger,
		ttl:         cfg.ResetTTL,
		maxAttempts: cfg.MaxAttempts,
		tokenBytes:  cfg.TokenByteLength,
	}
}

// Request issues a reset token for the account with this email and delivers
// it out of band. Unknown emails return success to prevent enumeration.
func (s *PasswordResetService) Request(ctx context.Context, email string) error {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("reset requested for unknown email")
			return nil
		}
		s.logger.Error("failed to look up user for reset", slog.Any("error", err))
		return models.ErrUnknown
	}

	token, err := s.issue(ctx, user.ID)
	if err != nil {
		return err
	}

	if err := s.emailSvc.SendPasswordResetEmail(ctx, user.Email, token, time.Now().Add(s.ttl)); err != nil {
		s.logger.Error("failed to send reset email",
			slog.String("user_id", user.ID),
			slog.String("email", pkglogger.SanitizedEmail(user.Email)),
			slog.Any("error", err))
		return models.ErrUnknown
	}

	s.auditLogger.LogChallenge(pkglogger.AuditEvent{
		EventType: "reset_issued",
		UserID:    user.ID,
		Purpose:   "password_reset",
		Success:   true,
	})
	return nil
}

// issue supersedes prior active records and stores the hash of a fresh
// token. The raw token goes to the caller for delivery; it is never
// persisted.
func (s *PasswordResetService) issue(ctx context.Context, userID string) (string, error) {
	if err := s.resetRepo.SupersedeActive(ctx, userID); err != nil {
		s.logger.Error("failed to supersede reset records",
			slog.String("user_id", userID), slog.Any("error", err))
		return "", models.ErrUnknown
	}

	token, err := generateToken(s.tokenBytes)
	if err != nil {
		s.logger.Error("failed to generate reset token", slog.Any("error", err))
		return "", models.ErrUnknown
	}

	if _, err := s.resetRepo.Create(ctx, userID, hashSecret(token), time.Now().Add(s.ttl)); err != nil {
		s.logger.Error("failed to store reset record",
			slog.String("user_id", userID), slog.Any("error", err))
		return "", models.ErrUnknown
	}

	return token, nil
}

// Complete validates a reset token and, on success, replaces the user's
// password hash and best-effort invalidates their live sessions. A session
// cleanup failure never rolls back the password change.
func (s *PasswordResetService) Complete(ctx context.Context, email, token, newPassword string) (*ResetResult, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidToken
		}
		s.logger.Error("failed to look up user for reset completion", slog.Any("error", err))
		return nil, models.ErrUnknown
	}

	// Reject the new password before touching the challenge so a weak
	// password does not burn the token
	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return nil, models.ErrInvalidParameters.WithAlerts("new_password")
	}

	if err := s.validate(ctx, user.ID, token); err != nil {
		return nil, err
	}

	passwordHash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash new password",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrUnknown
	}

	if err := s.userRepo.UpdatePasswordHash(ctx, user.ID, passwordHash); err != nil {
		s.logger.Error("failed to update password hash",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrUnknown
	}

	s.auditLogger.LogPasswordChange(user.ID, true)

	result := &ResetResult{UserID: user.ID, SessionsInvalidated: true}
	if _, err := s.sessions.DeleteAllForUser(ctx, user.ID); err != nil {
		// Degraded success: the password changed, sessions linger until expiry
		s.logger.Error("failed to invalidate sessions after reset",
			slog.String("user_id", user.ID), slog.Any("error", err))
		result.SessionsInvalidated = false
	}

	return result, nil
}

// validate runs the full challenge check against the user's newest record.
func (s *PasswordResetService) validate(ctx context.Context, userID, token string) error {
	record, err := s.resetRepo.GetLatestByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidToken
		}
		s.logger.Error("failed to fetch reset record",
			slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrUnknown
	}

	if record.IsUsed() {
		s.logChallengeFailure(userID, "already_used")
		return models.ErrInvalidToken
	}

	suppliedHash := hashSecret(token)

	if record.IsExpired() {
		// Expired-but-matching is reported distinctly; a wrong secret on an
		// expired record stays indistinguishable from no record
		if hashesEqual(record.TokenHash, suppliedHash) {
			s.logChallengeFailure(userID, "expired")
			return models.ErrExpiredToken
		}
		return models.ErrInvalidToken
	}

	// Cap check precedes comparison: once exhausted, even the correct
	// secret is refused
	if record.AttemptCount >= s.maxAttempts {
		s.logChallengeFailure(userID, "attempts_exhausted")
		return models.ErrTooManyRequests
	}

	if !hashesEqual(record.TokenHash, suppliedHash) {
		if _, err := s.resetRepo.IncrementAttempts(ctx, record.ID); err != nil {
			s.logger.Error("failed to increment reset attempts",
				slog.String("record_id", record.ID), slog.Any("error", err))
		}
		s.logChallengeFailure(userID, "mismatch")
		return models.ErrInvalidToken
	}

	consumed, err := s.resetRepo.Consume(ctx, record.ID, s.maxAttempts)
	if err != nil {
		s.logger.Error("failed to consume reset record",
			slog.String("record_id", record.ID), slog.Any("error", err))
		return models.ErrUnknown
	}
	if !consumed {
		// Another validation won the race, or the cap filled underneath us
		s.logChallengeFailure(userID, "consume_conflict")
		return models.ErrInvalidToken
	}

	return nil
}

func (s *PasswordResetService) logChallengeFailure(userID, reason string) {
	s.auditLogger.LogChallenge(pkglogger.AuditEvent{
		EventType:     "reset_validation",
		UserID:        userID,
		Purpose:       "password_reset",
		Success:       false,
		FailureReason: reason,
	})
}
