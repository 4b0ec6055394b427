package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/tcollier/txgate/internal/config"
	"github.com/tcollier/txgate/internal/models"
	pkglogger "github.com/tcollier/txgate/pkg/logger"
)

// OneTimeCodeRepository defines the store operations for code records
type OneTimeCodeRepository interface {
	Create(ctx context.Context, userID, purpose, codeHash string, meta json.RawMessage, expiresAt time.Time) (*models.OneTimeCodeRecord, error)
	GetLatest(ctx context.Context, userID, purpose string) (*models.OneTimeCodeRecord, error)
	SupersedeActive(ctx context.Context, userID, purpose string) error
	IncrementAttempts(ctx context.Context, id string) (int, error)
	Consume(ctx context.Context, id string, maxAttempts int) (bool, error)
	CleanupExpired(ctx context.Context) (int64, error)
}

// OneTimeCodeService issues and validates short numeric codes scoped by
// (user, purpose). Issuing supersedes any active code for the same pair;
// validation consumes at most once.
type OneTimeCodeService struct {
	codeRepo    OneTimeCodeRepository
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	ttl         time.Duration
	maxAttempts int
	codeLength  int
	codeCharset string
}

// NewOneTimeCodeService creates a new OneTimeCodeService
func NewOneTimeCodeService(
	codeRepo OneTimeCodeRepository,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	cfg config.ChallengeConfig,
) *OneTimeCodeService {
	return &OneTimeCodeService{
		codeRepo:    codeRepo,
		logger:      logger,
		auditLogger: auditLogger,
		ttl:         cfg.OTPTTL,
		maxAttempts: cfg.MaxAttempts,
		codeLength:  cfg.OTPLength,
		codeCharset: cfg.OTPCharset,
	}
}

// Issue generates a fresh code for (user, purpose), stores its hash with
// the given meta, and returns the raw code for out-of-band delivery.
func (s *OneTimeCodeService) Issue(ctx context.Context, userID, purpose string, meta json.RawMessage) (string, error) {
	if err := s.codeRepo.SupersedeActive(ctx, userID, purpose); err != nil {
		s.logger.Error("failed to supersede code records",
			slog.String("user_id", userID),
			slog.String("purpose", purpose),
			slog.Any("error", err))
		return "", models.ErrUnknown
	}

	code, err := generateCode(s.codeLength, s.codeCharset)
	if err != nil {
		s.logger.Error("failed to generate one-time code", slog.Any("error", err))
		return "", models.ErrUnknown
	}

	if _, err := s.codeRepo.Create(ctx, userID, purpose, hashSecret(code), meta, time.Now().Add(s.ttl)); err != nil {
		s.logger.Error("failed to store code record",
			slog.String("user_id", userID),
			slog.String("purpose", purpose),
			slog.Any("error", err))
		return "", models.ErrUnknown
	}

	s.auditLogger.LogChallenge(pkglogger.AuditEvent{
		EventType: "code_issued",
		UserID:    userID,
		Purpose:   purpose,
		Success:   true,
	})
	return code, nil
}

// Validate checks a submitted code against the newest record for
// (user, purpose) and consumes it on match. Returns the meta stored at
// issuance so callers can resume the flow that triggered the challenge.
func (s *OneTimeCodeService) Validate(ctx context.Context, userID, purpose, code string) (json.RawMessage, error) {
	record, err := s.codeRepo.GetLatest(ctx, userID, purpose)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidToken
		}
		s.logger.Error("failed to fetch code record",
			slog.String("user_id", userID),
			slog.String("purpose", purpose),
			slog.Any("error", err))
		return nil, models.ErrUnknown
	}

	if record.IsConsumed() {
		s.logValidation(userID, purpose, "already_consumed")
		return nil, models.ErrInvalidToken
	}

	suppliedHash := hashSecret(code)

	if record.IsExpired() {
		if hashesEqual(record.CodeHash, suppliedHash) {
			s.logValidation(userID, purpose, "expired")
			return nil, models.ErrExpiredToken
		}
		return nil, models.ErrInvalidToken
	}

	if record.AttemptCount >= s.maxAttempts {
		s.logValidation(userID, purpose, "attempts_exhausted")
		return nil, models.ErrTooManyRequests
	}

	if !hashesEqual(record.CodeHash, suppliedHash) {
		if _, err := s.codeRepo.IncrementAttempts(ctx, record.ID); err != nil {
			s.logger.Error("failed to increment code attempts",
				slog.String("record_id", record.ID), slog.Any("error", err))
		}
		s.logValidation(userID, purpose, "mismatch")
		return nil, models.ErrInvalidToken
	}

	consumed, err := s.codeRepo.Consume(ctx, record.ID, s.maxAttempts)
	if err != nil {
		s.logger.Error("failed to consume code record",
			slog.String("record_id", record.ID), slog.Any("error", err))
		return nil, models.ErrUnknown
	}
	if !consumed {
		s.logValidation(userID, purpose, "consume_conflict")
		return nil, models.ErrInvalidToken
	}

	s.auditLogger.LogChallenge(pkglogger.AuditEvent{
		EventType: "code_validation",
		UserID:    userID,
		Purpose:   purpose,
		Success:   true,
	})
	return record.Meta, nil
}

func (s *OneTimeCodeService) logValidation(userID, purpose, reason string) {
	s.auditLogger.LogChallenge(pkglogger.AuditEvent{
		EventType:     "code_validation",
		UserID:        userID,
		Purpose:       purpose,
		Success:       false,
		FailureReason: reason,
	})
}
