package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tcollier/txgate/internal/database"
	"github.com/tcollier/txgate/internal/models"
)

type PasswordResetRepository struct {
	db *database.DB
}

func NewPasswordResetRepository(db *database.DB) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

func scanResetRow(scanner rowScanner) (*models.PasswordResetRecord, error) {
	var record models.PasswordResetRecord
	var usedAt *time.Time

	err := scanner.Scan(
		&record.ID, &record.UserID, &record.TokenHash,
		&record.AttemptCount, &record.ExpiresAt, &usedAt, &record.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	record.UsedAt = usedAt
	return &record, nil
}

// Create stores a fresh reset record. Only the hash of the token is
// persisted; records are never updated with a new secret.
func (r *PasswordResetRepository) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.PasswordResetRecord, error) {
	query := `
		INSERT INTO password_resets (id, user_id, token_hash, attempt_count, expires_at)
		VALUES ($1, $2, $3, 0, $4)
		RETURNING id, user_id, token_hash, attempt_count, expires_at, used_at, created_at
	`

	record, err := scanResetRow(r.db.Pool.QueryRow(ctx, query, uuid.New().String(), userID, tokenHash, expiresAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create password reset record: %w", err)
	}

	return record, nil
}

// GetLatestByUserID returns the newest reset record for a user regardless of
// state. Callers distinguish expired-but-matching from no-match.
func (r *PasswordResetRepository) GetLatestByUserID(ctx context.Context, userID string) (*models.PasswordResetRecord, error) {
	query := `
		SELECT id, user_id, token_hash, attempt_count, expires_at, used_at, created_at
		FROM password_resets
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	return scanResetRow(r.db.Pool.QueryRow(ctx, query, userID))
}

// SupersedeActive marks all unused, unexpired records for the user as used,
// so at most one active secret exists per user after a new issue.
func (r *PasswordResetRepository) SupersedeActive(ctx context.Context, userID string) error {
	query := `
		UPDATE password_resets
		SET used_at = NOW()
		WHERE user_id = $1 AND used_at IS NULL AND expires_at > NOW()
	`

	_, err := r.db.Pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to supersede active reset records: %w", err)
	}

	return nil
}

// IncrementAttempts durably bumps attempt_count for a still-unused record
// and returns the new count. The increment is a single conditional UPDATE,
// atomic at the store.
func (r *PasswordResetRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE password_resets
		SET attempt_count = attempt_count + 1
		WHERE id = $1 AND used_at IS NULL
		RETURNING attempt_count
	`

	var count int
	if err := r.db.Pool.QueryRow(ctx, query, id).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}

	return count, nil
}

// Consume marks the record used if and only if it is still unused, unexpired,
// and under the attempt cap. Returns false when another validation won the
// race or the record is no longer consumable; exactly one concurrent caller
// can observe true.
func (r *PasswordResetRepository) Consume(ctx context.Context, id string, maxAttempts int) (bool, error) {
	query := `
		UPDATE password_resets
		SET used_at = NOW()
		WHERE id = $1 AND used_at IS NULL AND expires_at > NOW() AND attempt_count < $2
	`

	result, err := r.db.Pool.Exec(ctx, query, id, maxAttempts)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return result.RowsAffected() == 1, nil
}

// CleanupExpired deletes stale records well past their TTL.
func (r *PasswordResetRepository) CleanupExpired(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM password_resets
		WHERE expires_at < NOW() - INTERVAL '30 days'
	`

	result, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired reset records: %w", err)
	}

	return result.RowsAffected(), nil
}
