package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tcollier/txgate/internal/database"
	"github.com/tcollier/txgate/internal/models"
)

type OneTimeCodeRepository struct {
	db *database.DB
}

func NewOneTimeCodeRepository(db *database.DB) *OneTimeCodeRepository {
	return &OneTimeCodeRepository{db: db}
}

func scanCodeRow(scanner rowScanner) (*models.OneTimeCodeRecord, error) {
	var record models.OneTimeCodeRecord
	var consumedAt *time.Time
	var meta []byte

	err := scanner.Scan(
		&record.ID, &record.UserID, &record.Purpose, &record.CodeHash, &meta,
		&record.AttemptCount, &record.ExpiresAt, &consumedAt, &record.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	record.Meta = json.RawMessage(meta)
	record.ConsumedAt = consumedAt
	return &record, nil
}

// Create stores a fresh code record for (user, purpose). Only the hash of
// the code is persisted.
func (r *OneTimeCodeRepository) Create(ctx context.Context, userID, purpose, codeHash string, meta json.RawMessage, expiresAt time.Time) (*models.OneTimeCodeRecord, error) {
	if meta == nil {
		meta = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO one_time_codes (id, user_id, purpose, code_hash, meta, attempt_count, expires_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6)
		RETURNING id, user_id, purpose, code_hash, meta, attempt_count, expires_at, consumed_at, created_at
	`

	record, err := scanCodeRow(r.db.Pool.QueryRow(ctx, query,
		uuid.New().String(), userID, purpose, codeHash, []byte(meta), expiresAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create one-time code record: %w", err)
	}

	return record, nil
}

// GetLatest returns the newest record for (user, purpose) regardless of
// state, so callers can distinguish expired-but-matching from no-match.
func (r *OneTimeCodeRepository) GetLatest(ctx context.Context, userID, purpose string) (*models.OneTimeCodeRecord, error) {
	query := `
		SELECT id, user_id, purpose, code_hash, meta, attempt_count, expires_at, consumed_at, created_at
		FROM one_time_codes
		WHERE user_id = $1 AND purpose = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	return scanCodeRow(r.db.Pool.QueryRow(ctx, query, userID, purpose))
}

// SupersedeActive consumes all active records for (user, purpose); at most
// one active secret per subject+purpose survives a new issue.
func (r *OneTimeCodeRepository) SupersedeActive(ctx context.Context, userID, purpose string) error {
	query := `
		UPDATE one_time_codes
		SET consumed_at = NOW()
		WHERE user_id = $1 AND purpose = $2 AND consumed_at IS NULL AND expires_at > NOW()
	`

	_, err := r.db.Pool.Exec(ctx, query, userID, purpose)
	if err != nil {
		return fmt.Errorf("failed to supersede active code records: %w", err)
	}

	return nil
}

// IncrementAttempts durably bumps attempt_count for a still-unconsumed
// record and returns the new count.
func (r *OneTimeCodeRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE one_time_codes
		SET attempt_count = attempt_count + 1
		WHERE id = $1 AND consumed_at IS NULL
		RETURNING attempt_count
	`

	var count int
	if err := r.db.Pool.QueryRow(ctx, query, id).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}

	return count, nil
}

// Consume marks the record consumed iff still unconsumed, unexpired, and
// under the attempt cap; exactly one concurrent caller observes true.
func (r *OneTimeCodeRepository) Consume(ctx context.Context, id string, maxAttempts int) (bool, error) {
	query := `
		UPDATE one_time_codes
		SET consumed_at = NOW()
		WHERE id = $1 AND consumed_at IS NULL AND expires_at > NOW() AND attempt_count < $2
	`

	result, err := r.db.Pool.Exec(ctx, query, id, maxAttempts)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return result.RowsAffected() == 1, nil
}

// CleanupExpired deletes stale records well past their TTL.
func (r *OneTimeCodeRepository) CleanupExpired(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM one_time_codes
		WHERE expires_at < NOW() - INTERVAL '30 days'
	`

	result, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired code records: %w", err)
	}

	return result.RowsAffected(), nil
}
