package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tcollier/txgate/internal/database"
	"github.com/tcollier/txgate/internal/models"
)

type TOTPDeviceRepository struct {
	db *database.DB
}

func NewTOTPDeviceRepository(db *database.DB) *TOTPDeviceRepository {
	return &TOTPDeviceRepository{db: db}
}

func scanDeviceRow(scanner rowScanner) (*models.TOTPDevice, error) {
	var device models.TOTPDevice
	var activatedAt, lastUsedAt *time.Time

	err := scanner.Scan(
		&device.ID, &device.UserID, &device.SecretEncrypted, &device.Nonce,
		&activatedAt, &lastUsedAt, &device.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	device.ActivatedAt = activatedAt
	device.LastUsedAt = lastUsedAt
	return &device, nil
}

// Create stores a new (not yet activated) device, replacing any previous
// unactivated enrollment for the user.
func (r *TOTPDeviceRepository) Create(ctx context.Context, userID string, secretEncrypted, nonce []byte) (*models.TOTPDevice, error) {
	if _, err := r.db.Pool.Exec(ctx,
		`DELETE FROM totp_devices WHERE user_id = $1 AND activated_at IS NULL`, userID); err != nil {
		return nil, database.MapPostgresError(err)
	}

	query := `
		INSERT INTO totp_devices (id, user_id, secret_encrypted, nonce)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, secret_encrypted, nonce, activated_at, last_used_at, created_at
	`

	return scanDeviceRow(r.db.Pool.QueryRow(ctx, query, uuid.New().String(), userID, secretEncrypted, nonce))
}

// GetByUserID returns the user's newest device, activated or not.
func (r *TOTPDeviceRepository) GetByUserID(ctx context.Context, userID string) (*models.TOTPDevice, error) {
	query := `
		SELECT id, user_id, secret_encrypted, nonce, activated_at, last_used_at, created_at
		FROM totp_devices
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	return scanDeviceRow(r.db.Pool.QueryRow(ctx, query, userID))
}

// Activate marks a device usable for login step-up.
func (r *TOTPDeviceRepository) Activate(ctx context.Context, id string) error {
	query := `
		UPDATE totp_devices SET activated_at = NOW()
		WHERE id = $1 AND activated_at IS NULL
	`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// TouchLastUsed records a successful code use for the replay window guard.
func (r *TOTPDeviceRepository) TouchLastUsed(ctx context.Context, id string) error {
	query := `UPDATE totp_devices SET last_used_at = NOW() WHERE id = $1`

	_, err := r.db.Pool.Exec(ctx, query, id)
	return database.MapPostgresError(err)
}
