package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tcollier/txgate/internal/database"
)

// SessionRepository tracks live sessions by token id (jti). Sessions are an
// allowlist: a token whose jti is absent is treated as logged out. The table
// name comes from configuration, so it passes through the identifier
// validator before ever reaching SQL text; all values still bind as
// parameters.
type SessionRepository struct {
	db          *database.DB
	quotedTable string
}

func NewSessionRepository(db *database.DB, tableName string) (*SessionRepository, error) {
	quoted, err := database.QuoteIdentifier(tableName)
	if err != nil {
		return nil, fmt.Errorf("invalid session table name: %w", err)
	}

	return &SessionRepository{db: db, quotedTable: quoted}, nil
}

// Create records a new live session for a user.
func (r *SessionRepository) Create(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, jti, user_id, expires_at)
		VALUES ($1, $2, $3, $4)
	`, r.quotedTable)

	_, err := r.db.Pool.Exec(ctx, query, uuid.New().String(), jti, userID, expiresAt)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// IsActive reports whether a session with this jti is still live.
func (r *SessionRepository) IsActive(ctx context.Context, jti string) (bool, error) {
	query := fmt.Sprintf(`
		SELECT EXISTS(SELECT 1 FROM %s WHERE jti = $1 AND expires_at > NOW())
	`, r.quotedTable)

	var exists bool
	if err := r.db.Pool.QueryRow(ctx, query, jti).Scan(&exists); err != nil {
		return false, database.MapPostgresError(err)
	}

	return exists, nil
}

// DeleteAllForUser removes every live session for a user. Called best-effort
// after a successful password reset.
func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, r.quotedTable)

	result, err := r.db.Pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}

// CleanupExpired removes sessions past their expiry.
func (r *SessionRepository) CleanupExpired(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at < NOW()`, r.quotedTable)

	result, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
