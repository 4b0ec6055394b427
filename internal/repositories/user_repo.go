package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tcollier/txgate/internal/database"
	"github.com/tcollier/txgate/internal/models"
)

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUserRow handles nullable fields and populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var emailVerifiedAt *time.Time

	err := scanner.Scan(
		&user.ID, &user.Email, &user.Username, &user.PasswordHash,
		&user.RoleID, &emailVerifiedAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	user.EmailVerifiedAt = emailVerifiedAt
	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, email, username, password_hash, role_id, email_verified_at, created_at, updated_at
		FROM users WHERE id = $1
	`

	return scanUserRow(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, username, password_hash, role_id, email_verified_at, created_at, updated_at
		FROM users WHERE email = $1
	`

	return scanUserRow(r.db.Pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, email, username, password_hash, role_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, email, username, password_hash, role_id, email_verified_at, created_at, updated_at
	`

	created, err := scanUserRow(r.db.Pool.QueryRow(ctx, query,
		user.ID, user.Email, user.Username, user.PasswordHash,
		user.RoleID, user.CreatedAt, user.UpdatedAt,
	))
	if err != nil {
		return nil, err
	}

	return created, nil
}

// UpdatePasswordHash replaces the user's password hash. Used by the
// password-reset completion flow.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	query := `
		UPDATE users SET password_hash = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.Pool.Exec(ctx, query, passwordHash, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// MarkEmailVerified sets email_verified_at once; already-verified users are
// left untouched.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	query := `
		UPDATE users SET email_verified_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND email_verified_at IS NULL
	`

	_, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// UpdateUsername changes the display name and returns the updated user.
func (r *UserRepository) UpdateUsername(ctx context.Context, id, username string) (*models.User, error) {
	query := `
		UPDATE users SET username = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING id, email, username, password_hash, role_id, email_verified_at, created_at, updated_at
	`

	return scanUserRow(r.db.Pool.QueryRow(ctx, query, username, id))
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM users WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// scanUserRows iterates through rows and scans each into User models
func scanUserRows(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()

	users := make([]*models.User, 0)

	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return users, nil
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `
		SELECT id, email, username, password_hash, role_id, email_verified_at, created_at, updated_at
		FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	return scanUserRows(rows)
}
