package integration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tcollier/txgate/internal/database"
	"github.com/tcollier/txgate/internal/models"
	"github.com/tcollier/txgate/internal/repositories"
	pkgauth "github.com/tcollier/txgate/pkg/auth"
)

// TestDB manages a PostgreSQL testcontainer and database operations.
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations,
// and returns a ready TestDB.
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("txgate"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         &database.DB{Pool: pool},
	}, nil
}

// runMigrations executes all goose migrations against the container.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir, err := filepath.Abs("../../migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}

	goose.SetLogger(log.New(nil, "", 0))

	// Goose needs a database/sql connection; adapt from pgx
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// Teardown stops the container and closes the connection pool.
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates mutable tables for test isolation. The seeded
// permission and transaction-code snapshots are left in place.
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"totp_devices",
		"sessions",
		"one_time_codes",
		"password_resets",
		"persons",
		"users",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// SeedUser inserts a test user with a hashed password.
func SeedUser(ctx context.Context, pool *pgxpool.Pool, email, password string, verified bool) (*models.User, error) {
	hashedPassword, err := pkgauth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO users (id, email, username, password_hash, role_id, email_verified_at)
		VALUES ($1, $2, $3, $4, $5, CASE WHEN $6 THEN NOW() ELSE NULL END)
		RETURNING id, email, username, password_hash, role_id, email_verified_at, created_at, updated_at
	`

	var user models.User
	err = pool.QueryRow(ctx, query,
		uuid.New().String(), email, "seeded-user", hashedPassword, models.RoleMember, verified,
	).Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.RoleID,
		&user.EmailVerifiedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return &user, nil
}

// SeedPerson inserts a person row served through the dispatch gateway.
func SeedPerson(ctx context.Context, pool *pgxpool.Pool, name, email string) (string, error) {
	id := uuid.New().String()

	query := `
		INSERT INTO persons (id, name, email)
		VALUES ($1, $2, $3)
	`

	if _, err := pool.Exec(ctx, query, id, name, email); err != nil {
		return "", fmt.Errorf("failed to insert person: %w", err)
	}

	return id, nil
}

// SeedResetToken creates a live password reset record and returns the raw
// token the way the reset email would deliver it.
func SeedResetToken(ctx context.Context, pool *pgxpool.Pool, userID string) (string, error) {
	token := "test-reset-token-" + userID
	tokenHash := sha256Hash(token)

	query := `
		INSERT INTO password_resets (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, NOW() + INTERVAL '15 minutes')
	`

	if _, err := pool.Exec(ctx, query, uuid.New().String(), userID, tokenHash); err != nil {
		return "", fmt.Errorf("failed to insert reset record: %w", err)
	}

	return token, nil
}

// SeedExpiredResetToken creates a reset record already past its TTL.
func SeedExpiredResetToken(ctx context.Context, pool *pgxpool.Pool, userID string) (string, error) {
	token := "test-expired-reset-" + userID
	tokenHash := sha256Hash(token)

	query := `
		INSERT INTO password_resets (id, user_id, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, NOW() - INTERVAL '1 hour', NOW() - INTERVAL '45 minutes')
	`

	if _, err := pool.Exec(ctx, query, uuid.New().String(), userID, tokenHash); err != nil {
		return "", fmt.Errorf("failed to insert expired reset record: %w", err)
	}

	return token, nil
}

// SeedLoginCode creates a live one-time code for the login step-up.
func SeedLoginCode(ctx context.Context, pool *pgxpool.Pool, userID, code string) error {
	query := `
		INSERT INTO one_time_codes (id, user_id, purpose, code_hash, expires_at)
		VALUES ($1, $2, $3, $4, NOW() + INTERVAL '10 minutes')
	`

	_, err := pool.Exec(ctx, query, uuid.New().String(), userID, models.PurposeLogin, sha256Hash(code))
	if err != nil {
		return fmt.Errorf("failed to insert login code: %w", err)
	}

	return nil
}

// InitializeRepositories creates repository instances from the database wrapper.
func InitializeRepositories(db *database.DB) (
	*repositories.UserRepository,
	*repositories.PersonRepository,
	*repositories.PasswordResetRepository,
	*repositories.OneTimeCodeRepository,
	*repositories.TOTPDeviceRepository,
	*repositories.SnapshotRepository,
) {
	return repositories.NewUserRepository(db),
		repositories.NewPersonRepository(db),
		repositories.NewPasswordResetRepository(db),
		repositories.NewOneTimeCodeRepository(db),
		repositories.NewTOTPDeviceRepository(db),
		repositories.NewSnapshotRepository(db)
}

func sha256Hash(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}
