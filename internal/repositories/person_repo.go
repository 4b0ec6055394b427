package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/tcollier/txgate/internal/database"
	"github.com/tcollier/txgate/internal/models"
)

type PersonRepository struct {
	db *database.DB
}

func NewPersonRepository(db *database.DB) *PersonRepository {
	return &PersonRepository{db: db}
}

func scanPersonRow(scanner rowScanner) (*models.Person, error) {
	var person models.Person

	err := scanner.Scan(
		&person.ID, &person.Name, &person.Email, pq.Array(&person.Aliases),
		&person.CreatedAt, &person.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &person, nil
}

func (r *PersonRepository) GetByName(ctx context.Context, name string) (*models.Person, error) {
	query := `
		SELECT id, name, email, aliases, created_at, updated_at
		FROM persons WHERE name = $1
	`

	return scanPersonRow(r.db.Pool.QueryRow(ctx, query, name))
}

func (r *PersonRepository) List(ctx context.Context, limit, offset int) ([]*models.Person, error) {
	query := `
		SELECT id, name, email, aliases, created_at, updated_at
		FROM persons ORDER BY name LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query persons: %w", err)
	}

	return scanPersonRows(rows)
}

func scanPersonRows(rows pgx.Rows) ([]*models.Person, error) {
	defer rows.Close()

	persons := make([]*models.Person, 0)

	for rows.Next() {
		person, err := scanPersonRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		persons = append(persons, person)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating person rows: %w", err)
	}

	return persons, nil
}

func (r *PersonRepository) Create(ctx context.Context, person *models.Person) (*models.Person, error) {
	person.ID = uuid.New().String()

	now := time.Now()
	person.CreatedAt = now
	person.UpdatedAt = now

	query := `
		INSERT INTO persons (id, name, email, aliases, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, name, email, aliases, created_at, updated_at
	`

	return scanPersonRow(r.db.Pool.QueryRow(ctx, query,
		person.ID, person.Name, person.Email, pq.Array(person.Aliases),
		person.CreatedAt, person.UpdatedAt,
	))
}
