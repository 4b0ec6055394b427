package repositories

import (
	"context"
	"fmt"

	"github.com/tcollier/txgate/internal/database"
	"github.com/tcollier/txgate/internal/dispatch"
)

// SnapshotRepository reads the permission and transaction-code tables once
// at startup. It implements dispatch.PermissionSource and dispatch.TxSource.
type SnapshotRepository struct {
	db *database.DB
}

func NewSnapshotRepository(db *database.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// PermissionRules returns every (role, method, object) grant.
func (r *SnapshotRepository) PermissionRules(ctx context.Context) ([]dispatch.PermissionRule, error) {
	query := `
		SELECT role_id, method_name, object_name
		FROM permissions
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	defer rows.Close()

	rules := make([]dispatch.PermissionRule, 0)
	for rows.Next() {
		var rule dispatch.PermissionRule
		var method, object string
		if err := rows.Scan(&rule.RoleID, &method, &object); err != nil {
			return nil, fmt.Errorf("failed to scan permission row: %w", err)
		}
		rule.Method = dispatch.Method(method)
		rule.Object = dispatch.Object(object)
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating permission rows: %w", err)
	}

	return rules, nil
}

// TxMappings returns every transaction-code binding.
func (r *SnapshotRepository) TxMappings(ctx context.Context) ([]dispatch.TxMapping, error) {
	query := `
		SELECT tx_code, object_name, method_name
		FROM transaction_codes
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction codes: %w", err)
	}
	defer rows.Close()

	mappings := make([]dispatch.TxMapping, 0)
	for rows.Next() {
		var m dispatch.TxMapping
		var object, method string
		if err := rows.Scan(&m.Code, &object, &method); err != nil {
			return nil, fmt.Errorf("failed to scan transaction code row: %w", err)
		}
		m.Route = dispatch.Route{Object: dispatch.Object(object), Method: dispatch.Method(method)}
		mappings = append(mappings, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction code rows: %w", err)
	}

	return mappings, nil
}
