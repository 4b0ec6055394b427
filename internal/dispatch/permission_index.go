package dispatch

import (
	"context"
	"fmt"
)

// PermissionRule grants one (role, method, object) triple.
type PermissionRule struct {
	RoleID int
	Method Method
	Object Object
}

// PermissionSource supplies the permission table snapshot.
type PermissionSource interface {
	PermissionRules(ctx context.Context) ([]PermissionRule, error)
}

type permKey struct {
	roleID int
	method Method
	object Object
}

// PermissionIndex is the immutable (role, method, object) -> allowed mapping.
// Built once at startup; absence means denied. Safe for unsynchronized
// concurrent reads after construction.
type PermissionIndex struct {
	grants map[permKey]struct{}
}

// LoadPermissionIndex consumes the permission snapshot and builds the index.
// A read failure is fatal to readiness: the process must not serve dispatch
// traffic with an empty or stale permission set.
func LoadPermissionIndex(ctx context.Context, src PermissionSource) (*PermissionIndex, error) {
	rules, err := src.PermissionRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load permission snapshot: %w", err)
	}

	idx := &PermissionIndex{grants: make(map[permKey]struct{}, len(rules))}
	for _, rule := range rules {
		idx.grants[permKey{rule.RoleID, rule.Method, rule.Object}] = struct{}{}
	}
	return idx, nil
}

// NewPermissionIndex builds an index from in-memory rules. Used by tests.
func NewPermissionIndex(rules []PermissionRule) *PermissionIndex {
	idx := &PermissionIndex{grants: make(map[permKey]struct{}, len(rules))}
	for _, rule := range rules {
		idx.grants[permKey{rule.RoleID, rule.Method, rule.Object}] = struct{}{}
	}
	return idx
}

// IsAllowed is a pure lookup: default-deny, never mutates, never fails.
func (i *PermissionIndex) IsAllowed(roleID int, method Method, object Object) bool {
	_, ok := i.grants[permKey{roleID, method, object}]
	return ok
}
