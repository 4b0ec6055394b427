package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubPermissionSource struct {
	rules []PermissionRule
	err   error
}

func (s *stubPermissionSource) PermissionRules(ctx context.Context) ([]PermissionRule, error) {
	return s.rules, s.err
}

func TestPermissionIndex_DefaultDeny(t *testing.T) {
	idx := NewPermissionIndex([]PermissionRule{
		{RoleID: 1, Method: "getPersonByName", Object: ObjectPerson},
	})

	// Any triple absent from the snapshot is denied
	assert.False(t, idx.IsAllowed(2, "getPersonByName", ObjectPerson), "different role")
	assert.False(t, idx.IsAllowed(1, "createPerson", ObjectPerson), "different method")
	assert.False(t, idx.IsAllowed(1, "getPersonByName", ObjectAccount), "different object")
	assert.False(t, idx.IsAllowed(0, "", ""), "zero values")
}

func TestPermissionIndex_GrantedTriple(t *testing.T) {
	idx := NewPermissionIndex([]PermissionRule{
		{RoleID: 1, Method: "getPersonByName", Object: ObjectPerson},
		{RoleID: 1, Method: "getProfile", Object: ObjectAccount},
		{RoleID: 2, Method: "getPersonByName", Object: ObjectPerson},
	})

	assert.True(t, idx.IsAllowed(1, "getPersonByName", ObjectPerson))
	assert.True(t, idx.IsAllowed(1, "getProfile", ObjectAccount))
	assert.True(t, idx.IsAllowed(2, "getPersonByName", ObjectPerson))
}

func TestLoadPermissionIndex_SourceFailure(t *testing.T) {
	src := &stubPermissionSource{err: errors.New("snapshot unavailable")}

	idx, err := LoadPermissionIndex(context.Background(), src)

	assert.Error(t, err)
	assert.Nil(t, idx)
}

func TestLoadPermissionIndex_EmptySnapshotDeniesEverything(t *testing.T) {
	idx, err := LoadPermissionIndex(context.Background(), &stubPermissionSource{})

	assert.NoError(t, err)
	assert.False(t, idx.IsAllowed(1, "getPersonByName", ObjectPerson))
}
