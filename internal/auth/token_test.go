package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcollier/txgate/internal/auth"
	"github.com/tcollier/txgate/internal/models"
)

func testUser() *models.User {
	return &models.User{
		ID:     "user-123",
		Email:  "alice@example.com",
		RoleID: 2,
	}
}

func TestTokenManager_GenerateAndValidate(t *testing.T) {
	tm := auth.NewTokenManager("test-secret-with-enough-entropy-123", 15*time.Minute)

	tokenString, claims, err := tm.GenerateAccessToken(testUser())
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)
	require.NotEmpty(t, claims.ID)

	parsed, err := tm.ValidateToken(tokenString)
	require.NoError(t, err)

	assert.Equal(t, "access", parsed.Type)
	assert.Equal(t, "user-123", parsed.UserID)
	assert.Equal(t, 2, parsed.RoleID)
	assert.Equal(t, "alice@example.com", parsed.Email)
	assert.Equal(t, claims.ID, parsed.ID)
}

func TestTokenManager_ValidateToken_WrongSecret(t *testing.T) {
	tm := auth.NewTokenManager("test-secret-with-enough-entropy-123", 15*time.Minute)
	other := auth.NewTokenManager("a-completely-different-secret-456", 15*time.Minute)

	tokenString, _, err := tm.GenerateAccessToken(testUser())
	require.NoError(t, err)

	_, err = other.ValidateToken(tokenString)
	assert.Error(t, err)
}

func TestTokenManager_ValidateToken_Expired(t *testing.T) {
	tm := auth.NewTokenManager("test-secret-with-enough-entropy-123", -1*time.Minute)

	tokenString, _, err := tm.GenerateAccessToken(testUser())
	require.NoError(t, err)

	_, err = tm.ValidateToken(tokenString)
	assert.Error(t, err)
}

func TestTokenManager_ValidateToken_Garbage(t *testing.T) {
	tm := auth.NewTokenManager("test-secret-with-enough-entropy-123", 15*time.Minute)

	_, err := tm.ValidateToken("not-a-jwt")
	assert.Error(t, err)
}
