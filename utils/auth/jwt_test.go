package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	manager := NewJWTManager(JWTConfig{
		Secret: "test-secret",
		Expiry: time.Hour,
		Issuer: "marketplace-api",
	})

	userID := uuid.New()
	token, err := manager.GenerateAccessToken(userID, "instructor@example.com", "instructor")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := manager.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "instructor@example.com", claims.Email)
	assert.Equal(t, "instructor", claims.Role)
	assert.Equal(t, "marketplace-api", claims.Issuer)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	issuer := NewJWTManager(JWTConfig{Secret: "secret-a", Expiry: time.Hour})
	verifier := NewJWTManager(JWTConfig{Secret: "secret-b", Expiry: time.Hour})

	token, err := issuer.GenerateAccessToken(uuid.New(), "user@example.com", "student")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateExpiredToken(t *testing.T) {
	manager := NewJWTManager(JWTConfig{Secret: "test-secret", Expiry: -time.Minute})

	token, err := manager.GenerateAccessToken(uuid.New(), "user@example.com", "student")
	require.NoError(t, err)

	_, err = manager.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateGarbageToken(t *testing.T) {
	manager := NewJWTManager(JWTConfig{Secret: "test-secret", Expiry: time.Hour})

	_, err := manager.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
