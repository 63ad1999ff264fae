package jwt

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJWTManager(t *testing.T) {
	manager := NewJWTManager("test-secret", 15*time.Minute)

	assert.NotNil(t, manager)
	assert.Equal(t, "test-secret", manager.secretKey)
	assert.Equal(t, 15*time.Minute, manager.accessTokenDuration)
}

func TestValidateToken_ValidToken(t *testing.T) {
	manager := NewJWTManager("test-secret", 15*time.Minute)

	token, err := manager.GenerateAccessToken("pat-1", RolePatient)
	require.NoError(t, err)

	claims, err := manager.ValidateToken(token)

	require.NoError(t, err)
	assert.Equal(t, "pat-1", claims.UserID)
	assert.Equal(t, RolePatient, claims.Role)
	assert.Equal(t, "pat-1", claims.Subject)
}

func TestGenerateAccessToken_RequiresUser(t *testing.T) {
	manager := NewJWTManager("test-secret", 15*time.Minute)

	_, err := manager.GenerateAccessToken("", RoleDoctor)

	assert.Error(t, err)
}

func TestValidateToken_ExpiredToken(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Nanosecond)

	token, err := manager.GenerateAccessToken("doc-1", RoleDoctor)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	claims, err := manager.ValidateToken(token)

	assert.Error(t, err)
	assert.Nil(t, claims)
	assert.Contains(t, err.Error(), "expired")
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := NewJWTManager("secret-a", time.Minute).GenerateAccessToken("doc-1", RoleDoctor)
	require.NoError(t, err)

	_, err = NewJWTManager("secret-b", time.Minute).ValidateToken(token)

	assert.Error(t, err)
}

func TestValidateToken_WrongIssuer(t *testing.T) {
	claims := &Claims{
		UserID: "doc-1",
		RegisteredClaims: gojwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = NewJWTManager("test-secret", time.Minute).ValidateToken(token)

	assert.Error(t, err)
}

func TestValidateToken_Malformed(t *testing.T) {
	_, err := NewJWTManager("test-secret", time.Minute).ValidateToken("not-a-token")
	assert.Error(t, err)
}
