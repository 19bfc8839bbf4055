package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims Claims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func candidateClaims(userID int) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		TokenType: TokenTypeCandidate,
		UserID:    userID,
	}
}

func TestValidateTokenRoundTrip(t *testing.T) {
	v := NewValidator("secret-1")
	tok := signToken(t, "secret-1", candidateClaims(7))

	claims, err := v.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, 7, claims.UserID)
	assert.Equal(t, TokenTypeCandidate, claims.TokenType)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	v := NewValidator("secret-1")
	tok := signToken(t, "other-secret", candidateClaims(7))

	_, err := v.ValidateToken(tok)
	assert.Error(t, err)
}

func TestValidateTokenExpired(t *testing.T) {
	v := NewValidator("secret-1")
	claims := candidateClaims(7)
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	tok := signToken(t, "secret-1", claims)

	_, err := v.ValidateToken(tok)
	assert.Error(t, err)
}

func TestValidateTokenGarbage(t *testing.T) {
	v := NewValidator("secret-1")

	_, err := v.ValidateToken("not.a.jwt")
	assert.Error(t, err)
}
