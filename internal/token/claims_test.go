package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerDeclaredExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	got, ok := ServerDeclaredExpiry(signed)
	require.True(t, ok)
	assert.True(t, got.Equal(exp))
}

func TestServerDeclaredExpiryOpaqueToken(t *testing.T) {
	_, ok := ServerDeclaredExpiry("not-a-jwt")
	assert.False(t, ok)
}

func TestServerDeclaredExpiryNoExpClaim(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, ok := ServerDeclaredExpiry(signed)
	assert.False(t, ok)
}
