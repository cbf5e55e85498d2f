package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barber-booking-api/internal/auth"
)

const secret = "test-secret"

func TestTokenRoundTrip(t *testing.T) {
	tok, err := auth.MakeToken(auth.Identity{UserID: "u1", Name: "Sam", Admin: true}, secret)
	require.NoError(t, err)
	c, err := auth.ParseToken(tok, secret)
	require.NoError(t, err)
	assert.Equal(t, auth.Identity{UserID: "u1", Name: "Sam", Admin: true}, c.Identity())
}

func TestWrongSecret(t *testing.T) {
	tok, _ := auth.MakeToken(auth.Identity{UserID: "u1"}, secret)
	_, err := auth.ParseToken(tok, "other")
	assert.Error(t, err)
}

func TestAccessTokenExpiry(t *testing.T) {
	c := auth.Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	_, err := auth.ParseToken(tok, secret)
	assert.Error(t, err, "expired token accepted")
}

func TestAlgorithmConfusion(t *testing.T) {
	c := auth.Claims{UserID: "u1"}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, c).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.ParseToken(tok, secret)
	assert.Error(t, err, "alg=none token accepted")
}

func TestPasswordHash(t *testing.T) {
	h, err := auth.HashPassword("trim-and-fade")
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(h, "trim-and-fade"))
	assert.False(t, auth.CheckPassword(h, "buzz-cut"))
}

func TestRefreshTokenHash(t *testing.T) {
	raw, hash, err := auth.GenerateRefreshToken()
	require.NoError(t, err)
	assert.Len(t, raw, 64)
	assert.Equal(t, hash, auth.HashRefreshToken(raw))
}
