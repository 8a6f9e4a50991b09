package utils

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	user := model.UserRef{ID: 42, Name: "Ada", Role: model.RoleStudent}
	tok, err := NewAccessToken("s3cret", user, 15)
	require.NoError(t, err)

	got, err := ParseAccessToken("s3cret", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, user, got)

	_, err = ParseAccessToken("other", tok.Token)
	assert.ErrorIs(t, err, model.ErrUnauthenticated)
}

func TestExpiredAccessToken(t *testing.T) {
	tok, err := NewAccessToken("s3cret", model.UserRef{ID: 1}, -1)
	require.NoError(t, err)
	_, err = ParseAccessToken("s3cret", tok.Token)
	require.ErrorIs(t, err, model.ErrUnauthenticated)
	assert.Equal(t, "token expired", model.Message(err))
}

func TestAccessTokenRejectsOtherAlgorithms(t *testing.T) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseAccessToken("s3cret", raw)
	assert.ErrorIs(t, err, model.ErrUnauthenticated)
}

func TestRefreshTokenAndPassword(t *testing.T) {
	rt, err := NewRefreshToken(7)
	require.NoError(t, err)
	assert.Len(t, rt.Raw, 96)
	assert.Len(t, HashRefreshRaw(rt.Raw), 64)
	assert.NotEqual(t, rt.Raw, HashRefreshRaw(rt.Raw))

	hash, err := HashPassword("hunter22", 4)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "hunter22"))
	assert.False(t, VerifyPassword(hash, "hunter23"))
}
