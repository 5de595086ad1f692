package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "s3cret"))
	assert.False(t, CheckPassword(hash, "wrong"))
	assert.False(t, CheckPassword("not-a-hash", "s3cret"))
}

func TestJWTRoundTrip(t *testing.T) {
	tok, err := SignJWT("owner", "k", time.Hour)
	require.NoError(t, err)

	sub, err := ParseJWT(tok, "k")
	require.NoError(t, err)
	assert.Equal(t, "owner", sub)
}

func TestJWTRejects(t *testing.T) {
	tok, err := SignJWT("owner", "k", time.Hour)
	require.NoError(t, err)

	_, err = ParseJWT(tok, "other")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := SignJWT("owner", "k", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(expired, "k")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseJWT("garbage", "k")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
