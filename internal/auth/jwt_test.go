package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	v := NewVerifier("secret")
	tok, err := v.Issue("user-1", time.Hour)
	require.NoError(t, err)

	id, err := v.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)
}

func TestParseRejects(t *testing.T) {
	v := NewVerifier("secret")

	expired, err := v.Issue("user-1", -time.Minute)
	require.NoError(t, err)
	_, err = v.Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewVerifier("other").Issue("user-1", time.Hour)
	require.NoError(t, err)
	_, err = v.Parse(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noID, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = v.Parse(noID)
	assert.ErrorIs(t, err, ErrInvalidToken)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"_id": "x"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = v.Parse(hs512)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Parse("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
