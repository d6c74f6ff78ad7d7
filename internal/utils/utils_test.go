package utils

import (
	"regexp"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("s3cret", 42, "OPERATOR", 5)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), tok.Exp, 5*time.Second)

	claims, err := ParseAccessToken("s3cret", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, Claims{Subject: 42, Role: "OPERATOR"}, claims)

	_, err = ParseAccessToken("other", tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseAccessToken_NumericSubject(t *testing.T) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": 7, "role": "CONSUMER", "exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	claims, err := ParseAccessToken("k", raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), claims.Subject)
}

func TestParseAccessToken_Rejects(t *testing.T) {
	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "7", "role": "CONSUMER", "exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("k"))
	noRole, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "7", "exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("k"))
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "7", "role": "CONSUMER",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, raw := range map[string]string{"expired": expired, "no role": noRole, "none alg": unsigned, "garbage": "a.b.c"} {
		_, err := ParseAccessToken("k", raw)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestNewReservationReference(t *testing.T) {
	pattern := regexp.MustCompile(`^RSV-[ABCDEFGHJKLMNPQRSTUVWXYZ23456789]{10}$`)
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		ref, err := NewReservationReference()
		require.NoError(t, err)
		assert.Regexp(t, pattern, ref)
		assert.False(t, seen[ref], "duplicate %s", ref)
		seen[ref] = true
	}
}
