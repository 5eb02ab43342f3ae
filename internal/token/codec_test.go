package token_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/voicecraft/speech-backend/internal/token"
)

const (
	accessSecret  = "access-secret-1"
	refreshSecret = "refresh-secret-1"
)

func newCodec(t *testing.T) *token.Codec {
	t.Helper()
	return token.NewCodec(accessSecret, refreshSecret, "15m", "7d", zerolog.Nop())
}

func TestParseTTL(t *testing.T) {
	cases := map[string]time.Duration{
		"30s": 30 * time.Second,
		"15m": 15 * time.Minute,
		"2h":  2 * time.Hour,
		"7d":  7 * 24 * time.Hour,
	}
	for in, want := range cases {
		got, err := token.ParseTTL(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "15", "m15", "15x", "1.5h", "-3m", "15 m"} {
		_, err := token.ParseTTL(in)
		require.Error(t, err, in)
	}
}

func TestNewCodecFallsBackOnBadTTL(t *testing.T) {
	c := token.NewCodec(accessSecret, refreshSecret, "bogus", "also-bogus", zerolog.Nop())
	require.Equal(t, token.DefaultAccessTTL, c.AccessTTL())
	require.Equal(t, token.DefaultRefreshTTL, c.RefreshTTL())
}

func TestSignVerifyRoundTrip(t *testing.T) {
	c := newCodec(t)

	raw, exp, err := c.SignAccess(42, "a@x.com", "CUSTOMER")
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 5*time.Second)

	claims, err := c.VerifyAccess(raw)
	require.NoError(t, err)
	require.Equal(t, uint64(42), claims.UserID)
	require.Equal(t, "a@x.com", claims.Email)
	require.Equal(t, "CUSTOMER", claims.Role)
	require.Equal(t, token.TypeAccess, claims.Type)
}

func TestSignedTokensAreUnique(t *testing.T) {
	c := newCodec(t)

	// iat/exp have second granularity; the jti must keep back-to-back
	// tokens for the same user distinct.
	a1, _, err := c.SignAccess(42, "a@x.com", "CUSTOMER")
	require.NoError(t, err)
	a2, _, err := c.SignAccess(42, "a@x.com", "CUSTOMER")
	require.NoError(t, err)
	require.NotEqual(t, a1, a2)
	require.NotEqual(t, token.Hash(a1), token.Hash(a2))

	r1, _, err := c.SignRefresh(42, "a@x.com", "CUSTOMER")
	require.NoError(t, err)
	r2, _, err := c.SignRefresh(42, "a@x.com", "CUSTOMER")
	require.NoError(t, err)
	require.NotEqual(t, r1, r2)
}

func TestSecretsAreIndependent(t *testing.T) {
	c := newCodec(t)

	access, _, err := c.SignAccess(1, "a@x.com", "CUSTOMER")
	require.NoError(t, err)
	refresh, _, err := c.SignRefresh(1, "a@x.com", "CUSTOMER")
	require.NoError(t, err)

	_, err = c.VerifyRefresh(access)
	require.ErrorIs(t, err, token.ErrInvalid)
	_, err = c.VerifyAccess(refresh)
	require.ErrorIs(t, err, token.ErrInvalid)
}

func TestVerifyExpired(t *testing.T) {
	c := newCodec(t)

	expired := signRaw(t, accessSecret, jwt.MapClaims{
		"sub":  "7",
		"type": token.TypeAccess,
		"exp":  time.Now().Add(-time.Minute).Unix(),
	})
	_, err := c.VerifyAccess(expired)
	require.ErrorIs(t, err, token.ErrExpired)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	c := newCodec(t)
	for _, raw := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := c.VerifyAccess(raw)
		require.ErrorIs(t, err, token.ErrInvalid, raw)
	}
}

func TestDecodeNeverVerifies(t *testing.T) {
	c := newCodec(t)

	// Signed with the wrong secret: Decode still yields the claims.
	forged := signRaw(t, "some-other-secret", jwt.MapClaims{
		"sub":  "9",
		"type": token.TypeAccess,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	claims := c.Decode(forged)
	require.NotNil(t, claims)
	require.Equal(t, uint64(9), claims.UserID)

	require.Nil(t, c.Decode("garbage"))
	require.Nil(t, c.Decode(""))
}

func TestHash(t *testing.T) {
	h := token.Hash("raw-token")
	require.Len(t, h, 64)
	require.Equal(t, h, token.Hash("raw-token"))
	require.NotEqual(t, h, token.Hash("raw-token2"))
	require.NotEqual(t, "raw-token", h)
}

func signRaw(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}
