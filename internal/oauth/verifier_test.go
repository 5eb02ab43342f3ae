package oauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicecraft/speech-backend/internal/auth"
	"github.com/voicecraft/speech-backend/internal/model"
)

func TestGoogleVerifyMapsIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "the-token", r.URL.Query().Get("id_token"))
		json.NewEncoder(w).Encode(map[string]string{
			"sub":     "g-123",
			"aud":     "my-client",
			"email":   "Ana@Example.com",
			"name":    "Ana",
			"picture": "https://img.example.com/ana.png",
		})
	}))
	defer srv.Close()

	v := NewGoogleVerifier(srv.Client(), "my-client", zerolog.Nop())
	v.endpoint = srv.URL

	id, err := v.Verify(context.Background(), "the-token")
	require.NoError(t, err)
	assert.Equal(t, model.ProviderGoogle, id.Provider)
	assert.Equal(t, "g-123", id.ProviderID)
	assert.Equal(t, "Ana@Example.com", id.Email)
	assert.Equal(t, "Ana", id.Name)
	assert.Equal(t, "https://img.example.com/ana.png", id.AvatarURL)
}

func TestGoogleVerifyRejectsAudienceMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"sub": "g-123", "aud": "someone-else"})
	}))
	defer srv.Close()

	v := NewGoogleVerifier(srv.Client(), "my-client", zerolog.Nop())
	v.endpoint = srv.URL

	_, err := v.Verify(context.Background(), "the-token")
	assert.True(t, auth.IsKind(err, auth.KindTokenInvalid))
}

func TestGoogleVerifyRejectsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	v := NewGoogleVerifier(srv.Client(), "", zerolog.Nop())
	v.endpoint = srv.URL

	_, err := v.Verify(context.Background(), "garbage")
	assert.True(t, auth.IsKind(err, auth.KindTokenInvalid))
}

func appleTestSetup(t *testing.T) (*AppleVerifier, *rsa.PrivateKey, func()) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "test-kid",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}},
		})
	}))

	v := NewAppleVerifier(srv.Client(), "my-client", zerolog.Nop())
	v.endpoint = srv.URL
	return v, key, srv.Close
}

func signAppleToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = "test-kid"
	raw, err := tok.SignedString(key)
	require.NoError(t, err)
	return raw
}

func TestAppleVerifyMapsIdentity(t *testing.T) {
	v, key, done := appleTestSetup(t)
	defer done()

	raw := signAppleToken(t, key, jwt.MapClaims{
		"iss":   appleIssuer,
		"aud":   "my-client",
		"sub":   "apple-456",
		"email": "pat@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	id, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, model.ProviderApple, id.Provider)
	assert.Equal(t, "apple-456", id.ProviderID)
	assert.Equal(t, "pat@example.com", id.Email)
	assert.Empty(t, id.Name)
}

func TestAppleVerifyRejectsWrongIssuer(t *testing.T) {
	v, key, done := appleTestSetup(t)
	defer done()

	raw := signAppleToken(t, key, jwt.MapClaims{
		"iss": "https://not-apple.example.com",
		"aud": "my-client",
		"sub": "apple-456",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Verify(context.Background(), raw)
	assert.True(t, auth.IsKind(err, auth.KindTokenInvalid))
}

func TestAppleVerifyRejectsForeignSignature(t *testing.T) {
	v, _, done := appleTestSetup(t)
	defer done()

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	raw := signAppleToken(t, other, jwt.MapClaims{
		"iss": appleIssuer,
		"aud": "my-client",
		"sub": "apple-456",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err = v.Verify(context.Background(), raw)
	assert.True(t, auth.IsKind(err, auth.KindTokenInvalid))
}

func TestMultiVerifierRejectsUnknownProvider(t *testing.T) {
	m := NewMultiVerifier(nil, "", "", zerolog.Nop())
	_, err := m.Verify(context.Background(), "github", "tok")
	assert.True(t, auth.IsKind(err, auth.KindValidation))
}
