package oauth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/voicecraft/speech-backend/internal/auth"
	"github.com/voicecraft/speech-backend/internal/model"
)

const (
	appleKeysEndpoint = "https://appleid.apple.com/auth/keys"
	appleIssuer       = "https://appleid.apple.com"

	// appleKeysTTL bounds how long fetched signing keys are reused. Apple
	// rotates rarely; an unknown kid forces an early refetch.
	appleKeysTTL = time.Hour
)

// AppleVerifier validates Sign in with Apple id tokens locally against
// Apple's published JWKS. Apple has no tokeninfo equivalent.
type AppleVerifier struct {
	httpClient *http.Client
	clientID   string
	endpoint   string // swappable in tests
	log        zerolog.Logger

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewAppleVerifier builds the verifier. An empty clientID skips the
// audience check.
func NewAppleVerifier(httpClient *http.Client, clientID string, log zerolog.Logger) *AppleVerifier {
	return &AppleVerifier{
		httpClient: defaultClient(httpClient),
		clientID:   clientID,
		endpoint:   appleKeysEndpoint,
		log:        log.With().Str("component", "oauth-apple").Logger(),
	}
}

type appleClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verify checks the token's RS256 signature against Apple's keys plus the
// issuer and audience claims. Apple tokens carry no name or picture; those
// arrive only on the client's first authorization and are not part of the
// id token.
func (a *AppleVerifier) Verify(ctx context.Context, idToken string) (*auth.ExternalIdentity, error) {
	var claims appleClaims
	tok, err := jwt.ParseWithClaims(idToken, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("id token missing kid header")
		}
		return a.signingKey(ctx, kid)
	})
	if err != nil || !tok.Valid {
		a.log.Warn().Err(err).Msg("apple id token rejected")
		return nil, auth.ErrTokenInvalid()
	}
	if claims.Issuer != appleIssuer {
		return nil, auth.ErrTokenInvalid()
	}
	if a.clientID != "" && !containsAudience(claims.Audience, a.clientID) {
		a.log.Warn().Strs("aud", claims.Audience).Msg("id token audience mismatch")
		return nil, auth.ErrTokenInvalid()
	}
	if claims.Subject == "" {
		return nil, auth.ErrTokenInvalid()
	}
	return &auth.ExternalIdentity{
		Provider:   model.ProviderApple,
		ProviderID: claims.Subject,
		Email:      claims.Email,
	}, nil
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

// signingKey returns the RSA key for kid, refetching the JWKS when the
// cache is stale or the kid is unknown (rotation).
func (a *AppleVerifier) signingKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if key, ok := a.keys[kid]; ok && time.Since(a.fetchedAt) < appleKeysTTL {
		return key, nil
	}
	if err := a.refetchLocked(ctx); err != nil {
		return nil, err
	}
	key, ok := a.keys[kid]
	if !ok {
		return nil, fmt.Errorf("no signing key for kid %q", kid)
	}
	return key, nil
}

type jwksDocument struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (a *AppleVerifier) refetchLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint, nil)
	if err != nil {
		return fmt.Errorf("build jwks request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("jwks fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks fetch returned status %d", resp.StatusCode)
	}
	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := rsaKeyFromJWK(k.N, k.E)
		if err != nil {
			a.log.Warn().Err(err).Str("kid", k.Kid).Msg("skipping malformed jwk")
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return fmt.Errorf("jwks contained no usable keys")
	}
	a.keys = keys
	a.fetchedAt = time.Now()
	return nil
}

func rsaKeyFromJWK(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(new(big.Int).SetBytes(eb).Int64()),
	}, nil
}
