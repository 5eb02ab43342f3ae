// Package oauth verifies provider-issued id tokens and maps them to the
// external identity the resolution service consumes. It is the only place
// that talks to the providers.
package oauth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicecraft/speech-backend/internal/auth"
	"github.com/voicecraft/speech-backend/internal/model"
)

// Verifier validates an id token for a provider and extracts the identity
// it asserts.
type Verifier interface {
	Verify(ctx context.Context, provider, idToken string) (*auth.ExternalIdentity, error)
}

// MultiVerifier dispatches by provider name.
type MultiVerifier struct {
	google *GoogleVerifier
	apple  *AppleVerifier
}

// NewMultiVerifier wires the per-provider verifiers with a shared HTTP
// client.
func NewMultiVerifier(httpClient *http.Client, googleClientID, appleClientID string, log zerolog.Logger) *MultiVerifier {
	return &MultiVerifier{
		google: NewGoogleVerifier(httpClient, googleClientID, log),
		apple:  NewAppleVerifier(httpClient, appleClientID, log),
	}
}

func (m *MultiVerifier) Verify(ctx context.Context, provider, idToken string) (*auth.ExternalIdentity, error) {
	switch strings.ToUpper(provider) {
	case model.ProviderGoogle:
		return m.google.Verify(ctx, idToken)
	case model.ProviderApple:
		return m.apple.Verify(ctx, idToken)
	default:
		return nil, auth.ErrValidation(fmt.Sprintf("unsupported provider %q", provider))
	}
}

func defaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 10 * time.Second}
}
