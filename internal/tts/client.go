// Package tts talks to the external text-to-speech provider.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Voice is one synthesis voice the provider offers.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Gender   string `json:"gender,omitempty"`
}

// Synthesizer is the provider surface the handlers depend on.
type Synthesizer interface {
	Voices(ctx context.Context, language string) ([]Voice, error)
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// Client calls the provider's HTTP API. The base URL is swappable so tests
// can point it at a local server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        zerolog.Logger
}

// NewClient builds the provider client.
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		log:        log.With().Str("component", "tts-client").Logger(),
	}
}

// Voices fetches the voice catalogue, optionally filtered by language.
func (c *Client) Voices(ctx context.Context, language string) ([]Voice, error) {
	url := c.baseURL + "/v1/voices"
	if language != "" {
		url += "?language=" + language
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build voices request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error().Err(err).Msg("voices call failed")
		return nil, fmt.Errorf("voices call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d for voices", resp.StatusCode)
	}
	var out struct {
		Voices []Voice `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode voices response: %w", err)
	}
	return out.Voices, nil
}

// Synthesize renders text with the given voice and returns the audio bytes.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	body, err := json.Marshal(map[string]string{"text": text, "voice_id": voiceID})
	if err != nil {
		return nil, fmt.Errorf("marshal synthesize request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build synthesize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("voice_id", voiceID).Msg("synthesize call failed")
		return nil, fmt.Errorf("synthesize call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d for synthesize", resp.StatusCode)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return audio, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
