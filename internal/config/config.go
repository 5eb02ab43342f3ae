// Package config loads application configuration from environment
// variables into immutable structs handed to each component constructor.
package config

import (
	"log"
	"os"
	"time"
)

// Config holds all runtime configuration. Token TTLs stay as duration
// strings ("15m", "7d"); the token codec parses them and falls back to
// safe defaults on malformed values, since they come from trusted
// configuration rather than user input.
type Config struct {
	Env  string // application environment ("dev", "prod")
	Port string // HTTP port to listen on

	DBUser string
	DBPass string // optional
	DBHost string
	DBPort string
	DBName string

	AccessSecret  string // HMAC secret for access tokens
	RefreshSecret string // HMAC secret for refresh tokens (independent)
	AccessTTL     string // access token lifetime, e.g. "15m"
	RefreshTTL    string // refresh token lifetime, e.g. "7d"
	CookieDomain  string // cookie Domain attribute; applied in prod only

	GoogleClientID string // expected aud claim on Google id tokens
	AppleClientID  string // expected aud claim on Apple id tokens

	TTSBaseURL string // text-to-speech provider base URL
	TTSAPIKey  string
	StorageDir string // root directory for stored audio files

	VoiceCacheTTL time.Duration // redis voice-list cache lifetime
}

// IsProd reports whether the app runs in production; the gateway's cookie
// policy (Secure, SameSite, Domain) keys off this.
func (c Config) IsProd() bool { return c.Env == "prod" }

// Load reads configuration from environment variables. Missing required
// variables abort startup with a fatal log message.
func Load() Config {
	return Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		AccessSecret:   must("ACCESS_TOKEN_SECRET"),
		RefreshSecret:  must("REFRESH_TOKEN_SECRET"),
		AccessTTL:      getenv("ACCESS_TOKEN_TTL", "15m"),
		RefreshTTL:     getenv("REFRESH_TOKEN_TTL", "7d"),
		CookieDomain:   os.Getenv("COOKIE_DOMAIN"),
		GoogleClientID: os.Getenv("GOOGLE_CLIENT_ID"),
		AppleClientID:  os.Getenv("APPLE_CLIENT_ID"),
		TTSBaseURL:     must("TTS_BASE_URL"),
		TTSAPIKey:      must("TTS_API_KEY"),
		StorageDir:     getenv("STORAGE_DIR", "./data/audio"),
		VoiceCacheTTL:  envDur("VOICE_CACHE_TTL", time.Hour),
	}
}

// must retrieves a required environment variable or exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
