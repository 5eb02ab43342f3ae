package tts

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CachedCatalog caches the voice list in redis per language. A nil redis
// client disables the cache and every call hits the provider; cache
// failures degrade the same way.
type CachedCatalog struct {
	inner Synthesizer
	rdb   *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCachedCatalog wraps a synthesizer with the voice-list cache.
func NewCachedCatalog(inner Synthesizer, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedCatalog {
	return &CachedCatalog{
		inner: inner,
		rdb:   rdb,
		ttl:   ttl,
		log:   log.With().Str("component", "voice-cache").Logger(),
	}
}

func cacheKey(language string) string {
	if language == "" {
		language = "all"
	}
	return "voices:" + language
}

func (c *CachedCatalog) Voices(ctx context.Context, language string) ([]Voice, error) {
	if c.rdb == nil {
		return c.inner.Voices(ctx, language)
	}
	key := cacheKey(language)
	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var voices []Voice
		if json.Unmarshal(raw, &voices) == nil {
			return voices, nil
		}
		// Unreadable entry; drop it and refetch.
		c.rdb.Del(ctx, key)
	}

	voices, err := c.inner.Voices(ctx, language)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(voices); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return voices, nil
}

// Synthesize is never cached; it passes straight through.
func (c *CachedCatalog) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	return c.inner.Synthesize(ctx, text, voiceID)
}
