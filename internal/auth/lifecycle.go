package auth

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicecraft/speech-backend/internal/model"
	"github.com/voicecraft/speech-backend/internal/token"
)

// TokenPair is the result of issuing or rotating credentials.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Lifecycle orchestrates the codec and the session store: it mints pairs,
// validates access tokens against their backing session, rotates refresh
// tokens and revokes sessions.
type Lifecycle struct {
	codec    *token.Codec
	sessions SessionStore
	log      zerolog.Logger
}

// NewLifecycle wires the token lifecycle service.
func NewLifecycle(codec *token.Codec, sessions SessionStore, log zerolog.Logger) *Lifecycle {
	return &Lifecycle{codec: codec, sessions: sessions, log: log.With().Str("component", "token-lifecycle").Logger()}
}

// Issue mints a fresh access/refresh pair and persists one session row
// keyed by the two hashes.
func (l *Lifecycle) Issue(ctx context.Context, userID uint64, email, role string) (*TokenPair, error) {
	access, accessExp, err := l.codec.SignAccess(userID, email, role)
	if err != nil {
		return nil, wrapInternal(err, "sign access token")
	}
	refresh, refreshExp, err := l.codec.SignRefresh(userID, email, role)
	if err != nil {
		return nil, wrapInternal(err, "sign refresh token")
	}
	if _, err := l.sessions.Create(ctx, userID, token.Hash(access), token.Hash(refresh), accessExp, refreshExp); err != nil {
		l.log.Error().Err(err).Uint64("user_id", userID).Msg("session create failed")
		return nil, wrapInternal(err, "persist session")
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Verify checks an access token cryptographically, then against its session
// row. On success the session's last-used timestamp is bumped.
func (l *Lifecycle) Verify(ctx context.Context, accessToken string) (*token.Claims, *model.Session, error) {
	claims, err := l.codec.VerifyAccess(accessToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, nil, ErrTokenExpired()
		}
		return nil, nil, ErrTokenInvalid()
	}
	sess, err := l.sessions.FindByAccessHash(ctx, claims.UserID, token.Hash(accessToken))
	if err != nil {
		return nil, nil, wrapInternal(err, "session lookup")
	}
	if sess == nil || time.Now().After(sess.ExpiresAt) {
		// Signature was valid but the session was rotated, revoked or has
		// lapsed — a distinct failure from a bad token.
		return nil, nil, ErrSessionExpired()
	}
	if err := l.sessions.Touch(ctx, sess.ID); err != nil {
		l.log.Warn().Err(err).Uint64("session_id", sess.ID).Msg("touch failed")
	}
	return claims, sess, nil
}

// Rotate exchanges a refresh token for a new pair. The old session row is
// deleted first; if the conditional delete removes nothing the token was
// already spent (replay or a concurrent refresh won), and rotation aborts
// without issuing.
func (l *Lifecycle) Rotate(ctx context.Context, refreshToken string) (*TokenPair, *model.User, error) {
	claims, err := l.codec.VerifyRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, nil, ErrTokenExpired()
		}
		return nil, nil, ErrTokenInvalid()
	}
	if claims.Type != token.TypeRefresh {
		return nil, nil, newError(KindUnauthorized, "not a refresh token")
	}
	sess, user, err := l.sessions.FindByRefreshHash(ctx, claims.UserID, token.Hash(refreshToken))
	if err != nil {
		return nil, nil, wrapInternal(err, "session lookup")
	}
	if sess == nil {
		return nil, nil, ErrTokenExpired()
	}
	if time.Now().After(sess.RefreshExpiresAt) {
		if _, err := l.sessions.Delete(ctx, sess.ID); err != nil {
			l.log.Warn().Err(err).Uint64("session_id", sess.ID).Msg("dead session purge failed")
		}
		return nil, nil, ErrTokenExpired()
	}
	deleted, err := l.sessions.Delete(ctx, sess.ID)
	if err != nil {
		return nil, nil, wrapInternal(err, "session delete")
	}
	if deleted == 0 {
		// A concurrent rotation already consumed this session.
		return nil, nil, ErrTokenExpired()
	}
	pair, err := l.Issue(ctx, user.ID, user.Email, user.Role)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// Revoke deletes the session backing an access token. Revoking a token
// whose session is already gone is not an error; sign-out stays idempotent.
func (l *Lifecycle) Revoke(ctx context.Context, accessToken string) (bool, error) {
	claims := l.codec.Decode(accessToken)
	if claims == nil {
		return true, nil
	}
	if _, err := l.sessions.DeleteByAccessHash(ctx, claims.UserID, token.Hash(accessToken)); err != nil {
		return false, wrapInternal(err, "session delete")
	}
	return true, nil
}

// RevokeAll deletes every session for a user (global sign-out).
func (l *Lifecycle) RevokeAll(ctx context.Context, userID uint64) (int64, error) {
	n, err := l.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, wrapInternal(err, "session delete all")
	}
	return n, nil
}

// Codec exposes the codec for callers that need unverified decodes or TTLs
// (the gateway's cheap pre-lookup and cookie max-age computation).
func (l *Lifecycle) Codec() *token.Codec { return l.codec }
