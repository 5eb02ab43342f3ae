package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/voicecraft/speech-backend/internal/model"
)

const sessionColumns = "id,user_id,token_hash,refresh_token_hash,expires_at,refresh_expires_at,last_used_at,created_at"

// SessionRepo persists session rows: one per issued token pair, keyed by
// the SHA-256 hashes of the two tokens. Every lookup is scoped by
// (user_id, hash) — the composite index, never the hash alone.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

// Create inserts a session row for a freshly issued pair.
func (r *SessionRepo) Create(ctx context.Context, userID uint64, accessHash, refreshHash string, expiresAt, refreshExpiresAt time.Time) (*model.Session, error) {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO sessions (user_id, token_hash, refresh_token_hash, expires_at, refresh_expires_at, last_used_at) VALUES (?,?,?,?,?,?)",
		userID, accessHash, refreshHash, expiresAt.UTC(), refreshExpiresAt.UTC(), now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &model.Session{
		ID:               uint64(id),
		UserID:           userID,
		TokenHash:        accessHash,
		RefreshTokenHash: refreshHash,
		ExpiresAt:        expiresAt,
		RefreshExpiresAt: refreshExpiresAt,
		LastUsedAt:       now,
	}, nil
}

// FindByAccessHash fetches the session for (userID, accessHash);
// (nil, nil) when absent.
func (r *SessionRepo) FindByAccessHash(ctx context.Context, userID uint64, accessHash string) (*model.Session, error) {
	var s model.Session
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE user_id=? AND token_hash=? LIMIT 1",
		userID, accessHash).
		Scan(&s.ID, &s.UserID, &s.TokenHash, &s.RefreshTokenHash, &s.ExpiresAt, &s.RefreshExpiresAt, &s.LastUsedAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindByRefreshHash fetches the session for (userID, refreshHash) together
// with its owning user in a single joined query; (nil, nil, nil) when
// absent.
func (r *SessionRepo) FindByRefreshHash(ctx context.Context, userID uint64, refreshHash string) (*model.Session, *model.User, error) {
	var (
		s model.Session
		u model.User
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT s.id,s.user_id,s.token_hash,s.refresh_token_hash,s.expires_at,s.refresh_expires_at,s.last_used_at,s.created_at,
		        u.id,u.email,u.role,u.name,u.avatar_url,u.language,u.subscription_tier,u.chars_synthesized,u.created_at,u.updated_at
		 FROM sessions s JOIN users u ON u.id=s.user_id
		 WHERE s.user_id=? AND s.refresh_token_hash=? LIMIT 1`,
		userID, refreshHash).
		Scan(&s.ID, &s.UserID, &s.TokenHash, &s.RefreshTokenHash, &s.ExpiresAt, &s.RefreshExpiresAt, &s.LastUsedAt, &s.CreatedAt,
			&u.ID, &u.Email, &u.Role, &u.Name, &u.AvatarURL, &u.Language, &u.SubscriptionTier, &u.CharsSynthesized, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return &s, &u, nil
}

// Touch bumps last_used_at.
func (r *SessionRepo) Touch(ctx context.Context, sessionID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET last_used_at=UTC_TIMESTAMP() WHERE id=?", sessionID)
	return err
}

// Delete removes one session and reports rows affected; rotation relies on
// the count to detect a concurrently consumed session.
func (r *SessionRepo) Delete(ctx context.Context, sessionID uint64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM sessions WHERE id=?", sessionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteByAccessHash removes the session(s) matching a hashed access token.
func (r *SessionRepo) DeleteByAccessHash(ctx context.Context, userID uint64, accessHash string) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM sessions WHERE user_id=? AND token_hash=?", userID, accessHash)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteAllForUser removes every session for a user (global sign-out).
func (r *SessionRepo) DeleteAllForUser(ctx context.Context, userID uint64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM sessions WHERE user_id=?", userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
