package model

import "time"

// Session mirrors the `sessions` table. One row exists per issued token
// pair; a refresh deletes the old row and inserts a new one, so an old
// refresh token is single-use. Only SHA-256 hashes of the tokens are
// stored — never the raw strings.
//
// Invariants:
//  (UserID, TokenHash) and (UserID, RefreshTokenHash) are unique.
//  ExpiresAt never exceeds RefreshExpiresAt.
//  A row whose RefreshExpiresAt has passed is dead and is purged lazily
//  on the next access attempt; there is no background sweep.
type Session struct {
	ID               uint64
	UserID           uint64
	TokenHash        string
	RefreshTokenHash string
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
	LastUsedAt       time.Time
	CreatedAt        time.Time
}
