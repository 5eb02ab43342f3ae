package auth

import (
	"context"
	"errors"
	"time"

	"github.com/voicecraft/speech-backend/internal/model"
)

// ErrDuplicate is returned by store creates when a unique constraint
// rejects the row. Identity resolution uses it to settle two concurrent
// first sign-ins on the row the winner committed.
var ErrDuplicate = errors.New("duplicate row")

// SessionStore is the persistence contract the token lifecycle consumes.
// Every lookup is scoped by (userID, hash) — never by hash alone — so a
// contrived cross-user hash collision can never grant access.
//
// Find methods return (nil, nil) when no row matches; Delete methods report
// rows affected so rotation can detect a lost race.
type SessionStore interface {
	Create(ctx context.Context, userID uint64, accessHash, refreshHash string, expiresAt, refreshExpiresAt time.Time) (*model.Session, error)
	FindByAccessHash(ctx context.Context, userID uint64, accessHash string) (*model.Session, error)
	// FindByRefreshHash also resolves the owning user in the same query.
	FindByRefreshHash(ctx context.Context, userID uint64, refreshHash string) (*model.Session, *model.User, error)
	Touch(ctx context.Context, sessionID uint64) error
	Delete(ctx context.Context, sessionID uint64) (int64, error)
	DeleteByAccessHash(ctx context.Context, userID uint64, accessHash string) (int64, error)
	DeleteAllForUser(ctx context.Context, userID uint64) (int64, error)
}

// UserStore is the slice of user persistence the auth core needs.
type UserStore interface {
	FindByID(ctx context.Context, id uint64) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateProfile(ctx context.Context, id uint64, name, avatarURL, language *string) error
}

// OAuthAccountStore persists provider-identity links.
type OAuthAccountStore interface {
	FindByProvider(ctx context.Context, provider, providerID string) (*model.OAuthAccount, error)
	Create(ctx context.Context, account *model.OAuthAccount) error
	// CreateWithUser inserts a new user together with its first linked
	// account in one transaction. The user's ID is filled in on return.
	CreateWithUser(ctx context.Context, user *model.User, account *model.OAuthAccount) error
}
