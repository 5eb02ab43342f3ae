package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/voicecraft/speech-backend/internal/model"
)

// OAuthAccountRepo persists provider-identity links.
type OAuthAccountRepo struct{ DB *sql.DB }

func NewOAuthAccountRepo(db *sql.DB) *OAuthAccountRepo { return &OAuthAccountRepo{DB: db} }

// FindByProvider fetches the link for (provider, providerID); (nil, nil)
// when absent.
func (r *OAuthAccountRepo) FindByProvider(ctx context.Context, provider, providerID string) (*model.OAuthAccount, error) {
	var a model.OAuthAccount
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,provider,provider_id,email,user_id,created_at FROM oauth_accounts WHERE provider=? AND provider_id=? LIMIT 1",
		provider, providerID).Scan(&a.ID, &a.Provider, &a.ProviderID, &a.Email, &a.UserID, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a link for an existing user.
func (r *OAuthAccountRepo) Create(ctx context.Context, account *model.OAuthAccount) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO oauth_accounts (provider, provider_id, email, user_id) VALUES (?,?,?,?)",
		account.Provider, account.ProviderID, account.Email, account.UserID)
	if err != nil {
		if isDuplicateErr(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	account.ID = uint64(id)
	return nil
}

// CreateWithUser inserts a new user and its first linked account in one
// transaction, so a failed link never leaves an orphan user behind.
func (r *OAuthAccountRepo) CreateWithUser(ctx context.Context, user *model.User, account *model.OAuthAccount) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (email, role, name, avatar_url, language, subscription_tier) VALUES (?,?,?,?,?,?)",
		user.Email, user.Role, user.Name, user.AvatarURL, user.Language, user.SubscriptionTier)
	if err != nil {
		if isDuplicateErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	uid, err := res.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = uint64(uid)

	res, err = tx.ExecContext(ctx,
		"INSERT INTO oauth_accounts (provider, provider_id, email, user_id) VALUES (?,?,?,?)",
		account.Provider, account.ProviderID, account.Email, user.ID)
	if err != nil {
		if isDuplicateErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert oauth account: %w", err)
	}
	aid, err := res.LastInsertId()
	if err != nil {
		return err
	}
	account.ID = uint64(aid)
	account.UserID = user.ID

	return tx.Commit()
}
