package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/voicecraft/speech-backend/internal/model"
)

const userColumns = "id,email,role,name,avatar_url,language,subscription_tier,chars_synthesized,created_at,updated_at"

// UserRepo persists users.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Role, &u.Name, &u.AvatarURL, &u.Language,
		&u.SubscriptionTier, &u.CharsSynthesized, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindByID fetches a user by id; (nil, nil) when absent.
func (r *UserRepo) FindByID(ctx context.Context, id uint64) (*model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// FindByEmail fetches a user by normalized email; (nil, nil) when absent.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// UpdateProfile applies a partial update; nil fields are left untouched.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, name, avatarURL, language *string) error {
	sets := make([]string, 0, 3)
	args := make([]interface{}, 0, 4)
	if name != nil {
		sets = append(sets, "name=?")
		args = append(args, *name)
	}
	if avatarURL != nil {
		sets = append(sets, "avatar_url=?")
		args = append(args, *avatarURL)
	}
	if language != nil {
		sets = append(sets, "language=?")
		args = append(args, *language)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET "+strings.Join(sets, ",")+" WHERE id=?", args...)
	return err
}

// AddSynthesizedChars bumps the usage counter after a synthesis call.
func (r *UserRepo) AddSynthesizedChars(ctx context.Context, id uint64, chars int) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET chars_synthesized=chars_synthesized+? WHERE id=?", chars, id)
	return err
}
