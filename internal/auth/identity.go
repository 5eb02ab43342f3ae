package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/voicecraft/speech-backend/internal/model"
)

// ExternalIdentity is a provider-verified identity as handed over by the
// OAuth boundary. Email is mandatory — it is the account-linking key.
type ExternalIdentity struct {
	Provider   string
	ProviderID string
	Email      string
	Name       string
	AvatarURL  string
}

// Identity maps verified external identities to local users: return the
// linked user, link to an existing user by email, or create user and link
// atomically. Independent of the token machinery.
type Identity struct {
	users    UserStore
	accounts OAuthAccountStore
	log      zerolog.Logger
}

// NewIdentity wires the identity resolution service.
func NewIdentity(users UserStore, accounts OAuthAccountStore, log zerolog.Logger) *Identity {
	return &Identity{users: users, accounts: accounts, log: log.With().Str("component", "identity").Logger()}
}

// Resolve returns the local user for an external identity, creating or
// linking records as needed. Two concurrent first sign-ins race their
// inserts; the loser sees ErrDuplicate, re-runs the lookups and lands on
// the winner's rows.
func (s *Identity) Resolve(ctx context.Context, ident ExternalIdentity, preferredLanguage string) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(ident.Email))
	if email == "" {
		return nil, ErrValidation("external identity has no email")
	}

	user, err := s.resolve(ctx, ident, email, preferredLanguage)
	if errors.Is(err, ErrDuplicate) {
		s.log.Info().Str("provider", ident.Provider).Msg("lost sign-in race, re-resolving")
		user, err = s.resolve(ctx, ident, email, preferredLanguage)
		if errors.Is(err, ErrDuplicate) {
			return nil, wrapInternal(err, "user create")
		}
	}
	return user, err
}

func (s *Identity) resolve(ctx context.Context, ident ExternalIdentity, email, preferredLanguage string) (*model.User, error) {
	account, err := s.accounts.FindByProvider(ctx, ident.Provider, ident.ProviderID)
	if err != nil {
		return nil, wrapInternal(err, "oauth account lookup")
	}
	if account != nil {
		user, err := s.users.FindByID(ctx, account.UserID)
		if err != nil {
			return nil, wrapInternal(err, "user lookup")
		}
		if user == nil {
			return nil, wrapInternal(nil, "oauth account references missing user")
		}
		return s.refreshProfile(ctx, user, ident, preferredLanguage)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, wrapInternal(err, "user lookup")
	}
	if user != nil {
		// Same email, new provider: link the account to the existing user.
		if err := s.accounts.Create(ctx, &model.OAuthAccount{
			Provider:   ident.Provider,
			ProviderID: ident.ProviderID,
			Email:      email,
			UserID:     user.ID,
		}); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return nil, err
			}
			return nil, wrapInternal(err, "oauth account link")
		}
		s.log.Info().Uint64("user_id", user.ID).Str("provider", ident.Provider).Msg("linked provider to existing user")
		return s.refreshProfile(ctx, user, ident, preferredLanguage)
	}

	newUser := &model.User{
		Email:            email,
		Role:             model.RoleCustomer,
		Name:             ident.Name,
		AvatarURL:        ident.AvatarURL,
		Language:         preferredLanguage,
		SubscriptionTier: "FREE",
	}
	newAccount := &model.OAuthAccount{
		Provider:   ident.Provider,
		ProviderID: ident.ProviderID,
		Email:      email,
	}
	if err := s.accounts.CreateWithUser(ctx, newUser, newAccount); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, err
		}
		return nil, wrapInternal(err, "user create")
	}
	s.log.Info().Uint64("user_id", newUser.ID).Str("provider", ident.Provider).Msg("created user from oauth sign-in")
	return newUser, nil
}

// refreshProfile applies fresher provider profile fields to an existing
// user: name/avatar when the provider supplies ones we don't have, language
// only when unset locally and supplied by the client.
func (s *Identity) refreshProfile(ctx context.Context, user *model.User, ident ExternalIdentity, preferredLanguage string) (*model.User, error) {
	var name, avatar, language *string
	if ident.Name != "" && ident.Name != user.Name {
		name = &ident.Name
	}
	if ident.AvatarURL != "" && ident.AvatarURL != user.AvatarURL {
		avatar = &ident.AvatarURL
	}
	if user.Language == "" && preferredLanguage != "" {
		language = &preferredLanguage
	}
	if name == nil && avatar == nil && language == nil {
		return user, nil
	}
	if err := s.users.UpdateProfile(ctx, user.ID, name, avatar, language); err != nil {
		return nil, wrapInternal(err, "profile update")
	}
	if name != nil {
		user.Name = *name
	}
	if avatar != nil {
		user.AvatarURL = *avatar
	}
	if language != nil {
		user.Language = *language
	}
	return user, nil
}
