package model

import "time"

// OAuth providers accepted at sign-in.
const (
	ProviderGoogle = "GOOGLE"
	ProviderApple  = "APPLE"
)

// OAuthAccount mirrors the `oauth_accounts` table. It links an external
// identity to a local user: (Provider, ProviderID) uniquely identifies at
// most one User. Rows are created when a new external identity is first
// seen and never mutated afterwards.
type OAuthAccount struct {
	ID         uint64    `json:"id"`
	Provider   string    `json:"provider"`
	ProviderID string    `json:"providerId"`
	Email      string    `json:"email"`
	UserID     uint64    `json:"userId"`
	CreatedAt  time.Time `json:"createdAt"`
}
