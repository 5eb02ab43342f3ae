package model

import "time"

// Role values stored in users.role.
const (
	RoleAdmin    = "ADMIN"
	RoleCustomer = "CUSTOMER"
)

// User mirrors the `users` table. Users are created on first OAuth sign-in
// (or linked to an existing row by email) and are never deleted by the auth
// core; deletion cascades from the admin surface.
//
// Fields:
//  ID               – primary key identifier.
//  Email            – unique, lowercase-normalized email address.
//  Role             – ADMIN or CUSTOMER.
//  Name             – display name from the OAuth profile.
//  AvatarURL        – profile picture URL (may be empty).
//  Language         – preferred UI/synthesis language (may be empty).
//  SubscriptionTier – billing tier (FREE by default).
//  CharsSynthesized – lifetime synthesized-character counter.
type User struct {
	ID               uint64    `json:"id"`
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	Name             string    `json:"name"`
	AvatarURL        string    `json:"avatarUrl"`
	Language         string    `json:"language"`
	SubscriptionTier string    `json:"subscriptionTier"`
	CharsSynthesized uint64    `json:"charsSynthesized"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
