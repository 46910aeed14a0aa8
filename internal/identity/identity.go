// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

/*
Package identity implements the Identity Record and role lifecycle policy.

It defines the core domain entity (Identity) shared by every session flow:
buyer signups, supplier verification, and operator accounts all resolve to the
same record shape, differing only in which roles the record holds.

# Architecture

This layer is the "Truth" of the system. The entity and its pure helpers have
no external dependencies; storage access goes through [IdentityRepository] and
authorization questions through [Policy].
*/
package identity

import (
	"time"

	"github.com/procuramarket/procura/internal/platform/sec"
)

// # Domain Entities

// Identity represents one account on the Procura marketplace.
//
// A single identity may hold several marketplace roles (buyer and supplier),
// or exactly one administrative role. The invariants live in [sec.RoleSet];
// this struct is the persisted projection.
type Identity struct {
	ID           string      `json:"id"`
	Email        string      `json:"email"`
	Phone        string      `json:"phone,omitempty"`
	PasswordHash string      `json:"-"` // Explicitly omitted from JSON for security.
	FirstName    string      `json:"first_name"`
	LastName     string      `json:"last_name"`
	Roles        sec.RoleSet `json:"-"`
	ActiveRole   *sec.Role   `json:"active_role,omitempty"`
	IsVerified   bool        `json:"is_verified"`
	IsActive     bool        `json:"is_active"`

	// Lockout bookkeeping. Lock expiry is evaluated lazily on the next
	// attempt; nothing ever sweeps these fields in the background.
	FailedAttempts int        `json:"-"`
	LockedUntil    *time.Time `json:"-"`

	// Durable one-time-code fallback, consulted when the cache misses.
	OTPCode      string     `json:"-"`
	OTPExpiresAt *time.Time `json:"-"`

	// Operator provisioning fields. Empty for marketplace accounts.
	AdminID             string     `json:"admin_id,omitempty"`
	IsFirstLogin        bool       `json:"-"`
	CredentialsExpireAt *time.Time `json:"-"`
	LastPasswordChange  *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoleStrings returns the held roles for serialization in API projections.
func (identity *Identity) RoleStrings() []string {
	return identity.Roles.Strings()
}

// Projection is the client-safe view of an [Identity], including the held
// roles that the json:"-" tag strips from the raw entity.
type Projection struct {
	*Identity
	Roles []string `json:"roles"`
}

// Sanitized wraps the identity for API responses.
func (identity *Identity) Sanitized() Projection {
	return Projection{Identity: identity, Roles: identity.RoleStrings()}
}

// # Lockout Helpers

// IsLocked reports whether the identity is locked out at the given instant.
//
// Locks expire lazily: a record whose LockedUntil has passed is treated as
// unlocked here, and the next successful login resets the counter.
func IsLocked(identity *Identity, now time.Time) bool {
	return identity.LockedUntil != nil && now.Before(*identity.LockedUntil)
}

// LockRemaining returns how much lock time is left at the given instant.
// It returns zero for unlocked identities.
func LockRemaining(identity *Identity, now time.Time) time.Duration {
	if !IsLocked(identity, now) {
		return 0
	}
	return identity.LockedUntil.Sub(now)
}

// # Field Identifiers

// Global field names for validation and identity mapping in the identity domain.
const (
	FieldEmail       = "email"
	FieldPhone       = "phone"
	FieldPassword    = "password"
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldRole        = "role"
	FieldIdentityID  = "identity_id"
	FieldOTP         = "otp"
	FieldMessage     = "message"
	FieldAccessToken = "access_token"
)
