// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

/*
Package auth implements session issuance for the Procura identity core.

It covers the full credential lifecycle: buyer signup with OTP activation,
password and OTP logins, refresh-token rotation, in-session role switching,
and password recovery.

# Architecture

This layer owns sessions, not identities. Identity records live in
[identity.IdentityRepository]; this package consults the [identity.Policy]
for every role decision and never re-derives lifecycle rules.
*/
package auth

import (
	"time"

	"github.com/procuramarket/procura/internal/identity"
)

// # Domain Entities

// Session represents an active refresh-token session.
type Session struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identity_id"`
	TokenHash  string    `json:"-"` // Hashed value of the refresh token. Omitted for security.
	UserAgent  string    `json:"user_agent"`
	IPAddress  string    `json:"ip_address"`
	ExpiresAt  time.Time `json:"expires_at"`
	IsRevoked  bool      `json:"is_revoked"`
	CreatedAt  time.Time `json:"created_at"`
}

// LoginSession represents a successfully established identity session.
type LoginSession struct {
	AccessToken           string
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	Identity              identity.Projection
}

// LoginResult is the outcome of a login attempt that passed every credential
// and state gate.
//
// When the identity holds several marketplace roles and named none, Session is
// nil and RoleOptions lists the candidates: the client must repeat the login
// with an explicit role before any token is issued.
type LoginResult struct {
	Session     *LoginSession
	RoleOptions []string
}

// # Field Identifiers

// Global field names for validation and identity mapping in the session domain.
const (
	FieldIdentifier    = "identifier"
	FieldEmail         = "email"
	FieldPhone         = "phone"
	FieldPassword      = "password"
	FieldFirstName     = "first_name"
	FieldLastName      = "last_name"
	FieldOTP           = "otp"
	FieldRole          = "role"
	FieldToken         = "token"
	FieldNewPassword   = "new_password"
	FieldAccessToken   = "access_token"
	FieldTokenType     = "token_type"
	FieldExpiresIn     = "expires_in"
	FieldUser          = "user"
	FieldMessage       = "message"
	FieldRoles         = "roles"
	FieldRoleSelection = "role_selection_required"
)
