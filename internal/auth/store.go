// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package auth

import (
	"context"
	"time"
)

// # Session Data Access

// SessionRepository defines the data access contract for refresh sessions.
type SessionRepository interface {

	/*
		Create persists a new session record.

		Parameters:
		  - context: context.Context
		  - session: *Session

		Returns:
		  - error: Storage failures
	*/
	Create(context context.Context, session *Session) error

	/*
		FindByTokenHash retrieves an active session by its token hash. A
		session is active when it is not revoked and not past its expiry.

		Parameters:
		  - context: context.Context
		  - tokenHash: string

		Returns:
		  - *Session: Hydrated session metadata
		  - error: apperr.NotFound or execution errors
	*/
	FindByTokenHash(context context.Context, tokenHash string) (*Session, error)

	/*
		Revoke marks a specific session as revoked.

		Parameters:
		  - context: context.Context
		  - sessionID: string

		Returns:
		  - error: Revocation failures
	*/
	Revoke(context context.Context, sessionID string) error

	/*
		RevokeAll marks every active session of an identity as revoked.

		Parameters:
		  - context: context.Context
		  - identityID: string

		Returns:
		  - error: Batch revocation failures
	*/
	RevokeAll(context context.Context, identityID string) error

	/*
		DeleteExpired permanently removes sessions past their expiration.

		Parameters:
		  - context: context.Context

		Returns:
		  - error: Cleanup failures
	*/
	DeleteExpired(context context.Context) error
}

// # One-Time-Code Cache

// OTPStore is the fast path for one-time codes.
//
// The cache is an optimization, not the source of truth: the durable fallback
// lives on the identity row (otpcode/otpexpiresat) and is consulted whenever
// the cache misses. Both copies are cleared on successful use.
type OTPStore interface {

	/*
		Set stores a one-time code for an identity with a TTL.

		Parameters:
		  - context: context.Context
		  - identityID: string
		  - code: string
		  - ttl: time.Duration

		Returns:
		  - error: Storage failures
	*/
	Set(context context.Context, identityID string, code string, ttl time.Duration) error

	/*
		Get retrieves the outstanding code for an identity.

		Parameters:
		  - context: context.Context
		  - identityID: string

		Returns:
		  - string: The stored code
		  - error: apperr.NotFound when absent or expired
	*/
	Get(context context.Context, identityID string) (string, error)

	/*
		Delete removes the code after use.

		Parameters:
		  - context: context.Context
		  - identityID: string

		Returns:
		  - error: Deletion failures
	*/
	Delete(context context.Context, identityID string) error
}

// # Reset Token Repository

// ResetTokenRepository stores password reset tokens, keyed by token hash.
//
// Raw tokens travel only in the recovery notification; at rest the store only
// ever sees their SHA-256 hashes.
type ResetTokenRepository interface {

	/*
		Set stores a reset token hash with its owning identity and TTL.

		Parameters:
		  - context: context.Context
		  - tokenHash: string
		  - identityID: string
		  - ttl: time.Duration

		Returns:
		  - error: Storage failures
	*/
	Set(context context.Context, tokenHash string, identityID string, ttl time.Duration) error

	/*
		Get resolves a token hash into the owning identity ID.

		Parameters:
		  - context: context.Context
		  - tokenHash: string

		Returns:
		  - string: Owning identity ID
		  - error: apperr.NotFound when invalid or expired
	*/
	Get(context context.Context, tokenHash string) (string, error)

	/*
		Delete removes one token hash.

		Parameters:
		  - context: context.Context
		  - tokenHash: string

		Returns:
		  - error: Deletion failures
	*/
	Delete(context context.Context, tokenHash string) error

	/*
		DeleteAllFor invalidates every outstanding reset token of an
		identity. Called after a successful reset so older links die with
		the one that was used.

		Parameters:
		  - context: context.Context
		  - identityID: string

		Returns:
		  - error: Deletion failures
	*/
	DeleteAllFor(context context.Context, identityID string) error
}
