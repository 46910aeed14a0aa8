// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package identity

import (
	"context"
	"time"

	"github.com/procuramarket/procura/internal/platform/sec"
)

// # Identity Data Access

// IdentityRepository defines the data access contract for identity records.
type IdentityRepository interface {

	/*
		Create persists a brand-new identity record.

		Parameters:
		  - context: context.Context
		  - identity: *Identity

		Returns:
		  - error: apperr.Conflict (USER_ALREADY_EXISTS) on duplicate
		    email/phone, or other persistence failures
	*/
	Create(context context.Context, identity *Identity) error

	/*
		FindByID returns the identity with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *Identity: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByID(context context.Context, id string) (*Identity, error)

	/*
		FindByEmail returns the identity with the given email.

		Parameters:
		  - context: context.Context
		  - email: string

		Returns:
		  - *Identity: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByEmail(context context.Context, email string) (*Identity, error)

	/*
		FindByPhone returns the identity with the given phone number.

		Parameters:
		  - context: context.Context
		  - phone: string

		Returns:
		  - *Identity: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByPhone(context context.Context, phone string) (*Identity, error)

	/*
		FindByEmailOrPhone resolves a login identifier against both unique
		contact columns in one query.

		Parameters:
		  - context: context.Context
		  - identifier: string (email address or phone number)

		Returns:
		  - *Identity: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByEmailOrPhone(context context.Context, identifier string) (*Identity, error)

	/*
		FindByAdminID returns the operator identity with the given admin code.

		Parameters:
		  - context: context.Context
		  - adminID: string

		Returns:
		  - *Identity: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByAdminID(context context.Context, adminID string) (*Identity, error)

	/*
		ListAdministrators returns every identity holding an operator role.

		Parameters:
		  - context: context.Context

		Returns:
		  - []*Identity: Hydrated entities, newest first
		  - error: Database retrieval failures
	*/
	ListAdministrators(context context.Context) ([]*Identity, error)

	/*
		AddRole appends a role to the identity's role array. The statement is
		guarded against duplicates; exclusivity preconditions are enforced by
		the caller through [sec.RoleSet].

		Parameters:
		  - context: context.Context
		  - id: string
		  - role: sec.Role

		Returns:
		  - error: Persistence failures
	*/
	AddRole(context context.Context, id string, role sec.Role) error

	/*
		RemoveRole drops a role from the identity's role array. The statement
		refuses to empty the array.

		Parameters:
		  - context: context.Context
		  - id: string
		  - role: sec.Role

		Returns:
		  - error: apperr (LAST_ROLE) when the role is the only one held,
		    or persistence failures
	*/
	RemoveRole(context context.Context, id string, role sec.Role) error

	/*
		SetActiveRole persists the role the identity's sessions operate as.

		Parameters:
		  - context: context.Context
		  - id: string
		  - role: sec.Role

		Returns:
		  - error: Persistence failures
	*/
	SetActiveRole(context context.Context, id string, role sec.Role) error

	/*
		MarkVerified flips the identity to isverified = true.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - error: Persistence failures
	*/
	MarkVerified(context context.Context, id string) error

	/*
		SetActive toggles the identity's active flag (deactivation and
		reinstatement).

		Parameters:
		  - context: context.Context
		  - id: string
		  - active: bool

		Returns:
		  - error: Persistence failures
	*/
	SetActive(context context.Context, id string, active bool) error

	/*
		SetOTP stores the durable one-time-code fallback on the identity row.

		Parameters:
		  - context: context.Context
		  - id: string
		  - code: string
		  - expiresAt: time.Time

		Returns:
		  - error: Persistence failures
	*/
	SetOTP(context context.Context, id string, code string, expiresAt time.Time) error

	/*
		ClearOTP removes the durable one-time-code fields after use.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - error: Persistence failures
	*/
	ClearOTP(context context.Context, id string) error

	/*
		UpdatePassword replaces the password hash and optionally stamps
		lastpasswordchange.

		Parameters:
		  - context: context.Context
		  - id: string
		  - newHash: string
		  - stampLastChange: bool

		Returns:
		  - error: Persistence failures
	*/
	UpdatePassword(context context.Context, id string, newHash string, stampLastChange bool) error

	/*
		RecordFailedAttempt atomically increments the failed-attempt counter
		and applies the lock in the same statement once the threshold is
		reached. Two racing wrong-password attempts therefore never lose an
		increment.

		Parameters:
		  - context: context.Context
		  - id: string
		  - threshold: int (attempts at which the lock engages)
		  - lockUntil: time.Time (lock expiry applied at the threshold)

		Returns:
		  - int: The counter value after the increment
		  - *time.Time: The lock expiry now on the row, nil when unlocked
		  - error: Persistence failures
	*/
	RecordFailedAttempt(context context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error)

	/*
		ResetFailedAttempts zeroes the counter and clears any lock after a
		successful authentication.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - error: Persistence failures
	*/
	ResetFailedAttempts(context context.Context, id string) error

	/*
		RotateAdminCredentials installs a fresh temporary password hash,
		flags the account for a forced first-login change, and stamps the
		credential expiry window.

		Parameters:
		  - context: context.Context
		  - id: string
		  - newHash: string
		  - expiresAt: time.Time

		Returns:
		  - error: Persistence failures
	*/
	RotateAdminCredentials(context context.Context, id string, newHash string, expiresAt time.Time) error

	/*
		ClearFirstLogin removes the forced-change flag and credential expiry
		after the operator sets a real password.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - error: Persistence failures
	*/
	ClearFirstLogin(context context.Context, id string) error
}
