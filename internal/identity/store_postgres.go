// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

// PostgreSQL implementation of the identity storage layer.
//
// # err Mapping
//
// Storage-specific errors (pgx.ErrNoRows, SQLSTATE 23505) are mapped to
// domain-friendly [apperr.AppError] types to avoid leaking storage
// implementation details.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procuramarket/procura/internal/platform/apperr"
	"github.com/procuramarket/procura/internal/platform/dberr"
	"github.com/procuramarket/procura/internal/platform/sec"
)

// # Identity Repository

// PostgresIdentityRepository implements the IdentityRepository interface using pgx.
type PostgresIdentityRepository struct {
	pool *pgxpool.Pool
}

// NewIdentityRepository creates a new PostgreSQL implementation of the IdentityRepository.
func NewIdentityRepository(pool *pgxpool.Pool) *PostgresIdentityRepository {
	return &PostgresIdentityRepository{pool: pool}
}

// identityColumns is the shared projection every finder selects, so the scan
// helper and the queries can never drift apart.
const identityColumns = `
	id, email, phone, passwordhash, firstname, lastname, roles, activerole,
	isverified, isactive, failedattempts, lockeduntil, otpcode, otpexpiresat,
	adminid, isfirstlogin, credentialsexpireat, lastpasswordchange,
	createdat, updatedat`

// scanIdentity hydrates one identity row, rebuilding the RoleSet from the
// text[] column and converting nullable columns into Go-friendly shapes.
func scanIdentity(row pgx.Row) (*Identity, error) {
	var (
		identity   Identity
		phone      *string
		roles      []string
		activeRole *string
		otpCode    *string
		adminID    *string
	)

	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&phone,
		&identity.PasswordHash,
		&identity.FirstName,
		&identity.LastName,
		&roles,
		&activeRole,
		&identity.IsVerified,
		&identity.IsActive,
		&identity.FailedAttempts,
		&identity.LockedUntil,
		&otpCode,
		&identity.OTPExpiresAt,
		&adminID,
		&identity.IsFirstLogin,
		&identity.CredentialsExpireAt,
		&identity.LastPasswordChange,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	roleSet, err := sec.RoleSetFromStrings(roles)
	if err != nil {
		return nil, fmt.Errorf("postgres_identity_repo_invalid_roles: %w", err)
	}
	identity.Roles = roleSet

	if phone != nil {
		identity.Phone = *phone
	}
	if activeRole != nil {
		role := sec.Role(*activeRole)
		identity.ActiveRole = &role
	}
	if otpCode != nil {
		identity.OTPCode = *otpCode
	}
	if adminID != nil {
		identity.AdminID = *adminID
	}

	return &identity, nil
}

/*
Create persists a new identity record into the users.identity table.

Description: Duplicate email/phone/adminid hit unique constraints; the
violation is translated into the client-facing USER_ALREADY_EXISTS conflict.

Parameters:
  - context: context.Context
  - identity: *Identity

Returns:
  - error: apperr.Conflict or connectivity errors
*/
func (repository *PostgresIdentityRepository) Create(context context.Context, identity *Identity) error {
	const query = `
		INSERT INTO users.identity (
			id, email, phone, passwordhash, firstname, lastname, roles, activerole,
			isverified, isactive, failedattempts, otpcode, otpexpiresat,
			adminid, isfirstlogin, credentialsexpireat, createdat, updatedat
		) VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11,
		          NULLIF($12, ''), $13, NULLIF($14, ''), $15, $16, $17, $18)`

	now := time.Now()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	identity.UpdatedAt = now

	var activeRole *string
	if identity.ActiveRole != nil {
		s := string(*identity.ActiveRole)
		activeRole = &s
	}

	_, err := repository.pool.Exec(context, query,
		identity.ID,
		identity.Email,
		identity.Phone,
		identity.PasswordHash,
		identity.FirstName,
		identity.LastName,
		identity.Roles.Strings(),
		activeRole,
		identity.IsVerified,
		identity.IsActive,
		identity.FailedAttempts,
		identity.OTPCode,
		identity.OTPExpiresAt,
		identity.AdminID,
		identity.IsFirstLogin,
		identity.CredentialsExpireAt,
		identity.CreatedAt,
		identity.UpdatedAt,
	)

	if dberr.IsUniqueViolation(err) {
		return apperr.Conflict("An account with this email or phone already exists").
			WithCode(apperr.CodeUserAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("postgres_identity_repo_create_failed: %w", err)
	}

	return nil
}

/*
FindByID retrieves an identity record by its primary key.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *Identity: Hydrated entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresIdentityRepository) FindByID(context context.Context, id string) (*Identity, error) {
	const query = `SELECT ` + identityColumns + ` FROM users.identity WHERE id = $1`

	identity, err := scanIdentity(repository.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Account")
		}
		return nil, fmt.Errorf("postgres_identity_repo_find_by_id_failed: %w", err)
	}

	return identity, nil
}

/*
FindByEmail retrieves an identity record by its unique email address.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - *Identity: Hydrated entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresIdentityRepository) FindByEmail(context context.Context, email string) (*Identity, error) {
	const query = `SELECT ` + identityColumns + ` FROM users.identity WHERE email = $1`

	identity, err := scanIdentity(repository.pool.QueryRow(context, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Account")
		}
		return nil, fmt.Errorf("postgres_identity_repo_find_by_email_failed: %w", err)
	}

	return identity, nil
}

/*
FindByPhone retrieves an identity record by its unique phone number.

Parameters:
  - context: context.Context
  - phone: string

Returns:
  - *Identity: Hydrated entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresIdentityRepository) FindByPhone(context context.Context, phone string) (*Identity, error) {
	const query = `SELECT ` + identityColumns + ` FROM users.identity WHERE phone = $1`

	identity, err := scanIdentity(repository.pool.QueryRow(context, query, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Account")
		}
		return nil, fmt.Errorf("postgres_identity_repo_find_by_phone_failed: %w", err)
	}

	return identity, nil
}

/*
FindByEmailOrPhone resolves a login identifier against both contact columns.

Description: Single round trip covering "login with email or phone"; both
columns are unique so at most one row matches.

Parameters:
  - context: context.Context
  - identifier: string

Returns:
  - *Identity: Hydrated entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresIdentityRepository) FindByEmailOrPhone(context context.Context, identifier string) (*Identity, error) {
	const query = `SELECT ` + identityColumns + ` FROM users.identity WHERE email = $1 OR phone = $1`

	identity, err := scanIdentity(repository.pool.QueryRow(context, query, identifier))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Account")
		}
		return nil, fmt.Errorf("postgres_identity_repo_find_by_identifier_failed: %w", err)
	}

	return identity, nil
}

/*
FindByAdminID retrieves an operator identity by its short admin code.

Parameters:
  - context: context.Context
  - adminID: string

Returns:
  - *Identity: Hydrated entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresIdentityRepository) FindByAdminID(context context.Context, adminID string) (*Identity, error) {
	const query = `SELECT ` + identityColumns + ` FROM users.identity WHERE adminid = $1`

	identity, err := scanIdentity(repository.pool.QueryRow(context, query, adminID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Account")
		}
		return nil, fmt.Errorf("postgres_identity_repo_find_by_admin_id_failed: %w", err)
	}

	return identity, nil
}

/*
ListAdministrators returns every identity holding an operator role.

Parameters:
  - context: context.Context

Returns:
  - []*Identity: Hydrated entities, newest first
  - error: Execution errors
*/
func (repository *PostgresIdentityRepository) ListAdministrators(context context.Context) ([]*Identity, error) {
	const query = `SELECT ` + identityColumns + `
		FROM users.identity
		WHERE roles && ARRAY['admin', 'super_admin']::text[]
		ORDER BY createdat DESC`

	rows, err := repository.pool.Query(context, query)
	if err != nil {
		return nil, fmt.Errorf("postgres_identity_repo_list_admins_failed: %w", err)
	}
	defer rows.Close()

	var admins []*Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres_identity_repo_list_admins_scan_failed: %w", err)
		}
		admins = append(admins, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_identity_repo_list_admins_rows_failed: %w", err)
	}

	return admins, nil
}

// # Role Mutations

/*
AddRole appends a role to the identity's role array.

Description: The NOT ANY guard makes the statement idempotent; exclusivity
rules are enforced by the caller through [sec.RoleSet] before this runs.

Parameters:
  - context: context.Context
  - id: string
  - role: sec.Role

Returns:
  - error: Execution errors
*/
func (repository *PostgresIdentityRepository) AddRole(context context.Context, id string, role sec.Role) error {
	const query = `
		UPDATE users.identity
		SET roles = array_append(roles, $2), updatedat = NOW()
		WHERE id = $1 AND NOT ($2 = ANY(roles))`

	_, err := repository.pool.Exec(context, query, id, string(role))
	if err != nil {
		return fmt.Errorf("postgres_identity_repo_add_role_failed: %w", err)
	}
	return nil
}

/*
RemoveRole drops a role from the identity's role array.

Description: The cardinality guard refuses to empty the array so no
activated identity ever ends up role-less, even under concurrent removals.

Parameters:
  - context: context.Context
  - id: string
  - role: sec.Role

Returns:
  - error: apperr (LAST_ROLE) or execution errors
*/
func (repository *PostgresIdentityRepository) RemoveRole(context context.Context, id string, role sec.Role) error {
	const query = `
		UPDATE users.identity
		SET roles = array_remove(roles, $2), updatedat = NOW()
		WHERE id = $1 AND $2 = ANY(roles) AND cardinality(roles) > 1`

	tag, err := repository.pool.Exec(context, query, id, string(role))
	if err != nil {
		return fmt.Errorf("postgres_identity_repo_remove_role_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("Cannot remove the account's last role").
			WithCode(apperr.CodeLastRole)
	}
	return nil
}

/*
SetActiveRole persists which role the identity's sessions operate as.

Parameters:
  - context: context.Context
  - id: string
  - role: sec.Role

Returns:
  - error: Execution errors
*/
func (repository *PostgresIdentityRepository) SetActiveRole(context context.Context, id string, role sec.Role) error {
	const query = "UPDATE users.identity SET activerole = $2, updatedat = NOW() WHERE id = $1"
	_, err := repository.pool.Exec(context, query, id, string(role))
	if err != nil {
		return fmt.Errorf("postgres_identity_repo_set_active_role_failed: %w", err)
	}
	return nil
}

// # State Mutations

/*
MarkVerified updates the identity's status to isverified = true.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: Execution errors
*/
func (repository *PostgresIdentityRepository) MarkVerified(context context.Context, id string) error {
	const query = "UPDATE users.identity SET isverified = TRUE, updatedat = NOW() WHERE id = $1"
	_, err := repository.pool.Exec(context, query, id)
	if err != nil {
		return fmt.Errorf("postgres_identity_repo_mark_verified_failed: %w", err)
	}
	return nil
}

/*
SetActive toggles the identity's active flag.

Parameters:
  - context: context.Context
  - id: string
  - active: bool

Returns:
  - error: Execution errors
*/
func (repository *PostgresIdentityRepository) SetActive(context context.Context, id string, active bool) error {
	const query = "UPDATE users.identity SET isactive = $2, updatedat = NOW() WHERE id = $1"
	_, err := repository.pool.Exec(context, query, id, active)
	if err != nil {
		return fmt.Errorf("postgres_identity_repo_set_active_failed: %w", err)
	}
	return nil
}

/*
SetOTP stores the durable one-time-code fallback on the identity row.

Parameters:
  - context: context.Context
  - id: string
  - code: string
  - expiresAt: time.Time

Returns:
  - error: Execution errors
*/
func (repository *PostgresIdentityRepository) SetOTP(context context.Context, id string, code string, expiresAt time.Time) error {
	const query = "UPDATE users.identity SET otpcode = $2, otpexpiresat = $3, updatedat = NOW() WHERE id = $1"
	_, err := repository.pool.Exec(context, query, id, code, expiresAt)
	if err != nil {
		return fmt.Errorf("postgres_identity_repo_set_otp_failed: %w", err)
	}
	return nil
}

/*
ClearOTP removes the durable one-time-code fields after successful use.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: Execution errors
*/
func (repository *PostgresIdentityRepository) ClearOTP(context context.Context, id string) error {
	const query = "UPDATE users.identity SET otpcode = NULL, otpexpiresat = NULL, updatedat = NOW() WHERE id = $1"
	_, err := repository.pool.Exec(context, query, id)
	if err != nil {
		return fmt.Errorf("postgres_identity_repo_clear_otp_failed: %w", err)
	}
	return nil
}

/*
UpdatePassword replaces the password hash for a specific identity.

Parameters:
  - context: context.Context
  - id: string
  - newHash: string
  - stampLastChange: bool

Returns:
  - error: Execution errors
*/
func (repository *PostgresIdentityRepository) UpdatePassword(context context.Context, id string, newHash string, stampLastChange bool) error {
	if stampLastChange {
		const query = `
			UPDATE users.identity
			SET passwordhash = $2, lastpasswordchange = NOW(), updatedat = NOW()
			WHERE id = $1`
		_, err := repository.pool.Exec(context, query, id, newHash)
		if err != nil {
			return fmt.Errorf("postgres_identity_repo_update_password_failed: %w", err)
		}
		return nil
	}

	const query = "UPDATE users.identity SET passwordhash = $2, updatedat = NOW() WHERE id = $1"
	_, err := repository.pool.Exec(context, query, id, newHash)
	if err != nil {
		return fmt.Errorf("postgres_identity_repo_update_password_failed: %w", err)
	}
	return nil
}

// # Lockout Bookkeeping

/*
RecordFailedAttempt atomically increments the failed-attempt counter.

Description: The increment and the conditional lock are one UPDATE, so two
racing wrong-password attempts never lose an increment and the lock engages
exactly at the threshold.

Parameters:
  - context: context.Context
  - id: string
  - threshold: int
  - lockUntil: time.Time

Returns:
  - int: Counter value after the increment
  - *time.Time: Lock expiry now on the row, nil when unlocked
  - error: Execution errors
*/
func (repository *PostgresIdentityRepository) RecordFailedAttempt(context context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	const query = `
		UPDATE users.identity
		SET failedattempts = failedattempts + 1,
		    lockeduntil = CASE WHEN failedattempts + 1 >= $2 THEN $3 ELSE lockeduntil END,
		    updatedat = NOW()
		WHERE id = $1
		RETURNING failedattempts, lockeduntil`

	var attempts int
	var locked *time.Time
	err := repository.pool.QueryRow(context, query, id, threshold, lockUntil).Scan(&attempts, &locked)
	if err != nil {
		return 0, nil, fmt.Errorf("postgres_identity_repo_record_failed_attempt_failed: %w", err)
	}

	return attempts, locked, nil
}

/*
ResetFailedAttempts zeroes the counter and clears any lock.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: Execution errors
*/
func (repository *PostgresIdentityRepository) ResetFailedAttempts(context context.Context, id string) error {
	const query = "UPDATE users.identity SET failedattempts = 0, lockeduntil = NULL, updatedat = NOW() WHERE id = $1"
	_, err := repository.pool.Exec(context, query, id)
	if err != nil {
		return fmt.Errorf("postgres_identity_repo_reset_failed_attempts_failed: %w", err)
	}
	return nil
}

// # Operator Provisioning

/*
RotateAdminCredentials installs a fresh temporary password for an operator.

Parameters:
  - context: context.Context
  - id: string
  - newHash: string
  - expiresAt: time.Time

Returns:
  - error: Execution errors
*/
func (repository *PostgresIdentityRepository) RotateAdminCredentials(context context.Context, id string, newHash string, expiresAt time.Time) error {
	const query = `
		UPDATE users.identity
		SET passwordhash = $2, isfirstlogin = TRUE, credentialsexpireat = $3,
		    failedattempts = 0, lockeduntil = NULL, updatedat = NOW()
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, id, newHash, expiresAt)
	if err != nil {
		return fmt.Errorf("postgres_identity_repo_rotate_admin_credentials_failed: %w", err)
	}
	return nil
}

/*
ClearFirstLogin removes the forced-change flag after a real password is set.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: Execution errors
*/
func (repository *PostgresIdentityRepository) ClearFirstLogin(context context.Context, id string) error {
	const query = `
		UPDATE users.identity
		SET isfirstlogin = FALSE, credentialsexpireat = NULL, updatedat = NOW()
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, id)
	if err != nil {
		return fmt.Errorf("postgres_identity_repo_clear_first_login_failed: %w", err)
	}
	return nil
}
