// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

/*
Package admin implements operator account provisioning and authentication.

Operators are identities like any other, but their lifecycle differs: they
are provisioned by a super admin (never self-service), log in with a short
admin code instead of an email, start on temporary credentials that expire in
24 hours, and must set a real password before their first session.

# Architecture

The service layer composes the identity repository with the session store
from the auth domain; operator sessions are ordinary refresh sessions once
the first-login hurdle is cleared.
*/
package admin

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/procuramarket/procura/internal/auth"
	"github.com/procuramarket/procura/internal/identity"
	"github.com/procuramarket/procura/internal/platform/apperr"
	"github.com/procuramarket/procura/internal/platform/constants"
	"github.com/procuramarket/procura/internal/platform/metrics"
	"github.com/procuramarket/procura/internal/platform/notify"
	"github.com/procuramarket/procura/internal/platform/sec"
	"github.com/procuramarket/procura/pkg/uuid"
)

// # Constants & Contracts

const (
	// AdminCodePrefix starts every operator login code.
	AdminCodePrefix = "PRC-"

	// AdminCodeLength is the random character count after the prefix.
	AdminCodeLength = 6

	// TempPasswordBytes sizes the generated temporary password.
	TempPasswordBytes = 12

	// ChangeTokenTTL bounds the forced password change window after a
	// successful first login.
	ChangeTokenTTL = 15 * time.Minute
)

// TokenProvider is the token surface the operator flows need.
type TokenProvider interface {
	GenerateAccessToken(identityID, email string, active sec.Role, held sec.RoleSet, timeToLive time.Duration) (string, error)
	GeneratePurposeToken(identityID, purpose string, timeToLive time.Duration) (string, error)
	VerifyPurposeToken(tokenString, purpose string) (*sec.PurposeClaims, error)
}

// Service implements operator account use cases.
type Service struct {
	identityRepository identity.IdentityRepository
	sessionRepository  auth.SessionRepository
	tokenProvider      TokenProvider
	notifier           notify.Notifier
	logger             *slog.Logger
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(
	identityRepo identity.IdentityRepository,
	sessionRepo auth.SessionRepository,
	tokenProv TokenProvider,
	notifier notify.Notifier,
	logger *slog.Logger,
) *Service {
	return &Service{
		identityRepository: identityRepo,
		sessionRepository:  sessionRepo,
		tokenProvider:      tokenProv,
		notifier:           notifier,
		logger:             logger,
	}
}

// # Authentication

// LoginOutcome is the result of an operator login attempt.
//
// Exactly one branch is populated: a full session, or the forced
// password-change handshake (purpose token, no refresh token persisted).
type LoginOutcome struct {
	Session *auth.LoginSession

	PasswordChangeRequired bool
	ChangeToken            string
}

/*
Login authenticates an operator by admin code and password.

Description: Wrong passwords feed the same atomic lockout counter as
marketplace logins, with a remaining-attempts hint. Temporary credentials
that outlived their 24h window answer CREDENTIALS_EXPIRED and the account
must be re-provisioned. A successful first login yields only a short-lived
purpose token; no session exists until the password is changed.

Parameters:
  - context: context.Context
  - adminID: string
  - password: string
  - userAgent: string
  - ipAddress: string

Returns:
  - *LoginOutcome: Session or password-change handshake
  - error: Credential, lockout, or expiry errors
*/
func (service *Service) Login(context context.Context, adminID, password, userAgent, ipAddress string) (*LoginOutcome, error) {
	record, err := service.identityRepository.FindByAdminID(context, adminID)
	if err != nil {
		metrics.LoginAttempt("failure")
		return nil, apperr.InvalidCredentials()
	}

	// The admin code path only authenticates operator accounts
	if !record.Roles.HasAdministrative() {
		metrics.LoginAttempt("failure")
		return nil, apperr.InvalidCredentials()
	}

	if !record.IsActive {
		return nil, apperr.Forbidden("This account has been deactivated").
			WithCode(apperr.CodeUserInactive)
	}

	// Lazy lock expiry, same accounting as marketplace logins
	now := time.Now()
	if identity.IsLocked(record, now) {
		minutes := int(identity.LockRemaining(record, now).Minutes()) + 1
		return nil, apperr.AccountLocked(minutes)
	}

	// An elapsed lock is cleared silently, counter included, so the next
	// wrong password starts a fresh window rather than re-locking at once
	if record.LockedUntil != nil {
		if err := service.identityRepository.ResetFailedAttempts(context, record.ID); err != nil {
			return nil, fmt.Errorf("admin_service_clear_expired_lock_failed: %w", err)
		}
		record.FailedAttempts = 0
		record.LockedUntil = nil
	}

	// Temporary credentials have a hard 24h shelf life
	if record.IsFirstLogin && record.CredentialsExpireAt != nil && now.After(*record.CredentialsExpireAt) {
		return nil, apperr.Unauthorized("Temporary credentials have expired; ask a super admin to re-provision the account").
			WithCode(apperr.CodeCredentialsExpired)
	}

	if !sec.CheckPasswordHash(password, record.PasswordHash) {
		return nil, service.recordFailure(context, record)
	}

	if record.FailedAttempts > 0 || record.LockedUntil != nil {
		if err := service.identityRepository.ResetFailedAttempts(context, record.ID); err != nil {
			return nil, fmt.Errorf("admin_service_reset_attempts_failed: %w", err)
		}
	}
	metrics.LoginAttempt("success")

	// First login: hand out the change token, never a session
	if record.IsFirstLogin {
		changeToken, err := service.tokenProvider.GeneratePurposeToken(record.ID, sec.PurposePasswordChange, ChangeTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("admin_service_change_token_failed: %w", err)
		}
		return &LoginOutcome{PasswordChangeRequired: true, ChangeToken: changeToken}, nil
	}

	session, err := service.issueSession(context, record, userAgent, ipAddress)
	if err != nil {
		return nil, err
	}
	return &LoginOutcome{Session: session}, nil
}

/*
ChangePassword completes the forced first-login password rotation.

Description: Authorized solely by the purpose token from [Service.Login].
The temporary password must still match, the new password must differ, and
success clears the first-login flags, stamps the change, and issues the
operator's first full session.

Parameters:
  - context: context.Context
  - changeToken: string
  - currentPassword: string
  - newPassword: string
  - userAgent: string
  - ipAddress: string

Returns:
  - *auth.LoginSession: The first full session
  - error: Unauthorized, PASSWORD_REUSE, or storage errors
*/
func (service *Service) ChangePassword(context context.Context, changeToken, currentPassword, newPassword, userAgent, ipAddress string) (*auth.LoginSession, error) {
	claims, err := service.tokenProvider.VerifyPurposeToken(changeToken, sec.PurposePasswordChange)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid or expired password change token")
	}

	record, err := service.identityRepository.FindByID(context, claims.IdentityID)
	if err != nil {
		return nil, err
	}

	if !sec.CheckPasswordHash(currentPassword, record.PasswordHash) {
		return nil, apperr.InvalidCredentials()
	}

	if sec.CheckPasswordHash(newPassword, record.PasswordHash) {
		return nil, apperr.Conflict("New password must differ from the temporary password").
			WithCode(apperr.CodePasswordReuse)
	}

	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return nil, fmt.Errorf("admin_service_change_password_hash_failed: %w", err)
	}

	if err := service.identityRepository.UpdatePassword(context, record.ID, hashedPassword, true); err != nil {
		return nil, fmt.Errorf("admin_service_change_password_update_failed: %w", err)
	}

	if err := service.identityRepository.ClearFirstLogin(context, record.ID); err != nil {
		return nil, fmt.Errorf("admin_service_clear_first_login_failed: %w", err)
	}
	record.PasswordHash = hashedPassword
	record.IsFirstLogin = false
	record.CredentialsExpireAt = nil

	return service.issueSession(context, record, userAgent, ipAddress)
}

/*
ChangeOwnPassword rotates an operator's password voluntarily.

Description: Authorized by a regular access token, so it is only reachable
past the first-login rotation. The current password must match, the new
password must differ, and every existing session is revoked before a fresh
one is issued.

Parameters:
  - context: context.Context
  - identityID: string
  - currentPassword: string
  - newPassword: string
  - userAgent: string
  - ipAddress: string

Returns:
  - *auth.LoginSession: A fresh session under the new password
  - error: InvalidCredentials, PASSWORD_REUSE, or storage errors
*/
func (service *Service) ChangeOwnPassword(context context.Context, identityID, currentPassword, newPassword, userAgent, ipAddress string) (*auth.LoginSession, error) {
	record, err := service.identityRepository.FindByID(context, identityID)
	if err != nil {
		return nil, err
	}

	if !record.Roles.HasAdministrative() {
		return nil, apperr.NotFound("Administrator")
	}

	if !sec.CheckPasswordHash(currentPassword, record.PasswordHash) {
		return nil, apperr.InvalidCredentials()
	}

	if sec.CheckPasswordHash(newPassword, record.PasswordHash) {
		return nil, apperr.Conflict("New password must differ from the current password").
			WithCode(apperr.CodePasswordReuse)
	}

	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return nil, fmt.Errorf("admin_service_own_password_hash_failed: %w", err)
	}

	if err := service.identityRepository.UpdatePassword(context, record.ID, hashedPassword, true); err != nil {
		return nil, fmt.Errorf("admin_service_own_password_update_failed: %w", err)
	}
	record.PasswordHash = hashedPassword

	// Sessions issued under the old password die with it
	_ = service.sessionRepository.RevokeAll(context, record.ID)

	return service.issueSession(context, record, userAgent, ipAddress)
}

// # Provisioning

// CreateAdminInput holds the data to provision a new operator.
type CreateAdminInput struct {
	Email     string
	FirstName string
	LastName  string
}

// CreatedAdmin is the provisioning result.
//
// TempPassword is populated ONLY when the credential notification failed, so
// the super admin can hand the credentials over manually. When delivery
// succeeded the plaintext never leaves the notification path.
type CreatedAdmin struct {
	Identity     identity.Projection `json:"identity"`
	AdminID      string              `json:"admin_id"`
	TempPassword string              `json:"temp_password,omitempty"`
}

/*
CreateAdmin provisions a new operator account with temporary credentials.

Description: Super-admin only (enforced at the transport layer). The account
gets a fresh PRC- admin code, a random temporary password valid for 24 hours,
and the forced first-login flag. Credentials are dispatched best-effort.

Parameters:
  - context: context.Context
  - input: CreateAdminInput

Returns:
  - *CreatedAdmin: The provisioned account
  - error: Conflict (USER_ALREADY_EXISTS) or storage errors
*/
func (service *Service) CreateAdmin(context context.Context, input CreateAdminInput) (*CreatedAdmin, error) {
	adminCode, err := GenerateAdminCode()
	if err != nil {
		return nil, fmt.Errorf("admin_service_code_generation_failed: %w", err)
	}

	tempPassword, err := sec.GenerateSecureToken(TempPasswordBytes)
	if err != nil {
		return nil, fmt.Errorf("admin_service_temp_password_failed: %w", err)
	}

	hashedPassword, err := sec.HashPassword(tempPassword)
	if err != nil {
		return nil, fmt.Errorf("admin_service_hash_failed: %w", err)
	}

	roles, err := sec.NewRoleSet(sec.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("admin_service_roleset_failed: %w", err)
	}

	expiresAt := time.Now().Add(constants.TempCredentialTTL)
	record := &identity.Identity{
		ID:                  uuid.New(),
		Email:               identity.NormalizeIdentifier(input.Email),
		PasswordHash:        hashedPassword,
		FirstName:           input.FirstName,
		LastName:            input.LastName,
		Roles:               roles,
		IsVerified:          true,
		IsActive:            true,
		AdminID:             adminCode,
		IsFirstLogin:        true,
		CredentialsExpireAt: &expiresAt,
	}

	if err := service.identityRepository.Create(context, record); err != nil {
		return nil, err
	}

	created := &CreatedAdmin{Identity: record.Sanitized(), AdminID: adminCode}

	delivered := notify.BestEffort(context, service.notifier, service.logger,
		notify.TemplateAdminCredentials, record.Email,
		map[string]string{
			"admin_id":      adminCode,
			"temp_password": tempPassword,
			"expires_at":    expiresAt.Format(time.RFC3339),
		})
	if !delivered {
		created.TempPassword = tempPassword
	}

	return created, nil
}

/*
ResetAdminCredentials re-issues temporary credentials for an operator.

Description: Same pattern as provisioning: fresh temporary password, forced
first-login change, 24h expiry. Every active session is revoked.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *CreatedAdmin: The re-provisioned credentials
  - error: NotFound or storage errors
*/
func (service *Service) ResetAdminCredentials(context context.Context, id string) (*CreatedAdmin, error) {
	record, err := service.identityRepository.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	if !record.Roles.HasAdministrative() {
		return nil, apperr.NotFound("Administrator")
	}

	tempPassword, err := sec.GenerateSecureToken(TempPasswordBytes)
	if err != nil {
		return nil, fmt.Errorf("admin_service_temp_password_failed: %w", err)
	}

	hashedPassword, err := sec.HashPassword(tempPassword)
	if err != nil {
		return nil, fmt.Errorf("admin_service_hash_failed: %w", err)
	}

	expiresAt := time.Now().Add(constants.TempCredentialTTL)
	if err := service.identityRepository.RotateAdminCredentials(context, record.ID, hashedPassword, expiresAt); err != nil {
		return nil, fmt.Errorf("admin_service_rotate_credentials_failed: %w", err)
	}

	// Outstanding sessions die with the old credentials
	_ = service.sessionRepository.RevokeAll(context, record.ID)

	reset := &CreatedAdmin{Identity: record.Sanitized(), AdminID: record.AdminID}

	delivered := notify.BestEffort(context, service.notifier, service.logger,
		notify.TemplateAdminCredentials, record.Email,
		map[string]string{
			"admin_id":      record.AdminID,
			"temp_password": tempPassword,
			"expires_at":    expiresAt.Format(time.RFC3339),
		})
	if !delivered {
		reset.TempPassword = tempPassword
	}

	return reset, nil
}

/*
ListAdmins returns every operator account.

Parameters:
  - context: context.Context

Returns:
  - []identity.Projection: Sanitized operator records, newest first
  - error: Retrieval failures
*/
func (service *Service) ListAdmins(context context.Context) ([]identity.Projection, error) {
	records, err := service.identityRepository.ListAdministrators(context)
	if err != nil {
		return nil, err
	}

	projections := make([]identity.Projection, 0, len(records))
	for _, record := range records {
		projections = append(projections, record.Sanitized())
	}
	return projections, nil
}

/*
DeactivateAdmin disables an operator account and revokes its sessions.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: NotFound or storage errors
*/
func (service *Service) DeactivateAdmin(context context.Context, id string) error {
	record, err := service.identityRepository.FindByID(context, id)
	if err != nil {
		return err
	}

	if !record.Roles.HasAdministrative() {
		return apperr.NotFound("Administrator")
	}

	if err := service.identityRepository.SetActive(context, record.ID, false); err != nil {
		return fmt.Errorf("admin_service_deactivate_failed: %w", err)
	}

	_ = service.sessionRepository.RevokeAll(context, record.ID)
	return nil
}

// # Internal Helpers

// recordFailure mirrors the marketplace lockout accounting, adding the
// remaining-attempts hint operators expect.
func (service *Service) recordFailure(context context.Context, record *identity.Identity) error {
	metrics.LoginAttempt("failure")

	attempts, lockedUntil, err := service.identityRepository.RecordFailedAttempt(
		context,
		record.ID,
		constants.MaxFailedLoginAttempts,
		time.Now().Add(constants.LockoutDuration),
	)
	if err != nil {
		return fmt.Errorf("admin_service_record_attempt_failed: %w", err)
	}

	if attempts >= constants.MaxFailedLoginAttempts && lockedUntil != nil {
		metrics.Lockout()
		minutes := int(time.Until(*lockedUntil).Minutes()) + 1
		return apperr.AccountLocked(minutes)
	}

	remaining := constants.MaxFailedLoginAttempts - attempts
	return apperr.Unauthorized(fmt.Sprintf("Invalid credentials. %d attempts remaining before lockout", remaining)).
		WithCode(apperr.CodeInvalidCredentials)
}

// issueSession persists a refresh session and returns the token pair.
// Operator sessions use the same shape and TTLs as marketplace sessions.
func (service *Service) issueSession(context context.Context, record *identity.Identity, userAgent, ipAddress string) (*auth.LoginSession, error) {
	role, _ := record.Roles.Single()

	accessToken, err := service.tokenProvider.GenerateAccessToken(record.ID, record.Email, role, record.Roles, auth.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("admin_service_token_generation_failed: %w", err)
	}

	refreshToken, err := sec.GenerateSecureToken(auth.RefreshTokenLength)
	if err != nil {
		return nil, fmt.Errorf("admin_service_refresh_token_failed: %w", err)
	}

	expiresAt := time.Now().Add(auth.RefreshTokenTTL)
	session := &auth.Session{
		ID:         uuid.New(),
		IdentityID: record.ID,
		TokenHash:  sec.HashToken(refreshToken),
		UserAgent:  userAgent,
		IPAddress:  ipAddress,
		ExpiresAt:  expiresAt,
		IsRevoked:  false,
	}

	if err := service.sessionRepository.Create(context, session); err != nil {
		return nil, fmt.Errorf("admin_service_session_creation_failed: %w", err)
	}

	return &auth.LoginSession{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: expiresAt,
		Identity:              record.Sanitized(),
	}, nil
}

// GenerateAdminCode builds a fresh operator login code (PRC- plus six
// crypto/rand base32 characters). Shared with cmd/bootstrap.
func GenerateAdminCode() (string, error) {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

	buffer := make([]byte, AdminCodeLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("admin_code_entropy_failed: %w", err)
	}

	for i, b := range buffer {
		buffer[i] = alphabet[int(b)%len(alphabet)]
	}
	return AdminCodePrefix + string(buffer), nil
}
