// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/procuramarket/procura/internal/identity"
	"github.com/procuramarket/procura/internal/platform/apperr"
	"github.com/procuramarket/procura/internal/platform/constants"
	"github.com/procuramarket/procura/internal/platform/metrics"
	"github.com/procuramarket/procura/internal/platform/notify"
	"github.com/procuramarket/procura/internal/platform/sec"
	"github.com/procuramarket/procura/pkg/uuid"
)

// # Contracts & Types

// TokenProvider defines the contract for generating security tokens.
type TokenProvider interface {
	// GenerateAccessToken creates a signed JWT string for the given identity.
	//
	// # Parameters
	//   - identityID: The ID of the account.
	//   - email: The primary contact email of the account.
	//   - active: The role this session will operate as.
	//   - held: Every role the identity holds.
	//   - timeToLive: The duration before the token expires.
	//
	// # Returns
	//   - A signed JWT string, or an err if signing fails.
	GenerateAccessToken(identityID, email string, active sec.Role, held sec.RoleSet, timeToLive time.Duration) (string, error)
}

// Service implements session issuance use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to credential checks,
// lockout accounting, or token issuance must be reviewed by the security team.
type Service struct {
	identityRepository   identity.IdentityRepository
	sessionRepository    SessionRepository
	otpStore             OTPStore
	resetTokenRepository ResetTokenRepository
	policy               *identity.Policy
	tokenProvider        TokenProvider
	notifier             notify.Notifier
	logger               *slog.Logger
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(
	identityRepo identity.IdentityRepository,
	sessionRepo SessionRepository,
	otpStore OTPStore,
	resetRepo ResetTokenRepository,
	policy *identity.Policy,
	tokenProv TokenProvider,
	notifier notify.Notifier,
	logger *slog.Logger,
) *Service {
	return &Service{
		identityRepository:   identityRepo,
		sessionRepository:    sessionRepo,
		otpStore:             otpStore,
		resetTokenRepository: resetRepo,
		policy:               policy,
		tokenProvider:        tokenProv,
		notifier:             notifier,
		logger:               logger,
	}
}

// # Registration Flow

// SignupInput holds the data required to enroll a new buyer.
type SignupInput struct {
	Email     string
	Phone     string
	Password  string
	FirstName string
	LastName  string
}

/*
Signup validates, hashes, and persists a brand new marketplace identity.

Description: Every self-service registration starts as an unverified buyer.
An activation code is cached in Redis with a durable fallback on the identity
row, then dispatched best-effort. No tokens are issued before activation.

Parameters:
  - context: context.Context
  - input: SignupInput

Returns:
  - identity.Projection: Created identity, sanitized
  - error: Conflict (USER_ALREADY_EXISTS) or storage errors
*/
func (service *Service) Signup(context context.Context, input SignupInput) (identity.Projection, error) {

	// Prevent storing plain-text passwords. Default cost is used for balance
	// between security and CPU utilization during registration spikes.
	hashedPassword, err := sec.HashPassword(input.Password)
	if err != nil {
		return identity.Projection{}, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	roles, err := sec.NewRoleSet(sec.RoleBuyer)
	if err != nil {
		return identity.Projection{}, fmt.Errorf("auth_service_roleset_failed: %w", err)
	}

	// Construct the new identity. Time-sortable ID to prevent PG index fragmentation.
	record := &identity.Identity{
		ID:           uuid.New(),
		Email:        identity.NormalizeIdentifier(input.Email),
		Phone:        input.Phone,
		PasswordHash: hashedPassword,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Roles:        roles,
		IsVerified:   false,
		IsActive:     true,
	}

	// Persist; duplicate email or phone surfaces as USER_ALREADY_EXISTS
	if err := service.identityRepository.Create(context, record); err != nil {
		return identity.Projection{}, err
	}

	// Issue the activation code as an async-ready side effect
	service.issueOTP(context, record, notify.TemplateSignupOTP)

	return record.Sanitized(), nil
}

/*
VerifyOTP activates an identity with its one-time code and starts a session.

Description: The cache is consulted first, then the durable fields on the row.
A consumed code is cleared from both stores (single-use). When the identity
holds exactly one role it becomes the active role automatically.

Parameters:
  - context: context.Context
  - identifier: string (email or phone)
  - code: string
  - userAgent: string
  - ipAddress: string

Returns:
  - *LoginSession: Transport-ready session identifiers
  - error: INVALID_OTP, ALREADY_VERIFIED, or storage errors
*/
func (service *Service) VerifyOTP(context context.Context, identifier, code, userAgent, ipAddress string) (*LoginSession, error) {
	record, err := service.identityRepository.FindByEmailOrPhone(context, identity.NormalizeIdentifier(identifier))
	if err != nil {
		return nil, apperr.Unauthorized("Invalid code").WithCode(apperr.CodeInvalidOTP)
	}

	if record.IsVerified {
		return nil, apperr.Conflict("This account is already activated").
			WithCode(apperr.CodeAlreadyVerified)
	}

	if err := service.consumeOTP(context, record, code); err != nil {
		return nil, err
	}

	if err := service.identityRepository.MarkVerified(context, record.ID); err != nil {
		return nil, fmt.Errorf("auth_service_mark_verified_failed: %w", err)
	}
	record.IsVerified = true

	// Auto-select the active role when the choice is unambiguous
	if role, ok := record.Roles.Single(); ok && record.ActiveRole == nil {
		if err := service.identityRepository.SetActiveRole(context, record.ID, role); err != nil {
			return nil, fmt.Errorf("auth_service_set_active_role_failed: %w", err)
		}
		record.ActiveRole = &role
	}

	session, err := service.issueSession(context, record, userAgent, ipAddress)
	if err != nil {
		return nil, err
	}

	notify.BestEffort(context, service.notifier, service.logger,
		notify.TemplateWelcome, record.Email,
		map[string]string{"first_name": record.FirstName})

	return session, nil
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Identifier    string // Email or phone
	Password      string
	RequestedRole string // Optional explicit role for multi-role identities
	UserAgent     string
	IPAddress     string
}

/*
PasswordLogin validates credentials and issues security tokens.

Description: Unknown identifiers and wrong passwords produce the same generic
INVALID_CREDENTIALS to prevent enumeration. Wrong passwords increment the
failed-attempt counter atomically; the lock engages at the threshold and
expires lazily on a later attempt. A multi-role identity that names no role
receives the candidate list instead of tokens.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *LoginResult: A session, or the role candidates when selection is needed
  - error: Credential, state-gate, or storage errors
*/
func (service *Service) PasswordLogin(context context.Context, input LoginInput) (*LoginResult, error) {
	record, err := service.identityRepository.FindByEmailOrPhone(context, identity.NormalizeIdentifier(input.Identifier))

	// Generic message to prevent enumeration
	if err != nil {
		metrics.LoginAttempt("failure")
		return nil, apperr.InvalidCredentials()
	}

	if err := service.checkLoginGates(context, record); err != nil {
		return nil, err
	}

	// Verify password hash using constant-time comparison in bcrypt to prevent timing attacks
	if !sec.CheckPasswordHash(input.Password, record.PasswordHash) {
		return nil, service.recordFailure(context, record)
	}

	// Successful authentication clears the lockout bookkeeping
	if record.FailedAttempts > 0 || record.LockedUntil != nil {
		if err := service.identityRepository.ResetFailedAttempts(context, record.ID); err != nil {
			return nil, fmt.Errorf("auth_service_reset_attempts_failed: %w", err)
		}
	}
	metrics.LoginAttempt("success")

	return service.resolveRoleAndIssue(context, record, input.RequestedRole, input.UserAgent, input.IPAddress)
}

/*
RequestLoginOTP issues a login one-time code for a verified identity.

Description: Same state gates as a password login. The code lands in the
cache and the durable fields, then goes out best-effort.

Parameters:
  - context: context.Context
  - identifier: string

Returns:
  - error: Credential or state-gate errors
*/
func (service *Service) RequestLoginOTP(context context.Context, identifier string) error {
	record, err := service.identityRepository.FindByEmailOrPhone(context, identity.NormalizeIdentifier(identifier))
	if err != nil {
		return apperr.InvalidCredentials()
	}

	if err := service.checkLoginGates(context, record); err != nil {
		return err
	}

	service.issueOTP(context, record, notify.TemplateLoginOTP)
	return nil
}

/*
VerifyLoginOTP consumes a login one-time code and issues tokens.

Parameters:
  - context: context.Context
  - identifier: string
  - code: string
  - requestedRole: string
  - userAgent: string
  - ipAddress: string

Returns:
  - *LoginResult: A session, or the role candidates when selection is needed
  - error: INVALID_OTP, state-gate, or storage errors
*/
func (service *Service) VerifyLoginOTP(context context.Context, identifier, code, requestedRole, userAgent, ipAddress string) (*LoginResult, error) {
	record, err := service.identityRepository.FindByEmailOrPhone(context, identity.NormalizeIdentifier(identifier))
	if err != nil {
		return nil, apperr.InvalidCredentials()
	}

	if err := service.checkLoginGates(context, record); err != nil {
		return nil, err
	}

	if err := service.consumeOTP(context, record, code); err != nil {
		return nil, err
	}

	metrics.LoginAttempt("success")
	return service.resolveRoleAndIssue(context, record, requestedRole, userAgent, ipAddress)
}

/*
Logout permanently revokes the identity's active session.

Description: Ensures that a tracked refresh token can never be used again.
An unknown or already-revoked token is a successful logout (idempotent).

Parameters:
  - context: context.Context
  - refreshToken: string

Returns:
  - error: Revocation failures
*/
func (service *Service) Logout(context context.Context, refreshToken string) error {

	// Hash the refresh token
	tokenHash := sec.HashToken(refreshToken)

	// Find the session by token hash
	session, err := service.sessionRepository.FindByTokenHash(context, tokenHash)

	// If (err != nil) session is already gone or invalid, we consider logout successful (idempotent operation).
	if err != nil {
		return nil
	}

	// If (err == nil) Revoke the session
	if err := service.sessionRepository.Revoke(context, session.ID); err != nil {
		return fmt.Errorf("auth_service_logout_failed: %w", err)
	}

	return nil
}

/*
LogoutAll revokes every active session of the identity.

Parameters:
  - context: context.Context
  - identityID: string

Returns:
  - error: Batch revocation failures
*/
func (service *Service) LogoutAll(context context.Context, identityID string) error {
	if err := service.sessionRepository.RevokeAll(context, identityID); err != nil {
		return fmt.Errorf("auth_service_logout_all_failed: %w", err)
	}
	return nil
}

// # Session Management

/*
RefreshSession implements the Refresh Token Rotation mechanism.

Description: Verifies the existing refresh token, revokes it to prevent reuse
(replay attack mitigation), and issues a fresh pair of rotated tokens. A
deactivated identity cannot rotate its way back in.

Parameters:
  - context: context.Context
  - refreshToken: string
  - userAgent: string
  - ipAddress: string

Returns:
  - *LoginSession: New session credentials
  - error: Unauthorized or storage failures
*/
func (service *Service) RefreshSession(context context.Context, refreshToken, userAgent, ipAddress string) (*LoginSession, error) {

	// Hash the incoming refresh token to look it up
	tokenHash := sec.HashToken(refreshToken)
	session, err := service.sessionRepository.FindByTokenHash(context, tokenHash)

	// If (err != nil) the token is either expired, already revoked, or completely invalid.
	if err != nil {
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}

	// Rotation: Revoke the old session to prevent replay attacks
	if err := service.sessionRepository.Revoke(context, session.ID); err != nil {
		return nil, fmt.Errorf("auth_service_refresh_revoke_failed: %w", err)
	}

	// Fetch the identity associated with this session
	record, err := service.identityRepository.FindByID(context, session.IdentityID)
	if err != nil {
		return nil, apperr.Unauthorized("Account not found or suspended")
	}

	if !record.IsActive {
		return nil, apperr.Forbidden("This account has been deactivated").
			WithCode(apperr.CodeUserInactive)
	}

	return service.issueSession(context, record, userAgent, ipAddress)
}

/*
SwitchRole re-keys the session to another role the identity holds.

Description: The policy is the arbiter: administrators never switch, the
target must be held, and the supplier role is re-verified against the live
workflow state at switch time. When a password is supplied it must match,
letting clients require re-confirmation for sensitive switches. The previous
refresh token is revoked and a fresh pair is issued under the new role.

Parameters:
  - context: context.Context
  - identityID: string
  - roleName: string
  - password: string (optional re-confirmation, empty to skip)
  - refreshToken: string (current session's token, revoked on success)
  - userAgent: string
  - ipAddress: string

Returns:
  - *LoginSession: Session credentials under the new active role
  - error: ROLE_NOT_HELD, ADMIN_EXCLUSIVE, SUPPLIER_NOT_VERIFIED, or storage errors
*/
func (service *Service) SwitchRole(context context.Context, identityID, roleName, password, refreshToken, userAgent, ipAddress string) (*LoginSession, error) {
	role, err := sec.ParseRole(roleName)
	if err != nil {
		return nil, apperr.ValidationError("Unknown role requested")
	}

	record, err := service.identityRepository.FindByID(context, identityID)
	if err != nil {
		return nil, err
	}

	if err := service.policy.CanSwitchTo(context, record, role); err != nil {
		return nil, err
	}

	// Optional re-confirmation for sensitive switches
	if password != "" && !sec.CheckPasswordHash(password, record.PasswordHash) {
		return nil, apperr.InvalidCredentials()
	}

	if err := service.identityRepository.SetActiveRole(context, record.ID, role); err != nil {
		return nil, fmt.Errorf("auth_service_switch_role_failed: %w", err)
	}
	record.ActiveRole = &role

	// Retire the session issued under the previous role
	if refreshToken != "" {
		_ = service.Logout(context, refreshToken)
	}

	return service.issueSession(context, record, userAgent, ipAddress)
}

// # Password Recovery

/*
ForgotPassword initiates the password recovery flow.

Description: Generates a secure token, stores its hash in Redis, and sends
the raw token best-effort. An unknown email is indistinguishable from a known
one at the API surface; the handler always answers generically.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - string: The raw token, empty when the email is unknown
  - error: Generation errors
*/
func (service *Service) ForgotPassword(context context.Context, email string) (string, error) {
	// NOTE: We don't return NOT_FOUND if the email doesn't exist to prevent user enumeration.
	record, err := service.identityRepository.FindByEmail(context, identity.NormalizeIdentifier(email))
	if err != nil {
		return "", nil
	}

	// Generate reset token
	token, err := sec.GenerateSecureToken(ResetTokenLength)
	if err != nil {
		return "", fmt.Errorf("auth_service_generate_reset_token_failed: %w", err)
	}

	// Save the hash to Redis; the raw token only travels in the notification
	if err := service.resetTokenRepository.Set(context, sec.HashToken(token), record.ID, ResetTokenTTL); err != nil {
		return "", fmt.Errorf("auth_service_save_reset_token_failed: %w", err)
	}

	notify.BestEffort(context, service.notifier, service.logger,
		notify.TemplatePasswordReset, record.Email,
		map[string]string{"token": token})

	return token, nil
}

/*
ResetPassword completes the forgot-password flow.

Description: Verifies the token, rejects reuse of the current password,
updates the hash, revokes every active session, and invalidates every
outstanding reset token for the identity.

Parameters:
  - context: context.Context
  - token: string
  - newPassword: string

Returns:
  - error: Validation (PASSWORD_REUSE) or update failures
*/
func (service *Service) ResetPassword(context context.Context, token, newPassword string) error {

	// Resolve the token hash into its owner
	tokenHash := sec.HashToken(token)
	identityID, err := service.resetTokenRepository.Get(context, tokenHash)
	if err != nil {
		return err
	}

	record, err := service.identityRepository.FindByID(context, identityID)
	if err != nil {
		return err
	}

	// The recovery flow must produce a credential change, not a no-op
	if sec.CheckPasswordHash(newPassword, record.PasswordHash) {
		return apperr.Conflict("New password must differ from the current password").
			WithCode(apperr.CodePasswordReuse)
	}

	// Hash the new password securely
	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_reset_password_hash_failed: %w", err)
	}

	// Update the password in persistent storage
	if err := service.identityRepository.UpdatePassword(context, identityID, hashedPassword, true); err != nil {
		return fmt.Errorf("auth_service_reset_password_update_failed: %w", err)
	}

	// Security Cleanup: Revoke EVERY active session for this identity
	_ = service.sessionRepository.RevokeAll(context, identityID)

	// Invalidate every outstanding reset token, not just the one used
	_ = service.resetTokenRepository.DeleteAllFor(context, identityID)

	return nil
}

// # Internal Helpers

// checkLoginGates applies the state gates shared by every login flow.
//
// Gate order is deliberate: an inactive or unverified account answers with
// its state before any lockout arithmetic runs.
func (service *Service) checkLoginGates(context context.Context, record *identity.Identity) error {
	// Operator accounts authenticate by admin code through the admin login,
	// which enforces the first-login rotation and credential expiry. Their
	// email never works here, and the answer stays generic.
	if record.Roles.HasAdministrative() {
		metrics.LoginAttempt("failure")
		return apperr.InvalidCredentials()
	}

	if !record.IsActive {
		return apperr.Forbidden("This account has been deactivated").
			WithCode(apperr.CodeUserInactive)
	}

	if !record.IsVerified {
		return apperr.Forbidden("Activate your account before logging in").
			WithCode(apperr.CodeUserNotVerified)
	}

	now := time.Now()
	if identity.IsLocked(record, now) {
		minutes := int(identity.LockRemaining(record, now).Minutes()) + 1
		return apperr.AccountLocked(minutes)
	}

	// Lazy lock expiry: an elapsed lock is cleared silently, counter
	// included, so the next wrong password starts a fresh window instead
	// of re-engaging the lock from the stale count.
	if record.LockedUntil != nil {
		if err := service.identityRepository.ResetFailedAttempts(context, record.ID); err != nil {
			return fmt.Errorf("auth_service_clear_expired_lock_failed: %w", err)
		}
		record.FailedAttempts = 0
		record.LockedUntil = nil
	}

	return nil
}

// recordFailure increments the failed-attempt counter and returns the error
// the caller must surface. The increment and the lock application happen in
// one statement; two racing wrong passwords never lose a count.
func (service *Service) recordFailure(context context.Context, record *identity.Identity) error {
	metrics.LoginAttempt("failure")

	attempts, lockedUntil, err := service.identityRepository.RecordFailedAttempt(
		context,
		record.ID,
		constants.MaxFailedLoginAttempts,
		time.Now().Add(constants.LockoutDuration),
	)
	if err != nil {
		return fmt.Errorf("auth_service_record_attempt_failed: %w", err)
	}

	if attempts >= constants.MaxFailedLoginAttempts && lockedUntil != nil {
		metrics.Lockout()
		minutes := int(time.Until(*lockedUntil).Minutes()) + 1
		return apperr.AccountLocked(minutes)
	}

	return apperr.InvalidCredentials()
}

// issueOTP generates a one-time code, stores it in the cache and the durable
// fields, and dispatches it best-effort. Failures are logged, never returned:
// the caller's state change has already happened.
func (service *Service) issueOTP(context context.Context, record *identity.Identity, template string) {
	code, err := sec.GenerateOTP(OTPLength)
	if err != nil {
		service.logger.ErrorContext(context, "otp_generation_failed",
			slog.String("identity_id", record.ID),
			slog.Any("error", err),
		)
		return
	}

	if err := service.otpStore.Set(context, record.ID, code, OTPTTL); err != nil {
		service.logger.WarnContext(context, "otp_cache_write_failed",
			slog.String("identity_id", record.ID),
			slog.Any("error", err),
		)
	}

	// Durable fallback for when the cache is cold or unavailable
	if err := service.identityRepository.SetOTP(context, record.ID, code, time.Now().Add(OTPTTL)); err != nil {
		service.logger.ErrorContext(context, "otp_durable_write_failed",
			slog.String("identity_id", record.ID),
			slog.Any("error", err),
		)
	}

	recipient := record.Email
	if recipient == "" {
		recipient = record.Phone
	}
	notify.BestEffort(context, service.notifier, service.logger,
		template, recipient, map[string]string{"code": code})
}

// consumeOTP validates a code against the cache, falling back to the durable
// fields, and clears both copies on success (single-use).
func (service *Service) consumeOTP(context context.Context, record *identity.Identity, code string) error {
	valid := false

	if cached, err := service.otpStore.Get(context, record.ID); err == nil {
		valid = cached == code
	} else if record.OTPCode != "" && record.OTPExpiresAt != nil && time.Now().Before(*record.OTPExpiresAt) {
		valid = record.OTPCode == code
	}

	if !valid {
		return apperr.Unauthorized("Invalid or expired code").
			WithCode(apperr.CodeInvalidOTP)
	}

	_ = service.otpStore.Delete(context, record.ID)
	if err := service.identityRepository.ClearOTP(context, record.ID); err != nil {
		return fmt.Errorf("auth_service_clear_otp_failed: %w", err)
	}
	record.OTPCode = ""
	record.OTPExpiresAt = nil

	return nil
}

// resolveRoleAndIssue picks the active role for a fresh login and issues the
// session, or reports the candidate roles when the choice is ambiguous.
func (service *Service) resolveRoleAndIssue(context context.Context, record *identity.Identity, requestedRole, userAgent, ipAddress string) (*LoginResult, error) {
	var active sec.Role

	switch {
	case requestedRole != "":
		role, err := sec.ParseRole(requestedRole)
		if err != nil {
			return nil, apperr.ValidationError("Unknown role requested")
		}
		// The policy enforces role membership and the supplier gate
		if err := service.policy.CanSwitchTo(context, record, role); err != nil {
			return nil, err
		}
		active = role

	default:
		role, ok := record.Roles.Single()
		if !ok {
			// Multi-role identity with no explicit choice: no tokens yet
			return &LoginResult{RoleOptions: record.Roles.Strings()}, nil
		}
		active = role
	}

	if record.ActiveRole == nil || *record.ActiveRole != active {
		if err := service.identityRepository.SetActiveRole(context, record.ID, active); err != nil {
			return nil, fmt.Errorf("auth_service_set_active_role_failed: %w", err)
		}
		record.ActiveRole = &active
	}

	session, err := service.issueSession(context, record, userAgent, ipAddress)
	if err != nil {
		return nil, err
	}

	return &LoginResult{Session: session}, nil
}

// issueSession generates the access/refresh token pair and persists the
// tracking session. The access token carries the active role claim.
func (service *Service) issueSession(context context.Context, record *identity.Identity, userAgent, ipAddress string) (*LoginSession, error) {
	var active sec.Role
	if record.ActiveRole != nil {
		active = *record.ActiveRole
	} else if role, ok := record.Roles.Single(); ok {
		active = role
	}

	// Generate short-lived Access Token
	accessToken, err := service.tokenProvider.GenerateAccessToken(record.ID, record.Email, active, record.Roles, AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_token_generation_failed: %w", err)
	}

	// Generate long-lived Refresh Token
	refreshToken, err := sec.GenerateSecureToken(RefreshTokenLength)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_token_failed: %w", err)
	}

	// Create and persist the tracking session
	expiresAt := time.Now().Add(RefreshTokenTTL)
	session := &Session{
		ID:         uuid.New(),
		IdentityID: record.ID,
		TokenHash:  sec.HashToken(refreshToken),
		UserAgent:  userAgent,
		IPAddress:  ipAddress,
		ExpiresAt:  expiresAt,
		IsRevoked:  false,
	}

	if err := service.sessionRepository.Create(context, session); err != nil {
		return nil, fmt.Errorf("auth_service_session_creation_failed: %w", err)
	}

	return &LoginSession{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: expiresAt,
		Identity:              record.Sanitized(),
	}, nil
}
