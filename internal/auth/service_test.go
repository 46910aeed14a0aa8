// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procuramarket/procura/internal/auth"
	"github.com/procuramarket/procura/internal/auth/authtest"
	"github.com/procuramarket/procura/internal/identity"
	"github.com/procuramarket/procura/internal/identity/identitytest"
	"github.com/procuramarket/procura/internal/platform/apperr"
	"github.com/procuramarket/procura/internal/platform/constants"
	"github.com/procuramarket/procura/internal/platform/notify"
	"github.com/procuramarket/procura/internal/platform/sec"
)

// stubStatusReader answers the policy's verification-state question.
type stubStatusReader struct {
	states map[string]identity.VerificationState
}

func (s *stubStatusReader) LatestState(_ context.Context, identityID string) (identity.VerificationState, error) {
	return s.states[identityID], nil
}

// fixture bundles the wired service with its fakes for assertions.
type fixture struct {
	service    *auth.Service
	identities *identitytest.FakeRepository
	sessions   *authtest.FakeSessionRepository
	otps       *authtest.FakeOTPStore
	resets     *authtest.FakeResetTokenRepository
	notifier   *authtest.RecordingNotifier
	tokens     *sec.TokenService
	states     map[string]identity.VerificationState
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tokens := sec.NewTokenServiceFromKeys(key, constants.AuthIssuer)

	identities := identitytest.NewFakeRepository()
	sessions := authtest.NewFakeSessionRepository()
	otps := authtest.NewFakeOTPStore()
	resets := authtest.NewFakeResetTokenRepository()
	notifier := authtest.NewRecordingNotifier()
	states := make(map[string]identity.VerificationState)
	policy := identity.NewPolicy(identities, &stubStatusReader{states: states})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	service := auth.NewService(identities, sessions, otps, resets, policy, tokens, notifier, logger)

	return &fixture{
		service:    service,
		identities: identities,
		sessions:   sessions,
		otps:       otps,
		resets:     resets,
		notifier:   notifier,
		tokens:     tokens,
		states:     states,
	}
}

// seedVerified inserts an active, verified identity with a known password.
func (f *fixture) seedVerified(t *testing.T, id, email, password string, roles ...sec.Role) {
	t.Helper()

	hash, err := sec.HashPassword(password)
	require.NoError(t, err)
	set, err := sec.NewRoleSet(roles...)
	require.NoError(t, err)

	f.identities.Seed(&identity.Identity{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Roles:        set,
		IsVerified:   true,
		IsActive:     true,
	})
}

// mutate applies a change to a seeded identity record.
func (f *fixture) mutate(t *testing.T, id string, change func(*identity.Identity)) {
	t.Helper()
	record, err := f.identities.FindByID(context.Background(), id)
	require.NoError(t, err)
	change(record)
	f.identities.Seed(record)
}

/*
TestService_SignupAndActivate walks the full enrollment scenario: signup,
activation with the dispatched code, and the first session.
*/
func TestService_SignupAndActivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	projection, err := f.service.Signup(ctx, auth.SignupInput{
		Email:     "Jana@Example.com",
		Password:  "S3cure-pass",
		FirstName: "Jana",
		LastName:  "Novak",
	})
	require.NoError(t, err)

	// Identifier was normalized and the account starts unverified
	assert.Equal(t, "jana@example.com", projection.Email)
	assert.False(t, projection.IsVerified)
	assert.Equal(t, []string{"buyer"}, projection.Roles)

	// The activation code went out through the notifier
	message := f.notifier.Last(notify.TemplateSignupOTP)
	require.NotNil(t, message)
	code := message.Data["code"]
	require.Len(t, code, auth.OTPLength)

	// A wrong code is rejected
	_, err = f.service.VerifyOTP(ctx, "jana@example.com", "000000", "ua", "ip")
	if code != "000000" {
		assert.True(t, apperr.HasCode(err, apperr.CodeInvalidOTP))
	}

	// The dispatched code activates the account and issues tokens
	session, err := f.service.VerifyOTP(ctx, "jana@example.com", code, "ua", "ip")
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.True(t, session.Identity.IsVerified)

	// The single held role became the active role
	claims, err := f.tokens.VerifyToken(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "buyer", claims.ActiveRole)

	// Activating twice is a conflict
	_, err = f.service.VerifyOTP(ctx, "jana@example.com", code, "ua", "ip")
	assert.True(t, apperr.HasCode(err, apperr.CodeAlreadyVerified))
}

/*
TestService_Signup_DuplicateEmail verifies the USER_ALREADY_EXISTS conflict.
*/
func TestService_Signup_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Signup(ctx, auth.SignupInput{
		Email: "dup@example.com", Password: "S3cure-pass", FirstName: "A", LastName: "B",
	})
	require.NoError(t, err)

	_, err = f.service.Signup(ctx, auth.SignupInput{
		Email: "dup@example.com", Password: "0ther-pass!", FirstName: "C", LastName: "D",
	})
	assert.True(t, apperr.HasCode(err, apperr.CodeUserAlreadyExists))
}

/*
TestService_PasswordLogin_Gates verifies the state gates and the generic
answer for unknown identifiers.
*/
func TestService_PasswordLogin_Gates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedVerified(t, "id-1", "gate@example.com", "S3cure-pass", sec.RoleBuyer)

	t.Run("unknown identifier", func(t *testing.T) {
		_, err := f.service.PasswordLogin(ctx, auth.LoginInput{Identifier: "ghost@example.com", Password: "whatever"})
		assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))
	})

	t.Run("unverified account", func(t *testing.T) {
		f.mutate(t, "id-1", func(record *identity.Identity) { record.IsVerified = false })
		_, err := f.service.PasswordLogin(ctx, auth.LoginInput{Identifier: "gate@example.com", Password: "S3cure-pass"})
		assert.True(t, apperr.HasCode(err, apperr.CodeUserNotVerified))
		f.mutate(t, "id-1", func(record *identity.Identity) { record.IsVerified = true })
	})

	t.Run("deactivated account", func(t *testing.T) {
		f.mutate(t, "id-1", func(record *identity.Identity) { record.IsActive = false })
		_, err := f.service.PasswordLogin(ctx, auth.LoginInput{Identifier: "gate@example.com", Password: "S3cure-pass"})
		assert.True(t, apperr.HasCode(err, apperr.CodeUserInactive))
	})
}

/*
TestService_PasswordLogin_Lockout verifies the 5-attempt lock, that the right
password does not bypass an active lock, and the lazy expiry.
*/
func TestService_PasswordLogin_Lockout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVerified(t, "id-2", "lock@example.com", "S3cure-pass", sec.RoleBuyer)

	// Attempts 1-4 answer with generic invalid credentials
	for i := 0; i < constants.MaxFailedLoginAttempts-1; i++ {
		_, err := f.service.PasswordLogin(ctx, auth.LoginInput{Identifier: "lock@example.com", Password: "wrong"})
		assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))
	}

	// Attempt 5 engages the lock
	_, err := f.service.PasswordLogin(ctx, auth.LoginInput{Identifier: "lock@example.com", Password: "wrong"})
	assert.True(t, apperr.HasCode(err, apperr.CodeAccountLocked))

	// The correct password does not bypass an active lock
	_, err = f.service.PasswordLogin(ctx, auth.LoginInput{Identifier: "lock@example.com", Password: "S3cure-pass"})
	assert.True(t, apperr.HasCode(err, apperr.CodeAccountLocked))

	// Lazy expiry: move the lock into the past and log in normally
	past := time.Now().Add(-time.Minute)
	f.mutate(t, "id-2", func(record *identity.Identity) { record.LockedUntil = &past })

	result, err := f.service.PasswordLogin(ctx, auth.LoginInput{Identifier: "lock@example.com", Password: "S3cure-pass"})
	require.NoError(t, err)
	require.NotNil(t, result.Session)

	// The success reset the counter; one wrong attempt does not re-lock
	_, err = f.service.PasswordLogin(ctx, auth.LoginInput{Identifier: "lock@example.com", Password: "wrong"})
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))
}

/*
TestService_PasswordLogin_ExpiredLockClearsCounter verifies that an elapsed
lock clears the stored counter: the next attempt is judged purely on password
correctness and starts a fresh window instead of re-locking from the stale
count.
*/
func TestService_PasswordLogin_ExpiredLockClearsCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	seedLockedOut := func(t *testing.T, id, email string) {
		f.seedVerified(t, id, email, "S3cure-pass", sec.RoleBuyer)
		f.mutate(t, id, func(record *identity.Identity) {
			record.FailedAttempts = constants.MaxFailedLoginAttempts
			record.LockedUntil = &past
		})
	}

	t.Run("one wrong password after expiry does not re-lock", func(t *testing.T) {
		seedLockedOut(t, "id-10", "stale-a@example.com")

		_, err := f.service.PasswordLogin(ctx, auth.LoginInput{Identifier: "stale-a@example.com", Password: "wrong"})
		assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))

		record, err := f.identities.FindByID(ctx, "id-10")
		require.NoError(t, err)
		assert.Equal(t, 1, record.FailedAttempts)
		assert.Nil(t, record.LockedUntil)

		// A fresh full window is still needed to lock again
		for i := 0; i < constants.MaxFailedLoginAttempts-2; i++ {
			_, err = f.service.PasswordLogin(ctx, auth.LoginInput{Identifier: "stale-a@example.com", Password: "wrong"})
			assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))
		}
		_, err = f.service.PasswordLogin(ctx, auth.LoginInput{Identifier: "stale-a@example.com", Password: "wrong"})
		assert.True(t, apperr.HasCode(err, apperr.CodeAccountLocked))
	})

	t.Run("correct password after expiry succeeds", func(t *testing.T) {
		seedLockedOut(t, "id-11", "stale-b@example.com")

		result, err := f.service.PasswordLogin(ctx, auth.LoginInput{Identifier: "stale-b@example.com", Password: "S3cure-pass"})
		require.NoError(t, err)
		require.NotNil(t, result.Session)

		record, err := f.identities.FindByID(ctx, "id-11")
		require.NoError(t, err)
		assert.Equal(t, 0, record.FailedAttempts)
		assert.Nil(t, record.LockedUntil)
	})
}

/*
TestService_PasswordLogin_OperatorAccountsRejected verifies that operator
accounts never authenticate through the marketplace flows: their first-login
rotation and credential expiry live behind the admin-code login only.
*/
func TestService_PasswordLogin_OperatorAccountsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedVerified(t, "op-1", "ops@procura.market", "temp-Secret1", sec.RoleAdmin)
	expired := time.Now().Add(-time.Hour)
	f.mutate(t, "op-1", func(record *identity.Identity) {
		record.AdminID = "PRC-AB34CD"
		record.IsFirstLogin = true
		record.CredentialsExpireAt = &expired
	})

	// The correct password by email still answers the generic refusal
	_, err := f.service.PasswordLogin(ctx, auth.LoginInput{Identifier: "ops@procura.market", Password: "temp-Secret1"})
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))
	assert.Equal(t, 0, f.sessions.ActiveCount("op-1"))

	// The OTP flow is gated the same way and dispatches nothing
	err = f.service.RequestLoginOTP(ctx, "ops@procura.market")
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))
	assert.Equal(t, 0, f.notifier.CountOf(notify.TemplateLoginOTP))
}

/*
TestService_PasswordLogin_RoleResolution verifies the explicit-role,
single-role, and selection-required outcomes.
*/
func TestService_PasswordLogin_RoleResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVerified(t, "id-3", "multi@example.com", "S3cure-pass", sec.RoleBuyer, sec.RoleSupplier)
	f.states["id-3"] = identity.VerificationState{Status: identity.StateVerified}

	t.Run("no role named lists candidates", func(t *testing.T) {
		result, err := f.service.PasswordLogin(ctx, auth.LoginInput{Identifier: "multi@example.com", Password: "S3cure-pass"})
		require.NoError(t, err)
		assert.Nil(t, result.Session)
		assert.ElementsMatch(t, []string{"buyer", "supplier"}, result.RoleOptions)
	})

	t.Run("explicit held role issues tokens", func(t *testing.T) {
		result, err := f.service.PasswordLogin(ctx, auth.LoginInput{
			Identifier: "multi@example.com", Password: "S3cure-pass", RequestedRole: "supplier",
		})
		require.NoError(t, err)
		require.NotNil(t, result.Session)

		claims, err := f.tokens.VerifyToken(result.Session.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "supplier", claims.ActiveRole)
	})

	t.Run("role not held is refused", func(t *testing.T) {
		_, err := f.service.PasswordLogin(ctx, auth.LoginInput{
			Identifier: "multi@example.com", Password: "S3cure-pass", RequestedRole: "admin",
		})
		assert.Error(t, err)
	})
}

/*
TestService_LoginOTP_SingleUse verifies that a login code works exactly once,
with the durable fallback kicking in when the cache is cold.
*/
func TestService_LoginOTP_SingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVerified(t, "id-4", "otp@example.com", "S3cure-pass", sec.RoleBuyer)

	require.NoError(t, f.service.RequestLoginOTP(ctx, "otp@example.com"))

	message := f.notifier.Last(notify.TemplateLoginOTP)
	require.NotNil(t, message)
	code := message.Data["code"]

	// Cold cache: drop the cached copy so the durable fields must answer
	require.NoError(t, f.otps.Delete(ctx, "id-4"))

	result, err := f.service.VerifyLoginOTP(ctx, "otp@example.com", code, "", "ua", "ip")
	require.NoError(t, err)
	require.NotNil(t, result.Session)

	// The consumed code is gone from both stores
	_, err = f.service.VerifyLoginOTP(ctx, "otp@example.com", code, "", "ua", "ip")
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidOTP))
}

/*
TestService_RefreshSession_Rotation verifies token rotation and replay
rejection of the rotated-out token.
*/
func TestService_RefreshSession_Rotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVerified(t, "id-5", "rotate@example.com", "S3cure-pass", sec.RoleBuyer)

	result, err := f.service.PasswordLogin(ctx, auth.LoginInput{Identifier: "rotate@example.com", Password: "S3cure-pass"})
	require.NoError(t, err)
	first := result.Session

	rotated, err := f.service.RefreshSession(ctx, first.RefreshToken, "ua", "ip")
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, rotated.RefreshToken)

	// Replaying the old token fails
	_, err = f.service.RefreshSession(ctx, first.RefreshToken, "ua", "ip")
	assert.Error(t, err)

	// A deactivated identity cannot rotate back in
	f.mutate(t, "id-5", func(record *identity.Identity) { record.IsActive = false })
	_, err = f.service.RefreshSession(ctx, rotated.RefreshToken, "ua", "ip")
	assert.True(t, apperr.HasCode(err, apperr.CodeUserInactive))
}

/*
TestService_SwitchRole covers the rejected-supplier scenario: the role is
held (recorded at submission) but the live verification state blocks it.
*/
func TestService_SwitchRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVerified(t, "id-6", "switch@example.com", "S3cure-pass", sec.RoleBuyer, sec.RoleSupplier)

	t.Run("rejected supplier is blocked with the specific reason", func(t *testing.T) {
		f.states["id-6"] = identity.VerificationState{Status: identity.StateRejected}

		_, err := f.service.SwitchRole(ctx, "id-6", "supplier", "", "", "ua", "ip")
		require.Error(t, err)
		assert.True(t, apperr.HasCode(err, apperr.CodeSupplierNotVerified))
		assert.Contains(t, err.Error(), "rejected")
	})

	t.Run("verified supplier switches and the active role persists", func(t *testing.T) {
		f.states["id-6"] = identity.VerificationState{Status: identity.StateVerified}

		session, err := f.service.SwitchRole(ctx, "id-6", "supplier", "S3cure-pass", "", "ua", "ip")
		require.NoError(t, err)

		claims, err := f.tokens.VerifyToken(session.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "supplier", claims.ActiveRole)

		record, err := f.identities.FindByID(ctx, "id-6")
		require.NoError(t, err)
		require.NotNil(t, record.ActiveRole)
		assert.Equal(t, sec.RoleSupplier, *record.ActiveRole)
	})

	t.Run("wrong re-confirmation password is refused", func(t *testing.T) {
		_, err := f.service.SwitchRole(ctx, "id-6", "buyer", "wrong", "", "ua", "ip")
		assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))
	})

	t.Run("administrators never switch", func(t *testing.T) {
		f.seedVerified(t, "id-7", "admin@example.com", "S3cure-pass", sec.RoleAdmin)
		_, err := f.service.SwitchRole(ctx, "id-7", "buyer", "", "", "ua", "ip")
		assert.True(t, apperr.HasCode(err, apperr.CodeAdminExclusive))
	})
}

/*
TestService_ForgotPassword covers the anti-enumeration scenario and the full
reset flow, including the reuse guard and session revocation.
*/
func TestService_ForgotPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVerified(t, "id-8", "reset@example.com", "S3cure-pass", sec.RoleBuyer)

	// Unknown email: no error, no token, nothing dispatched
	token, err := f.service.ForgotPassword(ctx, "ghost@example.com")
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Equal(t, 0, f.notifier.CountOf(notify.TemplatePasswordReset))

	// Known email: a token is stored and dispatched
	token, err = f.service.ForgotPassword(ctx, "reset@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, 1, f.notifier.CountOf(notify.TemplatePasswordReset))

	// Establish a session that the reset must revoke
	result, err := f.service.PasswordLogin(ctx, auth.LoginInput{Identifier: "reset@example.com", Password: "S3cure-pass"})
	require.NoError(t, err)
	require.NotNil(t, result.Session)

	// Reusing the current password is refused
	err = f.service.ResetPassword(ctx, token, "S3cure-pass")
	assert.True(t, apperr.HasCode(err, apperr.CodePasswordReuse))

	// A second outstanding token must die with the one that gets used
	second, err := f.service.ForgotPassword(ctx, "reset@example.com")
	require.NoError(t, err)

	require.NoError(t, f.service.ResetPassword(ctx, token, "N3w-secret!"))

	// Every session is revoked and every outstanding token invalidated
	assert.Equal(t, 0, f.sessions.ActiveCount("id-8"))
	assert.Equal(t, 0, f.resets.Count())
	err = f.service.ResetPassword(ctx, second, "An0ther-one!")
	assert.Error(t, err)

	// The new password works
	result, err = f.service.PasswordLogin(ctx, auth.LoginInput{Identifier: "reset@example.com", Password: "N3w-secret!"})
	require.NoError(t, err)
	require.NotNil(t, result.Session)
}

/*
TestService_Logout_Idempotent verifies that logging out an unknown token is
still a successful logout.
*/
func TestService_Logout_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVerified(t, "id-9", "bye@example.com", "S3cure-pass", sec.RoleBuyer)

	result, err := f.service.PasswordLogin(ctx, auth.LoginInput{Identifier: "bye@example.com", Password: "S3cure-pass"})
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, result.Session.RefreshToken))
	require.NoError(t, f.service.Logout(ctx, result.Session.RefreshToken))
	require.NoError(t, f.service.Logout(ctx, "never-issued"))

	// The revoked token cannot refresh
	_, err = f.service.RefreshSession(ctx, result.Session.RefreshToken, "ua", "ip")
	assert.Error(t, err)
}
