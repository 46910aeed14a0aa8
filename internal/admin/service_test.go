// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package admin_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procuramarket/procura/internal/admin"
	"github.com/procuramarket/procura/internal/auth/authtest"
	"github.com/procuramarket/procura/internal/identity"
	"github.com/procuramarket/procura/internal/identity/identitytest"
	"github.com/procuramarket/procura/internal/platform/apperr"
	"github.com/procuramarket/procura/internal/platform/constants"
	"github.com/procuramarket/procura/internal/platform/notify"
	"github.com/procuramarket/procura/internal/platform/sec"
)

type fixture struct {
	service    *admin.Service
	identities *identitytest.FakeRepository
	sessions   *authtest.FakeSessionRepository
	notifier   *authtest.RecordingNotifier
	tokens     *sec.TokenService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tokens := sec.NewTokenServiceFromKeys(key, constants.AuthIssuer)

	identities := identitytest.NewFakeRepository()
	sessions := authtest.NewFakeSessionRepository()
	notifier := authtest.NewRecordingNotifier()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	service := admin.NewService(identities, sessions, tokens, notifier, logger)

	return &fixture{
		service:    service,
		identities: identities,
		sessions:   sessions,
		notifier:   notifier,
		tokens:     tokens,
	}
}

// seedOperator inserts an administrator with temporary credentials.
func (f *fixture) seedOperator(t *testing.T, id, adminCode, tempPassword string, firstLogin bool) {
	t.Helper()

	hash, err := sec.HashPassword(tempPassword)
	require.NoError(t, err)
	roles, err := sec.NewRoleSet(sec.RoleAdmin)
	require.NoError(t, err)

	record := &identity.Identity{
		ID:           id,
		Email:        id + "@procura.market",
		PasswordHash: hash,
		Roles:        roles,
		IsVerified:   true,
		IsActive:     true,
		AdminID:      adminCode,
		IsFirstLogin: firstLogin,
	}
	if firstLogin {
		expires := time.Now().Add(constants.TempCredentialTTL)
		record.CredentialsExpireAt = &expires
	}
	f.identities.Seed(record)
}

func (f *fixture) mutate(t *testing.T, id string, change func(*identity.Identity)) {
	t.Helper()
	record, err := f.identities.FindByID(context.Background(), id)
	require.NoError(t, err)
	change(record)
	f.identities.Seed(record)
}

/*
TestService_FirstLoginFlow walks the full operator onboarding scenario:
temporary credentials, forced password change, then a normal session.
*/
func TestService_FirstLoginFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedOperator(t, "op-1", "PRC-AB34CD", "temp-Secret1", true)

	// 1. First login yields the change handshake, never a session
	outcome, err := f.service.Login(ctx, "PRC-AB34CD", "temp-Secret1", "ua", "ip")
	require.NoError(t, err)
	assert.True(t, outcome.PasswordChangeRequired)
	assert.NotEmpty(t, outcome.ChangeToken)
	assert.Nil(t, outcome.Session)
	assert.Equal(t, 0, f.sessions.ActiveCount("op-1"))

	// 2. The temporary password cannot be kept
	_, err = f.service.ChangePassword(ctx, outcome.ChangeToken, "temp-Secret1", "temp-Secret1", "ua", "ip")
	assert.True(t, apperr.HasCode(err, apperr.CodePasswordReuse))

	// 3. A proper change issues the first full session
	session, err := f.service.ChangePassword(ctx, outcome.ChangeToken, "temp-Secret1", "Real-secret9", "ua", "ip")
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
	assert.Equal(t, 1, f.sessions.ActiveCount("op-1"))

	claims, err := f.tokens.VerifyToken(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.ActiveRole)

	// 4. Subsequent logins skip the handshake
	outcome, err = f.service.Login(ctx, "PRC-AB34CD", "Real-secret9", "ua", "ip")
	require.NoError(t, err)
	assert.False(t, outcome.PasswordChangeRequired)
	require.NotNil(t, outcome.Session)

	// 5. The temporary password is dead
	_, err = f.service.Login(ctx, "PRC-AB34CD", "temp-Secret1", "ua", "ip")
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))
}

/*
TestService_Login_ExpiredTempCredentials verifies the 24h shelf life.
*/
func TestService_Login_ExpiredTempCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedOperator(t, "op-2", "PRC-XY77ZQ", "temp-Secret1", true)

	stale := time.Now().Add(-time.Hour)
	f.mutate(t, "op-2", func(record *identity.Identity) { record.CredentialsExpireAt = &stale })

	_, err := f.service.Login(ctx, "PRC-XY77ZQ", "temp-Secret1", "ua", "ip")
	assert.True(t, apperr.HasCode(err, apperr.CodeCredentialsExpired))
}

/*
TestService_Login_Lockout verifies the shared lockout accounting with the
operator-facing remaining-attempts hint.
*/
func TestService_Login_Lockout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedOperator(t, "op-3", "PRC-LOCKME", "Real-secret9", false)

	_, err := f.service.Login(ctx, "PRC-LOCKME", "wrong", "ua", "ip")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))
	assert.Contains(t, err.Error(), "4 attempts remaining")

	for i := 0; i < constants.MaxFailedLoginAttempts-2; i++ {
		_, err = f.service.Login(ctx, "PRC-LOCKME", "wrong", "ua", "ip")
		require.Error(t, err)
	}

	// The threshold attempt engages the lock
	_, err = f.service.Login(ctx, "PRC-LOCKME", "wrong", "ua", "ip")
	assert.True(t, apperr.HasCode(err, apperr.CodeAccountLocked))

	_, err = f.service.Login(ctx, "PRC-LOCKME", "Real-secret9", "ua", "ip")
	assert.True(t, apperr.HasCode(err, apperr.CodeAccountLocked))
}

/*
TestService_Login_ExpiredLockClearsCounter verifies the elapsed-lock reset on
the operator path: the stale counter is cleared before the password check, so
one wrong attempt restarts the window instead of re-locking.
*/
func TestService_Login_ExpiredLockClearsCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedOperator(t, "op-6", "PRC-STALE1", "Real-secret9", false)

	past := time.Now().Add(-time.Minute)
	f.mutate(t, "op-6", func(record *identity.Identity) {
		record.FailedAttempts = constants.MaxFailedLoginAttempts
		record.LockedUntil = &past
	})

	// A wrong password restarts the accounting with the full hint
	_, err := f.service.Login(ctx, "PRC-STALE1", "wrong", "ua", "ip")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))
	assert.Contains(t, err.Error(), "4 attempts remaining")

	// And the correct password simply works
	outcome, err := f.service.Login(ctx, "PRC-STALE1", "Real-secret9", "ua", "ip")
	require.NoError(t, err)
	require.NotNil(t, outcome.Session)
}

/*
TestService_ChangeOwnPassword verifies the voluntary rotation available to
operators past first login.
*/
func TestService_ChangeOwnPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedOperator(t, "op-7", "PRC-ROTOWN", "Real-secret9", false)

	outcome, err := f.service.Login(ctx, "PRC-ROTOWN", "Real-secret9", "ua", "ip")
	require.NoError(t, err)
	require.NotNil(t, outcome.Session)
	require.Equal(t, 1, f.sessions.ActiveCount("op-7"))

	// The current password must match
	_, err = f.service.ChangeOwnPassword(ctx, "op-7", "wrong", "Fresh-secret1", "ua", "ip")
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))

	// The password must actually change
	_, err = f.service.ChangeOwnPassword(ctx, "op-7", "Real-secret9", "Real-secret9", "ua", "ip")
	assert.True(t, apperr.HasCode(err, apperr.CodePasswordReuse))

	// Rotation revokes the old session and issues a fresh one
	session, err := f.service.ChangeOwnPassword(ctx, "op-7", "Real-secret9", "Fresh-secret1", "ua", "ip")
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
	assert.Equal(t, 1, f.sessions.ActiveCount("op-7"))

	// The old password is dead, the new one logs in
	_, err = f.service.Login(ctx, "PRC-ROTOWN", "Real-secret9", "ua", "ip")
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))

	outcome, err = f.service.Login(ctx, "PRC-ROTOWN", "Fresh-secret1", "ua", "ip")
	require.NoError(t, err)
	assert.False(t, outcome.PasswordChangeRequired)
}

/*
TestService_CreateAdmin verifies provisioning, including the rule that the
plaintext temp password surfaces only when delivery fails.
*/
func TestService_CreateAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("delivery succeeds, plaintext stays in the notification", func(t *testing.T) {
		created, err := f.service.CreateAdmin(ctx, admin.CreateAdminInput{
			Email: "ops@procura.market", FirstName: "Mira", LastName: "Stone",
		})
		require.NoError(t, err)

		assert.Regexp(t, regexp.MustCompile(`^PRC-[A-Z2-7]{6}$`), created.AdminID)
		assert.Empty(t, created.TempPassword)

		message := f.notifier.Last(notify.TemplateAdminCredentials)
		require.NotNil(t, message)
		assert.Equal(t, created.AdminID, message.Data["admin_id"])
		assert.NotEmpty(t, message.Data["temp_password"])

		// The provisioned account goes through the first-login handshake
		outcome, err := f.service.Login(ctx, created.AdminID, message.Data["temp_password"], "ua", "ip")
		require.NoError(t, err)
		assert.True(t, outcome.PasswordChangeRequired)
	})

	t.Run("delivery fails, plaintext returned for manual handover", func(t *testing.T) {
		f.notifier.FailTemplates[notify.TemplateAdminCredentials] = true

		created, err := f.service.CreateAdmin(ctx, admin.CreateAdminInput{
			Email: "ops2@procura.market", FirstName: "Noor", LastName: "Patel",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, created.TempPassword)
	})
}

/*
TestService_ResetAdminCredentials verifies re-provisioning and the session
revocation that goes with it.
*/
func TestService_ResetAdminCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedOperator(t, "op-4", "PRC-ROTATE", "Real-secret9", false)

	// Establish a session that the rotation must kill
	outcome, err := f.service.Login(ctx, "PRC-ROTATE", "Real-secret9", "ua", "ip")
	require.NoError(t, err)
	require.NotNil(t, outcome.Session)
	require.Equal(t, 1, f.sessions.ActiveCount("op-4"))

	f.notifier.FailTemplates[notify.TemplateAdminCredentials] = true
	reset, err := f.service.ResetAdminCredentials(ctx, "op-4")
	require.NoError(t, err)
	require.NotEmpty(t, reset.TempPassword)

	assert.Equal(t, 0, f.sessions.ActiveCount("op-4"))

	// The rotated account is back on the first-login handshake
	outcome, err = f.service.Login(ctx, "PRC-ROTATE", reset.TempPassword, "ua", "ip")
	require.NoError(t, err)
	assert.True(t, outcome.PasswordChangeRequired)

	// The old password is gone
	_, err = f.service.Login(ctx, "PRC-ROTATE", "Real-secret9", "ua", "ip")
	assert.Error(t, err)
}

/*
TestService_DeactivateAdmin verifies deactivation plus session revocation.
*/
func TestService_DeactivateAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedOperator(t, "op-5", "PRC-GONE22", "Real-secret9", false)

	_, err := f.service.Login(ctx, "PRC-GONE22", "Real-secret9", "ua", "ip")
	require.NoError(t, err)

	require.NoError(t, f.service.DeactivateAdmin(ctx, "op-5"))
	assert.Equal(t, 0, f.sessions.ActiveCount("op-5"))

	_, err = f.service.Login(ctx, "PRC-GONE22", "Real-secret9", "ua", "ip")
	assert.True(t, apperr.HasCode(err, apperr.CodeUserInactive))
}

func TestGenerateAdminCode(t *testing.T) {
	pattern := regexp.MustCompile(`^PRC-[A-Z2-7]{6}$`)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := admin.GenerateAdminCode()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
		seen[code] = true
	}

	// 50 draws from a 32^6 space colliding would point at broken entropy
	assert.Greater(t, len(seen), 45)
}
