// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package sec_test

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procuramarket/procura/internal/platform/sec"
)

const testIssuer = "procura.test"

func newTokenService(t *testing.T) *sec.TokenService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return sec.NewTokenServiceFromKeys(key, testIssuer)
}

func TestTokenService_AccessTokenRoundTrip(t *testing.T) {
	service := newTokenService(t)

	held, err := sec.NewRoleSet(sec.RoleBuyer, sec.RoleSupplier)
	require.NoError(t, err)

	token, err := service.GenerateAccessToken("id-1", "ada@example.com", sec.RoleSupplier, held, time.Minute)
	require.NoError(t, err)

	claims, err := service.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "id-1", claims.IdentityID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "supplier", claims.ActiveRole)
	assert.ElementsMatch(t, []string{"buyer", "supplier"}, claims.Roles)
	assert.False(t, claims.IsSuperAdmin)
	assert.Equal(t, testIssuer, claims.Issuer)
}

func TestTokenService_SuperAdminClaim(t *testing.T) {
	service := newTokenService(t)

	held, err := sec.NewRoleSet(sec.RoleSuperAdmin)
	require.NoError(t, err)

	token, err := service.GenerateAccessToken("id-2", "root@example.com", sec.RoleSuperAdmin, held, time.Minute)
	require.NoError(t, err)

	claims, err := service.VerifyToken(token)
	require.NoError(t, err)
	assert.True(t, claims.IsSuperAdmin)
}

func TestTokenService_RejectsExpiredToken(t *testing.T) {
	service := newTokenService(t)

	held, err := sec.NewRoleSet(sec.RoleBuyer)
	require.NoError(t, err)

	token, err := service.GenerateAccessToken("id-3", "ada@example.com", sec.RoleBuyer, held, -time.Minute)
	require.NoError(t, err)

	_, err = service.VerifyToken(token)
	assert.Error(t, err)
}

func TestTokenService_RejectsForeignSignature(t *testing.T) {
	issuerService := newTokenService(t)
	verifierService := newTokenService(t)

	held, err := sec.NewRoleSet(sec.RoleBuyer)
	require.NoError(t, err)

	token, err := issuerService.GenerateAccessToken("id-4", "ada@example.com", sec.RoleBuyer, held, time.Minute)
	require.NoError(t, err)

	_, err = verifierService.VerifyToken(token)
	assert.Error(t, err)
}

func TestTokenService_RejectsTamperedToken(t *testing.T) {
	service := newTokenService(t)

	held, err := sec.NewRoleSet(sec.RoleBuyer)
	require.NoError(t, err)

	token, err := service.GenerateAccessToken("id-5", "ada@example.com", sec.RoleBuyer, held, time.Minute)
	require.NoError(t, err)

	tampered := token[:len(token)-4] + "AAAA"
	_, err = service.VerifyToken(tampered)
	assert.Error(t, err)
}

func TestTokenService_PurposeTokens(t *testing.T) {
	service := newTokenService(t)

	token, err := service.GeneratePurposeToken("id-6", sec.PurposePasswordChange, time.Minute)
	require.NoError(t, err)

	claims, err := service.VerifyPurposeToken(token, sec.PurposePasswordChange)
	require.NoError(t, err)
	assert.Equal(t, "id-6", claims.IdentityID)

	// A purpose token is bound to its declared purpose
	_, err = service.VerifyPurposeToken(token, "account_deletion")
	assert.Error(t, err)

	// Access tokens are never valid purpose tokens
	held, err := sec.NewRoleSet(sec.RoleBuyer)
	require.NoError(t, err)
	accessToken, err := service.GenerateAccessToken("id-6", "ada@example.com", sec.RoleBuyer, held, time.Minute)
	require.NoError(t, err)
	_, err = service.VerifyPurposeToken(accessToken, sec.PurposePasswordChange)
	assert.Error(t, err)
}
