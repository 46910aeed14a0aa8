// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procuramarket/procura/internal/identity"
	"github.com/procuramarket/procura/internal/identity/identitytest"
	"github.com/procuramarket/procura/internal/platform/apperr"
	"github.com/procuramarket/procura/internal/platform/sec"
)

// stubStatusReader returns a fixed verification state.
type stubStatusReader struct {
	state identity.VerificationState
}

func (s stubStatusReader) LatestState(context.Context, string) (identity.VerificationState, error) {
	return s.state, nil
}

func seedIdentity(t *testing.T, repo *identitytest.FakeRepository, id string, roles ...sec.Role) *identity.Identity {
	t.Helper()
	roleSet, err := sec.NewRoleSet(roles...)
	require.NoError(t, err)

	record := &identity.Identity{
		ID:         id,
		Email:      id + "@example.com",
		Roles:      roleSet,
		IsVerified: true,
		IsActive:   true,
	}
	repo.Seed(record)
	return record
}

/*
TestPolicy_CanRequestSupplierRole verifies the acquisition decision matrix:
one non-terminal application at a time, no reapplying after approval, and
the rejection cooldown window.
*/
func TestPolicy_CanRequestSupplierRole(t *testing.T) {
	recent := time.Now().Add(-10 * 24 * time.Hour)
	stale := time.Now().Add(-45 * 24 * time.Hour)

	testCases := []struct {
		name         string
		state        identity.VerificationState
		wantAllowed  bool
		wantCode     string
		wantDaysLeft bool
	}{
		{"never applied", identity.VerificationState{}, true, "", false},
		{"draft only", identity.VerificationState{Status: identity.StateDraft}, true, "", false},
		{"pending application", identity.VerificationState{Status: identity.StatePending}, false, apperr.CodeRequestPending, false},
		{"under review", identity.VerificationState{Status: identity.StateUnderReview}, false, apperr.CodeUnderReview, false},
		{"already verified", identity.VerificationState{Status: identity.StateVerified}, false, apperr.CodeAlreadyVerified, false},
		{"rejected inside cooldown", identity.VerificationState{Status: identity.StateRejected, ReviewedAt: &recent}, false, apperr.CodeCooldownActive, true},
		{"rejected past cooldown", identity.VerificationState{Status: identity.StateRejected, ReviewedAt: &stale}, true, "", false},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			repo := identitytest.NewFakeRepository()
			seedIdentity(t, repo, "buyer-1", sec.RoleBuyer)

			policy := identity.NewPolicy(repo, stubStatusReader{state: testCase.state})
			decision, err := policy.CanRequestSupplierRole(context.Background(), "buyer-1")
			require.NoError(t, err)

			assert.Equal(t, testCase.wantAllowed, decision.Allowed)
			assert.Equal(t, testCase.wantCode, decision.Code)
			if testCase.wantDaysLeft {
				assert.Greater(t, decision.DaysRemaining, 0)
				assert.LessOrEqual(t, decision.DaysRemaining, 30)
			}
		})
	}
}

/*
TestPolicy_CanRequestSupplierRole_AdminDenied verifies that operator accounts
can never open a supplier application.
*/
func TestPolicy_CanRequestSupplierRole_AdminDenied(t *testing.T) {
	repo := identitytest.NewFakeRepository()
	seedIdentity(t, repo, "admin-1", sec.RoleAdmin)

	policy := identity.NewPolicy(repo, stubStatusReader{})
	decision, err := policy.CanRequestSupplierRole(context.Background(), "admin-1")
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Equal(t, apperr.CodeAdminExclusive, decision.Code)
}

/*
TestPolicy_CanSwitchTo verifies the role-switch gate: held roles only, admin
sessions pinned, and suppliers re-verified at switch time.
*/
func TestPolicy_CanSwitchTo(t *testing.T) {
	t.Run("buyer switch to held role succeeds", func(t *testing.T) {
		repo := identitytest.NewFakeRepository()
		record := seedIdentity(t, repo, "dual-1", sec.RoleBuyer, sec.RoleSupplier)

		policy := identity.NewPolicy(repo, stubStatusReader{state: identity.VerificationState{Status: identity.StateVerified}})
		assert.NoError(t, policy.CanSwitchTo(context.Background(), record, sec.RoleSupplier))
	})

	t.Run("role not held", func(t *testing.T) {
		repo := identitytest.NewFakeRepository()
		record := seedIdentity(t, repo, "buyer-2", sec.RoleBuyer)

		policy := identity.NewPolicy(repo, stubStatusReader{})
		err := policy.CanSwitchTo(context.Background(), record, sec.RoleSupplier)
		assert.True(t, apperr.HasCode(err, apperr.CodeRoleNotHeld))
	})

	t.Run("admin never switches", func(t *testing.T) {
		repo := identitytest.NewFakeRepository()
		record := seedIdentity(t, repo, "admin-2", sec.RoleAdmin)

		policy := identity.NewPolicy(repo, stubStatusReader{})
		err := policy.CanSwitchTo(context.Background(), record, sec.RoleAdmin)
		assert.True(t, apperr.HasCode(err, apperr.CodeAdminExclusive))
	})

	t.Run("supplier blocked while application not verified", func(t *testing.T) {
		blockedStates := []string{
			identity.StateNone,
			identity.StatePending,
			identity.StateUnderReview,
			identity.StateRejected,
		}

		for _, state := range blockedStates {
			repo := identitytest.NewFakeRepository()
			record := seedIdentity(t, repo, "dual-2", sec.RoleBuyer, sec.RoleSupplier)

			policy := identity.NewPolicy(repo, stubStatusReader{state: identity.VerificationState{Status: state}})
			err := policy.CanSwitchTo(context.Background(), record, sec.RoleSupplier)
			assert.True(t, apperr.HasCode(err, apperr.CodeSupplierNotVerified), "state %q should block", state)
		}
	})
}

/*
TestService_GrantRole verifies the operator force-grant honors RoleSet
exclusivity in both directions.
*/
func TestService_GrantRole(t *testing.T) {
	t.Run("grant supplier to buyer", func(t *testing.T) {
		repo := identitytest.NewFakeRepository()
		seedIdentity(t, repo, "buyer-3", sec.RoleBuyer)

		service := identity.NewService(repo, identity.NewPolicy(repo, stubStatusReader{}))
		record, err := service.GrantRole(context.Background(), "buyer-3", sec.RoleSupplier)
		require.NoError(t, err)

		assert.True(t, record.Roles.Has(sec.RoleSupplier))
		assert.True(t, record.Roles.Has(sec.RoleBuyer))
	})

	t.Run("grant admin to buyer fails", func(t *testing.T) {
		repo := identitytest.NewFakeRepository()
		seedIdentity(t, repo, "buyer-4", sec.RoleBuyer)

		service := identity.NewService(repo, identity.NewPolicy(repo, stubStatusReader{}))
		_, err := service.GrantRole(context.Background(), "buyer-4", sec.RoleAdmin)
		assert.True(t, apperr.HasCode(err, apperr.CodeAdminExclusive))
	})

	t.Run("grant buyer to admin fails", func(t *testing.T) {
		repo := identitytest.NewFakeRepository()
		seedIdentity(t, repo, "admin-3", sec.RoleAdmin)

		service := identity.NewService(repo, identity.NewPolicy(repo, stubStatusReader{}))
		_, err := service.GrantRole(context.Background(), "admin-3", sec.RoleBuyer)
		assert.True(t, apperr.HasCode(err, apperr.CodeAdminExclusive))
	})

	t.Run("grant held role is a no-op", func(t *testing.T) {
		repo := identitytest.NewFakeRepository()
		seedIdentity(t, repo, "buyer-5", sec.RoleBuyer)

		service := identity.NewService(repo, identity.NewPolicy(repo, stubStatusReader{}))
		record, err := service.GrantRole(context.Background(), "buyer-5", sec.RoleBuyer)
		require.NoError(t, err)
		assert.Equal(t, 1, record.Roles.Len())
	})
}

/*
TestService_RevokeRole verifies the last-role guard and the active-role
fallback after a removal.
*/
func TestService_RevokeRole(t *testing.T) {
	t.Run("revoke last role fails", func(t *testing.T) {
		repo := identitytest.NewFakeRepository()
		seedIdentity(t, repo, "buyer-6", sec.RoleBuyer)

		service := identity.NewService(repo, identity.NewPolicy(repo, stubStatusReader{}))
		_, err := service.RevokeRole(context.Background(), "buyer-6", sec.RoleBuyer)
		assert.True(t, apperr.HasCode(err, apperr.CodeLastRole))
	})

	t.Run("revoking the active role falls back to the remaining one", func(t *testing.T) {
		repo := identitytest.NewFakeRepository()
		record := seedIdentity(t, repo, "dual-3", sec.RoleBuyer, sec.RoleSupplier)
		supplier := sec.RoleSupplier
		record.ActiveRole = &supplier
		repo.Seed(record)

		service := identity.NewService(repo, identity.NewPolicy(repo, stubStatusReader{}))
		updated, err := service.RevokeRole(context.Background(), "dual-3", sec.RoleSupplier)
		require.NoError(t, err)

		require.NotNil(t, updated.ActiveRole)
		assert.Equal(t, sec.RoleBuyer, *updated.ActiveRole)
		assert.False(t, updated.Roles.Has(sec.RoleSupplier))
	})
}
