// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package identity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/procuramarket/procura/internal/identity"
)

/*
TestIsLocked verifies the lazy lock evaluation against the clock.
*/
func TestIsLocked(t *testing.T) {
	now := time.Now()
	future := now.Add(10 * time.Minute)
	past := now.Add(-1 * time.Minute)

	testCases := []struct {
		name        string
		lockedUntil *time.Time
		expected    bool
	}{
		{"never locked", nil, false},
		{"lock in the future", &future, true},
		{"lock already expired", &past, false},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			record := &identity.Identity{LockedUntil: testCase.lockedUntil}
			assert.Equal(t, testCase.expected, identity.IsLocked(record, now))
		})
	}
}

/*
TestLockRemaining verifies the remaining-time calculation used for the
ACCOUNT_LOCKED response hint.
*/
func TestLockRemaining(t *testing.T) {
	now := time.Now()

	// 1. Unlocked accounts report zero
	assert.Zero(t, identity.LockRemaining(&identity.Identity{}, now))

	// 2. Expired locks report zero, not a negative duration
	past := now.Add(-5 * time.Minute)
	assert.Zero(t, identity.LockRemaining(&identity.Identity{LockedUntil: &past}, now))

	// 3. Active locks report the exact remainder
	future := now.Add(12 * time.Minute)
	remaining := identity.LockRemaining(&identity.Identity{LockedUntil: &future}, now)
	assert.Equal(t, 12*time.Minute, remaining)
}

/*
TestSanitized verifies that the API projection exposes roles but never the
password hash or OTP material.
*/
func TestSanitized(t *testing.T) {
	record := &identity.Identity{
		ID:           "identity-1",
		Email:        "buyer@example.com",
		PasswordHash: "$2a$10$secret",
		OTPCode:      "123456",
	}

	projection := record.Sanitized()

	assert.Equal(t, "identity-1", projection.ID)
	assert.NotNil(t, projection.Roles)

	// The hash and OTP fields carry json:"-" on the embedded entity; the
	// projection only ever adds the role strings on top.
	assert.Empty(t, projection.Roles)
}
