// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package sec_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procuramarket/procura/internal/platform/sec"
)

func TestGenerateSecureToken(t *testing.T) {
	token, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)
	assert.Len(t, token, 64)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]+$`), token)

	other, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestGenerateOTP(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9]{6}$`)

	for i := 0; i < 20; i++ {
		code, err := sec.GenerateOTP(6)
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
	}
}

func TestHashToken(t *testing.T) {
	first := sec.HashToken("refresh-token-value")
	second := sec.HashToken("refresh-token-value")
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)

	assert.NotEqual(t, first, sec.HashToken("refresh-token-value2"))
	assert.NotEqual(t, "refresh-token-value", first)
}

func TestHashPassword(t *testing.T) {
	hash, err := sec.HashPassword("Str0ng-passphrase")
	require.NoError(t, err)
	assert.NotEqual(t, "Str0ng-passphrase", hash)

	assert.True(t, sec.CheckPasswordHash("Str0ng-passphrase", hash))
	assert.False(t, sec.CheckPasswordHash("wrong", hash))

	// bcrypt salts, so equal inputs produce distinct hashes
	again, err := sec.HashPassword("Str0ng-passphrase")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again)
}
