// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package sec

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// # Opaque Tokens & One-Time Codes

// GenerateSecureToken returns byteLength random bytes as a hex string.
//
// Used for refresh tokens, password reset tokens, and admin temporary
// password seeds. The output length in characters is 2*byteLength.
func GenerateSecureToken(byteLength int) (string, error) {
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("sec: failed to generate secure token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateOTP returns a numeric one-time code of the given length.
//
// Each digit is drawn independently from crypto/rand, so leading zeros are
// possible and the code must be treated as a string, never an integer.
func GenerateOTP(length int) (string, error) {
	const digits = "0123456789"

	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", fmt.Errorf("sec: failed to generate OTP: %w", err)
		}
		code[i] = digits[n.Int64()]
	}
	return string(code), nil
}

// HashToken returns the hex-encoded SHA-256 digest of a token.
//
// Refresh and reset tokens are stored hashed: a leaked sessions table must
// not yield usable credentials.
func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
