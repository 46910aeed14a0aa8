// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing) from
// the domain logic. It acts as an Infrastructure service injected into the
// Application layer via the [TokenProvider]-style interfaces each domain
// package declares for itself.
package sec

import (
	"crypto/rsa"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims represents the payload embedded inside a JWT Access Token.
//
// # Why custom claims?
//
// By embedding the identity ID, contact email, and role data directly inside
// the JWT, the authentication middleware can reconstruct the active user
// context WITHOUT querying the database on every single API request. The
// active role is a first-class claim because every authorization decision in
// the marketplace is made against the role a session is operating as, not the
// full set of roles the identity holds.
type AuthClaims struct {
	jwt.RegisteredClaims

	// Custom application claims are abbreviated to keep the JWT payload small.
	IdentityID   string   `json:"uid"`
	Email        string   `json:"eml"`
	ActiveRole   string   `json:"rol"`
	Roles        []string `json:"rls,omitempty"`
	IsSuperAdmin bool     `json:"sup,omitempty"`
}

// PurposeClaims is the payload of a short-lived limited-purpose token.
//
// Purpose tokens authorize exactly one follow-up action (e.g. the forced
// password change after a first admin login) and are never accepted by the
// regular authentication middleware.
type PurposeClaims struct {
	jwt.RegisteredClaims

	IdentityID string `json:"uid"`
	Purpose    string `json:"prp"`
}

// Known purpose-token purposes.
const (
	PurposePasswordChange = "password_change"
)

// TokenService handles generation and verification of JWT tokens using RS256.
type TokenService struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
}

// NewTokenService creates a new TokenService.
// It reads RSA keys from the provided filesystem paths.
func NewTokenService(privateKeyPath, publicKeyPath, issuer string) (*TokenService, error) {
	privateKeyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to read private key from %s: %w", privateKeyPath, err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyData)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to parse private key: %w", err)
	}

	publicKeyData, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to read public key from %s: %w", publicKeyPath, err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyData)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to parse public key: %w", err)
	}

	return &TokenService{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
	}, nil
}

// NewTokenServiceFromKeys creates a TokenService from in-memory keys.
// Used by tests and by environments that inject keys without a filesystem.
func NewTokenServiceFromKeys(privateKey *rsa.PrivateKey, issuer string) *TokenService {
	return &TokenService{
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
		issuer:     issuer,
	}
}

// GenerateAccessToken creates a new JWT access token for an identity session.
//
// # Parameters
//   - identityID: The ID of the account.
//   - email: The primary contact email of the account.
//   - active: The role this session operates as.
//   - held: Every role the identity holds (claim bundle for admin tooling).
//   - timeToLive: The duration before the token expires.
func (service *TokenService) GenerateAccessToken(identityID, email string, active Role, held RoleSet, timeToLive time.Duration) (string, error) {
	currentTime := time.Now()
	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
		},
		IdentityID:   identityID,
		Email:        email,
		ActiveRole:   string(active),
		Roles:        held.Strings(),
		IsSuperAdmin: held.Has(RoleSuperAdmin),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(service.privateKey)
	if err != nil {
		return "", fmt.Errorf("auth: failed to sign token: %w", err)
	}

	return signedToken, nil
}

// GeneratePurposeToken creates a short-lived token authorizing one action.
func (service *TokenService) GeneratePurposeToken(identityID, purpose string, timeToLive time.Duration) (string, error) {
	currentTime := time.Now()
	claims := PurposeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
		},
		IdentityID: identityID,
		Purpose:    purpose,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(service.privateKey)
	if err != nil {
		return "", fmt.Errorf("auth: failed to sign purpose token: %w", err)
	}

	return signedToken, nil
}

// VerifyToken checks the signature and validity of a JWT string.
func (service *TokenService) VerifyToken(tokenString string) (*AuthClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AuthClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
		}
		return service.publicKey, nil
	})

	if err != nil {
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	claims, ok := token.Claims.(*AuthClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}

	return claims, nil
}

// VerifyPurposeToken checks a limited-purpose token and that its purpose matches.
func (service *TokenService) VerifyPurposeToken(tokenString, purpose string) (*PurposeClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &PurposeClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
		}
		return service.publicKey, nil
	})

	if err != nil {
		return nil, fmt.Errorf("auth: invalid purpose token: %w", err)
	}

	claims, ok := token.Claims.(*PurposeClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid purpose token claims")
	}

	if claims.Purpose != purpose {
		return nil, fmt.Errorf("auth: purpose token not valid for %s", purpose)
	}

	return claims, nil
}
