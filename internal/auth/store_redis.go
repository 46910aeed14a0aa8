// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/procuramarket/procura/internal/platform/apperr"
	"github.com/procuramarket/procura/internal/platform/constants"
)

// # OTP Store

// RedisOTPStore implements OTPStore using Redis.
type RedisOTPStore struct {
	client *redis.Client
}

// NewOTPStore creates a new Redis-backed OTPStore.
func NewOTPStore(client *redis.Client) *RedisOTPStore {
	return &RedisOTPStore{client: client}
}

/*
Set stores a one-time code for an identity with a TTL.

Parameters:
  - context: context.Context
  - identityID: string
  - code: string
  - ttl: time.Duration

Returns:
  - error: Execution errors
*/
func (store *RedisOTPStore) Set(context context.Context, identityID string, code string, ttl time.Duration) error {

	// Use constants for key prefix
	key := constants.RedisPrefixOTP + identityID

	// Set the code with TTL
	if err := store.client.Set(context, key, code, ttl).Err(); err != nil {
		return fmt.Errorf("redis_otp_set_failed: %w", err)
	}

	// Return nil on success
	return nil
}

/*
Get retrieves the outstanding code for an identity.

Description: Returns apperr.NotFound if the code is absent or expired; the
caller then falls back to the durable fields on the identity row.

Parameters:
  - context: context.Context
  - identityID: string

Returns:
  - string: The stored code
  - error: apperr.NotFound or connectivity errors
*/
func (store *RedisOTPStore) Get(context context.Context, identityID string) (string, error) {

	// Use constants for key prefix
	key := constants.RedisPrefixOTP + identityID

	// Get the code from Redis
	code, err := store.client.Get(context, key).Result()

	// Handle errors
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperr.NotFound("One-time code is invalid or expired")
		}
		return "", fmt.Errorf("redis_otp_get_failed: %w", err)
	}

	// Return the code
	return code, nil
}

/*
Delete removes the code from Redis after use.

Parameters:
  - context: context.Context
  - identityID: string

Returns:
  - error: Deletion failures
*/
func (store *RedisOTPStore) Delete(context context.Context, identityID string) error {

	// Use constants for key prefix
	key := constants.RedisPrefixOTP + identityID

	// Delete the code from Redis
	if err := store.client.Del(context, key).Err(); err != nil {
		return fmt.Errorf("redis_otp_delete_failed: %w", err)
	}

	// Return nil on success
	return nil
}

// # Reset Token Repository

// RedisResetTokenRepository implements ResetTokenRepository using Redis.
//
// Each token hash is a plain key; a per-identity set under the reset_owner
// prefix indexes outstanding hashes so DeleteAllFor can invalidate every
// token after a successful reset.
type RedisResetTokenRepository struct {
	client *redis.Client
}

// NewResetTokenRepository creates a new Redis-backed ResetTokenRepository.
func NewResetTokenRepository(client *redis.Client) *RedisResetTokenRepository {
	return &RedisResetTokenRepository{client: client}
}

/*
Set stores a reset token hash with its owning identityID and TTL.

Description: Also records the hash in the identity's owner index. The index
carries the same TTL so abandoned resets clean themselves up.

Parameters:
  - context: context.Context
  - tokenHash: string
  - identityID: string
  - ttl: time.Duration

Returns:
  - error: Execution errors
*/
func (repository *RedisResetTokenRepository) Set(context context.Context, tokenHash string, identityID string, ttl time.Duration) error {

	// Use constants for key prefix
	key := constants.RedisPrefixResetToken + tokenHash
	ownerKey := constants.RedisPrefixResetOwner + identityID

	// Set the token hash with TTL
	if err := repository.client.Set(context, key, identityID, ttl).Err(); err != nil {
		return fmt.Errorf("redis_reset_token_set_failed: %w", err)
	}

	// Record the hash in the owner index with the same TTL
	if err := repository.client.SAdd(context, ownerKey, tokenHash).Err(); err != nil {
		return fmt.Errorf("redis_reset_owner_index_failed: %w", err)
	}
	if err := repository.client.Expire(context, ownerKey, ttl).Err(); err != nil {
		return fmt.Errorf("redis_reset_owner_expire_failed: %w", err)
	}

	// Return nil on success
	return nil
}

/*
Get retrieves the identityID for a given token hash.

Description: Returns apperr.NotFound if the token is absent or expired.

Parameters:
  - context: context.Context
  - tokenHash: string

Returns:
  - string: Owning identity ID
  - error: apperr.NotFound or connectivity errors
*/
func (repository *RedisResetTokenRepository) Get(context context.Context, tokenHash string) (string, error) {

	// Use constants for key prefix
	key := constants.RedisPrefixResetToken + tokenHash

	// Get the token from Redis
	identityID, err := repository.client.Get(context, key).Result()

	// Handle errors
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperr.NotFound("Reset token is invalid or expired")
		}
		return "", fmt.Errorf("redis_reset_token_get_failed: %w", err)
	}

	// Return the identityID
	return identityID, nil
}

/*
Delete removes one token hash from Redis.

Parameters:
  - context: context.Context
  - tokenHash: string

Returns:
  - error: Deletion failures
*/
func (repository *RedisResetTokenRepository) Delete(context context.Context, tokenHash string) error {

	// Use constants for key prefix
	key := constants.RedisPrefixResetToken + tokenHash

	// Delete the token from Redis
	if err := repository.client.Del(context, key).Err(); err != nil {
		return fmt.Errorf("redis_reset_token_delete_failed: %w", err)
	}

	// Return nil on success
	return nil
}

/*
DeleteAllFor invalidates every outstanding reset token of an identity.

Description: Walks the owner index and deletes each token key plus the index
itself. A missing index is a no-op.

Parameters:
  - context: context.Context
  - identityID: string

Returns:
  - error: Deletion failures
*/
func (repository *RedisResetTokenRepository) DeleteAllFor(context context.Context, identityID string) error {

	// Use constants for key prefix
	ownerKey := constants.RedisPrefixResetOwner + identityID

	// Collect every outstanding hash for this identity
	hashes, err := repository.client.SMembers(context, ownerKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("redis_reset_owner_members_failed: %w", err)
	}

	// Delete each token key
	for _, hash := range hashes {
		if err := repository.client.Del(context, constants.RedisPrefixResetToken+hash).Err(); err != nil {
			return fmt.Errorf("redis_reset_token_delete_failed: %w", err)
		}
	}

	// Drop the index itself
	if err := repository.client.Del(context, ownerKey).Err(); err != nil {
		return fmt.Errorf("redis_reset_owner_delete_failed: %w", err)
	}

	return nil
}
