// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

/*
Package identitytest provides an in-memory [identity.IdentityRepository] for
service-level tests across the identity, auth, verification, and admin
packages.

The fake honors the same semantics as the Postgres implementation: unique
email/phone/admin code, idempotent role appends, the last-role guard, and the
atomic failed-attempt increment.
*/
package identitytest

import (
	"context"
	"sync"
	"time"

	"github.com/procuramarket/procura/internal/identity"
	"github.com/procuramarket/procura/internal/platform/apperr"
	"github.com/procuramarket/procura/internal/platform/sec"
)

// FakeRepository is a map-backed IdentityRepository.
type FakeRepository struct {
	mu         sync.Mutex
	identities map[string]*identity.Identity
}

// NewFakeRepository creates an empty fake repository.
func NewFakeRepository() *FakeRepository {
	return &FakeRepository{identities: make(map[string]*identity.Identity)}
}

// Seed inserts an identity directly, bypassing uniqueness checks.
func (f *FakeRepository) Seed(record *identity.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *record
	f.identities[record.ID] = &clone
}

func (f *FakeRepository) Create(_ context.Context, record *identity.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.identities {
		if existing.Email == record.Email ||
			(record.Phone != "" && existing.Phone == record.Phone) ||
			(record.AdminID != "" && existing.AdminID == record.AdminID) {
			return apperr.Conflict("An account with this email or phone already exists").
				WithCode(apperr.CodeUserAlreadyExists)
		}
	}

	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	clone := *record
	f.identities[record.ID] = &clone
	return nil
}

func (f *FakeRepository) FindByID(_ context.Context, id string) (*identity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookup(func(record *identity.Identity) bool { return record.ID == id })
}

func (f *FakeRepository) FindByEmail(_ context.Context, email string) (*identity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookup(func(record *identity.Identity) bool { return record.Email == email })
}

func (f *FakeRepository) FindByPhone(_ context.Context, phone string) (*identity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookup(func(record *identity.Identity) bool { return record.Phone != "" && record.Phone == phone })
}

func (f *FakeRepository) FindByEmailOrPhone(_ context.Context, identifier string) (*identity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookup(func(record *identity.Identity) bool {
		return record.Email == identifier || (record.Phone != "" && record.Phone == identifier)
	})
}

func (f *FakeRepository) FindByAdminID(_ context.Context, adminID string) (*identity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookup(func(record *identity.Identity) bool { return record.AdminID != "" && record.AdminID == adminID })
}

func (f *FakeRepository) ListAdministrators(_ context.Context) ([]*identity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var admins []*identity.Identity
	for _, record := range f.identities {
		if record.Roles.HasAdministrative() {
			clone := *record
			admins = append(admins, &clone)
		}
	}
	return admins, nil
}

func (f *FakeRepository) AddRole(_ context.Context, id string, role sec.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.identities[id]
	if !ok {
		return apperr.NotFound("Account")
	}
	if err := record.Roles.Add(role); err != nil {
		return apperr.Conflict("Administrative roles are exclusive").
			WithCode(apperr.CodeAdminExclusive)
	}
	return nil
}

func (f *FakeRepository) RemoveRole(_ context.Context, id string, role sec.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.identities[id]
	if !ok {
		return apperr.NotFound("Account")
	}
	if err := record.Roles.Remove(role); err != nil {
		return apperr.Conflict("Cannot remove the account's last role").
			WithCode(apperr.CodeLastRole)
	}
	return nil
}

func (f *FakeRepository) SetActiveRole(_ context.Context, id string, role sec.Role) error {
	return f.mutate(id, func(record *identity.Identity) {
		record.ActiveRole = &role
	})
}

func (f *FakeRepository) MarkVerified(_ context.Context, id string) error {
	return f.mutate(id, func(record *identity.Identity) {
		record.IsVerified = true
	})
}

func (f *FakeRepository) SetActive(_ context.Context, id string, active bool) error {
	return f.mutate(id, func(record *identity.Identity) {
		record.IsActive = active
	})
}

func (f *FakeRepository) SetOTP(_ context.Context, id string, code string, expiresAt time.Time) error {
	return f.mutate(id, func(record *identity.Identity) {
		record.OTPCode = code
		record.OTPExpiresAt = &expiresAt
	})
}

func (f *FakeRepository) ClearOTP(_ context.Context, id string) error {
	return f.mutate(id, func(record *identity.Identity) {
		record.OTPCode = ""
		record.OTPExpiresAt = nil
	})
}

func (f *FakeRepository) UpdatePassword(_ context.Context, id string, newHash string, stampLastChange bool) error {
	return f.mutate(id, func(record *identity.Identity) {
		record.PasswordHash = newHash
		if stampLastChange {
			now := time.Now()
			record.LastPasswordChange = &now
		}
	})
}

func (f *FakeRepository) RecordFailedAttempt(_ context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.identities[id]
	if !ok {
		return 0, nil, apperr.NotFound("Account")
	}

	record.FailedAttempts++
	if record.FailedAttempts >= threshold {
		record.LockedUntil = &lockUntil
	}
	return record.FailedAttempts, record.LockedUntil, nil
}

func (f *FakeRepository) ResetFailedAttempts(_ context.Context, id string) error {
	return f.mutate(id, func(record *identity.Identity) {
		record.FailedAttempts = 0
		record.LockedUntil = nil
	})
}

func (f *FakeRepository) RotateAdminCredentials(_ context.Context, id string, newHash string, expiresAt time.Time) error {
	return f.mutate(id, func(record *identity.Identity) {
		record.PasswordHash = newHash
		record.IsFirstLogin = true
		record.CredentialsExpireAt = &expiresAt
		record.FailedAttempts = 0
		record.LockedUntil = nil
	})
}

func (f *FakeRepository) ClearFirstLogin(_ context.Context, id string) error {
	return f.mutate(id, func(record *identity.Identity) {
		record.IsFirstLogin = false
		record.CredentialsExpireAt = nil
	})
}

func (f *FakeRepository) lookup(match func(*identity.Identity) bool) (*identity.Identity, error) {
	for _, record := range f.identities {
		if match(record) {
			clone := *record
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("Account")
}

func (f *FakeRepository) mutate(id string, apply func(*identity.Identity)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.identities[id]
	if !ok {
		return apperr.NotFound("Account")
	}
	apply(record)
	record.UpdatedAt = time.Now()
	return nil
}
