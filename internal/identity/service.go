// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package identity

import (
	"context"
	"strings"

	"github.com/procuramarket/procura/internal/platform/apperr"
	"github.com/procuramarket/procura/internal/platform/sec"
)

// # Service

// Service implements identity management use cases.
//
// It wraps the repository with [sec.RoleSet] invariant enforcement so no
// caller can mutate a role array into an illegal shape, and exposes the
// operator-only force-grant escape hatch.
type Service struct {
	identityRepository IdentityRepository
	policy             *Policy
}

// NewService constructs a new identity [Service] with its dependencies.
func NewService(identityRepo IdentityRepository, policy *Policy) *Service {
	return &Service{
		identityRepository: identityRepo,
		policy:             policy,
	}
}

/*
Get returns the identity with the given ID.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *Identity: Hydrated entity
  - error: apperr.NotFound or retrieval failures
*/
func (service *Service) Get(context context.Context, id string) (*Identity, error) {
	return service.identityRepository.FindByID(context, id)
}

/*
GrantRole force-grants a role to an identity, bypassing the normal
acquisition flow. Operator-only.

Description: The RoleSet invariants still hold: administrative roles remain
exclusive in both directions, and granting an already-held role is a no-op.
Granting supplier this way records the role without verifying it; supplier
access continues to key off the verification workflow state.

Parameters:
  - context: context.Context
  - id: string
  - role: sec.Role

Returns:
  - *Identity: The identity after the grant
  - error: apperr (ADMIN_EXCLUSIVE) or persistence failures
*/
func (service *Service) GrantRole(context context.Context, id string, role sec.Role) (*Identity, error) {
	identity, err := service.identityRepository.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	// Dry-run the mutation to surface invariant violations before touching storage
	held := identity.Roles
	if err := held.Add(role); err != nil {
		return nil, apperr.Conflict("Administrative roles are exclusive").
			WithCode(apperr.CodeAdminExclusive)
	}

	if err := service.identityRepository.AddRole(context, id, role); err != nil {
		return nil, err
	}

	identity.Roles = held
	return identity, nil
}

/*
RevokeRole removes a role from an identity. Operator-only.

Parameters:
  - context: context.Context
  - id: string
  - role: sec.Role

Returns:
  - *Identity: The identity after the removal
  - error: apperr (LAST_ROLE) or persistence failures
*/
func (service *Service) RevokeRole(context context.Context, id string, role sec.Role) (*Identity, error) {
	identity, err := service.identityRepository.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	held := identity.Roles
	if err := held.Remove(role); err != nil {
		return nil, apperr.Conflict("Cannot remove the account's last role").
			WithCode(apperr.CodeLastRole)
	}

	if err := service.identityRepository.RemoveRole(context, id, role); err != nil {
		return nil, err
	}

	// An identity can never keep operating as a role it no longer holds
	if identity.ActiveRole != nil && *identity.ActiveRole == role {
		if fallback, ok := held.Single(); ok {
			if err := service.identityRepository.SetActiveRole(context, id, fallback); err != nil {
				return nil, err
			}
			identity.ActiveRole = &fallback
		}
	}

	identity.Roles = held
	return identity, nil
}

/*
SetActive deactivates or reinstates an identity. Operator-only.

Parameters:
  - context: context.Context
  - id: string
  - active: bool

Returns:
  - error: Persistence failures
*/
func (service *Service) SetActive(context context.Context, id string, active bool) error {
	if _, err := service.identityRepository.FindByID(context, id); err != nil {
		return err
	}
	return service.identityRepository.SetActive(context, id, active)
}

/*
SupplierAccess reports whether the identity can operate as a supplier.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - Access: Role membership plus live verification outcome
  - error: Retrieval failures
*/
func (service *Service) SupplierAccess(context context.Context, id string) (Access, error) {
	return service.policy.CanAccessSupplierRole(context, id)
}

/*
SupplierRequestDecision reports whether the identity may open a supplier
application right now.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - Decision: Allowed, or the stable denial code with cooldown hint
  - error: Retrieval failures
*/
func (service *Service) SupplierRequestDecision(context context.Context, id string) (Decision, error) {
	return service.policy.CanRequestSupplierRole(context, id)
}

// NormalizeIdentifier lowercases and trims a login identifier so email
// lookups are case-insensitive without a functional index.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
