// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package identity

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/procuramarket/procura/internal/platform/apperr"
	"github.com/procuramarket/procura/internal/platform/constants"
	"github.com/procuramarket/procura/internal/platform/sec"
)

// # Verification State Projection

// Policy-relevant states of a supplier application. The verification domain
// reports its records through this vocabulary; the policy never sees the
// full workflow record.
const (
	StateNone        = ""
	StateDraft       = "draft"
	StatePending     = "pending"
	StateUnderReview = "under_review"
	StateVerified    = "verified"
	StateRejected    = "rejected"
)

// VerificationState is the projection of an identity's most recent supplier
// application that role decisions are made against.
type VerificationState struct {
	Status     string
	ReviewedAt *time.Time
}

// StatusReader reports the verification state of an identity.
//
// # Why an interface?
//
// The policy asks one question of the verification workflow without importing
// it, keeping the dependency arrow pointing from verification into identity.
type StatusReader interface {

	/*
		LatestState returns the newest supplier application state for the
		identity, or a zero [VerificationState] when none exists.

		Parameters:
		  - context: context.Context
		  - identityID: string

		Returns:
		  - VerificationState: Status plus terminal-decision timestamp
		  - error: Retrieval failures
	*/
	LatestState(context context.Context, identityID string) (VerificationState, error)
}

// # Role Lifecycle Policy

// Decision is the outcome of a role acquisition check.
type Decision struct {
	Allowed bool `json:"allowed"`

	// Code is the stable denial code, empty when Allowed.
	Code string `json:"code,omitempty"`

	// DaysRemaining carries the cooldown hint for COOLDOWN_ACTIVE denials.
	DaysRemaining int `json:"days_remaining,omitempty"`
}

// Access describes whether an identity can currently operate as a supplier.
type Access struct {
	HasRole    bool   `json:"has_role"`
	IsVerified bool   `json:"is_verified"`
	Status     string `json:"status,omitempty"`
}

// Policy answers role lifecycle questions for the marketplace.
//
// It is the single place where the supplier acquisition rules, the cooldown
// window, and the admin exclusivity gate are expressed. Session flows and
// the verification workflow both consult it rather than re-deriving rules.
type Policy struct {
	identityRepository IdentityRepository
	statusReader       StatusReader
	now                func() time.Time
}

// NewPolicy constructs a [Policy] with its dependencies.
func NewPolicy(identityRepo IdentityRepository, statusReader StatusReader) *Policy {
	return &Policy{
		identityRepository: identityRepo,
		statusReader:       statusReader,
		now:                time.Now,
	}
}

/*
CanRequestSupplierRole decides whether the identity may open (or submit) a
supplier application right now.

Description: Administrative accounts are categorically denied. Otherwise the
decision keys off the newest application: a non-terminal record blocks a new
one, a verified record makes reapplication pointless, and a rejection inside
the cooldown window blocks with a days-remaining hint.

Parameters:
  - context: context.Context
  - identityID: string

Returns:
  - Decision: Allowed, or the stable denial code
  - error: Retrieval failures
*/
func (policy *Policy) CanRequestSupplierRole(context context.Context, identityID string) (Decision, error) {

	// Load the identity to apply the structural gates first
	identity, err := policy.identityRepository.FindByID(context, identityID)
	if err != nil {
		return Decision{}, err
	}

	// Operator accounts never acquire marketplace roles
	if identity.Roles.HasAdministrative() {
		return Decision{Code: apperr.CodeAdminExclusive}, nil
	}

	// Key the decision off the newest application
	state, err := policy.statusReader.LatestState(context, identityID)
	if err != nil {
		return Decision{}, fmt.Errorf("identity_policy_state_lookup_failed: %w", err)
	}

	switch state.Status {
	case StatePending:
		return Decision{Code: apperr.CodeRequestPending}, nil

	case StateUnderReview:
		return Decision{Code: apperr.CodeUnderReview}, nil

	case StateVerified:
		return Decision{Code: apperr.CodeAlreadyVerified}, nil

	case StateRejected:
		// Lazy cooldown evaluation: compare the rejection timestamp against
		// the window, no background job involved.
		if state.ReviewedAt != nil {
			elapsed := policy.now().Sub(*state.ReviewedAt)
			if elapsed < constants.RejectionCooldown {
				remaining := constants.RejectionCooldown - elapsed
				days := int(math.Ceil(remaining.Hours() / 24))
				return Decision{Code: apperr.CodeCooldownActive, DaysRemaining: days}, nil
			}
		}
		return Decision{Allowed: true}, nil

	default:
		// No application, or only a draft: free to proceed
		return Decision{Allowed: true}, nil
	}
}

/*
CanAccessSupplierRole reports whether the identity can operate as a supplier.

Description: Holding the role is not enough; the newest application must be
verified. The Status field lets clients render the precise blocking state.

Parameters:
  - context: context.Context
  - identityID: string

Returns:
  - Access: Role membership, verification outcome, and raw status
  - error: Retrieval failures
*/
func (policy *Policy) CanAccessSupplierRole(context context.Context, identityID string) (Access, error) {
	identity, err := policy.identityRepository.FindByID(context, identityID)
	if err != nil {
		return Access{}, err
	}

	state, err := policy.statusReader.LatestState(context, identityID)
	if err != nil {
		return Access{}, fmt.Errorf("identity_policy_state_lookup_failed: %w", err)
	}

	return Access{
		HasRole:    identity.Roles.Has(sec.RoleSupplier),
		IsVerified: state.Status == StateVerified,
		Status:     state.Status,
	}, nil
}

/*
CanSwitchTo decides whether a session may start operating as the given role.

Description: Administrative accounts never switch. The target must be held,
and the supplier role is re-verified against the live workflow state at
switch time, so a revoked or still-pending verification blocks immediately
rather than at the following login.

Parameters:
  - context: context.Context
  - identity: *Identity
  - role: sec.Role

Returns:
  - error: nil when allowed, otherwise the coded [apperr.AppError]
*/
func (policy *Policy) CanSwitchTo(context context.Context, identity *Identity, role sec.Role) error {

	// Operator sessions are pinned to their single role
	if identity.Roles.HasAdministrative() {
		return apperr.Forbidden("Administrator accounts cannot switch roles").
			WithCode(apperr.CodeAdminExclusive)
	}

	if !identity.Roles.Has(role) {
		return apperr.Forbidden("You do not hold the requested role").
			WithCode(apperr.CodeRoleNotHeld)
	}

	if role != sec.RoleSupplier {
		return nil
	}

	// Supplier access is re-checked against the live verification state
	state, err := policy.statusReader.LatestState(context, identity.ID)
	if err != nil {
		return fmt.Errorf("identity_policy_state_lookup_failed: %w", err)
	}

	switch state.Status {
	case StateVerified:
		return nil
	case StatePending:
		return apperr.Forbidden("Your supplier application is awaiting review").
			WithCode(apperr.CodeSupplierNotVerified)
	case StateUnderReview:
		return apperr.Forbidden("Your supplier application is under review").
			WithCode(apperr.CodeSupplierNotVerified)
	case StateRejected:
		return apperr.Forbidden("Your supplier application was rejected").
			WithCode(apperr.CodeSupplierNotVerified)
	default:
		return apperr.Forbidden("Supplier verification has not been completed").
			WithCode(apperr.CodeSupplierNotVerified)
	}
}
