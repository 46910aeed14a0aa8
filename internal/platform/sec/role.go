// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

package sec

import (
	"fmt"
	"strings"
)

// # Marketplace Roles

// Role represents one capability set an identity may hold.
type Role string

const (
	// Default role for every self-service registration
	RoleBuyer Role = "buyer"

	// Granted through the supplier verification workflow
	RoleSupplier Role = "supplier"

	// Platform operator, provisioned by a super admin
	RoleAdmin Role = "admin"

	// Root operator, provisioned out-of-band
	RoleSuperAdmin Role = "super_admin"
)

// Valid reports whether r is one of the known marketplace roles.
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleSupplier, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdministrative reports whether r is an operator role.
//
// Administrative roles are exclusive: an identity holding one may hold no
// other role, and cannot switch its active role.
func (r Role) IsAdministrative() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// ParseRole converts a wire string into a [Role].
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if !role.Valid() {
		return "", fmt.Errorf("sec: unknown role %q", s)
	}
	return role, nil
}

// # Role Sets

// RoleSet is the bounded set of roles held by one identity.
//
// The zero value is an empty set. Mutation goes through [RoleSet.Add] and
// [RoleSet.Remove], which enforce the structural invariants:
//
//   - administrative roles are exclusive in both directions;
//   - an activated identity never ends up with an empty set.
//
// The set is ordered by insertion so the Postgres text[] representation and
// the JSON projection are stable.
type RoleSet struct {
	roles []Role
}

// NewRoleSet builds a set from the given roles, applying the same invariants
// as incremental [RoleSet.Add] calls.
func NewRoleSet(roles ...Role) (RoleSet, error) {
	var set RoleSet
	for _, role := range roles {
		if err := set.Add(role); err != nil {
			return RoleSet{}, err
		}
	}
	return set, nil
}

// Has reports whether the set contains role.
func (s RoleSet) Has(role Role) bool {
	for _, held := range s.roles {
		if held == role {
			return true
		}
	}
	return false
}

// HasAdministrative reports whether the set contains an operator role.
func (s RoleSet) HasAdministrative() bool {
	return s.Has(RoleAdmin) || s.Has(RoleSuperAdmin)
}

// Len returns the number of roles held.
func (s RoleSet) Len() int { return len(s.roles) }

// Slice returns a copy of the held roles in insertion order.
func (s RoleSet) Slice() []Role {
	out := make([]Role, len(s.roles))
	copy(out, s.roles)
	return out
}

// Strings returns the held roles as plain strings, for storage and claims.
func (s RoleSet) Strings() []string {
	out := make([]string, len(s.roles))
	for i, role := range s.roles {
		out[i] = string(role)
	}
	return out
}

// Single returns the only role in the set, or false when the set does not
// hold exactly one role. Used by login flows to auto-select the active role.
func (s RoleSet) Single() (Role, bool) {
	if len(s.roles) != 1 {
		return "", false
	}
	return s.roles[0], true
}

// Add inserts role into the set.
//
// Adding a role the set already holds is a no-op. Adding an administrative
// role to a non-empty set, or any role to a set holding an administrative
// role, fails: operator accounts are structurally single-role.
func (s *RoleSet) Add(role Role) error {
	if !role.Valid() {
		return fmt.Errorf("sec: unknown role %q", role)
	}
	if s.Has(role) {
		return nil
	}
	if role.IsAdministrative() && len(s.roles) > 0 {
		return fmt.Errorf("sec: %s is exclusive and cannot join %v", role, s.roles)
	}
	if s.HasAdministrative() {
		return fmt.Errorf("sec: identity holds an administrative role and cannot gain %s", role)
	}
	s.roles = append(s.roles, role)
	return nil
}

// Remove deletes role from the set.
//
// Removing the last role fails: an activated identity must always hold at
// least one role. Removing a role that is not held is a no-op.
func (s *RoleSet) Remove(role Role) error {
	if !s.Has(role) {
		return nil
	}
	if len(s.roles) == 1 {
		return fmt.Errorf("sec: cannot remove %s, it is the identity's last role", role)
	}
	kept := s.roles[:0]
	for _, held := range s.roles {
		if held != role {
			kept = append(kept, held)
		}
	}
	s.roles = kept
	return nil
}

// RoleSetFromStrings rebuilds a set from a storage representation.
//
// Rows written before the exclusivity rules were enforced at the store layer
// are rejected here rather than silently repaired.
func RoleSetFromStrings(raw []string) (RoleSet, error) {
	roles := make([]Role, 0, len(raw))
	for _, s := range raw {
		role, err := ParseRole(s)
		if err != nil {
			return RoleSet{}, err
		}
		roles = append(roles, role)
	}
	return NewRoleSet(roles...)
}
