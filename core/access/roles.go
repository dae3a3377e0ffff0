// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package access

import (
	"github.com/relabs-tech/tabular/core"
	"github.com/relabs-tech/tabular/core/schema"
)

// RoleSet is the fully expanded set of roles a request acts with
type RoleSet map[string]bool

// Has returns true if the set contains the role
func (s RoleSet) Has(role string) bool {
	return s[role]
}

// ResolveRoles expands the declared roles of an authorization into the full
// inherited role set by transitively following each role's inherits list.
// The implicit "public" baseline is always part of the result, also for
// anonymous requests with a nil authorization.
//
// Unknown role names grant nothing but are kept in the set, they simply have
// no inheritance to follow. The expansion tracks visited roles and therefore
// terminates even if a malformed schema contains an inheritance cycle.
func ResolveRoles(registry *schema.Registry, auth *Authorization) RoleSet {
	set := RoleSet{"public": true}

	var expand func(role string)
	expand = func(role string) {
		if set[role] {
			return
		}
		set[role] = true
		def, ok := registry.Roles[role]
		if !ok {
			return
		}
		for _, inherited := range def.Inherits {
			expand(inherited)
		}
	}

	for _, role := range auth.DeclaredRoles() {
		expand(role)
	}
	return set
}

// Inherits returns true if role is ancestor, or transitively inherits from
// ancestor. A visited set guards against malformed inheritance cycles.
func Inherits(registry *schema.Registry, role, ancestor string) bool {
	if role == ancestor {
		return true
	}
	visited := map[string]bool{}
	var walk func(role string) bool
	walk = func(role string) bool {
		if role == ancestor {
			return true
		}
		if visited[role] {
			return false
		}
		visited[role] = true
		def, ok := registry.Roles[role]
		if !ok {
			return false
		}
		for _, inherited := range def.Inherits {
			if walk(inherited) {
				return true
			}
		}
		return false
	}
	return walk(role)
}

// HasCapability returns true if any role in the set appears as a key in the
// grant map with the capability in its capability list. Table-level grants
// and field-level grants use the same check.
func HasCapability(set RoleSet, grant schema.Grant, capability core.Capability) bool {
	for role, capabilities := range grant {
		if !set.Has(role) {
			continue
		}
		for _, c := range capabilities {
			if c == capability {
				return true
			}
		}
	}
	return false
}

// CanReadTable decides table-level read access. A table without any grant,
// neither on table- nor on field-level, is open for read. A table-level
// grant restricts to the listed roles. A table without a table-level grant
// but with field grants is readable if at least one field grant permits read,
// field filtering then reduces the row to those fields.
func CanReadTable(set RoleSet, table *schema.Table) bool {
	if len(table.Grant) > 0 {
		return HasCapability(set, table.Grant, core.CapabilityRead)
	}
	if !table.HasFieldGrants() {
		return true
	}
	for _, field := range table.Fields {
		if len(field.Grant) == 0 {
			continue
		}
		if HasCapability(set, field.Grant, core.CapabilityRead) {
			return true
		}
	}
	return false
}

// HasTableCapability decides a non-read capability on table level. Unlike
// read there is no open default, mutations always require an explicit grant.
func HasTableCapability(set RoleSet, table *schema.Table, capability core.Capability) bool {
	return HasCapability(set, table.Grant, capability)
}
