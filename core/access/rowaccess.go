// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package access

import (
	"fmt"
	"strings"

	"github.com/relabs-tech/tabular/core"
	"github.com/relabs-tech/tabular/core/schema"
)

// GrantedState is the row-level visibility state stored in the "granted"
// column
type GrantedState string

// the granted state machine: draft rows are owner-only, shared rows follow
// the table-level role grants, published rows are visible to the published
// role and every role inheriting from it
const (
	GrantedDraft     GrantedState = "draft"
	GrantedShared    GrantedState = "shared"
	GrantedPublished GrantedState = "published"
)

const publishedPrefix = "published @"

// ParseGranted parses the stored granted value. A missing or empty value
// counts as draft. For published rows the target role is returned as well.
func ParseGranted(value interface{}) (GrantedState, string) {
	s, _ := value.(string)
	switch {
	case s == "" || s == string(GrantedDraft):
		return GrantedDraft, ""
	case s == string(GrantedShared):
		return GrantedShared, ""
	case strings.HasPrefix(s, publishedPrefix):
		return GrantedPublished, strings.TrimSpace(strings.TrimPrefix(s, publishedPrefix))
	}
	// unknown state, treat as draft so nothing leaks
	return GrantedDraft, ""
}

// sameIdentity compares a stored owner id with the requesting user's id.
// Storage drivers scan ids as string, int64 or float64 depending on the
// column type, so both sides are normalized to their string form.
func sameIdentity(stored interface{}, userID string) bool {
	if stored == nil || userID == "" {
		return false
	}
	return fmt.Sprint(stored) == userID
}

// CanAccessRow decides row-level visibility:
//
//   - draft (or missing granted value): accessible only for the owner
//   - shared: accessible if the role set has table-level read access
//   - published @<role>: accessible if the set contains <role> or any role
//     that transitively inherits from <role>
//
// Row-level denial is a filtering outcome, not an error.
func CanAccessRow(registry *schema.Registry, set RoleSet, table *schema.Table, row map[string]interface{}, userID string) bool {
	state, publishedTo := ParseGranted(row["granted"])
	switch state {
	case GrantedDraft:
		return sameIdentity(row["owner_id"], userID)
	case GrantedShared:
		return CanReadTable(set, table)
	case GrantedPublished:
		if set.Has(publishedTo) {
			return true
		}
		for role := range set {
			if Inherits(registry, role, publishedTo) {
				return true
			}
		}
	}
	return false
}

// system fields survive field filtering unconditionally
func isSystemField(name string) bool {
	return name == "id" || name == "granted" || name == "owner_id" ||
		strings.HasPrefix(name, "_")
}

// isCredentialField flags fields which hold credentials by naming
// convention. Such fields are never exposed, regardless of grant
// configuration.
func isCredentialField(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "password") ||
		strings.Contains(lower, "secret") ||
		strings.HasSuffix(lower, "_token") ||
		strings.HasSuffix(lower, "_hash")
}

// FilterFields returns a copy of the row retaining only fields without a
// grant restriction and fields whose grant permits read for some role in the
// set. The id and the row-level metadata always survive, credential fields
// never do. Filtering is idempotent.
func FilterFields(set RoleSet, table *schema.Table, row map[string]interface{}) map[string]interface{} {
	filtered := make(map[string]interface{}, len(row))
	for name, value := range row {
		if isCredentialField(name) {
			continue
		}
		if isSystemField(name) {
			filtered[name] = value
			continue
		}
		field, declared := table.Fields[name]
		if declared && len(field.Grant) > 0 &&
			!HasCapability(set, field.Grant, core.CapabilityRead) {
			continue
		}
		filtered[name] = value
	}
	return filtered
}
