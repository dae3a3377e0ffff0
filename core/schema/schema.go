// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*Package schema provides the declarative table schema registry.

The registry describes tables with their fields, relations, role grants and
display configuration. It is loaded once at process start from a JSON
configuration and is immutable during request handling.
*/
package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/tabular/core"
)

// RelationshipStrength declares whether a one-to-many relation is loaded by
// default ("Strong") or only on explicit request ("Weak")
type RelationshipStrength string

// supported relationship strengths
const (
	Strong RelationshipStrength = "Strong"
	Weak   RelationshipStrength = "Weak"
)

// Grant maps a role name to the capabilities it holds on a table or field
type Grant map[string][]core.Capability

// SortKey is a single ordering key for relation results
type SortKey struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending"`
}

// Field describes a single table field
type Field struct {
	Type string `json:"type"`
	// Relation is the name of the target table for a many-to-one relation
	Relation string `json:"relation,omitempty"`
	// ForeignKey is the column holding the related row's id. Defaults to
	// the field name itself.
	ForeignKey string `json:"foreign_key,omitempty"`
	// ArrayName is the name exposed for the reverse one-to-many side
	ArrayName            string               `json:"array_name,omitempty"`
	RelationshipStrength RelationshipStrength `json:"relationship_strength,omitempty"`
	Grant                Grant                `json:"grant,omitempty"`
	// Computed marks a calculated field which is never writable
	Computed    bool      `json:"computed,omitempty"`
	DefaultSort []SortKey `json:"default_sort,omitempty"`
	Orderable   bool      `json:"orderable,omitempty"`
}

// Relation is an explicitly declared relation of a table
type Relation struct {
	Type                 string               `json:"type"` // "many-to-one" or "one-to-many"
	RelatedTable         string               `json:"related_table"`
	RelatedField         string               `json:"related_field,omitempty"`
	ForeignKey           string               `json:"foreign_key,omitempty"`
	RelationshipStrength RelationshipStrength `json:"relationship_strength,omitempty"`
	DefaultSort          []SortKey            `json:"default_sort,omitempty"`
	Accessible           bool                 `json:"accessible"`
}

// Calendar declares which fields span a calendar entry
type Calendar struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Table describes a single table
type Table struct {
	Name          string              `json:"name"`
	Description   string              `json:"description,omitempty"`
	Fields        map[string]Field    `json:"fields"`
	FieldOrder    []string            `json:"field_order,omitempty"`
	Relations     map[string]Relation `json:"relations,omitempty"`
	Calendar      *Calendar           `json:"calendar,omitempty"`
	DisplayFields []string            `json:"display_fields,omitempty"`
	// PublishableTo lists the roles a row of this table can be published to
	PublishableTo []string `json:"publishable_to,omitempty"`
	// Grant is the table-level grant. A table without any grant, neither
	// on table- nor on field-level, is readable by all roles.
	Grant Grant `json:"grant,omitempty"`
	// SchemaID optionally references a JSON schema for payload validation
	SchemaID string `json:"schema_id,omitempty"`
}

// Role describes a role and the roles it inherits from
type Role struct {
	Inherits    []string `json:"inherits,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Registry is the complete schema: tables plus the role inheritance graph.
// It is read-only at request time.
type Registry struct {
	Tables []Table         `json:"tables"`
	Roles  map[string]Role `json:"roles"`

	byName      map[string]*Table
	byLowerName map[string]string
}

var identifierRegexp = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// IsValidIdentifier reports whether name is acceptable as a table or field
// identifier. Identifiers from the registry are the only strings ever spliced
// into SQL, values are always parameterized.
func IsValidIdentifier(name string) bool {
	return identifierRegexp.MatchString(name)
}

// MustNew is like New, but panics on a configuration error. Use this during
// service startup where an invalid schema must abort the process.
func MustNew(configJSON string) *Registry {
	r, err := New(configJSON)
	if err != nil {
		panic(err)
	}
	return r
}

// New parses the JSON schema configuration and builds the registry,
// including the precomputed lowercase table-name index.
func New(configJSON string) (*Registry, error) {
	var r Registry
	if err := json.Unmarshal([]byte(configJSON), &r); err != nil {
		return nil, fmt.Errorf("parse error in schema configuration: %w", err)
	}
	if err := r.build(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Registry) build() error {
	r.byName = make(map[string]*Table, len(r.Tables))
	r.byLowerName = make(map[string]string, len(r.Tables))
	if r.Roles == nil {
		r.Roles = map[string]Role{}
	}
	if _, ok := r.Roles["public"]; !ok {
		r.Roles["public"] = Role{Description: "implicit baseline role"}
	}

	for i := range r.Tables {
		t := &r.Tables[i]
		if !IsValidIdentifier(t.Name) {
			return fmt.Errorf("invalid table name '%s'", t.Name)
		}
		if _, ok := r.byName[t.Name]; ok {
			return fmt.Errorf("duplicate table '%s'", t.Name)
		}
		for name, field := range t.Fields {
			if !IsValidIdentifier(name) {
				return fmt.Errorf("invalid field name '%s' in table '%s'", name, t.Name)
			}
			if field.Relation != "" && field.ForeignKey == "" {
				field.ForeignKey = name
				t.Fields[name] = field
			}
		}
		for _, display := range t.DisplayFields {
			if _, ok := t.Fields[display]; !ok {
				return fmt.Errorf("unknown display field '%s' in table '%s'", display, t.Name)
			}
		}
		for _, ordered := range t.FieldOrder {
			if _, ok := t.Fields[ordered]; !ok {
				return fmt.Errorf("unknown field '%s' in field order of table '%s'", ordered, t.Name)
			}
		}
		r.byName[t.Name] = t
		r.byLowerName[strings.ToLower(t.Name)] = t.Name
	}

	// relation targets must exist
	for _, t := range r.Tables {
		for name, field := range t.Fields {
			if field.Relation == "" {
				continue
			}
			if _, ok := r.byName[field.Relation]; !ok {
				return fmt.Errorf("field '%s.%s' relates to unknown table '%s'", t.Name, name, field.Relation)
			}
		}
	}

	// role inheritance must reference known roles
	for name, role := range r.Roles {
		for _, inherited := range role.Inherits {
			if _, ok := r.Roles[inherited]; !ok {
				return fmt.Errorf("role '%s' inherits unknown role '%s'", name, inherited)
			}
		}
	}
	return nil
}

// Table returns the table with the given canonical name
func (r *Registry) Table(name string) (*Table, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Resolve looks up a table name case-insensitively and returns the canonical
// name. The lookup uses an index precomputed at load time.
func (r *Registry) Resolve(name string) (string, bool) {
	canonical, ok := r.byLowerName[strings.ToLower(name)]
	return canonical, ok
}

// HasField reports whether the table declares the given field
func (t *Table) HasField(name string) bool {
	_, ok := t.Fields[name]
	return ok
}

// ForeignKeyOf returns the foreign key column for a relation field
func (t *Table) ForeignKeyOf(fieldName string) string {
	field, ok := t.Fields[fieldName]
	if !ok {
		return ""
	}
	if field.ForeignKey != "" {
		return field.ForeignKey
	}
	return fieldName
}

// HasFieldGrants reports whether any field of the table carries a grant.
// A table with no table-level grant and no field grants at all is fully
// open for read.
func (t *Table) HasFieldGrants() bool {
	for _, field := range t.Fields {
		if len(field.Grant) > 0 {
			return true
		}
	}
	return false
}

// IsPublishableTo reports whether rows of this table may be published to role
func (t *Table) IsPublishableTo(role string) bool {
	for _, r := range t.PublishableTo {
		if r == role {
			return true
		}
	}
	return false
}
