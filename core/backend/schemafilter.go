// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"github.com/relabs-tech/tabular/core"
	"github.com/relabs-tech/tabular/core/access"
	"github.com/relabs-tech/tabular/core/schema"
)

// FilteredField is a field description reduced to what the requesting role
// set may know about it
type FilteredField struct {
	Name      string           `json:"name"`
	Type      string           `json:"type"`
	Relation  string           `json:"relation,omitempty"`
	Computed  bool             `json:"computed,omitempty"`
	Orderable bool             `json:"orderable,omitempty"`
	Writable  bool             `json:"writable"`
	Sort      []schema.SortKey `json:"default_sort,omitempty"`
}

// FilteredTable is the capability-pruned schema description attached to a
// query response for client-side form generation. It contains only fields
// and relations the resolved role set may read.
type FilteredTable struct {
	Name          string                   `json:"name"`
	Plural        string                   `json:"plural"`
	Description   string                   `json:"description,omitempty"`
	Fields        map[string]FilteredField `json:"fields"`
	ManyToOne     map[string]RelationInfo  `json:"many_to_one,omitempty"`
	OneToMany     map[string]RelationInfo  `json:"one_to_many,omitempty"`
	DisplayFields []string                 `json:"display_fields,omitempty"`
	Calendar      *schema.Calendar         `json:"calendar,omitempty"`
	PublishableTo []string                 `json:"publishable_to,omitempty"`
	CanCreate     bool                     `json:"can_create"`
	CanDelete     bool                     `json:"can_delete"`
	CanPublish    bool                     `json:"can_publish"`
}

// BuildFilteredSchema assembles the role-filtered schema description of a
// table. Fields the role set may not read are not part of the result, and
// neither are relations to tables it may not read.
func (b *Backend) BuildFilteredSchema(qc *queryContext, tableName string) *FilteredTable {
	table, ok := b.registry.Table(tableName)
	if !ok {
		return nil
	}

	filtered := &FilteredTable{
		Name:          table.Name,
		Plural:        core.Plural(table.Name),
		Description:   table.Description,
		Fields:        map[string]FilteredField{},
		DisplayFields: table.DisplayFields,
		Calendar:      table.Calendar,
		CanCreate:     access.HasTableCapability(qc.set, table, core.CapabilityCreate),
		CanDelete:     access.HasTableCapability(qc.set, table, core.CapabilityDelete),
		CanPublish:    access.HasTableCapability(qc.set, table, core.CapabilityPublish),
	}
	if filtered.CanPublish {
		filtered.PublishableTo = table.PublishableTo
	}

	canUpdateTable := access.HasTableCapability(qc.set, table, core.CapabilityUpdate)
	for name, field := range table.Fields {
		if len(field.Grant) > 0 && !access.HasCapability(qc.set, field.Grant, core.CapabilityRead) {
			continue
		}
		writable := canUpdateTable
		if len(field.Grant) > 0 {
			writable = access.HasCapability(qc.set, field.Grant, core.CapabilityUpdate)
		}
		if field.Computed {
			writable = false
		}
		filtered.Fields[name] = FilteredField{
			Name:      name,
			Type:      field.Type,
			Relation:  field.Relation,
			Computed:  field.Computed,
			Orderable: field.Orderable,
			Writable:  writable,
			Sort:      field.DefaultSort,
		}
	}

	rels := b.tableRelations(qc, tableName)
	if len(rels.ManyToOne) > 0 {
		filtered.ManyToOne = rels.ManyToOne
	}
	if len(rels.OneToMany) > 0 {
		filtered.OneToMany = rels.OneToMany
	}
	return filtered
}
