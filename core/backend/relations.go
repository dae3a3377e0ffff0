// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"github.com/relabs-tech/tabular/core/access"
	"github.com/relabs-tech/tabular/core/logger"
	"github.com/relabs-tech/tabular/core/schema"
)

// relation types
const (
	ManyToOne = "many-to-one"
	OneToMany = "one-to-many"
)

// RelationInfo describes a single relation of a table, either an outgoing
// many-to-one relation derived from a field with a relation target, or an
// incoming one-to-many relation synthesized from another table's field
// pointing back at this table.
type RelationInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
	// Table is the related table: the target for many-to-one, the source
	// for one-to-many
	Table string `json:"table"`
	// Field is the relation field on the owning table for many-to-one,
	// on the source table for one-to-many
	Field string `json:"field"`
	// ForeignKey is the column holding the related id, on the owning table
	// for many-to-one and on the source table for one-to-many
	ForeignKey           string                      `json:"foreign_key"`
	RelationshipStrength schema.RelationshipStrength `json:"relationship_strength,omitempty"`
	DefaultSort          []schema.SortKey            `json:"default_sort,omitempty"`
}

// tableRelations is the resolved relation graph of a single table, filtered
// to the relations the current role set may read
type tableRelations struct {
	ManyToOne map[string]RelationInfo
	OneToMany map[string]RelationInfo
}

// queryContext carries the request-scoped state of a single service call:
// the resolved role set, the requesting user and the relation graph cache.
// The graph derivation scans all tables of the schema, caching it per
// request keeps that an O(tables x fields) cost per table, not per row.
type queryContext struct {
	set       access.RoleSet
	userID    string
	relations map[string]tableRelations
}

func (b *Backend) newQueryContext(auth *access.Authorization) *queryContext {
	qc := &queryContext{
		set:       access.ResolveRoles(b.registry, auth),
		relations: map[string]tableRelations{},
	}
	if auth != nil {
		qc.userID = auth.UserID
	}
	return qc
}

// tableRelations derives the relation graph for the named table. Outgoing
// many-to-one relations come from the table's own fields, incoming
// one-to-many relations from a scan over all other tables. Relations whose
// related table the role set cannot read are left out entirely, their names
// do not even appear in the graph.
func (b *Backend) tableRelations(qc *queryContext, tableName string) tableRelations {
	if cached, ok := qc.relations[tableName]; ok {
		return cached
	}

	rels := tableRelations{
		ManyToOne: map[string]RelationInfo{},
		OneToMany: map[string]RelationInfo{},
	}
	table, ok := b.registry.Table(tableName)
	if !ok {
		qc.relations[tableName] = rels
		return rels
	}

	for name, field := range table.Fields {
		if field.Relation == "" {
			continue
		}
		target, ok := b.registry.Table(field.Relation)
		if !ok || !access.CanReadTable(qc.set, target) {
			continue
		}
		rels.ManyToOne[name] = RelationInfo{
			Name:                 name,
			Type:                 ManyToOne,
			Table:                field.Relation,
			Field:                name,
			ForeignKey:           table.ForeignKeyOf(name),
			RelationshipStrength: field.RelationshipStrength,
			DefaultSort:          field.DefaultSort,
		}
	}

	for i := range b.registry.Tables {
		source := &b.registry.Tables[i]
		if source.Name == tableName {
			continue
		}
		for fieldName, field := range source.Fields {
			if field.Relation != tableName {
				continue
			}
			if !access.CanReadTable(qc.set, source) {
				continue
			}
			// without an explicit array name the relation is named after
			// the table it points at
			name := field.ArrayName
			if name == "" {
				name = field.Relation
			}
			if _, collision := rels.OneToMany[name]; collision {
				// last declaration wins, flag it instead of silently overwriting
				logger.Default().Warnf("one-to-many relation name collision '%s' on table '%s', keeping %s.%s",
					name, tableName, source.Name, fieldName)
			}
			rels.OneToMany[name] = RelationInfo{
				Name:                 name,
				Type:                 OneToMany,
				Table:                source.Name,
				Field:                fieldName,
				ForeignKey:           source.ForeignKeyOf(fieldName),
				RelationshipStrength: field.RelationshipStrength,
				DefaultSort:          field.DefaultSort,
			}
		}
	}

	// explicitly declared relations override the derived graph
	for name, declared := range table.Relations {
		if !declared.Accessible {
			delete(rels.ManyToOne, name)
			delete(rels.OneToMany, name)
			continue
		}
		related, ok := b.registry.Table(declared.RelatedTable)
		if !ok || !access.CanReadTable(qc.set, related) {
			continue
		}
		info := RelationInfo{
			Name:                 name,
			Type:                 declared.Type,
			Table:                declared.RelatedTable,
			Field:                declared.RelatedField,
			ForeignKey:           declared.ForeignKey,
			RelationshipStrength: declared.RelationshipStrength,
			DefaultSort:          declared.DefaultSort,
		}
		switch declared.Type {
		case ManyToOne:
			if info.ForeignKey == "" {
				info.ForeignKey = name
			}
			rels.ManyToOne[name] = info
		case OneToMany:
			if info.ForeignKey == "" && info.Field != "" {
				info.ForeignKey = related.ForeignKeyOf(info.Field)
			}
			rels.OneToMany[name] = info
		}
	}

	qc.relations[tableName] = rels
	return rels
}

// relationNames returns the default relation selection for a table: every
// many-to-one relation plus the one-to-many relations declared Strong.
// With all set, every relation is selected.
func (r tableRelations) relationNames(all bool) []string {
	var names []string
	for name := range r.ManyToOne {
		names = append(names, name)
	}
	for name, info := range r.OneToMany {
		if all || info.RelationshipStrength == schema.Strong {
			names = append(names, name)
		}
	}
	return names
}
