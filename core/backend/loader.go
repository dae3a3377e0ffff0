// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"context"

	"github.com/relabs-tech/tabular/core/access"
)

// Omission names the reason a requested relation is absent from the loaded
// relation map. Silent omission is the deliberate idiom for partial
// visibility, the reason is kept so callers and tests can tell the cases
// apart.
type Omission string

// omission reasons
const (
	// OmittedMissing: the foreign key was null or the related row does not exist
	OmittedMissing Omission = "missing"
	// OmittedDenied: related data exists but the role set may not see any of it
	OmittedDenied Omission = "denied"
	// OmittedEmpty: a one-to-many relation matched no rows at all
	OmittedEmpty Omission = "empty"
)

// loadRelationsForRow loads the requested relations for a single row.
//
// Many-to-one relations resolve to a single related row, never an array.
// One-to-many relations resolve to the access-filtered list of related rows
// in the relation's declared default sort order; an empty result omits the
// relation key entirely. Every related row is field-filtered and tagged with
// its origin table under "_table".
//
// With expandSecondLevel, each surviving one-to-many row additionally gets
// its own many-to-one relations attached under "_relations", except
// relations pointing back at the original table. The expansion is bounded to
// exactly this one extra level no matter what is requested.
func (b *Backend) loadRelationsForRow(ctx context.Context, qc *queryContext, tableName string,
	row Row, requested []string, expandSecondLevel, compact bool) (map[string]interface{}, map[string]Omission, error) {

	rels := b.tableRelations(qc, tableName)
	loaded := map[string]interface{}{}
	omitted := map[string]Omission{}

	for _, name := range requested {
		if info, ok := rels.ManyToOne[name]; ok {
			related, omission, err := b.loadManyToOne(ctx, qc, info, row, compact)
			if err != nil {
				return nil, nil, err
			}
			if related == nil {
				omitted[name] = omission
				continue
			}
			loaded[name] = related
			continue
		}

		info, ok := rels.OneToMany[name]
		if !ok {
			// not a relation the role set may see, or not a relation at all
			omitted[name] = OmittedDenied
			continue
		}
		related, omission, err := b.loadOneToMany(ctx, qc, tableName, info, row, expandSecondLevel, compact)
		if err != nil {
			return nil, nil, err
		}
		if len(related) == 0 {
			omitted[name] = omission
			continue
		}
		loaded[name] = related
	}

	return loaded, omitted, nil
}

func (b *Backend) loadManyToOne(ctx context.Context, qc *queryContext, info RelationInfo,
	row Row, compact bool) (Row, Omission, error) {

	fk, ok := row[info.ForeignKey]
	if !ok || fk == nil {
		return nil, OmittedMissing, nil
	}
	related, err := b.storage.Get(ctx, info.Table, fk)
	if err != nil {
		return nil, "", err
	}
	if related == nil {
		return nil, OmittedMissing, nil
	}

	target, _ := b.registry.Table(info.Table)
	if !access.CanAccessRow(b.registry, qc.set, target, related, qc.userID) {
		return nil, OmittedDenied, nil
	}
	related = access.FilterFields(qc.set, target, related)
	related["_table"] = info.Table

	if compact {
		related = compactRow(related, target.DisplayFields)
	}
	return related, "", nil
}

func (b *Backend) loadOneToMany(ctx context.Context, qc *queryContext, parentTable string,
	info RelationInfo, row Row, expandSecondLevel, compact bool) ([]Row, Omission, error) {

	id, ok := row["id"]
	if !ok || id == nil {
		return nil, OmittedMissing, nil
	}
	fetched, err := b.storage.List(ctx, ListSpec{
		Table:   info.Table,
		Filter:  []Condition{{Field: info.ForeignKey, Value: id}},
		OrderBy: info.DefaultSort,
	})
	if err != nil {
		return nil, "", err
	}
	if len(fetched) == 0 {
		return nil, OmittedEmpty, nil
	}

	source, _ := b.registry.Table(info.Table)
	var result []Row
	for _, related := range fetched {
		if !access.CanAccessRow(b.registry, qc.set, source, related, qc.userID) {
			continue
		}
		related = access.FilterFields(qc.set, source, related)
		related["_table"] = info.Table

		if expandSecondLevel {
			// one extra level of many-to-one relations, skipping anything
			// that would re-attach the parent table onto itself
			sourceRels := b.tableRelations(qc, info.Table)
			var secondLevel []string
			for name, rel := range sourceRels.ManyToOne {
				if rel.Table == parentTable {
					continue
				}
				secondLevel = append(secondLevel, name)
			}
			if len(secondLevel) > 0 {
				nested, _, err := b.loadRelationsForRow(ctx, qc, info.Table, related, secondLevel, false, compact)
				if err != nil {
					return nil, "", err
				}
				if len(nested) > 0 {
					related["_relations"] = nested
				}
			}
		}
		result = append(result, related)
	}
	if len(result) == 0 {
		return nil, OmittedDenied, nil
	}
	return result, "", nil
}

// compactRow reduces a related row to the declared display fields plus the
// id and the origin table tag
func compactRow(row Row, displayFields []string) Row {
	compact := Row{}
	if id, ok := row["id"]; ok {
		compact["id"] = id
	}
	if table, ok := row["_table"]; ok {
		compact["_table"] = table
	}
	for _, name := range displayFields {
		if value, ok := row[name]; ok {
			compact[name] = value
		}
	}
	return compact
}
