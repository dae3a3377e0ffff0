// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"context"
	"strings"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/tabular/core"
	"github.com/relabs-tech/tabular/core/access"
	"github.com/relabs-tech/tabular/core/logger"
	"github.com/relabs-tech/tabular/core/schema"
)

// checkWritePayload validates a write payload against the schema: every key
// must be a declared, non-computed field, the granted state and the owner
// are managed by the backend and cannot be written directly. If the table
// declares a JSON schema id, the payload must validate against it.
func (b *Backend) checkWritePayload(qc *queryContext, table *schema.Table, payload Row, capability core.Capability) *Error {
	for name := range payload {
		if name == "granted" || name == "owner_id" || strings.HasPrefix(name, "_") {
			return Validation("field '%s' is managed by the backend", name)
		}
		field, ok := table.Fields[name]
		if !ok {
			return Validation("unknown field '%s' in table '%s'", name, table.Name)
		}
		if field.Computed {
			return Validation("field '%s' is computed and not writable", name)
		}
		if len(field.Grant) > 0 && !access.HasCapability(qc.set, field.Grant, capability) {
			return PermissionDenied("not authorized to write field '%s'", name)
		}
	}

	if table.SchemaID != "" && b.validator != nil && b.validator.HasSchema(table.SchemaID) {
		if err := b.validator.ValidateStruct(map[string]interface{}(payload), table.SchemaID); err != nil {
			return Validation("payload does not follow schema %s: %s", table.SchemaID, err)
		}
	}
	return nil
}

func (b *Backend) notify(ctx context.Context, table string, capability core.Capability, row Row) {
	if b.notifier == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"table": table,
		"id":    row["id"],
	})
	b.notifier.Notify(ctx, table, capability, payload)
}

// CreateRow creates a new row. The caller needs the create capability on the
// table. The new row is stamped with the caller as owner and starts its life
// in the draft state, visible to the owner only.
func (b *Backend) CreateRow(ctx context.Context, auth *access.Authorization, tableName string, payload Row) (Row, *Error) {
	rlog := logger.FromContext(ctx)

	canonical, ok := b.registry.Resolve(tableName)
	if !ok {
		return nil, NotFound("no such table '%s'", tableName)
	}
	table, _ := b.registry.Table(canonical)
	qc := b.newQueryContext(auth)

	if !access.HasTableCapability(qc.set, table, core.CapabilityCreate) {
		return nil, PermissionDenied("not authorized to create in table '%s'", canonical)
	}
	if serr := b.checkWritePayload(qc, table, payload, core.CapabilityCreate); serr != nil {
		return nil, serr
	}

	row := Row{}
	for name, value := range payload {
		row[name] = value
	}
	row["granted"] = string(access.GrantedDraft)
	row["owner_id"] = qc.userID

	created, err := b.storage.Insert(ctx, canonical, row)
	if err != nil {
		rlog.WithError(err).Errorf("Error 3131: cannot insert into %s", canonical)
		return nil, StorageFailure(err)
	}
	b.notify(ctx, canonical, core.CapabilityCreate, created)
	return access.FilterFields(qc.set, table, created), nil
}

// UpdateRow updates fields of an existing row. Draft rows can only be
// updated by their owner, shared and published rows require the update
// capability on the table. The granted state can be moved between draft and
// shared here, publishing goes through PublishRow.
func (b *Backend) UpdateRow(ctx context.Context, auth *access.Authorization, tableName, id string, payload Row) (Row, *Error) {
	rlog := logger.FromContext(ctx)

	canonical, ok := b.registry.Resolve(tableName)
	if !ok {
		return nil, NotFound("no such table '%s'", tableName)
	}
	table, _ := b.registry.Table(canonical)
	qc := b.newQueryContext(auth)

	row, err := b.storage.Get(ctx, canonical, id)
	if err != nil {
		rlog.WithError(err).Errorf("Error 3132: cannot fetch %s/%s", canonical, id)
		return nil, StorageFailure(err)
	}
	if row == nil {
		return nil, NotFound("no such row '%s' in table '%s'", id, canonical)
	}
	if serr := b.checkRowWriteAccess(qc, table, row, core.CapabilityUpdate); serr != nil {
		return nil, serr
	}

	// a granted transition between draft and shared may ride along with the
	// update, any other transition is rejected
	values := Row{}
	for name, value := range payload {
		values[name] = value
	}
	if granted, ok := values["granted"]; ok {
		state, _ := access.ParseGranted(granted)
		if state == access.GrantedPublished {
			return nil, Validation("publishing goes through the publish operation")
		}
		delete(values, "granted")
		if serr := b.checkWritePayload(qc, table, values, core.CapabilityUpdate); serr != nil {
			return nil, serr
		}
		values["granted"] = string(state)
	} else if serr := b.checkWritePayload(qc, table, values, core.CapabilityUpdate); serr != nil {
		return nil, serr
	}

	updated, err := b.storage.Update(ctx, canonical, id, values)
	if err != nil {
		rlog.WithError(err).Errorf("Error 3133: cannot update %s/%s", canonical, id)
		return nil, StorageFailure(err)
	}
	b.notify(ctx, canonical, core.CapabilityUpdate, updated)
	return access.FilterFields(qc.set, table, updated), nil
}

// DeleteRow deletes a row. Draft rows can only be deleted by their owner,
// everything else requires the delete capability on the table.
func (b *Backend) DeleteRow(ctx context.Context, auth *access.Authorization, tableName, id string) *Error {
	rlog := logger.FromContext(ctx)

	canonical, ok := b.registry.Resolve(tableName)
	if !ok {
		return NotFound("no such table '%s'", tableName)
	}
	table, _ := b.registry.Table(canonical)
	qc := b.newQueryContext(auth)

	row, err := b.storage.Get(ctx, canonical, id)
	if err != nil {
		rlog.WithError(err).Errorf("Error 3134: cannot fetch %s/%s", canonical, id)
		return StorageFailure(err)
	}
	if row == nil {
		return NotFound("no such row '%s' in table '%s'", id, canonical)
	}
	if serr := b.checkRowWriteAccess(qc, table, row, core.CapabilityDelete); serr != nil {
		return serr
	}

	deleted, err := b.storage.Delete(ctx, canonical, id)
	if err != nil {
		rlog.WithError(err).Errorf("Error 3135: cannot delete %s/%s", canonical, id)
		return StorageFailure(err)
	}
	if !deleted {
		return NotFound("no such row '%s' in table '%s'", id, canonical)
	}
	b.notify(ctx, canonical, core.CapabilityDelete, row)
	return nil
}

// PublishRow moves a row into the published state for the given role. The
// caller needs the publish capability on the table and the role must be
// listed in the table's publishable_to configuration. Like every other
// mutation, a draft can only be published by its owner.
func (b *Backend) PublishRow(ctx context.Context, auth *access.Authorization, tableName, id, role string) (Row, *Error) {
	rlog := logger.FromContext(ctx)

	canonical, ok := b.registry.Resolve(tableName)
	if !ok {
		return nil, NotFound("no such table '%s'", tableName)
	}
	table, _ := b.registry.Table(canonical)
	qc := b.newQueryContext(auth)

	if !access.HasTableCapability(qc.set, table, core.CapabilityPublish) {
		return nil, PermissionDenied("not authorized to publish in table '%s'", canonical)
	}
	if !table.IsPublishableTo(role) {
		return nil, Validation("table '%s' is not publishable to role '%s'", canonical, role)
	}

	row, err := b.storage.Get(ctx, canonical, id)
	if err != nil {
		rlog.WithError(err).Errorf("Error 3136: cannot fetch %s/%s", canonical, id)
		return nil, StorageFailure(err)
	}
	if row == nil {
		return nil, NotFound("no such row '%s' in table '%s'", id, canonical)
	}
	if serr := b.checkRowWriteAccess(qc, table, row, core.CapabilityPublish); serr != nil {
		return nil, serr
	}

	updated, err := b.storage.Update(ctx, canonical, id, Row{"granted": "published @" + role})
	if err != nil {
		rlog.WithError(err).Errorf("Error 3137: cannot publish %s/%s", canonical, id)
		return nil, StorageFailure(err)
	}
	b.notify(ctx, canonical, core.CapabilityPublish, updated)
	return access.FilterFields(qc.set, table, updated), nil
}

// checkRowWriteAccess gates a mutation of an existing row: the owner may
// mutate drafts, everything else requires the table-level capability.
func (b *Backend) checkRowWriteAccess(qc *queryContext, table *schema.Table, row Row, capability core.Capability) *Error {
	state, _ := access.ParseGranted(row["granted"])
	if state == access.GrantedDraft {
		if access.CanAccessRow(b.registry, qc.set, table, row, qc.userID) {
			return nil
		}
		// do not leak the existence of foreign drafts
		return NotFound("no such row in table '%s'", table.Name)
	}
	if !access.HasTableCapability(qc.set, table, capability) {
		return PermissionDenied("not authorized to %s in table '%s'", capability, table.Name)
	}
	return nil
}
