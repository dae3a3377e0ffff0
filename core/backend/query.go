// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"context"
	"strings"

	"github.com/relabs-tech/tabular/core/access"
	"github.com/relabs-tech/tabular/core/logger"
	"github.com/relabs-tech/tabular/core/schema"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Request describes a single table query
type Request struct {
	// Authorization of the caller, nil for anonymous requests
	Authorization *access.Authorization
	// Table is looked up case-insensitively against the schema registry
	Table string
	// ID selects a single row. Empty selects a paginated list.
	ID string
	// pagination; Limit 0 falls back to the default page size
	Limit  int
	Offset int
	// ordering; OrderBy must name a declared field
	OrderBy    string
	Descending bool
	// Filter restricts the list fetch by field equality. Field names are
	// validated against the schema before any SQL is built.
	Filter []Condition
	// Relations selects the relations to load: "all", a comma-separated
	// list of relation names, or empty for the default selection (all
	// many-to-one plus Strong one-to-many relations)
	Relations string
	// IncludeSchema attaches the capability-filtered schema description
	IncludeSchema bool
	// Compact reduces many-to-one related rows to their display fields
	Compact bool
}

// Pagination describes the position of the returned rows within the full
// filtered result. Total is the pre-slice count.
type Pagination struct {
	Total  int `json:"total"`
	Count  int `json:"count"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Response is the assembled result of a table query
type Response struct {
	Success    bool           `json:"success"`
	Table      string         `json:"table"`
	Rows       []Row          `json:"rows"`
	Pagination Pagination     `json:"pagination"`
	Schema     *FilteredTable `json:"schema,omitempty"`
}

// GetTableData orchestrates a single table query: case-insensitive table
// resolution, table-level permission check, row fetch, row- and field-level
// filtering, relation loading with second-level expansion, and response
// assembly. Error paths return a structured *Error with the HTTP status a
// thin handler can forward verbatim. Row-level denial never produces an
// error, denied rows are silently omitted.
func (b *Backend) GetTableData(ctx context.Context, req *Request) (*Response, *Error) {
	rlog := logger.FromContext(ctx)

	canonical, ok := b.registry.Resolve(req.Table)
	if !ok {
		return nil, NotFound("no such table '%s'", req.Table)
	}
	table, _ := b.registry.Table(canonical)

	qc := b.newQueryContext(req.Authorization)
	if !access.CanReadTable(qc.set, table) {
		return nil, PermissionDenied("not authorized to read table '%s'", canonical)
	}

	limit := req.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	if limit < 0 || limit > maxLimit {
		return nil, Validation("limit out of range")
	}
	if req.Offset < 0 {
		return nil, Validation("offset out of range")
	}
	if req.OrderBy != "" && req.OrderBy != "id" && !table.HasField(req.OrderBy) {
		return nil, Validation("unknown order field '%s'", req.OrderBy)
	}
	for _, condition := range req.Filter {
		if condition.Field != "id" && condition.Field != "granted" && condition.Field != "owner_id" &&
			!table.HasField(condition.Field) {
			return nil, Validation("unknown filter field '%s'", condition.Field)
		}
	}

	response := &Response{
		Success: true,
		Table:   canonical,
		Rows:    []Row{},
	}

	var fetched []Row
	if req.ID != "" {
		row, err := b.storage.Get(ctx, canonical, req.ID)
		if err != nil {
			rlog.WithError(err).Errorf("Error 3121: cannot fetch %s/%s", canonical, req.ID)
			return nil, StorageFailure(err)
		}
		if row == nil {
			return nil, NotFound("no such row '%s' in table '%s'", req.ID, canonical)
		}
		fetched = []Row{row}
		response.Pagination = Pagination{Total: 1, Limit: limit}
	} else {
		spec := ListSpec{
			Table:  canonical,
			Filter: req.Filter,
			Limit:  limit,
			Offset: req.Offset,
		}
		if req.OrderBy != "" {
			spec.OrderBy = append(spec.OrderBy, schema.SortKey{Field: req.OrderBy, Descending: req.Descending})
		}
		var err error
		fetched, err = b.storage.List(ctx, spec)
		if err != nil {
			rlog.WithError(err).Errorf("Error 3122: cannot list %s", canonical)
			return nil, StorageFailure(err)
		}

		total, err := b.storage.Count(ctx, canonical, req.Filter)
		if err != nil {
			rlog.WithError(err).Errorf("Error 3123: cannot count %s", canonical)
			return nil, StorageFailure(err)
		}
		response.Pagination = Pagination{Total: total, Limit: limit, Offset: req.Offset}
	}

	requested, all := b.requestedRelations(qc, canonical, req.Relations)

	for _, row := range fetched {
		if !access.CanAccessRow(b.registry, qc.set, table, row, qc.userID) {
			continue
		}
		row = access.FilterFields(qc.set, table, row)

		if len(requested) > 0 || all {
			names := requested
			if all {
				names = b.tableRelations(qc, canonical).relationNames(true)
			}
			relations, _, err := b.loadRelationsForRow(ctx, qc, canonical, row, names, true, req.Compact)
			if err != nil {
				rlog.WithError(err).Errorf("Error 3124: cannot load relations for %s", canonical)
				return nil, StorageFailure(err)
			}
			if len(relations) > 0 {
				row["_relations"] = relations
			}
		}
		response.Rows = append(response.Rows, row)
	}
	response.Pagination.Count = len(response.Rows)

	if req.ID != "" && len(response.Rows) == 0 {
		// the row exists but the caller may not see it; do not leak its
		// existence, a filtered single-row fetch reads as not found
		return nil, NotFound("no such row '%s' in table '%s'", req.ID, canonical)
	}

	if req.IncludeSchema {
		response.Schema = b.BuildFilteredSchema(qc, canonical)
	}
	return response, nil
}

// requestedRelations resolves the relation selector. The default selection
// is every many-to-one relation plus the one-to-many relations declared
// Strong. The selector "all" is returned as a flag so the relation set can
// be computed per table.
func (b *Backend) requestedRelations(qc *queryContext, table, selector string) ([]string, bool) {
	switch selector {
	case "all":
		return nil, true
	case "":
		return b.tableRelations(qc, table).relationNames(false), false
	default:
		var names []string
		for _, name := range strings.Split(selector, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				names = append(names, name)
			}
		}
		return names, false
	}
}
