// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/gorilla/mux"
	"github.com/relabs-tech/tabular/core/access"
	"github.com/relabs-tech/tabular/core/logger"
)

// handleRoutes adds the REST routes for the configured schema
func (b *Backend) handleRoutes(router *mux.Router) {
	rlog := logger.Default()
	rlog.Debugln("backend: handle routes")
	rlog.Debugln("  handle route: /tables/{table} GET,POST")
	rlog.Debugln("  handle route: /tables/{table}/{id} GET,PUT,DELETE")
	rlog.Debugln("  handle route: /tables/{table}/{id}/publish POST")
	rlog.Debugln("  handle route: /schema/{table} GET")

	router.HandleFunc("/tables/{table}", b.listHandler).Methods(http.MethodOptions, http.MethodGet)
	router.HandleFunc("/tables/{table}", b.createHandler).Methods(http.MethodOptions, http.MethodPost)
	router.HandleFunc("/tables/{table}/{id}", b.readHandler).Methods(http.MethodOptions, http.MethodGet)
	router.HandleFunc("/tables/{table}/{id}", b.updateHandler).Methods(http.MethodOptions, http.MethodPut)
	router.HandleFunc("/tables/{table}/{id}", b.deleteHandler).Methods(http.MethodOptions, http.MethodDelete)
	router.HandleFunc("/tables/{table}/{id}/publish", b.publishHandler).Methods(http.MethodOptions, http.MethodPost)
	router.HandleFunc("/schema/{table}", b.schemaHandler).Methods(http.MethodOptions, http.MethodGet)
}

func writeJSON(w http.ResponseWriter, status int, value interface{}) {
	jsonData, _ := json.MarshalWithOption(value, json.DisableHTMLEscape())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(jsonData)
}

func writeError(w http.ResponseWriter, serr *Error) {
	writeJSON(w, serr.Status, serr)
}

// requestFromURL translates the URL query into a table query request. All
// numeric parameters are coerced defensively, malformed values are rejected
// before anything reaches storage.
func (b *Backend) requestFromURL(r *http.Request) (*Request, *Error) {
	params := mux.Vars(r)
	req := &Request{
		Authorization: access.AuthorizationFromContext(r.Context()),
		Table:         params["table"],
		ID:            params["id"],
	}

	for key, array := range r.URL.Query() {
		if key != "filter" && len(array) > 1 {
			return nil, Validation("illegal parameter array '%s'", key)
		}
		value := array[0]
		var err error
		switch key {
		case "limit":
			req.Limit, err = strconv.Atoi(value)
		case "offset":
			req.Offset, err = strconv.Atoi(value)
		case "orderBy":
			req.OrderBy = value
		case "order":
			switch value {
			case "asc":
			case "desc":
				req.Descending = true
			default:
				return nil, Validation("order must be asc or desc")
			}
		case "relation":
			req.Relations = value
		case "includeSchema":
			req.IncludeSchema = value == "1" || value == "true"
		case "compact":
			req.Compact = value == "1" || value == "true"
		case "filter":
			for _, value := range array {
				i := strings.IndexRune(value, '=')
				if i < 0 {
					return nil, Validation("cannot parse filter, must be of type field=value")
				}
				req.Filter = append(req.Filter, Condition{Field: value[:i], Value: value[i+1:]})
			}
		default:
			return nil, Validation("unknown query parameter '%s'", key)
		}
		if err != nil {
			return nil, Validation("parameter '%s': %s", key, err.Error())
		}
	}
	return req, nil
}

func (b *Backend) listHandler(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Debugln("called route for", r.URL, r.Method)

	req, serr := b.requestFromURL(r)
	if serr != nil {
		writeError(w, serr)
		return
	}
	response, serr := b.GetTableData(r.Context(), req)
	if serr != nil {
		writeError(w, serr)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (b *Backend) readHandler(w http.ResponseWriter, r *http.Request) {
	// single row read shares the list plumbing, the id makes the difference
	b.listHandler(w, r)
}

func (b *Backend) createHandler(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Debugln("called route for", r.URL, r.Method)

	params := mux.Vars(r)
	var payload Row
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, Validation("invalid json payload: %s", err.Error()))
		return
	}
	auth := access.AuthorizationFromContext(r.Context())
	row, serr := b.CreateRow(r.Context(), auth, params["table"], payload)
	if serr != nil {
		writeError(w, serr)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (b *Backend) updateHandler(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Debugln("called route for", r.URL, r.Method)

	params := mux.Vars(r)
	var payload Row
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, Validation("invalid json payload: %s", err.Error()))
		return
	}
	auth := access.AuthorizationFromContext(r.Context())
	row, serr := b.UpdateRow(r.Context(), auth, params["table"], params["id"], payload)
	if serr != nil {
		writeError(w, serr)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (b *Backend) deleteHandler(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Debugln("called route for", r.URL, r.Method)

	params := mux.Vars(r)
	auth := access.AuthorizationFromContext(r.Context())
	if serr := b.DeleteRow(r.Context(), auth, params["table"], params["id"]); serr != nil {
		writeError(w, serr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) publishHandler(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Debugln("called route for", r.URL, r.Method)

	params := mux.Vars(r)
	var payload struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, Validation("invalid json payload: %s", err.Error()))
		return
	}
	auth := access.AuthorizationFromContext(r.Context())
	row, serr := b.PublishRow(r.Context(), auth, params["table"], params["id"], payload.Role)
	if serr != nil {
		writeError(w, serr)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (b *Backend) schemaHandler(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Debugln("called route for", r.URL, r.Method)

	params := mux.Vars(r)
	canonical, ok := b.registry.Resolve(params["table"])
	if !ok {
		writeError(w, NotFound("no such table '%s'", params["table"]))
		return
	}
	qc := b.newQueryContext(access.AuthorizationFromContext(r.Context()))
	table, _ := b.registry.Table(canonical)
	if !access.CanReadTable(qc.set, table) {
		writeError(w, PermissionDenied("not authorized to read table '%s'", canonical))
		return
	}
	writeJSON(w, http.StatusOK, b.BuildFilteredSchema(qc, canonical))
}
