// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gorilla/mux"
	"github.com/relabs-tech/tabular/core"
	"github.com/relabs-tech/tabular/core/csql"
	"github.com/relabs-tech/tabular/core/logger"
	"github.com/relabs-tech/tabular/core/registry"
	"github.com/relabs-tech/tabular/core/schema"
)

// Backend is the schema-driven table administration backend
type Backend struct {
	registry  *schema.Registry
	storage   Storage
	db        *csql.DB
	router    *mux.Router
	notifier  core.Notifier
	validator *schema.Validator
}

// Builder is a builder helper for the Backend
type Builder struct {
	// Config is the JSON description of all tables and roles. Either
	// Config or Registry is mandatory.
	Config string
	// Registry is an already constructed schema registry, an alternative
	// to Config.
	Registry *schema.Registry
	// DB is a postgres database. When set, the backend runs on SQL
	// storage, creates missing tables and records the schema fingerprint.
	DB *csql.DB
	// Storage overrides the SQL storage, used by tests
	Storage Storage
	// Router is a mux router. When set, REST routes are added to it.
	Router *mux.Router
	// Notifier receives mutation notifications. This is optional.
	Notifier core.Notifier
	// JSONSchemas are top level JSON schemas for write payload validation,
	// referenced from tables via schema_id. JSONSchemaRefs may carry
	// referenced sub-schemas. Optional.
	JSONSchemas    []string
	JSONSchemaRefs []string
	// UpdateSchema lets the backend create missing SQL tables at startup
	UpdateSchema bool
}

// MustNew panics on configuration errors, for use in service main functions
func MustNew(bb *Builder) *Backend {
	b, err := New(bb)
	if err != nil {
		panic(err)
	}
	return b
}

// New realizes the backend. It creates the sql tables (if requested and they
// do not exist), records the schema fingerprint in the persistent registry
// and adds the REST routes to the router.
func New(bb *Builder) (*Backend, error) {
	rlog := logger.Default()

	reg := bb.Registry
	if reg == nil {
		if bb.Config == "" {
			return nil, fmt.Errorf("backend: configuration is missing")
		}
		var err error
		reg, err = schema.New(bb.Config)
		if err != nil {
			return nil, err
		}
	}

	b := &Backend{
		registry: reg,
		db:       bb.DB,
		router:   bb.Router,
		notifier: bb.Notifier,
	}

	if len(bb.JSONSchemas) > 0 {
		validator, err := schema.NewValidator(bb.JSONSchemas, bb.JSONSchemaRefs)
		if err != nil {
			return nil, err
		}
		b.validator = validator
	}

	b.storage = bb.Storage
	if b.storage == nil {
		if bb.DB == nil {
			return nil, fmt.Errorf("backend: both db and storage are missing")
		}
		b.storage = NewSQLStorage(bb.DB, reg)
	}

	if bb.DB != nil && bb.UpdateSchema {
		if err := b.createSQLTables(); err != nil {
			return nil, err
		}
	}
	if bb.DB != nil && bb.Config != "" {
		b.recordSchemaVersion(bb.Config)
	}

	if b.router != nil {
		logger.AddRequestID(b.router)
		b.handleCORS()
		b.handleCompression()
		b.handleRoutes(b.router)
	}

	rlog.Debugf("backend: created with %d tables", len(reg.Tables))
	return b, nil
}

// Registry returns the schema registry of this backend
func (b *Backend) Registry() *schema.Registry {
	return b.registry
}

// sqlTypeOf maps a schema field type to its postgres column type
func sqlTypeOf(field schema.Field) string {
	if field.Relation != "" {
		return "uuid"
	}
	switch field.Type {
	case "integer":
		return "integer"
	case "float":
		return "double precision"
	case "boolean":
		return "boolean"
	case "date":
		return "date"
	case "datetime":
		return "timestamp"
	default: // text, varchar, enum
		return "varchar"
	}
}

// createSQLTables creates one SQL table per schema table. Every table gets
// the id primary key and the row-level visibility columns. Computed fields
// get no column, they only ever exist in responses.
func (b *Backend) createSQLTables() error {
	rlog := logger.Default()
	for i := range b.registry.Tables {
		t := &b.registry.Tables[i]
		rlog.Debugln("create table:", t.Name)

		createColumns := []string{
			"id uuid NOT NULL DEFAULT uuid_generate_v4() PRIMARY KEY",
			"granted varchar NOT NULL DEFAULT 'draft'",
			"owner_id varchar NOT NULL DEFAULT ''",
			"timestamp timestamp NOT NULL DEFAULT now()",
		}
		createIndices := ""
		for name, field := range t.Fields {
			if field.Computed {
				continue
			}
			createColumns = append(createColumns, fmt.Sprintf("%s %s", name, sqlTypeOf(field)))
			if field.Relation != "" {
				createIndices += fmt.Sprintf(`CREATE index IF NOT EXISTS %s ON %s."%s"(%s);`,
					"relation_index_"+t.Name+"_"+name, b.db.Schema, t.Name, t.ForeignKeyOf(name))
			}
		}
		createQuery := fmt.Sprintf(`CREATE table IF NOT EXISTS %s."%s"(%s);`,
			b.db.Schema, t.Name, strings.Join(createColumns, ", ")) + createIndices

		if _, err := b.db.Exec(createQuery); err != nil {
			return fmt.Errorf("cannot create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// recordSchemaVersion stores a fingerprint of the schema configuration in
// the persistent registry, so operators can tell which configuration a
// database was last touched with.
func (b *Backend) recordSchemaVersion(config string) {
	rlog := logger.Default()
	fingerprint := sha1.Sum([]byte(config))
	version := hex.EncodeToString(fingerprint[:])

	accessor := registry.New(b.db).Accessor("_backend_")
	var previous string
	if _, err := accessor.Read("schema_version", &previous); err != nil {
		rlog.WithError(err).Errorln("Error 3141: cannot read schema version")
		return
	}
	if previous == version {
		return
	}
	if previous != "" {
		rlog.Infof("schema configuration changed from %.8s to %.8s", previous, version)
	}
	if err := accessor.Write("schema_version", version); err != nil {
		rlog.WithError(err).Errorln("Error 3142: cannot write schema version")
	}
}
