/*Package csql wraps database/sql with the postgres schema the backend
operates in. All backend queries qualify their tables with this schema.
*/
package csql

import (
	"database/sql"
	"log"

	_ "github.com/lib/pq" // postgres driver
)

// DB is a postgres database pinned to a schema
type DB struct {
	*sql.DB
	Schema string
}

// ErrNoRows is returned by Scan when QueryRow matches no row
var ErrNoRows = sql.ErrNoRows

// OpenWithSchema opens the postgres database and ensures the given schema
// exists, together with the uuid-ossp extension the backend needs for id
// generation. An empty schema name selects the "public" schema as is.
// Connection failures abort the process, a service cannot run without its
// database.
func OpenWithSchema(dataSourceName, schema string) *DB {
	log.Println("tabular: open postgres database")
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		panic(err)
	}
	if err := db.Ping(); err != nil {
		panic(err)
	}

	if schema == "" {
		schema = "public"
	} else {
		log.Println("tabular: use database schema", schema)
		_, err = db.Exec(`CREATE extension IF NOT EXISTS "uuid-ossp";
CREATE schema IF NOT EXISTS ` + schema + `;`)
		if err != nil {
			panic(err)
		}
	}
	return &DB{DB: db, Schema: schema}
}

// ClearSchema drops and recreates the database schema, deleting all data in
// it. Refuses to operate on the public schema.
func (db *DB) ClearSchema() {
	if db.Schema == "public" {
		panic("refuse to drop public schema")
	}
	_, err := db.Exec(`DROP SCHEMA ` + db.Schema + ` CASCADE;
CREATE schema IF NOT EXISTS ` + db.Schema + `;`)
	if err != nil {
		log.Println("tabular: cannot clear schema", db.Schema, err.Error())
	}
}
