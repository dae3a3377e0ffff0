/*Package registry provides a small persistent key/value store in the
backend's database schema. Values are serialized as JSON. The backend uses it
to remember operational state across restarts, such as the schema
configuration fingerprint.
*/
package registry

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/tabular/core/csql"
)

const tableName = `"_registry_"`

// Registry is a persistent key/value store in a sql database
type Registry struct {
	db *csql.DB
}

// New creates the registry table if it does not exist yet and returns the
// registry
func New(db *csql.DB) Registry {
	_, err := db.Exec(`CREATE table IF NOT EXISTS ` + db.Schema + `.` + tableName + `
(key varchar NOT NULL,
value json NOT NULL,
timestamp timestamp NOT NULL,
PRIMARY KEY(key)
);`)
	if err != nil {
		panic(err)
	}
	return Registry{db: db}
}

// Accessor reads and writes keys below a common prefix. Different backend
// components use different prefixes so their keys cannot collide.
type Accessor struct {
	Prefix   string
	Registry Registry
}

// Accessor returns an accessor for the given prefix
func (r Registry) Accessor(prefix string) Accessor {
	return Accessor{Prefix: prefix, Registry: r}
}

// prefixed returns the fully qualified key "{prefix}:{key}"
func (r Accessor) prefixed(key string) string {
	if r.Prefix == "" {
		return key
	}
	return r.Prefix + ":" + key
}

// Read reads a value. It returns the time the value was written, or a zero
// timestamp when the key does not exist.
func (r Accessor) Read(key string, value interface{}) (time.Time, error) {
	var (
		rawValue  json.RawMessage
		timestamp time.Time
	)
	key = r.prefixed(key)

	err := r.Registry.db.QueryRow(
		`SELECT value, timestamp FROM `+r.Registry.db.Schema+`.`+tableName+` WHERE key=$1;`,
		key).Scan(&rawValue, &timestamp)
	if err == csql.ErrNoRows {
		return timestamp, nil
	}
	if err != nil {
		return timestamp, fmt.Errorf("cannot read key '%s': %s", key, err.Error())
	}
	err = json.Unmarshal(rawValue, &value)
	return timestamp, err
}

// Write writes a value, overwriting any previous value of the key
func (r Accessor) Write(key string, value interface{}) error {
	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	key = r.prefixed(key)
	now := time.Now().UTC()

	res, err := r.Registry.db.Exec(
		`INSERT INTO `+r.Registry.db.Schema+`.`+tableName+`(key,value,timestamp)
VALUES($1,$2,$3)
ON CONFLICT (key) DO UPDATE SET value=$2,timestamp=$3;`,
		key, string(body), now)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("could not write key '%s'", key)
	}
	return nil
}

// Delete removes a key. Deleting a key that does not exist is not an error.
func (r Accessor) Delete(key string) error {
	key = r.prefixed(key)
	_, err := r.Registry.db.Exec(
		`DELETE FROM `+r.Registry.db.Schema+`.`+tableName+` WHERE key=$1;`,
		key)
	return err
}
