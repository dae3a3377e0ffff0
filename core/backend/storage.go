// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/relabs-tech/tabular/core/csql"
	"github.com/relabs-tech/tabular/core/schema"
)

// Row is a single table row as handed around the backend. The stored record
// is augmented with the request-scoped keys "_relations" and "_table" when a
// row crosses a relation boundary, those augmentations are never persisted.
type Row map[string]interface{}

// Condition is a single field equality filter. The field name is validated
// against the schema registry before any SQL is built, values are always
// parameterized.
type Condition struct {
	Field string
	Value interface{}
}

// ListSpec describes a list fetch against a single table
type ListSpec struct {
	Table   string
	Filter  []Condition
	OrderBy []schema.SortKey
	Limit   int
	Offset  int
}

// Storage is the minimal persistence contract of the backend. Get returns
// a nil row without error when the id does not exist, a missing row is a
// normal outcome for relation loading.
type Storage interface {
	Get(ctx context.Context, table string, id interface{}) (Row, error)
	List(ctx context.Context, spec ListSpec) ([]Row, error)
	Count(ctx context.Context, table string, filter []Condition) (int, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, table string, id interface{}, values Row) (Row, error)
	Delete(ctx context.Context, table string, id interface{}) (bool, error)
}

// sqlStorage implements Storage on a postgres database. All identifiers it
// splices into query strings come from the schema registry allow-list, never
// from request input.
type sqlStorage struct {
	db       *csql.DB
	registry *schema.Registry
}

// NewSQLStorage returns a Storage backed by the passed postgres database.
// Table and column identifiers are checked against the registry, a query
// naming an unknown identifier fails before it reaches the database.
func NewSQLStorage(db *csql.DB, registry *schema.Registry) Storage {
	return &sqlStorage{db: db, registry: registry}
}

func (s *sqlStorage) columnsOf(table *schema.Table) []string {
	columns := []string{"id", "granted", "owner_id"}
	for _, name := range table.FieldOrder {
		field := table.Fields[name]
		if field.Computed {
			continue
		}
		columns = append(columns, name)
	}
	if len(table.FieldOrder) == 0 {
		for name, field := range table.Fields {
			if field.Computed {
				continue
			}
			columns = append(columns, name)
		}
	}
	return columns
}

func (s *sqlStorage) table(name string) (*schema.Table, error) {
	t, ok := s.registry.Table(name)
	if !ok {
		return nil, fmt.Errorf("unknown table '%s'", name)
	}
	return t, nil
}

// checkFilter validates every filtered field against the schema
func checkFilter(t *schema.Table, filter []Condition) error {
	for _, c := range filter {
		if c.Field != "id" && c.Field != "granted" && c.Field != "owner_id" && !t.HasField(c.Field) {
			return fmt.Errorf("unknown field '%s' in table '%s'", c.Field, t.Name)
		}
	}
	return nil
}

func whereClause(filter []Condition, offset int) (string, []interface{}) {
	if len(filter) == 0 {
		return "", nil
	}
	var clauses []string
	var args []interface{}
	for i, c := range filter {
		clauses = append(clauses, fmt.Sprintf("%s = $%d", c.Field, offset+i+1))
		args = append(args, c.Value)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *sqlStorage) scanRows(t *schema.Table, columns []string, query string, args ...interface{}) ([]Row, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		for i := range values {
			values[i] = new(interface{})
		}
		if err := rows.Scan(values...); err != nil {
			return nil, err
		}
		row := Row{}
		for i, column := range columns {
			value := *(values[i].(*interface{}))
			if b, ok := value.([]byte); ok {
				value = string(b)
			}
			if ts, ok := value.(time.Time); ok {
				value = ts.UTC()
			}
			row[column] = value
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (s *sqlStorage) Get(ctx context.Context, table string, id interface{}) (Row, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	columns := s.columnsOf(t)
	query := fmt.Sprintf(`SELECT %s FROM %s."%s" WHERE id = $1;`,
		strings.Join(columns, ", "), s.db.Schema, t.Name)
	rows, err := s.scanRows(t, columns, query, fmt.Sprint(id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *sqlStorage) List(ctx context.Context, spec ListSpec) ([]Row, error) {
	t, err := s.table(spec.Table)
	if err != nil {
		return nil, err
	}
	if err := checkFilter(t, spec.Filter); err != nil {
		return nil, err
	}
	columns := s.columnsOf(t)
	query := fmt.Sprintf(`SELECT %s FROM %s."%s"`,
		strings.Join(columns, ", "), s.db.Schema, t.Name)
	where, args := whereClause(spec.Filter, 0)
	query += where

	if len(spec.OrderBy) > 0 {
		var keys []string
		for _, key := range spec.OrderBy {
			if key.Field != "id" && !t.HasField(key.Field) {
				return nil, fmt.Errorf("unknown order field '%s' in table '%s'", key.Field, t.Name)
			}
			direction := "ASC"
			if key.Descending {
				direction = "DESC"
			}
			keys = append(keys, key.Field+" "+direction)
		}
		query += " ORDER BY " + strings.Join(keys, ", ")
	} else {
		query += " ORDER BY id ASC"
	}

	if spec.Limit > 0 {
		query += " LIMIT $" + strconv.Itoa(len(args)+1)
		args = append(args, spec.Limit)
	}
	if spec.Offset > 0 {
		query += " OFFSET $" + strconv.Itoa(len(args)+1)
		args = append(args, spec.Offset)
	}
	query += ";"

	return s.scanRows(t, columns, query, args...)
}

func (s *sqlStorage) Count(ctx context.Context, table string, filter []Condition) (int, error) {
	t, err := s.table(table)
	if err != nil {
		return 0, err
	}
	if err := checkFilter(t, filter); err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`SELECT count(*) FROM %s."%s"`, s.db.Schema, t.Name)
	where, args := whereClause(filter, 0)
	query += where + ";"

	var count int
	err = s.db.QueryRow(query, args...).Scan(&count)
	return count, err
}

func (s *sqlStorage) Insert(ctx context.Context, table string, row Row) (Row, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	var columns []string
	var placeholders []string
	var args []interface{}
	i := 0
	for name, value := range row {
		if name != "granted" && name != "owner_id" && !t.HasField(name) {
			return nil, fmt.Errorf("unknown field '%s' in table '%s'", name, t.Name)
		}
		i++
		columns = append(columns, name)
		placeholders = append(placeholders, "$"+strconv.Itoa(i))
		args = append(args, value)
	}
	query := fmt.Sprintf(`INSERT INTO %s."%s" (%s) VALUES(%s) RETURNING id;`,
		s.db.Schema, t.Name, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	var id interface{}
	if err := s.db.QueryRow(query, args...).Scan(&id); err != nil {
		return nil, err
	}
	return s.Get(ctx, table, id)
}

func (s *sqlStorage) Update(ctx context.Context, table string, id interface{}, values Row) (Row, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	var sets []string
	var args []interface{}
	i := 0
	for name, value := range values {
		if name != "granted" && name != "owner_id" && !t.HasField(name) {
			return nil, fmt.Errorf("unknown field '%s' in table '%s'", name, t.Name)
		}
		i++
		sets = append(sets, name+" = $"+strconv.Itoa(i))
		args = append(args, value)
	}
	if len(sets) == 0 {
		return s.Get(ctx, table, id)
	}
	args = append(args, fmt.Sprint(id))
	query := fmt.Sprintf(`UPDATE %s."%s" SET %s WHERE id = $%d;`,
		s.db.Schema, t.Name, strings.Join(sets, ", "), len(args))
	if _, err := s.db.Exec(query, args...); err != nil {
		return nil, err
	}
	return s.Get(ctx, table, id)
}

func (s *sqlStorage) Delete(ctx context.Context, table string, id interface{}) (bool, error) {
	t, err := s.table(table)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`DELETE FROM %s."%s" WHERE id = $1;`, s.db.Schema, t.Name)
	res, err := s.db.Exec(query, fmt.Sprint(id))
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
