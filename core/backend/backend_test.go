package backend

import (
	"context"
	"fmt"
	"sort"

	"github.com/relabs-tech/tabular/core"
	"github.com/relabs-tech/tabular/core/schema"
)

// memoryStorage is an in-memory Storage for the engine tests. It counts
// calls so tests can assert that short-circuit paths never touch storage.
type memoryStorage struct {
	tables  map[string][]Row
	calls   int
	failure error
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{tables: map[string][]Row{}}
}

func (s *memoryStorage) add(table string, row Row) {
	s.tables[table] = append(s.tables[table], row)
}

func copyRow(row Row) Row {
	clone := make(Row, len(row))
	for key, value := range row {
		clone[key] = value
	}
	return clone
}

func (s *memoryStorage) Get(ctx context.Context, table string, id interface{}) (Row, error) {
	s.calls++
	if s.failure != nil {
		return nil, s.failure
	}
	for _, row := range s.tables[table] {
		if fmt.Sprint(row["id"]) == fmt.Sprint(id) {
			return copyRow(row), nil
		}
	}
	return nil, nil
}

func matches(row Row, filter []Condition) bool {
	for _, c := range filter {
		if fmt.Sprint(row[c.Field]) != fmt.Sprint(c.Value) {
			return false
		}
	}
	return true
}

func (s *memoryStorage) List(ctx context.Context, spec ListSpec) ([]Row, error) {
	s.calls++
	if s.failure != nil {
		return nil, s.failure
	}
	var result []Row
	for _, row := range s.tables[spec.Table] {
		if matches(row, spec.Filter) {
			result = append(result, copyRow(row))
		}
	}
	if len(spec.OrderBy) > 0 {
		sort.SliceStable(result, func(i, j int) bool {
			for _, key := range spec.OrderBy {
				a, b := fmt.Sprint(result[i][key.Field]), fmt.Sprint(result[j][key.Field])
				if a == b {
					continue
				}
				if key.Descending {
					return a > b
				}
				return a < b
			}
			return false
		})
	}
	if spec.Offset > 0 {
		if spec.Offset >= len(result) {
			return nil, nil
		}
		result = result[spec.Offset:]
	}
	if spec.Limit > 0 && len(result) > spec.Limit {
		result = result[:spec.Limit]
	}
	return result, nil
}

func (s *memoryStorage) Count(ctx context.Context, table string, filter []Condition) (int, error) {
	s.calls++
	count := 0
	for _, row := range s.tables[table] {
		if matches(row, filter) {
			count++
		}
	}
	return count, nil
}

func (s *memoryStorage) Insert(ctx context.Context, table string, row Row) (Row, error) {
	s.calls++
	clone := copyRow(row)
	if _, ok := clone["id"]; !ok {
		clone["id"] = fmt.Sprintf("%s%d", table, len(s.tables[table])+1)
	}
	s.tables[table] = append(s.tables[table], clone)
	return copyRow(clone), nil
}

func (s *memoryStorage) Update(ctx context.Context, table string, id interface{}, values Row) (Row, error) {
	s.calls++
	for i, row := range s.tables[table] {
		if fmt.Sprint(row["id"]) == fmt.Sprint(id) {
			for key, value := range values {
				s.tables[table][i][key] = value
			}
			return copyRow(s.tables[table][i]), nil
		}
	}
	return nil, nil
}

func (s *memoryStorage) Delete(ctx context.Context, table string, id interface{}) (bool, error) {
	s.calls++
	for i, row := range s.tables[table] {
		if fmt.Sprint(row["id"]) == fmt.Sprint(id) {
			s.tables[table] = append(s.tables[table][:i], s.tables[table][i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

var testConfigurationJSON = `{
	"roles": {
		"member": {"inherits": ["public"]},
		"admin":  {"inherits": ["member"]}
	},
	"tables": [
	  {
		"name": "author",
		"fields": {
		  "name":  {"type": "text"},
		  "email": {"type": "text", "grant": {"admin": ["read", "update"]}}
		},
		"display_fields": ["name"],
		"grant": {
		  "public": ["read"],
		  "admin":  ["read", "create", "update", "delete", "publish"]
		},
		"publishable_to": ["public", "member"]
	  },
	  {
		"name": "category",
		"fields": {
		  "title":   {"type": "text"},
		  "curator": {"type": "text", "relation": "author", "array_name": "curated_categories"}
		},
		"display_fields": ["title"]
	  },
	  {
		"name": "article",
		"fields": {
		  "title":    {"type": "text", "orderable": true},
		  "author":   {"type": "text", "relation": "author", "array_name": "articles",
		               "relationship_strength": "Strong",
		               "default_sort": [{"field": "title"}]},
		  "category": {"type": "text", "relation": "category", "array_name": "catalog"}
		},
		"display_fields": ["title"],
		"grant": {
		  "public": ["read"],
		  "admin":  ["read", "create", "update", "delete", "publish"]
		},
		"publishable_to": ["public", "member"]
	  },
	  {
		"name": "comment",
		"fields": {
		  "body":    {"type": "text"},
		  "article": {"type": "text", "relation": "article", "array_name": "comments",
		              "relationship_strength": "Strong"}
		}
	  },
	  {
		"name": "journal",
		"fields": {
		  "entry": {"type": "text"}
		},
		"grant": {
		  "member": ["read"],
		  "admin":  ["read", "create", "update", "delete"]
		}
	  }
	]
}`

type recordingNotifier struct {
	events []string
}

func (n *recordingNotifier) Notify(ctx context.Context, table string, capability core.Capability, payload []byte) {
	n.events = append(n.events, table+":"+string(capability))
}

func newTestBackend() (*Backend, *memoryStorage) {
	b, storage, _ := newTestBackendWithNotifier()
	return b, storage
}

func newTestBackendWithNotifier() (*Backend, *memoryStorage, *recordingNotifier) {
	storage := seedStorage()
	notifier := &recordingNotifier{}

	b := MustNew(&Builder{
		Registry: schema.MustNew(testConfigurationJSON),
		Storage:  storage,
		Notifier: notifier,
	})
	return b, storage, notifier
}

func seedStorage() *memoryStorage {
	storage := newMemoryStorage()

	storage.add("author", Row{"id": "a1", "granted": "shared", "owner_id": "1",
		"name": "Ada", "email": "ada@example.com"})
	storage.add("author", Row{"id": "a2", "granted": "draft", "owner_id": "5",
		"name": "Grace", "email": "grace@example.com"})

	storage.add("category", Row{"id": "c1", "granted": "shared", "owner_id": "1",
		"title": "Science", "curator": "a1"})

	storage.add("article", Row{"id": "r1", "granted": "shared", "owner_id": "1",
		"title": "Alpha", "author": "a1", "category": "c1"})
	storage.add("article", Row{"id": "r2", "granted": "shared", "owner_id": "1",
		"title": "Beta", "author": "a1", "category": nil})
	storage.add("article", Row{"id": "r3", "granted": "draft", "owner_id": "5",
		"title": "Drafty", "author": "a1", "category": nil})

	storage.add("comment", Row{"id": "m1", "granted": "shared", "owner_id": "1",
		"body": "first", "article": "r1"})

	storage.add("journal", Row{"id": "j1", "granted": "shared", "owner_id": "1",
		"entry": "private entry"})

	return storage
}
