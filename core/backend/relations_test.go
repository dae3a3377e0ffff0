package backend

import (
	"testing"

	"github.com/relabs-tech/tabular/core/schema"
)

func TestTableRelations_DefaultArrayName(t *testing.T) {
	// without an explicit array_name the reverse relation carries the name
	// of the table the field points at
	b := MustNew(&Builder{
		Registry: schema.MustNew(`{
			"tables": [
			  {
				"name": "author",
				"fields": {"name": {"type": "text"}}
			  },
			  {
				"name": "article",
				"fields": {
				  "title":  {"type": "text"},
				  "author": {"type": "text", "relation": "author"}
				}
			  }
			]
		}`),
		Storage: newMemoryStorage(),
	})

	rels := b.tableRelations(b.newQueryContext(nil), "author")
	info, ok := rels.OneToMany["author"]
	if !ok {
		t.Fatalf("expected one-to-many relation named 'author', got %v", rels.OneToMany)
	}
	if info.Table != "article" || info.ForeignKey != "author" {
		t.Fatalf("unexpected relation info: %+v", info)
	}
	if _, ok := rels.OneToMany["article"]; ok {
		t.Fatal("relation must not be named after the source table")
	}
}
