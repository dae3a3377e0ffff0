package schema

import (
	"testing"
)

var configurationJSON = `{
	"roles": {
		"member": {"inherits": ["public"]},
		"admin":  {"inherits": ["member"]}
	},
	"tables": [
	  {
		"name": "author",
		"fields": {
		  "name": {"type": "text"}
		},
		"display_fields": ["name"]
	  },
	  {
		"name": "article",
		"fields": {
		  "title":  {"type": "text"},
		  "author": {"type": "integer", "relation": "author", "array_name": "articles"}
		}
	  }
	]
}`

func TestRegistry_New(t *testing.T) {
	r, err := New(configurationJSON)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(r.Tables))
	}
	if _, ok := r.Roles["public"]; !ok {
		t.Fatal("implicit public role missing")
	}

	article, ok := r.Table("article")
	if !ok {
		t.Fatal("article table missing")
	}
	if article.ForeignKeyOf("author") != "author" {
		t.Fatal("foreign key should default to the field name")
	}
}

func TestRegistry_ResolveCaseInsensitive(t *testing.T) {
	r, err := New(configurationJSON)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"article", "Article", "ARTICLE"} {
		canonical, ok := r.Resolve(name)
		if !ok || canonical != "article" {
			t.Fatalf("cannot resolve '%s'", name)
		}
	}
	if _, ok := r.Resolve("nonexistent"); ok {
		t.Fatal("resolved a table that does not exist")
	}
}

func TestRegistry_InvalidConfigurations(t *testing.T) {
	invalid := []string{
		`{"tables":[{"name":"Bad-Name","fields":{}}]}`,
		`{"tables":[{"name":"a","fields":{"x":{"type":"text","relation":"nonexistent"}}}]}`,
		`{"tables":[{"name":"a","fields":{}},{"name":"a","fields":{}}]}`,
		`{"tables":[{"name":"a","fields":{"x":{"type":"text"}},"display_fields":["missing"]}]}`,
		`{"tables":[{"name":"a","fields":{"x":{"type":"text"}},"field_order":["missing"]}]}`,
		`{"roles":{"a":{"inherits":["nonexistent"]}},"tables":[]}`,
	}
	for _, config := range invalid {
		if _, err := New(config); err == nil {
			t.Fatalf("invalid configuration accepted: %s", config)
		}
	}
}

func TestIsValidIdentifier(t *testing.T) {
	valid := []string{"article", "published_on", "a1"}
	invalid := []string{"", "Article", "1a", "drop table", `a"b`}
	for _, name := range valid {
		if !IsValidIdentifier(name) {
			t.Fatalf("'%s' should be valid", name)
		}
	}
	for _, name := range invalid {
		if IsValidIdentifier(name) {
			t.Fatalf("'%s' should be invalid", name)
		}
	}
}

func TestValidator(t *testing.T) {
	schemaString := `{ "$id": "http://some_host.com/article.json",
		"type": "object",
		"required": ["title"],
		"properties": {
			"title": {"type": "string"}
		}
	}`

	validator, err := NewValidator([]string{schemaString}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !validator.HasSchema("http://some_host.com/article.json") {
		t.Fatal("schema not registered")
	}
	if err := validator.ValidateString(`{"title":"hello"}`, "http://some_host.com/article.json"); err != nil {
		t.Fatal(err)
	}
	if err := validator.ValidateString(`{"title":42}`, "http://some_host.com/article.json"); err == nil {
		t.Fatal("invalid document accepted")
	}
}
