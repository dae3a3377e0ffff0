package access

import (
	"testing"

	"github.com/relabs-tech/tabular/core"
	"github.com/relabs-tech/tabular/core/schema"
)

var testRegistry = schema.MustNew(`{
	"roles": {
		"member": {"inherits": ["public"]},
		"editor": {"inherits": ["member"]},
		"admin":  {"inherits": ["editor"]}
	},
	"tables": [
	  {
		"name": "article",
		"fields": {
		  "title": {"type": "text"},
		  "internal_note": {"type": "text", "grant": {"editor": ["read", "update"]}}
		},
		"grant": {
		  "public": ["read"],
		  "editor": ["read", "create", "update", "delete", "publish"]
		}
	  }
	]
}`)

func TestResolveRoles_Closure(t *testing.T) {
	auth := &Authorization{Roles: []string{"admin"}}
	set := ResolveRoles(testRegistry, auth)

	for _, role := range []string{"admin", "editor", "member", "public"} {
		if !set.Has(role) {
			t.Fatalf("role %s missing from closure", role)
		}
	}
	if len(set) != 4 {
		t.Fatalf("expected 4 roles, got %d", len(set))
	}
}

func TestResolveRoles_Anonymous(t *testing.T) {
	set := ResolveRoles(testRegistry, nil)
	if !set.Has("public") {
		t.Fatal("anonymous request lacks public baseline")
	}
	if len(set) != 1 {
		t.Fatalf("anonymous request should act with public only, got %v", set)
	}
}

func TestResolveRoles_CommaSeparated(t *testing.T) {
	auth := &Authorization{Roles: []string{"member, editor"}}
	set := ResolveRoles(testRegistry, auth)
	if !set.Has("member") || !set.Has("editor") {
		t.Fatal("comma-separated roles not expanded")
	}
}

func TestResolveRoles_CycleTerminates(t *testing.T) {
	// a malformed registry with an inheritance cycle must not hang
	cyclic := &schema.Registry{Roles: map[string]schema.Role{
		"a":      {Inherits: []string{"b"}},
		"b":      {Inherits: []string{"a"}},
		"public": {},
	}}
	auth := &Authorization{Roles: []string{"a"}}
	set := ResolveRoles(cyclic, auth)
	if !set.Has("a") || !set.Has("b") {
		t.Fatal("cycle members missing")
	}
}

func TestHasCapability(t *testing.T) {
	table, _ := testRegistry.Table("article")
	editors := RoleSet{"editor": true, "public": true}
	readers := RoleSet{"public": true}

	if !HasCapability(editors, table.Grant, core.CapabilityUpdate) {
		t.Fatal("editor cannot update")
	}
	if HasCapability(readers, table.Grant, core.CapabilityUpdate) {
		t.Fatal("public can update")
	}
	if !HasCapability(readers, table.Grant, core.CapabilityRead) {
		t.Fatal("public cannot read")
	}
	if HasCapability(RoleSet{"stranger": true}, table.Grant, core.CapabilityRead) {
		t.Fatal("unknown role granted something")
	}
}

func TestCanAccessRow_Draft(t *testing.T) {
	table, _ := testRegistry.Table("article")
	row := map[string]interface{}{"id": "r1", "granted": "draft", "owner_id": "5"}

	set := ResolveRoles(testRegistry, &Authorization{UserID: "5", Roles: []string{"admin"}})
	if !CanAccessRow(testRegistry, set, table, row, "5") {
		t.Fatal("owner cannot see own draft")
	}
	if CanAccessRow(testRegistry, set, table, row, "6") {
		t.Fatal("non-owner sees foreign draft")
	}

	// missing granted value counts as draft
	row = map[string]interface{}{"id": "r2", "owner_id": "5"}
	if CanAccessRow(testRegistry, set, table, row, "6") {
		t.Fatal("non-owner sees row without granted state")
	}
}

func TestCanAccessRow_Shared(t *testing.T) {
	table, _ := testRegistry.Table("article")
	row := map[string]interface{}{"id": "r1", "granted": "shared", "owner_id": "5"}

	public := ResolveRoles(testRegistry, nil)
	if !CanAccessRow(testRegistry, public, table, row, "") {
		t.Fatal("shared row not visible on a table public can read")
	}
}

func TestCanAccessRow_PublishedReachability(t *testing.T) {
	table, _ := testRegistry.Table("article")
	row := map[string]interface{}{"id": "r1", "granted": "published @member", "owner_id": "5"}

	admin := ResolveRoles(testRegistry, &Authorization{Roles: []string{"admin"}})
	if !CanAccessRow(testRegistry, admin, table, row, "") {
		t.Fatal("admin cannot see row published to member")
	}

	public := ResolveRoles(testRegistry, nil)
	if CanAccessRow(testRegistry, public, table, row, "") {
		t.Fatal("public sees row published to member")
	}

	member := ResolveRoles(testRegistry, &Authorization{Roles: []string{"member"}})
	if !CanAccessRow(testRegistry, member, table, row, "") {
		t.Fatal("member cannot see row published to member")
	}
}

func TestParseGranted(t *testing.T) {
	state, role := ParseGranted("published @member")
	if state != GrantedPublished || role != "member" {
		t.Fatalf("unexpected parse result %s %s", state, role)
	}
	if state, _ := ParseGranted(nil); state != GrantedDraft {
		t.Fatal("nil granted should be draft")
	}
	if state, _ := ParseGranted("garbage"); state != GrantedDraft {
		t.Fatal("unknown granted state should fall back to draft")
	}
}

func TestFilterFields(t *testing.T) {
	table, _ := testRegistry.Table("article")
	row := map[string]interface{}{
		"id":            "r1",
		"granted":       "shared",
		"owner_id":      "5",
		"title":         "hello",
		"internal_note": "only for editors",
		"password_hash": "never",
	}

	public := ResolveRoles(testRegistry, nil)
	filtered := FilterFields(public, table, row)
	if _, ok := filtered["internal_note"]; ok {
		t.Fatal("gated field exposed to public")
	}
	if _, ok := filtered["password_hash"]; ok {
		t.Fatal("credential field exposed")
	}
	if filtered["title"] != "hello" || filtered["id"] != "r1" {
		t.Fatal("open fields lost")
	}

	editor := ResolveRoles(testRegistry, &Authorization{Roles: []string{"editor"}})
	filtered = FilterFields(editor, table, row)
	if _, ok := filtered["internal_note"]; !ok {
		t.Fatal("editor lost gated field")
	}
	if _, ok := filtered["password_hash"]; ok {
		t.Fatal("credential field exposed regardless of role")
	}
}

func TestFilterFields_Idempotent(t *testing.T) {
	table, _ := testRegistry.Table("article")
	row := map[string]interface{}{
		"id":            "r1",
		"title":         "hello",
		"internal_note": "gated",
	}
	public := ResolveRoles(testRegistry, nil)

	once := FilterFields(public, table, row)
	twice := FilterFields(public, table, once)
	if len(once) != len(twice) {
		t.Fatal("filtering is not idempotent")
	}
	for key, value := range once {
		if twice[key] != value {
			t.Fatalf("field %s changed on re-filtering", key)
		}
	}
}
