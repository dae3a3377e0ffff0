package core

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestCapability_JSON_Unmarshalling(t *testing.T) {

	type Object struct {
		Capabilities []Capability `json:"capabilities"`
	}
	var object Object
	jsonRead := `{"capabilities":["create","read","update","publish"]}`
	err := json.Unmarshal([]byte(jsonRead), &object)
	if err != nil {
		t.Fatal(err)
	}

	jsonRead = `{"capabilities":["invalid"]}`
	err = json.Unmarshal([]byte(jsonRead), &object)
	if err == nil {
		t.Fatal("invalid capability accepted")
	}
}

func TestPlural(t *testing.T) {
	cases := map[string]string{
		"article":  "articles",
		"category": "categories",
		"child":    "children",
	}
	for singular, plural := range cases {
		if Plural(singular) != plural {
			t.Fatalf("plural of %s: got %s, want %s", singular, Plural(singular), plural)
		}
	}
}
