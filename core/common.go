package core

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Capability represents an access capability on a table or a single field,
// one of Create, Read, Update, Delete, Publish
type Capability string

// all supported capabilities
const (
	CapabilityCreate  Capability = "create"
	CapabilityRead    Capability = "read"
	CapabilityUpdate  Capability = "update"
	CapabilityDelete  Capability = "delete"
	CapabilityPublish Capability = "publish"
)

// UnmarshalJSON is a custom JSON unmarshaller
func (c *Capability) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*c = Capability(s)
	switch *c {
	case CapabilityCreate, CapabilityRead, CapabilityUpdate, CapabilityDelete, CapabilityPublish:
		return nil
	default:
		return fmt.Errorf("%s is not a valid Capability", s)
	}
}

// Plural returns the plural form of the passed singular string.
//
// This is the algorithm used to label table list views in generated clients
func Plural(singular string) string {
	if strings.HasSuffix(singular, "y") {
		return strings.TrimSuffix(singular, "y") + "ies"
	}
	if strings.HasSuffix(singular, "child") {
		return strings.TrimSuffix(singular, "child") + "children"
	}
	return singular + "s"
}
