// Package guidgen mints the lowercase 8-4-4-4-12 GUIDs the builder
// stamps onto lineage tags, relationships, and cloned .platform
// logicalId fields.
package guidgen

import "github.com/google/uuid"

// New returns a fresh GUID formatted lowercase 8-4-4-4-12, e.g.
// "f47ac10b-58cc-4372-a567-0e02b2c3d479". google/uuid already produces
// this canonical form; New exists so every fresh-GUID call site in the
// builder goes through one named seam instead of importing uuid
// directly.
func New() string {
	return uuid.NewString()
}
