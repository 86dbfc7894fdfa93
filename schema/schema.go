// Package schema holds the versioned schema registry and the validator that
// splits incoming field bags into known and unknown fields. Schema evolution
// is additive-only: a field definition is never removed or retyped in place;
// changing shape means registering a new version. Exactly one version per
// (entity type, owner) is active at a time, and readers always see a
// complete version (copy-on-write with an atomic active flip).
package schema

import (
	"time"
)

// MergePolicy selects the winning value for a field when observations
// conflict. See the snapshot package for the fold that applies these.
type MergePolicy string

const (
	// MergeHighestPriority picks the value with the highest observation
	// priority. Corrections always win under this policy. Default.
	MergeHighestPriority MergePolicy = "highest_priority_wins"

	// MergeLastWrite picks the most recently observed value.
	MergeLastWrite MergePolicy = "last_write_wins"

	// MergeFirstWrite picks the earliest observed value.
	MergeFirstWrite MergePolicy = "first_write_wins"
)

// ValidPolicy reports whether p is one of the supported merge policies.
func ValidPolicy(p MergePolicy) bool {
	switch p {
	case MergeHighestPriority, MergeLastWrite, MergeFirstWrite:
		return true
	}
	return false
}

// FieldDef describes one schema field.
type FieldDef struct {
	Type        string      `json:"type"`
	MergePolicy MergePolicy `json:"merge_policy"`
}

// Schema is one immutable version of an entity type's field definitions.
// BuiltinVersion (0) marks the default catalogue; stored versions start
// at 1.
type Schema struct {
	EntityType string              `json:"entity_type"`
	Version    int                 `json:"version"`
	Fields     map[string]FieldDef `json:"fields"`
	Active     bool                `json:"active"`
	Owner      string              `json:"owner,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// BuiltinVersion is the version number reported for default-catalogue
// schemas that have not been materialized into the store.
const BuiltinVersion = 0

// HasField reports whether the schema defines the field.
func (s *Schema) HasField(key string) bool {
	_, ok := s.Fields[key]
	return ok
}

// PolicyFor returns the merge policy for a field, defaulting to
// MergeHighestPriority for unknown fields and unset policies.
func (s *Schema) PolicyFor(key string) MergePolicy {
	if s != nil {
		if def, ok := s.Fields[key]; ok && ValidPolicy(def.MergePolicy) {
			return def.MergePolicy
		}
	}
	return MergeHighestPriority
}
