// Package entity implements deterministic entity resolution and merge.
// An entity's identity is a pure function of (type, canonical name, owner):
// resolving the same logical entity any number of times yields the same id
// and exactly one row. Entities are never deleted; a merge soft-redirects
// one entity to another and atomically rewrites its observations.
package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/stratahq/strata/errors"
	"github.com/stratahq/strata/vals"
)

// Entity is a resolved, stable real-world thing.
type Entity struct {
	ID            string     `json:"id"`
	EntityType    string     `json:"entity_type"`
	CanonicalName string     `json:"canonical_name"`
	Aliases       []string   `json:"aliases,omitempty"`
	MergedTo      string     `json:"merged_to_entity_id,omitempty"`
	MergedAt      *time.Time `json:"merged_at,omitempty"`
	Owner         string     `json:"owner"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Merged reports whether the entity has been merged away.
func (e *Entity) Merged() bool { return e.MergedTo != "" }

// nameFields designates which field(s) derive the canonical name per type.
// Types absent from this map fall back to title, then name, then id.
var nameFields = map[string][]string{
	"task":         {"title"},
	"document":     {"title"},
	"note":         {"title"},
	"person":       {"name"},
	"organization": {"name"},
	"transaction":  {"date", "amount"},
}

var fallbackNameFields = []string{"title", "name", "id"}

// CanonicalName derives the normalized identity key for an entity from its
// fields. Composite rules (e.g. transaction date+amount) join their parts
// with "|". Returns a validation error when no designated field carries a
// usable value.
func CanonicalName(entityType string, fields map[string]vals.Value) (string, error) {
	keys, ok := nameFields[entityType]
	if ok {
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			part := fieldText(fields[key])
			if part == "" {
				return "", errors.Wrapf(errors.ErrValidation,
					"cannot resolve %s: designated field %q is missing or empty", entityType, key)
			}
			parts = append(parts, part)
		}
		return normalizeName(strings.Join(parts, "|")), nil
	}

	for _, key := range fallbackNameFields {
		if part := fieldText(fields[key]); part != "" {
			return normalizeName(part), nil
		}
	}
	return "", errors.Wrapf(errors.ErrValidation,
		"cannot resolve %s: no title, name or id field present", entityType)
}

// DeriveID computes the deterministic entity id. Field separators prevent
// ("ab","c") and ("a","bc") from colliding.
func DeriveID(entityType, canonicalName, owner string) string {
	sum := sha256.Sum256([]byte(entityType + "\x1f" + canonicalName + "\x1f" + owner))
	return "EN" + hex.EncodeToString(sum[:])[:24]
}

func fieldText(v vals.Value) string {
	switch v.Kind {
	case vals.KindString:
		return strings.TrimSpace(v.Str)
	case vals.KindNumber:
		// shortest representation, so 42 and 42.0 resolve identically
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case vals.KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}
