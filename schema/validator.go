package schema

import (
	"github.com/stratahq/strata/vals"
)

// Validate splits a field bag into fields the schema recognizes and fields
// it does not. A nil schema means the entity type is completely unknown;
// every field is routed to unknown so the fragment ledger can observe it
// and auto-enhancement can eventually bootstrap a schema for the type.
// This policy is applied uniformly for structured and unstructured input.
func Validate(fields map[string]vals.Value, s *Schema) (known, unknown map[string]vals.Value) {
	known = make(map[string]vals.Value)
	unknown = make(map[string]vals.Value)

	if s == nil {
		for k, v := range fields {
			unknown[k] = v
		}
		return known, unknown
	}

	for k, v := range fields {
		if s.HasField(k) {
			known[k] = v
		} else {
			unknown[k] = v
		}
	}
	return known, unknown
}
