// Package snapshot reconstructs entity state deterministically from the
// observation ledger. The fold is pure: given the same set of observations
// it produces a byte-identical result in any presentation order. Historical
// queries are the same fold over a time-filtered observation set; there is
// no separate code path and no cached as-of state.
package snapshot

import (
	"time"

	"github.com/stratahq/strata/ledger"
	"github.com/stratahq/strata/schema"
	"github.com/stratahq/strata/vals"
)

// Provenance traces one snapshot field back to the observation that won it.
type Provenance struct {
	ObservationID string    `json:"observation_id"`
	SourceID      string    `json:"source_id,omitempty"`
	ObservedAt    time.Time `json:"observed_at"`
}

// Snapshot is the reduced current (or historical) state of an entity.
type Snapshot struct {
	EntityID         string                `json:"entity_id"`
	Fields           map[string]vals.Value `json:"fields"`
	Provenance       map[string]Provenance `json:"provenance"`
	ObservationCount int                   `json:"observation_count"`
	ComputedAt       time.Time             `json:"computed_at"`
	SchemaVersion    int                   `json:"schema_version"`
}

// Reduce folds observations into field values and per-field provenance.
// For every field present in any observation the winner is selected by that
// field's merge policy from the schema (nil schema means every field uses
// the default policy). Provenance is recorded from the same selection pass,
// so snapshot and provenance can never disagree.
func Reduce(observations []ledger.Observation, sch *schema.Schema) (map[string]vals.Value, map[string]Provenance) {
	fields := make(map[string]vals.Value)
	provenance := make(map[string]Provenance)
	winners := make(map[string]*ledger.Observation)

	for i := range observations {
		obs := &observations[i]
		for key := range obs.Fields {
			incumbent := winners[key]
			if incumbent == nil || beats(obs, incumbent, sch.PolicyFor(key)) {
				winners[key] = obs
			}
		}
	}

	for key, obs := range winners {
		fields[key] = obs.Fields[key]
		provenance[key] = Provenance{
			ObservationID: obs.ID,
			SourceID:      obs.SourceID,
			ObservedAt:    obs.ObservedAt,
		}
	}
	return fields, provenance
}

// ReduceField selects the winning observation for a single field, replaying
// exactly the comparator Reduce uses. Returns nil when no observation
// carries the field.
func ReduceField(observations []ledger.Observation, field string, policy schema.MergePolicy) *ledger.Observation {
	var winner *ledger.Observation
	for i := range observations {
		obs := &observations[i]
		if _, ok := obs.Fields[field]; !ok {
			continue
		}
		if winner == nil || beats(obs, winner, policy) {
			winner = obs
		}
	}
	return winner
}

// beats reports whether a wins over b under the given merge policy. The
// comparator is a total order: priority and timestamp ties are broken by
// observation id, never by presentation order.
func beats(a, b *ledger.Observation, policy schema.MergePolicy) bool {
	switch policy {
	case schema.MergeLastWrite:
		if !a.ObservedAt.Equal(b.ObservedAt) {
			return a.ObservedAt.After(b.ObservedAt)
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
	case schema.MergeFirstWrite:
		if !a.ObservedAt.Equal(b.ObservedAt) {
			return a.ObservedAt.Before(b.ObservedAt)
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
	default: // MergeHighestPriority
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.ObservedAt.Equal(b.ObservedAt) {
			return a.ObservedAt.After(b.ObservedAt)
		}
	}
	return a.ID < b.ID
}
