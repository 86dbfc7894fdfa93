// Package ledger owns the immutable record stores at the bottom of the
// truth layer: content-addressed sources, the append-only observation
// ledger, and the raw fragment ledger feeding auto-enhancement.
package ledger

import (
	"time"

	"github.com/stratahq/strata/vals"
)

// CorrectionPriority is the priority carried by correction observations.
// It is the maximum value the system ever writes, so corrections always win
// under the highest_priority_wins merge policy.
const CorrectionPriority = 1_000_000

// Source is a content-addressed raw input. Immutable; created once per
// unique (idempotency key, owner) pair.
type Source struct {
	ID             string    `json:"id"`
	ContentHash    string    `json:"content_hash"`
	IdempotencyKey string    `json:"idempotency_key"`
	SizeBytes      int64     `json:"size_bytes"`
	MimeType       string    `json:"mime_type"`
	Owner          string    `json:"owner"`
	CreatedAt      time.Time `json:"created_at"`
}

// SourceRecord is one candidate tuple captured at ingest time, keyed by its
// position within the source. Replayed verbatim by reinterpretation.
type SourceRecord struct {
	SourceID   string                `json:"source_id"`
	Seq        int                   `json:"seq"`
	EntityType string                `json:"entity_type"`
	Fields     map[string]vals.Value `json:"fields"`
}

// RecordRef identifies a record within its source for fragment diversity
// accounting.
func (r SourceRecord) RecordRef() string {
	return recordRef(r.SourceID, r.Seq)
}

// Observation is one immutable fact contribution about an entity from one
// source. Never updated or deleted; a merge transaction may rewrite
// EntityID, nothing else.
type Observation struct {
	ID            string                `json:"id"`
	EntityID      string                `json:"entity_id"`
	SchemaVersion int                   `json:"schema_version"`
	Fields        map[string]vals.Value `json:"fields"`
	Priority      int                   `json:"priority"`
	SourceID      string                `json:"source_id,omitempty"`
	ObservedAt    time.Time             `json:"observed_at"`
	Owner         string                `json:"owner"`
	CreatedAt     time.Time             `json:"created_at"`
}

// RawFragment aggregates sightings of one unrecognized field per entity
// type. Frequency is incremented on repeat sightings, never re-inserted.
type RawFragment struct {
	EntityType     string       `json:"entity_type"`
	FragmentKey    string       `json:"fragment_key"`
	SampleValues   []vals.Value `json:"sample_values"`
	FrequencyCount int          `json:"frequency_count"`
	SourceIDs      []string     `json:"source_ids"`
	RecordRefs     []string     `json:"record_refs"`
	Owner          string       `json:"owner"`
	FirstSeenAt    time.Time    `json:"first_seen_at"`
	LastSeenAt     time.Time    `json:"last_seen_at"`
}
