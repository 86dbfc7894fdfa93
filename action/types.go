// Package action is the operation surface of the truth layer: one typed
// request and result per operation, dispatched against the underlying
// stores, with errors classified by kind.
package action

import (
	"time"

	"github.com/stratahq/strata/enhance"
	"github.com/stratahq/strata/entity"
	"github.com/stratahq/strata/graph"
	"github.com/stratahq/strata/ingest"
	"github.com/stratahq/strata/ledger"
	"github.com/stratahq/strata/schema"
	"github.com/stratahq/strata/snapshot"
	"github.com/stratahq/strata/vals"
)

// IngestStoreRequest stores raw content and its extracted candidates.
type IngestStoreRequest struct {
	Content        []byte             `json:"content"`
	MimeType       string             `json:"mime_type"`
	IdempotencyKey string             `json:"idempotency_key"`
	Candidates     []ingest.Candidate `json:"candidates"`
	Owner          string             `json:"owner"`
}

// GetEntitySnapshotRequest computes an entity's current or historical state.
type GetEntitySnapshotRequest struct {
	EntityID string     `json:"entity_id"`
	At       *time.Time `json:"at,omitempty"`
	Owner    string     `json:"owner"`
}

// ListObservationsRequest returns an entity's raw observation ledger.
type ListObservationsRequest struct {
	EntityID string     `json:"entity_id"`
	AsOf     *time.Time `json:"as_of,omitempty"`
	Owner    string     `json:"owner"`
}

// ListObservationsResult carries the ledger rows, oldest first.
type ListObservationsResult struct {
	EntityID     string               `json:"entity_id"`
	Observations []ledger.Observation `json:"observations"`
}

// FieldProvenanceRequest traces one snapshot field to its origin.
type FieldProvenanceRequest struct {
	EntityID string `json:"entity_id"`
	Field    string `json:"field"`
	Owner    string `json:"owner"`
}

// CreateRelationshipRequest adds a typed edge between two entities.
type CreateRelationshipRequest struct {
	Type     graph.RelationshipType `json:"type"`
	SourceID string                 `json:"source_entity_id"`
	TargetID string                 `json:"target_entity_id"`
	Metadata map[string]vals.Value  `json:"metadata,omitempty"`
	Owner    string                 `json:"owner"`
}

// ListRelationshipsRequest traverses the graph from one entity.
type ListRelationshipsRequest struct {
	EntityID string       `json:"entity_id"`
	Filter   graph.Filter `json:"filter"`
	Owner    string       `json:"owner"`
}

// ListRelationshipsResult carries the traversal output.
type ListRelationshipsResult struct {
	EntityID string       `json:"entity_id"`
	Edges    []graph.Edge `json:"edges"`
}

// MergeEntitiesRequest folds one duplicate entity into another.
type MergeEntitiesRequest struct {
	FromID string `json:"from_entity_id"`
	ToID   string `json:"to_entity_id"`
	Reason string `json:"reason"`
	Owner  string `json:"owner"`
}

// MergeEntitiesResult reports the merge outcome.
type MergeEntitiesResult struct {
	FromID            string    `json:"from_entity_id"`
	ToID              string    `json:"to_entity_id"`
	ObservationsMoved int       `json:"observations_moved"`
	MergedAt          time.Time `json:"merged_at"`
}

// AnalyzeSchemaCandidatesRequest re-scores the fragment ledger on demand.
type AnalyzeSchemaCandidatesRequest struct {
	Owner string `json:"owner"`
}

// AnalyzeSchemaCandidatesResult carries the refreshed recommendations.
type AnalyzeSchemaCandidatesResult struct {
	Recommendations []enhance.Recommendation `json:"recommendations"`
}

// GetSchemaRecommendationsRequest lists promotion candidates.
type GetSchemaRecommendationsRequest struct {
	Status enhance.Status `json:"status,omitempty"`
	Owner  string         `json:"owner"`
}

// ApplySchemaRecommendationRequest promotes one recommendation into schema.
type ApplySchemaRecommendationRequest struct {
	RecommendationID string `json:"recommendation_id"`
	Owner            string `json:"owner"`
}

// RegisterSchemaRequest creates a new schema version.
type RegisterSchemaRequest struct {
	EntityType string                     `json:"entity_type"`
	Fields     map[string]schema.FieldDef `json:"fields"`
	Owner      string                     `json:"owner"`
}

// UpdateSchemaRequest adds fields to the active schema version.
type UpdateSchemaRequest struct {
	EntityType string                     `json:"entity_type"`
	Additions  map[string]schema.FieldDef `json:"additions"`
	Owner      string                     `json:"owner"`
}

// CorrectRequest appends a user correction to an entity.
type CorrectRequest struct {
	EntityID string                `json:"entity_id"`
	Fields   map[string]vals.Value `json:"fields"`
	Owner    string                `json:"owner"`
}

// ReinterpretRequest replays a stored source through the current schema.
type ReinterpretRequest struct {
	SourceID string `json:"source_id"`
	Owner    string `json:"owner"`
}

// ResolveEntityRequest finds or creates the entity a field bag names.
type ResolveEntityRequest struct {
	EntityType string                `json:"entity_type"`
	Fields     map[string]vals.Value `json:"fields"`
	Owner      string                `json:"owner"`
}

// ResolveEntityResult reports the resolved entity.
type ResolveEntityResult struct {
	Entity  *entity.Entity `json:"entity"`
	Created bool           `json:"created"`
}

// SnapshotResult is the shared result shape for snapshot reads.
type SnapshotResult struct {
	Snapshot *snapshot.Snapshot `json:"snapshot"`
}
