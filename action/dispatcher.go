package action

import (
	"context"

	"go.uber.org/zap"

	"github.com/stratahq/strata/enhance"
	"github.com/stratahq/strata/entity"
	"github.com/stratahq/strata/errors"
	"github.com/stratahq/strata/graph"
	"github.com/stratahq/strata/ingest"
	"github.com/stratahq/strata/ledger"
	"github.com/stratahq/strata/schema"
	"github.com/stratahq/strata/snapshot"
)

// Dispatcher executes every operation against the wired stores. All
// operations require an owner and surface classified errors.
type Dispatcher struct {
	pipeline      *ingest.Pipeline
	reducer       *snapshot.Reducer
	entities      *entity.Store
	observations  *ledger.ObservationStore
	relationships *graph.Store
	registry      *schema.Registry
	engine        *enhance.Engine
	logger        *zap.SugaredLogger
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(pipeline *ingest.Pipeline, reducer *snapshot.Reducer, entities *entity.Store, observations *ledger.ObservationStore, relationships *graph.Store, registry *schema.Registry, engine *enhance.Engine, logger *zap.SugaredLogger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Dispatcher{
		pipeline:      pipeline,
		reducer:       reducer,
		entities:      entities,
		observations:  observations,
		relationships: relationships,
		registry:      registry,
		engine:        engine,
		logger:        logger,
	}
}

func requireOwner(owner string) error {
	if owner == "" {
		return errors.Wrap(errors.ErrAuthRequired, "an owner is required")
	}
	return nil
}

// IngestStore stores raw content and routes its candidates.
func (d *Dispatcher) IngestStore(ctx context.Context, req IngestStoreRequest) (*ingest.Result, error) {
	if err := requireOwner(req.Owner); err != nil {
		return nil, classify(err)
	}
	result, err := d.pipeline.Ingest(ctx, ingest.Request{
		Content:        req.Content,
		MimeType:       req.MimeType,
		IdempotencyKey: req.IdempotencyKey,
		Candidates:     req.Candidates,
		Owner:          req.Owner,
	})
	return result, classify(err)
}

// GetEntitySnapshot computes current or historical entity state.
func (d *Dispatcher) GetEntitySnapshot(ctx context.Context, req GetEntitySnapshotRequest) (*SnapshotResult, error) {
	if err := requireOwner(req.Owner); err != nil {
		return nil, classify(err)
	}
	snap, err := d.reducer.Compute(ctx, req.EntityID, req.Owner, req.At)
	if err != nil {
		return nil, classify(err)
	}
	return &SnapshotResult{Snapshot: snap}, nil
}

// ListObservations returns an entity's raw ledger, following merge
// redirects.
func (d *Dispatcher) ListObservations(ctx context.Context, req ListObservationsRequest) (*ListObservationsResult, error) {
	if err := requireOwner(req.Owner); err != nil {
		return nil, classify(err)
	}
	ent, err := d.entities.GetActive(ctx, req.EntityID, req.Owner)
	if err != nil {
		return nil, classify(err)
	}
	observations, err := d.observations.ListByEntity(ctx, ent.ID, req.Owner, req.AsOf)
	if err != nil {
		return nil, classify(err)
	}
	return &ListObservationsResult{EntityID: ent.ID, Observations: observations}, nil
}

// FieldProvenance traces one field to its winning observation and source.
func (d *Dispatcher) FieldProvenance(ctx context.Context, req FieldProvenanceRequest) (*snapshot.FieldTrace, error) {
	if err := requireOwner(req.Owner); err != nil {
		return nil, classify(err)
	}
	if req.Field == "" {
		return nil, classify(errors.Wrap(errors.ErrValidation, "a field name is required"))
	}
	trace, err := d.reducer.FieldProvenance(ctx, req.EntityID, req.Field, req.Owner)
	return trace, classify(err)
}

// CreateRelationship adds a typed edge.
func (d *Dispatcher) CreateRelationship(ctx context.Context, req CreateRelationshipRequest) (*graph.Relationship, error) {
	if err := requireOwner(req.Owner); err != nil {
		return nil, classify(err)
	}
	rel, err := d.relationships.Create(ctx, req.Type, req.SourceID, req.TargetID, req.Metadata, req.Owner)
	return rel, classify(err)
}

// ListRelationships traverses the graph from one entity.
func (d *Dispatcher) ListRelationships(ctx context.Context, req ListRelationshipsRequest) (*ListRelationshipsResult, error) {
	if err := requireOwner(req.Owner); err != nil {
		return nil, classify(err)
	}
	edges, err := d.relationships.List(ctx, req.EntityID, req.Owner, req.Filter)
	if err != nil {
		return nil, classify(err)
	}
	return &ListRelationshipsResult{EntityID: req.EntityID, Edges: edges}, nil
}

// MergeEntities folds a duplicate into its canonical entity.
func (d *Dispatcher) MergeEntities(ctx context.Context, req MergeEntitiesRequest) (*MergeEntitiesResult, error) {
	if err := requireOwner(req.Owner); err != nil {
		return nil, classify(err)
	}
	merged, err := d.entities.Merge(ctx, req.FromID, req.ToID, req.Reason, req.Owner)
	if err != nil {
		return nil, classify(err)
	}
	return &MergeEntitiesResult{
		FromID:            req.FromID,
		ToID:              req.ToID,
		ObservationsMoved: merged.ObservationsMoved,
		MergedAt:          merged.MergedAt,
	}, nil
}

// AnalyzeSchemaCandidates re-scores the fragment ledger on demand.
func (d *Dispatcher) AnalyzeSchemaCandidates(ctx context.Context, req AnalyzeSchemaCandidatesRequest) (*AnalyzeSchemaCandidatesResult, error) {
	if err := requireOwner(req.Owner); err != nil {
		return nil, classify(err)
	}
	recommendations, err := d.engine.Analyze(ctx, req.Owner)
	if err != nil {
		return nil, classify(err)
	}
	return &AnalyzeSchemaCandidatesResult{Recommendations: recommendations}, nil
}

// GetSchemaRecommendations lists promotion candidates.
func (d *Dispatcher) GetSchemaRecommendations(ctx context.Context, req GetSchemaRecommendationsRequest) ([]enhance.Recommendation, error) {
	if err := requireOwner(req.Owner); err != nil {
		return nil, classify(err)
	}
	recommendations, err := d.engine.Recommendations().List(ctx, req.Owner, req.Status)
	return recommendations, classify(err)
}

// ApplySchemaRecommendation promotes one recommendation into schema.
func (d *Dispatcher) ApplySchemaRecommendation(ctx context.Context, req ApplySchemaRecommendationRequest) (*schema.Schema, error) {
	if err := requireOwner(req.Owner); err != nil {
		return nil, classify(err)
	}
	applied, err := d.engine.Apply(ctx, req.RecommendationID, req.Owner)
	return applied, classify(err)
}

// RegisterSchema creates a new schema version.
func (d *Dispatcher) RegisterSchema(ctx context.Context, req RegisterSchemaRequest) (*schema.Schema, error) {
	if err := requireOwner(req.Owner); err != nil {
		return nil, classify(err)
	}
	registered, err := d.registry.Register(ctx, req.EntityType, req.Fields, req.Owner)
	return registered, classify(err)
}

// UpdateSchema adds field definitions to the active version.
func (d *Dispatcher) UpdateSchema(ctx context.Context, req UpdateSchemaRequest) (*schema.Schema, error) {
	if err := requireOwner(req.Owner); err != nil {
		return nil, classify(err)
	}
	updated, err := d.registry.UpdateIncremental(ctx, req.EntityType, req.Additions, req.Owner)
	return updated, classify(err)
}

// Correct appends a user correction.
func (d *Dispatcher) Correct(ctx context.Context, req CorrectRequest) (*ledger.Observation, error) {
	if err := requireOwner(req.Owner); err != nil {
		return nil, classify(err)
	}
	obs, err := d.pipeline.Correct(ctx, req.EntityID, req.Fields, req.Owner)
	return obs, classify(err)
}

// Reinterpret replays a stored source through the current schema.
func (d *Dispatcher) Reinterpret(ctx context.Context, req ReinterpretRequest) (*ingest.Result, error) {
	if err := requireOwner(req.Owner); err != nil {
		return nil, classify(err)
	}
	result, err := d.pipeline.Reinterpret(ctx, req.SourceID, req.Owner)
	return result, classify(err)
}

// ResolveEntity finds or creates the entity a field bag names.
func (d *Dispatcher) ResolveEntity(ctx context.Context, req ResolveEntityRequest) (*ResolveEntityResult, error) {
	if err := requireOwner(req.Owner); err != nil {
		return nil, classify(err)
	}
	ent, created, err := d.entities.Resolve(ctx, req.EntityType, req.Fields, req.Owner)
	if err != nil {
		return nil, classify(err)
	}
	return &ResolveEntityResult{Entity: ent, Created: created}, nil
}
