package snapshot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/stratahq/strata/entity"
	"github.com/stratahq/strata/ledger"
	"github.com/stratahq/strata/schema"
)

// Reducer computes entity snapshots on demand from the stores. Computation
// is synchronous on the read path; there is nothing to defer and nothing
// for a caller to poll for.
type Reducer struct {
	entities     *entity.Store
	observations *ledger.ObservationStore
	sources      *ledger.SourceStore
	registry     *schema.Registry
	logger       *zap.SugaredLogger
}

// NewReducer wires a reducer over the shared stores.
func NewReducer(entities *entity.Store, observations *ledger.ObservationStore, sources *ledger.SourceStore, registry *schema.Registry, logger *zap.SugaredLogger) *Reducer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Reducer{
		entities:     entities,
		observations: observations,
		sources:      sources,
		registry:     registry,
		logger:       logger,
	}
}

// Compute folds an entity's observations into its current state, or its
// state as of a historical timestamp when at is non-nil. Merged entities
// are followed to their merge target.
func (r *Reducer) Compute(ctx context.Context, entityID, owner string, at *time.Time) (*Snapshot, error) {
	ent, err := r.entities.GetActive(ctx, entityID, owner)
	if err != nil {
		return nil, err
	}

	observations, err := r.observations.ListByEntity(ctx, ent.ID, owner, at)
	if err != nil {
		return nil, err
	}

	sch, err := r.registry.LoadActive(ctx, ent.EntityType, owner)
	if err != nil {
		return nil, err
	}

	fields, provenance := Reduce(observations, sch)

	schemaVersion := schema.BuiltinVersion
	if sch != nil {
		schemaVersion = sch.Version
	}

	return &Snapshot{
		EntityID:         ent.ID,
		Fields:           fields,
		Provenance:       provenance,
		ObservationCount: len(observations),
		ComputedAt:       time.Now().UTC(),
		SchemaVersion:    schemaVersion,
	}, nil
}
