package snapshot

import (
	"context"

	"github.com/stratahq/strata/errors"
	"github.com/stratahq/strata/ledger"
	"github.com/stratahq/strata/vals"
)

// FieldTrace is the provenance of one field: the winning value, the
// observation that carried it, and the source that produced that
// observation (nil for synthetic observations such as corrections entered
// directly).
type FieldTrace struct {
	Field       string             `json:"field"`
	Value       vals.Value         `json:"value"`
	Observation ledger.Observation `json:"observation"`
	Source      *ledger.Source     `json:"source,omitempty"`
}

// FieldProvenance traces a single snapshot field back to its origin. It is
// not a stored table: it replays the exact merge-policy selection the
// reducer uses for that field, so it can never diverge from what Compute
// would report.
func (r *Reducer) FieldProvenance(ctx context.Context, entityID, field, owner string) (*FieldTrace, error) {
	ent, err := r.entities.GetActive(ctx, entityID, owner)
	if err != nil {
		return nil, err
	}

	observations, err := r.observations.ListByEntity(ctx, ent.ID, owner, nil)
	if err != nil {
		return nil, err
	}

	sch, err := r.registry.LoadActive(ctx, ent.EntityType, owner)
	if err != nil {
		return nil, err
	}

	winner := ReduceField(observations, field, sch.PolicyFor(field))
	if winner == nil {
		return nil, errors.Wrapf(errors.ErrResourceNotFound,
			"no observation carries field %q for entity %s", field, ent.ID)
	}

	trace := &FieldTrace{
		Field:       field,
		Value:       winner.Fields[field],
		Observation: *winner,
	}

	if winner.SourceID != "" {
		src, err := r.sources.Get(ctx, winner.SourceID, owner)
		if err != nil && !errors.IsNotFound(err) {
			return nil, err
		}
		trace.Source = src
	}

	return trace, nil
}
