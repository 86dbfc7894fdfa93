package graph

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stratahq/strata/db"
	"github.com/stratahq/strata/errors"
	"github.com/stratahq/strata/ledger"
	"github.com/stratahq/strata/snapshot"
	"github.com/stratahq/strata/vals"
)

// AddObservation appends one immutable fact contribution to a relationship's
// observation ledger. Relationship observations are schemaless; every field
// folds under highest_priority_wins.
func (s *Store) AddObservation(ctx context.Context, relationshipID string, fields map[string]vals.Value, priority int, sourceID, owner string) (string, error) {
	if owner == "" {
		return "", errors.Wrap(errors.ErrAuthRequired, "relationship observation requires an owner")
	}
	if len(fields) == 0 {
		return "", errors.Wrap(errors.ErrValidation, "relationship observation carries no fields")
	}
	if _, err := s.Get(ctx, relationshipID, owner); err != nil {
		return "", err
	}

	fieldsJSON, err := vals.MarshalFields(fields)
	if err != nil {
		return "", errors.Wrap(err, "marshal relationship observation fields")
	}

	id := "RO" + uuid.NewString()
	now := time.Now().UTC().Format(db.TimeFormat)

	var srcID interface{}
	if sourceID != "" {
		srcID = sourceID
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO relationship_observations (id, relationship_id, fields_json, priority, source_id, observed_at, owner, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, relationshipID, string(fieldsJSON), priority, srcID, now, owner, now); err != nil {
		return "", errors.Wrap(err, "insert relationship observation")
	}
	return id, nil
}

// Snapshot folds a relationship's observation ledger into its current
// state, using the same deterministic reduction entity snapshots use.
func (s *Store) Snapshot(ctx context.Context, relationshipID, owner string) (*RelationshipSnapshot, error) {
	if _, err := s.Get(ctx, relationshipID, owner); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fields_json, priority, source_id, observed_at, owner
		FROM relationship_observations
		WHERE relationship_id = ? AND owner = ?
		ORDER BY observed_at, id`, relationshipID, owner)
	if err != nil {
		return nil, errors.Wrap(err, "list relationship observations")
	}
	defer rows.Close()

	var observations []ledger.Observation
	for rows.Next() {
		var (
			obs        ledger.Observation
			fieldsJSON string
			sourceID   *string
			observedAt string
		)
		if err := rows.Scan(&obs.ID, &fieldsJSON, &obs.Priority, &sourceID, &observedAt, &obs.Owner); err != nil {
			return nil, errors.Wrap(err, "scan relationship observation")
		}
		obs.EntityID = relationshipID
		if sourceID != nil {
			obs.SourceID = *sourceID
		}
		if obs.Fields, err = vals.UnmarshalFields([]byte(fieldsJSON)); err != nil {
			return nil, errors.Wrapf(err, "decode fields for relationship observation %s", obs.ID)
		}
		if t, err := time.Parse(time.RFC3339Nano, observedAt); err == nil {
			obs.ObservedAt = t
		}
		observations = append(observations, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fields, provenance := snapshot.Reduce(observations, nil)
	return &RelationshipSnapshot{
		RelationshipID:   relationshipID,
		Fields:           fields,
		Provenance:       provenance,
		ObservationCount: len(observations),
		ComputedAt:       time.Now().UTC(),
	}, nil
}
