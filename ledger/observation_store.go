package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratahq/strata/db"
	"github.com/stratahq/strata/errors"
	"github.com/stratahq/strata/vals"
)

// ObservationStore persists the append-only observation ledger. There is no
// update or delete path here on purpose; corrections are new observations
// at CorrectionPriority, and only an entity merge transaction may touch an
// existing row (to rewrite its entity_id).
type ObservationStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewObservationStore creates an observation store backed by conn.
func NewObservationStore(conn *sql.DB, logger *zap.SugaredLogger) *ObservationStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ObservationStore{db: conn, logger: logger}
}

// Append inserts a new observation. Fills ID, ObservedAt and CreatedAt when
// unset. The caller owns entity resolution; entity_id must exist.
func (s *ObservationStore) Append(ctx context.Context, obs *Observation) error {
	if obs.EntityID == "" {
		return errors.Wrap(errors.ErrValidation, "observation requires an entity id")
	}
	if obs.Owner == "" {
		return errors.Wrap(errors.ErrAuthRequired, "observation requires an owner")
	}
	if obs.ID == "" {
		obs.ID = "OB" + uuid.NewString()
	}
	now := time.Now().UTC()
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = now
	}
	if obs.CreatedAt.IsZero() {
		obs.CreatedAt = now
	}

	fieldsJSON, err := vals.MarshalFields(obs.Fields)
	if err != nil {
		return errors.Wrap(err, "marshal observation fields")
	}

	var sourceID interface{}
	if obs.SourceID != "" {
		sourceID = obs.SourceID
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO observations (id, entity_id, schema_version, fields_json, priority, source_id, observed_at, owner, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		obs.ID, obs.EntityID, obs.SchemaVersion, string(fieldsJSON), obs.Priority,
		sourceID, obs.ObservedAt.UTC().Format(db.TimeFormat), obs.Owner,
		obs.CreatedAt.UTC().Format(db.TimeFormat))
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return errors.Wrapf(errors.ErrForeignKey,
				"observation references missing entity %s", obs.EntityID)
		}
		return errors.Wrap(err, "append observation")
	}

	s.logger.Debugw("Appended observation",
		"observation_id", obs.ID,
		"entity_id", obs.EntityID,
		"priority", obs.Priority,
		"field_count", len(obs.Fields),
	)
	return nil
}

// ListByEntity returns all observations for an entity, oldest first. When
// asOf is non-nil only observations with observed_at <= asOf are returned;
// historical snapshots are this filter plus the normal fold.
func (s *ObservationStore) ListByEntity(ctx context.Context, entityID, owner string, asOf *time.Time) ([]Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_id, schema_version, fields_json, priority, source_id, observed_at, owner, created_at
		FROM observations
		WHERE entity_id = ? AND owner = ?
		ORDER BY observed_at, id`,
		entityID, owner)
	if err != nil {
		return nil, errors.Wrap(err, "list observations")
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		if asOf != nil && obs.ObservedAt.After(*asOf) {
			continue
		}
		out = append(out, *obs)
	}
	return out, rows.Err()
}

// CountByEntity returns the number of observations attached to an entity.
func (s *ObservationStore) CountByEntity(ctx context.Context, entityID, owner string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM observations WHERE entity_id = ? AND owner = ?",
		entityID, owner).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "count observations")
	}
	return count, nil
}

// Get returns one observation by id.
func (s *ObservationStore) Get(ctx context.Context, id, owner string) (*Observation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity_id, schema_version, fields_json, priority, source_id, observed_at, owner, created_at
		FROM observations WHERE id = ? AND owner = ?`, id, owner)

	obs, err := scanObservation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(errors.ErrResourceNotFound, "observation %s", id)
		}
		return nil, err
	}
	return obs, nil
}

type obsScanner interface {
	Scan(dest ...interface{}) error
}

func scanObservation(row obsScanner) (*Observation, error) {
	var (
		obs        Observation
		fieldsJSON string
		sourceID   sql.NullString
		observedAt string
		createdAt  string
	)
	if err := row.Scan(&obs.ID, &obs.EntityID, &obs.SchemaVersion, &fieldsJSON,
		&obs.Priority, &sourceID, &observedAt, &obs.Owner, &createdAt); err != nil {
		return nil, err
	}

	fields, err := vals.UnmarshalFields([]byte(fieldsJSON))
	if err != nil {
		return nil, errors.Wrapf(err, "decode fields for observation %s", obs.ID)
	}
	obs.Fields = fields
	obs.SourceID = sourceID.String

	if t, err := time.Parse(time.RFC3339Nano, observedAt); err == nil {
		obs.ObservedAt = t
	} else {
		return nil, errors.Wrapf(err, "parse observed_at for observation %s", obs.ID)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		obs.CreatedAt = t
	}
	return &obs, nil
}
