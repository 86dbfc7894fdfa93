package entity

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/stratahq/strata/db"
	"github.com/stratahq/strata/errors"
	"github.com/stratahq/strata/vals"
)

// Store persists entities and performs resolution and merge against the
// shared SQLite database.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewStore creates an entity store backed by conn.
func NewStore(conn *sql.DB, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{db: conn, logger: logger}
}

// MergeResult reports what a merge transaction did.
type MergeResult struct {
	ObservationsMoved int       `json:"observations_moved"`
	MergedAt          time.Time `json:"merged_at"`
}

// Resolve finds or creates the entity identified by the fields' canonical
// name. Resolution never mutates an existing entity's stored columns; only
// observations accumulate. Returns the entity and whether it was created.
func (s *Store) Resolve(ctx context.Context, entityType string, fields map[string]vals.Value, owner string) (*Entity, bool, error) {
	if owner == "" {
		return nil, false, errors.Wrap(errors.ErrAuthRequired, "resolution requires an owner")
	}
	if entityType == "" {
		return nil, false, errors.Wrap(errors.ErrValidation, "entity type is required")
	}

	canonical, err := CanonicalName(entityType, fields)
	if err != nil {
		return nil, false, err
	}
	id := DeriveID(entityType, canonical, owner)

	if existing, err := s.Get(ctx, id, owner); err == nil {
		// A merged row is a redirect, never a write target. New observations
		// for the old name must land on the surviving entity or they would
		// be invisible to every snapshot read.
		if existing.Merged() {
			target, err := s.Get(ctx, existing.MergedTo, owner)
			if err != nil {
				return nil, false, errors.Wrapf(err, "follow merge redirect from %s", existing.ID)
			}
			return target, false, nil
		}
		return existing, false, nil
	} else if !errors.IsNotFound(err) {
		return nil, false, err
	}

	ent := &Entity{
		ID:            id,
		EntityType:    entityType,
		CanonicalName: canonical,
		Owner:         owner,
		CreatedAt:     time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (id, entity_type, canonical_name, aliases_json, owner, created_at)
		VALUES (?, ?, ?, '[]', ?, ?)`,
		ent.ID, ent.EntityType, ent.CanonicalName, ent.Owner,
		ent.CreatedAt.Format(db.TimeFormat))
	if err != nil {
		// Concurrent resolution of the same key: the deterministic id makes
		// this a unique violation, and the existing row is the answer.
		if db.IsUniqueViolation(err) {
			existing, lookupErr := s.Get(ctx, id, owner)
			if lookupErr != nil {
				return nil, false, errors.Wrap(lookupErr, "re-read entity after unique violation")
			}
			return existing, false, nil
		}
		return nil, false, errors.Wrap(err, "insert entity")
	}

	s.logger.Debugw("Created entity",
		"entity_id", ent.ID,
		"entity_type", entityType,
	)
	return ent, true, nil
}

// Get returns an entity by id, scoped to the owner.
func (s *Store) Get(ctx context.Context, id, owner string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity_type, canonical_name, aliases_json, merged_to, merged_at, owner, created_at
		FROM entities WHERE id = ? AND owner = ?`, id, owner)

	ent, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(errors.ErrEntityNotFound, "entity %s", id)
		}
		return nil, err
	}
	return ent, nil
}

// GetActive returns an entity by id, following at most one merge redirect.
// Merges always point at live entities (merging into a merged entity is
// rejected), so a single hop suffices.
func (s *Store) GetActive(ctx context.Context, id, owner string) (*Entity, error) {
	ent, err := s.Get(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if ent.Merged() {
		return s.Get(ctx, ent.MergedTo, owner)
	}
	return ent, nil
}

// Merge atomically moves every observation from one entity to another and
// marks the source entity merged. All-or-nothing: a failed merge leaves
// both entities and all observations untouched.
func (s *Store) Merge(ctx context.Context, fromID, toID, reason, owner string) (*MergeResult, error) {
	if fromID == toID {
		return nil, errors.Wrap(errors.ErrValidation, "cannot merge an entity into itself")
	}

	from, err := s.Get(ctx, fromID, owner)
	if err != nil {
		return nil, err
	}
	to, err := s.Get(ctx, toID, owner)
	if err != nil {
		return nil, err
	}
	if from.Merged() {
		return nil, errors.Wrapf(errors.ErrAlreadyMerged, "entity %s is already merged into %s", fromID, from.MergedTo)
	}
	if to.Merged() {
		return nil, errors.Wrapf(errors.ErrValidation, "merge target %s is itself merged", toID)
	}
	if from.EntityType != to.EntityType {
		return nil, errors.Wrapf(errors.ErrValidation,
			"cannot merge %s into %s: entity types differ", from.EntityType, to.EntityType)
	}

	mergedAt := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin merge tx")
	}
	defer tx.Rollback()

	// Re-check both sides under the transaction; a concurrent merge may have
	// won on either one. An unnoticed merge of the target would chain
	// redirects, which the single-hop follow in GetActive cannot resolve.
	var mergedTo sql.NullString
	if err := tx.QueryRowContext(ctx,
		"SELECT merged_to FROM entities WHERE id = ? AND owner = ?", fromID, owner,
	).Scan(&mergedTo); err != nil {
		return nil, errors.Wrap(err, "re-read merge source")
	}
	if mergedTo.Valid {
		return nil, errors.Wrapf(errors.ErrAlreadyMerged, "entity %s is already merged into %s", fromID, mergedTo.String)
	}
	var toMergedTo sql.NullString
	if err := tx.QueryRowContext(ctx,
		"SELECT merged_to FROM entities WHERE id = ? AND owner = ?", toID, owner,
	).Scan(&toMergedTo); err != nil {
		return nil, errors.Wrap(err, "re-read merge target")
	}
	if toMergedTo.Valid {
		return nil, errors.Wrapf(errors.ErrValidation, "merge target %s is itself merged", toID)
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE observations SET entity_id = ? WHERE entity_id = ? AND owner = ?",
		toID, fromID, owner)
	if err != nil {
		return nil, errors.Wrap(err, "rewrite observations")
	}
	moved, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "count rewritten observations")
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE entities SET merged_to = ?, merged_at = ? WHERE id = ? AND owner = ?",
		toID, mergedAt.Format(db.TimeFormat), fromID, owner); err != nil {
		return nil, errors.Wrap(err, "mark entity merged")
	}

	// The source's canonical name becomes an alias of the target so future
	// lookups by either name can find it.
	aliases := appendDistinct(to.Aliases, from.CanonicalName)
	aliasesJSON, err := json.Marshal(aliases)
	if err != nil {
		return nil, errors.Wrap(err, "marshal aliases")
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE entities SET aliases_json = ? WHERE id = ? AND owner = ?",
		string(aliasesJSON), toID, owner); err != nil {
		return nil, errors.Wrap(err, "update target aliases")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit merge tx")
	}

	s.logger.Infow("Merged entity",
		"from", fromID,
		"to", toID,
		"reason", reason,
		"observations_moved", moved,
	)

	return &MergeResult{
		ObservationsMoved: int(moved),
		MergedAt:          mergedAt,
	}, nil
}

func scanEntity(row interface{ Scan(...interface{}) error }) (*Entity, error) {
	var (
		ent         Entity
		aliasesJSON string
		mergedTo    sql.NullString
		mergedAt    sql.NullString
		createdAt   string
	)
	if err := row.Scan(&ent.ID, &ent.EntityType, &ent.CanonicalName, &aliasesJSON,
		&mergedTo, &mergedAt, &ent.Owner, &createdAt); err != nil {
		return nil, err
	}

	if aliasesJSON != "" {
		if err := json.Unmarshal([]byte(aliasesJSON), &ent.Aliases); err != nil {
			return nil, errors.Wrapf(err, "decode aliases for entity %s", ent.ID)
		}
	}
	ent.MergedTo = mergedTo.String
	if mergedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, mergedAt.String); err == nil {
			ent.MergedAt = &t
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		ent.CreatedAt = t
	}
	return &ent, nil
}

func appendDistinct(list []string, item string) []string {
	if item == "" {
		return list
	}
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
