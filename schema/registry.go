package schema

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/stratahq/strata/db"
	"github.com/stratahq/strata/errors"
)

// Registry persists schema versions and serves the active one per
// (entity type, owner), falling back to the builtin catalogue.
type Registry struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewRegistry creates a schema registry backed by db.
func NewRegistry(db *sql.DB, logger *zap.SugaredLogger) *Registry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Registry{db: db, logger: logger}
}

// LoadActive returns the active schema for an entity type, preferring a
// stored version over the builtin catalogue. Returns nil (no error) when
// neither exists; validation then routes every field to the fragment
// ledger so auto-enhancement can bootstrap the type.
func (r *Registry) LoadActive(ctx context.Context, entityType, owner string) (*Schema, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT entity_type, version, fields_json, owner, created_at
		FROM schemas
		WHERE entity_type = ? AND owner = ? AND active = 1`,
		entityType, owner)

	s, err := scanSchema(row)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(err, "load active schema for %s", entityType)
	}

	return Builtin(entityType), nil
}

// Register creates a new active version from the given field definitions,
// superseding the previous one in a single transaction. Existing fields may
// not be removed or retyped: the new version must be a superset of the
// currently active definitions.
func (r *Registry) Register(ctx context.Context, entityType string, fields map[string]FieldDef, owner string) (*Schema, error) {
	if entityType == "" {
		return nil, errors.Wrap(errors.ErrValidation, "entity type is required")
	}
	if len(fields) == 0 {
		return nil, errors.Wrap(errors.ErrValidation, "schema must define at least one field")
	}
	for key, def := range fields {
		if def.Type == "" {
			return nil, errors.Wrapf(errors.ErrValidation, "field %q has no type", key)
		}
		if def.MergePolicy != "" && !ValidPolicy(def.MergePolicy) {
			return nil, errors.Wrapf(errors.ErrValidation, "field %q has unknown merge policy %q", key, def.MergePolicy)
		}
	}

	active, err := r.LoadActive(ctx, entityType, owner)
	if err != nil {
		return nil, err
	}
	if active != nil {
		for key, prev := range active.Fields {
			next, ok := fields[key]
			if !ok {
				return nil, errors.Wrapf(errors.ErrValidation,
					"schema evolution is additive-only: field %q cannot be removed", key)
			}
			if next.Type != prev.Type {
				return nil, errors.Wrapf(errors.ErrValidation,
					"schema evolution is additive-only: field %q cannot be retyped", key)
			}
		}
	}

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, errors.Wrap(err, "marshal field definitions")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin register tx")
	}
	defer tx.Rollback()

	var maxVersion int
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schemas WHERE entity_type = ? AND owner = ?",
		entityType, owner).Scan(&maxVersion)
	if err != nil {
		return nil, errors.Wrap(err, "read max schema version")
	}
	version := maxVersion + 1

	if _, err := tx.ExecContext(ctx,
		"UPDATE schemas SET active = 0 WHERE entity_type = ? AND owner = ?",
		entityType, owner); err != nil {
		return nil, errors.Wrap(err, "deactivate previous schema versions")
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO schemas (entity_type, version, fields_json, active, owner, created_at)
		VALUES (?, ?, ?, 1, ?, ?)`,
		entityType, version, string(fieldsJSON), owner, now.Format(db.TimeFormat)); err != nil {
		return nil, errors.Wrap(err, "insert schema version")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit register tx")
	}

	r.logger.Infow("Registered schema version",
		"entity_type", entityType,
		"version", version,
		"field_count", len(fields),
	)

	return &Schema{
		EntityType: entityType,
		Version:    version,
		Fields:     fields,
		Active:     true,
		Owner:      owner,
		CreatedAt:  now,
	}, nil
}

// UpdateIncremental adds field definitions to the current active version
// without a version bump. Used by the auto-enhancement engine to promote
// fragments. Redefining an existing field is a conflict. When the active
// schema is the builtin catalogue (or the type has no schema at all) the
// current definitions are materialized as stored version 1 together with
// the additions.
func (r *Registry) UpdateIncremental(ctx context.Context, entityType string, additions map[string]FieldDef, owner string) (*Schema, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin incremental update tx")
	}
	defer tx.Rollback()

	s, err := r.UpdateIncrementalTx(ctx, tx, entityType, additions, owner)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit incremental update tx")
	}
	return s, nil
}

// UpdateIncrementalTx is UpdateIncremental inside a caller-owned
// transaction, so schema promotion and fragment deletion can commit
// together.
func (r *Registry) UpdateIncrementalTx(ctx context.Context, tx *sql.Tx, entityType string, additions map[string]FieldDef, owner string) (*Schema, error) {
	if len(additions) == 0 {
		return nil, errors.Wrap(errors.ErrValidation, "no field definitions to add")
	}
	for key, def := range additions {
		if key == "" || def.Type == "" {
			return nil, errors.Wrapf(errors.ErrValidation, "invalid field definition for %q", key)
		}
	}

	row := tx.QueryRowContext(ctx, `
		SELECT entity_type, version, fields_json, owner, created_at
		FROM schemas
		WHERE entity_type = ? AND owner = ? AND active = 1`,
		entityType, owner)

	stored, err := scanSchema(row)
	switch {
	case err == nil:
		// extend the stored active version in place
		for key := range additions {
			if _, exists := stored.Fields[key]; exists {
				return nil, errors.Wrapf(errors.ErrConflict,
					"field %q is already defined for %s", key, entityType)
			}
		}
		for key, def := range additions {
			stored.Fields[key] = def
		}
		fieldsJSON, err := json.Marshal(stored.Fields)
		if err != nil {
			return nil, errors.Wrap(err, "marshal field definitions")
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE schemas SET fields_json = ?
			WHERE entity_type = ? AND version = ? AND owner = ?`,
			string(fieldsJSON), entityType, stored.Version, owner); err != nil {
			return nil, errors.Wrap(err, "update schema fields")
		}
		r.logger.Infow("Extended schema incrementally",
			"entity_type", entityType,
			"version", stored.Version,
			"added", len(additions),
		)
		return stored, nil

	case errors.Is(err, sql.ErrNoRows):
		// materialize builtin (or empty) definitions as version 1
		fields := map[string]FieldDef{}
		if builtin := Builtin(entityType); builtin != nil {
			fields = builtin.Fields
		}
		for key := range additions {
			if _, exists := fields[key]; exists {
				return nil, errors.Wrapf(errors.ErrConflict,
					"field %q is already defined for %s", key, entityType)
			}
		}
		for key, def := range additions {
			fields[key] = def
		}
		fieldsJSON, err := json.Marshal(fields)
		if err != nil {
			return nil, errors.Wrap(err, "marshal field definitions")
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO schemas (entity_type, version, fields_json, active, owner, created_at)
			VALUES (?, 1, ?, 1, ?, ?)`,
			entityType, string(fieldsJSON), owner, now.Format(db.TimeFormat)); err != nil {
			return nil, errors.Wrap(err, "materialize schema version 1")
		}
		r.logger.Infow("Materialized schema from catalogue",
			"entity_type", entityType,
			"added", len(additions),
		)
		return &Schema{
			EntityType: entityType,
			Version:    1,
			Fields:     fields,
			Active:     true,
			Owner:      owner,
			CreatedAt:  now,
		}, nil

	default:
		return nil, errors.Wrapf(err, "load active schema for %s", entityType)
	}
}

// ListVersions returns all stored versions for an entity type, newest
// first. Builtin catalogue entries are not listed.
func (r *Registry) ListVersions(ctx context.Context, entityType, owner string) ([]*Schema, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entity_type, version, fields_json, owner, created_at, active
		FROM schemas
		WHERE entity_type = ? AND owner = ?
		ORDER BY version DESC`,
		entityType, owner)
	if err != nil {
		return nil, errors.Wrap(err, "list schema versions")
	}
	defer rows.Close()

	var out []*Schema
	for rows.Next() {
		var (
			s          Schema
			fieldsJSON string
			createdAt  string
			active     int
		)
		if err := rows.Scan(&s.EntityType, &s.Version, &fieldsJSON, &s.Owner, &createdAt, &active); err != nil {
			return nil, errors.Wrap(err, "scan schema version")
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &s.Fields); err != nil {
			return nil, errors.Wrap(err, "decode field definitions")
		}
		s.Active = active == 1
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			s.CreatedAt = t
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSchema(row rowScanner) (*Schema, error) {
	var (
		s          Schema
		fieldsJSON string
		createdAt  string
	)
	if err := row.Scan(&s.EntityType, &s.Version, &fieldsJSON, &s.Owner, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &s.Fields); err != nil {
		return nil, errors.Wrap(err, "decode field definitions")
	}
	s.Active = true
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		s.CreatedAt = t
	}
	return &s, nil
}
