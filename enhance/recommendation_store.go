package enhance

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratahq/strata/db"
	"github.com/stratahq/strata/errors"
)

// RecommendationStore persists the schema recommendation work queue.
type RecommendationStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewRecommendationStore creates a recommendation store backed by conn.
func NewRecommendationStore(conn *sql.DB, logger *zap.SugaredLogger) *RecommendationStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RecommendationStore{db: conn, logger: logger}
}

// Upsert records the latest score for a (entity type, field key, owner)
// candidate. A new candidate is inserted as pending; an existing
// non-terminal row has its score refreshed in place. Terminal rows are left
// untouched and returned as-is. A concurrent first insert surfaces as a
// unique violation and resolves through the update path.
func (s *RecommendationStore) Upsert(ctx context.Context, entityType, fieldKey, inferredType string, confidence float64, reasoning, owner string) (*Recommendation, error) {
	rec, err := s.upsertOnce(ctx, entityType, fieldKey, inferredType, confidence, reasoning, owner)
	if err != nil && db.IsUniqueViolation(err) {
		rec, err = s.upsertOnce(ctx, entityType, fieldKey, inferredType, confidence, reasoning, owner)
	}
	return rec, err
}

func (s *RecommendationStore) upsertOnce(ctx context.Context, entityType, fieldKey, inferredType string, confidence float64, reasoning, owner string) (*Recommendation, error) {
	existing, err := s.GetByField(ctx, entityType, fieldKey, owner)
	switch {
	case err == nil:
		if Terminal(existing.Status) {
			return existing, nil
		}
		now := time.Now().UTC()
		if _, err := s.db.ExecContext(ctx, `
			UPDATE schema_recommendations
			SET inferred_type = ?, confidence = ?, reasoning = ?, updated_at = ?
			WHERE id = ?`,
			inferredType, confidence, reasoning, now.Format(db.TimeFormat), existing.ID); err != nil {
			return nil, errors.Wrap(err, "refresh recommendation score")
		}
		existing.InferredType = inferredType
		existing.Confidence = confidence
		existing.Reasoning = reasoning
		existing.UpdatedAt = now
		return existing, nil

	case errors.IsNotFound(err):
		rec := &Recommendation{
			ID:           "RC" + uuid.NewString(),
			EntityType:   entityType,
			FieldKey:     fieldKey,
			InferredType: inferredType,
			Confidence:   confidence,
			Status:       StatusPending,
			Reasoning:    reasoning,
			Owner:        owner,
			CreatedAt:    time.Now().UTC(),
		}
		rec.UpdatedAt = rec.CreatedAt
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO schema_recommendations (id, entity_type, field_key, inferred_type, confidence, status, reasoning, owner, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.EntityType, rec.FieldKey, rec.InferredType, rec.Confidence,
			string(rec.Status), rec.Reasoning, rec.Owner,
			rec.CreatedAt.Format(db.TimeFormat), rec.UpdatedAt.Format(db.TimeFormat)); err != nil {
			return nil, errors.Wrap(err, "insert recommendation")
		}
		return rec, nil

	default:
		return nil, err
	}
}

// Get returns one recommendation by id.
func (s *RecommendationStore) Get(ctx context.Context, id, owner string) (*Recommendation, error) {
	row := s.db.QueryRowContext(ctx, selectRecommendation+" WHERE id = ? AND owner = ?", id, owner)
	rec, err := scanRecommendation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(errors.ErrResourceNotFound, "recommendation %s", id)
		}
		return nil, err
	}
	return rec, nil
}

// GetByField returns the recommendation for one candidate field.
func (s *RecommendationStore) GetByField(ctx context.Context, entityType, fieldKey, owner string) (*Recommendation, error) {
	row := s.db.QueryRowContext(ctx,
		selectRecommendation+" WHERE entity_type = ? AND field_key = ? AND owner = ?",
		entityType, fieldKey, owner)
	rec, err := scanRecommendation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(errors.ErrResourceNotFound,
				"no recommendation for %s.%s", entityType, fieldKey)
		}
		return nil, err
	}
	return rec, nil
}

// List returns recommendations for an owner, optionally filtered by status
// (empty means all), newest first.
func (s *RecommendationStore) List(ctx context.Context, owner string, status Status) ([]Recommendation, error) {
	query := selectRecommendation + " WHERE owner = ?"
	args := []interface{}{owner}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY updated_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list recommendations")
	}
	defer rows.Close()

	var out []Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Transition moves a recommendation from one status to another, enforcing
// the state machine. The guard is in the WHERE clause, so a concurrent
// transition loses cleanly instead of double-applying.
func (s *RecommendationStore) Transition(ctx context.Context, id string, from, to Status, reasoning, owner string) error {
	return s.transition(ctx, s.db, id, from, to, reasoning, owner)
}

// TransitionTx is Transition inside a caller-owned transaction.
func (s *RecommendationStore) TransitionTx(ctx context.Context, tx *sql.Tx, id string, from, to Status, reasoning, owner string) error {
	return s.transition(ctx, tx, id, from, to, reasoning, owner)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *RecommendationStore) transition(ctx context.Context, ex execer, id string, from, to Status, reasoning, owner string) error {
	if !CanTransition(from, to) {
		return errors.Wrapf(errors.ErrValidation,
			"recommendation status cannot move from %s to %s", from, to)
	}

	query := "UPDATE schema_recommendations SET status = ?, updated_at = ?"
	args := []interface{}{string(to), time.Now().UTC().Format(db.TimeFormat)}
	if reasoning != "" {
		query += ", reasoning = ?"
		args = append(args, reasoning)
	}
	query += " WHERE id = ? AND status = ? AND owner = ?"
	args = append(args, id, string(from), owner)

	result, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "transition recommendation %s", id)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "read rows affected")
	}
	if affected == 0 {
		return errors.Wrapf(errors.ErrConflict,
			"recommendation %s is no longer %s", id, from)
	}
	return nil
}

const selectRecommendation = `
	SELECT id, entity_type, field_key, inferred_type, confidence, status, reasoning, owner, created_at, updated_at
	FROM schema_recommendations`

func scanRecommendation(row interface{ Scan(...interface{}) error }) (*Recommendation, error) {
	var (
		rec       Recommendation
		status    string
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&rec.ID, &rec.EntityType, &rec.FieldKey, &rec.InferredType,
		&rec.Confidence, &status, &rec.Reasoning, &rec.Owner, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return &rec, nil
}
