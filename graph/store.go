package graph

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratahq/strata/db"
	"github.com/stratahq/strata/entity"
	"github.com/stratahq/strata/errors"
	"github.com/stratahq/strata/vals"
)

// Store persists relationships and enforces the graph invariants.
type Store struct {
	db       *sql.DB
	entities *entity.Store
	logger   *zap.SugaredLogger
}

// NewStore creates a relationship store backed by conn.
func NewStore(conn *sql.DB, entities *entity.Store, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{db: conn, entities: entities, logger: logger}
}

// Create inserts a directed edge after validating both endpoints and, for
// cycle-sensitive types, proving target cannot already reach source over
// edges of the same type. The reachability check and the insert share one
// transaction, so a rejected edge is never partially written.
func (s *Store) Create(ctx context.Context, relType RelationshipType, sourceID, targetID string, metadata map[string]vals.Value, owner string) (*Relationship, error) {
	if owner == "" {
		return nil, errors.Wrap(errors.ErrAuthRequired, "relationship creation requires an owner")
	}
	if !ValidType(relType) {
		return nil, errors.Wrapf(errors.ErrInvalidRelationship, "%q is not a relationship type", relType)
	}
	if sourceID == targetID {
		return nil, errors.Wrap(errors.ErrValidation, "relationship endpoints must differ")
	}

	for _, id := range []string{sourceID, targetID} {
		ent, err := s.entities.Get(ctx, id, owner)
		if err != nil {
			return nil, err
		}
		if ent.Merged() {
			return nil, errors.Wrapf(errors.ErrEntityNotFound,
				"entity %s has been merged into %s", id, ent.MergedTo)
		}
	}

	rel := &Relationship{
		ID:             "RL" + uuid.NewString(),
		Type:           relType,
		SourceEntityID: sourceID,
		TargetEntityID: targetID,
		Metadata:       metadata,
		Owner:          owner,
		CreatedAt:      time.Now().UTC(),
	}

	metadataJSON, err := vals.MarshalFields(metadata)
	if err != nil {
		return nil, errors.Wrap(err, "marshal relationship metadata")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin relationship tx")
	}
	defer tx.Rollback()

	if CycleSensitive(relType) {
		reachable, err := s.reachableTx(ctx, tx, relType, targetID, sourceID, owner)
		if err != nil {
			return nil, err
		}
		if reachable {
			return nil, errors.Wrapf(errors.ErrCycleDetected,
				"%s edge %s -> %s would close a cycle", relType, sourceID, targetID)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO relationships (id, rel_type, source_entity_id, target_entity_id, metadata_json, owner, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rel.ID, string(rel.Type), rel.SourceEntityID, rel.TargetEntityID,
		string(metadataJSON), rel.Owner, rel.CreatedAt.Format(db.TimeFormat)); err != nil {
		return nil, errors.Wrap(err, "insert relationship")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit relationship tx")
	}

	s.logger.Debugw("Created relationship",
		"relationship_id", rel.ID,
		"type", rel.Type,
		"source", sourceID,
		"target", targetID,
	)
	return rel, nil
}

// reachableTx runs a breadth-first search from start towards goal over
// edges of one type, inside the caller's transaction.
func (s *Store) reachableTx(ctx context.Context, tx *sql.Tx, relType RelationshipType, start, goal, owner string) (bool, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT source_entity_id, target_entity_id FROM relationships WHERE rel_type = ? AND owner = ?",
		string(relType), owner)
	if err != nil {
		return false, errors.Wrap(err, "load edges for cycle check")
	}
	defer rows.Close()

	adjacency := make(map[string][]string)
	for rows.Next() {
		var src, tgt string
		if err := rows.Scan(&src, &tgt); err != nil {
			return false, errors.Wrap(err, "scan edge")
		}
		adjacency[src] = append(adjacency[src], tgt)
	}
	if err := rows.Err(); err != nil {
		return false, err
	}

	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == goal {
			return true, nil
		}
		for _, next := range adjacency[current] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false, nil
}

// Get returns one relationship by id.
func (s *Store) Get(ctx context.Context, id, owner string) (*Relationship, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, rel_type, source_entity_id, target_entity_id, metadata_json, owner, created_at
		FROM relationships WHERE id = ? AND owner = ?`, id, owner)

	rel, err := scanRelationship(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(errors.ErrResourceNotFound, "relationship %s", id)
		}
		return nil, err
	}
	return rel, nil
}

// List returns the edges reachable from an entity under the filter. With
// MaxHops <= 1 only direct edges are returned; larger values walk the graph
// breadth-first, bounded by MaxHops, annotating each edge with its hop
// distance.
func (s *Store) List(ctx context.Context, entityID, owner string, filter Filter) ([]Edge, error) {
	if _, err := s.entities.Get(ctx, entityID, owner); err != nil {
		return nil, err
	}

	direction := filter.Direction
	if direction == "" {
		direction = DirectionBoth
	}
	maxHops := filter.MaxHops
	if maxHops < 1 {
		maxHops = 1
	}

	var edges []Edge
	seen := make(map[string]bool)
	frontier := []string{entityID}
	visited := map[string]bool{entityID: true}

	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		var nextFrontier []string
		for _, id := range frontier {
			direct, err := s.directEdges(ctx, id, owner, direction, filter.Type)
			if err != nil {
				return nil, err
			}
			for _, rel := range direct {
				if seen[rel.ID] {
					continue
				}
				seen[rel.ID] = true
				edges = append(edges, Edge{Relationship: rel, Hop: hop})

				for _, endpoint := range []string{rel.SourceEntityID, rel.TargetEntityID} {
					if !visited[endpoint] {
						visited[endpoint] = true
						nextFrontier = append(nextFrontier, endpoint)
					}
				}
			}
		}
		frontier = nextFrontier
	}
	return edges, nil
}

func (s *Store) directEdges(ctx context.Context, entityID, owner string, direction Direction, relType RelationshipType) ([]Relationship, error) {
	query := `
		SELECT id, rel_type, source_entity_id, target_entity_id, metadata_json, owner, created_at
		FROM relationships WHERE owner = ?`
	args := []interface{}{owner}

	switch direction {
	case DirectionOutbound:
		query += " AND source_entity_id = ?"
		args = append(args, entityID)
	case DirectionInbound:
		query += " AND target_entity_id = ?"
		args = append(args, entityID)
	default:
		query += " AND (source_entity_id = ? OR target_entity_id = ?)"
		args = append(args, entityID, entityID)
	}
	if relType != "" {
		query += " AND rel_type = ?"
		args = append(args, string(relType))
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list relationships")
	}
	defer rows.Close()

	var out []Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rel)
	}
	return out, rows.Err()
}

func scanRelationship(row interface{ Scan(...interface{}) error }) (*Relationship, error) {
	var (
		rel          Relationship
		relType      string
		metadataJSON string
		createdAt    string
	)
	if err := row.Scan(&rel.ID, &relType, &rel.SourceEntityID, &rel.TargetEntityID,
		&metadataJSON, &rel.Owner, &createdAt); err != nil {
		return nil, err
	}
	rel.Type = RelationshipType(relType)

	metadata, err := vals.UnmarshalFields([]byte(metadataJSON))
	if err != nil {
		return nil, errors.Wrapf(err, "decode metadata for relationship %s", rel.ID)
	}
	if len(metadata) > 0 {
		rel.Metadata = metadata
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		rel.CreatedAt = t
	}
	return &rel, nil
}
