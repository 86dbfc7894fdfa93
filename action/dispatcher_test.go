package action

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratahq/strata/enhance"
	"github.com/stratahq/strata/entity"
	"github.com/stratahq/strata/errors"
	"github.com/stratahq/strata/graph"
	"github.com/stratahq/strata/ingest"
	stratatest "github.com/stratahq/strata/internal/testing"
	"github.com/stratahq/strata/ledger"
	"github.com/stratahq/strata/schema"
	"github.com/stratahq/strata/snapshot"
	"github.com/stratahq/strata/vals"
)

const testOwner = "user-1"

func newDispatcher(t *testing.T) (*Dispatcher, *sql.DB) {
	t.Helper()
	conn := stratatest.CreateTestDB(t)

	sources := ledger.NewSourceStore(conn, nil)
	observations := ledger.NewObservationStore(conn, nil)
	fragments := ledger.NewFragmentStore(conn, 0, nil)
	entities := entity.NewStore(conn, nil)
	registry := schema.NewRegistry(conn, nil)
	recommendations := enhance.NewRecommendationStore(conn, nil)

	pipeline := ingest.NewPipeline(sources, observations, fragments, entities, registry, nil)
	reducer := snapshot.NewReducer(entities, observations, sources, registry, nil)
	relationships := graph.NewStore(conn, entities, nil)
	engine := enhance.NewEngine(conn, fragments, recommendations, registry, enhance.DefaultThresholds(), nil)

	return NewDispatcher(pipeline, reducer, entities, observations, relationships, registry, engine, nil), conn
}

func storeTask(t *testing.T, d *Dispatcher, key, title string) string {
	t.Helper()
	result, err := d.IngestStore(context.Background(), IngestStoreRequest{
		Content:        []byte("content " + key),
		MimeType:       "text/plain",
		IdempotencyKey: key,
		Candidates: []ingest.Candidate{{
			EntityType: "task",
			Fields: map[string]vals.Value{
				"title":  vals.String(title),
				"status": vals.String("pending"),
			},
		}},
		Owner: testOwner,
	})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	return result.Items[0].EntityID
}

func TestOwnerRequiredEverywhere(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()

	_, err := d.IngestStore(ctx, IngestStoreRequest{})
	assert.True(t, errors.Is(err, errors.ErrAuthRequired))

	_, err = d.GetEntitySnapshot(ctx, GetEntitySnapshotRequest{EntityID: "EN1"})
	assert.True(t, errors.Is(err, errors.ErrAuthRequired))

	_, err = d.MergeEntities(ctx, MergeEntitiesRequest{FromID: "a", ToID: "b"})
	assert.True(t, errors.Is(err, errors.ErrAuthRequired))

	_, err = d.CreateRelationship(ctx, CreateRelationshipRequest{Type: graph.RefersTo})
	assert.True(t, errors.Is(err, errors.ErrAuthRequired))

	_, err = d.AnalyzeSchemaCandidates(ctx, AnalyzeSchemaCandidatesRequest{})
	assert.True(t, errors.Is(err, errors.ErrAuthRequired))
}

func TestErrorsCarryKinds(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()

	_, err := d.GetEntitySnapshot(ctx, GetEntitySnapshotRequest{EntityID: "EN-missing", Owner: testOwner})
	require.Error(t, err)

	var actionErr *Error
	require.True(t, errors.As(err, &actionErr))
	assert.Equal(t, errors.KindEntityNotFound, actionErr.Kind)
	// sentinel matching survives classification
	assert.True(t, errors.Is(err, errors.ErrEntityNotFound))
}

func TestSnapshotRoundTrip(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()

	entityID := storeTask(t, d, "key-1", "Buy milk")

	result, err := d.GetEntitySnapshot(ctx, GetEntitySnapshotRequest{EntityID: entityID, Owner: testOwner})
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", result.Snapshot.Fields["title"].Str)

	obsResult, err := d.ListObservations(ctx, ListObservationsRequest{EntityID: entityID, Owner: testOwner})
	require.NoError(t, err)
	assert.Len(t, obsResult.Observations, 1)

	trace, err := d.FieldProvenance(ctx, FieldProvenanceRequest{EntityID: entityID, Field: "status", Owner: testOwner})
	require.NoError(t, err)
	assert.Equal(t, "pending", trace.Value.Str)
	assert.NotNil(t, trace.Source)
}

func TestCorrectThenSnapshot(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()

	entityID := storeTask(t, d, "key-1", "Buy milk")

	_, err := d.Correct(ctx, CorrectRequest{
		EntityID: entityID,
		Fields:   map[string]vals.Value{"status": vals.String("done")},
		Owner:    testOwner,
	})
	require.NoError(t, err)

	result, err := d.GetEntitySnapshot(ctx, GetEntitySnapshotRequest{EntityID: entityID, Owner: testOwner})
	require.NoError(t, err)
	assert.Equal(t, "done", result.Snapshot.Fields["status"].Str)
}

func TestMergeAndRelationships(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()

	a := storeTask(t, d, "key-a", "Write report")
	b := storeTask(t, d, "key-b", "Write the report")
	c := storeTask(t, d, "key-c", "Review report")

	rel, err := d.CreateRelationship(ctx, CreateRelationshipRequest{
		Type: graph.DependsOn, SourceID: c, TargetID: a, Owner: testOwner,
	})
	require.NoError(t, err)
	assert.Equal(t, graph.DependsOn, rel.Type)

	merged, err := d.MergeEntities(ctx, MergeEntitiesRequest{FromID: b, ToID: a, Reason: "duplicate", Owner: testOwner})
	require.NoError(t, err)
	assert.Equal(t, 1, merged.ObservationsMoved)

	// the merged-away id still resolves through the redirect
	result, err := d.GetEntitySnapshot(ctx, GetEntitySnapshotRequest{EntityID: b, Owner: testOwner})
	require.NoError(t, err)
	assert.Equal(t, a, result.Snapshot.EntityID)

	edges, err := d.ListRelationships(ctx, ListRelationshipsRequest{EntityID: c, Owner: testOwner})
	require.NoError(t, err)
	assert.Len(t, edges.Edges, 1)
}

func TestSchemaOperations(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()

	registered, err := d.RegisterSchema(ctx, RegisterSchemaRequest{
		EntityType: "habit",
		Fields: map[string]schema.FieldDef{
			"name":   {Type: "string"},
			"streak": {Type: "number", MergePolicy: schema.MergeLastWrite},
		},
		Owner: testOwner,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, registered.Version)

	updated, err := d.UpdateSchema(ctx, UpdateSchemaRequest{
		EntityType: "habit",
		Additions:  map[string]schema.FieldDef{"cadence": {Type: "string"}},
		Owner:      testOwner,
	})
	require.NoError(t, err)
	assert.True(t, updated.HasField("cadence"))
	assert.Equal(t, 1, updated.Version)
}

func TestEnhancementOperations(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()

	for i, key := range []string{"k1", "k2", "k3"} {
		_, err := d.IngestStore(ctx, IngestStoreRequest{
			Content:        []byte("content " + key),
			MimeType:       "text/plain",
			IdempotencyKey: key,
			Candidates: []ingest.Candidate{{
				EntityType: "task",
				Fields: map[string]vals.Value{
					"title":           vals.String(key),
					"estimated_hours": vals.Number(float64(i + 1)),
				},
			}},
			Owner: testOwner,
		})
		require.NoError(t, err)
	}

	analyzed, err := d.AnalyzeSchemaCandidates(ctx, AnalyzeSchemaCandidatesRequest{Owner: testOwner})
	require.NoError(t, err)
	require.Len(t, analyzed.Recommendations, 1)
	assert.Equal(t, enhance.StatusEligible, analyzed.Recommendations[0].Status)

	listed, err := d.GetSchemaRecommendations(ctx, GetSchemaRecommendationsRequest{
		Status: enhance.StatusEligible, Owner: testOwner,
	})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	applied, err := d.ApplySchemaRecommendation(ctx, ApplySchemaRecommendationRequest{
		RecommendationID: listed[0].ID, Owner: testOwner,
	})
	require.NoError(t, err)
	assert.True(t, applied.HasField("estimated_hours"))
}

func TestCrossOwnerIsolation(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()

	entityID := storeTask(t, d, "key-1", "Buy milk")

	_, err := d.GetEntitySnapshot(ctx, GetEntitySnapshotRequest{EntityID: entityID, Owner: "user-2"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEntityNotFound))
}
