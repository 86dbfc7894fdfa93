package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratahq/strata/enhance"
	"github.com/stratahq/strata/entity"
	"github.com/stratahq/strata/errors"
	stratatest "github.com/stratahq/strata/internal/testing"
	"github.com/stratahq/strata/ledger"
	"github.com/stratahq/strata/schema"
	"github.com/stratahq/strata/snapshot"
	"github.com/stratahq/strata/vals"
)

const testOwner = "user-1"

type pipelineFixture struct {
	conn         *sql.DB
	sources      *ledger.SourceStore
	observations *ledger.ObservationStore
	fragments    *ledger.FragmentStore
	entities     *entity.Store
	registry     *schema.Registry
	pipeline     *Pipeline
	reducer      *snapshot.Reducer
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	conn := stratatest.CreateTestDB(t)
	f := &pipelineFixture{
		conn:         conn,
		sources:      ledger.NewSourceStore(conn, nil),
		observations: ledger.NewObservationStore(conn, nil),
		fragments:    ledger.NewFragmentStore(conn, 0, nil),
		entities:     entity.NewStore(conn, nil),
		registry:     schema.NewRegistry(conn, nil),
	}
	f.pipeline = NewPipeline(f.sources, f.observations, f.fragments, f.entities, f.registry, nil)
	f.reducer = snapshot.NewReducer(f.entities, f.observations, f.sources, f.registry, nil)
	return f
}

func taskRequest(key string, fields map[string]vals.Value) Request {
	return Request{
		Content:        []byte("raw input for " + key),
		MimeType:       "text/plain",
		IdempotencyKey: key,
		Candidates:     []Candidate{{EntityType: "task", Fields: fields}},
		Owner:          testOwner,
	}
}

func TestIngestRoutesKnownAndUnknownFields(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	result, err := f.pipeline.Ingest(ctx, taskRequest("key-1", map[string]vals.Value{
		"title":           vals.String("Buy milk"),
		"status":          vals.String("pending"),
		"estimated_hours": vals.Number(2),
	}))
	require.NoError(t, err)
	require.Len(t, result.Items, 1)

	item := result.Items[0]
	assert.True(t, item.EntityCreated)
	assert.Equal(t, 2, item.KnownFields)
	assert.Equal(t, 1, item.Fragments)

	// known fields landed in the observation ledger
	obs, err := f.observations.Get(ctx, item.ObservationID, testOwner)
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", obs.Fields["title"].Str)
	assert.NotContains(t, obs.Fields, "estimated_hours")

	// the unknown field landed in the fragment ledger
	frag, err := f.fragments.Get(ctx, "task", "estimated_hours", testOwner)
	require.NoError(t, err)
	assert.Equal(t, 1, frag.FrequencyCount)
	assert.Equal(t, []string{result.SourceID}, frag.SourceIDs)
}

func TestIngestIdempotentReplay(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	fields := map[string]vals.Value{"title": vals.String("Buy milk")}

	first, err := f.pipeline.Ingest(ctx, taskRequest("key-1", fields))
	require.NoError(t, err)

	second, err := f.pipeline.Ingest(ctx, taskRequest("key-1", fields))
	require.NoError(t, err)
	assert.Equal(t, first.SourceID, second.SourceID)
	assert.True(t, second.Replayed)
	assert.Empty(t, second.Items)

	count, err := f.observations.CountByEntity(ctx, first.Items[0].EntityID, testOwner)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIngestKeyReuseWithDifferentContent(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Ingest(ctx, taskRequest("key-1", map[string]vals.Value{"title": vals.String("a")}))
	require.NoError(t, err)

	req := taskRequest("key-1", map[string]vals.Value{"title": vals.String("b")})
	req.Content = []byte("completely different input")
	_, err = f.pipeline.Ingest(ctx, req)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestIngestSkipsNullFragments(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	result, err := f.pipeline.Ingest(ctx, taskRequest("key-1", map[string]vals.Value{
		"title":  vals.String("Buy milk"),
		"oddity": vals.Null(),
	}))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Items[0].Fragments)

	_, err = f.fragments.Get(ctx, "task", "oddity", testOwner)
	assert.True(t, errors.Is(err, errors.ErrResourceNotFound))
}

func TestIngestValidation(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	req := taskRequest("key-1", map[string]vals.Value{"title": vals.String("a")})
	req.Owner = ""
	_, err := f.pipeline.Ingest(ctx, req)
	assert.True(t, errors.Is(err, errors.ErrAuthRequired))

	_, err = f.pipeline.Ingest(ctx, Request{IdempotencyKey: "k", Owner: testOwner})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestCorrectWinsSnapshot(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	result, err := f.pipeline.Ingest(ctx, taskRequest("key-1", map[string]vals.Value{
		"title":  vals.String("Buy milk"),
		"status": vals.String("pending"),
	}))
	require.NoError(t, err)
	entityID := result.Items[0].EntityID

	obs, err := f.pipeline.Correct(ctx, entityID, map[string]vals.Value{
		"status": vals.String("done"),
	}, testOwner)
	require.NoError(t, err)
	assert.Equal(t, ledger.CorrectionPriority, obs.Priority)

	// a later ordinary ingest does not displace the correction
	_, err = f.pipeline.Ingest(ctx, taskRequest("key-2", map[string]vals.Value{
		"title":  vals.String("Buy milk"),
		"status": vals.String("pending"),
	}))
	require.NoError(t, err)

	snap, err := f.reducer.Compute(ctx, entityID, testOwner, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", snap.Fields["status"].Str)
	assert.Equal(t, obs.ID, snap.Provenance["status"].ObservationID)
}

// A fact ingested under a merged-away name must land on the surviving
// entity, or the observation would be invisible to every snapshot read.
func TestIngestAfterMergeReachesSurvivingEntity(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	first, err := f.pipeline.Ingest(ctx, taskRequest("key-1", map[string]vals.Value{
		"title":  vals.String("Buy milk"),
		"status": vals.String("pending"),
	}))
	require.NoError(t, err)
	aID := first.Items[0].EntityID

	second, err := f.pipeline.Ingest(ctx, taskRequest("key-2", map[string]vals.Value{
		"title": vals.String("Buy milk today"),
	}))
	require.NoError(t, err)
	bID := second.Items[0].EntityID

	_, err = f.entities.Merge(ctx, aID, bID, "duplicate", testOwner)
	require.NoError(t, err)

	third, err := f.pipeline.Ingest(ctx, taskRequest("key-3", map[string]vals.Value{
		"title":  vals.String("Buy milk"),
		"status": vals.String("done"),
	}))
	require.NoError(t, err)
	assert.Equal(t, bID, third.Items[0].EntityID)
	assert.False(t, third.Items[0].EntityCreated)

	// the new fact is visible through both the old and the surviving id
	for _, id := range []string{aID, bID} {
		snap, err := f.reducer.Compute(ctx, id, testOwner, nil)
		require.NoError(t, err)
		assert.Equal(t, "done", snap.Fields["status"].Str)
	}

	// nothing accumulated on the dead row
	count, err := f.observations.CountByEntity(ctx, aID, testOwner)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	count, err = f.observations.CountByEntity(ctx, bID, testOwner)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCorrectMissingEntity(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := f.pipeline.Correct(context.Background(), "EN-missing",
		map[string]vals.Value{"status": vals.String("done")}, testOwner)
	assert.True(t, errors.Is(err, errors.ErrEntityNotFound))
}

// The full enhancement loop: a custom field arrives from three sources,
// gets promoted into schema, and the next store routes it as a known field.
func TestCustomFieldPromotionEndToEnd(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	recs := enhance.NewRecommendationStore(f.conn, nil)
	engine := enhance.NewEngine(f.conn, f.fragments, recs, f.registry, enhance.DefaultThresholds(), nil)
	scheduler := enhance.NewScheduler(f.conn, engine, time.Second, nil, nil)

	var firstSource string
	for i := 0; i < 3; i++ {
		result, err := f.pipeline.Ingest(ctx, taskRequest(fmt.Sprintf("key-%d", i), map[string]vals.Value{
			"title":           vals.String(fmt.Sprintf("Task %d", i)),
			"estimated_hours": vals.Number(float64(i + 1)),
		}))
		require.NoError(t, err)
		if i == 0 {
			firstSource = result.SourceID
		}
		// nothing is promoted below the frequency threshold
		if i < 2 {
			report, err := scheduler.RunCycle(ctx)
			require.NoError(t, err)
			assert.Zero(t, report.Promoted, "sighting %d must not promote", i+1)
		}
	}

	report, err := scheduler.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Promoted)

	active, err := f.registry.LoadActive(ctx, "task", testOwner)
	require.NoError(t, err)
	assert.True(t, active.HasField("estimated_hours"))
	assert.Equal(t, "number", active.Fields["estimated_hours"].Type)

	// a fourth store now routes the field into observations
	result, err := f.pipeline.Ingest(ctx, taskRequest("key-3", map[string]vals.Value{
		"title":           vals.String("Task 3"),
		"estimated_hours": vals.Number(5),
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Items[0].KnownFields)
	assert.Equal(t, 0, result.Items[0].Fragments)

	snap, err := f.reducer.Compute(ctx, result.Items[0].EntityID, testOwner, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(5), snap.Fields["estimated_hours"].Num)

	// reinterpreting an early source surfaces the once-unknown field
	reResult, err := f.pipeline.Reinterpret(ctx, firstSource, testOwner)
	require.NoError(t, err)
	require.Len(t, reResult.Items, 1)
	assert.Equal(t, 2, reResult.Items[0].KnownFields)

	snap, err = f.reducer.Compute(ctx, reResult.Items[0].EntityID, testOwner, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(1), snap.Fields["estimated_hours"].Num)
}

func TestReinterpretUnknownSource(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := f.pipeline.Reinterpret(context.Background(), "SRC-missing", testOwner)
	assert.True(t, errors.Is(err, errors.ErrResourceNotFound))
}
