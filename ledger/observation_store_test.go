package ledger

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratahq/strata/errors"
	stratatest "github.com/stratahq/strata/internal/testing"
	"github.com/stratahq/strata/vals"
)

func insertTestEntity(t *testing.T, conn *sql.DB, id, owner string) {
	t.Helper()
	_, err := conn.Exec(`
		INSERT INTO entities (id, entity_type, canonical_name, owner, created_at)
		VALUES (?, 'task', ?, ?, ?)`,
		id, id, owner, time.Now().UTC().Format(time.RFC3339Nano))
	require.NoError(t, err)
}

func TestAppendAndListByEntity(t *testing.T) {
	conn := stratatest.CreateTestDB(t)
	store := NewObservationStore(conn, nil)
	ctx := context.Background()

	insertTestEntity(t, conn, "EN1", testOwner)

	obs := &Observation{
		EntityID:      "EN1",
		SchemaVersion: 1,
		Fields:        map[string]vals.Value{"title": vals.String("Buy milk")},
		Priority:      0,
		Owner:         testOwner,
	}
	require.NoError(t, store.Append(ctx, obs))
	assert.NotEmpty(t, obs.ID)
	assert.False(t, obs.ObservedAt.IsZero())

	listed, err := store.ListByEntity(ctx, "EN1", testOwner, nil)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, obs.ID, listed[0].ID)
	assert.True(t, listed[0].Fields["title"].Equal(vals.String("Buy milk")))
}

func TestListByEntityAsOfFilter(t *testing.T) {
	conn := stratatest.CreateTestDB(t)
	store := NewObservationStore(conn, nil)
	ctx := context.Background()

	insertTestEntity(t, conn, "EN1", testOwner)

	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for _, at := range []time.Time{t1, t2} {
		require.NoError(t, store.Append(ctx, &Observation{
			EntityID:   "EN1",
			Fields:     map[string]vals.Value{"status": vals.String(at.Format("2006-01"))},
			ObservedAt: at,
			Owner:      testOwner,
		}))
	}

	cutoff := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	listed, err := store.ListByEntity(ctx, "EN1", testOwner, &cutoff)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, t1, listed[0].ObservedAt.UTC())
}

func TestAppendRequiresEntityRow(t *testing.T) {
	store := NewObservationStore(stratatest.CreateTestDB(t), nil)

	err := store.Append(context.Background(), &Observation{
		EntityID: "EN-missing",
		Fields:   map[string]vals.Value{},
		Owner:    testOwner,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrForeignKey))
}

func TestListByEntityOrdersSubsecondTimestamps(t *testing.T) {
	conn := stratatest.CreateTestDB(t)
	store := NewObservationStore(conn, nil)
	ctx := context.Background()

	insertTestEntity(t, conn, "EN1", testOwner)

	// a whole second has no fractional digits under RFC3339Nano, so as text
	// it would sort after a fractional timestamp inside the same second
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	later := base.Add(500 * time.Millisecond)

	require.NoError(t, store.Append(ctx, &Observation{
		ID:         "OB-late",
		EntityID:   "EN1",
		Fields:     map[string]vals.Value{"status": vals.String("done")},
		ObservedAt: later,
		Owner:      testOwner,
	}))
	require.NoError(t, store.Append(ctx, &Observation{
		ID:         "OB-early",
		EntityID:   "EN1",
		Fields:     map[string]vals.Value{"status": vals.String("pending")},
		ObservedAt: base,
		Owner:      testOwner,
	}))

	listed, err := store.ListByEntity(ctx, "EN1", testOwner, nil)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "OB-early", listed[0].ID)
	assert.Equal(t, "OB-late", listed[1].ID)
}

func TestAppendValidation(t *testing.T) {
	store := NewObservationStore(stratatest.CreateTestDB(t), nil)
	ctx := context.Background()

	err := store.Append(ctx, &Observation{Owner: testOwner})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	err = store.Append(ctx, &Observation{EntityID: "EN1"})
	assert.True(t, errors.Is(err, errors.ErrAuthRequired))
}

func TestGetObservation(t *testing.T) {
	conn := stratatest.CreateTestDB(t)
	store := NewObservationStore(conn, nil)
	ctx := context.Background()

	insertTestEntity(t, conn, "EN1", testOwner)

	obs := &Observation{
		EntityID: "EN1",
		Fields:   map[string]vals.Value{"title": vals.String("x")},
		Owner:    testOwner,
	}
	require.NoError(t, store.Append(ctx, obs))

	got, err := store.Get(ctx, obs.ID, testOwner)
	require.NoError(t, err)
	assert.Equal(t, "EN1", got.EntityID)

	_, err = store.Get(ctx, "OB-missing", testOwner)
	assert.True(t, errors.Is(err, errors.ErrResourceNotFound))

	count, err := store.CountByEntity(ctx, "EN1", testOwner)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
