package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratahq/strata/errors"
	"github.com/stratahq/strata/ledger"
	"github.com/stratahq/strata/vals"
)

func TestRelationshipSnapshotFold(t *testing.T) {
	store, entities, _ := newTestStore(t)
	ctx := context.Background()

	a := makeEntity(t, entities, "a")
	b := makeEntity(t, entities, "b")

	rel, err := store.Create(ctx, Settles, a, b, nil, testOwner)
	require.NoError(t, err)

	_, err = store.AddObservation(ctx, rel.ID,
		map[string]vals.Value{"amount": vals.Number(100), "status": vals.String("partial")},
		0, "", testOwner)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = store.AddObservation(ctx, rel.ID,
		map[string]vals.Value{"status": vals.String("settled")},
		0, "", testOwner)
	require.NoError(t, err)

	snap, err := store.Snapshot(ctx, rel.ID, testOwner)
	require.NoError(t, err)

	assert.Equal(t, rel.ID, snap.RelationshipID)
	assert.Equal(t, 2, snap.ObservationCount)
	assert.Equal(t, float64(100), snap.Fields["amount"].Num)
	// equal priority falls back to latest timestamp
	assert.Equal(t, "settled", snap.Fields["status"].Str)
	assert.NotEmpty(t, snap.Provenance["status"].ObservationID)
}

func TestRelationshipSnapshotCorrectionWins(t *testing.T) {
	store, entities, _ := newTestStore(t)
	ctx := context.Background()

	a := makeEntity(t, entities, "a")
	b := makeEntity(t, entities, "b")

	rel, err := store.Create(ctx, Settles, a, b, nil, testOwner)
	require.NoError(t, err)

	_, err = store.AddObservation(ctx, rel.ID,
		map[string]vals.Value{"amount": vals.Number(100)}, 0, "", testOwner)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = store.AddObservation(ctx, rel.ID,
		map[string]vals.Value{"amount": vals.Number(95)}, ledger.CorrectionPriority, "", testOwner)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = store.AddObservation(ctx, rel.ID,
		map[string]vals.Value{"amount": vals.Number(120)}, 0, "", testOwner)
	require.NoError(t, err)

	snap, err := store.Snapshot(ctx, rel.ID, testOwner)
	require.NoError(t, err)
	assert.Equal(t, float64(95), snap.Fields["amount"].Num)
}

func TestRelationshipSnapshotEmpty(t *testing.T) {
	store, entities, _ := newTestStore(t)
	ctx := context.Background()

	a := makeEntity(t, entities, "a")
	b := makeEntity(t, entities, "b")

	rel, err := store.Create(ctx, DuplicateOf, a, b, nil, testOwner)
	require.NoError(t, err)

	snap, err := store.Snapshot(ctx, rel.ID, testOwner)
	require.NoError(t, err)
	assert.Zero(t, snap.ObservationCount)
	assert.Empty(t, snap.Fields)
}

func TestAddObservationValidation(t *testing.T) {
	store, entities, _ := newTestStore(t)
	ctx := context.Background()

	a := makeEntity(t, entities, "a")
	b := makeEntity(t, entities, "b")

	rel, err := store.Create(ctx, Settles, a, b, nil, testOwner)
	require.NoError(t, err)

	_, err = store.AddObservation(ctx, rel.ID, nil, 0, "", testOwner)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = store.AddObservation(ctx, "REL-missing",
		map[string]vals.Value{"x": vals.Number(1)}, 0, "", testOwner)
	assert.True(t, errors.Is(err, errors.ErrResourceNotFound))

	_, err = store.AddObservation(ctx, rel.ID,
		map[string]vals.Value{"x": vals.Number(1)}, 0, "", "")
	assert.True(t, errors.Is(err, errors.ErrAuthRequired))
}
