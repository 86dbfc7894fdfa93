package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratahq/strata/errors"
	stratatest "github.com/stratahq/strata/internal/testing"
	"github.com/stratahq/strata/vals"
)

func TestRecordSightingIncrementsFrequency(t *testing.T) {
	store := NewFragmentStore(stratatest.CreateTestDB(t), 0, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := store.RecordSighting(ctx, "task", "custom", vals.String("X"), "SRC1", "SRC1#0", testOwner)
		require.NoError(t, err)
	}

	frag, err := store.Get(ctx, "task", "custom", testOwner)
	require.NoError(t, err)
	assert.Equal(t, 3, frag.FrequencyCount)
	// distinct accumulation: one source, one record ref
	assert.Equal(t, []string{"SRC1"}, frag.SourceIDs)
	assert.Equal(t, []string{"SRC1#0"}, frag.RecordRefs)
	assert.Len(t, frag.SampleValues, 3)
}

func TestRecordSightingNeverStoresNull(t *testing.T) {
	store := NewFragmentStore(stratatest.CreateTestDB(t), 0, nil)
	ctx := context.Background()

	require.NoError(t, store.RecordSighting(ctx, "task", "custom", vals.Null(), "SRC1", "", testOwner))

	_, err := store.Get(ctx, "task", "custom", testOwner)
	assert.True(t, errors.Is(err, errors.ErrResourceNotFound))
}

func TestRecordSightingAccumulatesDiversity(t *testing.T) {
	store := NewFragmentStore(stratatest.CreateTestDB(t), 0, nil)
	ctx := context.Background()

	require.NoError(t, store.RecordSighting(ctx, "task", "custom", vals.String("a"), "SRC1", "SRC1#0", testOwner))
	require.NoError(t, store.RecordSighting(ctx, "task", "custom", vals.String("b"), "SRC2", "SRC2#0", testOwner))
	require.NoError(t, store.RecordSighting(ctx, "task", "custom", vals.String("c"), "SRC1", "SRC1#4", testOwner))

	frag, err := store.Get(ctx, "task", "custom", testOwner)
	require.NoError(t, err)
	assert.Equal(t, 3, frag.FrequencyCount)
	assert.ElementsMatch(t, []string{"SRC1", "SRC2"}, frag.SourceIDs)
	assert.ElementsMatch(t, []string{"SRC1#0", "SRC2#0", "SRC1#4"}, frag.RecordRefs)
}

func TestSampleLimitBoundsRetainedValues(t *testing.T) {
	store := NewFragmentStore(stratatest.CreateTestDB(t), 2, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordSighting(ctx, "task", "custom", vals.Number(float64(i)), "SRC1", "", testOwner))
	}

	frag, err := store.Get(ctx, "task", "custom", testOwner)
	require.NoError(t, err)
	assert.Equal(t, 5, frag.FrequencyCount)
	assert.Len(t, frag.SampleValues, 2)
}

func TestListFiltersByEntityType(t *testing.T) {
	store := NewFragmentStore(stratatest.CreateTestDB(t), 0, nil)
	ctx := context.Background()

	require.NoError(t, store.RecordSighting(ctx, "task", "custom", vals.String("x"), "SRC1", "", testOwner))
	require.NoError(t, store.RecordSighting(ctx, "person", "nickname", vals.String("y"), "SRC1", "", testOwner))

	all, err := store.List(ctx, "", testOwner)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	tasks, err := store.List(ctx, "task", testOwner)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "custom", tasks[0].FragmentKey)
}
