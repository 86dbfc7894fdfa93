package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratahq/strata/errors"
	"github.com/stratahq/strata/vals"
)

func TestCanonicalNameDesignatedField(t *testing.T) {
	name, err := CanonicalName("task", map[string]vals.Value{
		"title":  vals.String("  Buy   Milk "),
		"status": vals.String("pending"),
	})
	require.NoError(t, err)
	assert.Equal(t, "buy milk", name)
}

func TestCanonicalNameComposite(t *testing.T) {
	name, err := CanonicalName("transaction", map[string]vals.Value{
		"date":   vals.String("2024-03-01"),
		"amount": vals.Number(42.50),
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01|42.5", name)
}

func TestCanonicalNameMissingDesignatedField(t *testing.T) {
	_, err := CanonicalName("task", map[string]vals.Value{
		"status": vals.String("pending"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestCanonicalNameFallbackForUnknownType(t *testing.T) {
	name, err := CanonicalName("starship", map[string]vals.Value{
		"name": vals.String("Enterprise"),
	})
	require.NoError(t, err)
	assert.Equal(t, "enterprise", name)

	_, err = CanonicalName("starship", map[string]vals.Value{
		"velocity": vals.Number(9),
	})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestDeriveIDDeterministic(t *testing.T) {
	a := DeriveID("task", "buy milk", "alice")
	b := DeriveID("task", "buy milk", "alice")
	assert.Equal(t, a, b)
	assert.Len(t, a, 26) // "EN" + 24 hex chars

	// every key component matters
	assert.NotEqual(t, a, DeriveID("note", "buy milk", "alice"))
	assert.NotEqual(t, a, DeriveID("task", "buy bread", "alice"))
	assert.NotEqual(t, a, DeriveID("task", "buy milk", "bob"))
}

func TestDeriveIDSeparatorPreventsCollisions(t *testing.T) {
	assert.NotEqual(t, DeriveID("ab", "c", "o"), DeriveID("a", "bc", "o"))
}
