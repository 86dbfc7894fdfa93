package snapshot

import (
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratahq/strata/ledger"
	"github.com/stratahq/strata/schema"
	"github.com/stratahq/strata/vals"
)

func obsAt(id string, priority int, observedAt time.Time, fields map[string]vals.Value) ledger.Observation {
	return ledger.Observation{
		ID:         id,
		EntityID:   "EN1",
		Fields:     fields,
		Priority:   priority,
		ObservedAt: observedAt,
		Owner:      "user-1",
	}
}

func TestCorrectionSupremacy(t *testing.T) {
	t10 := time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC)
	t1 := time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC)

	observations := []ledger.Observation{
		obsAt("OB-a", 0, t10, map[string]vals.Value{"status": vals.String("A")}),
		obsAt("OB-b", 1000, t1, map[string]vals.Value{"status": vals.String("B")}),
	}

	fields, provenance := Reduce(observations, nil)
	assert.Equal(t, "B", fields["status"].Str)
	assert.Equal(t, "OB-b", provenance["status"].ObservationID)
}

func TestLastWriteWins(t *testing.T) {
	sch := &schema.Schema{
		EntityType: "task",
		Fields: map[string]schema.FieldDef{
			"notes": {Type: "string", MergePolicy: schema.MergeLastWrite},
		},
	}

	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	observations := []ledger.Observation{
		obsAt("OB-a", 500, early, map[string]vals.Value{"notes": vals.String("old")}),
		obsAt("OB-b", 0, late, map[string]vals.Value{"notes": vals.String("new")}),
	}

	fields, _ := Reduce(observations, sch)
	assert.Equal(t, "new", fields["notes"].Str)
}

func TestFirstWriteWins(t *testing.T) {
	sch := &schema.Schema{
		EntityType: "transaction",
		Fields: map[string]schema.FieldDef{
			"date": {Type: "date", MergePolicy: schema.MergeFirstWrite},
		},
	}

	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	observations := []ledger.Observation{
		obsAt("OB-b", 0, late, map[string]vals.Value{"date": vals.String("2024-02-01")}),
		obsAt("OB-a", 0, early, map[string]vals.Value{"date": vals.String("2024-01-01")}),
	}

	fields, _ := Reduce(observations, sch)
	assert.Equal(t, "2024-01-01", fields["date"].Str)
}

func TestTieBreakByObservationID(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	observations := []ledger.Observation{
		obsAt("OB-zzz", 5, at, map[string]vals.Value{"status": vals.String("from-zzz")}),
		obsAt("OB-aaa", 5, at, map[string]vals.Value{"status": vals.String("from-aaa")}),
	}

	// equal priority, equal timestamp: fixed order over ids decides
	fields, provenance := Reduce(observations, nil)
	assert.Equal(t, "from-aaa", fields["status"].Str)
	assert.Equal(t, "OB-aaa", provenance["status"].ObservationID)
}

func TestShuffleDeterminism(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var observations []ledger.Observation
	for i := 0; i < 25; i++ {
		observations = append(observations, obsAt(
			"OB-"+string(rune('a'+i%26))+string(rune('0'+i/26)),
			i%4,
			base.Add(time.Duration(i%7)*time.Hour),
			map[string]vals.Value{
				"status": vals.String("v" + string(rune('0'+i%10))),
				"count":  vals.Number(float64(i)),
			},
		))
	}

	canonical := func(observations []ledger.Observation) string {
		fields, provenance := Reduce(observations, nil)
		f, err := json.Marshal(fields)
		require.NoError(t, err)
		p, err := json.Marshal(provenance)
		require.NoError(t, err)
		return string(f) + "|" + string(p)
	}

	want := canonical(observations)
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		shuffled := make([]ledger.Observation, len(observations))
		copy(shuffled, observations)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		assert.Equal(t, want, canonical(shuffled), "trial %d", trial)
	}
}

func TestReduceFieldMatchesReduce(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	observations := []ledger.Observation{
		obsAt("OB-a", 0, base, map[string]vals.Value{"status": vals.String("A")}),
		obsAt("OB-b", 2, base.Add(time.Hour), map[string]vals.Value{"status": vals.String("B")}),
		obsAt("OB-c", 2, base.Add(2*time.Hour), map[string]vals.Value{"other": vals.String("x")}),
	}

	fields, provenance := Reduce(observations, nil)
	winner := ReduceField(observations, "status", schema.MergeHighestPriority)

	require.NotNil(t, winner)
	assert.Equal(t, provenance["status"].ObservationID, winner.ID)
	assert.True(t, fields["status"].Equal(winner.Fields["status"]))
}

func TestReduceFieldAbsent(t *testing.T) {
	observations := []ledger.Observation{
		obsAt("OB-a", 0, time.Now(), map[string]vals.Value{"status": vals.String("A")}),
	}
	assert.Nil(t, ReduceField(observations, "missing", schema.MergeHighestPriority))
}

func TestReduceEmptyLedger(t *testing.T) {
	fields, provenance := Reduce(nil, nil)
	assert.Empty(t, fields)
	assert.Empty(t, provenance)
}
