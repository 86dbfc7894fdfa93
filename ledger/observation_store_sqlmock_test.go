package ledger

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratahq/strata/vals"
)

// Driver-error paths, verified against a mock so no real database state is
// needed to make the driver fail.

func TestAppendPropagatesDriverError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("INSERT INTO observations").
		WillReturnError(assert.AnError)

	store := NewObservationStore(conn, nil)
	err = store.Append(context.Background(), &Observation{
		EntityID: "EN1",
		Fields:   map[string]vals.Value{"status": vals.String("pending")},
		Owner:    "user-1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByEntityPropagatesDriverError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery("SELECT (.+) FROM observations").
		WillReturnError(assert.AnError)

	store := NewObservationStore(conn, nil)
	_, err = store.ListByEntity(context.Background(), "EN1", "user-1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByEntityScanError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	// a malformed fields column must surface as a decode error, not a panic
	rows := sqlmock.NewRows([]string{
		"id", "entity_id", "schema_version", "fields_json", "priority",
		"source_id", "observed_at", "owner", "created_at",
	}).AddRow("OB1", "EN1", 0, "{not json", 0, nil,
		"2024-01-01T00:00:00Z", "user-1", "2024-01-01T00:00:00Z")

	mock.ExpectQuery("SELECT (.+) FROM observations").WillReturnRows(rows)

	store := NewObservationStore(conn, nil)
	_, err = store.ListByEntity(context.Background(), "EN1", "user-1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode fields")
	assert.NoError(t, mock.ExpectationsWereMet())
}
