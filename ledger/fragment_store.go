package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/stratahq/strata/db"
	"github.com/stratahq/strata/errors"
	"github.com/stratahq/strata/vals"
)

// DefaultSampleLimit bounds how many values a fragment retains for type
// inference when the caller does not override it.
const DefaultSampleLimit = 10

// FragmentStore maintains the raw fragment ledger: one row per
// (entity_type, fragment_key, owner), with frequency and diversity
// accumulated across sightings.
type FragmentStore struct {
	db          *sql.DB
	logger      *zap.SugaredLogger
	sampleLimit int
}

// NewFragmentStore creates a fragment store backed by conn. sampleLimit <= 0
// uses DefaultSampleLimit.
func NewFragmentStore(conn *sql.DB, sampleLimit int, logger *zap.SugaredLogger) *FragmentStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if sampleLimit <= 0 {
		sampleLimit = DefaultSampleLimit
	}
	return &FragmentStore{db: conn, logger: logger, sampleLimit: sampleLimit}
}

// RecordSighting registers one sighting of an unrecognized field. Null
// values are never recorded. Repeat sightings increment frequency and
// accumulate distinct source ids and record refs; the value sample list is
// bounded by the store's sample limit.
func (s *FragmentStore) RecordSighting(ctx context.Context, entityType, key string, value vals.Value, sourceID, recordRef, owner string) error {
	if value.IsNull() {
		return nil
	}
	if entityType == "" || key == "" {
		return errors.Wrap(errors.ErrValidation, "fragment requires entity type and key")
	}

	// Unique primary key plus read-merge-write inside a transaction. A
	// concurrent first sighting surfaces as a unique violation, which we
	// resolve by retrying the update path once.
	err := s.recordOnce(ctx, entityType, key, value, sourceID, recordRef, owner)
	if err != nil && db.IsUniqueViolation(err) {
		err = s.recordOnce(ctx, entityType, key, value, sourceID, recordRef, owner)
	}
	return err
}

func (s *FragmentStore) recordOnce(ctx context.Context, entityType, key string, value vals.Value, sourceID, recordRef, owner string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin fragment tx")
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(db.TimeFormat)

	row := tx.QueryRowContext(ctx, `
		SELECT sample_values_json, frequency_count, source_ids_json, record_refs_json
		FROM raw_fragments
		WHERE entity_type = ? AND fragment_key = ? AND owner = ?`,
		entityType, key, owner)

	var (
		samplesJSON string
		frequency   int
		sourcesJSON string
		refsJSON    string
	)
	scanErr := row.Scan(&samplesJSON, &frequency, &sourcesJSON, &refsJSON)

	switch {
	case scanErr == nil:
		samples, err := decodeValueList(samplesJSON)
		if err != nil {
			return err
		}
		if len(samples) < s.sampleLimit {
			samples = append(samples, value)
		}
		sources, err := decodeStringList(sourcesJSON)
		if err != nil {
			return err
		}
		sources = appendDistinct(sources, sourceID)
		refs, err := decodeStringList(refsJSON)
		if err != nil {
			return err
		}
		refs = appendDistinct(refs, recordRef)

		newSamples, err := json.Marshal(samples)
		if err != nil {
			return errors.Wrap(err, "marshal fragment samples")
		}
		newSources, _ := json.Marshal(sources)
		newRefs, _ := json.Marshal(refs)

		if _, err := tx.ExecContext(ctx, `
			UPDATE raw_fragments
			SET sample_values_json = ?, frequency_count = frequency_count + 1,
			    source_ids_json = ?, record_refs_json = ?, last_seen_at = ?
			WHERE entity_type = ? AND fragment_key = ? AND owner = ?`,
			string(newSamples), string(newSources), string(newRefs), now,
			entityType, key, owner); err != nil {
			return errors.Wrap(err, "increment fragment")
		}

	case errors.Is(scanErr, sql.ErrNoRows):
		samples, err := json.Marshal([]vals.Value{value})
		if err != nil {
			return errors.Wrap(err, "marshal fragment samples")
		}
		sources, _ := json.Marshal(appendDistinct(nil, sourceID))
		refs, _ := json.Marshal(appendDistinct(nil, recordRef))

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO raw_fragments (entity_type, fragment_key, sample_values_json, frequency_count,
			                           source_ids_json, record_refs_json, owner, first_seen_at, last_seen_at)
			VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?)`,
			entityType, key, string(samples), string(sources), string(refs), owner, now, now); err != nil {
			return errors.Wrap(err, "insert fragment")
		}

	default:
		return errors.Wrap(scanErr, "read fragment")
	}

	return errors.Wrap(tx.Commit(), "commit fragment tx")
}

// List returns all fragments for an owner, optionally filtered by entity
// type (empty means all).
func (s *FragmentStore) List(ctx context.Context, entityType, owner string) ([]RawFragment, error) {
	query := `
		SELECT entity_type, fragment_key, sample_values_json, frequency_count,
		       source_ids_json, record_refs_json, owner, first_seen_at, last_seen_at
		FROM raw_fragments WHERE owner = ?`
	args := []interface{}{owner}
	if entityType != "" {
		query += " AND entity_type = ?"
		args = append(args, entityType)
	}
	query += " ORDER BY entity_type, fragment_key"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list fragments")
	}
	defer rows.Close()

	var out []RawFragment
	for rows.Next() {
		frag, err := scanFragment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *frag)
	}
	return out, rows.Err()
}

// Get returns one fragment row.
func (s *FragmentStore) Get(ctx context.Context, entityType, key, owner string) (*RawFragment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT entity_type, fragment_key, sample_values_json, frequency_count,
		       source_ids_json, record_refs_json, owner, first_seen_at, last_seen_at
		FROM raw_fragments
		WHERE entity_type = ? AND fragment_key = ? AND owner = ?`,
		entityType, key, owner)

	frag, err := scanFragment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(errors.ErrResourceNotFound, "fragment %s.%s", entityType, key)
		}
		return nil, err
	}
	return frag, nil
}

// DeleteTx removes a fragment within an existing transaction. Called when
// the field is promoted into schema so future sightings land in
// observations instead.
func (s *FragmentStore) DeleteTx(ctx context.Context, tx *sql.Tx, entityType, key, owner string) error {
	_, err := tx.ExecContext(ctx,
		"DELETE FROM raw_fragments WHERE entity_type = ? AND fragment_key = ? AND owner = ?",
		entityType, key, owner)
	return errors.Wrap(err, "delete promoted fragment")
}

func scanFragment(row interface{ Scan(...interface{}) error }) (*RawFragment, error) {
	var (
		frag        RawFragment
		samplesJSON string
		sourcesJSON string
		refsJSON    string
		firstSeen   string
		lastSeen    string
	)
	if err := row.Scan(&frag.EntityType, &frag.FragmentKey, &samplesJSON, &frag.FrequencyCount,
		&sourcesJSON, &refsJSON, &frag.Owner, &firstSeen, &lastSeen); err != nil {
		return nil, err
	}

	samples, err := decodeValueList(samplesJSON)
	if err != nil {
		return nil, err
	}
	frag.SampleValues = samples

	if frag.SourceIDs, err = decodeStringList(sourcesJSON); err != nil {
		return nil, err
	}
	if frag.RecordRefs, err = decodeStringList(refsJSON); err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339Nano, firstSeen); err == nil {
		frag.FirstSeenAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, lastSeen); err == nil {
		frag.LastSeenAt = t
	}
	return &frag, nil
}

func decodeValueList(encoded string) ([]vals.Value, error) {
	if encoded == "" {
		return nil, nil
	}
	var out []vals.Value
	if err := json.Unmarshal([]byte(encoded), &out); err != nil {
		return nil, errors.Wrap(err, "decode fragment samples")
	}
	return out, nil
}

func decodeStringList(encoded string) ([]string, error) {
	if encoded == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(encoded), &out); err != nil {
		return nil, errors.Wrap(err, "decode string list")
	}
	return out, nil
}

func appendDistinct(list []string, item string) []string {
	if item == "" {
		return list
	}
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
