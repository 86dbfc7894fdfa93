package ledger

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratahq/strata/db"
	"github.com/stratahq/strata/errors"
	"github.com/stratahq/strata/vals"
)

// SourceStore persists sources and their captured candidate records.
type SourceStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewSourceStore creates a source store backed by conn.
func NewSourceStore(conn *sql.DB, logger *zap.SugaredLogger) *SourceStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SourceStore{db: conn, logger: logger}
}

// HashContent returns the content address for raw input bytes.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// CreateIdempotent stores a source, idempotent on (idempotency key, owner).
// Replaying the same key with the same content returns the existing source
// with created=false. Replaying the same key with different content is a
// conflict, never a silent overwrite.
func (s *SourceStore) CreateIdempotent(ctx context.Context, content []byte, mimeType, idempotencyKey, owner string) (*Source, bool, error) {
	if idempotencyKey == "" {
		return nil, false, errors.Wrap(errors.ErrValidation, "idempotency key is required")
	}

	hash := HashContent(content)

	if existing, err := s.getByKey(ctx, idempotencyKey, owner); err == nil {
		if existing.ContentHash != hash {
			return nil, false, errors.Wrapf(errors.ErrConflict,
				"idempotency key %q was already used with different content", idempotencyKey)
		}
		return existing, false, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, errors.Wrap(err, "look up source by idempotency key")
	}

	src := &Source{
		ID:             "SRC" + uuid.NewString(),
		ContentHash:    hash,
		IdempotencyKey: idempotencyKey,
		SizeBytes:      int64(len(content)),
		MimeType:       mimeType,
		Owner:          owner,
		CreatedAt:      time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (id, content_hash, idempotency_key, size_bytes, mime_type, owner, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.ContentHash, src.IdempotencyKey, src.SizeBytes, src.MimeType, src.Owner,
		src.CreatedAt.Format(db.TimeFormat))
	if err != nil {
		// A concurrent writer may have inserted the same key between our
		// read and write; resolve through the unique constraint.
		if db.IsUniqueViolation(err) {
			existing, lookupErr := s.getByKey(ctx, idempotencyKey, owner)
			if lookupErr != nil {
				return nil, false, errors.Wrap(lookupErr, "re-read source after unique violation")
			}
			if existing.ContentHash != hash {
				return nil, false, errors.Wrapf(errors.ErrConflict,
					"idempotency key %q was already used with different content", idempotencyKey)
			}
			return existing, false, nil
		}
		return nil, false, errors.Wrap(err, "insert source")
	}

	s.logger.Debugw("Stored source",
		"source_id", src.ID,
		"content_hash", src.ContentHash[:12],
		"size_bytes", src.SizeBytes,
	)
	return src, true, nil
}

// Get returns a source by id, scoped to the owner.
func (s *SourceStore) Get(ctx context.Context, id, owner string) (*Source, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content_hash, idempotency_key, size_bytes, mime_type, owner, created_at
		FROM sources WHERE id = ? AND owner = ?`, id, owner)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrResourceNotFound, "source %s", id)
	}
	return src, err
}

func (s *SourceStore) getByKey(ctx context.Context, key, owner string) (*Source, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content_hash, idempotency_key, size_bytes, mime_type, owner, created_at
		FROM sources WHERE idempotency_key = ? AND owner = ?`, key, owner)
	return scanSource(row)
}

// SaveRecords captures the candidate tuples delivered with a source so
// reinterpretation can replay them later. Records are keyed by sequence and
// written once; replaying an ingest must not duplicate them.
func (s *SourceStore) SaveRecords(ctx context.Context, sourceID string, records []SourceRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin save records tx")
	}
	defer tx.Rollback()

	for _, rec := range records {
		fieldsJSON, err := vals.MarshalFields(rec.Fields)
		if err != nil {
			return errors.Wrapf(err, "marshal record %d", rec.Seq)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO source_records (source_id, seq, entity_type, fields_json)
			VALUES (?, ?, ?, ?)`,
			sourceID, rec.Seq, rec.EntityType, string(fieldsJSON)); err != nil {
			return errors.Wrapf(err, "insert record %d", rec.Seq)
		}
	}

	return errors.Wrap(tx.Commit(), "commit save records tx")
}

// ListRecords returns the captured candidate tuples for a source in
// sequence order, verifying the source belongs to the owner.
func (s *SourceStore) ListRecords(ctx context.Context, sourceID, owner string) ([]SourceRecord, error) {
	if _, err := s.Get(ctx, sourceID, owner); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, seq, entity_type, fields_json
		FROM source_records WHERE source_id = ? ORDER BY seq`, sourceID)
	if err != nil {
		return nil, errors.Wrap(err, "list source records")
	}
	defer rows.Close()

	var out []SourceRecord
	for rows.Next() {
		var (
			rec        SourceRecord
			fieldsJSON string
		)
		if err := rows.Scan(&rec.SourceID, &rec.Seq, &rec.EntityType, &fieldsJSON); err != nil {
			return nil, errors.Wrap(err, "scan source record")
		}
		fields, err := vals.UnmarshalFields([]byte(fieldsJSON))
		if err != nil {
			return nil, errors.Wrapf(err, "decode record %d", rec.Seq)
		}
		rec.Fields = fields
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanSource(row interface{ Scan(...interface{}) error }) (*Source, error) {
	var (
		src       Source
		createdAt string
	)
	if err := row.Scan(&src.ID, &src.ContentHash, &src.IdempotencyKey, &src.SizeBytes,
		&src.MimeType, &src.Owner, &createdAt); err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		src.CreatedAt = t
	}
	return &src, nil
}

func recordRef(sourceID string, seq int) string {
	return fmt.Sprintf("%s#%d", sourceID, seq)
}
