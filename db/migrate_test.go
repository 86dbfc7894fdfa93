package db

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func newMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMigrateCreatesCoreTables(t *testing.T) {
	conn := newMemoryDB(t)

	if err := Migrate(conn, nil); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}

	tables := []string{
		"sources", "source_records", "entities", "observations",
		"schemas", "raw_fragments", "schema_recommendations",
		"relationships", "relationship_observations",
	}
	for _, table := range tables {
		var name string
		err := conn.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q missing after migrate: %v", table, err)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn := newMemoryDB(t)

	if err := Migrate(conn, nil); err != nil {
		t.Fatalf("first Migrate() error: %v", err)
	}
	if err := Migrate(conn, nil); err != nil {
		t.Fatalf("second Migrate() error: %v", err)
	}

	var count int
	if err := conn.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 5 {
		t.Errorf("schema_migrations rows = %d, want 5", count)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	conn := newMemoryDB(t)
	if err := Migrate(conn, nil); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}

	insert := `INSERT INTO sources (id, content_hash, idempotency_key, size_bytes, mime_type, owner, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := conn.Exec(insert, "SRC1", "hash1", "key1", 10, "text/plain", "alice", "2024-01-01T00:00:00Z"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, err := conn.Exec(insert, "SRC2", "hash2", "key1", 10, "text/plain", "alice", "2024-01-01T00:00:00Z")
	if err == nil {
		t.Fatal("expected unique violation, got nil")
	}
	if !IsUniqueViolation(err) {
		t.Errorf("IsUniqueViolation(%v) = false, want true", err)
	}
	if IsForeignKeyViolation(err) {
		t.Errorf("IsForeignKeyViolation(%v) = true, want false", err)
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	conn := newMemoryDB(t)
	if err := Migrate(conn, nil); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("pragma: %v", err)
	}

	_, err := conn.Exec(`INSERT INTO observations (id, entity_id, schema_version, fields_json, priority, observed_at, owner, created_at)
		VALUES ('OB1', 'missing-entity', 1, '{}', 0, '2024-01-01T00:00:00Z', 'alice', '2024-01-01T00:00:00Z')`)
	if err == nil {
		t.Fatal("expected foreign key violation, got nil")
	}
	if !IsForeignKeyViolation(err) {
		t.Errorf("IsForeignKeyViolation(%v) = false, want true", err)
	}
}
