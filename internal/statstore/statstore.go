package statstore

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// user_version history:
//
//	0 - pre-release layout without the (run_id, seq) uniqueness guarantee
//	1 - unique index on evaluations(run_id, seq)
const currentSchemaVersion = 1

// Store persists per-run engine statistics in a SQLite file: one row per
// run plus ordered evaluation and mode-event rows keyed by trace sequence.
// A single harness loop writes; the report command may read while a run is
// still in progress, which is why the journal runs in WAL mode.
type Store struct {
	db *sql.DB
}

// Open opens the statistics database at path, creating the file if needed,
// and brings it to the current schema version. Idempotent on an existing
// database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open statistics database: %w", err)
	}

	// SQLite allows one writer; a second pooled connection would only
	// surface SQLITE_BUSY under contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect statistics database: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure statistics database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate statistics database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the raw handle for ad-hoc queries in tests and tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// configure applies the session pragmas: WAL so report reads do not block
// the writer, NORMAL synchronous, a 5s busy timeout, and foreign key
// enforcement for the run_id references.
func configure(db *sql.DB) error {
	settings := [][2]string{
		{"journal_mode", "WAL"},
		{"synchronous", "NORMAL"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "ON"},
	}
	for _, kv := range settings {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", kv[0], kv[1])); err != nil {
			return fmt.Errorf("set pragma %s: %w", kv[0], err)
		}
	}
	return nil
}

// migrate executes the embedded schema, then walks the user_version ladder
// for databases created by older builds. The schema itself declares the
// head-version constraints, so every step must be a no-op on fresh files.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("record user_version: %w", err)
	}
	return nil
}

// migrateToV1 backfills the evaluation sequence uniqueness index on
// databases that predate the table-level constraint.
func migrateToV1(db *sql.DB) error {
	const idx = `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_evaluations_run_seq_unique
		ON evaluations(run_id, seq)
	`
	if _, err := db.Exec(idx); err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma reports whether a pragma holds the expected value. Test hook.
func (s *Store) verifyPragma(name, expected string) error {
	var got string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&got); err != nil {
		return fmt.Errorf("read pragma %s: %w", name, err)
	}
	if got != expected {
		return fmt.Errorf("pragma %s = %q, want %q", name, got, expected)
	}
	return nil
}
