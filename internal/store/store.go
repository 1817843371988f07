package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Journal schema versions, tracked in PRAGMA user_version:
//
//	0 - transactions, steps and sessions tables
//	1 - index on transactions(session_id, event_type)
const currentSchemaVersion = 1

// ErrSchemaVersion reports a read-only open of a journal whose schema does
// not match this build. Read-only stores cannot migrate.
var ErrSchemaVersion = errors.New("journal schema version mismatch")

// Store is a SQLite dispatch journal.
type Store struct {
	db       *sql.DB
	readOnly bool
}

// Open opens the journal at path for writing, creating and migrating it as
// needed. Opening an existing journal again is safe.
//
// Connections use WAL with synchronous=NORMAL, a 5s busy timeout and foreign
// keys. The pool is capped at one connection: SQLite has a single writer and
// ":memory:" databases are per connection.
func Open(path string) (*Store, error) {
	db, err := connect(path)
	if err != nil {
		return nil, err
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("open journal: %s: %w", pragma, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenReadOnly opens an existing journal for inspection. It never creates
// the file and never migrates; a journal written by a different schema
// version fails with ErrSchemaVersion.
func OpenReadOnly(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	dsn := (&url.URL{
		Scheme:   "file",
		Opaque:   path,
		RawQuery: "mode=ro&_busy_timeout=5000&_foreign_keys=on",
	}).String()
	db, err := connect(dsn)
	if err != nil {
		return nil, err
	}

	version, err := schemaVersion(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if version != currentSchemaVersion {
		db.Close()
		return nil, fmt.Errorf("open journal %s: %w: found %d, want %d",
			path, ErrSchemaVersion, version, currentSchemaVersion)
	}
	return &Store{db: db, readOnly: true}, nil
}

func connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal: connect: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// Close closes the database. Closing a zero Store is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ReadOnly reports whether the store was opened with OpenReadOnly.
func (s *Store) ReadOnly() bool {
	return s.readOnly
}

// DB returns the underlying handle. Writes through it bypass the journal's
// invariants; tests use it to corrupt records on purpose.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Query runs an ad hoc read. Callers close the rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func schemaVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return version, nil
}

// migrate applies schema.sql, then each numbered migration above the
// stored user_version, then records currentSchemaVersion.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	version, err := schemaVersion(db)
	if err != nil {
		return err
	}

	migrations := []func(*sql.DB) error{
		migrateToV1,
	}
	for v := version; v < len(migrations); v++ {
		if err := migrations[v](db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_transactions_type
		ON transactions(session_id, event_type)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
