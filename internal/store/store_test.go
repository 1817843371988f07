package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"sessions", "transactions", "steps"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct{ name, want string }{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		if err := s.verifyPragma(tt.name, tt.want); err != nil {
			t.Error(err)
		}
	}
}

func TestSchema_Columns(t *testing.T) {
	s := createTestStore(t)

	want := map[string][]string{
		"sessions":     {"id", "program", "engine_version", "format_version", "opened_seq"},
		"transactions": {"session_id", "seq", "event_type", "event_tag", "event_payload", "init", "status", "steps", "changed", "notified", "error_code", "error", "state_digest"},
		"steps":        {"session_id", "seq", "txn_seq", "idx", "message_type", "message_tag", "payload", "state", "canonical", "state_digest", "change"},
	}
	for table, cols := range want {
		got := getTableColumns(t, s.db, table)
		for _, c := range cols {
			if !slices.Contains(got, c) {
				t.Errorf("table %s missing column %q (have %v)", table, c, got)
			}
		}
	}
}

func TestConstraint_StepRequiresTransaction(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO sessions (id, engine_version, format_version) VALUES ('s1', '0', '1')
	`)
	if err != nil {
		t.Fatalf("insert session: %v", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO steps (session_id, seq, txn_seq, idx, message_type, message_tag, state, state_digest)
		VALUES ('s1', 2, 1, 0, 'A', 'tag', '{}', 'd')
	`)
	if err == nil {
		t.Error("expected foreign key constraint violation, got nil")
	}
}

func TestConstraint_TransactionRequiresSession(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO transactions (session_id, seq, event_type, event_tag)
		VALUES ('missing', 1, 'A', 'tag')
	`)
	if err == nil {
		t.Error("expected foreign key constraint violation, got nil")
	}
}

// Migration tests

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// Apply schema but NOT migrations (simulates pre-migration state)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatalf("failed to set user_version: %v", err)
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d after migration", version, currentSchemaVersion)
	}

	indexes := getTableIndexes(t, s.db, "transactions")
	if !slices.Contains(indexes, "idx_transactions_type") {
		t.Errorf("expected idx_transactions_type after migration, got indexes: %v", indexes)
	}
}

// Helper functions

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

// Read-only tests

func TestOpenReadOnly_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.db")
	if _, err := OpenReadOnly(path); err == nil {
		t.Fatal("expected error for missing journal, got nil")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("OpenReadOnly created %s", path)
	}
}

func TestOpenReadOnly_RejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	s.Close()

	ro, err := OpenReadOnly(path)
	if err != nil {
		t.Fatalf("OpenReadOnly() failed: %v", err)
	}
	defer ro.Close()

	if !ro.ReadOnly() {
		t.Error("ReadOnly() = false, want true")
	}
	sessions, err := ro.Sessions(context.Background())
	if err != nil {
		t.Fatalf("Sessions() failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("got %d sessions, want 0", len(sessions))
	}
	if err := ro.WriteSession(context.Background(), Session{ID: "s-1", Program: "p"}); err == nil {
		t.Error("expected write to read-only journal to fail")
	}
}

func TestOpenReadOnly_SchemaVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	db.Close()

	_, err = OpenReadOnly(path)
	if !errors.Is(err, ErrSchemaVersion) {
		t.Fatalf("OpenReadOnly() error = %v, want ErrSchemaVersion", err)
	}
}
