package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// PostgresTestEnv names the environment variable holding the DSN of a disposable PostgreSQL database.
const PostgresTestEnv = "LEASEKEEPER_TEST_POSTGRES"

// TestingT is an interface for testing compatibility.
type TestingT interface {
	Logf(format string, args ...any)
	Skipf(format string, args ...any)
	FailNow()
	Cleanup(func())
	TempDir() string
}

// SetupTestDatabase creates a PostgreSQL connection scoped to a fresh schema.
// The test is skipped when LEASEKEEPER_TEST_POSTGRES is unset.
func SetupTestDatabase(t TestingT, driver string) *sql.DB {
	var connURL = os.Getenv(PostgresTestEnv)
	if connURL == "" {
		t.Skipf("%s not set; skipping PostgreSQL test", PostgresTestEnv)
		return nil
	}

	var schema = fmt.Sprintf("test_%s", uuid.New().String()[0:8])

	// First, connect to create the schema
	conn, err := sql.Open(driver, connURL)
	if err != nil {
		t.Logf("failed to connect to database. Is your local database running?: %v", err)
		t.FailNow()
	}

	_, err = conn.Exec("CREATE SCHEMA IF NOT EXISTS " + schema)
	if err != nil {
		t.Logf("Failed to create schema %s", schema)
		t.Logf("Error: %s", err)
		t.FailNow()
	}
	conn.Close()

	// Reconnect with the schema on the search path
	var separator = "?"
	if strings.Contains(connURL, "?") {
		separator = "&"
	}
	conn, err = sql.Open(driver, connURL+separator+"search_path="+schema)
	if err != nil {
		t.Logf("failed to connect to database with schema: %v", err)
		t.FailNow()
	}

	t.Cleanup(func() {
		_, _ = conn.Exec("DROP SCHEMA IF EXISTS " + schema + " CASCADE")
		_ = conn.Close()
	})

	return conn
}

// SetupSQLiteDatabase opens a SQLite database in the test's temp dir.
func SetupSQLiteDatabase(t TestingT) *sql.DB {
	var path = filepath.Join(t.TempDir(), "leasekeeper.db")

	conn, _, err := Open(context.Background(), "sqlite3", "file:"+path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		t.Logf("failed to open sqlite database: %v", err)
		t.FailNow()
	}

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return conn
}
