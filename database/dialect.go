package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect selects the SQL flavour used by Migrate and Queries.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

var (
	// ErrInvalidTableName is returned when the table name is not a safe SQL identifier
	ErrInvalidTableName = errors.New("table name must contain only lowercase letters, numbers, and underscores, and start with a letter")

	validTableNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	placeholderPattern    = regexp.MustCompile(`\$\d+`)
)

// DialectForDriver maps a database/sql driver name to its dialect.
func DialectForDriver(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "pgx":
		return Postgres, nil
	case "sqlite3":
		return SQLite, nil
	default:
		return 0, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// rebind rewrites $n placeholders for drivers that expect ?. Queries must use each
// placeholder once and in order.
func (d Dialect) rebind(query string) string {
	if d == SQLite {
		return placeholderPattern.ReplaceAllString(query, "?")
	}
	return query
}

func (d Dialect) jsonType() string {
	if d == SQLite {
		return "TEXT"
	}
	return "JSONB"
}

// ValidateTableName checks that name can be interpolated into SQL as an identifier.
func ValidateTableName(name string) error {
	if name == "" {
		return errors.New("table name cannot be empty")
	}
	if len(name) > 63 {
		return errors.New("table name must be 63 characters or less")
	}
	if !validTableNamePattern.MatchString(name) {
		return ErrInvalidTableName
	}
	return nil
}

// Open connects with the given driver ("postgres", "pgx" or "sqlite3") and pings the database.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, Dialect, error) {
	var dialect, err = DialectForDriver(driver)
	if err != nil {
		return nil, 0, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	if dialect == SQLite {
		// sqlite serializes writers; one connection avoids SQLITE_BUSY under concurrent CAS.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, 0, fmt.Errorf("failed to ping %s database: %w", dialect, err)
	}
	return db, dialect, nil
}
