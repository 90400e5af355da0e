package database

import (
	"context"
	"database/sql"
	"fmt"
)

var (
	createResourcesTableSQL = `
CREATE TABLE IF NOT EXISTS %s (
    name            VARCHAR   NOT NULL PRIMARY KEY,
    description     TEXT      NOT NULL DEFAULT '',
    other_fields    %s        NOT NULL,
    reserved_by     VARCHAR   NOT NULL DEFAULT '',
    reserved_until  BIGINT    NOT NULL DEFAULT 0
);`
	createReservedUntilIndexSQL = `
CREATE INDEX IF NOT EXISTS %s
ON %s (reserved_until);`
)

// Migrate creates the resources table and its expiry index.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect, tableName string) error {
	if err := ValidateTableName(tableName); err != nil {
		return fmt.Errorf("invalid table name: %w", err)
	}
	if err := createResourcesTable(ctx, db, dialect, tableName); err != nil {
		return err
	}
	if err := createReservedUntilIndex(ctx, db, tableName); err != nil {
		return err
	}
	return nil
}

func createResourcesTable(ctx context.Context, db *sql.DB, dialect Dialect, tableName string) error {
	var query = fmt.Sprintf(createResourcesTableSQL, tableName, dialect.jsonType())
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create resources table: %w", err)
	}
	return nil
}

func createReservedUntilIndex(ctx context.Context, db *sql.DB, tableName string) error {
	var (
		indexName = fmt.Sprintf("%s_reserved_until_idx", tableName)
		query     = fmt.Sprintf(createReservedUntilIndexSQL, indexName, tableName)
	)
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create reserved_until index: %w", err)
	}
	return nil
}
