package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// DBTX is an interface that both sql.DB and sql.Tx implement.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Queries provides table-aware database operations.
type Queries struct {
	db        DBTX
	dialect   Dialect
	tableName string
}

// NewQueries creates a new Queries instance with the given table name.
func NewQueries(db DBTX, dialect Dialect, tableName string) *Queries {
	return &Queries{
		db:        db,
		dialect:   dialect,
		tableName: tableName,
	}
}

var (
	getResourceSQL = `
SELECT name, description, other_fields, reserved_by, reserved_until
FROM %s
WHERE name = $1;`

	listResourcesSQL = `
SELECT name, description, other_fields, reserved_by, reserved_until
FROM %s
ORDER BY name ASC;`

	insertResourceSQL = `
INSERT INTO %s (name, description, other_fields, reserved_by, reserved_until)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (name) DO NOTHING;`

	compareAndSetLeaseSQL = `
UPDATE %s
SET reserved_by = $1, reserved_until = $2
WHERE name = $3 AND reserved_by = $4 AND reserved_until = $5;`

	resourceExistsSQL = `
SELECT COUNT(*) FROM %s WHERE name = $1;`

	deleteResourceSQL = `
DELETE FROM %s
WHERE name = $1;`
)

func (q *Queries) query(tmpl string) string {
	return q.dialect.rebind(fmt.Sprintf(tmpl, q.tableName))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResource(row scanner) (*ResourceRecord, error) {
	var (
		record ResourceRecord
		fields []byte
	)
	if err := row.Scan(&record.Name, &record.Description, &fields, &record.ReservedBy, &record.ReservedUntil); err != nil {
		return nil, err
	}
	record.OtherFields = map[string]string{}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &record.OtherFields); err != nil {
			return nil, fmt.Errorf("failed to decode other_fields of %s: %w", record.Name, err)
		}
	}
	return &record, nil
}

// GetResource retrieves a single resource by name, or nil if it does not exist.
func (q *Queries) GetResource(ctx context.Context, name string) (*ResourceRecord, error) {
	var record, err = scanResource(q.db.QueryRowContext(ctx, q.query(getResourceSQL), name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return record, nil
}

// ListResources returns all resources ordered by name.
func (q *Queries) ListResources(ctx context.Context) ([]*ResourceRecord, error) {
	var rows, err = q.db.QueryContext(ctx, q.query(listResourcesSQL))
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var records []*ResourceRecord
	for rows.Next() {
		var record, err = scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// InsertResource inserts a resource. It returns false if the name is already taken.
func (q *Queries) InsertResource(ctx context.Context, record *ResourceRecord) (bool, error) {
	var fields = record.OtherFields
	if fields == nil {
		fields = map[string]string{}
	}
	encoded, err := json.Marshal(fields)
	if err != nil {
		return false, fmt.Errorf("failed to encode other_fields: %w", err)
	}

	result, err := q.db.ExecContext(ctx, q.query(insertResourceSQL),
		record.Name, record.Description, string(encoded), record.ReservedBy, record.ReservedUntil,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert resource: %w", err)
	}
	return affectedOne(result)
}

// CompareAndSetLease replaces the lease columns only if they still equal expected.
// It returns false when no row matched, either because the lease changed or the row is gone.
func (q *Queries) CompareAndSetLease(ctx context.Context, name string, expected, next LeaseFields) (bool, error) {
	var result, err = q.db.ExecContext(ctx, q.query(compareAndSetLeaseSQL),
		next.ReservedBy, next.ReservedUntil, name, expected.ReservedBy, expected.ReservedUntil,
	)
	if err != nil {
		return false, fmt.Errorf("failed to compare-and-set lease: %w", err)
	}
	return affectedOne(result)
}

// ResourceExists reports whether a resource row exists.
func (q *Queries) ResourceExists(ctx context.Context, name string) (bool, error) {
	var count int
	if err := q.db.QueryRowContext(ctx, q.query(resourceExistsSQL), name).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check resource: %w", err)
	}
	return count > 0, nil
}

// DeleteResource removes a resource by name. It returns false if nothing was deleted.
func (q *Queries) DeleteResource(ctx context.Context, name string) (bool, error) {
	var result, err = q.db.ExecContext(ctx, q.query(deleteResourceSQL), name)
	if err != nil {
		return false, fmt.Errorf("failed to delete resource: %w", err)
	}
	return affectedOne(result)
}

func affectedOne(result sql.Result) (bool, error) {
	var n, err = result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}
