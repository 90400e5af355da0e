package leasekeeper

import (
	"context"
	"database/sql"
	"fmt"

	"go-leasekeeper/database"
)

// SQLStore is a Store backed by PostgreSQL or SQLite through database/sql.
type SQLStore struct {
	queries *database.Queries
}

// NewSQLStore migrates tableName and returns a Store over it.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect database.Dialect, tableName string) (*SQLStore, error) {
	if err := database.Migrate(ctx, db, dialect, tableName); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &SQLStore{
		queries: database.NewQueries(db, dialect, tableName),
	}, nil
}

func (s *SQLStore) Get(ctx context.Context, name string) (Resource, error) {
	var record, err = s.queries.GetResource(ctx, name)
	if err != nil {
		return Resource{}, fmt.Errorf("failed to get resource %s: %w", name, err)
	}
	if record == nil {
		return Resource{}, ErrNotFound
	}
	return fromRecord(record), nil
}

func (s *SQLStore) List(ctx context.Context) ([]Resource, error) {
	var records, err = s.queries.ListResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}

	var resources = make([]Resource, len(records))
	for i, record := range records {
		resources[i] = fromRecord(record)
	}
	return resources, nil
}

func (s *SQLStore) CompareAndSet(ctx context.Context, name string, expected, next Lease) error {
	var swapped, err = s.queries.CompareAndSetLease(ctx, name,
		database.LeaseFields{ReservedBy: expected.ReservedBy, ReservedUntil: expected.ReservedUntil},
		database.LeaseFields{ReservedBy: next.ReservedBy, ReservedUntil: next.ReservedUntil},
	)
	if err != nil {
		return fmt.Errorf("failed to set lease of %s: %w", name, err)
	}
	if swapped {
		return nil
	}

	exists, err := s.queries.ResourceExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check resource %s: %w", name, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func (s *SQLStore) Create(ctx context.Context, res Resource) error {
	var inserted, err = s.queries.InsertResource(ctx, &database.ResourceRecord{
		Name:          res.Name,
		Description:   res.Description,
		OtherFields:   res.OtherFields,
		ReservedBy:    res.ReservedBy,
		ReservedUntil: res.ReservedUntil,
	})
	if err != nil {
		return fmt.Errorf("failed to create resource %s: %w", res.Name, err)
	}
	if !inserted {
		return ErrAlreadyExists
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, name string) error {
	var deleted, err = s.queries.DeleteResource(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to delete resource %s: %w", name, err)
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

func fromRecord(record *database.ResourceRecord) Resource {
	return Resource{
		Name:        record.Name,
		Description: record.Description,
		OtherFields: record.OtherFields,
		Lease: Lease{
			ReservedBy:    record.ReservedBy,
			ReservedUntil: record.ReservedUntil,
		},
	}
}
