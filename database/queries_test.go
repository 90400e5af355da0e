package database

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTable = "test_resources"

func TestQueries(t *testing.T) {
	var backends = map[string]func(t *testing.T) (*sql.DB, Dialect){
		"sqlite": func(t *testing.T) (*sql.DB, Dialect) {
			return SetupSQLiteDatabase(t), SQLite
		},
		"postgres": func(t *testing.T) (*sql.DB, Dialect) {
			return SetupTestDatabase(t, "postgres"), Postgres
		},
		"pgx": func(t *testing.T) (*sql.DB, Dialect) {
			return SetupTestDatabase(t, "pgx"), Postgres
		},
	}

	for backend, open := range backends {
		t.Run(backend, func(t *testing.T) {
			testQueries(t, open)
		})
	}
}

func testQueries(t *testing.T, open func(t *testing.T) (*sql.DB, Dialect)) {
	var (
		newDb = func(t *testing.T) *Queries {
			var db, dialect = open(t)
			err := Migrate(context.Background(), db, dialect, testTable)
			require.NoError(t, err)
			return NewQueries(db, dialect, testTable)
		}
		newCtx = func() context.Context {
			return context.Background()
		}
		newRecord = func(name string) *ResourceRecord {
			return &ResourceRecord{
				Name:        name,
				Description: "lab machine",
				OtherFields: map[string]string{"rack": "b4"},
			}
		}
	)

	t.Run("should insert and get resource", func(t *testing.T) {
		// Arrange
		var (
			sut    = newDb(t)
			ctx    = newCtx()
			record = newRecord("host-1")
		)

		// Act
		inserted, err := sut.InsertResource(ctx, record)
		require.NoError(t, err)
		var retrieved, getErr = sut.GetResource(ctx, "host-1")

		// Assert
		require.NoError(t, getErr)
		require.NotNil(t, retrieved)
		assert.True(t, inserted)
		assert.Equal(t, "host-1", retrieved.Name)
		assert.Equal(t, "lab machine", retrieved.Description)
		assert.Equal(t, map[string]string{"rack": "b4"}, retrieved.OtherFields)
		assert.Empty(t, retrieved.ReservedBy)
		assert.Equal(t, int64(0), retrieved.ReservedUntil)
	})

	t.Run("should return nil for non-existent resource", func(t *testing.T) {
		// Arrange
		var (
			sut = newDb(t)
			ctx = newCtx()
		)

		// Act
		var retrieved, err = sut.GetResource(ctx, "missing")

		// Assert
		require.NoError(t, err)
		assert.Nil(t, retrieved)
	})

	t.Run("should not insert duplicate names", func(t *testing.T) {
		// Arrange
		var (
			sut = newDb(t)
			ctx = newCtx()
		)
		_, err := sut.InsertResource(ctx, newRecord("host-1"))
		require.NoError(t, err)

		// Act
		inserted, err := sut.InsertResource(ctx, newRecord("host-1"))

		// Assert
		require.NoError(t, err)
		assert.False(t, inserted)
	})

	t.Run("should list resources ordered by name", func(t *testing.T) {
		// Arrange
		var (
			sut   = newDb(t)
			ctx   = newCtx()
			names = []string{"host-3", "host-1", "host-2"}
		)

		// Act - insert in random order
		for _, name := range names {
			_, err := sut.InsertResource(ctx, newRecord(name))
			require.NoError(t, err)
		}
		var retrieved, listErr = sut.ListResources(ctx)

		// Assert
		require.NoError(t, listErr)
		require.Len(t, retrieved, 3)
		assert.Equal(t, "host-1", retrieved[0].Name)
		assert.Equal(t, "host-2", retrieved[1].Name)
		assert.Equal(t, "host-3", retrieved[2].Name)
	})

	t.Run("should compare-and-set lease when expected matches", func(t *testing.T) {
		// Arrange
		var (
			sut = newDb(t)
			ctx = newCtx()
		)
		_, err := sut.InsertResource(ctx, newRecord("host-1"))
		require.NoError(t, err)

		// Act
		swapped, err := sut.CompareAndSetLease(ctx, "host-1",
			LeaseFields{},
			LeaseFields{ReservedBy: "carol", ReservedUntil: 2800},
		)
		require.NoError(t, err)
		var retrieved, getErr = sut.GetResource(ctx, "host-1")

		// Assert
		require.NoError(t, getErr)
		assert.True(t, swapped)
		assert.Equal(t, "carol", retrieved.ReservedBy)
		assert.Equal(t, int64(2800), retrieved.ReservedUntil)
	})

	t.Run("should not compare-and-set lease when expected is stale", func(t *testing.T) {
		// Arrange
		var (
			sut = newDb(t)
			ctx = newCtx()
		)
		_, err := sut.InsertResource(ctx, newRecord("host-1"))
		require.NoError(t, err)
		_, err = sut.CompareAndSetLease(ctx, "host-1", LeaseFields{}, LeaseFields{ReservedBy: "carol", ReservedUntil: 2800})
		require.NoError(t, err)

		// Act - dave still believes the resource is free
		swapped, err := sut.CompareAndSetLease(ctx, "host-1", LeaseFields{}, LeaseFields{ReservedBy: "dave"})
		require.NoError(t, err)
		var retrieved, getErr = sut.GetResource(ctx, "host-1")

		// Assert
		require.NoError(t, getErr)
		assert.False(t, swapped)
		assert.Equal(t, "carol", retrieved.ReservedBy)
	})

	t.Run("should report resource existence", func(t *testing.T) {
		// Arrange
		var (
			sut = newDb(t)
			ctx = newCtx()
		)
		_, err := sut.InsertResource(ctx, newRecord("host-1"))
		require.NoError(t, err)

		// Act
		exists, err1 := sut.ResourceExists(ctx, "host-1")
		missing, err2 := sut.ResourceExists(ctx, "host-2")

		// Assert
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.True(t, exists)
		assert.False(t, missing)
	})

	t.Run("should delete resource", func(t *testing.T) {
		// Arrange
		var (
			sut = newDb(t)
			ctx = newCtx()
		)
		_, err := sut.InsertResource(ctx, newRecord("host-1"))
		require.NoError(t, err)

		// Act
		deleted, err := sut.DeleteResource(ctx, "host-1")
		require.NoError(t, err)
		deletedAgain, err := sut.DeleteResource(ctx, "host-1")
		require.NoError(t, err)
		var retrieved, getErr = sut.GetResource(ctx, "host-1")

		// Assert
		require.NoError(t, getErr)
		assert.True(t, deleted)
		assert.False(t, deletedAgain)
		assert.Nil(t, retrieved)
	})
}

func TestValidateTableName(t *testing.T) {
	t.Run("should accept lowercase identifiers", func(t *testing.T) {
		assert.NoError(t, ValidateTableName("resources"))
		assert.NoError(t, ValidateTableName("lab_resources_2"))
	})

	t.Run("should reject unsafe identifiers", func(t *testing.T) {
		assert.Error(t, ValidateTableName(""))
		assert.ErrorIs(t, ValidateTableName("Resources"), ErrInvalidTableName)
		assert.ErrorIs(t, ValidateTableName("res; DROP TABLE x"), ErrInvalidTableName)
		assert.ErrorIs(t, ValidateTableName("1resources"), ErrInvalidTableName)
	})

	t.Run("should map drivers to dialects", func(t *testing.T) {
		var d, err = DialectForDriver("pgx")
		require.NoError(t, err)
		assert.Equal(t, Postgres, d)

		d, err = DialectForDriver("sqlite3")
		require.NoError(t, err)
		assert.Equal(t, SQLite, d)

		_, err = DialectForDriver("mysql")
		assert.Error(t, err)
	})

	t.Run("should rebind placeholders for sqlite", func(t *testing.T) {
		assert.Equal(t, "a = ? AND b = ?", SQLite.rebind("a = $1 AND b = $2"))
		assert.Equal(t, "a = $1 AND b = $2", Postgres.rebind("a = $1 AND b = $2"))
	})
}
