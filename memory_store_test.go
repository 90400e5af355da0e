package leasekeeper_test

import (
	"testing"

	leasekeeper "go-leasekeeper"
	"go-leasekeeper/database"
	"go-leasekeeper/storetest"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) leasekeeper.Store {
		return leasekeeper.NewMemoryStore()
	})
}

func TestSQLStore(t *testing.T) {
	const table = "resources"

	t.Run("sqlite", func(t *testing.T) {
		storetest.Run(t, func(t *testing.T) leasekeeper.Store {
			var store, err = leasekeeper.NewSQLStore(newCtx(), database.SetupSQLiteDatabase(t), database.SQLite, table)
			require.NoError(t, err)
			return store
		})
	})

	t.Run("postgres", func(t *testing.T) {
		storetest.Run(t, func(t *testing.T) leasekeeper.Store {
			var store, err = leasekeeper.NewSQLStore(newCtx(), database.SetupTestDatabase(t, "postgres"), database.Postgres, table)
			require.NoError(t, err)
			return store
		})
	})

	t.Run("pgx", func(t *testing.T) {
		storetest.Run(t, func(t *testing.T) leasekeeper.Store {
			var store, err = leasekeeper.NewSQLStore(newCtx(), database.SetupTestDatabase(t, "pgx"), database.Postgres, table)
			require.NoError(t, err)
			return store
		})
	})
}
