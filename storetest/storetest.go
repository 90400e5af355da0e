// Package storetest is a conformance suite shared by every leasekeeper.Store implementation.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	leasekeeper "go-leasekeeper"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises newStore against the Store contract. newStore must return an empty store
// isolated from other calls.
func Run(t *testing.T, newStore func(t *testing.T) leasekeeper.Store) {
	var (
		newCtx = func() context.Context {
			return context.Background()
		}
		newResource = func(name string) leasekeeper.Resource {
			return leasekeeper.Resource{
				Name:        name,
				Description: "bench rig",
				OtherFields: map[string]string{"location": "lab-2"},
			}
		}
	)

	t.Run("should create and get resource with free lease", func(t *testing.T) {
		// Arrange
		var (
			sut = newStore(t)
			ctx = newCtx()
		)

		// Act
		err := sut.Create(ctx, newResource("host-1"))
		require.NoError(t, err)
		var res, getErr = sut.Get(ctx, "host-1")

		// Assert
		require.NoError(t, getErr)
		assert.Equal(t, "host-1", res.Name)
		assert.Equal(t, "bench rig", res.Description)
		assert.Equal(t, "lab-2", res.OtherFields["location"])
		assert.Equal(t, leasekeeper.Lease{}, res.Lease)
	})

	t.Run("should report missing resource as not found", func(t *testing.T) {
		// Arrange
		var (
			sut = newStore(t)
			ctx = newCtx()
		)

		// Act
		var _, err = sut.Get(ctx, "missing")

		// Assert
		assert.ErrorIs(t, err, leasekeeper.ErrNotFound)
	})

	t.Run("should reject duplicate names", func(t *testing.T) {
		// Arrange
		var (
			sut = newStore(t)
			ctx = newCtx()
		)
		require.NoError(t, sut.Create(ctx, newResource("host-1")))

		// Act
		var err = sut.Create(ctx, newResource("host-1"))

		// Assert
		assert.ErrorIs(t, err, leasekeeper.ErrAlreadyExists)
	})

	t.Run("should list resources ordered by name", func(t *testing.T) {
		// Arrange
		var (
			sut = newStore(t)
			ctx = newCtx()
		)
		for _, name := range []string{"host-c", "host-a", "host-b"} {
			require.NoError(t, sut.Create(ctx, newResource(name)))
		}

		// Act
		var resources, err = sut.List(ctx)

		// Assert
		require.NoError(t, err)
		require.Len(t, resources, 3)
		assert.Equal(t, "host-a", resources[0].Name)
		assert.Equal(t, "host-b", resources[1].Name)
		assert.Equal(t, "host-c", resources[2].Name)
	})

	t.Run("should compare-and-set when expected lease matches", func(t *testing.T) {
		// Arrange
		var (
			sut  = newStore(t)
			ctx  = newCtx()
			next = leasekeeper.Lease{ReservedBy: "carol", ReservedUntil: 2800}
		)
		require.NoError(t, sut.Create(ctx, newResource("host-1")))

		// Act
		err := sut.CompareAndSet(ctx, "host-1", leasekeeper.Lease{}, next)
		require.NoError(t, err)
		var res, getErr = sut.Get(ctx, "host-1")

		// Assert
		require.NoError(t, getErr)
		assert.Equal(t, next, res.Lease)
		assert.Equal(t, "bench rig", res.Description, "metadata must survive lease writes")
	})

	t.Run("should refuse compare-and-set against a stale lease", func(t *testing.T) {
		// Arrange
		var (
			sut   = newStore(t)
			ctx   = newCtx()
			carol = leasekeeper.Lease{ReservedBy: "carol", ReservedUntil: 2800}
		)
		require.NoError(t, sut.Create(ctx, newResource("host-1")))
		require.NoError(t, sut.CompareAndSet(ctx, "host-1", leasekeeper.Lease{}, carol))

		// Act
		var err = sut.CompareAndSet(ctx, "host-1", leasekeeper.Lease{}, leasekeeper.Lease{ReservedBy: "dave"})
		var res, getErr = sut.Get(ctx, "host-1")

		// Assert
		assert.ErrorIs(t, err, leasekeeper.ErrConflict)
		require.NoError(t, getErr)
		assert.Equal(t, carol, res.Lease)
	})

	t.Run("should report compare-and-set on missing resource as not found", func(t *testing.T) {
		// Arrange
		var (
			sut = newStore(t)
			ctx = newCtx()
		)

		// Act
		var err = sut.CompareAndSet(ctx, "missing", leasekeeper.Lease{}, leasekeeper.Lease{ReservedBy: "dave"})

		// Assert
		assert.ErrorIs(t, err, leasekeeper.ErrNotFound)
	})

	t.Run("should delete resource", func(t *testing.T) {
		// Arrange
		var (
			sut = newStore(t)
			ctx = newCtx()
		)
		require.NoError(t, sut.Create(ctx, newResource("host-1")))

		// Act
		err := sut.Delete(ctx, "host-1")
		require.NoError(t, err)
		var _, getErr = sut.Get(ctx, "host-1")
		var deleteAgainErr = sut.Delete(ctx, "host-1")

		// Assert
		assert.ErrorIs(t, getErr, leasekeeper.ErrNotFound)
		assert.ErrorIs(t, deleteAgainErr, leasekeeper.ErrNotFound)
	})

	t.Run("should let exactly one concurrent compare-and-set win", func(t *testing.T) {
		// Arrange
		const writers = 16
		var (
			sut     = newStore(t)
			ctx     = newCtx()
			wins    atomic.Int32
			wg      sync.WaitGroup
			errs    = make(chan error, writers)
			initial = leasekeeper.Lease{}
		)
		require.NoError(t, sut.Create(ctx, newResource("host-1")))

		// Act
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				var next = leasekeeper.Lease{ReservedBy: fmt.Sprintf("writer-%d", i)}
				var err = sut.CompareAndSet(ctx, "host-1", initial, next)
				if err == nil {
					wins.Add(1)
					return
				}
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)

		// Assert
		assert.Equal(t, int32(1), wins.Load())
		for err := range errs {
			assert.ErrorIs(t, err, leasekeeper.ErrConflict)
		}
	})
}
